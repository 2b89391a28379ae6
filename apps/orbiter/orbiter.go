// Package orbiter implements a reference producer app: a star with a ring of
// satellites whose positions advance every frame. It exists to exercise the
// public namespace-handle surface the way a real tenant would.
package orbiter

import (
	"fmt"
	"math"
	"time"

	"worldcore/internal/kernel"
	"worldcore/pkg/patch"
)

// Config tunes one orbiter instance. Zero fields take defaults.
type Config struct {
	Namespace        patch.NamespaceID
	Satellites       int
	Radius           float64
	RadiansPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "orbiter"
	}
	if c.Satellites <= 0 {
		c.Satellites = 8
	}
	if c.Radius <= 0 {
		c.Radius = 10
	}
	if c.RadiansPerSecond == 0 {
		c.RadiansPerSecond = math.Pi / 4
	}
	return c
}

// App is one orbiter producer. It owns its namespace and submits every
// mutation through the bus handle; it never touches world state directly.
type App struct {
	cfg    Config
	handle *kernel.NamespaceHandle
	angle  float64
}

// New constructs an orbiter app with defaults applied.
func New(cfg Config) *App {
	return &App{cfg: cfg.withDefaults()}
}

// Name returns the app identifier.
func (a *App) Name() string { return "orbiter" }

// Version returns the app semantic version.
func (a *App) Version() string { return "0.1.0" }

// Namespace returns the namespace the app writes into.
func (a *App) Namespace() patch.NamespaceID { return a.cfg.Namespace }

// Star returns the reference of the central entity.
func (a *App) Star() patch.EntityRef {
	return patch.EntityRef{Namespace: a.cfg.Namespace, LocalID: 1}
}

// Satellite returns the reference of satellite i (zero-based).
func (a *App) Satellite(i int) patch.EntityRef {
	return patch.EntityRef{Namespace: a.cfg.Namespace, LocalID: uint64(2 + i)}
}

// Install registers the app's namespace, opens a handle, and submits the
// seed transaction: the star, its satellites parented to it, an orbit layer,
// and the camera tracking the star. The seed lands on the next frame.
func (a *App) Install(k *kernel.Kernel) error {
	if a.handle != nil {
		return fmt.Errorf("orbiter already installed")
	}
	if err := k.Registry().Register(a.cfg.Namespace, "Orbiter Demo"); err != nil {
		return fmt.Errorf("register namespace: %w", err)
	}
	handle, err := k.Bus().OpenHandle(a.cfg.Namespace)
	if err != nil {
		return fmt.Errorf("open handle: %w", err)
	}

	b := handle.BeginTransaction()
	star := a.Star()
	if err := b.CreateEntity(star, "star"); err != nil {
		return err
	}
	if err := b.SetComponent(star, "Position", map[string]any{"x": 0.0, "y": 0.0}); err != nil {
		return err
	}
	for i := 0; i < a.cfg.Satellites; i++ {
		sat := a.Satellite(i)
		if err := b.CreateEntity(sat, "satellite"); err != nil {
			return err
		}
		x, y := a.position(i)
		if err := b.SetComponent(sat, "Position", map[string]any{"x": x, "y": y}); err != nil {
			return err
		}
		if err := b.SetParent(sat, star); err != nil {
			return err
		}
	}
	if err := b.SetLayer(a.layerID(), map[string]any{"radius": a.cfg.Radius}); err != nil {
		return err
	}
	if err := b.Add(patch.NewCameraSetActive(a.cfg.Namespace, star)); err != nil {
		return err
	}
	if err := b.Add(patch.NewCameraConfigure(a.cfg.Namespace, star, map[string]any{"fov": 60.0})); err != nil {
		return err
	}
	if _, err := handle.Submit(b); err != nil {
		return fmt.Errorf("submit seed: %w", err)
	}
	a.handle = handle
	return nil
}

// Tick advances the orbit by delta and submits one transaction updating
// every satellite's position.
func (a *App) Tick(delta time.Duration) error {
	if a.handle == nil {
		return fmt.Errorf("orbiter not installed")
	}
	a.angle += a.cfg.RadiansPerSecond * delta.Seconds()

	b := a.handle.BeginTransaction()
	for i := 0; i < a.cfg.Satellites; i++ {
		x, y := a.position(i)
		if err := b.UpdateComponent(a.Satellite(i), "Position", map[string]any{"x": x, "y": y}); err != nil {
			return err
		}
	}
	if _, err := a.handle.Submit(b); err != nil {
		return fmt.Errorf("submit tick: %w", err)
	}
	return nil
}

func (a *App) position(i int) (x, y float64) {
	phase := a.angle + 2*math.Pi*float64(i)/float64(a.cfg.Satellites)
	return a.cfg.Radius * math.Cos(phase), a.cfg.Radius * math.Sin(phase)
}

func (a *App) layerID() string {
	return fmt.Sprintf("%s:orbits", a.cfg.Namespace)
}
