// Command worldsim drives N orbiter producers against one kernel for a fixed
// number of frames. It is a demo and smoke-benchmark harness: configuration
// comes from the environment, metrics are optionally served over Prometheus,
// and the commit journal optionally lands in sqlite.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"worldcore/apps/orbiter"
	"worldcore/internal/infra/assets"
	journalmemory "worldcore/internal/infra/journal/memory"
	journalsqlite "worldcore/internal/infra/journal/sqlite"
	payloadmemory "worldcore/internal/infra/payload/memory"
	"worldcore/internal/infra/world/arena"
	"worldcore/internal/kernel"
	"worldcore/pkg/patch"
)

type config struct {
	Frames        int           `env:"WORLDCORE_SIM_FRAMES" envDefault:"300"`
	FrameInterval time.Duration `env:"WORLDCORE_SIM_FRAME_INTERVAL" envDefault:"16ms"`
	Producers     int           `env:"WORLDCORE_SIM_PRODUCERS" envDefault:"3"`
	Satellites    int           `env:"WORLDCORE_SIM_SATELLITES" envDefault:"8"`
	SnapshotEvery uint64        `env:"WORLDCORE_SIM_SNAPSHOT_EVERY" envDefault:"60"`
	MaxSnapshots  int           `env:"WORLDCORE_SIM_MAX_SNAPSHOTS" envDefault:"4"`
	MetricsAddr   string        `env:"WORLDCORE_METRICS_ADDR"`
	JournalPath   string        `env:"WORLDCORE_JOURNAL_SQLITE_PATH"`
	Realtime      bool          `env:"WORLDCORE_SIM_REALTIME"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("worldsim: %v", err)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	ctx := context.Background()
	journal, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	obs := kernel.Observability{}
	var promReg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		promReg = prometheus.NewRegistry()
		recorder, err := kernel.NewPrometheusMetricsRecorder(promReg)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		obs.Metrics = recorder
	}

	k := kernel.NewKernel(kernel.Config{
		SnapshotEveryFrames: cfg.SnapshotEvery,
		Snapshots:           kernel.SnapshotLimits{MaxSnapshots: cfg.MaxSnapshots},
	}, arena.New(), arena.NewLayers(), assets.NewRegistry(payloadmemory.New()), nil, journal, obs)

	if promReg != nil {
		if err := promReg.Register(kernel.NewBusStatsCollector(k.Bus())); err != nil {
			return fmt.Errorf("register bus collector: %w", err)
		}
		defer serveMetrics(cfg.MetricsAddr, promReg)()
	}

	producers := make([]*orbiter.App, 0, cfg.Producers)
	for i := 0; i < cfg.Producers; i++ {
		app := orbiter.New(orbiter.Config{
			Namespace:  patch.NamespaceID(fmt.Sprintf("orbiter-%d", i)),
			Satellites: cfg.Satellites,
			Radius:     float64(10 * (i + 1)),
		})
		if err := app.Install(k); err != nil {
			return fmt.Errorf("install producer %d: %w", i, err)
		}
		producers = append(producers, app)
	}
	log.Printf("running %d frames with %d producers x %d satellites", cfg.Frames, cfg.Producers, cfg.Satellites)

	start := time.Now()
	for frame := 0; frame < cfg.Frames; frame++ {
		k.BeginFrame(cfg.FrameInterval)
		results := k.ProcessTransactions()
		for _, res := range results {
			if !res.Success {
				log.Printf("frame %d: transaction %d failed after %d patches: %s", k.Frame(), res.TransactionID, res.PatchesApplied, res.Error)
			}
		}
		k.EndFrame()
		for i, app := range producers {
			if err := app.Tick(cfg.FrameInterval); err != nil {
				log.Printf("producer %d tick: %v", i, err)
			}
		}
		if cfg.Realtime {
			time.Sleep(cfg.FrameInterval)
		}
	}
	elapsed := time.Since(start)

	stats := k.Bus().Stats()
	log.Printf("done in %s: submitted=%d committed=%d rolled_back=%d expired=%d deferred=%d pending=%d snapshots=%d",
		elapsed, stats.Submitted, stats.Committed, stats.RolledBack, stats.Expired, stats.Deferred, stats.PendingDepth, k.Snapshots().Len())

	tail, err := journal.Tail(ctx, 5)
	if err != nil {
		return fmt.Errorf("journal tail: %w", err)
	}
	for _, entry := range tail {
		log.Printf("journal: frame=%d tx=%d status=%s patches=%d", entry.Frame, entry.TransactionID, entry.Status, entry.PatchCount)
	}
	return nil
}

func openJournal(ctx context.Context, cfg config) (kernel.Journal, error) {
	if cfg.JournalPath == "" {
		return journalmemory.New(4096), nil
	}
	j, err := journalsqlite.Open(ctx, cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	return j, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
