// Package memory implements an in-memory payload Store for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"worldcore/internal/infra/payload"
)

type entry struct {
	info payload.Info
	data []byte
}

// Store implements payload.Store backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
}

var _ payload.Store = (*Store)(nil)

// New returns an empty in-memory payload store.
func New() *Store { return &Store{objs: make(map[string]entry)} }

// Driver returns the payload driver identifier.
func (s *Store) Driver() payload.Driver { return payload.DriverMemory }

// Put stores a new payload; errors if the key exists.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts payload.PutOptions) (payload.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return payload.Info{}, fmt.Errorf("payload %s already exists", key)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return payload.Info{}, err
	}
	info := payload.Info{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		Metadata:     payload.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.objs[key] = entry{info: info, data: b}
	return info, nil
}

// Get returns payload metadata and a reader over a copy of its content.
func (s *Store) Get(_ context.Context, key string) (payload.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return payload.Info{}, nil, payload.ErrNotFound
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	info := obj.info
	info.Metadata = payload.CloneMetadata(info.Metadata)
	return info, io.NopCloser(bytes.NewReader(data)), nil
}

// Head returns payload metadata only.
func (s *Store) Head(_ context.Context, key string) (payload.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return payload.Info{}, payload.ErrNotFound
	}
	info := obj.info
	info.Metadata = payload.CloneMetadata(info.Metadata)
	return info, nil
}

// Delete removes a payload, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; !ok {
		return false, nil
	}
	delete(s.objs, key)
	return true, nil
}

// List returns metadata for every payload under the prefix, sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]payload.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []payload.Info
	for key, obj := range s.objs {
		if strings.HasPrefix(key, prefix) {
			info := obj.info
			info.Metadata = payload.CloneMetadata(info.Metadata)
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
