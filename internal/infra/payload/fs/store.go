// Package fs implements a payload Store on the local filesystem. Keys map
// to relative paths under the root; a sidecar file (key + ".meta") holds
// content type, etag, and user metadata. Suitable for development, not for
// concurrent writers beyond per-file creation.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"worldcore/internal/infra/payload"
)

// Store implements payload.Store rooted at one directory.
type Store struct {
	root string
}

var _ payload.Store = (*Store)(nil)

// New returns a filesystem payload store rooted at path, creating it if
// needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./payloaddata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Driver returns the payload driver identifier.
func (s *Store) Driver() payload.Driver { return payload.DriverFilesystem }

// sanitizeKey rejects keys that could escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, k)
	return dataPath, dataPath + ".meta", nil
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Put streams the payload into place via a temp file, computing size and
// sha256 etag on the way.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts payload.PutOptions) (payload.Info, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return payload.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return payload.Info{}, fmt.Errorf("payload %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return payload.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return payload.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		return payload.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return payload.Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return payload.Info{}, err
	}
	now := time.Now().UTC()
	mf := metaFile{
		ContentType: opts.ContentType,
		Metadata:    payload.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		CreatedAt:   now,
	}
	raw, err := json.Marshal(mf)
	if err != nil {
		return payload.Info{}, err
	}
	if err := os.WriteFile(metaPath, raw, 0o644); err != nil {
		return payload.Info{}, err
	}
	return payload.Info{Key: key, Size: size, ContentType: mf.ContentType, ETag: mf.ETag, Metadata: payload.CloneMetadata(mf.Metadata), LastModified: now}, nil
}

// Get returns payload metadata and an open reader over its content.
func (s *Store) Get(ctx context.Context, key string) (payload.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return payload.Info{}, nil, err
	}
	dataPath, _, err := s.pathFor(key)
	if err != nil {
		return payload.Info{}, nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return payload.Info{}, nil, payload.ErrNotFound
		}
		return payload.Info{}, nil, err
	}
	return info, f, nil
}

// Head returns payload metadata only.
func (s *Store) Head(_ context.Context, key string) (payload.Info, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return payload.Info{}, err
	}
	st, err := os.Stat(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return payload.Info{}, payload.ErrNotFound
		}
		return payload.Info{}, err
	}
	info := payload.Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}
	if raw, err := os.ReadFile(metaPath); err == nil {
		var mf metaFile
		if err := json.Unmarshal(raw, &mf); err == nil {
			info.ContentType = mf.ContentType
			info.ETag = mf.ETag
			info.Metadata = mf.Metadata
		}
	}
	return info, nil
}

// Delete removes the payload and its sidecar, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root for payloads under the prefix, sorted by key.
func (s *Store) List(ctx context.Context, prefix string) ([]payload.Info, error) {
	var infos []payload.Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".meta") || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.Head(ctx, key)
		if err != nil {
			return err
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
