package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
)

const (
	docExt  = ".json"
	lockExt = ".lock"
	backend = "file"
)

var errLockBusy = errors.New("lock busy")

// FileStore keeps each document in <root>/<key>.json next to a lock file
// <root>/<key>.json.lock. The lock is an OS advisory lock, so it coordinates
// goroutines and separate processes alike, and it is released by the kernel
// if the holder dies.
type FileStore struct {
	root    string
	retry   RetryPolicy
	metrics *Metrics
	logger  *slog.Logger

	// writeFile is swapped in tests to inject write failures.
	writeFile func(path string, data []byte) error
}

type FileOption func(*FileStore)

func WithRetryPolicy(p RetryPolicy) FileOption {
	return func(s *FileStore) { s.retry = p }
}

func WithMetrics(m *Metrics) FileOption {
	return func(s *FileStore) { s.metrics = m }
}

func WithLogger(l *slog.Logger) FileOption {
	return func(s *FileStore) { s.logger = l }
}

func NewFileStore(root string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s := &FileStore{
		root:      root,
		retry:     DefaultRetryPolicy(),
		logger:    slog.Default(),
		writeFile: atomicWriteFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(string(key))+docExt)
}

func (s *FileStore) Read(_ context.Context, key Key) ([]byte, error) {
	if !key.valid() {
		return nil, fmt.Errorf("store: invalid key %q", key)
	}
	return s.read(key)
}

func (s *FileStore) read(key Key) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// current is read for the update path, where an absent document is nil.
func (s *FileStore) current(key Key) ([]byte, error) {
	data, err := s.read(key)
	if errors.Is(err, ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (s *FileStore) Update(ctx context.Context, key Key, fn UpdateFunc) error {
	return s.UpdateMany(ctx, []Key{key}, func(cur map[Key][]byte) (map[Key][]byte, error) {
		next, err := fn(cur[key])
		if err != nil {
			return nil, err
		}
		return map[Key][]byte{key: next}, nil
	})
}

func (s *FileStore) UpdateMany(ctx context.Context, keys []Key, fn UpdateManyFunc) error {
	ordered, err := sortedKeys(keys)
	if err != nil {
		return err
	}

	locks := make([]*flock.Flock, 0, len(ordered))
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			if err := locks[i].Unlock(); err != nil {
				s.logger.Warn("releasing lock", "path", locks[i].Path(), "error", err)
			}
		}
	}()
	for _, k := range ordered {
		fl, err := s.lock(ctx, k)
		if err != nil {
			return err
		}
		locks = append(locks, fl)
	}

	prev := make(map[Key][]byte, len(ordered))
	for _, k := range ordered {
		data, err := s.current(k)
		if err != nil {
			return err
		}
		prev[k] = data
	}

	next, err := fn(cloneDocs(prev))
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := checkResult(ordered, next); err != nil {
		return err
	}

	var written []Key
	for _, k := range ordered {
		data, ok := next[k]
		if !ok || data == nil {
			continue
		}
		if err := s.writeFile(s.path(k), data); err != nil {
			s.metrics.write(backend, k, "error")
			s.rollback(written, prev)
			return fmt.Errorf("writing %s: %w", k, err)
		}
		s.metrics.write(backend, k, "ok")
		written = append(written, k)
	}
	return nil
}

// rollback restores the documents written before a failure, newest first.
// A document that did not exist before is removed.
func (s *FileStore) rollback(written []Key, prev map[Key][]byte) {
	for i := len(written) - 1; i >= 0; i-- {
		k := written[i]
		var err error
		if prev[k] == nil {
			err = os.Remove(s.path(k))
		} else {
			err = atomicWriteFile(s.path(k), prev[k])
		}
		if err != nil {
			s.logger.Error("rollback failed; document may be inconsistent until resync", "key", k, "error", err)
			continue
		}
		s.metrics.write(backend, k, "rolled_back")
	}
}

// lock acquires the exclusive lock of key, polling with exponential backoff
// until the retry policy or ctx gives up.
func (s *FileStore) lock(ctx context.Context, key Key) (*flock.Flock, error) {
	lockPath := s.path(key) + lockExt
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(lockPath)

	start := time.Now()
	err := backoff.Retry(func() error {
		locked, err := fl.TryLock()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquiring lock %s: %w", lockPath, err))
		}
		if !locked {
			return errLockBusy
		}
		return nil
	}, s.retry.newBackOff(ctx))
	waited := time.Since(start)
	s.metrics.observeWait(backend, key, waited)

	switch {
	case err == nil:
		return fl, nil
	case errors.Is(err, errLockBusy):
		s.metrics.lockTimeout(backend, key)
		s.logger.Warn("lock timeout", "key", key, "waited", waited)
		return nil, &LockTimeoutError{Key: key, Waited: waited}
	default:
		return nil, err
	}
}

func (s *FileStore) List(_ context.Context, prefix string) ([]Key, error) {
	var keys []Key
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, docExt) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		k := Key(filepath.ToSlash(strings.TrimSuffix(rel, docExt)))
		if strings.HasPrefix(string(k), prefix) {
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (s *FileStore) Close() error { return nil }

// atomicWriteFile writes data to a temp file in the target's directory,
// fsyncs it and renames it over path. Readers see either the old or the new
// document, never a partial one.
func atomicWriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Errorf("generating random suffix: %w", err)
	}
	tmp := path + ".tmp." + hex.EncodeToString(randBytes)

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
