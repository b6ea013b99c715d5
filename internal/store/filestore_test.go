package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{
	InitialInterval: 5 * time.Millisecond,
	MaxInterval:     10 * time.Millisecond,
	MaxElapsed:      100 * time.Millisecond,
}

func TestFileStore_LayoutOnDisk(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Update(context.Background(), BoardKey("alpha"), increment))

	_, err = os.Stat(filepath.Join(root, "boards", "alpha.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "boards", "alpha.json.lock"))
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(root, "boards", "*.tmp.*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files must not be left behind")
}

func TestFileStore_LockTimeout(t *testing.T) {
	root := t.TempDir()
	m := NewMetrics()
	s, err := NewFileStore(root, WithRetryPolicy(fastRetry), WithMetrics(m))
	require.NoError(t, err)
	key := BoardKey("alpha")
	require.NoError(t, s.Update(context.Background(), key, increment))

	holder := flock.New(s.path(key) + lockExt)
	require.NoError(t, holder.Lock())

	called := false
	err = s.Update(context.Background(), key, func(cur []byte) ([]byte, error) {
		called = true
		return increment(cur)
	})
	require.NoError(t, holder.Unlock())

	var lte *LockTimeoutError
	require.True(t, errors.As(err, &lte))
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, key, lte.Key)
	assert.False(t, called, "update must not run without the lock")
	assert.Equal(t, 1, readCounter(t, s, key))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockTimeouts.WithLabelValues("file", "board")))

	require.NoError(t, s.Update(context.Background(), key, increment))
	assert.Equal(t, 2, readCounter(t, s, key))
}

func TestFileStore_LockWaitsForRelease(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), WithRetryPolicy(RetryPolicy{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		MaxElapsed:      5 * time.Second,
	}))
	require.NoError(t, err)
	key := BoardKey("alpha")
	require.NoError(t, s.Update(context.Background(), key, increment))

	holder := flock.New(s.path(key) + lockExt)
	require.NoError(t, holder.Lock())
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = holder.Unlock()
	}()

	require.NoError(t, s.Update(context.Background(), key, increment))
	assert.Equal(t, 2, readCounter(t, s, key))
}

func TestFileStore_CancelledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), WithRetryPolicy(RetryPolicy{MaxElapsed: time.Minute}))
	require.NoError(t, err)
	key := BoardKey("alpha")
	require.NoError(t, s.Update(context.Background(), key, increment))

	holder := flock.New(s.path(key) + lockExt)
	require.NoError(t, holder.Lock())
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Update(ctx, key, increment)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFileStore_UpdateManyRollsBackOnWriteFailure(t *testing.T) {
	root := t.TempDir()
	m := NewMetrics()
	s, err := NewFileStore(root, WithMetrics(m))
	require.NoError(t, err)
	ctx := context.Background()
	board := BoardKey("alpha")
	manifest := ManifestKey("alpha", "REL-01")
	require.NoError(t, s.Update(ctx, board, increment))

	diskFull := errors.New("no space left on device")
	s.writeFile = func(path string, data []byte) error {
		if filepath.Base(path) == "REL-01.json" {
			return diskFull
		}
		return atomicWriteFile(path, data)
	}

	err = s.UpdateMany(ctx, []Key{board, manifest}, func(cur map[Key][]byte) (map[Key][]byte, error) {
		b, _ := increment(cur[board])
		mm, _ := increment(cur[manifest])
		return map[Key][]byte{board: b, manifest: mm}, nil
	})
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, 1, readCounter(t, s, board), "board write must be rolled back")
	_, err = s.Read(ctx, manifest)
	assert.ErrorIs(t, err, ErrNotExist)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("file", "board", "rolled_back")))
}

func TestFileStore_RollbackRemovesNewDocuments(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	board := BoardKey("alpha")
	manifest := ManifestKey("alpha", "REL-01")

	s.writeFile = func(path string, data []byte) error {
		if filepath.Base(path) == "REL-01.json" {
			return errors.New("io error")
		}
		return atomicWriteFile(path, data)
	}
	err = s.UpdateMany(ctx, []Key{board, manifest}, func(cur map[Key][]byte) (map[Key][]byte, error) {
		return map[Key][]byte{board: []byte(`{"n":1}`), manifest: []byte(`{"n":1}`)}, nil
	})
	require.Error(t, err)
	_, err = s.Read(ctx, board)
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileStore_WatchReportsOwnWrites(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan Key, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, "boards", 20*time.Millisecond, func(k Key) { changed <- k })
	}()
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, s.Update(context.Background(), BoardKey("alpha"), increment))

	select {
	case k := <-changed:
		assert.Equal(t, BoardKey("alpha"), k)
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	s, err := NewFileStore(t.TempDir(), WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, s.Update(context.Background(), BoardKey("alpha"), increment))

	path := filepath.Join(t.TempDir(), "kanban.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `kanban_store_writes_total{backend="file",kind="board",result="ok"} 1`)

	var nilMetrics *Metrics
	assert.NoError(t, nilMetrics.WriteTextfile(path))
}
