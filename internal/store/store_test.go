package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderramin/kanban/internal/domain"
)

// Both backends must satisfy the same contract.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(t.TempDir() + "/kanban.db")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

type counterDoc struct {
	N int `json:"n"`
}

func increment(cur []byte) ([]byte, error) {
	var d counterDoc
	if cur != nil {
		if err := json.Unmarshal(cur, &d); err != nil {
			return nil, err
		}
	}
	d.N++
	return json.Marshal(d)
}

func readCounter(t *testing.T, s Store, key Key) int {
	t.Helper()
	data, err := s.Read(context.Background(), key)
	require.NoError(t, err)
	var d counterDoc
	require.NoError(t, json.Unmarshal(data, &d))
	return d.N
}

func TestStore_UpdateCreatesAndReplaces(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			key := BoardKey("Alpha")

			_, err := s.Read(ctx, key)
			assert.ErrorIs(t, err, ErrNotExist)

			require.NoError(t, s.Update(ctx, key, func(cur []byte) ([]byte, error) {
				assert.Nil(t, cur)
				return increment(cur)
			}))
			require.NoError(t, s.Update(ctx, key, increment))
			assert.Equal(t, 2, readCounter(t, s, key))
		})
	}
}

func TestStore_FailedUpdateWritesNothing(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			key := BoardKey("alpha")
			require.NoError(t, s.Update(ctx, key, increment))

			boom := errors.New("validation failed")
			err := s.Update(ctx, key, func(cur []byte) ([]byte, error) {
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, 1, readCounter(t, s, key))

			require.NoError(t, s.Update(ctx, key, func([]byte) ([]byte, error) {
				return nil, ErrNoChange
			}))
			assert.Equal(t, 1, readCounter(t, s, key))
		})
	}
}

func TestStore_ConcurrentUpdatesNeverLoseWrites(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			key := BoardKey("alpha")

			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- s.Update(ctx, key, increment)
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}
			assert.Equal(t, n, readCounter(t, s, key))
		})
	}
}

func TestStore_UpdateManyWritesEveryKey(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			board := BoardKey("alpha")
			manifest := ManifestKey("alpha", "rel-01")

			err := s.UpdateMany(ctx, []Key{manifest, board, manifest}, func(cur map[Key][]byte) (map[Key][]byte, error) {
				assert.Len(t, cur, 2)
				b, _ := increment(cur[board])
				m, _ := increment(cur[manifest])
				return map[Key][]byte{board: b, manifest: m}, nil
			})
			require.NoError(t, err)
			assert.Equal(t, 1, readCounter(t, s, board))
			assert.Equal(t, 1, readCounter(t, s, manifest))

			err = s.UpdateMany(ctx, []Key{board}, func(map[Key][]byte) (map[Key][]byte, error) {
				return map[Key][]byte{manifest: []byte(`{}`)}, nil
			})
			assert.Error(t, err, "writing an unlocked key must fail")
			assert.Equal(t, 1, readCounter(t, s, manifest))
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			for _, k := range []Key{
				BoardKey("beta"), BoardKey("alpha"),
				ManifestKey("alpha", "REL-02"), ManifestKey("alpha", "REL-01"), ManifestKey("beta", "REL-01"),
			} {
				require.NoError(t, s.Update(ctx, k, increment))
			}

			keys, err := s.List(ctx, "boards/")
			require.NoError(t, err)
			assert.Equal(t, []Key{"boards/alpha", "boards/beta"}, keys)

			keys, err = s.List(ctx, ManifestPrefix("alpha"))
			require.NoError(t, err)
			assert.Equal(t, []Key{"manifests/alpha/REL-01", "manifests/alpha/REL-02"}, keys)
		})
	}
}

func TestStore_RejectsInvalidKeys(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			for _, k := range []Key{"", "/abs", "boards/../etc", "boards//x", "boards/"} {
				err := s.Update(context.Background(), k, increment)
				assert.Error(t, err, "key %q", k)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, Key("boards/alpha"), BoardKey("Alpha"))
	assert.Equal(t, Key("manifests/alpha/REL-01"), ManifestKey("ALPHA", "rel-01"))
	assert.Equal(t, "board", BoardKey("x").Kind())
	assert.Equal(t, "manifest", ManifestKey("x", "y").Kind())
	assert.Equal(t, "REL-01", ManifestKey("x", "rel-01").Base())
	assert.Less(t, string(BoardKey("zeta")), string(ManifestKey("alpha", "REL-01")))
}

func TestLockTimeoutError(t *testing.T) {
	err := fmt.Errorf("saving: %w", &LockTimeoutError{Key: BoardKey("alpha"), Waited: 1500 * time.Millisecond})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Contains(t, err.Error(), "boards/alpha")
}
