package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/store"
	"github.com/alexanderramin/kanban/internal/testutil"
)

func newFileRepos(t *testing.T) (*StoreBoardRepo, *StoreManifestRepo, string) {
	t.Helper()
	root := t.TempDir()
	s, err := store.NewFileStore(root)
	require.NoError(t, err)
	return NewStoreBoardRepo(s), NewStoreManifestRepo(s), root
}

func addItem(title string) BoardMutation {
	return func(b *domain.Board) error {
		return b.AddItem(domain.NewItem(b.NextItemID("ALP"), title, "", testutil.TestNow), testutil.TestNow)
	}
}

func TestBoardRepo_GetMissingBoardIsEmpty(t *testing.T) {
	boards, _, _ := newFileRepos(t)
	b, err := boards.Get(context.Background(), "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", b.Team)
	assert.Empty(t, b.Items)

	_, err = boards.Get(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = boards.Get(context.Background(), "../etc")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBoardRepo_UpdatePersists(t *testing.T) {
	boards, _, root := newFileRepos(t)
	ctx := context.Background()

	saved, err := boards.Update(ctx, "alpha", addItem("first"))
	require.NoError(t, err)
	require.Len(t, saved.Items, 1)

	b, err := boards.Get(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	assert.Equal(t, "ALP-001", b.Items[0].ID)

	data, err := os.ReadFile(filepath.Join(root, "boards", "alpha.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"team\": \"alpha\"")
}

func TestBoardRepo_MutationErrorWritesNothing(t *testing.T) {
	boards, _, _ := newFileRepos(t)
	ctx := context.Background()
	_, err := boards.Update(ctx, "alpha", addItem("first"))
	require.NoError(t, err)

	boom := errors.New("nope")
	_, err = boards.Update(ctx, "alpha", func(b *domain.Board) error {
		b.Items = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := boards.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, b.Items, 1)
}

func TestBoardRepo_InvalidBoardIsNotSaved(t *testing.T) {
	boards, _, _ := newFileRepos(t)
	ctx := context.Background()
	_, err := boards.Update(ctx, "alpha", addItem("first"))
	require.NoError(t, err)

	_, err = boards.Update(ctx, "alpha", func(b *domain.Board) error {
		b.Items = append(b.Items, domain.NewItem("ALP-001", "dup", "", testutil.TestNow))
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)

	b, err := boards.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, b.Items, 1)
}

func TestBoardRepo_PreservesUnknownFields(t *testing.T) {
	boards, _, root := newFileRepos(t)
	ctx := context.Background()
	path := filepath.Join(root, "boards", "alpha.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"team":"alpha","items":[],"viewMode":"compact","counters":{"item":0}}`), 0o644))

	_, err := boards.Update(ctx, "alpha", addItem("first"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"viewMode": "compact"`)
}

func TestBoardRepo_ConcurrentUpdatesAllLand(t *testing.T) {
	boards, _, _ := newFileRepos(t)
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := boards.Update(ctx, "alpha", addItem(fmt.Sprintf("item %d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	b, err := boards.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, b.Items, n)
	require.NoError(t, b.Validate())
}

func TestBoardRepo_UpdateWithManifests(t *testing.T) {
	boards, manifests, _ := newFileRepos(t)
	ctx := context.Background()

	_, err := boards.UpdateWithManifests(ctx, "alpha", []string{"rel-01"}, func(b *domain.Board, ms map[string]*domain.Manifest) error {
		assert.Nil(t, ms["REL-01"])
		r := testutil.NewTestRelease(b.NextReleaseID(), "alpha")
		if err := b.AddRelease(r, testutil.TestNow); err != nil {
			return err
		}
		ms[r.ID] = domain.NewManifest(r.ID, "alpha", testutil.TestNow)
		return nil
	})
	require.NoError(t, err)

	m, err := manifests.Get(ctx, "alpha", "REL-01")
	require.NoError(t, err)
	assert.Equal(t, "REL-01", m.ReleaseID)
	assert.Empty(t, m.Items)

	all, err := manifests.List(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = manifests.Get(ctx, "alpha", "REL-02")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = boards.UpdateWithManifests(ctx, "alpha", nil, func(b *domain.Board, ms map[string]*domain.Manifest) error {
		ms["REL-09"] = domain.NewManifest("REL-09", "alpha", testutil.TestNow)
		return nil
	})
	assert.Error(t, err, "manifests that were not locked must be rejected")
}

func TestBoardRepo_NoChangeReturnsLoadedBoard(t *testing.T) {
	boards, _, _ := newFileRepos(t)
	ctx := context.Background()
	_, err := boards.Update(ctx, "alpha", addItem("first"))
	require.NoError(t, err)

	b, err := boards.Update(ctx, "alpha", func(*domain.Board) error { return ErrNoChange })
	require.NoError(t, err)
	assert.Len(t, b.Items, 1)
}

func TestBoardRepo_Teams(t *testing.T) {
	boards, _, _ := newFileRepos(t)
	ctx := context.Background()
	for _, team := range []string{"beta", "alpha"} {
		_, err := boards.Update(ctx, team, addItem("x"))
		require.NoError(t, err)
	}
	teams, err := boards.Teams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, teams)
}

func TestBoardRepo_SQLiteRollbackKeepsBoardAndManifestInStep(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	boards := NewStoreBoardRepo(store.NewSQLiteStore(database))
	_, err := boards.Update(ctx, "alpha", addItem("first"))
	require.NoError(t, err)

	// Second exec is the manifest row; the board row written first must roll back.
	failing := NewStoreBoardRepo(store.NewSQLiteStore(database, store.WithUnitOfWork(&testutil.FailOnNthExecUoW{
		DB: database, FailOn: 2, Err: errors.New("disk I/O error"),
	})))
	_, err = failing.UpdateWithManifests(ctx, "alpha", []string{"REL-01"}, func(b *domain.Board, ms map[string]*domain.Manifest) error {
		it, err := b.Item("ALP-001")
		if err != nil {
			return err
		}
		it.Release = &domain.ReleaseAssignment{ReleaseID: "REL-01", Platform: "ios"}
		ms["REL-01"] = domain.BuildManifest(b, "REL-01", testutil.TestNow)
		return nil
	})
	require.Error(t, err)

	b, err := boards.Get(ctx, "alpha")
	require.NoError(t, err)
	it, _ := b.Item("ALP-001")
	assert.Nil(t, it.Release)
	_, err = NewStoreManifestRepo(store.NewSQLiteStore(database)).Get(ctx, "alpha", "REL-01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
