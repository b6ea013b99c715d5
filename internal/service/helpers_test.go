package service

import (
	"context"
	"testing"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/repository"
	"github.com/alexanderramin/kanban/internal/store"
	"github.com/alexanderramin/kanban/internal/testutil"
	"github.com/stretchr/testify/require"
)

type harness struct {
	ctx       context.Context
	clock     *testutil.Clock
	store     *store.FileStore
	boards    *repository.StoreBoardRepo
	manifests *repository.StoreManifestRepo

	items     ItemService
	flow      WorkflowService
	worktrees WorktreeService
	epics     EpicService
	releases  ReleaseService
	board     BoardService
}

func testTeams(t *testing.T) *TeamRegistry {
	t.Helper()
	reg, err := NewTeamRegistry([]Team{
		{Key: "alpha", Prefix: "X"},
		{Key: "beta", Prefix: "Y"},
	})
	require.NoError(t, err)
	return reg
}

// newHarness wires every service over a FileStore in a temp directory.
func newHarness(t *testing.T, extra ...Option) *harness {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		ctx:       context.Background(),
		clock:     testutil.NewClock(testutil.TestNow),
		store:     fs,
		boards:    repository.NewStoreBoardRepo(fs),
		manifests: repository.NewStoreManifestRepo(fs),
	}
	opts := append([]Option{
		WithClock(h.clock.Now),
		WithTeams(testTeams(t)),
		WithWorktree("/work/trees", "feature/"),
	}, extra...)
	h.items = NewItemService(h.boards, opts...)
	h.flow = NewWorkflowService(h.boards, opts...)
	h.worktrees = NewWorktreeService(h.boards, opts...)
	h.epics = NewEpicService(h.boards, opts...)
	h.releases = NewReleaseService(h.boards, h.manifests, opts...)
	h.board = NewBoardService(h.boards, opts...)
	return h
}

func (h *harness) addItem(t *testing.T, team, title string) *domain.Item {
	t.Helper()
	it, err := h.items.Add(h.ctx, team, ItemInput{Title: title})
	require.NoError(t, err)
	return it
}

func (h *harness) addSub(t *testing.T, team, parentID, title string) *domain.Subitem {
	t.Helper()
	sub, err := h.items.AddSubitem(h.ctx, team, parentID, title, "")
	require.NoError(t, err)
	return sub
}

func (h *harness) item(t *testing.T, team, id string) *domain.Item {
	t.Helper()
	it, err := h.items.Get(h.ctx, team, id)
	require.NoError(t, err)
	return it
}

func (h *harness) card(t *testing.T, team, id string) *domain.Card {
	t.Helper()
	c, err := h.items.GetCard(h.ctx, team, id)
	require.NoError(t, err)
	return c
}

func (h *harness) release(t *testing.T, team string, platforms ...string) *domain.Release {
	t.Helper()
	r, err := h.releases.Create(h.ctx, team, ReleaseInput{Name: "Spring", Platforms: platforms})
	require.NoError(t, err)
	return r
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
}
