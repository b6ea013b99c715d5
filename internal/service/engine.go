package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/repository"
)

// maxRaceRetries bounds the optimistic peek-then-lock loops used when the set
// of keys to lock depends on board contents.
const maxRaceRetries = 5

// errRaced signals that the board changed between the lock-free peek and the
// locked update. The caller re-peeks and tries again.
var errRaced = errors.New("board changed concurrently")

// Option configures the engine shared by the services.
type Option func(*engine)

// WithClock overrides the wall clock used to stamp mutations.
func WithClock(now func() time.Time) Option {
	return func(e *engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithObserver(observers ...UseCaseObserver) Option {
	return func(e *engine) { e.observer = CombineObservers(observers...) }
}

func WithTeams(teams *TeamRegistry) Option {
	return func(e *engine) { e.teams = teams }
}

// WithWorktree sets where run creates worktree linkages and the branch name
// prefix it uses.
func WithWorktree(root, branchPrefix string) Option {
	return func(e *engine) {
		e.worktreeRoot = root
		e.branchPrefix = branchPrefix
	}
}

type engine struct {
	boards       repository.BoardRepo
	teams        *TeamRegistry
	now          func() time.Time
	observer     UseCaseObserver
	worktreeRoot string
	branchPrefix string
}

func newEngine(boards repository.BoardRepo, opts []Option) *engine {
	e := &engine{
		boards:       boards,
		now:          func() time.Time { return time.Now().UTC() },
		observer:     NoopUseCaseObserver{},
		branchPrefix: "feature/",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// observe is deferred by every use case with a pointer to its named error.
func (e *engine) observe(ctx context.Context, name string, startedAt time.Time, fields map[string]any, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	e.observer.ObserveUseCase(ctx, UseCaseEvent{
		Name:      name,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Success:   err == nil,
		Err:       err,
		Fields:    fields,
	})
}

func (e *engine) resolve(team string) (Team, error) {
	return e.teams.Resolve(team)
}

// cardMutation edits the card named by the caller. parent is the item itself
// for item ids and the owning item for subitem ids, in which case sub is set.
type cardMutation func(b *domain.Board, card *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error

// mutateCard runs fn on an item or subitem under the board lock. When the
// item is assigned to a release its manifest is locked too, and a changed
// title or status is copied into the manifest snapshot in the same write.
func (e *engine) mutateCard(ctx context.Context, team, id string, fn cardMutation) (*domain.Board, *domain.Card, error) {
	t, err := e.resolve(team)
	if err != nil {
		return nil, nil, err
	}
	peek, err := e.boards.Get(ctx, t.Key)
	if err != nil {
		return nil, nil, err
	}
	_, peekParent, _, err := peek.Card(id)
	if err != nil {
		return nil, nil, err
	}
	var releaseIDs []string
	if peekParent.Release != nil {
		releaseIDs = []string{peekParent.Release.ReleaseID}
	}

	var card *domain.Card
	b, err := e.boards.UpdateWithManifests(ctx, t.Key, releaseIDs, func(b *domain.Board, manifests map[string]*domain.Manifest) error {
		now := e.now()
		c, parent, sub, err := b.Card(id)
		if err != nil {
			return err
		}
		card = c
		if err := fn(b, c, parent, sub, now); err != nil {
			return err
		}
		refreshSnapshot(b, parent, manifests, now)
		b.Touch(now)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return b, card, nil
}

// refreshSnapshot rewrites the manifest entry of an assigned item when its
// title or status changed. A manifest that was not locked or that lacks the
// entry is left for resync.
func refreshSnapshot(b *domain.Board, it *domain.Item, manifests map[string]*domain.Manifest, now time.Time) {
	if it.Release == nil {
		return
	}
	m := manifests[strings.ToUpper(it.Release.ReleaseID)]
	if m == nil {
		return
	}
	got, ok := m.Entry(it.ID)
	if !ok {
		return
	}
	want := domain.EntryFor(it, b.Team)
	if got.Title != want.Title || got.Status != want.Status || got.Platform != want.Platform {
		m.Upsert(want, now)
	}
}

// slug turns a title into a branch-name fragment.
func slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 40 {
		out = strings.TrimRight(out[:40], "-")
	}
	return out
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
