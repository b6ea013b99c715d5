package testutil

import (
	"sync"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
)

// TestNow is the fixed instant fixtures are stamped with.
var TestNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock for services under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Item options
type ItemOption func(*domain.Item)

func WithPriority(p domain.Priority) ItemOption {
	return func(it *domain.Item) {
		it.Priority = p
	}
}

func WithStatus(s domain.Status) ItemOption {
	return func(it *domain.Item) {
		it.Status = s
	}
}

func WithTags(tags ...string) ItemOption {
	return func(it *domain.Item) {
		it.AddTags(tags...)
	}
}

// WithSubitems appends open subitems with the given titles.
func WithSubitems(titles ...string) ItemOption {
	return func(it *domain.Item) {
		for _, title := range titles {
			_, _ = it.AddSubitem(title, "", TestNow)
		}
	}
}

func WithWorktree(path, branch string) ItemOption {
	return func(it *domain.Item) {
		it.Worktree = &domain.Worktree{Path: path, Branch: branch, LinkedAt: TestNow}
	}
}

func NewTestItem(id, title string, opts ...ItemOption) *domain.Item {
	it := domain.NewItem(id, title, domain.PriorityMedium, TestNow)
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Board options
type BoardOption func(*domain.Board)

// WithItems adds the items and advances the id counter past them.
func WithItems(items ...*domain.Item) BoardOption {
	return func(b *domain.Board) {
		for _, it := range items {
			b.Items = append(b.Items, it)
			b.Counters.Item++
		}
	}
}

func WithEpic(e *domain.Epic) BoardOption {
	return func(b *domain.Board) {
		b.Epics = append(b.Epics, e)
		for _, id := range e.ItemIDs {
			for _, it := range b.Items {
				if it.ID == id {
					it.EpicID = e.ID
				}
			}
		}
	}
}

func WithRelease(r *domain.Release) BoardOption {
	return func(b *domain.Board) {
		b.Releases = append(b.Releases, r)
	}
}

func NewTestBoard(team string, opts ...BoardOption) *domain.Board {
	b := domain.NewBoard(team)
	b.LastUpdated = TestNow
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewTestRelease returns a release with every platform at DEV.
func NewTestRelease(id, team string, platforms ...string) *domain.Release {
	if len(platforms) == 0 {
		platforms = []string{"ios", "android"}
	}
	r, err := domain.NewRelease(id, "Release "+id, team, domain.ReleaseFeature, platforms, TestNow)
	if err != nil {
		panic(err)
	}
	return r
}
