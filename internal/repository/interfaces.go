package repository

import (
	"context"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/store"
)

// ErrNoChange returned from a mutation callback skips the write.
var ErrNoChange = store.ErrNoChange

// BoardMutation edits a loaded board in place. The board is persisted only if
// it returns nil.
type BoardMutation func(b *domain.Board) error

// ReleaseMutation edits a board and the manifests of the requested releases.
// manifests is keyed by release id; a nil entry means the manifest document
// does not exist yet. Non-nil entries are persisted with the board.
type ReleaseMutation func(b *domain.Board, manifests map[string]*domain.Manifest) error

type BoardRepo interface {
	// Get returns the team's board. A team that never wrote anything gets
	// an empty board.
	Get(ctx context.Context, team string) (*domain.Board, error)
	// Update loads, mutates and saves the board under its lock.
	Update(ctx context.Context, team string, fn BoardMutation) (*domain.Board, error)
	// UpdateWithManifests locks the board and the release manifests
	// together and writes them in one step.
	UpdateWithManifests(ctx context.Context, team string, releaseIDs []string, fn ReleaseMutation) (*domain.Board, error)
	// Teams lists the teams that have a stored board.
	Teams(ctx context.Context) ([]string, error)
}

type ManifestRepo interface {
	// Get returns the stored manifest, or a domain.ErrNotFound error.
	Get(ctx context.Context, team, releaseID string) (*domain.Manifest, error)
	// List returns every manifest stored for team.
	List(ctx context.Context, team string) ([]*domain.Manifest, error)
}
