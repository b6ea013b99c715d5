package service

import (
	"context"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
)

// Every engine call takes the team whose board it addresses. The team is
// never inferred from the environment inside the engine.

type ItemInput struct {
	// ID is optional; an empty ID allocates the next "<PREFIX>-NNN".
	ID          string
	Title       string
	Description string
	Priority    domain.Priority
	Tags        []string
	DueDate     *time.Time
	IssueRef    string
	EpicID      string
}

// CardPatch changes the listed fields of an item or subitem; nil fields are
// left alone.
type CardPatch struct {
	Title       *string
	Description *string
	Priority    *domain.Priority
	DueDate     *time.Time
	ClearDue    bool
	IssueRef    *string
	SCMIssue    *string
}

func (p CardPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.DueDate == nil && !p.ClearDue && p.IssueRef == nil && p.SCMIssue == nil
}

type ItemService interface {
	Add(ctx context.Context, team string, in ItemInput) (*domain.Item, error)
	Get(ctx context.Context, team, id string) (*domain.Item, error)
	// GetCard resolves an item or subitem id.
	GetCard(ctx context.Context, team, id string) (*domain.Card, error)
	List(ctx context.Context, team string, filter domain.ItemFilter) ([]*domain.Item, error)
	Modify(ctx context.Context, team, id string, patch CardPatch) (*domain.Card, error)
	Remove(ctx context.Context, team, id string) (*domain.Item, error)
	Tag(ctx context.Context, team, id string, add, remove []string) (*domain.Card, error)
	SetCollapsed(ctx context.Context, team, id string, collapsed bool) error

	AddSubitem(ctx context.Context, team, parentID, title string, priority domain.Priority) (*domain.Subitem, error)
	ListSubitems(ctx context.Context, team, parentID string) ([]*domain.Subitem, error)
	RemoveSubitem(ctx context.Context, team, id string) (*domain.Subitem, error)
}

type StopResult struct {
	Card    *domain.Card
	Elapsed time.Duration
}

type ReopenResult struct {
	Card *domain.Card `json:"card"`
	// FollowUp is the subitem created by the reopen, if any.
	FollowUp *domain.Subitem `json:"followUp,omitempty"`
}

// WorkflowService drives the status machine. ids may name an item ("X-001")
// or a subitem ("X-001.2").
type WorkflowService interface {
	Start(ctx context.Context, team, id string) (*domain.Card, error)
	Pause(ctx context.Context, team, id, reason string) (*domain.Card, error)
	Resume(ctx context.Context, team, id string) (*domain.Card, error)
	Stop(ctx context.Context, team, id string) (*StopResult, error)
	Complete(ctx context.Context, team, id string, force bool) (*domain.Card, error)
	Reopen(ctx context.Context, team, id, followUp string) (*ReopenResult, error)
	Cancel(ctx context.Context, team, id, reason string) (*domain.Card, error)
	SetPhase(ctx context.Context, team, id string, phase domain.Phase) (*domain.Card, error)
}

type LinkRequest struct {
	Path      string
	Branch    string
	SessionID string
	Override  bool
}

type LinkResult struct {
	Item *domain.Item
	// Replaced is set when Override replaced a different linkage.
	Replaced *domain.WorktreeConflictError
}

type RunOptions struct {
	// InWorktree is true when the caller already runs inside a linked
	// worktree rather than the canonical checkout.
	InWorktree bool
	SessionID  string
}

type RunResult struct {
	Item    *domain.Item `json:"item"`
	Started bool         `json:"started"`
	Linked  bool         `json:"linked"`
}

type WorktreeService interface {
	Link(ctx context.Context, team, itemID string, req LinkRequest) (*LinkResult, error)
	Unlink(ctx context.Context, team, itemID string) (*domain.Item, *domain.Worktree, error)
	// Run starts the item and links a worktree when none is linked and the
	// caller works from the canonical checkout.
	Run(ctx context.Context, team, itemID string, opts RunOptions) (*RunResult, error)
	// Pick starts an item or subitem without touching worktree linkage.
	Pick(ctx context.Context, team, id string) (*domain.Card, bool, error)
}

type EpicInput struct {
	ID          string
	Title       string
	Description string
	Priority    domain.Priority
	DueDate     *time.Time
	Owner       string
}

type EpicPatch struct {
	Title       *string
	Description *string
	Status      *domain.EpicStatus
	Priority    *domain.Priority
	DueDate     *time.Time
	ClearDue    bool
	Owner       *string
}

type EpicSummary struct {
	Epic     *domain.Epic        `json:"epic"`
	Progress domain.EpicProgress `json:"progress"`
}

type EpicDetail struct {
	Epic     *domain.Epic        `json:"epic"`
	Progress domain.EpicProgress `json:"progress"`
	Items    []*domain.Item      `json:"items"`
}

type EpicService interface {
	Create(ctx context.Context, team string, in EpicInput) (*domain.Epic, error)
	List(ctx context.Context, team string) ([]EpicSummary, error)
	Get(ctx context.Context, team, id string) (*EpicDetail, error)
	Update(ctx context.Context, team, id string, patch EpicPatch) (*domain.Epic, error)
	Delete(ctx context.Context, team, id string) (*domain.Epic, error)
	// AddItem reports changed=false when the item already is in this epic.
	AddItem(ctx context.Context, team, epicID, itemID string) (epic *domain.Epic, changed bool, err error)
	RemoveItem(ctx context.Context, team, epicID, itemID string) (*domain.Epic, error)
}

type ReleaseInput struct {
	ID          string
	Name        string
	Type        domain.ReleaseType
	Platforms   []string
	TargetDate  *time.Time
	Description string
}

type ReleaseDetail struct {
	Release  *domain.Release     `json:"release"`
	Manifest *domain.Manifest    `json:"manifest"`
	Items    []*domain.Item      `json:"items"`
	Diff     domain.ManifestDiff `json:"diff"`
}

type AssignResult struct {
	Item     *domain.Item     `json:"item"`
	Release  *domain.Release  `json:"release"`
	Manifest *domain.Manifest `json:"manifest"`
}

type PromoteResult struct {
	Release   *domain.Release   `json:"release"`
	Promotion *domain.Promotion `json:"promotion"`
}

type VerifyReport struct {
	Team  string                `json:"team"`
	Diffs []domain.ManifestDiff `json:"diffs"`
}

// Divergent returns the diffs that disagree on the assigned item set.
func (r *VerifyReport) Divergent() []domain.ManifestDiff {
	var out []domain.ManifestDiff
	for _, d := range r.Diffs {
		if d.Divergent() {
			out = append(out, d)
		}
	}
	return out
}

type ResyncReport struct {
	Team string `json:"team"`
	// Corrected lists the manifests that were rewritten and what was wrong.
	Corrected []domain.ManifestDiff `json:"corrected"`
}

type ReleaseService interface {
	Create(ctx context.Context, team string, in ReleaseInput) (*domain.Release, error)
	List(ctx context.Context, team string) ([]*domain.Release, error)
	Get(ctx context.Context, team, id string) (*ReleaseDetail, error)
	Assign(ctx context.Context, team, itemID, releaseID, platform string) (*AssignResult, error)
	Unassign(ctx context.Context, team, itemID string) (*AssignResult, error)
	Promote(ctx context.Context, team, releaseID, platform string, target domain.Environment, note string) (*PromoteResult, error)
	SetVersion(ctx context.Context, team, releaseID, platform, version string, build int) (*domain.Release, error)
	SetStatus(ctx context.Context, team, releaseID string, status domain.ReleaseStatus) (*domain.Release, error)
	// Verify never corrects anything. It returns a *domain.DivergenceError
	// together with the report when a manifest disagrees with the board.
	Verify(ctx context.Context, team string) (*VerifyReport, error)
	// Resync rewrites the team's manifests from the board. It is idempotent.
	Resync(ctx context.Context, team string) (*ResyncReport, error)
	ResyncAll(ctx context.Context, teams []string) ([]*ResyncReport, error)
}

type BoardService interface {
	Get(ctx context.Context, team string) (*domain.Board, error)
	Teams(ctx context.Context) ([]string, error)
}
