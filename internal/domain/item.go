package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Worktree links an item to the checkout, branch and terminal session
// currently working on it.
type Worktree struct {
	Path      string    `json:"path"`
	Branch    string    `json:"branch,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	LinkedAt  time.Time `json:"linkedAt"`
}

func (w *Worktree) Empty() bool {
	return w == nil || (w.Path == "" && w.Branch == "" && w.SessionID == "")
}

// Same reports whether two linkages point at the same worktree and session.
func (w *Worktree) Same(o *Worktree) bool {
	if w.Empty() || o.Empty() {
		return w.Empty() == o.Empty()
	}
	return w.Path == o.Path && w.Branch == o.Branch && w.SessionID == o.SessionID
}

// ReleaseAssignment is the item-side half of a release manifest entry.
type ReleaseAssignment struct {
	ReleaseID  string    `json:"releaseId"`
	Platform   string    `json:"platform"`
	AssignedAt time.Time `json:"assignedAt"`
}

type Item struct {
	Card

	Worktree       *Worktree          `json:"worktree,omitempty"`
	Subitems       []*Subitem         `json:"subitems,omitempty"`
	NextSubitemSeq int                `json:"nextSubitemSeq,omitempty"`
	EpicID         string             `json:"epicId,omitempty"`
	Release        *ReleaseAssignment `json:"releaseAssignment,omitempty"`

	Extra Extra `json:"-"`
}

type Subitem struct {
	Card

	Extra Extra `json:"-"`
}

// NewItem builds a todo item.
func NewItem(id, title string, priority Priority, now time.Time) *Item {
	return &Item{Card: newCard(id, title, priority, now)}
}

func (it *Item) MarshalJSON() ([]byte, error) {
	type alias Item
	data, err := json.Marshal((*alias)(it))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, it.Extra)
}

func (it *Item) UnmarshalJSON(data []byte) error {
	type alias Item
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*it = Item(a)
	it.Extra = extractExtra(data, a)
	return nil
}

func (s *Subitem) MarshalJSON() ([]byte, error) {
	type alias Subitem
	data, err := json.Marshal((*alias)(s))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, s.Extra)
}

func (s *Subitem) UnmarshalJSON(data []byte) error {
	type alias Subitem
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Subitem(a)
	s.Extra = extractExtra(data, a)
	return nil
}

// SubitemID derives the id of the n-th subitem of parentID.
func SubitemID(parentID string, n int) string {
	return fmt.Sprintf("%s.%d", parentID, n)
}

// SplitSubitemID splits "X-001.3" into ("X-001", 3). ok is false for item ids.
func SplitSubitemID(id string) (parentID string, n int, ok bool) {
	i := strings.LastIndexByte(id, '.')
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

// AddSubitem appends a todo subitem with the next positional id. Suffixes are
// never reused, even after a subitem is removed.
func (it *Item) AddSubitem(title string, priority Priority, now time.Time) (*Subitem, error) {
	if it.IsTerminal() {
		return nil, it.transitionErr("add subitem to", "reopen it with a follow-up instead")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: subitem title is required", ErrValidation)
	}
	if priority == "" {
		priority = it.Priority
	}
	seq := it.NextSubitemSeq
	for _, s := range it.Subitems {
		if _, n, ok := SplitSubitemID(s.ID); ok && n > seq {
			seq = n
		}
	}
	seq++
	sub := &Subitem{Card: newCard(SubitemID(it.ID, seq), title, priority, now)}
	it.Subitems = append(it.Subitems, sub)
	it.NextSubitemSeq = seq
	it.UpdatedAt = now
	return sub, nil
}

func (it *Item) Subitem(id string) (*Subitem, error) {
	for _, s := range it.Subitems {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, notFound("subitem", id)
}

// RemoveSubitem deletes an erroneously created subitem.
func (it *Item) RemoveSubitem(id string, now time.Time) (*Subitem, error) {
	for i, s := range it.Subitems {
		if s.ID == id {
			it.Subitems = append(it.Subitems[:i], it.Subitems[i+1:]...)
			it.UpdatedAt = now
			return s, nil
		}
	}
	return nil, notFound("subitem", id)
}

// OpenSubitems lists subitems that are neither completed nor cancelled.
func (it *Item) OpenSubitems() []SubitemRef {
	var open []SubitemRef
	for _, s := range it.Subitems {
		if !s.IsTerminal() {
			open = append(open, SubitemRef{ID: s.ID, Title: s.Title, Status: s.Status})
		}
	}
	return open
}

// Complete closes the item. Every subitem must be terminal unless force is
// set; a forced completion over open subitems is recorded in the audit trail.
func (it *Item) Complete(force bool, now time.Time) error {
	if it.IsTerminal() {
		return it.transitionErr("complete", "item is already closed")
	}
	open := it.OpenSubitems()
	if len(open) > 0 && !force {
		return &IncompleteSubitemsError{ItemID: it.ID, Blocking: open}
	}
	if err := it.complete(now); err != nil {
		return err
	}
	if len(open) > 0 {
		ids := make([]string, 0, len(open))
		for _, s := range open {
			ids = append(ids, fmt.Sprintf("%s %q (%s)", s.ID, s.Title, s.Status))
		}
		it.addAudit(AuditForcedCompletion, "completed with open subitems: "+strings.Join(ids, ", "), now)
	}
	it.Worktree = nil
	return nil
}

// Cancel closes the item as cancelled and drops its worktree linkage.
func (it *Item) Cancel(reason string, now time.Time) error {
	if err := it.Card.Cancel(reason, now); err != nil {
		return err
	}
	it.Worktree = nil
	return nil
}

// Reopen moves a completed item back to in_progress. When no subitem is left
// open, followUp must name the new subitem describing the follow-up work; it
// is created as part of the reopen.
func (it *Item) Reopen(followUp string, now time.Time) (*Subitem, error) {
	if it.Status != StatusCompleted {
		return nil, it.transitionErr("reopen", "only completed work can be reopened")
	}
	followUp = strings.TrimSpace(followUp)
	if followUp == "" && len(it.OpenSubitems()) == 0 {
		return nil, fmt.Errorf("%s: %w", it.ID, ErrFollowUpRequired)
	}
	if err := it.reopen(now); err != nil {
		return nil, err
	}
	var sub *Subitem
	if followUp != "" {
		var err error
		sub, err = it.AddSubitem(followUp, "", now)
		if err != nil {
			return nil, err
		}
		it.addAudit(AuditReopened, "follow-up "+sub.ID+": "+followUp, now)
	} else {
		it.addAudit(AuditReopened, "open subitems remain", now)
	}
	return sub, nil
}

// Complete closes a subitem from any non-terminal status.
func (s *Subitem) Complete(now time.Time) error {
	return s.complete(now)
}

// Reopen moves a completed subitem back to in_progress.
func (s *Subitem) Reopen(now time.Time) error {
	return s.reopen(now)
}

// LinkWorktree attaches w unless a different linkage exists; override
// replaces it and records the replacement in the audit trail.
func (it *Item) LinkWorktree(w Worktree, override bool, now time.Time) error {
	if strings.TrimSpace(w.Path) == "" {
		return fmt.Errorf("%w: worktree path is required", ErrValidation)
	}
	w.LinkedAt = now
	if !it.Worktree.Empty() && !it.Worktree.Same(&w) {
		conflict := &WorktreeConflictError{ItemID: it.ID, Existing: *it.Worktree, Requested: w}
		if !override {
			return conflict
		}
		it.addAudit(AuditWorktreeOverride, conflict.Error(), now)
	}
	it.Worktree = &w
	it.UpdatedAt = now
	return nil
}

func (it *Item) UnlinkWorktree(now time.Time) (*Worktree, error) {
	if it.Worktree.Empty() {
		return nil, fmt.Errorf("%w: %s has no worktree linked", ErrNotFound, it.ID)
	}
	prev := it.Worktree
	it.Worktree = nil
	it.UpdatedAt = now
	return prev, nil
}
