package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrIncompleteSubitems  = errors.New("incomplete subitems")
	ErrItemAlreadyInEpic   = errors.New("item already in epic")
	ErrCrossTeamAssignment = errors.New("cross-team assignment")
	ErrWorktreeConflict    = errors.New("worktree conflict")
	ErrLockTimeout         = errors.New("lock timeout")
	ErrManifestDivergence  = errors.New("manifest divergence")
	ErrAlreadyAssigned     = errors.New("item already assigned to a release")
	ErrInvalidPromotion    = errors.New("invalid environment promotion")
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateID         = fmt.Errorf("%w: duplicate id", ErrValidation)

	// ErrFollowUpRequired is returned by a bare reopen of an item whose
	// subitems are all terminal.
	ErrFollowUpRequired = fmt.Errorf("%w: reopen requires a follow-up subitem", ErrInvalidTransition)
)

// NotFoundError names the kind and id of an unresolved entity.
type NotFoundError struct {
	Kind string
	ID   string
	Team string
}

func (e *NotFoundError) Error() string {
	if e.Team != "" {
		return fmt.Sprintf("%s %s not found on board %s", e.Kind, e.ID, e.Team)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// TransitionError reports a workflow operation that is illegal from the current status.
type TransitionError struct {
	ID     string
	Op     string
	From   Status
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s %s from status %s", e.Op, e.ID, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// SubitemRef identifies a subitem in error reports.
type SubitemRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

// IncompleteSubitemsError blocks parent completion and lists every subitem
// that is not yet completed or cancelled.
type IncompleteSubitemsError struct {
	ItemID   string
	Blocking []SubitemRef
}

func (e *IncompleteSubitemsError) Error() string {
	parts := make([]string, 0, len(e.Blocking))
	for _, s := range e.Blocking {
		parts = append(parts, fmt.Sprintf("%s %q (%s)", s.ID, s.Title, s.Status))
	}
	return fmt.Sprintf("cannot complete %s: %d incomplete subitem(s): %s (use force to override)",
		e.ItemID, len(e.Blocking), strings.Join(parts, ", "))
}

func (e *IncompleteSubitemsError) Unwrap() error { return ErrIncompleteSubitems }

// WorktreeConflictError is a warning: the item is already linked to another
// worktree. Callers may retry with an override.
type WorktreeConflictError struct {
	ItemID    string
	Existing  Worktree
	Requested Worktree
}

func (e *WorktreeConflictError) Error() string {
	return fmt.Sprintf("%s is already linked to worktree %s (branch %s, session %s); requested %s",
		e.ItemID, e.Existing.Path, e.Existing.Branch, e.Existing.SessionID, e.Requested.Path)
}

func (e *WorktreeConflictError) Unwrap() error { return ErrWorktreeConflict }

// DivergenceError reports manifests that no longer match the board.
type DivergenceError struct {
	Team  string
	Diffs []ManifestDiff
}

func (e *DivergenceError) Error() string {
	ids := make([]string, 0, len(e.Diffs))
	for _, d := range e.Diffs {
		ids = append(ids, d.ReleaseID)
	}
	return fmt.Sprintf("manifest divergence on board %s: releases %s (run release resync)",
		e.Team, strings.Join(ids, ", "))
}

func (e *DivergenceError) Unwrap() error { return ErrManifestDivergence }
