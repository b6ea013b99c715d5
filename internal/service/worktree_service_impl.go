package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/repository"
	"github.com/google/uuid"
)

type worktreeService struct {
	*engine
}

func NewWorktreeService(boards repository.BoardRepo, opts ...Option) WorktreeService {
	return &worktreeService{engine: newEngine(boards, opts)}
}

func itemOnly(op string, sub *domain.Subitem) error {
	if sub == nil {
		return nil
	}
	return fmt.Errorf("%w: %s applies to items, %s is a subitem", domain.ErrValidation, op, sub.ID)
}

func (s *worktreeService) Link(ctx context.Context, team, itemID string, req LinkRequest) (res *LinkResult, err error) {
	defer s.observe(ctx, "worktree-link", time.Now(), map[string]any{"team": team, "id": itemID, "override": req.Override}, &err)

	res = &LinkResult{}
	_, _, err = s.mutateCard(ctx, team, itemID, func(_ *domain.Board, _ *domain.Card, it *domain.Item, sub *domain.Subitem, now time.Time) error {
		if err := itemOnly("worktree link", sub); err != nil {
			return err
		}
		if it.IsTerminal() {
			return &domain.TransitionError{ID: it.ID, Op: "link a worktree to", From: it.Status, Reason: "item is closed"}
		}
		w := domain.Worktree{
			Path:      strings.TrimSpace(req.Path),
			Branch:    strings.TrimSpace(req.Branch),
			SessionID: strings.TrimSpace(req.SessionID),
		}
		if w.SessionID == "" {
			if cur := it.Worktree; !cur.Empty() && cur.Path == w.Path && cur.Branch == w.Branch {
				w.SessionID = cur.SessionID
			} else {
				w.SessionID = uuid.NewString()
			}
		}
		var replaced *domain.WorktreeConflictError
		if !it.Worktree.Empty() && !it.Worktree.Same(&w) {
			replaced = &domain.WorktreeConflictError{ItemID: it.ID, Existing: *it.Worktree, Requested: w}
		}
		if err := it.LinkWorktree(w, req.Override, now); err != nil {
			return err
		}
		res.Item = it
		res.Replaced = replaced
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *worktreeService) Unlink(ctx context.Context, team, itemID string) (item *domain.Item, prev *domain.Worktree, err error) {
	defer s.observe(ctx, "worktree-unlink", time.Now(), map[string]any{"team": team, "id": itemID}, &err)

	_, _, err = s.mutateCard(ctx, team, itemID, func(_ *domain.Board, _ *domain.Card, it *domain.Item, sub *domain.Subitem, now time.Time) error {
		if err := itemOnly("worktree unlink", sub); err != nil {
			return err
		}
		var err error
		prev, err = it.UnlinkWorktree(now)
		item = it
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return item, prev, nil
}

func (s *worktreeService) Run(ctx context.Context, team, itemID string, opts RunOptions) (res *RunResult, err error) {
	fields := map[string]any{"team": team, "id": itemID}
	defer s.observe(ctx, "run", time.Now(), fields, &err)

	res = &RunResult{}
	_, _, err = s.mutateCard(ctx, team, itemID, func(_ *domain.Board, _ *domain.Card, it *domain.Item, sub *domain.Subitem, now time.Time) error {
		if err := itemOnly("run", sub); err != nil {
			return err
		}
		res.Item = it
		res.Started, res.Linked = false, false
		if !it.Working() {
			if err := it.Start(now); err != nil {
				return err
			}
			res.Started = true
		}
		if it.Worktree.Empty() && !opts.InWorktree && s.worktreeRoot != "" {
			w := domain.Worktree{
				Path:      filepath.Join(s.worktreeRoot, strings.ToLower(it.ID)),
				Branch:    s.branchName(it),
				SessionID: opts.SessionID,
			}
			if w.SessionID == "" {
				w.SessionID = uuid.NewString()
			}
			if err := it.LinkWorktree(w, false, now); err != nil {
				return err
			}
			res.Linked = true
		}
		if !res.Started && !res.Linked {
			return repository.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fields["started"] = res.Started
	fields["linked"] = res.Linked
	return res, nil
}

func (s *worktreeService) branchName(it *domain.Item) string {
	name := s.branchPrefix + it.ID
	if sl := slug(it.Title); sl != "" {
		name += "-" + sl
	}
	return name
}

func (s *worktreeService) Pick(ctx context.Context, team, id string) (card *domain.Card, started bool, err error) {
	defer s.observe(ctx, "pick", time.Now(), map[string]any{"team": team, "id": id}, &err)

	_, card, err = s.mutateCard(ctx, team, id, func(_ *domain.Board, c *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error {
		started = false
		if c.Status == domain.StatusInProgress && c.Working() {
			return repository.ErrNoChange
		}
		if err := parentOpen("start", parent, sub); err != nil {
			return err
		}
		if err := c.Start(now); err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return card, started, nil
}
