package service

import (
	"context"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/repository"
)

type workflowService struct {
	*engine
}

func NewWorkflowService(boards repository.BoardRepo, opts ...Option) WorkflowService {
	return &workflowService{engine: newEngine(boards, opts)}
}

// parentOpen refuses to revive a subitem whose parent is already closed.
func parentOpen(op string, parent *domain.Item, sub *domain.Subitem) error {
	if sub == nil || !parent.IsTerminal() {
		return nil
	}
	return &domain.TransitionError{
		ID:     sub.ID,
		Op:     op,
		From:   sub.Status,
		Reason: "parent " + parent.ID + " is " + string(parent.Status),
	}
}

func (s *workflowService) transition(ctx context.Context, name, team, id string, fn cardMutation) (card *domain.Card, err error) {
	defer s.observe(ctx, name, time.Now(), map[string]any{"team": team, "id": id}, &err)
	_, card, err = s.mutateCard(ctx, team, id, fn)
	return card, err
}

func (s *workflowService) Start(ctx context.Context, team, id string) (*domain.Card, error) {
	return s.transition(ctx, "start", team, id, func(_ *domain.Board, c *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error {
		if err := parentOpen("start", parent, sub); err != nil {
			return err
		}
		return c.Start(now)
	})
}

func (s *workflowService) Pause(ctx context.Context, team, id, reason string) (*domain.Card, error) {
	return s.transition(ctx, "pause", team, id, func(_ *domain.Board, c *domain.Card, _ *domain.Item, _ *domain.Subitem, now time.Time) error {
		return c.Pause(reason, now)
	})
}

func (s *workflowService) Resume(ctx context.Context, team, id string) (*domain.Card, error) {
	return s.transition(ctx, "resume", team, id, func(_ *domain.Board, c *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error {
		if err := parentOpen("resume", parent, sub); err != nil {
			return err
		}
		return c.Resume(now)
	})
}

func (s *workflowService) Stop(ctx context.Context, team, id string) (*StopResult, error) {
	var elapsed time.Duration
	card, err := s.transition(ctx, "stop", team, id, func(_ *domain.Board, c *domain.Card, _ *domain.Item, _ *domain.Subitem, now time.Time) error {
		var err error
		elapsed, err = c.Stop(now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &StopResult{Card: card, Elapsed: elapsed}, nil
}

func (s *workflowService) Complete(ctx context.Context, team, id string, force bool) (*domain.Card, error) {
	return s.transition(ctx, "complete", team, id, func(_ *domain.Board, _ *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error {
		if sub != nil {
			return sub.Complete(now)
		}
		return parent.Complete(force, now)
	})
}

func (s *workflowService) Reopen(ctx context.Context, team, id, followUp string) (*ReopenResult, error) {
	var created *domain.Subitem
	card, err := s.transition(ctx, "reopen", team, id, func(_ *domain.Board, _ *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error {
		if sub != nil {
			if err := parentOpen("reopen", parent, sub); err != nil {
				return err
			}
			return sub.Reopen(now)
		}
		var err error
		created, err = parent.Reopen(followUp, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ReopenResult{Card: card, FollowUp: created}, nil
}

func (s *workflowService) Cancel(ctx context.Context, team, id, reason string) (*domain.Card, error) {
	return s.transition(ctx, "cancel", team, id, func(_ *domain.Board, _ *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error {
		if sub != nil {
			return sub.Cancel(reason, now)
		}
		return parent.Cancel(reason, now)
	})
}

func (s *workflowService) SetPhase(ctx context.Context, team, id string, phase domain.Phase) (*domain.Card, error) {
	return s.transition(ctx, "set-phase", team, id, func(_ *domain.Board, c *domain.Card, _ *domain.Item, _ *domain.Subitem, now time.Time) error {
		return c.SetPhase(phase, now)
	})
}
