package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/repository"
)

type epicService struct {
	*engine
}

func NewEpicService(boards repository.BoardRepo, opts ...Option) EpicService {
	return &epicService{engine: newEngine(boards, opts)}
}

func (s *epicService) update(ctx context.Context, team string, fn repository.BoardMutation) (*domain.Board, error) {
	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	return s.boards.Update(ctx, t.Key, fn)
}

func (s *epicService) board(ctx context.Context, team string) (*domain.Board, error) {
	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	return s.boards.Get(ctx, t.Key)
}

func (s *epicService) Create(ctx context.Context, team string, in EpicInput) (epic *domain.Epic, err error) {
	fields := map[string]any{"team": team}
	defer s.observe(ctx, "epic-create", time.Now(), fields, &err)

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: epic title is required", domain.ErrValidation)
	}
	if err := checkPriority(in.Priority); err != nil {
		return nil, err
	}
	customID := strings.ToUpper(strings.TrimSpace(in.ID))
	if customID != "" {
		if err := domain.ValidateCustomID(customID); err != nil {
			return nil, err
		}
	}
	_, err = s.update(ctx, team, func(b *domain.Board) error {
		now := s.now()
		id := customID
		if id == "" {
			id = b.NextEpicID()
		}
		e := domain.NewEpic(id, title, in.Priority, now)
		e.Description = strings.TrimSpace(in.Description)
		e.DueDate = in.DueDate
		e.Owner = strings.TrimSpace(in.Owner)
		if err := b.AddEpic(e, now); err != nil {
			return err
		}
		epic = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	fields["id"] = epic.ID
	return epic, nil
}

func (s *epicService) List(ctx context.Context, team string) ([]EpicSummary, error) {
	b, err := s.board(ctx, team)
	if err != nil {
		return nil, err
	}
	out := make([]EpicSummary, 0, len(b.Epics))
	for _, e := range b.Epics {
		out = append(out, EpicSummary{Epic: e, Progress: b.EpicProgress(e)})
	}
	return out, nil
}

func (s *epicService) Get(ctx context.Context, team, id string) (*EpicDetail, error) {
	b, err := s.board(ctx, team)
	if err != nil {
		return nil, err
	}
	e, err := b.Epic(id)
	if err != nil {
		return nil, err
	}
	d := &EpicDetail{Epic: e, Progress: b.EpicProgress(e)}
	for _, itemID := range e.ItemIDs {
		if it, err := b.Item(itemID); err == nil {
			d.Items = append(d.Items, it)
		}
	}
	return d, nil
}

func (s *epicService) Update(ctx context.Context, team, id string, patch EpicPatch) (epic *domain.Epic, err error) {
	defer s.observe(ctx, "epic-update", time.Now(), map[string]any{"team": team, "id": id}, &err)

	if patch.Title != nil && trimmed(patch.Title) == "" {
		return nil, fmt.Errorf("%w: title must not be empty", domain.ErrValidation)
	}
	if patch.Status != nil {
		if _, err := domain.ParseEpicStatus(string(*patch.Status)); err != nil {
			return nil, err
		}
	}
	if patch.Priority != nil {
		if err := checkPriority(*patch.Priority); err != nil {
			return nil, err
		}
	}
	_, err = s.update(ctx, team, func(b *domain.Board) error {
		e, err := b.Epic(id)
		if err != nil {
			return err
		}
		now := s.now()
		if patch.Title != nil {
			e.Title = trimmed(patch.Title)
		}
		if patch.Description != nil {
			e.Description = trimmed(patch.Description)
		}
		if patch.Status != nil {
			e.Status = *patch.Status
		}
		if patch.Priority != nil && *patch.Priority != "" {
			e.Priority = *patch.Priority
		}
		switch {
		case patch.ClearDue:
			e.DueDate = nil
		case patch.DueDate != nil:
			due := *patch.DueDate
			e.DueDate = &due
		}
		if patch.Owner != nil {
			e.Owner = trimmed(patch.Owner)
		}
		e.UpdatedAt = now
		b.Touch(now)
		epic = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return epic, nil
}

func (s *epicService) Delete(ctx context.Context, team, id string) (deleted *domain.Epic, err error) {
	defer s.observe(ctx, "epic-delete", time.Now(), map[string]any{"team": team, "id": id}, &err)

	_, err = s.update(ctx, team, func(b *domain.Board) error {
		var err error
		deleted, err = b.DeleteEpic(id, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *epicService) AddItem(ctx context.Context, team, epicID, itemID string) (epic *domain.Epic, changed bool, err error) {
	fields := map[string]any{"team": team, "epic": epicID, "id": itemID}
	defer s.observe(ctx, "epic-add-item", time.Now(), fields, &err)

	_, err = s.update(ctx, team, func(b *domain.Board) error {
		changed = false
		e, err := b.Epic(epicID)
		if err != nil {
			return err
		}
		it, err := b.Item(itemID)
		if err != nil {
			return err
		}
		epic = e
		if it.EpicID == e.ID && e.Has(it.ID) {
			return repository.ErrNoChange
		}
		if _, _, err := b.AddItemToEpic(e.ID, it.ID, s.now()); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	fields["changed"] = changed
	return epic, changed, nil
}

func (s *epicService) RemoveItem(ctx context.Context, team, epicID, itemID string) (epic *domain.Epic, err error) {
	defer s.observe(ctx, "epic-remove-item", time.Now(), map[string]any{"team": team, "epic": epicID, "id": itemID}, &err)

	_, err = s.update(ctx, team, func(b *domain.Board) error {
		var err error
		epic, err = b.RemoveItemFromEpic(epicID, itemID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return epic, nil
}

