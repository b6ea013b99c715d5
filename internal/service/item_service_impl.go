package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/repository"
)

type itemService struct {
	*engine
}

func NewItemService(boards repository.BoardRepo, opts ...Option) ItemService {
	return &itemService{engine: newEngine(boards, opts)}
}

func checkPriority(p domain.Priority) error {
	if p != "" && !p.Valid() {
		return fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, p)
	}
	return nil
}

func (s *itemService) Add(ctx context.Context, team string, in ItemInput) (item *domain.Item, err error) {
	fields := map[string]any{"team": team}
	defer s.observe(ctx, "item-add", time.Now(), fields, &err)

	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: item title is required", domain.ErrValidation)
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

	_, err = s.boards.Update(ctx, t.Key, func(b *domain.Board) error {
		now := s.now()
		id := customID
		if id == "" {
			id = b.NextItemID(t.Prefix)
		}
		it := domain.NewItem(id, title, in.Priority, now)
		it.Description = strings.TrimSpace(in.Description)
		it.AddTags(in.Tags...)
		it.DueDate = in.DueDate
		it.IssueRef = strings.TrimSpace(in.IssueRef)
		if err := b.AddItem(it, now); err != nil {
			return err
		}
		if in.EpicID != "" {
			if _, _, err := b.AddItemToEpic(in.EpicID, it.ID, now); err != nil {
				return err
			}
		}
		item = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	fields["id"] = item.ID
	return item, nil
}

func (s *itemService) Get(ctx context.Context, team, id string) (*domain.Item, error) {
	b, err := s.board(ctx, team)
	if err != nil {
		return nil, err
	}
	return b.Item(id)
}

func (s *itemService) GetCard(ctx context.Context, team, id string) (*domain.Card, error) {
	b, err := s.board(ctx, team)
	if err != nil {
		return nil, err
	}
	c, _, _, err := b.Card(id)
	return c, err
}

func (s *itemService) List(ctx context.Context, team string, filter domain.ItemFilter) ([]*domain.Item, error) {
	b, err := s.board(ctx, team)
	if err != nil {
		return nil, err
	}
	return b.ListItems(filter), nil
}

func (s *itemService) board(ctx context.Context, team string) (*domain.Board, error) {
	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	return s.boards.Get(ctx, t.Key)
}

func (s *itemService) Modify(ctx context.Context, team, id string, patch CardPatch) (card *domain.Card, err error) {
	defer s.observe(ctx, "item-modify", time.Now(), map[string]any{"team": team, "id": id}, &err)

	if patch.empty() {
		return nil, fmt.Errorf("%w: nothing to modify", domain.ErrValidation)
	}
	if patch.Title != nil && trimmed(patch.Title) == "" {
		return nil, fmt.Errorf("%w: title must not be empty", domain.ErrValidation)
	}
	if patch.Priority != nil {
		if err := checkPriority(*patch.Priority); err != nil {
			return nil, err
		}
	}

	_, card, err = s.mutateCard(ctx, team, id, func(_ *domain.Board, c *domain.Card, _ *domain.Item, _ *domain.Subitem, now time.Time) error {
		if patch.Title != nil {
			c.Title = trimmed(patch.Title)
		}
		if patch.Description != nil {
			c.Description = trimmed(patch.Description)
		}
		if patch.Priority != nil && *patch.Priority != "" {
			c.Priority = *patch.Priority
		}
		switch {
		case patch.ClearDue:
			c.DueDate = nil
		case patch.DueDate != nil:
			due := *patch.DueDate
			c.DueDate = &due
		}
		if patch.IssueRef != nil {
			c.IssueRef = trimmed(patch.IssueRef)
		}
		if patch.SCMIssue != nil {
			c.SCMIssue = trimmed(patch.SCMIssue)
		}
		c.UpdatedAt = now
		return nil
	})
	return card, err
}

func (s *itemService) Remove(ctx context.Context, team, id string) (removed *domain.Item, err error) {
	defer s.observe(ctx, "item-remove", time.Now(), map[string]any{"team": team, "id": id}, &err)

	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	_, err = s.boards.Update(ctx, t.Key, func(b *domain.Board) error {
		it, err := b.RemoveItem(id, s.now())
		removed = it
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *itemService) Tag(ctx context.Context, team, id string, add, remove []string) (card *domain.Card, err error) {
	defer s.observe(ctx, "item-tag", time.Now(), map[string]any{"team": team, "id": id}, &err)

	_, card, err = s.mutateCard(ctx, team, id, func(_ *domain.Board, c *domain.Card, _ *domain.Item, _ *domain.Subitem, now time.Time) error {
		changed := c.RemoveTags(remove...) + c.AddTags(add...)
		if changed == 0 {
			return repository.ErrNoChange
		}
		c.UpdatedAt = now
		return nil
	})
	return card, err
}

func (s *itemService) SetCollapsed(ctx context.Context, team, id string, collapsed bool) (err error) {
	defer s.observe(ctx, "item-collapse", time.Now(), map[string]any{"team": team, "id": id}, &err)

	t, err := s.resolve(team)
	if err != nil {
		return err
	}
	_, err = s.boards.Update(ctx, t.Key, func(b *domain.Board) error {
		return b.SetCollapsed(id, collapsed, s.now())
	})
	return err
}

func (s *itemService) AddSubitem(ctx context.Context, team, parentID, title string, priority domain.Priority) (added *domain.Subitem, err error) {
	fields := map[string]any{"team": team, "parent": parentID}
	defer s.observe(ctx, "subitem-add", time.Now(), fields, &err)

	if err := checkPriority(priority); err != nil {
		return nil, err
	}
	_, _, err = s.mutateCard(ctx, team, parentID, func(_ *domain.Board, _ *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error {
		if sub != nil {
			return fmt.Errorf("%w: subitems cannot be nested (%s is a subitem)", domain.ErrValidation, sub.ID)
		}
		var err error
		added, err = parent.AddSubitem(title, priority, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	fields["id"] = added.ID
	return added, nil
}

func (s *itemService) ListSubitems(ctx context.Context, team, parentID string) ([]*domain.Subitem, error) {
	it, err := s.Get(ctx, team, parentID)
	if err != nil {
		return nil, err
	}
	return it.Subitems, nil
}

func (s *itemService) RemoveSubitem(ctx context.Context, team, id string) (removed *domain.Subitem, err error) {
	defer s.observe(ctx, "subitem-remove", time.Now(), map[string]any{"team": team, "id": id}, &err)

	if _, _, ok := domain.SplitSubitemID(id); !ok {
		return nil, fmt.Errorf("%w: %s is not a subitem id", domain.ErrValidation, id)
	}
	_, _, err = s.mutateCard(ctx, team, id, func(_ *domain.Board, _ *domain.Card, parent *domain.Item, sub *domain.Subitem, now time.Time) error {
		var err error
		removed, err = parent.RemoveSubitem(sub.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
