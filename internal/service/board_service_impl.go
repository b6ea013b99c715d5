package service

import (
	"context"
	"sort"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/repository"
)

type boardService struct {
	*engine
}

func NewBoardService(boards repository.BoardRepo, opts ...Option) BoardService {
	return &boardService{engine: newEngine(boards, opts)}
}

func (s *boardService) Get(ctx context.Context, team string) (*domain.Board, error) {
	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	return s.boards.Get(ctx, t.Key)
}

// Teams lists configured teams and teams with a stored board.
func (s *boardService) Teams(ctx context.Context) ([]string, error) {
	stored, err := s.boards.Teams(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range s.teams.Teams() {
		seen[t.Key] = true
		out = append(out, t.Key)
	}
	for _, key := range stored {
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}
