package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/store"
)

type StoreBoardRepo struct {
	store store.Store
}

func NewStoreBoardRepo(s store.Store) *StoreBoardRepo {
	return &StoreBoardRepo{store: s}
}

func normalizeTeam(team string) (string, error) {
	team = strings.ToLower(strings.TrimSpace(team))
	if team == "" {
		return "", fmt.Errorf("%w: team is required", domain.ErrValidation)
	}
	if strings.ContainsAny(team, `/\. `) {
		return "", fmt.Errorf("%w: invalid team key %q", domain.ErrValidation, team)
	}
	return team, nil
}

func (r *StoreBoardRepo) Get(ctx context.Context, team string) (*domain.Board, error) {
	team, err := normalizeTeam(team)
	if err != nil {
		return nil, err
	}
	data, err := r.store.Read(ctx, store.BoardKey(team))
	if errors.Is(err, store.ErrNotExist) {
		return domain.NewBoard(team), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBoard(team, data)
}

func (r *StoreBoardRepo) Update(ctx context.Context, team string, fn BoardMutation) (*domain.Board, error) {
	return r.UpdateWithManifests(ctx, team, nil, func(b *domain.Board, _ map[string]*domain.Manifest) error {
		return fn(b)
	})
}

func (r *StoreBoardRepo) UpdateWithManifests(ctx context.Context, team string, releaseIDs []string, fn ReleaseMutation) (*domain.Board, error) {
	team, err := normalizeTeam(team)
	if err != nil {
		return nil, err
	}
	boardKey := store.BoardKey(team)
	keys := []store.Key{boardKey}
	manifestKeys := make(map[string]store.Key, len(releaseIDs))
	for _, id := range releaseIDs {
		id = strings.ToUpper(id)
		k := store.ManifestKey(team, id)
		manifestKeys[id] = k
		keys = append(keys, k)
	}

	var saved *domain.Board
	err = r.store.UpdateMany(ctx, keys, func(cur map[store.Key][]byte) (map[store.Key][]byte, error) {
		b, err := decodeBoard(team, cur[boardKey])
		if err != nil {
			return nil, err
		}
		manifests := make(map[string]*domain.Manifest, len(manifestKeys))
		for id, k := range manifestKeys {
			m, err := decodeManifest(id, cur[k])
			if err != nil {
				return nil, err
			}
			manifests[id] = m
		}

		// An ErrNoChange from fn still reports the board as loaded.
		saved = b
		if err := fn(b, manifests); err != nil {
			return nil, err
		}
		if err := b.Validate(); err != nil {
			return nil, err
		}

		next := make(map[store.Key][]byte, len(keys))
		if next[boardKey], err = encodeDoc(b); err != nil {
			return nil, fmt.Errorf("encoding board %s: %w", team, err)
		}
		for id, m := range manifests {
			k, ok := manifestKeys[strings.ToUpper(id)]
			if !ok {
				return nil, fmt.Errorf("manifest %s was not locked", id)
			}
			if m == nil {
				continue
			}
			if next[k], err = encodeDoc(m); err != nil {
				return nil, fmt.Errorf("encoding manifest %s: %w", id, err)
			}
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *StoreBoardRepo) Teams(ctx context.Context) ([]string, error) {
	keys, err := r.store.List(ctx, "boards/")
	if err != nil {
		return nil, err
	}
	teams := make([]string, 0, len(keys))
	for _, k := range keys {
		teams = append(teams, k.Base())
	}
	return teams, nil
}
