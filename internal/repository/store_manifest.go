package repository

import (
	"context"
	"errors"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/store"
)

type StoreManifestRepo struct {
	store store.Store
}

func NewStoreManifestRepo(s store.Store) *StoreManifestRepo {
	return &StoreManifestRepo{store: s}
}

func (r *StoreManifestRepo) Get(ctx context.Context, team, releaseID string) (*domain.Manifest, error) {
	team, err := normalizeTeam(team)
	if err != nil {
		return nil, err
	}
	data, err := r.store.Read(ctx, store.ManifestKey(team, releaseID))
	if errors.Is(err, store.ErrNotExist) {
		return nil, &domain.NotFoundError{Kind: "manifest", ID: releaseID, Team: team}
	}
	if err != nil {
		return nil, err
	}
	return decodeManifest(releaseID, data)
}

func (r *StoreManifestRepo) List(ctx context.Context, team string) ([]*domain.Manifest, error) {
	team, err := normalizeTeam(team)
	if err != nil {
		return nil, err
	}
	keys, err := r.store.List(ctx, store.ManifestPrefix(team))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Manifest, 0, len(keys))
	for _, k := range keys {
		data, err := r.store.Read(ctx, k)
		if err != nil {
			return nil, err
		}
		m, err := decodeManifest(k.Base(), data)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
