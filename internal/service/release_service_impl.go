package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/repository"
	"golang.org/x/sync/errgroup"
)

type releaseService struct {
	*engine
	manifests repository.ManifestRepo
}

func NewReleaseService(boards repository.BoardRepo, manifests repository.ManifestRepo, opts ...Option) ReleaseService {
	return &releaseService{engine: newEngine(boards, opts), manifests: manifests}
}

func (s *releaseService) Create(ctx context.Context, team string, in ReleaseInput) (rel *domain.Release, err error) {
	fields := map[string]any{"team": team}
	defer s.observe(ctx, "release-create", time.Now(), fields, &err)

	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	// Reject bad input before any lock is taken.
	if _, err := domain.NewRelease("REL-00", in.Name, t.Key, in.Type, in.Platforms, time.Time{}); err != nil {
		return nil, err
	}
	if in.Type != "" {
		if _, err := domain.ParseReleaseType(string(in.Type)); err != nil {
			return nil, err
		}
	}
	customID := strings.ToUpper(strings.TrimSpace(in.ID))
	if customID != "" {
		if err := domain.ValidateCustomID(customID); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < maxRaceRetries; attempt++ {
		id := customID
		if id == "" {
			peek, err := s.boards.Get(ctx, t.Key)
			if err != nil {
				return nil, err
			}
			id = peek.NextReleaseID()
		}
		_, err = s.boards.UpdateWithManifests(ctx, t.Key, []string{id}, func(b *domain.Board, manifests map[string]*domain.Manifest) error {
			now := s.now()
			if customID == "" && b.NextReleaseID() != id {
				return errRaced
			}
			r, err := domain.NewRelease(id, strings.TrimSpace(in.Name), b.Team, in.Type, in.Platforms, now)
			if err != nil {
				return err
			}
			r.TargetDate = in.TargetDate
			r.Description = strings.TrimSpace(in.Description)
			if err := b.AddRelease(r, now); err != nil {
				return err
			}
			manifests[id] = domain.BuildManifest(b, r.ID, now)
			rel = r
			return nil
		})
		if errors.Is(err, errRaced) {
			continue
		}
		if err != nil {
			return nil, err
		}
		fields["id"] = rel.ID
		return rel, nil
	}
	return nil, fmt.Errorf("creating release on board %s: %w", t.Key, errRaced)
}

func (s *releaseService) List(ctx context.Context, team string) ([]*domain.Release, error) {
	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	b, err := s.boards.Get(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	return b.Releases, nil
}

func (s *releaseService) Get(ctx context.Context, team, id string) (*ReleaseDetail, error) {
	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	b, err := s.boards.Get(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	r, err := b.Release(id)
	if err != nil {
		return nil, err
	}
	m, err := s.manifests.Get(ctx, t.Key, r.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return &ReleaseDetail{
		Release:  r,
		Manifest: m,
		Items:    b.AssignedTo(r.ID),
		Diff:     domain.DiffManifest(b, r.ID, m),
	}, nil
}

// checkOwnership refuses ids whose prefix belongs to another configured team.
// The other team's board is never opened.
func (s *releaseService) checkOwnership(t Team, itemID string) error {
	owner, ok := s.teams.OwnerOfPrefix(domain.IDPrefix(itemID))
	if ok && owner != t.Key {
		return fmt.Errorf("%w: %s belongs to team %s, not %s", domain.ErrCrossTeamAssignment, itemID, owner, t.Key)
	}
	return nil
}

func (s *releaseService) Assign(ctx context.Context, team, itemID, releaseID, platform string) (res *AssignResult, err error) {
	defer s.observe(ctx, "release-assign", time.Now(),
		map[string]any{"team": team, "id": itemID, "release": releaseID, "platform": platform}, &err)

	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(t, itemID); err != nil {
		return nil, err
	}

	res = &AssignResult{}
	_, err = s.boards.UpdateWithManifests(ctx, t.Key, []string{releaseID}, func(b *domain.Board, manifests map[string]*domain.Manifest) error {
		now := s.now()
		r, err := b.Release(releaseID)
		if err != nil {
			return err
		}
		if r.Team != "" && !strings.EqualFold(r.Team, b.Team) {
			return fmt.Errorf("%w: release %s belongs to team %s", domain.ErrCrossTeamAssignment, r.ID, r.Team)
		}
		it, err := b.Item(itemID)
		if err != nil {
			return err
		}
		if _, err := r.Platform(platform); err != nil {
			return err
		}
		if it.Release != nil {
			return fmt.Errorf("%w: %s is assigned to %s (%s); unassign it first",
				domain.ErrAlreadyAssigned, it.ID, it.Release.ReleaseID, it.Release.Platform)
		}
		it.Release = &domain.ReleaseAssignment{
			ReleaseID:  r.ID,
			Platform:   domain.NormalizePlatform(platform),
			AssignedAt: now,
		}
		it.UpdatedAt = now

		key := strings.ToUpper(releaseID)
		m := manifests[key]
		if m == nil {
			m = domain.BuildManifest(b, r.ID, now)
			manifests[key] = m
		} else {
			m.Upsert(domain.EntryFor(it, b.Team), now)
		}
		b.Touch(now)
		res.Item, res.Release, res.Manifest = it, r, m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *releaseService) Unassign(ctx context.Context, team, itemID string) (res *AssignResult, err error) {
	defer s.observe(ctx, "release-unassign", time.Now(), map[string]any{"team": team, "id": itemID}, &err)

	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < maxRaceRetries; attempt++ {
		peek, err := s.boards.Get(ctx, t.Key)
		if err != nil {
			return nil, err
		}
		it, err := peek.Item(itemID)
		if err != nil {
			return nil, err
		}
		if it.Release == nil {
			return nil, fmt.Errorf("%w: %s is not assigned to a release", domain.ErrNotFound, it.ID)
		}
		releaseID := it.Release.ReleaseID

		res = &AssignResult{}
		_, err = s.boards.UpdateWithManifests(ctx, t.Key, []string{releaseID}, func(b *domain.Board, manifests map[string]*domain.Manifest) error {
			now := s.now()
			it, err := b.Item(itemID)
			if err != nil {
				return err
			}
			if it.Release == nil || !strings.EqualFold(it.Release.ReleaseID, releaseID) {
				return errRaced
			}
			it.Release = nil
			it.UpdatedAt = now

			key := strings.ToUpper(releaseID)
			m := manifests[key]
			if m == nil {
				m = domain.BuildManifest(b, releaseID, now)
				manifests[key] = m
			} else {
				m.Remove(it.ID, now)
			}
			b.Touch(now)
			res.Item, res.Manifest = it, m
			if r, err := b.Release(releaseID); err == nil {
				res.Release = r
			}
			return nil
		})
		if errors.Is(err, errRaced) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, fmt.Errorf("unassigning %s: %w", itemID, errRaced)
}

func (s *releaseService) Promote(ctx context.Context, team, releaseID, platform string, target domain.Environment, note string) (res *PromoteResult, err error) {
	fields := map[string]any{"team": team, "release": releaseID, "platform": platform}
	defer s.observe(ctx, "release-promote", time.Now(), fields, &err)

	res = &PromoteResult{}
	err = s.updateRelease(ctx, team, releaseID, func(r *domain.Release, now time.Time) error {
		p, err := r.Promote(platform, target, strings.TrimSpace(note), now)
		if err != nil {
			return err
		}
		res.Release, res.Promotion = r, p
		return nil
	})
	if err != nil {
		return nil, err
	}
	fields["environment"] = string(res.Promotion.To)
	return res, nil
}

func (s *releaseService) SetVersion(ctx context.Context, team, releaseID, platform, version string, build int) (rel *domain.Release, err error) {
	defer s.observe(ctx, "release-version", time.Now(), map[string]any{"team": team, "release": releaseID, "platform": platform}, &err)

	err = s.updateRelease(ctx, team, releaseID, func(r *domain.Release, now time.Time) error {
		rel = r
		return r.SetVersion(platform, strings.TrimSpace(version), build, now)
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *releaseService) SetStatus(ctx context.Context, team, releaseID string, status domain.ReleaseStatus) (rel *domain.Release, err error) {
	defer s.observe(ctx, "release-status", time.Now(), map[string]any{"team": team, "release": releaseID, "status": string(status)}, &err)

	status, err = domain.ParseReleaseStatus(string(status))
	if err != nil {
		return nil, err
	}
	err = s.updateRelease(ctx, team, releaseID, func(r *domain.Release, now time.Time) error {
		rel = r
		if r.Status == status {
			return repository.ErrNoChange
		}
		r.Status = status
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *releaseService) updateRelease(ctx context.Context, team, releaseID string, fn func(r *domain.Release, now time.Time) error) error {
	t, err := s.resolve(team)
	if err != nil {
		return err
	}
	_, err = s.boards.Update(ctx, t.Key, func(b *domain.Board) error {
		r, err := b.Release(releaseID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := fn(r, now); err != nil {
			return err
		}
		b.Touch(now)
		return nil
	})
	return err
}

// releaseIDs returns the releases on the board plus any manifest stored
// without a matching release, keyed by their upper-cased id.
func releaseIDs(b *domain.Board, stored []*domain.Manifest) map[string]string {
	ids := make(map[string]string)
	for _, r := range b.Releases {
		ids[strings.ToUpper(r.ID)] = r.ID
	}
	for _, m := range stored {
		if m.ReleaseID == "" {
			continue
		}
		if _, ok := ids[strings.ToUpper(m.ReleaseID)]; !ok {
			ids[strings.ToUpper(m.ReleaseID)] = m.ReleaseID
		}
	}
	return ids
}

func sortedIDs(ids map[string]string) []string {
	out := make([]string, 0, len(ids))
	for key := range ids {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (s *releaseService) Verify(ctx context.Context, team string) (report *VerifyReport, err error) {
	defer s.observe(ctx, "release-verify", time.Now(), map[string]any{"team": team}, &err)

	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	b, err := s.boards.Get(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	stored, err := s.manifests.List(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*domain.Manifest, len(stored))
	for _, m := range stored {
		byKey[strings.ToUpper(m.ReleaseID)] = m
	}

	ids := releaseIDs(b, stored)
	report = &VerifyReport{Team: t.Key}
	for _, key := range sortedIDs(ids) {
		d := domain.DiffManifest(b, ids[key], byKey[key])
		if d.Changed() {
			report.Diffs = append(report.Diffs, d)
		}
	}
	if div := report.Divergent(); len(div) > 0 {
		return report, &domain.DivergenceError{Team: t.Key, Diffs: div}
	}
	return report, nil
}

func (s *releaseService) Resync(ctx context.Context, team string) (report *ResyncReport, err error) {
	fields := map[string]any{"team": team}
	defer s.observe(ctx, "release-resync", time.Now(), fields, &err)

	t, err := s.resolve(team)
	if err != nil {
		return nil, err
	}
	peek, err := s.boards.Get(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	stored, err := s.manifests.List(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	ids := releaseIDs(peek, stored)
	keys := sortedIDs(ids)

	report = &ResyncReport{Team: t.Key}
	if len(keys) == 0 {
		return report, nil
	}
	_, err = s.boards.UpdateWithManifests(ctx, t.Key, keys, func(b *domain.Board, manifests map[string]*domain.Manifest) error {
		now := s.now()
		report.Corrected = nil
		for _, key := range keys {
			d := domain.DiffManifest(b, ids[key], manifests[key])
			if !d.Changed() {
				continue
			}
			rebuilt := domain.BuildManifest(b, ids[key], now)
			if old := manifests[key]; old != nil {
				rebuilt.Extra = old.Extra
			}
			manifests[key] = rebuilt
			report.Corrected = append(report.Corrected, d)
		}
		if len(report.Corrected) == 0 {
			return repository.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fields["corrected"] = len(report.Corrected)
	return report, nil
}

// ResyncAll resyncs every listed team concurrently. With no teams it covers
// every stored board.
func (s *releaseService) ResyncAll(ctx context.Context, teams []string) ([]*ResyncReport, error) {
	if len(teams) == 0 {
		stored, err := s.boards.Teams(ctx)
		if err != nil {
			return nil, err
		}
		teams = stored
	}
	reports := make([]*ResyncReport, len(teams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, team := range teams {
		g.Go(func() error {
			r, err := s.Resync(gctx, team)
			if err != nil {
				return fmt.Errorf("resync %s: %w", team, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
