package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/alexanderramin/kanban/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) manifest(t *testing.T, team, releaseID string) *domain.Manifest {
	t.Helper()
	m, err := h.manifests.Get(h.ctx, team, releaseID)
	require.NoError(t, err)
	return m
}

func (h *harness) overwriteManifest(t *testing.T, team, releaseID, body string) {
	t.Helper()
	err := h.store.Update(context.Background(), store.ManifestKey(team, releaseID), func([]byte) ([]byte, error) {
		return []byte(body), nil
	})
	require.NoError(t, err)
}

func TestReleaseService_CreateWritesEmptyManifest(t *testing.T) {
	h := newHarness(t)
	target := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	r, err := h.releases.Create(h.ctx, "alpha", ReleaseInput{
		Name:       "Spring",
		Type:       domain.ReleaseHotfix,
		Platforms:  []string{"iOS", "android"},
		TargetDate: &target,
	})
	require.NoError(t, err)
	assert.Equal(t, "REL-01", r.ID)
	assert.Equal(t, "alpha", r.Team)
	assert.Equal(t, []string{"android", "ios"}, r.PlatformNames())
	for _, ps := range r.Platforms {
		assert.Equal(t, domain.EnvDev, ps.Environment)
	}

	m := h.manifest(t, "alpha", "REL-01")
	assert.Empty(t, m.Items)
	assert.Equal(t, "alpha", m.Team)

	r2 := h.release(t, "alpha", "web")
	assert.Equal(t, "REL-02", r2.ID)

	_, err = h.releases.Create(h.ctx, "alpha", ReleaseInput{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.releases.Create(h.ctx, "alpha", ReleaseInput{Name: "x", Platforms: []string{"ios"}, Type: "yearly"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	list, err := h.releases.List(h.ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// Scenario: assign, unassign, resync.
func TestReleaseService_AssignUnassignResync(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Login")
	r := h.release(t, "alpha", "ios")

	res, err := h.releases.Assign(h.ctx, "alpha", it.ID, r.ID, "IOS")
	require.NoError(t, err)
	assert.Equal(t, r.ID, res.Item.Release.ReleaseID)
	assert.Equal(t, "ios", res.Item.Release.Platform)

	m := h.manifest(t, "alpha", r.ID)
	assert.Equal(t, []string{it.ID}, m.ItemIDs())
	entry, _ := m.Entry(it.ID)
	assert.Equal(t, "Login", entry.Title)
	assert.Equal(t, "alpha", entry.Team)

	_, err = h.releases.Unassign(h.ctx, "alpha", it.ID)
	require.NoError(t, err)
	report, err := h.releases.Resync(h.ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, report.Corrected, "dual write kept the manifest in step")

	assert.Empty(t, h.manifest(t, "alpha", r.ID).Items)
	assert.Nil(t, h.item(t, "alpha", it.ID).Release)

	_, err = h.releases.Unassign(h.ctx, "alpha", it.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReleaseService_AssignRules(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Login")
	r1 := h.release(t, "alpha", "ios")
	r2 := h.release(t, "alpha", "ios")

	_, err := h.releases.Assign(h.ctx, "alpha", it.ID, r1.ID, "web")
	assert.ErrorIs(t, err, domain.ErrValidation, "unknown platform")
	_, err = h.releases.Assign(h.ctx, "alpha", "X-404", r1.ID, "ios")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.releases.Assign(h.ctx, "alpha", it.ID, "REL-99", "ios")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.releases.Assign(h.ctx, "alpha", it.ID, r1.ID, "ios")
	require.NoError(t, err)
	_, err = h.releases.Assign(h.ctx, "alpha", it.ID, r2.ID, "ios")
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)
	assert.Empty(t, h.manifest(t, "alpha", r2.ID).Items, "failed assignment leaves the manifest alone")

	_, err = h.items.Remove(h.ctx, "alpha", it.ID)
	assert.ErrorIs(t, err, domain.ErrValidation, "assigned items cannot be removed")
}

func TestReleaseService_CrossTeamAssignmentRefused(t *testing.T) {
	h := newHarness(t)
	betaItem := h.addItem(t, "beta", "Payments")
	r := h.release(t, "alpha", "ios")

	before, err := os.ReadFile(filepath.Join(h.store.Root(), string(store.BoardKey("beta"))+".json"))
	require.NoError(t, err)

	_, err = h.releases.Assign(h.ctx, "alpha", betaItem.ID, r.ID, "ios")
	require.ErrorIs(t, err, domain.ErrCrossTeamAssignment)

	after, err := os.ReadFile(filepath.Join(h.store.Root(), string(store.BoardKey("beta"))+".json"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "the other team's board is untouched")
	assert.Nil(t, h.item(t, "beta", betaItem.ID).Release)
	assert.Empty(t, h.manifest(t, "alpha", r.ID).Items)
}

// Scenario: promotion climbs the ladder one rung at a time.
func TestReleaseService_Promote(t *testing.T) {
	h := newHarness(t)
	r := h.release(t, "alpha", "ios")

	res, err := h.releases.Promote(h.ctx, "alpha", r.ID, "ios", domain.EnvQA, "smoke ok")
	require.NoError(t, err)
	assert.Equal(t, domain.EnvDev, res.Promotion.From)
	assert.Equal(t, domain.EnvQA, res.Promotion.To)

	_, err = h.releases.Promote(h.ctx, "alpha", r.ID, "ios", domain.EnvProd, "")
	assert.ErrorIs(t, err, domain.ErrInvalidPromotion)

	detail, err := h.releases.Get(h.ctx, "alpha", r.ID)
	require.NoError(t, err)
	ps, err := detail.Release.Platform("ios")
	require.NoError(t, err)
	assert.Equal(t, domain.EnvQA, ps.Environment)
	assert.Len(t, ps.EnvironmentHistory, 1)

	for _, want := range []domain.Environment{domain.EnvAlpha, domain.EnvBeta, domain.EnvGamma, domain.EnvProd} {
		res, err = h.releases.Promote(h.ctx, "alpha", r.ID, "ios", "", "")
		require.NoError(t, err)
		assert.Equal(t, want, res.Promotion.To)
	}
	_, err = h.releases.Promote(h.ctx, "alpha", r.ID, "ios", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidPromotion)

	detail, err = h.releases.Get(h.ctx, "alpha", r.ID)
	require.NoError(t, err)
	ps, _ = detail.Release.Platform("ios")
	assert.Len(t, ps.EnvironmentHistory, 5)
}

func TestReleaseService_VersionAndStatus(t *testing.T) {
	h := newHarness(t)
	r := h.release(t, "alpha", "ios")

	rel, err := h.releases.SetVersion(h.ctx, "alpha", r.ID, "ios", "2.4.0", 118)
	require.NoError(t, err)
	ps, _ := rel.Platform("ios")
	assert.Equal(t, "2.4.0", ps.Version)
	assert.Equal(t, 118, ps.BuildNumber)

	rel, err = h.releases.SetStatus(h.ctx, "alpha", r.ID, domain.ReleaseInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.ReleaseInProgress, rel.Status)

	_, err = h.releases.SetStatus(h.ctx, "alpha", r.ID, "shipped")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReleaseService_SnapshotFollowsItemChanges(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Login")
	r := h.release(t, "alpha", "ios")
	_, err := h.releases.Assign(h.ctx, "alpha", it.ID, r.ID, "ios")
	require.NoError(t, err)

	_, err = h.flow.Complete(h.ctx, "alpha", it.ID, false)
	require.NoError(t, err)
	title := "Login v2"
	_, err = h.items.Modify(h.ctx, "alpha", it.ID, CardPatch{Title: &title})
	require.NoError(t, err)

	entry, ok := h.manifest(t, "alpha", r.ID).Entry(it.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, entry.Status)
	assert.Equal(t, "Login v2", entry.Title)

	report, err := h.releases.Verify(h.ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, report.Diffs)
}

func TestReleaseService_VerifyAndResyncRepairDivergence(t *testing.T) {
	h := newHarness(t)
	a := h.addItem(t, "alpha", "Login")
	b := h.addItem(t, "alpha", "Search")
	r := h.release(t, "alpha", "ios")
	for _, id := range []string{a.ID, b.ID} {
		_, err := h.releases.Assign(h.ctx, "alpha", id, r.ID, "ios")
		require.NoError(t, err)
	}

	// Simulate a crash between the two writes: the manifest lost an entry
	// and carries an item the board never assigned.
	h.overwriteManifest(t, "alpha", r.ID, `{"releaseId":"REL-01","team":"alpha","items":[
		{"itemId":"X-001","title":"Login","status":"todo","platform":"ios","team":"alpha"},
		{"itemId":"X-009","title":"ghost","status":"todo","platform":"ios","team":"alpha"}],
		"updatedAt":"2025-06-15T10:00:00Z","pipeline":"nightly"}`)

	report, err := h.releases.Verify(h.ctx, "alpha")
	require.ErrorIs(t, err, domain.ErrManifestDivergence)
	var div *domain.DivergenceError
	require.True(t, errors.As(err, &div))
	require.Len(t, div.Diffs, 1)
	assert.Equal(t, []string{b.ID}, div.Diffs[0].Missing)
	assert.Equal(t, []string{"X-009"}, div.Diffs[0].Unexpected)
	require.NotNil(t, report)
	assert.Len(t, report.Divergent(), 1)

	resync, err := h.releases.Resync(h.ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, resync.Corrected, 1)
	assert.Equal(t, r.ID, resync.Corrected[0].ReleaseID)

	m := h.manifest(t, "alpha", r.ID)
	assert.Equal(t, []string{a.ID, b.ID}, m.ItemIDs())
	assert.JSONEq(t, `"nightly"`, string(m.Extra["pipeline"]), "unknown fields survive a resync")

	_, err = h.releases.Verify(h.ctx, "alpha")
	require.NoError(t, err)

	again, err := h.releases.Resync(h.ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, again.Corrected, "resync is idempotent")
}

func TestReleaseService_ResyncRecreatesMissingManifest(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Login")
	r := h.release(t, "alpha", "ios")
	_, err := h.releases.Assign(h.ctx, "alpha", it.ID, r.ID, "ios")
	require.NoError(t, err)

	path := filepath.Join(h.store.Root(), string(store.ManifestKey("alpha", r.ID))+".json")
	require.NoError(t, os.Remove(path))

	detail, err := h.releases.Get(h.ctx, "alpha", r.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Manifest)
	assert.True(t, detail.Diff.MissingManifest)

	_, err = h.releases.Verify(h.ctx, "alpha")
	require.ErrorIs(t, err, domain.ErrManifestDivergence)

	report, err := h.releases.Resync(h.ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, report.Corrected, 1)
	assert.True(t, report.Corrected[0].MissingManifest)
	assert.Equal(t, []string{it.ID}, h.manifest(t, "alpha", r.ID).ItemIDs())
}

func TestReleaseService_ResyncEmptiesOrphanManifest(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "alpha", "Login")
	h.overwriteManifest(t, "alpha", "REL-07", `{"releaseId":"REL-07","team":"alpha","items":[
		{"itemId":"X-001","title":"Login","status":"todo","platform":"ios","team":"alpha"}]}`)

	_, err := h.releases.Verify(h.ctx, "alpha")
	require.ErrorIs(t, err, domain.ErrManifestDivergence)

	report, err := h.releases.Resync(h.ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, report.Corrected, 1)
	assert.Empty(t, h.manifest(t, "alpha", "REL-07").Items)
}

func TestReleaseService_ResyncAll(t *testing.T) {
	h := newHarness(t)
	for _, team := range []string{"alpha", "beta"} {
		it := h.addItem(t, team, "work")
		r := h.release(t, team, "ios")
		_, err := h.releases.Assign(h.ctx, team, it.ID, r.ID, "ios")
		require.NoError(t, err)
		h.overwriteManifest(t, team, r.ID, `{"releaseId":"REL-01","team":"`+team+`","items":[]}`)
	}

	reports, err := h.releases.ResyncAll(h.ctx, nil)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, rep := range reports {
		assert.Len(t, rep.Corrected, 1, rep.Team)
		_, err := h.releases.Verify(h.ctx, rep.Team)
		assert.NoError(t, err, rep.Team)
	}
}
