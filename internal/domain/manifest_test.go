package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignedBoard(t *testing.T) *Board {
	t.Helper()
	b := seedBoard(t, "login", "search", "profile")
	for _, tc := range []struct{ id, platform string }{{"X-001", "ios"}, {"X-002", "android"}} {
		it, _ := b.Item(tc.id)
		it.Release = &ReleaseAssignment{ReleaseID: "REL-01", Platform: tc.platform, AssignedAt: testNow}
	}
	return b
}

func TestBuildManifest_FollowsBoardAssignments(t *testing.T) {
	b := assignedBoard(t)
	m := BuildManifest(b, "REL-01", testNow)
	assert.Equal(t, []string{"X-001", "X-002"}, m.ItemIDs())
	e, ok := m.Entry("X-002")
	require.True(t, ok)
	assert.Equal(t, "android", e.Platform)
	assert.Equal(t, "search", e.Title)
	assert.Equal(t, "alpha", e.Team)

	assert.False(t, DiffManifest(b, "REL-01", m).Changed())
}

func TestDiffManifest(t *testing.T) {
	b := assignedBoard(t)

	t.Run("missing manifest", func(t *testing.T) {
		d := DiffManifest(b, "REL-01", nil)
		assert.True(t, d.MissingManifest)
		assert.True(t, d.Divergent())
		assert.Equal(t, []string{"X-001", "X-002"}, d.Missing)
	})

	t.Run("set mismatch", func(t *testing.T) {
		m := BuildManifest(b, "REL-01", testNow)
		m.Remove("X-001", testNow)
		m.Upsert(ManifestEntry{ItemID: "X-003", Platform: "ios"}, testNow)
		d := DiffManifest(b, "REL-01", m)
		assert.True(t, d.Divergent())
		assert.Equal(t, []string{"X-001"}, d.Missing)
		assert.Equal(t, []string{"X-003"}, d.Unexpected)
	})

	t.Run("platform mismatch", func(t *testing.T) {
		m := BuildManifest(b, "REL-01", testNow)
		e, _ := m.Entry("X-001")
		e.Platform = "web"
		m.Upsert(e, testNow)
		d := DiffManifest(b, "REL-01", m)
		assert.True(t, d.Divergent())
		assert.Equal(t, []string{"X-001"}, d.Mismatched)
	})

	t.Run("stale snapshot is not divergence", func(t *testing.T) {
		m := BuildManifest(b, "REL-01", testNow)
		it, _ := b.Item("X-002")
		it.Title = "search v2"
		defer func() { it.Title = "search" }()
		d := DiffManifest(b, "REL-01", m)
		assert.False(t, d.Divergent())
		assert.True(t, d.Changed())
		assert.Equal(t, []string{"X-002"}, d.Stale)
	})
}

func TestManifestUpsertAndRemove(t *testing.T) {
	m := NewManifest("REL-01", "alpha", testNow)
	m.Upsert(ManifestEntry{ItemID: "X-002", Platform: "ios"}, testNow)
	m.Upsert(ManifestEntry{ItemID: "X-001", Platform: "ios"}, testNow)
	m.Upsert(ManifestEntry{ItemID: "X-002", Platform: "web"}, testNow)
	assert.Len(t, m.Items, 2)
	e, _ := m.Entry("X-002")
	assert.Equal(t, "web", e.Platform)

	assert.True(t, m.Remove("X-002", testNow))
	assert.False(t, m.Remove("X-002", testNow))
	assert.Equal(t, []string{"X-001"}, m.ItemIDs())
}
