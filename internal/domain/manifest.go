package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// ManifestEntry is the denormalized snapshot of an assigned item.
type ManifestEntry struct {
	ItemID     string    `json:"itemId"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	Platform   string    `json:"platform"`
	Team       string    `json:"team"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Manifest is the release-centric list of assigned items, stored apart from
// the board. The board is the source of truth.
type Manifest struct {
	ReleaseID string          `json:"releaseId"`
	Team      string          `json:"team"`
	Items     []ManifestEntry `json:"items"`
	UpdatedAt time.Time       `json:"updatedAt"`

	Extra Extra `json:"-"`
}

func NewManifest(releaseID, team string, now time.Time) *Manifest {
	return &Manifest{ReleaseID: releaseID, Team: team, Items: []ManifestEntry{}, UpdatedAt: now}
}

// Upsert adds or replaces the entry for e.ItemID.
func (m *Manifest) Upsert(e ManifestEntry, now time.Time) {
	for i := range m.Items {
		if m.Items[i].ItemID == e.ItemID {
			m.Items[i] = e
			m.UpdatedAt = now
			return
		}
	}
	m.Items = append(m.Items, e)
	m.UpdatedAt = now
}

// Remove drops the entry for itemID and reports whether it existed.
func (m *Manifest) Remove(itemID string, now time.Time) bool {
	for i := range m.Items {
		if m.Items[i].ItemID == itemID {
			m.Items = append(m.Items[:i], m.Items[i+1:]...)
			m.UpdatedAt = now
			return true
		}
	}
	return false
}

func (m *Manifest) Entry(itemID string) (ManifestEntry, bool) {
	for _, e := range m.Items {
		if e.ItemID == itemID {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// ItemIDs returns the sorted ids listed in the manifest.
func (m *Manifest) ItemIDs() []string {
	ids := make([]string, 0, len(m.Items))
	for _, e := range m.Items {
		ids = append(ids, e.ItemID)
	}
	sort.Strings(ids)
	return ids
}

// EntryFor snapshots an assigned item.
func EntryFor(it *Item, team string) ManifestEntry {
	e := ManifestEntry{ItemID: it.ID, Title: it.Title, Status: it.Status, Team: team}
	if it.Release != nil {
		e.Platform = it.Release.Platform
		e.AssignedAt = it.Release.AssignedAt
	}
	return e
}

// BuildManifest derives a release's manifest from the board's assignments,
// in board order.
func BuildManifest(b *Board, releaseID string, now time.Time) *Manifest {
	m := NewManifest(releaseID, b.Team, now)
	for _, it := range b.Items {
		if it.Release != nil && it.Release.ReleaseID == releaseID {
			m.Items = append(m.Items, EntryFor(it, b.Team))
		}
	}
	return m
}

// ManifestDiff describes how a stored manifest differs from the board.
type ManifestDiff struct {
	ReleaseID string `json:"releaseId"`
	// Missing items are assigned on the board but absent from the manifest.
	Missing []string `json:"missing,omitempty"`
	// Unexpected items are listed in the manifest without a board assignment.
	Unexpected []string `json:"unexpected,omitempty"`
	// Mismatched items are in both but disagree on the platform.
	Mismatched []string `json:"mismatched,omitempty"`
	// Stale items carry an outdated title or status snapshot. Staleness alone
	// is not a divergence.
	Stale []string `json:"stale,omitempty"`
	// MissingManifest is set when the manifest document does not exist.
	MissingManifest bool `json:"missingManifest,omitempty"`
}

// Divergent reports whether the item sets (or platforms) disagree.
func (d ManifestDiff) Divergent() bool {
	return d.MissingManifest || len(d.Missing) > 0 || len(d.Unexpected) > 0 || len(d.Mismatched) > 0
}

// Changed reports whether a resync would rewrite the manifest.
func (d ManifestDiff) Changed() bool {
	return d.Divergent() || len(d.Stale) > 0
}

// DiffManifest compares m against the board. A nil m is a missing manifest.
func DiffManifest(b *Board, releaseID string, m *Manifest) ManifestDiff {
	d := ManifestDiff{ReleaseID: releaseID}
	if m == nil {
		d.MissingManifest = true
		m = &Manifest{}
	}
	want := BuildManifest(b, releaseID, time.Time{})
	for _, e := range want.Items {
		got, ok := m.Entry(e.ItemID)
		switch {
		case !ok:
			d.Missing = append(d.Missing, e.ItemID)
		case got.Platform != e.Platform:
			d.Mismatched = append(d.Mismatched, e.ItemID)
		case got.Title != e.Title || got.Status != e.Status:
			d.Stale = append(d.Stale, e.ItemID)
		}
	}
	for _, e := range m.Items {
		if _, ok := want.Entry(e.ItemID); !ok {
			d.Unexpected = append(d.Unexpected, e.ItemID)
		}
	}
	return d
}

func (m *Manifest) MarshalJSON() ([]byte, error) {
	type alias Manifest
	data, err := json.Marshal((*alias)(m))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, m.Extra)
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	type alias Manifest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Manifest(a)
	m.Extra = extractExtra(data, a)
	return nil
}
