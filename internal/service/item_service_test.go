package service

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemService_Add_AllocatesTeamPrefixedIDs(t *testing.T) {
	h := newHarness(t)

	first := h.addItem(t, "alpha", "Login screen")
	second := h.addItem(t, "Alpha", "Search")
	other := h.addItem(t, "beta", "Payments")

	assert.Equal(t, "X-001", first.ID)
	assert.Equal(t, "X-002", second.ID)
	assert.Equal(t, "Y-001", other.ID)
	assert.Equal(t, domain.StatusTodo, first.Status)
	assert.Equal(t, domain.PriorityMedium, first.Priority)
	assert.Equal(t, h.clock.Now(), first.AddedAt)

	stored := h.item(t, "alpha", "x-002")
	assert.Equal(t, "Search", stored.Title)
}

func TestItemService_Add_UnconfiguredTeamDerivesPrefix(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "mobile-web", "Menu")
	assert.Equal(t, "MOBILEWEB-001", it.ID)
}

func TestItemService_Add_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		team string
		in   ItemInput
	}{
		{"missing title", "alpha", ItemInput{Title: "  "}},
		{"bad priority", "alpha", ItemInput{Title: "x", Priority: "urgent"}},
		{"bad custom id", "alpha", ItemInput{Title: "x", ID: "no dash"}},
		{"dotted custom id", "alpha", ItemInput{Title: "x", ID: "X-1.2"}},
		{"missing team", "", ItemInput{Title: "x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.items.Add(h.ctx, tc.team, tc.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	b, err := h.board.Get(h.ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, b.Items, "failed adds must not persist")
}

func TestItemService_Add_CustomIDMustBeUnique(t *testing.T) {
	h := newHarness(t)

	it, err := h.items.Add(h.ctx, "alpha", ItemInput{ID: "fix-12", Title: "hotfix"})
	require.NoError(t, err)
	assert.Equal(t, "FIX-12", it.ID)

	_, err = h.items.Add(h.ctx, "alpha", ItemInput{ID: "FIX-12", Title: "again"})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestItemService_Add_IntoEpic(t *testing.T) {
	h := newHarness(t)
	e, err := h.epics.Create(h.ctx, "alpha", EpicInput{Title: "Onboarding"})
	require.NoError(t, err)

	it, err := h.items.Add(h.ctx, "alpha", ItemInput{Title: "Welcome", EpicID: e.ID, Tags: []string{"ui", "UI"}})
	require.NoError(t, err)
	assert.Equal(t, e.ID, it.EpicID)
	assert.Equal(t, []string{"ui"}, it.Tags)

	detail, err := h.epics.Get(h.ctx, "alpha", e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{it.ID}, detail.Epic.ItemIDs)

	_, err = h.items.Add(h.ctx, "alpha", ItemInput{Title: "Orphan", EpicID: "EPIC-99"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestItemService_Modify(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Login")
	sub := h.addSub(t, "alpha", it.ID, "validate email")

	title := "Login v2"
	high := domain.PriorityHigh
	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	h.advance(time.Minute)
	card, err := h.items.Modify(h.ctx, "alpha", it.ID, CardPatch{Title: &title, Priority: &high, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, "Login v2", card.Title)
	assert.Equal(t, domain.PriorityHigh, card.Priority)
	require.NotNil(t, card.DueDate)
	assert.True(t, card.DueDate.Equal(due))
	assert.Equal(t, h.clock.Now(), card.UpdatedAt)

	ref := "JIRA-42"
	card, err = h.items.Modify(h.ctx, "alpha", sub.ID, CardPatch{IssueRef: &ref})
	require.NoError(t, err)
	assert.Equal(t, "JIRA-42", card.IssueRef)

	card, err = h.items.Modify(h.ctx, "alpha", it.ID, CardPatch{ClearDue: true})
	require.NoError(t, err)
	assert.Nil(t, card.DueDate)

	_, err = h.items.Modify(h.ctx, "alpha", it.ID, CardPatch{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	empty := " "
	_, err = h.items.Modify(h.ctx, "alpha", it.ID, CardPatch{Title: &empty})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.items.Modify(h.ctx, "alpha", "X-404", CardPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestItemService_Tag(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Login")

	card, err := h.items.Tag(h.ctx, "alpha", it.ID, []string{"ui", "auth"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ui", "auth"}, card.Tags)

	card, err = h.items.Tag(h.ctx, "alpha", it.ID, []string{"UI"}, nil)
	require.NoError(t, err, "re-adding an existing tag is a no-op")
	assert.Equal(t, []string{"ui", "auth"}, card.Tags)

	card, err = h.items.Tag(h.ctx, "alpha", it.ID, []string{"mobile"}, []string{"Auth"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ui", "mobile"}, card.Tags)

	assert.Equal(t, []string{"ui", "mobile"}, h.item(t, "alpha", it.ID).Tags)
}

func TestItemService_List_FiltersAndOrders(t *testing.T) {
	h := newHarness(t)
	low := domain.PriorityLow
	crit := domain.PriorityCritical
	_, err := h.items.Add(h.ctx, "alpha", ItemInput{Title: "low", Priority: low})
	require.NoError(t, err)
	h.advance(time.Second)
	_, err = h.items.Add(h.ctx, "alpha", ItemInput{Title: "crit", Priority: crit, Tags: []string{"ui"}})
	require.NoError(t, err)

	all, err := h.items.List(h.ctx, "alpha", domain.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "crit", all[0].Title)

	tagged, err := h.items.List(h.ctx, "alpha", domain.ItemFilter{Tag: "ui"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "crit", tagged[0].Title)
}

func TestItemService_Remove(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "typo")
	require.NoError(t, h.items.SetCollapsed(h.ctx, "alpha", it.ID, true))

	removed, err := h.items.Remove(h.ctx, "alpha", it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.ID, removed.ID)

	_, err = h.items.Get(h.ctx, "alpha", it.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	b, err := h.board.Get(h.ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, b.Collapsed)

	next := h.addItem(t, "alpha", "next")
	assert.Equal(t, "X-002", next.ID, "removed ids are not reused")
}

func TestItemService_SetCollapsed(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Login")

	require.NoError(t, h.items.SetCollapsed(h.ctx, "alpha", it.ID, true))
	b, err := h.board.Get(h.ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, b.Collapsed[it.ID])

	require.NoError(t, h.items.SetCollapsed(h.ctx, "alpha", it.ID, false))
	b, err = h.board.Get(h.ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, b.Collapsed[it.ID])

	assert.ErrorIs(t, h.items.SetCollapsed(h.ctx, "alpha", "X-404", true), domain.ErrNotFound)
}

func TestItemService_Subitems(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Login")

	s1 := h.addSub(t, "alpha", it.ID, "form")
	s2 := h.addSub(t, "alpha", it.ID, "validation")
	assert.Equal(t, "X-001.1", s1.ID)
	assert.Equal(t, "X-001.2", s2.ID)
	assert.Equal(t, domain.PriorityMedium, s1.Priority, "inherits the parent priority")

	removed, err := h.items.RemoveSubitem(h.ctx, "alpha", s2.ID)
	require.NoError(t, err)
	assert.Equal(t, s2.ID, removed.ID)

	s3 := h.addSub(t, "alpha", it.ID, "tests")
	assert.Equal(t, "X-001.3", s3.ID, "suffixes are never reused")

	subs, err := h.items.ListSubitems(h.ctx, "alpha", it.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, []string{"X-001.1", "X-001.3"}, []string{subs[0].ID, subs[1].ID})

	_, err = h.items.AddSubitem(h.ctx, "alpha", s1.ID, "nested", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.items.RemoveSubitem(h.ctx, "alpha", it.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.items.AddSubitem(h.ctx, "alpha", "X-404", "lost", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestItemService_ConcurrentSubitemAdds(t *testing.T) {
	h := newHarness(t)
	it := h.addItem(t, "alpha", "Parent")

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.items.AddSubitem(h.ctx, "alpha", it.ID, fmt.Sprintf("child %d", i), "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	subs, err := h.items.ListSubitems(h.ctx, "alpha", it.ID)
	require.NoError(t, err)
	require.Len(t, subs, n)
	ids := make([]string, 0, n)
	titles := make(map[string]bool)
	for _, s := range subs {
		ids = append(ids, s.ID)
		titles[s.Title] = true
	}
	sort.Strings(ids)
	for i := 1; i < len(ids); i++ {
		assert.NotEqual(t, ids[i-1], ids[i])
	}
	assert.Len(t, titles, n, "no update was lost")
}
