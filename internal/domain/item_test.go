package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSubitemID(t *testing.T) {
	cases := []struct {
		id     string
		parent string
		n      int
		ok     bool
	}{
		{"X-001.1", "X-001", 1, true},
		{"WEB-012.15", "WEB-012", 15, true},
		{"X-001", "", 0, false},
		{"X-001.", "", 0, false},
		{"X-001.a", "", 0, false},
		{".3", "", 0, false},
	}
	for _, tc := range cases {
		parent, n, ok := SplitSubitemID(tc.id)
		assert.Equal(t, tc.ok, ok, tc.id)
		assert.Equal(t, tc.parent, parent, tc.id)
		assert.Equal(t, tc.n, n, tc.id)
	}
}

func TestAddSubitem_PositionalIDsNeverReused(t *testing.T) {
	it := NewItem("X-001", "Parent", PriorityHigh, testNow)
	a, err := it.AddSubitem("first", "", testNow)
	require.NoError(t, err)
	b, err := it.AddSubitem("second", PriorityLow, testNow)
	require.NoError(t, err)
	assert.Equal(t, "X-001.1", a.ID)
	assert.Equal(t, "X-001.2", b.ID)
	assert.Equal(t, PriorityHigh, a.Priority, "inherits parent priority")
	assert.Equal(t, PriorityLow, b.Priority)

	_, err = it.RemoveSubitem("X-001.2", testNow)
	require.NoError(t, err)
	c, err := it.AddSubitem("third", "", testNow)
	require.NoError(t, err)
	assert.Equal(t, "X-001.3", c.ID)
}

func TestAddSubitem_RequiresTitle(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	_, err := it.AddSubitem("  ", "", testNow)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, it.Subitems)
}

func TestComplete_BlockedByOpenSubitems(t *testing.T) {
	it := NewItem("X-001", "Parent", PriorityHigh, testNow)
	a, _ := it.AddSubitem("write code", "", testNow)
	b, _ := it.AddSubitem("write tests", "", testNow)

	err := it.Complete(false, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteSubitems)

	var ise *IncompleteSubitemsError
	require.True(t, errors.As(err, &ise))
	require.Len(t, ise.Blocking, 2)
	assert.Equal(t, a.ID, ise.Blocking[0].ID)
	assert.Equal(t, "write code", ise.Blocking[0].Title)
	assert.Equal(t, b.ID, ise.Blocking[1].ID)
	assert.Contains(t, err.Error(), "write tests")
	assert.Equal(t, StatusTodo, it.Status)
	assert.Nil(t, it.CompletedAt)

	require.NoError(t, a.Complete(testNow))
	require.NoError(t, b.Cancel("not needed", testNow))
	require.NoError(t, it.Complete(false, testNow.Add(time.Minute)))
	assert.Equal(t, StatusCompleted, it.Status)
	require.NotNil(t, it.CompletedAt)
	assert.Empty(t, it.Audit)
}

func TestComplete_ForceIsAudited(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	_, _ = it.AddSubitem("open work", "", testNow)

	require.NoError(t, it.Complete(true, testNow))
	assert.Equal(t, StatusCompleted, it.Status)
	require.Len(t, it.Audit, 1)
	assert.Equal(t, AuditForcedCompletion, it.Audit[0].Action)
	assert.Contains(t, it.Audit[0].Detail, "X-001.1")
	assert.NotEmpty(t, it.Audit[0].ID)
}

func TestComplete_FinalizesTimeAndDropsWorktree(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	require.NoError(t, it.Start(testNow))
	require.NoError(t, it.LinkWorktree(Worktree{Path: "/wt/x-001", Branch: "feature/X-001"}, false, testNow))

	require.NoError(t, it.Complete(false, testNow.Add(90*time.Second)))
	assert.Equal(t, int64(90000), it.TimeWorkedMs)
	assert.Nil(t, it.WorkStartedAt)
	assert.Nil(t, it.Worktree)
}

func TestSubitemComplete_FromAnyOpenStatus(t *testing.T) {
	for _, st := range []Status{StatusTodo, StatusInProgress, StatusPaused} {
		s := &Subitem{Card: Card{ID: "X-001.1", Status: st}}
		require.NoError(t, s.Complete(testNow), "status=%s", st)
		assert.Equal(t, StatusCompleted, s.Status)
	}
}

func TestReopen_RequiresFollowUpWhenAllSubitemsClosed(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	s, _ := it.AddSubitem("done part", "", testNow)
	require.NoError(t, s.Complete(testNow))
	require.NoError(t, it.Complete(false, testNow))

	_, err := it.Reopen("", testNow)
	assert.ErrorIs(t, err, ErrFollowUpRequired)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCompleted, it.Status)

	later := testNow.Add(time.Hour)
	sub, err := it.Reopen("fix regression", later)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "X-001.2", sub.ID)
	assert.Equal(t, StatusInProgress, it.Status)
	assert.Nil(t, it.CompletedAt)
	require.NotNil(t, it.WorkStartedAt)
	assert.Equal(t, later, *it.WorkStartedAt)
	assert.Equal(t, AuditReopened, it.Audit[len(it.Audit)-1].Action)
}

func TestReopen_ForcedItemWithOpenSubitems(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	_, _ = it.AddSubitem("still open", "", testNow)
	require.NoError(t, it.Complete(true, testNow))

	sub, err := it.Reopen("", testNow)
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Equal(t, StatusInProgress, it.Status)
}

func TestReopen_OnlyFromCompleted(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	_, err := it.Reopen("follow up", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, it.Subitems)
}

func TestLinkWorktree_Conflict(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	first := Worktree{Path: "/wt/a", Branch: "feature/a", SessionID: "s1"}
	require.NoError(t, it.LinkWorktree(first, false, testNow))

	// Same linkage again is not a conflict.
	require.NoError(t, it.LinkWorktree(first, false, testNow))

	second := Worktree{Path: "/wt/b", Branch: "feature/b", SessionID: "s2"}
	err := it.LinkWorktree(second, false, testNow)
	var wce *WorktreeConflictError
	require.True(t, errors.As(err, &wce))
	assert.ErrorIs(t, err, ErrWorktreeConflict)
	assert.Equal(t, "/wt/a", wce.Existing.Path)
	assert.Equal(t, "/wt/a", it.Worktree.Path, "linkage must not be overwritten")

	require.NoError(t, it.LinkWorktree(second, true, testNow))
	assert.Equal(t, "/wt/b", it.Worktree.Path)
	assert.Equal(t, AuditWorktreeOverride, it.Audit[len(it.Audit)-1].Action)
}

func TestUnlinkWorktree(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	_, err := it.UnlinkWorktree(testNow)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, it.LinkWorktree(Worktree{Path: "/wt/a"}, false, testNow))
	prev, err := it.UnlinkWorktree(testNow)
	require.NoError(t, err)
	assert.Equal(t, "/wt/a", prev.Path)
	assert.Nil(t, it.Worktree)
}

func TestAddSubitem_ClosedParentRefuses(t *testing.T) {
	it := NewItem("X-001", "Parent", "", testNow)
	require.NoError(t, it.Complete(false, testNow))
	_, err := it.AddSubitem("late", "", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, it.Subitems)
}
