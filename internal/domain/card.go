package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Card is the metadata shared by items and subitems: identity, planning
// fields, workflow state and time accounting.
type Card struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	IssueRef    string     `json:"issueRef,omitempty"`
	SCMIssue    string     `json:"scmIssue,omitempty"`

	Status      Status `json:"status"`
	Phase       Phase  `json:"phase,omitempty"`
	PausedFrom  Status `json:"pausedFrom,omitempty"`
	PauseReason string `json:"pauseReason,omitempty"`

	AddedAt       time.Time  `json:"addedAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	WorkStartedAt *time.Time `json:"workStartedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	TimeWorkedMs  int64      `json:"timeWorkedMs"`

	Audit []AuditEntry `json:"audit,omitempty"`
}

// AuditEntry records an action that bypassed or annotated a workflow gate.
type AuditEntry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

const (
	AuditForcedCompletion = "forced_completion"
	AuditReopened         = "reopened"
	AuditCancelled        = "cancelled"
	AuditWorktreeOverride = "worktree_override"
)

func newCard(id, title string, priority Priority, now time.Time) Card {
	if priority == "" {
		priority = PriorityMedium
	}
	return Card{
		ID:        id,
		Title:     title,
		Priority:  priority,
		Status:    StatusTodo,
		AddedAt:   now,
		UpdatedAt: now,
	}
}

func (c *Card) IsTerminal() bool { return c.Status.Terminal() }

// Working reports whether a work session is open.
func (c *Card) Working() bool { return c.WorkStartedAt != nil }

func (c *Card) transitionErr(op, reason string) error {
	return &TransitionError{ID: c.ID, Op: op, From: c.Status, Reason: reason}
}

// Start opens a work session at now. Allowed from todo, paused, and from
// in-progress work whose session was stopped. StartedAt is set on the first
// start only.
func (c *Card) Start(now time.Time) error {
	switch {
	case c.Status == StatusInProgress && c.Working():
		return c.transitionErr("start", "a work session is already open")
	case c.Status != StatusTodo && c.Status != StatusPaused && c.Status != StatusInProgress:
		return c.transitionErr("start", "start requires todo, paused or stopped work")
	}
	c.Status = StatusInProgress
	c.PausedFrom = ""
	c.PauseReason = ""
	if c.StartedAt == nil {
		started := now
		c.StartedAt = &started
	}
	ws := now
	c.WorkStartedAt = &ws
	c.UpdatedAt = now
	return nil
}

// Pause parks an in-progress card. An open session is folded into
// TimeWorkedMs the way Stop does.
func (c *Card) Pause(reason string, now time.Time) error {
	if c.Status != StatusInProgress {
		return c.transitionErr("pause", "only in-progress work can be paused")
	}
	c.closeSession(now)
	c.PausedFrom = c.Status
	c.Status = StatusPaused
	c.PauseReason = strings.TrimSpace(reason)
	c.UpdatedAt = now
	return nil
}

// Resume restores the status a card was paused from. It does not open a
// work session; Start does.
func (c *Card) Resume(now time.Time) error {
	if c.Status != StatusPaused {
		return c.transitionErr("resume", "card is not paused")
	}
	prev := c.PausedFrom
	if prev == "" {
		prev = StatusInProgress
	}
	c.Status = prev
	c.PausedFrom = ""
	c.PauseReason = ""
	c.UpdatedAt = now
	return nil
}

// Stop ends the open work session without advancing the status and returns
// the elapsed duration that was added to TimeWorkedMs.
func (c *Card) Stop(now time.Time) (time.Duration, error) {
	if c.IsTerminal() {
		return 0, c.transitionErr("stop", "card is closed")
	}
	if c.WorkStartedAt == nil {
		return 0, c.transitionErr("stop", "no open work session")
	}
	elapsed := c.closeSession(now)
	c.UpdatedAt = now
	return elapsed, nil
}

// closeSession folds the open session into TimeWorkedMs. A clock that went
// backwards contributes zero so the counter never decreases.
func (c *Card) closeSession(now time.Time) time.Duration {
	if c.WorkStartedAt == nil {
		return 0
	}
	elapsed := now.Sub(*c.WorkStartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	c.TimeWorkedMs += elapsed.Milliseconds()
	c.WorkStartedAt = nil
	return elapsed
}

// complete closes the card as completed. Gating is the caller's concern.
func (c *Card) complete(now time.Time) error {
	if c.IsTerminal() {
		return c.transitionErr("complete", "card is already closed")
	}
	c.closeSession(now)
	c.Status = StatusCompleted
	c.Phase = ""
	c.PausedFrom = ""
	c.PauseReason = ""
	done := now
	c.CompletedAt = &done
	c.UpdatedAt = now
	return nil
}

func (c *Card) reopen(now time.Time) error {
	if c.Status != StatusCompleted {
		return c.transitionErr("reopen", "only completed work can be reopened")
	}
	c.CompletedAt = nil
	c.Status = StatusInProgress
	ws := now
	c.WorkStartedAt = &ws
	c.UpdatedAt = now
	return nil
}

// Cancel closes the card as cancelled from any non-terminal status. An open
// session is closed exactly like Stop.
func (c *Card) Cancel(reason string, now time.Time) error {
	if c.IsTerminal() {
		return c.transitionErr("cancel", "card is already closed")
	}
	c.closeSession(now)
	c.Status = StatusCancelled
	c.Phase = ""
	c.PausedFrom = ""
	c.PauseReason = ""
	c.UpdatedAt = now
	c.addAudit(AuditCancelled, reason, now)
	return nil
}

// SetPhase labels the sub-phase of in-progress work.
func (c *Card) SetPhase(p Phase, now time.Time) error {
	if c.Status != StatusInProgress {
		return c.transitionErr("set phase on", "phase applies to in-progress work")
	}
	c.Phase = p
	c.UpdatedAt = now
	return nil
}

// ElapsedMs returns TimeWorkedMs plus the running session, if any.
func (c *Card) ElapsedMs(now time.Time) int64 {
	total := c.TimeWorkedMs
	if c.WorkStartedAt != nil && now.After(*c.WorkStartedAt) {
		total += now.Sub(*c.WorkStartedAt).Milliseconds()
	}
	return total
}

func (c *Card) addAudit(action, detail string, now time.Time) {
	c.Audit = append(c.Audit, AuditEntry{
		ID:     uuid.NewString(),
		At:     now,
		Action: action,
		Detail: detail,
	})
}

// AddTags appends tags not already present, preserving insertion order.
// Returns the number of tags added.
func (c *Card) AddTags(tags ...string) int {
	added := 0
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || c.HasTag(t) {
			continue
		}
		c.Tags = append(c.Tags, t)
		added++
	}
	return added
}

// RemoveTags drops the given tags. Returns the number removed.
func (c *Card) RemoveTags(tags ...string) int {
	drop := make(map[string]bool, len(tags))
	for _, t := range tags {
		drop[strings.ToLower(strings.TrimSpace(t))] = true
	}
	kept := c.Tags[:0]
	removed := 0
	for _, t := range c.Tags {
		if drop[strings.ToLower(t)] {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	c.Tags = kept
	if len(c.Tags) == 0 {
		c.Tags = nil
	}
	return removed
}

// HasTag matches case-insensitively.
func (c *Card) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
