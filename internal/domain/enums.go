package domain

import (
	"fmt"
	"strings"
)

type Priority string

const (
	PriorityCritical      Priority = "critical"
	PriorityHigh          Priority = "high"
	PriorityMedium        Priority = "medium"
	PriorityLow           Priority = "low"
	PriorityPausedPending Priority = "paused-pending"
)

// priorityRank orders priorities for sorting; lower sorts first.
var priorityRank = map[Priority]int{
	PriorityCritical:      0,
	PriorityHigh:          1,
	PriorityMedium:        2,
	PriorityLow:           3,
	PriorityPausedPending: 4,
}

// Rank returns the sort position of p. Unknown priorities sort after all known ones.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// ParsePriority accepts the canonical names plus "paused_pending" and "pending".
func ParsePriority(s string) (Priority, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "paused_pending", "pending":
		return PriorityPausedPending, nil
	}
	p := Priority(norm)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q (critical, high, medium, low, paused-pending)", ErrValidation, s)
	}
	return p, nil
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusTodo: true, StatusInProgress: true, StatusPaused: true,
	StatusCompleted: true, StatusCancelled: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Terminal reports whether s is completed or cancelled.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "in-progress" {
		st = StatusInProgress
	}
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

// Phase is the auxiliary label carried while a card is in progress.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseCoding     Phase = "coding"
	PhaseTesting    Phase = "testing"
	PhaseCommitting Phase = "committing"
)

var validPhases = map[Phase]bool{
	PhasePlanning: true, PhaseCoding: true, PhaseTesting: true, PhaseCommitting: true,
}

func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !validPhases[p] {
		return "", fmt.Errorf("%w: unknown phase %q (planning, coding, testing, committing)", ErrValidation, s)
	}
	return p, nil
}

type EpicStatus string

const (
	EpicPlanning  EpicStatus = "planning"
	EpicActive    EpicStatus = "active"
	EpicCompleted EpicStatus = "completed"
	EpicOnHold    EpicStatus = "on_hold"
	EpicCancelled EpicStatus = "cancelled"
)

var validEpicStatuses = map[EpicStatus]bool{
	EpicPlanning: true, EpicActive: true, EpicCompleted: true, EpicOnHold: true, EpicCancelled: true,
}

func ParseEpicStatus(s string) (EpicStatus, error) {
	st := EpicStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !validEpicStatuses[st] {
		return "", fmt.Errorf("%w: unknown epic status %q", ErrValidation, s)
	}
	return st, nil
}

type ReleaseType string

const (
	ReleaseFeature     ReleaseType = "feature"
	ReleaseBugfix      ReleaseType = "bugfix"
	ReleaseHotfix      ReleaseType = "hotfix"
	ReleaseMaintenance ReleaseType = "maintenance"
)

func ParseReleaseType(s string) (ReleaseType, error) {
	t := ReleaseType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ReleaseFeature, ReleaseBugfix, ReleaseHotfix, ReleaseMaintenance:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown release type %q (feature, bugfix, hotfix, maintenance)", ErrValidation, s)
}

type ReleaseStatus string

const (
	ReleasePlanning   ReleaseStatus = "planning"
	ReleaseInProgress ReleaseStatus = "in_progress"
	ReleaseCompleted  ReleaseStatus = "completed"
	ReleaseArchived   ReleaseStatus = "archived"
)

func ParseReleaseStatus(s string) (ReleaseStatus, error) {
	st := ReleaseStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch st {
	case ReleasePlanning, ReleaseInProgress, ReleaseCompleted, ReleaseArchived:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown release status %q", ErrValidation, s)
}

// Environment is one rung of the deployment ladder.
type Environment string

const (
	EnvDev   Environment = "DEV"
	EnvQA    Environment = "QA"
	EnvAlpha Environment = "ALPHA"
	EnvBeta  Environment = "BETA"
	EnvGamma Environment = "GAMMA"
	EnvProd  Environment = "PROD"
)

// EnvironmentLadder is the fixed promotion order.
var EnvironmentLadder = []Environment{EnvDev, EnvQA, EnvAlpha, EnvBeta, EnvGamma, EnvProd}

// Index returns the position of e on the ladder, or -1.
func (e Environment) Index() int {
	for i, rung := range EnvironmentLadder {
		if rung == e {
			return i
		}
	}
	return -1
}

// Next returns the rung after e. ok is false at PROD or for unknown environments.
func (e Environment) Next() (Environment, bool) {
	i := e.Index()
	if i < 0 || i == len(EnvironmentLadder)-1 {
		return "", false
	}
	return EnvironmentLadder[i+1], true
}

func ParseEnvironment(s string) (Environment, error) {
	e := Environment(strings.ToUpper(strings.TrimSpace(s)))
	if e.Index() < 0 {
		return "", fmt.Errorf("%w: unknown environment %q", ErrValidation, s)
	}
	return e, nil
}
