package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Promotion is one step of a platform's environment history.
type Promotion struct {
	From Environment `json:"from"`
	To   Environment `json:"to"`
	At   time.Time   `json:"at"`
	Note string      `json:"note,omitempty"`
}

// PlatformState tracks one platform of a release.
type PlatformState struct {
	Version            string      `json:"version,omitempty"`
	BuildNumber        int         `json:"buildNumber,omitempty"`
	Environment        Environment `json:"environment"`
	EnvironmentHistory []Promotion `json:"environmentHistory"`
}

type Release struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Team        string                    `json:"team"`
	Type        ReleaseType               `json:"type"`
	Status      ReleaseStatus             `json:"status"`
	Description string                    `json:"description,omitempty"`
	TargetDate  *time.Time                `json:"targetDate,omitempty"`
	Platforms   map[string]*PlatformState `json:"platforms"`
	CreatedAt   time.Time                 `json:"createdAt"`
	UpdatedAt   time.Time                 `json:"updatedAt"`

	Extra Extra `json:"-"`
}

// NewRelease starts every platform at the bottom of the environment ladder.
func NewRelease(id, name, team string, typ ReleaseType, platforms []string, now time.Time) (*Release, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: release name is required", ErrValidation)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrValidation)
	}
	if typ == "" {
		typ = ReleaseFeature
	}
	r := &Release{
		ID:        id,
		Name:      name,
		Team:      team,
		Type:      typ,
		Status:    ReleasePlanning,
		Platforms: make(map[string]*PlatformState, len(platforms)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, p := range platforms {
		p = NormalizePlatform(p)
		if p == "" {
			return nil, fmt.Errorf("%w: empty platform name", ErrValidation)
		}
		if _, dup := r.Platforms[p]; dup {
			return nil, fmt.Errorf("%w: platform %s listed twice", ErrValidation, p)
		}
		r.Platforms[p] = &PlatformState{Environment: EnvDev, EnvironmentHistory: []Promotion{}}
	}
	return r, nil
}

// NormalizePlatform lowercases and trims a platform name.
func NormalizePlatform(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// PlatformNames returns the platform keys in sorted order.
func (r *Release) PlatformNames() []string {
	names := make([]string, 0, len(r.Platforms))
	for name := range r.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Release) Platform(name string) (*PlatformState, error) {
	ps, ok := r.Platforms[NormalizePlatform(name)]
	if !ok {
		return nil, fmt.Errorf("%w: release %s has no platform %q (have %s)",
			ErrValidation, r.ID, name, strings.Join(r.PlatformNames(), ", "))
	}
	return ps, nil
}

// Promote advances a platform one rung up the ladder. A non-empty target must
// be exactly the next rung; skipping rungs or promoting past PROD fails.
func (r *Release) Promote(platform string, target Environment, note string, now time.Time) (*Promotion, error) {
	ps, err := r.Platform(platform)
	if err != nil {
		return nil, err
	}
	next, ok := ps.Environment.Next()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s is already at %s", ErrInvalidPromotion, r.ID, platform, ps.Environment)
	}
	if target != "" && target != next {
		return nil, fmt.Errorf("%w: %s/%s is at %s, next rung is %s (requested %s)",
			ErrInvalidPromotion, r.ID, platform, ps.Environment, next, target)
	}
	p := Promotion{From: ps.Environment, To: next, At: now, Note: note}
	ps.Environment = next
	ps.EnvironmentHistory = append(ps.EnvironmentHistory, p)
	r.UpdatedAt = now
	return &p, nil
}

// SetVersion records the version and build number of a platform.
func (r *Release) SetVersion(platform, version string, build int, now time.Time) error {
	ps, err := r.Platform(platform)
	if err != nil {
		return err
	}
	if build < 0 {
		return fmt.Errorf("%w: build number must not be negative", ErrValidation)
	}
	if version != "" {
		ps.Version = version
	}
	if build > 0 {
		ps.BuildNumber = build
	}
	r.UpdatedAt = now
	return nil
}

func (r *Release) MarshalJSON() ([]byte, error) {
	type alias Release
	data, err := json.Marshal((*alias)(r))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, r.Extra)
}

func (r *Release) UnmarshalJSON(data []byte) error {
	type alias Release
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Release(a)
	r.Extra = extractExtra(data, a)
	return nil
}
