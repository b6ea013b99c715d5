package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexanderramin/kanban/internal/domain"
)

// Team is one configured board owner. Prefix is the item id prefix the team
// allocates ("WEB" for WEB-001).
type Team struct {
	Key    string
	Prefix string
	Name   string
}

// TeamRegistry resolves the team passed to every engine call and maps item id
// prefixes back to their owning team.
type TeamRegistry struct {
	byKey    map[string]Team
	byPrefix map[string]string
}

func NewTeamRegistry(teams []Team) (*TeamRegistry, error) {
	r := &TeamRegistry{byKey: make(map[string]Team), byPrefix: make(map[string]string)}
	for _, t := range teams {
		t.Key = strings.ToLower(strings.TrimSpace(t.Key))
		if t.Key == "" {
			return nil, fmt.Errorf("%w: team key is required", domain.ErrValidation)
		}
		if _, dup := r.byKey[t.Key]; dup {
			return nil, fmt.Errorf("%w: team %s configured twice", domain.ErrValidation, t.Key)
		}
		if t.Prefix == "" {
			t.Prefix = derivePrefix(t.Key)
		}
		t.Prefix = strings.ToUpper(t.Prefix)
		if owner, dup := r.byPrefix[t.Prefix]; dup {
			return nil, fmt.Errorf("%w: prefix %s used by both %s and %s", domain.ErrValidation, t.Prefix, owner, t.Key)
		}
		if t.Name == "" {
			t.Name = t.Key
		}
		r.byKey[t.Key] = t
		r.byPrefix[t.Prefix] = t.Key
	}
	return r, nil
}

// Resolve returns the configured team, or a team derived from the key for a
// board that is not configured.
func (r *TeamRegistry) Resolve(team string) (Team, error) {
	key := strings.ToLower(strings.TrimSpace(team))
	if key == "" {
		return Team{}, fmt.Errorf("%w: no team given; pass --team or set default_team", domain.ErrValidation)
	}
	if r != nil {
		if t, ok := r.byKey[key]; ok {
			return t, nil
		}
	}
	return Team{Key: key, Prefix: derivePrefix(key), Name: key}, nil
}

// OwnerOfPrefix returns the configured team that allocates ids with prefix.
func (r *TeamRegistry) OwnerOfPrefix(prefix string) (string, bool) {
	if r == nil {
		return "", false
	}
	key, ok := r.byPrefix[strings.ToUpper(prefix)]
	return key, ok
}

// Teams returns the configured teams sorted by key.
func (r *TeamRegistry) Teams() []Team {
	if r == nil {
		return nil
	}
	out := make([]Team, 0, len(r.byKey))
	for _, t := range r.byKey {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func derivePrefix(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	p := b.String()
	if p == "" || p[0] < 'A' || p[0] > 'Z' {
		p = "ITEM" + p
	}
	return p
}
