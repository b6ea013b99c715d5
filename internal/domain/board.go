package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Counters hold the next sequence numbers used for generated ids. They only
// grow, so removed ids are never handed out again.
type Counters struct {
	Item    int `json:"item"`
	Epic    int `json:"epic"`
	Release int `json:"release"`
}

// Board is the complete per-team record.
type Board struct {
	Team        string          `json:"team"`
	Items       []*Item         `json:"items"`
	Epics       []*Epic         `json:"epics"`
	Releases    []*Release      `json:"releases"`
	Collapsed   map[string]bool `json:"collapsed,omitempty"`
	Counters    Counters        `json:"counters"`
	LastUpdated time.Time       `json:"lastUpdated"`

	Extra Extra `json:"-"`
}

func NewBoard(team string) *Board {
	return &Board{
		Team:     team,
		Items:    []*Item{},
		Epics:    []*Epic{},
		Releases: []*Release{},
	}
}

var customIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*-[A-Za-z0-9_-]+$`)

// ValidateCustomID checks a caller-supplied item, epic or release id.
// Dots are reserved for subitem suffixes.
func ValidateCustomID(id string) error {
	if !customIDPattern.MatchString(id) {
		return fmt.Errorf("%w: id %q must look like PREFIX-123 (letters, digits, '-', '_')", ErrValidation, id)
	}
	return nil
}

// IDPrefix returns the part of an id before the first '-'.
func IDPrefix(id string) string {
	p, _, ok := strings.Cut(id, "-")
	if !ok {
		return ""
	}
	return p
}

// Touch stamps the board as modified.
func (b *Board) Touch(now time.Time) {
	b.LastUpdated = now
}

func (b *Board) hasID(id string) bool {
	if _, err := b.Item(id); err == nil {
		return true
	}
	if _, err := b.Epic(id); err == nil {
		return true
	}
	_, err := b.Release(id)
	return err == nil
}

// NextItemID allocates the next "<PREFIX>-NNN" id not already in use.
func (b *Board) NextItemID(prefix string) string {
	for {
		b.Counters.Item++
		id := fmt.Sprintf("%s-%03d", prefix, b.Counters.Item)
		if !b.hasID(id) {
			return id
		}
	}
}

func (b *Board) NextEpicID() string {
	for {
		b.Counters.Epic++
		id := fmt.Sprintf("EPIC-%02d", b.Counters.Epic)
		if !b.hasID(id) {
			return id
		}
	}
}

func (b *Board) NextReleaseID() string {
	for {
		b.Counters.Release++
		id := fmt.Sprintf("REL-%02d", b.Counters.Release)
		if !b.hasID(id) {
			return id
		}
	}
}

func (b *Board) Item(id string) (*Item, error) {
	for _, it := range b.Items {
		if strings.EqualFold(it.ID, id) {
			return it, nil
		}
	}
	return nil, &NotFoundError{Kind: "item", ID: id, Team: b.Team}
}

// Card resolves an item or subitem id. For subitems parent is the owning item
// and sub is non-nil.
func (b *Board) Card(id string) (card *Card, parent *Item, sub *Subitem, err error) {
	if parentID, _, ok := SplitSubitemID(id); ok {
		parent, err = b.Item(parentID)
		if err != nil {
			return nil, nil, nil, err
		}
		for _, s := range parent.Subitems {
			if strings.EqualFold(s.ID, id) {
				return &s.Card, parent, s, nil
			}
		}
		return nil, nil, nil, &NotFoundError{Kind: "subitem", ID: id, Team: b.Team}
	}
	it, err := b.Item(id)
	if err != nil {
		return nil, nil, nil, err
	}
	return &it.Card, it, nil, nil
}

// AddItem appends it after checking id uniqueness.
func (b *Board) AddItem(it *Item, now time.Time) error {
	if strings.TrimSpace(it.Title) == "" {
		return fmt.Errorf("%w: item title is required", ErrValidation)
	}
	if b.hasID(it.ID) {
		return fmt.Errorf("%w: %s already exists on board %s", ErrDuplicateID, it.ID, b.Team)
	}
	b.Items = append(b.Items, it)
	b.Touch(now)
	return nil
}

// RemoveItem deletes an erroneously created item and drops its epic
// membership. Items assigned to a release must be unassigned first so the
// manifest never references a missing item.
func (b *Board) RemoveItem(id string, now time.Time) (*Item, error) {
	for i, it := range b.Items {
		if !strings.EqualFold(it.ID, id) {
			continue
		}
		if it.Release != nil {
			return nil, fmt.Errorf("%w: %s is assigned to release %s; unassign it first",
				ErrValidation, it.ID, it.Release.ReleaseID)
		}
		if it.EpicID != "" {
			if e, err := b.Epic(it.EpicID); err == nil {
				e.remove(it.ID, now)
			}
		}
		b.Items = append(b.Items[:i], b.Items[i+1:]...)
		delete(b.Collapsed, it.ID)
		b.Touch(now)
		return it, nil
	}
	return nil, &NotFoundError{Kind: "item", ID: id, Team: b.Team}
}

func (b *Board) Epic(id string) (*Epic, error) {
	for _, e := range b.Epics {
		if strings.EqualFold(e.ID, id) {
			return e, nil
		}
	}
	return nil, &NotFoundError{Kind: "epic", ID: id, Team: b.Team}
}

func (b *Board) AddEpic(e *Epic, now time.Time) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: epic title is required", ErrValidation)
	}
	if b.hasID(e.ID) {
		return fmt.Errorf("%w: %s already exists on board %s", ErrDuplicateID, e.ID, b.Team)
	}
	b.Epics = append(b.Epics, e)
	b.Touch(now)
	return nil
}

// DeleteEpic removes an epic and clears the back-reference on its items.
func (b *Board) DeleteEpic(id string, now time.Time) (*Epic, error) {
	for i, e := range b.Epics {
		if !strings.EqualFold(e.ID, id) {
			continue
		}
		for _, itemID := range e.ItemIDs {
			if it, err := b.Item(itemID); err == nil && it.EpicID == e.ID {
				it.EpicID = ""
				it.UpdatedAt = now
			}
		}
		b.Epics = append(b.Epics[:i], b.Epics[i+1:]...)
		b.Touch(now)
		return e, nil
	}
	return nil, &NotFoundError{Kind: "epic", ID: id, Team: b.Team}
}

// AddItemToEpic links an item to an epic. An item belongs to at most one
// epic; moving it requires removing it from the previous one first.
func (b *Board) AddItemToEpic(epicID, itemID string, now time.Time) (*Epic, *Item, error) {
	e, err := b.Epic(epicID)
	if err != nil {
		return nil, nil, err
	}
	it, err := b.Item(itemID)
	if err != nil {
		return nil, nil, err
	}
	if it.EpicID != "" && it.EpicID != e.ID {
		return nil, nil, fmt.Errorf("%w: %s belongs to %s; remove it from that epic first",
			ErrItemAlreadyInEpic, it.ID, it.EpicID)
	}
	for _, other := range b.Epics {
		if other.ID != e.ID && other.Has(it.ID) {
			return nil, nil, fmt.Errorf("%w: %s is listed in %s; remove it from that epic first",
				ErrItemAlreadyInEpic, it.ID, other.ID)
		}
	}
	e.add(it.ID, now)
	it.EpicID = e.ID
	it.UpdatedAt = now
	b.Touch(now)
	return e, it, nil
}

func (b *Board) RemoveItemFromEpic(epicID, itemID string, now time.Time) (*Epic, error) {
	e, err := b.Epic(epicID)
	if err != nil {
		return nil, err
	}
	if it, err := b.Item(itemID); err == nil {
		itemID = it.ID
	}
	if !e.remove(itemID, now) {
		return nil, fmt.Errorf("%w: %s is not in epic %s", ErrNotFound, itemID, e.ID)
	}
	if it, err := b.Item(itemID); err == nil && it.EpicID == e.ID {
		it.EpicID = ""
		it.UpdatedAt = now
	}
	b.Touch(now)
	return e, nil
}

// EpicProgress counts completed items among the epic's members.
func (b *Board) EpicProgress(e *Epic) EpicProgress {
	var p EpicProgress
	for _, id := range e.ItemIDs {
		it, err := b.Item(id)
		if err != nil {
			continue
		}
		p.Total++
		if it.Status == StatusCompleted {
			p.Completed++
		}
	}
	return p
}

func (b *Board) Release(id string) (*Release, error) {
	for _, r := range b.Releases {
		if strings.EqualFold(r.ID, id) {
			return r, nil
		}
	}
	return nil, &NotFoundError{Kind: "release", ID: id, Team: b.Team}
}

func (b *Board) AddRelease(r *Release, now time.Time) error {
	if b.hasID(r.ID) {
		return fmt.Errorf("%w: %s already exists on board %s", ErrDuplicateID, r.ID, b.Team)
	}
	b.Releases = append(b.Releases, r)
	b.Touch(now)
	return nil
}

// AssignedTo lists the items whose release assignment points at releaseID.
func (b *Board) AssignedTo(releaseID string) []*Item {
	var items []*Item
	for _, it := range b.Items {
		if it.Release != nil && it.Release.ReleaseID == releaseID {
			items = append(items, it)
		}
	}
	return items
}

// SetCollapsed records the UI expanded/collapsed flag of an item.
func (b *Board) SetCollapsed(itemID string, collapsed bool, now time.Time) error {
	it, err := b.Item(itemID)
	if err != nil {
		return err
	}
	if collapsed {
		if b.Collapsed == nil {
			b.Collapsed = make(map[string]bool)
		}
		b.Collapsed[it.ID] = true
	} else {
		delete(b.Collapsed, it.ID)
	}
	b.Touch(now)
	return nil
}

// Validate checks the structural invariants: unique ids on the board, unique
// subitem ids per parent, and at most one epic per item.
func (b *Board) Validate() error {
	seen := make(map[string]bool)
	for _, it := range b.Items {
		key := strings.ToUpper(it.ID)
		if seen[key] {
			return fmt.Errorf("%w: item %s appears twice", ErrDuplicateID, it.ID)
		}
		seen[key] = true
		subs := make(map[string]bool, len(it.Subitems))
		for _, s := range it.Subitems {
			if subs[s.ID] {
				return fmt.Errorf("%w: subitem %s appears twice", ErrDuplicateID, s.ID)
			}
			subs[s.ID] = true
		}
	}
	owner := make(map[string]string)
	for _, e := range b.Epics {
		for _, id := range e.ItemIDs {
			if prev, ok := owner[id]; ok && prev != e.ID {
				return fmt.Errorf("%w: %s is in both %s and %s", ErrItemAlreadyInEpic, id, prev, e.ID)
			}
			owner[id] = e.ID
		}
	}
	return nil
}

// ItemFilter narrows ListItems. Zero values match everything.
type ItemFilter struct {
	Status   Status
	Priority Priority
	Tag      string
	EpicID   string
	Release  string
	Open     bool
}

func (f ItemFilter) match(it *Item) bool {
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.Open && it.IsTerminal() {
		return false
	}
	if f.Priority != "" && it.Priority != f.Priority {
		return false
	}
	if f.Tag != "" && !it.HasTag(f.Tag) {
		return false
	}
	if f.EpicID != "" && !strings.EqualFold(it.EpicID, f.EpicID) {
		return false
	}
	if f.Release != "" && (it.Release == nil || !strings.EqualFold(it.Release.ReleaseID, f.Release)) {
		return false
	}
	return true
}

// ListItems returns the matching items ordered by priority, then by when
// they were added.
func (b *Board) ListItems(f ItemFilter) []*Item {
	var out []*Item
	for _, it := range b.Items {
		if f.match(it) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

func (b *Board) MarshalJSON() ([]byte, error) {
	type alias Board
	data, err := json.Marshal((*alias)(b))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, b.Extra)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	type alias Board
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = Board(a)
	b.Extra = extractExtra(data, a)
	if b.Items == nil {
		b.Items = []*Item{}
	}
	if b.Epics == nil {
		b.Epics = []*Epic{}
	}
	if b.Releases == nil {
		b.Releases = []*Release{}
	}
	return nil
}
