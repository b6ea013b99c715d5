package domain

import (
	"encoding/json"
	"time"
)

type Epic struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      EpicStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	ItemIDs     []string   `json:"itemIds"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Extra Extra `json:"-"`
}

// EpicProgress is derived from the statuses of the epic's items.
type EpicProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Ratio returns Completed/Total, or 0 for an empty epic.
func (p EpicProgress) Ratio() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

func NewEpic(id, title string, priority Priority, now time.Time) *Epic {
	if priority == "" {
		priority = PriorityMedium
	}
	return &Epic{
		ID:        id,
		Title:     title,
		Status:    EpicPlanning,
		Priority:  priority,
		ItemIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e *Epic) Has(itemID string) bool {
	for _, id := range e.ItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

func (e *Epic) add(itemID string, now time.Time) {
	if e.Has(itemID) {
		return
	}
	e.ItemIDs = append(e.ItemIDs, itemID)
	e.UpdatedAt = now
}

func (e *Epic) remove(itemID string, now time.Time) bool {
	for i, id := range e.ItemIDs {
		if id == itemID {
			e.ItemIDs = append(e.ItemIDs[:i], e.ItemIDs[i+1:]...)
			e.UpdatedAt = now
			return true
		}
	}
	return false
}

func (e *Epic) MarshalJSON() ([]byte, error) {
	type alias Epic
	data, err := json.Marshal((*alias)(e))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, e.Extra)
}

func (e *Epic) UnmarshalJSON(data []byte) error {
	type alias Epic
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Epic(a)
	e.Extra = extractExtra(data, a)
	return nil
}
