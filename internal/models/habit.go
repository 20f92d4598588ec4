package models

import (
	"time"

	"github.com/julianstephens/habitline/internal/constants"
)

// Habit is a single due occurrence. A habit with a nil ParentID is the parent
// that owns cascade deletes and the shared title/description.
type Habit struct {
	ID             string                   `json:"id"`
	ParentID       *string                  `json:"parent_id,omitempty"`
	OwnerID        string                   `json:"user_uid"`
	Title          string                   `json:"title"`
	Description    string                   `json:"description"`
	DueAt          time.Time                `json:"due_date"`
	Timezone       string                   `json:"timezone"` // IANA zone the due date was entered in
	RecurrenceType constants.RecurrenceType `json:"recurrence_type"`
	IsComplete     bool                     `json:"is_complete"`
	CompletedAt    *time.Time               `json:"completed_date,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	// ExpandedThrough is the due instant of the latest materialized occurrence.
	// Only set on parents.
	ExpandedThrough *time.Time `json:"expanded_through,omitempty"`
}

// IsParent reports whether the habit is the root of its lineage.
func (h Habit) IsParent() bool {
	return h.ParentID == nil
}

// RootID returns the id of the parent habit of the lineage.
func (h Habit) RootID() string {
	if h.ParentID == nil {
		return h.ID
	}
	return *h.ParentID
}

// WithCompletion returns a copy of the habit with isComplete/completedAt set
// together. Clearing completion always nils completedAt.
func (h Habit) WithCompletion(complete bool, at time.Time) Habit {
	h.IsComplete = complete
	if complete {
		t := at.UTC()
		h.CompletedAt = &t
	} else {
		h.CompletedAt = nil
	}
	return h
}
