package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/utils"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictCompletionMismatch  ConflictType = "completion_mismatch"
	ConflictInvalidTimezone     ConflictType = "invalid_timezone"
	ConflictInvalidRecurrence   ConflictType = "invalid_recurrence"
	ConflictMissingParent       ConflictType = "missing_parent"
	ConflictDuplicateOccurrence ConflictType = "duplicate_occurrence"
	ConflictExpansionBehind     ConflictType = "expansion_behind"
	ConflictEmptyText           ConflictType = "empty_text"
)

// Conflict represents one inconsistent habit record
type Conflict struct {
	Type        ConflictType
	Description string
	HabitID     string
	ParentID    string // root of the lineage, if known
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// Count returns how many conflicts of type t were found.
func (vr *ValidationResult) Count(t ConflictType) int {
	n := 0
	for _, c := range vr.Conflicts {
		if c.Type == t {
			n++
		}
	}
	return n
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

// Validator checks one owner's habit rows for records the read paths would
// have to skip.
type Validator struct{}

// New creates a new Validator
func New() *Validator {
	return &Validator{}
}

// ValidateHabits checks every row. Conflicts are ordered by habit ID and type.
func (v *Validator) ValidateHabits(habits []models.Habit) ValidationResult {
	var result ValidationResult
	add := func(t ConflictType, h models.Habit, format string, args ...interface{}) {
		parentID := ""
		if h.ParentID != nil {
			parentID = *h.ParentID
		}
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        t,
			Description: fmt.Sprintf("habit %s: ", h.ID) + fmt.Sprintf(format, args...),
			HabitID:     h.ID,
			ParentID:    parentID,
		})
	}

	parents := make(map[string]models.Habit)
	for _, h := range habits {
		if h.IsParent() {
			parents[h.ID] = h
		}
	}

	seen := make(map[string]string)
	for _, h := range habits {
		if h.IsComplete != (h.CompletedAt != nil) {
			add(ConflictCompletionMismatch, h, "completion flag and timestamp disagree")
		}
		if _, err := utils.LoadLocation(h.Timezone); err != nil || h.Timezone == "" || h.Timezone == "Local" {
			add(ConflictInvalidTimezone, h, "invalid timezone %q", h.Timezone)
		}
		if utils.StepDays(h.RecurrenceType) == 0 {
			add(ConflictInvalidRecurrence, h, "invalid recurrence %q", h.RecurrenceType)
		}
		if strings.TrimSpace(h.Title) == "" || strings.TrimSpace(h.Description) == "" {
			add(ConflictEmptyText, h, "title and description are required")
		}
		if h.IsParent() {
			continue
		}

		parent, ok := parents[*h.ParentID]
		if !ok {
			add(ConflictMissingParent, h, "parent %s is missing", *h.ParentID)
			continue
		}
		key := *h.ParentID + "|" + h.DueAt.UTC().String()
		if other, dup := seen[key]; dup {
			add(ConflictDuplicateOccurrence, h, "same due date as occurrence %s", other)
		} else {
			seen[key] = h.ID
		}
		if parent.ExpandedThrough == nil || !h.DueAt.Before(*parent.ExpandedThrough) {
			add(ConflictExpansionBehind, h, "due after the parent's expansion bound")
		}
	}

	sort.SliceStable(result.Conflicts, func(i, j int) bool {
		a, b := result.Conflicts[i], result.Conflicts[j]
		if a.HabitID != b.HabitID {
			return a.HabitID < b.HabitID
		}
		return a.Type < b.Type
	})
	return result
}
