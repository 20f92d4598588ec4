package models

import "time"

// Streak is the per-user consecutive-day counter. A missing row means the
// streak was never initialized, which is distinct from a zero count.
type Streak struct {
	OwnerID   string    `json:"user_uid"`
	Count     int       `json:"streak"`
	CreatedAt time.Time `json:"created_date"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StreakRun identifies one owner's daily transition. (OwnerID, RunDay) is the
// idempotency key.
type StreakRun struct {
	OwnerID     string
	RunDay      string    // YYYY-MM-DD of the evaluated day in the reference zone
	WindowStart time.Time // inclusive
	WindowEnd   time.Time // exclusive
}

// StreakRunRecord is a row of the streak run ledger.
type StreakRunRecord struct {
	OwnerID   string    `json:"user_uid"`
	RunDay    string    `json:"run_day"`
	Outcome   string    `json:"outcome"`
	Previous  int       `json:"previous"`
	Next      int       `json:"next"`
	CreatedAt time.Time `json:"created_at"`
}
