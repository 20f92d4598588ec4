package constants

import "time"

// RecurrenceType represents how a parent habit repeats
type RecurrenceType string

const (
	AppName            = "habitline"
	DefaultKeyringUser = "database-connection"
	RedisKeyringUser   = "redis-password"
	DefaultConfigPath  = "~/.config/habitline/habitline.db"
	Version            = "v0.3.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// Store constants
	DefaultStoreTimeout = 5 * time.Second
	MaxOpenConns        = 25
	ConnMaxLifetime     = 5 * time.Minute

	// Recurrence constants
	RecurrenceDaily  RecurrenceType = "daily"
	RecurrenceWeekly RecurrenceType = "weekly"

	// History window length in calendar days (today plus the 6 preceding days)
	HistoryDays = 7

	// Streak batch constants
	StreakJobName       = "streak.daily"
	DefaultStreakCron   = "5 0 * * *"
	StreakLockKeyPrefix = "habitline:streak:"
	StreakLockTTL       = 10 * time.Minute
	StreakMetricsJob    = "habitline_streak"

	// Streak run outcomes recorded in the idempotency ledger
	StreakOutcomeIncremented = "incremented"
	StreakOutcomeReset       = "reset"
)

// UpcomingHorizonDays bounds lazy materialization for the open-ended upcoming view
const UpcomingHorizonDays = 28
