package constants

const (
	// General Settings
	SettingTimezone = "timezone"

	// Default Settings Values
	DefaultTimezone = "Local" // Use system local timezone by default
)
