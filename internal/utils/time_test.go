package utils

import (
	"testing"
	"time"
)

func TestLoadLocation(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		wantErr  bool
	}{
		{
			name:     "empty string returns local",
			timezone: "",
			wantErr:  false,
		},
		{
			name:     "Local returns local",
			timezone: "Local",
			wantErr:  false,
		},
		{
			name:     "valid timezone UTC",
			timezone: "UTC",
			wantErr:  false,
		},
		{
			name:     "valid timezone America/New_York",
			timezone: "America/New_York",
			wantErr:  false,
		},
		{
			name:     "valid timezone Europe/London",
			timezone: "Europe/London",
			wantErr:  false,
		},
		{
			name:     "valid timezone Asia/Tokyo",
			timezone: "Asia/Tokyo",
			wantErr:  false,
		},
		{
			name:     "invalid timezone",
			timezone: "Invalid/Timezone",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := LoadLocation(tt.timezone)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadLocation() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && loc == nil {
				t.Errorf("LoadLocation() returned nil location without error")
			}
		})
	}
}

func TestNowInTimezone(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		wantErr  bool
	}{
		{
			name:     "Local timezone",
			timezone: "Local",
			wantErr:  false,
		},
		{
			name:     "UTC timezone",
			timezone: "UTC",
			wantErr:  false,
		},
		{
			name:     "America/New_York timezone",
			timezone: "America/New_York",
			wantErr:  false,
		},
		{
			name:     "invalid timezone",
			timezone: "Invalid/Timezone",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := NowInTimezone(tt.timezone)
			if (err != nil) != tt.wantErr {
				t.Errorf("NowInTimezone() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				// Verify the time is not zero
				if now.IsZero() {
					t.Errorf("NowInTimezone() returned zero time")
				}
				// Verify the location matches
				if tt.timezone == "Local" || tt.timezone == "" {
					if now.Location() != time.Local {
						t.Errorf("NowInTimezone() location = %v, want Local", now.Location())
					}
				} else {
					expectedLoc, _ := time.LoadLocation(tt.timezone)
					if now.Location().String() != expectedLoc.String() {
						t.Errorf("NowInTimezone() location = %v, want %v", now.Location(), expectedLoc)
					}
				}
			}
		})
	}
}

func TestParseDateInLocation(t *testing.T) {
	utc, _ := time.LoadLocation("UTC")
	est, _ := time.LoadLocation("America/New_York")

	tests := []struct {
		name      string
		dateStr   string
		loc       *time.Location
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantErr   bool
	}{
		{
			name:      "valid date in UTC",
			dateStr:   "2026-01-15",
			loc:       utc,
			wantYear:  2026,
			wantMonth: time.January,
			wantDay:   15,
			wantErr:   false,
		},
		{
			name:      "valid date in EST",
			dateStr:   "2025-12-31",
			loc:       est,
			wantYear:  2025,
			wantMonth: time.December,
			wantDay:   31,
			wantErr:   false,
		},
		{
			name:     "invalid format",
			dateStr:  "2026/01/15",
			loc:      utc,
			wantErr:  true,
		},
		{
			name:     "invalid date",
			dateStr:  "2026-13-01",
			loc:      utc,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateInLocation(tt.dateStr, tt.loc)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDateInLocation() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if got.Year() != tt.wantYear {
					t.Errorf("ParseDateInLocation() year = %v, want %v", got.Year(), tt.wantYear)
				}
				if got.Month() != tt.wantMonth {
					t.Errorf("ParseDateInLocation() month = %v, want %v", got.Month(), tt.wantMonth)
				}
				if got.Day() != tt.wantDay {
					t.Errorf("ParseDateInLocation() day = %v, want %v", got.Day(), tt.wantDay)
				}
				if got.Location() != tt.loc {
					t.Errorf("ParseDateInLocation() location = %v, want %v", got.Location(), tt.loc)
				}
				// Should be at midnight
				if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
					t.Errorf("ParseDateInLocation() time = %02d:%02d:%02d, want 00:00:00", got.Hour(), got.Minute(), got.Second())
				}
			}
		})
	}
}

func TestValidateTimezone(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		want     bool
	}{
		{
			name:     "empty string is valid",
			timezone: "",
			want:     true,
		},
		{
			name:     "Local is valid",
			timezone: "Local",
			want:     true,
		},
		{
			name:     "UTC is valid",
			timezone: "UTC",
			want:     true,
		},
		{
			name:     "America/New_York is valid",
			timezone: "America/New_York",
			want:     true,
		},
		{
			name:     "Europe/London is valid",
			timezone: "Europe/London",
			want:     true,
		},
		{
			name:     "Asia/Tokyo is valid",
			timezone: "Asia/Tokyo",
			want:     true,
		},
		{
			name:     "Invalid/Timezone is invalid",
			timezone: "Invalid/Timezone",
			want:     false,
		},
		{
			name:     "random string is invalid",
			timezone: "not-a-timezone",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateTimezone(tt.timezone); got != tt.want {
				t.Errorf("ValidateTimezone() = %v, want %v", got, tt.want)
			}
		})
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load %s: %v", name, err)
	}
	return loc
}

func TestWeekBoundsAcrossDST(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	// DST starts Sunday 2024-03-10 at 02:00 in New York.
	wednesday := time.Date(2024, 3, 13, 12, 0, 0, 0, ny)

	start := StartOfWeek(wednesday, ny)
	wantStart := time.Date(2024, 3, 10, 0, 0, 0, 0, ny)
	if !start.Equal(wantStart) {
		t.Errorf("StartOfWeek() = %v, want %v", start, wantStart)
	}
	if start.UTC().Hour() != 5 {
		t.Errorf("StartOfWeek() UTC hour = %d, want 5 (EST offset)", start.UTC().Hour())
	}

	end := EndOfWeek(wednesday, ny).In(ny)
	if end.Weekday() != time.Saturday || end.Day() != 16 {
		t.Errorf("EndOfWeek() = %v, want Saturday 2024-03-16", end)
	}
	if end.Hour() != 23 || end.Minute() != 59 {
		t.Errorf("EndOfWeek() time = %02d:%02d, want 23:59", end.Hour(), end.Minute())
	}

	span := WeekEndExclusive(wednesday, ny).Sub(start)
	if span != 167*time.Hour {
		t.Errorf("week span = %v, want 167h across spring-forward", span)
	}

	// A Sunday reference is its own week start.
	sunday := time.Date(2024, 3, 10, 8, 0, 0, 0, ny)
	if got := StartOfWeek(sunday, ny); !got.Equal(wantStart) {
		t.Errorf("StartOfWeek(sunday) = %v, want %v", got, wantStart)
	}
}

func TestLastNDays(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	ref := time.Date(2024, 3, 12, 15, 0, 0, 0, ny)

	got := LastNDays(7, ref, ny)
	want := time.Date(2024, 3, 6, 0, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Errorf("LastNDays(7) = %v, want %v", got, want)
	}

	if got := LastNDays(1, ref, ny); !got.Equal(StartOfDay(ref, ny)) {
		t.Errorf("LastNDays(1) = %v, want start of ref day", got)
	}
}

func TestWeekdayLabels(t *testing.T) {
	utc := time.UTC
	wednesday := time.Date(2024, 3, 13, 9, 0, 0, 0, utc)
	want := []string{"Thu", "Fri", "Sat", "Sun", "Mon", "Tue", "Wed"}

	got := WeekdayLabels(wednesday, utc)
	if len(got) != len(want) {
		t.Fatalf("WeekdayLabels() returned %d labels, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("WeekdayLabels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// The label sequence follows the zone's calendar day, not UTC's.
	tokyo := mustLoad(t, "Asia/Tokyo")
	lateUTC := time.Date(2024, 3, 13, 20, 0, 0, 0, utc) // already Thursday in Tokyo
	if last := WeekdayLabels(lateUTC, tokyo)[6]; last != "Thu" {
		t.Errorf("last label in Tokyo = %q, want Thu", last)
	}
}

func TestParseLocalDateTime(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "minute precision",
			value: "2024-03-10T17:00",
			want:  time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC),
		},
		{
			name:  "second precision with space",
			value: "2024-01-15 08:30:15",
			want:  time.Date(2024, 1, 15, 13, 30, 15, 0, time.UTC),
		},
		{
			name:  "bare date is end of day",
			value: "2024-01-15",
			want:  time.Date(2024, 1, 16, 4, 59, 0, 0, time.UTC),
		},
		{
			name:    "time inside spring-forward gap",
			value:   "2024-03-10T02:30",
			wantErr: true,
		},
		{
			name:    "not a date",
			value:   "tomorrow",
			wantErr: true,
		},
		{
			name:    "impossible date",
			value:   "2024-02-30T10:00",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocalDateTime(tt.value, ny)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLocalDateTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseLocalDateTime() = %v, want %v", got.UTC(), tt.want)
			}
		})
	}
}

func TestDayWindow(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	start, end := DayWindow(time.Date(2024, 3, 10, 12, 0, 0, 0, ny), ny)
	if end.Sub(start) != 23*time.Hour {
		t.Errorf("spring-forward day length = %v, want 23h", end.Sub(start))
	}
	start, end = DayWindow(time.Date(2024, 11, 3, 12, 0, 0, 0, ny), ny)
	if end.Sub(start) != 25*time.Hour {
		t.Errorf("fall-back day length = %v, want 25h", end.Sub(start))
	}
	if DayKey(end.Add(-time.Nanosecond), ny) != "2024-11-03" {
		t.Errorf("DayKey() of window end = %s", DayKey(end.Add(-time.Nanosecond), ny))
	}
}
