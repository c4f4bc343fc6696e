package utils

import (
	"testing"
	"time"
)

// -----------------------------------------------------------------------------

func TestGetCalendar_SuffixResolution(t *testing.T) {
	cases := []struct {
		symbol string
	}{
		{"AAPL"},    // bare US symbol, xnys default
		{"VOD.L"},   // London
		{"AIR.PA"},  // Paris
		{"7203.T"},  // Tokyo
		{"0700.HK"}, // Hong Kong
	}

	for _, tc := range cases {
		cal := GetCalendar(tc.symbol)
		if cal == nil {
			t.Fatalf("%s: GetCalendar returned nil", tc.symbol)
		}
		if cal.Timezone == nil {
			t.Fatalf("%s: calendar has no timezone", tc.symbol)
		}
	}
}

// -----------------------------------------------------------------------------

func TestTradingCalendar_WeekendIsClosed(t *testing.T) {
	cal := GetCalendar("AAPL")

	// 2025-08-23 is a Saturday, 2025-08-24 a Sunday.
	saturday := time.Date(2025, 8, 23, 12, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)

	if cal.IsTradingDay(saturday) {
		t.Error("Saturday should not be a trading day")
	}
	if cal.IsTradingDay(sunday) {
		t.Error("Sunday should not be a trading day")
	}
	if cal.IsOpenOnMinute(saturday) {
		t.Error("market should be closed on Saturday")
	}
}

// -----------------------------------------------------------------------------

func TestTradingCalendar_FallbackSessionBounds(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}
	cal := &TradingCalendar{Fallback: true, Timezone: ny}

	// 2025-08-20 is a Wednesday.
	day := func(hour, minute int) time.Time {
		return time.Date(2025, 8, 20, hour, minute, 0, 0, ny)
	}

	if cal.IsOpenOnMinute(day(9, 29)) {
		t.Error("09:29 is pre-open")
	}
	if !cal.IsOpenOnMinute(day(9, 30)) {
		t.Error("09:30 is the opening minute")
	}
	if !cal.IsOpenOnMinute(day(15, 59)) {
		t.Error("15:59 is still in session")
	}
	if cal.IsOpenOnMinute(day(16, 0)) {
		t.Error("16:00 is past the close")
	}
}
