package server

import (
	"testing"
	"time"
)

func TestIsDueHourly(t *testing.T) {
	now := time.Now()
	if !isDue("@hourly", nil, now) {
		t.Fatal("never-fired hourly schedule must be due")
	}
	recent := now.Add(-10 * time.Minute)
	if isDue("@hourly", &recent, now) {
		t.Fatal("hourly schedule fired 10m ago must not be due")
	}
	old := now.Add(-2 * time.Hour)
	if !isDue("@hourly", &old, now) {
		t.Fatal("hourly schedule fired 2h ago must be due")
	}
}

func TestIsDueCronExpression(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)
	// Every 15 minutes; last fired 20 minutes ago.
	last := now.Add(-20 * time.Minute)
	if !isDue("*/15 * * * *", &last, now) {
		t.Fatal("15-minute schedule fired 20m ago must be due")
	}
	justFired := now.Add(-time.Minute)
	if isDue("0 0 * * *", &justFired, now) {
		t.Fatal("midnight schedule must not be due at 12:30")
	}
}

func TestIsDueInvalidExprFallsBackToDaily(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Hour)
	if isDue("not a cron", &recent, now) {
		t.Fatal("invalid expression fired 1h ago must not be due under daily fallback")
	}
	old := now.Add(-25 * time.Hour)
	if !isDue("not a cron", &old, now) {
		t.Fatal("invalid expression fired 25h ago must be due under daily fallback")
	}
}
