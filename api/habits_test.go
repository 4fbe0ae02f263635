package api

import (
	"net/http"
	"testing"
	"time"

	"orbit-api/domain"
)

func TestGetHabitsActiveOnly(t *testing.T) {
	store := &mockStore{habits: []domain.Habit{
		{ID: "h1", Name: "run", Active: true},
		{ID: "h2", Name: "read", Active: false},
	}}
	c, rec := newTestContext(http.MethodGet, "/api/habits", "")

	if err := getHabits(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var habits []domain.Habit
	decodeEnvelope(t, rec, &habits)
	if len(habits) != 1 || habits[0].ID != "h1" {
		t.Fatalf("expected only active habits: %#v", habits)
	}

	c2, rec2 := newTestContext(http.MethodGet, "/api/habits?all=1", "")
	if err := getHabits(store, mockAuth{})(c2); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var all []domain.Habit
	decodeEnvelope(t, rec2, &all)
	if len(all) != 2 {
		t.Fatalf("expected all habits with all=1: %#v", all)
	}
}

func TestDeleteHabitSoftByDefault(t *testing.T) {
	store := &mockStore{}
	c, rec := newTestContext(http.MethodDelete, "/api/habits/h1", "")
	c.SetParamNames("id")
	c.SetParamValues("h1")

	if err := deleteHabit(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if len(store.lastSoft) != 1 || len(store.lastHard) != 0 {
		t.Fatalf("expected soft delete, got soft=%v hard=%v", store.lastSoft, store.lastHard)
	}

	c2, _ := newTestContext(http.MethodDelete, "/api/habits/h1?hard=true", "")
	c2.SetParamNames("id")
	c2.SetParamValues("h1")
	if err := deleteHabit(store, mockAuth{})(c2); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(store.lastHard) != 1 {
		t.Fatalf("expected hard delete with hard=true, got %v", store.lastHard)
	}
}

func TestGetChecksValidatesRange(t *testing.T) {
	store := &mockStore{}
	c, rec := newTestContext(http.MethodGet, "/api/habits/checks?start=2026-13-99&end=2026-03-01", "")

	if err := getChecks(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}

	c2, rec2 := newTestContext(http.MethodGet, "/api/habits/checks?start=2026-02-01&end=2026-03-01", "")
	if err := getChecks(store, mockAuth{})(c2); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec2.Code)
	}
	if store.lastStart != "2026-02-01" || store.lastEnd != "2026-03-01" {
		t.Fatalf("range not forwarded: %s..%s", store.lastStart, store.lastEnd)
	}
}

func TestPostCheckDefaultsToToday(t *testing.T) {
	store := &mockStore{}
	c, rec := newTestContext(http.MethodPost, "/api/habits/h1/checks", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("h1")

	if err := postCheck(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	today := domain.DayKey(time.Now().UTC())
	if store.lastToggle != [2]string{"h1", today} {
		t.Fatalf("toggle = %v, want [h1 %s]", store.lastToggle, today)
	}
}

func TestPostCheckRejectsBadDate(t *testing.T) {
	store := &mockStore{}
	c, rec := newTestContext(http.MethodPost, "/api/habits/h1/checks", `{"date":"03/02/2026"}`)
	c.SetParamNames("id")
	c.SetParamValues("h1")

	if err := postCheck(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestGetHabitStats(t *testing.T) {
	today := domain.DayKey(time.Now().UTC())
	yesterday := domain.DayKey(time.Now().UTC().AddDate(0, 0, -1))
	store := &mockStore{
		habits: []domain.Habit{{ID: "h1", Name: "run", Active: true}},
		checks: []domain.HabitCheck{
			{HabitID: "h1", Date: today, Checked: true},
			{HabitID: "h1", Date: yesterday, Checked: true},
		},
	}
	c, rec := newTestContext(http.MethodGet, "/api/habits/stats", "")

	if err := getHabitStats(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var stats domain.HabitStats
	decodeEnvelope(t, rec, &stats)
	if stats.TodayDone != 1 || stats.TodayTotal != 1 {
		t.Fatalf("today = %d/%d", stats.TodayDone, stats.TodayTotal)
	}
	if stats.Streaks["h1"] != 2 {
		t.Fatalf("streak = %d, want 2", stats.Streaks["h1"])
	}
	if len(stats.Top) != 1 || stats.Top[0].Habit.ID != "h1" {
		t.Fatalf("top streaks = %#v", stats.Top)
	}
	// The stats query covers the full lookback window.
	if store.lastEnd != today {
		t.Fatalf("check range end = %s, want %s", store.lastEnd, today)
	}
}
