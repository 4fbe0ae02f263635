package domain

import (
	"sort"
	"time"
)

// DayFormat is the calendar bucket key layout used everywhere a date
// crosses the wire.
const DayFormat = "2006-01-02"

// maxStreakLookback bounds the walk so a fully checked history cannot
// loop forever.
const maxStreakLookback = 365

// CheckLookup answers whether a habit was checked on a given day key.
type CheckLookup func(habitID, day string) bool

// DayKey formats a time as a calendar bucket key.
func DayKey(t time.Time) string {
	return t.Format(DayFormat)
}

// LookupFromChecks builds a CheckLookup over a batch of check rows.
func LookupFromChecks(checks []HabitCheck) CheckLookup {
	m := make(map[string]bool, len(checks))
	for _, c := range checks {
		if c.Checked {
			m[c.HabitID+"|"+c.Date] = true
		}
	}
	return func(habitID, day string) bool {
		return m[habitID+"|"+day]
	}
}

// StreakForHabit counts consecutive checked days walking backward from
// today. An unchecked today yields 0 regardless of prior history.
func StreakForHabit(habitID string, today time.Time, checked CheckLookup) int {
	streak := 0
	day := today
	for i := 0; i < maxStreakLookback; i++ {
		if !checked(habitID, DayKey(day)) {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// StreakEndingYesterday counts the streak as of yesterday, so a UI can
// show "kept through yesterday" while today is still undecided.
func StreakEndingYesterday(habitID string, today time.Time, checked CheckLookup) int {
	return StreakForHabit(habitID, today.AddDate(0, 0, -1), checked)
}

// TodayCompletion returns how many of the habits are checked today and
// the total habit count.
func TodayCompletion(habits []Habit, today time.Time, checked CheckLookup) (done, total int) {
	day := DayKey(today)
	for _, h := range habits {
		if checked(h.ID, day) {
			done++
		}
	}
	return done, len(habits)
}

// WeekCompletion returns checked-day counts over the trailing seven
// days including today. Total is habits x 7.
func WeekCompletion(habits []Habit, today time.Time, checked CheckLookup) (done, total int) {
	for offset := 0; offset < 7; offset++ {
		day := DayKey(today.AddDate(0, 0, -offset))
		for _, h := range habits {
			if checked(h.ID, day) {
				done++
			}
		}
	}
	return done, len(habits) * 7
}

// HabitStreak pairs a habit with its current streak length.
type HabitStreak struct {
	Habit  Habit `json:"habit"`
	Streak int   `json:"streak"`
}

// TopStreaks returns up to n habits ordered by streak length
// descending, ties broken by input order, habits with a zero streak
// excluded.
func TopStreaks(habits []Habit, today time.Time, checked CheckLookup, n int) []HabitStreak {
	ranked := make([]HabitStreak, 0, len(habits))
	for _, h := range habits {
		if s := StreakForHabit(h.ID, today, checked); s > 0 {
			ranked = append(ranked, HabitStreak{Habit: h, Streak: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Streak > ranked[j].Streak
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// HabitStats aggregates everything the habits dashboard renders.
type HabitStats struct {
	TodayDone  int            `json:"today_done"`
	TodayTotal int            `json:"today_total"`
	WeekDone   int            `json:"week_done"`
	WeekTotal  int            `json:"week_total"`
	Top        []HabitStreak  `json:"top,omitempty"`
	Streaks    map[string]int `json:"streaks,omitempty"`
}

// ComputeHabitStats evaluates all dashboard aggregates in one pass over
// the lookup.
func ComputeHabitStats(habits []Habit, today time.Time, checked CheckLookup) HabitStats {
	stats := HabitStats{Streaks: make(map[string]int, len(habits))}
	stats.TodayDone, stats.TodayTotal = TodayCompletion(habits, today, checked)
	stats.WeekDone, stats.WeekTotal = WeekCompletion(habits, today, checked)
	for _, h := range habits {
		stats.Streaks[h.ID] = StreakForHabit(h.ID, today, checked)
	}
	stats.Top = TopStreaks(habits, today, checked, 3)
	return stats
}
