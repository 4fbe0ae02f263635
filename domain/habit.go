package domain

import "time"

// Habit is a named recurring practice. Inactive habits stay in the
// table so their check history survives a soft delete.
type Habit struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OrderIndex int       `json:"order_index"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// HabitCheck is the (habit, day) fact row. Date is a YYYY-MM-DD key;
// toggling flips Checked in place, the row is never versioned.
type HabitCheck struct {
	HabitID   string    `json:"habit_id"`
	Date      string    `json:"date"`
	Checked   bool      `json:"checked"`
	CheckedAt time.Time `json:"checked_at"`
}
