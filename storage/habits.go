package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"orbit-api/domain"
)

type habitEntity struct {
	aztables.Entity
	Name       string `json:"Name"`
	OrderIndex int    `json:"OrderIndex"`
	Active     bool   `json:"Active"`
	CreatedAt  string `json:"CreatedAt"`
}

func habitFromEntity(ent habitEntity) domain.Habit {
	created, _ := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	return domain.Habit{
		ID:         ent.RowKey,
		Name:       ent.Name,
		OrderIndex: ent.OrderIndex,
		Active:     ent.Active,
		CreatedAt:  created,
	}
}

// ListHabits retrieves the caller's habits ordered by order index.
// Inactive habits are included only when includeInactive is set.
func (s *Storage) ListHabits(ctx context.Context, userID string, includeInactive bool) ([]domain.Habit, error) {
	filter := "PartitionKey eq '" + escapeODataString(userID) + "'"
	if !includeInactive {
		filter += " and Active eq true"
	}
	pager := s.habits.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	habits := []domain.Habit{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent habitEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			habits = append(habits, habitFromEntity(ent))
		}
	}
	sort.SliceStable(habits, func(i, j int) bool {
		return habits[i].OrderIndex < habits[j].OrderIndex
	})
	return habits, nil
}

// InsertHabit persists a new active habit at the end of the list.
func (s *Storage) InsertHabit(ctx context.Context, userID, name string) (domain.Habit, error) {
	if err := domain.ValidateText(name); err != nil {
		return domain.Habit{}, err
	}
	existing, err := s.ListHabits(ctx, userID, true)
	if err != nil {
		return domain.Habit{}, err
	}
	next := 0
	for _, h := range existing {
		if h.OrderIndex+1 > next {
			next = h.OrderIndex + 1
		}
	}
	habit := domain.Habit{
		ID:         uuid.NewString(),
		Name:       name,
		OrderIndex: next,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	ent := habitEntity{
		Entity:     aztables.Entity{PartitionKey: userID, RowKey: habit.ID},
		Name:       habit.Name,
		OrderIndex: habit.OrderIndex,
		Active:     true,
		CreatedAt:  habit.CreatedAt.Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Habit{}, err
	}
	if _, err := s.habits.AddEntity(ctx, payload, nil); err != nil {
		return domain.Habit{}, err
	}
	return habit, nil
}

type habitUpdateEntity struct {
	aztables.Entity
	Name       *string `json:"Name,omitempty"`
	OrderIndex *int    `json:"OrderIndex,omitempty"`
	Active     *bool   `json:"Active,omitempty"`
}

// HabitUpdate carries a partial habit field set.
type HabitUpdate struct {
	Name       *string `json:"name,omitempty"`
	OrderIndex *int    `json:"order_index,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// UpdateHabit merges the partial field set into the stored habit.
func (s *Storage) UpdateHabit(ctx context.Context, userID, id string, upd HabitUpdate) error {
	if upd.Name != nil {
		if err := domain.ValidateText(*upd.Name); err != nil {
			return err
		}
	}
	ent := habitUpdateEntity{
		Entity:     aztables.Entity{PartitionKey: userID, RowKey: id},
		Name:       upd.Name,
		OrderIndex: upd.OrderIndex,
		Active:     upd.Active,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.habits.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil && isNotFound(err) {
		return ErrNotFound
	}
	return err
}

// DeactivateHabit soft-deletes a habit, keeping its check history.
func (s *Storage) DeactivateHabit(ctx context.Context, userID, id string) error {
	inactive := false
	return s.UpdateHabit(ctx, userID, id, HabitUpdate{Active: &inactive})
}

// DeleteHabit removes the habit row entirely. Check rows are left in
// place; they are keyed by habit id and become unreachable.
func (s *Storage) DeleteHabit(ctx context.Context, userID, id string) error {
	_, err := s.habits.DeleteEntity(ctx, userID, id, nil)
	if err != nil && isNotFound(err) {
		return ErrNotFound
	}
	return err
}

type checkEntity struct {
	aztables.Entity
	HabitID   string `json:"HabitID"`
	Date      string `json:"Date"`
	Checked   bool   `json:"Checked"`
	CheckedAt string `json:"CheckedAt"`
}

func checkRowKey(habitID, date string) string {
	return habitID + "_" + date
}

func checkFromEntity(ent checkEntity) domain.HabitCheck {
	at, _ := time.Parse(time.RFC3339Nano, ent.CheckedAt)
	return domain.HabitCheck{
		HabitID:   ent.HabitID,
		Date:      ent.Date,
		Checked:   ent.Checked,
		CheckedAt: at,
	}
}

// ListChecks retrieves check rows for the user within [start, end],
// inclusive day keys.
func (s *Storage) ListChecks(ctx context.Context, userID, start, end string) ([]domain.HabitCheck, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and Date ge '%s' and Date le '%s'",
		escapeODataString(userID), escapeODataString(start), escapeODataString(end))
	pager := s.checks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	checks := []domain.HabitCheck{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent checkEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			checks = append(checks, checkFromEntity(ent))
		}
	}
	return checks, nil
}

// flipChecked computes the next check state from the stored row. A
// missing row toggles to checked.
func flipChecked(prior *checkEntity) bool {
	if prior == nil {
		return true
	}
	return !prior.Checked
}

// ToggleCheck flips the checked flag for (habit, date), creating the
// row checked on first toggle. Returns the resulting state.
func (s *Storage) ToggleCheck(ctx context.Context, userID, habitID, date string) (domain.HabitCheck, error) {
	rk := checkRowKey(habitID, date)
	var prior *checkEntity
	if ent, err := s.checks.GetEntity(ctx, userID, rk, nil); err == nil {
		var raw checkEntity
		if err := json.Unmarshal(ent.Value, &raw); err != nil {
			return domain.HabitCheck{}, err
		}
		prior = &raw
	} else if !isNotFound(err) {
		return domain.HabitCheck{}, err
	}
	checked := flipChecked(prior)

	check := domain.HabitCheck{
		HabitID:   habitID,
		Date:      date,
		Checked:   checked,
		CheckedAt: time.Now().UTC(),
	}
	ent := checkEntity{
		Entity:    aztables.Entity{PartitionKey: userID, RowKey: rk},
		HabitID:   habitID,
		Date:      date,
		Checked:   checked,
		CheckedAt: check.CheckedAt.Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.HabitCheck{}, err
	}
	if _, err := s.checks.UpsertEntity(ctx, payload, nil); err != nil {
		return domain.HabitCheck{}, err
	}
	return check, nil
}
