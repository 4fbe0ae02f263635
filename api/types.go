package api

import (
	"context"

	"orbit-api/domain"
	"orbit-api/storage"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	ListItems(ctx context.Context, userID string, f storage.ItemFilter) ([]domain.Item, error)
	GetItem(ctx context.Context, userID, id string) (domain.Item, error)
	InsertItem(ctx context.Context, userID string, it domain.Item) (domain.Item, error)
	UpdateItem(ctx context.Context, userID, id string, upd domain.ItemUpdate) (domain.Item, error)
	DeleteItem(ctx context.Context, userID, id string) error
	DeleteAllItems(ctx context.Context, userID string) error

	ListHabits(ctx context.Context, userID string, includeInactive bool) ([]domain.Habit, error)
	InsertHabit(ctx context.Context, userID, name string) (domain.Habit, error)
	UpdateHabit(ctx context.Context, userID, id string, upd storage.HabitUpdate) error
	DeactivateHabit(ctx context.Context, userID, id string) error
	DeleteHabit(ctx context.Context, userID, id string) error
	ListChecks(ctx context.Context, userID, start, end string) ([]domain.HabitCheck, error)
	ToggleCheck(ctx context.Context, userID, habitID, date string) (domain.HabitCheck, error)

	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	InsertProject(ctx context.Context, userID, name, description string) (domain.Project, error)
	UpdateProject(ctx context.Context, userID, id string, upd storage.ProjectUpdate) error
	DeleteProject(ctx context.Context, userID, id string) error

	FetchSettings(ctx context.Context, userID string) (domain.Settings, error)
	SaveSettings(ctx context.Context, userID string, settings domain.Settings) error
}

// EventSink receives advisory lifecycle events.
type EventSink interface {
	EnqueueEvents(ctx context.Context, userID string, events []domain.ItemEvent) error
}

// Authenticator is implemented by types able to extract user IDs from
// headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of retried create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the guarded mutation fails.
	Remove(ctx context.Context, userID, key string) error
}

// Organizer turns captured note text into a structured preview.
type Organizer interface {
	Organize(ctx context.Context, note string) (domain.CapturePreview, error)
}
