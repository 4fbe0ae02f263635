package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemOrigin discriminates where an item came from. Workspace items,
// project tasks and meeting follow-ups share one record instead of
// parallel tables.
type ItemOrigin string

const (
	OriginWorkspace ItemOrigin = "workspace"
	OriginProject   ItemOrigin = "project"
	OriginMeeting   ItemOrigin = "meeting"
)

// ItemStatus is the lifecycle state of an item.
type ItemStatus string

const (
	StatusDraft     ItemStatus = "draft"
	StatusReady     ItemStatus = "ready"
	StatusConverted ItemStatus = "converted"
)

// NormalizeStatus maps an empty stored status to ready. Rows written
// before the status column existed carry no value.
func NormalizeStatus(s ItemStatus) ItemStatus {
	if s == "" {
		return StatusReady
	}
	return s
}

// ErrEmptyText rejects items whose text is empty or whitespace-only.
var ErrEmptyText = errors.New("item text must not be empty")

// Item is the flat task record. ParentID links a subtask to its root
// item; ScheduledFor is a YYYY-MM-DD board bucket key, empty means
// unscheduled. Subtasks is populated by BuildHierarchy only and is
// never persisted.
type Item struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id,omitempty"`
	Text             string     `json:"text"`
	OrderIndex       int        `json:"order_index"`
	ParentID         string     `json:"parent_id,omitempty"`
	Status           ItemStatus `json:"status,omitempty"`
	Origin           ItemOrigin `json:"origin,omitempty"`
	ScheduledFor     string     `json:"scheduled_for,omitempty"`
	AIGenerated      bool       `json:"ai_generated,omitempty"`
	IsBreakdown      bool       `json:"is_breakdown,omitempty"`
	EstimatedMinutes int        `json:"estimated_minutes,omitempty"`
	SourceType       string     `json:"source_type,omitempty"`
	SourceID         string     `json:"source_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	Subtasks         []Item     `json:"subtasks,omitempty"`
}

// ValidateText reports whether the text is acceptable for a new item.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// ItemUpdate carries a partial field set for a merge update. Nil
// pointers leave the stored value untouched.
type ItemUpdate struct {
	Text             *string     `json:"text,omitempty"`
	OrderIndex       *int        `json:"order_index,omitempty"`
	ParentID         *string     `json:"parent_id,omitempty"`
	Status           *ItemStatus `json:"status,omitempty"`
	ScheduledFor     *string     `json:"scheduled_for,omitempty"`
	EstimatedMinutes *int        `json:"estimated_minutes,omitempty"`
}

// Apply merges the update into a copy of the item.
func (u ItemUpdate) Apply(it Item) Item {
	if u.Text != nil {
		it.Text = *u.Text
	}
	if u.OrderIndex != nil {
		it.OrderIndex = *u.OrderIndex
	}
	if u.ParentID != nil {
		it.ParentID = *u.ParentID
	}
	if u.Status != nil {
		it.Status = *u.Status
	}
	if u.ScheduledFor != nil {
		it.ScheduledFor = *u.ScheduledFor
	}
	if u.EstimatedMinutes != nil {
		it.EstimatedMinutes = *u.EstimatedMinutes
	}
	return it
}

const placeholderPrefix = "tmp-"

// NewPlaceholderID returns a client-local id for an item whose create
// request has not resolved yet.
func NewPlaceholderID() string {
	return placeholderPrefix + uuid.NewString()
}

// IsPlaceholderID reports whether the id is a client-local placeholder.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// ItemEventType labels lifecycle events pushed to the digest queue.
type ItemEventType string

const (
	ItemCreated   ItemEventType = "item.created"
	ItemDeleted   ItemEventType = "item.deleted"
	ItemScheduled ItemEventType = "item.scheduled"
)

// ItemEvent is an advisory lifecycle fact emitted after a mutation.
type ItemEvent struct {
	Type      ItemEventType `json:"type"`
	ItemID    string        `json:"itemId"`
	Origin    ItemOrigin    `json:"origin,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// ItemEventEnvelope wraps events with the user that caused them.
type ItemEventEnvelope struct {
	UserID string      `json:"userId"`
	Events []ItemEvent `json:"events"`
}
