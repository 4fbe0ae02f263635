package domain

import "time"

// Project groups items. Its tasks are regular items carrying
// Origin = OriginProject and SourceID = the project id.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Settings holds the board layout a user configured: which sections
// render, and in what order.
type Settings struct {
	SectionOrder []string        `json:"section_order,omitempty"`
	Hidden       map[string]bool `json:"hidden,omitempty"`
	ShowDone     bool            `json:"show_done"`
}
