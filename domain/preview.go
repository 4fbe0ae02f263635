package domain

// CapturePreview is the structured result of organizing a captured
// note. Each section is optional; absent sections marshal away.
type CapturePreview struct {
	Summary   string         `json:"summary,omitempty"`
	Keywords  []string       `json:"keywords,omitempty"`
	Companies []string       `json:"companies,omitempty"`
	Skills    []string       `json:"skills,omitempty"`
	Research  []ResearchNote `json:"research,omitempty"`
	FollowUps []FollowUp     `json:"follow_ups,omitempty"`
	Memories  []Memory       `json:"memories,omitempty"`
}

// ResearchNote is a topic the assistant suggests looking into.
type ResearchNote struct {
	Topic  string `json:"topic"`
	Detail string `json:"detail,omitempty"`
}

// FollowUp is a suggested task extracted from the note.
type FollowUp struct {
	Text    string `json:"text"`
	DueDate string `json:"due_date,omitempty"`
}

// Memory is a fact about a person or event worth keeping.
type Memory struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// Empty reports whether no section carries content.
func (p CapturePreview) Empty() bool {
	return p.Summary == "" &&
		len(p.Keywords) == 0 &&
		len(p.Companies) == 0 &&
		len(p.Skills) == 0 &&
		len(p.Research) == 0 &&
		len(p.FollowUps) == 0 &&
		len(p.Memories) == 0
}
