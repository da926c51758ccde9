package extraction

import (
	"slices"
	"time"
)

// UnknownSender is the sender label used when a message carries none.
const UnknownSender = "Unknown"

// Message is one inbound chat message as buffered in a session.
type Message struct {
	Text       string     `json:"text"`
	Sender     string     `json:"sender"`
	SourceChat string     `json:"source_chat,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	// Ordinal is the message's position within its session. It is assigned by
	// the session store and referenced by task candidates.
	Ordinal int `json:"ordinal"`
}

// SenderLabel returns the sender or UnknownSender when empty.
func (m Message) SenderLabel() string {
	if m.Sender == "" {
		return UnknownSender
	}
	return m.Sender
}

// Category groups keyword terms.
type Category string

const (
	CategoryProject  Category = "project"
	CategoryDeadline Category = "deadline"
	CategoryPriority Category = "priority"
)

// Categories lists keyword categories in a stable order.
var Categories = []Category{CategoryProject, CategoryDeadline, CategoryPriority}

// DateKind tells whether a date was phrased as a deadline.
type DateKind string

const (
	DateKindDeadline DateKind = "deadline"
	DateKindDate     DateKind = "date"
)

// DateCandidate is a date found in a message.
type DateCandidate struct {
	Date        time.Time `json:"date"`
	Kind        DateKind  `json:"kind"`
	SourceIndex int       `json:"source_index"`
}

// ISODate returns the date formatted as YYYY-MM-DD.
func (d DateCandidate) ISODate() string {
	return d.Date.Format(time.DateOnly)
}

// PriorityLevel is one of high, medium or low.
type PriorityLevel string

const (
	PriorityHigh   PriorityLevel = "high"
	PriorityMedium PriorityLevel = "medium"
	PriorityLow    PriorityLevel = "low"
)

// PriorityLevels lists levels in tie-break precedence order.
var PriorityLevels = []PriorityLevel{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriorityLevel returns the level for s and whether it is known.
func ParsePriorityLevel(s string) (PriorityLevel, bool) {
	switch PriorityLevel(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return PriorityLevel(s), true
	}
	return "", false
}

// Priority is the scored priority signal.
type Priority struct {
	Level      PriorityLevel `json:"level"`
	Confidence float64       `json:"confidence"`
}

// ProjectHints is the scored project signal.
type ProjectHints struct {
	Keywords   []string `json:"keywords"`
	Confidence float64  `json:"confidence"`
}

// Context is the structured signal set extracted from messages.
type Context struct {
	Keywords     map[Category][]string `json:"keywords"`
	Mentions     []string              `json:"mentions"`
	Dates        []DateCandidate       `json:"dates"`
	ProjectHints ProjectHints          `json:"project_hints"`
	Priority     Priority              `json:"priority"`
}

// EmptyContext returns a context with no signals.
func EmptyContext() Context {
	return Context{
		Keywords:     map[Category][]string{},
		Mentions:     []string{},
		Dates:        []DateCandidate{},
		ProjectHints: ProjectHints{Keywords: []string{}},
		Priority:     Priority{Level: PriorityHigh},
	}
}

// Deadlines returns the date candidates phrased as deadlines.
func (c Context) Deadlines() []DateCandidate {
	var out []DateCandidate
	for _, d := range c.Dates {
		if d.Kind == DateKindDeadline {
			out = append(out, d)
		}
	}
	return out
}

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	out := Context{
		Keywords:     make(map[Category][]string, len(c.Keywords)),
		Mentions:     slices.Clone(c.Mentions),
		Dates:        slices.Clone(c.Dates),
		ProjectHints: ProjectHints{Keywords: slices.Clone(c.ProjectHints.Keywords), Confidence: c.ProjectHints.Confidence},
		Priority:     c.Priority,
	}
	for k, v := range c.Keywords {
		out.Keywords[k] = slices.Clone(v)
	}
	return out
}
