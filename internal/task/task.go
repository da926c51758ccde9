// Package task defines task candidates and analysis results exchanged between
// the orchestrator, the session store and the resolution engine.
package task

import (
	"time"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
)

// DateLayout is the wire format of due dates.
const DateLayout = time.DateOnly

// Recommendation is the oracle's destination pick for a candidate.
type Recommendation struct {
	DestinationID string  `json:"id"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// Candidate is one actionable task extracted from a transcript. Candidates
// that reach callers have passed validation: Name is non-empty, Confidence is
// within [0,1] and SourceMessages reference existing ordinals.
type Candidate struct {
	Name               string                   `json:"name"`
	Description        string                   `json:"description,omitempty"`
	DueDate            string                   `json:"due_date,omitempty"`
	Members            []string                 `json:"members,omitempty"`
	Labels             []string                 `json:"labels,omitempty"`
	Priority           extraction.PriorityLevel `json:"priority,omitempty"`
	Recommended        Recommendation           `json:"recommended_board"`
	RecommendedSubList string                   `json:"recommended_list,omitempty"`
	SourceMessages     []int                    `json:"source_messages"`
}

// Due parses DueDate. The second result is false when no due date is set.
func (c Candidate) Due() (time.Time, bool) {
	if c.DueDate == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, c.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Summary is the oracle's description of the conversation as a whole.
type Summary struct {
	ChatType        string   `json:"chat_type,omitempty"`
	ProjectMentions []string `json:"project_mentions,omitempty"`
	KeyParticipants []string `json:"key_participants,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// Recommendations are follow-up hints returned alongside the tasks.
type Recommendations struct {
	CreateChecklists  bool     `json:"create_checklists,omitempty"`
	NeedsAttachments  bool     `json:"needs_attachments,omitempty"`
	AdditionalActions []string `json:"additional_actions,omitempty"`
}

// Drop records a candidate removed during validation.
type Drop struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// Result is the validated outcome of one analysis.
type Result struct {
	ID              string          `json:"id"`
	Fingerprint     string          `json:"fingerprint"`
	Tasks           []Candidate     `json:"tasks"`
	Summary         Summary         `json:"context_analysis"`
	Recommendations Recommendations `json:"suggestions"`
	Dropped         []Drop          `json:"dropped,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	// Cached is set when the result was served from the analysis cache.
	Cached bool `json:"cached"`
}

// Empty reports whether the analysis found no task candidates. An empty
// result is a successful analysis, not a failure.
func (r *Result) Empty() bool {
	return r == nil || len(r.Tasks) == 0
}

// Task returns the candidate at index i.
func (r *Result) Task(i int) (Candidate, bool) {
	if r == nil || i < 0 || i >= len(r.Tasks) {
		return Candidate{}, false
	}
	return r.Tasks[i], true
}
