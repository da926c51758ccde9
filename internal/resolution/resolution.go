// Package resolution decides, per task candidate, whether to commit it to a
// destination automatically or to ask the user where it belongs.
//
// The engine is pure: it reads a destination snapshot and session hints and
// performs no I/O. Executing an AutoCommit is the caller's job.
package resolution

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/taskbot/internal/destination"
	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/session"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

// AutoCommitThreshold is the exclusive lower bound on recommendation
// confidence for committing without asking. Exactly 0.7 asks.
const AutoCommitThreshold = 0.7

// PinnedConfidence is the confidence assigned to a user-chosen destination.
const PinnedConfidence = 1.0

// Action is the terminal decision for one candidate.
type Action string

const (
	ActionAutoCommit            Action = "auto_commit"
	ActionRequestDisambiguation Action = "request_disambiguation"
)

// AutoCommit targets a destination and sub-list that exist in the snapshot.
type AutoCommit struct {
	DestinationID   string  `json:"destination_id"`
	DestinationName string  `json:"destination_name"`
	SubListID       string  `json:"sub_list_id"`
	SubListName     string  `json:"sub_list_name"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
}

// Suggestion is one destination offered to the user.
type Suggestion struct {
	DestinationID   string `json:"destination_id"`
	DestinationName string `json:"destination_name"`
	SubListID       string `json:"sub_list_id"`
	SubListName     string `json:"sub_list_name"`
	Reason          string `json:"reason"`
}

// RequestDisambiguation hands the candidate back for an explicit choice.
type RequestDisambiguation struct {
	Candidate   task.Candidate `json:"candidate"`
	Suggestions []Suggestion   `json:"suggestions"`
	Reason      string         `json:"reason"`
}

// Decision is the outcome for the candidate at TaskIndex. Exactly one of
// AutoCommit and Disambiguation is set, matching Action.
type Decision struct {
	TaskIndex      int                    `json:"task_index"`
	Action         Action                 `json:"action"`
	AutoCommit     *AutoCommit            `json:"auto_commit,omitempty"`
	Disambiguation *RequestDisambiguation `json:"disambiguation,omitempty"`
}

// Input is the state a decision is made against.
type Input struct {
	Hints    extraction.ProjectHints
	Summary  task.Summary
	Snapshot destination.Snapshot
	// Pin is the user's explicit choice for this candidate. It bypasses the
	// confidence threshold.
	Pin *session.Pin
	// Preferred is the destination remembered for the source chat. It is only
	// ever suggested first, never auto-committed.
	Preferred *session.Pin
}

// Engine resolves task candidates. The zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine {
	return &Engine{}
}

// Resolve decides what to do with one candidate.
func (e *Engine) Resolve(c task.Candidate, in Input) Decision {
	if in.Pin != nil {
		if ac, ok := commitTo(in.Snapshot, in.Pin.DestinationID, in.Pin.SubListID); ok {
			ac.Confidence = PinnedConfidence
			ac.Reason = "chosen by user"
			return Decision{Action: ActionAutoCommit, AutoCommit: &ac}
		}
		return e.disambiguate(c, in, fmt.Sprintf("chosen destination %q is not available", in.Pin.DestinationID))
	}

	rec := c.Recommended
	if rec.Confidence <= AutoCommitThreshold {
		return e.disambiguate(c, in, fmt.Sprintf("confidence %.2f does not exceed %.2f", rec.Confidence, AutoCommitThreshold))
	}
	ac, ok := commitTo(in.Snapshot, rec.DestinationID, c.RecommendedSubList)
	if !ok {
		return e.disambiguate(c, in, fmt.Sprintf("recommended destination %q is not available", rec.DestinationID))
	}
	ac.Confidence = rec.Confidence
	ac.Reason = rec.Reasoning
	if ac.Reason == "" {
		ac.Reason = "recommended"
	}
	return Decision{Action: ActionAutoCommit, AutoCommit: &ac}
}

// ResolveAll resolves every candidate of result. pins maps task indices to
// user choices; other Input fields are shared.
func (e *Engine) ResolveAll(result *task.Result, in Input, pins map[int]session.Pin) []Decision {
	if result == nil {
		return nil
	}
	out := make([]Decision, len(result.Tasks))
	for i, c := range result.Tasks {
		taskIn := in
		taskIn.Pin = nil
		if p, ok := pins[i]; ok {
			taskIn.Pin = &p
		}
		d := e.Resolve(c, taskIn)
		d.TaskIndex = i
		out[i] = d
	}
	return out
}

func (e *Engine) disambiguate(c task.Candidate, in Input, reason string) Decision {
	return Decision{
		Action: ActionRequestDisambiguation,
		Disambiguation: &RequestDisambiguation{
			Candidate:   c,
			Suggestions: Suggest(c, in),
			Reason:      reason,
		},
	}
}

// Suggest orders the snapshot's destinations for a user choice: the chat's
// preferred destination, the recommended one, those matching a project hint,
// then the rest in snapshot order. Destinations without sub-lists are left
// out because nothing can be committed into them.
func Suggest(c task.Candidate, in Input) []Suggestion {
	out := make([]Suggestion, 0, len(in.Snapshot.Destinations))
	seen := make(map[string]bool, len(in.Snapshot.Destinations))

	add := func(d destination.Destination, subList, reason string) {
		if seen[d.ID] {
			return
		}
		sl, err := d.ResolveSubList(subList)
		if err != nil {
			return
		}
		seen[d.ID] = true
		out = append(out, Suggestion{
			DestinationID:   d.ID,
			DestinationName: d.Name,
			SubListID:       sl.ID,
			SubListName:     sl.Name,
			Reason:          reason,
		})
	}

	if in.Preferred != nil {
		if d, ok := in.Snapshot.Find(in.Preferred.DestinationID); ok {
			add(d, in.Preferred.SubListID, "used last time for this chat")
		}
	}
	if d, ok := in.Snapshot.Find(c.Recommended.DestinationID); ok {
		reason := "recommended"
		if c.Recommended.Reasoning != "" {
			reason = "recommended: " + c.Recommended.Reasoning
		}
		add(d, c.RecommendedSubList, reason)
	}

	keywords := hintKeywords(in)
	for _, d := range in.Snapshot.Destinations {
		if kw, ok := matchKeyword(d, keywords); ok {
			add(d, "", fmt.Sprintf("matches %q", kw))
		}
	}
	for _, d := range in.Snapshot.Destinations {
		add(d, "", "available")
	}
	return out
}

func commitTo(snap destination.Snapshot, destinationID, subList string) (AutoCommit, bool) {
	d, ok := snap.Find(destinationID)
	if !ok {
		return AutoCommit{}, false
	}
	sl, err := d.ResolveSubList(subList)
	if err != nil {
		return AutoCommit{}, false
	}
	return AutoCommit{
		DestinationID:   d.ID,
		DestinationName: d.Name,
		SubListID:       sl.ID,
		SubListName:     sl.Name,
	}, true
}

// hintKeywords collects lowercase project keywords from the extracted hints
// and the oracle's project mentions, deduplicated in order.
func hintKeywords(in Input) []string {
	var out []string
	seen := make(map[string]bool)
	for _, group := range [][]string{in.Hints.Keywords, in.Summary.ProjectMentions} {
		for _, kw := range group {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

func matchKeyword(d destination.Destination, keywords []string) (string, bool) {
	name := strings.ToLower(d.Name)
	desc := strings.ToLower(d.Description)
	for _, kw := range keywords {
		if strings.Contains(name, kw) || strings.Contains(desc, kw) {
			return kw, true
		}
		for _, l := range d.Labels {
			if strings.EqualFold(l, kw) {
				return kw, true
			}
		}
	}
	return "", false
}
