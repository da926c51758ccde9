package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

// Validation failures that make the whole response unusable.
var (
	ErrNotJSONObject      = errors.New("response is not a JSON object")
	ErrMissingTasks       = errors.New(`response has no "tasks" array`)
	ErrMissingContextInfo = errors.New(`response has no "context_analysis" object`)
	ErrNoMessages         = errors.New("session has no buffered messages")
)

// Per-candidate drop reasons.
const (
	dropUndecodable = "undecodable"
	dropEmptyName   = "empty name"
	dropNoSources   = "no valid source messages"
)

// fencePattern matches a JSON object inside a markdown code block.
var fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(\\{.*\\})\\s*```$")

// rawResponse is the oracle's top-level shape. Pointers distinguish a missing
// field from an empty one.
type rawResponse struct {
	Tasks           *[]json.RawMessage `json:"tasks"`
	ContextAnalysis *json.RawMessage   `json:"context_analysis"`
	Suggestions     json.RawMessage    `json:"suggestions"`
}

type rawTask struct {
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	DueDate          string            `json:"due_date"`
	Members          []string          `json:"members"`
	Labels           []string          `json:"labels"`
	Priority         string            `json:"priority"`
	RecommendedBoard rawRecommendation `json:"recommended_board"`
	RecommendedList  string            `json:"recommended_list"`
	SourceMessages   []int             `json:"source_messages"`
}

type rawRecommendation struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// anomaly is a field the validator repaired rather than trusted.
type anomaly struct {
	Task  int
	Field string
	Got   string
	Fixed string
}

// validated is a response that passed the schema boundary.
type validated struct {
	Tasks           []task.Candidate
	Dropped         []task.Drop
	Anomalies       []anomaly
	Summary         task.Summary
	Recommendations task.Recommendations
}

// validateResponse decodes raw into candidates. messageCount bounds source
// indices; fallback is used for candidates with no recognizable priority.
func validateResponse(raw []byte, messageCount int, fallback extraction.PriorityLevel) (*validated, error) {
	body := unwrapJSON(raw)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrNotJSONObject
	}

	var resp rawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Tasks == nil {
		return nil, ErrMissingTasks
	}
	if resp.ContextAnalysis == nil || !isObject(*resp.ContextAnalysis) {
		return nil, ErrMissingContextInfo
	}

	out := &validated{Tasks: []task.Candidate{}}

	var summary task.Summary
	if err := json.Unmarshal(*resp.ContextAnalysis, &summary); err != nil {
		return nil, fmt.Errorf("decode context_analysis: %w", err)
	}
	if c, fixed := clamp01(summary.Confidence); fixed {
		out.Anomalies = append(out.Anomalies, anomaly{Task: -1, Field: "context_analysis.confidence", Got: ftoa(summary.Confidence), Fixed: ftoa(c)})
		summary.Confidence = c
	}
	out.Summary = summary

	if isObject(resp.Suggestions) {
		// Suggestions are advisory; a shape mismatch only loses them.
		_ = json.Unmarshal(resp.Suggestions, &out.Recommendations)
	}

	for i, item := range *resp.Tasks {
		var rt rawTask
		if err := json.Unmarshal(item, &rt); err != nil {
			out.Dropped = append(out.Dropped, task.Drop{Index: i, Reason: dropUndecodable + ": " + err.Error()})
			continue
		}
		c, drop, anomalies := normalizeTask(i, rt, messageCount, fallback)
		out.Anomalies = append(out.Anomalies, anomalies...)
		if drop != "" {
			out.Dropped = append(out.Dropped, task.Drop{Index: i, Name: c.Name, Reason: drop})
			continue
		}
		out.Tasks = append(out.Tasks, c)
	}
	return out, nil
}

func normalizeTask(i int, rt rawTask, messageCount int, fallback extraction.PriorityLevel) (task.Candidate, string, []anomaly) {
	var anomalies []anomaly
	c := task.Candidate{
		Name:        strings.TrimSpace(rt.Name),
		Description: strings.TrimSpace(rt.Description),
		Members:     normalizeSet(rt.Members, "@"),
		Labels:      normalizeSet(rt.Labels, "#"),
		Recommended: task.Recommendation{
			DestinationID: strings.TrimSpace(rt.RecommendedBoard.ID),
			Confidence:    rt.RecommendedBoard.Confidence,
			Reasoning:     rt.RecommendedBoard.Reasoning,
		},
		RecommendedSubList: strings.TrimSpace(rt.RecommendedList),
	}
	if c.Name == "" {
		return c, dropEmptyName, nil
	}

	seen := make(map[int]bool, len(rt.SourceMessages))
	for _, idx := range rt.SourceMessages {
		if idx < 0 || idx >= messageCount || seen[idx] {
			continue
		}
		seen[idx] = true
		c.SourceMessages = append(c.SourceMessages, idx)
	}
	if len(c.SourceMessages) < len(rt.SourceMessages) {
		anomalies = append(anomalies, anomaly{Task: i, Field: "source_messages", Got: fmt.Sprint(rt.SourceMessages), Fixed: fmt.Sprint(c.SourceMessages)})
	}
	if len(c.SourceMessages) == 0 {
		return c, dropNoSources, anomalies
	}

	if conf, fixed := clamp01(c.Recommended.Confidence); fixed {
		anomalies = append(anomalies, anomaly{Task: i, Field: "recommended_board.confidence", Got: ftoa(c.Recommended.Confidence), Fixed: ftoa(conf)})
		c.Recommended.Confidence = conf
	}

	if due := strings.TrimSpace(rt.DueDate); due != "" {
		if _, err := time.Parse(task.DateLayout, due); err != nil {
			anomalies = append(anomalies, anomaly{Task: i, Field: "due_date", Got: due})
		} else {
			c.DueDate = due
		}
	}

	if level, ok := extraction.ParsePriorityLevel(strings.ToLower(strings.TrimSpace(rt.Priority))); ok {
		c.Priority = level
	} else {
		c.Priority = fallback
	}

	return c, "", anomalies
}

// clamp01 bounds v to [0,1] and reports whether it had to.
func clamp01(v float64) (float64, bool) {
	switch {
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	}
	return v, false
}

// normalizeSet trims values, strips prefix, drops empties and duplicates
// while keeping first-seen order.
func normalizeSet(in []string, prefix string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimPrefix(strings.TrimSpace(v), prefix)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// unwrapJSON strips surrounding whitespace and a markdown code fence.
func unwrapJSON(raw []byte) []byte {
	body := bytes.TrimSpace(raw)
	if m := fencePattern.FindSubmatch(body); m != nil {
		return m[1]
	}
	return body
}

func isObject(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '{'
}

func ftoa(f float64) string {
	return fmt.Sprintf("%g", f)
}
