package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
)

const systemPrompt = `You are a task-extraction assistant for a team work tracker.
You read forwarded chat messages and turn the actionable ones into tasks.

Determine the project each task belongs to from:
- project mentions, participant names and terminology in the messages
- the destinations listed below, their descriptions, lists and recent items

When you cannot tell which destination fits, give a low confidence and say why
in "reasoning". Never invent destination ids: use only ids listed below.

Respond with a single JSON object and nothing else, using this schema:
{
  "tasks": [
    {
      "name": "short imperative title",
      "description": "what needs to be done",
      "due_date": "YYYY-MM-DD",
      "members": ["@username"],
      "labels": ["#label"],
      "priority": "high|medium|low",
      "recommended_board": {"id": "destination id", "confidence": 0.0, "reasoning": "why"},
      "recommended_list": "list name",
      "source_messages": [0]
    }
  ],
  "context_analysis": {
    "chat_type": "project|general|unknown",
    "project_mentions": ["name"],
    "key_participants": ["@username"],
    "confidence": 0.0
  },
  "suggestions": {
    "create_checklists": false,
    "needs_attachments": false,
    "additional_actions": []
  }
}

"source_messages" holds the #ordinals of the messages a task came from.
Confidence values are between 0 and 1. Return an empty "tasks" array when
nothing in the messages is actionable.

Destinations:
%s`

// Prompt is a rendered oracle request.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders req into a system prompt carrying the response schema
// and destination snapshot, and a user prompt carrying the transcript and
// the extracted context.
func BuildPrompt(req analysis.OracleRequest) (Prompt, error) {
	snapshot, err := json.MarshalIndent(req.Snapshot, "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("encode snapshot: %w", err)
	}
	xctx, err := json.Marshal(req.Context)
	if err != nil {
		return Prompt{}, fmt.Errorf("encode context: %w", err)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Messages to analyze (%d):\n", req.MessageCount)
	user.WriteString(req.Transcript)
	user.WriteString("\n\nSignals extracted so far:\n")
	user.Write(xctx)

	return Prompt{
		System: fmt.Sprintf(systemPrompt, snapshot),
		User:   user.String(),
	}, nil
}
