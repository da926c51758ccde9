package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
)

func TestValidateResponse_SourceIndices(t *testing.T) {
	v, err := validateResponse([]byte(`{"tasks": [
	  {"name": "keep", "source_messages": [2, 0, 2, 9, -1]},
	  {"name": "none left", "source_messages": [5]},
	  {"name": "missing", "source_messages": []}
	], "context_analysis": {}}`), 3, extraction.PriorityMedium)
	require.NoError(t, err)

	require.Len(t, v.Tasks, 1)
	assert.Equal(t, []int{2, 0}, v.Tasks[0].SourceMessages)
	require.Len(t, v.Dropped, 2)
	assert.Equal(t, dropNoSources, v.Dropped[0].Reason)
	assert.Equal(t, "none left", v.Dropped[0].Name)
	assert.Equal(t, 2, v.Dropped[1].Index)
}

func TestValidateResponse_DueDate(t *testing.T) {
	v, err := validateResponse([]byte(`{"tasks": [
	  {"name": "a", "due_date": "2026-12-25", "source_messages": [0]},
	  {"name": "b", "due_date": "25.12.2026", "source_messages": [0]},
	  {"name": "c", "due_date": "2026-02-30", "source_messages": [0]}
	], "context_analysis": {}}`), 1, extraction.PriorityHigh)
	require.NoError(t, err)
	require.Len(t, v.Tasks, 3)

	assert.Equal(t, "2026-12-25", v.Tasks[0].DueDate)
	assert.Empty(t, v.Tasks[1].DueDate)
	assert.Empty(t, v.Tasks[2].DueDate)

	fields := 0
	for _, a := range v.Anomalies {
		if a.Field == "due_date" {
			fields++
		}
	}
	assert.Equal(t, 2, fields)
}

func TestValidateResponse_PriorityFallback(t *testing.T) {
	v, err := validateResponse([]byte(`{"tasks": [
	  {"name": "a", "priority": "LOW", "source_messages": [0]},
	  {"name": "b", "priority": "whenever", "source_messages": [0]},
	  {"name": "c", "source_messages": [0]}
	], "context_analysis": {}}`), 1, extraction.PriorityMedium)
	require.NoError(t, err)

	assert.Equal(t, extraction.PriorityLow, v.Tasks[0].Priority)
	assert.Equal(t, extraction.PriorityMedium, v.Tasks[1].Priority)
	assert.Equal(t, extraction.PriorityMedium, v.Tasks[2].Priority)
}

func TestValidateResponse_UndecodableTask(t *testing.T) {
	v, err := validateResponse([]byte(`{"tasks": ["just a string", {"name": "ok", "source_messages": [0]}],
	  "context_analysis": {"confidence": 0.5}}`), 1, extraction.PriorityHigh)
	require.NoError(t, err)
	require.Len(t, v.Tasks, 1)
	require.Len(t, v.Dropped, 1)
	assert.Contains(t, v.Dropped[0].Reason, dropUndecodable)
}

func TestValidateResponse_LenientSuggestions(t *testing.T) {
	v, err := validateResponse([]byte(`{"tasks": [], "context_analysis": {}, "suggestions": {"create_checklists": "yes"}}`), 1, extraction.PriorityHigh)
	require.NoError(t, err)
	assert.False(t, v.Recommendations.CreateChecklists)
}

func TestValidateResponse_TrimsNames(t *testing.T) {
	v, err := validateResponse([]byte(`{"tasks": [{"name": "   ", "source_messages": [0]}, {"name": "  Fix  ", "source_messages": [0]}],
	  "context_analysis": {}}`), 1, extraction.PriorityHigh)
	require.NoError(t, err)
	require.Len(t, v.Tasks, 1)
	assert.Equal(t, "Fix", v.Tasks[0].Name)
	assert.Equal(t, dropEmptyName, v.Dropped[0].Reason)
}

func TestUnwrapJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(unwrapJSON([]byte("  {\"a\":1}\n"))))
	assert.Equal(t, `{"a":1}`, string(unwrapJSON([]byte("```json\n{\"a\":1}\n```"))))
	assert.Equal(t, `{"a":1}`, string(unwrapJSON([]byte("```\n{\"a\":1}```"))))
	assert.Equal(t, "text", string(unwrapJSON([]byte("text"))))
}
