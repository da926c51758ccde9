package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/taskbot/internal/destination"
	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/session"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

func testSnapshot() destination.Snapshot {
	return destination.Snapshot{Destinations: []destination.Destination{
		{ID: "b1", Name: "Shop", Description: "online store", SubLists: []destination.SubList{
			{ID: "l1", Name: "To Do"}, {ID: "l2", Name: "Doing"},
		}},
		{ID: "b2", Name: "Marketing", SubLists: []destination.SubList{{ID: "l3", Name: "Ideas"}}},
		{ID: "b3", Name: "Archive"},
		{ID: "b4", Name: "Mobile App", Labels: []string{"ios"}, SubLists: []destination.SubList{{ID: "l4", Name: "Backlog"}}},
	}}
}

func candidate(dest string, confidence float64) task.Candidate {
	return task.Candidate{
		Name:           "Fix checkout",
		Recommended:    task.Recommendation{DestinationID: dest, Confidence: confidence, Reasoning: "mentions payments"},
		SourceMessages: []int{0},
	}
}

func TestResolve_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Action
	}{
		{0, ActionRequestDisambiguation},
		{0.70, ActionRequestDisambiguation},
		{0.7000001, ActionAutoCommit},
		{0.9, ActionAutoCommit},
		{1, ActionAutoCommit},
	}
	for _, tt := range tests {
		d := New().Resolve(candidate("b1", tt.confidence), Input{Snapshot: testSnapshot()})
		assert.Equal(t, tt.want, d.Action, "confidence %v", tt.confidence)
		if tt.want == ActionAutoCommit {
			require.NotNil(t, d.AutoCommit)
			assert.Nil(t, d.Disambiguation)
			assert.Equal(t, tt.confidence, d.AutoCommit.Confidence)
		} else {
			require.NotNil(t, d.Disambiguation)
			assert.Nil(t, d.AutoCommit)
		}
	}
}

func TestResolve_SubListChoice(t *testing.T) {
	c := candidate("b1", 0.9)
	c.RecommendedSubList = "doing"
	d := New().Resolve(c, Input{Snapshot: testSnapshot()})
	require.Equal(t, ActionAutoCommit, d.Action)
	assert.Equal(t, "l2", d.AutoCommit.SubListID)
	assert.Equal(t, "Doing", d.AutoCommit.SubListName)
	assert.Equal(t, "mentions payments", d.AutoCommit.Reason)

	c.RecommendedSubList = "Nowhere"
	d = New().Resolve(c, Input{Snapshot: testSnapshot()})
	assert.Equal(t, "l1", d.AutoCommit.SubListID)
}

func TestResolve_UnknownRecommendation(t *testing.T) {
	d := New().Resolve(candidate("gone", 0.95), Input{Snapshot: testSnapshot()})
	require.Equal(t, ActionRequestDisambiguation, d.Action)
	assert.Contains(t, d.Disambiguation.Reason, "gone")

	d = New().Resolve(candidate("b3", 0.95), Input{Snapshot: testSnapshot()})
	assert.Equal(t, ActionRequestDisambiguation, d.Action, "destination without sub-lists cannot take items")
}

func TestResolve_PinBypassesThreshold(t *testing.T) {
	in := Input{Snapshot: testSnapshot(), Pin: &session.Pin{DestinationID: "b2"}}
	d := New().Resolve(candidate("b1", 0.1), in)

	require.Equal(t, ActionAutoCommit, d.Action)
	assert.Equal(t, "b2", d.AutoCommit.DestinationID)
	assert.Equal(t, "l3", d.AutoCommit.SubListID)
	assert.Equal(t, PinnedConfidence, d.AutoCommit.Confidence)

	in.Pin = &session.Pin{DestinationID: "missing"}
	d = New().Resolve(candidate("b1", 0.95), in)
	assert.Equal(t, ActionRequestDisambiguation, d.Action)
}

func TestSuggest_Order(t *testing.T) {
	in := Input{
		Snapshot:  testSnapshot(),
		Hints:     extraction.ProjectHints{Keywords: []string{"IOS"}},
		Summary:   task.Summary{ProjectMentions: []string{"marketing"}},
		Preferred: &session.Pin{DestinationID: "b4", SubListID: "l4"},
	}
	c := candidate("b1", 0.5)
	c.RecommendedSubList = "Doing"

	got := Suggest(c, in)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.DestinationID
	}
	assert.Equal(t, []string{"b4", "b1", "b2"}, ids)
	assert.Equal(t, "used last time for this chat", got[0].Reason)
	assert.Equal(t, "recommended: mentions payments", got[1].Reason)
	assert.Equal(t, "l2", got[1].SubListID)
	assert.Equal(t, `matches "marketing"`, got[2].Reason)
}

func TestSuggest_HintsBeforeRest(t *testing.T) {
	in := Input{
		Snapshot: testSnapshot(),
		Hints:    extraction.ProjectHints{Keywords: []string{"store"}},
	}
	got := Suggest(candidate("", 0), in)
	require.Len(t, got, 3)
	assert.Equal(t, "b1", got[0].DestinationID)
	assert.Equal(t, `matches "store"`, got[0].Reason)
	assert.Equal(t, "b2", got[1].DestinationID)
	assert.Equal(t, "available", got[1].Reason)
	assert.Equal(t, "b4", got[2].DestinationID)
}

func TestResolveAll(t *testing.T) {
	result := &task.Result{Tasks: []task.Candidate{
		candidate("b1", 0.9),
		candidate("b1", 0.5),
		candidate("b2", 0.2),
	}}
	pins := map[int]session.Pin{2: {DestinationID: "b4"}}

	decisions := New().ResolveAll(result, Input{Snapshot: testSnapshot()}, pins)
	require.Len(t, decisions, 3)
	for i, d := range decisions {
		assert.Equal(t, i, d.TaskIndex)
	}
	assert.Equal(t, ActionAutoCommit, decisions[0].Action)
	assert.Equal(t, ActionRequestDisambiguation, decisions[1].Action)
	assert.Equal(t, ActionAutoCommit, decisions[2].Action)
	assert.Equal(t, "b4", decisions[2].AutoCommit.DestinationID)

	assert.Nil(t, New().ResolveAll(nil, Input{}, nil))
}
