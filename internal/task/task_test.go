package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCandidate_Due(t *testing.T) {
	tests := []struct {
		name   string
		due    string
		want   time.Time
		wantOK bool
	}{
		{name: "unset", due: ""},
		{name: "iso date", due: "2026-10-20", want: time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC), wantOK: true},
		{name: "garbage", due: "next friday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Candidate{DueDate: tt.due}.Due()
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(got))
		})
	}
}

func TestResult_EmptyAndTask(t *testing.T) {
	var nilResult *Result
	assert.True(t, nilResult.Empty())
	_, ok := nilResult.Task(0)
	assert.False(t, ok)

	r := &Result{Tasks: []Candidate{{Name: "Ship"}}}
	assert.False(t, r.Empty())

	c, ok := r.Task(0)
	assert.True(t, ok)
	assert.Equal(t, "Ship", c.Name)

	_, ok = r.Task(1)
	assert.False(t, ok)
	_, ok = r.Task(-1)
	assert.False(t, ok)
}
