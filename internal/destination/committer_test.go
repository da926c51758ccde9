package destination

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

func TestNewItem(t *testing.T) {
	c := task.Candidate{Name: "Ship", Description: "v2", DueDate: "2026-11-01", Members: []string{"dev"}}
	a := NewItem("42", c, "shop", "todo", 0.8)
	b := NewItem("42", c, "shop", "todo", 0.8)

	assert.NotEmpty(t, a.IdempotencyKey)
	assert.NotEqual(t, a.IdempotencyKey, b.IdempotencyKey)
	assert.Equal(t, "2026-11-01", a.DueDate)
	assert.Equal(t, []string{"dev"}, a.Members)
	assert.NoError(t, a.Validate())
}

func TestItem_Validate(t *testing.T) {
	err := Item{}.Validate()
	assert.ErrorIs(t, err, ErrUnknownDestination)
	assert.ErrorIs(t, err, ErrUnknownSubList)
}

func TestLogCommitter(t *testing.T) {
	logger := logging.NewTestLogger()
	c := NewLogCommitter(logger.Logger)

	item := NewItem("42", task.Candidate{Name: "Ship"}, "shop", "todo", 1)
	r, err := c.Commit(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "dry-run-"+item.IdempotencyKey, r.ItemID)
	assert.Len(t, c.Committed(), 1)

	logger.AssertLogged(t, zapcore.InfoLevel, "dry-run commit")
	logger.AssertField(t, "dry-run commit", "destination", "shop")

	_, err = c.Commit(context.Background(), Item{})
	assert.Error(t, err)
	assert.Len(t, c.Committed(), 1)
}
