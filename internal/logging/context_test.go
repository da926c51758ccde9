package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"numeric", "123456789", "123456789"},
		{"unicode", "Команда проекта", "Команда проекта"},
		{"empty", "", ""},
		{"control chars", "a\nb", ""},
		{"too long", strings.Repeat("x", maxIDLen+1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			assert.Equal(t, tt.want, UserIDFromContext(WithUserID(ctx, tt.id)))
			assert.Equal(t, tt.want, ChatFromContext(WithChat(ctx, tt.id)))
			assert.Equal(t, tt.want, RequestIDFromContext(WithRequestID(ctx, tt.id)))
		})
	}
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}
