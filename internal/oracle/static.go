package oracle

import (
	"context"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
)

// EmptyResponse is a valid analysis with no tasks.
const EmptyResponse = `{"tasks": [], "context_analysis": {"chat_type": "unknown", "confidence": 0}}`

// Static returns a canned response. It backs dry runs and tests.
type Static struct {
	response []byte
}

// NewStatic returns a Static oracle answering with response, or with
// EmptyResponse when response is empty.
func NewStatic(response []byte) *Static {
	if len(response) == 0 {
		response = []byte(EmptyResponse)
	}
	return &Static{response: append([]byte(nil), response...)}
}

// Complete returns the canned response unless ctx is already done.
func (s *Static) Complete(ctx context.Context, _ analysis.OracleRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.response...), nil
}
