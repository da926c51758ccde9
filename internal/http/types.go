package http

import (
	"time"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/pipeline"
	"github.com/fyrsmithlabs/taskbot/internal/session"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// MessageRequest is one inbound message.
type MessageRequest struct {
	Text       string     `json:"text"`
	Sender     string     `json:"sender,omitempty"`
	SourceChat string     `json:"source_chat,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

func (r MessageRequest) message() extraction.Message {
	return extraction.Message{
		Text:       r.Text,
		Sender:     r.Sender,
		SourceChat: r.SourceChat,
		Timestamp:  r.Timestamp,
	}
}

// MessageResponse acknowledges a buffered message.
type MessageResponse struct {
	Ordinal int `json:"ordinal"`
}

// ExtractRequest is the request body for POST /api/v1/extract.
type ExtractRequest struct {
	Messages []MessageRequest `json:"messages"`
}

// ExtractResponse carries the deterministic signals of the messages.
type ExtractResponse struct {
	Context extraction.Context `json:"context"`
}

// ChooseRequest is the request body for the task destination endpoint.
type ChooseRequest struct {
	DestinationID string `json:"destination_id"`
	SubList       string `json:"sub_list,omitempty"`
}

// AnalyzeResponse wraps a pipeline report.
type AnalyzeResponse = pipeline.Report

// ChooseResponse wraps the commit of a chosen task.
type ChooseResponse = pipeline.Commit

// SessionResponse is the response body for GET .../session.
type SessionResponse = session.Session

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	// Kind is the analysis error kind when the failure came from an analysis.
	Kind string `json:"kind,omitempty"`
}
