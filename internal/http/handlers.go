package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIngest buffers one message.
func (s *Server) handleIngest(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	msg, err := s.service.Ingest(c.Request().Context(), c.Param("user"), req.message())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, MessageResponse{Ordinal: msg.Ordinal})
}

// handleAnalyze analyzes the buffered messages.
func (s *Server) handleAnalyze(c echo.Context) error {
	report, err := s.service.Analyze(c.Request().Context(), c.Param("user"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// handleDirect analyzes one message without buffering it.
func (s *Server) handleDirect(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	report, err := s.service.AnalyzeDirect(c.Request().Context(), c.Param("user"), req.message())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// handleCancel drops the user's session state.
func (s *Server) handleCancel(c echo.Context) error {
	if err := s.service.Cancel(c.Request().Context(), c.Param("user")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleChoose commits a task to the destination the user picked.
func (s *Server) handleChoose(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "task index must be a non-negative integer")
	}
	var req ChooseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DestinationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "destination_id is required")
	}

	commit, err := s.service.Choose(c.Request().Context(), c.Param("user"), index, req.DestinationID, req.SubList)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, commit)
}

// handleSession returns the user's session.
func (s *Server) handleSession(c echo.Context) error {
	sess, ok := s.service.Session(c.Request().Context(), c.Param("user"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sess)
}

// handleExtract runs deterministic extraction without any session.
func (s *Server) handleExtract(c echo.Context) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages field is required")
	}
	msgs := make([]extraction.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = m.message()
		msgs[i].Ordinal = i
	}
	return c.JSON(http.StatusOK, ExtractResponse{Context: s.service.ExtractOnly(msgs)})
}
