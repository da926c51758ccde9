package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
	"github.com/fyrsmithlabs/taskbot/internal/destination"
	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/pipeline"
	"github.com/fyrsmithlabs/taskbot/internal/session"
)

// StatusClientClosedRequest reports a request the caller abandoned.
const StatusClientClosedRequest = 499

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch analysis.KindOf(err) {
	case analysis.KindMalformedResponse, analysis.KindTransportFailure:
		return http.StatusBadGateway
	case analysis.KindTimeout:
		return http.StatusGatewayTimeout
	case analysis.KindStaleAnalysis:
		return http.StatusConflict
	case analysis.KindCanceled:
		return StatusClientClosedRequest
	case analysis.KindEmptyExtraction:
		return http.StatusOK
	}

	switch {
	case errors.Is(err, session.ErrEmptyUserID), errors.Is(err, session.ErrEmptyText),
		errors.Is(err, pipeline.ErrTaskIndex):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, pipeline.ErrNoAnalysis):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrAlreadyCommitted):
		return http.StatusConflict
	case errors.Is(err, destination.ErrUnknownDestination), errors.Is(err, destination.ErrUnknownSubList),
		errors.Is(err, destination.ErrNoSubLists):
		return http.StatusUnprocessableEntity
	case errors.Is(err, destination.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorHandler renders every error as an ErrorResponse.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := statusFor(err)
		body := ErrorResponse{Error: err.Error(), Kind: string(analysis.KindOf(err))}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			body = ErrorResponse{Error: http.StatusText(he.Code)}
			if msg, ok := he.Message.(string); ok {
				body.Error = msg
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error(c.Request().Context(), "request failed", zap.Int("status", status), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}
