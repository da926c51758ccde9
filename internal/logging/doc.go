// Package logging provides structured logging for taskbot.
//
// Logger wraps Zap with context-aware methods. Every entry automatically
// carries trace correlation plus the user, chat and request identifiers
// stored on the context:
//
//	ctx = logging.WithUserID(ctx, "42")
//	ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
//	logger.Info(ctx, "message buffered", zap.Int("ordinal", msg.Ordinal))
//
// Output goes to stdout, OpenTelemetry, or both. Field names such as token
// or api_key are redacted at the encoder. Below error level, entries are
// sampled per level; errors are never sampled.
//
// Use NewTestLogger in tests to assert on what was logged.
package logging
