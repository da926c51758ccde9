// Package telemetry sets up OpenTelemetry tracing and metrics for taskbot.
//
// New returns a no-op instance when telemetry is disabled, and degrades
// rather than fails when an exporter cannot be created, so a missing
// collector never keeps the bot from serving chats.
package telemetry
