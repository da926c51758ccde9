// Package extraction derives structured signals from chat messages.
//
// The extractor is pure: for a fixed vocabulary and clock, the same messages
// always produce the same Context. It never performs I/O.
//
// # Signals
//
//   - Keywords: case-insensitive substring hits per category (project, deadline, priority)
//   - Mentions: @handles, deduplicated, stored without the leading "@"
//   - Dates: "до 25.12.2024", "к 5.3" and bare "5.3" forms, in that priority order
//   - Priority: level with the most term occurrences, confidence = min(count*0.3, 1)
//   - Project hints: project-indicating terms, confidence = min(count*0.2, 1)
//
// # Usage
//
//	ex := extraction.New()
//	ctx := ex.Extract(messages)
//
// Contexts from successive turns are combined with Merge:
//
//	acc = extraction.Merge(acc, ex.Extract([]extraction.Message{msg}))
//
// Sets merge by union. Priority and project hints keep the value with strictly
// higher confidence, preferring the first argument on a tie. Date candidates
// are concatenated and keep their source message ordinal.
package extraction
