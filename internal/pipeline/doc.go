// Package pipeline wires the session store, the analysis orchestrator, the
// resolution engine and the destination system into the operations exposed
// by the HTTP and NATS feeds.
//
// A typical conversation:
//
//	svc.Ingest(ctx, "42", extraction.Message{Text: "@dev fix checkout by Friday"})
//	report, err := svc.Analyze(ctx, "42")
//	// report.Decisions holds one AutoCommit or RequestDisambiguation per task.
//	svc.Choose(ctx, "42", 0, "shop", "To Do")
package pipeline
