// Package processor holds one task.Processor per task type. Each processor
// decodes its record's input, does the work against the stores and the LLM,
// and returns the value the dispatcher stores as the task result.
//
// The lesson interaction processor owns the round-trip of the per-(user,
// lesson) state slot: read, merge the new answer, invoke the quiz graph,
// write back, notify.
package processor
