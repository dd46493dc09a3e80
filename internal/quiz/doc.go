// Package quiz implements the end-of-lesson quiz as an explicit state
// machine.
//
// A Graph is a set of nodes over a single State record. Each call to
// Invoke runs synchronously from an entry node to one of two sinks:
// NodeEndInitialInvocation, which means the quiz is waiting for the learner
// to answer the question just generated, or NodeRecordResult, which
// finalizes the session. Waiting for the learner is never modeled inside the
// graph; the caller persists the returned State and starts a new invocation
// when an answer arrives.
//
// Failures inside nodes (malformed LLM output, missing lesson content,
// inconsistent state) are recorded in State.ErrorMessage and routed to
// NodeRecordResult. Invoke only returns an error for driver faults such as a
// cancelled context.
package quiz
