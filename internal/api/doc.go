// Package api exposes the tutoring backend over HTTP. Every mutating
// request is turned into a background task and answered with 202 and the
// task id; results are read from the task status endpoint or streamed as
// server-sent events.
package api
