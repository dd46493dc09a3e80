// Package notify turns quiz states and task outcomes into client messages and
// publishes them to per-lesson groups.
//
// The primary components are:
// - Classify: picks the single message kind a quiz state warrants
// - Relay: builds the payload for that kind and publishes it, fire-and-forget
// - Publisher: the transport; Hub fans out in-process, the kafka package
// writes to a topic
package notify
