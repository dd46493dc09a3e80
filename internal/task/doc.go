// Package task runs background work for the tutoring API.
//
// Every unit of work is a Record persisted in a Store before it is queued,
// so status can be polled and unfinished work survives restarts. The
// Dispatcher moves records through pending, processing, completed and
// failed, retrying processor errors with exponential backoff until the
// attempt ceiling is reached.
package task
