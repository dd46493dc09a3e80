// Package store defines the persistence contracts for lessons, syllabi and
// per-learner progress, along with the errors every implementation maps onto.
// The per-(user, lesson) quiz state slot lives behind ProgressStore.
package store
