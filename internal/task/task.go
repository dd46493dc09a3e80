package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies which processor handles a record.
type Type string

// Task types. The string values are stored and exposed over the API.
const (
	TypeSyllabusGeneration   Type = "syllabus_generation"
	TypeLessonContent        Type = "lesson_content"
	TypeLessonInteraction    Type = "lesson_interaction"
	TypeOnboardingAssessment Type = "onboarding_assessment"
)

// Types lists every known task type.
var Types = []Type{
	TypeSyllabusGeneration,
	TypeLessonContent,
	TypeLessonInteraction,
	TypeOnboardingAssessment,
}

// Valid reports whether t is one of Types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// Terminal reports whether no further processing happens in status s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InFlight reports whether a record in status s may still run.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusProcessing
}

// Refs link a record to the entities it concerns. They are used for
// authorization and to find the learner's state slot.
type Refs struct {
	SyllabusID *uuid.UUID `json:"syllabus_id,omitempty"`
	LessonID   *uuid.UUID `json:"lesson_id,omitempty"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
}

// Record is the durable description of one task.
type Record struct {
	ID           uuid.UUID       `json:"id"`
	Type         Type            `json:"task_type"`
	Status       Status          `json:"status"`
	InputData    json.RawMessage `json:"input_data,omitempty"`
	ResultData   json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	Refs

	// NextAttemptAt is set while a failed attempt waits for its retry.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	cp := *r
	cp.InputData = cloneRaw(r.InputData)
	cp.ResultData = cloneRaw(r.ResultData)
	cp.SyllabusID = cloneID(r.SyllabusID)
	cp.LessonID = cloneID(r.LessonID)
	cp.UserID = cloneID(r.UserID)
	if r.NextAttemptAt != nil {
		t := *r.NextAttemptAt
		cp.NextAttemptAt = &t
	}
	return &cp
}

// Exclusive reports whether r takes part in the one-in-flight rule: at most
// one pending or processing lesson interaction per user and lesson.
func (r *Record) Exclusive() bool {
	return r.Type == TypeLessonInteraction && r.UserID != nil && r.LessonID != nil
}

// ConflictsWith reports whether r and other are distinct in-flight
// exclusive records for the same user and lesson.
func (r *Record) ConflictsWith(other *Record) bool {
	return r.ID != other.ID &&
		r.Exclusive() && other.Exclusive() &&
		r.Status.InFlight() && other.Status.InFlight() &&
		*r.UserID == *other.UserID && *r.LessonID == *other.LessonID
}

// DecodeInput unmarshals the record's input into v.
func (r *Record) DecodeInput(v any) error {
	if len(r.InputData) == 0 {
		return nil
	}
	return json.Unmarshal(r.InputData, v)
}

// Due reports whether a pending record may run at now.
func (r *Record) Due(now time.Time) bool {
	return r.NextAttemptAt == nil || !r.NextAttemptAt.After(now)
}

// Filter selects records in Store.List. Zero fields do not filter.
type Filter struct {
	Types      []Type
	Statuses   []Status
	SyllabusID *uuid.UUID
	LessonID   *uuid.UUID
	UserID     *uuid.UUID

	// UpdatedBefore keeps records last written before the given time.
	UpdatedBefore time.Time

	// DueBefore keeps records with no NextAttemptAt or one at or before it.
	DueBefore time.Time

	// Limit caps the result; zero means no limit.
	Limit int
}

// Matches reports whether r passes every set criterion of f. Store
// implementations without a query language filter with it.
func (f Filter) Matches(r *Record) bool {
	if len(f.Types) > 0 && !contains(f.Types, r.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, r.Status) {
		return false
	}
	if !idMatches(f.SyllabusID, r.SyllabusID) ||
		!idMatches(f.LessonID, r.LessonID) ||
		!idMatches(f.UserID, r.UserID) {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !r.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	if !f.DueBefore.IsZero() && !r.Due(f.DueBefore) {
		return false
	}
	return true
}

// Store persists task records.
type Store interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec *Record) error

	// Get returns the record or an error matching store.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// Update overwrites the whole record and sets its UpdatedAt.
	Update(ctx context.Context, rec *Record) error

	// List returns matching records, newest first.
	List(ctx context.Context, f Filter) ([]*Record, error)

	// CountByStatus returns how many records are in each status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Processor executes one task type. A returned error is retried with
// backoff unless wrapped with Permanent. A non-nil result is stored even
// when an error is returned.
type Processor interface {
	Process(ctx context.Context, rec *Record) (any, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, rec *Record) (any, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, rec *Record) (any, error) {
	return f(ctx, rec)
}

// StatusView is the externally visible state of a task.
type StatusView struct {
	TaskID       uuid.UUID       `json:"task_id"`
	Type         Type            `json:"task_type"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// View builds the status view of r: the result only once completed, the
// error only once failed.
func (r *Record) View() *StatusView {
	v := &StatusView{
		TaskID:       r.ID,
		Type:         r.Type,
		Status:       r.Status,
		AttemptCount: r.AttemptCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	switch r.Status {
	case StatusCompleted:
		v.Result = r.ResultData
	case StatusFailed:
		v.Error = r.ErrorMessage
	}
	return v
}

func contains[T comparable](list []T, v T) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func idMatches(want, got *uuid.UUID) bool {
	if want == nil {
		return true
	}
	return got != nil && *got == *want
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
