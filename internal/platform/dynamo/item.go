package dynamo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/task"
)

// item is the table representation of a task.Record.
type item struct {
	TaskID        string `dynamodbav:"task_id"`
	TaskType      string `dynamodbav:"task_type"`
	Status        string `dynamodbav:"status"`
	InputData     string `dynamodbav:"input_data,omitempty"`
	ResultData    string `dynamodbav:"result_data,omitempty"`
	ErrorMessage  string `dynamodbav:"error_message,omitempty"`
	AttemptCount  int    `dynamodbav:"attempt_count"`
	SyllabusID    string `dynamodbav:"syllabus_id,omitempty"`
	LessonID      string `dynamodbav:"lesson_id,omitempty"`
	UserID        string `dynamodbav:"user_id,omitempty"`
	NextAttemptAt int64  `dynamodbav:"next_attempt_at,omitempty"`
	CreatedAt     int64  `dynamodbav:"created_at"`
	UpdatedAt     int64  `dynamodbav:"updated_at"`
}

func toItem(rec *task.Record) item {
	it := item{
		TaskID:       rec.ID.String(),
		TaskType:     string(rec.Type),
		Status:       string(rec.Status),
		InputData:    string(rec.InputData),
		ResultData:   string(rec.ResultData),
		ErrorMessage: rec.ErrorMessage,
		AttemptCount: rec.AttemptCount,
		SyllabusID:   idString(rec.SyllabusID),
		LessonID:     idString(rec.LessonID),
		UserID:       idString(rec.UserID),
		CreatedAt:    rec.CreatedAt.UnixMilli(),
		UpdatedAt:    rec.UpdatedAt.UnixMilli(),
	}
	if rec.NextAttemptAt != nil {
		it.NextAttemptAt = rec.NextAttemptAt.UnixMilli()
	}
	return it
}

func (it item) record() (*task.Record, error) {
	id, err := uuid.Parse(it.TaskID)
	if err != nil {
		return nil, fmt.Errorf("invalid task_id %q: %w", it.TaskID, err)
	}

	rec := &task.Record{
		ID:           id,
		Type:         task.Type(it.TaskType),
		Status:       task.Status(it.Status),
		ErrorMessage: it.ErrorMessage,
		AttemptCount: it.AttemptCount,
		CreatedAt:    time.UnixMilli(it.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(it.UpdatedAt).UTC(),
	}
	if it.InputData != "" {
		rec.InputData = json.RawMessage(it.InputData)
	}
	if it.ResultData != "" {
		rec.ResultData = json.RawMessage(it.ResultData)
	}
	if it.NextAttemptAt != 0 {
		t := time.UnixMilli(it.NextAttemptAt).UTC()
		rec.NextAttemptAt = &t
	}

	for _, ref := range []struct {
		raw string
		dst **uuid.UUID
	}{
		{it.SyllabusID, &rec.SyllabusID},
		{it.LessonID, &rec.LessonID},
		{it.UserID, &rec.UserID},
	} {
		if ref.raw == "" {
			continue
		}
		v, err := uuid.Parse(ref.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid reference %q on task %s: %w", ref.raw, it.TaskID, err)
		}
		*ref.dst = &v
	}
	return rec, nil
}

const lockPrefix = "lock#interaction#"

// lockItem names the in-flight lesson interaction for one learner and
// lesson. It lives in the task table next to the task items.
type lockItem struct {
	TaskID string `dynamodbav:"task_id"`
	Holder string `dynamodbav:"holder"`
}

func lockKey(rec *task.Record) string {
	return lockPrefix + idString(rec.UserID) + "#" + idString(rec.LessonID)
}

func idString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
