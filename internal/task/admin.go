package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFailed is returned when a retry is requested for a record that has
// not failed.
var ErrNotFailed = errors.New("task is not in failed status")

// ResetFailed returns a failed record to pending with a fresh attempt
// budget. A running dispatcher picks it up on its next monitor sweep.
func ResetFailed(ctx context.Context, s Store, id uuid.UUID, now time.Time) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusFailed {
		return nil, fmt.Errorf("%w: task %s is %s", ErrNotFailed, id, rec.Status)
	}

	rec.Status = StatusPending
	rec.AttemptCount = 0
	rec.ErrorMessage = ""
	rec.ResultData = nil
	rec.NextAttemptAt = nil
	rec.UpdatedAt = now

	if err := s.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to reset task: %w", err)
	}
	return rec, nil
}
