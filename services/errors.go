package services

import (
	"errors"
	"fmt"
	"strings"

	"registrar_go/models"
)

// ErrScheduleNotFound is returned when an operation references a schedule id
// that is not in the instructor's authoritative list.
var ErrScheduleNotFound = errors.New("schedule not found")

// ConflictError is a business-rule rejection: the candidate overlaps one or
// more of the instructor's existing schedules. No write has happened.
type ConflictError struct {
	Conflicts []models.Schedule
}

func (e *ConflictError) Error() string {
	descriptions := make([]string, 0, len(e.Conflicts))
	for _, conflict := range e.Conflicts {
		descriptions = append(descriptions, fmt.Sprintf("%s %s-%s (subject %d)",
			strings.Join(conflict.Days, ","), conflict.StartTime, conflict.EndTime, conflict.SubjectID))
	}
	return fmt.Sprintf("schedule conflicts with %d existing slot(s): %s",
		len(e.Conflicts), strings.Join(descriptions, "; "))
}

// PropagationError means the authoritative instructor write committed but a
// denormalized copy write failed after retries. The operation is partially
// successful: the schedule exists, the mirrors will catch up through the
// reconciler. It must never be presented as a total failure.
type PropagationError struct {
	Stage string
	Err   error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation failed at %s: %v", e.Stage, e.Err)
}

func (e *PropagationError) Unwrap() error {
	return e.Err
}
