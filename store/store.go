// Package store is the data access facade over the document collections
// (instructors, subjects, sections) the scheduling core reads and writes.
// The engine only sees this interface; the concrete store decides how the
// documents are kept.
package store

import (
	"context"
	"errors"
	"fmt"

	"registrar_go/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// StoreError marks a transient persistence failure. Propagation steps that
// fail with a StoreError are retried; everything else surfaces immediately.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ScheduleStore is the read/write contract the synchronization engine needs.
//
// The instructor schedule list is authoritative. Subject and section copy
// operations use replace-by-id semantics so a retried write converges to
// exactly one copy per schedule id.
type ScheduleStore interface {
	// GetInstructorSchedules returns the authoritative schedule list.
	GetInstructorSchedules(ctx context.Context, instructorID uint) ([]models.Schedule, error)
	// WriteInstructorSchedules replaces the authoritative schedule list.
	WriteInstructorSchedules(ctx context.Context, instructorID uint, schedules []models.Schedule) error

	// GetSubjectScheduleCopies returns the subject's denormalized copies.
	GetSubjectScheduleCopies(ctx context.Context, subjectID uint) ([]models.Schedule, error)
	// UpsertSubjectScheduleCopy removes any copy with the same schedule id
	// and inserts the given one, leaving unrelated copies untouched.
	UpsertSubjectScheduleCopy(ctx context.Context, subjectID uint, copy models.Schedule) error
	// RemoveSubjectScheduleCopy deletes the copy with the given schedule id.
	// Removing a copy that is already gone is a no-op, not an error.
	RemoveSubjectScheduleCopy(ctx context.Context, subjectID uint, scheduleID string) error

	// GetSectionSchedule returns the section's denormalized copy, or nil
	// when the section has none.
	GetSectionSchedule(ctx context.Context, sectionID uint) (*models.Schedule, error)
	// SetSectionSchedule replaces the section's single copy; nil clears it.
	SetSectionSchedule(ctx context.Context, sectionID uint, copy *models.Schedule) error

	// GetSubjectInstructors returns the subject's assigned instructor ids.
	GetSubjectInstructors(ctx context.Context, subjectID uint) ([]uint, error)
	// ReplaceSubjectInstructor swaps one instructor for another on the
	// subject's roster. The new id appears at most once; replacing an
	// instructor that is already gone still adds the new one.
	ReplaceSubjectInstructor(ctx context.Context, subjectID, oldInstructorID, newInstructorID uint) error
}
