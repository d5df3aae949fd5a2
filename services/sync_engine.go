package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"registrar_go/models"
	"registrar_go/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Propagation task actions. Each one is a single idempotent mirror write
// the reconciler can replay.
const (
	ActionUpsertSubject     = "upsert_subject"
	ActionSetSection        = "set_section"
	ActionRemoveSubjectCopy = "remove_subject_copy"
	ActionClearSection      = "clear_section"
	ActionReplaceRoster     = "replace_roster"
)

// TaskRecorder persists propagation steps that could not be completed so a
// reconciliation pass can retry them later.
type TaskRecorder interface {
	RecordPending(tasks []models.PropagationTask)
}

// Notifier receives schedule lifecycle events for user-facing notification.
type Notifier interface {
	ScheduleCommitted(schedule models.Schedule)
	ScheduleRemoved(schedule models.Schedule)
	PropagationDeferred(schedule models.Schedule, stage string)
}

// SyncEngine applies schedule changes to the authoritative instructor record
// and propagates denormalized copies into subject and section records.
//
// The instructor write is the commit point: once it succeeds the schedule
// exists even if mirror writes fail. Mirror writes are idempotent
// replace-by-id operations, retried with bounded backoff and, on exhaustion,
// parked as durable propagation tasks for the reconciler.
//
// Writes for one instructor are serialized through a keyed mutex so two
// concurrent requests cannot both pass conflict checking against a stale
// list.
type SyncEngine struct {
	store    store.ScheduleStore
	tasks    TaskRecorder
	notifier Notifier

	locks sync.Map // instructor id -> *sync.Mutex

	maxAttempts int
	backoffBase time.Duration
}

func NewSyncEngine(st store.ScheduleStore) *SyncEngine {
	return &SyncEngine{
		store:       st,
		maxAttempts: 3,
		backoffBase: 100 * time.Millisecond,
	}
}

// SetTaskRecorder wires the durable propagation task sink.
func (e *SyncEngine) SetTaskRecorder(recorder TaskRecorder) {
	e.tasks = recorder
}

// SetNotifier wires the notification sink.
func (e *SyncEngine) SetNotifier(notifier Notifier) {
	e.notifier = notifier
}

func (e *SyncEngine) instructorLock(instructorID uint) *sync.Mutex {
	lock, _ := e.locks.LoadOrStore(instructorID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// CheckCandidate runs validation and conflict detection without writing
// anything. When the candidate carries an id, that id is excluded from the
// comparison (the editing case).
func (e *SyncEngine) CheckCandidate(ctx context.Context, instructorID uint, candidate models.Schedule) (ConflictResult, error) {
	if err := candidate.Validate(); err != nil {
		return ConflictResult{}, err
	}
	existing, err := e.store.GetInstructorSchedules(ctx, instructorID)
	if err != nil {
		return ConflictResult{}, err
	}
	return CheckConflict(candidate, existing, candidate.ID), nil
}

// AddSchedule validates and conflict-checks the candidate, commits it to the
// instructor's authoritative list, then propagates denormalized copies.
//
// Everything before the instructor write is side-effect free and honors ctx
// cancellation. After the commit point propagation runs on a detached
// context: it must finish or be parked for retry, never abandoned.
func (e *SyncEngine) AddSchedule(ctx context.Context, instructorID uint, candidate models.Schedule) (*models.Schedule, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	lock := e.instructorLock(instructorID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.GetInstructorSchedules(ctx, instructorID)
	if err != nil {
		// The conflict-check read is not retried: retrying a stale read
		// does not change the outcome.
		return nil, err
	}

	result := CheckConflict(candidate, existing, "")
	if result.HasConflict {
		return nil, &ConflictError{Conflicts: result.Conflicts}
	}

	if err := ctx.Err(); err != nil {
		// Last chance to abandon the request with no persisted effect.
		return nil, err
	}

	candidate.ID = uuid.NewString()
	candidate.InstructorID = instructorID
	updated := append(append([]models.Schedule{}, existing...), candidate)
	if err := e.store.WriteInstructorSchedules(ctx, instructorID, updated); err != nil {
		return nil, err
	}

	if err := e.runSteps(context.WithoutCancel(ctx), e.propagationSteps(candidate)); err != nil {
		return &candidate, err
	}

	if e.notifier != nil {
		e.notifier.ScheduleCommitted(candidate)
	}
	return &candidate, nil
}

// UpdateSchedule replaces a schedule in place. The replacement is validated
// and conflict-checked as if new, with the edited schedule excluded so it
// cannot conflict with its own prior version. The schedule id is preserved
// so downstream section references stay valid.
func (e *SyncEngine) UpdateSchedule(ctx context.Context, instructorID uint, scheduleID string, replacement models.Schedule) (*models.Schedule, error) {
	if err := replacement.Validate(); err != nil {
		return nil, err
	}

	lock := e.instructorLock(instructorID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.GetInstructorSchedules(ctx, instructorID)
	if err != nil {
		return nil, err
	}

	index := -1
	for i, schedule := range existing {
		if schedule.ID == scheduleID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrScheduleNotFound
	}
	previous := existing[index]

	result := CheckConflict(replacement, existing, scheduleID)
	if result.HasConflict {
		return nil, &ConflictError{Conflicts: result.Conflicts}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	replacement.ID = scheduleID
	replacement.InstructorID = instructorID
	updated := append([]models.Schedule{}, existing...)
	updated[index] = replacement
	if err := e.store.WriteInstructorSchedules(ctx, instructorID, updated); err != nil {
		return nil, err
	}

	steps := e.staleCleanupSteps(previous, replacement)
	steps = append(steps, e.propagationSteps(replacement)...)
	if err := e.runSteps(context.WithoutCancel(ctx), steps); err != nil {
		return &replacement, err
	}

	if e.notifier != nil {
		e.notifier.ScheduleCommitted(replacement)
	}
	return &replacement, nil
}

// RemoveSchedule deletes a schedule from the instructor's list first (the
// authoritative deletion), then removes every denormalized copy carrying its
// id. Cleanup is idempotent: a copy that is already gone is not an error,
// and removing a schedule that no longer exists succeeds silently.
func (e *SyncEngine) RemoveSchedule(ctx context.Context, instructorID uint, scheduleID string) error {
	lock := e.instructorLock(instructorID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.GetInstructorSchedules(ctx, instructorID)
	if err != nil {
		return err
	}

	index := -1
	for i, schedule := range existing {
		if schedule.ID == scheduleID {
			index = i
			break
		}
	}
	if index < 0 {
		// Already removed; a retried delete converges to the same state.
		return nil
	}
	removed := existing[index]

	if err := ctx.Err(); err != nil {
		return err
	}

	updated := append([]models.Schedule{}, existing[:index]...)
	updated = append(updated, existing[index+1:]...)
	if err := e.store.WriteInstructorSchedules(ctx, instructorID, updated); err != nil {
		return err
	}

	if err := e.runSteps(context.WithoutCancel(ctx), e.removalSteps(removed)); err != nil {
		return err
	}

	if e.notifier != nil {
		e.notifier.ScheduleRemoved(removed)
	}
	return nil
}

// ReassignInstructor rebuilds a subject's denormalized copy set when its
// instructor roster changes: copies contributed by the old instructor are
// dropped and replaced by the new instructor's current schedules for the
// subject. Copies from instructors unaffected by the change are preserved:
// the copy set is filtered by instructor id, never blindly overwritten.
func (e *SyncEngine) ReassignInstructor(ctx context.Context, subjectID, oldInstructorID, newInstructorID uint) error {
	copies, err := e.store.GetSubjectScheduleCopies(ctx, subjectID)
	if err != nil {
		return err
	}

	newInstructorSchedules, err := e.store.GetInstructorSchedules(ctx, newInstructorID)
	if err != nil {
		return err
	}

	steps := []propagationStep{e.replaceRosterStep(subjectID, oldInstructorID, newInstructorID)}
	for _, mirror := range copies {
		if mirror.InstructorID == oldInstructorID {
			steps = append(steps, e.removeSubjectCopyStep(mirror))
		}
	}
	for _, schedule := range newInstructorSchedules {
		if schedule.SubjectID == subjectID {
			steps = append(steps, e.upsertSubjectStep(schedule))
		}
	}

	return e.runSteps(context.WithoutCancel(ctx), steps)
}

// rosterChange is the payload of a replace_roster task.
type rosterChange struct {
	OldInstructorID uint `json:"old_instructor_id"`
	NewInstructorID uint `json:"new_instructor_id"`
}

func (e *SyncEngine) replaceRosterStep(subjectID, oldInstructorID, newInstructorID uint) propagationStep {
	payload, err := json.Marshal(rosterChange{
		OldInstructorID: oldInstructorID,
		NewInstructorID: newInstructorID,
	})
	if err != nil {
		payload = nil
	}
	return propagationStep{
		action: ActionReplaceRoster,
		task: models.PropagationTask{
			InstructorID: newInstructorID,
			SubjectID:    subjectID,
			Action:       ActionReplaceRoster,
			Payload:      payload,
			Status:       "pending",
		},
		run: func(ctx context.Context) error {
			return e.store.ReplaceSubjectInstructor(ctx, subjectID, oldInstructorID, newInstructorID)
		},
	}
}

// propagationStep is one idempotent mirror write plus its durable form.
type propagationStep struct {
	action string
	task   models.PropagationTask
	run    func(ctx context.Context) error
}

func (e *SyncEngine) propagationSteps(schedule models.Schedule) []propagationStep {
	steps := []propagationStep{e.upsertSubjectStep(schedule)}
	if schedule.SectionID != 0 {
		steps = append(steps, propagationStep{
			action: ActionSetSection,
			task:   taskFor(schedule, ActionSetSection, schedule.SubjectID, schedule.SectionID),
			run: func(ctx context.Context) error {
				mirror := schedule
				return e.store.SetSectionSchedule(ctx, schedule.SectionID, &mirror)
			},
		})
	}
	return steps
}

func (e *SyncEngine) removalSteps(removed models.Schedule) []propagationStep {
	steps := []propagationStep{e.removeSubjectCopyStep(removed)}
	if removed.SectionID != 0 {
		steps = append(steps, propagationStep{
			action: ActionClearSection,
			task:   taskFor(removed, ActionClearSection, removed.SubjectID, removed.SectionID),
			run: func(ctx context.Context) error {
				return e.store.SetSectionSchedule(ctx, removed.SectionID, nil)
			},
		})
	}
	return steps
}

// staleCleanupSteps removes mirrors that an edit left behind when the
// schedule moved to a different subject or section.
func (e *SyncEngine) staleCleanupSteps(previous, replacement models.Schedule) []propagationStep {
	steps := make([]propagationStep, 0, 2)
	if previous.SubjectID != replacement.SubjectID {
		steps = append(steps, e.removeSubjectCopyStep(previous))
	}
	if previous.SectionID != 0 && previous.SectionID != replacement.SectionID {
		steps = append(steps, propagationStep{
			action: ActionClearSection,
			task:   taskFor(previous, ActionClearSection, previous.SubjectID, previous.SectionID),
			run: func(ctx context.Context) error {
				return e.store.SetSectionSchedule(ctx, previous.SectionID, nil)
			},
		})
	}
	return steps
}

func (e *SyncEngine) upsertSubjectStep(schedule models.Schedule) propagationStep {
	return propagationStep{
		action: ActionUpsertSubject,
		task:   taskFor(schedule, ActionUpsertSubject, schedule.SubjectID, schedule.SectionID),
		run: func(ctx context.Context) error {
			return e.store.UpsertSubjectScheduleCopy(ctx, schedule.SubjectID, schedule)
		},
	}
}

func (e *SyncEngine) removeSubjectCopyStep(schedule models.Schedule) propagationStep {
	return propagationStep{
		action: ActionRemoveSubjectCopy,
		task:   taskFor(schedule, ActionRemoveSubjectCopy, schedule.SubjectID, schedule.SectionID),
		run: func(ctx context.Context) error {
			return e.store.RemoveSubjectScheduleCopy(ctx, schedule.SubjectID, schedule.ID)
		},
	}
}

// runSteps executes mirror writes in order. The first step that still fails
// after retries parks itself and every remaining step as durable tasks and
// surfaces a PropagationError; completed steps are never re-parked.
func (e *SyncEngine) runSteps(ctx context.Context, steps []propagationStep) error {
	for i, step := range steps {
		if err := e.retry(ctx, step.run); err != nil {
			e.parkSteps(steps[i:], err)
			if e.notifier != nil {
				e.notifier.PropagationDeferred(taskSchedule(step.task), step.action)
			}
			return &PropagationError{Stage: step.action, Err: err}
		}
	}
	return nil
}

// retry runs fn up to maxAttempts times, backing off quadratically between
// attempts. Only transient store errors are retried.
func (e *SyncEngine) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var storeErr *store.StoreError
		if !errors.As(lastErr, &storeErr) {
			return lastErr
		}
		if attempt < e.maxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * e.backoffBase)
		}
	}
	return lastErr
}

func (e *SyncEngine) parkSteps(steps []propagationStep, cause error) {
	tasks := make([]models.PropagationTask, 0, len(steps))
	for _, step := range steps {
		task := step.task
		task.LastError = cause.Error()
		tasks = append(tasks, task)
	}
	if e.tasks == nil {
		logrus.WithField("tasks", len(tasks)).Warn("No task recorder wired; propagation tasks dropped")
		return
	}
	e.tasks.RecordPending(tasks)
}

func taskFor(schedule models.Schedule, action string, subjectID, sectionID uint) models.PropagationTask {
	payload, err := json.Marshal(schedule)
	if err != nil {
		payload = nil
	}
	return models.PropagationTask{
		ScheduleID:   schedule.ID,
		InstructorID: schedule.InstructorID,
		SubjectID:    subjectID,
		SectionID:    sectionID,
		Action:       action,
		Payload:      payload,
		Status:       "pending",
	}
}

func taskSchedule(task models.PropagationTask) models.Schedule {
	var schedule models.Schedule
	if !task.Payload.IsNull() {
		_ = json.Unmarshal(task.Payload, &schedule)
	}
	schedule.ID = task.ScheduleID
	schedule.InstructorID = task.InstructorID
	return schedule
}
