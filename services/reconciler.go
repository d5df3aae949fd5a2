package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"registrar_go/models"
	"registrar_go/store"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// reconcileBatchSize caps how many pending tasks one pass picks up.
const reconcileBatchSize = 100

// maxTaskAttempts is the reconciler's own budget per task; after that the
// task is marked failed and needs operator attention.
const maxTaskAttempts = 5

// Reconciler replays parked propagation tasks until the denormalized copies
// catch up with the authoritative instructor data. Every task action is
// idempotent, so replaying a task that already took effect converges to the
// same end state.
type Reconciler struct {
	db    *gorm.DB
	store store.ScheduleStore
	cron  *cron.Cron
}

func NewReconciler(db *gorm.DB, st store.ScheduleStore) *Reconciler {
	return &Reconciler{
		db:    db,
		store: st,
	}
}

// RecordPending implements TaskRecorder: it persists the steps the engine
// could not complete.
func (r *Reconciler) RecordPending(tasks []models.PropagationTask) {
	if len(tasks) == 0 {
		return
	}
	if err := r.db.Create(&tasks).Error; err != nil {
		logrus.WithError(err).WithField("tasks", len(tasks)).Error("Failed to record propagation tasks")
		return
	}
	logrus.WithField("tasks", len(tasks)).Warn("Propagation deferred; tasks recorded for reconciliation")
}

// Start schedules the reconciliation pass.
func (r *Reconciler) Start() {
	r.cron = cron.New()
	_, err := r.cron.AddFunc("@every 1m", func() {
		if err := r.RunOnce(context.Background()); err != nil {
			logrus.WithError(err).Error("Reconciliation pass failed")
		}
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to schedule reconciliation pass")
		return
	}
	r.cron.Start()
	logrus.Info("Propagation reconciler started")
}

// Stop halts the scheduled pass; a pass already running finishes.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// RunOnce processes one batch of pending tasks.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	var tasks []models.PropagationTask
	err := r.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("created_at ASC").
		Limit(reconcileBatchSize).
		Find(&tasks).Error
	if err != nil {
		return fmt.Errorf("failed to load pending propagation tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	logrus.WithField("tasks", len(tasks)).Info("Retrying pending propagation tasks")

	for _, task := range tasks {
		if execErr := r.execute(ctx, task); execErr != nil {
			if errors.Is(execErr, errTaskSuperseded) {
				logrus.WithFields(logrus.Fields{
					"task_id":     task.ID,
					"schedule_id": task.ScheduleID,
					"action":      task.Action,
				}).Info("Propagation task superseded, closing without replay")
				r.db.WithContext(ctx).Model(&task).Update("status", "completed")
				continue
			}
			task.Attempts++
			task.LastError = execErr.Error()
			if task.Attempts >= maxTaskAttempts {
				task.Status = "failed"
				logrus.WithFields(logrus.Fields{
					"task_id":     task.ID,
					"schedule_id": task.ScheduleID,
					"action":      task.Action,
				}).Error("Propagation task exhausted its attempts")
			}
			r.db.WithContext(ctx).Model(&task).
				Updates(map[string]interface{}{
					"attempts":   task.Attempts,
					"last_error": task.LastError,
					"status":     task.Status,
				})
			continue
		}

		r.db.WithContext(ctx).Model(&task).Update("status", "completed")
	}

	return nil
}

// errTaskSuperseded marks a task whose work was made obsolete by a later
// change to the authoritative data. Executing it would resurrect or
// overwrite state the instructor record no longer backs, so it is closed
// without writing anything.
var errTaskSuperseded = errors.New("task superseded by a later schedule change")

func (r *Reconciler) execute(ctx context.Context, task models.PropagationTask) error {
	switch task.Action {
	case ActionUpsertSubject:
		schedule, err := r.authoritativeSchedule(ctx, task)
		if err != nil {
			return err
		}
		if schedule.SubjectID != task.SubjectID {
			return errTaskSuperseded
		}
		return r.store.UpsertSubjectScheduleCopy(ctx, task.SubjectID, schedule)
	case ActionSetSection:
		schedule, err := r.authoritativeSchedule(ctx, task)
		if err != nil {
			return err
		}
		if schedule.SectionID != task.SectionID {
			return errTaskSuperseded
		}
		return r.store.SetSectionSchedule(ctx, task.SectionID, &schedule)
	case ActionRemoveSubjectCopy:
		return r.store.RemoveSubjectScheduleCopy(ctx, task.SubjectID, task.ScheduleID)
	case ActionClearSection:
		return r.store.SetSectionSchedule(ctx, task.SectionID, nil)
	case ActionReplaceRoster:
		change, err := decodeRosterChange(task)
		if err != nil {
			return err
		}
		return r.store.ReplaceSubjectInstructor(ctx, task.SubjectID, change.OldInstructorID, change.NewInstructorID)
	default:
		return fmt.Errorf("unknown propagation action %q", task.Action)
	}
}

// authoritativeSchedule re-reads the instructor record before a mirror write
// is replayed. Replaying must never trust the parked payload: the schedule
// may have been edited or removed while the task sat in the queue, and the
// mirrors must only ever reflect what the instructor list holds now.
func (r *Reconciler) authoritativeSchedule(ctx context.Context, task models.PropagationTask) (models.Schedule, error) {
	schedules, err := r.store.GetInstructorSchedules(ctx, task.InstructorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Schedule{}, errTaskSuperseded
		}
		return models.Schedule{}, err
	}
	for _, schedule := range schedules {
		if schedule.ID == task.ScheduleID {
			return schedule, nil
		}
	}
	return models.Schedule{}, errTaskSuperseded
}

func decodeRosterChange(task models.PropagationTask) (rosterChange, error) {
	var change rosterChange
	if task.Payload.IsNull() {
		return change, fmt.Errorf("task %d has no payload", task.ID)
	}
	if err := json.Unmarshal(task.Payload, &change); err != nil {
		return change, fmt.Errorf("task %d payload corrupt: %w", task.ID, err)
	}
	return change, nil
}
