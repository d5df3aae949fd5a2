package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"registrar_go/models"

	"gorm.io/gorm"
)

// GormStore keeps each schedule list as a JSON document column on the
// owning row, so every operation is a read-modify-write of one document —
// the same access pattern the collections had in the upstream store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) GetInstructorSchedules(ctx context.Context, instructorID uint) ([]models.Schedule, error) {
	var instructor models.Instructor
	if err := g.db.WithContext(ctx).First(&instructor, instructorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("instructor %d: %w", instructorID, ErrNotFound)
		}
		return nil, &StoreError{Op: "get instructor schedules", Err: err}
	}
	return decodeSchedules(instructor.Schedules)
}

func (g *GormStore) WriteInstructorSchedules(ctx context.Context, instructorID uint, schedules []models.Schedule) error {
	doc, err := encodeSchedules(schedules)
	if err != nil {
		return err
	}
	if err := g.exists(ctx, &models.Instructor{}, instructorID, "instructor"); err != nil {
		return err
	}
	// RowsAffected is not checked here: MySQL reports zero affected rows
	// when an idempotent retry writes an identical document.
	result := g.db.WithContext(ctx).Model(&models.Instructor{}).
		Where("id = ?", instructorID).
		Update("schedules", doc)
	if result.Error != nil {
		return &StoreError{Op: "write instructor schedules", Err: result.Error}
	}
	return nil
}

func (g *GormStore) GetSubjectScheduleCopies(ctx context.Context, subjectID uint) ([]models.Schedule, error) {
	var subject models.Subject
	if err := g.db.WithContext(ctx).First(&subject, subjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subject %d: %w", subjectID, ErrNotFound)
		}
		return nil, &StoreError{Op: "get subject schedule copies", Err: err}
	}
	return decodeSchedules(subject.Schedules)
}

func (g *GormStore) UpsertSubjectScheduleCopy(ctx context.Context, subjectID uint, copy models.Schedule) error {
	copies, err := g.GetSubjectScheduleCopies(ctx, subjectID)
	if err != nil {
		return err
	}

	// Replace-by-id: drop any stale copy carrying the same schedule id,
	// keep everything else, then insert the fresh copy.
	merged := make([]models.Schedule, 0, len(copies)+1)
	for _, existing := range copies {
		if existing.ID != copy.ID {
			merged = append(merged, existing)
		}
	}
	merged = append(merged, copy)

	return g.writeSubjectScheduleCopies(ctx, subjectID, merged)
}

func (g *GormStore) RemoveSubjectScheduleCopy(ctx context.Context, subjectID uint, scheduleID string) error {
	copies, err := g.GetSubjectScheduleCopies(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Subject already gone; nothing left to clean up.
			return nil
		}
		return err
	}

	kept := make([]models.Schedule, 0, len(copies))
	for _, existing := range copies {
		if existing.ID != scheduleID {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(copies) {
		return nil
	}

	return g.writeSubjectScheduleCopies(ctx, subjectID, kept)
}

func (g *GormStore) writeSubjectScheduleCopies(ctx context.Context, subjectID uint, copies []models.Schedule) error {
	doc, err := encodeSchedules(copies)
	if err != nil {
		return err
	}
	result := g.db.WithContext(ctx).Model(&models.Subject{}).
		Where("id = ?", subjectID).
		Update("schedules", doc)
	if result.Error != nil {
		return &StoreError{Op: "write subject schedule copies", Err: result.Error}
	}
	return nil
}

func (g *GormStore) GetSectionSchedule(ctx context.Context, sectionID uint) (*models.Schedule, error) {
	var section models.Section
	if err := g.db.WithContext(ctx).First(&section, sectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("section %d: %w", sectionID, ErrNotFound)
		}
		return nil, &StoreError{Op: "get section schedule", Err: err}
	}
	if section.Schedule.IsNull() {
		return nil, nil
	}
	var schedule models.Schedule
	if err := json.Unmarshal(section.Schedule, &schedule); err != nil {
		return nil, &StoreError{Op: "decode section schedule", Err: err}
	}
	return &schedule, nil
}

func (g *GormStore) SetSectionSchedule(ctx context.Context, sectionID uint, copy *models.Schedule) error {
	var doc interface{}
	if copy != nil {
		raw, err := json.Marshal(copy)
		if err != nil {
			return &StoreError{Op: "encode section schedule", Err: err}
		}
		doc = models.JSON(raw)
		if err := g.exists(ctx, &models.Section{}, sectionID, "section"); err != nil {
			return err
		}
	}
	result := g.db.WithContext(ctx).Model(&models.Section{}).
		Where("id = ?", sectionID).
		Update("schedule", doc)
	if result.Error != nil {
		return &StoreError{Op: "set section schedule", Err: result.Error}
	}
	return nil
}

func (g *GormStore) GetSubjectInstructors(ctx context.Context, subjectID uint) ([]uint, error) {
	var subject models.Subject
	if err := g.db.WithContext(ctx).First(&subject, subjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subject %d: %w", subjectID, ErrNotFound)
		}
		return nil, &StoreError{Op: "get subject instructors", Err: err}
	}
	return decodeInstructorIDs(subject.InstructorIDs)
}

func (g *GormStore) ReplaceSubjectInstructor(ctx context.Context, subjectID, oldInstructorID, newInstructorID uint) error {
	roster, err := g.GetSubjectInstructors(ctx, subjectID)
	if err != nil {
		return err
	}

	updated := make([]uint, 0, len(roster)+1)
	for _, id := range roster {
		if id != oldInstructorID && id != newInstructorID {
			updated = append(updated, id)
		}
	}
	updated = append(updated, newInstructorID)

	doc, err := json.Marshal(updated)
	if err != nil {
		return &StoreError{Op: "encode subject instructors", Err: err}
	}
	result := g.db.WithContext(ctx).Model(&models.Subject{}).
		Where("id = ?", subjectID).
		Update("instructor_ids", models.JSON(doc))
	if result.Error != nil {
		return &StoreError{Op: "replace subject instructor", Err: result.Error}
	}
	return nil
}

func (g *GormStore) exists(ctx context.Context, model interface{}, id uint, kind string) error {
	var count int64
	if err := g.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return &StoreError{Op: "check " + kind, Err: err}
	}
	if count == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}

func decodeInstructorIDs(doc models.JSON) ([]uint, error) {
	if doc.IsNull() {
		return []uint{}, nil
	}
	var ids []uint
	if err := json.Unmarshal(doc, &ids); err != nil {
		return nil, &StoreError{Op: "decode subject instructors", Err: err}
	}
	return ids, nil
}

func decodeSchedules(doc models.JSON) ([]models.Schedule, error) {
	if doc.IsNull() {
		return []models.Schedule{}, nil
	}
	var schedules []models.Schedule
	if err := json.Unmarshal(doc, &schedules); err != nil {
		return nil, &StoreError{Op: "decode schedules", Err: err}
	}
	return schedules, nil
}

func encodeSchedules(schedules []models.Schedule) (models.JSON, error) {
	if schedules == nil {
		schedules = []models.Schedule{}
	}
	raw, err := json.Marshal(schedules)
	if err != nil {
		return nil, &StoreError{Op: "encode schedules", Err: err}
	}
	return models.JSON(raw), nil
}
