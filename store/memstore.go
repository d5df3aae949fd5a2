package store

import (
	"context"
	"fmt"
	"sync"

	"registrar_go/models"
)

// MemStore is an in-memory ScheduleStore used by tests and local
// development. Instructors, subjects and sections are created implicitly on
// first write, the way a schemaless document store materializes documents.
type MemStore struct {
	mu          sync.RWMutex
	instructors map[uint][]models.Schedule
	subjects    map[uint][]models.Schedule
	sections    map[uint]*models.Schedule
	rosters     map[uint][]uint
}

func NewMemStore() *MemStore {
	return &MemStore{
		instructors: make(map[uint][]models.Schedule),
		subjects:    make(map[uint][]models.Schedule),
		sections:    make(map[uint]*models.Schedule),
		rosters:     make(map[uint][]uint),
	}
}

func (m *MemStore) GetInstructorSchedules(_ context.Context, instructorID uint) ([]models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	schedules, ok := m.instructors[instructorID]
	if !ok {
		return nil, fmt.Errorf("instructor %d: %w", instructorID, ErrNotFound)
	}
	return cloneSchedules(schedules), nil
}

func (m *MemStore) WriteInstructorSchedules(_ context.Context, instructorID uint, schedules []models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructors[instructorID] = cloneSchedules(schedules)
	return nil
}

func (m *MemStore) GetSubjectScheduleCopies(_ context.Context, subjectID uint) ([]models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSchedules(m.subjects[subjectID]), nil
}

func (m *MemStore) UpsertSubjectScheduleCopy(_ context.Context, subjectID uint, copy models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.subjects[subjectID]
	merged := make([]models.Schedule, 0, len(existing)+1)
	for _, schedule := range existing {
		if schedule.ID != copy.ID {
			merged = append(merged, schedule)
		}
	}
	merged = append(merged, copy)
	m.subjects[subjectID] = merged
	return nil
}

func (m *MemStore) RemoveSubjectScheduleCopy(_ context.Context, subjectID uint, scheduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.subjects[subjectID]
	kept := make([]models.Schedule, 0, len(existing))
	for _, schedule := range existing {
		if schedule.ID != scheduleID {
			kept = append(kept, schedule)
		}
	}
	m.subjects[subjectID] = kept
	return nil
}

func (m *MemStore) GetSectionSchedule(_ context.Context, sectionID uint) (*models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	schedule := m.sections[sectionID]
	if schedule == nil {
		return nil, nil
	}
	clone := *schedule
	return &clone, nil
}

func (m *MemStore) SetSectionSchedule(_ context.Context, sectionID uint, copy *models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if copy == nil {
		m.sections[sectionID] = nil
		return nil
	}
	clone := *copy
	m.sections[sectionID] = &clone
	return nil
}

func (m *MemStore) GetSubjectInstructors(_ context.Context, subjectID uint) ([]uint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uint(nil), m.rosters[subjectID]...), nil
}

func (m *MemStore) ReplaceSubjectInstructor(_ context.Context, subjectID, oldInstructorID, newInstructorID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := make([]uint, 0, len(m.rosters[subjectID])+1)
	for _, id := range m.rosters[subjectID] {
		if id != oldInstructorID && id != newInstructorID {
			updated = append(updated, id)
		}
	}
	m.rosters[subjectID] = append(updated, newInstructorID)
	return nil
}

// SeedInstructor registers an instructor with an initial schedule list so
// reads against it do not report ErrNotFound.
func (m *MemStore) SeedInstructor(instructorID uint, schedules ...models.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructors[instructorID] = cloneSchedules(schedules)
}

// SeedSubjectRoster registers a subject's assigned instructor ids.
func (m *MemStore) SeedSubjectRoster(subjectID uint, instructorIDs ...uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters[subjectID] = append([]uint(nil), instructorIDs...)
}

func cloneSchedules(schedules []models.Schedule) []models.Schedule {
	cloned := make([]models.Schedule, len(schedules))
	for i, schedule := range schedules {
		cloned[i] = schedule
		cloned[i].Days = append([]string(nil), schedule.Days...)
	}
	return cloned
}
