package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"registrar_go/models"
	"registrar_go/store"
)

func newTestEngine(st store.ScheduleStore) *SyncEngine {
	e := NewSyncEngine(st)
	e.backoffBase = time.Millisecond
	return e
}

func testSchedule(sectionID uint) models.Schedule {
	return models.Schedule{
		Days:      []string{"Monday", "Wednesday"},
		StartTime: "08:00",
		EndTime:   "09:30",
		RoomName:  "B101",
		SubjectID: 10,
		SectionID: sectionID,
		Semester:  "Fall",
	}
}

func TestAddSchedulePropagatesCopies(t *testing.T) {
	st := store.NewMemStore()
	st.SeedInstructor(1)
	engine := newTestEngine(st)
	ctx := context.Background()

	added, err := engine.AddSchedule(ctx, 1, testSchedule(20))
	if err != nil {
		t.Fatalf("AddSchedule returned error: %v", err)
	}
	if added.ID == "" {
		t.Fatal("committed schedule should carry a generated id")
	}

	schedules, err := st.GetInstructorSchedules(ctx, 1)
	if err != nil {
		t.Fatalf("GetInstructorSchedules returned error: %v", err)
	}
	if len(schedules) != 1 || schedules[0].ID != added.ID {
		t.Errorf("instructor list = %v, want the committed schedule", schedules)
	}

	copies, _ := st.GetSubjectScheduleCopies(ctx, 10)
	if len(copies) != 1 || copies[0].ID != added.ID {
		t.Errorf("subject copies = %v, want one copy of %s", copies, added.ID)
	}

	sectionCopy, _ := st.GetSectionSchedule(ctx, 20)
	if sectionCopy == nil || sectionCopy.ID != added.ID {
		t.Errorf("section copy = %v, want %s", sectionCopy, added.ID)
	}
}

func TestAddScheduleRejectsConflictWithoutWriting(t *testing.T) {
	st := store.NewMemStore()
	existing := testSchedule(0)
	existing.ID = "seed"
	existing.InstructorID = 1
	st.SeedInstructor(1, existing)
	engine := newTestEngine(st)
	ctx := context.Background()

	overlap := testSchedule(0)
	overlap.StartTime = "09:00"
	overlap.EndTime = "10:00"

	_, err := engine.AddSchedule(ctx, 1, overlap)
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("AddSchedule = %v, want ConflictError", err)
	}
	if len(conflictErr.Conflicts) != 1 || conflictErr.Conflicts[0].ID != "seed" {
		t.Errorf("conflicts = %v, want the seeded slot", conflictErr.Conflicts)
	}

	schedules, _ := st.GetInstructorSchedules(ctx, 1)
	if len(schedules) != 1 {
		t.Errorf("rejected add must leave the list untouched, got %v", schedules)
	}
	copies, _ := st.GetSubjectScheduleCopies(ctx, 10)
	if len(copies) != 0 {
		t.Errorf("rejected add must not propagate, got copies %v", copies)
	}
}

func TestAddScheduleMissingInstructor(t *testing.T) {
	st := store.NewMemStore()
	engine := newTestEngine(st)

	_, err := engine.AddSchedule(context.Background(), 99, testSchedule(0))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AddSchedule for unknown instructor = %v, want ErrNotFound", err)
	}
}

func TestUpdateSchedulePreservesID(t *testing.T) {
	st := store.NewMemStore()
	st.SeedInstructor(1)
	engine := newTestEngine(st)
	ctx := context.Background()

	added, err := engine.AddSchedule(ctx, 1, testSchedule(20))
	if err != nil {
		t.Fatalf("AddSchedule returned error: %v", err)
	}

	// Same slot resubmitted as an edit: must not conflict with itself.
	updated, err := engine.UpdateSchedule(ctx, 1, added.ID, testSchedule(20))
	if err != nil {
		t.Fatalf("unchanged update returned error: %v", err)
	}
	if updated.ID != added.ID {
		t.Errorf("update changed id from %s to %s", added.ID, updated.ID)
	}

	// Propagation idempotence: replaying the mirror write must not duplicate
	// the copy.
	copies, _ := st.GetSubjectScheduleCopies(ctx, 10)
	if len(copies) != 1 {
		t.Errorf("subject copies = %d, want exactly 1 after repeated upsert", len(copies))
	}
}

func TestUpdateScheduleCleansStaleMirrors(t *testing.T) {
	st := store.NewMemStore()
	st.SeedInstructor(1)
	engine := newTestEngine(st)
	ctx := context.Background()

	added, err := engine.AddSchedule(ctx, 1, testSchedule(20))
	if err != nil {
		t.Fatalf("AddSchedule returned error: %v", err)
	}

	moved := testSchedule(30)
	moved.SubjectID = 11
	if _, err := engine.UpdateSchedule(ctx, 1, added.ID, moved); err != nil {
		t.Fatalf("UpdateSchedule returned error: %v", err)
	}

	oldCopies, _ := st.GetSubjectScheduleCopies(ctx, 10)
	if len(oldCopies) != 0 {
		t.Errorf("old subject still has copies: %v", oldCopies)
	}
	newCopies, _ := st.GetSubjectScheduleCopies(ctx, 11)
	if len(newCopies) != 1 {
		t.Errorf("new subject copies = %d, want 1", len(newCopies))
	}
	oldSection, _ := st.GetSectionSchedule(ctx, 20)
	if oldSection != nil {
		t.Errorf("old section still holds %v", oldSection)
	}
	newSection, _ := st.GetSectionSchedule(ctx, 30)
	if newSection == nil || newSection.ID != added.ID {
		t.Errorf("new section copy = %v, want %s", newSection, added.ID)
	}
}

func TestUpdateScheduleNotFound(t *testing.T) {
	st := store.NewMemStore()
	st.SeedInstructor(1)
	engine := newTestEngine(st)

	_, err := engine.UpdateSchedule(context.Background(), 1, "missing", testSchedule(0))
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("UpdateSchedule = %v, want ErrScheduleNotFound", err)
	}
}

func TestRemoveScheduleCleansEverything(t *testing.T) {
	st := store.NewMemStore()
	st.SeedInstructor(1)
	engine := newTestEngine(st)
	ctx := context.Background()

	added, err := engine.AddSchedule(ctx, 1, testSchedule(20))
	if err != nil {
		t.Fatalf("AddSchedule returned error: %v", err)
	}

	if err := engine.RemoveSchedule(ctx, 1, added.ID); err != nil {
		t.Fatalf("RemoveSchedule returned error: %v", err)
	}

	schedules, _ := st.GetInstructorSchedules(ctx, 1)
	if len(schedules) != 0 {
		t.Errorf("instructor list = %v, want empty", schedules)
	}
	copies, _ := st.GetSubjectScheduleCopies(ctx, 10)
	if len(copies) != 0 {
		t.Errorf("subject copies = %v, want none", copies)
	}
	sectionCopy, _ := st.GetSectionSchedule(ctx, 20)
	if sectionCopy != nil {
		t.Errorf("section copy = %v, want cleared", sectionCopy)
	}

	// Deleting again converges silently.
	if err := engine.RemoveSchedule(ctx, 1, added.ID); err != nil {
		t.Errorf("second RemoveSchedule = %v, want nil", err)
	}
}

// flakyStore fails subject mirror writes with a transient error until
// healed, leaving every other operation intact.
type flakyStore struct {
	*store.MemStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) UpsertSubjectScheduleCopy(ctx context.Context, subjectID uint, copy models.Schedule) error {
	f.mu.Lock()
	failing := f.fail
	f.mu.Unlock()
	if failing {
		return &store.StoreError{Op: "upsert subject copy", Err: errors.New("connection reset")}
	}
	return f.MemStore.UpsertSubjectScheduleCopy(ctx, subjectID, copy)
}

func (f *flakyStore) heal() {
	f.mu.Lock()
	f.fail = false
	f.mu.Unlock()
}

// taskCapture records parked propagation tasks in memory.
type taskCapture struct {
	mu    sync.Mutex
	tasks []models.PropagationTask
}

func (tc *taskCapture) RecordPending(tasks []models.PropagationTask) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tasks = append(tc.tasks, tasks...)
}

func TestAddSchedulePartialFailure(t *testing.T) {
	flaky := &flakyStore{MemStore: store.NewMemStore(), fail: true}
	flaky.SeedInstructor(1)
	engine := newTestEngine(flaky)
	capture := &taskCapture{}
	engine.SetTaskRecorder(capture)
	ctx := context.Background()

	added, err := engine.AddSchedule(ctx, 1, testSchedule(20))

	var propErr *PropagationError
	if !errors.As(err, &propErr) {
		t.Fatalf("AddSchedule = %v, want PropagationError", err)
	}
	if propErr.Stage != ActionUpsertSubject {
		t.Errorf("failed stage = %q, want %q", propErr.Stage, ActionUpsertSubject)
	}
	if added == nil || added.ID == "" {
		t.Fatal("partial failure must still return the committed schedule")
	}

	// The commit point held: the schedule exists authoritatively.
	schedules, _ := flaky.GetInstructorSchedules(ctx, 1)
	if len(schedules) != 1 || schedules[0].ID != added.ID {
		t.Errorf("instructor list = %v, want the committed schedule", schedules)
	}

	// The failed step and everything after it were parked for the reconciler.
	capture.mu.Lock()
	defer capture.mu.Unlock()
	if len(capture.tasks) != 2 {
		t.Fatalf("parked tasks = %d, want 2 (subject upsert and section set)", len(capture.tasks))
	}
	if capture.tasks[0].Action != ActionUpsertSubject || capture.tasks[1].Action != ActionSetSection {
		t.Errorf("parked actions = %q, %q", capture.tasks[0].Action, capture.tasks[1].Action)
	}
	for _, task := range capture.tasks {
		if task.ScheduleID != added.ID || task.Status != "pending" {
			t.Errorf("parked task %+v should reference %s and be pending", task, added.ID)
		}
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	flaky := &flakyStore{MemStore: store.NewMemStore(), fail: true}
	flaky.SeedInstructor(1)
	engine := newTestEngine(flaky)
	ctx := context.Background()

	// Heal the store while the engine is backing off.
	go func() {
		time.Sleep(500 * time.Microsecond)
		flaky.heal()
	}()

	// Whether the heal lands before the last attempt is timing dependent, so
	// accept either outcome but require the authoritative write to survive.
	added, err := engine.AddSchedule(ctx, 1, testSchedule(0))
	if err != nil {
		var propErr *PropagationError
		if !errors.As(err, &propErr) {
			t.Fatalf("AddSchedule = %v, want nil or PropagationError", err)
		}
	}
	schedules, _ := flaky.GetInstructorSchedules(ctx, 1)
	if len(schedules) != 1 || schedules[0].ID != added.ID {
		t.Errorf("instructor list = %v, want the committed schedule", schedules)
	}
}

func TestReassignInstructorPreservesOthers(t *testing.T) {
	st := store.NewMemStore()
	st.SeedInstructor(1)
	st.SeedInstructor(2)
	st.SeedInstructor(3)
	st.SeedSubjectRoster(10, 1, 3)
	engine := newTestEngine(st)
	ctx := context.Background()

	// Instructor 1 and 3 both teach subject 10 in disjoint slots.
	first, err := engine.AddSchedule(ctx, 1, testSchedule(0))
	if err != nil {
		t.Fatalf("AddSchedule returned error: %v", err)
	}
	otherSlot := testSchedule(0)
	otherSlot.StartTime = "13:00"
	otherSlot.EndTime = "14:00"
	kept, err := engine.AddSchedule(ctx, 3, otherSlot)
	if err != nil {
		t.Fatalf("AddSchedule returned error: %v", err)
	}

	// Instructor 2 takes over from instructor 1.
	replacement := testSchedule(0)
	replacement.StartTime = "10:00"
	replacement.EndTime = "11:00"
	added, err := engine.AddSchedule(ctx, 2, replacement)
	if err != nil {
		t.Fatalf("AddSchedule returned error: %v", err)
	}

	if err := engine.ReassignInstructor(ctx, 10, 1, 2); err != nil {
		t.Fatalf("ReassignInstructor returned error: %v", err)
	}

	copies, _ := st.GetSubjectScheduleCopies(ctx, 10)
	byID := make(map[string]models.Schedule, len(copies))
	for _, mirror := range copies {
		byID[mirror.ID] = mirror
	}
	if _, ok := byID[first.ID]; ok {
		t.Errorf("old instructor's copy %s should be gone", first.ID)
	}
	if _, ok := byID[kept.ID]; !ok {
		t.Errorf("unaffected instructor's copy %s must survive", kept.ID)
	}
	if _, ok := byID[added.ID]; !ok {
		t.Errorf("new instructor's copy %s must be present", added.ID)
	}

	// The roster follows the handover: instructor 2 replaces 1, instructor 3
	// keeps teaching.
	roster, _ := st.GetSubjectInstructors(ctx, 10)
	onRoster := make(map[uint]bool, len(roster))
	for _, id := range roster {
		onRoster[id] = true
	}
	if onRoster[1] || !onRoster[2] || !onRoster[3] {
		t.Errorf("roster = %v, want instructors 2 and 3 without 1", roster)
	}
}

func TestConcurrentAddsSerializePerInstructor(t *testing.T) {
	st := store.NewMemStore()
	st.SeedInstructor(1)
	engine := newTestEngine(st)
	ctx := context.Background()

	// Two identical candidates race; exactly one may win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.AddSchedule(ctx, 1, testSchedule(0))
		}(i)
	}
	wg.Wait()

	var conflicts int
	for _, err := range errs {
		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			conflicts++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if conflicts != 1 {
		t.Errorf("conflict rejections = %d, want exactly 1", conflicts)
	}

	schedules, _ := st.GetInstructorSchedules(ctx, 1)
	if len(schedules) != 1 {
		t.Errorf("instructor list has %d schedules, want 1", len(schedules))
	}
}

func TestCheckCandidateIsReadOnly(t *testing.T) {
	st := store.NewMemStore()
	existing := testSchedule(0)
	existing.ID = "seed"
	st.SeedInstructor(1, existing)
	engine := newTestEngine(st)
	ctx := context.Background()

	result, err := engine.CheckCandidate(ctx, 1, testSchedule(0))
	if err != nil {
		t.Fatalf("CheckCandidate returned error: %v", err)
	}
	if !result.HasConflict {
		t.Error("dry run should report the conflict")
	}

	schedules, _ := st.GetInstructorSchedules(ctx, 1)
	if len(schedules) != 1 {
		t.Errorf("dry run must not write, list = %v", schedules)
	}
	copies, _ := st.GetSubjectScheduleCopies(ctx, 10)
	if len(copies) != 0 {
		t.Errorf("dry run must not propagate, copies = %v", copies)
	}
}
