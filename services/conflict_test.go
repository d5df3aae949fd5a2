package services

import (
	"testing"

	"registrar_go/models"
)

func slot(id string, days []string, start, end string) models.Schedule {
	return models.Schedule{
		ID:        id,
		Days:      days,
		StartTime: start,
		EndTime:   end,
		RoomName:  "B101",
		SubjectID: 1,
		Semester:  "Fall",
	}
}

func TestCheckConflictOverlap(t *testing.T) {
	existing := []models.Schedule{
		slot("a", []string{"Monday"}, "08:00", "09:00"),
	}

	result := CheckConflict(slot("", []string{"Monday"}, "08:30", "09:30"), existing, "")
	if !result.HasConflict {
		t.Fatal("overlapping Monday slots should conflict")
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].ID != "a" {
		t.Errorf("conflicts = %v, want the existing slot", result.Conflicts)
	}

	// Overlap is symmetric: the earlier slot against the later one conflicts too.
	reversed := CheckConflict(slot("", []string{"Monday"}, "08:00", "09:00"),
		[]models.Schedule{slot("b", []string{"Monday"}, "08:30", "09:30")}, "")
	if !reversed.HasConflict {
		t.Error("overlap detection should not depend on which slot came first")
	}
}

func TestCheckConflictBoundary(t *testing.T) {
	existing := []models.Schedule{
		slot("a", []string{"Monday"}, "08:00", "10:00"),
	}

	cases := []struct {
		name         string
		start, end   string
		wantConflict bool
	}{
		{name: "starts exactly at end", start: "10:00", end: "11:00", wantConflict: false},
		{name: "ends exactly at start", start: "07:00", end: "08:00", wantConflict: false},
		{name: "one minute into the slot", start: "09:59", end: "11:00", wantConflict: true},
		{name: "one minute before the end boundary", start: "07:00", end: "08:01", wantConflict: true},
		{name: "fully contained", start: "08:30", end: "09:00", wantConflict: true},
		{name: "fully containing", start: "07:00", end: "11:00", wantConflict: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := CheckConflict(slot("", []string{"Monday"}, tc.start, tc.end), existing, "")
			if result.HasConflict != tc.wantConflict {
				t.Errorf("conflict = %v, want %v", result.HasConflict, tc.wantConflict)
			}
		})
	}
}

func TestCheckConflictDisjointDays(t *testing.T) {
	existing := []models.Schedule{
		slot("a", []string{"Monday", "Wednesday"}, "08:00", "09:00"),
	}

	result := CheckConflict(slot("", []string{"Tuesday", "Thursday"}, "08:00", "09:00"), existing, "")
	if result.HasConflict {
		t.Error("same time on disjoint days should not conflict")
	}

	shared := CheckConflict(slot("", []string{"Thursday", "Wednesday"}, "08:00", "09:00"), existing, "")
	if !shared.HasConflict {
		t.Error("a single shared day is enough to conflict")
	}
}

func TestCheckConflictDayAliases(t *testing.T) {
	existing := []models.Schedule{
		slot("a", []string{"mon"}, "08:00", "09:00"),
	}

	result := CheckConflict(slot("", []string{"Monday"}, "08:30", "09:30"), existing, "")
	if !result.HasConflict {
		t.Error("day spelling variants should compare equal")
	}
}

func TestCheckConflictTermScope(t *testing.T) {
	fall := slot("a", []string{"Monday"}, "08:00", "09:00")

	spring := slot("", []string{"Monday"}, "08:00", "09:00")
	spring.Semester = "Spring"
	spring.AcademicYear = "2025"

	result := CheckConflict(spring, []models.Schedule{fall}, "")
	if result.HasConflict {
		t.Error("identical slots in different terms should not conflict")
	}
}

func TestCheckConflictExcludeID(t *testing.T) {
	existing := []models.Schedule{
		slot("editing", []string{"Monday"}, "08:00", "09:00"),
		slot("other", []string{"Monday"}, "10:00", "11:00"),
	}

	// Unchanged edit: the slot must not collide with its own prior version.
	result := CheckConflict(slot("editing", []string{"Monday"}, "08:00", "09:00"), existing, "editing")
	if result.HasConflict {
		t.Errorf("edited slot conflicted with itself: %v", result.Conflicts)
	}

	// The exclusion covers only the edited slot, not the rest of the list.
	moved := CheckConflict(slot("editing", []string{"Monday"}, "10:30", "11:30"), existing, "editing")
	if !moved.HasConflict || len(moved.Conflicts) != 1 || moved.Conflicts[0].ID != "other" {
		t.Errorf("moved slot should conflict with %q, got %v", "other", moved.Conflicts)
	}
}

func TestCheckConflictEmptyList(t *testing.T) {
	result := CheckConflict(slot("", []string{"Monday"}, "08:00", "09:00"), nil, "")
	if result.HasConflict {
		t.Error("a candidate against an empty list never conflicts")
	}
	if result.Conflicts == nil {
		t.Error("conflicts should be an empty slice, not nil")
	}
}
