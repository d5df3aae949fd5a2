package models

import (
	"errors"
	"testing"
)

func TestMinutesOfDay(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "plain HH:MM", input: "08:30", want: 510},
		{name: "HH:MM:SS", input: "14:05:00", want: 845},
		{name: "single digit hour", input: "9:15", want: 555},
		{name: "iso datetime", input: "2024-09-02T08:30:00Z", want: 510},
		{name: "mysql datetime", input: "2024-09-02 13:45:00", want: 825},
		{name: "time with zone suffix", input: "09:15:00Z", want: 555},
		{name: "midnight", input: "00:00", want: 0},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "not a time", wantErr: true},
		{name: "hour out of range", input: "25:00", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MinutesOfDay(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("MinutesOfDay(%q) = %d, expected error", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("MinutesOfDay(%q) returned error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("MinutesOfDay(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeDays(t *testing.T) {
	got := NormalizeDays([]string{"mon", "Monday", " WED ", "friday", "fri"})
	want := []string{"Monday", "Wednesday", "Friday"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeDays returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeDays[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScheduleValidate(t *testing.T) {
	valid := func() Schedule {
		return Schedule{
			Days:      []string{"Monday"},
			StartTime: "08:00",
			EndTime:   "09:00",
			RoomName:  "B101",
			SubjectID: 1,
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Schedule)
		wantErr error
	}{
		{name: "valid", mutate: func(s *Schedule) {}},
		{name: "no days", mutate: func(s *Schedule) { s.Days = nil }, wantErr: ErrEmptyDays},
		{name: "blank room", mutate: func(s *Schedule) { s.RoomName = "   " }, wantErr: ErrMissingRoom},
		{name: "start equals end", mutate: func(s *Schedule) { s.EndTime = s.StartTime }, wantErr: ErrInvalidTimeRange},
		{name: "start after end", mutate: func(s *Schedule) { s.StartTime = "10:00" }, wantErr: ErrInvalidTimeRange},
		{name: "unparseable start", mutate: func(s *Schedule) { s.StartTime = "late" }, wantErr: ErrInvalidTimeRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() returned error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestScheduleValidateNormalizesDays(t *testing.T) {
	s := Schedule{
		Days:      []string{"mon", "monday", "tue"},
		StartTime: "08:00",
		EndTime:   "09:00",
		RoomName:  "B101",
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if len(s.Days) != 2 || s.Days[0] != "Monday" || s.Days[1] != "Tuesday" {
		t.Errorf("Validate() left days %v, want [Monday Tuesday]", s.Days)
	}
}

func TestSameScope(t *testing.T) {
	a := Schedule{Semester: "Fall", AcademicYear: "2024"}
	b := Schedule{Semester: "Fall", AcademicYear: "2024"}
	c := Schedule{Semester: "Spring", AcademicYear: "2025"}

	if !a.SameScope(&b) {
		t.Error("schedules in the same term should share scope")
	}
	if a.SameScope(&c) {
		t.Error("schedules in different terms should not share scope")
	}
}

func TestSameSlot(t *testing.T) {
	base := Schedule{
		Days:      []string{"Monday", "Wednesday"},
		StartTime: "08:00",
		EndTime:   "09:30",
		Semester:  "Fall",
	}

	same := base
	same.Days = []string{"wed", "mon"} // order and spelling do not matter
	if !base.SameSlot(&same) {
		t.Error("identical slots with reordered days should match")
	}

	otherTime := base
	otherTime.StartTime = "08:30"
	if base.SameSlot(&otherTime) {
		t.Error("slots with different start times should not match")
	}

	otherTerm := base
	otherTerm.Semester = "Spring"
	if base.SameSlot(&otherTerm) {
		t.Error("slots in different terms should not match")
	}
}
