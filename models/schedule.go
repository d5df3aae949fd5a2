package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Schedule is a single weekly class slot. It is stored as a JSON document
// inside the owning instructor's record and mirrored into subject and
// section records by the synchronization engine.
type Schedule struct {
	ID           string   `json:"id"`
	Days         []string `json:"days"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	RoomName     string   `json:"room_name"`
	SubjectID    uint     `json:"subject_id"`
	SectionID    uint     `json:"section_id,omitempty"`
	InstructorID uint     `json:"instructor_id"`
	Semester     string   `json:"semester,omitempty"`
	AcademicYear string   `json:"academic_year,omitempty"`
}

// Validation errors surfaced before any write happens.
var (
	ErrInvalidTimeRange = errors.New("start time must be before end time")
	ErrEmptyDays        = errors.New("schedule needs at least one day")
	ErrMissingRoom      = errors.New("schedule needs a room")
)

var canonicalDays = map[string]string{
	"mon": "Monday", "monday": "Monday",
	"tue": "Tuesday", "tues": "Tuesday", "tuesday": "Tuesday",
	"wed": "Wednesday", "wednesday": "Wednesday",
	"thu": "Thursday", "thur": "Thursday", "thurs": "Thursday", "thursday": "Thursday",
	"fri": "Friday", "friday": "Friday",
	"sat": "Saturday", "saturday": "Saturday",
	"sun": "Sunday", "sunday": "Sunday",
}

// CanonicalDay maps common weekday spellings to their canonical name.
// Unknown values are returned trimmed so they still compare consistently.
func CanonicalDay(day string) string {
	day = strings.TrimSpace(day)
	if canonical, ok := canonicalDays[strings.ToLower(day)]; ok {
		return canonical
	}
	return day
}

// NormalizeDays canonicalizes day names and drops duplicates, preserving
// first-seen order.
func NormalizeDays(days []string) []string {
	seen := make(map[string]bool, len(days))
	normalized := make([]string, 0, len(days))
	for _, day := range days {
		canonical := CanonicalDay(day)
		if canonical == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true
		normalized = append(normalized, canonical)
	}
	return normalized
}

// Validate checks the schedule against the rules every slot must satisfy
// before it can be conflict-checked or persisted. It normalizes the day
// list in place.
func (s *Schedule) Validate() error {
	s.Days = NormalizeDays(s.Days)
	if len(s.Days) == 0 {
		return ErrEmptyDays
	}
	if strings.TrimSpace(s.RoomName) == "" {
		return ErrMissingRoom
	}

	start, err := MinutesOfDay(s.StartTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimeRange, err)
	}
	end, err := MinutesOfDay(s.EndTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimeRange, err)
	}
	if start >= end {
		return ErrInvalidTimeRange
	}
	return nil
}

// SameScope reports whether two schedules belong to the same scheduling
// term. Schedules in different terms never conflict.
func (s *Schedule) SameScope(other *Schedule) bool {
	return s.Semester == other.Semester && s.AcademicYear == other.AcademicYear
}

// SameSlot reports whether two schedules describe the same logical slot:
// identical day set, time range and term scope, independent of id.
func (s *Schedule) SameSlot(other *Schedule) bool {
	if !s.SameScope(other) {
		return false
	}
	if s.StartTime != other.StartTime || s.EndTime != other.EndTime {
		return false
	}
	a := NormalizeDays(s.Days)
	b := NormalizeDays(other.Days)
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, day := range a {
		set[day] = true
	}
	for _, day := range b {
		if !set[day] {
			return false
		}
	}
	return true
}

// StartMinutes returns the start time as minutes since midnight. The
// schedule is expected to have passed Validate.
func (s *Schedule) StartMinutes() int {
	minutes, _ := MinutesOfDay(s.StartTime)
	return minutes
}

// EndMinutes returns the end time as minutes since midnight.
func (s *Schedule) EndMinutes() int {
	minutes, _ := MinutesOfDay(s.EndTime)
	return minutes
}

// MinutesOfDay parses a wall-clock value into minutes since midnight.
func MinutesOfDay(value string) (int, error) {
	hour, minute, err := parseHourMinute(value)
	if err != nil {
		return 0, err
	}
	return hour*60 + minute, nil
}

var timePattern = regexp.MustCompile(`\d{1,2}:\d{2}(?::\d{2})?`)

func parseHourMinute(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 0, fmt.Errorf("time value cannot be empty")
	}

	layout := "15:04"
	if colonCount := strings.Count(value, ":"); colonCount >= 2 {
		layout = "15:04:05"
	}

	if t, err := time.Parse(layout, value); err == nil {
		return t.Hour(), t.Minute(), nil
	} else {
		fallbackLayouts := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04",
			"2006-01-02T15:04",
		}

		for _, layout := range fallbackLayouts {
			if parsed, altErr := time.Parse(layout, value); altErr == nil {
				return parsed.Hour(), parsed.Minute(), nil
			}
		}

		if match := timePattern.FindString(value); match != "" && match != value {
			return parseHourMinute(match)
		}

		return 0, 0, fmt.Errorf("invalid time format %q: %w", value, err)
	}
}
