package services

import (
	"registrar_go/models"
)

// ConflictResult is what the checker hands back to callers: a verdict plus
// every existing schedule the candidate collides with, so the operator can
// see exactly which slots are in the way.
type ConflictResult struct {
	HasConflict bool              `json:"has_conflict"`
	Conflicts   []models.Schedule `json:"conflicts"`
}

// CheckConflict decides whether a candidate schedule can join the
// instructor's existing list. excludeID skips the schedule being edited so a
// slot never conflicts with its own prior version.
//
// Two schedules conflict when they share a term scope, share at least one
// day, and their time ranges overlap. Ranges are half-open: a class ending
// at 10:00 does not conflict with one starting at 10:00. Pure and
// deterministic: no reads, no writes.
func CheckConflict(candidate models.Schedule, existing []models.Schedule, excludeID string) ConflictResult {
	candidateStart := candidate.StartMinutes()
	candidateEnd := candidate.EndMinutes()
	candidateDays := daySet(candidate.Days)

	conflicts := make([]models.Schedule, 0)
	for _, other := range existing {
		if excludeID != "" && other.ID == excludeID {
			continue
		}
		if !candidate.SameScope(&other) {
			continue
		}
		if !sharesDay(candidateDays, other.Days) {
			continue
		}
		// Any shared day with overlapping minutes flags the whole
		// schedule; there is no per-day-pair bookkeeping to do.
		if rangesOverlap(candidateStart, candidateEnd, other.StartMinutes(), other.EndMinutes()) {
			conflicts = append(conflicts, other)
		}
	}

	return ConflictResult{
		HasConflict: len(conflicts) > 0,
		Conflicts:   conflicts,
	}
}

// rangesOverlap implements half-open interval overlap on minutes since
// midnight: [s1,e1) and [s2,e2) overlap iff s1 < e2 && s2 < e1.
func rangesOverlap(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

func daySet(days []string) map[string]bool {
	set := make(map[string]bool, len(days))
	for _, day := range days {
		set[models.CanonicalDay(day)] = true
	}
	return set
}

func sharesDay(candidateDays map[string]bool, otherDays []string) bool {
	for _, day := range otherDays {
		if candidateDays[models.CanonicalDay(day)] {
			return true
		}
	}
	return false
}
