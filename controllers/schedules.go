package controllers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"registrar_go/middleware"
	"registrar_go/models"
	"registrar_go/services"
	"registrar_go/store"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

// ScheduleRequest is the request body for creating, updating or dry-run
// checking a schedule.
type ScheduleRequest struct {
	InstructorID uint     `json:"instructor_id"`
	Days         []string `json:"days"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	RoomName     string   `json:"room_name"`
	SubjectID    uint     `json:"subject_id"`
	SectionID    uint     `json:"section_id"`
	Semester     string   `json:"semester"`
	AcademicYear string   `json:"academic_year"`
	ExcludeID    string   `json:"exclude_id"` // dry-run only: the schedule being edited
}

func (r *ScheduleRequest) toSchedule() models.Schedule {
	return models.Schedule{
		Days:         r.Days,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		RoomName:     r.RoomName,
		SubjectID:    r.SubjectID,
		SectionID:    r.SectionID,
		InstructorID: r.InstructorID,
		Semester:     r.Semester,
		AcademicYear: r.AcademicYear,
	}
}

// ConflictSlot names a conflicting schedule for the operator: which days,
// which time window, which subject.
type ConflictSlot struct {
	ScheduleID string `json:"schedule_id"`
	Days       string `json:"days"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	RoomName   string `json:"room_name"`
	SubjectID  uint   `json:"subject_id"`
}

func makeConflictSlots(conflicts []models.Schedule) []ConflictSlot {
	slots := make([]ConflictSlot, 0, len(conflicts))
	for _, conflict := range conflicts {
		slots = append(slots, ConflictSlot{
			ScheduleID: conflict.ID,
			Days:       strings.Join(conflict.Days, ","),
			StartTime:  conflict.StartTime,
			EndTime:    conflict.EndTime,
			RoomName:   conflict.RoomName,
			SubjectID:  conflict.SubjectID,
		})
	}
	return slots
}

type ScheduleController struct {
	engine *services.SyncEngine
	store  store.ScheduleStore
}

func NewScheduleController(engine *services.SyncEngine, st store.ScheduleStore) *ScheduleController {
	return &ScheduleController{engine: engine, store: st}
}

// CheckSchedule runs validation and conflict detection without writing
// anything. Pass exclude_id when checking an edit so the slot does not
// conflict with its own prior version.
func (sc *ScheduleController) CheckSchedule(c *fiber.Ctx) error {
	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	candidate := req.toSchedule()
	candidate.ID = req.ExcludeID
	result, err := sc.engine.CheckCandidate(c.Context(), req.InstructorID, candidate)
	if err != nil {
		return sc.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"has_conflict": result.HasConflict,
		"conflicts":    makeConflictSlots(result.Conflicts),
	})
}

// CreateSchedule adds a new schedule to an instructor and propagates the
// denormalized copies.
func (sc *ScheduleController) CreateSchedule(c *fiber.Ctx) error {
	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	schedule, err := sc.engine.AddSchedule(c.Context(), req.InstructorID, req.toSchedule())
	if err != nil {
		var propErr *services.PropagationError
		if errors.As(err, &propErr) && schedule != nil {
			// The authoritative write committed; the operator must not
			// re-submit. Report partial success, not failure.
			middleware.LogActivity(c, "CREATE", "schedules", req.InstructorID, fiber.Map{"schedule_id": schedule.ID, "propagation": propErr.Stage})
			return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
				"message":       "Schedule saved; mirror update pending",
				"schedule":      schedule,
				"pending_stage": propErr.Stage,
			})
		}
		return sc.respondError(c, err)
	}

	middleware.LogActivity(c, "CREATE", "schedules", req.InstructorID, fiber.Map{"schedule_id": schedule.ID})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Schedule created successfully",
		"schedule": schedule,
	})
}

// UpdateSchedule replaces a schedule in place, re-validating it as if new
// with itself excluded from conflict comparison.
func (sc *ScheduleController) UpdateSchedule(c *fiber.Ctx) error {
	scheduleID := c.Params("id")
	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	schedule, err := sc.engine.UpdateSchedule(c.Context(), req.InstructorID, scheduleID, req.toSchedule())
	if err != nil {
		var propErr *services.PropagationError
		if errors.As(err, &propErr) && schedule != nil {
			middleware.LogActivity(c, "UPDATE", "schedules", req.InstructorID, fiber.Map{"schedule_id": schedule.ID, "propagation": propErr.Stage})
			return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
				"message":       "Schedule saved; mirror update pending",
				"schedule":      schedule,
				"pending_stage": propErr.Stage,
			})
		}
		return sc.respondError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "schedules", req.InstructorID, fiber.Map{"schedule_id": schedule.ID})
	return c.JSON(fiber.Map{
		"message":  "Schedule updated successfully",
		"schedule": schedule,
	})
}

// DeleteSchedule removes a schedule from its instructor and cleans up every
// denormalized copy. Deleting an already-deleted schedule succeeds.
func (sc *ScheduleController) DeleteSchedule(c *fiber.Ctx) error {
	scheduleID := c.Params("id")
	instructorID, err := strconv.ParseUint(c.Query("instructor_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "instructor_id query parameter is required"})
	}

	if err := sc.engine.RemoveSchedule(c.Context(), uint(instructorID), scheduleID); err != nil {
		var propErr *services.PropagationError
		if errors.As(err, &propErr) {
			return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
				"message":       "Schedule removed; mirror cleanup pending",
				"pending_stage": propErr.Stage,
			})
		}
		return sc.respondError(c, err)
	}

	middleware.LogActivity(c, "DELETE", "schedules", uint(instructorID), fiber.Map{"schedule_id": scheduleID})
	return c.JSON(fiber.Map{"message": "Schedule deleted successfully"})
}

// GetInstructorSchedules returns the authoritative schedule list.
func (sc *ScheduleController) GetInstructorSchedules(c *fiber.Ctx) error {
	instructorID, err := strconv.ParseUint(c.Params("instructor_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid instructor id"})
	}

	schedules, err := sc.store.GetInstructorSchedules(c.Context(), uint(instructorID))
	if err != nil {
		return sc.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"instructor_id": instructorID,
		"schedules":     schedules,
	})
}

// ReassignRequest is the body for moving a subject's schedule copies from
// one instructor to another.
type ReassignRequest struct {
	OldInstructorID uint `json:"old_instructor_id"`
	NewInstructorID uint `json:"new_instructor_id"`
}

// ReassignSubject rebuilds the subject's denormalized copy set after an
// instructor roster change.
func (sc *ScheduleController) ReassignSubject(c *fiber.Ctx) error {
	subjectID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid subject id"})
	}

	var req ReassignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := sc.engine.ReassignInstructor(c.Context(), uint(subjectID), req.OldInstructorID, req.NewInstructorID); err != nil {
		var propErr *services.PropagationError
		if errors.As(err, &propErr) {
			return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
				"message":       "Reassignment recorded; mirror rebuild pending",
				"pending_stage": propErr.Stage,
			})
		}
		return sc.respondError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "subjects", uint(subjectID), fiber.Map{
		"old_instructor_id": req.OldInstructorID,
		"new_instructor_id": req.NewInstructorID,
	})
	return c.JSON(fiber.Map{"message": "Subject schedules reassigned successfully"})
}

// ExportInstructorSchedules writes the instructor's timetable as an Excel
// workbook.
func (sc *ScheduleController) ExportInstructorSchedules(c *fiber.Ctx) error {
	instructorID, err := strconv.ParseUint(c.Params("instructor_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid instructor id"})
	}

	schedules, err := sc.store.GetInstructorSchedules(c.Context(), uint(instructorID))
	if err != nil {
		return sc.respondError(c, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Timetable"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Days", "Start", "End", "Room", "Subject ID", "Section ID", "Semester", "Academic Year"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, schedule := range schedules {
		values := []interface{}{
			strings.Join(schedule.Days, ", "),
			schedule.StartTime,
			schedule.EndTime,
			schedule.RoomName,
			schedule.SubjectID,
			schedule.SectionID,
			schedule.Semester,
			schedule.AcademicYear,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build workbook"})
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="timetable_instructor_%d.xlsx"`, instructorID))
	return c.Send(buf.Bytes())
}

// respondError maps core errors onto HTTP responses. Conflict rejections
// name the specific slots in the way. Partial failures never reach here;
// handlers report them as partial success.
func (sc *ScheduleController) respondError(c *fiber.Ctx, err error) error {
	var conflictErr *services.ConflictError
	if errors.As(err, &conflictErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "Schedule conflicts with existing slots",
			"conflicts": makeConflictSlots(conflictErr.Conflicts),
		})
	}

	switch {
	case errors.Is(err, models.ErrInvalidTimeRange),
		errors.Is(err, models.ErrEmptyDays),
		errors.Is(err, models.ErrMissingRoom):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrScheduleNotFound), errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}

	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Storage temporarily unavailable, please retry"})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}
