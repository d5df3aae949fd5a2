package routes

import (
	"registrar_go/controllers"
	"registrar_go/middleware"
	"registrar_go/services"
	"registrar_go/store"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, engine *services.SyncEngine, st store.ScheduleStore) {
	// Initialize controllers
	authController := &controllers.AuthController{}
	scheduleController := controllers.NewScheduleController(engine, st)

	// API group
	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Get("/profile", middleware.JWTMiddleware(), authController.GetProfile)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())

	protected.Get("/profile", authController.GetProfile)
	// Logout - blacklist token for 24 hours
	protected.Post("/auth/logout", authController.Logout)

	// Schedule routes: mutations are restricted to owner/admin, reads and
	// dry-run checks are open to instructors as well
	schedules := protected.Group("/schedules")
	schedules.Post("/check", middleware.RequireInstructorOrAbove(), scheduleController.CheckSchedule)
	schedules.Get("/instructor/:instructor_id", middleware.RequireInstructorOrAbove(), scheduleController.GetInstructorSchedules)
	schedules.Get("/export/:instructor_id", middleware.RequireInstructorOrAbove(), scheduleController.ExportInstructorSchedules)
	schedules.Post("/", middleware.RequireOwnerOrAdmin(), scheduleController.CreateSchedule)
	schedules.Put("/:id", middleware.RequireOwnerOrAdmin(), scheduleController.UpdateSchedule)
	schedules.Delete("/:id", middleware.RequireOwnerOrAdmin(), scheduleController.DeleteSchedule)

	// User management
	users := protected.Group("/users")
	users.Post("/", middleware.RequireOwnerOrAdmin(), authController.Register)

	// Subject routes
	subjects := protected.Group("/subjects")
	subjects.Post("/:id/reassign", middleware.RequireOwnerOrAdmin(), scheduleController.ReassignSubject)
}
