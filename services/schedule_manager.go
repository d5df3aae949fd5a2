package services

import (
	"registrar_go/store"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScheduleManager supervises the background workers the scheduling core
// needs: currently the propagation reconciler.
type ScheduleManager struct {
	reconciler *Reconciler
}

func NewScheduleManager(db *gorm.DB, st store.ScheduleStore) *ScheduleManager {
	return &ScheduleManager{
		reconciler: NewReconciler(db, st),
	}
}

// Reconciler exposes the reconciler so the engine can be wired to it as its
// task recorder.
func (sm *ScheduleManager) Reconciler() *Reconciler {
	return sm.reconciler
}

// Start launches all background workers.
func (sm *ScheduleManager) Start() {
	logrus.Info("Starting schedule manager...")
	sm.reconciler.Start()
	logrus.Info("All schedulers started successfully")
}

// Stop shuts the workers down.
func (sm *ScheduleManager) Stop() {
	sm.reconciler.Stop()
}
