package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"registrar_go/config"
	"registrar_go/database"
	"registrar_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Queue item structure stored in Redis. Kept minimal to reduce payload
// size; the database row is the source of truth once the worker drains it.
type queuedNotification struct {
	UserIDs   []uint    `json:"user_ids"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

const redisListKey = "notifications:queue"

// Service exposes notification creation with an optional Redis write-behind
// queue. If Redis is disabled or unavailable it performs direct DB inserts.
type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
}

func NewService() *Service {
	return &Service{
		db:       database.GetDB(),
		redis:    database.GetRedisClient(),
		useRedis: config.AppConfig != nil && config.AppConfig.UseRedisNotifications && database.GetRedisClient() != nil,
	}
}

// Notify queues (or directly inserts) one notification for each user id.
func (s *Service) Notify(userIDs []uint, title, message, ntype string) {
	if len(userIDs) == 0 {
		return
	}

	if s.useRedis {
		item := queuedNotification{
			UserIDs:   userIDs,
			Title:     title,
			Message:   message,
			Type:      ntype,
			CreatedAt: time.Now(),
		}
		payload, err := json.Marshal(item)
		if err == nil {
			if pushErr := s.redis.LPush(context.Background(), redisListKey, payload).Err(); pushErr == nil {
				return
			}
			logrus.Warn("Redis push failed, falling back to direct notification insert")
		}
	}

	s.insertDirect(userIDs, title, message, ntype)
}

// StartWorker drains the Redis queue in the background until stop is closed.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		return
	}
	go func() {
		logrus.Info("Notification worker started")
		for {
			select {
			case <-stop:
				logrus.Info("Notification worker stopped")
				return
			default:
			}

			result, err := s.redis.BRPop(context.Background(), 5*time.Second, redisListKey).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					logrus.WithError(err).Warn("Notification queue read failed")
					time.Sleep(2 * time.Second)
				}
				continue
			}
			if len(result) < 2 {
				continue
			}

			var item queuedNotification
			if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
				logrus.WithError(err).Error("Dropping corrupt notification queue item")
				continue
			}
			s.insertDirect(item.UserIDs, item.Title, item.Message, item.Type)
		}
	}()
}

func (s *Service) insertDirect(userIDs []uint, title, message, ntype string) {
	rows := make([]models.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		rows = append(rows, models.Notification{
			UserID:  userID,
			Title:   title,
			Message: message,
			Type:    ntype,
		})
	}
	if err := s.db.Create(&rows).Error; err != nil {
		logrus.WithError(err).Error("Failed to insert notifications")
	}
}

func (s *Service) userIDForInstructor(instructorID uint) []uint {
	var instructor models.Instructor
	if err := s.db.Select("id, user_id").First(&instructor, instructorID).Error; err != nil {
		return nil
	}
	return []uint{instructor.UserID}
}

func describeSlot(schedule models.Schedule) string {
	return fmt.Sprintf("%s %s-%s in %s",
		strings.Join(schedule.Days, "/"), schedule.StartTime, schedule.EndTime, schedule.RoomName)
}

// ScheduleCommitted implements the engine's Notifier interface.
func (s *Service) ScheduleCommitted(schedule models.Schedule) {
	s.Notify(s.userIDForInstructor(schedule.InstructorID),
		"Schedule updated",
		fmt.Sprintf("Your class schedule %s has been saved.", describeSlot(schedule)),
		"success")
}

// ScheduleRemoved implements the engine's Notifier interface.
func (s *Service) ScheduleRemoved(schedule models.Schedule) {
	s.Notify(s.userIDForInstructor(schedule.InstructorID),
		"Schedule removed",
		fmt.Sprintf("Your class schedule %s has been removed.", describeSlot(schedule)),
		"info")
}

// PropagationDeferred implements the engine's Notifier interface. The
// schedule itself is committed; only the mirror update is still pending.
func (s *Service) PropagationDeferred(schedule models.Schedule, stage string) {
	s.Notify(s.userIDForInstructor(schedule.InstructorID),
		"Schedule saved, sync pending",
		fmt.Sprintf("Your schedule change was saved but the %s update is still syncing. No action needed.", stage),
		"warning")
}
