// Package store is the persistence layer: a single Store interface with
// a SQLite driver for production and an in-memory driver for dev/tests.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"medremind/internal/model"
	logx "medremind/pkg/logx"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": process-memory backend (nothing survives a restart)
//
// If Driver is empty, "memory" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ScheduleFilter narrows ListSchedules. Zero fields match everything.
type ScheduleFilter struct {
	SeniorID     string
	MedicationID string
	IsActive     *bool
	Day          model.Weekday // matches schedules whose weekday set contains it
}

// Store is the persistence API used by the schedule, notification and
// processor services. Implementations wrap model.ErrNotFound for absent
// rows so callers can classify with errors.Is.
type Store interface {
	// Users / medications (the minimal records the engine needs).
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateMedication(ctx context.Context, m *model.Medication) error
	GetMedication(ctx context.Context, id string) (*model.Medication, error)

	// Schedules.
	CreateSchedule(ctx context.Context, s *model.Schedule) error
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	UpdateSchedule(ctx context.Context, s *model.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	ListSchedules(ctx context.Context, f ScheduleFilter) ([]*model.Schedule, error)

	// Processor scans. Weekday membership is evaluated by the caller
	// (it depends on the recipient's timezone), these filter on time and
	// status only.
	DueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error)
	MissedDoseCandidates(ctx context.Context, now time.Time, window time.Duration) ([]*model.Schedule, error)
	EscalationCandidates(ctx context.Context, cutoff time.Time) ([]*model.Schedule, error)
	SchedulesMissingNextDue(ctx context.Context) ([]*model.Schedule, error)

	// Notifications.
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	UpdateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*model.Notification, error)
	CountNotifications(ctx context.Context, userID string, channel model.Channel, since time.Time) (int, error)
	NotificationStats(ctx context.Context, userID string) (map[model.NotificationStatus]map[model.Channel]int, error)

	// Lifecycle log (append-only).
	AppendNotificationLog(ctx context.Context, l *model.NotificationLog) error
	ListNotificationLogs(ctx context.Context, notificationID string) ([]*model.NotificationLog, error)

	// Confirmations.
	CreateConfirmation(ctx context.Context, c *model.Confirmation) error
	ConfirmationsForSchedule(ctx context.Context, scheduleID string, since time.Time) ([]*model.Confirmation, error)

	// Notification settings (read-mostly).
	UpsertNotificationSetting(ctx context.Context, s *model.NotificationSetting) error
	SettingsForUser(ctx context.Context, userID string) ([]*model.NotificationSetting, error)

	// Caregiver relations.
	CreateCaregiverRelation(ctx context.Context, r *model.CaregiverRelation) error
	ActiveCaregivers(ctx context.Context, seniorID string) ([]*model.CaregiverRelation, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		if driver == "" {
			log.Warn("storage driver not set; using in-memory store")
		}
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
