package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medremind/internal/model"
	logx "medremind/pkg/logx"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s := NewMemory()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSchedule(t *testing.T, s Store, mutate func(*model.Schedule)) *model.Schedule {
	t.Helper()
	now := time.Date(2026, time.August, 31, 7, 0, 0, 0, time.UTC)
	sc := &model.Schedule{
		ID:                  model.NewID(),
		MedicationID:        model.NewID(),
		SeniorID:            model.NewID(),
		Frequency:           model.FrequencyDaily,
		DoseTimes:           []model.DoseTime{{Time: "08:00"}},
		DaysOfWeek:          model.WeekdaySet{model.Monday, model.Tuesday},
		IsActive:            true,
		ReminderLeadMinutes: 15,
		NotificationStatus:  model.DeliveryPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if mutate != nil {
		mutate(sc)
	}
	require.NoError(t, s.CreateSchedule(context.Background(), sc))
	return sc
}

func TestScheduleCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := seedSchedule(t, s, nil)

	got, err := s.GetSchedule(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.ID, got.ID)
	assert.Equal(t, sc.DoseTimes, got.DoseTimes)
	assert.Equal(t, sc.DaysOfWeek, got.DaysOfWeek)

	got.Description = "after breakfast"
	got.UpdatedAt = got.UpdatedAt.Add(time.Minute)
	require.NoError(t, s.UpdateSchedule(ctx, got))

	again, err := s.GetSchedule(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "after breakfast", again.Description)

	require.NoError(t, s.DeleteSchedule(ctx, sc.ID))
	_, err = s.GetSchedule(ctx, sc.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.DeleteSchedule(ctx, sc.ID), model.ErrNotFound)
}

func TestGetScheduleReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sc := seedSchedule(t, s, nil)
	got, err := s.GetSchedule(ctx, sc.ID)
	require.NoError(t, err)
	got.DoseTimes[0].Time = "23:59"
	got.Description = "mutated"

	fresh, err := s.GetSchedule(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "08:00", fresh.DoseTimes[0].Time)
	assert.Empty(t, fresh.Description)
}

func TestListSchedulesFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	senior := model.NewID()
	a := seedSchedule(t, s, func(sc *model.Schedule) { sc.SeniorID = senior })
	seedSchedule(t, s, func(sc *model.Schedule) { sc.IsActive = false })
	seedSchedule(t, s, func(sc *model.Schedule) {
		sc.SeniorID = senior
		sc.DaysOfWeek = model.WeekdaySet{model.Saturday}
	})

	bySenior, err := s.ListSchedules(ctx, ScheduleFilter{SeniorID: senior})
	require.NoError(t, err)
	assert.Len(t, bySenior, 2)

	active := true
	activeOnly, err := s.ListSchedules(ctx, ScheduleFilter{IsActive: &active})
	require.NoError(t, err)
	assert.Len(t, activeOnly, 2)

	mondays, err := s.ListSchedules(ctx, ScheduleFilter{SeniorID: senior, Day: model.Monday})
	require.NoError(t, err)
	require.Len(t, mondays, 1)
	assert.Equal(t, a.ID, mondays[0].ID)
}

func TestDueSchedules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.August, 31, 7, 45, 0, 0, time.UTC)

	due := seedSchedule(t, s, func(sc *model.Schedule) {
		at := now.Add(-time.Minute)
		sc.NextNotificationDue = &at
	})
	// Sent for the current occurrence: last_sent is at or past next_due.
	seedSchedule(t, s, func(sc *model.Schedule) {
		at := now.Add(-time.Minute)
		sc.NextNotificationDue = &at
		sc.NotificationStatus = model.DeliverySent
		sc.LastNotificationSent = &at
	})
	// Sent for a previous occurrence: due again.
	dueAgain := seedSchedule(t, s, func(sc *model.Schedule) {
		at := now.Add(-time.Minute)
		prev := now.Add(-12 * time.Hour)
		sc.NextNotificationDue = &at
		sc.NotificationStatus = model.DeliverySent
		sc.LastNotificationSent = &prev
	})
	// Failed dispatch stays eligible for retry.
	retry := seedSchedule(t, s, func(sc *model.Schedule) {
		at := now.Add(-time.Minute)
		sc.NextNotificationDue = &at
		sc.NotificationStatus = model.DeliveryFailed
		sc.LastNotificationSent = &at
		sc.FailedAttempts = 2
	})
	// Not yet due.
	seedSchedule(t, s, func(sc *model.Schedule) {
		at := now.Add(time.Hour)
		sc.NextNotificationDue = &at
	})
	// Inactive.
	seedSchedule(t, s, func(sc *model.Schedule) {
		at := now.Add(-time.Minute)
		sc.NextNotificationDue = &at
		sc.IsActive = false
	})

	got, err := s.DueSchedules(ctx, now)
	require.NoError(t, err)
	ids := make(map[string]bool, len(got))
	for _, sc := range got {
		ids[sc.ID] = true
	}
	assert.Len(t, got, 3)
	assert.True(t, ids[due.ID])
	assert.True(t, ids[dueAgain.ID])
	assert.True(t, ids[retry.ID])
}

func TestMissedDoseCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.August, 31, 8, 15, 0, 0, time.UTC)
	window := 30 * time.Minute

	inWindow := seedSchedule(t, s, func(sc *model.Schedule) {
		occ := now.Add(-15 * time.Minute)
		sc.NotificationStatus = model.DeliverySent
		sc.LastOccurrence = &occ
	})
	// Occurrence older than the window.
	seedSchedule(t, s, func(sc *model.Schedule) {
		occ := now.Add(-45 * time.Minute)
		sc.NotificationStatus = model.DeliverySent
		sc.LastOccurrence = &occ
	})
	// Occurrence still in the future.
	seedSchedule(t, s, func(sc *model.Schedule) {
		occ := now.Add(10 * time.Minute)
		sc.NotificationStatus = model.DeliverySent
		sc.LastOccurrence = &occ
	})
	// Never dispatched.
	seedSchedule(t, s, func(sc *model.Schedule) {
		occ := now.Add(-15 * time.Minute)
		sc.LastOccurrence = &occ
	})

	got, err := s.MissedDoseCandidates(ctx, now, window)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inWindow.ID, got[0].ID)
}

func TestEscalationCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.August, 31, 10, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Hour)

	overdue := seedSchedule(t, s, func(sc *model.Schedule) {
		occ := now.Add(-2 * time.Hour)
		sc.NotificationStatus = model.DeliverySent
		sc.LastOccurrence = &occ
	})
	// Recent enough, not escalated yet.
	seedSchedule(t, s, func(sc *model.Schedule) {
		occ := now.Add(-30 * time.Minute)
		sc.NotificationStatus = model.DeliverySent
		sc.LastOccurrence = &occ
	})

	got, err := s.EscalationCandidates(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

func TestSchedulesMissingNextDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing := seedSchedule(t, s, nil)
	seedSchedule(t, s, func(sc *model.Schedule) {
		at := time.Date(2026, time.September, 1, 7, 45, 0, 0, time.UTC)
		sc.NextNotificationDue = &at
	})
	seedSchedule(t, s, func(sc *model.Schedule) { sc.IsActive = false })

	got, err := s.SchedulesMissingNextDue(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, missing.ID, got[0].ID)
}

func TestNotificationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.August, 31, 7, 45, 0, 0, time.UTC)
	user := model.NewID()

	n := &model.Notification{
		ID:           model.NewID(),
		UserID:       user,
		Type:         model.TypeReminder,
		Channel:      model.ChannelPush,
		Status:       model.StatusPending,
		Title:        "Medication Reminder",
		Message:      "Time to take Aspirin",
		ScheduledFor: now,
		Metadata:     model.Metadata{"medicationName": "Aspirin", "missedCount": 0},
		CreatedAt:    now,
	}
	require.NoError(t, s.CreateNotification(ctx, n))

	got, err := s.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, "Aspirin", got.Metadata["medicationName"])

	sent := now.Add(time.Second)
	got.Status = model.StatusSent
	got.SentAt = &sent
	require.NoError(t, s.UpdateNotification(ctx, got))

	again, err := s.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, again.Status)
	require.NotNil(t, again.SentAt)
	assert.True(t, again.SentAt.Equal(sent))

	_, err = s.GetNotification(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.UpdateNotification(ctx, &model.Notification{ID: "nope"}), model.ErrNotFound)
}

func TestListNotificationsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.August, 31, 7, 0, 0, 0, time.UTC)
	user := model.NewID()

	var ids []string
	for i := 0; i < 5; i++ {
		n := &model.Notification{
			ID:           model.NewID(),
			UserID:       user,
			Type:         model.TypeReminder,
			Channel:      model.ChannelPush,
			Status:       model.StatusSent,
			Title:        "r",
			Message:      "m",
			ScheduledFor: base,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateNotification(ctx, n))
		ids = append(ids, n.ID)
	}

	page, err := s.ListNotifications(ctx, user, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	rest, err := s.ListNotifications(ctx, user, 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, ids[2], rest[0].ID)

	count, err := s.CountNotifications(ctx, user, "", base)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	countPush, err := s.CountNotifications(ctx, user, model.ChannelPush, base.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, countPush)
}

func TestNotificationStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.August, 31, 7, 0, 0, 0, time.UTC)
	user := model.NewID()

	add := func(status model.NotificationStatus, channel model.Channel) {
		require.NoError(t, s.CreateNotification(ctx, &model.Notification{
			ID: model.NewID(), UserID: user, Type: model.TypeReminder,
			Channel: channel, Status: status, Title: "t", Message: "m",
			ScheduledFor: now, CreatedAt: now,
		}))
	}
	add(model.StatusSent, model.ChannelPush)
	add(model.StatusSent, model.ChannelPush)
	add(model.StatusSent, model.ChannelEmail)
	add(model.StatusFailed, model.ChannelSMS)

	stats, err := s.NotificationStats(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[model.StatusSent][model.ChannelPush])
	assert.Equal(t, 1, stats[model.StatusSent][model.ChannelEmail])
	assert.Equal(t, 1, stats[model.StatusFailed][model.ChannelSMS])
}

func TestNotificationLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.August, 31, 7, 0, 0, 0, time.UTC)
	nid := model.NewID()

	for i, ev := range []model.LogEvent{model.EventCreated, model.EventSent} {
		require.NoError(t, s.AppendNotificationLog(ctx, &model.NotificationLog{
			ID: model.NewID(), NotificationID: nid, Event: ev,
			Status: model.StatusPending, CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	logs, err := s.ListNotificationLogs(ctx, nid)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.EventCreated, logs[0].Event)
	assert.Equal(t, model.EventSent, logs[1].Event)
}

func TestConfirmationsForSchedule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.August, 31, 8, 15, 0, 0, time.UTC)
	scheduleID := model.NewID()

	add := func(at time.Time) {
		require.NoError(t, s.CreateConfirmation(ctx, &model.Confirmation{
			ID: model.NewID(), ScheduleID: scheduleID, UserID: model.NewID(),
			ScheduledTime: at, Method: "APP", ConfirmedAt: at.Add(5 * time.Minute),
		}))
	}
	add(now.Add(-15 * time.Minute))
	add(now.Add(-2 * time.Hour))

	recent, err := s.ConfirmationsForSchedule(ctx, scheduleID, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	other, err := s.ConfirmationsForSchedule(ctx, model.NewID(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpsertNotificationSetting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := model.NewID()

	require.NoError(t, s.UpsertNotificationSetting(ctx, &model.NotificationSetting{
		UserID: user, Channel: model.ChannelPush, IsEnabled: true, Timezone: "America/New_York",
	}))
	require.NoError(t, s.UpsertNotificationSetting(ctx, &model.NotificationSetting{
		UserID: user, Channel: model.ChannelPush, IsEnabled: false, Timezone: "Asia/Tokyo", MaxPerDay: 3,
	}))
	require.NoError(t, s.UpsertNotificationSetting(ctx, &model.NotificationSetting{
		UserID: user, Channel: model.ChannelSMS, IsEnabled: true,
	}))

	settings, err := s.SettingsForUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, settings, 2)
	for _, st := range settings {
		if st.Channel == model.ChannelPush {
			assert.False(t, st.IsEnabled)
			assert.Equal(t, "Asia/Tokyo", st.Timezone)
			assert.Equal(t, 3, st.MaxPerDay)
		}
	}
}

func TestActiveCaregivers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	senior := model.NewID()

	require.NoError(t, s.CreateCaregiverRelation(ctx, &model.CaregiverRelation{
		ID: model.NewID(), CaregiverID: model.NewID(), SeniorID: senior,
		Relationship: "daughter", IsActive: true, CreatedAt: now,
	}))
	require.NoError(t, s.CreateCaregiverRelation(ctx, &model.CaregiverRelation{
		ID: model.NewID(), CaregiverID: model.NewID(), SeniorID: senior,
		IsActive: false, CreatedAt: now,
	}))

	rels, err := s.ActiveCaregivers(ctx, senior)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "daughter", rels[0].Relationship)

	none, err := s.ActiveCaregivers(ctx, model.NewID())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenDrivers(t *testing.T) {
	log := logx.Nop()

	mem, err := Open(Config{Driver: "memory"}, log)
	require.NoError(t, err)
	require.NotNil(t, mem)
	_ = mem.Close()

	def, err := Open(Config{}, log)
	require.NoError(t, err)
	require.NotNil(t, def)
	_ = def.Close()

	_, err = Open(Config{Driver: "postgres"}, log)
	assert.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"}, log)
	assert.Error(t, err, "sqlite driver requires a path")

	db, err := Open(Config{Driver: "sqlite", Path: t.TempDir() + "/medremind.db", BusyTimeout: time.Second}, log)
	require.NoError(t, err)
	require.NotNil(t, db)

	sc := &model.Schedule{
		ID: model.NewID(), MedicationID: model.NewID(), SeniorID: model.NewID(),
		Frequency: model.FrequencyDaily, DoseTimes: []model.DoseTime{{Time: "08:00"}},
		DaysOfWeek: model.WeekdaySet{model.Monday}, IsActive: true,
		ReminderLeadMinutes: 15, NotificationStatus: model.DeliveryPending,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateSchedule(context.Background(), sc))
	got, err := db.GetSchedule(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.DoseTimes, got.DoseTimes)
	require.NoError(t, db.Close())
}

func TestMemoryNotFoundErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.GetMedication(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.True(t, errors.Is(s.UpdateSchedule(ctx, &model.Schedule{ID: "missing"}), model.ErrNotFound))
}
