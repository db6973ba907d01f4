package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medremind/internal/channel"
	"medremind/internal/model"
	"medremind/internal/store"
	logx "medremind/pkg/logx"
)

type fakeSender struct {
	ch       model.Channel
	deliver  bool
	err      error
	payloads []channel.Payload
}

func (f *fakeSender) Channel() model.Channel { return f.ch }

func (f *fakeSender) Send(_ context.Context, _ channel.Recipient, p channel.Payload) (channel.Result, error) {
	f.payloads = append(f.payloads, p)
	if f.err != nil {
		return channel.Result{}, f.err
	}
	return channel.Result{Delivered: f.deliver}, nil
}

type fixture struct {
	svc   *Service
	store store.Store
	push  *fakeSender
	email *fakeSender
	sms   *fakeSender
	inApp *fakeSender
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemory(),
		push:  &fakeSender{ch: model.ChannelPush, deliver: true},
		email: &fakeSender{ch: model.ChannelEmail, deliver: true},
		sms:   &fakeSender{ch: model.ChannelSMS, deliver: true},
		inApp: &fakeSender{ch: model.ChannelInApp, deliver: true},
		now:   time.Date(2026, time.August, 31, 7, 45, 0, 0, time.UTC),
	}
	d := channel.NewDispatcher(logx.Nop(), 100, f.push, f.email, f.sms, f.inApp)
	f.svc = New(f.store, d, logx.Nop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) seedUser(t *testing.T, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		ID: model.NewID(), Name: "Margaret", Email: "m@example.com",
		Phone: "+15550199", Role: role, CreatedAt: f.now,
	}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) seedScheduleWithMedication(t *testing.T, seniorID string) (*model.Schedule, *model.Medication) {
	t.Helper()
	med := &model.Medication{
		ID: model.NewID(), SeniorID: seniorID, Name: "Aspirin",
		Dosage: "100mg", Instructions: "With food", CreatedAt: f.now,
	}
	require.NoError(t, f.store.CreateMedication(context.Background(), med))
	sc := &model.Schedule{
		ID: model.NewID(), MedicationID: med.ID, SeniorID: seniorID,
		Frequency: model.FrequencyDaily, DoseTimes: []model.DoseTime{{Time: "08:00"}},
		DaysOfWeek: model.WeekdaySet{model.Monday}, IsActive: true,
		ReminderLeadMinutes: 15, NotificationStatus: model.DeliveryPending,
		CreatedAt: f.now, UpdatedAt: f.now,
	}
	require.NoError(t, f.store.CreateSchedule(context.Background(), sc))
	return sc, med
}

func TestSendNoEnabledChannels(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	ctx := context.Background()

	for _, ch := range []model.Channel{model.ChannelPush, model.ChannelEmail} {
		require.NoError(t, f.store.UpsertNotificationSetting(ctx, &model.NotificationSetting{
			UserID: u.ID, Channel: ch, IsEnabled: false,
		}))
	}

	res, err := f.svc.Send(ctx, Intent{
		UserID: u.ID, Type: model.TypeReminder,
		Title: "t", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.NotificationID)
	assert.Contains(t, res.Errors, "no enabled notification channels")

	// No record was created.
	list, err := f.store.ListNotifications(ctx, u.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.push.payloads)
}

func TestSendPartialChannelSuccess(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	f.email.err = errors.New("smtp timeout")
	ctx := context.Background()

	res, err := f.svc.Send(ctx, Intent{
		UserID: u.ID, Type: model.TypeReminder,
		Title: "Medication Reminder", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.ChannelResults[model.ChannelPush])
	assert.False(t, res.ChannelResults[model.ChannelEmail])
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "smtp timeout")

	n, err := f.store.GetNotification(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, n.Status)
	require.NotNil(t, n.SentAt)
	assert.Contains(t, n.ErrorMessage, "email: smtp timeout")
	// Primary channel is the first enabled one.
	assert.Equal(t, model.ChannelPush, n.Channel)

	logs, err := f.store.ListNotificationLogs(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.EventCreated, logs[0].Event)
	assert.Equal(t, model.EventSent, logs[1].Event)
}

func TestSendAllChannelsFail(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	f.push.err = errors.New("fcm 500")
	f.email.deliver = false
	ctx := context.Background()

	res, err := f.svc.Send(ctx, Intent{
		UserID: u.ID, Type: model.TypeReminder,
		Title: "t", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)

	n, err := f.store.GetNotification(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, n.Status)
	assert.Nil(t, n.SentAt)

	logs, err := f.store.ListNotificationLogs(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.EventFailed, logs[1].Event)
}

func TestSendDefaultChannelsByType(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	ctx := context.Background()

	res, err := f.svc.Send(ctx, Intent{
		UserID: u.ID, Type: model.TypeMissedDose,
		Title: "t", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, f.push.payloads, 1)
	assert.Len(t, f.sms.payloads, 1)
	assert.Empty(t, f.email.payloads)

	res, err = f.svc.Send(ctx, Intent{
		UserID: u.ID, Type: model.TypeSystem,
		Title: "t", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, f.email.payloads, 1)
	assert.Len(t, f.inApp.payloads, 1)
}

func TestSendMedicationReminder(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	sc, med := f.seedScheduleWithMedication(t, u.ID)
	ctx := context.Background()
	scheduledTime := time.Date(2026, time.August, 31, 8, 0, 0, 0, time.UTC)

	res, err := f.svc.SendMedicationReminder(ctx, sc.ID, scheduledTime)
	require.NoError(t, err)
	assert.True(t, res.Success)

	n, err := f.store.GetNotification(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.TypeReminder, n.Type)
	assert.Equal(t, sc.ID, n.ScheduleID)
	assert.Equal(t, med.Name, n.Metadata["medicationName"])
	assert.Equal(t, "100mg", n.Metadata["dosage"])
	assert.Equal(t, scheduledTime.Format(time.RFC3339), n.Metadata["scheduledTime"])
	assert.Contains(t, n.Message, "Aspirin (100mg)")

	// Dispatch bookkeeping belongs to the caller; the send alone leaves
	// the schedule untouched.
	got, err := f.store.GetSchedule(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryPending, got.NotificationStatus)
	assert.Nil(t, got.LastNotificationSent)
	assert.Nil(t, got.LastOccurrence)
}

func TestSendMedicationReminderMissingSchedule(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.SendMedicationReminder(context.Background(), "missing", f.now)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "not found")
}

func TestSendMedicationReminderFailureLeavesSchedule(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	sc, _ := f.seedScheduleWithMedication(t, u.ID)
	f.push.err = errors.New("fcm down")
	f.email.err = errors.New("smtp down")
	ctx := context.Background()

	res, err := f.svc.SendMedicationReminder(ctx, sc.ID, f.now)
	require.NoError(t, err)
	assert.False(t, res.Success)

	got, err := f.store.GetSchedule(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryPending, got.NotificationStatus)
	assert.Nil(t, got.LastNotificationSent)
	assert.Nil(t, got.LastOccurrence)
}

func TestSendMissedDoseAlert(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	sc, _ := f.seedScheduleWithMedication(t, u.ID)
	ctx := context.Background()
	missed := time.Date(2026, time.August, 31, 8, 0, 0, 0, time.UTC)

	res, err := f.svc.SendMissedDoseAlert(ctx, sc.ID, missed)
	require.NoError(t, err)
	assert.True(t, res.Success)

	n, err := f.store.GetNotification(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.TypeMissedDose, n.Type)
	assert.Contains(t, n.Message, "08:00")
	assert.Len(t, f.sms.payloads, 1)
	assert.Empty(t, f.email.payloads)
}

func TestSendEscalationAlertFanOut(t *testing.T) {
	f := newFixture(t)
	senior := f.seedUser(t, model.RoleSenior)
	ctx := context.Background()

	var caregiverIDs []string
	for _, rel := range []string{"daughter", "son"} {
		cg := &model.User{
			ID: model.NewID(), Name: "CG " + rel, Email: "cg@example.com",
			Phone: "+15550100", Role: model.RoleCaregiver, CreatedAt: f.now,
		}
		require.NoError(t, f.store.CreateUser(ctx, cg))
		require.NoError(t, f.store.CreateCaregiverRelation(ctx, &model.CaregiverRelation{
			ID: model.NewID(), CaregiverID: cg.ID, SeniorID: senior.ID,
			Relationship: rel, IsActive: true, CreatedAt: f.now,
		}))
		caregiverIDs = append(caregiverIDs, cg.ID)
	}
	// Inactive relation is ignored.
	require.NoError(t, f.store.CreateCaregiverRelation(ctx, &model.CaregiverRelation{
		ID: model.NewID(), CaregiverID: model.NewID(), SeniorID: senior.ID,
		IsActive: false, CreatedAt: f.now,
	}))

	results, err := f.svc.SendEscalationAlert(ctx, senior.ID, "Aspirin", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, caregiverIDs[i], r.CaregiverID)
		assert.True(t, r.Result.Success)

		n, err := f.store.GetNotification(ctx, r.Result.NotificationID)
		require.NoError(t, err)
		assert.Equal(t, model.TypeEscalation, n.Type)
		assert.Equal(t, senior.ID, n.Metadata["seniorId"])
		assert.Equal(t, "Aspirin", n.Metadata["medicationName"])
		assert.Equal(t, 3, n.Metadata["missedCount"])
	}
}

func TestSendEscalationAlertNoCaregivers(t *testing.T) {
	f := newFixture(t)
	senior := f.seedUser(t, model.RoleSenior)

	results, err := f.svc.SendEscalationAlert(context.Background(), senior.ID, "Aspirin", 2)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestConfirmReminderCreatesConfirmation(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	sc, _ := f.seedScheduleWithMedication(t, u.ID)
	ctx := context.Background()
	scheduledTime := time.Date(2026, time.August, 31, 8, 0, 0, 0, time.UTC)

	res, err := f.svc.SendMedicationReminder(ctx, sc.ID, scheduledTime)
	require.NoError(t, err)
	require.True(t, res.Success)

	n, err := f.svc.Confirm(ctx, res.NotificationID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, n.Status)
	require.NotNil(t, n.ConfirmedAt)

	confs, err := f.store.ConfirmationsForSchedule(ctx, sc.ID, scheduledTime.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, confs, 1)
	assert.True(t, confs[0].ScheduledTime.Equal(scheduledTime))
	assert.Equal(t, "APP", confs[0].Method)
	assert.Equal(t, res.NotificationID, confs[0].NotificationID)

	logs, err := f.store.ListNotificationLogs(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.EventConfirmed, logs[len(logs)-1].Event)
}

func TestConfirmWrongUser(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	ctx := context.Background()

	res, err := f.svc.Send(ctx, Intent{
		UserID: u.ID, Type: model.TypeReminder,
		Title: "t", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, res.NotificationID, "somebody-else")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.Confirm(ctx, "missing", u.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConfirmNonReminderSkipsConfirmation(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	ctx := context.Background()

	res, err := f.svc.Send(ctx, Intent{
		UserID: u.ID, ScheduleID: "sched-1", Type: model.TypeMissedDose,
		Title: "t", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, res.NotificationID, u.ID)
	require.NoError(t, err)

	confs, err := f.store.ConfirmationsForSchedule(ctx, "sched-1", f.now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, confs)
}

func TestQuietHoursBlockRemindersOnly(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	ctx := context.Background()

	// 22:00 to 08:00 wraps midnight; f.now is 07:45 UTC, inside it.
	for _, ch := range []model.Channel{model.ChannelPush, model.ChannelEmail, model.ChannelSMS} {
		require.NoError(t, f.store.UpsertNotificationSetting(ctx, &model.NotificationSetting{
			UserID: u.ID, Channel: ch, IsEnabled: true,
			QuietHoursStart: "22:00", QuietHoursEnd: "08:00", Timezone: "UTC",
		}))
	}

	res, err := f.svc.Send(ctx, Intent{
		UserID: u.ID, Type: model.TypeReminder,
		Title: "t", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.NotificationID)

	// Alerts bypass quiet hours.
	res, err = f.svc.Send(ctx, Intent{
		UserID: u.ID, Type: model.TypeMissedDose,
		Title: "t", Message: "m", ScheduledFor: f.now,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestDailyCapBlocksReminders(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertNotificationSetting(ctx, &model.NotificationSetting{
		UserID: u.ID, Channel: model.ChannelPush, IsEnabled: true,
		Timezone: "UTC", MaxPerDay: 1,
	}))
	// Email stays uncapped so the overall send still works; the capped
	// channel is dropped individually.
	intent := Intent{UserID: u.ID, Type: model.TypeReminder, Title: "t", Message: "m", ScheduledFor: f.now}

	res, err := f.svc.Send(ctx, intent)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Len(t, f.push.payloads, 1)

	res, err = f.svc.Send(ctx, intent)
	require.NoError(t, err)
	require.True(t, res.Success)
	// Push hit its cap; only email went out the second time.
	assert.Len(t, f.push.payloads, 1)
	assert.Len(t, f.email.payloads, 2)
	_, pushTried := res.ChannelResults[model.ChannelPush]
	assert.False(t, pushTried)
}

func TestSendRejectsNestedMetadata(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, model.RoleSenior)

	_, err := f.svc.Send(context.Background(), Intent{
		UserID: u.ID, Type: model.TypeReminder, Title: "t", Message: "m",
		ScheduledFor: f.now,
		Metadata:     model.Metadata{"nested": map[string]string{"a": "b"}},
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}
