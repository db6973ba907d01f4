// Package notify is the notification orchestrator: it resolves a
// recipient's enabled channels, persists the notification record, fans the
// send out across channel transports and aggregates per-channel outcomes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medremind/internal/channel"
	"medremind/internal/model"
	"medremind/internal/store"
	logx "medremind/pkg/logx"
)

// ErrNoChannels marks a send that had no enabled channel to try.
var ErrNoChannels = errors.New("no enabled notification channels")

type Service struct {
	store      store.Store
	dispatcher *channel.Dispatcher
	log        logx.Logger
	now        func() time.Time
}

func New(st store.Store, d *channel.Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: st, dispatcher: d, log: log, now: time.Now}
}

// Send runs the full orchestration for one intent.
//
// The notification record is created (status pending) before the first
// channel attempt, so a crash mid-dispatch leaves an auditable record.
// Channel failures never abort the remaining channels; overall success
// means at least one channel delivered.
func (s *Service) Send(ctx context.Context, intent Intent) (SendResult, error) {
	if err := intent.Metadata.Validate(); err != nil {
		return SendResult{}, err
	}

	user, err := s.store.GetUser(ctx, intent.UserID)
	if err != nil {
		return SendResult{}, err
	}

	enabled, err := s.enabledChannels(ctx, intent)
	if err != nil {
		return SendResult{}, err
	}
	if len(enabled) == 0 {
		s.log.Warn("send skipped",
			logx.String("user_id", intent.UserID),
			logx.String("type", string(intent.Type)),
			logx.Err(ErrNoChannels))
		return SendResult{Success: false, Errors: []string{ErrNoChannels.Error()}}, nil
	}

	now := s.now()
	n := &model.Notification{
		ID:           model.NewID(),
		UserID:       intent.UserID,
		ScheduleID:   intent.ScheduleID,
		Type:         intent.Type,
		Channel:      enabled[0],
		Status:       model.StatusPending,
		Title:        intent.Title,
		Message:      intent.Message,
		ScheduledFor: intent.ScheduledFor,
		Metadata:     intent.Metadata,
		CreatedAt:    now,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return SendResult{}, err
	}
	s.appendLog(ctx, n.ID, model.EventCreated, model.StatusPending, "")

	recipient := channel.Recipient{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Phone:  user.Phone,
	}
	payload := channel.Payload{
		Type:       intent.Type,
		Title:      intent.Title,
		Message:    intent.Message,
		ScheduleID: intent.ScheduleID,
		Metadata:   intent.Metadata,
	}

	results := make(map[model.Channel]bool, len(enabled))
	var errs []string
	for _, ch := range enabled {
		res, err := s.dispatcher.Send(ctx, ch, recipient, payload)
		switch {
		case err != nil:
			results[ch] = false
			errs = append(errs, fmt.Sprintf("%s: %v", ch, err))
		case !res.Delivered:
			results[ch] = false
			if res.Detail != "" {
				errs = append(errs, fmt.Sprintf("%s: %s", ch, res.Detail))
			}
		default:
			results[ch] = true
		}
	}

	success := false
	for _, ok := range results {
		if ok {
			success = true
			break
		}
	}

	n.ErrorMessage = strings.Join(errs, "; ")
	if success {
		sentAt := s.now()
		n.Status = model.StatusSent
		n.SentAt = &sentAt
	} else {
		n.Status = model.StatusFailed
	}
	if err := s.store.UpdateNotification(ctx, n); err != nil {
		return SendResult{}, err
	}
	if success {
		s.appendLog(ctx, n.ID, model.EventSent, model.StatusSent, n.ErrorMessage)
	} else {
		s.appendLog(ctx, n.ID, model.EventFailed, model.StatusFailed, n.ErrorMessage)
	}

	s.log.Info("notification dispatched",
		logx.String("notification_id", n.ID),
		logx.String("user_id", intent.UserID),
		logx.String("type", string(intent.Type)),
		logx.Bool("success", success),
		logx.Int("channels", len(enabled)))

	return SendResult{
		Success:        success,
		NotificationID: n.ID,
		Errors:         errs,
		ChannelResults: results,
	}, nil
}

// enabledChannels intersects the intent's candidate channels with the
// recipient's settings. A channel with no settings row counts as enabled.
// Reminder-type sends additionally honor quiet hours and daily caps.
func (s *Service) enabledChannels(ctx context.Context, intent Intent) ([]model.Channel, error) {
	candidates := intent.Channels
	if len(candidates) == 0 {
		candidates = defaultChannels(intent.Type)
	}

	settings, err := s.store.SettingsForUser(ctx, intent.UserID)
	if err != nil {
		return nil, err
	}
	byChannel := make(map[model.Channel]*model.NotificationSetting, len(settings))
	for _, st := range settings {
		byChannel[st.Channel] = st
	}

	var enabled []model.Channel
	for _, ch := range candidates {
		st := byChannel[ch]
		if st != nil && !st.IsEnabled {
			continue
		}
		if intent.Type == model.TypeReminder && st != nil {
			if s.inQuietHours(st) {
				s.log.Debug("channel in quiet hours",
					logx.String("user_id", intent.UserID),
					logx.String("channel", string(ch)))
				continue
			}
			over, err := s.overDailyCap(ctx, intent.UserID, st)
			if err != nil {
				return nil, err
			}
			if over {
				s.log.Debug("channel over daily cap",
					logx.String("user_id", intent.UserID),
					logx.String("channel", string(ch)))
				continue
			}
		}
		enabled = append(enabled, ch)
	}
	return enabled, nil
}

func (s *Service) inQuietHours(st *model.NotificationSetting) bool {
	if st.QuietHoursStart == "" || st.QuietHoursEnd == "" {
		return false
	}
	sh, sm, err := model.ParseClock(st.QuietHoursStart)
	if err != nil {
		return false
	}
	eh, em, err := model.ParseClock(st.QuietHoursEnd)
	if err != nil {
		return false
	}
	loc := settingLocation(st)
	local := s.now().In(loc)
	cur := local.Hour()*60 + local.Minute()
	start := sh*60 + sm
	end := eh*60 + em
	if start == end {
		return false
	}
	if start < end {
		return cur >= start && cur < end
	}
	// Window wraps midnight, e.g. 22:00 to 07:00.
	return cur >= start || cur < end
}

func (s *Service) overDailyCap(ctx context.Context, userID string, st *model.NotificationSetting) (bool, error) {
	if st.MaxPerDay <= 0 {
		return false, nil
	}
	loc := settingLocation(st)
	local := s.now().In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	count, err := s.store.CountNotifications(ctx, userID, st.Channel, dayStart)
	if err != nil {
		return false, err
	}
	return count >= st.MaxPerDay, nil
}

func settingLocation(st *model.NotificationSetting) *time.Location {
	if st.Timezone != "" {
		if loc, err := time.LoadLocation(st.Timezone); err == nil {
			return loc
		}
	}
	return time.Local
}

func (s *Service) appendLog(ctx context.Context, notificationID string, event model.LogEvent, status model.NotificationStatus, msg string) {
	err := s.store.AppendNotificationLog(ctx, &model.NotificationLog{
		ID:             model.NewID(),
		NotificationID: notificationID,
		Event:          event,
		Status:         status,
		Message:        msg,
		CreatedAt:      s.now(),
	})
	if err != nil {
		s.log.Warn("append notification log failed",
			logx.String("notification_id", notificationID),
			logx.Err(err))
	}
}

// SendMedicationReminder builds and sends the reminder for one schedule
// occurrence. A missing schedule or medication yields success=false, not
// an error; the processor's tick must not abort on one bad row. The
// schedule itself is not touched here: the caller stamps the dispatch
// bookkeeping and the advanced due time in a single write.
func (s *Service) SendMedicationReminder(ctx context.Context, scheduleID string, scheduledTime time.Time) (SendResult, error) {
	sc, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return SendResult{Success: false, Errors: []string{err.Error()}}, nil
		}
		return SendResult{}, err
	}
	med, err := s.store.GetMedication(ctx, sc.MedicationID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return SendResult{Success: false, Errors: []string{err.Error()}}, nil
		}
		return SendResult{}, err
	}

	msg := fmt.Sprintf("Time to take %s", med.Name)
	if med.Dosage != "" {
		msg = fmt.Sprintf("Time to take %s (%s)", med.Name, med.Dosage)
	}
	meta := model.Metadata{
		"medicationName": med.Name,
		"dosage":         med.Dosage,
		"instructions":   med.Instructions,
		"scheduledTime":  scheduledTime.Format(time.RFC3339),
	}

	res, err := s.Send(ctx, Intent{
		UserID:       sc.SeniorID,
		ScheduleID:   sc.ID,
		Type:         model.TypeReminder,
		Title:        "Medication Reminder",
		Message:      msg,
		ScheduledFor: scheduledTime,
		Channels:     []model.Channel{model.ChannelPush, model.ChannelEmail},
		Metadata:     meta,
	})
	if err != nil {
		return SendResult{}, err
	}
	return res, nil
}

// SendMissedDoseAlert tells the senior a dose appears to have been missed.
func (s *Service) SendMissedDoseAlert(ctx context.Context, scheduleID string, missedTime time.Time) (SendResult, error) {
	sc, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return SendResult{Success: false, Errors: []string{err.Error()}}, nil
		}
		return SendResult{}, err
	}
	med, err := s.store.GetMedication(ctx, sc.MedicationID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return SendResult{Success: false, Errors: []string{err.Error()}}, nil
		}
		return SendResult{}, err
	}

	return s.Send(ctx, Intent{
		UserID:       sc.SeniorID,
		ScheduleID:   sc.ID,
		Type:         model.TypeMissedDose,
		Title:        "Missed Medication Alert",
		Message:      fmt.Sprintf("You may have missed your %s dose scheduled for %s", med.Name, missedTime.Format("15:04")),
		ScheduledFor: missedTime,
		Channels:     []model.Channel{model.ChannelPush, model.ChannelSMS},
		Metadata: model.Metadata{
			"medicationName": med.Name,
			"dosage":         med.Dosage,
			"scheduledTime":  missedTime.Format(time.RFC3339),
		},
	})
}

// SendEscalationAlert fans one escalation out to every active caregiver of
// the senior. Zero active caregivers is a warning, not an error: the
// result list is empty. Partial failure across caregivers is expected;
// each target's outcome is reported independently.
func (s *Service) SendEscalationAlert(ctx context.Context, seniorID, medicationName string, missedCount int) ([]CaregiverResult, error) {
	senior, err := s.store.GetUser(ctx, seniorID)
	if err != nil {
		return nil, err
	}
	relations, err := s.store.ActiveCaregivers(ctx, seniorID)
	if err != nil {
		return nil, err
	}
	if len(relations) == 0 {
		s.log.Warn("escalation has no active caregivers",
			logx.String("senior_id", seniorID),
			logx.String("medication", medicationName))
		return []CaregiverResult{}, nil
	}

	out := make([]CaregiverResult, 0, len(relations))
	for _, rel := range relations {
		res, err := s.Send(ctx, Intent{
			UserID: rel.CaregiverID,
			Type:   model.TypeEscalation,
			Title:  fmt.Sprintf("Medication Alert: %s", senior.Name),
			Message: fmt.Sprintf("%s has missed %d dose(s) of %s. Please check on them.",
				senior.Name, missedCount, medicationName),
			ScheduledFor: s.now(),
			Channels:     []model.Channel{model.ChannelPush, model.ChannelEmail, model.ChannelSMS},
			Metadata: model.Metadata{
				"seniorId":       senior.ID,
				"seniorName":     senior.Name,
				"medicationName": medicationName,
				"missedCount":    missedCount,
				"relationship":   rel.Relationship,
			},
		})
		if err != nil {
			s.log.Error("escalation send failed",
				logx.String("senior_id", seniorID),
				logx.String("caregiver_id", rel.CaregiverID),
				logx.Err(err))
			res = SendResult{Success: false, Errors: []string{err.Error()}}
		}
		out = append(out, CaregiverResult{
			CaregiverID:  rel.CaregiverID,
			Relationship: rel.Relationship,
			Result:       res,
		})
	}
	return out, nil
}

// Confirm marks a notification confirmed by its recipient. For
// reminder-type notifications it also records the dose Confirmation that
// suppresses the missed-dose scan for that occurrence.
func (s *Service) Confirm(ctx context.Context, notificationID, requestingUserID string) (*model.Notification, error) {
	n, err := s.store.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != requestingUserID {
		return nil, fmt.Errorf("notification %s: %w", notificationID, model.ErrNotFound)
	}

	now := s.now()
	n.Status = model.StatusConfirmed
	n.ConfirmedAt = &now
	if err := s.store.UpdateNotification(ctx, n); err != nil {
		return nil, err
	}
	s.appendLog(ctx, n.ID, model.EventConfirmed, model.StatusConfirmed, "")

	if n.Type == model.TypeReminder && n.ScheduleID != "" {
		err := s.store.CreateConfirmation(ctx, &model.Confirmation{
			ID:             model.NewID(),
			ScheduleID:     n.ScheduleID,
			UserID:         requestingUserID,
			NotificationID: n.ID,
			ScheduledTime:  n.ScheduledFor,
			Method:         "APP",
			ConfirmedAt:    now,
		})
		if err != nil {
			return nil, err
		}
	}

	s.log.Info("notification confirmed",
		logx.String("notification_id", n.ID),
		logx.String("user_id", requestingUserID))
	return n, nil
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*model.Notification, error) {
	return s.store.ListNotifications(ctx, userID, limit, offset)
}

// Stats returns the user's notification counts grouped by status and
// channel.
func (s *Service) Stats(ctx context.Context, userID string) (map[model.NotificationStatus]map[model.Channel]int, error) {
	return s.store.NotificationStats(ctx, userID)
}

// Logs returns the append-only lifecycle trail for one notification.
func (s *Service) Logs(ctx context.Context, notificationID string) ([]*model.NotificationLog, error) {
	return s.store.ListNotificationLogs(ctx, notificationID)
}
