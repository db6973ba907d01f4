package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medremind/internal/model"
)

// memoryStore keeps everything in process memory. It backs dev setups
// without a database file and doubles as the test fixture.
type memoryStore struct {
	mu sync.RWMutex

	users         map[string]*model.User
	medications   map[string]*model.Medication
	schedules     map[string]*model.Schedule
	notifications map[string]*model.Notification
	logs          []*model.NotificationLog
	confirmations []*model.Confirmation
	settings      map[string][]*model.NotificationSetting // by user id
	caregivers    []*model.CaregiverRelation

	// createdSeq preserves notification insertion order for stable
	// ListNotifications paging when CreatedAt timestamps collide.
	createdSeq map[string]int
	seq        int
}

func NewMemory() Store {
	return &memoryStore{
		users:         map[string]*model.User{},
		medications:   map[string]*model.Medication{},
		schedules:     map[string]*model.Schedule{},
		notifications: map[string]*model.Notification{},
		settings:      map[string][]*model.NotificationSetting{},
		createdSeq:    map[string]int{},
	}
}

func (m *memoryStore) Close() error { return nil }

// ---- users / medications ----

func (m *memoryStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memoryStore) CreateMedication(_ context.Context, med *model.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *med
	m.medications[med.ID] = &cp
	return nil
}

func (m *memoryStore) GetMedication(_ context.Context, id string) (*model.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	med, ok := m.medications[id]
	if !ok {
		return nil, fmt.Errorf("medication %s: %w", id, model.ErrNotFound)
	}
	cp := *med
	return &cp, nil
}

// ---- schedules ----

func cloneSchedule(s *model.Schedule) *model.Schedule {
	cp := *s
	cp.DoseTimes = append([]model.DoseTime(nil), s.DoseTimes...)
	cp.DaysOfWeek = append(model.WeekdaySet(nil), s.DaysOfWeek...)
	return &cp
}

func (m *memoryStore) CreateSchedule(_ context.Context, s *model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = cloneSchedule(s)
	return nil
}

func (m *memoryStore) GetSchedule(_ context.Context, id string) (*model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, model.ErrNotFound)
	}
	return cloneSchedule(s), nil
}

func (m *memoryStore) UpdateSchedule(_ context.Context, s *model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[s.ID]; !ok {
		return fmt.Errorf("schedule %s: %w", s.ID, model.ErrNotFound)
	}
	m.schedules[s.ID] = cloneSchedule(s)
	return nil
}

func (m *memoryStore) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return fmt.Errorf("schedule %s: %w", id, model.ErrNotFound)
	}
	delete(m.schedules, id)
	return nil
}

func (m *memoryStore) ListSchedules(_ context.Context, f ScheduleFilter) ([]*model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Schedule
	for _, s := range m.schedules {
		if f.SeniorID != "" && s.SeniorID != f.SeniorID {
			continue
		}
		if f.MedicationID != "" && s.MedicationID != f.MedicationID {
			continue
		}
		if f.IsActive != nil && s.IsActive != *f.IsActive {
			continue
		}
		if f.Day != "" && !s.DaysOfWeek.Contains(f.Day) {
			continue
		}
		out = append(out, cloneSchedule(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) DueSchedules(_ context.Context, now time.Time) ([]*model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Schedule
	for _, s := range m.schedules {
		if !s.IsActive || s.NextNotificationDue == nil || s.NextNotificationDue.After(now) {
			continue
		}
		// A sent status only blocks redelivery of the occurrence it was
		// recorded for; once the next due instant arrives the schedule
		// is due again.
		if s.NotificationStatus == model.DeliverySent &&
			s.LastNotificationSent != nil &&
			!s.LastNotificationSent.Before(*s.NextNotificationDue) {
			continue
		}
		out = append(out, cloneSchedule(s))
	}
	sortByID(out)
	return out, nil
}

func (m *memoryStore) MissedDoseCandidates(_ context.Context, now time.Time, window time.Duration) ([]*model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	floor := now.Add(-window)
	var out []*model.Schedule
	for _, s := range m.schedules {
		if !s.IsActive || s.NotificationStatus != model.DeliverySent || s.LastOccurrence == nil {
			continue
		}
		occ := *s.LastOccurrence
		if occ.After(now) || !occ.After(floor) {
			continue
		}
		out = append(out, cloneSchedule(s))
	}
	sortByID(out)
	return out, nil
}

func (m *memoryStore) EscalationCandidates(_ context.Context, cutoff time.Time) ([]*model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Schedule
	for _, s := range m.schedules {
		if !s.IsActive || s.NotificationStatus != model.DeliverySent || s.LastOccurrence == nil {
			continue
		}
		if s.LastOccurrence.After(cutoff) {
			continue
		}
		out = append(out, cloneSchedule(s))
	}
	sortByID(out)
	return out, nil
}

func (m *memoryStore) SchedulesMissingNextDue(_ context.Context) ([]*model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Schedule
	for _, s := range m.schedules {
		if s.IsActive && s.NextNotificationDue == nil {
			out = append(out, cloneSchedule(s))
		}
	}
	sortByID(out)
	return out, nil
}

func sortByID(s []*model.Schedule) {
	sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
}

// ---- notifications ----

func cloneNotification(n *model.Notification) *model.Notification {
	cp := *n
	if n.Metadata != nil {
		cp.Metadata = make(model.Metadata, len(n.Metadata))
		for k, v := range n.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (m *memoryStore) CreateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = cloneNotification(n)
	m.seq++
	m.createdSeq[n.ID] = m.seq
	return nil
}

func (m *memoryStore) GetNotification(_ context.Context, id string) (*model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}
	return cloneNotification(n), nil
}

func (m *memoryStore) UpdateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; !ok {
		return fmt.Errorf("notification %s: %w", n.ID, model.ErrNotFound)
	}
	m.notifications[n.ID] = cloneNotification(n)
	return nil
}

func (m *memoryStore) ListNotifications(_ context.Context, userID string, limit, offset int) ([]*model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			all = append(all, n)
		}
	}
	// Newest first.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return m.createdSeq[all[i].ID] > m.createdSeq[all[j].ID]
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]*model.Notification, 0, len(all))
	for _, n := range all {
		out = append(out, cloneNotification(n))
	}
	return out, nil
}

func (m *memoryStore) CountNotifications(_ context.Context, userID string, channel model.Channel, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if channel != "" && n.Channel != channel {
			continue
		}
		if n.CreatedAt.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *memoryStore) NotificationStats(_ context.Context, userID string) (map[model.NotificationStatus]map[model.Channel]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := map[model.NotificationStatus]map[model.Channel]int{}
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		byChannel := stats[n.Status]
		if byChannel == nil {
			byChannel = map[model.Channel]int{}
			stats[n.Status] = byChannel
		}
		byChannel[n.Channel]++
	}
	return stats, nil
}

// ---- logs ----

func (m *memoryStore) AppendNotificationLog(_ context.Context, l *model.NotificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *memoryStore) ListNotificationLogs(_ context.Context, notificationID string) ([]*model.NotificationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.NotificationLog
	for _, l := range m.logs {
		if l.NotificationID == notificationID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- confirmations ----

func (m *memoryStore) CreateConfirmation(_ context.Context, c *model.Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.confirmations = append(m.confirmations, &cp)
	return nil
}

func (m *memoryStore) ConfirmationsForSchedule(_ context.Context, scheduleID string, since time.Time) ([]*model.Confirmation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Confirmation
	for _, c := range m.confirmations {
		if c.ScheduleID != scheduleID {
			continue
		}
		if c.ScheduledTime.Before(since) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// ---- settings ----

func (m *memoryStore) UpsertNotificationSetting(_ context.Context, s *model.NotificationSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	if cp.ID == "" {
		cp.ID = model.NewID()
	}
	existing := m.settings[s.UserID]
	for i, e := range existing {
		if e.Channel == s.Channel {
			cp.ID = e.ID
			existing[i] = &cp
			return nil
		}
	}
	m.settings[s.UserID] = append(existing, &cp)
	return nil
}

func (m *memoryStore) SettingsForUser(_ context.Context, userID string) ([]*model.NotificationSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	existing := m.settings[userID]
	out := make([]*model.NotificationSetting, 0, len(existing))
	for _, s := range existing {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// ---- caregivers ----

func (m *memoryStore) CreateCaregiverRelation(_ context.Context, r *model.CaregiverRelation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.caregivers = append(m.caregivers, &cp)
	return nil
}

func (m *memoryStore) ActiveCaregivers(_ context.Context, seniorID string) ([]*model.CaregiverRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.CaregiverRelation
	for _, r := range m.caregivers {
		if r.SeniorID != seniorID || !r.IsActive {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
