// Package schedule owns dosing-plan CRUD: validation, conflict detection
// against the senior's other active schedules, templates, bulk creation
// and the upcoming-reminders projection.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"medremind/internal/model"
	"medremind/internal/recurrence"
	"medremind/internal/store"
	logx "medremind/pkg/logx"
)

type Config struct {
	// Timezone is the fallback zone for recipients without one in their
	// notification settings. Empty means server-local time.
	Timezone string
}

type Service struct {
	store store.Store
	cfg   Config
	log   logx.Logger
	now   func() time.Time
}

func New(st store.Store, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: st, cfg: cfg, log: log, now: time.Now}
}

// CreateInput is a new-schedule request. Zero ReminderLeadMinutes means
// the 15 minute default; set Lead explicitly for a true zero.
type CreateInput struct {
	MedicationID string           `json:"medicationId"`
	SeniorID     string           `json:"seniorId"`
	Frequency    model.Frequency  `json:"frequency"`
	DoseTimes    []model.DoseTime `json:"doseTimes"`
	DaysOfWeek   model.WeekdaySet `json:"daysOfWeek"`
	Description  string           `json:"description,omitempty"`
	Lead         *int             `json:"reminderMinutesBefore,omitempty"`
}

// UpdateInput carries partial updates; nil fields keep the stored value.
type UpdateInput struct {
	Frequency   *model.Frequency  `json:"frequency,omitempty"`
	DoseTimes   []model.DoseTime  `json:"doseTimes,omitempty"`
	DaysOfWeek  model.WeekdaySet  `json:"daysOfWeek,omitempty"`
	Description *string           `json:"description,omitempty"`
	Lead        *int              `json:"reminderMinutesBefore,omitempty"`
}

// requireManager rejects senior-initiated schedule mutations; only
// caregivers and admins manage dosing plans.
func (s *Service) requireManager(ctx context.Context, actorID string) error {
	actor, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role == model.RoleSenior {
		return fmt.Errorf("%w: seniors cannot manage schedules", model.ErrForbidden)
	}
	return nil
}

func (s *Service) validate(doseTimes []model.DoseTime, days model.WeekdaySet, lead int) error {
	if err := model.ValidateDoseTimes(doseTimes); err != nil {
		return err
	}
	if err := model.ValidateWeekdays(days); err != nil {
		return err
	}
	return model.ValidateReminderLead(lead)
}

// checkConflicts fails when any candidate dose time collides with another
// active schedule for the same senior: same primary clock time on an
// overlapping weekday. The schedule under edit is excluded.
func (s *Service) checkConflicts(ctx context.Context, doseTimes []model.DoseTime, days model.WeekdaySet, seniorID, excludeID string) error {
	active := true
	others, err := s.store.ListSchedules(ctx, store.ScheduleFilter{SeniorID: seniorID, IsActive: &active})
	if err != nil {
		return err
	}
	for _, dt := range doseTimes {
		for _, other := range others {
			if other.ID == excludeID {
				continue
			}
			primary, ok := other.PrimaryDoseTime()
			if !ok {
				continue
			}
			if primary.Time == dt.Time && days.Intersects(other.DaysOfWeek) {
				return model.ConflictError(dt.Time, days)
			}
		}
	}
	return nil
}

func (s *Service) locationFor(ctx context.Context, userID string) *time.Location {
	settings, err := s.store.SettingsForUser(ctx, userID)
	if err == nil {
		for _, st := range settings {
			if st.Timezone == "" {
				continue
			}
			if loc, err := time.LoadLocation(st.Timezone); err == nil {
				return loc
			}
		}
	}
	if s.cfg.Timezone != "" {
		if loc, err := time.LoadLocation(s.cfg.Timezone); err == nil {
			return loc
		}
	}
	return time.Local
}

// Create validates, checks conflicts and persists a new active schedule
// with its first next-due timestamp computed.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (*model.Schedule, error) {
	if err := s.requireManager(ctx, actorID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetMedication(ctx, in.MedicationID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, in.SeniorID); err != nil {
		return nil, err
	}

	lead := model.DefaultReminderLeadMinutes
	if in.Lead != nil {
		lead = *in.Lead
	}
	if err := s.validate(in.DoseTimes, in.DaysOfWeek, lead); err != nil {
		return nil, err
	}
	if err := s.checkConflicts(ctx, in.DoseTimes, in.DaysOfWeek, in.SeniorID, ""); err != nil {
		return nil, err
	}

	now := s.now()
	sc := &model.Schedule{
		ID:                  model.NewID(),
		MedicationID:        in.MedicationID,
		SeniorID:            in.SeniorID,
		Frequency:           in.Frequency,
		DoseTimes:           in.DoseTimes,
		DaysOfWeek:          in.DaysOfWeek,
		Description:         in.Description,
		IsActive:            true,
		ReminderLeadMinutes: lead,
		NotificationStatus:  model.DeliveryPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	loc := s.locationFor(ctx, in.SeniorID)
	due, err := recurrence.NextDue(sc, now, loc)
	if err != nil {
		return nil, err
	}
	sc.NextNotificationDue = &due

	if err := s.store.CreateSchedule(ctx, sc); err != nil {
		return nil, err
	}
	s.log.Info("schedule created",
		logx.String("schedule_id", sc.ID),
		logx.String("senior_id", sc.SeniorID),
		logx.Int("dose_times", len(sc.DoseTimes)))
	return sc, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Schedule, error) {
	return s.store.GetSchedule(ctx, id)
}

func (s *Service) List(ctx context.Context, f store.ScheduleFilter) ([]*model.Schedule, error) {
	return s.store.ListSchedules(ctx, f)
}

// Update applies a partial edit. When dose times, weekdays or the lead
// change, validation and the conflict check rerun and next-due is
// recomputed.
func (s *Service) Update(ctx context.Context, actorID, id string, in UpdateInput) (*model.Schedule, error) {
	if err := s.requireManager(ctx, actorID); err != nil {
		return nil, err
	}
	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	timingChanged := false
	if in.DoseTimes != nil {
		sc.DoseTimes = in.DoseTimes
		timingChanged = true
	}
	if in.DaysOfWeek != nil {
		sc.DaysOfWeek = in.DaysOfWeek
		timingChanged = true
	}
	if in.Lead != nil {
		sc.ReminderLeadMinutes = *in.Lead
		timingChanged = true
	}
	if in.Frequency != nil {
		sc.Frequency = *in.Frequency
	}
	if in.Description != nil {
		sc.Description = *in.Description
	}

	if timingChanged {
		if err := s.validate(sc.DoseTimes, sc.DaysOfWeek, sc.ReminderLeadMinutes); err != nil {
			return nil, err
		}
		if err := s.checkConflicts(ctx, sc.DoseTimes, sc.DaysOfWeek, sc.SeniorID, sc.ID); err != nil {
			return nil, err
		}
		loc := s.locationFor(ctx, sc.SeniorID)
		due, err := recurrence.NextDue(sc, s.now(), loc)
		if err != nil {
			return nil, err
		}
		sc.NextNotificationDue = &due
		sc.NotificationStatus = model.DeliveryPending
		sc.FailedAttempts = 0
	}

	sc.UpdatedAt = s.now()
	if err := s.store.UpdateSchedule(ctx, sc); err != nil {
		return nil, err
	}
	s.log.Info("schedule updated", logx.String("schedule_id", sc.ID))
	return sc, nil
}

// SetActive toggles the schedule. Re-activation recomputes next-due so a
// long-dormant plan does not fire for a stale instant.
func (s *Service) SetActive(ctx context.Context, actorID, id string, active bool) (*model.Schedule, error) {
	if err := s.requireManager(ctx, actorID); err != nil {
		return nil, err
	}
	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sc.IsActive == active {
		return sc, nil
	}

	sc.IsActive = active
	if active {
		if err := s.checkConflicts(ctx, sc.DoseTimes, sc.DaysOfWeek, sc.SeniorID, sc.ID); err != nil {
			return nil, err
		}
		loc := s.locationFor(ctx, sc.SeniorID)
		due, err := recurrence.NextDue(sc, s.now(), loc)
		if err != nil {
			return nil, err
		}
		sc.NextNotificationDue = &due
		sc.NotificationStatus = model.DeliveryPending
		sc.FailedAttempts = 0
	}
	sc.UpdatedAt = s.now()
	if err := s.store.UpdateSchedule(ctx, sc); err != nil {
		return nil, err
	}
	s.log.Info("schedule toggled",
		logx.String("schedule_id", sc.ID),
		logx.Bool("active", active))
	return sc, nil
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if err := s.requireManager(ctx, actorID); err != nil {
		return err
	}
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.log.Info("schedule deleted", logx.String("schedule_id", id))
	return nil
}

// CreateFromTemplate expands a named template into a CreateInput and runs
// the normal create path.
func (s *Service) CreateFromTemplate(ctx context.Context, actorID, templateName string, in CreateInput) (*model.Schedule, error) {
	tpl, ok := TemplateByName(templateName)
	if !ok {
		return nil, fmt.Errorf("template %q: %w", templateName, model.ErrNotFound)
	}
	in.Frequency = tpl.Frequency
	in.DoseTimes = tpl.DoseTimes
	if in.Description == "" {
		in.Description = tpl.Description
	}
	return s.Create(ctx, actorID, in)
}

// BulkResult reports one item of a bulk create.
type BulkResult struct {
	Index    int             `json:"index"`
	Schedule *model.Schedule `json:"schedule,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// BulkCreate attempts every item independently; successes and per-item
// errors are both returned, never all-or-nothing.
func (s *Service) BulkCreate(ctx context.Context, actorID string, items []CreateInput) []BulkResult {
	out := make([]BulkResult, 0, len(items))
	for i, in := range items {
		sc, err := s.Create(ctx, actorID, in)
		r := BulkResult{Index: i, Schedule: sc}
		if err != nil {
			r.Error = err.Error()
		}
		out = append(out, r)
	}
	return out
}

// UpcomingReminder is one projected dose occurrence.
type UpcomingReminder struct {
	ScheduleID   string         `json:"scheduleId"`
	MedicationID string         `json:"medicationId"`
	DoseTime     model.DoseTime `json:"doseTime"`
	At           time.Time      `json:"at"`
}

// UpcomingReminders projects the senior's active schedules over the next
// N days, sorted by occurrence time.
func (s *Service) UpcomingReminders(ctx context.Context, seniorID string, days int) ([]UpcomingReminder, error) {
	if days <= 0 {
		days = 7
	}
	active := true
	schedules, err := s.store.ListSchedules(ctx, store.ScheduleFilter{SeniorID: seniorID, IsActive: &active})
	if err != nil {
		return nil, err
	}

	loc := s.locationFor(ctx, seniorID)
	start := s.now()
	end := start.AddDate(0, 0, days)

	var all []recurrence.Occurrence
	for _, sc := range schedules {
		all = append(all, recurrence.OccurrencesBetween(sc, start, end, loc)...)
	}
	out := make([]UpcomingReminder, 0, len(all))
	for _, occ := range all {
		out = append(out, UpcomingReminder{
			ScheduleID:   occ.Schedule.ID,
			MedicationID: occ.Schedule.MedicationID,
			DoseTime:     occ.DoseTime,
			At:           occ.At,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
