// Package processor drives the three periodic scans: due reminders every
// minute, missed-dose detection every 30 minutes and caregiver escalation
// every hour. Each tick is fault-isolated per item; one bad schedule never
// aborts the rest of a pass.
package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"medremind/internal/model"
	"medremind/internal/notify"
	"medremind/internal/recurrence"
	"medremind/internal/store"
	logx "medremind/pkg/logx"
)

const (
	defaultMissedDoseWindow = 30 * time.Minute
	defaultEscalationWindow = time.Hour

	defaultRetryMaxAttempts = 5
	defaultRetryBase        = time.Minute
	defaultRetryMaxDelay    = 10 * time.Minute
)

// Retry bounds redelivery of failed reminder dispatches: exponential
// backoff from Base, capped at MaxDelay, giving up after MaxAttempts.
type Retry struct {
	MaxAttempts int
	Base        time.Duration
	MaxDelay    time.Duration
}

type Config struct {
	// Timezone is the fallback zone for recipients without one in their
	// notification settings. Empty means server-local time.
	Timezone         string
	MissedDoseWindow time.Duration
	EscalationWindow time.Duration
	Retry            Retry
}

func (c Config) withDefaults() Config {
	if c.MissedDoseWindow <= 0 {
		c.MissedDoseWindow = defaultMissedDoseWindow
	}
	if c.EscalationWindow <= 0 {
		c.EscalationWindow = defaultEscalationWindow
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.Base <= 0 {
		c.Retry.Base = defaultRetryBase
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = defaultRetryMaxDelay
	}
	return c
}

type Service struct {
	store  store.Store
	notify *notify.Service
	log    logx.Logger
	now    func() time.Time

	mu  sync.RWMutex
	cfg Config

	cron    *cron.Cron
	runCtx  context.Context
	started bool
}

func New(st store.Store, n *notify.Service, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:  st,
		notify: n,
		cfg:    cfg.withDefaults(),
		log:    log,
		now:    time.Now,
	}
}

// Apply swaps the tunable windows and retry policy at runtime. Tick
// cadence is fixed; only the scan parameters move.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
	s.log.Info("processor config applied")
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Start registers the three cron entries and begins ticking. ctx bounds
// every scheduled pass.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("processor already started")
	}

	s.runCtx = ctx
	s.cron = cron.New()

	entries := []struct {
		spec string
		name string
		run  func(context.Context) (int, error)
	}{
		{"@every 1m", "reminders", s.ProcessDueSchedules},
		{"@every 30m", "missed_doses", s.CheckMissedDoses},
		{"@every 1h", "escalations", s.ProcessEscalations},
	}
	for _, e := range entries {
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() { s.tick(e.name, e.run) }); err != nil {
			return fmt.Errorf("register %s tick: %w", e.name, err)
		}
	}

	s.cron.Start()
	s.started = true
	s.log.Info("processor started")

	// Catch up schedules that never had a due time computed.
	go func() {
		if n, err := s.BackfillNextDue(ctx); err != nil {
			s.log.Warn("next-due backfill failed", logx.Err(err))
		} else if n > 0 {
			s.log.Info("next-due backfill done", logx.Int("schedules", n))
		}
	}()
	return nil
}

// Stop halts the cron ticker and waits for an in-flight pass to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.started = false
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info("processor stopped")
}

func (s *Service) tick(name string, run func(context.Context) (int, error)) {
	ctx := s.runCtx
	if ctx.Err() != nil {
		return
	}
	n, err := run(ctx)
	if err != nil {
		s.log.Error("tick failed", logx.String("tick", name), logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("tick done", logx.String("tick", name), logx.Int("items", n))
	}
}

// withItemRecovery isolates one item of a pass: a panic is logged and
// converted into a skipped item.
func (s *Service) withItemRecovery(id string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("item processing panicked",
				logx.String("id", id),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()
	if err := fn(); err != nil {
		s.log.Error("item processing failed", logx.String("id", id), logx.Err(err))
	}
}

// locationFor resolves the recipient's timezone: notification settings
// first, then the configured fallback, then server-local time.
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
	if tz := s.config().Timezone; tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}

// ProcessDueSchedules is the reminder tick: dispatch every due schedule
// and advance it past the handled occurrence. Returns the number of
// schedules a dispatch was attempted for.
func (s *Service) ProcessDueSchedules(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for _, sc := range due {
		sc := sc
		s.withItemRecovery(sc.ID, func() error {
			loc := s.locationFor(ctx, sc.SeniorID)
			if !sc.DaysOfWeek.Contains(model.WeekdayOf(now.In(loc).Weekday())) {
				return nil
			}
			attempted++
			return s.dispatchReminder(ctx, sc, now, loc)
		})
	}
	return attempted, nil
}

func (s *Service) dispatchReminder(ctx context.Context, sc *model.Schedule, now time.Time, loc *time.Location) error {
	lead := time.Duration(sc.ReminderLeadMinutes) * time.Minute

	// A retry keeps targeting the occurrence the first attempt was for;
	// the due time has been re-armed with backoff by then.
	var occurrence time.Time
	if sc.FailedAttempts > 0 && sc.LastOccurrence != nil {
		occurrence = *sc.LastOccurrence
	} else {
		occurrence = sc.NextNotificationDue.Add(lead)
	}

	res, err := s.notify.SendMedicationReminder(ctx, sc.ID, occurrence)
	if err != nil {
		return err
	}

	if res.Success {
		next, err := recurrence.NextDueAfter(sc, now, loc)
		if err != nil {
			return err
		}
		// Sent stamp and advance land in the same write; a sent row left
		// behind a past due time would be skipped by DueSchedules forever.
		sentAt := s.now()
		sc.LastNotificationSent = &sentAt
		sc.NotificationStatus = model.DeliverySent
		sc.LastOccurrence = &occurrence
		sc.NextNotificationDue = &next
		sc.FailedAttempts = 0
		sc.UpdatedAt = sentAt
		return s.store.UpdateSchedule(ctx, sc)
	}

	return s.recordDispatchFailure(ctx, sc, occurrence, now, loc, res.Errors)
}

// recordDispatchFailure re-arms the schedule with exponential backoff, or
// gives up on the occurrence after the attempt budget: caregivers get a
// system alert and the schedule advances so the failure cannot wedge it.
func (s *Service) recordDispatchFailure(ctx context.Context, sc *model.Schedule, occurrence, now time.Time, loc *time.Location, sendErrors []string) error {
	cfg := s.config()
	sc.FailedAttempts++
	sc.LastOccurrence = &occurrence
	sc.UpdatedAt = s.now()

	if sc.FailedAttempts >= cfg.Retry.MaxAttempts {
		s.log.Error("giving up on occurrence after repeated dispatch failures",
			logx.String("schedule_id", sc.ID),
			logx.Int("attempts", sc.FailedAttempts),
			logx.Time("occurrence", occurrence))
		s.alertCaregiversOfDeliveryFailure(ctx, sc, occurrence, sc.FailedAttempts)

		next, err := recurrence.NextDueAfter(sc, now, loc)
		if err != nil {
			return err
		}
		sc.NextNotificationDue = &next
		sc.NotificationStatus = model.DeliveryPending
		sc.FailedAttempts = 0
		return s.store.UpdateSchedule(ctx, sc)
	}

	delay := cfg.Retry.Base << (sc.FailedAttempts - 1)
	if delay > cfg.Retry.MaxDelay {
		delay = cfg.Retry.MaxDelay
	}
	next := now.Add(delay)
	sc.NextNotificationDue = &next
	sc.NotificationStatus = model.DeliveryFailed
	s.log.Warn("reminder dispatch failed, backing off",
		logx.String("schedule_id", sc.ID),
		logx.Int("attempt", sc.FailedAttempts),
		logx.Duration("retry_in", delay),
		logx.Any("errors", sendErrors))
	return s.store.UpdateSchedule(ctx, sc)
}

func (s *Service) alertCaregiversOfDeliveryFailure(ctx context.Context, sc *model.Schedule, occurrence time.Time, attempts int) {
	senior, err := s.store.GetUser(ctx, sc.SeniorID)
	if err != nil {
		s.log.Warn("delivery-failure alert: senior lookup failed",
			logx.String("schedule_id", sc.ID), logx.Err(err))
		return
	}
	relations, err := s.store.ActiveCaregivers(ctx, sc.SeniorID)
	if err != nil {
		s.log.Warn("delivery-failure alert: caregiver lookup failed",
			logx.String("schedule_id", sc.ID), logx.Err(err))
		return
	}
	medName := ""
	if med, err := s.store.GetMedication(ctx, sc.MedicationID); err == nil {
		medName = med.Name
	}

	for _, rel := range relations {
		_, err := s.notify.Send(ctx, notify.Intent{
			UserID: rel.CaregiverID,
			Type:   model.TypeSystem,
			Title:  fmt.Sprintf("Reminder Delivery Failed: %s", senior.Name),
			Message: fmt.Sprintf("We could not deliver %s's medication reminder after %d attempts. Please check on them directly.",
				senior.Name, attempts),
			ScheduledFor: s.now(),
			Metadata: model.Metadata{
				"seniorId":       senior.ID,
				"seniorName":     senior.Name,
				"medicationName": medName,
				"scheduledTime":  occurrence.Format(time.RFC3339),
				"attempts":       attempts,
			},
		})
		if err != nil {
			s.log.Warn("delivery-failure alert send failed",
				logx.String("caregiver_id", rel.CaregiverID), logx.Err(err))
		}
	}
}

// CheckMissedDoses is the missed-dose tick: every dispatched occurrence
// inside the grace window with no confirmation raises exactly one alert.
// Returns the number of alerts raised.
func (s *Service) CheckMissedDoses(ctx context.Context) (int, error) {
	now := s.now()
	window := s.config().MissedDoseWindow

	candidates, err := s.store.MissedDoseCandidates(ctx, now, window)
	if err != nil {
		return 0, err
	}

	raised := 0
	for _, sc := range candidates {
		sc := sc
		s.withItemRecovery(sc.ID, func() error {
			confs, err := s.store.ConfirmationsForSchedule(ctx, sc.ID, now.Add(-window))
			if err != nil {
				return err
			}
			if len(confs) > 0 {
				return nil
			}
			res, err := s.notify.SendMissedDoseAlert(ctx, sc.ID, *sc.LastOccurrence)
			if err != nil {
				return err
			}
			if res.Success {
				raised++
			}
			return nil
		})
	}
	return raised, nil
}

// ProcessEscalations is the escalation tick: group each senior's
// long-unconfirmed occurrences by medication and raise one alert per
// (senior, medication) pair. Counts are recomputed fresh every pass, not
// accumulated. Returns the number of (senior, medication) alerts raised.
func (s *Service) ProcessEscalations(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.config().EscalationWindow)

	candidates, err := s.store.EscalationCandidates(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	type key struct {
		seniorID string
		medName  string
	}
	counts := map[key]int{}
	var order []key

	for _, sc := range candidates {
		sc := sc
		s.withItemRecovery(sc.ID, func() error {
			confs, err := s.store.ConfirmationsForSchedule(ctx, sc.ID, *sc.LastOccurrence)
			if err != nil {
				return err
			}
			if len(confs) > 0 {
				return nil
			}
			med, err := s.store.GetMedication(ctx, sc.MedicationID)
			if err != nil {
				return err
			}
			k := key{seniorID: sc.SeniorID, medName: med.Name}
			if _, seen := counts[k]; !seen {
				order = append(order, k)
			}
			counts[k]++
			return nil
		})
	}

	raised := 0
	for _, k := range order {
		k := k
		s.withItemRecovery(k.seniorID+"/"+k.medName, func() error {
			results, err := s.notify.SendEscalationAlert(ctx, k.seniorID, k.medName, counts[k])
			if err != nil {
				return err
			}
			if len(results) > 0 {
				raised++
			}
			return nil
		})
	}
	return raised, nil
}

// BackfillNextDue computes next-due for active schedules that never had
// one (e.g. rows imported from elsewhere). Returns the number updated.
func (s *Service) BackfillNextDue(ctx context.Context) (int, error) {
	missing, err := s.store.SchedulesMissingNextDue(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	now := s.now()
	for _, sc := range missing {
		sc := sc
		s.withItemRecovery(sc.ID, func() error {
			loc := s.locationFor(ctx, sc.SeniorID)
			due, err := recurrence.NextDueAfter(sc, now, loc)
			if err != nil {
				return err
			}
			sc.NextNotificationDue = &due
			sc.UpdatedAt = s.now()
			if err := s.store.UpdateSchedule(ctx, sc); err != nil {
				return err
			}
			updated++
			return nil
		})
	}
	return updated, nil
}
