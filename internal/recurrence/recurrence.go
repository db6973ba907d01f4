// Package recurrence converts a schedule's dose-time list, weekday set
// and reminder lead into concrete occurrence timestamps. Pure time math,
// no I/O; every function takes an explicit location so per-user
// timezones are honored by the caller.
package recurrence

import (
	"iter"
	"sort"
	"time"

	"medremind/internal/model"
)

// ScheduledTimeFor returns the next wall-clock instant in loc matching
// the "HH:MM" dose time: today if that time has not yet passed at ref,
// otherwise tomorrow.
func ScheduledTimeFor(doseTime string, ref time.Time, loc *time.Location) (time.Time, error) {
	hour, minute, err := model.ParseClock(doseTime)
	if err != nil {
		return time.Time{}, err
	}
	local := ref.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !at.After(local) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// NextDue computes a schedule's next-notification-due timestamp at
// creation/update time: the primary dose's next occurrence minus the
// reminder lead.
func NextDue(s *model.Schedule, ref time.Time, loc *time.Location) (time.Time, error) {
	primary, ok := s.PrimaryDoseTime()
	if !ok {
		return time.Time{}, model.ValidateDoseTimes(nil)
	}
	at, err := ScheduledTimeFor(primary.Time, ref, loc)
	if err != nil {
		return time.Time{}, err
	}
	return at.Add(-time.Duration(s.ReminderLeadMinutes) * time.Minute), nil
}

// NextDueAfter finds the earliest due instant strictly after ref,
// honoring the weekday set and every dose time. The processor uses it to
// advance a schedule past a dispatched (or abandoned) occurrence so the
// same occurrence never fires twice.
func NextDueAfter(s *model.Schedule, ref time.Time, loc *time.Location) (time.Time, error) {
	if err := model.ValidateDoseTimes(s.DoseTimes); err != nil {
		return time.Time{}, err
	}
	if err := model.ValidateWeekdays(s.DaysOfWeek); err != nil {
		return time.Time{}, err
	}

	clocks := make([]int, 0, len(s.DoseTimes))
	for _, dt := range s.DoseTimes {
		h, m, err := model.ParseClock(dt.Time)
		if err != nil {
			return time.Time{}, err
		}
		clocks = append(clocks, h*60+m)
	}
	sort.Ints(clocks)

	lead := time.Duration(s.ReminderLeadMinutes) * time.Minute
	local := ref.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	// The weekday set is non-empty, so 8 days always covers a match
	// (the first day may have all dose times already past).
	for i := 0; i < 8; i++ {
		d := day.AddDate(0, 0, i)
		if !s.DaysOfWeek.Contains(model.WeekdayOf(d.Weekday())) {
			continue
		}
		for _, c := range clocks {
			due := d.Add(time.Duration(c)*time.Minute - lead)
			if due.After(local) {
				return due, nil
			}
		}
	}
	// Unreachable with a valid weekday set.
	return time.Time{}, model.ValidateWeekdays(nil)
}

// Occurrences yields one occurrence per calendar day in [start, end]
// whose weekday is in the schedule's weekday set and whose computed
// instant is >= start. The sequence is lazy and restartable.
func Occurrences(s *model.Schedule, doseTime string, start, end time.Time, loc *time.Location) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		hour, minute, err := model.ParseClock(doseTime)
		if err != nil {
			return
		}
		from := start.In(loc)
		until := end.In(loc)
		day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
		for ; !day.After(until); day = day.AddDate(0, 0, 1) {
			if !s.DaysOfWeek.Contains(model.WeekdayOf(day.Weekday())) {
				continue
			}
			at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
			if at.Before(from) || at.After(until) {
				continue
			}
			if !yield(at) {
				return
			}
		}
	}
}

// OccurrencesBetween collects every dose time's occurrences in the
// window, sorted ascending. Used for "next N days of reminders" queries.
func OccurrencesBetween(s *model.Schedule, start, end time.Time, loc *time.Location) []Occurrence {
	var out []Occurrence
	for _, dt := range s.DoseTimes {
		for at := range Occurrences(s, dt.Time, start, end, loc) {
			out = append(out, Occurrence{Schedule: s, DoseTime: dt, At: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Occurrence is one concrete calendar instance of a schedule's dose time.
type Occurrence struct {
	Schedule *model.Schedule
	DoseTime model.DoseTime
	At       time.Time
}
