package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medremind/internal/model"
)

var utc = time.UTC

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func weekdaySchedule(doseTimes []model.DoseTime, lead int) *model.Schedule {
	return &model.Schedule{
		ID:                  "sched-1",
		DoseTimes:           doseTimes,
		DaysOfWeek:          model.WeekdaySet{model.Monday, model.Tuesday, model.Wednesday, model.Thursday, model.Friday},
		ReminderLeadMinutes: lead,
		IsActive:            true,
	}
}

func TestScheduledTimeFor(t *testing.T) {
	// Monday 2026-08-31 07:00 UTC.
	ref := time.Date(2026, 8, 31, 7, 0, 0, 0, utc)

	at, err := ScheduledTimeFor("08:00", ref, utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 8, 0, 0, 0, utc), at, "time not yet passed stays today")

	at, err = ScheduledTimeFor("06:30", ref, utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 6, 30, 0, 0, utc), at, "time already passed rolls to tomorrow")

	// Exactly now rolls to tomorrow too.
	at, err = ScheduledTimeFor("07:00", ref, utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 7, 0, 0, 0, utc), at)

	_, err = ScheduledTimeFor("24:00", ref, utc)
	require.Error(t, err)
}

func TestScheduledTimeForHonorsLocation(t *testing.T) {
	tokyo := mustZone(t, "Asia/Tokyo")
	// 23:30 UTC on Aug 30 is already Aug 31 08:30 in Tokyo.
	ref := time.Date(2026, 8, 30, 23, 30, 0, 0, utc)

	at, err := ScheduledTimeFor("09:00", ref, tokyo)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 9, 0, 0, 0, tokyo), at)

	at, err = ScheduledTimeFor("08:00", ref, tokyo)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 8, 0, 0, 0, tokyo), at, "08:00 Tokyo already passed")
}

func TestNextDue(t *testing.T) {
	s := weekdaySchedule([]model.DoseTime{{Time: "08:00"}, {Time: "20:00"}}, 15)
	ref := time.Date(2026, 8, 31, 7, 0, 0, 0, utc) // Monday

	due, err := NextDue(s, ref, utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 7, 45, 0, 0, utc), due, "primary dose minus lead")
}

func TestNextDueAfterAdvancesStrictly(t *testing.T) {
	s := weekdaySchedule([]model.DoseTime{{Time: "08:00"}, {Time: "20:00"}}, 15)

	// Just dispatched the Monday 08:00 occurrence at its due time.
	ref := time.Date(2026, 8, 31, 7, 45, 0, 0, utc)
	due, err := NextDueAfter(s, ref, utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 19, 45, 0, 0, utc), due, "advances to the evening dose")
	assert.True(t, due.After(ref))

	// After the evening dose it rolls to Tuesday morning.
	due, err = NextDueAfter(s, due, utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 7, 45, 0, 0, utc), due)
}

func TestNextDueAfterSkipsInactiveWeekdays(t *testing.T) {
	s := weekdaySchedule([]model.DoseTime{{Time: "08:00"}}, 0)

	// Friday evening: next active day is Monday.
	ref := time.Date(2026, 9, 4, 10, 0, 0, 0, utc) // Friday after the dose
	due, err := NextDueAfter(s, ref, utc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 7, 8, 0, 0, 0, utc), due)
	assert.Equal(t, time.Monday, due.Weekday())
}

func TestOccurrencesBetweenTwiceDailyWeekdays(t *testing.T) {
	s := weekdaySchedule([]model.DoseTime{{Time: "08:00"}, {Time: "20:00"}}, 15)

	// 7-day window starting Monday 2026-08-31 00:00.
	start := time.Date(2026, 8, 31, 0, 0, 0, 0, utc)
	end := start.AddDate(0, 0, 7)

	occs := OccurrencesBetween(s, start, end, utc)
	require.Len(t, occs, 10, "2 doses x 5 weekdays")
	for i, occ := range occs {
		assert.False(t, occ.At.Before(start), "occurrence %d before window start", i)
		if i > 0 {
			assert.True(t, occs[i-1].At.Before(occ.At) || occs[i-1].At.Equal(occ.At), "sorted ascending")
		}
		day := model.WeekdayOf(occ.At.Weekday())
		assert.True(t, s.DaysOfWeek.Contains(day))
	}
}

func TestOccurrencesRespectsWindowStart(t *testing.T) {
	s := weekdaySchedule([]model.DoseTime{{Time: "08:00"}}, 0)

	// Window starts Monday 09:00, so Monday's 08:00 dose is excluded.
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, utc)
	end := start.AddDate(0, 0, 2)

	var got []time.Time
	for at := range Occurrences(s, "08:00", start, end, utc) {
		got = append(got, at)
	}
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2026, 9, 1, 8, 0, 0, 0, utc), got[0])
	assert.Equal(t, time.Date(2026, 9, 2, 8, 0, 0, 0, utc), got[1])
}

func TestOccurrencesRestartable(t *testing.T) {
	s := weekdaySchedule([]model.DoseTime{{Time: "08:00"}}, 0)
	start := time.Date(2026, 8, 31, 0, 0, 0, 0, utc)
	end := start.AddDate(0, 0, 5)

	seq := Occurrences(s, "08:00", start, end, utc)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	first := count()
	assert.Equal(t, first, count(), "sequence is pure and restartable")
	assert.Equal(t, 5, first)
}
