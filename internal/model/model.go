// Package model holds the domain entities shared by the schedule,
// notification and processor services, plus the validation rules that
// guard them before anything touches storage.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors. Services wrap these with fmt.Errorf("%w") so callers
// can classify failures with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("schedule conflict")
	ErrForbidden  = errors.New("forbidden")
)

// NewID returns a fresh entity id.
func NewID() string { return uuid.NewString() }

// ---- Enums ----

type Role string

const (
	RoleSenior    Role = "senior"
	RoleCaregiver Role = "caregiver"
	RoleAdmin     Role = "admin"
)

type Frequency string

const (
	FrequencyDaily           Frequency = "daily"
	FrequencyTwiceDaily      Frequency = "twice_daily"
	FrequencyThreeTimesDaily Frequency = "three_times_daily"
	FrequencyFourTimesDaily  Frequency = "four_times_daily"
	FrequencyCustom          Frequency = "custom"
)

type Channel string

const (
	ChannelPush   Channel = "push"
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
	ChannelVoice  Channel = "voice"
	ChannelInApp  Channel = "in_app"
	ChannelBuzzer Channel = "buzzer"
)

type NotificationType string

const (
	TypeReminder            NotificationType = "reminder"
	TypeMissedDose          NotificationType = "missed_dose"
	TypeEscalation          NotificationType = "escalation"
	TypeSystem              NotificationType = "system"
	TypeEmergency           NotificationType = "emergency"
	TypeConfirmationRequest NotificationType = "confirmation_request"
)

// NotificationStatus is the notification record lifecycle:
// pending -> sent|failed -> confirmed|read. Transitions are forward-only.
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusSent      NotificationStatus = "sent"
	StatusFailed    NotificationStatus = "failed"
	StatusConfirmed NotificationStatus = "confirmed"
	StatusRead      NotificationStatus = "read"
)

// DeliveryStatus is the schedule-side view of the last dispatch.
// "failed" is a retry state, not terminal.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

type LogEvent string

const (
	EventCreated   LogEvent = "CREATED"
	EventSent      LogEvent = "SENT"
	EventFailed    LogEvent = "FAILED"
	EventConfirmed LogEvent = "CONFIRMED"
)

// ---- Weekdays ----

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdayOrder = map[Weekday]time.Weekday{
	Sunday:    time.Sunday,
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
}

func (w Weekday) Valid() bool {
	_, ok := weekdayOrder[w]
	return ok
}

// Time maps the weekday onto the stdlib time.Weekday.
func (w Weekday) Time() (time.Weekday, bool) {
	t, ok := weekdayOrder[w]
	return t, ok
}

// WeekdayOf converts a stdlib weekday into the domain representation.
func WeekdayOf(t time.Weekday) Weekday {
	switch t {
	case time.Sunday:
		return Sunday
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	default:
		return Saturday
	}
}

type WeekdaySet []Weekday

func (s WeekdaySet) Contains(w Weekday) bool {
	for _, d := range s {
		if d == w {
			return true
		}
	}
	return false
}

func (s WeekdaySet) Intersects(other WeekdaySet) bool {
	for _, d := range s {
		if other.Contains(d) {
			return true
		}
	}
	return false
}

func (s WeekdaySet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, d := range s {
		out = append(out, string(d))
	}
	return out
}

// ---- Dose times ----

// DoseTime is one entry in a schedule's daily dosing list.
type DoseTime struct {
	Time         string `json:"time"` // 24-hour "HH:MM"
	Label        string `json:"label,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

var doseTimeRe = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ParseClock splits a validated "HH:MM" string into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	if !doseTimeRe.MatchString(s) {
		return 0, 0, fmt.Errorf("%w: invalid time format %q, expected HH:MM", ErrValidation, s)
	}
	i := strings.IndexByte(s, ':')
	for _, c := range s[:i] {
		hour = hour*10 + int(c-'0')
	}
	for _, c := range s[i+1:] {
		minute = minute*10 + int(c-'0')
	}
	return hour, minute, nil
}

// ValidateDoseTimes enforces the schedule invariants: non-empty list,
// every entry a valid 24-hour HH:MM, no duplicate times.
func ValidateDoseTimes(doseTimes []DoseTime) error {
	if len(doseTimes) == 0 {
		return fmt.Errorf("%w: at least one dose time is required", ErrValidation)
	}
	seen := make(map[string]struct{}, len(doseTimes))
	for _, dt := range doseTimes {
		if !doseTimeRe.MatchString(dt.Time) {
			return fmt.Errorf("%w: invalid time format %q, expected HH:MM", ErrValidation, dt.Time)
		}
		if _, dup := seen[dt.Time]; dup {
			return fmt.Errorf("%w: duplicate dose time %q", ErrValidation, dt.Time)
		}
		seen[dt.Time] = struct{}{}
	}
	return nil
}

// ValidateWeekdays enforces a non-empty set of known weekdays.
func ValidateWeekdays(days WeekdaySet) error {
	if len(days) == 0 {
		return fmt.Errorf("%w: at least one weekday is required", ErrValidation)
	}
	for _, d := range days {
		if !d.Valid() {
			return fmt.Errorf("%w: unknown weekday %q", ErrValidation, d)
		}
	}
	return nil
}

const (
	DefaultReminderLeadMinutes = 15
	MaxReminderLeadMinutes     = 60
)

// ValidateReminderLead enforces the 0-60 minute range.
func ValidateReminderLead(minutes int) error {
	if minutes < 0 || minutes > MaxReminderLeadMinutes {
		return fmt.Errorf("%w: reminder lead must be between 0 and %d minutes", ErrValidation, MaxReminderLeadMinutes)
	}
	return nil
}

// ConflictError builds the conflict failure naming the colliding time and days.
func ConflictError(doseTime string, days WeekdaySet) error {
	return fmt.Errorf("%w: schedule conflict detected at %s on %s", ErrConflict, doseTime, strings.Join(days.Strings(), ", "))
}

// ---- Metadata ----

// Metadata is free-form per-notification data constrained to JSON
// primitives (string, bool, float64, int, nil). Channel renderers rely
// on this constraint staying true.
type Metadata map[string]any

// Validate rejects nested or non-primitive values.
func (m Metadata) Validate() error {
	for k, v := range m {
		switch v.(type) {
		case nil, string, bool, int, int64, float64:
		default:
			return fmt.Errorf("%w: metadata key %q has non-primitive value %T", ErrValidation, k, v)
		}
	}
	return nil
}

// StringMap renders metadata as string values (push "data" maps require
// string-to-string). Keys come out sorted for deterministic payloads.
func (m Metadata) StringMap() map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// SortedKeys is a helper for deterministic iteration in renderers/tests.
func (m Metadata) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---- Entities ----

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Medication struct {
	ID           string    `json:"id"`
	SeniorID     string    `json:"seniorId"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Schedule is one recurring dosing plan for one medication.
type Schedule struct {
	ID           string     `json:"id"`
	MedicationID string     `json:"medicationId"`
	SeniorID     string     `json:"seniorId"`
	Frequency    Frequency  `json:"frequency"`
	DoseTimes    []DoseTime `json:"doseTimes"`
	DaysOfWeek   WeekdaySet `json:"daysOfWeek"`
	Description  string     `json:"description,omitempty"`
	IsActive     bool       `json:"isActive"`

	// ReminderLeadMinutes is how many minutes before the dose time the
	// reminder fires (0-60, default 15).
	ReminderLeadMinutes int `json:"reminderMinutesBefore"`

	LastNotificationSent *time.Time     `json:"lastNotificationSent,omitempty"`
	NextNotificationDue  *time.Time     `json:"nextNotificationDue,omitempty"`
	NotificationStatus   DeliveryStatus `json:"notificationStatus"`

	// LastOccurrence is the dose wall-clock instant the most recent
	// reminder was dispatched for. The missed-dose and escalation scans
	// key on it rather than on the already-advanced NextNotificationDue.
	LastOccurrence *time.Time `json:"lastScheduledTime,omitempty"`

	// FailedAttempts counts consecutive failed dispatches of the current
	// occurrence; reset on success or terminal give-up.
	FailedAttempts int `json:"failedAttempts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PrimaryDoseTime is the first entry in the dose list; the conflict check
// and next-due computation key off it.
func (s *Schedule) PrimaryDoseTime() (DoseTime, bool) {
	if len(s.DoseTimes) == 0 {
		return DoseTime{}, false
	}
	return s.DoseTimes[0], true
}

// Notification is a single dispatch attempt record.
type Notification struct {
	ID         string             `json:"id"`
	UserID     string             `json:"userId"`
	ScheduleID string             `json:"scheduleId,omitempty"` // empty for non-schedule notifications
	Type       NotificationType   `json:"type"`
	Channel    Channel            `json:"channel"` // primary channel
	Status     NotificationStatus `json:"status"`
	Title      string             `json:"title"`
	Message    string             `json:"message"`

	ScheduledFor time.Time  `json:"scheduledFor"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`
	ReadAt       *time.Time `json:"readAt,omitempty"`

	Metadata     Metadata `json:"metadata,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NotificationLog is one append-only lifecycle event.
type NotificationLog struct {
	ID             string             `json:"id"`
	NotificationID string             `json:"notificationId"`
	Event          LogEvent           `json:"event"`
	Status         NotificationStatus `json:"status"`
	Message        string             `json:"message,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Confirmation records that a recipient acknowledged one scheduled dose
// occurrence. Its presence suppresses the missed-dose scan for that
// occurrence.
type Confirmation struct {
	ID             string    `json:"id"`
	ScheduleID     string    `json:"scheduleId"`
	UserID         string    `json:"userId"`
	NotificationID string    `json:"notificationId"`
	ScheduledTime  time.Time `json:"scheduledTime"`
	Method         string    `json:"method"`
	ConfirmedAt    time.Time `json:"confirmedAt"`
}

// NotificationSetting is per user, per channel delivery preference.
// Read-only input to the orchestrator.
type NotificationSetting struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Channel   Channel `json:"channel"`
	IsEnabled bool    `json:"isEnabled"`

	PreferredTime   string `json:"preferredTime,omitempty"`   // "HH:MM"
	Timezone        string `json:"timezone,omitempty"`        // IANA name
	QuietHoursStart string `json:"quietHoursStart,omitempty"` // "HH:MM"
	QuietHoursEnd   string `json:"quietHoursEnd,omitempty"`   // "HH:MM"
	MaxPerDay       int    `json:"maxNotificationsPerDay,omitempty"`
}

// CaregiverRelation links a caregiver to a senior.
type CaregiverRelation struct {
	ID           string    `json:"id"`
	CaregiverID  string    `json:"caregiverId"`
	SeniorID     string    `json:"seniorId"`
	Relationship string    `json:"relationship,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}
