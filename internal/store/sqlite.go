package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"medremind/internal/model"
	logx "medremind/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- column helpers ----
// Timestamps are stored as unix milliseconds so range predicates compare
// correctly in SQL.

func ms(t time.Time) int64 { return t.UnixMilli() }

func msPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func fromMSPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMS(v.Int64)
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func strOf(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func jsonCol(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ---- users / medications ----

func (s *sqliteStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, name, email, phone, role, created_at) VALUES(?,?,?,?,?,?)`,
		u.ID, u.Name, nullStr(u.Email), nullStr(u.Phone), string(u.Role), ms(u.CreatedAt),
	)
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u            model.User
		email, phone sql.NullString
		created      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, role, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &email, &phone, &u.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.Email = strOf(email)
	u.Phone = strOf(phone)
	u.CreatedAt = fromMS(created)
	return &u, nil
}

func (s *sqliteStore) CreateMedication(ctx context.Context, m *model.Medication) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medications(id, senior_id, name, dosage, instructions, created_at) VALUES(?,?,?,?,?,?)`,
		m.ID, m.SeniorID, m.Name, nullStr(m.Dosage), nullStr(m.Instructions), ms(m.CreatedAt),
	)
	return err
}

func (s *sqliteStore) GetMedication(ctx context.Context, id string) (*model.Medication, error) {
	var (
		m             model.Medication
		dosage, instr sql.NullString
		created       int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, senior_id, name, dosage, instructions, created_at FROM medications WHERE id = ?`, id,
	).Scan(&m.ID, &m.SeniorID, &m.Name, &dosage, &instr, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("medication %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	m.Dosage = strOf(dosage)
	m.Instructions = strOf(instr)
	m.CreatedAt = fromMS(created)
	return &m, nil
}

// ---- schedules ----

const scheduleCols = `id, medication_id, senior_id, frequency, dose_times, days_of_week, description,
	is_active, reminder_lead, last_sent, next_due, last_occurrence, status, failed_attempts, created_at, updated_at`

func (s *sqliteStore) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	doseTimes, err := jsonCol(sc.DoseTimes)
	if err != nil {
		return err
	}
	days, err := jsonCol(sc.DaysOfWeek)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules(`+scheduleCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sc.ID, sc.MedicationID, sc.SeniorID, string(sc.Frequency), doseTimes, days, nullStr(sc.Description),
		boolInt(sc.IsActive), sc.ReminderLeadMinutes, msPtr(sc.LastNotificationSent), msPtr(sc.NextNotificationDue),
		msPtr(sc.LastOccurrence), string(sc.NotificationStatus), sc.FailedAttempts, ms(sc.CreatedAt), ms(sc.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) UpdateSchedule(ctx context.Context, sc *model.Schedule) error {
	doseTimes, err := jsonCol(sc.DoseTimes)
	if err != nil {
		return err
	}
	days, err := jsonCol(sc.DaysOfWeek)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET medication_id=?, senior_id=?, frequency=?, dose_times=?, days_of_week=?, description=?,
		 is_active=?, reminder_lead=?, last_sent=?, next_due=?, last_occurrence=?, status=?, failed_attempts=?, updated_at=?
		 WHERE id=?`,
		sc.MedicationID, sc.SeniorID, string(sc.Frequency), doseTimes, days, nullStr(sc.Description),
		boolInt(sc.IsActive), sc.ReminderLeadMinutes, msPtr(sc.LastNotificationSent), msPtr(sc.NextNotificationDue),
		msPtr(sc.LastOccurrence), string(sc.NotificationStatus), sc.FailedAttempts, ms(sc.UpdatedAt),
		sc.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", sc.ID, model.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", id, model.ErrNotFound)
	}
	return sc, err
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %s: %w", id, model.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	var (
		sc                     model.Schedule
		doseTimes, days        string
		desc                   sql.NullString
		active                 int
		lastSent, nextDue, occ sql.NullInt64
		created, updated       int64
	)
	err := row.Scan(
		&sc.ID, &sc.MedicationID, &sc.SeniorID, &sc.Frequency, &doseTimes, &days, &desc,
		&active, &sc.ReminderLeadMinutes, &lastSent, &nextDue, &occ, &sc.NotificationStatus,
		&sc.FailedAttempts, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doseTimes), &sc.DoseTimes); err != nil {
		return nil, fmt.Errorf("schedule %s: decode dose_times: %w", sc.ID, err)
	}
	if err := json.Unmarshal([]byte(days), &sc.DaysOfWeek); err != nil {
		return nil, fmt.Errorf("schedule %s: decode days_of_week: %w", sc.ID, err)
	}
	sc.Description = strOf(desc)
	sc.IsActive = active != 0
	sc.LastNotificationSent = fromMSPtr(lastSent)
	sc.NextNotificationDue = fromMSPtr(nextDue)
	sc.LastOccurrence = fromMSPtr(occ)
	sc.CreatedAt = fromMS(created)
	sc.UpdatedAt = fromMS(updated)
	return &sc, nil
}

func (s *sqliteStore) querySchedules(ctx context.Context, query string, args ...any) ([]*model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListSchedules(ctx context.Context, f ScheduleFilter) ([]*model.Schedule, error) {
	query := `SELECT ` + scheduleCols + ` FROM schedules WHERE 1=1`
	var args []any
	if f.SeniorID != "" {
		query += ` AND senior_id = ?`
		args = append(args, f.SeniorID)
	}
	if f.MedicationID != "" {
		query += ` AND medication_id = ?`
		args = append(args, f.MedicationID)
	}
	if f.IsActive != nil {
		query += ` AND is_active = ?`
		args = append(args, boolInt(*f.IsActive))
	}
	query += ` ORDER BY created_at`

	out, err := s.querySchedules(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Weekday membership lives in a JSON column; filter here.
	if f.Day != "" {
		kept := out[:0]
		for _, sc := range out {
			if sc.DaysOfWeek.Contains(f.Day) {
				kept = append(kept, sc)
			}
		}
		out = kept
	}
	return out, nil
}

func (s *sqliteStore) DueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	// A sent status only blocks redelivery of the occurrence it was
	// recorded for; once the next due instant arrives the schedule is
	// due again.
	return s.querySchedules(ctx,
		`SELECT `+scheduleCols+` FROM schedules
		 WHERE is_active = 1 AND next_due IS NOT NULL AND next_due <= ?
		   AND (status != 'sent' OR last_sent IS NULL OR last_sent < next_due)
		 ORDER BY id`,
		ms(now),
	)
}

func (s *sqliteStore) MissedDoseCandidates(ctx context.Context, now time.Time, window time.Duration) ([]*model.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT `+scheduleCols+` FROM schedules
		 WHERE is_active = 1 AND status = 'sent'
		   AND last_occurrence IS NOT NULL AND last_occurrence <= ? AND last_occurrence > ?
		 ORDER BY id`,
		ms(now), ms(now.Add(-window)),
	)
}

func (s *sqliteStore) EscalationCandidates(ctx context.Context, cutoff time.Time) ([]*model.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT `+scheduleCols+` FROM schedules
		 WHERE is_active = 1 AND status = 'sent'
		   AND last_occurrence IS NOT NULL AND last_occurrence <= ?
		 ORDER BY id`,
		ms(cutoff),
	)
}

func (s *sqliteStore) SchedulesMissingNextDue(ctx context.Context) ([]*model.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE is_active = 1 AND next_due IS NULL ORDER BY id`,
	)
}

// ---- notifications ----

const notificationCols = `id, user_id, schedule_id, type, channel, status, title, message,
	scheduled_for, sent_at, delivered_at, confirmed_at, read_at, metadata, error_message, created_at`

func (s *sqliteStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	meta := any(nil)
	if len(n.Metadata) > 0 {
		j, err := jsonCol(n.Metadata)
		if err != nil {
			return err
		}
		meta = j
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(`+notificationCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, nullStr(n.ScheduleID), string(n.Type), string(n.Channel), string(n.Status),
		n.Title, n.Message, ms(n.ScheduledFor), msPtr(n.SentAt), msPtr(n.DeliveredAt),
		msPtr(n.ConfirmedAt), msPtr(n.ReadAt), meta, nullStr(n.ErrorMessage), ms(n.CreatedAt),
	)
	return err
}

func (s *sqliteStore) UpdateNotification(ctx context.Context, n *model.Notification) error {
	meta := any(nil)
	if len(n.Metadata) > 0 {
		j, err := jsonCol(n.Metadata)
		if err != nil {
			return err
		}
		meta = j
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status=?, sent_at=?, delivered_at=?, confirmed_at=?, read_at=?, metadata=?, error_message=?
		 WHERE id=?`,
		string(n.Status), msPtr(n.SentAt), msPtr(n.DeliveredAt), msPtr(n.ConfirmedAt), msPtr(n.ReadAt),
		meta, nullStr(n.ErrorMessage), n.ID,
	)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("notification %s: %w", n.ID, model.ErrNotFound)
	}
	return nil
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	var (
		n                                model.Notification
		scheduleID, meta, errMsg         sql.NullString
		scheduledFor, created            int64
		sentAt, deliveredAt, confirmedAt sql.NullInt64
		readAt                           sql.NullInt64
	)
	err := row.Scan(
		&n.ID, &n.UserID, &scheduleID, &n.Type, &n.Channel, &n.Status, &n.Title, &n.Message,
		&scheduledFor, &sentAt, &deliveredAt, &confirmedAt, &readAt, &meta, &errMsg, &created,
	)
	if err != nil {
		return nil, err
	}
	n.ScheduleID = strOf(scheduleID)
	n.ScheduledFor = fromMS(scheduledFor)
	n.SentAt = fromMSPtr(sentAt)
	n.DeliveredAt = fromMSPtr(deliveredAt)
	n.ConfirmedAt = fromMSPtr(confirmedAt)
	n.ReadAt = fromMSPtr(readAt)
	n.ErrorMessage = strOf(errMsg)
	n.CreatedAt = fromMS(created)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &n.Metadata); err != nil {
			return nil, fmt.Errorf("notification %s: decode metadata: %w", n.ID, err)
		}
	}
	return &n, nil
}

func (s *sqliteStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}
	return n, err
}

func (s *sqliteStore) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountNotifications(ctx context.Context, userID string, channel model.Channel, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND created_at >= ?`
	args := []any{userID, ms(since)}
	if channel != "" {
		query += ` AND channel = ?`
		args = append(args, string(channel))
	}
	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (s *sqliteStore) NotificationStats(ctx context.Context, userID string) (map[model.NotificationStatus]map[model.Channel]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, channel, COUNT(*) FROM notifications WHERE user_id = ? GROUP BY status, channel`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats := map[model.NotificationStatus]map[model.Channel]int{}
	for rows.Next() {
		var (
			status  model.NotificationStatus
			channel model.Channel
			count   int
		)
		if err := rows.Scan(&status, &channel, &count); err != nil {
			return nil, err
		}
		byChannel := stats[status]
		if byChannel == nil {
			byChannel = map[model.Channel]int{}
			stats[status] = byChannel
		}
		byChannel[channel] = count
	}
	return stats, rows.Err()
}

// ---- logs ----

func (s *sqliteStore) AppendNotificationLog(ctx context.Context, l *model.NotificationLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_logs(id, notification_id, event, status, message, created_at) VALUES(?,?,?,?,?,?)`,
		l.ID, l.NotificationID, string(l.Event), string(l.Status), nullStr(l.Message), ms(l.CreatedAt),
	)
	return err
}

func (s *sqliteStore) ListNotificationLogs(ctx context.Context, notificationID string) ([]*model.NotificationLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, notification_id, event, status, message, created_at FROM notification_logs
		 WHERE notification_id = ? ORDER BY created_at, rowid`,
		notificationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.NotificationLog
	for rows.Next() {
		var (
			l       model.NotificationLog
			msg     sql.NullString
			created int64
		)
		if err := rows.Scan(&l.ID, &l.NotificationID, &l.Event, &l.Status, &msg, &created); err != nil {
			return nil, err
		}
		l.Message = strOf(msg)
		l.CreatedAt = fromMS(created)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// ---- confirmations ----

func (s *sqliteStore) CreateConfirmation(ctx context.Context, c *model.Confirmation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO confirmations(id, schedule_id, user_id, notification_id, scheduled_time, method, confirmed_at)
		 VALUES(?,?,?,?,?,?,?)`,
		c.ID, c.ScheduleID, c.UserID, nullStr(c.NotificationID), ms(c.ScheduledTime), nullStr(c.Method), ms(c.ConfirmedAt),
	)
	return err
}

func (s *sqliteStore) ConfirmationsForSchedule(ctx context.Context, scheduleID string, since time.Time) ([]*model.Confirmation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, user_id, notification_id, scheduled_time, method, confirmed_at FROM confirmations
		 WHERE schedule_id = ? AND scheduled_time >= ? ORDER BY scheduled_time`,
		scheduleID, ms(since),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Confirmation
	for rows.Next() {
		var (
			c                    model.Confirmation
			notificationID       sql.NullString
			method               sql.NullString
			scheduled, confirmed int64
		)
		if err := rows.Scan(&c.ID, &c.ScheduleID, &c.UserID, &notificationID, &scheduled, &method, &confirmed); err != nil {
			return nil, err
		}
		c.NotificationID = strOf(notificationID)
		c.Method = strOf(method)
		c.ScheduledTime = fromMS(scheduled)
		c.ConfirmedAt = fromMS(confirmed)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ---- settings ----

func (s *sqliteStore) UpsertNotificationSetting(ctx context.Context, st *model.NotificationSetting) error {
	id := st.ID
	if id == "" {
		id = model.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_settings(id, user_id, channel, is_enabled, preferred_time, timezone, quiet_start, quiet_end, max_per_day)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(user_id, channel) DO UPDATE SET
		   is_enabled=excluded.is_enabled, preferred_time=excluded.preferred_time, timezone=excluded.timezone,
		   quiet_start=excluded.quiet_start, quiet_end=excluded.quiet_end, max_per_day=excluded.max_per_day`,
		id, st.UserID, string(st.Channel), boolInt(st.IsEnabled), nullStr(st.PreferredTime),
		nullStr(st.Timezone), nullStr(st.QuietHoursStart), nullStr(st.QuietHoursEnd), st.MaxPerDay,
	)
	return err
}

func (s *sqliteStore) SettingsForUser(ctx context.Context, userID string) ([]*model.NotificationSetting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, channel, is_enabled, preferred_time, timezone, quiet_start, quiet_end, max_per_day
		 FROM notification_settings WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.NotificationSetting
	for rows.Next() {
		var (
			st                     model.NotificationSetting
			enabled                int
			pref, tz, qStart, qEnd sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.UserID, &st.Channel, &enabled, &pref, &tz, &qStart, &qEnd, &st.MaxPerDay); err != nil {
			return nil, err
		}
		st.IsEnabled = enabled != 0
		st.PreferredTime = strOf(pref)
		st.Timezone = strOf(tz)
		st.QuietHoursStart = strOf(qStart)
		st.QuietHoursEnd = strOf(qEnd)
		out = append(out, &st)
	}
	return out, rows.Err()
}

// ---- caregivers ----

func (s *sqliteStore) CreateCaregiverRelation(ctx context.Context, r *model.CaregiverRelation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO caregiver_relations(id, caregiver_id, senior_id, relationship, is_active, created_at)
		 VALUES(?,?,?,?,?,?)`,
		r.ID, r.CaregiverID, r.SeniorID, nullStr(r.Relationship), boolInt(r.IsActive), ms(r.CreatedAt),
	)
	return err
}

func (s *sqliteStore) ActiveCaregivers(ctx context.Context, seniorID string) ([]*model.CaregiverRelation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, caregiver_id, senior_id, relationship, is_active, created_at FROM caregiver_relations
		 WHERE senior_id = ? AND is_active = 1`,
		seniorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.CaregiverRelation
	for rows.Next() {
		var (
			r       model.CaregiverRelation
			rel     sql.NullString
			active  int
			created int64
		)
		if err := rows.Scan(&r.ID, &r.CaregiverID, &r.SeniorID, &rel, &active, &created); err != nil {
			return nil, err
		}
		r.Relationship = strOf(rel)
		r.IsActive = active != 0
		r.CreatedAt = fromMS(created)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
