package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"clinic-service/internal/models"
	"clinic-service/pkg/response"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Storage) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// translatePQ maps Postgres constraint violations onto the service sentinels.
func translatePQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return response.ErrConflict
		case "23503":
			return response.ErrNotFound
		}
	}
	return err
}

// #### users ####

func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.postgres.GetUser"

	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, role FROM users WHERE id=$1`, id).
		Scan(&user.ID, &user.Username, &user.Email, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}

// #### doctor schedules ####

func (s *Storage) CreateSchedule(ctx context.Context, schedule *models.DoctorSchedule) error {
	const op = "storage.postgres.CreateSchedule"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO doctor_schedule
		(id, doctor_id, date, start_time, end_time, slot_duration_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		schedule.ID,
		schedule.DoctorID,
		schedule.Date,
		schedule.StartTime,
		schedule.EndTime,
		schedule.SlotDurationMinutes,
		schedule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translatePQ(err))
	}

	return nil
}

const scheduleSelect = `
	SELECT ds.id, ds.doctor_id, ds.date, ds.start_time, ds.end_time,
	       ds.slot_duration_minutes, ds.is_active, ds.created_at, ds.updated_at,
	       u.id, u.username, u.email, u.role
	FROM doctor_schedule ds
	JOIN users u ON u.id = ds.doctor_id`

func scanScheduleDetail(row interface{ Scan(...any) error }) (*models.ScheduleDetail, error) {
	var d models.ScheduleDetail
	err := row.Scan(
		&d.ID, &d.DoctorID, &d.Date, &d.StartTime, &d.EndTime,
		&d.SlotDurationMinutes, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
		&d.Doctor.ID, &d.Doctor.Username, &d.Doctor.Email, &d.Doctor.Role,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Storage) GetSchedule(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	const op = "storage.postgres.GetSchedule"

	detail, err := scanScheduleDetail(s.db.QueryRowContext(ctx, scheduleSelect+` WHERE ds.id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return detail, nil
}

func (s *Storage) ListSchedulesByDoctor(ctx context.Context, doctorID string, from, to *time.Time) ([]*models.ScheduleDetail, error) {
	const op = "storage.postgres.ListSchedulesByDoctor"

	query := scheduleSelect + ` WHERE ds.doctor_id=$1`
	args := []any{doctorID}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND ds.date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND ds.date <= $%d", len(args))
	}
	query += ` ORDER BY ds.date ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.ScheduleDetail
	for rows.Next() {
		detail, err := scanScheduleDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, detail)
	}

	return result, rows.Err()
}

func (s *Storage) ListSchedulesByDoctorDate(ctx context.Context, doctorID string, date time.Time) ([]*models.DoctorSchedule, error) {
	const op = "storage.postgres.ListSchedulesByDoctorDate"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doctor_id, date, start_time, end_time, slot_duration_minutes, is_active, created_at, updated_at
		FROM doctor_schedule
		WHERE doctor_id=$1 AND date=$2`,
		doctorID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.DoctorSchedule
	for rows.Next() {
		var sched models.DoctorSchedule
		err := rows.Scan(&sched.ID, &sched.DoctorID, &sched.Date, &sched.StartTime, &sched.EndTime,
			&sched.SlotDurationMinutes, &sched.IsActive, &sched.CreatedAt, &sched.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &sched)
	}

	return result, rows.Err()
}

func (s *Storage) ListActiveSchedulesByDateRange(ctx context.Context, from, to time.Time) ([]*models.ScheduleDetail, error) {
	const op = "storage.postgres.ListActiveSchedulesByDateRange"

	rows, err := s.db.QueryContext(ctx,
		scheduleSelect+` WHERE ds.is_active AND ds.date BETWEEN $1 AND $2
		ORDER BY ds.date ASC, u.username ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.ScheduleDetail
	for rows.Next() {
		detail, err := scanScheduleDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, detail)
	}

	return result, rows.Err()
}

func (s *Storage) UpdateSchedule(ctx context.Context, schedule *models.DoctorSchedule) error {
	const op = "storage.postgres.UpdateSchedule"

	res, err := s.db.ExecContext(ctx,
		`UPDATE doctor_schedule
		SET date=$1, start_time=$2, end_time=$3, slot_duration_minutes=$4, is_active=$5, updated_at=now()
		WHERE id=$6`,
		schedule.Date,
		schedule.StartTime,
		schedule.EndTime,
		schedule.SlotDurationMinutes,
		schedule.IsActive,
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translatePQ(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) DeleteSchedule(ctx context.Context, id string) error {
	const op = "storage.postgres.DeleteSchedule"

	res, err := s.db.ExecContext(ctx, `DELETE FROM doctor_schedule WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// DeactivateExpiredSchedules flips every active schedule whose date has
// passed, or whose end time has passed today. today is "2006-01-02", now is
// "15:04"; fixed-width HH:MM strings compare correctly as text.
func (s *Storage) DeactivateExpiredSchedules(ctx context.Context, today, now string) (int64, error) {
	const op = "storage.postgres.DeactivateExpiredSchedules"

	res, err := s.db.ExecContext(ctx,
		`UPDATE doctor_schedule
		SET is_active=false, updated_at=now()
		WHERE is_active AND (date < $1::date OR (date = $1::date AND end_time < $2))`,
		today, now,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// #### time slots ####

func (s *Storage) CountSlotsBySchedule(ctx context.Context, scheduleID string) (int, error) {
	const op = "storage.postgres.CountSlotsBySchedule"

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM time_slot WHERE doctor_schedule_id=$1`, scheduleID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

func (s *Storage) CreateSlot(ctx context.Context, tx *sql.Tx, slot *models.TimeSlot) error {
	const op = "storage.postgres.CreateSlot"

	_, err := tx.ExecContext(ctx,
		`INSERT INTO time_slot
		(id, doctor_schedule_id, doctor_id, date, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		slot.ID,
		slot.DoctorScheduleID,
		slot.DoctorID,
		slot.Date,
		slot.StartTime,
		slot.EndTime,
		string(slot.Status),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translatePQ(err))
	}

	return nil
}

const slotSelect = `
	SELECT id, doctor_schedule_id, doctor_id, date, start_time, end_time, status, created_at, updated_at
	FROM time_slot`

func scanSlot(row interface{ Scan(...any) error }) (*models.TimeSlot, error) {
	var slot models.TimeSlot
	err := row.Scan(&slot.ID, &slot.DoctorScheduleID, &slot.DoctorID, &slot.Date,
		&slot.StartTime, &slot.EndTime, &slot.Status, &slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *Storage) GetSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	const op = "storage.postgres.GetSlot"

	slot, err := scanSlot(s.db.QueryRowContext(ctx, slotSelect+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return slot, nil
}

// GetSlotForBooking loads the slot with its schedule and doctor, row-locked
// for the duration of the booking transaction.
func (s *Storage) GetSlotForBooking(ctx context.Context, tx *sql.Tx, slotID string) (*models.SlotForBooking, error) {
	const op = "storage.postgres.GetSlotForBooking"

	var b models.SlotForBooking
	err := tx.QueryRowContext(ctx,
		`SELECT ts.id, ts.doctor_schedule_id, ts.doctor_id, ts.date, ts.start_time, ts.end_time, ts.status,
		        ds.id, ds.date, ds.start_time, ds.end_time, ds.slot_duration_minutes, ds.is_active,
		        u.id, u.username, u.email, u.role
		FROM time_slot ts
		JOIN doctor_schedule ds ON ds.id = ts.doctor_schedule_id
		JOIN users u ON u.id = ds.doctor_id
		WHERE ts.id=$1
		FOR UPDATE OF ts`,
		slotID,
	).Scan(
		&b.TimeSlot.ID, &b.DoctorScheduleID, &b.TimeSlot.DoctorID, &b.TimeSlot.Date,
		&b.TimeSlot.StartTime, &b.TimeSlot.EndTime, &b.TimeSlot.Status,
		&b.Schedule.ID, &b.Schedule.Date, &b.Schedule.StartTime, &b.Schedule.EndTime,
		&b.Schedule.SlotDurationMinutes, &b.Schedule.IsActive,
		&b.Doctor.ID, &b.Doctor.Username, &b.Doctor.Email, &b.Doctor.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &b, nil
}

func (s *Storage) ListAvailableSlots(ctx context.Context, doctorID string, from, to *time.Time) ([]*models.TimeSlot, error) {
	const op = "storage.postgres.ListAvailableSlots"

	query := `
		SELECT ts.id, ts.doctor_schedule_id, ts.doctor_id, ts.date, ts.start_time, ts.end_time, ts.status,
		       ts.created_at, ts.updated_at
		FROM time_slot ts
		JOIN doctor_schedule ds ON ds.id = ts.doctor_schedule_id
		WHERE ts.doctor_id=$1 AND ts.status='available' AND ds.is_active`
	args := []any{doctorID}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND ts.date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND ts.date <= $%d", len(args))
	}
	query += ` ORDER BY ts.date ASC, ts.start_time ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, slot)
	}

	return result, rows.Err()
}

func (s *Storage) UpdateSlotStatus(ctx context.Context, slotID string, status models.SlotStatus) error {
	const op = "storage.postgres.UpdateSlotStatus"

	res, err := s.db.ExecContext(ctx,
		`UPDATE time_slot SET status=$1, updated_at=now() WHERE id=$2`,
		string(status), slotID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) UpdateSlotStatusTx(ctx context.Context, tx *sql.Tx, slotID string, status models.SlotStatus) error {
	const op = "storage.postgres.UpdateSlotStatusTx"

	res, err := tx.ExecContext(ctx,
		`UPDATE time_slot SET status=$1, updated_at=now() WHERE id=$2`,
		string(status), slotID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// ReserveSlot is the conditional flip that prevents double booking: only a
// slot still available can become booked; everything else is a conflict.
func (s *Storage) ReserveSlot(ctx context.Context, tx *sql.Tx, slotID string) error {
	const op = "storage.postgres.ReserveSlot"

	res, err := tx.ExecContext(ctx,
		`UPDATE time_slot SET status='booked', updated_at=now()
		WHERE id=$1 AND status='available'`,
		slotID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrSlotNotAvailable)
	}

	return nil
}

// #### appointments ####

func (s *Storage) CountAppointmentsForDoctorDay(ctx context.Context, tx *sql.Tx, doctorID string, day time.Time) (int, error) {
	const op = "storage.postgres.CountAppointmentsForDoctorDay"

	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointment
		WHERE doctor_id=$1 AND scheduled_at::date = $2::date`,
		doctorID, day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

func (s *Storage) CreateAppointment(ctx context.Context, tx *sql.Tx, appointment *models.Appointment) error {
	const op = "storage.postgres.CreateAppointment"

	_, err := tx.ExecContext(ctx,
		`INSERT INTO appointment
		(id, doctor_id, patient_id, time_slot_id, type, scheduled_at, status, appointment_no, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		appointment.ID,
		appointment.DoctorID,
		appointment.PatientID,
		appointment.TimeSlotID,
		string(appointment.Type),
		appointment.ScheduledAt,
		string(appointment.Status),
		appointment.AppointmentNo,
		appointment.Notes,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translatePQ(err))
	}

	return nil
}

const appointmentSelect = `
	SELECT a.id, a.doctor_id, a.patient_id, a.time_slot_id, a.type, a.scheduled_at, a.status,
	       a.appointment_no, a.notes, a.created_at, a.updated_at,
	       d.id, d.username, d.email, d.role,
	       p.id, p.username, p.email, p.role,
	       ts.id, ts.doctor_schedule_id, ts.doctor_id, ts.date, ts.start_time, ts.end_time, ts.status,
	       ts.created_at, ts.updated_at,
	       m.id, m.appointment_id, m.meeting_id, m.join_url, m.status, m.created_at
	FROM appointment a
	JOIN users d ON d.id = a.doctor_id
	JOIN users p ON p.id = a.patient_id
	JOIN time_slot ts ON ts.id = a.time_slot_id
	LEFT JOIN meeting m ON m.appointment_id = a.id`

func scanAppointmentDetail(row interface{ Scan(...any) error }) (*models.AppointmentDetail, error) {
	var d models.AppointmentDetail
	var mID, mAppointmentID, mMeetingID, mJoinURL, mStatus sql.NullString
	var mCreatedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.Appointment.DoctorID, &d.PatientID, &d.TimeSlotID, &d.Type, &d.ScheduledAt,
		&d.Appointment.Status, &d.AppointmentNo, &d.Notes, &d.Appointment.CreatedAt, &d.Appointment.UpdatedAt,
		&d.Doctor.ID, &d.Doctor.Username, &d.Doctor.Email, &d.Doctor.Role,
		&d.Patient.ID, &d.Patient.Username, &d.Patient.Email, &d.Patient.Role,
		&d.Slot.ID, &d.Slot.DoctorScheduleID, &d.Slot.DoctorID, &d.Slot.Date, &d.Slot.StartTime,
		&d.Slot.EndTime, &d.Slot.Status, &d.Slot.CreatedAt, &d.Slot.UpdatedAt,
		&mID, &mAppointmentID, &mMeetingID, &mJoinURL, &mStatus, &mCreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if mID.Valid {
		d.Meeting = &models.Meeting{
			ID:            mID.String,
			AppointmentID: mAppointmentID.String,
			MeetingID:     mMeetingID.String,
			JoinURL:       mJoinURL.String,
			Status:        models.MeetingStatus(mStatus.String),
			CreatedAt:     mCreatedAt.Time,
		}
	}

	return &d, nil
}

func (s *Storage) GetAppointment(ctx context.Context, id string) (*models.AppointmentDetail, error) {
	const op = "storage.postgres.GetAppointment"

	detail, err := scanAppointmentDetail(s.db.QueryRowContext(ctx, appointmentSelect+` WHERE a.id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return detail, nil
}

func (s *Storage) ListAppointments(ctx context.Context) ([]*models.AppointmentDetail, error) {
	const op = "storage.postgres.ListAppointments"

	rows, err := s.db.QueryContext(ctx, appointmentSelect+` ORDER BY a.scheduled_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.AppointmentDetail
	for rows.Next() {
		detail, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, detail)
	}

	return result, rows.Err()
}

func (s *Storage) ListAppointmentsByUser(ctx context.Context, userID string) ([]*models.AppointmentDetail, error) {
	const op = "storage.postgres.ListAppointmentsByUser"

	rows, err := s.db.QueryContext(ctx,
		appointmentSelect+` WHERE a.doctor_id=$1 OR a.patient_id=$1 ORDER BY a.scheduled_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.AppointmentDetail
	for rows.Next() {
		detail, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, detail)
	}

	return result, rows.Err()
}

func (s *Storage) UpdateAppointmentStatusTx(ctx context.Context, tx *sql.Tx, id string, status models.AppointmentStatus, notes string) error {
	const op = "storage.postgres.UpdateAppointmentStatusTx"

	res, err := tx.ExecContext(ctx,
		`UPDATE appointment SET status=$1, notes=$2, updated_at=now() WHERE id=$3`,
		string(status), notes, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### meetings ####

func (s *Storage) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	const op = "storage.postgres.CreateMeeting"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meeting (id, appointment_id, meeting_id, join_url, status)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.AppointmentID, m.MeetingID, m.JoinURL, string(m.Status),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translatePQ(err))
	}

	return nil
}

func (s *Storage) GetMeetingByAppointment(ctx context.Context, appointmentID string) (*models.Meeting, error) {
	const op = "storage.postgres.GetMeetingByAppointment"

	var m models.Meeting
	err := s.db.QueryRowContext(ctx,
		`SELECT id, appointment_id, meeting_id, join_url, status, created_at
		FROM meeting WHERE appointment_id=$1`,
		appointmentID,
	).Scan(&m.ID, &m.AppointmentID, &m.MeetingID, &m.JoinURL, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &m, nil
}
