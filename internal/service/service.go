package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"clinic-service/internal/lock"
	"clinic-service/internal/meeting"
	"clinic-service/internal/models"
)

type Service struct {
	log     *slog.Logger
	store   Store
	locker  lock.Locker
	meeting meeting.Provisioner
}

func NewService(log *slog.Logger, store Store, locker lock.Locker, provisioner meeting.Provisioner) *Service {
	return &Service{
		log:     log,
		store:   store,
		locker:  locker,
		meeting: provisioner,
	}
}

type Store interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Users (read-only collaborator data)
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Doctor schedules
	CreateSchedule(ctx context.Context, schedule *models.DoctorSchedule) error
	GetSchedule(ctx context.Context, id string) (*models.ScheduleDetail, error)
	ListSchedulesByDoctor(ctx context.Context, doctorID string, from, to *time.Time) ([]*models.ScheduleDetail, error)
	ListSchedulesByDoctorDate(ctx context.Context, doctorID string, date time.Time) ([]*models.DoctorSchedule, error)
	ListActiveSchedulesByDateRange(ctx context.Context, from, to time.Time) ([]*models.ScheduleDetail, error)
	UpdateSchedule(ctx context.Context, schedule *models.DoctorSchedule) error
	DeleteSchedule(ctx context.Context, id string) error
	DeactivateExpiredSchedules(ctx context.Context, today, now string) (int64, error)

	// Time slots
	CountSlotsBySchedule(ctx context.Context, scheduleID string) (int, error)
	CreateSlot(ctx context.Context, tx *sql.Tx, slot *models.TimeSlot) error
	GetSlot(ctx context.Context, id string) (*models.TimeSlot, error)
	GetSlotForBooking(ctx context.Context, tx *sql.Tx, slotID string) (*models.SlotForBooking, error)
	ListAvailableSlots(ctx context.Context, doctorID string, from, to *time.Time) ([]*models.TimeSlot, error)
	UpdateSlotStatus(ctx context.Context, slotID string, status models.SlotStatus) error
	UpdateSlotStatusTx(ctx context.Context, tx *sql.Tx, slotID string, status models.SlotStatus) error
	ReserveSlot(ctx context.Context, tx *sql.Tx, slotID string) error

	// Appointments
	CountAppointmentsForDoctorDay(ctx context.Context, tx *sql.Tx, doctorID string, day time.Time) (int, error)
	CreateAppointment(ctx context.Context, tx *sql.Tx, appointment *models.Appointment) error
	GetAppointment(ctx context.Context, id string) (*models.AppointmentDetail, error)
	ListAppointments(ctx context.Context) ([]*models.AppointmentDetail, error)
	ListAppointmentsByUser(ctx context.Context, userID string) ([]*models.AppointmentDetail, error)
	UpdateAppointmentStatusTx(ctx context.Context, tx *sql.Tx, id string, status models.AppointmentStatus, notes string) error

	// Meetings
	CreateMeeting(ctx context.Context, m *models.Meeting) error
	GetMeetingByAppointment(ctx context.Context, appointmentID string) (*models.Meeting, error)
}

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"

	minSlotDuration = 1
	maxSlotDuration = 480
)

var clockRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// clockToMinutes converts an "HH:MM" wall-clock string to minutes since
// midnight. The string must already be validated against clockRe.
func clockToMinutes(clock string) int {
	t, _ := time.Parse(clockLayout, normalizeClock(clock))
	return t.Hour()*60 + t.Minute()
}

func minutesToClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// normalizeClock pads "9:00" to "09:00" so stored values compare
// lexicographically.
func normalizeClock(clock string) string {
	if len(clock) == 4 {
		return "0" + clock
	}
	return clock
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// combineDateTime builds the absolute timestamp for a slot from its calendar
// date and wall-clock start. No timezone conversion; the facility timezone is
// implicit.
func combineDateTime(date time.Time, clock string) time.Time {
	minutes := clockToMinutes(clock)
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, date.Location())
}
