package models

import "time"

type UserRole string

const (
	RoleDoctor  UserRole = "doctor"
	RolePatient UserRole = "patient"
	RoleAdmin   UserRole = "admin"
)

// User rows are owned by the identity service; this service only reads them.
type User struct {
	ID       string   `db:"id"`
	Username string   `db:"username"`
	Email    string   `db:"email"`
	Role     UserRole `db:"role"`
}

// DoctorSchedule is one doctor's availability window for one calendar date.
// StartTime/EndTime are wall-clock "HH:MM" strings in the facility timezone.
type DoctorSchedule struct {
	ID                  string    `db:"id"`
	DoctorID            string    `db:"doctor_id"`
	Date                time.Time `db:"date"`
	StartTime           string    `db:"start_time"`
	EndTime             string    `db:"end_time"`
	SlotDurationMinutes int       `db:"slot_duration_minutes"`
	IsActive            bool      `db:"is_active"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotCompleted SlotStatus = "completed"
	SlotCancelled SlotStatus = "cancelled"
	SlotNoShow    SlotStatus = "no_show"
)

// TimeSlot is one bookable unit carved out of a DoctorSchedule.
// Slots for one schedule tile [StartTime, EndTime) in fixed steps.
type TimeSlot struct {
	ID               string     `db:"id"`
	DoctorScheduleID string     `db:"doctor_schedule_id"`
	DoctorID         string     `db:"doctor_id"`
	Date             time.Time  `db:"date"`
	StartTime        string     `db:"start_time"`
	EndTime          string     `db:"end_time"`
	Status           SlotStatus `db:"status"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

type AppointmentType string

const (
	AppointmentPhysical AppointmentType = "physical"
	AppointmentOnline   AppointmentType = "online"
)

type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentNoShow     AppointmentStatus = "no_show"
)

// Appointment reserves exactly one TimeSlot for a patient.
// AppointmentNo is a per-doctor per-day sequence starting at 1; the
// (doctor_id, scheduled_day, appointment_no) unique index keeps it honest
// under concurrent bookings.
type Appointment struct {
	ID            string            `db:"id"`
	DoctorID      string            `db:"doctor_id"`
	PatientID     string            `db:"patient_id"`
	TimeSlotID    string            `db:"time_slot_id"`
	Type          AppointmentType   `db:"type"`
	ScheduledAt   time.Time         `db:"scheduled_at"`
	Status        AppointmentStatus `db:"status"`
	AppointmentNo int               `db:"appointment_no"`
	Notes         string            `db:"notes"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`
}

// Joined read shapes returned by the store for response building.

type ScheduleDetail struct {
	DoctorSchedule
	Doctor User
}

type SlotForBooking struct {
	TimeSlot
	Schedule DoctorSchedule
	Doctor   User
}

type AppointmentDetail struct {
	Appointment
	Doctor  User
	Patient User
	Slot    TimeSlot
	Meeting *Meeting
}

type MeetingStatus string

const (
	MeetingActive MeetingStatus = "active"
	MeetingEnded  MeetingStatus = "ended"
)

// Meeting holds the join link provisioned by the external video provider for
// an online appointment.
type Meeting struct {
	ID            string        `db:"id"`
	AppointmentID string        `db:"appointment_id"`
	MeetingID     string        `db:"meeting_id"`
	JoinURL       string        `db:"join_url"`
	Status        MeetingStatus `db:"status"`
	CreatedAt     time.Time     `db:"created_at"`
}
