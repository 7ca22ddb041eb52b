package api

// Doctor schedules

type DoctorScheduleRequest struct {
	DoctorID            string `json:"doctor_id"`
	Date                string `json:"date"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
	IsActive            *bool  `json:"is_active,omitempty"`
}

type DoctorScheduleUpdateRequest struct {
	Date                *string `json:"date,omitempty"`
	StartTime           *string `json:"start_time,omitempty"`
	EndTime             *string `json:"end_time,omitempty"`
	SlotDurationMinutes *int    `json:"slot_duration_minutes,omitempty"`
	IsActive            *bool   `json:"is_active,omitempty"`
}

type DoctorScheduleResponse struct {
	ID                  string  `json:"id"`
	Doctor              UserRef `json:"doctor"`
	Date                string  `json:"date"`
	StartTime           string  `json:"start_time"`
	EndTime             string  `json:"end_time"`
	SlotDurationMinutes int     `json:"slot_duration_minutes"`
	IsActive            bool    `json:"is_active"`
}

type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Time slots

type SlotGenerateRequest struct {
	ScheduleID string  `json:"schedule_id"`
	StartDate  *string `json:"start_date,omitempty"`
	EndDate    *string `json:"end_date,omitempty"`
}

type TimeSlotResponse struct {
	ID         string `json:"id"`
	ScheduleID string `json:"schedule_id"`
	DoctorID   string `json:"doctor_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
}

type SlotStatusRequest struct {
	Status string `json:"status"`
}

// Appointments

type AppointmentRequest struct {
	TimeSlotID string `json:"time_slot_id"`
	PatientID  string `json:"patient_id"`
	Type       string `json:"type"`
	Notes      string `json:"notes,omitempty"`
}

type AppointmentStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID            string           `json:"id"`
	AppointmentNo int              `json:"appointment_no"`
	Type          string           `json:"type"`
	Status        string           `json:"status"`
	ScheduledAt   string           `json:"scheduled_at"`
	Doctor        UserRef          `json:"doctor"`
	Patient       UserRef          `json:"patient"`
	TimeSlot      TimeSlotResponse `json:"time_slot"`
	MeetingLink   string           `json:"meeting_link,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

// Meetings

type MeetingResponse struct {
	ID            string `json:"id"`
	AppointmentID string `json:"appointment_id"`
	MeetingID     string `json:"meeting_id"`
	JoinURL       string `json:"join_url"`
	Status        string `json:"status"`
}
