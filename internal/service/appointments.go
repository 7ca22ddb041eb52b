package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clinic-service/api"
	"clinic-service/internal/lock"
	"clinic-service/internal/meeting"
	"clinic-service/internal/models"
	"clinic-service/pkg/response"
	"clinic-service/pkg/sl"
)

const (
	bookingLockTTL  = 10 * time.Second
	bookingAttempts = 3

	meetingDurationMinutes = 60
)

// appointmentTransitions is the allowed status graph. Terminal statuses have
// no outgoing edges.
var appointmentTransitions = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.AppointmentScheduled:  {models.AppointmentInProgress, models.AppointmentCancelled, models.AppointmentNoShow},
	models.AppointmentInProgress: {models.AppointmentCompleted, models.AppointmentCancelled, models.AppointmentNoShow},
}

func transitionAllowed(from, to models.AppointmentStatus) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateAppointment books a slot for a patient. The Redis lock serializes the
// common path per slot; the conditional status flip inside the transaction is
// what guarantees at most one booking per slot. The per-doctor-per-day
// appointment number is recomputed and retried when the unique index reports
// a concurrent booking won the race.
func (s *Service) CreateAppointment(ctx context.Context, req *api.AppointmentRequest) (*api.AppointmentResponse, error) {
	const op = "service.CreateAppointment"

	apptType := models.AppointmentType(req.Type)
	if apptType != models.AppointmentPhysical && apptType != models.AppointmentOnline {
		return nil, fmt.Errorf("%s: %w", op, response.Validation(fmt.Sprintf("unknown appointment type %q", req.Type)))
	}

	lockKey := lock.SlotKey(req.TimeSlotID)

	locked, err := s.locker.Lock(ctx, lockKey, bookingLockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: lock error: %w", op, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		_ = s.locker.Unlock(ctx, lockKey)
	}()

	patient, err := s.store.GetUser(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: patient: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var booked *bookedAppointment
	for attempt := 0; attempt < bookingAttempts; attempt++ {
		booked, err = s.bookOnce(ctx, req, apptType)
		if err == nil {
			break
		}
		// Another booking for the same doctor/day took our appointment
		// number between the count and the insert; recompute and retry.
		if errors.Is(err, response.ErrConflict) {
			continue
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if apptType == models.AppointmentOnline {
		s.provisionMeeting(ctx, booked, patient)
	}

	return s.GetAppointment(ctx, booked.appointment.ID)
}

type bookedAppointment struct {
	appointment *models.Appointment
	doctor      models.User
}

func (s *Service) bookOnce(ctx context.Context, req *api.AppointmentRequest, apptType models.AppointmentType) (*bookedAppointment, error) {
	const op = "service.bookOnce"

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	slot, err := s.store.GetSlotForBooking(ctx, tx, req.TimeSlotID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: slot: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if slot.Status != models.SlotAvailable {
		return nil, fmt.Errorf("%s: %w", op, response.ErrSlotNotAvailable)
	}

	scheduledAt := combineDateTime(slot.Date, slot.StartTime)

	count, err := s.store.CountAppointmentsForDoctorDay(ctx, tx, slot.Doctor.ID, scheduledAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	appointment := &models.Appointment{
		ID:            uuid.NewString(),
		DoctorID:      slot.Doctor.ID,
		PatientID:     req.PatientID,
		TimeSlotID:    slot.TimeSlot.ID,
		Type:          apptType,
		ScheduledAt:   scheduledAt,
		Status:        models.AppointmentScheduled,
		AppointmentNo: count + 1,
		Notes:         req.Notes,
	}

	if err := s.store.CreateAppointment(ctx, tx, appointment); err != nil {
		return nil, fmt.Errorf("%s: create appointment: %w", op, err)
	}

	if err := s.store.ReserveSlot(ctx, tx, slot.TimeSlot.ID); err != nil {
		return nil, fmt.Errorf("%s: reserve slot: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return &bookedAppointment{appointment: appointment, doctor: slot.Doctor}, nil
}

// provisionMeeting asks the video provider for a join link. Any failure is
// logged and swallowed; the appointment must not depend on the provider being
// reachable. The meeting can be retried later through the meetings endpoint.
func (s *Service) provisionMeeting(ctx context.Context, booked *bookedAppointment, patient *models.User) {
	appointment := booked.appointment

	resp, err := s.meeting.CreateMeeting(ctx, &meeting.CreateRequest{
		AppointmentID: appointment.ID,
		HostEmail:     booked.doctor.Email,
		Topic:         fmt.Sprintf("Medical Consultation - Dr. %s & %s", booked.doctor.Username, patient.Username),
		StartTime:     appointment.ScheduledAt.Format(time.RFC3339),
		Duration:      meetingDurationMinutes,
		Agenda: fmt.Sprintf("Medical consultation appointment between Dr. %s and patient %s",
			booked.doctor.Username, patient.Username),
	})
	if err != nil {
		s.log.Warn("Meeting provisioning failed, appointment stands without a meeting",
			slog.String("appointment_id", appointment.ID), sl.Err(err))
		return
	}

	m := &models.Meeting{
		ID:            uuid.NewString(),
		AppointmentID: appointment.ID,
		MeetingID:     resp.MeetingID,
		JoinURL:       resp.JoinURL,
		Status:        models.MeetingActive,
	}
	if err := s.store.CreateMeeting(ctx, m); err != nil {
		s.log.Warn("Failed to persist meeting",
			slog.String("appointment_id", appointment.ID), sl.Err(err))
	}
}

func (s *Service) GetAppointment(ctx context.Context, id string) (*api.AppointmentResponse, error) {
	const op = "service.GetAppointment"

	detail, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return appointmentToResponse(detail), nil
}

// ListAppointments returns every appointment, newest first.
func (s *Service) ListAppointments(ctx context.Context) ([]*api.AppointmentResponse, error) {
	const op = "service.ListAppointments"

	appointments, err := s.store.ListAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.AppointmentResponse, 0, len(appointments))
	for _, detail := range appointments {
		result = append(result, appointmentToResponse(detail))
	}

	return result, nil
}

// ListAppointmentsByUser matches the user on either side of the appointment.
func (s *Service) ListAppointmentsByUser(ctx context.Context, userID string) ([]*api.AppointmentResponse, error) {
	const op = "service.ListAppointmentsByUser"

	appointments, err := s.store.ListAppointmentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.AppointmentResponse, 0, len(appointments))
	for _, detail := range appointments {
		result = append(result, appointmentToResponse(detail))
	}

	return result, nil
}

// UpdateAppointmentStatus applies the transition table and mirrors terminal
// statuses onto the bound slot. in_progress leaves the slot booked.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id string, req *api.AppointmentStatusRequest) (*api.AppointmentResponse, error) {
	const op = "service.UpdateAppointmentStatus"

	newStatus := models.AppointmentStatus(req.Status)
	switch newStatus {
	case models.AppointmentScheduled, models.AppointmentInProgress, models.AppointmentCompleted,
		models.AppointmentCancelled, models.AppointmentNoShow:
	default:
		return nil, fmt.Errorf("%s: %w", op, response.Validation(fmt.Sprintf("unknown appointment status %q", req.Status)))
	}

	detail, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !transitionAllowed(detail.Status, newStatus) {
		return nil, fmt.Errorf("%s: cannot transition %s to %s: %w",
			op, detail.Status, newStatus, response.ErrInvalidTransition)
	}

	notes := detail.Notes
	if req.Notes != "" {
		notes = req.Notes
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := s.store.UpdateAppointmentStatusTx(ctx, tx, id, newStatus, notes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if slotStatus, ok := slotMirror(newStatus); ok {
		if err := s.store.UpdateSlotStatusTx(ctx, tx, detail.TimeSlotID, slotStatus); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return s.GetAppointment(ctx, id)
}

// slotMirror maps terminal appointment statuses onto the slot.
func slotMirror(status models.AppointmentStatus) (models.SlotStatus, bool) {
	switch status {
	case models.AppointmentCompleted:
		return models.SlotCompleted, true
	case models.AppointmentCancelled:
		return models.SlotCancelled, true
	case models.AppointmentNoShow:
		return models.SlotNoShow, true
	default:
		return "", false
	}
}

func appointmentToResponse(detail *models.AppointmentDetail) *api.AppointmentResponse {
	resp := &api.AppointmentResponse{
		ID:            detail.ID,
		AppointmentNo: detail.AppointmentNo,
		Type:          string(detail.Type),
		Status:        string(detail.Appointment.Status),
		ScheduledAt:   detail.ScheduledAt.Format(time.RFC3339),
		Doctor: api.UserRef{
			ID:       detail.Doctor.ID,
			Username: detail.Doctor.Username,
		},
		Patient: api.UserRef{
			ID:       detail.Patient.ID,
			Username: detail.Patient.Username,
		},
		TimeSlot: *slotToResponse(&detail.Slot),
		Notes:    detail.Notes,
	}
	if detail.Meeting != nil {
		resp.MeetingLink = detail.Meeting.JoinURL
	}

	return resp
}
