package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clinic-service/api"
	"clinic-service/internal/meeting"
	"clinic-service/internal/models"
	"clinic-service/pkg/response"
)

func (s *Service) GetMeetingByAppointment(ctx context.Context, appointmentID string) (*api.MeetingResponse, error) {
	const op = "service.GetMeetingByAppointment"

	m, err := s.store.GetMeetingByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return meetingToResponse(m), nil
}

// RetryMeeting provisions the meeting for an online appointment whose
// automatic provisioning failed at booking time. Unlike the booking path,
// a provider failure here propagates to the caller.
func (s *Service) RetryMeeting(ctx context.Context, appointmentID string) (*api.MeetingResponse, error) {
	const op = "service.RetryMeeting"

	detail, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if detail.Type != models.AppointmentOnline {
		return nil, fmt.Errorf("%s: %w", op, response.Validation("appointment is not an online appointment"))
	}

	if detail.Meeting != nil {
		return nil, fmt.Errorf("%s: meeting already exists: %w", op, response.ErrConflict)
	}

	resp, err := s.meeting.CreateMeeting(ctx, &meeting.CreateRequest{
		AppointmentID: detail.ID,
		HostEmail:     detail.Doctor.Email,
		Topic:         fmt.Sprintf("Medical Consultation - Dr. %s & %s", detail.Doctor.Username, detail.Patient.Username),
		StartTime:     detail.ScheduledAt.Format(time.RFC3339),
		Duration:      meetingDurationMinutes,
		Agenda: fmt.Sprintf("Medical consultation appointment between Dr. %s and patient %s",
			detail.Doctor.Username, detail.Patient.Username),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := &models.Meeting{
		ID:            uuid.NewString(),
		AppointmentID: detail.ID,
		MeetingID:     resp.MeetingID,
		JoinURL:       resp.JoinURL,
		Status:        models.MeetingActive,
	}
	if err := s.store.CreateMeeting(ctx, m); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return meetingToResponse(m), nil
}

func meetingToResponse(m *models.Meeting) *api.MeetingResponse {
	return &api.MeetingResponse{
		ID:            m.ID,
		AppointmentID: m.AppointmentID,
		MeetingID:     m.MeetingID,
		JoinURL:       m.JoinURL,
		Status:        string(m.Status),
	}
}
