package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clinic-service/api"
	"clinic-service/internal/models"
	"clinic-service/pkg/response"
	"clinic-service/pkg/sl"
)

// OverlapError reports which existing schedule a new or updated schedule
// collides with. errors.Is(err, response.ErrScheduleOverlap) matches it.
type OverlapError struct {
	Start string
	End   string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("schedule overlaps existing schedule %s-%s", e.Start, e.End)
}

func (e *OverlapError) Is(target error) bool {
	return target == response.ErrScheduleOverlap
}

func (s *Service) CreateSchedule(ctx context.Context, req *api.DoctorScheduleRequest) (*api.DoctorScheduleResponse, error) {
	const op = "service.CreateSchedule"

	doctor, err := s.store.GetUser(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: doctor: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if doctor.Role != models.RoleDoctor {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotADoctor)
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, response.Validation("invalid date format, use YYYY-MM-DD"))
	}

	if err := validateScheduleTimes(req.StartTime, req.EndTime, req.SlotDurationMinutes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.checkOverlap(ctx, req.DoctorID, date, req.StartTime, req.EndTime, ""); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	schedule := &models.DoctorSchedule{
		ID:                  uuid.NewString(),
		DoctorID:            req.DoctorID,
		Date:                date,
		StartTime:           normalizeClock(req.StartTime),
		EndTime:             normalizeClock(req.EndTime),
		SlotDurationMinutes: req.SlotDurationMinutes,
		IsActive:            isActive,
	}

	if err := s.store.CreateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Slot generation failure does not roll the schedule back; the slots can
	// be generated later via the time-slots endpoint.
	if isActive {
		if _, err := s.generateForSchedule(ctx, schedule); err != nil {
			s.log.Warn("Slot generation after schedule create failed",
				slog.String("schedule_id", schedule.ID), sl.Err(err))
		}
	}

	return s.GetSchedule(ctx, schedule.ID)
}

func (s *Service) GetSchedule(ctx context.Context, id string) (*api.DoctorScheduleResponse, error) {
	const op = "service.GetSchedule"

	detail, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return scheduleToResponse(detail), nil
}

func (s *Service) ListSchedulesByDoctor(ctx context.Context, doctorID string, from, to *time.Time) ([]*api.DoctorScheduleResponse, error) {
	const op = "service.ListSchedulesByDoctor"

	schedules, err := s.store.ListSchedulesByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.DoctorScheduleResponse, 0, len(schedules))
	for _, schedule := range schedules {
		result = append(result, scheduleToResponse(schedule))
	}

	return result, nil
}

// ListSchedulesByDateRange returns active schedules only.
func (s *Service) ListSchedulesByDateRange(ctx context.Context, from, to time.Time) ([]*api.DoctorScheduleResponse, error) {
	const op = "service.ListSchedulesByDateRange"

	schedules, err := s.store.ListActiveSchedulesByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.DoctorScheduleResponse, 0, len(schedules))
	for _, schedule := range schedules {
		result = append(result, scheduleToResponse(schedule))
	}

	return result, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, id string, req *api.DoctorScheduleUpdateRequest) (*api.DoctorScheduleResponse, error) {
	const op = "service.UpdateSchedule"

	detail, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	schedule := detail.DoctorSchedule
	timingChanged := false

	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, response.Validation("invalid date format, use YYYY-MM-DD"))
		}
		if !date.Equal(schedule.Date) {
			schedule.Date = date
			timingChanged = true
		}
	}
	if req.StartTime != nil {
		clock := normalizeClock(*req.StartTime)
		if clock != schedule.StartTime {
			schedule.StartTime = clock
			timingChanged = true
		}
	}
	if req.EndTime != nil {
		clock := normalizeClock(*req.EndTime)
		if clock != schedule.EndTime {
			schedule.EndTime = clock
			timingChanged = true
		}
	}
	if req.SlotDurationMinutes != nil && *req.SlotDurationMinutes != schedule.SlotDurationMinutes {
		schedule.SlotDurationMinutes = *req.SlotDurationMinutes
		timingChanged = true
	}
	if req.IsActive != nil {
		schedule.IsActive = *req.IsActive
	}

	if err := validateScheduleTimes(schedule.StartTime, schedule.EndTime, schedule.SlotDurationMinutes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.checkOverlap(ctx, schedule.DoctorID, schedule.Date, schedule.StartTime, schedule.EndTime, schedule.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.UpdateSchedule(ctx, &schedule); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Regeneration is a no-op when slots already exist; booked slots are
	// never silently invalidated.
	if schedule.IsActive && timingChanged {
		if _, err := s.generateForSchedule(ctx, &schedule); err != nil && !errors.Is(err, response.ErrSlotsExist) {
			s.log.Warn("Slot regeneration after schedule update failed",
				slog.String("schedule_id", schedule.ID), sl.Err(err))
		}
	}

	return s.GetSchedule(ctx, id)
}

func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	const op = "service.DeleteSchedule"

	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func validateScheduleTimes(startTime, endTime string, slotDuration int) error {
	if !clockRe.MatchString(startTime) || !clockRe.MatchString(endTime) {
		return response.Validation("invalid time format, use HH:MM")
	}
	if clockToMinutes(startTime) >= clockToMinutes(endTime) {
		return response.Validation("start time must be before end time")
	}
	if slotDuration < minSlotDuration || slotDuration > maxSlotDuration {
		return response.Validation(fmt.Sprintf("slot duration must be between %d and %d minutes",
			minSlotDuration, maxSlotDuration))
	}
	return nil
}

// checkOverlap rejects a schedule whose [start,end) range intersects any
// other schedule of the same doctor on the same date. excludeID skips the
// schedule itself on update.
func (s *Service) checkOverlap(ctx context.Context, doctorID string, date time.Time, startTime, endTime, excludeID string) error {
	existing, err := s.store.ListSchedulesByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return err
	}

	newStart := clockToMinutes(startTime)
	newEnd := clockToMinutes(endTime)

	for _, other := range existing {
		if other.ID == excludeID {
			continue
		}
		if clockToMinutes(other.StartTime) < newEnd && newStart < clockToMinutes(other.EndTime) {
			return &OverlapError{Start: other.StartTime, End: other.EndTime}
		}
	}

	return nil
}

func scheduleToResponse(detail *models.ScheduleDetail) *api.DoctorScheduleResponse {
	return &api.DoctorScheduleResponse{
		ID: detail.ID,
		Doctor: api.UserRef{
			ID:       detail.Doctor.ID,
			Username: detail.Doctor.Username,
		},
		Date:                detail.Date.Format(dateLayout),
		StartTime:           detail.StartTime,
		EndTime:             detail.EndTime,
		SlotDurationMinutes: detail.SlotDurationMinutes,
		IsActive:            detail.IsActive,
	}
}
