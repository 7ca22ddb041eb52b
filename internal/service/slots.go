package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clinic-service/api"
	"clinic-service/internal/models"
	"clinic-service/pkg/response"
)

// generateSlotsForDate tiles [schedule.StartTime, schedule.EndTime) in
// SlotDurationMinutes steps. A final partial slot that would run past the end
// time is dropped, not clipped. All emitted slots are available.
func generateSlotsForDate(date time.Time, schedule *models.DoctorSchedule) []models.TimeSlot {
	start := clockToMinutes(schedule.StartTime)
	end := clockToMinutes(schedule.EndTime)
	step := schedule.SlotDurationMinutes

	var slots []models.TimeSlot
	for cur := start; cur+step <= end; cur += step {
		slots = append(slots, models.TimeSlot{
			ID:               uuid.NewString(),
			DoctorScheduleID: schedule.ID,
			DoctorID:         schedule.DoctorID,
			Date:             date,
			StartTime:        minutesToClock(cur),
			EndTime:          minutesToClock(cur + step),
			Status:           models.SlotAvailable,
		})
	}

	return slots
}

// GenerateSlots expands a schedule into bookable slots. When the request
// carries a date range, the schedule's own date must fall inside it; callers
// that think in single schedules simply omit the range.
func (s *Service) GenerateSlots(ctx context.Context, req *api.SlotGenerateRequest) ([]*api.TimeSlotResponse, error) {
	const op = "service.GenerateSlots"

	detail, err := s.store.GetSchedule(ctx, req.ScheduleID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	schedule := detail.DoctorSchedule

	if req.StartDate != nil && req.EndDate != nil {
		from, err := parseDate(*req.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, response.Validation("invalid start_date, use YYYY-MM-DD"))
		}
		to, err := parseDate(*req.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, response.Validation("invalid end_date, use YYYY-MM-DD"))
		}
		if schedule.Date.Before(from) || schedule.Date.After(to) {
			return nil, fmt.Errorf("%s: %w", op, response.Validation(fmt.Sprintf(
				"schedule date %s is outside the requested date range", schedule.Date.Format(dateLayout))))
		}
	}

	slots, err := s.generateForSchedule(ctx, &schedule)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.TimeSlotResponse, 0, len(slots))
	for i := range slots {
		result = append(result, slotToResponse(&slots[i]))
	}

	return result, nil
}

// generateForSchedule persists the full slot set for one schedule in a single
// transaction. Regeneration is refused while any slots exist for the
// schedule; booked slots must never be silently replaced.
func (s *Service) generateForSchedule(ctx context.Context, schedule *models.DoctorSchedule) ([]models.TimeSlot, error) {
	const op = "service.generateForSchedule"

	if !schedule.IsActive {
		return nil, fmt.Errorf("%s: %w", op, response.ErrScheduleInactive)
	}

	count, err := s.store.CountSlotsBySchedule(ctx, schedule.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%s: %w", op, response.ErrSlotsExist)
	}

	slots := generateSlotsForDate(schedule.Date, schedule)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := range slots {
		if err := s.store.CreateSlot(ctx, tx, &slots[i]); err != nil {
			return nil, fmt.Errorf("%s: create slot: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return slots, nil
}

func (s *Service) GetSlot(ctx context.Context, id string) (*api.TimeSlotResponse, error) {
	const op = "service.GetSlot"

	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return slotToResponse(slot), nil
}

func (s *Service) ListAvailableSlots(ctx context.Context, doctorID string, from, to *time.Time) ([]*api.TimeSlotResponse, error) {
	const op = "service.ListAvailableSlots"

	slots, err := s.store.ListAvailableSlots(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.TimeSlotResponse, 0, len(slots))
	for _, slot := range slots {
		result = append(result, slotToResponse(slot))
	}

	return result, nil
}

// UpdateSlotStatus is the manual override for staff; bookings flip slot
// status through the appointment flow instead.
func (s *Service) UpdateSlotStatus(ctx context.Context, id string, status string) (*api.TimeSlotResponse, error) {
	const op = "service.UpdateSlotStatus"

	slotStatus := models.SlotStatus(status)
	switch slotStatus {
	case models.SlotAvailable, models.SlotBooked, models.SlotCompleted, models.SlotCancelled, models.SlotNoShow:
	default:
		return nil, fmt.Errorf("%s: %w", op, response.Validation(fmt.Sprintf("unknown slot status %q", status)))
	}

	if err := s.store.UpdateSlotStatus(ctx, id, slotStatus); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetSlot(ctx, id)
}

func slotToResponse(slot *models.TimeSlot) *api.TimeSlotResponse {
	return &api.TimeSlotResponse{
		ID:         slot.ID,
		ScheduleID: slot.DoctorScheduleID,
		DoctorID:   slot.DoctorID,
		Date:       slot.Date.Format(dateLayout),
		StartTime:  slot.StartTime,
		EndTime:    slot.EndTime,
		Status:     string(slot.Status),
	}
}
