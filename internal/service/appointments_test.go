package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clinic-service/api"
	"clinic-service/internal/lock"
	"clinic-service/internal/models"
	"clinic-service/pkg/response"
)

func seedBookableSlot(store *fakeStore, slotID, doctorID string) {
	store.addUser(doctorID, models.RoleDoctor)
	store.addSchedule(models.DoctorSchedule{
		ID:                  "sched-" + slotID,
		DoctorID:            doctorID,
		Date:                mustDate("2026-09-01"),
		StartTime:           "09:00",
		EndTime:             "12:00",
		SlotDurationMinutes: 30,
		IsActive:            true,
	})
	store.addSlot(models.TimeSlot{
		ID:               slotID,
		DoctorScheduleID: "sched-" + slotID,
		DoctorID:         doctorID,
		Date:             mustDate("2026-09-01"),
		StartTime:        "09:00",
		EndTime:          "09:30",
		Status:           models.SlotAvailable,
	})
}

func TestCreateAppointment(t *testing.T) {
	ctx := context.Background()

	svc, store, _, provisioner := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)

	resp, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1",
		PatientID:  "pat-1",
		Type:       "physical",
		Notes:      "first visit",
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	if resp.Status != string(models.AppointmentScheduled) {
		t.Errorf("status = %q, want scheduled", resp.Status)
	}
	if resp.AppointmentNo != 1 {
		t.Errorf("appointment no = %d, want 1", resp.AppointmentNo)
	}
	if resp.Doctor.ID != "doc-1" || resp.Patient.ID != "pat-1" {
		t.Errorf("parties = %q/%q, want doc-1/pat-1", resp.Doctor.ID, resp.Patient.ID)
	}
	if resp.ScheduledAt == "" {
		t.Error("scheduled_at is empty")
	}

	if got := store.slot("slot-1").Status; got != models.SlotBooked {
		t.Fatalf("slot status = %q, want booked", got)
	}

	// Physical appointments never touch the meeting provider.
	if provisioner.callCount() != 0 {
		t.Fatalf("provider called %d times for a physical appointment", provisioner.callCount())
	}
}

func TestCreateAppointmentNumbersPerDoctorDay(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addSlot(models.TimeSlot{
		ID:               "slot-2",
		DoctorScheduleID: "sched-slot-1",
		DoctorID:         "doc-1",
		Date:             mustDate("2026-09-01"),
		StartTime:        "09:30",
		EndTime:          "10:00",
		Status:           models.SlotAvailable,
	})
	store.addUser("pat-1", models.RolePatient)
	store.addUser("pat-2", models.RolePatient)

	first, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "physical",
	})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	second, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-2", PatientID: "pat-2", Type: "physical",
	})
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}

	if first.AppointmentNo != 1 || second.AppointmentNo != 2 {
		t.Fatalf("appointment numbers = %d, %d, want 1, 2", first.AppointmentNo, second.AppointmentNo)
	}
}

func TestCreateAppointmentSlotNotAvailable(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)
	store.addUser("pat-2", models.RolePatient)

	if _, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "physical",
	}); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-2", Type: "physical",
	})
	if !errors.Is(err, response.ErrSlotNotAvailable) {
		t.Fatalf("double booking error = %v, want ErrSlotNotAvailable", err)
	}
}

func TestCreateAppointmentLockContention(t *testing.T) {
	ctx := context.Background()

	svc, store, locker, _ := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)

	// Another instance holds the slot lock.
	if ok, _ := locker.Lock(ctx, lock.SlotKey("slot-1"), time.Minute); !ok {
		t.Fatal("seeding the lock failed")
	}

	_, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "physical",
	})
	if !errors.Is(err, response.ErrLocked) {
		t.Fatalf("error = %v, want ErrLocked", err)
	}

	// Once the lock is released the booking goes through.
	_ = locker.Unlock(ctx, lock.SlotKey("slot-1"))
	if _, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "physical",
	}); err != nil {
		t.Fatalf("booking after unlock: %v", err)
	}
}

func TestCreateAppointmentValidatesType(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)

	_, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "telepathic",
	})
	if !errors.Is(err, response.ErrValidation) {
		t.Fatalf("error = %v, want validation error", err)
	}
}

func TestCreateAppointmentRetriesNumberConflict(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)
	store.appointmentConflicts = 2

	resp, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "physical",
	})
	if err != nil {
		t.Fatalf("booking after two lost races: %v", err)
	}
	if resp.AppointmentNo != 1 {
		t.Fatalf("appointment no = %d, want 1", resp.AppointmentNo)
	}
}

func TestCreateAppointmentGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)
	store.appointmentConflicts = bookingAttempts

	_, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "physical",
	})
	if !errors.Is(err, response.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestCreateAppointmentConcurrentOneWinner(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)
	store.addUser("pat-2", models.RolePatient)

	patients := []string{"pat-1", "pat-2"}
	results := make([]error, len(patients))

	var wg sync.WaitGroup
	for i, patient := range patients {
		wg.Add(1)
		go func(i int, patient string) {
			defer wg.Done()
			_, results[i] = svc.CreateAppointment(ctx, &api.AppointmentRequest{
				TimeSlotID: "slot-1", PatientID: patient, Type: "physical",
			})
		}(i, patient)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, response.ErrLocked), errors.Is(err, response.ErrSlotNotAvailable):
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners, want exactly 1", winners)
	}
	if got := store.slot("slot-1").Status; got != models.SlotBooked {
		t.Fatalf("slot status = %q, want booked", got)
	}
}

func TestCreateOnlineAppointmentProvisionsMeeting(t *testing.T) {
	ctx := context.Background()

	svc, store, _, provisioner := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)

	resp, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "online",
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	if provisioner.callCount() != 1 {
		t.Fatalf("provider called %d times, want 1", provisioner.callCount())
	}
	if resp.MeetingLink == "" {
		t.Fatal("meeting link is empty")
	}

	req := provisioner.calls[0]
	if req.Topic != "Medical Consultation - Dr. doc-1 & pat-1" {
		t.Errorf("meeting topic = %q", req.Topic)
	}
	if req.Duration != meetingDurationMinutes {
		t.Errorf("meeting duration = %d, want %d", req.Duration, meetingDurationMinutes)
	}
}

func TestCreateOnlineAppointmentSurvivesProviderFailure(t *testing.T) {
	ctx := context.Background()

	svc, store, _, provisioner := newTestService()
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)
	provisioner.err = errors.New("provider is down")

	resp, err := svc.CreateAppointment(ctx, &api.AppointmentRequest{
		TimeSlotID: "slot-1", PatientID: "pat-1", Type: "online",
	})
	if err != nil {
		t.Fatalf("booking failed on provider outage: %v", err)
	}

	if resp.Status != string(models.AppointmentScheduled) {
		t.Errorf("status = %q, want scheduled", resp.Status)
	}
	if resp.MeetingLink != "" {
		t.Errorf("meeting link = %q, want empty after provider failure", resp.MeetingLink)
	}
	if got := store.slot("slot-1").Status; got != models.SlotBooked {
		t.Fatalf("slot status = %q, want booked", got)
	}
}

func TestTransitionAllowed(t *testing.T) {
	allowed := []struct{ from, to models.AppointmentStatus }{
		{models.AppointmentScheduled, models.AppointmentInProgress},
		{models.AppointmentScheduled, models.AppointmentCancelled},
		{models.AppointmentScheduled, models.AppointmentNoShow},
		{models.AppointmentInProgress, models.AppointmentCompleted},
		{models.AppointmentInProgress, models.AppointmentCancelled},
		{models.AppointmentInProgress, models.AppointmentNoShow},
	}
	for _, tc := range allowed {
		if !transitionAllowed(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to models.AppointmentStatus }{
		{models.AppointmentScheduled, models.AppointmentCompleted},
		{models.AppointmentScheduled, models.AppointmentScheduled},
		{models.AppointmentCompleted, models.AppointmentInProgress},
		{models.AppointmentCancelled, models.AppointmentScheduled},
		{models.AppointmentNoShow, models.AppointmentCompleted},
	}
	for _, tc := range forbidden {
		if transitionAllowed(tc.from, tc.to) {
			t.Errorf("%s -> %s should be refused", tc.from, tc.to)
		}
	}
}

func seedAppointment(store *fakeStore, status models.AppointmentStatus) {
	seedBookableSlot(store, "slot-1", "doc-1")
	store.addUser("pat-1", models.RolePatient)
	store.addAppointment(models.Appointment{
		ID:            "appt-1",
		DoctorID:      "doc-1",
		PatientID:     "pat-1",
		TimeSlotID:    "slot-1",
		Type:          models.AppointmentPhysical,
		ScheduledAt:   time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		Status:        status,
		AppointmentNo: 1,
	})
}

func TestUpdateAppointmentStatusMirrorsSlot(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		from     models.AppointmentStatus
		to       string
		wantSlot models.SlotStatus
	}{
		{"cancel marks slot", models.AppointmentScheduled, "cancelled", models.SlotCancelled},
		{"no show marks slot", models.AppointmentScheduled, "no_show", models.SlotNoShow},
		{"complete marks slot", models.AppointmentInProgress, "completed", models.SlotCompleted},
		{"in progress leaves slot booked", models.AppointmentScheduled, "in_progress", models.SlotBooked},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, _, _ := newTestService()
			seedAppointment(store, tc.from)
			if err := store.UpdateSlotStatus(ctx, "slot-1", models.SlotBooked); err != nil {
				t.Fatalf("seeding slot status: %v", err)
			}

			resp, err := svc.UpdateAppointmentStatus(ctx, "appt-1", &api.AppointmentStatusRequest{Status: tc.to})
			if err != nil {
				t.Fatalf("UpdateAppointmentStatus: %v", err)
			}
			if resp.Status != tc.to {
				t.Errorf("appointment status = %q, want %q", resp.Status, tc.to)
			}
			if got := store.slot("slot-1").Status; got != tc.wantSlot {
				t.Errorf("slot status = %q, want %q", got, tc.wantSlot)
			}
		})
	}
}

func TestUpdateAppointmentStatusRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedAppointment(store, models.AppointmentCompleted)

	_, err := svc.UpdateAppointmentStatus(ctx, "appt-1", &api.AppointmentStatusRequest{Status: "in_progress"})
	if !errors.Is(err, response.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}

	_, err = svc.UpdateAppointmentStatus(ctx, "appt-1", &api.AppointmentStatusRequest{Status: "vanished"})
	if !errors.Is(err, response.ErrValidation) {
		t.Fatalf("unknown status error = %v, want validation error", err)
	}

	if got := store.appointment("appt-1").Status; got != models.AppointmentCompleted {
		t.Fatalf("appointment status changed to %q on refused transition", got)
	}
}

func TestUpdateAppointmentStatusNotes(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedAppointment(store, models.AppointmentScheduled)

	resp, err := svc.UpdateAppointmentStatus(ctx, "appt-1", &api.AppointmentStatusRequest{
		Status: "cancelled",
		Notes:  "patient called to cancel",
	})
	if err != nil {
		t.Fatalf("UpdateAppointmentStatus: %v", err)
	}
	if resp.Notes != "patient called to cancel" {
		t.Errorf("notes = %q", resp.Notes)
	}
}

func TestListAppointmentsByUser(t *testing.T) {
	ctx := context.Background()

	svc, store, _, _ := newTestService()
	seedAppointment(store, models.AppointmentScheduled)
	store.addUser("pat-2", models.RolePatient)
	store.addAppointment(models.Appointment{
		ID:            "appt-2",
		DoctorID:      "doc-1",
		PatientID:     "pat-2",
		TimeSlotID:    "slot-1",
		Type:          models.AppointmentPhysical,
		ScheduledAt:   time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC),
		Status:        models.AppointmentScheduled,
		AppointmentNo: 2,
	})

	byDoctor, err := svc.ListAppointmentsByUser(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListAppointmentsByUser(doctor): %v", err)
	}
	if len(byDoctor) != 2 {
		t.Fatalf("doctor sees %d appointments, want 2", len(byDoctor))
	}

	byPatient, err := svc.ListAppointmentsByUser(ctx, "pat-2")
	if err != nil {
		t.Fatalf("ListAppointmentsByUser(patient): %v", err)
	}
	if len(byPatient) != 1 || byPatient[0].ID != "appt-2" {
		t.Fatalf("patient sees %d appointments, want exactly appt-2", len(byPatient))
	}
}
