package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"clinic-service/internal/meeting"
	"clinic-service/internal/models"
	"clinic-service/pkg/response"
)

// The booking and generation paths commit through *sql.Tx, so the in-memory
// store hands out transactions from a driver that does nothing. The fake's own
// mutations are applied directly; commit and rollback are no-ops.

type noopDriver struct{}

func (noopDriver) Open(name string) (driver.Conn, error) { return noopConn{}, nil }

type noopConn struct{}

func (noopConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepare is not supported")
}
func (noopConn) Close() error              { return nil }
func (noopConn) Begin() (driver.Tx, error) { return noopTx{}, nil }

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

func init() {
	sql.Register("noop", noopDriver{})
}

type fakeStore struct {
	mu sync.Mutex
	db *sql.DB

	users        map[string]models.User
	schedules    map[string]models.DoctorSchedule
	slots        map[string]models.TimeSlot
	appointments map[string]models.Appointment
	meetings     map[string]models.Meeting

	// appointmentConflicts makes CreateAppointment fail with ErrConflict
	// that many times before succeeding, simulating a lost race on the
	// appointment_no unique index.
	appointmentConflicts int

	createMeetingErr error
}

func newFakeStore() *fakeStore {
	db, err := sql.Open("noop", "")
	if err != nil {
		panic(err)
	}

	return &fakeStore{
		db:           db,
		users:        make(map[string]models.User),
		schedules:    make(map[string]models.DoctorSchedule),
		slots:        make(map[string]models.TimeSlot),
		appointments: make(map[string]models.Appointment),
		meetings:     make(map[string]models.Meeting),
	}
}

func (f *fakeStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return f.db.Begin()
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	return &user, nil
}

func (f *fakeStore) CreateSchedule(ctx context.Context, schedule *models.DoctorSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.schedules[schedule.ID] = *schedule
	return nil
}

func (f *fakeStore) GetSchedule(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.scheduleDetailLocked(id)
}

func (f *fakeStore) scheduleDetailLocked(id string) (*models.ScheduleDetail, error) {
	schedule, ok := f.schedules[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	return &models.ScheduleDetail{
		DoctorSchedule: schedule,
		Doctor:         f.users[schedule.DoctorID],
	}, nil
}

func (f *fakeStore) ListSchedulesByDoctor(ctx context.Context, doctorID string, from, to *time.Time) ([]*models.ScheduleDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.ScheduleDetail
	for id, schedule := range f.schedules {
		if schedule.DoctorID != doctorID {
			continue
		}
		if from != nil && schedule.Date.Before(*from) {
			continue
		}
		if to != nil && schedule.Date.After(*to) {
			continue
		}
		detail, _ := f.scheduleDetailLocked(id)
		result = append(result, detail)
	}
	return result, nil
}

func (f *fakeStore) ListSchedulesByDoctorDate(ctx context.Context, doctorID string, date time.Time) ([]*models.DoctorSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.DoctorSchedule
	for _, schedule := range f.schedules {
		if schedule.DoctorID == doctorID && schedule.Date.Equal(date) {
			s := schedule
			result = append(result, &s)
		}
	}
	return result, nil
}

func (f *fakeStore) ListActiveSchedulesByDateRange(ctx context.Context, from, to time.Time) ([]*models.ScheduleDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.ScheduleDetail
	for id, schedule := range f.schedules {
		if !schedule.IsActive || schedule.Date.Before(from) || schedule.Date.After(to) {
			continue
		}
		detail, _ := f.scheduleDetailLocked(id)
		result = append(result, detail)
	}
	return result, nil
}

func (f *fakeStore) UpdateSchedule(ctx context.Context, schedule *models.DoctorSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.schedules[schedule.ID]; !ok {
		return response.ErrNotFound
	}
	f.schedules[schedule.ID] = *schedule
	return nil
}

func (f *fakeStore) DeleteSchedule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.schedules[id]; !ok {
		return response.ErrNotFound
	}
	delete(f.schedules, id)
	for slotID, slot := range f.slots {
		if slot.DoctorScheduleID == id {
			delete(f.slots, slotID)
		}
	}
	return nil
}

func (f *fakeStore) DeactivateExpiredSchedules(ctx context.Context, today, now string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for id, schedule := range f.schedules {
		if !schedule.IsActive {
			continue
		}
		day := schedule.Date.Format("2006-01-02")
		if day < today || (day == today && schedule.EndTime <= now) {
			schedule.IsActive = false
			f.schedules[id] = schedule
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountSlotsBySchedule(ctx context.Context, scheduleID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, slot := range f.slots {
		if slot.DoctorScheduleID == scheduleID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateSlot(ctx context.Context, tx *sql.Tx, slot *models.TimeSlot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.slots[slot.ID] = *slot
	return nil
}

func (f *fakeStore) GetSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, ok := f.slots[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	return &slot, nil
}

func (f *fakeStore) GetSlotForBooking(ctx context.Context, tx *sql.Tx, slotID string) (*models.SlotForBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, ok := f.slots[slotID]
	if !ok {
		return nil, response.ErrNotFound
	}
	schedule := f.schedules[slot.DoctorScheduleID]
	return &models.SlotForBooking{
		TimeSlot: slot,
		Schedule: schedule,
		Doctor:   f.users[slot.DoctorID],
	}, nil
}

func (f *fakeStore) ListAvailableSlots(ctx context.Context, doctorID string, from, to *time.Time) ([]*models.TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.TimeSlot
	for _, slot := range f.slots {
		if slot.DoctorID != doctorID || slot.Status != models.SlotAvailable {
			continue
		}
		if from != nil && slot.Date.Before(*from) {
			continue
		}
		if to != nil && slot.Date.After(*to) {
			continue
		}
		s := slot
		result = append(result, &s)
	}
	return result, nil
}

func (f *fakeStore) UpdateSlotStatus(ctx context.Context, slotID string, status models.SlotStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.setSlotStatusLocked(slotID, status)
}

func (f *fakeStore) UpdateSlotStatusTx(ctx context.Context, tx *sql.Tx, slotID string, status models.SlotStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.setSlotStatusLocked(slotID, status)
}

func (f *fakeStore) setSlotStatusLocked(slotID string, status models.SlotStatus) error {
	slot, ok := f.slots[slotID]
	if !ok {
		return response.ErrNotFound
	}
	slot.Status = status
	f.slots[slotID] = slot
	return nil
}

// ReserveSlot mimics the conditional UPDATE: only an available slot flips to
// booked, anything else reports the slot as taken.
func (f *fakeStore) ReserveSlot(ctx context.Context, tx *sql.Tx, slotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, ok := f.slots[slotID]
	if !ok {
		return response.ErrNotFound
	}
	if slot.Status != models.SlotAvailable {
		return response.ErrSlotNotAvailable
	}
	slot.Status = models.SlotBooked
	f.slots[slotID] = slot
	return nil
}

func (f *fakeStore) CountAppointmentsForDoctorDay(ctx context.Context, tx *sql.Tx, doctorID string, day time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, appointment := range f.appointments {
		if appointment.DoctorID != doctorID {
			continue
		}
		y1, m1, d1 := appointment.ScheduledAt.Date()
		y2, m2, d2 := day.Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateAppointment(ctx context.Context, tx *sql.Tx, appointment *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appointmentConflicts > 0 {
		f.appointmentConflicts--
		return response.ErrConflict
	}
	f.appointments[appointment.ID] = *appointment
	return nil
}

func (f *fakeStore) GetAppointment(ctx context.Context, id string) (*models.AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.appointmentDetailLocked(id)
}

func (f *fakeStore) appointmentDetailLocked(id string) (*models.AppointmentDetail, error) {
	appointment, ok := f.appointments[id]
	if !ok {
		return nil, response.ErrNotFound
	}

	detail := &models.AppointmentDetail{
		Appointment: appointment,
		Doctor:      f.users[appointment.DoctorID],
		Patient:     f.users[appointment.PatientID],
		Slot:        f.slots[appointment.TimeSlotID],
	}
	if m, ok := f.meetings[appointment.ID]; ok {
		meetingCopy := m
		detail.Meeting = &meetingCopy
	}
	return detail, nil
}

func (f *fakeStore) ListAppointments(ctx context.Context) ([]*models.AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.AppointmentDetail
	for id := range f.appointments {
		detail, _ := f.appointmentDetailLocked(id)
		result = append(result, detail)
	}
	return result, nil
}

func (f *fakeStore) ListAppointmentsByUser(ctx context.Context, userID string) ([]*models.AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.AppointmentDetail
	for id, appointment := range f.appointments {
		if appointment.DoctorID != userID && appointment.PatientID != userID {
			continue
		}
		detail, _ := f.appointmentDetailLocked(id)
		result = append(result, detail)
	}
	return result, nil
}

func (f *fakeStore) UpdateAppointmentStatusTx(ctx context.Context, tx *sql.Tx, id string, status models.AppointmentStatus, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	appointment, ok := f.appointments[id]
	if !ok {
		return response.ErrNotFound
	}
	appointment.Status = status
	appointment.Notes = notes
	f.appointments[id] = appointment
	return nil
}

func (f *fakeStore) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createMeetingErr != nil {
		return f.createMeetingErr
	}
	f.meetings[m.AppointmentID] = *m
	return nil
}

func (f *fakeStore) GetMeetingByAppointment(ctx context.Context, appointmentID string) (*models.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.meetings[appointmentID]
	if !ok {
		return nil, response.ErrNotFound
	}
	return &m, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)
	return nil
}

type fakeProvisioner struct {
	mu    sync.Mutex
	calls []*meeting.CreateRequest
	resp  *meeting.CreateResponse
	err   error
}

func (p *fakeProvisioner) CreateMeeting(ctx context.Context, req *meeting.CreateRequest) (*meeting.CreateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	if p.resp != nil {
		return p.resp, nil
	}
	return &meeting.CreateResponse{MeetingID: "m-1", JoinURL: "https://meet.example.com/m-1"}, nil
}

func (p *fakeProvisioner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService() (*Service, *fakeStore, *fakeLocker, *fakeProvisioner) {
	store := newFakeStore()
	locker := newFakeLocker()
	provisioner := &fakeProvisioner{}

	return NewService(discardLogger(), store, locker, provisioner), store, locker, provisioner
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func (f *fakeStore) addUser(id string, role models.UserRole) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.users[id] = models.User{
		ID:       id,
		Username: id,
		Email:    id + "@clinic.test",
		Role:     role,
	}
}

func (f *fakeStore) addSchedule(schedule models.DoctorSchedule) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.schedules[schedule.ID] = schedule
}

func (f *fakeStore) addSlot(slot models.TimeSlot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.slots[slot.ID] = slot
}

func (f *fakeStore) addAppointment(appointment models.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.appointments[appointment.ID] = appointment
}

func (f *fakeStore) slot(id string) models.TimeSlot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.slots[id]
}

func (f *fakeStore) setAppointmentType(id string, apptType models.AppointmentType) {
	f.mu.Lock()
	defer f.mu.Unlock()

	appointment := f.appointments[id]
	appointment.Type = apptType
	f.appointments[id] = appointment
}

func (f *fakeStore) appointment(id string) models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.appointments[id]
}

func (f *fakeStore) slotsForSchedule(scheduleID string) []models.TimeSlot {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.TimeSlot
	for _, slot := range f.slots {
		if slot.DoctorScheduleID == scheduleID {
			result = append(result, slot)
		}
	}
	return result
}
