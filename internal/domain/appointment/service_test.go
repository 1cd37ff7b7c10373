package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediease/mediease/internal/domain/activity"
	"github.com/mediease/mediease/internal/domain/scheduling"
	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
)

// -- Mock Store --

type mockUser struct {
	name, email, phone string
}

// mockStore holds slots and appointments together so the appointment and
// slot views of it see the same rows, the way both tables live in one
// database.
type mockStore struct {
	mu       sync.Mutex
	slots    map[int64]*scheduling.Slot
	appts    map[int64]*Appointment
	users    map[int64]mockUser
	nextID   int64
	failMove error
}

func newMockStore() *mockStore {
	return &mockStore{
		slots: make(map[int64]*scheduling.Slot),
		appts: make(map[int64]*Appointment),
		users: make(map[int64]mockUser),
	}
}

func (m *mockStore) addSlot(id, doctorID, doctorUserID int64, date scheduling.Date, start, end int, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[id] = &scheduling.Slot{
		ID: id, DoctorID: doctorID, DoctorUserID: doctorUserID, DoctorName: m.users[doctorUserID].name,
		Date: date, StartTime: scheduling.TimeOfDay(start), EndTime: scheduling.TimeOfDay(end),
		IsAvailable: available,
	}
}

func (m *mockStore) activeOnLocked(slotID, except int64) bool {
	for _, a := range m.appts {
		if a.SlotID == slotID && a.ID != except && a.Status.Active() {
			return true
		}
	}
	return false
}

func (m *mockStore) joinLocked(a *Appointment) *Appointment {
	cp := *a
	if s, ok := m.slots[a.SlotID]; ok {
		cp.DoctorID = s.DoctorID
		cp.DoctorUserID = s.DoctorUserID
		cp.SlotDate = s.Date
		cp.StartTime = s.StartTime
		cp.EndTime = s.EndTime
	}
	return &cp
}

func (m *mockStore) listingLocked(a *Appointment) *Listing {
	j := m.joinLocked(a)
	p, d := m.users[j.PatientID], m.users[j.DoctorUserID]
	return &Listing{
		Appointment: *j, PatientName: p.name, PatientEmail: p.email, PatientPhone: p.phone,
		DoctorName: d.name, Specialization: "Cardiology",
	}
}

func (m *mockStore) appointment(id int64) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.joinLocked(m.appts[id])
}

func (m *mockStore) slotAvailable(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[id].IsAvailable
}

// snapshot returns a func restoring the store to its current contents.
func (m *mockStore) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots := make(map[int64]*scheduling.Slot, len(m.slots))
	for id, s := range m.slots {
		cp := *s
		slots[id] = &cp
	}
	appts := make(map[int64]*Appointment, len(m.appts))
	for id, a := range m.appts {
		cp := *a
		appts[id] = &cp
	}
	next := m.nextID
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.slots, m.appts, m.nextID = slots, appts, next
	}
}

type mockRepo struct{ *mockStore }

func (m mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeOnLocked(a.SlotID, 0) {
		return ErrSlotAlreadyBooked
	}
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = testNow
	a.UpdatedAt = testNow
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m mockRepo) GetForUpdate(_ context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return m.joinLocked(a), nil
}

func (m mockRepo) GetDetails(_ context.Context, id int64) (*Details, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	l := m.listingLocked(a)
	return &Details{Listing: *l, DoctorEmail: m.users[l.DoctorUserID].email, Specializations: []string{"Cardiology"}}, nil
}

func (m mockRepo) update(id int64, fn func(a *Appointment)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	fn(a)
	return nil
}

func (m mockRepo) Cancel(_ context.Context, id int64, reason *string, by int64) error {
	return m.update(id, func(a *Appointment) {
		at := testNow
		a.Status = StatusCancelled
		a.CancellationReason = reason
		a.CancelledAt = &at
		a.CancelledBy = &by
	})
}

func (m mockRepo) UpdateStatus(_ context.Context, id int64, status Status, notes *string) error {
	return m.update(id, func(a *Appointment) {
		a.Status = status
		if notes != nil {
			a.Notes = *notes
		}
	})
}

func (m mockRepo) MoveToSlot(_ context.Context, id, slotID int64) error {
	m.mu.Lock()
	if m.failMove != nil {
		m.mu.Unlock()
		return m.failMove
	}
	booked := m.activeOnLocked(slotID, id)
	m.mu.Unlock()
	if booked {
		return ErrNewSlotBooked
	}
	return m.update(id, func(a *Appointment) {
		a.SlotID = slotID
		a.Status = StatusPending
		a.CancellationReason, a.CancelledAt, a.CancelledBy = nil, nil, nil
	})
}

func (m mockRepo) SetNotes(_ context.Context, id int64, notes string) error {
	return m.update(id, func(a *Appointment) { a.Notes = notes })
}

func (m mockRepo) sortedLocked(keep func(l *Listing) bool) []*Listing {
	var out []*Listing
	for _, a := range m.appts {
		if l := m.listingLocked(a); keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func page(items []*Listing, limit, offset int) []*Listing {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (m mockRepo) ListForPatient(_ context.Context, patientID int64, limit, offset int) ([]*Listing, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedLocked(func(l *Listing) bool { return l.PatientID == patientID })
	return page(all, limit, offset), len(all), nil
}

func (m mockRepo) ListForDoctor(_ context.Context, doctorUserID int64, f ListFilter, today scheduling.Date, limit, offset int) ([]*Listing, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedLocked(func(l *Listing) bool {
		if l.DoctorUserID != doctorUserID {
			return false
		}
		if f.Status != "" && f.Status != RangeAll && string(l.Status) != f.Status {
			return false
		}
		switch f.Range {
		case RangeToday:
			if !l.SlotDate.Equal(today.Time) {
				return false
			}
		case RangePast:
			if !l.SlotDate.Before(today) {
				return false
			}
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(l.PatientName), q) &&
				!strings.Contains(strings.ToLower(l.PatientEmail), q) && !strings.Contains(l.PatientPhone, q) {
				return false
			}
		}
		return true
	})
	return page(all, limit, offset), len(all), nil
}

func (m mockRepo) DoctorStats(_ context.Context, doctorUserID int64, today scheduling.Date) (*DoctorStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &DoctorStats{}
	for _, l := range m.sortedLocked(func(l *Listing) bool { return l.DoctorUserID == doctorUserID }) {
		st.Total++
		if l.SlotDate.Equal(today.Time) {
			st.Today++
		}
		if l.Status == StatusPending {
			st.Pending++
		}
		if l.Status == StatusCompleted && l.SlotDate.Year() == today.Year() && l.SlotDate.Month() == today.Month() {
			st.CompletedMonth++
		}
	}
	return st, nil
}

type mockSlots struct{ *mockStore }

func (m mockSlots) GetForUpdate(_ context.Context, id int64) (*scheduling.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, scheduling.ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m mockSlots) HasActiveAppointment(_ context.Context, slotID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeOnLocked(slotID, 0), nil
}

func (m mockSlots) SetAvailable(_ context.Context, id int64, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return scheduling.ErrSlotNotFound
	}
	s.IsAvailable = available
	return nil
}

// lockingTx serializes transactions the way the slot row lock does and
// rolls the store back when fn fails.
type lockingTx struct {
	mu    sync.Mutex
	store *mockStore
}

func (t *lockingTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	restore := t.store.snapshot()
	if err := fn(ctx); err != nil {
		restore()
		return err
	}
	return nil
}

// -- Fixture --

var (
	testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	monday  = scheduling.NewDate(2025, time.June, 2)
	tuesday = scheduling.NewDate(2025, time.June, 3)
	friday  = scheduling.NewDate(2025, time.May, 30)

	ada    = &auth.Principal{UserID: 10, Role: auth.RolePatient, Name: "Ada"}
	ben    = &auth.Principal{UserID: 11, Role: auth.RolePatient, Name: "Ben"}
	drLee  = &auth.Principal{UserID: 20, Role: auth.RoleDoctor, Name: "Dr. Lee"}
	drKim  = &auth.Principal{UserID: 21, Role: auth.RoleDoctor, Name: "Dr. Kim"}
	admin  = &auth.Principal{UserID: 1, Role: auth.RoleAdmin, Name: "Root"}
	ctxBg  = context.Background()
	hour9  = 9 * 60
	hour10 = 10 * 60
)

type testEnv struct {
	svc   *Service
	store *mockStore
}

func newTestEnv(opts Options) *testEnv {
	store := newMockStore()
	store.users[10] = mockUser{"Ada Lovelace", "ada@example.com", "555-0100"}
	store.users[11] = mockUser{"Ben Carter", "ben@example.com", "555-0111"}
	store.users[20] = mockUser{"Dr. Lee", "lee@example.com", ""}
	store.users[21] = mockUser{"Dr. Kim", "kim@example.com", ""}

	store.addSlot(40, 1, 20, friday, hour9, hour9+30, true)
	store.addSlot(42, 1, 20, monday, hour9, hour9+30, true)
	store.addSlot(43, 1, 20, monday, hour9+30, hour10, true)
	store.addSlot(44, 1, 20, tuesday, hour10, hour10+30, false)
	store.addSlot(45, 2, 21, monday, hour10, hour10+30, true)

	svc := NewService(mockRepo{store}, mockSlots{store}, &lockingTx{store: store},
		activity.NewRecorder(nil, zerolog.Nop()), time.UTC, opts)
	svc.now = func() time.Time { return testNow }
	return &testEnv{svc: svc, store: store}
}

func newTestService() *Service {
	return newTestEnv(Options{ReleaseOldSlotOnReschedule: true}).svc
}

func (env *testEnv) book(t *testing.T, who *auth.Principal, slotID int64) int64 {
	t.Helper()
	conf, err := env.svc.Book(ctxBg, who, BookRequest{SlotID: slotID, Symptoms: "headache"})
	if err != nil {
		t.Fatalf("book slot %d: %v", slotID, err)
	}
	return conf.AppointmentID
}

func assertMessage(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if got := apperror.MessageOf(err); got != want {
		t.Errorf("expected message %q, got %q", want, got)
	}
}

// -- Booking --

func TestBook_Success(t *testing.T) {
	env := newTestEnv(Options{})
	conf, err := env.svc.Book(ctxBg, ada, BookRequest{SlotID: 42, Symptoms: "  fever ", Notes: "first visit"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.Date != "June 2, 2025" || conf.Time != "9:00 AM - 9:30 AM" || conf.DoctorName != "Dr. Lee" {
		t.Errorf("unexpected confirmation %+v", conf)
	}

	a := env.store.appointment(conf.AppointmentID)
	if a.Status != StatusPending || a.PatientID != 10 || a.SlotID != 42 || a.Symptoms != "fever" {
		t.Errorf("unexpected appointment %+v", a)
	}
	if env.store.slotAvailable(42) {
		t.Error("expected slot 42 to be unavailable after booking")
	}
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	env := newTestEnv(Options{})
	const bookers = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  int
		refused int
		other   []error
	)
	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			who := &auth.Principal{UserID: uid, Role: auth.RolePatient}
			_, err := env.svc.Book(ctxBg, who, BookRequest{SlotID: 42})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrSlotAlreadyBooked):
				refused++
			default:
				other = append(other, err)
			}
		}(int64(100 + i))
	}
	wg.Wait()

	if booked != 1 || refused != bookers-1 || len(other) != 0 {
		t.Fatalf("expected 1 booking and %d refusals, got %d/%d (other: %v)", bookers-1, booked, refused, other)
	}
	if env.store.slotAvailable(42) {
		t.Error("expected slot 42 to stay unavailable")
	}
}

func TestBook_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		who    *auth.Principal
		slotID int64
		msg    string
		status int
	}{
		{"missing slot", ada, 0, "Missing slot_id parameter", 400},
		{"doctor", drLee, 42, "Only patients can book appointments", 403},
		{"admin", admin, 42, "Only patients can book appointments", 403},
		{"anonymous", nil, 42, "Only patients can book appointments", 403},
		{"unknown slot", ada, 999, "Slot not found", 404},
		{"disabled slot", ada, 44, "Slot not available", 400},
		{"past slot", ada, 40, "Cannot book appointments in the past", 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(Options{})
			_, err := env.svc.Book(ctxBg, tt.who, BookRequest{SlotID: tt.slotID})
			assertMessage(t, err, tt.msg)
			if got := apperror.StatusOf(err); got != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got)
			}
			if tt.slotID == 42 && !env.store.slotAvailable(42) {
				t.Error("expected rejected booking to leave the slot free")
			}
		})
	}
}

func TestBook_BookedSlotTakesPrecedence(t *testing.T) {
	env := newTestEnv(Options{})
	env.book(t, ada, 42)

	_, err := env.svc.Book(ctxBg, ben, BookRequest{SlotID: 42})
	if !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Errorf("expected ErrSlotAlreadyBooked, got %v", err)
	}
}

func TestBook_AfterCancelSlotIsBookableAgain(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)
	if err := env.svc.Cancel(ctxBg, ada, id, "travel"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.svc.Book(ctxBg, ben, BookRequest{SlotID: 42}); err != nil {
		t.Errorf("expected rebooking a freed slot to succeed, got %v", err)
	}
}

// -- Cancel --

func TestCancel_FreesSlot(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)

	if err := env.svc.Cancel(ctxBg, ada, id, " plans changed "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := env.store.appointment(id)
	if a.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", a.Status)
	}
	if a.CancellationReason == nil || *a.CancellationReason != "plans changed" {
		t.Errorf("unexpected reason %v", a.CancellationReason)
	}
	if a.CancelledBy == nil || *a.CancelledBy != ada.UserID {
		t.Errorf("expected cancelled_by %d, got %v", ada.UserID, a.CancelledBy)
	}
	if !env.store.slotAvailable(42) {
		t.Error("expected slot 42 to be available again")
	}
}

func TestCancel_ByDoctorAndAdmin(t *testing.T) {
	for _, who := range []*auth.Principal{drLee, admin} {
		env := newTestEnv(Options{})
		id := env.book(t, ada, 42)
		if err := env.svc.Cancel(ctxBg, who, id, ""); err != nil {
			t.Errorf("%s cancel: unexpected error %v", who.Role, err)
		}
		if a := env.store.appointment(id); a.CancellationReason != nil {
			t.Errorf("expected empty reason to be stored as null, got %q", *a.CancellationReason)
		}
	}
}

func TestCancel_Rejections(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)

	assertMessage(t, env.svc.Cancel(ctxBg, ada, 0, ""), "Missing appointment_id parameter")
	assertMessage(t, env.svc.Cancel(ctxBg, ada, 999, ""), "Appointment not found")
	assertMessage(t, env.svc.Cancel(ctxBg, ben, id, ""), "Not authorized to cancel this appointment")
	assertMessage(t, env.svc.Cancel(ctxBg, drKim, id, ""), "Not authorized to cancel this appointment")

	if err := env.svc.Cancel(ctxBg, ada, id, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertMessage(t, env.svc.Cancel(ctxBg, ada, id, ""), "Appointment is already cancelled")
}

func TestCompletedThenPatientCancel(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)

	if _, err := env.svc.UpdateStatus(ctxBg, drLee, id, "completed", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	assertMessage(t, env.svc.Cancel(ctxBg, ada, id, ""), "Cannot cancel completed appointment")

	if a := env.store.appointment(id); a.Status != StatusCompleted {
		t.Errorf("expected status to stay completed, got %s", a.Status)
	}
	if env.store.slotAvailable(42) {
		t.Error("expected slot to stay held by the completed visit")
	}
}

// -- Status updates --

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)
	notes := "bring lab results"

	got, err := env.svc.UpdateStatus(ctxBg, drLee, id, "confirmed", &notes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", got)
	}
	a := env.store.appointment(id)
	if a.Status != StatusConfirmed || a.Notes != notes {
		t.Errorf("unexpected appointment %+v", a)
	}

	if _, err := env.svc.UpdateStatus(ctxBg, admin, id, "no-show", nil); err != nil {
		t.Fatalf("admin no-show: %v", err)
	}
	if a := env.store.appointment(id); a.Notes != notes {
		t.Errorf("expected nil notes to keep existing notes, got %q", a.Notes)
	}
}

func TestUpdateStatus_Rejections(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)

	tests := []struct {
		name   string
		who    *auth.Principal
		id     int64
		status string
		msg    string
	}{
		{"missing status", drLee, id, " ", "Missing required parameters"},
		{"missing id", drLee, 0, "confirmed", "Missing required parameters"},
		{"bad status", drLee, id, "done", "Invalid status"},
		{"patient", ada, id, "confirmed", "Not authorized to update appointment status"},
		{"other doctor", drKim, id, "confirmed", "Not authorized to update this appointment"},
		{"unknown", drLee, 999, "confirmed", "Appointment not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.UpdateStatus(ctxBg, tt.who, tt.id, tt.status, nil)
			assertMessage(t, err, tt.msg)
		})
	}
	if a := env.store.appointment(id); a.Status != StatusPending {
		t.Errorf("expected rejected updates to leave status pending, got %s", a.Status)
	}
}

func TestUpdateStatus_IllegalTransition(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)
	if _, err := env.svc.UpdateStatus(ctxBg, drLee, id, "completed", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err := env.svc.UpdateStatus(ctxBg, drLee, id, "pending", nil)
	assertMessage(t, err, "Cannot change status from completed to pending")
}

func TestUpdateStatus_CancelFreesSlot(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)
	reason := "doctor unavailable"

	if _, err := env.svc.UpdateStatus(ctxBg, drLee, id, "cancelled", &reason); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := env.store.appointment(id)
	if a.Status != StatusCancelled || a.CancellationReason == nil || *a.CancellationReason != reason {
		t.Errorf("unexpected appointment %+v", a)
	}
	if !env.store.slotAvailable(42) {
		t.Error("expected slot to be released")
	}

	_, err := env.svc.UpdateStatus(ctxBg, drLee, id, "cancelled", nil)
	assertMessage(t, err, "Appointment is already cancelled")
}

// -- Reschedule --

func TestReschedule(t *testing.T) {
	env := newTestEnv(Options{ReleaseOldSlotOnReschedule: true})
	id := env.book(t, ada, 42)
	if _, err := env.svc.UpdateStatus(ctxBg, drLee, id, "confirmed", nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	res, err := env.svc.Reschedule(ctxBg, ada, id, 43)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewSlotID != 43 || res.NewDate != "June 2, 2025" || res.NewTime != "9:30 AM - 10:00 AM" {
		t.Errorf("unexpected result %+v", res)
	}
	a := env.store.appointment(id)
	if a.SlotID != 43 || a.Status != StatusPending {
		t.Errorf("expected pending appointment in slot 43, got %+v", a)
	}
	if env.store.slotAvailable(43) {
		t.Error("expected new slot to be taken")
	}
	if !env.store.slotAvailable(42) {
		t.Error("expected old slot to be released")
	}
}

func TestReschedule_KeepsOldSlotWhenConfigured(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)
	if _, err := env.svc.Reschedule(ctxBg, ada, id, 43); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.store.slotAvailable(42) {
		t.Error("expected old slot to stay unavailable")
	}
}

func TestReschedule_ReactivatesCancelled(t *testing.T) {
	env := newTestEnv(Options{ReleaseOldSlotOnReschedule: true})
	id := env.book(t, ada, 42)
	if err := env.svc.Cancel(ctxBg, ada, id, "sick"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Someone else takes the freed slot; releasing it again would be wrong.
	env.book(t, ben, 42)

	if _, err := env.svc.Reschedule(ctxBg, ada, id, 43); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := env.store.appointment(id)
	if a.Status != StatusPending || a.CancellationReason != nil || a.CancelledBy != nil {
		t.Errorf("expected cancellation to be cleared, got %+v", a)
	}
	if env.store.slotAvailable(42) {
		t.Error("expected Ben's slot to stay booked")
	}
}

func TestReschedule_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		who     *auth.Principal
		newSlot int64
		prepare func(t *testing.T, env *testEnv, id int64)
		msg     string
	}{
		{"missing slot", ada, 0, nil, "Missing required parameters"},
		{"stranger", ben, 43, nil, "Not authorized to reschedule this appointment"},
		{"unknown slot", ada, 999, nil, "New slot not available"},
		{"disabled slot", ada, 44, nil, "New slot not available"},
		{"past slot", ada, 40, nil, "Cannot reschedule to past date"},
		{"doctor into colleague's calendar", drLee, 45, nil, "Not authorized to reschedule this appointment"},
		{"booked slot", ada, 43, func(t *testing.T, env *testEnv, _ int64) {
			env.book(t, ben, 43)
		}, "New slot already booked"},
		{"completed", ada, 43, func(t *testing.T, env *testEnv, id int64) {
			if _, err := env.svc.UpdateStatus(ctxBg, drLee, id, "completed", nil); err != nil {
				t.Fatalf("complete: %v", err)
			}
		}, "Cannot reschedule completed appointment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(Options{ReleaseOldSlotOnReschedule: true})
			id := env.book(t, ada, 42)
			if tt.prepare != nil {
				tt.prepare(t, env, id)
			}
			before := env.store.appointment(id)

			_, err := env.svc.Reschedule(ctxBg, tt.who, id, tt.newSlot)
			assertMessage(t, err, tt.msg)

			if after := env.store.appointment(id); after.SlotID != before.SlotID || after.Status != before.Status {
				t.Errorf("expected appointment unchanged, before %+v after %+v", before, after)
			}
		})
	}
}

func TestReschedule_FailureRollsBack(t *testing.T) {
	env := newTestEnv(Options{ReleaseOldSlotOnReschedule: true})
	id := env.book(t, ada, 42)
	env.store.failMove = errors.New("connection reset")

	_, err := env.svc.Reschedule(ctxBg, ada, id, 43)
	if apperror.StatusOf(err) != 500 {
		t.Fatalf("expected internal error, got %v", err)
	}
	assertMessage(t, err, "Database error while rescheduling appointment")

	if a := env.store.appointment(id); a.SlotID != 42 || a.Status != StatusPending {
		t.Errorf("expected appointment to stay in slot 42, got %+v", a)
	}
	if !env.store.slotAvailable(43) || env.store.slotAvailable(42) {
		t.Error("expected slot flags unchanged")
	}
}

// -- Notes --

func TestAddNotes(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)

	if err := env.svc.AddNotes(ctxBg, drLee, id, " follow up in 2 weeks "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a := env.store.appointment(id); a.Notes != "follow up in 2 weeks" {
		t.Errorf("unexpected notes %q", a.Notes)
	}

	assertMessage(t, env.svc.AddNotes(ctxBg, drLee, id, "  "), "Missing required parameters")
	assertMessage(t, env.svc.AddNotes(ctxBg, ada, id, "x"), "Not authorized to add notes")
	assertMessage(t, env.svc.AddNotes(ctxBg, drKim, id, "x"), "Not authorized to add notes to this appointment")
}

// -- Reads --

func TestGetDetails(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)

	for _, who := range []*auth.Principal{ada, drLee, admin} {
		d, err := env.svc.GetDetails(ctxBg, who, id)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", who.Name, err)
		}
		v := d.View(env.svc.Location())
		if v.DateFormatted != "June 2, 2025" || v.TimeFormatted != "9:00 AM - 9:30 AM" {
			t.Errorf("unexpected formatting %+v", v)
		}
		if v.Doctor.Name != "Dr. Lee" || v.Patient.Email != "ada@example.com" {
			t.Errorf("unexpected parties %+v / %+v", v.Doctor, v.Patient)
		}
		if v.CreatedAtFormatted != "June 1, 2025 8:00 AM" {
			t.Errorf("unexpected created_at_formatted %q", v.CreatedAtFormatted)
		}
	}

	for _, who := range []*auth.Principal{ben, drKim} {
		_, err := env.svc.GetDetails(ctxBg, who, id)
		assertMessage(t, err, "Not authorized to view this appointment")
	}
	_, err := env.svc.GetDetails(ctxBg, ada, 999)
	assertMessage(t, err, "Appointment not found")
}

func TestDetailsView_EmptySpecializations(t *testing.T) {
	d := &Details{}
	if v := d.View(time.UTC); v.Doctor.Specializations == nil {
		t.Error("expected an empty list, not null")
	}
}

func TestListMine(t *testing.T) {
	env := newTestEnv(Options{})
	env.book(t, ada, 42)
	env.book(t, ben, 43)
	env.book(t, ada, 45)

	items, total, err := env.svc.ListMine(ctxBg, ada, ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected Ada's 2 bookings, got %d/%d", len(items), total)
	}

	items, total, err = env.svc.ListMine(ctxBg, drLee, ListFilter{Search: " ben "}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].PatientName != "Ben Carter" {
		t.Errorf("expected Ben's booking from search, got %d", total)
	}

	if _, _, err := env.svc.ListMine(ctxBg, drLee, ListFilter{Status: "done"}, 10, 0); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	_, _, err = env.svc.ListMine(ctxBg, drLee, ListFilter{Range: "year"}, 10, 0)
	assertMessage(t, err, "Invalid date filter")

	_, _, err = env.svc.ListMine(ctxBg, admin, ListFilter{}, 10, 0)
	assertMessage(t, err, "Only patients and doctors have appointments")
}

func TestDoctorStats(t *testing.T) {
	env := newTestEnv(Options{})
	id := env.book(t, ada, 42)
	env.book(t, ben, 43)
	if _, err := env.svc.UpdateStatus(ctxBg, drLee, id, "completed", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	st, err := env.svc.DoctorStats(ctxBg, drLee)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Total != 2 || st.Pending != 1 || st.CompletedMonth != 1 || st.Today != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
	if _, err := env.svc.DoctorStats(ctxBg, ada); apperror.StatusOf(err) != 403 {
		t.Errorf("expected 403 for patient, got %v", err)
	}
}

func TestBookingOutcome(t *testing.T) {
	tests := map[string]error{
		"booked":         nil,
		"already_booked": ErrSlotAlreadyBooked,
		"unavailable":    scheduling.ErrSlotNotFound,
		"past":           ErrPastBooking,
		"error":          fmt.Errorf("boom"),
	}
	for want, err := range tests {
		if got := bookingOutcome(err); got != want {
			t.Errorf("bookingOutcome(%v) = %q, want %q", err, got, want)
		}
	}
}
