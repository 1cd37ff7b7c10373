package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mediease/mediease/internal/domain/appointment"
	"github.com/mediease/mediease/internal/platform/auth"
)

func TestBook_ConcurrentSameSlotAdmitsOne(t *testing.T) {
	ctx := context.Background()
	svc := newServices(globalDB.Pool)
	doctor := createUser(t, ctx, auth.RoleDoctor, "Dr. Race")
	slotID := createSlots(t, ctx, svc, doctor)[0]

	const bookers = 8
	patients := make([]*auth.Principal, bookers)
	for i := range patients {
		patients[i] = createUser(t, ctx, auth.RolePatient, fmt.Sprintf("Patient %d", i))
	}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, bookers)
	)
	for i, p := range patients {
		wg.Add(1)
		go func(i int, p *auth.Principal) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.appointment.Book(ctx, p, appointment.BookRequest{SlotID: slotID, Symptoms: "cough"})
		}(i, p)
	}
	close(start)
	wg.Wait()

	ok := 0
	for i, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		default:
			t.Errorf("booker %d: unexpected error %v", i, err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one booking to succeed, got %d", ok)
	}

	var active int
	err := globalDB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE slot_id = $1 AND status <> 'cancelled'`, slotID).Scan(&active)
	if err != nil {
		t.Fatalf("count appointments: %v", err)
	}
	if active != 1 {
		t.Errorf("expected one active appointment, got %d", active)
	}
	if slotAvailable(t, ctx, slotID) {
		t.Error("expected booked slot to be unavailable")
	}
}

func TestCreateAppointment_UniqueIndexRejectsSecondActive(t *testing.T) {
	ctx := context.Background()
	svc := newServices(globalDB.Pool)
	doctor := createUser(t, ctx, auth.RoleDoctor, "Dr. Index")
	slotID := createSlots(t, ctx, svc, doctor)[0]
	first := createUser(t, ctx, auth.RolePatient, "First Patient")
	second := createUser(t, ctx, auth.RolePatient, "Second Patient")

	repo := appointment.NewRepoPG(globalDB.Pool)
	if err := repo.Create(ctx, &appointment.Appointment{PatientID: first.UserID, SlotID: slotID, Status: appointment.StatusPending}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := repo.Create(ctx, &appointment.Appointment{PatientID: second.UserID, SlotID: slotID, Status: appointment.StatusPending})
	if !errors.Is(err, appointment.ErrSlotAlreadyBooked) {
		t.Errorf("expected ErrSlotAlreadyBooked from the unique index, got %v", err)
	}
}

func TestCreateSlots_SecondRunCreatesNothing(t *testing.T) {
	ctx := context.Background()
	svc := newServices(globalDB.Pool)
	doctor := createUser(t, ctx, auth.RoleDoctor, "Dr. Twice")
	ids := createSlots(t, ctx, svc, doctor)
	if len(ids) != 2 {
		t.Fatalf("expected 2 slots after first run, got %d", len(ids))
	}

	res, err := svc.scheduling.CreateSlots(ctx, doctor, schedulingWindow())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Requested != 2 || res.Created != 0 {
		t.Errorf("expected 2 requested and 0 created, got %+v", res)
	}
	if again := createSlots(t, ctx, svc, doctor); len(again) != 2 {
		t.Errorf("expected the slot count to stay at 2, got %d", len(again))
	}
}

func TestBulkEnable_WaitsForInFlightBooking(t *testing.T) {
	ctx := context.Background()
	svc := newServices(globalDB.Pool)
	doctor := createUser(t, ctx, auth.RoleDoctor, "Dr. Bulk")
	patient := createUser(t, ctx, auth.RolePatient, "Bulk Patient")
	slotID := createSlots(t, ctx, svc, doctor)[0]

	// Book by hand so the slot lock is held while the bulk enable starts.
	tx, err := globalDB.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `SELECT 1 FROM availability_slots WHERE slot_id = $1 FOR UPDATE`, slotID); err != nil {
		t.Fatalf("lock slot: %v", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO appointments (patient_id, slot_id, status) VALUES ($1, $2, 'pending')`,
		patient.UserID, slotID); err != nil {
		t.Fatalf("insert appointment: %v", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE availability_slots SET is_available = FALSE WHERE slot_id = $1`, slotID); err != nil {
		t.Fatalf("close slot: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.scheduling.BulkAction(ctx, doctor, "enable")
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit booking: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("bulk enable: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("bulk enable did not finish")
	}
	if slotAvailable(t, ctx, slotID) {
		t.Error("bulk enable re-opened a slot booked while it waited")
	}
}
