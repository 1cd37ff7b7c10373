package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mediease/mediease/internal/domain/activity"
	"github.com/mediease/mediease/internal/domain/scheduling"
	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
	"github.com/mediease/mediease/internal/platform/db"
	"github.com/mediease/mediease/internal/platform/metrics"
)

// Options tunes lifecycle behaviour.
type Options struct {
	// ReleaseOldSlotOnReschedule frees the slot an appointment moves away
	// from.
	ReleaseOldSlotOnReschedule bool
}

type Service struct {
	repo     Repository
	slots    SlotStore
	tx       db.Transactor
	activity *activity.Recorder
	loc      *time.Location
	opts     Options
	now      func() time.Time
}

func NewService(repo Repository, slots SlotStore, tx db.Transactor, rec *activity.Recorder, loc *time.Location, opts Options) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		slots:    slots,
		tx:       tx,
		activity: rec,
		loc:      loc,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *Service) today() scheduling.Date {
	return scheduling.DateOf(s.now(), s.loc)
}

// Location is the clinic time zone used for dates and timestamps.
func (s *Service) Location() *time.Location { return s.loc }

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotAlreadyBooked):
		return "already_booked"
	case errors.Is(err, ErrSlotNotAvailable), errors.Is(err, scheduling.ErrSlotNotFound):
		return "unavailable"
	case errors.Is(err, ErrPastBooking):
		return "past"
	}
	return "error"
}

// -- Booking --

// Book reserves a slot for the calling patient. The slot row lock taken
// first serializes concurrent bookers of the same slot.
func (s *Service) Book(ctx context.Context, who *auth.Principal, req BookRequest) (*BookingConfirmation, error) {
	if req.SlotID <= 0 {
		return nil, apperror.BadRequest("Missing slot_id parameter")
	}
	if !Policy.Evaluate(who, ActionBook, auth.Resource{}).Allowed {
		return nil, apperror.Forbidden("Only patients can book appointments")
	}

	var (
		appt = &Appointment{
			PatientID: who.UserID,
			SlotID:    req.SlotID,
			Status:    StatusPending,
			Symptoms:  strings.TrimSpace(req.Symptoms),
			Notes:     strings.TrimSpace(req.Notes),
		}
		slot *scheduling.Slot
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if slot, err = s.slots.GetForUpdate(ctx, req.SlotID); err != nil {
			return err
		}
		booked, err := s.slots.HasActiveAppointment(ctx, slot.ID)
		if err != nil {
			return err
		}
		if booked {
			return ErrSlotAlreadyBooked
		}
		if !slot.IsAvailable {
			return ErrSlotNotAvailable
		}
		if slot.Date.Before(s.today()) {
			return ErrPastBooking
		}
		if err := s.repo.Create(ctx, appt); err != nil {
			return err
		}
		return s.slots.SetAvailable(ctx, slot.ID, false)
	})
	metrics.RecordBooking(bookingOutcome(err))
	if err != nil {
		return nil, apperror.Wrap(err, "Database error while booking appointment")
	}

	s.activity.Record(ctx, who.UserID, activity.ActionAppointmentBooked, fmt.Sprintf("Appointment ID: %d", appt.ID))
	return &BookingConfirmation{
		AppointmentID: appt.ID,
		Date:          slot.Date.Long(),
		Time:          slot.Range().String(),
		DoctorName:    slot.DoctorName,
	}, nil
}

// -- Lifecycle --

// Cancel cancels an appointment and frees its slot.
func (s *Service) Cancel(ctx context.Context, who *auth.Principal, id int64, reason string) error {
	if id <= 0 {
		return apperror.BadRequest("Missing appointment_id parameter")
	}
	var from Status
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Policy.Evaluate(who, ActionCancel, a.Resource()).Allowed {
			return apperror.Forbidden("Not authorized to cancel this appointment")
		}
		from = a.Status
		return s.cancelLocked(ctx, who, a, optional(reason))
	})
	if err != nil {
		return apperror.Wrap(err, "Database error while cancelling appointment")
	}

	metrics.RecordTransition(ActionCancel, string(from), string(StatusCancelled))
	s.activity.Record(ctx, who.UserID, activity.ActionAppointmentCancelled, fmt.Sprintf("Appointment ID: %d", id))
	return nil
}

// cancelLocked expects a to be locked by the caller's transaction.
func (s *Service) cancelLocked(ctx context.Context, who *auth.Principal, a *Appointment, reason *string) error {
	switch a.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusCompleted:
		return ErrCancelCompleted
	}
	if err := s.repo.Cancel(ctx, a.ID, reason, who.UserID); err != nil {
		return err
	}
	return s.slots.SetAvailable(ctx, a.SlotID, true)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// UpdateStatus moves an appointment along the transition table. Setting
// cancelled goes through Cancel's rules and the notes become the reason.
func (s *Service) UpdateStatus(ctx context.Context, who *auth.Principal, id int64, status string, notes *string) (Status, error) {
	if id <= 0 || strings.TrimSpace(status) == "" {
		return "", apperror.BadRequest("Missing required parameters")
	}
	to, err := ParseStatus(strings.TrimSpace(status))
	if err != nil {
		return "", err
	}
	if who == nil || !Policy.RoleMay(who.Role, ActionUpdateStatus) {
		return "", apperror.Forbidden("Not authorized to update appointment status")
	}

	var from Status
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Policy.Evaluate(who, ActionUpdateStatus, a.Resource()).Allowed {
			return apperror.Forbidden("Not authorized to update this appointment")
		}
		from = a.Status
		if to == StatusCancelled {
			var reason *string
			if notes != nil {
				reason = optional(*notes)
			}
			return s.cancelLocked(ctx, who, a, reason)
		}
		if !CanTransition(from, to) {
			return apperror.Conflict(fmt.Sprintf("Cannot change status from %s to %s", from, to))
		}
		return s.repo.UpdateStatus(ctx, id, to, notes)
	})
	if err != nil {
		return "", apperror.Wrap(err, "Database error while updating appointment")
	}

	metrics.RecordTransition(ActionUpdateStatus, string(from), string(to))
	s.activity.Record(ctx, who.UserID, activity.ActionAppointmentStatusUpdated,
		fmt.Sprintf("Appointment ID: %d, New status: %s", id, to))
	return to, nil
}

// Reschedule moves an appointment to another free slot and puts it back in
// pending. Either everything changes or nothing does.
func (s *Service) Reschedule(ctx context.Context, who *auth.Principal, id, newSlotID int64) (*RescheduleResult, error) {
	if id <= 0 || newSlotID <= 0 {
		return nil, apperror.BadRequest("Missing required parameters")
	}

	var (
		from    Status
		newSlot *scheduling.Slot
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		denied := apperror.Forbidden("Not authorized to reschedule this appointment")
		if !Policy.Evaluate(who, ActionReschedule, a.Resource()).Allowed {
			return denied
		}
		if !CanReschedule(a.Status) {
			return ErrRescheduleCompleted
		}
		from = a.Status

		newSlot, err = s.slots.GetForUpdate(ctx, newSlotID)
		if errors.Is(err, scheduling.ErrSlotNotFound) {
			return ErrNewSlotNotAvailable
		}
		if err != nil {
			return err
		}
		// A doctor may only move patients within their own calendar.
		if who.Is(auth.RoleDoctor) && newSlot.DoctorUserID != who.UserID {
			return denied
		}
		booked, err := s.slots.HasActiveAppointment(ctx, newSlot.ID)
		if err != nil {
			return err
		}
		if booked {
			return ErrNewSlotBooked
		}
		if !newSlot.IsAvailable {
			return ErrNewSlotNotAvailable
		}
		if newSlot.Date.Before(s.today()) {
			return ErrReschedulePast
		}

		if err := s.repo.MoveToSlot(ctx, id, newSlot.ID); err != nil {
			return err
		}
		if err := s.slots.SetAvailable(ctx, newSlot.ID, false); err != nil {
			return err
		}
		if s.opts.ReleaseOldSlotOnReschedule && a.Status.Active() {
			return s.slots.SetAvailable(ctx, a.SlotID, true)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(err, "Database error while rescheduling appointment")
	}

	metrics.RecordTransition(ActionReschedule, string(from), string(StatusPending))
	s.activity.Record(ctx, who.UserID, activity.ActionAppointmentRescheduled, fmt.Sprintf("Appointment ID: %d", id))
	return &RescheduleResult{
		AppointmentID: id,
		NewSlotID:     newSlot.ID,
		NewDate:       newSlot.Date.Long(),
		NewTime:       newSlot.Range().String(),
	}, nil
}

// AddNotes replaces the doctor's notes on an appointment.
func (s *Service) AddNotes(ctx context.Context, who *auth.Principal, id int64, notes string) error {
	notes = strings.TrimSpace(notes)
	if id <= 0 || notes == "" {
		return apperror.BadRequest("Missing required parameters")
	}
	if who == nil || !Policy.RoleMay(who.Role, ActionAddNotes) {
		return apperror.Forbidden("Not authorized to add notes")
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Policy.Evaluate(who, ActionAddNotes, a.Resource()).Allowed {
			return apperror.Forbidden("Not authorized to add notes to this appointment")
		}
		return s.repo.SetNotes(ctx, id, notes)
	})
	if err != nil {
		return apperror.Wrap(err, "Database error while adding notes")
	}

	s.activity.Record(ctx, who.UserID, activity.ActionAppointmentNotesAdded, fmt.Sprintf("Appointment ID: %d", id))
	return nil
}

// -- Reads --

func (s *Service) GetDetails(ctx context.Context, who *auth.Principal, id int64) (*Details, error) {
	if id <= 0 {
		return nil, apperror.BadRequest("Missing appointment_id parameter")
	}
	d, err := s.repo.GetDetails(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error while fetching appointment details")
	}
	if !Policy.Evaluate(who, ActionView, d.Resource()).Allowed {
		return nil, apperror.Forbidden("Not authorized to view this appointment")
	}
	return d, nil
}

// NormalizeFilter trims f and rejects unknown statuses and date ranges.
func (s *Service) NormalizeFilter(f ListFilter) (ListFilter, error) {
	f.Status = strings.TrimSpace(f.Status)
	if f.Status != "" && f.Status != RangeAll {
		if _, err := ParseStatus(f.Status); err != nil {
			return f, err
		}
	}
	switch f.Range {
	case "", RangeAll, RangeToday, RangeWeek, RangeMonth, RangePast:
	default:
		return f, apperror.BadRequest("Invalid date filter")
	}
	f.Search = strings.TrimSpace(f.Search)
	return f, nil
}

// ListMine lists the caller's appointments: a patient's bookings, or the
// appointments in a doctor's slots narrowed by f.
func (s *Service) ListMine(ctx context.Context, who *auth.Principal, f ListFilter, limit, offset int) ([]*Listing, int, error) {
	var (
		items []*Listing
		total int
		err   error
	)
	switch {
	case who.Is(auth.RolePatient):
		items, total, err = s.repo.ListForPatient(ctx, who.UserID, limit, offset)
	case who.Is(auth.RoleDoctor):
		if f, err = s.NormalizeFilter(f); err != nil {
			return nil, 0, err
		}
		items, total, err = s.repo.ListForDoctor(ctx, who.UserID, f, s.today(), limit, offset)
	default:
		return nil, 0, apperror.Forbidden("Only patients and doctors have appointments")
	}
	if err != nil {
		return nil, 0, apperror.Wrap(err, "Database error")
	}
	return items, total, nil
}

func (s *Service) DoctorStats(ctx context.Context, who *auth.Principal) (*DoctorStats, error) {
	if !who.Is(auth.RoleDoctor) {
		return nil, apperror.Forbidden("Only doctors have appointment statistics")
	}
	st, err := s.repo.DoctorStats(ctx, who.UserID, s.today())
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}
	return st, nil
}
