package scheduling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mediease/mediease/internal/domain/activity"
	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
	"github.com/mediease/mediease/internal/platform/db"
	"github.com/mediease/mediease/internal/platform/metrics"
)

const (
	// UpcomingDays is the window of a doctor's own slot listing.
	UpcomingDays = 30
	// DefaultScheduleDays is the span of a schedule with no end date.
	DefaultScheduleDays = 7
	// MaxScheduleDays bounds a single schedule request.
	MaxScheduleDays = 92
)

// DoctorResolver maps a doctor user to their doctor profile, creating the
// profile when it does not exist.
type DoctorResolver interface {
	EnsureDoctorID(ctx context.Context, userID int64) (int64, error)
}

type Service struct {
	slots    SlotRepository
	doctors  DoctorResolver
	tx       db.Transactor
	activity *activity.Recorder
	loc      *time.Location
	now      func() time.Time
}

func NewService(slots SlotRepository, doctors DoctorResolver, tx db.Transactor, rec *activity.Recorder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		slots:    slots,
		doctors:  doctors,
		tx:       tx,
		activity: rec,
		loc:      loc,
		now:      time.Now,
	}
}

// Today is the current calendar day in the clinic's time zone.
func (s *Service) Today() Date {
	return DateOf(s.now(), s.loc)
}

func (s *Service) doctorID(ctx context.Context, who *auth.Principal) (int64, error) {
	if !who.Is(auth.RoleDoctor) {
		return 0, ErrDoctorOnly
	}
	return s.doctors.EnsureDoctorID(ctx, who.UserID)
}

// -- Slot maintenance --

// CreateSlots cuts the requested window into slots and stores the ones the
// doctor does not already have. Repeating a request creates nothing.
func (s *Service) CreateSlots(ctx context.Context, who *auth.Principal, req GenerateRequest) (*CreateResult, error) {
	doctorID, err := s.doctorID(ctx, who)
	if err != nil {
		return nil, err
	}

	plan, err := Generate(req, s.Today())
	var ve *ValidationError
	if errors.As(err, &ve) {
		return nil, apperror.Invalid(ve.Error(), ve.Problems)
	}
	if err != nil {
		return nil, apperror.Wrap(err, "Error creating slots")
	}

	created := 0
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created = 0
		for _, r := range plan.Ranges {
			ok, err := s.slots.InsertIfAbsent(ctx, doctorID, plan.Date, r)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(err, "Error creating slots")
	}

	metrics.RecordSlotsGenerated(created)
	res := &CreateResult{Date: plan.Date, Requested: len(plan.Ranges), Created: created}
	if created == 0 {
		res.Message = "No new slots were created. They may already exist."
		return res, nil
	}
	res.Message = fmt.Sprintf("Created %d availability slots successfully!", created)
	s.activity.Record(ctx, who.UserID, activity.ActionSlotsCreated,
		fmt.Sprintf("Created %d slots for %s", created, plan.Date))
	return res, nil
}

// ListUpcoming returns the doctor's slots from today through the next
// UpcomingDays days, grouped by date.
func (s *Service) ListUpcoming(ctx context.Context, who *auth.Principal) ([]*DaySlots, error) {
	doctorID, err := s.doctorID(ctx, who)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	views, err := s.slots.ListForDoctor(ctx, doctorID, today, today.AddDays(UpcomingDays))
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}

	days := []*DaySlots{}
	for _, v := range views {
		if n := len(days); n == 0 || !days[n-1].Date.Equal(v.Date.Time) {
			days = append(days, &DaySlots{
				Date:          v.Date,
				DateFormatted: v.Date.Long(),
				DayName:       v.Date.DayName(),
			})
		}
		last := days[len(days)-1]
		last.Slots = append(last.Slots, v)
	}
	return days, nil
}

// ownSlot locks a slot and checks it belongs to doctorID. Foreign slots are
// reported as missing.
func (s *Service) ownSlot(ctx context.Context, doctorID, slotID int64) (*Slot, error) {
	slot, err := s.slots.GetForUpdate(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.DoctorID != doctorID {
		return nil, ErrSlotNotFound
	}
	return slot, nil
}

// DeleteSlot removes a slot that no appointment has ever referenced.
func (s *Service) DeleteSlot(ctx context.Context, who *auth.Principal, slotID int64) error {
	if slotID <= 0 {
		return apperror.BadRequest("Missing slot_id parameter")
	}
	doctorID, err := s.doctorID(ctx, who)
	if err != nil {
		return err
	}

	var slot *Slot
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if slot, err = s.ownSlot(ctx, doctorID, slotID); err != nil {
			return err
		}
		n, err := s.slots.CountAppointments(ctx, slotID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSlotHasAppointments
		}
		return s.slots.Delete(ctx, slotID)
	})
	if err != nil {
		return apperror.Wrap(err, "Error deleting slot")
	}

	s.activity.Record(ctx, who.UserID, activity.ActionSlotDeleted,
		fmt.Sprintf("Deleted slot %d (%s %s)", slotID, slot.Date, slot.Range()))
	return nil
}

// SetSlotAvailability flips a single slot. A slot held by an appointment
// cannot be re-enabled.
func (s *Service) SetSlotAvailability(ctx context.Context, who *auth.Principal, slotID int64, available bool) (string, error) {
	if slotID <= 0 {
		return "", apperror.BadRequest("Missing slot_id parameter")
	}
	doctorID, err := s.doctorID(ctx, who)
	if err != nil {
		return "", err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.ownSlot(ctx, doctorID, slotID); err != nil {
			return err
		}
		if available {
			booked, err := s.slots.HasActiveAppointment(ctx, slotID)
			if err != nil {
				return err
			}
			if booked {
				return ErrSlotBooked
			}
		}
		return s.slots.SetAvailable(ctx, slotID, available)
	})
	if err != nil {
		return "", apperror.Wrap(err, "Error updating slot")
	}

	msg := "Slot disabled successfully!"
	if available {
		msg = "Slot enabled successfully!"
	}
	s.activity.Record(ctx, who.UserID, activity.ActionSlotToggled,
		fmt.Sprintf("Slot %d is_available=%t", slotID, available))
	return msg, nil
}

// BulkAction applies enable, disable or delete_empty to all of the calling
// doctor's slots.
func (s *Service) BulkAction(ctx context.Context, who *auth.Principal, action string) (*BulkResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, apperror.BadRequest("Missing doctor ID or action")
	}
	if !who.Is(auth.RoleDoctor) {
		return nil, apperror.Forbidden("Forbidden")
	}
	doctorID, err := s.doctors.EnsureDoctorID(ctx, who.UserID)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Action: action}
	switch action {
	case "enable":
		res.Affected, err = s.setAllAvailable(ctx, doctorID, true)
		res.Message = "All slots enabled"
	case "disable":
		res.Affected, err = s.setAllAvailable(ctx, doctorID, false)
		res.Message = "All slots disabled"
	case "delete_empty":
		res.Affected, err = s.slots.DeleteEmpty(ctx, doctorID)
		res.Message = "Empty slots deleted"
	default:
		return nil, apperror.BadRequest("Unknown action")
	}
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}

	s.activity.Record(ctx, who.UserID, activity.ActionSlotsBulkUpdated,
		fmt.Sprintf("Bulk %s affected %d slots", action, res.Affected))
	return res, nil
}

// setAllAvailable waits for in-flight bookings on the doctor's slots before
// flipping the flag, so a slot booked meanwhile is never re-enabled.
func (s *Service) setAllAvailable(ctx context.Context, doctorID int64, available bool) (int64, error) {
	var n int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.slots.LockDoctorSlots(ctx, doctorID); err != nil {
			return err
		}
		var err error
		n, err = s.slots.SetAllAvailable(ctx, doctorID, available)
		return err
	})
	return n, err
}

// -- Availability queries --

func parseDay(raw string) (Date, error) {
	d, err := ParseDate(raw)
	if err != nil {
		return Date{}, apperror.BadRequest("Invalid date format")
	}
	return d, nil
}

// CheckDay reports how many bookable slots a doctor has on one date.
func (s *Service) CheckDay(ctx context.Context, doctorID int64, date string) (*DayAvailability, error) {
	if doctorID <= 0 || strings.TrimSpace(date) == "" {
		return nil, apperror.BadRequest("Missing required parameters")
	}
	day, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	if day.Before(s.Today()) {
		return &DayAvailability{Available: false, Message: "Cannot book appointments in the past"}, nil
	}

	list, err := s.slots.ListStatus(ctx, doctorID, day, day)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}
	free := 0
	for _, st := range list {
		if st.State() == StateAvailable {
			free++
		}
	}
	out := &DayAvailability{Available: free > 0, AvailableSlots: &free, Date: day.String(), Message: "No available slots"}
	if free > 0 {
		out.Message = "Slots available"
	}
	return out, nil
}

// DaySlots lists every slot of a doctor on one date with its state. Slots
// on past dates are never bookable.
func (s *Service) DaySlots(ctx context.Context, doctorID int64, date string) (*DayOptions, error) {
	if doctorID <= 0 || strings.TrimSpace(date) == "" {
		return nil, apperror.BadRequest("Missing required parameters")
	}
	day, err := parseDay(date)
	if err != nil {
		return nil, err
	}

	list, err := s.slots.ListStatus(ctx, doctorID, day, day)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}
	past := day.Before(s.Today())

	out := &DayOptions{Success: true, Date: day, Slots: make([]*SlotOption, 0, len(list))}
	for _, st := range list {
		state := st.State()
		opt := &SlotOption{
			SlotID:             st.ID,
			StartTime:          st.StartTime,
			EndTime:            st.EndTime,
			StartTimeFormatted: st.StartTime.Kitchen(),
			EndTimeFormatted:   st.EndTime.Kitchen(),
			TimeRange:          st.Range().String(),
			Status:             state,
			IsBookable:         state == StateAvailable && !past,
		}
		if opt.IsBookable {
			out.AvailableSlots++
		}
		out.Slots = append(out.Slots, opt)
	}
	out.TotalSlots = len(out.Slots)
	return out, nil
}

// canSeePatient reports whether who may see who holds a slot: the owning
// doctor, the patient themselves, or an admin.
func canSeePatient(who *auth.Principal, st *SlotStatus) bool {
	if who == nil || st.Occupant == nil {
		return false
	}
	switch who.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleDoctor:
		return who.UserID == st.DoctorUserID
	case auth.RolePatient:
		return who.UserID == st.Occupant.PatientUserID
	}
	return false
}

// SlotReport describes a single slot and the appointment holding it.
func (s *Service) SlotReport(ctx context.Context, who *auth.Principal, slotID int64) (*SlotReport, error) {
	if slotID <= 0 {
		return nil, apperror.BadRequest("Missing slot_id parameter")
	}
	st, err := s.slots.GetStatus(ctx, slotID)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}

	past := st.Date.Before(s.Today())
	state := st.State()
	rep := &SlotReport{
		SlotID:        st.ID,
		DoctorID:      st.DoctorID,
		Date:          st.Date,
		DateFormatted: st.Date.Long(),
		StartTime:     st.StartTime,
		EndTime:       st.EndTime,
		TimeRange:     st.Range().String(),
		Status:        state,
		IsBookable:    state == StateAvailable && !past,
		IsPast:        past,
	}
	if st.Occupant != nil {
		rep.Appointment = &SlotAppointment{AppointmentID: st.Occupant.AppointmentID, Status: st.Occupant.Status}
		if canSeePatient(who, st) {
			rep.Appointment.PatientName = st.Occupant.PatientName
		}
	}
	return rep, nil
}

// ScheduleRange resolves the optional bounds of a schedule request. start
// defaults to today and end to a week from start.
func (s *Service) ScheduleRange(start, end string) (Date, Date, error) {
	from := s.Today()
	if strings.TrimSpace(start) != "" {
		d, err := parseDay(start)
		if err != nil {
			return Date{}, Date{}, err
		}
		from = d
	}
	to := from.AddDays(DefaultScheduleDays - 1)
	if strings.TrimSpace(end) != "" {
		d, err := parseDay(end)
		if err != nil {
			return Date{}, Date{}, err
		}
		to = d
	}
	if to.Before(from) {
		return Date{}, Date{}, apperror.BadRequest("End date must not be before start date")
	}
	if to.Sub(from.Time) >= MaxScheduleDays*24*time.Hour {
		return Date{}, Date{}, apperror.BadRequest(fmt.Sprintf("Date range cannot exceed %d days", MaxScheduleDays))
	}
	return from, to, nil
}

// DoctorSchedule lays out a doctor's slots day by day with utilisation
// stats. Patient details are filled in only for callers allowed to see them.
func (s *Service) DoctorSchedule(ctx context.Context, who *auth.Principal, doctorID int64, start, end string) (*Schedule, error) {
	if doctorID <= 0 {
		return nil, apperror.BadRequest("Missing doctor_id parameter")
	}
	from, to, err := s.ScheduleRange(start, end)
	if err != nil {
		return nil, err
	}

	list, err := s.slots.ListStatus(ctx, doctorID, from, to)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}

	out := &Schedule{Success: true, DoctorID: doctorID, StartDate: from, EndDate: to, Days: []*ScheduleDay{}}
	for _, st := range list {
		if n := len(out.Days); n == 0 || !out.Days[n-1].Date.Equal(st.Date.Time) {
			out.Days = append(out.Days, &ScheduleDay{
				Date:          st.Date,
				DateFormatted: st.Date.Long(),
				DayName:       st.Date.DayName(),
			})
		}
		day := out.Days[len(out.Days)-1]

		state := st.State()
		slot := &ScheduleSlot{
			SlotID:    st.ID,
			StartTime: st.StartTime,
			EndTime:   st.EndTime,
			TimeRange: st.Range().String(),
			Status:    state,
		}
		if canSeePatient(who, st) {
			slot.Patient = &SchedulePatient{Name: st.Occupant.PatientName, Phone: st.Occupant.PatientPhone}
		}
		day.Slots = append(day.Slots, slot)

		out.Stats.TotalSlots++
		switch state {
		case StateAvailable:
			out.Stats.AvailableSlots++
		case StateBooked:
			out.Stats.BookedSlots++
		case StateUnavailable:
			out.Stats.UnavailableSlots++
		}
	}
	out.Stats.UtilizationRate = Utilization(out.Stats.BookedSlots, out.Stats.TotalSlots)
	return out, nil
}

// Utilization is booked/total as a percentage rounded to one decimal.
func Utilization(booked, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(booked)/float64(total)*1000) / 10
}
