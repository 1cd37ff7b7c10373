package appointment

import (
	"time"

	"github.com/mediease/mediease/internal/domain/scheduling"
	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
)

var (
	ErrAppointmentNotFound = apperror.NotFound("Appointment not found")

	ErrSlotAlreadyBooked = apperror.Conflict("Slot already booked")
	ErrSlotNotAvailable  = apperror.Conflict("Slot not available")
	ErrPastBooking       = apperror.Conflict("Cannot book appointments in the past")

	ErrAlreadyCancelled = apperror.Conflict("Appointment is already cancelled")
	ErrCancelCompleted  = apperror.Conflict("Cannot cancel completed appointment")

	ErrRescheduleCompleted = apperror.Conflict("Cannot reschedule completed appointment")
	ErrNewSlotNotAvailable = apperror.Conflict("New slot not available")
	ErrNewSlotBooked       = apperror.Conflict("New slot already booked")
	ErrReschedulePast      = apperror.Conflict("Cannot reschedule to past date")
)

// Appointment is a patient's booking of one slot.
type Appointment struct {
	ID                 int64      `json:"appointment_id"`
	PatientID          int64      `json:"patient_id"`
	SlotID             int64      `json:"slot_id"`
	Status             Status     `json:"status"`
	Symptoms           string     `json:"symptoms"`
	Notes              string     `json:"notes"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *int64     `json:"cancelled_by,omitempty"`

	DoctorID     int64                `json:"doctor_id"`
	DoctorUserID int64                `json:"-"`
	SlotDate     scheduling.Date      `json:"slot_date"`
	StartTime    scheduling.TimeOfDay `json:"start_time"`
	EndTime      scheduling.TimeOfDay `json:"end_time"`
}

// Resource returns the ownership facts the policy checks.
func (a *Appointment) Resource() auth.Resource {
	return auth.Resource{PatientUserID: a.PatientID, DoctorUserID: a.DoctorUserID}
}

func (a *Appointment) TimeRange() scheduling.TimeRange {
	return scheduling.TimeRange{Start: a.StartTime, End: a.EndTime}
}

// Listing is an appointment with the people involved, as shown in lists
// and exports.
type Listing struct {
	Appointment
	PatientName    string `json:"patient_name"`
	PatientEmail   string `json:"patient_email"`
	PatientPhone   string `json:"patient_phone"`
	DoctorName     string `json:"doctor_name"`
	Specialization string `json:"specialization"`
}

// Details is the full view of one appointment.
type Details struct {
	Listing
	DoctorEmail     string
	Specializations []string
}

// ListFilter narrows a doctor's appointment list. Empty fields and "all"
// match everything.
type ListFilter struct {
	Status string
	Range  string
	Search string
}

// Ranges accepted by ListFilter.Range.
const (
	RangeAll   = "all"
	RangeToday = "today"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangePast  = "past"
)

// DoctorStats are the counters on a doctor's dashboard.
type DoctorStats struct {
	Total          int `json:"total"`
	Today          int `json:"today"`
	Pending        int `json:"pending"`
	CompletedMonth int `json:"completed_month"`
}

type BookRequest struct {
	SlotID   int64  `json:"slot_id" form:"slot_id"`
	Symptoms string `json:"symptoms" form:"symptoms"`
	Notes    string `json:"notes" form:"notes"`
}

// BookingConfirmation is returned to the patient after a successful booking.
type BookingConfirmation struct {
	AppointmentID int64  `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	DoctorName    string `json:"doctor_name"`
}

// RescheduleResult describes the slot an appointment moved to.
type RescheduleResult struct {
	AppointmentID int64  `json:"appointment_id"`
	NewSlotID     int64  `json:"new_slot_id"`
	NewDate       string `json:"new_date"`
	NewTime       string `json:"new_time"`
}

type DoctorView struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Specializations []string `json:"specializations"`
}

type PatientView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// DetailsView is the wire shape of Details.
type DetailsView struct {
	AppointmentID      int64                `json:"appointment_id"`
	Date               scheduling.Date      `json:"date"`
	DateFormatted      string               `json:"date_formatted"`
	StartTime          scheduling.TimeOfDay `json:"start_time"`
	EndTime            scheduling.TimeOfDay `json:"end_time"`
	TimeFormatted      string               `json:"time_formatted"`
	Status             Status               `json:"status"`
	Symptoms           string               `json:"symptoms"`
	Notes              string               `json:"notes"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	CreatedAtFormatted string               `json:"created_at_formatted"`
	Doctor             DoctorView           `json:"doctor"`
	Patient            PatientView          `json:"patient"`
}

// View renders d with timestamps in loc.
func (d *Details) View(loc *time.Location) *DetailsView {
	specs := d.Specializations
	if specs == nil {
		specs = []string{}
	}
	return &DetailsView{
		AppointmentID:      d.ID,
		Date:               d.SlotDate,
		DateFormatted:      d.SlotDate.Long(),
		StartTime:          d.StartTime,
		EndTime:            d.EndTime,
		TimeFormatted:      d.TimeRange().String(),
		Status:             d.Status,
		Symptoms:           d.Symptoms,
		Notes:              d.Notes,
		CancellationReason: d.CancellationReason,
		CreatedAt:          d.CreatedAt,
		CreatedAtFormatted: d.CreatedAt.In(loc).Format("January 2, 2006 3:04 PM"),
		Doctor:             DoctorView{Name: d.DoctorName, Email: d.DoctorEmail, Specializations: specs},
		Patient:            PatientView{Name: d.PatientName, Email: d.PatientEmail, Phone: d.PatientPhone},
	}
}
