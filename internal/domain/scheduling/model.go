package scheduling

import (
	"time"

	"github.com/mediease/mediease/internal/platform/apperror"
)

var (
	ErrSlotNotFound        = apperror.NotFound("Slot not found")
	ErrSlotHasAppointments = apperror.Conflict("Cannot delete slot with existing appointments")
	ErrSlotBooked          = apperror.Conflict("Cannot enable a booked slot")
	ErrDoctorOnly          = apperror.Forbidden("Only doctors can manage availability")
)

// SlotState is how a slot looks to someone trying to book it.
type SlotState string

const (
	StateAvailable   SlotState = "available"
	StateBooked      SlotState = "booked"
	StateUnavailable SlotState = "unavailable"
)

// Slot is one bookable interval on a doctor's calendar.
type Slot struct {
	ID           int64     `json:"slot_id"`
	DoctorID     int64     `json:"doctor_id"`
	DoctorUserID int64     `json:"-"`
	DoctorName   string    `json:"doctor_name,omitempty"`
	Date         Date      `json:"slot_date"`
	StartTime    TimeOfDay `json:"start_time"`
	EndTime      TimeOfDay `json:"end_time"`
	IsAvailable  bool      `json:"is_available"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Slot) Range() TimeRange {
	return TimeRange{Start: s.StartTime, End: s.EndTime}
}

// Occupant is the non-cancelled appointment holding a slot.
type Occupant struct {
	AppointmentID int64
	Status        string
	PatientUserID int64
	PatientName   string
	PatientPhone  string
}

// SlotStatus joins a slot with its occupant, if any.
type SlotStatus struct {
	Slot
	Occupant *Occupant
}

// State reports booked before unavailable: a booked slot is also flagged
// unavailable, and the stronger reason wins.
func (s *SlotStatus) State() SlotState {
	switch {
	case s.Occupant != nil:
		return StateBooked
	case !s.IsAvailable:
		return StateUnavailable
	}
	return StateAvailable
}

// SlotView is a row of the doctor's own slot listing.
type SlotView struct {
	Slot
	TimeRange        string `json:"time_range"`
	AppointmentCount int    `json:"appointment_count"`
	PatientNames     string `json:"patient_names"`
}

// DaySlots groups a doctor's listing by date.
type DaySlots struct {
	Date          Date        `json:"date"`
	DateFormatted string      `json:"date_formatted"`
	DayName       string      `json:"day_name"`
	Slots         []*SlotView `json:"slots"`
}

// CreateResult reports what a generate request persisted.
type CreateResult struct {
	Date      Date   `json:"date"`
	Requested int    `json:"requested"`
	Created   int    `json:"created"`
	Message   string `json:"message"`
}

// BulkResult reports a bulk slot action.
type BulkResult struct {
	Action   string `json:"action"`
	Affected int64  `json:"affected"`
	Message  string `json:"message"`
}

// DayAvailability answers "does this doctor have a free slot on this day".
type DayAvailability struct {
	Available      bool   `json:"available"`
	AvailableSlots *int   `json:"available_slots,omitempty"`
	Date           string `json:"date,omitempty"`
	Message        string `json:"message"`
}

// SlotOption is one entry of a day's slot picker.
type SlotOption struct {
	SlotID             int64     `json:"slot_id"`
	StartTime          TimeOfDay `json:"start_time"`
	EndTime            TimeOfDay `json:"end_time"`
	StartTimeFormatted string    `json:"start_time_formatted"`
	EndTimeFormatted   string    `json:"end_time_formatted"`
	TimeRange          string    `json:"time_range"`
	Status             SlotState `json:"status"`
	IsBookable         bool      `json:"is_bookable"`
}

type DayOptions struct {
	Success        bool          `json:"success"`
	Date           Date          `json:"date"`
	Slots          []*SlotOption `json:"slots"`
	TotalSlots     int           `json:"total_slots"`
	AvailableSlots int           `json:"available_slots"`
}

type SlotAppointment struct {
	AppointmentID int64  `json:"appointment_id"`
	Status        string `json:"status"`
	PatientName   string `json:"patient_name,omitempty"`
}

// SlotReport is the detailed status of a single slot.
type SlotReport struct {
	SlotID        int64            `json:"slot_id"`
	DoctorID      int64            `json:"doctor_id"`
	Date          Date             `json:"date"`
	DateFormatted string           `json:"date_formatted"`
	StartTime     TimeOfDay        `json:"start_time"`
	EndTime       TimeOfDay        `json:"end_time"`
	TimeRange     string           `json:"time_range"`
	Status        SlotState        `json:"status"`
	IsBookable    bool             `json:"is_bookable"`
	IsPast        bool             `json:"is_past"`
	Appointment   *SlotAppointment `json:"appointment,omitempty"`
}

type SchedulePatient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ScheduleSlot struct {
	SlotID    int64            `json:"slot_id"`
	StartTime TimeOfDay        `json:"start_time"`
	EndTime   TimeOfDay        `json:"end_time"`
	TimeRange string           `json:"time_range"`
	Status    SlotState        `json:"status"`
	Patient   *SchedulePatient `json:"patient,omitempty"`
}

type ScheduleDay struct {
	Date          Date            `json:"date"`
	DateFormatted string          `json:"date_formatted"`
	DayName       string          `json:"day_name"`
	Slots         []*ScheduleSlot `json:"slots"`
}

type ScheduleStats struct {
	TotalSlots       int     `json:"total_slots"`
	AvailableSlots   int     `json:"available_slots"`
	BookedSlots      int     `json:"booked_slots"`
	UnavailableSlots int     `json:"unavailable_slots"`
	UtilizationRate  float64 `json:"utilization_rate"`
}

// Schedule is a doctor's calendar over a date range. Only days that have
// slots are listed.
type Schedule struct {
	Success   bool           `json:"success"`
	DoctorID  int64          `json:"doctor_id"`
	StartDate Date           `json:"start_date"`
	EndDate   Date           `json:"end_date"`
	Days      []*ScheduleDay `json:"schedule"`
	Stats     ScheduleStats  `json:"stats"`
}
