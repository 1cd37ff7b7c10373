package admin

import (
	"time"

	"github.com/mediease/mediease/internal/domain/scheduling"
	"github.com/mediease/mediease/internal/platform/apperror"
)

const (
	RecentDoctorAppointments   = 10
	UpcomingDoctorAppointments = 10
	RecentUserAppointments     = 5
)

var (
	ErrInvalidDoctorID = apperror.BadRequest("Invalid doctor ID")
	ErrInvalidUserID   = apperror.BadRequest("Invalid user ID")
)

// AppointmentCounts break a doctor's appointments down by status.
type AppointmentCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	NoShow    int `json:"no_show"`
}

// AvailabilityCounts describe a doctor's slots. Booked slots hold an active
// appointment; bookable slots are in the future, enabled and free.
type AvailabilityCounts struct {
	TotalSlots     int `json:"total_slots"`
	AvailableSlots int `json:"available_slots"`
	BookedSlots    int `json:"booked_slots"`
	FutureSlots    int `json:"future_slots"`
	BookableSlots  int `json:"bookable_slots"`
}

type Performance struct {
	CompletionRate  float64 `json:"completion_rate"`
	NoShowRate      float64 `json:"no_show_rate"`
	UtilizationRate float64 `json:"utilization_rate"`
}

type DoctorStatistics struct {
	Appointments AppointmentCounts  `json:"appointments"`
	Availability AvailabilityCounts `json:"availability"`
	Performance  Performance        `json:"performance"`
}

// AppointmentRow is an appointment joined with its slot and both parties.
type AppointmentRow struct {
	ID             int64
	Status         string
	Symptoms       string
	Notes          string
	CreatedAt      time.Time
	SlotDate       scheduling.Date
	StartTime      scheduling.TimeOfDay
	EndTime        scheduling.TimeOfDay
	PatientName    string
	PatientEmail   string
	PatientPhone   string
	DoctorName     string
	Specialization string
}

func (r *AppointmentRow) timeRange() string {
	return scheduling.TimeRange{Start: r.StartTime, End: r.EndTime}.String()
}

// DoctorAppointment is one row of a doctor's recent or upcoming list.
type DoctorAppointment struct {
	AppointmentID int64           `json:"appointment_id"`
	PatientName   string          `json:"patient_name"`
	PatientEmail  string          `json:"patient_email"`
	PatientPhone  string          `json:"patient_phone"`
	Date          scheduling.Date `json:"date"`
	DateFormatted string          `json:"date_formatted"`
	Time          string          `json:"time"`
	Status        string          `json:"status"`
	Symptoms      string          `json:"symptoms"`
	Notes         string          `json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
}

// WeekDay summarises one day of a doctor's coming week.
type WeekDay struct {
	Date           scheduling.Date `json:"date"`
	DateFormatted  string          `json:"date_formatted"`
	DayName        string          `json:"day_name"`
	TotalSlots     int             `json:"total_slots"`
	BookedSlots    int             `json:"booked_slots"`
	AvailableSlots int             `json:"available_slots"`
	Utilization    float64         `json:"utilization"`
}

// DoctorReport is the admin view of one doctor.
type DoctorReport struct {
	DoctorID             int64                `json:"doctor_id"`
	UserID               int64                `json:"user_id"`
	Name                 string               `json:"name"`
	Email                string               `json:"email"`
	Phone                string               `json:"phone"`
	Address              string               `json:"address"`
	Specialization       string               `json:"specialization"`
	Qualifications       string               `json:"qualifications"`
	Experience           int                  `json:"experience"`
	Status               string               `json:"status"`
	CreatedAt            time.Time            `json:"created_at"`
	MemberSince          string               `json:"member_since"`
	Statistics           DoctorStatistics     `json:"statistics"`
	RecentAppointments   []*DoctorAppointment `json:"recent_appointments"`
	UpcomingAppointments []*DoctorAppointment `json:"upcoming_appointments"`
	WeeklySchedule       []*WeekDay           `json:"weekly_schedule"`
}

type DoctorUserStats struct {
	TotalAppointments     int     `json:"total_appointments"`
	CompletedAppointments int     `json:"completed_appointments"`
	AvailableSlots        int     `json:"available_slots"`
	CompletionRate        float64 `json:"completion_rate"`
}

type DoctorInfo struct {
	DoctorID       int64           `json:"doctor_id"`
	Specialization string          `json:"specialization"`
	Qualifications string          `json:"qualifications"`
	Experience     int             `json:"experience"`
	Stats          DoctorUserStats `json:"stats"`
}

type PatientStats struct {
	TotalAppointments     int              `json:"total_appointments"`
	CompletedAppointments int              `json:"completed_appointments"`
	PendingAppointments   int              `json:"pending_appointments"`
	CancelledAppointments int              `json:"cancelled_appointments"`
	LastAppointmentDate   *scheduling.Date `json:"last_appointment_date"`
}

type PatientInfo struct {
	Stats PatientStats `json:"stats"`
}

// RecentAppointment is seen from the user's side: OtherParty is the doctor
// for a patient and the patient for a doctor.
type RecentAppointment struct {
	AppointmentID  int64           `json:"appointment_id"`
	Status         string          `json:"status"`
	Date           scheduling.Date `json:"date"`
	DateFormatted  string          `json:"date_formatted"`
	Time           string          `json:"time"`
	OtherParty     string          `json:"other_party"`
	Specialization *string         `json:"specialization"`
	Phone          *string         `json:"phone"`
	CreatedAt      time.Time       `json:"created_at"`
}

// UserReport is the admin view of one user.
type UserReport struct {
	UserID             int64                `json:"user_id"`
	Name               string               `json:"name"`
	Email              string               `json:"email"`
	Role               string               `json:"role"`
	Phone              string               `json:"phone"`
	Address            string               `json:"address"`
	CreatedAt          time.Time            `json:"created_at"`
	Status             string               `json:"status"`
	AppointmentCount   int                  `json:"appointment_count"`
	DoctorInfo         *DoctorInfo          `json:"doctor_info"`
	PatientInfo        *PatientInfo         `json:"patient_info"`
	RecentAppointments []*RecentAppointment `json:"recent_appointments"`
}

// SystemStats are the counters on the admin dashboard.
type SystemStats struct {
	TotalUsers           int            `json:"total_users"`
	UsersByRole          map[string]int `json:"users_by_role"`
	TotalAppointments    int            `json:"total_appointments"`
	AppointmentsByStatus map[string]int `json:"appointments_by_status"`
	TodayAppointments    int            `json:"today_appointments"`
	AvailableFutureSlots int            `json:"available_future_slots"`
}
