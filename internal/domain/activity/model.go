package activity

import "time"

// Actions written to the activity log.
const (
	ActionUserRegistered           = "user_registered"
	ActionUserLogin                = "user_login"
	ActionUserLogout               = "user_logout"
	ActionProfileUpdated           = "profile_updated"
	ActionSlotsCreated             = "slots_created"
	ActionSlotDeleted              = "slot_deleted"
	ActionSlotToggled              = "slot_toggled"
	ActionSlotsBulkUpdated         = "slots_bulk_updated"
	ActionAppointmentBooked        = "appointment_booked"
	ActionAppointmentCancelled     = "appointment_cancelled"
	ActionAppointmentStatusUpdated = "appointment_status_updated"
	ActionAppointmentRescheduled   = "appointment_rescheduled"
	ActionAppointmentNotesAdded    = "appointment_notes_added"
)

// Entry is one append-only activity log row. UserID is nil for actions with
// no authenticated actor.
type Entry struct {
	ID        int64     `json:"log_id"`
	UserID    *int64    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows an activity listing. Zero values match everything.
type Filter struct {
	UserID int64
	Action string
}
