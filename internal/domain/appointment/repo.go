package appointment

import (
	"context"

	"github.com/mediease/mediease/internal/domain/scheduling"
)

// Repository persists appointments. GetForUpdate row-locks the appointment
// and must run inside a transaction.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	GetDetails(ctx context.Context, id int64) (*Details, error)

	Cancel(ctx context.Context, id int64, reason *string, by int64) error
	UpdateStatus(ctx context.Context, id int64, status Status, notes *string) error
	MoveToSlot(ctx context.Context, id, slotID int64) error
	SetNotes(ctx context.Context, id int64, notes string) error

	ListForPatient(ctx context.Context, patientID int64, limit, offset int) ([]*Listing, int, error)
	ListForDoctor(ctx context.Context, doctorUserID int64, f ListFilter, today scheduling.Date, limit, offset int) ([]*Listing, int, error)
	DoctorStats(ctx context.Context, doctorUserID int64, today scheduling.Date) (*DoctorStats, error)
}

// SlotStore is the part of the slot store the booking engine drives.
type SlotStore interface {
	GetForUpdate(ctx context.Context, id int64) (*scheduling.Slot, error)
	HasActiveAppointment(ctx context.Context, slotID int64) (bool, error)
	SetAvailable(ctx context.Context, id int64, available bool) error
}
