package scheduling

import "context"

// SlotRepository is the slot store. GetForUpdate must be called inside a
// transaction; it row-locks the slot until commit.
type SlotRepository interface {
	InsertIfAbsent(ctx context.Context, doctorID int64, date Date, r TimeRange) (bool, error)
	GetByID(ctx context.Context, id int64) (*Slot, error)
	GetForUpdate(ctx context.Context, id int64) (*Slot, error)
	SetAvailable(ctx context.Context, id int64, available bool) error
	Delete(ctx context.Context, id int64) error
	CountAppointments(ctx context.Context, slotID int64) (int, error)
	HasActiveAppointment(ctx context.Context, slotID int64) (bool, error)

	ListForDoctor(ctx context.Context, doctorID int64, from, to Date) ([]*SlotView, error)
	// LockDoctorSlots row-locks every slot of the doctor until the
	// surrounding transaction ends.
	LockDoctorSlots(ctx context.Context, doctorID int64) error
	SetAllAvailable(ctx context.Context, doctorID int64, available bool) (int64, error)
	DeleteEmpty(ctx context.Context, doctorID int64) (int64, error)

	ListStatus(ctx context.Context, doctorID int64, from, to Date) ([]*SlotStatus, error)
	GetStatus(ctx context.Context, slotID int64) (*SlotStatus, error)
}
