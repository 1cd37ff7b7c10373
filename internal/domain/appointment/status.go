package appointment

import "github.com/mediease/mediease/internal/platform/apperror"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no-show"
)

var ErrInvalidStatus = apperror.BadRequest("Invalid status")

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// Active reports whether the appointment still holds its slot.
func (s Status) Active() bool { return s != StatusCancelled }

// transitions lists the targets reachable through a status update. Moving
// back to pending from cancelled only happens through a reschedule.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPending: true, StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true,
	},
	StatusConfirmed: {
		StatusPending: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true,
	},
	StatusNoShow: {
		StatusPending: true, StatusCancelled: true,
	},
}

// CanTransition reports whether a status update may move from to to.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// CanReschedule reports whether an appointment in status s may move to
// another slot. Completed visits are final.
func CanReschedule(s Status) bool {
	return s != StatusCompleted
}
