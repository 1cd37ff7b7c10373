package appointment

import "github.com/mediease/mediease/internal/platform/auth"

const (
	ActionBook         = "book"
	ActionView         = "view"
	ActionCancel       = "cancel"
	ActionUpdateStatus = "update_status"
	ActionReschedule   = "reschedule"
	ActionAddNotes     = "add_notes"
)

// Policy is who may do what to an appointment. A doctor's ownership is the
// ownership of the slot the appointment sits in.
var Policy = auth.NewPolicy([]auth.Rule{
	{Action: ActionBook, Role: auth.RolePatient, Scope: auth.AnyOwner},

	{Action: ActionView, Role: auth.RolePatient, Scope: auth.OwnPatient},
	{Action: ActionView, Role: auth.RoleDoctor, Scope: auth.OwnDoctor},
	{Action: ActionView, Role: auth.RoleAdmin, Scope: auth.AnyOwner},

	{Action: ActionCancel, Role: auth.RolePatient, Scope: auth.OwnPatient},
	{Action: ActionCancel, Role: auth.RoleDoctor, Scope: auth.OwnDoctor},
	{Action: ActionCancel, Role: auth.RoleAdmin, Scope: auth.AnyOwner},

	{Action: ActionUpdateStatus, Role: auth.RoleDoctor, Scope: auth.OwnDoctor},
	{Action: ActionUpdateStatus, Role: auth.RoleAdmin, Scope: auth.AnyOwner},

	{Action: ActionReschedule, Role: auth.RolePatient, Scope: auth.OwnPatient},
	{Action: ActionReschedule, Role: auth.RoleDoctor, Scope: auth.OwnDoctor},
	{Action: ActionReschedule, Role: auth.RoleAdmin, Scope: auth.AnyOwner},

	{Action: ActionAddNotes, Role: auth.RoleDoctor, Scope: auth.OwnDoctor},
	{Action: ActionAddNotes, Role: auth.RoleAdmin, Scope: auth.AnyOwner},
})
