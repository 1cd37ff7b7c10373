package appointment

import (
	"testing"

	"github.com/mediease/mediease/internal/platform/auth"
)

func TestPolicy(t *testing.T) {
	var (
		owner     = &auth.Principal{UserID: 10, Role: auth.RolePatient}
		stranger  = &auth.Principal{UserID: 11, Role: auth.RolePatient}
		doctor    = &auth.Principal{UserID: 20, Role: auth.RoleDoctor}
		colleague = &auth.Principal{UserID: 21, Role: auth.RoleDoctor}
		admin     = &auth.Principal{UserID: 1, Role: auth.RoleAdmin}
	)
	res := auth.Resource{PatientUserID: 10, DoctorUserID: 20}

	tests := []struct {
		action string
		who    *auth.Principal
		want   bool
	}{
		{ActionView, owner, true},
		{ActionView, stranger, false},
		{ActionView, doctor, true},
		{ActionView, colleague, false},
		{ActionView, admin, true},

		{ActionCancel, owner, true},
		{ActionCancel, stranger, false},
		{ActionCancel, doctor, true},
		{ActionCancel, colleague, false},
		{ActionCancel, admin, true},

		{ActionUpdateStatus, owner, false},
		{ActionUpdateStatus, doctor, true},
		{ActionUpdateStatus, colleague, false},
		{ActionUpdateStatus, admin, true},

		{ActionReschedule, owner, true},
		{ActionReschedule, stranger, false},
		{ActionReschedule, doctor, true},
		{ActionReschedule, admin, true},

		{ActionAddNotes, owner, false},
		{ActionAddNotes, doctor, true},
		{ActionAddNotes, colleague, false},
		{ActionAddNotes, admin, true},
	}
	for _, tt := range tests {
		t.Run(tt.action+"/"+string(tt.who.Role), func(t *testing.T) {
			if got := Policy.Evaluate(tt.who, tt.action, res).Allowed; got != tt.want {
				t.Errorf("user %d: Evaluate(%s) = %v, want %v", tt.who.UserID, tt.action, got, tt.want)
			}
		})
	}
}

func TestPolicy_OnlyPatientsBook(t *testing.T) {
	if !Policy.Evaluate(&auth.Principal{UserID: 10, Role: auth.RolePatient}, ActionBook, auth.Resource{}).Allowed {
		t.Error("expected patient to book")
	}
	for _, r := range []auth.Role{auth.RoleDoctor, auth.RoleAdmin} {
		if Policy.Evaluate(&auth.Principal{UserID: 1, Role: r}, ActionBook, auth.Resource{}).Allowed {
			t.Errorf("expected %s not to book", r)
		}
	}
}
