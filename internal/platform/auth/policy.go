package auth

import (
	"fmt"

	"github.com/mediease/mediease/internal/platform/metrics"
)

// Ownership is the relation a caller must have to a resource for a rule to
// apply.
type Ownership int

const (
	// AnyOwner grants the action on every resource.
	AnyOwner Ownership = iota
	// OwnPatient requires the caller to be the resource's patient.
	OwnPatient
	// OwnDoctor requires the caller to be the doctor who owns the resource.
	OwnDoctor
)

func (o Ownership) String() string {
	switch o {
	case AnyOwner:
		return "any"
	case OwnPatient:
		return "own patient"
	case OwnDoctor:
		return "own doctor"
	}
	return fmt.Sprintf("ownership(%d)", int(o))
}

// Rule grants Action to Role under the Scope ownership predicate.
type Rule struct {
	Action string
	Role   Role
	Scope  Ownership
}

// Resource carries the ownership facts the policy needs about the target.
type Resource struct {
	PatientUserID int64
	DoctorUserID  int64
}

// Decision is the outcome of evaluating a policy.
type Decision struct {
	Allowed bool
	Reason  string
}

// Policy is a role × action × ownership table. Anything not granted by a
// rule is denied.
type Policy struct {
	rules map[string]map[Role]Ownership
}

func NewPolicy(rules []Rule) *Policy {
	p := &Policy{rules: make(map[string]map[Role]Ownership)}
	for _, r := range rules {
		if p.rules[r.Action] == nil {
			p.rules[r.Action] = make(map[Role]Ownership)
		}
		p.rules[r.Action][r.Role] = r.Scope
	}
	return p
}

// RoleMay reports whether role has any rule for action, ignoring ownership.
func (p *Policy) RoleMay(role Role, action string) bool {
	_, ok := p.rules[action][role]
	return ok
}

// Evaluate decides whether who may perform action on res.
func (p *Policy) Evaluate(who *Principal, action string, res Resource) Decision {
	d := p.evaluate(who, action, res)
	metrics.RecordAuthorizationDecision(action, d.Allowed)
	return d
}

func (p *Policy) evaluate(who *Principal, action string, res Resource) Decision {
	if who == nil {
		return Decision{Reason: "unauthenticated"}
	}
	scope, ok := p.rules[action][who.Role]
	if !ok {
		return Decision{Reason: fmt.Sprintf("role %s may not %s", who.Role, action)}
	}

	switch scope {
	case AnyOwner:
		return Decision{Allowed: true, Reason: "granted to " + string(who.Role)}
	case OwnPatient:
		if res.PatientUserID != 0 && res.PatientUserID == who.UserID {
			return Decision{Allowed: true, Reason: "caller is the patient"}
		}
		return Decision{Reason: "caller is not the patient"}
	case OwnDoctor:
		if res.DoctorUserID != 0 && res.DoctorUserID == who.UserID {
			return Decision{Allowed: true, Reason: "caller is the doctor"}
		}
		return Decision{Reason: "caller is not the doctor"}
	}
	return Decision{Reason: "unknown ownership scope"}
}
