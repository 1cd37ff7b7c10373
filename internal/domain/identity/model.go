package identity

import (
	"strings"
	"time"

	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
)

// DefaultSpecialization is given to doctor profiles created on first use.
const DefaultSpecialization = "General Medicine"

var (
	ErrUserNotFound       = apperror.NotFound("User not found")
	ErrDoctorNotFound     = apperror.NotFound("Doctor not found")
	ErrEmailTaken         = apperror.Conflict("Email already registered")
	ErrInvalidCredentials = apperror.Unauthorized("Invalid email or password")
	ErrAccountDisabled    = apperror.Forbidden("Account is not active")
)

type User struct {
	ID           int64     `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) Active() bool { return u.Status == "" || u.Status == "active" }

// Doctor is a doctor profile joined with its user row. The counters are
// only filled by directory queries.
type Doctor struct {
	ID                int64    `json:"doctor_id"`
	UserID            int64    `json:"user_id"`
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	Phone             string   `json:"phone"`
	Address           string   `json:"address,omitempty"`
	Specialization    string   `json:"specialization"`
	Qualifications    string   `json:"qualifications"`
	Experience        int      `json:"experience"`
	Specializations   []string `json:"specializations,omitempty"`
	TotalAppointments int      `json:"total_appointments"`
	AvailableSlots    int      `json:"available_slots"`
}

type DoctorFilter struct {
	Search         string
	Specialization string
}

type RegisterRequest struct {
	Name            string `json:"name" validate:"required,max=255"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"required,signup_role"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	Address         string `json:"address" validate:"max=1000"`
	Specialization  string `json:"specialization" validate:"required_if=Role doctor,max=255"`
	Qualifications  string `json:"qualifications" validate:"required_if=Role doctor"`
	Experience      int    `json:"experience" validate:"min=0,max=80"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate replaces the caller's contact details. Password is only
// changed when non-empty; the doctor fields are ignored for other roles.
type ProfileUpdate struct {
	Name           string `json:"name" validate:"required,max=255"`
	Email          string `json:"email" validate:"required,email,max=255"`
	Phone          string `json:"phone" validate:"omitempty,phone"`
	Address        string `json:"address" validate:"max=1000"`
	NewPassword    string `json:"new_password" validate:"omitempty,min=6,max=72"`
	Specialization string `json:"specialization" validate:"max=255"`
	Qualifications string `json:"qualifications"`
	Experience     int    `json:"experience" validate:"min=0,max=80"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
