package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mediease/mediease/internal/domain/activity"
	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
	"github.com/mediease/mediease/internal/platform/db"
)

type Service struct {
	users    UserRepository
	doctors  DoctorRepository
	tx       db.Transactor
	sessions auth.SessionStore
	tokens   *auth.TokenIssuer
	activity *activity.Recorder
	loc      *time.Location
	now      func() time.Time
}

func NewService(users UserRepository, doctors DoctorRepository, tx db.Transactor,
	sessions auth.SessionStore, tokens *auth.TokenIssuer, rec *activity.Recorder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		users:    users,
		doctors:  doctors,
		tx:       tx,
		sessions: sessions,
		tokens:   tokens,
		activity: rec,
		loc:      loc,
		now:      time.Now,
	}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -- Accounts --

// Register creates a patient or doctor account and signs it in. Doctor
// accounts get their profile row in the same transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	role, err := auth.ParseRole(req.Role)
	if err != nil || role == auth.RoleAdmin {
		return nil, apperror.BadRequest("role must be patient or doctor")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.Internal("Registration failed", err)
	}

	u := &User{
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         role,
		Phone:        strings.TrimSpace(req.Phone),
		Address:      strings.TrimSpace(req.Address),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if role != auth.RoleDoctor {
			return nil
		}
		return s.doctors.Create(ctx, &Doctor{
			UserID:         u.ID,
			Specialization: strings.TrimSpace(req.Specialization),
			Qualifications: strings.TrimSpace(req.Qualifications),
			Experience:     req.Experience,
		})
	})
	if err != nil {
		return nil, apperror.Wrap(err, "Registration failed")
	}

	s.activity.Record(ctx, u.ID, activity.ActionUserRegistered, fmt.Sprintf("Registered as %s", role))
	return s.startSession(ctx, u)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperror.Wrap(err, "Database error. Please try again later.")
	}

	ok, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return nil, apperror.Internal("Database error. Please try again later.", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !u.Active() {
		return nil, ErrAccountDisabled
	}

	s.activity.Record(ctx, u.ID, activity.ActionUserLogin, "User logged in")
	return s.startSession(ctx, u)
}

func (s *Service) startSession(ctx context.Context, u *User) (*AuthResult, error) {
	sess := auth.NewSession(u.ID, u.Role, u.Name, u.Email, s.now(), s.tokens.TTL())
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, apperror.Internal("Could not start session", err)
	}
	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, apperror.Internal("Could not start session", err)
	}
	return &AuthResult{User: u, Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// Logout drops the caller's server-side session, which invalidates the token.
func (s *Service) Logout(ctx context.Context, who *auth.Principal) error {
	if who == nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, who.SessionID); err != nil {
		return apperror.Internal("Could not end session", err)
	}
	s.activity.Record(ctx, who.UserID, activity.ActionUserLogout, "User logged out")
	return nil
}

// Me returns the caller and, for doctors, their profile.
func (s *Service) Me(ctx context.Context, who *auth.Principal) (*User, *Doctor, error) {
	return s.Account(ctx, who.UserID)
}

// Account loads a user and, for doctors, their profile. A doctor without a
// profile row yet comes back with a nil Doctor.
func (s *Service) Account(ctx context.Context, userID int64) (*User, *Doctor, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "Database error")
	}
	if u.Role != auth.RoleDoctor {
		return u, nil, nil
	}
	d, err := s.doctors.GetByUserID(ctx, u.ID)
	if errors.Is(err, ErrDoctorNotFound) {
		return u, nil, nil
	}
	if err != nil {
		return nil, nil, apperror.Wrap(err, "Database error")
	}
	return u, d, nil
}

// UpdateProfile rewrites the caller's details. Doctors also update their
// profile, which is created if it does not exist yet.
func (s *Service) UpdateProfile(ctx context.Context, who *auth.Principal, req ProfileUpdate) (*User, error) {
	var hash string
	if req.NewPassword != "" {
		h, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			return nil, apperror.Internal("Error updating profile", err)
		}
		hash = h
	}

	u := &User{
		ID:      who.UserID,
		Name:    strings.TrimSpace(req.Name),
		Email:   normalizeEmail(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Update(ctx, u); err != nil {
			return err
		}
		if hash != "" {
			if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
				return err
			}
		}
		if who.Role != auth.RoleDoctor {
			return nil
		}
		id, err := s.doctors.Ensure(ctx, u.ID)
		if err != nil {
			return err
		}
		spec := strings.TrimSpace(req.Specialization)
		if spec == "" {
			spec = DefaultSpecialization
		}
		return s.doctors.Update(ctx, &Doctor{
			ID:             id,
			UserID:         u.ID,
			Specialization: spec,
			Qualifications: strings.TrimSpace(req.Qualifications),
			Experience:     req.Experience,
		})
	})
	if err != nil {
		return nil, apperror.Wrap(err, "Error updating profile")
	}

	s.activity.Record(ctx, who.UserID, activity.ActionProfileUpdated, "Profile updated")
	return s.users.GetByID(ctx, who.UserID)
}

// -- Doctors --

// EnsureDoctorID returns the doctor profile id of a doctor user, creating
// a General Medicine profile the first time.
func (s *Service) EnsureDoctorID(ctx context.Context, userID int64) (int64, error) {
	id, err := s.doctors.Ensure(ctx, userID)
	if err != nil {
		return 0, apperror.Wrap(err, "Could not load doctor profile")
	}
	return id, nil
}

func (s *Service) SearchDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	f.Search = strings.TrimSpace(f.Search)
	items, total, err := s.doctors.Search(ctx, f, s.today(), limit, offset)
	if err != nil {
		return nil, 0, apperror.Wrap(err, "Database error")
	}
	return items, total, nil
}

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	if id <= 0 {
		return nil, apperror.BadRequest("Invalid doctor ID")
	}
	d, err := s.doctors.GetByID(ctx, id, s.today())
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}
	return d, nil
}

func (s *Service) ListSpecializations(ctx context.Context) ([]string, error) {
	names, err := s.doctors.ListSpecializations(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}
	return names, nil
}
