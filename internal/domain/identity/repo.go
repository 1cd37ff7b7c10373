package identity

import (
	"context"
	"time"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	// Ensure returns the doctor id for userID, inserting a default profile
	// when there is none.
	Ensure(ctx context.Context, userID int64) (int64, error)
	GetByID(ctx context.Context, id int64, today time.Time) (*Doctor, error)
	GetByUserID(ctx context.Context, userID int64) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Search(ctx context.Context, f DoctorFilter, today time.Time, limit, offset int) ([]*Doctor, int, error)
	ListSpecializations(ctx context.Context) ([]string, error)
}
