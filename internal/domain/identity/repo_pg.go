package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediease/mediease/internal/platform/db"
)

const emailConstraint = "users_email_key"

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const userCols = `user_id, name, email, password_hash, role, phone, address, status, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.Address, &u.Status, &u.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, role, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING user_id, status, created_at`,
		u.Name, u.Email, u.PasswordHash, u.Role, u.Phone, u.Address).Scan(&u.ID, &u.Status, &u.CreatedAt)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrEmailTaken
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE user_id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET name = $2, email = $3, phone = $4, address = $5
		WHERE user_id = $1`,
		u.ID, u.Name, u.Email, u.Phone, u.Address)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrEmailTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, id int64, hash string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE users SET password_hash = $2 WHERE user_id = $1`, id, hash)
	return err
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `d.doctor_id, d.user_id, u.name, u.email, u.phone, u.address,
	d.specialization, d.qualifications, d.experience`

// doctorCounts needs the clinic's today as $1.
const doctorCounts = `,
	(SELECT COUNT(*) FROM appointments a
		JOIN availability_slots s ON s.slot_id = a.slot_id
		WHERE s.doctor_id = d.doctor_id) AS total_appointments,
	(SELECT COUNT(*) FROM availability_slots s
		WHERE s.doctor_id = d.doctor_id AND s.is_available AND s.slot_date >= $1) AS available_slots`

func scanDoctor(row pgx.Row, withCounts bool) (*Doctor, error) {
	var d Doctor
	dest := []any{&d.ID, &d.UserID, &d.Name, &d.Email, &d.Phone, &d.Address,
		&d.Specialization, &d.Qualifications, &d.Experience}
	if withCounts {
		dest = append(dest, &d.TotalAppointments, &d.AvailableSlots)
	}
	err := row.Scan(dest...)
	if db.IsNoRows(err) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	if d.Specialization == "" {
		d.Specialization = DefaultSpecialization
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (user_id, specialization, qualifications, experience)
		VALUES ($1, $2, $3, $4)
		RETURNING doctor_id`,
		d.UserID, d.Specialization, d.Qualifications, d.Experience).Scan(&d.ID)
	if err != nil {
		return err
	}
	return r.linkSpecialization(ctx, d.ID, d.Specialization)
}

func (r *doctorRepoPG) Ensure(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO doctors (user_id, specialization, qualifications, experience)
			VALUES ($1, $2, '', 0)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING doctor_id
		)
		SELECT doctor_id FROM ins
		UNION ALL
		SELECT doctor_id FROM doctors WHERE user_id = $1
		LIMIT 1`, userID, DefaultSpecialization).Scan(&id)
	return id, err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64, today time.Time) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `
		SELECT `+doctorCols+doctorCounts+`
		FROM doctors d JOIN users u ON u.user_id = d.user_id
		WHERE d.doctor_id = $2 AND u.role = 'doctor'`, today, id), true)
	if err != nil {
		return nil, err
	}
	if d.Specializations, err = r.specializationsOf(ctx, d.ID); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID int64) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `
		SELECT `+doctorCols+`
		FROM doctors d JOIN users u ON u.user_id = d.user_id
		WHERE d.user_id = $1`, userID), false)
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET specialization = $2, qualifications = $3, experience = $4
		WHERE doctor_id = $1`,
		d.ID, d.Specialization, d.Qualifications, d.Experience)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return r.linkSpecialization(ctx, d.ID, d.Specialization)
}

// doctorWhere builds the directory filter with placeholders numbered from
// first.
func doctorWhere(f DoctorFilter, first int) (string, []any) {
	where := ` WHERE u.role = 'doctor' AND u.status = 'active'`
	var args []any
	idx := first
	if f.Search != "" {
		where += fmt.Sprintf(` AND (u.name ILIKE $%d OR d.specialization ILIKE $%d)`, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	if f.Specialization != "" {
		where += fmt.Sprintf(` AND d.specialization = $%d`, idx)
		args = append(args, f.Specialization)
	}
	return where, args
}

func (r *doctorRepoPG) Search(ctx context.Context, f DoctorFilter, today time.Time, limit, offset int) ([]*Doctor, int, error) {
	countWhere, countArgs := doctorWhere(f, 1)
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctors d JOIN users u ON u.user_id = d.user_id`+countWhere,
		countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	where, filterArgs := doctorWhere(f, 2)
	args := append([]any{today}, filterArgs...)
	idx := len(args) + 1
	query := `SELECT ` + doctorCols + doctorCounts + `
		FROM doctors d JOIN users u ON u.user_id = d.user_id` + where +
		fmt.Sprintf(` ORDER BY u.name LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows, true)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) ListSpecializations(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT name FROM specializations
		UNION
		SELECT specialization FROM doctors
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *doctorRepoPG) specializationsOf(ctx context.Context, doctorID int64) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.name
		FROM specializations s
		JOIN doctor_specializations ds ON ds.specialization_id = s.specialization_id
		WHERE ds.doctor_id = $1
		ORDER BY s.name`, doctorID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *doctorRepoPG) linkSpecialization(ctx context.Context, doctorID int64, name string) error {
	if name == "" {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		WITH spec AS (
			INSERT INTO specializations (name) VALUES ($2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING specialization_id
		)
		INSERT INTO doctor_specializations (doctor_id, specialization_id)
		SELECT $1, specialization_id FROM spec
		ON CONFLICT DO NOTHING`, doctorID, name)
	return err
}
