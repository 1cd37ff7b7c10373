package appointment

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediease/mediease/internal/domain/scheduling"
	"github.com/mediease/mediease/internal/platform/db"
)

const activeSlotIndex = "appointments_one_active_per_slot"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `a.appointment_id, a.patient_id, a.slot_id, a.status, a.symptoms, a.notes,
	a.cancellation_reason, a.created_at, a.updated_at, a.cancelled_at, a.cancelled_by,
	s.doctor_id, d.user_id, s.slot_date, s.start_time, s.end_time`

const apptFrom = ` FROM appointments a
	JOIN availability_slots s ON s.slot_id = a.slot_id
	JOIN doctors d ON d.doctor_id = s.doctor_id`

const listingCols = apptCols + `, pu.name, pu.email, pu.phone, du.name, d.specialization`

const listingFrom = apptFrom + `
	JOIN users pu ON pu.user_id = a.patient_id
	JOIN users du ON du.user_id = d.user_id`

func apptDest(a *Appointment) []any {
	return []any{
		&a.ID, &a.PatientID, &a.SlotID, &a.Status, &a.Symptoms, &a.Notes,
		&a.CancellationReason, &a.CreatedAt, &a.UpdatedAt, &a.CancelledAt, &a.CancelledBy,
		&a.DoctorID, &a.DoctorUserID, &a.SlotDate, &a.StartTime, &a.EndTime,
	}
}

func listingDest(l *Listing) []any {
	return append(apptDest(&l.Appointment), &l.PatientName, &l.PatientEmail, &l.PatientPhone, &l.DoctorName, &l.Specialization)
}

func collectListings(rows pgx.Rows) ([]*Listing, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Listing, error) {
		var l Listing
		if err := row.Scan(listingDest(&l)...); err != nil {
			return nil, err
		}
		return &l, nil
	})
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, slot_id, symptoms, notes, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING appointment_id, created_at, updated_at`,
		a.PatientID, a.SlotID, a.Symptoms, a.Notes, a.Status).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return ErrSlotAlreadyBooked
	}
	return err
}

func (r *repoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	var a Appointment
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+`
		WHERE a.appointment_id = $1 FOR UPDATE OF a`, id).Scan(apptDest(&a)...)
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) GetDetails(ctx context.Context, id int64) (*Details, error) {
	var d Details
	dest := append(listingDest(&d.Listing), &d.DoctorEmail, &d.Specializations)
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+listingCols+`, du.email,
		COALESCE((
			SELECT array_agg(sp.name::text ORDER BY sp.name)
			FROM doctor_specializations ds
			JOIN specializations sp ON sp.specialization_id = ds.specialization_id
			WHERE ds.doctor_id = d.doctor_id
		), ARRAY[]::text[])`+listingFrom+`
		WHERE a.appointment_id = $1`, id).Scan(dest...)
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *repoPG) Cancel(ctx context.Context, id int64, reason *string, by int64) error {
	return r.exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancellation_reason = $2, cancelled_at = now(), cancelled_by = $3, updated_at = now()
		WHERE appointment_id = $1`, id, reason, by)
}

func (r *repoPG) UpdateStatus(ctx context.Context, id int64, status Status, notes *string) error {
	return r.exec(ctx, `
		UPDATE appointments SET status = $2, notes = COALESCE($3, notes), updated_at = now()
		WHERE appointment_id = $1`, id, status, notes)
}

func (r *repoPG) MoveToSlot(ctx context.Context, id, slotID int64) error {
	err := r.exec(ctx, `
		UPDATE appointments
		SET slot_id = $2, status = 'pending', cancellation_reason = NULL, cancelled_at = NULL,
			cancelled_by = NULL, updated_at = now()
		WHERE appointment_id = $1`, id, slotID)
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return ErrNewSlotBooked
	}
	return err
}

func (r *repoPG) SetNotes(ctx context.Context, id int64, notes string) error {
	return r.exec(ctx, `UPDATE appointments SET notes = $2, updated_at = now() WHERE appointment_id = $1`, id, notes)
}

func (r *repoPG) ListForPatient(ctx context.Context, patientID int64, limit, offset int) ([]*Listing, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+listingCols+listingFrom+`
		WHERE a.patient_id = $1
		ORDER BY s.slot_date DESC, s.start_time DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectListings(rows)
	return items, total, err
}

// doctorWhere builds the filter of a doctor's list. The doctor's user id is
// always $1.
func doctorWhere(doctorUserID int64, f ListFilter, today scheduling.Date) (string, []any) {
	args := []any{doctorUserID}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	conds := []string{"d.user_id = $1"}

	if f.Status != "" && f.Status != RangeAll {
		conds = append(conds, "a.status = "+arg(f.Status))
	}
	switch f.Range {
	case RangeToday:
		conds = append(conds, "s.slot_date = "+arg(today))
	case RangeWeek:
		p := arg(today)
		conds = append(conds, "s.slot_date BETWEEN "+p+" AND "+p+"::date + 7")
	case RangeMonth:
		p := arg(today)
		conds = append(conds, "s.slot_date BETWEEN "+p+" AND "+p+"::date + 30")
	case RangePast:
		conds = append(conds, "s.slot_date < "+arg(today))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(pu.name ILIKE "+p+" OR pu.email ILIKE "+p+" OR pu.phone ILIKE "+p+")")
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) ListForDoctor(ctx context.Context, doctorUserID int64, f ListFilter, today scheduling.Date, limit, offset int) ([]*Listing, int, error) {
	where, args := doctorWhere(doctorUserID, f, today)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+listingFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+listingCols+listingFrom+where+`
		ORDER BY s.slot_date DESC, s.start_time DESC
		LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectListings(rows)
	return items, total, err
}

func (r *repoPG) DoctorStats(ctx context.Context, doctorUserID int64, today scheduling.Date) (*DoctorStats, error) {
	var st DoctorStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE s.slot_date = $2),
			COUNT(*) FILTER (WHERE a.status = 'pending'),
			COUNT(*) FILTER (WHERE a.status = 'completed'
				AND date_trunc('month', s.slot_date) = date_trunc('month', $2::date))`+apptFrom+`
		WHERE d.user_id = $1`, doctorUserID, today).
		Scan(&st.Total, &st.Today, &st.Pending, &st.CompletedMonth)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
