package admin

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediease/mediease/internal/domain/scheduling"
	"github.com/mediease/mediease/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const rowCols = `a.appointment_id, a.status, a.symptoms, a.notes, a.created_at,
	s.slot_date, s.start_time, s.end_time,
	pu.name, pu.email, pu.phone, du.name, d.specialization`

const rowFrom = ` FROM appointments a
	JOIN availability_slots s ON s.slot_id = a.slot_id
	JOIN doctors d ON d.doctor_id = s.doctor_id
	JOIN users pu ON pu.user_id = a.patient_id
	JOIN users du ON du.user_id = d.user_id`

func (r *repoPG) rows(ctx context.Context, where string, args ...any) ([]*AppointmentRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rowCols+rowFrom+where, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*AppointmentRow, error) {
		var a AppointmentRow
		err := row.Scan(&a.ID, &a.Status, &a.Symptoms, &a.Notes, &a.CreatedAt,
			&a.SlotDate, &a.StartTime, &a.EndTime,
			&a.PatientName, &a.PatientEmail, &a.PatientPhone, &a.DoctorName, &a.Specialization)
		return &a, err
	})
}

func (r *repoPG) AppointmentCounts(ctx context.Context, doctorID int64) (*AppointmentCounts, error) {
	var c AppointmentCounts
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE a.status = 'pending'),
			COUNT(*) FILTER (WHERE a.status = 'confirmed'),
			COUNT(*) FILTER (WHERE a.status = 'completed'),
			COUNT(*) FILTER (WHERE a.status = 'cancelled'),
			COUNT(*) FILTER (WHERE a.status = 'no-show')
		FROM appointments a
		JOIN availability_slots s ON s.slot_id = a.slot_id
		WHERE s.doctor_id = $1`, doctorID).
		Scan(&c.Total, &c.Pending, &c.Confirmed, &c.Completed, &c.Cancelled, &c.NoShow)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) AvailabilityCounts(ctx context.Context, doctorID int64, today scheduling.Date) (*AvailabilityCounts, error) {
	var c AvailabilityCounts
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE s.is_available),
			COUNT(*) FILTER (WHERE act.slot_id IS NOT NULL),
			COUNT(*) FILTER (WHERE s.slot_date >= $2),
			COUNT(*) FILTER (WHERE s.slot_date >= $2 AND s.is_available AND act.slot_id IS NULL)
		FROM availability_slots s
		LEFT JOIN appointments act ON act.slot_id = s.slot_id AND act.status <> 'cancelled'
		WHERE s.doctor_id = $1`, doctorID, today).
		Scan(&c.TotalSlots, &c.AvailableSlots, &c.BookedSlots, &c.FutureSlots, &c.BookableSlots)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) RecentForDoctor(ctx context.Context, doctorID int64, limit int) ([]*AppointmentRow, error) {
	return r.rows(ctx, `
		WHERE s.doctor_id = $1
		ORDER BY s.slot_date DESC, s.start_time DESC
		LIMIT $2`, doctorID, limit)
}

func (r *repoPG) UpcomingForDoctor(ctx context.Context, doctorID int64, today scheduling.Date, limit int) ([]*AppointmentRow, error) {
	return r.rows(ctx, `
		WHERE s.doctor_id = $1 AND s.slot_date >= $2 AND a.status NOT IN ('cancelled', 'completed')
		ORDER BY s.slot_date, s.start_time
		LIMIT $3`, doctorID, today, limit)
}

func (r *repoPG) PatientStats(ctx context.Context, patientID int64) (*PatientStats, error) {
	var st PatientStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE a.status = 'completed'),
			COUNT(*) FILTER (WHERE a.status = 'pending'),
			COUNT(*) FILTER (WHERE a.status = 'cancelled'),
			MAX(s.slot_date)
		FROM appointments a
		JOIN availability_slots s ON s.slot_id = a.slot_id
		WHERE a.patient_id = $1`, patientID).
		Scan(&st.TotalAppointments, &st.CompletedAppointments, &st.PendingAppointments,
			&st.CancelledAppointments, &st.LastAppointmentDate)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *repoPG) RecentForPatient(ctx context.Context, patientID int64, limit int) ([]*AppointmentRow, error) {
	return r.rows(ctx, `
		WHERE a.patient_id = $1
		ORDER BY s.slot_date DESC, s.start_time DESC
		LIMIT $2`, patientID, limit)
}

func (r *repoPG) countBy(ctx context.Context, query string, args ...any) (map[string]int, int, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make(map[string]int)
	total := 0
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, 0, err
		}
		out[key] = n
		total += n
	}
	return out, total, rows.Err()
}

func (r *repoPG) SystemStats(ctx context.Context, today scheduling.Date) (*SystemStats, error) {
	var (
		st  SystemStats
		err error
	)
	if st.UsersByRole, st.TotalUsers, err = r.countBy(ctx,
		`SELECT role, COUNT(*) FROM users GROUP BY role`); err != nil {
		return nil, err
	}
	if st.AppointmentsByStatus, st.TotalAppointments, err = r.countBy(ctx,
		`SELECT status, COUNT(*) FROM appointments GROUP BY status`); err != nil {
		return nil, err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM appointments a
				JOIN availability_slots s ON s.slot_id = a.slot_id
				WHERE s.slot_date = $1 AND a.status <> 'cancelled'),
			(SELECT COUNT(*) FROM availability_slots s
				WHERE s.slot_date >= $1 AND s.is_available)`, today).
		Scan(&st.TodayAppointments, &st.AvailableFutureSlots)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
