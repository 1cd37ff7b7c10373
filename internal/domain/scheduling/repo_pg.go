package scheduling

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediease/mediease/internal/platform/db"
)

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const slotCols = `s.slot_id, s.doctor_id, d.user_id, du.name, s.slot_date, s.start_time, s.end_time, s.is_available, s.created_at`

const slotFrom = ` FROM availability_slots s
	JOIN doctors d ON d.doctor_id = s.doctor_id
	JOIN users du ON du.user_id = d.user_id`

func slotDest(s *Slot) []any {
	return []any{&s.ID, &s.DoctorID, &s.DoctorUserID, &s.DoctorName, &s.Date, &s.StartTime, &s.EndTime, &s.IsAvailable, &s.CreatedAt}
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(slotDest(&s)...)
	if db.IsNoRows(err) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *slotRepoPG) InsertIfAbsent(ctx context.Context, doctorID int64, date Date, tr TimeRange) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_slots (doctor_id, slot_date, start_time, end_time, is_available)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT ON CONSTRAINT availability_slots_unique DO NOTHING`,
		doctorID, date, tr.Start, tr.End)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *slotRepoPG) GetByID(ctx context.Context, id int64) (*Slot, error) {
	return scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+slotFrom+` WHERE s.slot_id = $1`, id))
}

func (r *slotRepoPG) GetForUpdate(ctx context.Context, id int64) (*Slot, error) {
	return scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+slotFrom+` WHERE s.slot_id = $1 FOR UPDATE OF s`, id))
}

func (r *slotRepoPG) SetAvailable(ctx context.Context, id int64, available bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE availability_slots SET is_available = $2 WHERE slot_id = $1`, id, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *slotRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_slots WHERE slot_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *slotRepoPG) CountAppointments(ctx context.Context, slotID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE slot_id = $1`, slotID).Scan(&n)
	return n, err
}

func (r *slotRepoPG) HasActiveAppointment(ctx context.Context, slotID int64) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE slot_id = $1 AND status <> 'cancelled')`,
		slotID).Scan(&ok)
	return ok, err
}

func (r *slotRepoPG) ListForDoctor(ctx context.Context, doctorID int64, from, to Date) ([]*SlotView, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+slotCols+`,
			COUNT(a.appointment_id),
			COALESCE(string_agg(u.name, ', ' ORDER BY a.appointment_id), '')`+slotFrom+`
		LEFT JOIN appointments a ON a.slot_id = s.slot_id AND a.status <> 'cancelled'
		LEFT JOIN users u ON u.user_id = a.patient_id
		WHERE s.doctor_id = $1 AND s.slot_date BETWEEN $2 AND $3
		GROUP BY s.slot_id, d.user_id, du.name
		ORDER BY s.slot_date, s.start_time`,
		doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*SlotView, error) {
		var v SlotView
		dest := append(slotDest(&v.Slot), &v.AppointmentCount, &v.PatientNames)
		if err := row.Scan(dest...); err != nil {
			return nil, err
		}
		v.TimeRange = v.Range().String()
		return &v, nil
	})
}

func (r *slotRepoPG) LockDoctorSlots(ctx context.Context, doctorID int64) error {
	rows, err := r.conn(ctx).Query(ctx, `SELECT slot_id FROM availability_slots WHERE doctor_id = $1 FOR UPDATE`, doctorID)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func (r *slotRepoPG) SetAllAvailable(ctx context.Context, doctorID int64, available bool) (int64, error) {
	// Enabling skips slots that are held by an appointment. Run it after
	// LockDoctorSlots in the same transaction so the NOT EXISTS check sees
	// bookings committed while the locks were awaited.
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_slots s SET is_available = $2
		WHERE s.doctor_id = $1
		  AND ($2 = FALSE OR NOT EXISTS (
			SELECT 1 FROM appointments a WHERE a.slot_id = s.slot_id AND a.status <> 'cancelled'))`,
		doctorID, available)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *slotRepoPG) DeleteEmpty(ctx context.Context, doctorID int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM availability_slots s
		WHERE s.doctor_id = $1
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.slot_id = s.slot_id)`,
		doctorID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const statusQuery = `SELECT ` + slotCols + `, a.appointment_id, a.status, a.patient_id, u.name, u.phone` + slotFrom + `
	LEFT JOIN appointments a ON a.slot_id = s.slot_id AND a.status <> 'cancelled'
	LEFT JOIN users u ON u.user_id = a.patient_id`

func scanStatus(row pgx.Row) (*SlotStatus, error) {
	var (
		st        SlotStatus
		apptID    *int64
		status    *string
		patientID *int64
		name      *string
		phone     *string
	)
	dest := append(slotDest(&st.Slot), &apptID, &status, &patientID, &name, &phone)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if apptID != nil {
		st.Occupant = &Occupant{AppointmentID: *apptID}
		if status != nil {
			st.Occupant.Status = *status
		}
		if patientID != nil {
			st.Occupant.PatientUserID = *patientID
		}
		if name != nil {
			st.Occupant.PatientName = *name
		}
		if phone != nil {
			st.Occupant.PatientPhone = *phone
		}
	}
	return &st, nil
}

func (r *slotRepoPG) ListStatus(ctx context.Context, doctorID int64, from, to Date) ([]*SlotStatus, error) {
	rows, err := r.conn(ctx).Query(ctx, statusQuery+`
		WHERE s.doctor_id = $1 AND s.slot_date BETWEEN $2 AND $3
		ORDER BY s.slot_date, s.start_time`,
		doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*SlotStatus, error) {
		return scanStatus(row)
	})
}

func (r *slotRepoPG) GetStatus(ctx context.Context, slotID int64) (*SlotStatus, error) {
	st, err := scanStatus(r.conn(ctx).QueryRow(ctx, statusQuery+` WHERE s.slot_id = $1`, slotID))
	if db.IsNoRows(err) {
		return nil, ErrSlotNotFound
	}
	return st, err
}
