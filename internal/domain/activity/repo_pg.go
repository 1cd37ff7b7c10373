package activity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediease/mediease/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Append(ctx context.Context, e *Entry) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO activity_logs (user_id, action, details, ip_address)
		VALUES ($1, $2, $3, $4)
		RETURNING log_id, created_at`,
		e.UserID, e.Action, e.Details, e.IPAddress).Scan(&e.ID, &e.CreatedAt)
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := ` WHERE 1=1`
	var args []any
	idx := 1
	if f.UserID != 0 {
		where += fmt.Sprintf(` AND l.user_id = $%d`, idx)
		args = append(args, f.UserID)
		idx++
	}
	if f.Action != "" {
		where += fmt.Sprintf(` AND l.action = $%d`, idx)
		args = append(args, f.Action)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM activity_logs l`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT l.log_id, l.user_id, COALESCE(u.name, ''), l.action, l.details, l.ip_address, l.created_at
		FROM activity_logs l
		LEFT JOIN users u ON u.user_id = l.user_id`+where+`
		ORDER BY l.created_at DESC, l.log_id DESC
		LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.UserID, &e.UserName, &e.Action, &e.Details, &e.IPAddress, &e.CreatedAt)
		return &e, err
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
