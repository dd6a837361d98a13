package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinika/clinika/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, result_id, order_id, test_id, action, actor,
	previous_payload, new_payload, recorded_at`

func (r *repoPG) scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ResultID, &e.OrderID, &e.TestID, &e.Action, &e.Actor,
		&e.PreviousPayload, &e.NewPayload, &e.RecordedAt)
	return &e, err
}

func (r *repoPG) Record(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO result_audit (id, result_id, order_id, test_id, action, actor,
			previous_payload, new_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ResultID, e.OrderID, e.TestID, e.Action, e.Actor,
		e.PreviousPayload, e.NewPayload)
	return err
}

func (r *repoPG) ListByResult(ctx context.Context, resultID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return r.list(ctx, `result_id`, resultID, limit, offset)
}

func (r *repoPG) ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return r.list(ctx, `order_id`, orderID, limit, offset)
}

func (r *repoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM result_audit WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM result_audit WHERE `+column+` = $1
		 ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
