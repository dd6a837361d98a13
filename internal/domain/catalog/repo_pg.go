package catalog

import (
	"context"
	"encoding/json"

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

const tdCols = `id, code, name, active, schema, created_at, updated_at`

func (r *repoPG) scanTD(row pgx.Row) (*TestDefinition, error) {
	var td TestDefinition
	var schema []byte
	err := row.Scan(&td.ID, &td.Code, &td.Name, &td.Active, &schema, &td.CreatedAt, &td.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schema, &td.Schema); err != nil {
		return nil, err
	}
	return &td, nil
}

func (r *repoPG) Create(ctx context.Context, td *TestDefinition) error {
	td.ID = uuid.New()
	schema, err := json.Marshal(td.Schema)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO test_definition (id, code, name, active, schema)
		VALUES ($1, $2, $3, $4, $5)`,
		td.ID, td.Code, td.Name, td.Active, schema)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*TestDefinition, error) {
	return r.scanTD(r.conn(ctx).QueryRow(ctx, `SELECT `+tdCols+` FROM test_definition WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*TestDefinition, error) {
	return r.scanTD(r.conn(ctx).QueryRow(ctx, `SELECT `+tdCols+` FROM test_definition WHERE code = $1`, code))
}

func (r *repoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*TestDefinition, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+tdCols+` FROM test_definition WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]*TestDefinition, len(ids))
	for rows.Next() {
		td, err := r.scanTD(rows)
		if err != nil {
			return nil, err
		}
		out[td.ID] = td
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, td *TestDefinition) error {
	schema, err := json.Marshal(td.Schema)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE test_definition SET code=$2, name=$3, active=$4, schema=$5, updated_at=NOW()
		WHERE id = $1`,
		td.ID, td.Code, td.Name, td.Active, schema)
	return err
}

func (r *repoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE test_definition SET active=$2, updated_at=NOW() WHERE id = $1`, id, active)
	return err
}

func (r *repoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*TestDefinition, int, error) {
	where := ``
	if activeOnly {
		where = ` WHERE active`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM test_definition`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tdCols+` FROM test_definition`+where+` ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TestDefinition
	for rows.Next() {
		td, err := r.scanTD(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, td)
	}
	return items, total, rows.Err()
}
