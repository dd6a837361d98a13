package lab

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinika/clinika/internal/platform/db"
)

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderCols = `id, patient_id, visit_id, ordered_by, status, notes, created_at, updated_at`

func (r *orderRepoPG) scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PatientID, &o.VisitID, &o.OrderedBy, &o.Status,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_order (id, patient_id, visit_id, ordered_by, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.PatientID, o.VisitID, o.OrderedBy, o.Status, o.Notes)
	return err
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM lab_order WHERE id = $1`, id))
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_order SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *orderRepoPG) List(ctx context.Context, patientID *uuid.UUID, status string, limit, offset int) ([]*Order, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if patientID != nil {
		args = append(args, *patientID)
		where += ` AND patient_id = $1`
	}
	if status != "" {
		args = append(args, status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM lab_order`+where+
			` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

// =========== Result Repository ===========

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const resultCols = `id, order_id, test_id, payload, verified_by, verified_at, created_at, updated_at`

func (r *resultRepoPG) scanResult(row pgx.Row) (*Result, error) {
	var res Result
	var payload []byte
	err := row.Scan(&res.ID, &res.OrderID, &res.TestID, &payload,
		&res.VerifiedBy, &res.VerifiedAt, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &res.Payload); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *resultRepoPG) Create(ctx context.Context, res *Result) error {
	res.ID = uuid.New()
	payload, err := json.Marshal(res.Payload)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_result (id, order_id, test_id, payload)
		VALUES ($1, $2, $3, $4)`,
		res.ID, res.OrderID, res.TestID, payload)
	return err
}

func (r *resultRepoPG) GetByOrderAndTest(ctx context.Context, orderID, testID uuid.UUID) (*Result, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+resultCols+` FROM lab_result WHERE order_id = $1 AND test_id = $2`, orderID, testID))
}

func (r *resultRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Result, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+resultCols+` FROM lab_result WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Result
	for rows.Next() {
		res, err := r.scanResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, res)
	}
	return items, rows.Err()
}

func (r *resultRepoPG) UpsertPayload(ctx context.Context, orderID, testID uuid.UUID, payload Node) (*Result, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return r.scanResult(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_result (id, order_id, test_id, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, test_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
		RETURNING `+resultCols,
		uuid.New(), orderID, testID, raw))
}

func (r *resultRepoPG) ReplaceValues(ctx context.Context, resultID uuid.UUID, values []*ResultValue) error {
	if _, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM lab_result_value WHERE result_id = $1`, resultID); err != nil {
		return err
	}
	for _, v := range values {
		v.ID = uuid.New()
		v.ResultID = resultID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO lab_result_value
				(id, result_id, parameter_path, label, value, unit,
				 reference_text, reference_min, reference_max)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			v.ID, v.ResultID, v.ParameterPath, v.Label, v.Value, v.Unit,
			v.ReferenceText, v.ReferenceMin, v.ReferenceMax)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *resultRepoPG) ValuesByResult(ctx context.Context, resultID uuid.UUID) ([]*ResultValue, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, result_id, parameter_path, label, value, unit,
		       reference_text, reference_min, reference_max, created_at
		FROM lab_result_value WHERE result_id = $1 ORDER BY parameter_path`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ResultValue
	for rows.Next() {
		var v ResultValue
		if err := rows.Scan(&v.ID, &v.ResultID, &v.ParameterPath, &v.Label, &v.Value,
			&v.Unit, &v.ReferenceText, &v.ReferenceMin, &v.ReferenceMax, &v.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}

func (r *resultRepoPG) VerifyByOrder(ctx context.Context, orderID uuid.UUID, verifiedBy string, verifiedAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_result SET verified_by=$2, verified_at=$3, updated_at=NOW()
		WHERE order_id = $1`,
		orderID, verifiedBy, verifiedAt)
	return err
}
