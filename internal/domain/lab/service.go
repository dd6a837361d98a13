package lab

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinika/clinika/internal/domain/audit"
	"github.com/clinika/clinika/internal/domain/catalog"
)

// TxRunner runs fn inside one database transaction; repositories invoked
// through the derived context join it. In production this is db.RunInTx
// bound to the pool.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	orders  OrderRepository
	results ResultRepository
	tests   catalog.Repository
	audit   audit.Repository
	runTx   TxRunner
	log     zerolog.Logger
}

func NewService(orders OrderRepository, results ResultRepository, tests catalog.Repository, auditRepo audit.Repository, runTx TxRunner, log zerolog.Logger) *Service {
	return &Service{
		orders:  orders,
		results: results,
		tests:   tests,
		audit:   auditRepo,
		runTx:   runTx,
		log:     log,
	}
}

// CreateOrder creates an order for the given tests. Every selected test
// immediately gets an empty Result, so the ingestion path always finds a
// row to replace.
func (s *Service) CreateOrder(ctx context.Context, o *Order, testIDs []uuid.UUID) error {
	if o.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if o.OrderedBy == "" {
		return fmt.Errorf("ordered_by is required")
	}
	if len(testIDs) == 0 {
		return fmt.Errorf("at least one test is required")
	}
	seen := make(map[uuid.UUID]bool, len(testIDs))
	for _, id := range testIDs {
		if seen[id] {
			return fmt.Errorf("duplicate test %s", id)
		}
		seen[id] = true
	}

	defs, err := s.tests.GetByIDs(ctx, testIDs)
	if err != nil {
		return err
	}
	for _, id := range testIDs {
		td, ok := defs[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTest, id)
		}
		if !td.Active {
			return fmt.Errorf("test %s is inactive", td.Code)
		}
	}

	o.Status = StatusOrdered
	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		for _, testID := range testIDs {
			res := &Result{OrderID: o.ID, TestID: testID, Payload: Object(nil)}
			if err := s.results.Create(ctx, res); err != nil {
				return err
			}
			o.Results = append(o.Results, res)
		}
		return nil
	})
}

// GetOrder loads an order with its results and their flattened values.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := s.results.ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		values, err := s.results.ValuesByResult(ctx, res.ID)
		if err != nil {
			return nil, err
		}
		res.Values = values
	}
	o.Results = results
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, patientID *uuid.UUID, status string, limit, offset int) ([]*Order, int, error) {
	if status != "" {
		if _, ok := statusTransitions[status]; !ok {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
	}
	return s.orders.List(ctx, patientID, status, limit, offset)
}

// UpdateStatus is the explicit staff status change: a validated enum write
// with no side effects on child results.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == status {
		return nil
	}
	if err := ValidateTransition(o.Status, status); err != nil {
		return err
	}
	return s.orders.UpdateStatus(ctx, orderID, status)
}

// SubmitResults ingests one submission covering zero or more tests of the
// order. Entries are keyed by test id as decoded from the wire; every
// addressed test must be attached to the order. The whole submission is
// one transaction: per test the payload is replaced wholesale, the value
// projection regenerated and an audit record appended.
func (s *Service) SubmitResults(ctx context.Context, orderID uuid.UUID, entries map[string]Node, actor string) error {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return err
	}

	existing, err := s.results.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	attached := make(map[uuid.UUID]*Result, len(existing))
	for _, res := range existing {
		attached[res.TestID] = res
	}

	// Validate the whole envelope before touching anything.
	type submission struct {
		testID  uuid.UUID
		payload Node
	}
	subs := make([]submission, 0, len(entries))
	for key, node := range entries {
		testID, err := uuid.Parse(key)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownTest, key)
		}
		if _, ok := attached[testID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTest, testID)
		}
		subs = append(subs, submission{testID: testID, payload: node})
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].testID.String() < subs[j].testID.String()
	})

	testIDs := make([]uuid.UUID, len(subs))
	for i, sub := range subs {
		testIDs[i] = sub.testID
	}
	defs, err := s.tests.GetByIDs(ctx, testIDs)
	if err != nil {
		return err
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		for _, sub := range subs {
			prev := attached[sub.testID].Payload

			res, err := s.results.UpsertPayload(ctx, orderID, sub.testID, sub.payload)
			if err != nil {
				return err
			}

			values := s.buildValues(sub.payload, defs[sub.testID])
			if err := s.results.ReplaceValues(ctx, res.ID, values); err != nil {
				return err
			}

			if err := s.recordAudit(ctx, res, audit.ActionSubmit, actor, prev, sub.payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("order_id", orderID.String()).Msg("result submission failed")
		return err
	}

	s.log.Info().
		Str("order_id", orderID.String()).
		Int("tests", len(subs)).
		Str("actor", actor).
		Msg("results submitted")
	return nil
}

// buildValues flattens a payload and enriches each entry against the test
// schema. A missing definition leaves every reading unresolved; the values
// are still stored.
func (s *Service) buildValues(payload Node, td *catalog.TestDefinition) []*ResultValue {
	flat := Flatten(payload)
	values := make([]*ResultValue, 0, len(flat))
	for _, fv := range flat {
		v := &ResultValue{ParameterPath: fv.Path, Value: fv.Value}
		if td != nil {
			resolved := td.Schema.ResolveReference(fv.Path)
			v.Label = resolved.Label
			v.Unit = resolved.Unit
			v.ReferenceText = resolved.ReferenceText
			v.ReferenceMin = resolved.ReferenceMin
			v.ReferenceMax = resolved.ReferenceMax
		}
		values = append(values, v)
	}
	return values
}

// VerifyOrder stamps every result of the order with the acting identity
// and completes the order. Re-verification re-stamps; an order with zero
// results is simply completed.
func (s *Service) VerifyOrder(ctx context.Context, orderID uuid.UUID, actor string) error {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return err
	}
	if actor == "" {
		return fmt.Errorf("acting identity is required")
	}

	now := time.Now()
	err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.results.VerifyByOrder(ctx, orderID, actor, now); err != nil {
			return err
		}
		if err := s.orders.UpdateStatus(ctx, orderID, StatusCompleted); err != nil {
			return err
		}
		results, err := s.results.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, res := range results {
			if err := s.recordAudit(ctx, res, audit.ActionVerify, actor, res.Payload, res.Payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("order_id", orderID.String()).
		Str("actor", actor).
		Msg("order verified")
	return nil
}

func (s *Service) recordAudit(ctx context.Context, res *Result, action, actor string, prev, next Node) error {
	prevRaw, err := json.Marshal(prev)
	if err != nil {
		return err
	}
	nextRaw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return s.audit.Record(ctx, &audit.Entry{
		ResultID:        res.ID,
		OrderID:         res.OrderID,
		TestID:          res.TestID,
		Action:          action,
		Actor:           actor,
		PreviousPayload: prevRaw,
		NewPayload:      nextRaw,
	})
}
