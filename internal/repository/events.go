package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/model"
)

var (
	// ErrDuplicateEvent is returned when the natural key of an inbound event
	// is already recorded. Callers treat it as "already handled", not a failure.
	ErrDuplicateEvent = errors.New("inbound event already recorded")

	// ErrAlreadyProcessed is returned when MarkProcessed loses the conditional
	// update to an earlier (or concurrent) pass.
	ErrAlreadyProcessed = errors.New("inbound event already processed")

	// ErrEventNotFound is returned when an event id does not exist.
	ErrEventNotFound = errors.New("inbound event not found")
)

// EventsRepository defines persistence for the inbound_events table.
type EventsRepository interface {
	// Insert writes a new inbound event. Returns ErrDuplicateEvent when the
	// natural key (shipment_id, event_type, new_status, merchant_id) exists.
	Insert(ctx context.Context, tx *sqlx.Tx, e model.InboundEvent) error
	GetByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.InboundEvent, error)
	GetByID(ctx context.Context, id string) (*model.InboundEvent, error)
	// MarkProcessed performs the one-shot processed=0 -> 1 transition.
	// Returns ErrAlreadyProcessed or ErrEventNotFound on a lost update.
	MarkProcessed(ctx context.Context, id string, success bool, message string, result json.RawMessage) error
	ListUnprocessed(ctx context.Context, limit int) ([]model.InboundEvent, error)
	// HistoryFor lists a shipment's events, including rows that reference it
	// via related_shipment_id, ordered by creation time ascending.
	HistoryFor(ctx context.Context, shipmentID string) ([]model.InboundEvent, error)
}

type EventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEventsRepository(db *sqlx.DB) *EventsRepositoryImpl {
	return &EventsRepositoryImpl{db: db}
}

var _ EventsRepository = (*EventsRepositoryImpl)(nil)

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *EventsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

const eventColumns = `
	id, shipment_id, event_type, new_status, merchant_id, related_shipment_id,
	payload, processed, processed_at, process_success, process_message, process_result, created_at`

func (r *EventsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, e model.InboundEvent) error {
	const q = `
		INSERT INTO inbound_events
		    (id, shipment_id, event_type, new_status, merchant_id, related_shipment_id, payload, processed, created_at)
		VALUES
		    (?,  ?,           ?,          ?,          ?,           ?,                   ?,       0,         NOW(6))
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.ShipmentID, e.EventType, e.NewStatus, e.MerchantID, e.RelatedShipmentID, []byte(e.Payload),
		)
		if err != nil {
			return translateMySQLError(err)
		}
		return nil
	})
}

func (r *EventsRepositoryImpl) GetByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.InboundEvent, error) {
	q := `
		SELECT ` + eventColumns + `
		  FROM inbound_events
		 WHERE shipment_id = ? AND event_type = ? AND new_status = ? AND merchant_id = ?
		 LIMIT 1
	`
	var e model.InboundEvent
	err := r.db.GetContext(ctx, &e, q, key.ShipmentID, key.EventType, key.NewStatus, key.MerchantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.InboundEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM inbound_events WHERE id = ? LIMIT 1`
	var e model.InboundEvent
	err := r.db.GetContext(ctx, &e, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkProcessed is a compare-and-set on processed=0, so two concurrent workers
// finishing the same event produce exactly one winner. The loser finds out
// whether the row is missing or already done and gets the matching error.
func (r *EventsRepositoryImpl) MarkProcessed(ctx context.Context, id string, success bool, message string, result json.RawMessage) error {
	const q = `
		UPDATE inbound_events
		   SET processed = 1,
		       processed_at = NOW(),
		       process_success = ?,
		       process_message = ?,
		       process_result = ?
		 WHERE id = ? AND processed = 0
	`
	res, err := r.db.ExecContext(ctx, q, success, message, nullableJSON(result), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var processed bool
	err = r.db.GetContext(ctx, &processed, `SELECT processed FROM inbound_events WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return err
	}
	if processed {
		return ErrAlreadyProcessed
	}
	return fmt.Errorf("mark processed %s: update matched no rows", id)
}

func (r *EventsRepositoryImpl) ListUnprocessed(ctx context.Context, limit int) ([]model.InboundEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `
		SELECT ` + eventColumns + `
		  FROM inbound_events
		 WHERE processed = 0
		 ORDER BY created_at ASC
		 LIMIT ?
	`
	var rows []model.InboundEvent
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EventsRepositoryImpl) HistoryFor(ctx context.Context, shipmentID string) ([]model.InboundEvent, error) {
	q := `
		SELECT ` + eventColumns + `
		  FROM inbound_events
		 WHERE shipment_id = ? OR related_shipment_id = ?
		 ORDER BY created_at ASC, id ASC
	`
	var rows []model.InboundEvent
	if err := r.db.SelectContext(ctx, &rows, q, shipmentID, shipmentID); err != nil {
		return nil, err
	}
	return rows, nil
}

// translateMySQLError maps driver integrity violations to domain errors so
// they never leak upward as generic I/O failures.
func translateMySQLError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 { // duplicate entry
		return ErrDuplicateEvent
	}
	return err
}

// nullableJSON keeps NULL in the column when there is no result, instead of
// the string "null".
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
