package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/model"
)

// OutboundRepository defines persistence for the outbound_messages table.
type OutboundRepository interface {
	// Insert writes a single outbound message. If tx is nil, it will
	// open/commit an internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, m model.OutboundMessage) error
	// ClaimNextUnconsumed atomically claims the oldest unconsumed message.
	// Returns (nil, nil) when the queue is empty or another dispatcher won
	// the race for the candidate row.
	ClaimNextUnconsumed(ctx context.Context) (*model.OutboundMessage, error)
	// BatchUpdateDeliveryStatus records the notifier's verdict for many
	// claimed messages using a single statement.
	BatchUpdateDeliveryStatus(ctx context.Context, tx *sqlx.Tx, ids []string, status model.DeliveryStatus) error
}

type OutboundRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboundRepository(db *sqlx.DB) *OutboundRepositoryImpl {
	return &OutboundRepositoryImpl{db: db}
}

var _ OutboundRepository = (*OutboundRepositoryImpl)(nil)

func (r *OutboundRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *OutboundRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, m model.OutboundMessage) error {
	const q = `
		INSERT INTO outbound_messages
		    (id, kind, parameters, consumed, delivery_status, created_at)
		VALUES
		    (?,  ?,    ?,          0,        'pending',       NOW(6))
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, m.ID, m.Kind.String(), []byte(m.Parameters))
		return err
	})
}

// ClaimNextUnconsumed picks a candidate, then claims it with a conditional
// update on consumed=0. RowsAffected decides the winner: a lost race looks
// exactly like an empty queue, the caller just polls again.
func (r *OutboundRepositoryImpl) ClaimNextUnconsumed(ctx context.Context) (*model.OutboundMessage, error) {
	const selectQ = `
		SELECT id, kind, parameters, consumed, consumed_at, delivery_status, created_at
		  FROM outbound_messages
		 WHERE consumed = 0
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1
	`
	var m model.OutboundMessage
	err := r.db.GetContext(ctx, &m, selectQ)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	const claimQ = `
		UPDATE outbound_messages
		   SET consumed = 1, consumed_at = NOW()
		 WHERE id = ? AND consumed = 0
	`
	res, err := r.db.ExecContext(ctx, claimQ, m.ID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// another dispatcher claimed it first
		return nil, nil
	}

	now := time.Now()
	m.Consumed = true
	m.ConsumedAt = &now
	return &m, nil
}

func (r *OutboundRepositoryImpl) BatchUpdateDeliveryStatus(ctx context.Context, tx *sqlx.Tx, ids []string, status model.DeliveryStatus) error {
	if len(ids) == 0 {
		return nil
	}
	const base = `UPDATE outbound_messages SET delivery_status = ? WHERE id IN (?)`
	query, args, err := sqlx.In(base, status.String(), ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}
