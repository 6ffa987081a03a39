package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/model"
)

// ConversationsRepository defines persistence for the chat bridge threads.
type ConversationsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, m model.ConversationMessage) error
	GetByID(ctx context.Context, alias, id string) (*model.ConversationMessage, error)
	ListByAlias(ctx context.Context, alias string, limit, offset int) ([]model.ConversationMessage, error)
}

type ConversationsRepositoryImpl struct {
	db *sqlx.DB
}

func NewConversationsRepository(db *sqlx.DB) *ConversationsRepositoryImpl {
	return &ConversationsRepositoryImpl{db: db}
}

var _ ConversationsRepository = (*ConversationsRepositoryImpl)(nil)

func (r *ConversationsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *ConversationsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, m model.ConversationMessage) error {
	const q = `
		INSERT INTO conversation_messages
		    (id, customer_alias, direction, body, reply_to_message_id, reply_to_snippet, created_at)
		VALUES
		    (?,  ?,              ?,         ?,    ?,                   ?,                NOW(6))
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			m.ID, m.CustomerAlias, string(m.Direction), m.Body, m.ReplyToMessageID, m.ReplyToSnippet,
		)
		return err
	})
}

func (r *ConversationsRepositoryImpl) GetByID(ctx context.Context, alias, id string) (*model.ConversationMessage, error) {
	const q = `
		SELECT id, customer_alias, direction, body, reply_to_message_id, reply_to_snippet, created_at
		  FROM conversation_messages
		 WHERE customer_alias = ? AND id = ?
		 LIMIT 1
	`
	var m model.ConversationMessage
	if err := r.db.GetContext(ctx, &m, q, alias, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ConversationsRepositoryImpl) ListByAlias(ctx context.Context, alias string, limit, offset int) ([]model.ConversationMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const q = `
		SELECT id, customer_alias, direction, body, reply_to_message_id, reply_to_snippet, created_at
		  FROM conversation_messages
		 WHERE customer_alias = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ? OFFSET ?
	`
	var rows []model.ConversationMessage
	if err := r.db.SelectContext(ctx, &rows, q, alias, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}
