package relay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/prepstream/shipment-relay/internal/util"
)

// Service produces outbound messages and chat-bridge rows. Where a chat
// message and its notification must appear together, both writes happen in
// one transaction.
type Service struct {
	db            *sqlx.DB
	outbound      repository.OutboundRepository
	conversations repository.ConversationsRepository
}

func New(
	db *sqlx.DB,
	outboundRepo repository.OutboundRepository,
	conversationsRepo repository.ConversationsRepository,
) *Service {
	return &Service{
		db:            db,
		outbound:      outboundRepo,
		conversations: conversationsRepo,
	}
}

// EnqueueOutbound records a deferred notification. Always succeeds when the
// store does; consumption happens later, exactly once, in the dispatcher.
func (s *Service) EnqueueOutbound(ctx context.Context, kind model.MessageKind, params json.RawMessage) (model.OutboundMessage, error) {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	m := model.OutboundMessage{
		ID:             util.New(),
		Kind:           kind,
		Parameters:     params,
		DeliveryStatus: model.DeliveryPending,
	}
	if err := s.outbound.Insert(ctx, nil, m); err != nil {
		return model.OutboundMessage{}, fmt.Errorf("enqueue outbound: %w", err)
	}
	metrics.OutboundEnqueued.WithLabelValues(kind.String()).Inc()
	return m, nil
}

// ReplyRef points at the message a new chat message replies to.
type ReplyRef struct {
	MessageID string
}

// PostConversationMessage writes a chat-bridge row and its CHAT_NOTIFICATION
// outbound message within a single transaction. The reply reference is
// resolved to an id+snippet snapshot at write time; an unknown reply target
// simply posts without threading context rather than failing the message.
func (s *Service) PostConversationMessage(ctx context.Context, alias string, direction model.Direction, body string, reply *ReplyRef) (model.ConversationMessage, error) {
	alias = strings.TrimSpace(alias)
	body = strings.TrimSpace(body)
	if alias == "" || body == "" {
		return model.ConversationMessage{}, fmt.Errorf("alias and body are required")
	}
	if !direction.Valid() {
		return model.ConversationMessage{}, fmt.Errorf("invalid direction %q", direction)
	}

	msg := model.ConversationMessage{
		ID:            util.New(),
		CustomerAlias: alias,
		Direction:     direction,
		Body:          body,
	}

	if reply != nil && reply.MessageID != "" {
		subject, err := s.conversations.GetByID(ctx, alias, reply.MessageID)
		if err == nil && subject != nil {
			msg.ReplyToMessageID = sql.NullString{String: subject.ID, Valid: true}
			msg.ReplyToSnippet = sql.NullString{String: snippet(subject.Body), Valid: true}
		}
	}

	params, err := json.Marshal(map[string]any{
		"customer_alias": alias,
		"message_id":     msg.ID,
		"direction":      string(direction),
		"body":           body,
	})
	if err != nil {
		return model.ConversationMessage{}, fmt.Errorf("marshal chat notification: %w", err)
	}

	out := model.OutboundMessage{
		ID:             util.New(),
		Kind:           model.KindChatNotification,
		Parameters:     params,
		DeliveryStatus: model.DeliveryPending,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.ConversationMessage{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.conversations.Insert(ctx, tx, msg); err != nil {
		return model.ConversationMessage{}, fmt.Errorf("insert conversation message: %w", err)
	}
	if err := s.outbound.Insert(ctx, tx, out); err != nil {
		return model.ConversationMessage{}, fmt.Errorf("insert chat notification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.ConversationMessage{}, err
	}

	metrics.OutboundEnqueued.WithLabelValues(out.Kind.String()).Inc()
	return msg, nil
}

func (s *Service) ListConversation(ctx context.Context, alias string, limit, offset int) ([]model.ConversationMessage, error) {
	return s.conversations.ListByAlias(ctx, alias, limit, offset)
}

func snippet(body string) string {
	if utf8.RuneCountInString(body) <= model.ReplySnippetLen {
		return body
	}
	runes := []rune(body)
	return string(runes[:model.ReplySnippetLen])
}
