package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// claimStore implements the claim with the same winner-takes-row semantics
// as the conditional update in MySQL.
type claimStore struct {
	repository.OutboundRepository

	mu       sync.Mutex
	messages []*model.OutboundMessage
}

func newClaimStore(msgs ...model.OutboundMessage) *claimStore {
	s := &claimStore{}
	for _, m := range msgs {
		cp := m
		s.messages = append(s.messages, &cp)
	}
	return s
}

func (s *claimStore) ClaimNextUnconsumed(context.Context) (*model.OutboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if !m.Consumed {
			m.Consumed = true
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *claimStore) Insert(_ context.Context, _ *sqlx.Tx, m model.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m
	s.messages = append(s.messages, &cp)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []publishedMsg
	fail      error
}

type publishedMsg struct {
	topic string
	key   string
	value []byte
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.published = append(p.published, publishedMsg{topic: topic, key: string(key), value: value})
	return nil
}

func (p *recordingPublisher) all() []publishedMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMsg(nil), p.published...)
}

func outboundMsg(id string, kind model.MessageKind) model.OutboundMessage {
	return model.OutboundMessage{
		ID:             id,
		Kind:           kind,
		Parameters:     json.RawMessage(`{"n":1}`),
		DeliveryStatus: model.DeliveryPending,
	}
}

func TestDispatcherPublishesEnvelopeToKindTopic(t *testing.T) {
	store := newClaimStore(
		outboundMsg("OM1", model.KindChatNotification),
		outboundMsg("OM2", model.KindResidualInboundError),
	)
	pub := &recordingPublisher{}
	d := NewOutboundDispatcher(store, pub, nil)
	d.IdleWait = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	got := pub.all()
	require.Len(t, got, 2)
	assert.Equal(t, model.ChatNotificationsTopic, got[0].topic)
	assert.Equal(t, model.OpsNotificationsTopic, got[1].topic)
	assert.Equal(t, "OM1", got[0].key)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(got[0].value, &env))
	assert.Equal(t, "OM1", env.ID)
	assert.Equal(t, model.KindChatNotification, env.Kind)
	assert.JSONEq(t, `{"n":1}`, string(env.Parameters))
}

func TestDispatcherSingleWinnerUnderConcurrency(t *testing.T) {
	const n = 50
	var msgs []model.OutboundMessage
	for i := 0; i < n; i++ {
		msgs = append(msgs, outboundMsg(fmt.Sprintf("OM-%03d", i), model.KindShipmentStatusAlert))
	}
	store := newClaimStore(msgs...)
	pub := &recordingPublisher{}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		d := NewOutboundDispatcher(store, pub, nil)
		d.IdleWait = time.Millisecond
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Run(ctx)
		}()
	}
	wg.Wait()

	got := pub.all()
	require.Len(t, got, n)
	seen := map[string]bool{}
	for _, p := range got {
		assert.False(t, seen[p.key], "message %s published twice", p.key)
		seen[p.key] = true
	}
}

func TestDispatcherPublishFailureDoesNotUnclaim(t *testing.T) {
	store := newClaimStore(outboundMsg("OM1", model.KindChatNotification))
	pub := &recordingPublisher{fail: errors.New("broker unreachable")}
	d := NewOutboundDispatcher(store, pub, nil)
	d.IdleWait = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	assert.Empty(t, pub.all())
	// the row stays claimed; delivery recovery is the consumer's job
	m, err := store.ClaimNextUnconsumed(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}
