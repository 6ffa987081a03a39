package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/kafka"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/notify"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueSource hands out a fixed set of messages, then blocks until ctx ends.
type queueSource struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed int
}

func (s *queueSource) Fetch(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if len(s.messages) > 0 {
		m := s.messages[0]
		s.messages = s.messages[1:]
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *queueSource) Commit(context.Context, kafka.Message) error {
	s.mu.Lock()
	s.committed++
	s.mu.Unlock()
	return nil
}

func (s *queueSource) commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// batchRecorder records delivery-status batches by status.
type batchRecorder struct {
	repository.OutboundRepository

	mu      sync.Mutex
	batches map[model.DeliveryStatus][]string
}

func (b *batchRecorder) BatchUpdateDeliveryStatus(_ context.Context, _ *sqlx.Tx, ids []string, status model.DeliveryStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.batches == nil {
		b.batches = map[model.DeliveryStatus][]string{}
	}
	b.batches[status] = append(b.batches[status], ids...)
	return nil
}

func (b *batchRecorder) ids(status model.DeliveryStatus) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.batches[status]...)
}

// selectiveProvider succeeds for one message kind and fails for the rest.
type selectiveProvider struct{ okKind model.MessageKind }

func (p *selectiveProvider) Name() string  { return "selective" }
func (p *selectiveProvider) Ready() bool   { return true }
func (p *selectiveProvider) Acquire() bool { return true }
func (p *selectiveProvider) Send(_ context.Context, n notify.Notification) error {
	if n.Kind == p.okKind {
		return nil
	}
	return errors.New("receiver rejected")
}

func envelopeMessage(t *testing.T, id string, kind model.MessageKind) kafka.Message {
	t.Helper()
	v, err := json.Marshal(model.Envelope{ID: id, Kind: kind, Parameters: json.RawMessage(`{}`)})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(id), Value: v}
}

func TestNotifierDeliversAndFlushesStatuses(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// the batch writer may flush more than once depending on tick timing
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	source := &queueSource{messages: []kafka.Message{
		envelopeMessage(t, "OM-OK", model.KindChatNotification),
		envelopeMessage(t, "OM-BAD", model.KindShipmentStatusAlert),
		{Key: []byte("poison"), Value: []byte("not json")},
	}}
	recorder := &batchRecorder{}
	dispatch := notify.NewDispatcher([]notify.Provider{&selectiveProvider{okKind: model.KindChatNotification}}, 1, 1)

	n := NewNotifier(sqlx.NewDb(db, "mysql"), source, recorder, dispatch, nil)
	n.Workers = 2
	n.BatchWait = 30 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, n.Run(ctx))

	assert.Equal(t, []string{"OM-OK"}, recorder.ids(model.DeliveryDelivered))
	assert.Equal(t, []string{"OM-BAD"}, recorder.ids(model.DeliveryUndeliverable))
	// every message is committed, the poison one included
	assert.Equal(t, 3, source.commits())
}
