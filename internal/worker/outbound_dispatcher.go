package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/repository"
	"go.uber.org/zap"
)

// BusPublisher publishes one claimed message envelope; satisfied by the
// Kafka producer wrapper.
type BusPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboundDispatcher drains the outbound_messages queue. Each message is
// claimed atomically (exactly one dispatcher wins a row) and published to
// the Kafka topic for its kind. A publish failure after a claim is not
// retried here: redelivery belongs to the consuming side, and the row stays
// visible as consumed+pending for operators.
type OutboundDispatcher struct {
	Outbound  repository.OutboundRepository
	Publisher BusPublisher
	Log       *zap.Logger

	IdleWait time.Duration // sleep when the queue is empty
}

func NewOutboundDispatcher(outbound repository.OutboundRepository, pub BusPublisher, log *zap.Logger) *OutboundDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboundDispatcher{
		Outbound:  outbound,
		Publisher: pub,
		Log:       log,
		IdleWait:  time.Second,
	}
}

// Run starts the claim/publish loop and blocks until ctx is cancelled.
func (d *OutboundDispatcher) Run(ctx context.Context) error {
	if d.IdleWait <= 0 {
		d.IdleWait = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		m, err := d.Outbound.ClaimNextUnconsumed(ctx)
		if err != nil {
			d.Log.Error("claim failed", zap.Error(err))
			d.sleep(ctx)
			continue
		}
		if m == nil {
			d.sleep(ctx)
			continue
		}

		d.publish(ctx, m)
	}
}

func (d *OutboundDispatcher) publish(ctx context.Context, m *model.OutboundMessage) {
	env := model.Envelope{
		ID:         m.ID,
		Kind:       m.Kind,
		Parameters: m.Parameters,
	}
	value, err := json.Marshal(env)
	if err != nil {
		d.Log.Error("marshal envelope", zap.String("message_id", m.ID), zap.Error(err))
		return
	}

	if err := d.Publisher.Publish(ctx, m.Kind.Topic(), []byte(m.ID), value); err != nil {
		metrics.OutboundDispatched.WithLabelValues(m.Kind.String(), "publish_failed").Inc()
		d.Log.Error("publish claimed message",
			zap.String("message_id", m.ID),
			zap.String("kind", m.Kind.String()),
			zap.Error(err))
		return
	}

	metrics.OutboundDispatched.WithLabelValues(m.Kind.String(), "published").Inc()
	d.Log.Debug("outbound message published",
		zap.String("message_id", m.ID),
		zap.String("topic", m.Kind.Topic()))
}

func (d *OutboundDispatcher) sleep(ctx context.Context) {
	t := time.NewTimer(d.IdleWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
