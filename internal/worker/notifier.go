package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prepstream/shipment-relay/internal/kafka"
	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/notify"
	"github.com/prepstream/shipment-relay/internal/repository"
	"go.uber.org/zap"
)

// MessageSource is the consuming side of the notification lane; satisfied
// by the Kafka consumer wrapper.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Notifier:
// - fetches claimed-message envelopes from Kafka,
// - delivers them via notification providers,
// - batches delivery-status updates into single statements.
type Notifier struct {
	// Dependencies
	DB       *sqlx.DB
	Consumer MessageSource
	Outbound repository.OutboundRepository
	Dispatch *notify.Dispatcher
	Log      *zap.Logger

	// Behavior
	Workers   int           // number of goroutines delivering notifications
	BatchSize int           // max buffered updates per flush (items)
	BatchWait time.Duration // max time to wait before flush
}

func NewNotifier(
	db *sqlx.DB,
	consumer MessageSource,
	outboundRepo repository.OutboundRepository,
	dispatch *notify.Dispatcher,
	log *zap.Logger,
) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		DB:        db,
		Consumer:  consumer,
		Outbound:  outboundRepo,
		Dispatch:  dispatch,
		Log:       log,
		Workers:   16,
		BatchSize: 100,
		BatchWait: 300 * time.Millisecond,
	}
}

// Run starts the notifier and blocks until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	if n.Workers <= 0 {
		n.Workers = 16
	}
	if n.BatchSize <= 0 {
		n.BatchSize = 100
	}
	if n.BatchWait <= 0 {
		n.BatchWait = 300 * time.Millisecond
	}

	// Channel for delivery results → batch writer. Never closed: deliverers
	// may still be mid-send at shutdown; the writer exits on ctx instead.
	updates := make(chan deliveryItem, n.BatchSize*2)

	go n.runBatchWriter(ctx, updates)

	// Fetch loop → fan-out to deliverers
	msgCh := make(chan kafka.Message, n.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := n.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					n.Log.Warn("kafka fetch failed", zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				msgCh <- m
			}
		}
	}()

	for i := 0; i < n.Workers; i++ {
		go n.runDeliverer(ctx, msgCh, updates)
	}

	<-ctx.Done()
	return nil
}

type deliveryItem struct {
	id     string
	kind   model.MessageKind
	status model.DeliveryStatus
}

func (n *Notifier) runDeliverer(ctx context.Context, in <-chan kafka.Message, out chan<- deliveryItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			n.deliverOne(ctx, m, out)
		}
	}
}

func (n *Notifier) deliverOne(ctx context.Context, m kafka.Message, out chan<- deliveryItem) {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.ID == "" {
		_ = n.Consumer.Commit(ctx, m) // poison → commit, skip
		if err != nil {
			n.Log.Warn("bad envelope json", zap.Error(err))
		} else {
			n.Log.Warn("envelope missing id")
		}
		return
	}

	err := n.Dispatch.Send(ctx, notify.Notification{
		MessageID:  env.ID,
		Kind:       env.Kind,
		Parameters: env.Parameters,
	})

	status := model.DeliveryDelivered
	if err != nil {
		status = model.DeliveryUndeliverable
		n.Log.Warn("notification undeliverable",
			zap.String("message_id", env.ID),
			zap.String("kind", env.Kind.String()),
			zap.Error(err))
	}
	metrics.NotificationsTotal.WithLabelValues(status.String(), env.Kind.String()).Inc()

	select {
	case out <- deliveryItem{id: env.ID, kind: env.Kind, status: status}:
	case <-ctx.Done():
		return
	}

	// Always commit (at-least-once; the status update is idempotent)
	if err := n.Consumer.Commit(ctx, m); err != nil {
		n.Log.Warn("kafka commit failed", zap.Error(err))
	}
}

// runBatchWriter does size/time-based flush of delivery-status updates.
func (n *Notifier) runBatchWriter(ctx context.Context, in <-chan deliveryItem) {
	tick := time.NewTicker(n.BatchWait)
	defer tick.Stop()

	var delivered, undeliverable []string

	reset := func() {
		delivered = delivered[:0]
		undeliverable = undeliverable[:0]
	}

	flush := func() {
		if len(delivered) == 0 && len(undeliverable) == 0 {
			return
		}

		tx, err := n.DB.BeginTxx(ctx, nil)
		if err != nil {
			n.Log.Error("begin tx", zap.Error(err))
			reset()
			return
		}
		defer func() { _ = tx.Rollback() }()

		if len(delivered) > 0 {
			if err := n.Outbound.BatchUpdateDeliveryStatus(ctx, tx, delivered, model.DeliveryDelivered); err != nil {
				n.Log.Error("batch update delivered", zap.Error(err))
				return
			}
		}
		if len(undeliverable) > 0 {
			if err := n.Outbound.BatchUpdateDeliveryStatus(ctx, tx, undeliverable, model.DeliveryUndeliverable); err != nil {
				n.Log.Error("batch update undeliverable", zap.Error(err))
				return
			}
		}

		if err := tx.Commit(); err != nil {
			n.Log.Error("tx commit", zap.Error(err))
			return
		}

		n.Log.Info("delivery status flushed",
			zap.Int("delivered", len(delivered)),
			zap.Int("undeliverable", len(undeliverable)))

		reset()
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case u, ok := <-in:
			if !ok {
				flush()
				return
			}
			if u.status == model.DeliveryDelivered {
				delivered = append(delivered, u.id)
			} else {
				undeliverable = append(undeliverable, u.id)
			}

			if len(delivered)+len(undeliverable) >= n.BatchSize {
				flush()
			}

		case <-tick.C:
			flush()
		}
	}
}
