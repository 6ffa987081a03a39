package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/prepstream/shipment-relay/internal/model"
)

var (
	ErrNoHealthy = fmt.Errorf("no healthy providers")
	ErrNoAcquire = fmt.Errorf("provider not acquired")
)

// Dispatcher picks a healthy provider round-robin and retries a bounded
// number of times. Chat notifications are interactive and get the higher
// attempt budget.
type Dispatcher struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
	maxAttemptsChat   int
	maxAttemptsOps    int
}

func NewDispatcher(provs []Provider, maxAttemptsChat, maxAttemptsOps int) *Dispatcher {
	if maxAttemptsChat < 1 {
		maxAttemptsChat = 3
	}

	if maxAttemptsOps < 1 {
		maxAttemptsOps = 2
	}

	return &Dispatcher{providers: provs, maxAttemptsChat: maxAttemptsChat, maxAttemptsOps: maxAttemptsOps}
}

func (d *Dispatcher) selectProvider() (Provider, error) {
	healthy := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Ready() {
			healthy = append(healthy, p)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, n Notification) error {
	p, err := d.selectProvider()
	if err != nil {
		return err
	}

	if !p.Acquire() {
		return ErrNoAcquire
	}

	return p.Send(ctx, n)
}

func (d *Dispatcher) attemptsFor(kind model.MessageKind) int {
	if kind.Topic() == model.ChatNotificationsTopic {
		return d.maxAttemptsChat
	}
	return d.maxAttemptsOps
}

// Send delivers the notification, retrying across providers up to the lane's
// attempt budget. The returned error is the last failure.
func (d *Dispatcher) Send(ctx context.Context, n Notification) error {
	attempts := d.attemptsFor(n.Kind)

	var last error
	for i := 0; i < attempts; i++ {
		if err := d.tryOnce(ctx, n); err == nil {
			return nil
		} else {
			last = err
		}
	}

	if last == nil {
		last = fmt.Errorf("send %s failed", n.Kind)
	}

	return last
}
