// Package memory implements an in-process fake of broker.Broker, used by
// every unit test in this module per Design Note §9 ("broker polymorphism
// ... test by substituting an in-memory fake"). It models exchanges as
// named fanout sets of queues and queues as ordered, ack-tracked slices so
// tests can exercise recover/ack semantics without a real broker.
package memory

import (
	"context"
	"sync"

	"github.com/geoffjay/plantd-mapper/internal/broker"
)

type message struct {
	tag       uint64
	payload   []byte
	queue     string
	acked     bool
	delivered bool
}

type subscription struct {
	manualAck bool
	handler   broker.Handler
}

// Adaptor is a single-process fake broker. Safe for concurrent use.
type Adaptor struct {
	mu sync.Mutex

	queues    map[string]bool              // declared queue names
	fanouts   map[string]map[string]bool   // exchange -> bound queue set
	pending   map[string][]*message        // queue -> undelivered/unacked messages in order
	subs      map[string]subscription      // queue -> active subscription
	nextTag   uint64
	closed    bool
}

// New constructs an empty in-memory broker fake.
func New() *Adaptor {
	return &Adaptor{
		queues:  make(map[string]bool),
		fanouts: make(map[string]map[string]bool),
		pending: make(map[string][]*message),
		subs:    make(map[string]subscription),
	}
}

// DeclareQueue implements broker.Broker.
func (a *Adaptor) DeclareQueue(_ context.Context, name string, _, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queues[name] = true
	return nil
}

// DeclareFanout implements broker.Broker.
func (a *Adaptor) DeclareFanout(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.fanouts[name]; !ok {
		a.fanouts[name] = make(map[string]bool)
	}
	return nil
}

// Bind implements broker.Broker.
func (a *Adaptor) Bind(_ context.Context, queue, exchange string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.fanouts[exchange]; !ok {
		a.fanouts[exchange] = make(map[string]bool)
	}
	a.fanouts[exchange][queue] = true
	return nil
}

// Publish implements broker.Broker. When exchange names a declared fanout,
// payload is delivered to every bound queue; otherwise queue is treated as
// a direct destination.
func (a *Adaptor) Publish(ctx context.Context, exchange, queue string, payload []byte, _ bool) error {
	a.mu.Lock()
	targets := []string{queue}
	if bound, ok := a.fanouts[exchange]; ok && len(bound) > 0 {
		targets = targets[:0]
		for q := range bound {
			targets = append(targets, q)
		}
	}
	a.mu.Unlock()

	for _, target := range targets {
		a.enqueue(ctx, target, payload)
	}
	return nil
}

func (a *Adaptor) enqueue(ctx context.Context, queue string, payload []byte) {
	a.mu.Lock()
	a.nextTag++
	m := &message{tag: a.nextTag, payload: append([]byte(nil), payload...), queue: queue}
	a.pending[queue] = append(a.pending[queue], m)
	sub, subscribed := a.subs[queue]
	a.mu.Unlock()

	if subscribed {
		a.deliver(ctx, queue, sub)
	}
}

// Subscribe implements broker.Broker. Any messages already pending on
// queue are delivered immediately; later Publish/Recover calls deliver as
// they occur.
func (a *Adaptor) Subscribe(ctx context.Context, queue string, manualAck bool, handler broker.Handler) error {
	a.mu.Lock()
	a.subs[queue] = subscription{manualAck: manualAck, handler: handler}
	a.mu.Unlock()

	a.deliver(ctx, queue, subscription{manualAck: manualAck, handler: handler})
	return nil
}

func (a *Adaptor) deliver(ctx context.Context, queue string, sub subscription) {
	a.mu.Lock()
	var toDeliver []*message
	for _, m := range a.pending[queue] {
		if m.delivered {
			continue
		}
		if m.acked {
			continue
		}
		toDeliver = append(toDeliver, m)
	}
	a.mu.Unlock()

	for _, m := range toDeliver {
		a.mu.Lock()
		m.delivered = true
		tag := m.tag
		payload := m.payload
		manualAck := sub.manualAck
		a.mu.Unlock()

		sub.handler(ctx, broker.Delivery{Queue: queue, Payload: payload, DeliveryTag: tag})

		if !manualAck {
			_ = a.Ack(ctx, tag)
		}
	}
}

// Recover implements broker.Broker: re-delivers unacked messages on queue
// to the current subscriber, if any.
func (a *Adaptor) Recover(ctx context.Context, queue string) error {
	a.mu.Lock()
	sub, ok := a.subs[queue]
	if ok {
		for _, m := range a.pending[queue] {
			if !m.acked {
				m.delivered = false
			}
		}
	}
	a.mu.Unlock()

	if ok {
		a.deliver(ctx, queue, sub)
	}
	return nil
}

// Ack implements broker.Broker: marks the delivery acked and compacts it
// out of the queue's pending slice.
func (a *Adaptor) Ack(_ context.Context, deliveryTag uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for queue, msgs := range a.pending {
		for i, m := range msgs {
			if m.tag == deliveryTag {
				m.acked = true
				a.pending[queue] = append(msgs[:i], msgs[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

// Close implements broker.Broker.
func (a *Adaptor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// PendingLen reports the number of unacked messages on queue, for tests.
func (a *Adaptor) PendingLen(queue string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending[queue])
}
