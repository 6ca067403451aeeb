// Package broker defines the adaptor capability set the mapper requires of
// its message fabric (§6): publish, subscribe, queue/fanout declaration,
// bind, recover, and manual ack. Two implementations are provided: amqp,
// built on github.com/rabbitmq/amqp091-go, and memory, an in-process fake
// used by every unit test per Design Note §9 ("test by substituting an
// in-memory fake").
//
// Grounded on the teacher's core/mdp.Worker/Broker reconnect-and-poll
// design (a long-lived connection multiplexed across publish and
// subscribe), generalized from ZeroMQ's MDP/Worker wire protocol to the
// AMQP vocabulary spec.md §6 actually names (exchange, queue, bind,
// durable, fanout, recover, ack).
package broker

import "context"

// Delivery is one inbound message handed to a subscriber's handler,
// carrying enough delivery metadata to ack it later.
type Delivery struct {
	Queue       string
	Payload     []byte
	DeliveryTag uint64
}

// Handler processes one delivery. A manual-ack subscription only removes
// the message from the queue when the handler acks it via the Broker.
type Handler func(ctx context.Context, delivery Delivery)

// Broker is the capability set consumed by the mapper (§6). Every method
// may be called concurrently with respect to other callers of the same
// Broker: the mapper calls in from its dispatch loop (§5), from startup
// wiring, and from the offline redeliverer's recover-sweep goroutine.
type Broker interface {
	// Publish sends payload to exchange routed by queue (used as routing
	// key for direct exchanges, ignored for fanout), honoring persistent.
	Publish(ctx context.Context, exchange, queue string, payload []byte, persistent bool) error

	// Subscribe registers handler for deliveries on queue. When manualAck
	// is true the handler must call Ack explicitly; otherwise deliveries
	// are acknowledged automatically on receipt.
	Subscribe(ctx context.Context, queue string, manualAck bool, handler Handler) error

	// DeclareQueue creates queue if it does not already exist.
	DeclareQueue(ctx context.Context, name string, durable, exclusive bool) error

	// DeclareFanout creates a fanout exchange named name.
	DeclareFanout(ctx context.Context, name string) error

	// Bind binds queue to exchange.
	Bind(ctx context.Context, queue, exchange string) error

	// Recover asks the broker to redeliver unacknowledged messages on
	// queue to their subscribers.
	Recover(ctx context.Context, queue string) error

	// Ack acknowledges a single delivery by tag.
	Ack(ctx context.Context, deliveryTag uint64) error

	// Close releases the underlying connection.
	Close() error
}
