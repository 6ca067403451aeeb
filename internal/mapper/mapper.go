// Package mapper assembles the cluster registry, job warden, broker
// adaptor and serializer into the mapper's public façade: request/push
// construction, route-to-publish glue, and offline-failsafe policy (§4.3).
//
// Grounded on the teacher's core/service.Client, which wraps a
// Connection-typed transport behind a small façade with constructor
// injection rather than package-level state; generalized here from raw
// MDP frame send/recv to building envelope.Envelope values and delegating
// to the cluster registry for target resolution.
package mapper

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/geoffjay/plantd-mapper/internal/broker"
	"github.com/geoffjay/plantd-mapper/internal/cluster"
	"github.com/geoffjay/plantd-mapper/internal/envelope"
	"github.com/geoffjay/plantd-mapper/internal/serializer"
	"github.com/geoffjay/plantd-mapper/internal/warden"
)

// Outcome is the non-job result a request call can produce, returned
// instead of a *warden.Job when no job is allocated (§4.3 steps 5-6).
type Outcome int

// The façade's two non-job outcomes.
const (
	// Offline indicates no target was available and the request was
	// parked on the durable mapper-offline queue.
	Offline Outcome = iota + 1
	// Nothing indicates no target was available and offline_failsafe was
	// not requested; the caller will never see a reply.
	Nothing
)

func (o Outcome) String() string {
	switch o {
	case Offline:
		return "Offline"
	case Nothing:
		return "Nothing"
	default:
		return "Unknown"
	}
}

const offlineQueueName = "mapper-offline"

// Node is the mapper façade: the single object front-end applications and
// the offline redeliverer call into. Its methods are not safe for
// concurrent use from more than one goroutine — callers are expected to
// invoke it only from the single dispatch loop described in §5, which Run
// implements. Broker callbacks and timers must not touch Registry or
// Warden directly; they submit a closure via Submit instead.
type Node struct {
	Identity   envelope.Identity
	Persistent bool // default broker-durability flag (§6 "persistent")

	Registry   *cluster.Registry
	Warden     *warden.Warden
	Broker     broker.Broker
	Serializer serializer.Serializer

	events chan func()
}

// New builds a façade bound to identity (already prefixed "mapper-<id>" by
// the caller, per §6) and its collaborators.
func New(identity envelope.Identity, persistentDefault bool, registry *cluster.Registry, w *warden.Warden, b broker.Broker, s serializer.Serializer) *Node {
	return &Node{
		Identity:   identity,
		Persistent: persistentDefault,
		Registry:   registry,
		Warden:     w,
		Broker:     b,
		Serializer: s,
		events:     make(chan func(), 256),
	}
}

// Run is the mapper's single serializing dispatch loop (§5). It is the
// only goroutine allowed to touch Registry or Warden state; every other
// goroutine — broker subscription callbacks, the reaper ticker, the
// offline redeliverer — reaches them only by handing Submit a closure.
// Run blocks, executing queued closures in the order they were submitted,
// until ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-n.events:
			fn()
		}
	}
}

// Submit enqueues fn to run on the goroutine executing Run. Safe to call
// from any goroutine. Submit blocks if the queue is full, which back-
// pressures the submitting goroutine (e.g. a broker consumer) rather than
// dropping work.
func (n *Node) Submit(fn func()) {
	n.events <- fn
}

// Request builds a request-with-reply envelope, resolves targets, and
// either allocates a job and publishes to each target, parks the request
// on the offline queue, or reports Nothing, per §4.3.
func (n *Node) Request(ctx context.Context, reqType string, payload []byte, opts envelope.Options, onComplete warden.OnComplete) (*warden.Job, Outcome, error) {
	env := n.build(reqType, payload, opts)
	env.ReplyTo = n.Identity

	targets := n.Registry.TargetsFor(&env)
	if len(targets) > 0 {
		job, err := n.Warden.NewJob(env.Token, targets, onComplete)
		if err != nil {
			return nil, 0, err
		}
		if err := n.publishToTargets(ctx, &env, targets); err != nil {
			return job, 0, err
		}
		return job, 0, nil
	}

	if opts.OfflineFailsafe {
		if err := n.publishOffline(ctx, &env); err != nil {
			return nil, 0, err
		}
		return nil, Offline, nil
	}

	log.WithFields(log.Fields{
		"type":  reqType,
		"token": env.Token,
	}).Debug("request resolved to no targets, dropping")
	return nil, Nothing, nil
}

// Push builds a fire-and-forget envelope (no reply_to, no job) and
// publishes to every resolved target, per §4.3. An empty target set
// silently drops. Always returns true after attempting publish, matching
// the distilled contract's unconditional success return.
func (n *Node) Push(ctx context.Context, reqType string, payload []byte, opts envelope.Options) (bool, error) {
	env := n.build(reqType, payload, opts)

	targets := n.Registry.TargetsFor(&env)
	if len(targets) == 0 {
		log.WithField("type", reqType).Debug("push resolved to no targets, dropping")
		return true, nil
	}

	if err := n.publishToTargets(ctx, &env, targets); err != nil {
		return true, err
	}
	return true, nil
}

func (n *Node) build(reqType string, payload []byte, opts envelope.Options) envelope.Envelope {
	persistent := n.Persistent
	if opts.Persistent != nil {
		persistent = *opts.Persistent
	}

	return envelope.Envelope{
		Type:            reqType,
		Payload:         payload,
		From:            n.Identity,
		Token:           envelope.NewToken(),
		Selector:        opts.Selector,
		Target:          opts.Target,
		Persistent:      persistent,
		OfflineFailsafe: opts.OfflineFailsafe,
	}
}

// publishToTargets routes env once per target to that target's direct
// queue, in call order (§5 ordering guarantee: all publishes complete
// before the job handle is returned).
func (n *Node) publishToTargets(ctx context.Context, env *envelope.Envelope, targets []envelope.Identity) error {
	data, err := n.Serializer.Encode(env)
	if err != nil {
		return err
	}

	for _, target := range targets {
		if err := n.Broker.Publish(ctx, "", target.String(), data, env.Persistent); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) publishOffline(ctx context.Context, env *envelope.Envelope) error {
	data, err := n.Serializer.Encode(env)
	if err != nil {
		return err
	}
	return n.Broker.Publish(ctx, "", offlineQueueName, data, true)
}

// OfflineQueueName is the durable queue name used by the offline-failsafe
// path, exported so the redeliverer and wiring code share one constant.
func OfflineQueueName() string { return offlineQueueName }

// InboxFanoutName is the mapper's private reply fanout exchange name,
// bound to a queue of the same name (§6).
func (n *Node) InboxFanoutName() string {
	return n.Identity.String()
}
