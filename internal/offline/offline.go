// Package offline implements the offline-failsafe redeliverer (§4.4): a
// manual-ack consumer on the durable mapper-offline queue, paired with a
// periodic broker recover sweep that gives previously-no-target messages
// another chance without the mapper keeping its own retry bookkeeping.
//
// Grounded on the teacher's core/mdp.Worker reconnect/heartbeat loop: a
// ticker-driven goroutine that fires a broker operation on a fixed
// cadence, generalized here from "reconnect to broker" to "recover the
// offline queue."
package offline

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/geoffjay/plantd-mapper/internal/broker"
	"github.com/geoffjay/plantd-mapper/internal/cluster"
	"github.com/geoffjay/plantd-mapper/internal/envelope"
	"github.com/geoffjay/plantd-mapper/internal/metrics"
	"github.com/geoffjay/plantd-mapper/internal/serializer"
	"github.com/geoffjay/plantd-mapper/internal/warden"
)

const queueName = "mapper-offline"

// Redeliverer drains the offline queue and periodically triggers recovery
// of unacked deliveries, per §4.4.
type Redeliverer struct {
	Identity   envelope.Identity
	Registry   *cluster.Registry
	Warden     *warden.Warden
	Broker     broker.Broker
	Serializer serializer.Serializer
	Frequency  time.Duration // offline_redelivery_frequency, default 10s

	// Submit hands a closure to the mapper's single dispatch goroutine
	// (mapper.Node.Run, §5). handleDelivery reads Registry and allocates
	// Warden jobs, so it must run there rather than on the broker's own
	// consumer goroutine. Required; New panics if left nil.
	Submit func(func())
}

// New builds a Redeliverer bound to the mapper's identity and
// collaborators. submit must be the dispatch loop's Node.Submit so that
// handleDelivery is serialized with every other registry/warden mutation.
func New(identity envelope.Identity, registry *cluster.Registry, w *warden.Warden, b broker.Broker, s serializer.Serializer, frequency time.Duration, submit func(func())) *Redeliverer {
	if frequency <= 0 {
		frequency = 10 * time.Second
	}
	if submit == nil {
		panic("offline: New requires a non-nil submit func")
	}
	return &Redeliverer{
		Identity:   identity,
		Registry:   registry,
		Warden:     w,
		Broker:     b,
		Serializer: s,
		Frequency:  frequency,
		Submit:     submit,
	}
}

// Start declares the durable queue, subscribes in manual-ack mode, and
// launches the periodic recover sweep. It returns once the initial
// subscription is registered; the sweep runs until ctx is cancelled.
// Each delivery is handed to Submit so handleDelivery executes on the
// single dispatch goroutine rather than the broker's consumer goroutine.
func (r *Redeliverer) Start(ctx context.Context) error {
	if err := r.Broker.DeclareQueue(ctx, queueName, true, false); err != nil {
		return err
	}
	if err := r.Broker.Subscribe(ctx, queueName, true, func(ctx context.Context, delivery broker.Delivery) {
		r.Submit(func() { r.handleDelivery(ctx, delivery) })
	}); err != nil {
		return err
	}

	go r.sweep(ctx)
	return nil
}

func (r *Redeliverer) sweep(ctx context.Context) {
	ticker := time.NewTicker(r.Frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Broker.Recover(ctx, queueName); err != nil {
				log.WithError(err).Warn("offline queue recover failed")
			}
		}
	}
}

// handleDelivery implements §4.4's per-message logic: decode, rewrite
// reply_to to this mapper's identity, resolve targets. If targets exist,
// ack the message, allocate a callback-less job, and publish. Otherwise
// leave it unacked so the next recover tick re-offers it.
func (r *Redeliverer) handleDelivery(ctx context.Context, delivery broker.Delivery) {
	env, err := r.Serializer.Decode(delivery.Payload)
	if err != nil {
		log.WithError(err).Warn("malformed envelope on offline queue, acking to avoid poison-pill loop")
		_ = r.Broker.Ack(ctx, delivery.DeliveryTag)
		return
	}

	env.ReplyTo = r.Identity

	targets := r.Registry.TargetsFor(env)
	if len(targets) == 0 {
		log.WithFields(log.Fields{
			"type":  env.Type,
			"token": env.Token,
		}).Debug("offline message still has no targets, leaving unacked")
		return
	}

	if err := r.Broker.Ack(ctx, delivery.DeliveryTag); err != nil {
		log.WithError(err).Warn("failed to ack offline delivery")
		return
	}

	if _, err := r.Warden.NewJob(env.Token, targets, nil); err != nil {
		log.WithError(err).WithField("token", env.Token).Warn("failed to register job for redelivered offline message")
	}

	data, err := r.Serializer.Encode(env)
	if err != nil {
		log.WithError(err).Warn("failed to re-encode offline envelope")
		return
	}

	for _, target := range targets {
		if err := r.Broker.Publish(ctx, "", target.String(), data, env.Persistent); err != nil {
			log.WithError(err).WithField("target", target).Warn("failed to redeliver offline message to target")
		}
	}

	metrics.OfflineRedelivered.Inc()
	log.WithFields(log.Fields{
		"token":   env.Token,
		"targets": targets,
	}).Info("redelivered offline message")
}
