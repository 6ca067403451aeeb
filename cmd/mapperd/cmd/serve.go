package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/geoffjay/plantd-mapper/internal/broker"
	mapperamqp "github.com/geoffjay/plantd-mapper/internal/broker/amqp"
	"github.com/geoffjay/plantd-mapper/internal/cluster"
	"github.com/geoffjay/plantd-mapper/internal/envelope"
	"github.com/geoffjay/plantd-mapper/internal/mapper"
	"github.com/geoffjay/plantd-mapper/internal/mconfig"
	"github.com/geoffjay/plantd-mapper/internal/mlog"
	"github.com/geoffjay/plantd-mapper/internal/offline"
	"github.com/geoffjay/plantd-mapper/internal/serializer"
	"github.com/geoffjay/plantd-mapper/internal/warden"
)

const controlQueueName = "mapper-control"

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mapper's dispatch loop",
	Run: func(_ *cobra.Command, _ []string) {
		path := cfgFile
		if path == "" {
			if home, err := os.UserHomeDir(); err == nil {
				path = filepath.Join(home, ".config", "plantd", "mapperd.yaml")
			}
		}

		cfg, err := mconfig.Load(path)
		if err != nil {
			log.WithError(err).Fatal("failed to load configuration")
		}

		mlog.Initialize(cfg.Log)
		runServe(cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
}

// runServe wires the registry, warden, broker adaptor, serializer and
// offline redeliverer into the single dispatch loop described in §5, and
// blocks until an interrupt or terminate signal is received.
func runServe(cfg *mconfig.Config) {
	identity := envelope.Identity(cfg.MapperIdentity())

	s, err := serializer.New(serializer.Format(cfg.Format))
	if err != nil {
		log.WithError(err).Fatal("failed to construct serializer")
	}

	adaptor, err := mapperamqp.Dial(cfg.AMQPURL())
	if err != nil {
		log.WithError(err).Fatal("failed to connect to broker")
	}
	defer func() { _ = adaptor.Close() }()

	registry := cluster.New(cfg.AgentTimeout)
	w := warden.New()
	node := mapper.New(identity, cfg.Persistent, registry, w, adaptor, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// node.Run is the single dispatch goroutine (§5): every broker callback
	// and timer tick below reaches the registry/warden only via
	// node.Submit, never directly, so they never race each other.
	go node.Run(ctx)

	if err := setupTopology(ctx, node); err != nil {
		log.WithError(err).Fatal("failed to declare broker topology")
	}

	if err := subscribeControl(ctx, node, s); err != nil {
		log.WithError(err).Fatal("failed to subscribe to control queue")
	}

	if err := subscribeInbox(ctx, node, s); err != nil {
		log.WithError(err).Fatal("failed to subscribe to reply inbox")
	}

	redeliverer := offline.New(identity, registry, w, adaptor, s, cfg.OfflineRedeliveryFrequency, node.Submit)
	if err := redeliverer.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start offline redeliverer")
	}

	go runReaper(ctx, registry, node.Submit, cfg.AgentTimeout)
	go serveMetrics(metricsAddr)

	log.WithFields(log.Fields{
		"identity": identity,
		"format":   cfg.Format,
	}).Info("mapperd started")

	waitForShutdown()
}

func setupTopology(ctx context.Context, node *mapper.Node) error {
	if err := node.Broker.DeclareQueue(ctx, controlQueueName, true, false); err != nil {
		return err
	}

	inbox := node.InboxFanoutName()
	if err := node.Broker.DeclareFanout(ctx, inbox); err != nil {
		return err
	}
	if err := node.Broker.DeclareQueue(ctx, inbox, false, true); err != nil {
		return err
	}
	return node.Broker.Bind(ctx, inbox, inbox)
}

// subscribeControl decodes on the broker's own consumer goroutine but
// defers node.HandleControl — which mutates the registry — to node.Run via
// node.Submit, per §5.
func subscribeControl(ctx context.Context, node *mapper.Node, s serializer.Serializer) error {
	return node.Broker.Subscribe(ctx, controlQueueName, false, func(_ context.Context, delivery broker.Delivery) {
		env, err := s.Decode(delivery.Payload)
		if err != nil {
			log.WithError(err).Warn("malformed control envelope, dropped")
			return
		}
		node.Submit(func() { node.HandleControl(env) })
	})
}

// subscribeInbox decodes on the broker's own consumer goroutine but defers
// the warden update to node.Run via node.Submit, per §5.
func subscribeInbox(ctx context.Context, node *mapper.Node, s serializer.Serializer) error {
	inbox := node.InboxFanoutName()
	return node.Broker.Subscribe(ctx, inbox, false, func(_ context.Context, delivery broker.Delivery) {
		env, err := s.Decode(delivery.Payload)
		if err != nil {
			log.WithError(err).Warn("malformed reply envelope, dropped")
			return
		}
		reply := envelope.Reply{
			Token:   env.Token,
			From:    env.From,
			Payload: env.Payload,
		}
		node.Submit(func() { node.Warden.Process(reply) })
	})
}

// runReaper ticks on its own goroutine but submits the actual Reap call to
// the dispatch loop via submit, since Reap mutates the registry (§5).
func runReaper(ctx context.Context, registry *cluster.Registry, submit func(func()), agentTimeout time.Duration) {
	ticker := time.NewTicker(agentTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			submit(func() { registry.Reap(time.Now()) })
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec
		log.WithError(err).Warn("metrics server stopped")
	}
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("mapperd shutting down")
}
