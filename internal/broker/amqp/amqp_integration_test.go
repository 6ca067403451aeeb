//go:build integration

package amqp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	mapperamqp "github.com/geoffjay/plantd-mapper/internal/broker/amqp"
	"github.com/geoffjay/plantd-mapper/internal/broker"
)

// TestAdaptor_PublishSubscribe exercises a direct-queue publish and a
// manual-ack delivery against a real RabbitMQ broker, grounding §6's
// publish/subscribe/ack contract in an actual AMQP server rather than the
// in-memory fake used elsewhere.
func TestAdaptor_PublishSubscribe(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672")
	require.NoError(t, err)

	url := "amqp://guest:guest@" + host + ":" + port.Port() + "/"

	var adaptor *mapperamqp.Adaptor
	require.Eventually(t, func() bool {
		adaptor, err = mapperamqp.Dial(url)
		return err == nil
	}, 30*time.Second, time.Second)
	require.NotNil(t, adaptor)
	defer func() { _ = adaptor.Close() }()

	require.NoError(t, adaptor.DeclareQueue(ctx, "agent-A", true, false))

	received := make(chan []byte, 1)
	require.NoError(t, adaptor.Subscribe(ctx, "agent-A", true, func(ctx context.Context, d broker.Delivery) {
		received <- d.Payload
		_ = adaptor.Ack(ctx, d.DeliveryTag)
	}))

	require.NoError(t, adaptor.Publish(ctx, "", "agent-A", []byte("hello"), true))

	select {
	case payload := <-received:
		require.Equal(t, "hello", string(payload))
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
