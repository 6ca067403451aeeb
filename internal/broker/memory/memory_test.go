package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffjay/plantd-mapper/internal/broker"
)

func TestPublishBeforeSubscribe_DeliveredImmediately(t *testing.T) {
	a := New()
	ctx := context.Background()

	require.NoError(t, a.Publish(ctx, "", "agent-A", []byte("hello"), false))

	received := make(chan []byte, 1)
	require.NoError(t, a.Subscribe(ctx, "agent-A", false, func(_ context.Context, d broker.Delivery) {
		received <- d.Payload
	}))

	select {
	case payload := <-received:
		assert.Equal(t, "hello", string(payload))
	default:
		t.Fatal("expected immediate delivery of pre-published message")
	}
}

func TestPublishAfterSubscribe_Delivered(t *testing.T) {
	a := New()
	ctx := context.Background()

	received := make(chan []byte, 1)
	require.NoError(t, a.Subscribe(ctx, "agent-A", false, func(_ context.Context, d broker.Delivery) {
		received <- d.Payload
	}))

	require.NoError(t, a.Publish(ctx, "", "agent-A", []byte("world"), false))

	select {
	case payload := <-received:
		assert.Equal(t, "world", string(payload))
	default:
		t.Fatal("expected delivery after subscribe")
	}
}

func TestFanoutPublish_DeliversToAllBoundQueues(t *testing.T) {
	a := New()
	ctx := context.Background()

	require.NoError(t, a.DeclareFanout(ctx, "mapper-1"))
	require.NoError(t, a.Bind(ctx, "mapper-1-inbox", "mapper-1"))
	require.NoError(t, a.Bind(ctx, "mapper-1-other", "mapper-1"))

	var gotInbox, gotOther []byte
	require.NoError(t, a.Subscribe(ctx, "mapper-1-inbox", false, func(_ context.Context, d broker.Delivery) {
		gotInbox = d.Payload
	}))
	require.NoError(t, a.Subscribe(ctx, "mapper-1-other", false, func(_ context.Context, d broker.Delivery) {
		gotOther = d.Payload
	}))

	require.NoError(t, a.Publish(ctx, "mapper-1", "", []byte("fanned"), false))

	assert.Equal(t, "fanned", string(gotInbox))
	assert.Equal(t, "fanned", string(gotOther))
}

func TestManualAck_UnackedMessageNotRemoved(t *testing.T) {
	a := New()
	ctx := context.Background()

	var tag uint64
	require.NoError(t, a.Subscribe(ctx, "mapper-offline", true, func(_ context.Context, d broker.Delivery) {
		tag = d.DeliveryTag
	}))

	require.NoError(t, a.Publish(ctx, "", "mapper-offline", []byte("p"), true))

	assert.Equal(t, 1, a.PendingLen("mapper-offline"), "manual-ack delivery stays pending until acked")

	require.NoError(t, a.Ack(ctx, tag))

	assert.Equal(t, 0, a.PendingLen("mapper-offline"))
}

// TestRecover_RedeliversUnacked models the S3 offline-failsafe recovery
// mechanism: a manual-ack message left unacked is re-offered on Recover.
func TestRecover_RedeliversUnacked(t *testing.T) {
	a := New()
	ctx := context.Background()

	var deliveries int
	require.NoError(t, a.Subscribe(ctx, "mapper-offline", true, func(_ context.Context, d broker.Delivery) {
		deliveries++
	}))

	require.NoError(t, a.Publish(ctx, "", "mapper-offline", []byte("p"), true))
	assert.Equal(t, 1, deliveries)

	require.NoError(t, a.Recover(ctx, "mapper-offline"))
	assert.Equal(t, 2, deliveries, "unacked message is redelivered on recover")
}
