package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T) (*RedisNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	notifier, err := NewRedisNotifier(&Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { notifier.Close() })

	return notifier, mr
}

func TestNewRedisNotifier_RequiresAddress(t *testing.T) {
	_, err := NewRedisNotifier(nil)
	assert.Error(t, err)

	_, err = NewRedisNotifier(&Config{})
	assert.Error(t, err)
}

func TestNewRedisNotifier_ConnectionFailure(t *testing.T) {
	_, err := NewRedisNotifier(&Config{Address: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestPublishJobEvent(t *testing.T) {
	notifier, mr := newTestNotifier(t)

	// Subscribe with a raw client so we can observe the published payload
	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()

	pubsub := sub.Subscribe(context.Background(), Channel)
	defer pubsub.Close()

	_, err := pubsub.Receive(context.Background())
	require.NoError(t, err)

	event := JobEvent{
		JobID:     "job-123",
		Type:      JobTypeRefreshAll,
		Total:     5,
		Succeeded: 4,
		Failed:    1,
	}
	require.NoError(t, notifier.PublishJobEvent(context.Background(), event))

	select {
	case msg := <-pubsub.Channel():
		var received JobEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &received))
		assert.Equal(t, "job-123", received.JobID)
		assert.Equal(t, JobTypeRefreshAll, received.Type)
		assert.Equal(t, 4, received.Succeeded)
		assert.Equal(t, 1, received.Failed)
		assert.False(t, received.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job event")
	}
}

func TestSubscribeJobEvents(t *testing.T) {
	notifier, _ := newTestNotifier(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := notifier.SubscribeJobEvents(ctx)
	require.NoError(t, err)

	event := JobEvent{
		JobID:     "job-9",
		Type:      JobTypeBatchCreate,
		Total:     2,
		Succeeded: 1,
		Failed:    1,
		Items: []JobItem{
			{Key: "a@example.com", OK: true},
			{Key: "b@example.com", Error: "login rejected"},
		},
	}
	require.NoError(t, notifier.PublishJobEvent(context.Background(), event))

	select {
	case received := <-events:
		assert.Equal(t, "job-9", received.JobID)
		require.Len(t, received.Items, 2)
		assert.True(t, received.Items[0].OK)
		assert.Equal(t, "login rejected", received.Items[1].Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job event")
	}

	cancel()
	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestNoopNotifier(t *testing.T) {
	var n NoopNotifier
	assert.NoError(t, n.PublishJobEvent(context.Background(), JobEvent{JobID: "x"}))
	assert.NoError(t, n.Close())
}
