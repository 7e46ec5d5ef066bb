package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glimte/contact-sync-go/contracts"
	"github.com/glimte/contact-sync-go/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAcknowledger counts acknowledgments per delivery tag.
type fakeAcknowledger struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) ackCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks
}

func (a *fakeAcknowledger) nackCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nacks
}

// fakeConsumeChannel hands out a prepared delivery stream.
type fakeConsumeChannel struct {
	deliveries chan amqp.Delivery
	consumeErr error

	mu         sync.Mutex
	consumed   int
	cancelled  int
	sawAutoAck bool
}

func newFakeConsumeChannel(buffer int) *fakeConsumeChannel {
	return &fakeConsumeChannel{deliveries: make(chan amqp.Delivery, buffer)}
}

func (c *fakeConsumeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	c.consumed++
	c.sawAutoAck = autoAck
	return c.deliveries, nil
}

func (c *fakeConsumeChannel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled++
	return nil
}

func (c *fakeConsumeChannel) deliver(t *testing.T, ack amqp.Acknowledger, callback *contracts.SyncCallback) {
	t.Helper()
	body, err := json.Marshal(callback)
	require.NoError(t, err)
	c.deliveries <- amqp.Delivery{Acknowledger: ack, Body: body, ContentType: "application/json"}
}

func TestListenWindow(t *testing.T) {
	t.Run("zero timeout returns immediately with zero handled", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())

		handled, err := listener.Listen(context.Background(), 0, NewCollectingHandler())

		assert.NoError(t, err)
		assert.Zero(t, handled)
		assert.Zero(t, channel.consumed)
	})

	t.Run("empty window closes at the deadline without error", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())

		start := time.Now()
		handled, err := listener.Listen(context.Background(), 50*time.Millisecond, NewCollectingHandler())

		assert.NoError(t, err)
		assert.Zero(t, handled)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Equal(t, 1, channel.cancelled)
	})

	t.Run("nil handler is rejected", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())

		_, err := listener.Listen(context.Background(), time.Second, nil)

		assert.Error(t, err)
	})

	t.Run("consume failure wraps as ConsumerError", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		channel.consumeErr = errors.New("no queue")
		listener := NewCallbackListener(channel, DefaultTopology())

		_, err := listener.Listen(context.Background(), time.Second, NewCollectingHandler())

		var consErr *rabbitmq.ConsumerError
		require.ErrorAs(t, err, &consErr)
		assert.Equal(t, "contact_callback_queue", consErr.Queue)
	})

	t.Run("never uses auto-ack", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())

		_, err := listener.Listen(context.Background(), 20*time.Millisecond, NewCollectingHandler())

		require.NoError(t, err)
		assert.False(t, channel.sawAutoAck)
	})

	t.Run("context cancellation interrupts the window", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, err := listener.Listen(ctx, 10*time.Second, NewCollectingHandler())

		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("closed delivery stream surfaces as ConsumerError", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())

		close(channel.deliveries)

		_, err := listener.Listen(context.Background(), time.Second, NewCollectingHandler())

		var consErr *rabbitmq.ConsumerError
		require.ErrorAs(t, err, &consErr)
		assert.ErrorIs(t, err, rabbitmq.ErrChannelClosed)
	})
}

func TestListenHandling(t *testing.T) {
	t.Run("delivers parsed callback to the handler and acks once", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())
		ack := &fakeAcknowledger{}

		channel.deliver(t, ack, &contracts.SyncCallback{
			ContactID:        "abc123",
			Status:           contracts.StatusSuccess,
			Message:          "created",
			AndroidContactID: "42",
			DeviceID:         "dev-1",
			Timestamp:        1700000000123,
		})

		collector := NewCollectingHandler()
		handled, err := listener.Listen(context.Background(), 50*time.Millisecond, collector)

		require.NoError(t, err)
		assert.Equal(t, 1, handled)
		assert.Equal(t, 1, ack.ackCount())
		assert.Zero(t, ack.nackCount())

		callbacks := collector.Callbacks("abc123")
		require.Len(t, callbacks, 1)
		assert.Equal(t, contracts.StatusSuccess, callbacks[0].Status)
		assert.Equal(t, "42", callbacks[0].AndroidContactID)
		assert.Equal(t, "dev-1", callbacks[0].DeviceID)
		assert.Equal(t, int64(1700000000123), callbacks[0].Timestamp)
	})

	t.Run("malformed body is acked, never requeued, handler not invoked", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())
		ack := &fakeAcknowledger{}

		channel.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")}

		invoked := 0
		handler := CallbackHandlerFunc(func(ctx context.Context, cb *contracts.SyncCallback) error {
			invoked++
			return nil
		})

		handled, err := listener.Listen(context.Background(), 50*time.Millisecond, handler)

		require.NoError(t, err)
		assert.Zero(t, handled)
		assert.Zero(t, invoked)
		assert.Equal(t, 1, ack.ackCount())
		assert.Zero(t, ack.nackCount())
	})

	t.Run("handler error does not stop the window or the ack", func(t *testing.T) {
		channel := newFakeConsumeChannel(2)
		listener := NewCallbackListener(channel, DefaultTopology())
		ack := &fakeAcknowledger{}

		channel.deliver(t, ack, &contracts.SyncCallback{ContactID: "a", Status: contracts.StatusFailure, Error: "boom", DeviceID: "dev-1"})
		channel.deliver(t, ack, &contracts.SyncCallback{ContactID: "b", Status: contracts.StatusSuccess, DeviceID: "dev-1"})

		handler := CallbackHandlerFunc(func(ctx context.Context, cb *contracts.SyncCallback) error {
			if cb.ContactID == "a" {
				return errors.New("handler failed")
			}
			return nil
		})

		handled, err := listener.Listen(context.Background(), 50*time.Millisecond, handler)

		require.NoError(t, err)
		assert.Equal(t, 2, handled)
		assert.Equal(t, 2, ack.ackCount())
	})

	t.Run("handler panic is contained and the message still acked exactly once", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())
		ack := &fakeAcknowledger{}

		channel.deliver(t, ack, &contracts.SyncCallback{ContactID: "abc123", Status: contracts.StatusSuccess, DeviceID: "dev-1"})

		handler := CallbackHandlerFunc(func(ctx context.Context, cb *contracts.SyncCallback) error {
			panic("handler blew up")
		})

		handled, err := listener.Listen(context.Background(), 50*time.Millisecond, handler)

		require.NoError(t, err)
		assert.Equal(t, 1, handled)
		assert.Equal(t, 1, ack.ackCount())
	})

	t.Run("callback for an unpublished id is handled like any other", func(t *testing.T) {
		channel := newFakeConsumeChannel(1)
		listener := NewCallbackListener(channel, DefaultTopology())
		ack := &fakeAcknowledger{}

		channel.deliver(t, ack, &contracts.SyncCallback{ContactID: "never-published", Status: contracts.StatusSuccess, DeviceID: "dev-1"})

		collector := NewCollectingHandler()
		handled, err := listener.Listen(context.Background(), 50*time.Millisecond, collector)

		require.NoError(t, err)
		assert.Equal(t, 1, handled)
		assert.Len(t, collector.Callbacks("never-published"), 1)
	})

	t.Run("multiple callbacks within one window are all handled", func(t *testing.T) {
		channel := newFakeConsumeChannel(10)
		listener := NewCallbackListener(channel, DefaultTopology())
		ack := &fakeAcknowledger{}

		for _, id := range []string{"a", "b", "c", "a"} {
			channel.deliver(t, ack, &contracts.SyncCallback{ContactID: id, Status: contracts.StatusSuccess, DeviceID: "dev-1"})
		}

		collector := NewCollectingHandler()
		handled, err := listener.Listen(context.Background(), 50*time.Millisecond, collector)

		require.NoError(t, err)
		assert.Equal(t, 4, handled)
		assert.Equal(t, 4, ack.ackCount())
		assert.Len(t, collector.Callbacks("a"), 2)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, collector.ContactIDs())
	})
}
