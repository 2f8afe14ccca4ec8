package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/interfaces"
)

func TestPublish_DeliversToEverySubscriberOnce(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	first := make(chan interfaces.Notification, 10)
	second := make(chan interfaces.Notification, 10)

	service.Subscribe(func(n interfaces.Notification) { first <- n })
	service.Subscribe(func(n interfaces.Notification) { second <- n })

	service.Publish(interfaces.Notification{
		Kind:  interfaces.NotificationPublished,
		Cycle: 7,
	})

	for _, ch := range []chan interfaces.Notification{first, second} {
		select {
		case n := <-ch:
			assert.Equal(t, int64(7), n.Cycle)
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}

		select {
		case <-ch:
			t.Fatal("subscriber notified more than once for one cycle")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	received := make(chan interfaces.Notification, 10)
	handle := service.Subscribe(func(n interfaces.Notification) { received <- n })

	require.NoError(t, service.Unsubscribe(handle))

	service.Publish(interfaces.Notification{Kind: interfaces.NotificationPublished, Cycle: 1})

	select {
	case <-received:
		t.Fatal("unsubscribed handler received a notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribe_UnknownHandle(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	assert.Error(t, service.Unsubscribe("no-such-handle"))
}

func TestPublish_NoSubscribers(t *testing.T) {
	service := NewService(arbor.NewLogger())
	defer service.Close()

	// Must not panic or block.
	service.Publish(interfaces.Notification{Kind: interfaces.NotificationFailed, Cycle: 1})
}
