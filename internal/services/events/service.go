// Package events implements the subscription registry for snapshot
// publish and failure notifications.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/interfaces"
)

// Service implements SubscriptionService with a pub/sub pattern. Each
// subscriber receives at most one notification per refresh cycle;
// delivery order across subscribers is unspecified.
type Service struct {
	subscribers map[interfaces.SubscriptionHandle]interfaces.NotificationHandler
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new subscription service.
func NewService(logger arbor.ILogger) interfaces.SubscriptionService {
	return &Service{
		subscribers: make(map[interfaces.SubscriptionHandle]interfaces.NotificationHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler and returns its handle.
func (s *Service) Subscribe(handler interfaces.NotificationHandler) interfaces.SubscriptionHandle {
	handle := interfaces.SubscriptionHandle(uuid.New().String())

	s.mu.Lock()
	s.subscribers[handle] = handler
	count := len(s.subscribers)
	s.mu.Unlock()

	s.logger.Debug().
		Str("handle", string(handle)).
		Int("subscriber_count", count).
		Msg("Notification handler subscribed")

	return handle
}

// Unsubscribe removes a handler by its handle.
func (s *Service) Unsubscribe(handle interfaces.SubscriptionHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[handle]; !ok {
		return fmt.Errorf("subscription not found: %s", handle)
	}
	delete(s.subscribers, handle)

	s.logger.Debug().
		Str("handle", string(handle)).
		Msg("Notification handler unsubscribed")

	return nil
}

// Publish delivers a cycle notification to every current subscriber,
// each exactly once, asynchronously.
func (s *Service) Publish(notification interfaces.Notification) {
	s.mu.RLock()
	handlers := make([]interfaces.NotificationHandler, 0, len(s.subscribers))
	for _, handler := range s.subscribers {
		handlers = append(handlers, handler)
	}
	s.mu.RUnlock()

	if len(handlers) == 0 {
		s.logger.Debug().
			Str("kind", string(notification.Kind)).
			Int64("cycle", notification.Cycle).
			Msg("No subscribers for notification")
		return
	}

	s.logger.Info().
		Str("kind", string(notification.Kind)).
		Int64("cycle", notification.Cycle).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing cycle notification")

	for _, handler := range handlers {
		go func(h interfaces.NotificationHandler) {
			h(notification)
		}(handler)
	}
}

// Close shuts down the subscription service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.SubscriptionHandle]interfaces.NotificationHandler)
	s.logger.Info().Msg("Subscription service closed")

	return nil
}
