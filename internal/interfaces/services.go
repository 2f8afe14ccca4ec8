// Package interfaces defines the contracts between services.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/lubesync/internal/models"
)

// RemoteClient is the typed surface of the LubeLogger API client that the
// coordinator fetches through.
type RemoteClient interface {
	Vehicles(ctx context.Context) ([]models.Vehicle, error)
	Records(ctx context.Context, category models.Category, vehicleID int64) ([]models.RawRecord, error)
	AdjustedOdometer(ctx context.Context, vehicleID int64) (*models.RawRecord, error)
}

// NotificationKind distinguishes publish notifications from hard-failure
// notifications.
type NotificationKind string

const (
	NotificationPublished NotificationKind = "published"
	NotificationFailed    NotificationKind = "failed"
)

// Notification is delivered to each subscriber at most once per refresh
// cycle. Snapshot is set for published cycles; Err for failed ones.
type Notification struct {
	Kind     NotificationKind
	Cycle    int64
	Snapshot *models.Snapshot
	Err      error
	At       time.Time
}

// NotificationHandler receives cycle notifications.
type NotificationHandler func(Notification)

// SubscriptionHandle identifies one subscription for later removal.
type SubscriptionHandle string

// SubscriptionService tracks interested consumers of snapshot updates.
type SubscriptionService interface {
	Subscribe(handler NotificationHandler) SubscriptionHandle
	Unsubscribe(handle SubscriptionHandle) error
	Publish(notification Notification)
	Close() error
}

// Coordinator owns the cached snapshot and the refresh pipeline.
type Coordinator interface {
	// RequestRefresh runs a refresh cycle, or attaches to the in-flight
	// one. Resolves when that cycle publishes or fails.
	RequestRefresh(ctx context.Context) error
	// TriggerAuto is the scheduler entry point; it honors the
	// hard-failure backoff window.
	TriggerAuto(ctx context.Context)
	// Snapshot returns the last published snapshot without blocking.
	// ok is false until the first successful cycle.
	Snapshot() (snapshot *models.Snapshot, ok bool)
	// State reports the current cycle state for diagnostics.
	State() string
	Close() error
}

// SchedulerService triggers automatic refreshes on a fixed interval.
type SchedulerService interface {
	Start(interval time.Duration) error
	Stop() error
}
