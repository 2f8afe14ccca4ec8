// Package coordinator schedules and runs refresh cycles against the
// remote service, caches the last published snapshot, and publishes
// updates to subscribers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/looplab/fsm"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/lubesync/internal/interfaces"
	"github.com/ternarybob/lubesync/internal/lubelogger"
	"github.com/ternarybob/lubesync/internal/models"
	"github.com/ternarybob/lubesync/internal/services/facts"
)

// Cycle states.
const (
	StateIdle               = "idle"
	StateFetchingVehicles   = "fetching_vehicles"
	StateFetchingCategories = "fetching_categories"
	StateNormalizing        = "normalizing"
	StatePublishing         = "publishing"
	StateFailed             = "failed"
)

// Cycle transitions.
const (
	eventFetchVehicles   = "fetch_vehicles"
	eventFetchCategories = "fetch_categories"
	eventNormalize       = "normalize"
	eventPublish         = "publish"
	eventFinish          = "finish"
	eventFail            = "fail"
)

// newCycleMachine builds the per-cycle state machine. Failed is terminal
// and reachable only before normalization: everything downstream of a
// successful vehicle enumeration degrades per category, not globally.
func newCycleMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventFetchVehicles, Src: []string{StateIdle}, Dst: StateFetchingVehicles},
			{Name: eventFetchCategories, Src: []string{StateFetchingVehicles}, Dst: StateFetchingCategories},
			{Name: eventNormalize, Src: []string{StateFetchingCategories}, Dst: StateNormalizing},
			{Name: eventPublish, Src: []string{StateNormalizing}, Dst: StatePublishing},
			{Name: eventFinish, Src: []string{StatePublishing}, Dst: StateIdle},
			{Name: eventFail, Src: []string{StateFetchingVehicles, StateFetchingCategories}, Dst: StateFailed},
		},
		fsm.Callbacks{},
	)
}

// Config holds coordinator tuning.
type Config struct {
	// Concurrency bounds simultaneous category fetches within one cycle.
	Concurrency int
	// Interval is the nominal automatic refresh interval. The
	// hard-failure delay never undercuts it, so the attempt after a
	// failed cycle always lands later than the next nominal tick.
	Interval time.Duration
	// BackoffInitial is the first delay after a hard-failure cycle.
	BackoffInitial time.Duration
	// BackoffMax caps the hard-failure delay.
	BackoffMax time.Duration
}

// Service implements the Coordinator interface.
type Service struct {
	client        interfaces.RemoteClient
	reducer       *facts.Service
	subscriptions interfaces.SubscriptionService
	logger        arbor.ILogger
	cfg           Config

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	inflight     *cycleRun
	machine      *fsm.FSM
	retryBackoff *backoff.ExponentialBackOff
	backoffUntil time.Time

	snapshot atomic.Pointer[models.Snapshot]
	cycleSeq atomic.Int64
}

// cycleRun is one in-flight refresh cycle. Concurrent refresh requests
// attach to it instead of starting a second cycle.
type cycleRun struct {
	done chan struct{}
	err  error
}

// NewService creates a new coordinator.
func NewService(client interfaces.RemoteClient, reducer *facts.Service, subscriptions interfaces.SubscriptionService, logger arbor.ILogger, cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 30 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Minute
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffInitial
	b.MaxInterval = cfg.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		client:        client,
		reducer:       reducer,
		subscriptions: subscriptions,
		logger:        logger,
		cfg:           cfg,
		ctx:           ctx,
		cancel:        cancel,
		retryBackoff:  b,
	}
}

// RequestRefresh runs a refresh cycle, attaching to the in-flight one if
// it exists. The cycle itself runs on the service context so an attached
// caller's cancellation only detaches that caller.
func (s *Service) RequestRefresh(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight != nil {
		run := s.inflight
		s.mu.Unlock()
		select {
		case <-run.done:
			return run.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	run := &cycleRun{done: make(chan struct{})}
	machine := newCycleMachine()
	s.inflight = run
	s.machine = machine
	s.mu.Unlock()

	go func() {
		err := s.runCycle(s.ctx, machine)

		s.mu.Lock()
		run.err = err
		s.inflight = nil
		s.machine = nil
		s.mu.Unlock()

		close(run.done)
	}()

	select {
	case <-run.done:
		return run.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerAuto is the scheduler entry point. Automatic triggers inside the
// hard-failure backoff window are skipped, so the next attempt lands
// strictly later than the nominal interval. On-demand refreshes are not
// gated.
func (s *Service) TriggerAuto(ctx context.Context) {
	s.mu.Lock()
	until := s.backoffUntil
	s.mu.Unlock()

	if now := time.Now(); now.Before(until) {
		s.logger.Debug().
			Str("resume_at", until.Format(time.RFC3339)).
			Msg("Automatic refresh skipped during failure backoff")
		return
	}

	if err := s.RequestRefresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Automatic refresh failed")
	}
}

// Snapshot returns the last published snapshot without blocking. It never
// participates in the refresh lock.
func (s *Service) Snapshot() (*models.Snapshot, bool) {
	snapshot := s.snapshot.Load()
	return snapshot, snapshot != nil
}

// State reports the current cycle state.
func (s *Service) State() string {
	s.mu.Lock()
	machine := s.machine
	s.mu.Unlock()

	if machine == nil {
		return StateIdle
	}
	return machine.Current()
}

// Close cancels any in-flight cycle. The previous snapshot stays
// servable.
func (s *Service) Close() error {
	s.cancel()
	return nil
}

func (s *Service) runCycle(ctx context.Context, machine *fsm.FSM) error {
	cycleID := s.cycleSeq.Add(1)
	refTime := time.Now().UTC()

	_ = machine.Event(ctx, eventFetchVehicles)
	vehicles, err := s.client.Vehicles(ctx)
	if err != nil {
		return s.failCycle(ctx, machine, cycleID, fmt.Errorf("vehicle enumeration failed: %w", err))
	}

	_ = machine.Event(ctx, eventFetchCategories)
	results, err := s.fetchAll(ctx, vehicles)
	if err != nil {
		return s.failCycle(ctx, machine, cycleID, err)
	}
	if ctx.Err() != nil {
		// Cancelled between fetches: previous snapshot untouched, no
		// backoff, in-flight slot released by the caller.
		return ctx.Err()
	}

	_ = machine.Event(ctx, eventNormalize)
	previous := s.snapshot.Load()
	vehicleFacts := make(map[int64]models.VehicleFacts, len(vehicles))
	for _, vehicle := range vehicles {
		reduced := s.reducer.Reduce(vehicle, refTime, results[vehicle.ID])
		merged, keep := s.carryOver(reduced, previous)
		if keep {
			vehicleFacts[vehicle.ID] = merged
		}
	}

	snapshot := &models.Snapshot{
		Vehicles: vehicleFacts,
		TakenAt:  refTime,
		Cycle:    cycleID,
	}

	_ = machine.Event(ctx, eventPublish)
	s.snapshot.Store(snapshot)

	s.mu.Lock()
	s.retryBackoff.Reset()
	s.backoffUntil = time.Time{}
	s.mu.Unlock()

	s.subscriptions.Publish(interfaces.Notification{
		Kind:     interfaces.NotificationPublished,
		Cycle:    cycleID,
		Snapshot: snapshot,
		At:       time.Now(),
	})
	_ = machine.Event(ctx, eventFinish)

	s.logger.Info().
		Int64("cycle", cycleID).
		Int("vehicles", len(vehicleFacts)).
		Msg("Snapshot published")

	return nil
}

// fetchAll runs every vehicle/category fetch for one cycle, bounded by
// the configured concurrency. Category failures are captured in the
// result set; only a terminal auth failure aborts the cycle.
func (s *Service) fetchAll(ctx context.Context, vehicles []models.Vehicle) (map[int64]map[models.Category]facts.CategoryResult, error) {
	results := make(map[int64]map[models.Category]facts.CategoryResult, len(vehicles))
	for _, vehicle := range vehicles {
		results[vehicle.ID] = make(map[models.Category]facts.CategoryResult, len(models.AllCategories()))
	}

	var resultsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, vehicle := range vehicles {
		for _, category := range models.AllCategories() {
			vehicleID, cat := vehicle.ID, category
			g.Go(func() error {
				records, err := s.fetchCategory(gctx, cat, vehicleID)
				if err != nil {
					var authErr *lubelogger.AuthError
					if errors.As(err, &authErr) {
						return err
					}
					s.logger.Warn().
						Err(err).
						Int64("vehicle_id", vehicleID).
						Str("category", string(cat)).
						Msg("Category fetch failed, carrying over previous value")
					resultsMu.Lock()
					results[vehicleID][cat] = facts.CategoryResult{Err: err}
					resultsMu.Unlock()
					return nil
				}

				resultsMu.Lock()
				results[vehicleID][cat] = facts.CategoryResult{Records: records}
				resultsMu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("authentication failed terminally: %w", err)
	}
	return results, nil
}

// fetchCategory fetches one category for one vehicle. The odometer
// category prefers the adjusted value and falls back to raw records. A
// 404 means the category is empty, not failed.
func (s *Service) fetchCategory(ctx context.Context, category models.Category, vehicleID int64) ([]models.RawRecord, error) {
	if category == models.CategoryOdometer {
		adjusted, err := s.client.AdjustedOdometer(ctx, vehicleID)
		if err == nil && adjusted != nil {
			return []models.RawRecord{*adjusted}, nil
		}
		// A terminal auth failure must not trigger another attempt via
		// the raw records endpoint within the same cycle.
		var authErr *lubelogger.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
	}

	records, err := s.client.Records(ctx, category, vehicleID)
	if err != nil {
		var notFound *lubelogger.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// carryOver replaces failed categories with the previous snapshot's
// values. A vehicle whose every category failed is kept only if a
// previous snapshot held it; otherwise it is absent from this snapshot.
func (s *Service) carryOver(reduced models.VehicleFacts, previous *models.Snapshot) (models.VehicleFacts, bool) {
	previousFacts, hasPrevious := previous.Facts(reduced.Vehicle.ID)

	anyCurrent := false
	for category, fact := range reduced.Facts {
		if fact.Status != models.StatusFailed {
			anyCurrent = true
			continue
		}
		if !hasPrevious {
			continue
		}
		if prior := previousFacts.Fact(category); prior.Status == models.StatusPresent {
			reduced.Facts[category] = models.CategoryFact{
				Status:  models.StatusPresent,
				Record:  prior.Record,
				Carried: true,
			}
		}
	}

	if !anyCurrent && !hasPrevious {
		return models.VehicleFacts{}, false
	}
	return reduced, true
}

func (s *Service) failCycle(ctx context.Context, machine *fsm.FSM, cycleID int64, err error) error {
	_ = machine.Event(ctx, eventFail)

	s.mu.Lock()
	delay := s.retryBackoff.NextBackOff()
	// Floor the window at the nominal interval so the tick one interval
	// from now is still inside it and gets skipped.
	if delay < s.cfg.Interval {
		delay = s.cfg.Interval
	}
	s.backoffUntil = time.Now().Add(delay)
	s.mu.Unlock()

	s.logger.Error().
		Err(err).
		Int64("cycle", cycleID).
		Dur("backoff", delay).
		Msg("Refresh cycle failed, previous snapshot retained")

	s.subscriptions.Publish(interfaces.Notification{
		Kind:  interfaces.NotificationFailed,
		Cycle: cycleID,
		Err:   err,
		At:    time.Now(),
	})

	return err
}
