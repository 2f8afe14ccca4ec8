package lubelogger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/lubesync/internal/models"
)

const (
	// DefaultTimeout is the default per-call HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	// The remote service is cheap to overload, so keep this conservative.
	DefaultRateLimit = 10
)

// API endpoints, rooted at /api.
const (
	endpointVehicles         = "/api/vehicles"
	endpointOdometer         = "/api/vehicle/odometerrecords"
	endpointAdjustedOdometer = "/api/vehicle/adjustedodometer"
	endpointPlan             = "/api/vehicle/planrecords"
	endpointGas              = "/api/vehicle/gasrecords"
	endpointService          = "/api/vehicle/servicerecords"
	endpointRepair           = "/api/vehicle/repairrecords"
	endpointUpgrade          = "/api/vehicle/upgraderecords"
	endpointSupply           = "/api/vehicle/supplyrecords"
	endpointTax              = "/api/vehicle/taxrecords"
	endpointReminder         = "/api/vehicle/reminders"
)

var categoryEndpoints = map[models.Category]string{
	models.CategoryOdometer: endpointOdometer,
	models.CategoryPlan:     endpointPlan,
	models.CategoryGas:      endpointGas,
	models.CategoryService:  endpointService,
	models.CategoryRepair:   endpointRepair,
	models.CategoryUpgrade:  endpointUpgrade,
	models.CategorySupply:   endpointSupply,
	models.CategoryTax:      endpointTax,
	models.CategoryReminder: endpointReminder,
}

// Client is a LubeLogger API client. Each call is independent: a failure
// for one category and vehicle never aborts sibling fetches.
type Client struct {
	baseURL string
	session *SessionManager
	timeout time.Duration
	logger  arbor.ILogger
	limiter *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new LubeLogger API client that authenticates through
// the given session manager.
func NewClient(baseURL string, session *SessionManager, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		session: session,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait also fails when the context dies; that is a transport
		// problem, not a throttle rejection.
		if ctx.Err() != nil {
			return &NetworkError{Endpoint: path, Err: ctx.Err()}
		}
		return &RateLimitError{RetryAfter: time.Second}
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("endpoint", path).
			Msg("LubeLogger API request")
	}

	resp, err := c.session.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Endpoint: path}
	case resp.StatusCode != http.StatusOK:
		return &NetworkError{
			Endpoint: path,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &MalformedResponseError{Endpoint: path, Err: err}
	}
	return nil
}

// Vehicles retrieves all vehicles tracked by the remote service.
func (c *Client) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	var dtos []vehicleDTO
	if err := c.get(ctx, endpointVehicles, nil, &dtos); err != nil {
		return nil, err
	}
	vehicles := make([]models.Vehicle, 0, len(dtos))
	for _, dto := range dtos {
		if dto.ID == 0 {
			continue
		}
		vehicles = append(vehicles, dto.toVehicle())
	}
	return vehicles, nil
}

// Records retrieves raw records of one category for one vehicle.
func (c *Client) Records(ctx context.Context, category models.Category, vehicleID int64) ([]models.RawRecord, error) {
	endpoint, ok := categoryEndpoints[category]
	if !ok {
		return nil, fmt.Errorf("unknown category: %s", category)
	}

	params := url.Values{}
	params.Set("vehicleId", fmt.Sprintf("%d", vehicleID))

	switch category {
	case models.CategoryPlan:
		var dtos []planDTO
		if err := c.get(ctx, endpoint, params, &dtos); err != nil {
			return nil, err
		}
		records := make([]models.RawRecord, 0, len(dtos))
		for _, dto := range dtos {
			records = append(records, dto.toRawRecord())
		}
		return records, nil
	case models.CategoryReminder:
		var dtos []reminderDTO
		if err := c.get(ctx, endpoint, params, &dtos); err != nil {
			return nil, err
		}
		records := make([]models.RawRecord, 0, len(dtos))
		for _, dto := range dtos {
			records = append(records, dto.toRawRecord())
		}
		return records, nil
	default:
		var dtos []recordDTO
		if err := c.get(ctx, endpoint, params, &dtos); err != nil {
			return nil, err
		}
		records := make([]models.RawRecord, 0, len(dtos))
		for _, dto := range dtos {
			records = append(records, dto.toRawRecord(category))
		}
		return records, nil
	}
}

// AdjustedOdometer retrieves the server-side adjusted odometer value for a
// vehicle. Preferred over raw odometer records when available; absence is
// reported as NotFoundError.
func (c *Client) AdjustedOdometer(ctx context.Context, vehicleID int64) (*models.RawRecord, error) {
	params := url.Values{}
	params.Set("vehicleId", fmt.Sprintf("%d", vehicleID))

	var dto adjustedOdometerDTO
	if err := c.get(ctx, endpointAdjustedOdometer, params, &dto); err != nil {
		return nil, err
	}
	if dto.Odometer <= 0 {
		return nil, &NotFoundError{Endpoint: endpointAdjustedOdometer}
	}
	return &models.RawRecord{
		Category: models.CategoryOdometer,
		Odometer: float64(dto.Odometer),
		Adjusted: true,
	}, nil
}
