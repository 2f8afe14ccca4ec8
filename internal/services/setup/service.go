// Package setup validates connection details once at configuration time.
package setup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/lubelogger"
	"github.com/ternarybob/lubesync/internal/models"
)

// Sentinel errors surfaced to the setup flow so it can present a targeted
// message. Wrapped around the underlying cause.
var (
	ErrInvalidAuth   = errors.New("invalid credentials")
	ErrCannotConnect = errors.New("cannot connect to service")
)

// Service performs the one-shot setup validation: one authenticate plus
// one lightweight fetch.
type Service struct {
	logger   arbor.ILogger
	timeout  time.Duration
	validate *validator.Validate
}

// NewService creates a new setup validation service.
func NewService(logger arbor.ILogger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		logger:   logger,
		timeout:  timeout,
		validate: validator.New(),
	}
}

// Validate checks reachability and credential correctness. Returns
// ErrInvalidAuth for rejected credentials, ErrCannotConnect for an
// unreachable or misbehaving service, nil on success.
func (s *Service) Validate(ctx context.Context, creds models.Credentials) error {
	if err := s.validate.Struct(creds); err != nil {
		return fmt.Errorf("%w: %s", ErrCannotConnect, err)
	}

	httpClient := &http.Client{Timeout: s.timeout}
	session := lubelogger.NewSessionManager(creds, httpClient, s.logger)
	client := lubelogger.NewClient(creds.BaseURL, session,
		lubelogger.WithLogger(s.logger),
		lubelogger.WithTimeout(s.timeout),
	)

	if _, err := session.Authenticate(ctx); err != nil {
		return s.classify(err)
	}
	if _, err := client.Vehicles(ctx); err != nil {
		return s.classify(err)
	}

	s.logger.Info().
		Str("base_url", creds.BaseURL).
		Msg("Setup validation succeeded")

	return nil
}

func (s *Service) classify(err error) error {
	var authErr *lubelogger.AuthError
	if errors.As(err, &authErr) {
		s.logger.Warn().Err(err).Msg("Setup validation rejected credentials")
		return fmt.Errorf("%w: %s", ErrInvalidAuth, err)
	}

	s.logger.Warn().Err(err).Msg("Setup validation could not reach service")
	return fmt.Errorf("%w: %s", ErrCannotConnect, err)
}
