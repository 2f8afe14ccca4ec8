package lubelogger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/models"
)

const authTokenPath = "/api/auth/token"

// SessionManager owns the credentials and the authentication state against
// the remote service. It is the only component that mutates the session.
type SessionManager struct {
	creds      models.Credentials
	httpClient *http.Client
	logger     arbor.ILogger

	mu      sync.Mutex
	session models.Session
}

// NewSessionManager creates a session manager for one set of credentials.
func NewSessionManager(creds models.Credentials, httpClient *http.Client, logger arbor.ILogger) *SessionManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SessionManager{
		creds:      creds,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Authenticate exchanges the credentials for a fresh session token.
func (m *SessionManager) Authenticate(ctx context.Context) (models.Session, error) {
	body, err := json.Marshal(map[string]string{
		"username": m.creds.Username,
		"password": m.creds.Password,
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to encode credentials: %w", err)
	}

	endpoint := m.creds.BaseURL + authTokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return models.Session{}, &NetworkError{Endpoint: authTokenPath, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.Session{}, &AuthError{StatusCode: resp.StatusCode, Message: "invalid credentials"}
	case resp.StatusCode != http.StatusOK:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Session{}, &NetworkError{
			Endpoint: authTokenPath,
			Err:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload)),
		}
	}

	var dto authResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return models.Session{}, &MalformedResponseError{Endpoint: authTokenPath, Err: err}
	}
	if dto.Token == "" {
		return models.Session{}, &MalformedResponseError{
			Endpoint: authTokenPath,
			Err:      fmt.Errorf("auth response missing token"),
		}
	}

	session := models.Session{
		Token:     dto.Token,
		ExpiresAt: parseRecordDate(dto.ExpiresAt),
		Valid:     true,
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.logger.Debug().
		Str("base_url", m.creds.BaseURL).
		Msg("Authenticated against LubeLogger")

	return session, nil
}

// EnsureAuthenticated returns the held session when usable, otherwise
// re-authenticates.
func (m *SessionManager) EnsureAuthenticated(ctx context.Context) (models.Session, error) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session.Usable(time.Now()) {
		return session, nil
	}
	return m.Authenticate(ctx)
}

// Invalidate flags the held session invalid. Called when a data call
// receives an unauthorized response.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.session.Valid = false
	m.mu.Unlock()
}

// Do executes an authenticated request. On an unauthorized response it
// re-authenticates exactly once and replays the request; a second
// unauthorized response is a terminal AuthError for the calling cycle.
// Only used for body-less requests, which are safe to replay.
func (m *SessionManager) Do(req *http.Request) (*http.Response, error) {
	session, err := m.EnsureAuthenticated(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := m.send(req, session)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	m.logger.Warn().
		Str("endpoint", req.URL.Path).
		Msg("Unauthorized response, re-authenticating once")
	m.Invalidate()

	session, err = m.Authenticate(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err = m.send(req.Clone(req.Context()), session)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, &AuthError{
			StatusCode: http.StatusUnauthorized,
			Message:    "still unauthorized after re-authentication",
		}
	}
	return resp, nil
}

func (m *SessionManager) send(req *http.Request, session models.Session) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+session.Token)
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Endpoint: req.URL.Path, Err: err}
	}
	return resp, nil
}
