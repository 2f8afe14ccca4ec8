package lubelogger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/models"
)

func testCredentials(baseURL string) models.Credentials {
	return models.Credentials{
		BaseURL:  baseURL,
		Username: "tester",
		Password: "secret",
	}
}

func TestAuthenticate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/token", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tester", body["username"])
		assert.Equal(t, "secret", body["password"])

		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	}))
	defer server.Close()

	manager := NewSessionManager(testCredentials(server.URL), server.Client(), arbor.NewLogger())

	session, err := manager.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", session.Token)
	assert.True(t, session.Valid)
}

func TestAuthenticate_InvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	manager := NewSessionManager(testCredentials(server.URL), server.Client(), arbor.NewLogger())

	_, err := manager.Authenticate(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestAuthenticate_MissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	manager := NewSessionManager(testCredentials(server.URL), server.Client(), arbor.NewLogger())

	_, err := manager.Authenticate(context.Background())

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestDo_ReauthenticatesOnceOnUnauthorized(t *testing.T) {
	var authCalls, dataCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/token" {
			n := authCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + string(rune('0'+n))})
			return
		}

		// First data call carries an expired token; the replay carries a
		// fresh one.
		if dataCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NotEmpty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]map[string]string{})
	}))
	defer server.Close()

	manager := NewSessionManager(testCredentials(server.URL), server.Client(), arbor.NewLogger())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/api/vehicles", nil)
	require.NoError(t, err)

	resp, err := manager.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), authCalls.Load())
	assert.Equal(t, int32(2), dataCalls.Load())
}

func TestDo_SecondUnauthorizedIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/token" {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	manager := NewSessionManager(testCredentials(server.URL), server.Client(), arbor.NewLogger())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/api/vehicles", nil)
	require.NoError(t, err)

	_, err = manager.Do(req)
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestDo_ReusesUsableSession(t *testing.T) {
	var authCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/token" {
			authCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		json.NewEncoder(w).Encode([]map[string]string{})
	}))
	defer server.Close()

	manager := NewSessionManager(testCredentials(server.URL), server.Client(), arbor.NewLogger())

	for i := 0; i < 3; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/api/vehicles", nil)
		require.NoError(t, err)

		resp, err := manager.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, int32(1), authCalls.Load())
}
