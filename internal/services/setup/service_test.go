package setup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/models"
)

func validCreds(baseURL string) models.Credentials {
	return models.Credentials{BaseURL: baseURL, Username: "tester", Password: "secret"}
}

func TestValidate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/token":
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
		case "/api/vehicles":
			json.NewEncoder(w).Encode([]map[string]interface{}{{"id": 1}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	service := NewService(arbor.NewLogger(), 2*time.Second)

	assert.NoError(t, service.Validate(context.Background(), validCreds(server.URL)))
}

func TestValidate_RejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	service := NewService(arbor.NewLogger(), 2*time.Second)

	err := service.Validate(context.Background(), validCreds(server.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAuth)
}

func TestValidate_UnreachableService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	service := NewService(arbor.NewLogger(), time.Second)

	err := service.Validate(context.Background(), validCreds(server.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCannotConnect)
}

func TestValidate_ServerErrorIsCannotConnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	service := NewService(arbor.NewLogger(), 2*time.Second)

	err := service.Validate(context.Background(), validCreds(server.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCannotConnect)
}

func TestValidate_MissingFields(t *testing.T) {
	service := NewService(arbor.NewLogger(), time.Second)

	err := service.Validate(context.Background(), models.Credentials{BaseURL: "http://localhost:8989"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCannotConnect)
}
