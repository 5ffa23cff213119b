package router

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/service"
	"classifieds/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

// stubAuth knows two tokens and two accounts.
type stubAuth struct {
	service.AuthService
}

func (stubAuth) ParseToken(token string) (*service.Identity, error) {
	switch token {
	case "user":
		return &service.Identity{UserID: 2, Role: domain.RoleUser}, nil
	case "admin":
		return &service.Identity{UserID: 1, Role: domain.RoleAdmin}, nil
	}
	return nil, service.ErrInvalidToken
}

func (stubAuth) Me(_ context.Context, id int64) (*domain.User, error) {
	switch id {
	case 1:
		return &domain.User{ID: 1, Role: domain.RoleAdmin, Status: domain.UserStatusActive}, nil
	case 2:
		return &domain.User{ID: 2, Role: domain.RoleUser, Status: domain.UserStatusActive}, nil
	}
	return nil, sql.ErrNoRows
}

type stubAdmin struct {
	service.AdminService
}

func (stubAdmin) Stats(context.Context) (*service.Stats, error) {
	return &service.Stats{Users: 2}, nil
}

func newTestRouter() http.Handler {
	reg := prometheus.NewRegistry()
	m := metrics.NewHandlerMetrics(reg, reg)
	return New(
		Services{Auth: stubAuth{}, Admin: stubAdmin{}},
		Options{AllowedOrigins: []string{"https://app.example.com"}},
		logger.Discard(), m,
	)
}

func request(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter()

	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/metrics", "").Code)
}

func TestRouter_AuthGuards(t *testing.T) {
	h := newTestRouter()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"me without token", http.MethodGet, "/api/v1/auth/me", "", http.StatusUnauthorized},
		{"create ad without token", http.MethodPost, "/api/v1/ads", "", http.StatusUnauthorized},
		{"chats with bad token", http.MethodGet, "/api/v1/chats", "forged", http.StatusUnauthorized},
		{"checkout without token", http.MethodPost, "/api/v1/payments/checkout", "", http.StatusUnauthorized},
		{"admin as user", http.MethodGet, "/api/v1/admin/stats", "user", http.StatusForbidden},
		{"diagnostics as user", http.MethodGet, "/api/v1/admin/diagnostics/duplicate-accounts", "user", http.StatusForbidden},
		{"admin as admin", http.MethodGet, "/api/v1/admin/stats", "admin", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(h, tt.method, tt.path, tt.token)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRouter_RequestIDAndCORS(t *testing.T) {
	h := newTestRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_WebsocketOnlyWhenHubConfigured(t *testing.T) {
	h := newTestRouter()
	assert.Equal(t, http.StatusNotFound, request(h, http.MethodGet, "/ws", "").Code)
}
