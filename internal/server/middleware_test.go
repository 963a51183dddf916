package server

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsada/fleetcore/internal/config"
	userdomain "github.com/karsada/fleetcore/internal/user/domain"
)

func TestRequireAuth(t *testing.T) {
	r := newRig(t)

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var header map[string]string
			if tc.header != "" {
				header = authHeader(tc.header)
			}
			w := r.do(t, http.MethodGet, "/v1/vehicles", nil, header)
			requireErrorCode(t, w, http.StatusUnauthorized, "UNAUTHENTICATED")
		})
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	r := newRig(t)
	auth := r.bearer(t, userdomain.RoleFleetManager)

	w := r.do(t, http.MethodGet, "/v1/vehicles", nil, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code)

	r.clock.Advance(16 * time.Minute)

	w = r.do(t, http.MethodGet, "/v1/vehicles", nil, authHeader(auth))
	requireErrorCode(t, w, http.StatusUnauthorized, "UNAUTHENTICATED")
}

func TestRoleGates(t *testing.T) {
	r := newRig(t)

	cases := []struct {
		name   string
		roles  []string
		method string
		path   string
		body   any
		allow  bool
	}{
		{"customer can browse vehicles", []string{userdomain.RoleCustomer}, http.MethodGet, "/v1/vehicles", nil, true},
		{"customer cannot create vehicles", []string{userdomain.RoleCustomer}, http.MethodPost, "/v1/vehicles", vehiclePayload("1HGCM82633A004352", "NAA-1001"), false},
		{"agent cannot create vehicles", []string{userdomain.RoleRentalAgent}, http.MethodPost, "/v1/vehicles", vehiclePayload("1HGCM82633A004352", "NAA-1001"), false},
		{"agent can browse customers", []string{userdomain.RoleRentalAgent}, http.MethodGet, "/v1/customers", nil, true},
		{"finance cannot list customers", []string{userdomain.RoleFinanceOwner}, http.MethodGet, "/v1/customers", nil, false},
		{"finance can read reports", []string{userdomain.RoleFinanceOwner}, http.MethodGet, "/v1/reports/balance-sheet", nil, true},
		{"manager cannot read reports", []string{userdomain.RoleFleetManager}, http.MethodGet, "/v1/reports/balance-sheet", nil, false},
		{"manager cannot read audit trail", []string{userdomain.RoleFleetManager}, http.MethodGet, "/v1/audit-logs", nil, false},
		{"extra role unlocks the gate", []string{userdomain.RoleCustomer, userdomain.RoleFleetManager}, http.MethodPost, "/v1/vehicles", vehiclePayload("2HGCM82633A004353", "NAB-2002"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := r.bearer(t, tc.roles...)
			w := r.do(t, tc.method, tc.path, tc.body, authHeader(auth))
			if tc.allow {
				assert.Less(t, w.Code, http.StatusBadRequest, w.Body.String())
			} else {
				requireErrorCode(t, w, http.StatusForbidden, "FORBIDDEN")
			}
		})
	}
}

func TestRateLimitExhaustionReturns429(t *testing.T) {
	mr := miniredis.RunT(t)
	r := newRig(t, withRedis(mr.Addr()))

	quota := config.DefaultTunables().RateLimits.AuthStrict.Requests
	body := map[string]any{"email": "nobody@example.com", "password": "wrong-password"}

	for i := 0; i < quota; i++ {
		w := r.do(t, http.MethodPost, "/v1/users/login", body, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
		assert.Equal(t, strconv.Itoa(quota), w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := r.do(t, http.MethodPost, "/v1/users/login", body, nil)
	requireErrorCode(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	retryAfter := w.Header().Get("Retry-After")
	require.NotEmpty(t, retryAfter)
	assert.NotEqual(t, "0", retryAfter)
}

func TestRateLimitBucketsAreDistinct(t *testing.T) {
	mr := miniredis.RunT(t)
	r := newRig(t, withRedis(mr.Addr()))

	// Exhaust the strict login bucket for this client IP.
	body := map[string]any{"email": "nobody@example.com", "password": "wrong-password"}
	for i := 0; i < config.DefaultTunables().RateLimits.AuthStrict.Requests+1; i++ {
		r.do(t, http.MethodPost, "/v1/users/login", body, nil)
	}
	w := r.do(t, http.MethodPost, "/v1/users/login", body, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// The authenticated class keys per user and is not affected.
	auth := r.bearer(t, userdomain.RoleFleetManager)
	w = r.do(t, http.MethodGet, "/v1/vehicles", nil, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRateLimiterOutageFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	r := newRig(t, withRedis(mr.Addr()))
	mr.Close()

	auth := r.bearer(t, userdomain.RoleFleetManager)
	w := r.do(t, http.MethodGet, "/v1/vehicles", nil, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
