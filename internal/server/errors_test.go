package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/auth/token"
	"github.com/karsada/fleetcore/internal/authorization"
	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/internal/idempotency"
	invoicedomain "github.com/karsada/fleetcore/internal/invoice/domain"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	maintenancedomain "github.com/karsada/fleetcore/internal/maintenance/domain"
	rentaldomain "github.com/karsada/fleetcore/internal/rental/domain"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"malformed body", errMalformedRequest, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing auth", errMissingAuth, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"expired token", token.ErrTokenExpired, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"empty idempotency key", idempotency.ErrEmptyKey, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"key reuse", errIdempotencyReuse, http.StatusConflict, "CONFLICT"},
		{"in progress", errRequestInProgress, http.StatusConflict, "REQUEST_IN_PROGRESS"},
		{"rate limited", errRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"vehicle missing", vehicledomain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"duplicate vin", vehicledomain.ErrDuplicateVIN, http.StatusConflict, "CONFLICT"},
		{"bad transition", vehicledomain.ErrInvalidTransition, http.StatusConflict, "INVALID_STATE"},
		{"stale version", vehicledomain.ErrVersionConflict, http.StatusConflict, "OPTIMISTIC_LOCK_FAILURE"},
		{"odometer backwards", vehicledomain.ErrMileageDecreasing, http.StatusUnprocessableEntity, "INVALID_MILEAGE"},
		{"expired license", customerdomain.ErrLicenseExpired, http.StatusUnprocessableEntity, "INVALID_STATE"},
		{"double booking", rentaldomain.ErrConflict, http.StatusConflict, "RENTAL_CONFLICT"},
		{"rental not active", rentaldomain.ErrNotActive, http.StatusConflict, "INVALID_STATE"},
		{"job not due", maintenancedomain.ErrNotDue, http.StatusConflict, "INVALID_STATE"},
		{"unbalanced posting", ledgerdomain.ErrUnbalancedEntry, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"overpayment", invoicedomain.ErrOverpayment, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"invoice not payable", invoicedomain.ErrNotPayable, http.StatusConflict, "INVALID_STATE"},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"anonymous error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code, message, _ := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
			assert.NotEmpty(t, message)
		})
	}
}

func TestMapErrorUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("load vehicle: %w", vehicledomain.ErrNotFound)
	status, code, _, _ := mapError(wrapped)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", code)
}

func TestMapErrorMessageAndDetails(t *testing.T) {
	status, code, message, details := mapError(rentaldomain.ErrConflict)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "RENTAL_CONFLICT", code)
	assert.Equal(t, "rental conflict", message)

	payload, ok := details.(gin.H)
	require.True(t, ok)
	assert.Equal(t, "rental_conflict", payload["reason"])
}

func TestMapErrorDatabaseFailures(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "53300", Message: "too many connections"}
	status, code, _, _ := mapError(fmt.Errorf("query: %w", pgErr))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "DATABASE_ERROR", code)
}

func TestClassifyErrorForLog(t *testing.T) {
	code, reason := classifyErrorForLog(vehicledomain.ErrMileageDecreasing)
	assert.Equal(t, "INVALID_MILEAGE", code)
	assert.Equal(t, "odometer_decreasing", reason)

	code, reason = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", code)
	assert.Equal(t, "unexpected_error", reason)
}
