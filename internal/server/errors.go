package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/auth/token"
	"github.com/karsada/fleetcore/internal/authorization"
	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/internal/idempotency"
	invoicedomain "github.com/karsada/fleetcore/internal/invoice/domain"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	maintenancedomain "github.com/karsada/fleetcore/internal/maintenance/domain"
	paymentdomain "github.com/karsada/fleetcore/internal/payment/domain"
	rentaldomain "github.com/karsada/fleetcore/internal/rental/domain"
	userdomain "github.com/karsada/fleetcore/internal/user/domain"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
)

// Error codes surfaced to clients.
const (
	codeValidation      = "VALIDATION_ERROR"
	codeNotFound        = "NOT_FOUND"
	codeUnauthenticated = "UNAUTHENTICATED"
	codeForbidden       = "FORBIDDEN"
	codeConflict        = "CONFLICT"
	codeRentalConflict  = "RENTAL_CONFLICT"
	codeInvalidState    = "INVALID_STATE"
	codeInvalidMileage  = "INVALID_MILEAGE"
	codeOptimisticLock  = "OPTIMISTIC_LOCK_FAILURE"
	codeInProgress      = "REQUEST_IN_PROGRESS"
	codeRateLimited     = "RATE_LIMITED"
	codeDatabase        = "DATABASE_ERROR"
	codeInternal        = "INTERNAL_ERROR"
)

// Sentinels raised by the pipeline itself rather than a domain service.
var (
	errMalformedRequest  = errors.New("malformed_request")
	errMissingAuth       = errors.New("missing_bearer_token")
	errRateLimited       = errors.New("rate_limited")
	errRequestInProgress = errors.New("request_in_progress")
	errIdempotencyReuse  = errors.New("idempotency_key_reuse")
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps every domain sentinel onto a status and client code.
// Order matters only for readability; sentinels are distinct values.
var errorTable = []errorMapping{
	// Pipeline.
	{errMalformedRequest, http.StatusBadRequest, codeValidation},
	{errMissingAuth, http.StatusUnauthorized, codeUnauthenticated},
	{errRateLimited, http.StatusTooManyRequests, codeRateLimited},
	{errRequestInProgress, http.StatusConflict, codeInProgress},
	{errIdempotencyReuse, http.StatusConflict, codeConflict},
	{idempotency.ErrEmptyKey, http.StatusUnprocessableEntity, codeValidation},

	// Tokens and access control.
	{token.ErrTokenExpired, http.StatusUnauthorized, codeUnauthenticated},
	{token.ErrInvalidToken, http.StatusUnauthorized, codeUnauthenticated},
	{authorization.ErrInvalidActor, http.StatusUnauthorized, codeUnauthenticated},
	{authorization.ErrForbidden, http.StatusForbidden, codeForbidden},

	// Users.
	{userdomain.ErrInvalidID, http.StatusUnprocessableEntity, codeValidation},
	{userdomain.ErrInvalidEmail, http.StatusUnprocessableEntity, codeValidation},
	{userdomain.ErrInvalidName, http.StatusUnprocessableEntity, codeValidation},
	{userdomain.ErrWeakPassword, http.StatusUnprocessableEntity, codeValidation},
	{userdomain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{userdomain.ErrEmailTaken, http.StatusConflict, codeConflict},
	{userdomain.ErrInvalidCredentials, http.StatusUnauthorized, codeUnauthenticated},
	{userdomain.ErrInvalidRefreshToken, http.StatusUnauthorized, codeUnauthenticated},
	{userdomain.ErrUserDisabled, http.StatusForbidden, codeForbidden},

	// Vehicles.
	{vehicledomain.ErrInvalidID, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidVIN, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidPlate, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidMake, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidModel, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidYear, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidSource, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidMileage, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidDailyRate, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidCapacity, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidCurrency, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidState, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidLocation, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrInvalidPageToken, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrMissingVersion, http.StatusUnprocessableEntity, codeValidation},
	{vehicledomain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{vehicledomain.ErrDuplicateVIN, http.StatusConflict, codeConflict},
	{vehicledomain.ErrDuplicatePlate, http.StatusConflict, codeConflict},
	{vehicledomain.ErrInvalidTransition, http.StatusConflict, codeInvalidState},
	{vehicledomain.ErrNotAvailable, http.StatusConflict, codeInvalidState},
	{vehicledomain.ErrVersionConflict, http.StatusConflict, codeOptimisticLock},
	{vehicledomain.ErrMileageDecreasing, http.StatusUnprocessableEntity, codeInvalidMileage},

	// Customers.
	{customerdomain.ErrInvalidID, http.StatusUnprocessableEntity, codeValidation},
	{customerdomain.ErrInvalidEmail, http.StatusUnprocessableEntity, codeValidation},
	{customerdomain.ErrInvalidName, http.StatusUnprocessableEntity, codeValidation},
	{customerdomain.ErrInvalidLicense, http.StatusUnprocessableEntity, codeValidation},
	{customerdomain.ErrInvalidPageToken, http.StatusUnprocessableEntity, codeValidation},
	{customerdomain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{customerdomain.ErrDuplicateEmail, http.StatusConflict, codeConflict},
	{customerdomain.ErrDuplicateLicense, http.StatusConflict, codeConflict},
	// A rental for an inactive customer or expired license is not a bad
	// transition, the request itself can never succeed.
	{customerdomain.ErrInactive, http.StatusUnprocessableEntity, codeInvalidState},
	{customerdomain.ErrLicenseExpired, http.StatusUnprocessableEntity, codeInvalidState},

	// Rentals.
	{rentaldomain.ErrInvalidID, http.StatusUnprocessableEntity, codeValidation},
	{rentaldomain.ErrInvalidPeriod, http.StatusUnprocessableEntity, codeValidation},
	{rentaldomain.ErrInvalidStatus, http.StatusUnprocessableEntity, codeValidation},
	{rentaldomain.ErrInvalidPageToken, http.StatusUnprocessableEntity, codeValidation},
	{rentaldomain.ErrInvalidOdometer, http.StatusUnprocessableEntity, codeInvalidMileage},
	{rentaldomain.ErrInvalidFinalMileage, http.StatusUnprocessableEntity, codeInvalidMileage},
	{rentaldomain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{rentaldomain.ErrConflict, http.StatusConflict, codeRentalConflict},
	{rentaldomain.ErrNotReserved, http.StatusConflict, codeInvalidState},
	{rentaldomain.ErrNotActive, http.StatusConflict, codeInvalidState},
	{rentaldomain.ErrNotCancellable, http.StatusConflict, codeInvalidState},

	// Maintenance.
	{maintenancedomain.ErrInvalidID, http.StatusUnprocessableEntity, codeValidation},
	{maintenancedomain.ErrInvalidType, http.StatusUnprocessableEntity, codeValidation},
	{maintenancedomain.ErrInvalidPriority, http.StatusUnprocessableEntity, codeValidation},
	{maintenancedomain.ErrInvalidSchedule, http.StatusUnprocessableEntity, codeValidation},
	{maintenancedomain.ErrInvalidStatus, http.StatusUnprocessableEntity, codeValidation},
	{maintenancedomain.ErrInvalidLaborCost, http.StatusUnprocessableEntity, codeValidation},
	{maintenancedomain.ErrInvalidPart, http.StatusUnprocessableEntity, codeValidation},
	{maintenancedomain.ErrInvalidPageToken, http.StatusUnprocessableEntity, codeValidation},
	{maintenancedomain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{maintenancedomain.ErrNotScheduled, http.StatusConflict, codeInvalidState},
	{maintenancedomain.ErrNotDue, http.StatusConflict, codeInvalidState},
	{maintenancedomain.ErrNotInProgress, http.StatusConflict, codeInvalidState},
	{maintenancedomain.ErrNotCancellable, http.StatusConflict, codeInvalidState},

	// Ledger.
	{ledgerdomain.ErrInvalidExternalReference, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrInvalidEntryDate, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrInvalidEntryLines, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrInvalidLineDirection, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrInvalidLineAmount, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrUnbalancedEntry, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrInvalidAccountCode, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrInvalidAccountName, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrInvalidAccountType, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrInvalidPeriod, http.StatusUnprocessableEntity, codeValidation},
	{ledgerdomain.ErrAccountNotFound, http.StatusNotFound, codeNotFound},
	{ledgerdomain.ErrAccountInactive, http.StatusUnprocessableEntity, codeInvalidState},
	{ledgerdomain.ErrDuplicateAccountCode, http.StatusConflict, codeConflict},

	// Invoices.
	{invoicedomain.ErrInvalidID, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrInvalidSubtotal, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrInvalidTax, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrInvalidTotal, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrInvalidDueDate, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrInvalidStatus, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrInvalidPageToken, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrRentalMismatch, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrOverpayment, http.StatusUnprocessableEntity, codeValidation},
	{invoicedomain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{invoicedomain.ErrNotDraft, http.StatusConflict, codeInvalidState},
	{invoicedomain.ErrNotPayable, http.StatusConflict, codeInvalidState},
	{invoicedomain.ErrNotCancellable, http.StatusConflict, codeInvalidState},

	// Payment methods.
	{paymentdomain.ErrInvalidDisplayName, http.StatusUnprocessableEntity, codeValidation},
	{paymentdomain.ErrInvalidTargetAccount, http.StatusUnprocessableEntity, codeValidation},
	{paymentdomain.ErrInvalidAmount, http.StatusUnprocessableEntity, codeValidation},
	{paymentdomain.ErrDuplicateMethod, http.StatusConflict, codeConflict},
	{paymentdomain.ErrMethodNotFound, http.StatusNotFound, codeNotFound},
	{paymentdomain.ErrMethodInactive, http.StatusUnprocessableEntity, codeInvalidState},

	// Audit trail.
	{auditdomain.ErrInvalidPageToken, http.StatusUnprocessableEntity, codeValidation},
	{auditdomain.ErrInvalidTimeRange, http.StatusUnprocessableEntity, codeValidation},
	{auditdomain.ErrInvalidAction, http.StatusUnprocessableEntity, codeValidation},
}

// AbortWithError records err for the translator and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandlingMiddleware turns the last recorded error into the error
// envelope, unless a handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		if last == nil {
			return
		}

		status, code, message, details := mapError(last.Err)
		respondError(c, status, code, message, details)
	}
}

func classify(err error) (errorMapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return errorMapping{}, false
}

func mapError(err error) (int, string, string, any) {
	if m, ok := classify(err); ok {
		reason := m.err.Error()
		return m.status, m.code, strings.ReplaceAll(reason, "_", " "), gin.H{"reason": reason}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, codeNotFound, "resource not found", nil
	case isDatabaseError(err):
		return http.StatusInternalServerError, codeDatabase, "storage failure", nil
	default:
		return http.StatusInternalServerError, codeInternal, "internal error", nil
	}
}

// classifyErrorForLog feeds the request logger the client-facing code
// plus the precise reason, without running the full translation.
func classifyErrorForLog(err error) (string, string) {
	if m, ok := classify(err); ok {
		return m.code, m.err.Error()
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return codeNotFound, "record_not_found"
	}
	if isDatabaseError(err) {
		return codeDatabase, "storage_error"
	}
	return codeInternal, "unexpected_error"
}

func isDatabaseError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	return errors.Is(err, gorm.ErrInvalidDB) || errors.Is(err, gorm.ErrInvalidTransaction)
}
