package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	auditrepo "github.com/karsada/fleetcore/internal/audit/repository"
	auditservice "github.com/karsada/fleetcore/internal/audit/service"
	"github.com/karsada/fleetcore/internal/auth/token"
	"github.com/karsada/fleetcore/internal/authorization"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	customerrepo "github.com/karsada/fleetcore/internal/customer/repository"
	customerservice "github.com/karsada/fleetcore/internal/customer/service"
	"github.com/karsada/fleetcore/internal/events"
	"github.com/karsada/fleetcore/internal/idempotency"
	invoicedomain "github.com/karsada/fleetcore/internal/invoice/domain"
	invoicerepo "github.com/karsada/fleetcore/internal/invoice/repository"
	invoiceservice "github.com/karsada/fleetcore/internal/invoice/service"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	ledgerservice "github.com/karsada/fleetcore/internal/ledger/service"
	maintenancedomain "github.com/karsada/fleetcore/internal/maintenance/domain"
	maintenancerepo "github.com/karsada/fleetcore/internal/maintenance/repository"
	maintenanceservice "github.com/karsada/fleetcore/internal/maintenance/service"
	"github.com/karsada/fleetcore/internal/observability"
	paymentdomain "github.com/karsada/fleetcore/internal/payment/domain"
	paymentrepo "github.com/karsada/fleetcore/internal/payment/repository"
	paymentservice "github.com/karsada/fleetcore/internal/payment/service"
	"github.com/karsada/fleetcore/internal/providers/pdf"
	"github.com/karsada/fleetcore/internal/ratelimit"
	rentaldomain "github.com/karsada/fleetcore/internal/rental/domain"
	rentalrepo "github.com/karsada/fleetcore/internal/rental/repository"
	rentalservice "github.com/karsada/fleetcore/internal/rental/service"
	"github.com/karsada/fleetcore/internal/seed"
	userdomain "github.com/karsada/fleetcore/internal/user/domain"
	userrepo "github.com/karsada/fleetcore/internal/user/repository"
	userservice "github.com/karsada/fleetcore/internal/user/service"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
	vehiclerepo "github.com/karsada/fleetcore/internal/vehicle/repository"
	vehicleservice "github.com/karsada/fleetcore/internal/vehicle/service"
	"github.com/karsada/fleetcore/pkg/reference"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type rig struct {
	server *Server
	engine *gin.Engine
	db     *gorm.DB
	clock  *clock.FakeClock
	tokens *token.Manager

	customerSvc customerdomain.Service
	invoiceSvc  invoicedomain.Service
	rentalSvc   rentaldomain.Service
}

type rigOption func(*config.Config)

func withRedis(addr string) rigOption {
	return func(cfg *config.Config) {
		cfg.RedisAddr = addr
	}
}

func newRig(t *testing.T, opts ...rigOption) *rig {
	t.Helper()

	cfg := config.Config{
		Environment: "test",
		HTTPAddr:    ":0",
		JWTSecret:   strings.Repeat("0123456789abcdef", 4),
		JWTIssuer:   "fleetcore",
		JWTAudience: "fleetcore-api",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  720 * time.Hour,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&vehicledomain.Vehicle{},
		&vehicledomain.OdometerReading{},
		&customerdomain.Customer{},
		&rentaldomain.Rental{},
		&rentaldomain.RentalPeriod{},
		&maintenancedomain.MaintenanceJob{},
		&maintenancedomain.MaintenancePart{},
		&ledgerdomain.Account{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
		&invoicedomain.Invoice{},
		&paymentdomain.PaymentMethod{},
		&paymentdomain.Payment{},
		&userdomain.User{},
		&userdomain.RefreshToken{},
		&idempotency.Key{},
		&events.OutboxEvent{},
		&events.InboxMessage{},
		&events.DLQMessage{},
		&auditdomain.AuditLog{},
	))
	require.NoError(t, seed.Ensure(conn, cfg))

	fake := clock.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ref := reference.NewGenerator(reference.Params{Node: node, Clock: fake})
	outbox := events.NewOutbox(log)

	tokens := token.NewManager(token.Params{Cfg: cfg, Clock: fake})

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, Clock: fake, Repo: auditrepo.Provide(),
	})
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{
		DB: conn, Log: log, Enforcer: enforcer, AuditSvc: auditSvc,
	})

	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB: conn, Log: log, Clock: fake, Ref: ref, Outbox: outbox, AuditSvc: auditSvc,
	})
	vehicleSvc := vehicleservice.New(vehicleservice.Params{
		DB: conn, Log: log, Clock: fake, Repo: vehiclerepo.Provide(),
		Outbox: outbox, AuditSvc: auditSvc,
	})
	customerSvc := customerservice.New(customerservice.Params{
		DB: conn, Log: log, Clock: fake, Repo: customerrepo.Provide(), AuditSvc: auditSvc,
	})
	rentalSvc := rentalservice.New(rentalservice.Params{
		DB: conn, Log: log, Clock: fake, Ref: ref,
		Repo:        rentalrepo.Provide(),
		VehicleRepo: vehiclerepo.Provide(), CustomerRepo: customerrepo.Provide(),
		LedgerSvc: ledgerSvc, Outbox: outbox, AuditSvc: auditSvc,
	})
	maintenanceSvc := maintenanceservice.New(maintenanceservice.Params{
		DB: conn, Log: log, Clock: fake, Ref: ref,
		Repo:        maintenancerepo.Provide(),
		VehicleRepo: vehiclerepo.Provide(),
		LedgerSvc:   ledgerSvc, Outbox: outbox, AuditSvc: auditSvc,
	})
	paymentSvc := paymentservice.New(paymentservice.Params{
		DB: conn, Log: log, Clock: fake, Repo: paymentrepo.Provide(),
		LedgerSvc: ledgerSvc, AuditSvc: auditSvc,
	})
	invoiceSvc := invoiceservice.New(invoiceservice.Params{
		DB: conn, Log: log, Clock: fake, Cfg: cfg, Ref: ref,
		Repo:         invoicerepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
		RentalRepo:   rentalrepo.Provide(),
		PaymentRepo:  paymentrepo.Provide(),
		LedgerSvc:    ledgerSvc, Renderer: pdf.New(), Outbox: outbox, AuditSvc: auditSvc,
	})
	userSvc := userservice.New(userservice.Params{
		DB: conn, Log: log, Clock: fake, Repo: userrepo.Provide(), Tokens: tokens,
	})

	idemStore := idempotency.NewStore(idempotency.Params{DB: conn, Log: log, Clock: fake})
	limiter := ratelimit.New(cfg, nil)

	engine := registerGin(observability.Config{Environment: "test", LogLevel: "error"}, nil, nil)
	srv := NewServer(ServerParams{
		Cfg:            cfg,
		Log:            log,
		Engine:         engine,
		VehicleSvc:     vehicleSvc,
		CustomerSvc:    customerSvc,
		RentalSvc:      rentalSvc,
		MaintenanceSvc: maintenanceSvc,
		LedgerSvc:      ledgerSvc,
		InvoiceSvc:     invoiceSvc,
		PaymentSvc:     paymentSvc,
		UserSvc:        userSvc,
		AuthzSvc:       authzSvc,
		AuditSvc:       auditSvc,
		Tokens:         tokens,
		IdemStore:      idemStore,
		Limiter:        limiter,
	})

	return &rig{
		server:      srv,
		engine:      engine,
		db:          conn,
		clock:       fake,
		tokens:      tokens,
		customerSvc: customerSvc,
		invoiceSvc:  invoiceSvc,
		rentalSvc:   rentalSvc,
	}
}

// bearer mints an access token for a throwaway principal with the given
// roles. Authentication only trusts the token, so no user row is needed.
func (r *rig) bearer(t *testing.T, roles ...string) string {
	t.Helper()
	raw, _, err := r.tokens.IssueAccess(uuid.New(), "ops@karsada.ph", roles)
	require.NoError(t, err)
	return "Bearer " + raw
}

func (r *rig) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)
	return w
}

func authHeader(auth string) map[string]string {
	return map[string]string{"Authorization": auth}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	RequestID string `json:"requestId"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func requireErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) apiEnvelope {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, code, env.Error.Code)
	return env
}

func vehiclePayload(vin, plate string) map[string]any {
	return map[string]any{
		"vin":               vin,
		"plate":             plate,
		"make":              "Toyota",
		"model":             "Vios",
		"year":              2023,
		"color":             "White",
		"mileageKm":         12000,
		"dailyRateAmount":   250000,
		"currency":          "PHP",
		"passengerCapacity": 5,
	}
}

func (r *rig) createVehicle(t *testing.T, auth, vin, plate string) vehicledomain.Vehicle {
	t.Helper()
	w := r.do(t, http.MethodPost, "/v1/vehicles", vehiclePayload(vin, plate), authHeader(auth))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var vehicle vehicledomain.Vehicle
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &vehicle))
	return vehicle
}

func TestHealthEndpoint(t *testing.T) {
	r := newRig(t)

	w := r.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestEnvelopeCarriesRequestID(t *testing.T) {
	r := newRig(t)
	auth := r.bearer(t, userdomain.RoleFleetManager)

	w := r.do(t, http.MethodGet, "/v1/vehicles", nil, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.True(t, strings.HasPrefix(env.RequestID, "req_"), env.RequestID)
	assert.Equal(t, env.RequestID, w.Header().Get("X-Request-Id"))
}

func TestClientRequestIDIsEchoed(t *testing.T) {
	r := newRig(t)
	auth := r.bearer(t, userdomain.RoleFleetManager)

	w := r.do(t, http.MethodGet, "/v1/vehicles", nil, map[string]string{
		"Authorization": auth,
		"X-Request-Id":  "req_client_supplied",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req_client_supplied", decodeEnvelope(t, w).RequestID)
}

func TestMalformedBodyIs400(t *testing.T) {
	r := newRig(t)
	auth := r.bearer(t, userdomain.RoleFleetManager)

	w := r.do(t, http.MethodPost, "/v1/vehicles", `{"vin": `, authHeader(auth))
	requireErrorCode(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestSemanticValidationIs422(t *testing.T) {
	r := newRig(t)
	auth := r.bearer(t, userdomain.RoleFleetManager)

	payload := vehiclePayload("", "NAA-1001")
	w := r.do(t, http.MethodPost, "/v1/vehicles", payload, authHeader(auth))
	env := requireErrorCode(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	assert.Equal(t, "invalid_vin", env.Error.Details["reason"])
}

func TestVehicleLifecycleOverHTTP(t *testing.T) {
	r := newRig(t)
	auth := r.bearer(t, userdomain.RoleFleetManager)

	vehicle := r.createVehicle(t, auth, "1HGCM82633A004352", "NAA-1001")
	assert.Equal(t, vehicledomain.StateAvailable, vehicle.State)
	assert.EqualValues(t, 1, vehicle.Version)

	// Same VIN again is a conflict.
	w := r.do(t, http.MethodPost, "/v1/vehicles", vehiclePayload("1HGCM82633A004352", "NAA-1002"), authHeader(auth))
	requireErrorCode(t, w, http.StatusConflict, "CONFLICT")

	// Read it back.
	w = r.do(t, http.MethodGet, "/v1/vehicles/"+vehicle.ID.String(), nil, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code)

	// Optimistic update bumps the version.
	w = r.do(t, http.MethodPatch, "/v1/vehicles/"+vehicle.ID.String(), map[string]any{
		"version": vehicle.Version,
		"color":   "Silver",
	}, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated vehicledomain.Vehicle
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &updated))
	assert.Equal(t, "Silver", updated.Color)
	assert.EqualValues(t, 2, updated.Version)

	// Replaying the stale version loses.
	w = r.do(t, http.MethodPatch, "/v1/vehicles/"+vehicle.ID.String(), map[string]any{
		"version": vehicle.Version,
		"color":   "Red",
	}, authHeader(auth))
	requireErrorCode(t, w, http.StatusConflict, "OPTIMISTIC_LOCK_FAILURE")

	// State hop through maintenance and back.
	w = r.do(t, http.MethodPatch, "/v1/vehicles/"+vehicle.ID.String()+"/state", map[string]any{
		"state": vehicledomain.StateMaintenance,
	}, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = r.do(t, http.MethodPatch, "/v1/vehicles/"+vehicle.ID.String()+"/state", map[string]any{
		"state": vehicledomain.StateRented,
	}, authHeader(auth))
	requireErrorCode(t, w, http.StatusConflict, "INVALID_STATE")

	w = r.do(t, http.MethodPatch, "/v1/vehicles/"+vehicle.ID.String()+"/state", map[string]any{
		"state": vehicledomain.StateAvailable,
	}, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code)

	// Odometer must never run backwards.
	w = r.do(t, http.MethodPost, "/v1/vehicles/"+vehicle.ID.String()+"/odometer", map[string]any{
		"readingKm": 12500,
		"source":    "MANUAL",
	}, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = r.do(t, http.MethodPost, "/v1/vehicles/"+vehicle.ID.String()+"/odometer", map[string]any{
		"readingKm": 11000,
		"source":    "MANUAL",
	}, authHeader(auth))
	requireErrorCode(t, w, http.StatusUnprocessableEntity, "INVALID_MILEAGE")

	// Retire ends the lifecycle with an empty 204.
	w = r.do(t, http.MethodDelete, "/v1/vehicles/"+vehicle.ID.String(), nil, authHeader(auth))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = r.do(t, http.MethodGet, "/v1/vehicles/"+vehicle.ID.String(), nil, authHeader(auth))
	require.Equal(t, http.StatusOK, w.Code)
	var retired vehicledomain.Vehicle
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &retired))
	assert.Equal(t, vehicledomain.StateRetired, retired.State)
}

func TestVehicleNotFoundAndBadID(t *testing.T) {
	r := newRig(t)
	auth := r.bearer(t, userdomain.RoleFleetManager)

	w := r.do(t, http.MethodGet, "/v1/vehicles/"+uuid.NewString(), nil, authHeader(auth))
	requireErrorCode(t, w, http.StatusNotFound, "NOT_FOUND")

	w = r.do(t, http.MethodGet, "/v1/vehicles/not-a-uuid", nil, authHeader(auth))
	requireErrorCode(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUserFlowOverHTTP(t *testing.T) {
	r := newRig(t)

	w := r.do(t, http.MethodPost, "/v1/users/register", map[string]any{
		"email":     "maria@example.com",
		"password":  "sampaguita-2026",
		"firstName": "Maria",
		"lastName":  "Santos",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "passwordHash")
	assert.NotContains(t, w.Body.String(), "argon2id")

	w = r.do(t, http.MethodPost, "/v1/users/login", map[string]any{
		"email":    "maria@example.com",
		"password": "sampaguita-2026",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login userdomain.LoginResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &login))
	require.NotEmpty(t, login.AccessToken)
	require.NotEmpty(t, login.RefreshToken)

	w = r.do(t, http.MethodGet, "/v1/users/me", nil, authHeader("Bearer "+login.AccessToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me userdomain.User
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &me))
	assert.Equal(t, "maria@example.com", me.Email)

	w = r.do(t, http.MethodPost, "/v1/users/refresh", map[string]any{
		"refreshToken": login.RefreshToken,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rotated userdomain.LoginResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &rotated))
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	w = r.do(t, http.MethodPost, "/v1/users/login", map[string]any{
		"email":    "maria@example.com",
		"password": "wrong",
	}, nil)
	requireErrorCode(t, w, http.StatusUnauthorized, "UNAUTHENTICATED")
}

func TestAuditLogEndpoint(t *testing.T) {
	r := newRig(t)
	admin := r.bearer(t, userdomain.RoleAdmin)

	r.createVehicle(t, admin, "1HGCM82633A004352", "NAA-1001")

	w := r.do(t, http.MethodGet, "/v1/audit-logs?action=vehicle.created", nil, authHeader(admin))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out auditdomain.ListAuditLogResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &out))
	require.NotEmpty(t, out.AuditLogs)
	entry := out.AuditLogs[0]
	assert.Equal(t, "vehicle.created", entry.Action)
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)

	// Time filters reject garbage.
	w = r.do(t, http.MethodGet, "/v1/audit-logs?startAt=yesterday", nil, authHeader(admin))
	requireErrorCode(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	// Only admins may read the trail.
	agent := r.bearer(t, userdomain.RoleRentalAgent)
	w = r.do(t, http.MethodGet, "/v1/audit-logs", nil, authHeader(agent))
	requireErrorCode(t, w, http.StatusForbidden, "FORBIDDEN")
}

func TestAccountsAndReports(t *testing.T) {
	r := newRig(t)
	finance := r.bearer(t, userdomain.RoleFinanceOwner)

	w := r.do(t, http.MethodGet, "/v1/accounting/accounts", nil, authHeader(finance))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accounts struct {
		Accounts []ledgerdomain.Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &accounts))
	assert.GreaterOrEqual(t, len(accounts.Accounts), 8)

	w = r.do(t, http.MethodGet, "/v1/accounting/accounts/1000/balance", nil, authHeader(finance))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = r.do(t, http.MethodGet, "/v1/accounting/accounts/9999/balance", nil, authHeader(finance))
	requireErrorCode(t, w, http.StatusNotFound, "NOT_FOUND")

	w = r.do(t, http.MethodGet, "/v1/reports/balance-sheet", nil, authHeader(finance))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = r.do(t, http.MethodGet, "/v1/reports/revenue?start=2026-08-01&end=2026-08-31", nil, authHeader(finance))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Inverted period is rejected.
	w = r.do(t, http.MethodGet, "/v1/reports/revenue?start=2026-08-31&end=2026-08-01", nil, authHeader(finance))
	requireErrorCode(t, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	w = r.do(t, http.MethodGet, "/v1/reconciliation/integrity", nil, authHeader(finance))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
