package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/audit"
	"github.com/karsada/fleetcore/internal/auth"
	"github.com/karsada/fleetcore/internal/authorization"
	"github.com/karsada/fleetcore/internal/cache"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	"github.com/karsada/fleetcore/internal/customer"
	"github.com/karsada/fleetcore/internal/events"
	"github.com/karsada/fleetcore/internal/idempotency"
	"github.com/karsada/fleetcore/internal/invoice"
	"github.com/karsada/fleetcore/internal/ledger"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	"github.com/karsada/fleetcore/internal/maintenance"
	"github.com/karsada/fleetcore/internal/migration"
	"github.com/karsada/fleetcore/internal/observability"
	"github.com/karsada/fleetcore/internal/payment"
	"github.com/karsada/fleetcore/internal/providers"
	"github.com/karsada/fleetcore/internal/ratelimit"
	"github.com/karsada/fleetcore/internal/rental"
	"github.com/karsada/fleetcore/internal/server"
	"github.com/karsada/fleetcore/internal/user"
	"github.com/karsada/fleetcore/internal/vehicle"
	"github.com/karsada/fleetcore/pkg/db"
	"github.com/karsada/fleetcore/pkg/reference"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

// env is shared by every test in this package. The fx graph is booted
// once because the collectors register on the default Prometheus
// registry and a second boot in the same process would panic.
var env *testEnv

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	ledgerSvc ledgerdomain.Service
	httpSrv   *httptest.Server
	baseURL   string
	dbFile    string
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", filepath.Join(os.TempDir(), fmt.Sprintf("fleetcore-e2e-%d", os.Getpid())))
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	setEnvIfEmpty("JWT_SECRET", strings.Repeat("0123456789abcdef", 4))
	setEnvIfEmpty("ADMIN_EMAIL", "ops@karsada.ph")
	setEnvIfEmpty("ADMIN_PASSWORD", "e2e-admin-password")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

// startEnv boots the same fx graph as cmd/fleetcore minus the scheduler
// and the telemetry push loop, then serves the populated engine from an
// httptest server. Migrations and seeds run inside migration.Module, so
// the chart of accounts, the payment methods and the bootstrap admin are
// ready once Start returns.
func startEnv() (*testEnv, error) {
	var (
		cfg       config.Config
		dbConn    *gorm.DB
		engine    *gin.Engine
		ledgerSvc ledgerdomain.Service
	)

	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		migration.Module,
		reference.Module,
		fx.Provide(telemetry.NewMetrics),
		events.Module,
		cache.Module,
		auth.Module,
		authorization.Module,
		audit.Module,
		idempotency.Module,
		ratelimit.Module,
		providers.Module,
		ledger.Module,
		vehicle.Module,
		customer.Module,
		rental.Module,
		maintenance.Module,
		payment.Module,
		invoice.Module,
		user.Module,
		server.Module,
		fx.Populate(&cfg, &dbConn, &engine, &ledgerSvc),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(engine)

	return &testEnv{
		app:       app,
		db:        dbConn,
		ledgerSvc: ledgerSvc,
		httpSrv:   httpSrv,
		baseURL:   httpSrv.URL,
		dbFile:    cfg.DBName + ".db",
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = e.app.Stop(ctx)
	}
	if e.dbFile != "" {
		_ = os.Remove(e.dbFile)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

func doJSON(t *testing.T, client *http.Client, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build %s %s: %v", method, reqURL, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, reqURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, raw
}

func decodeJSON(t *testing.T, raw []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode response %s: %v", string(raw), err)
	}
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var failure struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, raw, &failure)
	return failure.Error.Code
}

func countRows(t *testing.T, conn *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := conn.Table(table).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count rows in %s: %v", table, err)
	}
	return n
}

// loginAdmin exchanges the seeded bootstrap credentials for a bearer
// token. Admin holds every grant, which keeps the scenarios about the
// domain rather than about role wiring.
func loginAdmin(t *testing.T, client *http.Client) string {
	t.Helper()

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/users/login", map[string]any{
		"email":    os.Getenv("ADMIN_EMAIL"),
		"password": os.Getenv("ADMIN_PASSWORD"),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin login: expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var decoded struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	decodeJSON(t, body, &decoded)
	if decoded.Data.AccessToken == "" {
		t.Fatalf("admin login: missing access token in %s", string(body))
	}
	return "Bearer " + decoded.Data.AccessToken
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": token}
}

func createVehicle(t *testing.T, client *http.Client, token, vin, plate string, mileageKm, dailyRate int64) string {
	t.Helper()

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/vehicles", map[string]any{
		"vin":               vin,
		"plate":             plate,
		"make":              "Toyota",
		"model":             "Vios",
		"year":              2024,
		"color":             "White",
		"mileageKm":         mileageKm,
		"dailyRateAmount":   dailyRate,
		"currency":          "PHP",
		"passengerCapacity": 5,
	}, authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create vehicle: expected 201, got %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decodeJSON(t, body, &created)
	if created.Data.ID == "" {
		t.Fatalf("create vehicle: missing id in %s", string(body))
	}
	return created.Data.ID
}

func createCustomer(t *testing.T, client *http.Client, token, email, license string) string {
	t.Helper()

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/customers", map[string]any{
		"email":               email,
		"phone":               "+63-917-555-0101",
		"firstName":           "Maria",
		"lastName":            "Santos",
		"driverLicenseNumber": license,
		"driverLicenseExpiry": "2030-01-31T00:00:00Z",
		"addressLine1":        "12 Katipunan Ave",
		"city":                "Quezon City",
		"province":            "Metro Manila",
		"postalCode":          "1108",
	}, authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create customer: expected 201, got %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decodeJSON(t, body, &created)
	if created.Data.ID == "" {
		t.Fatalf("create customer: missing id in %s", string(body))
	}
	return created.Data.ID
}

func getVehicle(t *testing.T, client *http.Client, token, id string) (state string, mileageKm int64) {
	t.Helper()

	resp, body := doJSON(t, client, http.MethodGet, env.baseURL+"/v1/vehicles/"+id, nil, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get vehicle: expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var decoded struct {
		Data struct {
			State     string `json:"state"`
			MileageKm int64  `json:"mileageKm"`
		} `json:"data"`
	}
	decodeJSON(t, body, &decoded)
	return decoded.Data.State, decoded.Data.MileageKm
}

type ledgerLineRow struct {
	Code      string `gorm:"column:code"`
	Direction string `gorm:"column:direction"`
	Amount    int64  `gorm:"column:amount"`
}

func entryLines(t *testing.T, externalRef string) []ledgerLineRow {
	t.Helper()

	var rows []ledgerLineRow
	err := env.db.Raw(`
		SELECT a.code, l.direction, l.amount
		FROM ledger_entry_lines l
		JOIN ledger_entries e ON e.id = l.ledger_entry_id
		JOIN accounts a ON a.id = l.account_id
		WHERE e.external_reference = ?
		ORDER BY a.code`, externalRef).Scan(&rows).Error
	if err != nil {
		t.Fatalf("query ledger lines for %s: %v", externalRef, err)
	}
	return rows
}

func TestE2E_RentalLifecycle(t *testing.T) {
	client := newHTTPClient()
	token := loginAdmin(t, client)

	vehicleID := createVehicle(t, client, token, "JTDBT4K3XA4071001", "KAA-1001", 10000, 500)
	customerID := createCustomer(t, client, token, "lifecycle@e2e.karsada.ph", "N01-11-000001")

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/rentals", map[string]any{
		"vehicleId":  vehicleID,
		"customerId": customerID,
		"startDate":  "2026-06-01T10:00:00Z",
		"endDate":    "2026-06-05T10:00:00Z",
	}, authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create rental: expected 201, got %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Data struct {
			ID          string `json:"id"`
			Status      string `json:"status"`
			TotalAmount int64  `json:"totalAmount"`
			Currency    string `json:"currency"`
		} `json:"data"`
	}
	decodeJSON(t, body, &created)
	if created.Data.Status != "RESERVED" {
		t.Fatalf("expected status RESERVED, got %s", created.Data.Status)
	}
	if created.Data.TotalAmount != 2000 {
		t.Fatalf("expected total 2000 for four days at 500, got %d", created.Data.TotalAmount)
	}
	rentalID := created.Data.ID

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/rentals/"+rentalID+"/activate", map[string]any{
		"startOdometerKm": 10000,
	}, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate rental: expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var activated struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	decodeJSON(t, body, &activated)
	if activated.Data.Status != "ACTIVE" {
		t.Fatalf("expected status ACTIVE, got %s", activated.Data.Status)
	}

	if state, _ := getVehicle(t, client, token, vehicleID); state != "RENTED" {
		t.Fatalf("expected vehicle state RENTED after activation, got %s", state)
	}

	ref := "rental-" + rentalID + "-activation"
	if n := countRows(t, env.db, "ledger_entries", "external_reference = ?", ref); n != 1 {
		t.Fatalf("expected one activation ledger entry, got %d", n)
	}
	lines := entryLines(t, ref)
	if len(lines) != 2 {
		t.Fatalf("expected two ledger lines, got %d", len(lines))
	}
	if lines[0].Code != "1100" || lines[0].Direction != "debit" || lines[0].Amount != 2000 {
		t.Fatalf("expected debit 1100 for 2000, got %s %s %d", lines[0].Code, lines[0].Direction, lines[0].Amount)
	}
	if lines[1].Code != "4000" || lines[1].Direction != "credit" || lines[1].Amount != 2000 {
		t.Fatalf("expected credit 4000 for 2000, got %s %s %d", lines[1].Code, lines[1].Direction, lines[1].Amount)
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/rentals/"+rentalID+"/complete", map[string]any{
		"finalMileage": 10450,
	}, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete rental: expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var completed struct {
		Data struct {
			Status        string `json:"status"`
			EndOdometerKm *int64 `json:"endOdometerKm"`
		} `json:"data"`
	}
	decodeJSON(t, body, &completed)
	if completed.Data.Status != "COMPLETED" {
		t.Fatalf("expected status COMPLETED, got %s", completed.Data.Status)
	}
	if completed.Data.EndOdometerKm == nil || *completed.Data.EndOdometerKm != 10450 {
		t.Fatalf("expected end odometer 10450, got %v", completed.Data.EndOdometerKm)
	}

	state, mileage := getVehicle(t, client, token, vehicleID)
	if state != "AVAILABLE" {
		t.Fatalf("expected vehicle state AVAILABLE after return, got %s", state)
	}
	if mileage != 10450 {
		t.Fatalf("expected vehicle mileage 10450 after return, got %d", mileage)
	}
}

func TestE2E_DoubleBookingRejected(t *testing.T) {
	client := newHTTPClient()
	token := loginAdmin(t, client)

	vehicleID := createVehicle(t, client, token, "JTDBT4K3XA4071002", "KAA-1002", 21000, 450)
	customerID := createCustomer(t, client, token, "overlap@e2e.karsada.ph", "N01-11-000002")

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/rentals", map[string]any{
		"vehicleId":  vehicleID,
		"customerId": customerID,
		"startDate":  "2026-06-01T10:00:00Z",
		"endDate":    "2026-06-05T10:00:00Z",
	}, authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create first rental: expected 201, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/rentals", map[string]any{
		"vehicleId":  vehicleID,
		"customerId": customerID,
		"startDate":  "2026-06-03T10:00:00Z",
		"endDate":    "2026-06-07T10:00:00Z",
	}, authHeaders(token))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("overlapping rental: expected 409, got %d: %s", resp.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "RENTAL_CONFLICT" {
		t.Fatalf("expected error code RENTAL_CONFLICT, got %s", code)
	}

	if n := countRows(t, env.db, "rentals", "vehicle_id = ?", vehicleID); n != 1 {
		t.Fatalf("expected one persisted rental for the vehicle, got %d", n)
	}
}

func TestE2E_IdempotentPayment(t *testing.T) {
	client := newHTTPClient()
	token := loginAdmin(t, client)

	customerID := createCustomer(t, client, token, "payer@e2e.karsada.ph", "N01-11-000003")

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/accounting/invoices", map[string]any{
		"customerId": customerID,
		"subtotal":   2500,
		"tax":        300,
	}, authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create invoice: expected 201, got %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Data struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Total   int64  `json:"total"`
			Balance int64  `json:"balance"`
		} `json:"data"`
	}
	decodeJSON(t, body, &created)
	if created.Data.Status != "ISSUED" {
		t.Fatalf("expected status ISSUED, got %s", created.Data.Status)
	}
	if created.Data.Total != 2800 || created.Data.Balance != 2800 {
		t.Fatalf("expected total and balance 2800, got %d and %d", created.Data.Total, created.Data.Balance)
	}
	invoiceID := created.Data.ID

	payURL := env.baseURL + "/v1/accounting/invoices/" + invoiceID + "/pay"
	payReq := map[string]any{
		"amount":        2800,
		"paymentMethod": "GCASH",
	}
	headers := authHeaders(token)
	headers["Idempotency-Key"] = fmt.Sprintf("e2e-pay-%d", time.Now().UnixNano())

	resp, first := doJSON(t, client, http.MethodPost, payURL, payReq, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pay invoice: expected 200, got %d: %s", resp.StatusCode, string(first))
	}

	var paid struct {
		Data struct {
			Invoice struct {
				Status  string `json:"status"`
				Balance int64  `json:"balance"`
			} `json:"invoice"`
			Payment struct {
				ID string `json:"id"`
			} `json:"payment"`
		} `json:"data"`
	}
	decodeJSON(t, first, &paid)
	if paid.Data.Invoice.Status != "PAID" {
		t.Fatalf("expected invoice status PAID, got %s", paid.Data.Invoice.Status)
	}
	if paid.Data.Invoice.Balance != 0 {
		t.Fatalf("expected invoice balance 0, got %d", paid.Data.Invoice.Balance)
	}
	if paid.Data.Payment.ID == "" {
		t.Fatalf("expected payment id in %s", string(first))
	}

	if n := countRows(t, env.db, "payments", "invoice_id = ?", invoiceID); n != 1 {
		t.Fatalf("expected one payment row, got %d", n)
	}
	if n := countRows(t, env.db, "ledger_entries", "external_reference LIKE ?", "invoice-"+invoiceID+"-payment-%"); n != 1 {
		t.Fatalf("expected one payment ledger entry, got %d", n)
	}

	resp, second := doJSON(t, client, http.MethodPost, payURL, payReq, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay pay invoice: expected 200, got %d: %s", resp.StatusCode, string(second))
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("replay body differs\nfirst:  %s\nsecond: %s", string(first), string(second))
	}

	if n := countRows(t, env.db, "payments", "invoice_id = ?", invoiceID); n != 1 {
		t.Fatalf("expected replay to leave one payment row, got %d", n)
	}
	if n := countRows(t, env.db, "ledger_entries", "external_reference LIKE ?", "invoice-"+invoiceID+"-payment-%"); n != 1 {
		t.Fatalf("expected replay to leave one payment ledger entry, got %d", n)
	}
}

func TestE2E_UnbalancedPostingRejected(t *testing.T) {
	ref := fmt.Sprintf("e2e-unbalanced-%d", time.Now().UnixNano())

	_, err := env.ledgerSvc.Post(context.Background(), ledgerdomain.PostRequest{
		ExternalReference: ref,
		EntryDate:         time.Now().UTC(),
		Description:       "unbalanced probe",
		Lines: []ledgerdomain.Line{
			ledgerdomain.Debit(ledgerdomain.AccountCodeCash, 500),
			ledgerdomain.Credit(ledgerdomain.AccountCodeRentalRevenue, 400),
		},
	})
	if !errors.Is(err, ledgerdomain.ErrUnbalancedEntry) {
		t.Fatalf("expected unbalanced entry rejection, got %v", err)
	}

	if n := countRows(t, env.db, "ledger_entries", "external_reference = ?", ref); n != 0 {
		t.Fatalf("expected no persisted entry for unbalanced posting, got %d", n)
	}
}

func TestE2E_OdometerMonotonicity(t *testing.T) {
	client := newHTTPClient()
	token := loginAdmin(t, client)

	vehicleID := createVehicle(t, client, token, "JTDBT4K3XA4071003", "KAA-1003", 18500, 400)

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/vehicles/"+vehicleID+"/odometer", map[string]any{
		"readingKm": 10000,
		"source":    "MANUAL",
	}, authHeaders(token))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("decreasing reading: expected 422, got %d: %s", resp.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "INVALID_MILEAGE" {
		t.Fatalf("expected error code INVALID_MILEAGE, got %s", code)
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/vehicles/"+vehicleID+"/odometer", map[string]any{
		"readingKm": 18600,
		"source":    "MANUAL",
	}, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("increasing reading: expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	if _, mileage := getVehicle(t, client, token, vehicleID); mileage != 18600 {
		t.Fatalf("expected vehicle mileage 18600, got %d", mileage)
	}
}

func TestE2E_MaintenanceRentalContention(t *testing.T) {
	client := newHTTPClient()
	token := loginAdmin(t, client)

	vehicleID := createVehicle(t, client, token, "JTDBT4K3XA4071004", "KAA-1004", 40000, 600)
	customerID := createCustomer(t, client, token, "contention@e2e.karsada.ph", "N01-11-000004")

	resp, body := doJSON(t, client, http.MethodPost, env.baseURL+"/v1/rentals", map[string]any{
		"vehicleId":  vehicleID,
		"customerId": customerID,
		"startDate":  "2026-06-10T09:00:00Z",
		"endDate":    "2026-06-12T09:00:00Z",
	}, authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create rental: expected 201, got %d: %s", resp.StatusCode, string(body))
	}

	var rentalResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decodeJSON(t, body, &rentalResp)
	rentalID := rentalResp.Data.ID

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/rentals/"+rentalID+"/activate", map[string]any{
		"startOdometerKm": 40000,
	}, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate rental: expected 200, got %d: %s", resp.StatusCode, string(body))
	}
	if state, _ := getVehicle(t, client, token, vehicleID); state != "RENTED" {
		t.Fatalf("expected vehicle state RENTED, got %s", state)
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/maintenance", map[string]any{
		"vehicleId":     vehicleID,
		"type":          "REPAIR",
		"priority":      "HIGH",
		"scheduledDate": time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		"notes":         "brake pads",
	}, authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create maintenance job: expected 201, got %d: %s", resp.StatusCode, string(body))
	}

	var jobResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decodeJSON(t, body, &jobResp)
	jobID := jobResp.Data.ID

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/maintenance/"+jobID+"/start", nil, authHeaders(token))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("start on rented vehicle: expected 409, got %d: %s", resp.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "INVALID_STATE" {
		t.Fatalf("expected error code INVALID_STATE, got %s", code)
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/rentals/"+rentalID+"/complete", map[string]any{
		"finalMileage": 40200,
	}, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete rental: expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, client, http.MethodPost, env.baseURL+"/v1/maintenance/"+jobID+"/start", nil, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start after return: expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var started struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	decodeJSON(t, body, &started)
	if started.Data.Status != "IN_PROGRESS" {
		t.Fatalf("expected job status IN_PROGRESS, got %s", started.Data.Status)
	}

	if state, _ := getVehicle(t, client, token, vehicleID); state != "MAINTENANCE" {
		t.Fatalf("expected vehicle state MAINTENANCE, got %s", state)
	}
}
