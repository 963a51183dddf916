package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/events"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	"github.com/karsada/fleetcore/pkg/db"
	"github.com/karsada/fleetcore/pkg/reference"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

// sourceManual labels postings that did not come from a business engine.
const sourceManual = "manual"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Ref      *reference.Generator
	Outbox   *events.Outbox
	Metrics  *telemetry.Metrics  `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	ref      *reference.Generator
	outbox   *events.Outbox
	metrics  *telemetry.Metrics
	auditSvc auditdomain.Service
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ledger.service"),
		clock:    p.Clock,
		ref:      p.Ref,
		outbox:   p.Outbox,
		metrics:  p.Metrics,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Post(ctx context.Context, req ledgerdomain.PostRequest) (*ledgerdomain.LedgerEntry, error) {
	var entry *ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posted, err := s.PostTx(ctx, tx, req)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostRequest) (*ledgerdomain.LedgerEntry, error) {
	externalRef := strings.TrimSpace(req.ExternalReference)
	if externalRef == "" {
		return nil, ledgerdomain.ErrInvalidExternalReference
	}
	if req.EntryDate.IsZero() {
		return nil, ledgerdomain.ErrInvalidEntryDate
	}
	if len(req.Lines) < 2 {
		return nil, ledgerdomain.ErrInvalidEntryLines
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = sourceManual
	}

	normalized := make([]ledgerdomain.Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		code := strings.TrimSpace(line.AccountCode)
		if code == "" {
			return nil, ledgerdomain.ErrInvalidAccountCode
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return nil, err
		}
		if line.Amount < 0 {
			return nil, ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.Line{
			AccountCode: code,
			Direction:   direction,
			Amount:      line.Amount,
		})
	}

	// Reject before storage; the deferred trigger re-checks at commit.
	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return nil, err
	}

	accounts, err := s.resolveAccounts(ctx, tx, normalized)
	if err != nil {
		return nil, err
	}

	entry := &ledgerdomain.LedgerEntry{
		ID:                uuid.New(),
		EntryNumber:       s.ref.Journal(),
		ExternalReference: externalRef,
		EntryDate:         req.EntryDate.UTC(),
		Description:       strings.TrimSpace(req.Description),
		CreatedAt:         s.clock.Now(),
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, entry_number, external_reference, entry_date, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_reference) DO NOTHING`,
		entry.ID,
		entry.EntryNumber,
		entry.ExternalReference,
		entry.EntryDate,
		entry.Description,
		entry.CreatedAt,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return s.findByExternalReference(ctx, tx, externalRef)
		}
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// The reference was already posted; the earlier entry stands.
		s.log.Debug("ledger posting replayed",
			zap.String("external_reference", externalRef),
			zap.String("source", source),
		)
		return s.findByExternalReference(ctx, tx, externalRef)
	}

	for _, line := range normalized {
		stored := ledgerdomain.LedgerEntryLine{
			ID:            uuid.New(),
			LedgerEntryID: entry.ID,
			AccountID:     accounts[line.AccountCode].ID,
			Direction:     line.Direction,
			Amount:        line.Amount,
			CreatedAt:     entry.CreatedAt,
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (
				id, ledger_entry_id, account_id, direction, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			stored.ID,
			stored.LedgerEntryID,
			stored.AccountID,
			string(stored.Direction),
			stored.Amount,
			stored.CreatedAt,
		).Error; err != nil {
			return nil, err
		}
		entry.Lines = append(entry.Lines, stored)
	}

	if s.outbox != nil {
		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateLedgerEntry,
			AggregateID:   entry.ID.String(),
			Type:          events.EventLedgerEntryCreated,
			Payload: map[string]any{
				"ledger_entry_id":    entry.ID.String(),
				"entry_number":       entry.EntryNumber,
				"external_reference": entry.ExternalReference,
				"source":             source,
			},
			DedupeKey: "ledger_entry:" + entry.ID.String(),
		}); err != nil {
			return nil, err
		}
	}

	s.metrics.ObserveLedgerEntry(source)
	s.audit(ctx, "ledger.entry_posted", "ledger_entry", entry.ID.String(), map[string]any{
		"entry_number":       entry.EntryNumber,
		"external_reference": entry.ExternalReference,
		"source":             source,
	})

	return entry, nil
}

func (s *Service) CreateAccount(ctx context.Context, req ledgerdomain.CreateAccountRequest) (*ledgerdomain.Account, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, ledgerdomain.ErrInvalidAccountCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ledgerdomain.ErrInvalidAccountName
	}
	accountType := ledgerdomain.AccountType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if !accountType.IsValid() {
		return nil, ledgerdomain.ErrInvalidAccountType
	}

	var parentID *uuid.UUID
	if parentCode := strings.TrimSpace(req.ParentCode); parentCode != "" {
		parent, err := s.AccountByCode(ctx, parentCode)
		if err != nil {
			return nil, err
		}
		parentID = &parent.ID
	}

	now := s.clock.Now()
	account := &ledgerdomain.Account{
		ID:          uuid.New(),
		Code:        code,
		Name:        name,
		Type:        accountType,
		ParentID:    parentID,
		IsActive:    true,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO accounts (
			id, code, name, type, parent_id, is_active, description, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Code,
		account.Name,
		string(account.Type),
		account.ParentID,
		account.IsActive,
		account.Description,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, ledgerdomain.ErrDuplicateAccountCode
		}
		return nil, err
	}

	s.audit(ctx, "ledger.account_created", "account", account.ID.String(), map[string]any{
		"code": account.Code,
		"type": string(account.Type),
	})

	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context, req ledgerdomain.ListAccountsRequest) ([]ledgerdomain.Account, error) {
	query := s.db.WithContext(ctx).Model(&ledgerdomain.Account{})
	if typeFilter := strings.ToUpper(strings.TrimSpace(req.Type)); typeFilter != "" {
		accountType := ledgerdomain.AccountType(typeFilter)
		if !accountType.IsValid() {
			return nil, ledgerdomain.ErrInvalidAccountType
		}
		query = query.Where("type = ?", string(accountType))
	}
	if !req.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}

	var accounts []ledgerdomain.Account
	if err := query.Order("code asc").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Service) AccountByCode(ctx context.Context, code string) (*ledgerdomain.Account, error) {
	return s.accountByCode(ctx, s.db, code)
}

func (s *Service) BalanceOf(ctx context.Context, code string, asOf time.Time) (*ledgerdomain.AccountBalance, error) {
	account, err := s.accountByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}

	raw, err := s.rawBalance(ctx, s.db, account.ID, asOf, "")
	if err != nil {
		return nil, err
	}

	display := raw
	if account.Type.CreditNormal() {
		display = -raw
	}
	return &ledgerdomain.AccountBalance{
		Code:           account.Code,
		Name:           account.Name,
		Type:           account.Type,
		AsOf:           asOf.UTC(),
		Balance:        raw,
		DisplayBalance: display,
	}, nil
}

func (s *Service) RevenueReport(ctx context.Context, start, end time.Time) (*ledgerdomain.RevenueReport, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, ledgerdomain.ErrInvalidPeriod
	}

	accounts, err := s.ListAccounts(ctx, ledgerdomain.ListAccountsRequest{Type: string(ledgerdomain.AccountTypeRevenue)})
	if err != nil {
		return nil, err
	}

	report := &ledgerdomain.RevenueReport{
		StartDate: start.UTC(),
		EndDate:   end.UTC(),
		Lines:     make([]ledgerdomain.RevenueLine, 0, len(accounts)),
	}
	for _, account := range accounts {
		movement, err := s.windowMovement(ctx, s.db, account.ID, start, end)
		if err != nil {
			return nil, err
		}
		// Revenue accounts are credit normal: negate the raw movement.
		amount := -movement
		report.Lines = append(report.Lines, ledgerdomain.RevenueLine{
			Code:   account.Code,
			Name:   account.Name,
			Amount: amount,
		})
		report.TotalRevenue += amount
	}
	return report, nil
}

func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (*ledgerdomain.BalanceSheet, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}

	accounts, err := s.ListAccounts(ctx, ledgerdomain.ListAccountsRequest{})
	if err != nil {
		return nil, err
	}

	sheet := &ledgerdomain.BalanceSheet{
		AsOf:        asOf.UTC(),
		Assets:      []ledgerdomain.BalanceSheetLine{},
		Liabilities: []ledgerdomain.BalanceSheetLine{},
		Equity:      []ledgerdomain.BalanceSheetLine{},
	}
	for _, account := range accounts {
		raw, err := s.rawBalance(ctx, s.db, account.ID, asOf, "")
		if err != nil {
			return nil, err
		}
		display := raw
		if account.Type.CreditNormal() {
			display = -raw
		}
		line := ledgerdomain.BalanceSheetLine{Code: account.Code, Name: account.Name, Balance: display}

		switch account.Type {
		case ledgerdomain.AccountTypeAsset:
			sheet.Assets = append(sheet.Assets, line)
			sheet.TotalAssets += display
		case ledgerdomain.AccountTypeLiability:
			sheet.Liabilities = append(sheet.Liabilities, line)
			sheet.TotalLiabilities += display
		case ledgerdomain.AccountTypeEquity:
			sheet.Equity = append(sheet.Equity, line)
			sheet.TotalEquity += display
		}
	}
	sheet.IsBalanced = sheet.TotalAssets-sheet.TotalLiabilities == sheet.TotalEquity
	return sheet, nil
}

func (s *Service) ReconcileInvoices(ctx context.Context) (*ledgerdomain.InvoiceReconciliation, error) {
	receivable, err := s.accountByCode(ctx, s.db, ledgerdomain.AccountCodeAccountsReceivable)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var invoices []struct {
		ID            uuid.UUID
		InvoiceNumber string
		Paid          int64
	}
	err = s.db.WithContext(ctx).
		Raw(`SELECT id, invoice_number, paid FROM invoices WHERE status <> ? ORDER BY invoice_number`, "DRAFT").
		Scan(&invoices).Error
	if err != nil {
		return nil, err
	}

	report := &ledgerdomain.InvoiceReconciliation{
		CheckedAt:       now,
		InvoicesChecked: len(invoices),
		Mismatches:      []ledgerdomain.InvoiceMismatch{},
	}
	for _, invoice := range invoices {
		prefix := fmt.Sprintf("invoice-%s-payment-", invoice.ID)
		raw, err := s.rawBalance(ctx, s.db, receivable.ID, now, prefix)
		if err != nil {
			return nil, err
		}
		// Payment capture credits AR, so the collected total is the
		// negated raw movement.
		ledgerValue := -raw
		if ledgerValue == invoice.Paid {
			continue
		}
		report.Mismatches = append(report.Mismatches, ledgerdomain.InvoiceMismatch{
			Type:             ledgerdomain.MismatchInvoiceLedger,
			InvoiceID:        invoice.ID.String(),
			InvoiceNumber:    invoice.InvoiceNumber,
			OperationalValue: invoice.Paid,
			LedgerValue:      ledgerValue,
			Difference:       invoice.Paid - ledgerValue,
		})
	}
	return report, nil
}

func (s *Service) CheckIntegrity(ctx context.Context) (*ledgerdomain.IntegrityReport, error) {
	now := s.clock.Now()

	var sums struct {
		Debits  int64
		Credits int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0) AS debits,
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0) AS credits
		FROM ledger_entry_lines`,
	).Scan(&sums).Error
	if err != nil {
		return nil, err
	}

	var rows []struct {
		AccountType string
		Total       int64
	}
	err = s.db.WithContext(ctx).Raw(
		`SELECT
			a.type AS account_type,
			COALESCE(SUM(CASE WHEN l.direction = 'debit' THEN l.amount ELSE -l.amount END), 0) AS total
		FROM accounts a
		LEFT JOIN ledger_entry_lines l ON l.account_id = a.id
		GROUP BY a.type`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byType := make(map[ledgerdomain.AccountType]int64, len(rows))
	for _, row := range rows {
		accountType := ledgerdomain.AccountType(row.AccountType)
		total := row.Total
		if accountType.CreditNormal() {
			total = -total
		}
		byType[accountType] = total
	}

	totals := make([]ledgerdomain.TypeTotal, 0, len(ledgerdomain.AccountTypes))
	for _, accountType := range ledgerdomain.AccountTypes {
		if total, ok := byType[accountType]; ok {
			totals = append(totals, ledgerdomain.TypeTotal{Type: accountType, Total: total})
		}
	}

	return &ledgerdomain.IntegrityReport{
		CheckedAt:    now,
		TotalDebits:  sums.Debits,
		TotalCredits: sums.Credits,
		IsBalanced:   sums.Debits == sums.Credits,
		Totals:       totals,
	}, nil
}

func (s *Service) resolveAccounts(ctx context.Context, tx *gorm.DB, lines []ledgerdomain.Line) (map[string]*ledgerdomain.Account, error) {
	codes := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountCode]; ok {
			continue
		}
		seen[line.AccountCode] = struct{}{}
		codes = append(codes, line.AccountCode)
	}
	sort.Strings(codes)

	var accounts []ledgerdomain.Account
	if err := tx.WithContext(ctx).Where("code IN ?", codes).Find(&accounts).Error; err != nil {
		return nil, err
	}

	resolved := make(map[string]*ledgerdomain.Account, len(accounts))
	for i := range accounts {
		resolved[accounts[i].Code] = &accounts[i]
	}
	for _, code := range codes {
		account, ok := resolved[code]
		if !ok {
			return nil, ledgerdomain.ErrAccountNotFound
		}
		if !account.IsActive {
			return nil, ledgerdomain.ErrAccountInactive
		}
	}
	return resolved, nil
}

func (s *Service) accountByCode(ctx context.Context, tx *gorm.DB, code string) (*ledgerdomain.Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ledgerdomain.ErrInvalidAccountCode
	}

	var account ledgerdomain.Account
	err := tx.WithContext(ctx).Where("code = ?", code).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// rawBalance returns debits minus credits over lines of entries dated at
// or before asOf, optionally restricted to external references with the
// given prefix.
func (s *Service) rawBalance(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, asOf time.Time, refPrefix string) (int64, error) {
	query := `SELECT COALESCE(SUM(CASE WHEN l.direction = 'debit' THEN l.amount ELSE -l.amount END), 0)
		FROM ledger_entry_lines l
		JOIN ledger_entries e ON e.id = l.ledger_entry_id
		WHERE l.account_id = ? AND e.entry_date <= ?`
	args := []any{accountID, asOf.UTC()}
	if refPrefix != "" {
		query += ` AND e.external_reference LIKE ?`
		args = append(args, refPrefix+"%")
	}

	var total int64
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// windowMovement returns debits minus credits over the half-open window
// (start, end], so adjacent report windows add up.
func (s *Service) windowMovement(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, start, end time.Time) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN l.direction = 'debit' THEN l.amount ELSE -l.amount END), 0)
		FROM ledger_entry_lines l
		JOIN ledger_entries e ON e.id = l.ledger_entry_id
		WHERE l.account_id = ? AND e.entry_date > ? AND e.entry_date <= ?`,
		accountID, start.UTC(), end.UTC(),
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) findByExternalReference(ctx context.Context, tx *gorm.DB, externalRef string) (*ledgerdomain.LedgerEntry, error) {
	var entry ledgerdomain.LedgerEntry
	err := tx.WithContext(ctx).
		Preload("Lines").
		Where("external_reference = ?", externalRef).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) audit(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.Error(err))
	}
}

func normalizeDirection(direction ledgerdomain.Direction) (ledgerdomain.Direction, error) {
	switch ledgerdomain.Direction(strings.ToLower(strings.TrimSpace(string(direction)))) {
	case ledgerdomain.DirectionDebit:
		return ledgerdomain.DirectionDebit, nil
	case ledgerdomain.DirectionCredit:
		return ledgerdomain.DirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
