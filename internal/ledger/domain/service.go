package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Service is the double-entry accounting engine: idempotent postings,
// balances, reports and the operational-vs-ledger reconciliation.
type Service interface {
	// Post opens its own transaction. PostTx runs inside the caller's
	// transaction so a business mutation and its journal entry commit or
	// roll back together.
	Post(ctx context.Context, req PostRequest) (*LedgerEntry, error)
	PostTx(ctx context.Context, tx *gorm.DB, req PostRequest) (*LedgerEntry, error)

	CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error)
	ListAccounts(ctx context.Context, req ListAccountsRequest) ([]Account, error)
	AccountByCode(ctx context.Context, code string) (*Account, error)
	BalanceOf(ctx context.Context, code string, asOf time.Time) (*AccountBalance, error)

	RevenueReport(ctx context.Context, start, end time.Time) (*RevenueReport, error)
	BalanceSheet(ctx context.Context, asOf time.Time) (*BalanceSheet, error)

	ReconcileInvoices(ctx context.Context) (*InvoiceReconciliation, error)
	CheckIntegrity(ctx context.Context) (*IntegrityReport, error)
}

// PostRequest describes one balanced journal posting. ExternalReference
// is chosen by the caller and makes the posting idempotent; Source names
// the originating module for metrics and audit.
type PostRequest struct {
	ExternalReference string    `json:"externalReference"`
	EntryDate         time.Time `json:"entryDate"`
	Description       string    `json:"description"`
	Source            string    `json:"source"`
	Lines             []Line    `json:"lines"`
}

type CreateAccountRequest struct {
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	ParentCode  string      `json:"parentCode"`
	Description string      `json:"description"`
}

type ListAccountsRequest struct {
	Type            string `form:"type"`
	IncludeInactive bool   `form:"includeInactive"`
}

// AccountBalance reports a single account balance. Balance is the raw
// debit-minus-credit sum; DisplayBalance flips the sign for credit-normal
// account types.
type AccountBalance struct {
	Code           string      `json:"code"`
	Name           string      `json:"name"`
	Type           AccountType `json:"type"`
	AsOf           time.Time   `json:"asOf"`
	Balance        int64       `json:"balance"`
	DisplayBalance int64       `json:"displayBalance"`
}

// RevenueReport sums the movement of every revenue account over the
// half-open window (start, end], so adjacent windows compose.
type RevenueReport struct {
	StartDate    time.Time     `json:"startDate"`
	EndDate      time.Time     `json:"endDate"`
	Lines        []RevenueLine `json:"lines"`
	TotalRevenue int64         `json:"totalRevenue"`
}

type RevenueLine struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// BalanceSheet groups display-signed balances as of a cutoff date.
type BalanceSheet struct {
	AsOf             time.Time          `json:"asOf"`
	Assets           []BalanceSheetLine `json:"assets"`
	Liabilities      []BalanceSheetLine `json:"liabilities"`
	Equity           []BalanceSheetLine `json:"equity"`
	TotalAssets      int64              `json:"totalAssets"`
	TotalLiabilities int64              `json:"totalLiabilities"`
	TotalEquity      int64              `json:"totalEquity"`
	IsBalanced       bool               `json:"isBalanced"`
}

type BalanceSheetLine struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// InvoiceReconciliation compares what each non-draft invoice says it has
// collected against the accounts-receivable movement of its payment
// postings.
type InvoiceReconciliation struct {
	CheckedAt       time.Time         `json:"checkedAt"`
	InvoicesChecked int               `json:"invoicesChecked"`
	Mismatches      []InvoiceMismatch `json:"mismatches"`
}

type InvoiceMismatch struct {
	Type             string `json:"type"`
	InvoiceID        string `json:"invoiceId"`
	InvoiceNumber    string `json:"invoiceNumber"`
	OperationalValue int64  `json:"operationalValue"`
	LedgerValue      int64  `json:"ledgerValue"`
	Difference       int64  `json:"difference"`
}

// MismatchInvoiceLedger is the reconciliation item type for an invoice
// whose collected total disagrees with the ledger.
const MismatchInvoiceLedger = "INVOICE_LEDGER_MISMATCH"

// IntegrityReport totals the whole ledger. IsBalanced holds when every
// debit has a matching credit.
type IntegrityReport struct {
	CheckedAt    time.Time   `json:"checkedAt"`
	TotalDebits  int64       `json:"totalDebits"`
	TotalCredits int64       `json:"totalCredits"`
	IsBalanced   bool        `json:"isBalanced"`
	Totals       []TypeTotal `json:"totals"`
}

// TypeTotal is the display-signed net balance of one account type.
type TypeTotal struct {
	Type  AccountType `json:"type"`
	Total int64       `json:"total"`
}

var (
	ErrInvalidExternalReference = errors.New("invalid_external_reference")
	ErrInvalidEntryDate         = errors.New("invalid_entry_date")
	ErrInvalidEntryLines        = errors.New("invalid_entry_lines")
	ErrInvalidLineDirection     = errors.New("invalid_line_direction")
	ErrInvalidLineAmount        = errors.New("invalid_line_amount")
	ErrUnbalancedEntry          = errors.New("ledger_entry_unbalanced")
	ErrInvalidAccountCode       = errors.New("invalid_account_code")
	ErrInvalidAccountName       = errors.New("invalid_account_name")
	ErrInvalidAccountType       = errors.New("invalid_account_type")
	ErrInvalidPeriod            = errors.New("invalid_report_period")
	ErrAccountNotFound          = errors.New("account_not_found")
	ErrAccountInactive          = errors.New("account_inactive")
	ErrDuplicateAccountCode     = errors.New("duplicate_account_code")
)
