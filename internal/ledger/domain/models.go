package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountType classifies a chart-of-accounts entry.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountTypes lists the valid types in report order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	default:
		return false
	}
}

// CreditNormal reports whether the account type carries a normal credit
// balance. Raw balances are debit-minus-credit, so these types flip sign
// for display.
func (t AccountType) CreditNormal() bool {
	switch t {
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return true
	default:
		return false
	}
}

// Canonical account codes used by the standard postings. The seeded chart
// guarantees these exist.
const (
	AccountCodeCash               = "1000"
	AccountCodeAccountsReceivable = "1100"
	AccountCodeFleetVehicles      = "1500"
	AccountCodeAccountsPayable    = "2000"
	AccountCodeOwnerEquity        = "3000"
	AccountCodeRentalRevenue      = "4000"
	AccountCodeLateFeeRevenue     = "4100"
	AccountCodeMaintenanceExpense = "5000"
)

// Direction marks a line as a debit or a credit posting.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Account is a chart-of-accounts entry.
type Account struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string      `gorm:"type:varchar(20);not null;uniqueIndex:ux_accounts_code" json:"code"`
	Name        string      `gorm:"type:varchar(120);not null" json:"name"`
	Type        AccountType `gorm:"type:varchar(20);not null;index" json:"type"`
	ParentID    *uuid.UUID  `gorm:"type:uuid" json:"parentId,omitempty"`
	IsActive    bool        `gorm:"not null;default:true" json:"isActive"`
	Description string      `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt   time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Account) TableName() string { return "accounts" }

// LedgerEntry is the immutable header of a balanced journal posting. The
// external reference is the idempotency anchor: posting the same reference
// twice leaves exactly one entry.
type LedgerEntry struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	EntryNumber       string            `gorm:"type:varchar(40);not null;uniqueIndex:ux_ledger_entries_number" json:"entryNumber"`
	ExternalReference string            `gorm:"type:varchar(160);not null;uniqueIndex:ux_ledger_entries_external_reference" json:"externalReference"`
	EntryDate         time.Time         `gorm:"not null;index" json:"entryDate"`
	Description       string            `gorm:"type:text" json:"description,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	Lines             []LedgerEntryLine `gorm:"foreignKey:LedgerEntryID" json:"lines,omitempty"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a single double-entry posting line. Every line is
// pure debit or pure credit and never negative.
type LedgerEntryLine struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LedgerEntryID uuid.UUID `gorm:"type:uuid;not null;index" json:"entryId"`
	AccountID     uuid.UUID `gorm:"type:uuid;not null;index" json:"accountId"`
	Direction     Direction `gorm:"type:varchar(10);not null" json:"direction"`
	Amount        int64     `gorm:"not null" json:"amount"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }

// Line is one posting line of a Post request, addressed by account code.
type Line struct {
	AccountCode string    `json:"accountCode"`
	Direction   Direction `json:"direction"`
	Amount      int64     `json:"amount"`
}

// Debit builds a debit line.
func Debit(accountCode string, amount int64) Line {
	return Line{AccountCode: accountCode, Direction: DirectionDebit, Amount: amount}
}

// Credit builds a credit line.
func Credit(accountCode string, amount int64) Line {
	return Line{AccountCode: accountCode, Direction: DirectionCredit, Amount: amount}
}

// ValidateBalanced checks that debits and credits sum to the same total.
// The same rule is enforced again at commit by the storage trigger.
func ValidateBalanced(lines []Line) error {
	var debits, credits int64
	for _, line := range lines {
		switch line.Direction {
		case DirectionDebit:
			debits += line.Amount
		case DirectionCredit:
			credits += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debits != credits {
		return ErrUnbalancedEntry
	}
	return nil
}
