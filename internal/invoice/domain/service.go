package domain

import (
	"context"
	"errors"
	"time"

	paymentdomain "github.com/karsada/fleetcore/internal/payment/domain"
	"github.com/karsada/fleetcore/pkg/db/pagination"
)

// Service owns the receivable lifecycle: drafting, issuing, capturing
// payments, cancellation and the printable document.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Invoice, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id string) (*Detail, error)
	Issue(ctx context.Context, id string) (*Invoice, error)
	Pay(ctx context.Context, req PayRequest) (*PayResult, error)
	Cancel(ctx context.Context, id string) (*Invoice, error)

	// MarkOverdue flips every ISSUED invoice past its due date to OVERDUE
	// and reports how many moved. Run by housekeeping.
	MarkOverdue(ctx context.Context) (int64, error)

	RenderPDF(ctx context.Context, id string) ([]byte, error)
}

type CreateRequest struct {
	CustomerID string     `json:"customerId"`
	RentalID   string     `json:"rentalId,omitempty"`
	Subtotal   int64      `json:"subtotal"`
	Tax        int64      `json:"tax"`
	Draft      bool       `json:"draft,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

type ListRequest struct {
	pagination.Pagination

	Status     string `form:"status"`
	CustomerID string `form:"customerId"`
}

type ListResponse struct {
	pagination.PageInfo

	Invoices []Invoice `json:"items"`
}

// Detail is the single-invoice read, payments included.
type Detail struct {
	Invoice

	Payments []paymentdomain.Payment `json:"payments"`
}

type PayRequest struct {
	ID                   string `json:"-"`
	Amount               int64  `json:"amount"`
	PaymentMethod        string `json:"paymentMethod"`
	TransactionReference string `json:"transactionReference,omitempty"`
	Notes                string `json:"notes,omitempty"`
}

type PayResult struct {
	Invoice Invoice               `json:"invoice"`
	Payment paymentdomain.Payment `json:"payment"`
}

var (
	ErrInvalidID        = errors.New("invalid_invoice_id")
	ErrNotFound         = errors.New("invoice_not_found")
	ErrInvalidSubtotal  = errors.New("invalid_invoice_subtotal")
	ErrInvalidTax       = errors.New("invalid_invoice_tax")
	ErrInvalidTotal     = errors.New("invalid_invoice_total")
	ErrInvalidDueDate   = errors.New("invalid_invoice_due_date")
	ErrInvalidStatus    = errors.New("invalid_invoice_status")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrRentalMismatch   = errors.New("rental_customer_mismatch")
	ErrNotDraft         = errors.New("invoice_not_draft")
	ErrNotPayable       = errors.New("invoice_not_payable")
	ErrOverpayment      = errors.New("payment_exceeds_balance")
	ErrNotCancellable   = errors.New("invoice_not_cancellable")
)
