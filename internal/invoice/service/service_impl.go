package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/internal/events"
	"github.com/karsada/fleetcore/internal/invoice/domain"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	paymentdomain "github.com/karsada/fleetcore/internal/payment/domain"
	"github.com/karsada/fleetcore/internal/providers/pdf"
	rentaldomain "github.com/karsada/fleetcore/internal/rental/domain"
	"github.com/karsada/fleetcore/pkg/db/pagination"
	"github.com/karsada/fleetcore/pkg/reference"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

// defaultPaymentTerm is how long a customer gets when no due date is
// supplied, and the fallback when issuing a stale draft.
const defaultPaymentTerm = 7 * 24 * time.Hour

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Cfg          config.Config
	Ref          *reference.Generator
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
	RentalRepo   rentaldomain.Repository
	PaymentRepo  paymentdomain.Repository
	LedgerSvc    ledgerdomain.Service
	Renderer     pdf.Renderer
	Outbox       *events.Outbox
	Metrics      *telemetry.Metrics  `optional:"true"`
	AuditSvc     auditdomain.Service `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	cfg          config.Config
	ref          *reference.Generator
	repo         domain.Repository
	customerRepo customerdomain.Repository
	rentalRepo   rentaldomain.Repository
	paymentRepo  paymentdomain.Repository
	ledgerSvc    ledgerdomain.Service
	renderer     pdf.Renderer
	outbox       *events.Outbox
	metrics      *telemetry.Metrics
	auditSvc     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invoice.service"),
		clock:        p.Clock,
		cfg:          p.Cfg,
		ref:          p.Ref,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		rentalRepo:   p.RentalRepo,
		paymentRepo:  p.PaymentRepo,
		ledgerSvc:    p.LedgerSvc,
		renderer:     p.Renderer,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		auditSvc:     p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Invoice, error) {
	customerID, err := uuid.Parse(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == uuid.Nil {
		return nil, customerdomain.ErrInvalidID
	}

	var rentalID *uuid.UUID
	if raw := strings.TrimSpace(req.RentalID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return nil, rentaldomain.ErrInvalidID
		}
		rentalID = &id
	}

	if req.Subtotal < 0 {
		return nil, domain.ErrInvalidSubtotal
	}
	if req.Tax < 0 {
		return nil, domain.ErrInvalidTax
	}
	total := req.Subtotal + req.Tax
	if total <= 0 {
		return nil, domain.ErrInvalidTotal
	}

	now := s.clock.Now().UTC()
	dueDate := now.Add(defaultPaymentTerm)
	if req.DueDate != nil && !req.DueDate.IsZero() {
		dueDate = req.DueDate.UTC()
		if dueDate.Before(now) {
			return nil, domain.ErrInvalidDueDate
		}
	}

	status := domain.StatusIssued
	if req.Draft {
		status = domain.StatusDraft
	}

	invoice := &domain.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: s.ref.Invoice(),
		CustomerID:    customerID,
		RentalID:      rentalID,
		Status:        status,
		Subtotal:      req.Subtotal,
		Tax:           req.Tax,
		Total:         total,
		IssueDate:     now,
		DueDate:       dueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customerRepo.FindByID(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return customerdomain.ErrNotFound
		}

		if rentalID != nil {
			rental, err := s.rentalRepo.FindByID(ctx, tx, *rentalID)
			if err != nil {
				return err
			}
			if rental == nil {
				return rentaldomain.ErrNotFound
			}
			if rental.CustomerID != customerID {
				return domain.ErrRentalMismatch
			}
		}

		if err := s.repo.Create(ctx, tx, invoice); err != nil {
			return err
		}
		if invoice.Status == domain.StatusIssued {
			return s.publishIssued(ctx, tx, invoice)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invoice.Balance = invoice.Total - invoice.Paid

	s.metrics.ObserveInvoiceIssued(string(invoice.Status), invoice.Total)
	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("status", string(invoice.Status)),
		zap.Int64("total", invoice.Total),
	)
	s.audit(ctx, "invoice.created", invoice.ID.String(), map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"customer_id":    invoice.CustomerID.String(),
		"status":         string(invoice.Status),
		"total":          invoice.Total,
	})
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{}

	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		if !domain.Status(status).IsValid() {
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = domain.Status(status)
	}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return domain.ListResponse{}, customerdomain.ErrInvalidID
		}
		filter.CustomerID = &id
	}

	if token := strings.TrimSpace(req.Cursor); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := uuid.Parse(strings.TrimSpace(decoded.ID))
		if err != nil || id == uuid.Nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	page := req.Pagination.Normalize()
	filter.Limit = page.Limit

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	total, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, page.Limit, func(item *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListResponse{Invoices: invoices}
	if pageInfo != nil {
		pageInfo.Total = total
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Detail, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}

	payments, err := s.paymentRepo.ListByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	return &domain.Detail{Invoice: *invoice, Payments: payments}, nil
}

func (s *Service) Issue(ctx context.Context, id string) (*domain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var issued *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return domain.ErrNotFound
		}
		if loaded.Status != domain.StatusDraft {
			return domain.ErrNotDraft
		}

		// Issuing re-stamps the issue date; the due date moves along when
		// the drafted one already lies in the past.
		dueDate := loaded.DueDate
		if dueDate.Before(now) {
			dueDate = now.Add(defaultPaymentTerm)
		}

		rows, err := s.repo.Issue(ctx, tx, invoiceID, now, dueDate, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrNotDraft
		}

		loaded.Status = domain.StatusIssued
		loaded.IssueDate = now
		loaded.DueDate = dueDate
		loaded.UpdatedAt = now
		loaded.Balance = loaded.Total - loaded.Paid
		issued = loaded
		return s.publishIssued(ctx, tx, loaded)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveInvoiceIssued(string(domain.StatusIssued), issued.Total)
	s.log.Info("invoice issued",
		zap.String("invoice_id", issued.ID.String()),
		zap.String("invoice_number", issued.InvoiceNumber),
	)
	s.audit(ctx, "invoice.issued", issued.ID.String(), map[string]any{
		"invoice_number": issued.InvoiceNumber,
		"due_date":       issued.DueDate,
	})
	return issued, nil
}

func (s *Service) Pay(ctx context.Context, req domain.PayRequest) (*domain.PayResult, error) {
	invoiceID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	methodCode := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if methodCode == "" {
		return nil, paymentdomain.ErrMethodNotFound
	}

	now := s.clock.Now().UTC()
	var result domain.PayResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}

		method, err := s.paymentRepo.FindMethodByCode(ctx, tx, methodCode)
		if err != nil {
			return err
		}
		if method == nil {
			return paymentdomain.ErrMethodNotFound
		}
		if !method.IsActive {
			return paymentdomain.ErrMethodInactive
		}

		if !invoice.Status.Payable() {
			return domain.ErrNotPayable
		}
		if req.Amount > invoice.Total-invoice.Paid {
			return domain.ErrOverpayment
		}

		payment := &paymentdomain.Payment{
			ID:                   uuid.New(),
			PaymentNumber:        s.ref.Payment(),
			CustomerID:           invoice.CustomerID,
			InvoiceID:            &invoice.ID,
			Amount:               req.Amount,
			Method:               method.Code,
			Status:               paymentdomain.StatusCompleted,
			PaymentDate:          now,
			TransactionReference: strings.TrimSpace(req.TransactionReference),
			Notes:                strings.TrimSpace(req.Notes),
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.paymentRepo.CreatePayment(ctx, tx, payment); err != nil {
			return err
		}

		rows, err := s.repo.ApplyPayment(ctx, tx, invoiceID, req.Amount, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Lost a race since the read above. Re-read to tell "no longer
			// payable" from "would overpay".
			current, err := s.repo.FindByID(ctx, tx, invoiceID)
			if err != nil {
				return err
			}
			if current == nil || !current.Status.Payable() {
				return domain.ErrNotPayable
			}
			return domain.ErrOverpayment
		}

		updated, err := s.repo.FindByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if updated == nil {
			return domain.ErrNotFound
		}

		if _, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
			ExternalReference: fmt.Sprintf("invoice-%s-payment-%s", invoiceID, payment.ID),
			EntryDate:         now,
			Description:       fmt.Sprintf("Payment %s for invoice %s", payment.PaymentNumber, updated.InvoiceNumber),
			Source:            "payment",
			Lines: []ledgerdomain.Line{
				ledgerdomain.Debit(method.TargetAccountCode, req.Amount),
				ledgerdomain.Credit(ledgerdomain.AccountCodeAccountsReceivable, req.Amount),
			},
		}); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregatePayment,
			AggregateID:   payment.ID.String(),
			Type:          events.EventPaymentRecorded,
			Payload: map[string]any{
				"payment_id":     payment.ID.String(),
				"payment_number": payment.PaymentNumber,
				"invoice_id":     invoiceID.String(),
				"amount":         payment.Amount,
				"method":         payment.Method,
			},
		}); err != nil {
			return err
		}
		if updated.Status == domain.StatusPaid {
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				AggregateType: events.AggregateInvoice,
				AggregateID:   invoiceID.String(),
				Type:          events.EventInvoicePaid,
				Payload: map[string]any{
					"invoice_id":     invoiceID.String(),
					"invoice_number": updated.InvoiceNumber,
					"total":          updated.Total,
				},
				DedupeKey: "invoice_paid:" + invoiceID.String(),
			}); err != nil {
				return err
			}
		}

		result = domain.PayResult{Invoice: *updated, Payment: *payment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePayment(result.Payment.Method)
	s.log.Info("payment captured",
		zap.String("invoice_id", result.Invoice.ID.String()),
		zap.String("payment_number", result.Payment.PaymentNumber),
		zap.Int64("amount", result.Payment.Amount),
		zap.String("status", string(result.Invoice.Status)),
	)
	s.audit(ctx, "invoice.payment_recorded", result.Invoice.ID.String(), map[string]any{
		"payment_number": result.Payment.PaymentNumber,
		"amount":         result.Payment.Amount,
		"method":         result.Payment.Method,
	})
	return &result, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var cancelled *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return domain.ErrNotFound
		}
		if !loaded.Cancellable() {
			return domain.ErrNotCancellable
		}

		rows, err := s.repo.Cancel(ctx, tx, invoiceID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrNotCancellable
		}

		loaded.Status = domain.StatusCancelled
		loaded.UpdatedAt = now
		loaded.Balance = loaded.Total - loaded.Paid
		cancelled = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice cancelled",
		zap.String("invoice_id", cancelled.ID.String()),
		zap.String("invoice_number", cancelled.InvoiceNumber),
	)
	s.audit(ctx, "invoice.cancelled", cancelled.ID.String(), map[string]any{
		"invoice_number": cancelled.InvoiceNumber,
	})
	return cancelled, nil
}

func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	rows, err := s.repo.MarkOverdue(ctx, s.db, now)
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		s.log.Info("invoices marked overdue", zap.Int64("count", rows))
	}
	return rows, nil
}

func (s *Service) publishIssued(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice) error {
	return s.outbox.PublishTx(ctx, tx, events.Event{
		AggregateType: events.AggregateInvoice,
		AggregateID:   invoice.ID.String(),
		Type:          events.EventInvoiceIssued,
		Payload: map[string]any{
			"invoice_id":     invoice.ID.String(),
			"invoice_number": invoice.InvoiceNumber,
			"customer_id":    invoice.CustomerID.String(),
			"total":          invoice.Total,
			"due_date":       invoice.DueDate,
		},
		DedupeKey: "invoice_issued:" + invoice.ID.String(),
	})
}

func (s *Service) audit(ctx context.Context, action, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to write invoice audit log", zap.Error(err))
	}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.ErrInvalidID
	}
	return id, nil
}
