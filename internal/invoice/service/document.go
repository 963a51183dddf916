package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/internal/invoice/domain"
	"github.com/karsada/fleetcore/internal/providers/pdf"
	rentaldomain "github.com/karsada/fleetcore/internal/rental/domain"
)

func (s *Service) RenderPDF(ctx context.Context, id string) ([]byte, error) {
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

	customer, err := s.customerRepo.FindByID(ctx, s.db, invoice.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, customerdomain.ErrNotFound
	}

	var rental *rentaldomain.Rental
	if invoice.RentalID != nil {
		rental, err = s.rentalRepo.FindByID(ctx, s.db, *invoice.RentalID)
		if err != nil {
			return nil, err
		}
	}

	return s.renderer.RenderInvoice(ctx, s.buildDocument(invoice, customer, rental))
}

func (s *Service) buildDocument(invoice *domain.Invoice, customer *customerdomain.Customer, rental *rentaldomain.Rental) pdf.InvoiceDocument {
	currency := "PHP"
	if rental != nil && rental.Currency != "" {
		currency = rental.Currency
	}

	doc := pdf.InvoiceDocument{
		CompanyName:    s.cfg.CompanyName,
		CompanyAddress: s.cfg.CompanyAddress,
		CompanyEmail:   s.cfg.CompanyEmail,

		InvoiceNumber: invoice.InvoiceNumber,
		Status:        string(invoice.Status),
		IssueDate:     formatDate(invoice.IssueDate),
		DueDate:       formatDate(invoice.DueDate),

		BillToName:  strings.TrimSpace(customer.FirstName + " " + customer.LastName),
		BillToEmail: customer.Email,
		BillToPhone: customer.Phone,

		Items: buildLineItems(invoice, rental, currency),

		Subtotal:   formatMoney(invoice.Subtotal, currency),
		Tax:        formatMoney(invoice.Tax, currency),
		Total:      formatMoney(invoice.Total, currency),
		Paid:       formatMoney(invoice.Paid, currency),
		BalanceDue: formatMoney(invoice.Total-invoice.Paid, currency),
	}
	if invoice.PaidDate != nil {
		doc.PaidDate = formatDate(*invoice.PaidDate)
	}
	return doc
}

// buildLineItems expands a rental-backed invoice into the day-by-rate
// line it was priced from; anything else renders as a single line.
func buildLineItems(invoice *domain.Invoice, rental *rentaldomain.Rental, currency string) []pdf.LineItem {
	if rental != nil && rental.DailyRate > 0 && invoice.Subtotal == rental.TotalAmount {
		days := rental.TotalAmount / rental.DailyRate
		return []pdf.LineItem{{
			Description: "Vehicle rental " + rental.RentalNumber,
			Qty:         fmt.Sprintf("%d", days),
			UnitPrice:   formatMoney(rental.DailyRate, currency),
			Amount:      formatMoney(invoice.Subtotal, currency),
		}}
	}

	description := "Fleet services"
	if rental != nil {
		description = "Vehicle rental " + rental.RentalNumber
	}
	return []pdf.LineItem{{
		Description: description,
		Qty:         "1",
		UnitPrice:   formatMoney(invoice.Subtotal, currency),
		Amount:      formatMoney(invoice.Subtotal, currency),
	}}
}

func formatMoney(amount int64, currency string) string {
	return fmt.Sprintf("%s %.2f", currency, float64(amount))
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02")
}
