package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InvoiceDocument carries everything the printable invoice shows. Amounts
// arrive preformatted; the renderer never does arithmetic.
type InvoiceDocument struct {
	CompanyName    string
	CompanyAddress string
	CompanyEmail   string

	InvoiceNumber string
	Status        string
	IssueDate     string
	DueDate       string
	PaidDate      string

	BillToName  string
	BillToEmail string
	BillToPhone string

	Items []LineItem

	Subtotal   string
	Tax        string
	Total      string
	Paid       string
	BalanceDue string
}

type LineItem struct {
	Description string
	Qty         string
	UnitPrice   string
	Amount      string
}

type Renderer interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error)
}

type marotoRenderer struct{}

func New() Renderer {
	return &marotoRenderer{}
}

func (r *marotoRenderer) RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, doc.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   3,
		}),
	)

	metaCol := col.New(6).Add(
		text.New("Invoice number: "+doc.InvoiceNumber, props.Text{Top: 0}),
		text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 4}),
		text.New("Date due: "+doc.DueDate, props.Text{Top: 8}),
	)
	if doc.PaidDate != "" {
		metaCol.Add(text.New("Date paid: "+doc.PaidDate, props.Text{Top: 12}))
	}
	m.AddRow(20, metaCol, col.New(6))

	m.AddRow(34,
		col.New(6).Add(
			text.New(doc.CompanyName, props.Text{Style: fontstyle.Bold}),
			text.New(doc.CompanyAddress, props.Text{Top: 5}),
			text.New(doc.CompanyEmail, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(doc.BillToName, props.Text{Top: 5}),
			text.New(doc.BillToEmail, props.Text{Top: 10}),
			text.New(doc.BillToPhone, props.Text{Top: 15}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range doc.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, item.Qty, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := []struct {
		label string
		value string
		bold  bool
	}{
		{"Subtotal", doc.Subtotal, false},
		{"Tax", doc.Tax, false},
		{"Total", doc.Total, false},
		{"Paid", doc.Paid, false},
		{"Balance due", doc.BalanceDue, true},
	}
	for _, row := range totals {
		style := fontstyle.Normal
		if row.bold {
			style = fontstyle.Bold
		}
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, row.label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, row.value, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	generated, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return generated.GetBytes(), nil
}
