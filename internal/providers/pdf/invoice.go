package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type MarotoRenderer struct{}

func New() Renderer {
	return &MarotoRenderer{}
}

func newDocument() core.Maroto {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	return maroto.New(cfg)
}

func (r *MarotoRenderer) InvoiceStatement(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	if doc.InvoiceNumber == "" {
		return nil, fmt.Errorf("invoice number is required")
	}
	m := newDocument()

	title := "Invoice"
	switch doc.InvoiceType {
	case "credit_note":
		title = "Credit Note"
	case "debit_note":
		title = "Debit Note"
	}
	m.AddRow(12,
		text.NewCol(8, title, props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, doc.EstateName, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)

	meta := col.New(6).Add(
		text.New("Invoice number: "+doc.InvoiceNumber, props.Text{Top: 0}),
		text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 4}),
		text.New("Date due: "+doc.DueDate, props.Text{Top: 8}),
		text.New("Service period: "+doc.ServicePeriod, props.Text{Top: 12}),
		text.New("Status: "+doc.Status, props.Text{Top: 16}),
	)
	if doc.ParentNumber != "" {
		meta.Add(text.New("Adjusts: "+doc.ParentNumber, props.Text{Top: 20}))
	}
	m.AddRow(26, meta, col.New(6).Add(
		text.New("Bill to", props.Text{Style: fontstyle.Bold}),
		text.New(doc.BillToName, props.Text{Top: 5}),
		text.New(doc.BillToEmail, props.Text{Top: 9}),
		text.New("House "+doc.HouseNumber, props.Text{Top: 13}),
	))

	m.AddRow(10,
		text.NewCol(9, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range doc.Items {
		m.AddRow(8,
			text.NewCol(9, item.Description, props.Text{Size: 9}),
			text.NewCol(3, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := []Line{
		{Description: "Amount due", Amount: doc.AmountDue},
		{Description: "Amount paid", Amount: doc.AmountPaid},
		{Description: "Remaining", Amount: doc.Remaining},
	}
	for i, line := range totals {
		style := fontstyle.Normal
		if i == len(totals)-1 {
			style = fontstyle.Bold
		}
		m.AddRow(8,
			col.New(7),
			text.NewCol(2, line.Description, props.Text{Size: 9, Style: style}),
			text.NewCol(3, line.Amount, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", doc.InvoiceNumber, err)
	}
	return out.GetBytes(), nil
}
