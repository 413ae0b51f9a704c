package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func (r *MarotoRenderer) ClearanceLetter(ctx context.Context, doc ClearanceDocument) ([]byte, error) {
	m := newDocument()

	m.AddRow(12,
		text.NewCol(8, "Financial Clearance", props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, doc.EstateName, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(14, col.New(12).Add(
		text.New("Resident: "+doc.ResidentName, props.Text{Top: 0}),
		text.New("Generated: "+doc.GeneratedAt, props.Text{Top: 5}),
	))

	verdict := "NOT CLEARED: outstanding obligations remain"
	if doc.CanProceed {
		verdict = "CLEARED: no outstanding obligations"
	}
	m.AddRow(12, text.NewCol(12, verdict, props.Text{Size: 14, Style: fontstyle.Bold, Top: 3}))

	for _, line := range []Line{
		{Description: "Wallet balance", Amount: doc.WalletBalance},
		{Description: "Total unpaid", Amount: doc.TotalUnpaid},
		{Description: "Net balance", Amount: doc.NetBalance},
	} {
		m.AddRow(8,
			text.NewCol(9, line.Description, props.Text{Size: 9}),
			text.NewCol(3, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	if len(doc.Unpaid) > 0 {
		m.AddRow(10, text.NewCol(12, "Unpaid invoices", props.Text{Style: fontstyle.Bold, Size: 9, Top: 3}))
		for _, line := range doc.Unpaid {
			m.AddRow(8,
				text.NewCol(9, line.Description, props.Text{Size: 9}),
				text.NewCol(3, line.Amount, props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render clearance: %w", err)
	}
	return out.GetBytes(), nil
}
