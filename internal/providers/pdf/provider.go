package pdf

import "context"

// Renderer produces printable documents for residents.
type Renderer interface {
	InvoiceStatement(ctx context.Context, doc InvoiceDocument) ([]byte, error)
	ClearanceLetter(ctx context.Context, doc ClearanceDocument) ([]byte, error)
}

type Line struct {
	Description string
	Amount      string
}

type InvoiceDocument struct {
	EstateName    string
	InvoiceNumber string
	InvoiceType   string
	Status        string
	IssueDate     string
	DueDate       string
	ServicePeriod string
	ParentNumber  string

	BillToName  string
	BillToEmail string
	HouseNumber string

	Items []Line

	AmountDue  string
	AmountPaid string
	Remaining  string
}

type ClearanceDocument struct {
	EstateName    string
	ResidentName  string
	GeneratedAt   string
	WalletBalance string
	TotalUnpaid   string
	NetBalance    string
	CanProceed    bool
	Unpaid        []Line
}
