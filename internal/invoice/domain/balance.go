package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// StatusFor derives the payment status from the due and paid amounts.
func StatusFor(amountDue, amountPaid decimal.Decimal) InvoiceStatus {
	switch {
	case amountPaid.GreaterThanOrEqual(amountDue):
		return InvoiceStatusPaid
	case amountPaid.IsPositive():
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusUnpaid
	}
}

// ApplyPayment adds amount to amount_paid. The payment may not exceed the
// remaining balance and credit notes cannot be paid.
func ApplyPayment(invoice *Invoice, amount decimal.Decimal) error {
	if invoice == nil {
		return ErrInvoiceNotFound
	}
	if invoice.IsVoid() {
		return ErrInvoiceVoid
	}
	if invoice.IsCreditNote() {
		return ErrInvoiceNotPayable
	}
	if invoice.Status == InvoiceStatusPaid {
		return ErrInvoiceAlreadyPaid
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(invoice.Remaining()) {
		return ErrOverpayment
	}
	invoice.AmountPaid = invoice.AmountPaid.Add(amount)
	invoice.Status = StatusFor(invoice.AmountDue, invoice.AmountPaid)
	return nil
}

// ChainBalance is what a correction chain still owes.
type ChainBalance struct {
	Original decimal.Decimal
	Debits   decimal.Decimal
	Credits  decimal.Decimal
	Total    decimal.Decimal
}

// BalanceOf totals one chain: the root's remaining balance plus open debit
// notes minus open credit notes, floored at zero. A void root voids every
// correction in its chain.
func BalanceOf(chain []Invoice) ChainBalance {
	b := ChainBalance{
		Original: decimal.Zero,
		Debits:   decimal.Zero,
		Credits:  decimal.Zero,
		Total:    decimal.Zero,
	}
	if ChainVoid(chain) {
		return b
	}
	for _, invoice := range chain {
		if !invoice.IsOpen() {
			continue
		}
		switch {
		case !invoice.IsCorrection:
			b.Original = b.Original.Add(invoice.Remaining())
		case invoice.IsCreditNote():
			b.Credits = b.Credits.Add(invoice.AmountDue)
		default:
			b.Debits = b.Debits.Add(invoice.Remaining())
		}
	}
	if total := b.Original.Add(b.Debits).Sub(b.Credits); total.IsPositive() {
		b.Total = total
	}
	return b
}

// ChainVoid reports whether the chain's root invoice is void.
func ChainVoid(chain []Invoice) bool {
	for _, invoice := range chain {
		if !invoice.IsCorrection && invoice.IsVoid() {
			return true
		}
	}
	return false
}

// GroupByRoot splits invoices into correction chains keyed by root id.
func GroupByRoot(invoices []Invoice) map[snowflake.ID][]Invoice {
	chains := make(map[snowflake.ID][]Invoice)
	for _, invoice := range invoices {
		root := invoice.RootID()
		chains[root] = append(chains[root], invoice)
	}
	return chains
}

// SumChains totals BalanceOf across chains.
func SumChains(chains map[snowflake.ID][]Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, chain := range chains {
		total = total.Add(BalanceOf(chain).Total)
	}
	return total
}

// ReduceAmountDue lowers amount_due by amount, floored at zero, and returns
// the amount actually removed.
func ReduceAmountDue(invoice *Invoice, amount decimal.Decimal) decimal.Decimal {
	before := invoice.AmountDue
	after := before.Sub(amount)
	if after.IsNegative() {
		after = decimal.Zero
	}
	invoice.AmountDue = after
	invoice.Status = StatusFor(invoice.AmountDue, invoice.AmountPaid)
	return before.Sub(after)
}
