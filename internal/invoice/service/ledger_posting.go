package service

import (
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/vetbill/internal/ledger/domain"
)

// ledgerPosting is written in the same transaction as the invoice change that
// caused it.
type ledgerPosting struct {
	sourceType ledgerdomain.LedgerSourceType
	sourceID   snowflake.ID
	occurredAt time.Time
	postings   []ledgerdomain.Posting
}

// approvalPosting raises the receivable:
//
//	Debit:  Accounts Receivable (total)
//	Credit: Revenue (subtotal)
//	Credit: Tax Payable (vat, if any)
//
// A zero-total invoice raises nothing and gets no entry.
func approvalPosting(invoice *invoicedomain.Invoice, at time.Time) *ledgerPosting {
	if invoice.TotalAmount <= 0 {
		return nil
	}
	return &ledgerPosting{
		sourceType: ledgerdomain.SourceTypeInvoiceApproval,
		sourceID:   invoice.ID,
		occurredAt: at,
		postings: []ledgerdomain.Posting{
			{Account: ledgerdomain.AccountCodeAccountsReceivable, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: invoice.TotalAmount.Cents()},
			{Account: ledgerdomain.AccountCodeRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: invoice.SubtotalAmount.Cents()},
			{Account: ledgerdomain.AccountCodeTaxPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: invoice.VATAmount.Cents()},
		},
	}
}

// paymentPosting settles part of the receivable with cash.
func paymentPosting(payment *invoicedomain.Payment) *ledgerPosting {
	return &ledgerPosting{
		sourceType: ledgerdomain.SourceTypePayment,
		sourceID:   payment.ID,
		occurredAt: payment.CreatedAt,
		postings: []ledgerdomain.Posting{
			{Account: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: payment.Amount.Cents()},
			{Account: ledgerdomain.AccountCodeAccountsReceivable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: payment.Amount.Cents()},
		},
	}
}

// refundPosting reverses a payment: the money leaves the till and the client
// owes it again.
func refundPosting(refund *invoicedomain.Refund) *ledgerPosting {
	return &ledgerPosting{
		sourceType: ledgerdomain.SourceTypeRefund,
		sourceID:   refund.ID,
		occurredAt: refund.CreatedAt,
		postings: []ledgerdomain.Posting{
			{Account: ledgerdomain.AccountCodeAccountsReceivable, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: refund.Amount.Cents()},
			{Account: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: refund.Amount.Cents()},
		},
	}
}
