package matching

import (
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// plannedQuery is one variant query scheduled for a match request.
type plannedQuery struct {
	query       storage.VoucherQuery
	invoiceLike bool
	noRefRank   bool
	noDateRank  bool
}

// baseQuery seeds a variant query with the filters shared by every
// voucher type: ledger coordinates, direction, amount mode, party mode
// and the active date window.
func baseQuery(in Input, t storage.VoucherType) storage.VoucherQuery {
	q := storage.VoucherQuery{
		Type:      t,
		GLAccount: in.GLAccount,
		Company:   in.Company,
		Currency:  in.Currency,
		Direction: in.Direction,
		FromDate:  in.PostingDateRange.From,
		ToDate:    in.PostingDateRange.To,
	}
	if in.ReferenceDateRange != nil {
		q.ByReferenceDate = true
		q.FromReferenceDate = in.ReferenceDateRange.From
		q.ToReferenceDate = in.ReferenceDateRange.To
	}
	if in.ExactMatch {
		q.ExactAmount = in.Amount
	}
	if in.ExactParty && in.Transaction.Party != "" {
		q.ExactParty = &storage.PartyRef{
			PartyType: in.Transaction.PartyType,
			Party:     in.Transaction.Party,
		}
	}
	return q
}

// buildPlan translates the requested document types into the concrete
// variant queries to run, in a fixed deterministic order. Loan
// disbursements only apply to withdrawals, loan repayments only to
// deposits, and invoice selection is direction-aware.
func buildPlan(in Input, dt DocumentTypes) []plannedQuery {
	var plan []plannedQuery

	if dt.PaymentEntry {
		q := baseQuery(in, storage.VoucherPaymentEntry)
		q.ReferenceNo = in.ReferenceNo
		plan = append(plan, plannedQuery{query: q})
	}
	if dt.JournalEntry {
		q := baseQuery(in, storage.VoucherJournalEntry)
		q.ReferenceNo = in.ReferenceNo
		plan = append(plan, plannedQuery{query: q})
	}

	plan = append(plan, invoicePlan(in, dt)...)

	if dt.LoanDisbursement && in.Direction == storage.DirectionWithdrawal {
		plan = append(plan, plannedQuery{query: baseQuery(in, storage.VoucherLoanDisbursement)})
	}
	if dt.LoanRepayment && in.Direction == storage.DirectionDeposit {
		plan = append(plan, plannedQuery{query: baseQuery(in, storage.VoucherLoanRepayment)})
	}

	if dt.BankTransaction {
		q := baseQuery(in, storage.VoucherBankTransaction)
		q.BankAccount = in.Transaction.BankAccount
		q.ExcludeName = in.Transaction.Name
		plan = append(plan, plannedQuery{query: q})
	}

	return plan
}

// invoicePlan selects invoice variants by transaction direction.
// Deposits naturally settle sales invoices, withdrawals settle
// purchase invoices and expense claims. When unpaid invoices are
// requested the non-natural direction is still queried, restricted to
// return documents (credit notes).
func invoicePlan(in Input, dt DocumentTypes) []plannedQuery {
	var plan []plannedQuery

	addUnpaid := func(t storage.VoucherType, returnsOnly bool) {
		q := baseQuery(in, t)
		q.Unpaid = true
		q.OnlyReturns = returnsOnly
		plan = append(plan, plannedQuery{
			query:       q,
			invoiceLike: true,
			noRefRank:   t == storage.VoucherSalesInvoice,
			noDateRank:  true,
		})
	}

	if in.Direction == storage.DirectionDeposit {
		if dt.SalesInvoice {
			if dt.UnpaidInvoices {
				addUnpaid(storage.VoucherSalesInvoice, false)
			} else {
				// POS invoices paid straight into the bank account;
				// their reference field is the invoice name itself
				plan = append(plan, plannedQuery{
					query:       baseQuery(in, storage.VoucherSalesInvoice),
					invoiceLike: true,
					noRefRank:   true,
				})
			}
		}
		if dt.PurchaseInvoice && dt.UnpaidInvoices {
			addUnpaid(storage.VoucherPurchaseInvoice, true)
		}
		return plan
	}

	if dt.PurchaseInvoice {
		if dt.UnpaidInvoices {
			addUnpaid(storage.VoucherPurchaseInvoice, false)
		} else {
			plan = append(plan, plannedQuery{
				query:       baseQuery(in, storage.VoucherPurchaseInvoice),
				invoiceLike: true,
			})
		}
	}
	// Expense claims are reimbursed in company currency only and have
	// no settled-document counterpart
	if dt.ExpenseClaim && dt.UnpaidInvoices && in.Currency == in.CompanyCurrency {
		q := baseQuery(in, storage.VoucherExpenseClaim)
		q.Currency = in.CompanyCurrency
		plan = append(plan, plannedQuery{
			query:       q,
			invoiceLike: true,
			noRefRank:   true,
			noDateRank:  true,
		})
	}
	if dt.SalesInvoice && dt.UnpaidInvoices {
		addUnpaid(storage.VoucherSalesInvoice, true)
	}

	return plan
}

// candidateFromRow projects a store row into a candidate with no rank
// applied yet.
func candidateFromRow(row storage.VoucherRow) Candidate {
	return Candidate{
		VoucherType:   row.DocType,
		Name:          row.Name,
		Amount:        row.Amount,
		ReferenceNo:   row.ReferenceNo,
		ReferenceDate: row.ReferenceDate,
		Party:         row.Party,
		PartyType:     row.PartyType,
		PartyName:     row.PartyName,
		PostingDate:   row.PostingDate,
		Currency:      row.Currency,
	}
}
