package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// QueryVouchers returns voucher rows passing the hard filters of q. Each
// variant mirrors the claimable-amount semantics of its ledger document:
// paid amount for payments, outstanding amount for unpaid invoices, the
// remaining unallocated amount for peer bank transactions.
func (s *Storage) QueryVouchers(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	switch q.Type {
	case VoucherPaymentEntry:
		return s.queryPaymentEntries(ctx, q)
	case VoucherJournalEntry:
		return s.queryJournalEntries(ctx, q)
	case VoucherSalesInvoice:
		if q.Unpaid {
			return s.queryUnpaidSalesInvoices(ctx, q)
		}
		return s.queryPOSSalesInvoices(ctx, q)
	case VoucherPurchaseInvoice:
		if q.Unpaid {
			return s.queryUnpaidPurchaseInvoices(ctx, q)
		}
		return s.queryPaidPurchaseInvoices(ctx, q)
	case VoucherExpenseClaim:
		return s.queryExpenseClaims(ctx, q)
	case VoucherLoanDisbursement:
		return s.queryLoanDisbursements(ctx, q)
	case VoucherLoanRepayment:
		return s.queryLoanRepayments(ctx, q)
	case VoucherBankTransaction:
		return s.queryBankTransactionVouchers(ctx, q)
	default:
		return nil, fmt.Errorf("unknown voucher type %q", q.Type)
	}
}

// cond accumulates WHERE clauses and their arguments.
type cond struct {
	clauses []string
	args    []any
}

func (c *cond) add(clause string, args ...any) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

func (c *cond) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// addAmountFilter applies the exact-match rule: exact equality when set,
// otherwise any positive amount.
func (c *cond) addAmountFilter(column string, exactAmount float64) {
	if exactAmount > 0 {
		c.add(column+" = ?", exactAmount)
	} else {
		c.add(column + " > 0")
	}
}

// addDateFilter applies either the posting-date range or the reference-date
// range, never both.
func (c *cond) addDateFilter(q VoucherQuery, postingColumn, referenceColumn string) {
	column := postingColumn
	from, to := q.FromDate, q.ToDate
	if q.ByReferenceDate {
		column = referenceColumn
		from, to = q.FromReferenceDate, q.ToReferenceDate
	}
	if from != nil {
		c.add(column+" >= ?", *from)
	}
	if to != nil {
		c.add(column+" <= ?", *to)
	}
}

func (s *Storage) queryPaymentEntries(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	accountColumn := "paid_from"
	currencyColumn := "paid_from_account_currency"
	paymentType := "Pay"
	if q.Direction == DirectionDeposit {
		accountColumn = "paid_to"
		currencyColumn = "paid_to_account_currency"
		paymentType = "Receive"
	}

	c := &cond{}
	c.add("docstatus = ?", DocstatusSubmitted)
	c.add("payment_type IN (?, 'Internal Transfer')", paymentType)
	c.add("clearance_date IS NULL")
	c.add(accountColumn+" = ?", q.GLAccount)
	c.addAmountFilter("paid_amount", q.ExactAmount)
	c.addDateFilter(q, "posting_date", "reference_date")
	if q.ReferenceNo != "" {
		c.add("reference_no = ?", q.ReferenceNo)
	}
	if q.ExactParty != nil {
		c.add("party_type = ? AND party = ? AND party != ''", q.ExactParty.PartyType, q.ExactParty.Party)
	}

	query := `
	SELECT name, paid_amount, reference_no, reference_date, party, party_type,
	       party_name, posting_date, ` + currencyColumn + `
	FROM payment_entries` + c.where()

	return s.collectRows(ctx, VoucherPaymentEntry, query, c.args, scanStandardVoucher)
}

func (s *Storage) queryJournalEntries(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	// cr_or_dr is judged on deposit vs. withdrawal alone; one bank may map
	// both asset and liability accounts.
	amountColumn := "jea.credit_in_account_currency"
	if q.Direction == DirectionDeposit {
		amountColumn = "jea.debit_in_account_currency"
	}

	c := &cond{}
	c.add("je.docstatus = ?", DocstatusSubmitted)
	c.add("je.voucher_type != 'Opening Entry'")
	c.add("je.clearance_date IS NULL")
	c.add("jea.account = ?", q.GLAccount)
	c.addAmountFilter(amountColumn, q.ExactAmount)
	c.addDateFilter(q, "je.posting_date", "je.cheque_date")
	if q.ReferenceNo != "" {
		c.add("je.cheque_no = ?", q.ReferenceNo)
	}

	query := `
	SELECT je.name, ` + amountColumn + `, je.cheque_no, je.cheque_date,
	       je.pay_to_recd_from, jea.party_type, '' AS party_name,
	       je.posting_date, jea.account_currency
	FROM journal_entry_accounts jea
	JOIN journal_entries je ON jea.journal_entry = je.name` + c.where()

	return s.collectRows(ctx, VoucherJournalEntry, query, c.args, scanStandardVoucher)
}

func (s *Storage) queryPOSSalesInvoices(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	c := &cond{}
	c.add("si.docstatus = ?", DocstatusSubmitted)
	c.add("sip.clearance_date IS NULL")
	c.add("sip.account = ?", q.GLAccount)
	c.add("si.currency = ?", q.Currency)
	if q.ExactAmount > 0 {
		c.add("sip.amount = ?", q.ExactAmount)
	} else {
		c.add("sip.amount != 0")
	}
	if q.ExactParty != nil {
		c.add("si.customer = ?", q.ExactParty.Party)
	}

	query := `
	SELECT si.name, sip.amount, si.name AS reference_no, si.posting_date AS reference_date,
	       si.customer, 'Customer' AS party_type, si.customer_name,
	       si.posting_date, si.currency
	FROM sales_invoice_payments sip
	JOIN sales_invoices si ON sip.sales_invoice = si.name` + c.where()

	return s.collectRows(ctx, VoucherSalesInvoice, query, c.args, scanStandardVoucher)
}

func (s *Storage) queryUnpaidSalesInvoices(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	c := &cond{}
	c.add("docstatus = ?", DocstatusSubmitted)
	// no bank account linkage for unpaid invoices, restrict by company
	c.add("company = ?", q.Company)
	c.add("outstanding_amount != 0")
	c.add("currency = ?", q.Currency)
	if q.OnlyReturns {
		c.add("is_return = 1")
	}
	if q.ExactAmount > 0 {
		c.add("outstanding_amount = ?", q.ExactAmount)
	}
	if q.ExactParty != nil {
		c.add("customer = ?", q.ExactParty.Party)
	}

	query := `
	SELECT name, outstanding_amount, name AS reference_no, posting_date AS reference_date,
	       customer, 'Customer' AS party_type, customer_name, posting_date, currency
	FROM sales_invoices` + c.where()

	return s.collectRows(ctx, VoucherSalesInvoice, query, c.args, scanStandardVoucher)
}

func (s *Storage) queryPaidPurchaseInvoices(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	c := &cond{}
	c.add("docstatus = ?", DocstatusSubmitted)
	c.add("is_paid = 1")
	c.add("clearance_date IS NULL")
	c.add("cash_bank_account = ?", q.GLAccount)
	c.add("currency = ?", q.Currency)
	if q.ExactAmount > 0 {
		c.add("paid_amount = ?", q.ExactAmount)
	} else {
		c.add("paid_amount != 0")
	}
	if q.ExactParty != nil {
		c.add("supplier = ?", q.ExactParty.Party)
	}

	query := `
	SELECT name, paid_amount, bill_no AS reference_no, bill_date AS reference_date,
	       supplier, 'Supplier' AS party_type, supplier_name, posting_date, currency
	FROM purchase_invoices` + c.where()

	return s.collectRows(ctx, VoucherPurchaseInvoice, query, c.args, scanStandardVoucher)
}

func (s *Storage) queryUnpaidPurchaseInvoices(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	c := &cond{}
	c.add("docstatus = ?", DocstatusSubmitted)
	c.add("company = ?", q.Company)
	c.add("outstanding_amount != 0")
	c.add("is_paid = 0")
	c.add("currency = ?", q.Currency)
	if q.OnlyReturns {
		c.add("is_return = 1")
	}
	if q.ExactAmount > 0 {
		c.add("outstanding_amount = ?", q.ExactAmount)
	}
	if q.ExactParty != nil {
		c.add("supplier = ?", q.ExactParty.Party)
	}

	query := `
	SELECT name, outstanding_amount, bill_no AS reference_no, bill_date AS reference_date,
	       supplier, 'Supplier' AS party_type, supplier_name, posting_date, currency
	FROM purchase_invoices` + c.where()

	return s.collectRows(ctx, VoucherPurchaseInvoice, query, c.args, scanStandardVoucher)
}

func (s *Storage) queryExpenseClaims(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	const outstanding = `(total_sanctioned_amount + total_taxes_and_charges
		- total_amount_reimbursed - total_advance_amount)`

	c := &cond{}
	c.add("docstatus = ?", DocstatusSubmitted)
	c.add("company = ?", q.Company)
	c.add(outstanding + " > 0")
	c.add("status = 'Unpaid'")
	if q.ExactAmount > 0 {
		c.add(outstanding+" = ?", q.ExactAmount)
	}
	if q.ExactParty != nil {
		c.add("employee = ?", q.ExactParty.Party)
	}

	query := `
	SELECT name, ` + outstanding + `, name AS reference_no, posting_date AS reference_date,
	       employee, 'Employee' AS party_type, employee_name, posting_date, ? AS currency
	FROM expense_claims` + c.where()

	// Expense claims are always in company currency.
	args := append([]any{q.Currency}, c.args...)
	return s.collectRows(ctx, VoucherExpenseClaim, query, args, scanStandardVoucher)
}

func (s *Storage) queryLoanDisbursements(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	c := &cond{}
	c.add("docstatus = ?", DocstatusSubmitted)
	c.add("clearance_date IS NULL")
	c.add("disbursement_account = ?", q.GLAccount)
	c.addAmountFilter("disbursed_amount", q.ExactAmount)

	query := `
	SELECT name, disbursed_amount, reference_number, reference_date,
	       applicant, applicant_type, '' AS party_name, disbursement_date, '' AS currency
	FROM loan_disbursements` + c.where()

	return s.collectRows(ctx, VoucherLoanDisbursement, query, c.args, scanStandardVoucher)
}

func (s *Storage) queryLoanRepayments(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	c := &cond{}
	c.add("docstatus = ?", DocstatusSubmitted)
	c.add("clearance_date IS NULL")
	c.add("payment_account = ?", q.GLAccount)
	c.add("repay_from_salary = 0")
	c.addAmountFilter("amount_paid", q.ExactAmount)

	query := `
	SELECT name, amount_paid, reference_number, reference_date,
	       applicant, applicant_type, '' AS party_name, posting_date, '' AS currency
	FROM loan_repayments` + c.where()

	return s.collectRows(ctx, VoucherLoanRepayment, query, c.args, scanStandardVoucher)
}

// queryBankTransactionVouchers finds peer bank transactions in the same bank
// account with the opposite in/out direction. The source transaction is
// excluded.
func (s *Storage) queryBankTransactionVouchers(ctx context.Context, q VoucherQuery) ([]VoucherRow, error) {
	amountColumn := "withdrawal"
	if q.Direction == DirectionWithdrawal {
		amountColumn = "deposit"
	}

	c := &cond{}
	c.add("docstatus = ?", DocstatusSubmitted)
	c.add("status != ?", string(StatusReconciled))
	c.add("name != ?", q.ExcludeName)
	c.add("bank_account = ?", q.BankAccount)
	c.addAmountFilter(amountColumn, q.ExactAmount)
	if q.ExactParty != nil {
		c.add("party_type = ? AND party = ? AND party != ''", q.ExactParty.PartyType, q.ExactParty.Party)
	}

	query := `
	SELECT name, ` + amountColumn + `, reference_number, date AS reference_date,
	       party, party_type, '' AS party_name, date AS posting_date, currency,
	       unallocated_amount
	FROM bank_transactions` + c.where()

	return s.collectRows(ctx, VoucherBankTransaction, query, c.args, scanBankTransactionVoucher)
}

type voucherScanFunc func(rows *sql.Rows, row *VoucherRow) error

func (s *Storage) collectRows(ctx context.Context, docType VoucherType, query string, args []any, scan voucherScanFunc) ([]VoucherRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s vouchers: %w", docType, err)
	}
	defer rows.Close()

	var result []VoucherRow
	for rows.Next() {
		row := VoucherRow{DocType: docType, Docstatus: DocstatusSubmitted}
		if err := scan(rows, &row); err != nil {
			return nil, fmt.Errorf("scan %s voucher: %w", docType, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanStandardVoucher(rows *sql.Rows, row *VoucherRow) error {
	var referenceNo, party, partyType, partyName, currency sql.NullString
	var referenceDate sql.NullTime
	if err := rows.Scan(&row.Name, &row.Amount, &referenceNo, &referenceDate,
		&party, &partyType, &partyName, &row.PostingDate, &currency); err != nil {
		return err
	}
	row.ReferenceNo = referenceNo.String
	row.Party = party.String
	row.PartyType = partyType.String
	row.PartyName = partyName.String
	row.Currency = currency.String
	if referenceDate.Valid {
		t := referenceDate.Time
		row.ReferenceDate = &t
	}
	return nil
}

func scanBankTransactionVoucher(rows *sql.Rows, row *VoucherRow) error {
	var referenceNo, party, partyType, partyName, currency sql.NullString
	var referenceDate sql.NullTime
	if err := rows.Scan(&row.Name, &row.Amount, &referenceNo, &referenceDate,
		&party, &partyType, &partyName, &row.PostingDate, &currency,
		&row.UnallocatedAmount); err != nil {
		return err
	}
	row.ReferenceNo = referenceNo.String
	row.Party = party.String
	row.PartyType = partyType.String
	row.PartyName = partyName.String
	row.Currency = currency.String
	if referenceDate.Valid {
		t := referenceDate.Time
		row.ReferenceDate = &t
	}
	return nil
}

// GetVoucher retrieves a single voucher projection, any variant. The Amount
// field carries the variant's claimable amount where one is defined.
func (s *Storage) GetVoucher(ctx context.Context, voucherType VoucherType, name string) (*VoucherRow, error) {
	var query string
	switch voucherType {
	case VoucherPaymentEntry:
		query = `SELECT name, paid_amount, reference_no, reference_date, party,
			party_type, party_name, posting_date, paid_to_account_currency, docstatus
			FROM payment_entries WHERE name = ?`
	case VoucherJournalEntry:
		// Entry total = sum of debit legs (balanced entries)
		query = `SELECT je.name,
			COALESCE((SELECT SUM(jea.debit_in_account_currency)
				FROM journal_entry_accounts jea
				WHERE jea.journal_entry = je.name), 0),
			je.cheque_no, je.cheque_date, je.pay_to_recd_from,
			'', '', je.posting_date, '', je.docstatus
			FROM journal_entries je WHERE je.name = ?`
	case VoucherSalesInvoice:
		query = `SELECT name, outstanding_amount, name, posting_date, customer,
			'Customer', customer_name, posting_date, currency, docstatus
			FROM sales_invoices WHERE name = ?`
	case VoucherPurchaseInvoice:
		query = `SELECT name, outstanding_amount, bill_no, bill_date, supplier,
			'Supplier', supplier_name, posting_date, currency, docstatus
			FROM purchase_invoices WHERE name = ?`
	case VoucherExpenseClaim:
		query = `SELECT name, (total_sanctioned_amount + total_taxes_and_charges
			- total_amount_reimbursed - total_advance_amount), name, posting_date,
			employee, 'Employee', employee_name, posting_date, '', docstatus
			FROM expense_claims WHERE name = ?`
	case VoucherLoanDisbursement:
		query = `SELECT name, disbursed_amount, reference_number, reference_date,
			applicant, applicant_type, '', disbursement_date, '', docstatus
			FROM loan_disbursements WHERE name = ?`
	case VoucherLoanRepayment:
		query = `SELECT name, amount_paid, reference_number, reference_date,
			applicant, applicant_type, '', posting_date, '', docstatus
			FROM loan_repayments WHERE name = ?`
	case VoucherBankTransaction:
		query = `SELECT name, unallocated_amount, reference_number, date, party,
			party_type, '', date, currency, docstatus
			FROM bank_transactions WHERE name = ?`
	default:
		return nil, fmt.Errorf("unknown voucher type %q", voucherType)
	}

	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	row := VoucherRow{DocType: voucherType}
	var referenceNo, party, partyType, partyName, currency sql.NullString
	var referenceDate sql.NullTime
	if err := rows.Scan(&row.Name, &row.Amount, &referenceNo, &referenceDate,
		&party, &partyType, &partyName, &row.PostingDate, &currency, &row.Docstatus); err != nil {
		return nil, fmt.Errorf("scan voucher: %w", err)
	}
	row.ReferenceNo = referenceNo.String
	row.Party = party.String
	row.PartyType = partyType.String
	row.PartyName = partyName.String
	row.Currency = currency.String
	if referenceDate.Valid {
		t := referenceDate.Time
		row.ReferenceDate = &t
	}
	return &row, nil
}

// SavePaymentEntry inserts a payment entry draft.
func (s *Storage) SavePaymentEntry(ctx context.Context, pe *PaymentEntry) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO payment_entries
	(name, payment_type, posting_date, reference_no, reference_date, party_type,
	 party, party_name, paid_amount, received_amount, paid_from, paid_to,
	 paid_from_account_currency, paid_to_account_currency, mode_of_payment,
	 project, cost_center, clearance_date, docstatus)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pe.Name, pe.PaymentType, pe.PostingDate, pe.ReferenceNo, nullableTime(pe.ReferenceDate),
		pe.PartyType, pe.Party, pe.PartyName, pe.PaidAmount, pe.ReceivedAmount,
		pe.PaidFrom, pe.PaidTo, pe.PaidFromAccountCurrency, pe.PaidToAccountCurrency,
		pe.ModeOfPayment, pe.Project, pe.CostCenter, nullableTime(pe.ClearanceDate), pe.Docstatus,
	)
	if err != nil {
		return fmt.Errorf("save payment entry: %w", err)
	}
	return nil
}

// SaveJournalEntry inserts a journal entry draft with its account rows.
func (s *Storage) SaveJournalEntry(ctx context.Context, je *JournalEntry, accounts []JournalEntryAccount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO journal_entries
	(name, voucher_type, posting_date, cheque_no, cheque_date, pay_to_recd_from,
	 user_remark, mode_of_payment, clearance_date, docstatus)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		je.Name, je.VoucherType, je.PostingDate, je.ChequeNo, nullableTime(je.ChequeDate),
		je.PayToRecdFrom, je.UserRemark, je.ModeOfPayment, nullableTime(je.ClearanceDate), je.Docstatus,
	); err != nil {
		return fmt.Errorf("save journal entry: %w", err)
	}

	for i := range accounts {
		acc := &accounts[i]
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entry_accounts
		(journal_entry, account, party_type, party, debit_in_account_currency,
		 credit_in_account_currency, account_currency, cost_center)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			je.Name, acc.Account, acc.PartyType, acc.Party,
			acc.DebitInAccountCurrency, acc.CreditInAccountCurrency,
			acc.AccountCurrency, acc.CostCenter,
		); err != nil {
			return fmt.Errorf("save journal entry account: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SubmitVoucher moves a draft voucher to docstatus submitted.
func (s *Storage) SubmitVoucher(ctx context.Context, voucherType VoucherType, name string) error {
	table, ok := voucherTables[voucherType]
	if !ok {
		return fmt.Errorf("unknown voucher type %q", voucherType)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET docstatus = ? WHERE name = ? AND docstatus = ?",
		DocstatusSubmitted, name, DocstatusDraft,
	)
	if err != nil {
		return fmt.Errorf("submit voucher: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var voucherTables = map[VoucherType]string{
	VoucherPaymentEntry:     "payment_entries",
	VoucherJournalEntry:     "journal_entries",
	VoucherSalesInvoice:     "sales_invoices",
	VoucherPurchaseInvoice:  "purchase_invoices",
	VoucherExpenseClaim:     "expense_claims",
	VoucherLoanDisbursement: "loan_disbursements",
	VoucherLoanRepayment:    "loan_repayments",
	VoucherBankTransaction:  "bank_transactions",
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
