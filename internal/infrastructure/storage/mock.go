package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// MockLedgerStore is an in-memory implementation of LedgerStore for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockLedgerStore struct {
	mu sync.RWMutex

	BankTransactions  map[string]*BankTransaction
	PaymentEntries    map[string]*PaymentEntry
	JournalEntries    map[string]*JournalEntry
	JournalAccounts   []JournalEntryAccount
	SalesInvoices     map[string]*SalesInvoice
	SalesInvoicePays  []SalesInvoicePayment
	PurchaseInvoices  map[string]*PurchaseInvoice
	ExpenseClaims     map[string]*ExpenseClaim
	LoanDisbursements map[string]*LoanDisbursement
	LoanRepayments    map[string]*LoanRepayment
	Allocations       []Allocation
	BankAccounts      map[string]*BankAccount
	Accounts          map[string]*Account
	Companies         map[string]string // company -> currency

	// Hooks for test assertions
	QueriesSeen []VoucherQuery

	// BeforeApplyReconciliation, when set, runs before the write is
	// applied so tests can interleave a concurrent writer.
	BeforeApplyReconciliation func()

	// Error injection for testing error paths
	QueryVouchersErr       error
	ApplyReconciliationErr error
}

// Compile-time check that MockLedgerStore implements LedgerStore
var _ LedgerStore = (*MockLedgerStore)(nil)

// NewMockLedgerStore creates a new mock store for testing
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		BankTransactions:  make(map[string]*BankTransaction),
		PaymentEntries:    make(map[string]*PaymentEntry),
		JournalEntries:    make(map[string]*JournalEntry),
		SalesInvoices:     make(map[string]*SalesInvoice),
		PurchaseInvoices:  make(map[string]*PurchaseInvoice),
		ExpenseClaims:     make(map[string]*ExpenseClaim),
		LoanDisbursements: make(map[string]*LoanDisbursement),
		LoanRepayments:    make(map[string]*LoanRepayment),
		BankAccounts:      make(map[string]*BankAccount),
		Accounts:          make(map[string]*Account),
		Companies:         make(map[string]string),
	}
}

// Close implements LedgerStore.
func (m *MockLedgerStore) Close() error { return nil }

// GetBankTransaction implements BankTransactionRepository.
func (m *MockLedgerStore) GetBankTransaction(_ context.Context, name string) (*BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bt, ok := m.BankTransactions[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *bt
	return &cp, nil
}

// ListBankTransactions implements BankTransactionRepository.
func (m *MockLedgerStore) ListBankTransactions(_ context.Context, filters BankTransactionFilters) ([]*BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*BankTransaction
	for _, bt := range m.BankTransactions {
		if filters.BankAccount != "" && bt.BankAccount != filters.BankAccount {
			continue
		}
		if filters.OnlyUnallocated && (bt.Docstatus != DocstatusSubmitted || bt.UnallocatedAmount <= Epsilon) {
			continue
		}
		if filters.FromDate != nil && bt.Date.Before(*filters.FromDate) {
			continue
		}
		if filters.ToDate != nil && bt.Date.After(*filters.ToDate) {
			continue
		}
		cp := *bt
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if filters.OrderBy == "date desc" {
			if !result[i].Date.Equal(result[j].Date) {
				return result[i].Date.After(result[j].Date)
			}
		} else if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// InsertBankTransactions implements BankTransactionRepository.
func (m *MockLedgerStore) InsertBankTransactions(_ context.Context, rows []*BankTransaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, bt := range rows {
		if _, exists := m.BankTransactions[bt.Name]; exists {
			continue
		}
		cp := *bt
		m.BankTransactions[bt.Name] = &cp
		inserted++
	}
	return inserted, nil
}

// QueryVouchers implements VoucherRepository with the same hard-filter
// semantics as the SQLite store.
func (m *MockLedgerStore) QueryVouchers(_ context.Context, q VoucherQuery) ([]VoucherRow, error) {
	m.mu.Lock()
	m.QueriesSeen = append(m.QueriesSeen, q)
	m.mu.Unlock()

	if m.QueryVouchersErr != nil {
		return nil, m.QueryVouchersErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch q.Type {
	case VoucherPaymentEntry:
		return m.queryPaymentEntries(q), nil
	case VoucherJournalEntry:
		return m.queryJournalEntries(q), nil
	case VoucherSalesInvoice:
		return m.querySalesInvoices(q), nil
	case VoucherPurchaseInvoice:
		return m.queryPurchaseInvoices(q), nil
	case VoucherExpenseClaim:
		return m.queryExpenseClaims(q), nil
	case VoucherLoanDisbursement:
		return m.queryLoanDisbursements(q), nil
	case VoucherLoanRepayment:
		return m.queryLoanRepayments(q), nil
	case VoucherBankTransaction:
		return m.queryBankTransactionVouchers(q), nil
	}
	return nil, nil
}

func amountPasses(amount, exact float64) bool {
	if exact > 0 {
		return amount == exact
	}
	return amount > 0
}

func datePasses(q VoucherQuery, postingDate time.Time, referenceDate *time.Time) bool {
	date := postingDate
	from, to := q.FromDate, q.ToDate
	if q.ByReferenceDate {
		if referenceDate == nil {
			return false
		}
		date = *referenceDate
		from, to = q.FromReferenceDate, q.ToReferenceDate
	}
	if from != nil && date.Before(*from) {
		return false
	}
	if to != nil && date.After(*to) {
		return false
	}
	return true
}

func partyPasses(q VoucherQuery, partyType, party string) bool {
	if q.ExactParty == nil {
		return true
	}
	return party != "" && party == q.ExactParty.Party &&
		(q.ExactParty.PartyType == "" || partyType == q.ExactParty.PartyType)
}

func (m *MockLedgerStore) queryPaymentEntries(q VoucherQuery) []VoucherRow {
	paymentType := "Pay"
	if q.Direction == DirectionDeposit {
		paymentType = "Receive"
	}

	var rows []VoucherRow
	for _, name := range sortedKeys(m.PaymentEntries) {
		pe := m.PaymentEntries[name]
		if pe.Docstatus != DocstatusSubmitted || pe.ClearanceDate != nil {
			continue
		}
		if pe.PaymentType != paymentType && pe.PaymentType != "Internal Transfer" {
			continue
		}
		account := pe.PaidFrom
		currency := pe.PaidFromAccountCurrency
		if q.Direction == DirectionDeposit {
			account = pe.PaidTo
			currency = pe.PaidToAccountCurrency
		}
		if account != q.GLAccount {
			continue
		}
		if !amountPasses(pe.PaidAmount, q.ExactAmount) {
			continue
		}
		if !datePasses(q, pe.PostingDate, pe.ReferenceDate) {
			continue
		}
		if q.ReferenceNo != "" && pe.ReferenceNo != q.ReferenceNo {
			continue
		}
		if !partyPasses(q, pe.PartyType, pe.Party) {
			continue
		}
		rows = append(rows, VoucherRow{
			DocType:       VoucherPaymentEntry,
			Name:          pe.Name,
			Amount:        pe.PaidAmount,
			ReferenceNo:   pe.ReferenceNo,
			ReferenceDate: pe.ReferenceDate,
			Party:         pe.Party,
			PartyType:     pe.PartyType,
			PartyName:     pe.PartyName,
			PostingDate:   pe.PostingDate,
			Currency:      currency,
			Docstatus:     pe.Docstatus,
		})
	}
	return rows
}

func (m *MockLedgerStore) queryJournalEntries(q VoucherQuery) []VoucherRow {
	var rows []VoucherRow
	for i := range m.JournalAccounts {
		jea := &m.JournalAccounts[i]
		je, ok := m.JournalEntries[jea.JournalEntry]
		if !ok || je.Docstatus != DocstatusSubmitted || je.ClearanceDate != nil {
			continue
		}
		if je.VoucherType == "Opening Entry" {
			continue
		}
		if jea.Account != q.GLAccount {
			continue
		}
		amount := jea.CreditInAccountCurrency
		if q.Direction == DirectionDeposit {
			amount = jea.DebitInAccountCurrency
		}
		if !amountPasses(amount, q.ExactAmount) {
			continue
		}
		if !datePasses(q, je.PostingDate, je.ChequeDate) {
			continue
		}
		if q.ReferenceNo != "" && je.ChequeNo != q.ReferenceNo {
			continue
		}
		rows = append(rows, VoucherRow{
			DocType:       VoucherJournalEntry,
			Name:          je.Name,
			Amount:        amount,
			ReferenceNo:   je.ChequeNo,
			ReferenceDate: je.ChequeDate,
			Party:         je.PayToRecdFrom,
			PartyType:     jea.PartyType,
			PostingDate:   je.PostingDate,
			Currency:      jea.AccountCurrency,
			Docstatus:     je.Docstatus,
		})
	}
	return rows
}

func (m *MockLedgerStore) querySalesInvoices(q VoucherQuery) []VoucherRow {
	var rows []VoucherRow
	if q.Unpaid {
		for _, name := range sortedKeys(m.SalesInvoices) {
			si := m.SalesInvoices[name]
			if si.Docstatus != DocstatusSubmitted || si.Company != q.Company ||
				si.OutstandingAmount == 0 || si.Currency != q.Currency {
				continue
			}
			if q.OnlyReturns && !si.IsReturn {
				continue
			}
			if q.ExactAmount > 0 && si.OutstandingAmount != q.ExactAmount {
				continue
			}
			if !partyPasses(q, "Customer", si.Customer) {
				continue
			}
			rows = append(rows, salesInvoiceRow(si, si.OutstandingAmount))
		}
		return rows
	}

	for i := range m.SalesInvoicePays {
		sip := &m.SalesInvoicePays[i]
		si, ok := m.SalesInvoices[sip.SalesInvoice]
		if !ok || si.Docstatus != DocstatusSubmitted || sip.ClearanceDate != nil {
			continue
		}
		if sip.Account != q.GLAccount || si.Currency != q.Currency {
			continue
		}
		if q.ExactAmount > 0 {
			if sip.Amount != q.ExactAmount {
				continue
			}
		} else if sip.Amount == 0 {
			continue
		}
		if !partyPasses(q, "Customer", si.Customer) {
			continue
		}
		rows = append(rows, salesInvoiceRow(si, sip.Amount))
	}
	return rows
}

func salesInvoiceRow(si *SalesInvoice, amount float64) VoucherRow {
	refDate := si.PostingDate
	return VoucherRow{
		DocType:       VoucherSalesInvoice,
		Name:          si.Name,
		Amount:        amount,
		ReferenceNo:   si.Name,
		ReferenceDate: &refDate,
		Party:         si.Customer,
		PartyType:     "Customer",
		PartyName:     si.CustomerName,
		PostingDate:   si.PostingDate,
		Currency:      si.Currency,
		Docstatus:     si.Docstatus,
	}
}

func (m *MockLedgerStore) queryPurchaseInvoices(q VoucherQuery) []VoucherRow {
	var rows []VoucherRow
	for _, name := range sortedKeys(m.PurchaseInvoices) {
		pi := m.PurchaseInvoices[name]
		if pi.Docstatus != DocstatusSubmitted || pi.Currency != q.Currency {
			continue
		}
		var amount float64
		if q.Unpaid {
			if pi.Company != q.Company || pi.OutstandingAmount == 0 || pi.IsPaid {
				continue
			}
			if q.OnlyReturns && !pi.IsReturn {
				continue
			}
			if q.ExactAmount > 0 && pi.OutstandingAmount != q.ExactAmount {
				continue
			}
			amount = pi.OutstandingAmount
		} else {
			if !pi.IsPaid || pi.ClearanceDate != nil || pi.CashBankAccount != q.GLAccount {
				continue
			}
			if q.ExactAmount > 0 {
				if pi.PaidAmount != q.ExactAmount {
					continue
				}
			} else if pi.PaidAmount == 0 {
				continue
			}
			amount = pi.PaidAmount
		}
		if !partyPasses(q, "Supplier", pi.Supplier) {
			continue
		}
		rows = append(rows, VoucherRow{
			DocType:       VoucherPurchaseInvoice,
			Name:          pi.Name,
			Amount:        amount,
			ReferenceNo:   pi.BillNo,
			ReferenceDate: pi.BillDate,
			Party:         pi.Supplier,
			PartyType:     "Supplier",
			PartyName:     pi.SupplierName,
			PostingDate:   pi.PostingDate,
			Currency:      pi.Currency,
			Docstatus:     pi.Docstatus,
		})
	}
	return rows
}

func (m *MockLedgerStore) queryExpenseClaims(q VoucherQuery) []VoucherRow {
	var rows []VoucherRow
	for _, name := range sortedKeys(m.ExpenseClaims) {
		ec := m.ExpenseClaims[name]
		outstanding := ec.OutstandingAmount()
		if ec.Docstatus != DocstatusSubmitted || ec.Company != q.Company ||
			outstanding <= 0 || ec.Status != "Unpaid" {
			continue
		}
		if q.ExactAmount > 0 && outstanding != q.ExactAmount {
			continue
		}
		if !partyPasses(q, "Employee", ec.Employee) {
			continue
		}
		refDate := ec.PostingDate
		rows = append(rows, VoucherRow{
			DocType:       VoucherExpenseClaim,
			Name:          ec.Name,
			Amount:        outstanding,
			ReferenceNo:   ec.Name,
			ReferenceDate: &refDate,
			Party:         ec.Employee,
			PartyType:     "Employee",
			PartyName:     ec.EmployeeName,
			PostingDate:   ec.PostingDate,
			Currency:      q.Currency,
			Docstatus:     ec.Docstatus,
		})
	}
	return rows
}

func (m *MockLedgerStore) queryLoanDisbursements(q VoucherQuery) []VoucherRow {
	var rows []VoucherRow
	for _, name := range sortedKeys(m.LoanDisbursements) {
		ld := m.LoanDisbursements[name]
		if ld.Docstatus != DocstatusSubmitted || ld.ClearanceDate != nil ||
			ld.DisbursementAccount != q.GLAccount {
			continue
		}
		if !amountPasses(ld.DisbursedAmount, q.ExactAmount) {
			continue
		}
		rows = append(rows, VoucherRow{
			DocType:       VoucherLoanDisbursement,
			Name:          ld.Name,
			Amount:        ld.DisbursedAmount,
			ReferenceNo:   ld.ReferenceNumber,
			ReferenceDate: ld.ReferenceDate,
			Party:         ld.Applicant,
			PartyType:     ld.ApplicantType,
			PostingDate:   ld.DisbursementDate,
			Docstatus:     ld.Docstatus,
		})
	}
	return rows
}

func (m *MockLedgerStore) queryLoanRepayments(q VoucherQuery) []VoucherRow {
	var rows []VoucherRow
	for _, name := range sortedKeys(m.LoanRepayments) {
		lr := m.LoanRepayments[name]
		if lr.Docstatus != DocstatusSubmitted || lr.ClearanceDate != nil ||
			lr.PaymentAccount != q.GLAccount || lr.RepayFromSalary {
			continue
		}
		if !amountPasses(lr.AmountPaid, q.ExactAmount) {
			continue
		}
		rows = append(rows, VoucherRow{
			DocType:       VoucherLoanRepayment,
			Name:          lr.Name,
			Amount:        lr.AmountPaid,
			ReferenceNo:   lr.ReferenceNumber,
			ReferenceDate: lr.ReferenceDate,
			Party:         lr.Applicant,
			PartyType:     lr.ApplicantType,
			PostingDate:   lr.PostingDate,
			Docstatus:     lr.Docstatus,
		})
	}
	return rows
}

func (m *MockLedgerStore) queryBankTransactionVouchers(q VoucherQuery) []VoucherRow {
	var rows []VoucherRow
	for _, name := range sortedKeys(m.BankTransactions) {
		bt := m.BankTransactions[name]
		if bt.Docstatus != DocstatusSubmitted || bt.Status == StatusReconciled {
			continue
		}
		if bt.Name == q.ExcludeName || bt.BankAccount != q.BankAccount {
			continue
		}
		amount := bt.Withdrawal
		if q.Direction == DirectionWithdrawal {
			amount = bt.Deposit
		}
		if !amountPasses(amount, q.ExactAmount) {
			continue
		}
		if !partyPasses(q, bt.PartyType, bt.Party) {
			continue
		}
		refDate := bt.Date
		rows = append(rows, VoucherRow{
			DocType:           VoucherBankTransaction,
			Name:              bt.Name,
			Amount:            amount,
			ReferenceNo:       bt.ReferenceNumber,
			ReferenceDate:     &refDate,
			Party:             bt.Party,
			PartyType:         bt.PartyType,
			PostingDate:       bt.Date,
			Currency:          bt.Currency,
			UnallocatedAmount: bt.UnallocatedAmount,
			Docstatus:         bt.Docstatus,
		})
	}
	return rows
}

// GetVoucher implements VoucherRepository.
func (m *MockLedgerStore) GetVoucher(_ context.Context, voucherType VoucherType, name string) (*VoucherRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch voucherType {
	case VoucherPaymentEntry:
		if pe, ok := m.PaymentEntries[name]; ok {
			return &VoucherRow{DocType: voucherType, Name: pe.Name, Amount: pe.PaidAmount,
				ReferenceNo: pe.ReferenceNo, Party: pe.Party, PartyType: pe.PartyType,
				PostingDate: pe.PostingDate, Docstatus: pe.Docstatus}, nil
		}
	case VoucherJournalEntry:
		if je, ok := m.JournalEntries[name]; ok {
			var total float64
			for i := range m.JournalAccounts {
				if m.JournalAccounts[i].JournalEntry == name {
					total += m.JournalAccounts[i].DebitInAccountCurrency
				}
			}
			return &VoucherRow{DocType: voucherType, Name: je.Name, Amount: total,
				ReferenceNo: je.ChequeNo, PostingDate: je.PostingDate, Docstatus: je.Docstatus}, nil
		}
	case VoucherSalesInvoice:
		if si, ok := m.SalesInvoices[name]; ok {
			return &VoucherRow{DocType: voucherType, Name: si.Name, Amount: si.OutstandingAmount,
				ReferenceNo: si.Name, Party: si.Customer, PartyType: "Customer",
				PostingDate: si.PostingDate, Currency: si.Currency, Docstatus: si.Docstatus}, nil
		}
	case VoucherPurchaseInvoice:
		if pi, ok := m.PurchaseInvoices[name]; ok {
			return &VoucherRow{DocType: voucherType, Name: pi.Name, Amount: pi.OutstandingAmount,
				ReferenceNo: pi.BillNo, Party: pi.Supplier, PartyType: "Supplier",
				PostingDate: pi.PostingDate, Currency: pi.Currency, Docstatus: pi.Docstatus}, nil
		}
	case VoucherExpenseClaim:
		if ec, ok := m.ExpenseClaims[name]; ok {
			return &VoucherRow{DocType: voucherType, Name: ec.Name, Amount: ec.OutstandingAmount(),
				ReferenceNo: ec.Name, Party: ec.Employee, PartyType: "Employee",
				PostingDate: ec.PostingDate, Docstatus: ec.Docstatus}, nil
		}
	case VoucherLoanDisbursement:
		if ld, ok := m.LoanDisbursements[name]; ok {
			return &VoucherRow{DocType: voucherType, Name: ld.Name, Amount: ld.DisbursedAmount,
				ReferenceNo: ld.ReferenceNumber, Party: ld.Applicant, PartyType: ld.ApplicantType,
				PostingDate: ld.DisbursementDate, Docstatus: ld.Docstatus}, nil
		}
	case VoucherLoanRepayment:
		if lr, ok := m.LoanRepayments[name]; ok {
			return &VoucherRow{DocType: voucherType, Name: lr.Name, Amount: lr.AmountPaid,
				ReferenceNo: lr.ReferenceNumber, Party: lr.Applicant, PartyType: lr.ApplicantType,
				PostingDate: lr.PostingDate, Docstatus: lr.Docstatus}, nil
		}
	case VoucherBankTransaction:
		if bt, ok := m.BankTransactions[name]; ok {
			return &VoucherRow{DocType: voucherType, Name: bt.Name, Amount: bt.UnallocatedAmount,
				ReferenceNo: bt.ReferenceNumber, Party: bt.Party, PartyType: bt.PartyType,
				PostingDate: bt.Date, Currency: bt.Currency, Docstatus: bt.Docstatus}, nil
		}
	}
	return nil, ErrNotFound
}

// SavePaymentEntry implements VoucherRepository.
func (m *MockLedgerStore) SavePaymentEntry(_ context.Context, pe *PaymentEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pe
	m.PaymentEntries[pe.Name] = &cp
	return nil
}

// SaveJournalEntry implements VoucherRepository.
func (m *MockLedgerStore) SaveJournalEntry(_ context.Context, je *JournalEntry, accounts []JournalEntryAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *je
	m.JournalEntries[je.Name] = &cp
	m.JournalAccounts = append(m.JournalAccounts, accounts...)
	return nil
}

// SubmitVoucher implements VoucherRepository.
func (m *MockLedgerStore) SubmitVoucher(_ context.Context, voucherType VoucherType, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch voucherType {
	case VoucherPaymentEntry:
		if pe, ok := m.PaymentEntries[name]; ok {
			pe.Docstatus = DocstatusSubmitted
			return nil
		}
	case VoucherJournalEntry:
		if je, ok := m.JournalEntries[name]; ok {
			je.Docstatus = DocstatusSubmitted
			return nil
		}
	}
	return ErrNotFound
}

// TotalAllocated implements AllocationRepository.
func (m *MockLedgerStore) TotalAllocated(_ context.Context, keys []VoucherKey) (map[VoucherKey][]AllocationTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[VoucherKey]bool, len(keys))
	for _, key := range keys {
		wanted[key] = true
	}

	totals := make(map[VoucherKey]map[string]float64)
	for i := range m.Allocations {
		a := &m.Allocations[i]
		key := VoucherKey{Type: a.VoucherType, Name: a.VoucherName}
		if !wanted[key] {
			continue
		}
		if totals[key] == nil {
			totals[key] = make(map[string]float64)
		}
		totals[key][a.GLAccount] += a.AllocatedAmount
	}

	result := make(map[VoucherKey][]AllocationTotal, len(totals))
	for key, byAccount := range totals {
		accounts := make([]string, 0, len(byAccount))
		for account := range byAccount {
			accounts = append(accounts, account)
		}
		sort.Strings(accounts)
		for _, account := range accounts {
			result[key] = append(result[key], AllocationTotal{GLAccount: account, Total: byAccount[account]})
		}
	}
	return result, nil
}

// ListAllocations implements AllocationRepository.
func (m *MockLedgerStore) ListAllocations(_ context.Context, bankTransaction string) ([]Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Allocation
	for _, a := range m.Allocations {
		if a.BankTransaction == bankTransaction {
			result = append(result, a)
		}
	}
	return result, nil
}

// ApplyReconciliation implements AllocationRepository.
func (m *MockLedgerStore) ApplyReconciliation(_ context.Context, txn *BankTransaction, expectedUnallocated float64, allocations []Allocation) error {
	if m.ApplyReconciliationErr != nil {
		return m.ApplyReconciliationErr
	}
	if m.BeforeApplyReconciliation != nil {
		m.BeforeApplyReconciliation()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.BankTransactions[txn.Name]
	if !ok || stored.Docstatus != DocstatusSubmitted {
		return ErrNotFound
	}
	if math.Abs(stored.UnallocatedAmount-expectedUnallocated) > Epsilon {
		return ErrNotFound
	}

	m.Allocations = append(m.Allocations, allocations...)
	stored.AllocatedAmount = txn.AllocatedAmount
	stored.UnallocatedAmount = txn.UnallocatedAmount
	stored.Status = txn.Status

	for i := range allocations {
		m.clearIfConsumed(&allocations[i], txn.Date)
	}
	return nil
}

func (m *MockLedgerStore) clearIfConsumed(a *Allocation, clearedOn time.Time) {
	var claimable float64
	switch a.VoucherType {
	case VoucherPaymentEntry:
		pe, ok := m.PaymentEntries[a.VoucherName]
		if !ok {
			return
		}
		claimable = pe.PaidAmount
	case VoucherJournalEntry:
		for i := range m.JournalAccounts {
			jea := &m.JournalAccounts[i]
			if jea.JournalEntry == a.VoucherName && jea.Account == a.GLAccount {
				claimable += jea.DebitInAccountCurrency + jea.CreditInAccountCurrency
			}
		}
	case VoucherLoanDisbursement:
		ld, ok := m.LoanDisbursements[a.VoucherName]
		if !ok {
			return
		}
		claimable = ld.DisbursedAmount
	case VoucherLoanRepayment:
		lr, ok := m.LoanRepayments[a.VoucherName]
		if !ok {
			return
		}
		claimable = lr.AmountPaid
	default:
		return
	}

	var total float64
	for i := range m.Allocations {
		alloc := &m.Allocations[i]
		if alloc.VoucherType == a.VoucherType && alloc.VoucherName == a.VoucherName &&
			alloc.GLAccount == a.GLAccount {
			total += alloc.AllocatedAmount
		}
	}
	if total < claimable-Epsilon {
		return
	}

	cleared := clearedOn
	switch a.VoucherType {
	case VoucherPaymentEntry:
		m.PaymentEntries[a.VoucherName].ClearanceDate = &cleared
	case VoucherJournalEntry:
		m.JournalEntries[a.VoucherName].ClearanceDate = &cleared
	case VoucherLoanDisbursement:
		m.LoanDisbursements[a.VoucherName].ClearanceDate = &cleared
	case VoucherLoanRepayment:
		m.LoanRepayments[a.VoucherName].ClearanceDate = &cleared
	}
}

// GetBankAccount implements AccountRepository.
func (m *MockLedgerStore) GetBankAccount(_ context.Context, name string) (*BankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ba, ok := m.BankAccounts[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ba
	return &cp, nil
}

// GetAccount implements AccountRepository.
func (m *MockLedgerStore) GetAccount(_ context.Context, name string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.Accounts[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetCompanyCurrency implements AccountRepository.
func (m *MockLedgerStore) GetCompanyCurrency(_ context.Context, company string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	currency, ok := m.Companies[company]
	if !ok {
		return "", ErrNotFound
	}
	return currency, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
