package camt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finledger/bankrecon/internal/infrastructure/storage"
)

// Importer turns parsed statement rows into bank transactions using
// insert-new-records semantics: a row already imported is skipped, so
// re-running an import is safe.
type Importer struct {
	store  storage.LedgerStore
	logger *slog.Logger
}

// NewImporter creates a statement importer.
func NewImporter(store storage.LedgerStore, logger *slog.Logger) *Importer {
	return &Importer{store: store, logger: logger}
}

// ImportFile parses a statement file and imports its rows. Returns the
// number of newly inserted transactions.
func (i *Importer) ImportFile(ctx context.Context, path, company, bankAccount string) (int, error) {
	rows, err := ParseFile(path, company, bankAccount)
	if err != nil {
		return 0, err
	}
	return i.Import(ctx, rows)
}

// Import inserts normalized rows as bank transactions. Transaction
// names are derived deterministically from the row content, which is
// what makes repeated imports idempotent.
func (i *Importer) Import(ctx context.Context, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	currency, err := i.defaultCurrency(ctx, rows[0].BankAccount)
	if err != nil {
		return 0, err
	}

	transactions := make([]*storage.BankTransaction, 0, len(rows))
	for _, row := range rows {
		txn := &storage.BankTransaction{
			Name:              transactionName(row),
			Date:              row.Date,
			Deposit:           row.Deposit,
			Withdrawal:        row.Withdrawal,
			Currency:          row.Currency,
			BankAccount:       row.BankAccount,
			Company:           row.Company,
			ReferenceNumber:   row.ReferenceNumber,
			Description:       row.Description,
			AllocatedAmount:   0,
			UnallocatedAmount: row.Deposit + row.Withdrawal,
			Status:            storage.StatusUnreconciled,
			Docstatus:         storage.DocstatusSubmitted,
		}
		if txn.Currency == "" {
			txn.Currency = currency
		}
		transactions = append(transactions, txn)
	}

	inserted, err := i.store.InsertBankTransactions(ctx, transactions)
	if err != nil {
		return 0, fmt.Errorf("insert transactions: %w", err)
	}

	i.logger.Info("statement import complete",
		"rows", len(rows),
		"inserted", inserted,
		"skipped", len(rows)-inserted)
	return inserted, nil
}

func (i *Importer) defaultCurrency(ctx context.Context, bankAccountName string) (string, error) {
	bankAccount, err := i.store.GetBankAccount(ctx, bankAccountName)
	if err != nil {
		return "", fmt.Errorf("resolve bank account %s: %w", bankAccountName, err)
	}
	account, err := i.store.GetAccount(ctx, bankAccount.GLAccount)
	if err != nil {
		return "", fmt.Errorf("resolve ledger account %s: %w", bankAccount.GLAccount, err)
	}
	return account.Currency, nil
}

// transactionName derives a stable name from the row's identifying
// fields so the same statement entry always maps to the same record.
func transactionName(row Row) string {
	key := fmt.Sprintf("%s|%s|%.2f|%.2f|%s|%s",
		row.BankAccount, row.Date.Format("2006-01-02"),
		row.Deposit, row.Withdrawal,
		row.ReferenceNumber, row.Description)
	return "BT-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
