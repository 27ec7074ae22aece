// Package camt parses CAMT.053 bank statement files into normalized
// transaction rows.
//
// The parser is namespace-agnostic across the camt.053 versions banks
// actually ship (001.02 through 001.08): it matches element local
// names only. Input is a single XML statement or a ZIP archive of
// them.
package camt

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Row is one normalized statement entry, ready for import as a bank
// transaction. Exactly one of Deposit/Withdrawal is non-zero.
type Row struct {
	Date            time.Time
	Company         string
	BankAccount     string
	Deposit         float64
	Withdrawal      float64
	Currency        string
	ReferenceNumber string
	Description     string
}

type camtDocument struct {
	XMLName    xml.Name        `xml:"Document"`
	Statements []camtStatement `xml:"BkToCstmrStmt>Stmt"`
}

type camtStatement struct {
	Entries []camtEntry `xml:"Ntry"`
}

type camtEntry struct {
	Amount         camtAmount  `xml:"Amt"`
	CreditDebit    string      `xml:"CdtDbtInd"`
	BookingDate    string      `xml:"BookgDt>Dt"`
	AdditionalInfo string      `xml:"AddtlNtryInf"`
	AcctSvcrRef    string      `xml:"AcctSvcrRef"`
	Details        []camtTxDtl `xml:"NtryDtls>TxDtls"`
}

type camtAmount struct {
	Value    string `xml:",chardata"`
	Currency string `xml:"Ccy,attr"`
}

type camtTxDtl struct {
	CreditorRef string `xml:"RmtInf>Strd>CdtrRefInf>Ref"`
	AcctSvcrRef string `xml:"Refs>AcctSvcrRef"`
}

// ParseFile parses a statement file by extension: .xml directly, .zip
// as an archive whose .xml members are each parsed and concatenated.
func ParseFile(path, company, bankAccount string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open statement: %w", err)
		}
		defer f.Close()
		return Parse(f, company, bankAccount)
	case ".zip":
		return parseArchive(path, company, bankAccount)
	default:
		return nil, fmt.Errorf("unsupported statement format %q, expected .xml or .zip", filepath.Ext(path))
	}
}

// Parse reads a single CAMT.053 document and returns its entries in
// document order.
func Parse(r io.Reader, company, bankAccount string) ([]Row, error) {
	var doc camtDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode statement: %w", err)
	}

	var rows []Row
	for _, stmt := range doc.Statements {
		for i, entry := range stmt.Entries {
			row, err := normalizeEntry(entry, company, bankAccount)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i+1, err)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func parseArchive(path, company, bankAccount string) ([]Row, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	var rows []Row
	found := false
	for _, member := range archive.File {
		if strings.ToLower(filepath.Ext(member.Name)) != ".xml" {
			continue
		}
		found = true
		f, err := member.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive member %s: %w", member.Name, err)
		}
		parsed, err := Parse(f, company, bankAccount)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", member.Name, err)
		}
		rows = append(rows, parsed...)
	}
	if !found {
		return nil, fmt.Errorf("no XML statements found in %s", filepath.Base(path))
	}
	return rows, nil
}

func normalizeEntry(entry camtEntry, company, bankAccount string) (Row, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(entry.BookingDate))
	if err != nil {
		return Row{}, fmt.Errorf("invalid booking date %q", entry.BookingDate)
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(entry.Amount.Value), 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid amount %q", entry.Amount.Value)
	}

	row := Row{
		Date:            date,
		Company:         company,
		BankAccount:     bankAccount,
		Currency:        entry.Amount.Currency,
		ReferenceNumber: entryReference(entry),
		Description:     strings.TrimSpace(entry.AdditionalInfo),
	}
	if entry.CreditDebit == "CRDT" {
		row.Deposit = amount
	} else {
		row.Withdrawal = amount
	}
	return row, nil
}

// entryReference picks the structured creditor reference when present,
// falling back to the account servicer reference.
func entryReference(entry camtEntry) string {
	for _, dtl := range entry.Details {
		if ref := strings.TrimSpace(dtl.CreditorRef); ref != "" {
			return ref
		}
	}
	if ref := strings.TrimSpace(entry.AcctSvcrRef); ref != "" {
		return ref
	}
	for _, dtl := range entry.Details {
		if ref := strings.TrimSpace(dtl.AcctSvcrRef); ref != "" {
			return ref
		}
	}
	return ""
}
