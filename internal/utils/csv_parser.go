// Package utils provides utility functions for the payroll batch engine.
package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"payroll-batch-engine/internal/models"
)

// CSVParser errors
var (
	ErrEmptyCSV     = errors.New("CSV content is empty")
	ErrNoDataRows   = errors.New("CSV file contains no data rows")
	ErrBadCSVHeader = errors.New("failed to read CSV header")
)

// FieldAliases maps each canonical field to alternative column names,
// tried in order after an exact (case-insensitive) header match fails.
var FieldAliases = map[string][]string{
	models.FieldEmployeeID: {
		"employeeid", "employee id", "emp_id", "empid", "staff_id",
		"worker_id", "id",
	},
	models.FieldEmployeeEmail: {
		"email", "employee email", "emailaddress", "email_address",
		"mail", "work_email",
	},
	models.FieldAmount: {
		"salary", "payment", "pay_amount", "payroll_amount", "value",
		"gross", "net_pay",
	},
	models.FieldCurrency: {
		"currency_code", "ccy", "cur",
	},
	models.FieldPayDate: {
		"paydate", "pay date", "payment_date", "date", "pay_day",
	},
	models.FieldDescription: {
		"memo", "note", "notes", "reference_note", "desc",
	},
	models.FieldExternalReference: {
		"external_ref", "externalreference", "reference", "ref",
		"external_id",
	},
}

// DetectMapping infers which input column feeds each canonical field. For
// each field an exact case-insensitive header match wins over any alias;
// the first matching alias wins otherwise. Fields with no match are left
// out of the mapping. With duplicate headers the first occurrence wins.
func DetectMapping(headers []string) models.ColumnMapping {
	// First occurrence of each normalized header.
	byNormalized := make(map[string]string, len(headers))
	for _, h := range headers {
		normalized := strings.ToLower(strings.TrimSpace(h))
		if _, seen := byNormalized[normalized]; !seen {
			byNormalized[normalized] = h
		}
	}

	mapping := make(models.ColumnMapping, len(models.CanonicalFields))
	for _, field := range models.CanonicalFields {
		if original, ok := byNormalized[field]; ok {
			mapping[field] = original
			continue
		}
		for _, alias := range FieldAliases[field] {
			if original, ok := byNormalized[alias]; ok {
				mapping[field] = original
				break
			}
		}
	}

	return mapping
}

// ParseCSV parses raw CSV content into headers and one RawRow per data
// line. Short records leave trailing columns absent; extra values beyond
// the header are dropped.
func ParseCSV(content string) ([]string, []models.RawRow, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, ErrEmptyCSV
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // Allow variable number of fields

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadCSVHeader, err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(h)
	}

	var rows []models.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV row %d: %w", len(rows)+2, err)
		}

		row := make(models.RawRow, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, nil, ErrNoDataRows
	}

	return headers, rows, nil
}

// ProjectRow projects a raw row through the column mapping into canonical
// field candidates. Unmapped fields are omitted.
func ProjectRow(raw models.RawRow, mapping models.ColumnMapping) map[string]string {
	candidate := make(map[string]string, len(mapping))
	for field, column := range mapping {
		if value, ok := raw[column]; ok {
			candidate[field] = value
		}
	}
	return candidate
}

// WriteCSV renders a header row and records as CSV. Values containing a
// comma, quote or newline are wrapped in double quotes with internal
// quotes doubled.
func WriteCSV(header []string, records [][]string) (string, error) {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	if err := writer.Write(header); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}

	return sb.String(), nil
}
