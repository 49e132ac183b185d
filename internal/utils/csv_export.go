package utils

import (
	"strconv"

	"payroll-batch-engine/internal/models"
)

// exportHeader is the column order for row exports.
var exportHeader = []string{
	"row_index", "employee_id", "employee_email", "amount", "currency",
	"pay_date", "description", "external_reference", "status", "attempts",
	"error_message",
}

// ExportRows renders persisted rows as a CSV document with a fixed header.
func ExportRows(rows []*models.Row) (string, error) {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		record := []string{
			strconv.Itoa(row.RowIndex),
			"", "", "", "", "", "", "",
			string(row.Status),
			strconv.Itoa(row.Attempts),
			row.ErrorMessage,
		}
		if p := row.Payment; p != nil {
			record[1] = p.EmployeeID
			record[2] = p.EmployeeEmail
			record[3] = p.AmountString()
			record[4] = p.Currency
			record[5] = p.PayDateString()
			record[6] = p.Description
			record[7] = p.ExternalReference
		}
		records = append(records, record)
	}
	return WriteCSV(exportHeader, records)
}
