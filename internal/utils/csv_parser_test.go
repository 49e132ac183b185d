package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payroll-batch-engine/internal/models"
)

func TestParseCSV_ValidFile(t *testing.T) {
	csvContent := `employee_id,amount,currency,pay_date
EMP001,2500.50,USD,2025-06-30
EMP002,1800.00,EUR,2025-07-01`

	headers, rows, err := ParseCSV(csvContent)

	require.NoError(t, err)
	assert.Equal(t, []string{"employee_id", "amount", "currency", "pay_date"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, "EMP001", rows[0]["employee_id"])
	assert.Equal(t, "2500.50", rows[0]["amount"])
	assert.Equal(t, "EUR", rows[1]["currency"])
}

func TestParseCSV_EmptyFile(t *testing.T) {
	_, _, err := ParseCSV("")
	assert.ErrorIs(t, err, ErrEmptyCSV)

	_, _, err = ParseCSV("   \n  ")
	assert.ErrorIs(t, err, ErrEmptyCSV)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	_, _, err := ParseCSV("employee_id,amount,currency,pay_date")

	assert.ErrorIs(t, err, ErrNoDataRows)
}

func TestParseCSV_ShortAndLongRecords(t *testing.T) {
	csvContent := `employee_id,amount,currency
EMP001,100
EMP002,200,USD,extra`

	_, rows, err := ParseCSV(csvContent)

	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, hasCurrency := rows[0]["currency"]
	assert.False(t, hasCurrency, "short record leaves trailing column absent")
	assert.Equal(t, "USD", rows[1]["currency"], "extra values are dropped")
}

func TestParseCSV_QuotedValues(t *testing.T) {
	csvContent := `employee_id,amount,currency,description
EMP001,100,USD,"June bonus, ""special"""`

	_, rows, err := ParseCSV(csvContent)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `June bonus, "special"`, rows[0]["description"])
}

func TestDetectMapping_ExactHeaders(t *testing.T) {
	headers := []string{"employee_id", "amount", "currency", "pay_date", "description"}

	mapping := DetectMapping(headers)

	assert.Equal(t, "employee_id", mapping[models.FieldEmployeeID])
	assert.Equal(t, "amount", mapping[models.FieldAmount])
	assert.Equal(t, "pay_date", mapping[models.FieldPayDate])
	_, mapped := mapping[models.FieldExternalReference]
	assert.False(t, mapped, "unmatched field stays out of the mapping")
}

func TestDetectMapping_Aliases(t *testing.T) {
	headers := []string{"Emp_ID", "Salary", "CCY", "Payment_Date", "Work_Email"}

	mapping := DetectMapping(headers)

	assert.Equal(t, "Emp_ID", mapping[models.FieldEmployeeID])
	assert.Equal(t, "Salary", mapping[models.FieldAmount])
	assert.Equal(t, "CCY", mapping[models.FieldCurrency])
	assert.Equal(t, "Payment_Date", mapping[models.FieldPayDate])
	assert.Equal(t, "Work_Email", mapping[models.FieldEmployeeEmail])
}

func TestDetectMapping_ExactBeatsAlias(t *testing.T) {
	// "salary" is an alias for amount, but the exact "amount" header wins.
	headers := []string{"salary", "amount"}

	mapping := DetectMapping(headers)

	assert.Equal(t, "amount", mapping[models.FieldAmount])
}

func TestDetectMapping_DuplicateHeadersFirstWins(t *testing.T) {
	headers := []string{"amount", "amount"}

	mapping := DetectMapping(headers)

	assert.Equal(t, "amount", mapping[models.FieldAmount])
}

func TestProjectRow(t *testing.T) {
	raw := models.RawRow{"Emp_ID": "EMP001", "Salary": "100", "ignored": "x"}
	mapping := models.ColumnMapping{
		models.FieldEmployeeID: "Emp_ID",
		models.FieldAmount:     "Salary",
		models.FieldCurrency:   "missing_column",
	}

	candidate := ProjectRow(raw, mapping)

	assert.Equal(t, "EMP001", candidate[models.FieldEmployeeID])
	assert.Equal(t, "100", candidate[models.FieldAmount])
	_, ok := candidate[models.FieldCurrency]
	assert.False(t, ok)
	_, ok = candidate["ignored"]
	assert.False(t, ok)
}

func TestWriteCSV_Escaping(t *testing.T) {
	out, err := WriteCSV(
		[]string{"a", "b"},
		[][]string{{`has,comma`, `has "quote"`}},
	)

	require.NoError(t, err)
	assert.Contains(t, out, `"has,comma"`)
	assert.Contains(t, out, `"has ""quote"""`)

	// Round-trip through the parser restores the original values.
	_, rows, err := ParseCSV(out)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `has,comma`, rows[0]["a"])
	assert.Equal(t, `has "quote"`, rows[0]["b"])
}
