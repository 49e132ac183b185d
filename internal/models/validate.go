// Package models defines the data structures for the payroll batch engine.
package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Business-rule bounds for a payment instruction.
const (
	MaxAmount         = 1000000.0
	MaxDescriptionLen = 255
	PayDatePastDays   = 30
	PayDateFutureDays = 365
	EmployeeIDPattern = `^[A-Za-z0-9_-]{3,64}$`
	payDateLayout     = "2006-01-02"
)

var (
	employeeIDRegexp = regexp.MustCompile(EmployeeIDPattern)
	payDateRegexp    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// RecognizedCurrencies is the fixed set of accepted ISO-4217 codes.
var RecognizedCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"CAD": true, "AUD": true, "NZD": true, "SEK": true, "NOK": true,
	"DKK": true, "PLN": true, "CZK": true, "HUF": true, "RON": true,
	"BGN": true, "HRK": true, "ISK": true, "TRY": true, "ILS": true,
	"AED": true, "SAR": true, "QAR": true, "KWD": true, "INR": true,
	"PKR": true, "BDT": true, "LKR": true, "NPR": true, "CNY": true,
	"HKD": true, "TWD": true, "KRW": true, "SGD": true, "MYR": true,
	"THB": true, "IDR": true, "PHP": true, "VND": true, "BRL": true,
	"MXN": true, "ARS": true, "CLP": true, "COP": true, "PEN": true,
	"ZAR": true, "NGN": true, "KES": true, "GHS": true, "EGP": true,
}

// ValidateRow checks one candidate row against all business rules and, on
// success, returns the normalized PaymentRow. All violations are collected
// rather than short-circuited; a type-coercion failure on a field suppresses
// the dependent checks on that same field only.
func ValidateRow(candidate map[string]string, now time.Time) (*PaymentRow, []FieldError) {
	var errs []FieldError

	get := func(field string) string {
		return strings.TrimSpace(candidate[field])
	}

	// amount
	var amount float64
	amountStr := get(FieldAmount)
	if amountStr == "" {
		errs = append(errs, FieldError{Field: FieldAmount, Message: "amount is required"})
	} else if parsed, err := strconv.ParseFloat(amountStr, 64); err != nil {
		errs = append(errs, FieldError{Field: FieldAmount, Message: "amount must be a number"})
	} else {
		amount = parsed
		if amount <= 0 {
			errs = append(errs, FieldError{Field: FieldAmount, Message: "amount must be greater than zero"})
		}
		if amount > MaxAmount {
			errs = append(errs, FieldError{Field: FieldAmount, Message: "amount exceeds the 1,000,000 maximum"})
		}
		if !hasAtMostTwoDecimals(amountStr) {
			errs = append(errs, FieldError{Field: FieldAmount, Message: "amount has more than 2 decimal places"})
		}
	}

	// currency
	currency := strings.ToUpper(get(FieldCurrency))
	if currency == "" {
		errs = append(errs, FieldError{Field: FieldCurrency, Message: "currency is required"})
	} else if len(currency) != 3 {
		errs = append(errs, FieldError{Field: FieldCurrency, Message: "currency must be a 3-letter code"})
	} else if !RecognizedCurrencies[currency] {
		errs = append(errs, FieldError{Field: FieldCurrency, Message: "unrecognized currency code"})
	}

	// pay_date
	var payDate time.Time
	payDateStr := get(FieldPayDate)
	if payDateStr == "" {
		errs = append(errs, FieldError{Field: FieldPayDate, Message: "pay_date is required"})
	} else if !payDateRegexp.MatchString(payDateStr) {
		errs = append(errs, FieldError{Field: FieldPayDate, Message: "pay_date must be in YYYY-MM-DD format"})
	} else if parsed, err := time.ParseInLocation(payDateLayout, payDateStr, now.Location()); err != nil {
		errs = append(errs, FieldError{Field: FieldPayDate, Message: "pay_date is not a valid calendar date"})
	} else {
		payDate = parsed
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		earliest := today.AddDate(0, 0, -PayDatePastDays)
		latest := today.AddDate(0, 0, PayDateFutureDays)
		if payDate.Before(earliest) || payDate.After(latest) {
			errs = append(errs, FieldError{Field: FieldPayDate, Message: "pay_date must be within 30 days past and 365 days ahead"})
		}
	}

	// employee_id
	employeeID := get(FieldEmployeeID)
	if employeeID != "" && !employeeIDRegexp.MatchString(employeeID) {
		errs = append(errs, FieldError{Field: FieldEmployeeID, Message: "employee_id must be 3-64 characters of letters, digits, underscore or hyphen"})
	}

	// employee_email
	employeeEmail := get(FieldEmployeeEmail)
	if employeeEmail != "" && !isValidEmail(employeeEmail) {
		errs = append(errs, FieldError{Field: FieldEmployeeEmail, Message: "employee_email is not a valid email address"})
	}

	// Cross-field: at least one identifier, reported at row level.
	if employeeID == "" && employeeEmail == "" {
		errs = append(errs, FieldError{Message: ErrNoIdentifier.Error()})
	}

	// description
	description := get(FieldDescription)
	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		errs = append(errs, FieldError{Field: FieldDescription, Message: "description exceeds 255 characters"})
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &PaymentRow{
		EmployeeID:        employeeID,
		EmployeeEmail:     employeeEmail,
		Amount:            amount,
		Currency:          currency,
		PayDate:           payDate,
		Description:       description,
		ExternalReference: get(FieldExternalReference),
	}, nil
}

// hasAtMostTwoDecimals checks the fractional digit count on the decimal
// string representation, not via floating rounding.
func hasAtMostTwoDecimals(s string) bool {
	dot := strings.Index(s, ".")
	if dot == -1 {
		return true
	}
	return len(s)-dot-1 <= 2
}

// isValidEmail performs basic email syntax validation.
func isValidEmail(email string) bool {
	if email == "" {
		return false
	}

	// Basic check: must contain @ and have content before and after
	atIndex := strings.Index(email, "@")
	if atIndex <= 0 || atIndex == len(email)-1 {
		return false
	}

	// Must have a dot after @
	dotIndex := strings.LastIndex(email, ".")
	if dotIndex <= atIndex+1 || dotIndex == len(email)-1 {
		return false
	}

	return true
}
