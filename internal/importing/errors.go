package importing

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Result is what every importer hands back to the upload endpoints.
type Result struct {
	Errors        []string `json:"errors"`
	ImportedCount int      `json:"imported_count"`
}

var (
	// CostLineItemRowLimit caps budget uploads.
	CostLineItemRowLimit = rowLimit("COST_LINE_ITEM_ROW_LIMIT", 5000)
	// TransactionRowLimit caps transaction file uploads.
	TransactionRowLimit = rowLimit("IMPORTED_TRANSACTION_LIMIT", 200000)
)

func rowLimit(envVar string, def int) int {
	if v := os.Getenv(envVar); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func errErrorReadingFile() string {
	return "There was an error reading data from the file."
}

func errFileEmpty() string {
	return "There is no data in this file."
}

func errFileTooLarge() string {
	return fmt.Sprintf(
		"The number of cost line items in the file submitted exceeds Dioptra's data "+
			"limit of %s rows. Please double check the file and remove any cost line items that are $0. "+
			"If this error still persists, please contact the Dioptra administrator.",
		groupThousands(CostLineItemRowLimit))
}

func errFileTooLargeTransactions() string {
	return fmt.Sprintf(
		"The number of transactions in the file submitted exceeds Dioptra's data "+
			"limit of %s rows. Please double check the file. If this error still "+
			"persists, please contact the Dioptra administrator.",
		groupThousands(TransactionRowLimit))
}

func errImportingTransactions() string {
	return "An error was encountered while importing transactions"
}

func errIncorrectHeaders(missing []string) string {
	return fmt.Sprintf("The uploaded file is missing required headers:  [%s]", strings.Join(missing, ", "))
}

func errInvalidRowColumn(row int, column, value, reason string) string {
	msg := fmt.Sprintf("Row %d, column %s contains invalid data %q.", row, column, value)
	if reason != "" {
		msg += "Reason: " + reason
	}
	return msg
}

func errRequiredRowColumn(row int, column string) string {
	return fmt.Sprintf("Row %d, column %s: This field cannot be null.", row, column)
}

func errInvalidRowGeneric(row int, reason string) string {
	if reason != "" {
		return fmt.Sprintf("Row %d: %s", row, reason)
	}
	return fmt.Sprintf("Row %d could not be imported due to errors.", row)
}

func errValueTooLong(row int, column string, limit int) string {
	return fmt.Sprintf("Row %d column %s exceeds the character limit of %d", row, column, limit)
}

func errMissingData(row int, columns []string) string {
	return fmt.Sprintf(
		"Row %d: A value must be present in one of these columns for this row to be valid: %s",
		row, strings.Join(columns, ", "))
}

func errInconsistentAccountCodeDescription(accountCode string) string {
	return fmt.Sprintf(
		"The account code description: %q is inconsistent across the imported file. "+
			"Please check the associated Account code description and Sensitive Data column and try again.",
		accountCode)
}

func errMissingParameter(row int, label string) string {
	return fmt.Sprintf("The Parameter %q is required for the intervention on row: %d", label, row)
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}
