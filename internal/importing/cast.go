package importing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NumericString undoes Excel's habit of storing codes like "9116" as the
// float "9116.0". Non-numeric values pass through untouched.
func NumericString(v string) string {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	return strconv.FormatInt(int64(f), 10)
}

// Decimal4 parses a numeric cell rounded to four decimal places.
func Decimal4(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return d.Round(4), nil
}

// Dollar4 parses a currency cell like "$1,234.50" rounded to four decimal
// places.
func Dollar4(v string) (decimal.Decimal, error) {
	v = strings.ReplaceAll(v, "$", "")
	v = strings.ReplaceAll(v, ",", "")
	return Decimal4(v)
}

// Boolean parses the yes/no spellings the upload templates use.
func Boolean(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "", "false", "no", "0":
		return false, nil
	case "true", "yes", "1":
		return true, nil
	}
	return false, fmt.Errorf("importing: invalid boolean value %q", v)
}
