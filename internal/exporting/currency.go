package exporting

import (
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Spreadsheets are always formatted for en-US readers regardless of the
// analysis country.
var currencyPrinter = message.NewPrinter(language.AmericanEnglish)

// CurrencySymbol returns the en-US symbol for an ISO 4217 code, or "" when
// the code is unknown.
func CurrencySymbol(code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return ""
	}
	return currencyPrinter.Sprint(currency.Symbol(unit))
}

// currencyNames covers the currencies that show up in practice. Anything
// else falls back to the raw code, which is still unambiguous.
var currencyNames = map[string]string{
	"AFN": "Afghan Afghani",
	"BDT": "Bangladeshi Taka",
	"CDF": "Congolese Franc",
	"ETB": "Ethiopian Birr",
	"EUR": "Euro",
	"GBP": "British Pound",
	"IQD": "Iraqi Dinar",
	"JOD": "Jordanian Dinar",
	"KES": "Kenyan Shilling",
	"LBP": "Lebanese Pound",
	"MMK": "Myanmar Kyat",
	"NGN": "Nigerian Naira",
	"PKR": "Pakistani Rupee",
	"SOS": "Somali Shilling",
	"SSP": "South Sudanese Pound",
	"SYP": "Syrian Pound",
	"TZS": "Tanzanian Shilling",
	"UGX": "Ugandan Shilling",
	"USD": "US Dollar",
	"YER": "Yemeni Rial",
}

// CurrencyName returns a display name for an ISO 4217 code.
func CurrencyName(code string) string {
	if name, ok := currencyNames[code]; ok {
		return name
	}
	return code
}

// formatCurrencyValue renders a float with thousands separators and two
// decimals, for the handful of metadata values shown as money.
func formatCurrencyValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.Index(s, ".")
	whole, frac := s[:dot], s[dot:]
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
