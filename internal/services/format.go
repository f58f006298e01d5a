package services

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// amountPrinter groups thousands the way the fund's statements do. Arabic
// messages use the same Latin digits as the bank statements.
var amountPrinter = message.NewPrinter(language.English)

func formatAmount(d decimal.Decimal) string {
	return amountPrinter.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

var currencyNamesAr = map[string]string{
	"SAR": "ريال",
	"KWD": "دينار كويتي",
	"AED": "درهم",
}

// currencyLabelAr falls back to the ISO code for currencies without an
// Arabic name.
func currencyLabelAr(code string) string {
	if name, ok := currencyNamesAr[code]; ok {
		return name
	}
	return code
}
