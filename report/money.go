package report

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Amount formats d with thousands separators and two decimals.
func Amount(d decimal.Decimal) string {
	return printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// Company is the letterhead printed on generated documents.
type Company struct {
	Name    string
	Email   string
	Phone   string
	Address string
}
