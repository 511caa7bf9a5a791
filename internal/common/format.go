package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a title framed by separators, with a blank line before it
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "├  "
}

// FormatCash renders a cash amount with two decimals and an explicit sign when signed is set
func FormatCash(amount decimal.Decimal, signed bool) string {
	s := amount.StringFixed(2)
	if signed && amount.IsPositive() {
		return "+" + s
	}
	return s
}

// FormatPercent renders a percentage value such as ROI
func FormatPercent(pct decimal.Decimal) string {
	s := pct.StringFixed(2) + "%"
	if pct.IsPositive() {
		return "+" + s
	}
	return s
}

// FormatQuantity trims trailing zeros from a coin quantity
func FormatQuantity(qty decimal.Decimal) string {
	return qty.Round(8).String()
}
