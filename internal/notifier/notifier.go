// Package notifier delivers price change messages to subscribers.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pricewatch/internal/model"
)

// Channel sends a formatted message to the user behind recipient.
type Channel interface {
	Send(ctx context.Context, recipient string, message string) error
}

type logger interface {
	Debugf(format string, v ...any)
	Errorf(format string, v ...any)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// linkEscaper keeps parentheses in a URL from closing the Markdown link early.
var linkEscaper = strings.NewReplacer("(", "%28", ")", "%29")

// FormatPriceChange renders n as Markdown: bold title and prices, one link.
func FormatPriceChange(n model.Notification) string {
	var b strings.Builder
	b.WriteString("\U0001F514 Price change notification!\n")
	fmt.Fprintf(&b, "\U0001F449 Product: *%s*\n", markdownEscaper.Replace(n.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "\U0001F4B0 Price without discount: *%s*\n", formatPrice(n.BasePrice))
	fmt.Fprintf(&b, "\U0001F4B3 Discount/card price: *%s*\n", formatPrice(n.DiscountedPrice))
	if n.Link != "" {
		b.WriteString("\n")
		fmt.Fprintf(&b, "\U0001F517 [Product link](%s)", linkEscaper.Replace(n.Link))
	}
	return b.String()
}

func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).String()
}
