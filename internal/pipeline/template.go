package pipeline

import (
	"regexp"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// ExpandTemplate substitutes {name}, {phone}, {amount} and any dynamic
// {header} placeholder captured in recipient.Fields. Unknown
// placeholders resolve to the empty string rather than erroring, so a
// template authored against one spreadsheet still renders against a
// slightly different one.
func ExpandTemplate(template string, recipient models.Recipient) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		switch name {
		case "name":
			return recipient.Name
		case "phone":
			return recipient.Phone
		case "amount":
			return formatAmount(recipient.Amount)
		default:
			if v, ok := recipient.Fields[name]; ok {
				return v
			}
			return ""
		}
	})
}

func formatAmount(amount float64) string {
	if amount == float64(int64(amount)) {
		return humanize.Comma(int64(amount))
	}
	return humanize.CommafWithDigits(amount, 2)
}

// ParseAmount is a small helper for callers (e.g. the spreadsheet
// parser) turning a captured "amount" column into a float, defaulting
// to zero on anything unparsable rather than failing the whole row.
func ParseAmount(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
