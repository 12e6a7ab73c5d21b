package auction

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseCurrency converts scraped money text like "$1,234.56" into a
// decimal. Unparsable or empty input yields nil, never zero: downstream
// rule evaluation must be able to tell "absent" from "0.00".
func ParseCurrency(text string) *decimal.Decimal {
	cleaned := cleanCurrency(text)
	if cleaned == "" {
		return nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

// cleanCurrency strips formatting and returns the bare amount. Text
// that is not wholly an amount once the formatting is gone, like a
// status phrase that happens to contain a digit, returns "".
func cleanCurrency(text string) string {
	s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(text))
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if s == "" || s == "." {
		return ""
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return ""
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}

// decimalOrZero treats an absent amount as zero for surplus arithmetic,
// matching how sale proceeds are netted when no bid floor was recorded.
func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
