package adapter

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var blankValues = map[string]bool{
	"":    true,
	"-":   true,
	"—":   true,
	"–":   true,
	"N/A": true,
	"NA":  true,
}

// parseAmount parses a filed amount: commas and "$" are dropped and
// accounting negatives "(1,234)" become -1234. Blank, dash and N/A values
// are absent.
func parseAmount(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if blankValues[strings.ToUpper(s)] {
		return decimal.NullDecimal{}
	}

	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	if blankValues[s] {
		return decimal.NullDecimal{}
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if neg {
		v = v.Neg()
	}
	return decimal.NewNullDecimal(v)
}

// parseTableValue parses a financial statement cell. Percentages are
// stored as fractions ("0.45%" -> 0.0045).
func parseTableValue(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	pct := strings.Contains(s, "%")
	s = strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
	// "(0.12)%" keeps its parentheses after the percent sign is removed.
	v := parseAmount(s)
	if v.Valid && pct {
		v.Decimal = v.Decimal.Div(decimal.NewFromInt(100))
	}
	return v
}

// parseDecimal parses a plain XML numeric value.
func parseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if blankValues[strings.ToUpper(s)] {
		return decimal.NullDecimal{}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}

// parseISODate parses a YYYY-MM-DD value, returning nil when absent.
func parseISODate(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}

// isYes reads the Y/N flags used by SEC XML forms.
func isYes(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y", "YES", "TRUE":
		return true
	}
	return false
}

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// setFirst assigns v to dst unless dst already holds a value.
func setFirst(dst *decimal.NullDecimal, v decimal.NullDecimal) {
	if dst.Valid || !v.Valid {
		return
	}
	*dst = v
}
