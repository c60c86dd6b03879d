package ixbrl

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var dashes = map[string]bool{"-": true, "—": true, "–": true, "": true}

// Decimal converts a numeric fact to its value:
//   - format numwordsen with "None" or "N/A" is absent
//   - format zerodash with a dash is zero
//   - commas, "$" and "%" are removed
//   - sign="-" negates, scale multiplies by 10^scale
//   - positive forces the result non-negative (fee waivers, redemption fees)
func (f Fact) Decimal(positive bool) decimal.NullDecimal {
	text := strings.TrimSpace(f.Text)
	format := strings.ToLower(f.Format)

	if strings.Contains(format, "numwordsen") {
		switch strings.ToLower(text) {
		case "none", "n/a":
			return decimal.NullDecimal{}
		}
	}
	if strings.Contains(format, "zerodash") && dashes[text] {
		return decimal.NewNullDecimal(decimal.Zero)
	}

	clean := strings.NewReplacer(",", "", "$", "", "%", "").Replace(text)
	clean = strings.TrimSpace(clean)
	if dashes[clean] {
		return decimal.NullDecimal{}
	}

	v, err := decimal.NewFromString(clean)
	if err != nil {
		zap.L().Debug("ixbrl: unparseable numeric fact",
			zap.String("name", f.Name),
			zap.String("text", text),
		)
		return decimal.NullDecimal{}
	}

	if f.Sign == "-" {
		v = v.Neg()
	}
	if f.Scale != "" {
		if scale, err := strconv.Atoi(f.Scale); err == nil {
			v = v.Mul(decimal.New(1, int32(scale)))
		}
	}
	if positive && v.IsNegative() {
		v = v.Neg()
	}
	return decimal.NewNullDecimal(v)
}

// String returns the fact's text, with HTML stripped from escaped text blocks.
func (f Fact) String() string {
	if f.Escape {
		return StripHTML(f.HTML)
	}
	return f.Text
}

var spaces = regexp.MustCompile(`\s+`)

// StripHTML returns the text content of an HTML fragment with whitespace
// collapsed.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Block boundaries separate words.
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(spaces.ReplaceAllString(b.String(), " "))
}

var dateLayouts = []string{
	time.DateOnly,
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
}

// ParseDate parses the date formats seen in dei:DocumentPeriodEndDate and
// table headers.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var memberID = regexp.MustCompile(`(?i)([SC]\d+)Member`)

// MemberID extracts a series ("S000014796") or class ("C000014542") ID from
// an axis member such as "rr01:S000014796Member".
func MemberID(member string) string {
	m := memberID.FindStringSubmatch(strings.TrimSpace(member))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// MemberName strips the namespace prefix from a member QName
// ("ist:BloombergUSUniversalIndexMember" -> "BloombergUSUniversalIndexMember").
func MemberName(member string) string {
	return LocalName(strings.TrimSpace(member))
}
