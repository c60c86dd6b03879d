package adapter

import (
	"fmt"
	"strings"
)

// ixContext renders an xbrli:context with optional explicit members given
// as dimension=member pairs.
func ixContext(id, start, end string, members ...string) string {
	var seg strings.Builder
	for _, m := range members {
		dim, member, _ := strings.Cut(m, "=")
		fmt.Fprintf(&seg, `<xbrldi:explicitMember dimension="%s">%s</xbrldi:explicitMember>`, dim, member)
	}
	period := fmt.Sprintf(`<xbrli:startDate>%s</xbrli:startDate><xbrli:endDate>%s</xbrli:endDate>`, start, end)
	if start == "" {
		period = fmt.Sprintf(`<xbrli:instant>%s</xbrli:instant>`, end)
	}
	return fmt.Sprintf(`<xbrli:context id="%s"><xbrli:entity><xbrli:identifier scheme="http://www.sec.gov/CIK">0000000001</xbrli:identifier><xbrli:segment>%s</xbrli:segment></xbrli:entity><xbrli:period>%s</xbrli:period></xbrli:context>`,
		id, seg.String(), period)
}

// ixPct renders a percentage nonFraction fact with scale -2.
func ixPct(name, ctx, text string) string {
	return fmt.Sprintf(`<ix:nonFraction name="%s" contextRef="%s" unitRef="pure" scale="-2" decimals="4">%s</ix:nonFraction>`, name, ctx, text)
}

// ixDoc wraps contexts and body markup into an inline XBRL document.
func ixDoc(contexts []string, body string) string {
	return `<html xmlns="http://www.w3.org/1999/xhtml" xmlns:ix="http://www.xbrl.org/2013/inlineXBRL"><head><title>report</title></head><body>` +
		`<div style="display:none"><ix:header><ix:resources>` + strings.Join(contexts, "\n") + `</ix:resources></ix:header></div>` +
		body + `</body></html>`
}
