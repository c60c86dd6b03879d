// Package ixbrl extracts contexts and tagged facts from inline XBRL documents.
//
// The document is read with the golang.org/x/net/html tokenizer rather than
// the tree builder so that hidden ix:header blocks and tables are seen in
// source order without HTML5 tree fix-ups.
package ixbrl

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// Context is one xbrli:context.
type Context struct {
	ID        string
	EntityCIK string
	Start     *time.Time
	End       *time.Time
	Instant   *time.Time
	// Members maps dimension QName (as written, e.g. "oef:ClassAxis") to the
	// member QName (e.g. "ist:C000131291Member").
	Members map[string]string
}

// PeriodEnd returns the end of a duration context or the instant.
func (c *Context) PeriodEnd() *time.Time {
	if c.End != nil {
		return c.End
	}
	return c.Instant
}

// Member returns the member of the first dimension whose local name contains
// axis, case-insensitively.
func (c *Context) Member(axis string) (string, bool) {
	axis = strings.ToLower(axis)
	for dim, m := range c.Members {
		if strings.Contains(strings.ToLower(LocalName(dim)), axis) {
			return m, true
		}
	}
	return "", false
}

// Fact is one ix:nonFraction or ix:nonNumeric element.
type Fact struct {
	Name       string
	ContextRef string
	Numeric    bool
	Scale      string
	Sign       string
	Format     string
	Escape     bool
	// Text is the element's text content, whitespace-trimmed.
	Text string
	// HTML is the raw inner markup, used for escaped text blocks.
	HTML string
}

// LocalName returns the part of a QName after the prefix.
func (f Fact) LocalName() string { return LocalName(f.Name) }

// Document is a parsed inline XBRL filing.
type Document struct {
	Contexts map[string]*Context
	Facts    []Fact
}

// Context returns the context referenced by f, or nil.
func (d *Document) Context(f Fact) *Context {
	return d.Contexts[f.ContextRef]
}

// FactsNamed returns facts whose local name equals local, in document order.
func (d *Document) FactsNamed(local string) []Fact {
	var out []Fact
	for _, f := range d.Facts {
		if strings.EqualFold(f.LocalName(), local) {
			out = append(out, f)
		}
	}
	return out
}

// First returns the first fact with the given local name, optionally
// restricted to one context.
func (d *Document) First(local, contextRef string) (Fact, bool) {
	for _, f := range d.Facts {
		if !strings.EqualFold(f.LocalName(), local) {
			continue
		}
		if contextRef != "" && f.ContextRef != contextRef {
			continue
		}
		return f, true
	}
	return Fact{}, false
}

// LocalName strips a namespace prefix ("oef:ClassAxis" -> "ClassAxis").
func LocalName(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

type capture struct {
	fact Fact
	text strings.Builder
	html bytes.Buffer
}

// Parse reads an inline XBRL document.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{Contexts: make(map[string]*Context)}
	z := html.NewTokenizer(r)

	var (
		open  []*capture
		ctx   *Context
		field string
		dim   string
		buf   strings.Builder
	)

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, eris.Wrap(err, "ixbrl: tokenize")
			}
			break
		}
		raw := append([]byte(nil), z.Raw()...)
		tok := z.Token()
		local := LocalName(tok.Data)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			for _, c := range open {
				c.html.Write(raw)
			}
			switch {
			case isFactTag(tok.Data):
				if tt == html.SelfClosingTagToken {
					doc.Facts = append(doc.Facts, newFact(tok))
					continue
				}
				open = append(open, &capture{fact: newFact(tok)})
			case local == "context":
				ctx = &Context{ID: attr(tok, "id"), Members: make(map[string]string)}
			case ctx != nil && tt == html.StartTagToken:
				switch local {
				case "identifier", "startdate", "enddate", "instant":
					field = local
					buf.Reset()
				case "explicitmember":
					field = local
					dim = attr(tok, "dimension")
					buf.Reset()
				}
			}

		case html.EndTagToken:
			if isFactTag(tok.Data) {
				// Close the innermost open fact of this element type.
				for i := len(open) - 1; i >= 0; i-- {
					c := open[i]
					if factTagName(c.fact) != tok.Data {
						continue
					}
					c.fact.Text = strings.TrimSpace(c.text.String())
					c.fact.HTML = c.html.String()
					doc.Facts = append(doc.Facts, c.fact)
					open = append(open[:i], open[i+1:]...)
					break
				}
			}
			for _, c := range open {
				c.html.Write(raw)
			}

			if ctx == nil {
				continue
			}
			switch local {
			case "context":
				if ctx.ID != "" {
					doc.Contexts[ctx.ID] = ctx
				}
				ctx = nil
			case field:
				val := strings.TrimSpace(buf.String())
				applyContextField(ctx, field, dim, val)
				field, dim = "", ""
			}

		case html.TextToken:
			for _, c := range open {
				c.text.WriteString(tok.Data)
				c.html.Write(raw)
			}
			if field != "" {
				buf.WriteString(tok.Data)
			}
		}
	}

	return doc, nil
}

func isFactTag(name string) bool {
	return name == "ix:nonfraction" || name == "ix:nonnumeric"
}

func factTagName(f Fact) string {
	if f.Numeric {
		return "ix:nonfraction"
	}
	return "ix:nonnumeric"
}

func newFact(tok html.Token) Fact {
	return Fact{
		Name:       attr(tok, "name"),
		ContextRef: attr(tok, "contextref"),
		Numeric:    tok.Data == "ix:nonfraction",
		Scale:      attr(tok, "scale"),
		Sign:       attr(tok, "sign"),
		Format:     attr(tok, "format"),
		Escape:     strings.EqualFold(attr(tok, "escape"), "true"),
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func applyContextField(ctx *Context, field, dim, val string) {
	switch field {
	case "identifier":
		ctx.EntityCIK = val
	case "startdate":
		ctx.Start = parseISODate(val)
	case "enddate":
		ctx.End = parseISODate(val)
	case "instant":
		ctx.Instant = parseISODate(val)
	case "explicitmember":
		if dim != "" {
			ctx.Members[dim] = val
		}
	}
}

func parseISODate(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}
