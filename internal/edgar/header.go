package edgar

import (
	"bufio"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Header is the series and class roster declared in a filing's SGML header.
type Header struct {
	Series []HeaderSeries
}

// HeaderSeries is one <SERIES> block.
type HeaderSeries struct {
	ID      string
	Name    string
	Classes []HeaderClass
}

// HeaderClass is one <CLASS-CONTRACT> block.
type HeaderClass struct {
	ID     string
	Name   string
	Ticker string
}

// ParseHeader reads the <SERIES> and <CLASS-CONTRACT> blocks of an SGML
// header. Series without a name and classes without an ID are dropped.
func ParseHeader(r io.Reader) (*Header, error) {
	h := &Header{}
	var series *HeaderSeries
	var class *HeaderClass

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		tag, val, ok := sgmlLine(sc.Text())
		if !ok {
			continue
		}
		switch tag {
		case "SERIES":
			series = &HeaderSeries{}
		case "/SERIES":
			if series != nil && series.Name != "" {
				h.Series = append(h.Series, *series)
			}
			series, class = nil, nil
		case "SERIES-ID":
			if series != nil {
				series.ID = val
			}
		case "SERIES-NAME":
			if series != nil {
				series.Name = val
			}
		case "CLASS-CONTRACT":
			if series != nil {
				class = &HeaderClass{}
			}
		case "/CLASS-CONTRACT":
			if series != nil && class != nil && class.ID != "" {
				series.Classes = append(series.Classes, *class)
			}
			class = nil
		case "CLASS-CONTRACT-ID":
			if class != nil {
				class.ID = val
			}
		case "CLASS-CONTRACT-NAME":
			if class != nil {
				class.Name = val
			}
		case "CLASS-CONTRACT-TICKER-SYMBOL":
			if class != nil {
				class.Ticker = val
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "edgar: scan sgml header")
	}
	return h, nil
}

// sgmlLine splits "<TAG>value" into its parts.
func sgmlLine(line string) (tag, val string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<") {
		return "", "", false
	}
	end := strings.IndexByte(line, '>')
	if end < 0 {
		return "", "", false
	}
	return line[1:end], strings.TrimSpace(line[end+1:]), true
}

// SeriesNames maps series ID to series name.
func (h *Header) SeriesNames() map[string]string {
	out := make(map[string]string, len(h.Series))
	for _, s := range h.Series {
		if s.ID != "" {
			out[s.ID] = s.Name
		}
	}
	return out
}

// ClassID resolves a class by case-insensitive series and class name.
func (h *Header) ClassID(seriesName, className string) string {
	for _, s := range h.Series {
		if !strings.EqualFold(s.Name, strings.TrimSpace(seriesName)) {
			continue
		}
		for _, c := range s.Classes {
			if strings.EqualFold(c.Name, strings.TrimSpace(className)) {
				return c.ID
			}
		}
	}
	return ""
}

// ClassByTicker resolves a class ID from its ticker symbol.
func (h *Header) ClassByTicker(ticker string) string {
	for _, s := range h.Series {
		for _, c := range s.Classes {
			if c.Ticker != "" && strings.EqualFold(c.Ticker, ticker) {
				return c.ID
			}
		}
	}
	return ""
}

// SeriesOf returns the series ID that declares classID.
func (h *Header) SeriesOf(classID string) string {
	for _, s := range h.Series {
		for _, c := range s.Classes {
			if c.ID == classID {
				return s.ID
			}
		}
	}
	return ""
}
