package adapter

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fundsync/ixbrl"
	"github.com/sells-group/fund-cli/internal/model"
)

// FinHigh extracts the per-share data and ratios of the Financial
// Highlights tables printed in N-CSR shareholder reports. These values are
// not tagged in XBRL, so the tables are read positionally.
type FinHigh struct {
	maxFilings int
}

func (a *FinHigh) Kind() model.AdapterKind { return model.AdapterFinHigh }
func (a *FinHigh) Form() string            { return "N-CSR" }

func (a *FinHigh) Applicable(funds []model.Fund) bool { return hasClasses(funds) }

func (a *FinHigh) Extract(ctx context.Context, src Source, cik string, funds []model.Fund) (*Extraction, error) {
	log := zap.L().With(zap.String("adapter", string(a.Kind())), zap.String("cik", cik))

	filings, err := src.Filings(ctx, a.Form(), a.maxFilings)
	if err != nil {
		return nil, eris.Wrap(err, "finhigh: list filings")
	}
	if len(filings) == 0 {
		return nil, ErrNoFiling
	}

	classes := model.ClassIndex(funds)
	satisfied := make(map[string]bool)
	seen := make(map[string]bool)
	var facts []model.Fact
	var attempted, failed int
	var lastErr error

	for i, f := range filings {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "finhigh: cancelled")
		}
		if len(satisfied) == len(classes) {
			log.Debug("finhigh: all classes satisfied", zap.Int("filings_scanned", i))
			break
		}

		attempted++
		rows, err := a.parseFiling(ctx, src, f, funds)
		if err != nil {
			failed++
			lastErr = err
			log.Warn("finhigh: filing failed", zap.String("accession", f.AccessionNumber), zap.Error(err))
			continue
		}
		for _, fh := range rows {
			key := fh.ClassID + "|" + fh.FiscalYearEnd.Format(time.DateOnly)
			if seen[key] {
				continue
			}
			seen[key] = true
			satisfied[fh.ClassID] = true
			facts = append(facts, fh)
		}
	}

	if attempted > 0 && failed == attempted {
		return nil, eris.Wrapf(lastErr, "finhigh: all %d filings failed", attempted)
	}
	return &Extraction{FilingDate: filings[0].FilingDate, Facts: facts}, nil
}

func (a *FinHigh) parseFiling(ctx context.Context, src Source, f edgar.Filing, funds []model.Fund) ([]model.FinancialHighlight, error) {
	r, err := src.Document(ctx, f, f.PrimaryDocument)
	if err != nil {
		return nil, eris.Wrapf(err, "finhigh: fetch %s", f.AccessionNumber)
	}
	defer r.Close() //nolint:errcheck

	root, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrapf(err, "finhigh: parse %s", f.AccessionNumber)
	}

	header, err := src.Header(ctx, f)
	if err != nil {
		// Class resolution falls back to tickers and single-class entities.
		zap.L().Debug("finhigh: header unavailable", zap.String("accession", f.AccessionNumber), zap.Error(err))
		header = &edgar.Header{}
	}

	doc := scanReport(root)
	periodEnd := doc.periodEnd
	if periodEnd == nil {
		periodEnd = f.ReportDate
	}
	resolver := newClassResolver(funds, header)

	merged := make(map[string]*model.FinancialHighlight)
	var order []string
	for _, t := range doc.tables {
		tbl, ok := parseHighlightsTable(t.rows, periodEnd)
		if !ok {
			continue
		}
		classID := resolver.resolve(t.caption)
		if classID == "" {
			zap.L().Debug("finhigh: table class unresolved",
				zap.String("accession", f.AccessionNumber),
				zap.Int("columns", len(tbl)),
			)
			continue
		}
		for _, col := range tbl {
			col.ClassID = classID
			col.FilingDate = f.FilingDate
			key := classID + "|" + col.FiscalYearEnd.Format(time.DateOnly)
			if prev, ok := merged[key]; ok {
				// Continuation tables add rows to the same columns.
				mergeHighlight(prev, col)
				continue
			}
			c := col
			merged[key] = &c
			order = append(order, key)
		}
	}

	out := make([]model.FinancialHighlight, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out, nil
}

// reportTable is one HTML table with the text that precedes it.
type reportTable struct {
	caption string
	rows    [][]string
}

type report struct {
	tables    []reportTable
	periodEnd *time.Time
}

const captionWindow = 800

// scanReport walks the document once, collecting every table with the text
// immediately before it and the dei:DocumentPeriodEndDate value.
func scanReport(root *html.Node) report {
	var rep report
	var recent strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "ix:header", "script", "style", "head":
				return
			case "ix:nonnumeric":
				if rep.periodEnd == nil && strings.EqualFold(ixbrl.LocalName(attrOf(n, "name")), "DocumentPeriodEndDate") {
					if d, ok := ixbrl.ParseDate(nodeText(n)); ok {
						rep.periodEnd = &d
					}
				}
			case "table":
				caption := recent.String()
				if len(caption) > captionWindow {
					caption = caption[len(caption)-captionWindow:]
				}
				rep.tables = append(rep.tables, reportTable{caption: caption, rows: tableRows(n)})
				return
			}
		}
		if n.Type == html.TextNode {
			recent.WriteString(n.Data)
			recent.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return rep
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalizeSpace(b.String())
}

var spaceRun = regexp.MustCompile(`\s+`)

func normalizeSpace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// tableRows returns the non-empty cell texts of each row, with the
// detached "$", "(", ")" and "%" cells of financial statements merged into
// their values.
func tableRows(table *html.Node) [][]string {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					if t := nodeText(c); t != "" {
						cells = append(cells, t)
					}
				}
			}
			if cells = mergeCells(cells); len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return rows
}

func mergeCells(cells []string) []string {
	var out []string
	prefix := ""
	for _, c := range cells {
		switch c {
		case "$", "(", "($", "$(":
			prefix += c
			continue
		case ")", "%", ")%", "%)":
			if len(out) > 0 {
				out[len(out)-1] += c
				continue
			}
		}
		out = append(out, prefix+c)
		prefix = ""
	}
	return out
}

// highlightField identifies one row of the Financial Highlights table.
type highlightField int

const (
	fieldNone highlightField = iota
	fieldNAVBeginning
	fieldNetInvestmentIncome
	fieldNetGainLoss
	fieldTotalFromOperations
	fieldDistNetInvestmentIncome
	fieldDistCapitalGains
	fieldDistReturnOfCapital
	fieldTotalDistributions
	fieldNAVEnd
	fieldTotalReturn
	fieldExpenseRatio
	fieldNetInvestmentIncomeRatio
	fieldPortfolioTurnover
	fieldNetAssetsEnd
)

// section tracks the heading rows that disambiguate repeated labels such as
// "Net investment income".
type section int

const (
	sectionOperations section = iota
	sectionDistributions
	sectionRatios
)

var (
	navWord   = regexp.MustCompile(`\bnav\b`)
	ratioWord = regexp.MustCompile(`\bratios?\b`)
)

// classifyLabel maps a row label to a field. Rules are ordered; the first
// match wins.
func classifyLabel(label string, sec section) highlightField {
	l := strings.ToLower(label)
	has := func(s string) bool { return strings.Contains(l, s) }
	nav := has("net asset value") || navWord.MatchString(l)
	dist := sec == sectionDistributions ||
		strings.HasPrefix(l, "from ") ||
		has("distributions from") || has("dividends from")
	ratio := sec == sectionRatios || has("average net assets") || ratioWord.MatchString(l)

	switch {
	case nav && has("beginning"):
		return fieldNAVBeginning
	case nav && (has("end of") || has("ending")):
		return fieldNAVEnd
	case has("net assets") && has("end of") && !has("average"):
		return fieldNetAssetsEnd
	case has("turnover"):
		return fieldPortfolioTurnover
	case has("total return"):
		return fieldTotalReturn
	case ratio && has("net investment income"):
		return fieldNetInvestmentIncomeRatio
	case ratio && has("expenses"):
		return fieldExpenseRatio
	case has("total distributions") || has("total dividends and distributions"):
		return fieldTotalDistributions
	case has("return of capital"):
		return fieldDistReturnOfCapital
	case dist && (has("capital gain") || has("realized gain")):
		return fieldDistCapitalGains
	case dist && has("net investment income"):
		return fieldDistNetInvestmentIncome
	case has("total from") || has("total income from investment operations"):
		return fieldTotalFromOperations
	case has("realized and unrealized") || has("net gain") || has("net realized"):
		return fieldNetGainLoss
	case has("net investment income"):
		return fieldNetInvestmentIncome
	}
	return fieldNone
}

func setHighlight(h *model.FinancialHighlight, field highlightField, v decimal.NullDecimal) {
	var dst *decimal.NullDecimal
	switch field {
	case fieldNAVBeginning:
		dst = &h.NAVBeginning
	case fieldNetInvestmentIncome:
		dst = &h.NetInvestmentIncome
	case fieldNetGainLoss:
		dst = &h.NetGainLoss
	case fieldTotalFromOperations:
		dst = &h.TotalFromOperations
	case fieldDistNetInvestmentIncome:
		dst = &h.DistNetInvestmentIncome
	case fieldDistCapitalGains:
		dst = &h.DistCapitalGains
	case fieldDistReturnOfCapital:
		dst = &h.DistReturnOfCapital
	case fieldTotalDistributions:
		dst = &h.TotalDistributions
	case fieldNAVEnd:
		dst = &h.NAVEnd
	case fieldTotalReturn:
		dst = &h.TotalReturn
	case fieldExpenseRatio:
		dst = &h.ExpenseRatio
	case fieldNetInvestmentIncomeRatio:
		dst = &h.NetInvestmentIncomeRatio
	case fieldPortfolioTurnover:
		dst = &h.PortfolioTurnover
	case fieldNetAssetsEnd:
		dst = &h.NetAssetsEnd
	default:
		return
	}
	setFirst(dst, v)
}

func mergeHighlight(dst *model.FinancialHighlight, src model.FinancialHighlight) {
	for _, pair := range []struct{ d, s *decimal.NullDecimal }{
		{&dst.NAVBeginning, &src.NAVBeginning},
		{&dst.NetInvestmentIncome, &src.NetInvestmentIncome},
		{&dst.NetGainLoss, &src.NetGainLoss},
		{&dst.TotalFromOperations, &src.TotalFromOperations},
		{&dst.DistNetInvestmentIncome, &src.DistNetInvestmentIncome},
		{&dst.DistCapitalGains, &src.DistCapitalGains},
		{&dst.DistReturnOfCapital, &src.DistReturnOfCapital},
		{&dst.TotalDistributions, &src.TotalDistributions},
		{&dst.NAVEnd, &src.NAVEnd},
		{&dst.TotalReturn, &src.TotalReturn},
		{&dst.ExpenseRatio, &src.ExpenseRatio},
		{&dst.NetInvestmentIncomeRatio, &src.NetInvestmentIncomeRatio},
		{&dst.PortfolioTurnover, &src.PortfolioTurnover},
		{&dst.NetAssetsEnd, &src.NetAssetsEnd},
	} {
		setFirst(pair.d, *pair.s)
	}
}

var (
	headerDate = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)
	headerYear = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// headerColumns reads the fiscal period of each value column from a header
// row. Bare years take their month and day from the report period end.
func headerColumns(cells []string, periodEnd *time.Time) []time.Time {
	var cols []time.Time
	for _, c := range cells {
		if m := headerDate.FindString(c); m != "" {
			m = strings.ReplaceAll(m, ".", "")
			if d, ok := ixbrl.ParseDate(m); ok {
				cols = append(cols, d)
				continue
			}
		}
		if m := headerYear.FindString(c); m != "" && periodEnd != nil {
			year, _ := strconv.Atoi(m)
			cols = append(cols, time.Date(year, periodEnd.Month(), periodEnd.Day(), 0, 0, 0, 0, time.UTC))
		}
	}
	return cols
}

// parseHighlightsTable returns one highlight per fiscal period column, or
// false when the table is not a Financial Highlights table.
func parseHighlightsTable(rows [][]string, periodEnd *time.Time) ([]model.FinancialHighlight, bool) {
	start := -1
	for i, row := range rows {
		if classifyLabel(row[0], sectionOperations) == fieldNAVBeginning {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, false
	}

	var cols []time.Time
	for _, row := range rows[:start] {
		if c := headerColumns(row, periodEnd); len(c) > len(cols) {
			cols = c
		}
	}
	if len(cols) == 0 {
		return nil, false
	}
	// A period in the leading label cell ("Year ended December 31, 2023")
	// is not a column of its own.
	if n := len(rows[start]) - 1; n > 0 && len(cols) > n {
		cols = cols[len(cols)-n:]
	}

	out := make([]model.FinancialHighlight, len(cols))
	for i, d := range cols {
		out[i].FiscalYearEnd = d
	}

	sec := sectionOperations
	assigned := make(map[highlightField]bool)
	sawEnd := false
	for _, row := range rows[start:] {
		label, values := row[0], row[1:]
		if len(values) == 0 {
			l := strings.ToLower(label)
			switch {
			case ratioWord.MatchString(l) || strings.Contains(l, "average net assets") || strings.Contains(l, "supplemental"):
				sec = sectionRatios
			case strings.Contains(l, "distribution") || strings.Contains(l, "dividend"):
				sec = sectionDistributions
			}
			continue
		}

		field := classifyLabel(label, sec)
		if field == fieldNone || assigned[field] {
			continue
		}
		assigned[field] = true
		switch field {
		case fieldTotalDistributions:
			sec = sectionOperations
		case fieldNAVEnd:
			sawEnd = true
			sec = sectionOperations
		}

		for i, v := range values {
			if i >= len(out) {
				break
			}
			setHighlight(&out[i], field, parseTableValue(v))
		}
	}
	if !sawEnd {
		return nil, false
	}
	return out, true
}

// classResolver maps the text preceding a table to a share class.
type classResolver struct {
	classes  map[string]model.Fund
	tickers  map[string]string
	header   *edgar.Header
	fallback string
}

func newClassResolver(funds []model.Fund, header *edgar.Header) *classResolver {
	cr := &classResolver{
		classes: model.ClassIndex(funds),
		tickers: make(map[string]string),
		header:  header,
	}
	for _, f := range funds {
		if f.Ticker != "" && f.ClassID != "" {
			cr.tickers[strings.ToUpper(f.Ticker)] = f.ClassID
		}
	}
	if len(cr.classes) == 1 {
		for id := range cr.classes {
			cr.fallback = id
		}
	}
	return cr
}

var tickerToken = regexp.MustCompile(`\b[A-Z]{3,5}\b`)

// resolve picks the class named closest to the end of caption: a ticker of
// a known class, or a series name from the filing header. Entities with one
// known class need no caption.
func (cr *classResolver) resolve(caption string) string {
	best, bestPos := "", -1

	for _, loc := range tickerToken.FindAllStringIndex(caption, -1) {
		if id, ok := cr.tickers[caption[loc[0]:loc[1]]]; ok && loc[0] > bestPos {
			best, bestPos = id, loc[0]
		}
	}

	lower := strings.ToLower(caption)
	for _, s := range cr.header.Series {
		if s.Name == "" {
			continue
		}
		pos := strings.LastIndex(lower, strings.ToLower(s.Name))
		if pos < 0 || pos <= bestPos {
			continue
		}
		if id := cr.seriesClass(s, lower[pos:]); id != "" {
			best, bestPos = id, pos
		}
	}

	if best != "" {
		return best
	}
	return cr.fallback
}

// seriesClass picks the known class of a series named in tail, or the
// series' only known class.
func (cr *classResolver) seriesClass(s edgar.HeaderSeries, tail string) string {
	var only string
	known := 0
	for _, c := range s.Classes {
		if _, ok := cr.classes[c.ID]; !ok {
			continue
		}
		known++
		only = c.ID
		if c.Name != "" && strings.Contains(tail, strings.ToLower(c.Name)) {
			return c.ID
		}
	}
	if known == 1 {
		return only
	}
	return ""
}
