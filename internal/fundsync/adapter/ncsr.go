package adapter

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fundsync/ixbrl"
	"github.com/sells-group/fund-cli/internal/model"
)

// NCSR extracts annual return snapshots per share class from the inline
// XBRL tailored shareholder report data of N-CSR filings.
type NCSR struct {
	maxFilings int
}

func (a *NCSR) Kind() model.AdapterKind { return model.AdapterNCSR }
func (a *NCSR) Form() string            { return "N-CSR" }

func (a *NCSR) Applicable(funds []model.Fund) bool { return hasClasses(funds) }

const (
	conceptAvgAnnualReturn   = "AvgAnnlRtrPct"
	conceptExpenseRatio      = "ExpenseRatioPct"
	conceptPortfolioTurnover = "InvestmentCompanyPortfolioTurnover"
)

// Return horizons in years; 0 means since inception.
const (
	horizonSinceInception = 0
	horizon1Yr            = 1
	horizon5Yr            = 5
	horizon10Yr           = 10
)

// returnHorizon maps a return period to 1, 5 or 10 years with a 30 day
// tolerance. Any other length is since inception.
func returnHorizon(start, end time.Time) int {
	years := end.Sub(start).Hours() / 24 / 365.25
	tolerance := 30 / 365.25
	for _, h := range []int{horizon1Yr, horizon5Yr, horizon10Yr} {
		if math.Abs(years-float64(h)) <= tolerance {
			return h
		}
	}
	return horizonSinceInception
}

func (a *NCSR) Extract(ctx context.Context, src Source, cik string, funds []model.Fund) (*Extraction, error) {
	log := zap.L().With(zap.String("adapter", string(a.Kind())), zap.String("cik", cik))

	filings, err := src.Filings(ctx, a.Form(), a.maxFilings)
	if err != nil {
		return nil, eris.Wrap(err, "ncsr: list filings")
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
			return nil, eris.Wrap(err, "ncsr: cancelled")
		}
		if len(satisfied) == len(classes) {
			log.Debug("ncsr: all classes satisfied", zap.Int("filings_scanned", i))
			break
		}
		if !f.IsInlineXBRL {
			log.Debug("ncsr: filing is not inline xbrl", zap.String("accession", f.AccessionNumber))
			continue
		}

		attempted++
		rows, err := a.parseFiling(ctx, src, f, classes)
		if err != nil {
			failed++
			lastErr = err
			log.Warn("ncsr: filing failed", zap.String("accession", f.AccessionNumber), zap.Error(err))
			continue
		}
		for _, p := range rows {
			key := p.ClassID + "|" + p.FiscalYearEnd.Format(time.DateOnly)
			if seen[key] {
				continue
			}
			seen[key] = true
			satisfied[p.ClassID] = true
			facts = append(facts, p)
		}
	}

	if attempted > 0 && failed == attempted {
		return nil, eris.Wrapf(lastErr, "ncsr: all %d filings failed", attempted)
	}
	return &Extraction{FilingDate: filings[0].FilingDate, Facts: facts}, nil
}

// classReturns accumulates the facts of one class within one filing.
type classReturns struct {
	perf      model.Performance
	fye       *time.Time
	benchmark string
}

func (a *NCSR) parseFiling(ctx context.Context, src Source, f edgar.Filing, classes map[string]model.Fund) ([]model.Performance, error) {
	r, err := src.Document(ctx, f, f.PrimaryDocument)
	if err != nil {
		return nil, eris.Wrapf(err, "ncsr: fetch %s", f.AccessionNumber)
	}
	defer r.Close() //nolint:errcheck

	doc, err := ixbrl.Parse(r)
	if err != nil {
		return nil, eris.Wrapf(err, "ncsr: parse %s", f.AccessionNumber)
	}

	byClass := make(map[string]*classReturns)
	var order []string

	for _, fact := range doc.Facts {
		name := fact.LocalName()
		if name != conceptAvgAnnualReturn && name != conceptExpenseRatio && name != conceptPortfolioTurnover {
			continue
		}
		c := doc.Context(fact)
		if c == nil {
			continue
		}
		member, ok := c.Member("ClassAxis")
		if !ok {
			continue
		}
		classID := ixbrl.MemberID(member)
		if _, known := classes[classID]; !known {
			continue
		}

		cr := byClass[classID]
		if cr == nil {
			cr = &classReturns{perf: model.Performance{ClassID: classID, FilingDate: f.FilingDate}}
			byClass[classID] = cr
			order = append(order, classID)
		}

		if bench, isBench := c.Member("BroadBasedIndexAxis"); isBench {
			cr.addBenchmark(fact, c, ixbrl.MemberName(bench))
			continue
		}
		if cr.fye == nil {
			cr.fye = c.PeriodEnd()
		}
		cr.addFund(fact, c)
	}

	var out []model.Performance
	for _, id := range order {
		cr := byClass[id]
		if cr.fye == nil {
			zap.L().Warn("ncsr: no fiscal year end for class",
				zap.String("class_id", id),
				zap.String("accession", f.AccessionNumber),
			)
			continue
		}
		cr.perf.FiscalYearEnd = *cr.fye
		if cr.benchmark != "" {
			name := cr.benchmark
			cr.perf.BenchmarkName = &name
		}
		out = append(out, cr.perf)
	}
	return out, nil
}

func (cr *classReturns) addFund(fact ixbrl.Fact, c *ixbrl.Context) {
	v := fact.Decimal(false)
	p := &cr.perf
	switch fact.LocalName() {
	case conceptAvgAnnualReturn:
		if c.Start == nil || c.End == nil {
			return
		}
		switch returnHorizon(*c.Start, *c.End) {
		case horizon1Yr:
			setFirst(&p.Return1Yr, v)
		case horizon5Yr:
			setFirst(&p.Return5Yr, v)
		case horizon10Yr:
			setFirst(&p.Return10Yr, v)
		default:
			setFirst(&p.ReturnSinceInception, v)
		}
	case conceptExpenseRatio:
		setFirst(&p.ExpenseRatio, v)
	case conceptPortfolioTurnover:
		setFirst(&p.PortfolioTurnover, v)
	}
}

// addBenchmark records returns of the first broad-based index reported for
// the class; benchmarks have no since-inception column.
func (cr *classReturns) addBenchmark(fact ixbrl.Fact, c *ixbrl.Context, name string) {
	if fact.LocalName() != conceptAvgAnnualReturn || c.Start == nil || c.End == nil {
		return
	}
	if cr.benchmark == "" {
		cr.benchmark = name
	}
	if cr.benchmark != name {
		return
	}
	v := fact.Decimal(false)
	p := &cr.perf
	switch returnHorizon(*c.Start, *c.End) {
	case horizon1Yr:
		setFirst(&p.BenchmarkReturn1Yr, v)
	case horizon5Yr:
		setFirst(&p.BenchmarkReturn5Yr, v)
	case horizon10Yr:
		setFirst(&p.BenchmarkReturn10Yr, v)
	}
}
