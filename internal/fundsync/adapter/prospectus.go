package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fundsync/ixbrl"
	"github.com/sells-group/fund-cli/internal/model"
)

// Prospectus extracts the risk/return fee table of each share class and the
// strategy narrative of each series from 485BPOS filings.
type Prospectus struct {
	maxFilings int
}

func (a *Prospectus) Kind() model.AdapterKind { return model.AdapterProspectus }
func (a *Prospectus) Form() string            { return "485BPOS" }

func (a *Prospectus) Applicable(funds []model.Fund) bool { return hasClasses(funds) }

// feeField assigns one fee table concept. Waivers and redemption fees are
// filed with either sign and are stored as positive amounts.
type feeField struct {
	positive bool
	set      func(*model.FeeExpense, decimal.NullDecimal)
}

var feeFields = map[string]feeField{
	"managementfeesoverassets": {set: func(e *model.FeeExpense, v decimal.NullDecimal) { setFirst(&e.ManagementFee, v) }},
	"distributionandservice12b1feesoverassets": {set: func(e *model.FeeExpense, v decimal.NullDecimal) {
		setFirst(&e.Distribution12b1, v)
	}},
	"otherexpensesoverassets": {set: func(e *model.FeeExpense, v decimal.NullDecimal) { setFirst(&e.OtherExpenses, v) }},
	"expensesoverassets":      {set: func(e *model.FeeExpense, v decimal.NullDecimal) { setFirst(&e.TotalExpenseGross, v) }},
	"feewaiverorreimbursementoverassets": {positive: true, set: func(e *model.FeeExpense, v decimal.NullDecimal) {
		setFirst(&e.FeeWaiver, v)
	}},
	"netexpensesoverassets": {set: func(e *model.FeeExpense, v decimal.NullDecimal) { setFirst(&e.TotalExpenseNet, v) }},
	"redemptionfeeoverredemption": {positive: true, set: func(e *model.FeeExpense, v decimal.NullDecimal) {
		setFirst(&e.RedemptionFee, v)
	}},
}

const conceptStrategy = "StrategyNarrativeTextBlock"

func (a *Prospectus) Extract(ctx context.Context, src Source, cik string, funds []model.Fund) (*Extraction, error) {
	log := zap.L().With(zap.String("adapter", string(a.Kind())), zap.String("cik", cik))

	filings, err := src.Filings(ctx, a.Form(), a.maxFilings)
	if err != nil {
		return nil, eris.Wrap(err, "prospectus: list filings")
	}
	if len(filings) == 0 {
		return nil, ErrNoFiling
	}

	classes := model.ClassIndex(funds)
	satisfied := make(map[string]bool)
	seen := make(map[string]bool)
	profiled := make(map[string]bool)
	var facts []model.Fact
	var attempted, failed int
	var lastErr error

	for i, f := range filings {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "prospectus: cancelled")
		}
		if len(satisfied) == len(classes) {
			log.Debug("prospectus: all classes satisfied", zap.Int("filings_scanned", i))
			break
		}
		if !f.IsInlineXBRL {
			continue
		}

		attempted++
		fees, profiles, err := a.parseFiling(ctx, src, f, funds)
		if err != nil {
			failed++
			lastErr = err
			log.Warn("prospectus: filing failed", zap.String("accession", f.AccessionNumber), zap.Error(err))
			continue
		}
		for _, fe := range fees {
			key := fe.ClassID + "|" + fe.EffectiveDate.Format(time.DateOnly)
			if seen[key] {
				continue
			}
			seen[key] = true
			satisfied[fe.ClassID] = true
			facts = append(facts, fe)
		}
		for _, p := range profiles {
			if profiled[p.SeriesID] {
				continue
			}
			profiled[p.SeriesID] = true
			facts = append(facts, p)
		}
	}

	if attempted > 0 && failed == attempted {
		return nil, eris.Wrapf(lastErr, "prospectus: all %d filings failed", attempted)
	}
	return &Extraction{FilingDate: filings[0].FilingDate, Facts: facts}, nil
}

func (a *Prospectus) parseFiling(ctx context.Context, src Source, f edgar.Filing, funds []model.Fund) ([]model.FeeExpense, []model.FundProfile, error) {
	r, err := src.Document(ctx, f, f.PrimaryDocument)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "prospectus: fetch %s", f.AccessionNumber)
	}
	defer r.Close() //nolint:errcheck

	doc, err := ixbrl.Parse(r)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "prospectus: parse %s", f.AccessionNumber)
	}

	effective := f.FilingDate
	if fact, ok := doc.First("DocumentPeriodEndDate", ""); ok {
		if d, ok := ixbrl.ParseDate(fact.String()); ok {
			effective = d
		}
	}

	classes := model.ClassIndex(funds)
	byClass := make(map[string]*model.FeeExpense)
	var order []string
	var profiles []model.FundProfile
	profiled := make(map[string]bool)

	for _, fact := range doc.Facts {
		name := strings.ToLower(fact.LocalName())
		c := doc.Context(fact)
		if c == nil {
			continue
		}

		if strings.EqualFold(name, conceptStrategy) {
			seriesID := contextSeries(c)
			if seriesID == "" || profiled[seriesID] || !hasSeries(funds, seriesID) {
				continue
			}
			if text := fact.String(); text != "" {
				profiled[seriesID] = true
				profiles = append(profiles, model.FundProfile{SeriesID: seriesID, StrategyText: &text})
			}
			continue
		}

		field, ok := feeFields[name]
		if !ok {
			continue
		}
		classID := contextClass(c, funds)
		if _, known := classes[classID]; !known {
			continue
		}
		fe := byClass[classID]
		if fe == nil {
			fe = &model.FeeExpense{ClassID: classID, EffectiveDate: effective, FilingDate: f.FilingDate}
			byClass[classID] = fe
			order = append(order, classID)
		}
		field.set(fe, fact.Decimal(field.positive))
	}

	fees := make([]model.FeeExpense, 0, len(order))
	for _, id := range order {
		fees = append(fees, *byClass[id])
	}
	return fees, profiles, nil
}

// contextSeries returns the series ID of a LegalEntityAxis member.
func contextSeries(c *ixbrl.Context) string {
	if m, ok := c.Member("LegalEntityAxis"); ok {
		return ixbrl.MemberID(m)
	}
	return ""
}

// contextClass returns the share class of a context. Single-class series
// often omit the class axis, in which case the series' only known class is
// used.
func contextClass(c *ixbrl.Context, funds []model.Fund) string {
	if m, ok := c.Member("ProspectusShareClassAxis"); ok {
		return ixbrl.MemberID(m)
	}
	seriesID := contextSeries(c)
	if seriesID == "" {
		return ""
	}
	var classID string
	for _, f := range funds {
		if f.SeriesID != seriesID || f.ClassID == "" {
			continue
		}
		if classID != "" {
			return ""
		}
		classID = f.ClassID
	}
	return classID
}

func hasSeries(funds []model.Fund, seriesID string) bool {
	for _, f := range funds {
		if f.SeriesID == seriesID {
			return true
		}
	}
	return false
}
