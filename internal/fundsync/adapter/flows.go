package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/fetcher"
	"github.com/sells-group/fund-cli/internal/model"
)

// Flows extracts trust-level annual sales and redemptions from the latest
// 24F-2NT notice.
type Flows struct{}

func (a *Flows) Kind() model.AdapterKind { return model.AdapterFlows }
func (a *Flows) Form() string            { return "24F-2NT" }

// Applicable is true for any entity with funds: the notice is filed by the
// trust, not per series.
func (a *Flows) Applicable(funds []model.Fund) bool {
	return len(funds) > 0
}

// flowsAnnualFiling is one annualFilingInfo block of a 24F-2NT.
type flowsAnnualFiling struct {
	LastDayOfFiscalYear string `xml:"item4>lastDayOfFiscalYear"`
	Sales               string `xml:"item5>aggregateSalePriceOfSecuritiesSold"`
	Redemptions         string `xml:"item5>aggregatePriceOfSecuritiesRedeemedOrRepurchasedInFiscalYear"`
	NetSales            string `xml:"item5>netSales"`
}

func (a *Flows) Extract(ctx context.Context, src Source, cik string, _ []model.Fund) (*Extraction, error) {
	filings, err := src.Filings(ctx, a.Form(), 1)
	if err != nil {
		return nil, eris.Wrap(err, "flows: list filings")
	}
	if len(filings) == 0 {
		return nil, ErrNoFiling
	}
	f := filings[0]

	r, err := src.Document(ctx, f, f.RawPrimaryDocument())
	if err != nil {
		return nil, eris.Wrapf(err, "flows: fetch %s", f.AccessionNumber)
	}
	defer r.Close() //nolint:errcheck

	ch, errCh := fetcher.StreamXML[flowsAnnualFiling](ctx, r, "annualFilingInfo")
	var first *flowsAnnualFiling
	for info := range ch {
		if first == nil {
			first = &info
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "flows: parse %s", f.AccessionNumber)
	}
	if first == nil {
		return nil, eris.Errorf("flows: %s has no annualFilingInfo", f.AccessionNumber)
	}

	fye, err := time.Parse("01/02/2006", strings.TrimSpace(first.LastDayOfFiscalYear))
	if err != nil {
		return nil, eris.Wrapf(err, "flows: %s lastDayOfFiscalYear %q", f.AccessionNumber, first.LastDayOfFiscalYear)
	}

	row := model.FlowData{
		CIK:              cik,
		FiscalYearEnd:    fye,
		FilingDate:       f.FilingDate,
		SalesValue:       parseAmount(first.Sales),
		RedemptionsValue: parseAmount(first.Redemptions),
		NetSales:         parseAmount(first.NetSales),
	}
	zap.L().Debug("flows: parsed notice",
		zap.String("cik", cik),
		zap.String("accession", f.AccessionNumber),
		zap.Time("fiscal_year_end", fye),
	)

	return &Extraction{FilingDate: f.FilingDate, Facts: []model.Fact{row}}, nil
}
