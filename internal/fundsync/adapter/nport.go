package adapter

import (
	"context"
	"encoding/xml"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fetcher"
	"github.com/sells-group/fund-cli/internal/model"
)

// NPORT extracts portfolio holdings and derivative positions from the
// latest NPORT-P filings of each series.
type NPORT struct{}

func (a *NPORT) Kind() model.AdapterKind { return model.AdapterNPORT }
func (a *NPORT) Form() string            { return "NPORT-P" }

func (a *NPORT) Applicable(funds []model.Fund) bool {
	return len(model.SeriesIDs(funds)) > 0
}

// nportDocument is the part of an NPORT-P submission read before the
// positions are streamed.
type nportDocument struct {
	XMLName xml.Name     `xml:"edgarSubmission"`
	GenInfo nportGenInfo `xml:"formData>genInfo"`
}

type nportGenInfo struct {
	SeriesName string `xml:"seriesName"`
	SeriesID   string `xml:"seriesId"`
	RepPdEnd   string `xml:"repPdEnd"`
	RepPdDate  string `xml:"repPdDate"`
}

// nportValue is an element carrying its value in a "value" attribute.
type nportValue struct {
	Value string `xml:"value,attr"`
}

type nportSecurity struct {
	Name     string     `xml:"name"`
	LEI      string     `xml:"lei"`
	Title    string     `xml:"title"`
	CUSIP    string     `xml:"cusip"`
	ISIN     nportValue `xml:"identifiers>isin"`
	Ticker   nportValue `xml:"identifiers>ticker"`
	Balance  string     `xml:"balance"`
	Units    string     `xml:"units"`
	CurCd    string     `xml:"curCd"`
	Currency struct {
		CurCd string `xml:"curCd,attr"`
	} `xml:"currencyConditional"`
	ValUSD    string `xml:"valUSD"`
	PctVal    string `xml:"pctVal"`
	AssetCat  string `xml:"assetCat"`
	AssetCond struct {
		AssetCat string `xml:"assetCat,attr"`
	} `xml:"assetConditional"`
	IssuerCat  string `xml:"issuerCat"`
	IssuerCond struct {
		IssuerCat string `xml:"issuerCat,attr"`
	} `xml:"issuerConditional"`
	InvCountry      string          `xml:"invCountry"`
	IsRestrictedSec string          `xml:"isRestrictedSec"`
	FairValLevel    string          `xml:"fairValLevel"`
	DerivativeInfo  *nportDerivInfo `xml:"derivativeInfo"`
}

type nportDerivInfo struct {
	Forward *nportDerivLeg `xml:"fwdDeriv"`
	Future  *nportDerivLeg `xml:"futrDeriv"`
	Option  *nportDerivLeg `xml:"optionSwaptionWarrantDeriv"`
	Swap    *nportDerivLeg `xml:"swapDeriv"`
	Other   *nportDerivLeg `xml:"othDeriv"`
}

// nportDerivLeg covers the fields of every derivative category; each
// category fills only its own subset.
type nportDerivLeg struct {
	DerivCat         string     `xml:"derivCat,attr"`
	CounterpartyName string     `xml:"counterparties>counterpartyName"`
	CounterpartyLEI  string     `xml:"counterparties>counterpartyLei"`
	RefIssuerName    string     `xml:"descRefInstrmnt>otherRefInst>issuerName"`
	RefIssueTitle    string     `xml:"descRefInstrmnt>otherRefInst>issueTitle"`
	RefCUSIP         nportValue `xml:"descRefInstrmnt>otherRefInst>identifiers>cusip"`
	IndexName        string     `xml:"descRefInstrmnt>indexBasketInfo>indexName"`
	AmtCurSold       string     `xml:"amtCurSold"`
	AmtCurPur        string     `xml:"amtCurPur"`
	SettlementDt     string     `xml:"settlementDt"`
	ExpDate          string     `xml:"expDate"`
	ExpDt            string     `xml:"expDt"`
	TerminationDt    string     `xml:"terminationDt"`
	NotionalAmt      string     `xml:"notionalAmt"`
	NotionalAmts     []string   `xml:"notionalAmts>notionalAmt"`
	ShareNo          string     `xml:"shareNo"`
	Delta            string     `xml:"delta"`
}

// nportReport is one parsed filing: the series it reports and its period.
type nportReport struct {
	filing     edgar.Filing
	seriesID   string
	seriesName string
	reportDate time.Time
}

func (a *NPORT) Extract(ctx context.Context, src Source, cik string, funds []model.Fund) (*Extraction, error) {
	log := zap.L().With(zap.String("adapter", string(a.Kind())), zap.String("cik", cik))

	filings, err := src.Filings(ctx, a.Form(), 0)
	if err != nil {
		return nil, eris.Wrap(err, "nport: list filings")
	}
	if len(filings) == 0 {
		return nil, ErrNoFiling
	}

	// Filings arrive newest first; the latest filing date forms one group
	// with one filing per series.
	latest := filings[0].FilingDate
	known := make(map[string]bool)
	for _, id := range model.SeriesIDs(funds) {
		known[id] = true
	}

	var reports []nportReport
	seen := make(map[string]bool)
	for _, f := range filings {
		if !f.FilingDate.Equal(latest) {
			break
		}
		rep, err := a.readGenInfo(ctx, src, f)
		if err != nil {
			return nil, err
		}
		if rep == nil {
			log.Warn("nport: filing has no series id", zap.String("accession", f.AccessionNumber))
			continue
		}
		if !known[rep.seriesID] || seen[rep.seriesID] {
			continue
		}
		seen[rep.seriesID] = true
		reports = append(reports, *rep)
	}
	if len(reports) == 0 {
		log.Info("nport: latest filings cover no known series", zap.Time("filing_date", latest))
		return nil, ErrNoFiling
	}

	var facts []model.Fact
	for _, rep := range reports {
		rows, err := a.readPositions(ctx, src, rep)
		if err != nil {
			return nil, err
		}
		facts = append(facts, rows...)
		if rep.seriesName != "" {
			facts = append(facts, model.FundProfile{SeriesID: rep.seriesID, SeriesName: model.Str(rep.seriesName)})
		}
		log.Debug("nport: series parsed",
			zap.String("series_id", rep.seriesID),
			zap.Time("report_date", rep.reportDate),
			zap.Int("rows", len(rows)),
		)
	}

	return &Extraction{FilingDate: latest, Facts: facts}, nil
}

func (a *NPORT) readGenInfo(ctx context.Context, src Source, f edgar.Filing) (*nportReport, error) {
	r, err := src.Document(ctx, f, f.RawPrimaryDocument())
	if err != nil {
		return nil, eris.Wrapf(err, "nport: fetch %s", f.AccessionNumber)
	}
	defer r.Close() //nolint:errcheck

	doc, err := fetcher.DecodeXML[nportDocument](r)
	if err != nil {
		return nil, eris.Wrapf(err, "nport: parse %s", f.AccessionNumber)
	}
	gi := doc.GenInfo
	seriesID := strings.ToUpper(strings.TrimSpace(gi.SeriesID))
	if seriesID == "" {
		return nil, nil
	}

	report := parseISODate(gi.RepPdDate)
	if report == nil {
		report = f.ReportDate
	}
	if report == nil {
		return nil, eris.Errorf("nport: %s has no report date", f.AccessionNumber)
	}
	return &nportReport{
		filing:     f,
		seriesID:   seriesID,
		seriesName: strings.TrimSpace(gi.SeriesName),
		reportDate: *report,
	}, nil
}

func (a *NPORT) readPositions(ctx context.Context, src Source, rep nportReport) ([]model.Fact, error) {
	r, err := src.Document(ctx, rep.filing, rep.filing.RawPrimaryDocument())
	if err != nil {
		return nil, eris.Wrapf(err, "nport: fetch %s", rep.filing.AccessionNumber)
	}
	defer r.Close() //nolint:errcheck

	secCh, errCh := fetcher.StreamXML[nportSecurity](ctx, r, "invstOrSec")

	var facts []model.Fact
	lineNo := 0
	for sec := range secCh {
		lineNo++
		if sec.DerivativeInfo != nil {
			if d, ok := mapDerivative(sec, rep, lineNo); ok {
				facts = append(facts, d)
			}
			continue
		}
		facts = append(facts, mapHolding(sec, rep, lineNo))
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "nport: stream positions of %s", rep.filing.AccessionNumber)
	}
	return facts, nil
}

func mapHolding(sec nportSecurity, rep nportReport, lineNo int) model.Holding {
	name := ""
	if s := model.Str(sec.Name); s != nil {
		name = *s
	}
	return model.Holding{
		SeriesID:       rep.seriesID,
		ReportDate:     rep.reportDate,
		FilingDate:     rep.filing.FilingDate,
		LineNo:         lineNo,
		Name:           name,
		Title:          model.Str(sec.Title),
		LEI:            model.Str(sec.LEI),
		CUSIP:          model.Str(sec.CUSIP),
		ISIN:           model.Str(sec.ISIN.Value),
		Ticker:         model.Str(sec.Ticker.Value),
		Balance:        parseDecimal(sec.Balance),
		Units:          model.Str(sec.Units),
		Currency:       model.Str(firstNonEmpty(sec.CurCd, sec.Currency.CurCd)),
		ValueUSD:       parseDecimal(sec.ValUSD),
		PctVal:         parseDecimal(sec.PctVal),
		AssetCategory:  model.Str(firstNonEmpty(sec.AssetCat, sec.AssetCond.AssetCat)),
		IssuerCategory: model.Str(firstNonEmpty(sec.IssuerCat, sec.IssuerCond.IssuerCat)),
		Country:        model.Str(sec.InvCountry),
		FairValueLevel: model.Str(sec.FairValLevel),
		IsRestricted:   isYes(sec.IsRestrictedSec),
	}
}

func mapDerivative(sec nportSecurity, rep nportReport, lineNo int) (model.Derivative, bool) {
	info := sec.DerivativeInfo
	d := model.Derivative{
		SeriesID:   rep.seriesID,
		ReportDate: rep.reportDate,
		FilingDate: rep.filing.FilingDate,
		LineNo:     lineNo,
		Name:       model.Str(sec.Name),
		ValueUSD:   parseDecimal(sec.ValUSD),
	}

	var leg *nportDerivLeg
	var expiry string
	switch {
	case info.Forward != nil:
		leg = info.Forward
		d.Notional = parseDecimal(leg.AmtCurSold)
		if !d.Notional.Valid {
			d.Notional = parseDecimal(leg.AmtCurPur)
		}
		expiry = leg.SettlementDt
	case info.Future != nil:
		leg = info.Future
		d.Notional = parseDecimal(leg.NotionalAmt)
		expiry = leg.ExpDate
	case info.Option != nil:
		leg = info.Option
		d.Notional = parseDecimal(leg.ShareNo)
		d.Delta = parseDecimal(leg.Delta)
		expiry = leg.ExpDt
	case info.Swap != nil:
		leg = info.Swap
		d.Notional = parseDecimal(leg.NotionalAmt)
		expiry = leg.TerminationDt
	case info.Other != nil:
		leg = info.Other
		if len(leg.NotionalAmts) > 0 {
			d.Notional = parseDecimal(leg.NotionalAmts[0])
		}
		d.Delta = parseDecimal(leg.Delta)
		expiry = leg.TerminationDt
	default:
		return d, false
	}

	d.DerivativeType = strings.TrimSpace(leg.DerivCat)
	if d.DerivativeType == "" {
		return d, false
	}
	d.Counterparty = model.Str(leg.CounterpartyName)
	d.CounterpartyLEI = model.Str(leg.CounterpartyLEI)
	d.UnderlyingName = model.Str(firstNonEmpty(leg.RefIssuerName, leg.IndexName, leg.RefIssueTitle))
	d.UnderlyingCUSIP = model.Str(leg.RefCUSIP.Value)
	d.ExpirationDate = parseISODate(expiry)
	return d, true
}
