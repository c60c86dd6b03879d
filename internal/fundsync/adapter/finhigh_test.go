package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/model"
)

const equityHighlights = `<table>
<tr><td></td><td>Year Ended December 31,</td></tr>
<tr><td></td><td>2023</td><td>2022</td></tr>
<tr><td>Net asset value, beginning of year</td><td>$</td><td>25.30</td><td>$</td><td>28.10</td></tr>
<tr><td>Income from investment operations:</td></tr>
<tr><td>Net investment income (loss)(a)</td><td>0.45</td><td>0.40</td></tr>
<tr><td>Net realized and unrealized gain (loss)</td><td>5.10</td><td>(2.50</td><td>)</td></tr>
<tr><td>Total from investment operations</td><td>5.55</td><td>(2.10)</td></tr>
<tr><td>Less distributions from:</td></tr>
<tr><td>Net investment income</td><td>(0.44)</td><td>(0.40)</td></tr>
<tr><td>Net realized gains</td><td>—</td><td>(0.30)</td></tr>
<tr><td>Total distributions</td><td>(0.44)</td><td>(0.70)</td></tr>
<tr><td>Net asset value, end of year</td><td>$</td><td>30.41</td><td>$</td><td>25.30</td></tr>
<tr><td>Total return</td><td>22.05</td><td>%</td><td>(7.52</td><td>)%</td></tr>
<tr><td>Ratios/Supplemental Data:</td></tr>
<tr><td>Net assets, end of year (000's)</td><td>$</td><td>1,234,567</td><td>$</td><td>987,654</td></tr>
<tr><td>Ratio of expenses to average net assets</td><td>0.09%</td><td>0.09%</td></tr>
<tr><td>Ratio of net investment income to average net assets</td><td>1.60%</td><td>1.50%</td></tr>
<tr><td>Portfolio turnover rate</td><td>3%</td><td>4%</td></tr>
</table>`

const bondHighlights = `<table>
<tr><td>Six Months Ended June 30, 2023 (Unaudited)</td><td>Year Ended December 31, 2022</td></tr>
<tr><td>Net Asset Value, Beginning of Period</td><td>10.00</td><td>10.50</td></tr>
<tr><td>Net investment income</td><td>0.20</td><td>0.35</td></tr>
<tr><td>Net Asset Value, End of Period</td><td>10.20</td><td>10.00</td></tr>
</table>`

func finhighDoc() string {
	return ixDoc([]string{ixContext("c-dei", "2023-01-01", "2023-12-31")},
		`<p>Annual report for the period ended <ix:nonNumeric name="dei:DocumentPeriodEndDate" contextRef="c-dei">December 31, 2023</ix:nonNumeric></p>
<table><tr><td>Top holdings</td><td>Apple Inc.</td><td>7.2%</td></tr></table>
<p>Example Equity ETF</p><p>Financial Highlights</p><p>Selected data for a share outstanding throughout each period (EXA)</p>`+
			equityHighlights+
			`<p>Example Bond Fund</p><p>Institutional Shares</p>`+
			bondHighlights)
}

var finhighFunds = []model.Fund{
	{CIK: "0000000001", SeriesID: "S000000001", ClassID: "C000000001", Ticker: "EXA"},
	{CIK: "0000000001", SeriesID: "S000000002", ClassID: "C000000002", Ticker: "EXBI"},
	{CIK: "0000000001", SeriesID: "S000000002", ClassID: "C000000003", Ticker: "EXBR"},
}

var finhighHeader = &edgar.Header{Series: []edgar.HeaderSeries{
	{ID: "S000000001", Name: "Example Equity ETF", Classes: []edgar.HeaderClass{{ID: "C000000001", Name: "Example Equity ETF", Ticker: "EXA"}}},
	{ID: "S000000002", Name: "Example Bond Fund", Classes: []edgar.HeaderClass{
		{ID: "C000000002", Name: "Institutional Shares", Ticker: "EXBI"},
		{ID: "C000000003", Name: "Investor Shares", Ticker: "EXBR"},
	}},
}}

func finhighFiling(t *testing.T, acc, filed string) edgar.Filing {
	return edgar.Filing{
		CIK:             "0000000001",
		AccessionNumber: acc,
		Form:            "N-CSR",
		FilingDate:      day(t, filed),
		PrimaryDocument: "ncsr.htm",
		IsInlineXBRL:    true,
	}
}

func highlightsByKey(facts []model.Fact) map[string]model.FinancialHighlight {
	out := make(map[string]model.FinancialHighlight)
	for _, f := range facts {
		fh := f.(model.FinancialHighlight)
		out[fh.ClassID+"|"+fh.FiscalYearEnd.Format("2006-01-02")] = fh
	}
	return out
}

func TestFinHigh_Extract(t *testing.T) {
	src := newFakeSource()
	f := finhighFiling(t, "acc-1", "2024-03-05")
	src.add(f, finhighDoc())
	src.headers[f.AccessionNumber] = finhighHeader

	ext, err := (&FinHigh{maxFilings: 10}).Extract(context.Background(), src, "0000000001", finhighFunds)
	require.NoError(t, err)
	assert.Equal(t, day(t, "2024-03-05"), ext.FilingDate)
	require.Len(t, ext.Facts, 4)

	byKey := highlightsByKey(ext.Facts)
	cur, ok := byKey["C000000001|2023-12-31"]
	require.True(t, ok)
	assert.Equal(t, day(t, "2024-03-05"), cur.FilingDate)
	assertDecimal(t, "25.30", cur.NAVBeginning)
	assertDecimal(t, "0.45", cur.NetInvestmentIncome)
	assertDecimal(t, "5.10", cur.NetGainLoss)
	assertDecimal(t, "5.55", cur.TotalFromOperations)
	assertDecimal(t, "-0.44", cur.DistNetInvestmentIncome)
	assertDecimal(t, "", cur.DistCapitalGains)
	assertDecimal(t, "-0.44", cur.TotalDistributions)
	assertDecimal(t, "30.41", cur.NAVEnd)
	assertDecimal(t, "0.2205", cur.TotalReturn)
	assertDecimal(t, "1234567", cur.NetAssetsEnd)
	assertDecimal(t, "0.0009", cur.ExpenseRatio)
	assertDecimal(t, "0.016", cur.NetInvestmentIncomeRatio)
	assertDecimal(t, "0.03", cur.PortfolioTurnover)

	prior := byKey["C000000001|2022-12-31"]
	assertDecimal(t, "-2.50", prior.NetGainLoss)
	assertDecimal(t, "-0.30", prior.DistCapitalGains)
	assertDecimal(t, "-0.0752", prior.TotalReturn)

	semi, ok := byKey["C000000002|2023-06-30"]
	require.True(t, ok, "class resolved from series and class name in the header")
	assertDecimal(t, "10.00", semi.NAVBeginning)
	assertDecimal(t, "10.20", semi.NAVEnd)
	_, ok = byKey["C000000002|2022-12-31"]
	assert.True(t, ok)
}

func TestFinHigh_SingleClassWithoutHeader(t *testing.T) {
	src := newFakeSource()
	src.add(finhighFiling(t, "acc-1", "2024-03-05"), ixDoc(nil,
		`<p>period ended <ix:nonNumeric name="dei:DocumentPeriodEndDate" contextRef="c">12/31/2023</ix:nonNumeric></p>`+equityHighlights))

	funds := []model.Fund{{CIK: "0000000001", SeriesID: "S000000001", ClassID: "C000000001"}}
	ext, err := (&FinHigh{maxFilings: 10}).Extract(context.Background(), src, "0000000001", funds)
	require.NoError(t, err)
	assert.Len(t, ext.Facts, 2)
}

func TestFinHigh_UnresolvedClassSkipped(t *testing.T) {
	src := newFakeSource()
	src.add(finhighFiling(t, "acc-1", "2024-03-05"), ixDoc(nil,
		`<p>period ended <ix:nonNumeric name="dei:DocumentPeriodEndDate" contextRef="c">December 31, 2023</ix:nonNumeric></p>`+equityHighlights))

	ext, err := (&FinHigh{maxFilings: 10}).Extract(context.Background(), src, "0000000001", finhighFunds[1:])
	require.NoError(t, err)
	assert.Empty(t, ext.Facts)
}

func TestFinHigh_NoFilings(t *testing.T) {
	_, err := (&FinHigh{maxFilings: 10}).Extract(context.Background(), newFakeSource(), "0000000001", finhighFunds)
	assert.ErrorIs(t, err, ErrNoFiling)
}

func TestClassifyLabel(t *testing.T) {
	tests := []struct {
		label string
		sec   section
		want  highlightField
	}{
		{"Net asset value, beginning of year", sectionOperations, fieldNAVBeginning},
		{"NAV, end of period", sectionOperations, fieldNAVEnd},
		{"Net assets, end of period (thousands)", sectionRatios, fieldNetAssetsEnd},
		{"Net investment income", sectionOperations, fieldNetInvestmentIncome},
		{"Net investment income", sectionDistributions, fieldDistNetInvestmentIncome},
		{"Net investment income", sectionRatios, fieldNetInvestmentIncomeRatio},
		{"Dividends from net investment income", sectionOperations, fieldDistNetInvestmentIncome},
		{"Distributions from net realized capital gains", sectionOperations, fieldDistCapitalGains},
		{"Return of capital", sectionDistributions, fieldDistReturnOfCapital},
		{"Net realized and unrealized gain (loss) on investments", sectionOperations, fieldNetGainLoss},
		{"Total from investment operations", sectionOperations, fieldTotalFromOperations},
		{"Total distributions", sectionDistributions, fieldTotalDistributions},
		{"Total return (b)", sectionOperations, fieldTotalReturn},
		{"Expenses", sectionRatios, fieldExpenseRatio},
		{"Ratio of expenses to average net assets", sectionOperations, fieldExpenseRatio},
		{"Portfolio turnover rate (c)", sectionRatios, fieldPortfolioTurnover},
		{"Shares outstanding", sectionOperations, fieldNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyLabel(tt.label, tt.sec), tt.label)
	}
}

func TestMergeCells(t *testing.T) {
	assert.Equal(t, []string{"Label", "$25.30", "(2.50)", "7.5%"},
		mergeCells([]string{"Label", "$", "25.30", "(2.50", ")", "7.5", "%"}))
	assert.Equal(t, []string{"$(1.00)"}, mergeCells([]string{"$(", "1.00", ")"}))
}

func TestHeaderColumns(t *testing.T) {
	pe := day(t, "2023-10-31")
	got := headerColumns([]string{"2023", "2022", "Period Ended October 31, 2021(a)"}, &pe)
	require.Len(t, got, 3)
	assert.Equal(t, day(t, "2023-10-31"), got[0])
	assert.Equal(t, day(t, "2022-10-31"), got[1])
	assert.Equal(t, day(t, "2021-10-31"), got[2])

	assert.Empty(t, headerColumns([]string{"2023"}, nil))
	assert.Empty(t, headerColumns([]string{"Per share data"}, &pe))
}
