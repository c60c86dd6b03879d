package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fact table names.
const (
	TableHolding            = "holding"
	TableDerivative         = "derivative"
	TablePerformance        = "performance"
	TableFeeExpense         = "fee_expense"
	TableFlowData           = "flow_data"
	TableFinancialHighlight = "financial_highlight"
	TableFund               = "fund"
)

// Fact is one typed row produced by an extraction adapter. The set of
// implementations is closed: every variant lives in this file.
//
// Optional attributes are pointers or decimal.NullDecimal; nil or Valid=false
// means the filing did not report the value.
type Fact interface {
	// FactTable names the table the row belongs to.
	FactTable() string
	// Provenance is the filing date of the source filing. Zero for enrichment rows.
	Provenance() time.Time
	fact()
}

// Holding is one non-derivative position of an NPORT-P portfolio.
// Identity: (SeriesID, ReportDate, FilingDate, LineNo).
type Holding struct {
	SeriesID       string
	ReportDate     time.Time
	FilingDate     time.Time
	LineNo         int
	Name           string
	Title          *string
	LEI            *string
	CUSIP          *string
	ISIN           *string
	Ticker         *string
	Balance        decimal.NullDecimal
	Units          *string
	Currency       *string
	ValueUSD       decimal.NullDecimal
	PctVal         decimal.NullDecimal
	AssetCategory  *string
	IssuerCategory *string
	Country        *string
	FairValueLevel *string
	IsRestricted   bool
}

// Derivative is one derivative position of an NPORT-P portfolio.
// Identity: (SeriesID, ReportDate, FilingDate, LineNo).
type Derivative struct {
	SeriesID        string
	ReportDate      time.Time
	FilingDate      time.Time
	LineNo          int
	DerivativeType  string
	Name            *string
	UnderlyingName  *string
	UnderlyingCUSIP *string
	Notional        decimal.NullDecimal
	ValueUSD        decimal.NullDecimal
	Counterparty    *string
	CounterpartyLEI *string
	Delta           decimal.NullDecimal
	ExpirationDate  *time.Time
}

// Performance is the annual return snapshot of a share class from an N-CSR.
// Identity: (ClassID, FiscalYearEnd, FilingDate).
type Performance struct {
	ClassID              string
	FiscalYearEnd        time.Time
	FilingDate           time.Time
	Return1Yr            decimal.NullDecimal
	Return5Yr            decimal.NullDecimal
	Return10Yr           decimal.NullDecimal
	ReturnSinceInception decimal.NullDecimal
	BenchmarkName        *string
	BenchmarkReturn1Yr   decimal.NullDecimal
	BenchmarkReturn5Yr   decimal.NullDecimal
	BenchmarkReturn10Yr  decimal.NullDecimal
	ExpenseRatio         decimal.NullDecimal
	PortfolioTurnover    decimal.NullDecimal
}

// FeeExpense is the prospectus fee table of a share class from a 485BPOS.
// Identity: (ClassID, EffectiveDate, FilingDate).
type FeeExpense struct {
	ClassID           string
	EffectiveDate     time.Time
	FilingDate        time.Time
	ManagementFee     decimal.NullDecimal
	Distribution12b1  decimal.NullDecimal
	OtherExpenses     decimal.NullDecimal
	TotalExpenseGross decimal.NullDecimal
	FeeWaiver         decimal.NullDecimal
	TotalExpenseNet   decimal.NullDecimal
	RedemptionFee     decimal.NullDecimal
}

// FlowData is the trust-level annual sales and redemptions from a 24F-2NT.
// NetSales is stored as filed; the form floors it at zero.
// Identity: (CIK, FiscalYearEnd, FilingDate).
type FlowData struct {
	CIK              string
	FiscalYearEnd    time.Time
	FilingDate       time.Time
	SalesValue       decimal.NullDecimal
	RedemptionsValue decimal.NullDecimal
	NetSales         decimal.NullDecimal
}

// FinancialHighlight is one fiscal year column of the Financial Highlights
// table of an N-CSR shareholder report.
// Identity: (ClassID, FiscalYearEnd, FilingDate).
type FinancialHighlight struct {
	ClassID                  string
	FiscalYearEnd            time.Time
	FilingDate               time.Time
	NAVBeginning             decimal.NullDecimal
	NetInvestmentIncome      decimal.NullDecimal
	NetGainLoss              decimal.NullDecimal
	TotalFromOperations      decimal.NullDecimal
	DistNetInvestmentIncome  decimal.NullDecimal
	DistCapitalGains         decimal.NullDecimal
	DistReturnOfCapital      decimal.NullDecimal
	TotalDistributions       decimal.NullDecimal
	NAVEnd                   decimal.NullDecimal
	TotalReturn              decimal.NullDecimal
	ExpenseRatio             decimal.NullDecimal
	NetInvestmentIncomeRatio decimal.NullDecimal
	PortfolioTurnover        decimal.NullDecimal
	NetAssetsEnd             decimal.NullDecimal
}

// FundProfile enriches the descriptive columns of existing fund rows. It
// applies to every class of SeriesID, or only to ClassID when set. Nil
// fields leave the stored value untouched.
type FundProfile struct {
	SeriesID     string
	ClassID      string
	SeriesName   *string
	ClassName    *string
	StrategyText *string
}

func (Holding) FactTable() string            { return TableHolding }
func (Derivative) FactTable() string         { return TableDerivative }
func (Performance) FactTable() string        { return TablePerformance }
func (FeeExpense) FactTable() string         { return TableFeeExpense }
func (FlowData) FactTable() string           { return TableFlowData }
func (FinancialHighlight) FactTable() string { return TableFinancialHighlight }
func (FundProfile) FactTable() string        { return TableFund }

func (h Holding) Provenance() time.Time            { return h.FilingDate }
func (d Derivative) Provenance() time.Time         { return d.FilingDate }
func (p Performance) Provenance() time.Time        { return p.FilingDate }
func (f FeeExpense) Provenance() time.Time         { return f.FilingDate }
func (f FlowData) Provenance() time.Time           { return f.FilingDate }
func (f FinancialHighlight) Provenance() time.Time { return f.FilingDate }
func (FundProfile) Provenance() time.Time          { return time.Time{} }

func (Holding) fact()            {}
func (Derivative) fact()         {}
func (Performance) fact()        {}
func (FeeExpense) fact()         {}
func (FlowData) fact()           {}
func (FinancialHighlight) fact() {}
func (FundProfile) fact()        {}

// Str returns a pointer to the trimmed s, or nil when s is empty or "N/A".
func Str(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return nil
	}
	return &s
}

// Date truncates t to a calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CountByTable tallies facts per destination table.
func CountByTable(facts []Fact) map[string]int {
	out := make(map[string]int)
	for _, f := range facts {
		out[f.FactTable()]++
	}
	return out
}
