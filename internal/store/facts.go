package store

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/fund-cli/internal/db"
	"github.com/sells-group/fund-cli/internal/model"
)

// factTableOrder fixes the write order of fact tables within a transaction.
var factTableOrder = []string{
	model.TableHolding,
	model.TableDerivative,
	model.TablePerformance,
	model.TableFeeExpense,
	model.TableFlowData,
	model.TableFinancialHighlight,
}

// factTables describes each fact table. Table names carry no schema; the
// backends qualify them.
var factTables = map[string]db.UpsertConfig{
	model.TableHolding: {
		Table: model.TableHolding,
		Columns: []string{
			"series_id", "report_date", "filing_date", "line_no",
			"name", "title", "lei", "cusip", "isin", "ticker",
			"balance", "units", "currency", "value_usd", "pct_val",
			"asset_category", "issuer_category", "country", "fair_value_level", "is_restricted",
		},
		ConflictKeys: []string{"series_id", "report_date", "filing_date", "line_no"},
	},
	model.TableDerivative: {
		Table: model.TableDerivative,
		Columns: []string{
			"series_id", "report_date", "filing_date", "line_no",
			"derivative_type", "name", "underlying_name", "underlying_cusip",
			"notional", "value_usd", "counterparty", "counterparty_lei", "delta", "expiration_date",
		},
		ConflictKeys: []string{"series_id", "report_date", "filing_date", "line_no"},
	},
	model.TablePerformance: {
		Table: model.TablePerformance,
		Columns: []string{
			"class_id", "fiscal_year_end", "filing_date",
			"return_1yr", "return_5yr", "return_10yr", "return_since_inception",
			"benchmark_name", "benchmark_return_1yr", "benchmark_return_5yr", "benchmark_return_10yr",
			"expense_ratio", "portfolio_turnover",
		},
		ConflictKeys: []string{"class_id", "fiscal_year_end", "filing_date"},
	},
	model.TableFeeExpense: {
		Table: model.TableFeeExpense,
		Columns: []string{
			"class_id", "effective_date", "filing_date",
			"management_fee", "distribution_12b1", "other_expenses",
			"total_expense_gross", "fee_waiver", "total_expense_net", "redemption_fee",
		},
		ConflictKeys: []string{"class_id", "effective_date", "filing_date"},
	},
	model.TableFlowData: {
		Table: model.TableFlowData,
		Columns: []string{
			"cik", "fiscal_year_end", "filing_date",
			"sales_value", "redemptions_value", "net_sales",
		},
		ConflictKeys: []string{"cik", "fiscal_year_end", "filing_date"},
	},
	model.TableFinancialHighlight: {
		Table: model.TableFinancialHighlight,
		Columns: []string{
			"class_id", "fiscal_year_end", "filing_date",
			"nav_beginning", "net_investment_income", "net_gain_loss", "total_from_operations",
			"dist_net_investment_income", "dist_capital_gains", "dist_return_of_capital", "total_distributions",
			"nav_end", "total_return", "expense_ratio", "net_investment_income_ratio",
			"portfolio_turnover", "net_assets_end",
		},
		ConflictKeys: []string{"class_id", "fiscal_year_end", "filing_date"},
	},
}

// encoder converts typed values into driver arguments. Postgres takes
// native types; SQLite stores decimals and dates as text.
type encoder interface {
	dec(decimal.NullDecimal) any
	date(time.Time) any
	optDate(*time.Time) any
	boolean(bool) any
}

// groupedFacts splits a batch into per-table rows and profile updates.
type groupedFacts struct {
	rows     map[string][][]any
	profiles []model.FundProfile
}

func groupFacts(facts []model.Fact, enc encoder) (*groupedFacts, error) {
	g := &groupedFacts{rows: make(map[string][][]any)}
	for _, f := range facts {
		if p, ok := f.(model.FundProfile); ok {
			g.profiles = append(g.profiles, p)
			continue
		}
		row, err := factRow(f, enc)
		if err != nil {
			return nil, err
		}
		g.rows[f.FactTable()] = append(g.rows[f.FactTable()], row)
	}
	return g, nil
}

// factRow renders f in the column order of its table config.
func factRow(f model.Fact, enc encoder) ([]any, error) {
	switch v := f.(type) {
	case model.Holding:
		return []any{
			v.SeriesID, enc.date(v.ReportDate), enc.date(v.FilingDate), v.LineNo,
			v.Name, v.Title, v.LEI, v.CUSIP, v.ISIN, v.Ticker,
			enc.dec(v.Balance), v.Units, v.Currency, enc.dec(v.ValueUSD), enc.dec(v.PctVal),
			v.AssetCategory, v.IssuerCategory, v.Country, v.FairValueLevel, enc.boolean(v.IsRestricted),
		}, nil
	case model.Derivative:
		return []any{
			v.SeriesID, enc.date(v.ReportDate), enc.date(v.FilingDate), v.LineNo,
			v.DerivativeType, v.Name, v.UnderlyingName, v.UnderlyingCUSIP,
			enc.dec(v.Notional), enc.dec(v.ValueUSD), v.Counterparty, v.CounterpartyLEI,
			enc.dec(v.Delta), enc.optDate(v.ExpirationDate),
		}, nil
	case model.Performance:
		return []any{
			v.ClassID, enc.date(v.FiscalYearEnd), enc.date(v.FilingDate),
			enc.dec(v.Return1Yr), enc.dec(v.Return5Yr), enc.dec(v.Return10Yr), enc.dec(v.ReturnSinceInception),
			v.BenchmarkName, enc.dec(v.BenchmarkReturn1Yr), enc.dec(v.BenchmarkReturn5Yr), enc.dec(v.BenchmarkReturn10Yr),
			enc.dec(v.ExpenseRatio), enc.dec(v.PortfolioTurnover),
		}, nil
	case model.FeeExpense:
		return []any{
			v.ClassID, enc.date(v.EffectiveDate), enc.date(v.FilingDate),
			enc.dec(v.ManagementFee), enc.dec(v.Distribution12b1), enc.dec(v.OtherExpenses),
			enc.dec(v.TotalExpenseGross), enc.dec(v.FeeWaiver), enc.dec(v.TotalExpenseNet), enc.dec(v.RedemptionFee),
		}, nil
	case model.FlowData:
		return []any{
			v.CIK, enc.date(v.FiscalYearEnd), enc.date(v.FilingDate),
			enc.dec(v.SalesValue), enc.dec(v.RedemptionsValue), enc.dec(v.NetSales),
		}, nil
	case model.FinancialHighlight:
		return []any{
			v.ClassID, enc.date(v.FiscalYearEnd), enc.date(v.FilingDate),
			enc.dec(v.NAVBeginning), enc.dec(v.NetInvestmentIncome), enc.dec(v.NetGainLoss), enc.dec(v.TotalFromOperations),
			enc.dec(v.DistNetInvestmentIncome), enc.dec(v.DistCapitalGains), enc.dec(v.DistReturnOfCapital), enc.dec(v.TotalDistributions),
			enc.dec(v.NAVEnd), enc.dec(v.TotalReturn), enc.dec(v.ExpenseRatio), enc.dec(v.NetInvestmentIncomeRatio),
			enc.dec(v.PortfolioTurnover), enc.dec(v.NetAssetsEnd),
		}, nil
	}
	return nil, eris.Errorf("store: unsupported fact %T", f)
}

// fundConfig upserts registry rows without touching enrichment columns.
var fundConfig = db.UpsertConfig{
	Table:        model.TableFund,
	Columns:      []string{"class_id", "cik", "series_id", "ticker", "is_active", "updated_at"},
	ConflictKeys: []string{"class_id"},
}
