package edgar

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/fetcher"
	"github.com/sells-group/fund-cli/internal/model"
)

// tickerFile is company_tickers_mf.json: a column list plus positional rows.
type tickerFile struct {
	Fields []string            `json:"fields"`
	Data   [][]json.RawMessage `json:"data"`
}

// Universe downloads the SEC mutual fund ticker listing and returns one Fund
// per class, sorted by CIK then class ID. With etfOnly, only classes whose
// ticker is 3 or 4 characters are kept.
func (c *Client) Universe(ctx context.Context, etfOnly bool) ([]model.Fund, error) {
	if c.opts.UniverseURL == "" {
		return nil, eris.New("edgar: universe url not configured")
	}
	body, err := c.f.Download(ctx, c.opts.UniverseURL)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: download universe")
	}
	defer body.Close() //nolint:errcheck

	tf, err := fetcher.DecodeJSONObject[tickerFile](body)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: decode universe")
	}
	return tf.funds(etfOnly)
}

func (tf *tickerFile) funds(etfOnly bool) ([]model.Fund, error) {
	col := make(map[string]int, len(tf.Fields))
	for i, f := range tf.Fields {
		col[f] = i
	}
	for _, name := range []string{"cik", "seriesId", "classId", "symbol"} {
		if _, ok := col[name]; !ok {
			return nil, eris.Errorf("edgar: universe missing field %q", name)
		}
	}

	seen := make(map[string]bool)
	var out []model.Fund
	var skipped int
	for _, row := range tf.Data {
		rawCIK := cell(row, col["cik"])
		symbol := strings.ToUpper(cell(row, col["symbol"]))
		classID := cell(row, col["classId"])
		if etfOnly && (len(symbol) < 3 || len(symbol) > 4) {
			continue
		}
		cik, err := model.NormalizeCIK(rawCIK)
		if err != nil || classID == "" || seen[classID] {
			skipped++
			continue
		}
		seen[classID] = true
		out = append(out, model.Fund{
			ClassID:  classID,
			CIK:      cik,
			SeriesID: cell(row, col["seriesId"]),
			Ticker:   symbol,
			IsActive: true,
		})
	}
	if skipped > 0 {
		zap.L().Debug("edgar: universe rows skipped", zap.Int("count", skipped))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CIK != out[j].CIK {
			return out[i].CIK < out[j].CIK
		}
		return out[i].ClassID < out[j].ClassID
	})
	return out, nil
}

// cell renders a positional value as a string whether it was encoded as a
// JSON string or number.
func cell(row []json.RawMessage, i int) string {
	if i >= len(row) {
		return ""
	}
	var s string
	if err := json.Unmarshal(row[i], &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(row[i], &n); err == nil {
		return n.String()
	}
	return ""
}
