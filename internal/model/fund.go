// Package model defines the domain types shared by the store, the EDGAR client and the sync engine.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Fund is one share class of a registered fund series, as listed in the SEC
// mutual fund ticker file. A CIK (the filer) owns one or more series, each of
// which owns one or more classes.
type Fund struct {
	ClassID      string     `json:"class_id" yaml:"class_id"`
	CIK          string     `json:"cik" yaml:"cik"`
	SeriesID     string     `json:"series_id" yaml:"series_id"`
	Ticker       string     `json:"ticker" yaml:"ticker"`
	SeriesName   string     `json:"series_name,omitempty" yaml:"series_name,omitempty"`
	ClassName    string     `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	StrategyText string     `json:"strategy_text,omitempty" yaml:"strategy_text,omitempty"`
	IsActive     bool       `json:"is_active" yaml:"is_active"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// NormalizeCIK converts a CIK in any common form ("320193", "0000320193",
// "CIK0000320193") to the 10-digit zero-padded form used as the entity key.
func NormalizeCIK(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.ToUpper(s), "CIK")
	if s == "" {
		return "", eris.New("model: empty cik")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 || n > 9999999999 {
		return "", eris.Errorf("model: invalid cik %q", raw)
	}
	return fmt.Sprintf("%010d", n), nil
}

// SeriesIDs returns the distinct series IDs of funds, in first-seen order.
func SeriesIDs(funds []Fund) []string {
	seen := make(map[string]bool, len(funds))
	var out []string
	for _, f := range funds {
		if f.SeriesID == "" || seen[f.SeriesID] {
			continue
		}
		seen[f.SeriesID] = true
		out = append(out, f.SeriesID)
	}
	return out
}

// ClassIndex maps class ID to fund for quick lookup by adapters.
func ClassIndex(funds []Fund) map[string]Fund {
	idx := make(map[string]Fund, len(funds))
	for _, f := range funds {
		if f.ClassID != "" {
			idx[f.ClassID] = f
		}
	}
	return idx
}
