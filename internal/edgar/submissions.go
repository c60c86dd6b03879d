package edgar

import (
	"time"

	"go.uber.org/zap"
)

// submissionJSON is the per-filer document served at
// data.sec.gov/submissions/CIK##########.json.
type submissionJSON struct {
	Filings recentFilings `json:"filings"`
}

type recentFilings struct {
	Recent filingList   `json:"recent"`
	Files  []filingPage `json:"files"`
}

// filingPage points at an older page of the filer's history, served next to
// the main document as CIK##########-submissions-NNN.json. Pages run from
// newest to oldest and hold a bare filingList.
type filingPage struct {
	Name string `json:"name"`
}

type filingList struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDoc      []string `json:"primaryDocument"`
	IsInlineXBRL    []int    `json:"isInlineXBRL"`
}

// toFilings zips the parallel arrays into Filing values. Rows with an
// unparseable filing date are dropped.
func (l filingList) toFilings(cik string) []Filing {
	out := make([]Filing, 0, len(l.AccessionNumber))
	for i, acc := range l.AccessionNumber {
		filed, err := time.Parse(time.DateOnly, at(l.FilingDate, i))
		if err != nil {
			zap.L().Debug("edgar: skip filing with bad date",
				zap.String("cik", cik),
				zap.String("accession", acc),
			)
			continue
		}
		f := Filing{
			CIK:             cik,
			AccessionNumber: acc,
			Form:            at(l.Form, i),
			FilingDate:      filed,
			PrimaryDocument: at(l.PrimaryDoc, i),
			IsInlineXBRL:    i < len(l.IsInlineXBRL) && l.IsInlineXBRL[i] == 1,
		}
		if rd, err := time.Parse(time.DateOnly, at(l.ReportDate, i)); err == nil {
			f.ReportDate = &rd
		}
		out = append(out, f)
	}
	return out
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
