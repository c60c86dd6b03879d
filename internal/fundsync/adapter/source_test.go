package adapter

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fetcher"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeSource serves filings and documents from memory.
type fakeSource struct {
	filings    []edgar.Filing
	docs       map[string]string
	headers    map[string]*edgar.Header
	filingsErr error
	fetched    []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{docs: make(map[string]string), headers: make(map[string]*edgar.Header)}
}

func (s *fakeSource) add(f edgar.Filing, doc string) {
	s.filings = append(s.filings, f)
	if doc != "" {
		s.docs[f.AccessionNumber+"/"+f.RawPrimaryDocument()] = doc
	}
}

func (s *fakeSource) Filings(_ context.Context, form string, limit int) ([]edgar.Filing, error) {
	if s.filingsErr != nil {
		return nil, s.filingsErr
	}
	var out []edgar.Filing
	for _, f := range s.filings {
		if edgar.MatchesForm(f.Form, form) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FilingDate.After(out[j].FilingDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeSource) Document(_ context.Context, f edgar.Filing, name string) (io.ReadCloser, error) {
	key := f.AccessionNumber + "/" + name
	s.fetched = append(s.fetched, key)
	doc, ok := s.docs[key]
	if !ok {
		return nil, eris.Wrapf(fetcher.ErrNotFound, "download %s", key)
	}
	return io.NopCloser(strings.NewReader(doc)), nil
}

func (s *fakeSource) Header(_ context.Context, f edgar.Filing) (*edgar.Header, error) {
	h, ok := s.headers[f.AccessionNumber]
	if !ok {
		return nil, eris.Wrap(fetcher.ErrNotFound, "header")
	}
	return h, nil
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

var _ Source = (*fakeSource)(nil)
var _ Source = (*edgar.Session)(nil)
