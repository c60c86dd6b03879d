package edgar

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/fetcher"
)

// Session is the upstream view of one CIK for the lifetime of its processing.
// Submissions are fetched once, older history pages only when a lookup runs
// past the recent list; documents are cached under a private directory that
// Close removes.
type Session struct {
	client *Client
	cik    string
	dir    string

	mu      sync.Mutex
	loaded  bool
	filings []Filing
	pages   []filingPage // not yet fetched, newest first

	closeOnce sync.Once
}

// CIK returns the 10-digit CIK the session was opened for.
func (s *Session) CIK() string { return s.cik }

// Dir is the session cache directory.
func (s *Session) Dir() string { return s.dir }

// LatestFilingDate returns the most recent filing date of form (including
// its amendments), or nil when the filer has never filed it.
func (s *Session) LatestFilingDate(ctx context.Context, form string) (*time.Time, error) {
	filings, err := s.Filings(ctx, form, 1)
	if err != nil {
		return nil, err
	}
	if len(filings) == 0 {
		return nil, nil
	}
	d := filings[0].FilingDate
	return &d, nil
}

// Filings returns up to limit filings of form (including amendments), newest
// first. Older history pages are fetched until limit matches are found. A
// limit of zero or less returns every match, reaching into older pages only
// while nothing has matched.
func (s *Session) Filings(ctx context.Context, form string, limit int) ([]Filing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadRecent(ctx); err != nil {
		return nil, err
	}

	out := matching(s.filings, form)
	for len(s.pages) > 0 && (len(out) == 0 || (limit > 0 && len(out) < limit)) {
		older, err := s.loadPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, matching(older, form)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FilingDate.After(out[j].FilingDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matching(filings []Filing, form string) []Filing {
	var out []Filing
	for _, f := range filings {
		if MatchesForm(f.Form, form) {
			out = append(out, f)
		}
	}
	return out
}

// loadRecent fetches the main submissions document once. s.mu must be held.
func (s *Session) loadRecent(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	url := s.client.submissionsURL(s.cik)
	body, err := s.client.f.Download(ctx, url)
	if err != nil {
		if errors.Is(err, fetcher.ErrNotFound) {
			zap.L().Debug("edgar: no submissions for cik", zap.String("cik", s.cik))
			s.loaded = true
			return nil
		}
		return eris.Wrapf(err, "edgar: submissions for %s", s.cik)
	}
	defer body.Close() //nolint:errcheck

	sub, err := fetcher.DecodeJSONObject[submissionJSON](body)
	if err != nil {
		return eris.Wrapf(err, "edgar: decode submissions for %s", s.cik)
	}
	s.filings = sub.Filings.Recent.toFilings(s.cik)
	for _, p := range sub.Filings.Files {
		if p.Name != "" {
			s.pages = append(s.pages, p)
		}
	}
	s.loaded = true
	return nil
}

// loadPage fetches the next older history page, appends it to the session
// and returns its filings. s.mu must be held.
func (s *Session) loadPage(ctx context.Context) ([]Filing, error) {
	page := s.pages[0]
	url := s.client.pageURL(page.Name)
	body, err := s.client.f.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: submissions page %s", page.Name)
	}
	defer body.Close() //nolint:errcheck

	list, err := fetcher.DecodeJSONObject[filingList](body)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: decode submissions page %s", page.Name)
	}
	older := list.toFilings(s.cik)
	zap.L().Debug("edgar: loaded older submissions page",
		zap.String("cik", s.cik),
		zap.String("page", page.Name),
		zap.Int("filings", len(older)),
	)
	s.pages = s.pages[1:]
	s.filings = append(s.filings, older...)
	return older, nil
}

// Document opens one file of a filing, downloading it into the session cache
// on first access.
func (s *Session) Document(ctx context.Context, f Filing, name string) (io.ReadCloser, error) {
	path := filepath.Join(s.dir, f.AccessionPath(), filepath.Base(name))
	if file, err := os.Open(path); err == nil {
		return file, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "edgar: create filing cache dir")
	}
	url := s.client.documentURL(f, name)
	if _, err := s.client.f.DownloadToFile(ctx, url, path); err != nil {
		_ = os.Remove(path)
		return nil, eris.Wrapf(err, "edgar: fetch %s", url)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: open cached document")
	}
	return file, nil
}

// Header fetches and parses the SGML header of a filing.
func (s *Session) Header(ctx context.Context, f Filing) (*Header, error) {
	r, err := s.Document(ctx, f, f.HeaderDocument())
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck

	h, err := ParseHeader(r)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: header of %s", f.AccessionNumber)
	}
	return h, nil
}

// Close removes the session cache. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if rmErr := os.RemoveAll(s.dir); rmErr != nil {
			err = eris.Wrapf(rmErr, "edgar: remove session cache %s", s.dir)
		}
	})
	return err
}
