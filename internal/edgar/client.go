// Package edgar retrieves fund filings from SEC EDGAR.
//
// A Client is shared by the whole run; each CIK is processed through its own
// Session, which owns a scratch cache directory that Close removes.
package edgar

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fund-cli/internal/config"
	"github.com/sells-group/fund-cli/internal/fetcher"
)

const (
	defaultSubmissionsURL = "https://data.sec.gov/submissions"
	defaultArchivesURL    = "https://www.sec.gov/Archives/edgar/data"
)

// Options configures a Client. Base URLs default to the public SEC hosts.
type Options struct {
	CacheDir       string
	UniverseURL    string
	SubmissionsURL string
	ArchivesURL    string
}

// Client resolves submissions and documents through a rate-limited fetcher.
type Client struct {
	f    fetcher.Fetcher
	opts Options
}

// NewClient creates a Client over the given fetcher.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	if opts.SubmissionsURL == "" {
		opts.SubmissionsURL = defaultSubmissionsURL
	}
	if opts.ArchivesURL == "" {
		opts.ArchivesURL = defaultArchivesURL
	}
	opts.SubmissionsURL = strings.TrimRight(opts.SubmissionsURL, "/")
	opts.ArchivesURL = strings.TrimRight(opts.ArchivesURL, "/")
	return &Client{f: f, opts: opts}
}

// NewFromConfig builds the HTTP fetcher and Client described by cfg.
func NewFromConfig(cfg config.EdgarConfig) *Client {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
		RateLimit:  cfg.RateLimit,
	})
	return NewClient(f, Options{
		CacheDir:       cfg.CacheDir,
		UniverseURL:    cfg.UniverseURL,
		SubmissionsURL: cfg.SubmissionsURL,
		ArchivesURL:    cfg.ArchivesURL,
	})
}

// Open starts a Session for one CIK. The caller must Close it.
func (c *Client) Open(_ context.Context, cik string) (*Session, error) {
	if err := os.MkdirAll(c.opts.CacheDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "edgar: create cache dir %s", c.opts.CacheDir)
	}
	dir, err := os.MkdirTemp(c.opts.CacheDir, cik+"-*")
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: create session cache for %s", cik)
	}
	return &Session{client: c, cik: cik, dir: dir}, nil
}

func (c *Client) submissionsURL(cik string) string {
	return fmt.Sprintf("%s/CIK%s.json", c.opts.SubmissionsURL, cik)
}

func (c *Client) pageURL(name string) string {
	return fmt.Sprintf("%s/%s", c.opts.SubmissionsURL, name)
}

func (c *Client) documentURL(f Filing, name string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.opts.ArchivesURL, strings.TrimLeft(f.CIK, "0"), f.AccessionPath(), name)
}

// Filing is one entry of a filer's submission history.
type Filing struct {
	CIK             string
	AccessionNumber string
	Form            string
	FilingDate      time.Time
	ReportDate      *time.Time
	PrimaryDocument string
	IsInlineXBRL    bool
}

// AccessionPath is the accession number without dashes, as used in archive URLs.
func (f Filing) AccessionPath() string {
	return strings.ReplaceAll(f.AccessionNumber, "-", "")
}

// RawPrimaryDocument strips the XSL rendering prefix ("xslFormNPORT-P_X01/")
// so the primary document resolves to the filed XML instead of HTML.
func (f Filing) RawPrimaryDocument() string {
	doc := f.PrimaryDocument
	if strings.HasPrefix(doc, "xsl") {
		if i := strings.Index(doc, "/"); i >= 0 {
			return doc[i+1:]
		}
	}
	return doc
}

// HeaderDocument names the SGML header file of the filing.
func (f Filing) HeaderDocument() string {
	return f.AccessionNumber + ".hdr.sgml"
}

// MatchesForm reports whether form is base or its amendment (base + "/A").
func MatchesForm(form, base string) bool {
	return form == base || form == base+"/A"
}
