// Package adapter turns EDGAR filings into typed fact rows. Adapters read
// through a Source and never touch storage; the orchestrator decides when
// they run and commits what they return.
package adapter

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/model"
)

// ErrNoFiling reports that the entity has no filing the adapter can use.
// It is not a failure.
var ErrNoFiling = eris.New("adapter: no applicable filing")

// Source is the upstream view of one entity. *edgar.Session satisfies it.
type Source interface {
	Filings(ctx context.Context, form string, limit int) ([]edgar.Filing, error)
	Document(ctx context.Context, f edgar.Filing, name string) (io.ReadCloser, error)
	Header(ctx context.Context, f edgar.Filing) (*edgar.Header, error)
}

// Extraction is the result of one adapter run for one entity.
type Extraction struct {
	// FilingDate is the newest filing date the facts were drawn from.
	FilingDate time.Time
	Facts      []model.Fact
}

// Adapter extracts one kind of fact from one form type.
type Adapter interface {
	// Kind is the ledger key of the adapter.
	Kind() model.AdapterKind

	// Form is the base EDGAR form type the adapter reads. Amendments
	// ("/A") are included.
	Form() string

	// Applicable reports whether the entity's funds can produce facts for
	// this adapter at all.
	Applicable(funds []model.Fund) bool

	// Extract reads the entity's filings and returns typed rows, or
	// ErrNoFiling.
	Extract(ctx context.Context, src Source, cik string, funds []model.Fund) (*Extraction, error)
}

// Options configures the built-in adapters.
type Options struct {
	// MaxFilings bounds how many historical filings the N-CSR and
	// prospectus adapters scan.
	MaxFilings int
}

const defaultMaxFilings = 10

// Registry holds adapters in declared processing order.
type Registry struct {
	adapters map[model.AdapterKind]Adapter
	order    []model.AdapterKind
}

// NewRegistry creates a registry with every built-in adapter.
func NewRegistry(opts Options) *Registry {
	if opts.MaxFilings <= 0 {
		opts.MaxFilings = defaultMaxFilings
	}
	r := &Registry{adapters: make(map[model.AdapterKind]Adapter)}

	r.Register(&NPORT{})
	r.Register(&NCSR{maxFilings: opts.MaxFilings})
	r.Register(&Prospectus{maxFilings: opts.MaxFilings})
	r.Register(&FinHigh{maxFilings: opts.MaxFilings})
	r.Register(&Flows{})

	return r
}

// Register adds an adapter. Registering a kind twice replaces the adapter
// but keeps its original position.
func (r *Registry) Register(a Adapter) {
	if r.adapters == nil {
		r.adapters = make(map[model.AdapterKind]Adapter)
	}
	kind := a.Kind()
	if _, ok := r.adapters[kind]; !ok {
		r.order = append(r.order, kind)
	}
	r.adapters[kind] = a
}

// Get returns an adapter by kind.
func (r *Registry) Get(kind model.AdapterKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, eris.Errorf("adapter: unknown adapter %q", kind)
	}
	return a, nil
}

// All returns every adapter in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.adapters[k])
	}
	return out
}

// Select returns the named adapters in registration order, regardless of
// the order of kinds. An empty selection returns every adapter.
func (r *Registry) Select(kinds []model.AdapterKind) ([]Adapter, error) {
	if len(kinds) == 0 {
		return r.All(), nil
	}
	want := make(map[model.AdapterKind]bool, len(kinds))
	for _, k := range kinds {
		if _, err := r.Get(k); err != nil {
			return nil, err
		}
		want[k] = true
	}
	var out []Adapter
	for _, k := range r.order {
		if want[k] {
			out = append(out, r.adapters[k])
		}
	}
	return out, nil
}

// hasClasses reports whether any fund carries a class ID.
func hasClasses(funds []model.Fund) bool {
	for _, f := range funds {
		if f.ClassID != "" {
			return true
		}
	}
	return false
}
