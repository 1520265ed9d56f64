// Package scanner holds the ingestion strategies that pull marketplace records
// into the item store, and the registry they are resolved from.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

// Request carries all parameters required to execute a scan.
type Request struct {
	Now           time.Time
	Kinds         []domain.Kind
	PageSize      int
	ArchiveOrder  ports.ArchiveOrder
	ArchiveWindow time.Duration
}

// Result counts what one strategy did. Skipped is keyed by skip reason.
type Result struct {
	Strategy string
	Pages    int
	Inserted int
	Skipped  map[string]int
}

func (r *Result) skip(reason string) {
	if r.Skipped == nil {
		r.Skipped = map[string]int{}
	}
	r.Skipped[reason]++
}

// Skip reasons reported in Result.Skipped.
const (
	SkipMissingID     = "missing_id"
	SkipAnswered      = "answered"
	SkipDuplicate     = "duplicate_in_page"
	SkipStored        = "already_stored"
	SkipUndated       = "undated"
	SkipUnparsable    = "unparsable_date"
	SkipOutsideWindow = "outside_window"
)

// Scanner captures a single ingestion strategy (live, archive).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) (Result, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[string]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clampPageSize(size int) int {
	return min(max(size, 1), 5000)
}
