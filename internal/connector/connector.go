package connector

import (
	"context"
	"fmt"

	"github.com/xelth-com/datalake/internal/models"
)

// Ordering used by incremental passes: most recently updated first
const OrderRecentlyUpdated = "-updated"

// ListOptions selects one page of an upstream collection. Page is 1-based.
type ListOptions struct {
	Page     int
	PageSize int
	Ordering string
	Filters  map[string]string
}

// Page is one page of upstream records already mapped to mirror models.
// Count is the upstream total when the API reports it, 0 otherwise.
type Page[T any] struct {
	Results []T
	Count   int
	HasMore bool
}

// ListFunc fetches one page of a collection
type ListFunc[T any] func(ctx context.Context, opts ListOptions) (*Page[T], error)

// Connector is the read-only view of one upstream TMS account.
// All calls of one connector share a single rate limiter.
type Connector interface {
	Name() string

	GetCounters(ctx context.Context) (*models.Counter, error)
	ListTransports(ctx context.Context, opts ListOptions) (*Page[*models.Transport], error)
	ListCompanies(ctx context.Context, opts ListOptions) (*Page[*models.Company], error)
	ListVehicles(ctx context.Context, opts ListOptions) (*Page[*models.Vehicle], error)
	ListTrailers(ctx context.Context, opts ListOptions) (*Page[*models.Trailer], error)
	ListDrivers(ctx context.Context, opts ListOptions) (*Page[*models.Driver], error)
	ListContacts(ctx context.Context, opts ListOptions) (*Page[*models.Contact], error)
	ListInvoices(ctx context.Context, opts ListOptions) (*Page[*models.Invoice], error)
	ListAddresses(ctx context.Context, opts ListOptions) (*Page[*models.Address], error)

	// APICalls is the number of upstream requests issued so far
	APICalls() int64
}

// Collected is the outcome of walking a paginated collection
type Collected[T any] struct {
	Results   []T
	Count     int // upstream total of the first page, or len(Results)
	LastPage  int
	Truncated bool // stopped at maxPages while upstream had more
}

// ListAll walks pages starting at opts.Page (default 1) until the upstream
// reports no more results or maxPages pages have been read.
func ListAll[T any](ctx context.Context, list ListFunc[T], opts ListOptions, maxPages int) (*Collected[T], error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	out := &Collected[T]{}
	for i := 0; i < maxPages; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		page, err := list(ctx, opts)
		if err != nil {
			return out, fmt.Errorf("page %d: %w", opts.Page, err)
		}

		out.Results = append(out.Results, page.Results...)
		out.LastPage = opts.Page
		if i == 0 {
			out.Count = page.Count
		}
		if !page.HasMore {
			break
		}
		if i == maxPages-1 {
			out.Truncated = true
		}
		opts.Page++
	}

	if out.Count == 0 {
		out.Count = len(out.Results)
	}
	return out, nil
}
