package dashdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/datatypes"
)

// Collection endpoints
const (
	pathCounters   = "/counters/"
	pathTransports = "/transports/"
	pathCompanies  = "/companies/"
	pathContacts   = "/contacts/"
	pathVehicles   = "/vehicles/"
	pathTrailers   = "/trailers/"
	pathTruckers   = "/manager-truckers/"
	pathInvoices   = "/invoices/"
	pathAddresses  = "/deliveries/addresses/"
)

// list fetches one page of path and maps every record with mapFn
func list[W any, T any](ctx context.Context, c *Client, path string, opts connector.ListOptions, mapFn func(W, json.RawMessage) T) (*connector.Page[T], error) {
	q := url.Values{}
	if opts.PageSize > 0 {
		q.Set("limit", strconv.Itoa(opts.PageSize))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Ordering != "" {
		q.Set("ordering", opts.Ordering)
	}
	for k, v := range opts.Filters {
		q.Set(k, v)
	}

	var resp listResponse
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	page := &connector.Page[T]{
		Results: make([]T, 0, len(resp.Results)),
		Count:   resp.Count,
		HasMore: resp.Next != nil && *resp.Next != "",
	}
	for _, raw := range resp.Results {
		var w W
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", path, err)
		}
		page.Results = append(page.Results, mapFn(w, raw))
	}
	return page, nil
}

// GetCounters fetches the live counters
func (c *Client) GetCounters(ctx context.Context) (*models.Counter, error) {
	var raw json.RawMessage
	if err := c.get(ctx, pathCounters, nil, &raw); err != nil {
		return nil, err
	}

	counters := map[string]interface{}{}
	if err := json.Unmarshal(raw, &counters); err != nil {
		return nil, fmt.Errorf("decode %s: %w", pathCounters, err)
	}

	return &models.Counter{
		MirrorMeta: meta(models.CounterExternalID, raw),
		Counters:   datatypes.JSONMap(counters),
	}, nil
}

// ListTransports fetches one page of transports
func (c *Client) ListTransports(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Transport], error) {
	return list(ctx, c, pathTransports, opts, mapTransport)
}

// ListCompanies fetches one page of companies
func (c *Client) ListCompanies(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Company], error) {
	return list(ctx, c, pathCompanies, opts, mapCompany)
}

// ListVehicles fetches one page of vehicles
func (c *Client) ListVehicles(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Vehicle], error) {
	return list(ctx, c, pathVehicles, opts, mapVehicle)
}

// ListTrailers fetches one page of trailers
func (c *Client) ListTrailers(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Trailer], error) {
	return list(ctx, c, pathTrailers, opts, mapTrailer)
}

// ListDrivers fetches one page of truckers
func (c *Client) ListDrivers(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Driver], error) {
	return list(ctx, c, pathTruckers, opts, mapDriver)
}

// ListContacts fetches one page of contacts
func (c *Client) ListContacts(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Contact], error) {
	return list(ctx, c, pathContacts, opts, mapContact)
}

// ListInvoices fetches one page of invoices
func (c *Client) ListInvoices(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Invoice], error) {
	return list(ctx, c, pathInvoices, opts, mapInvoice)
}

// ListAddresses fetches one page of address-book entries
func (c *Client) ListAddresses(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Address], error) {
	return list(ctx, c, pathAddresses, opts, mapAddress)
}

var _ connector.Connector = (*Client)(nil)
