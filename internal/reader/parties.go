package reader

import (
	"context"
	"time"

	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/gorm"
)

// ContactFilter narrows contact queries
type ContactFilter struct {
	CompanyExternalID string `json:"companyExternalId,omitempty"`
	Language          string `json:"language,omitempty"`
}

func (f ContactFilter) scope(db *gorm.DB) *gorm.DB {
	if f.CompanyExternalID != "" {
		db = db.Where("company_external_id = ?", f.CompanyExternalID)
	}
	if f.Language != "" {
		db = db.Where("language = ?", f.Language)
	}
	return db
}

// ContactReader reads mirrored contacts
type ContactReader struct {
	*collection[models.Contact]
}

func newContactReader(db *gorm.DB, freshness time.Duration) (*ContactReader, error) {
	c, err := newCollection[models.Contact](db, freshness, []string{
		"first_name", "last_name", "email", "phone", "company_name",
	})
	if err != nil {
		return nil, err
	}
	return &ContactReader{collection: c}, nil
}

// GetByEmail looks a contact up by email
func (r *ContactReader) GetByEmail(ctx context.Context, connectionID, email string) (*models.Contact, error) {
	return r.first(ctx, connectionID, func(db *gorm.DB) *gorm.DB {
		return db.Where("LOWER(email) = LOWER(?)", email)
	})
}

// Find pages through contacts matching f
func (r *ContactReader) Find(ctx context.Context, connectionID string, f ContactFilter, opts FindOptions) (*Result[models.Contact], error) {
	return r.find(ctx, connectionID, f.scope, opts)
}

// ByCompany lists the contacts of one company
func (r *ContactReader) ByCompany(ctx context.Context, connectionID, companyExternalID string, opts FindOptions) (*Result[models.Contact], error) {
	return r.Find(ctx, connectionID, ContactFilter{CompanyExternalID: companyExternalID}, opts)
}

// ContactStats aggregates contacts of a connection
type ContactStats struct {
	Total      int64    `json:"total"`
	ByLanguage []Bucket `json:"byLanguage"`
}

// GetStats groups contacts by language
func (r *ContactReader) GetStats(ctx context.Context, connectionID string) (*ContactStats, error) {
	stats := &ContactStats{}
	var err error
	if stats.Total, err = r.count(ctx, connectionID, noScope); err != nil {
		return nil, err
	}
	if stats.ByLanguage, err = r.groupBy(ctx, connectionID, "language", noScope); err != nil {
		return nil, err
	}
	return stats, nil
}

// InvoiceFilter narrows invoice queries
type InvoiceFilter struct {
	Statuses         []string   `json:"statuses,omitempty"`
	DebtorExternalID string     `json:"debtorExternalId,omitempty"`
	IssuedFrom       *time.Time `json:"issuedFrom,omitempty"`
	IssuedTo         *time.Time `json:"issuedTo,omitempty"`
	DueBefore        *time.Time `json:"dueBefore,omitempty"`
	Unpaid           bool       `json:"unpaid,omitempty"`
}

func (f InvoiceFilter) scope(db *gorm.DB) *gorm.DB {
	if len(f.Statuses) > 0 {
		db = db.Where("status IN ?", f.Statuses)
	}
	if f.DebtorExternalID != "" {
		db = db.Where("debtor_external_id = ?", f.DebtorExternalID)
	}
	if f.IssuedFrom != nil {
		db = db.Where("issue_date >= ?", *f.IssuedFrom)
	}
	if f.IssuedTo != nil {
		db = db.Where("issue_date < ?", *f.IssuedTo)
	}
	if f.DueBefore != nil {
		db = db.Where("due_date < ?", *f.DueBefore)
	}
	if f.Unpaid {
		db = db.Where("paid_at IS NULL AND status NOT IN ?", []string{"paid", "cancelled"})
	}
	return db
}

// InvoiceReader reads mirrored invoices
type InvoiceReader struct {
	*collection[models.Invoice]
}

func newInvoiceReader(db *gorm.DB, freshness time.Duration) (*InvoiceReader, error) {
	c, err := newCollection[models.Invoice](db, freshness, []string{
		"invoice_number", "debtor_name", "creditor_name",
	})
	if err != nil {
		return nil, err
	}
	return &InvoiceReader{collection: c}, nil
}

// GetByNumber looks an invoice up by its number
func (r *InvoiceReader) GetByNumber(ctx context.Context, connectionID, number string) (*models.Invoice, error) {
	return r.first(ctx, connectionID, func(db *gorm.DB) *gorm.DB {
		return db.Where("invoice_number = ?", number)
	})
}

// Find pages through invoices matching f
func (r *InvoiceReader) Find(ctx context.Context, connectionID string, f InvoiceFilter, opts FindOptions) (*Result[models.Invoice], error) {
	return r.find(ctx, connectionID, f.scope, opts)
}

// Overdue lists unpaid invoices past their due date, oldest due first
func (r *InvoiceReader) Overdue(ctx context.Context, connectionID string, opts FindOptions) (*Result[models.Invoice], error) {
	now := r.now()
	if opts.Sort == "" {
		opts.Sort = "due_date"
	}
	return r.Find(ctx, connectionID, InvoiceFilter{DueBefore: &now, Unpaid: true}, opts)
}

// InvoiceStats aggregates invoices of a connection
type InvoiceStats struct {
	Total    int64    `json:"total"`
	ByStatus []Bucket `json:"byStatus"`
	Overdue  int64    `json:"overdue"`
}

// GetStats groups invoices by status and counts overdue ones
func (r *InvoiceReader) GetStats(ctx context.Context, connectionID string) (*InvoiceStats, error) {
	now := r.now()
	stats := &InvoiceStats{}
	var err error
	if stats.Total, err = r.count(ctx, connectionID, noScope); err != nil {
		return nil, err
	}
	if stats.ByStatus, err = r.groupBy(ctx, connectionID, "status", noScope); err != nil {
		return nil, err
	}
	overdue := InvoiceFilter{DueBefore: &now, Unpaid: true}
	if stats.Overdue, err = r.count(ctx, connectionID, overdue.scope); err != nil {
		return nil, err
	}
	return stats, nil
}

// AddressFilter narrows address queries
type AddressFilter struct {
	Country           string `json:"country,omitempty"`
	CompanyExternalID string `json:"companyExternalId,omitempty"`
	IsOrigin          *bool  `json:"isOrigin,omitempty"`
	IsDestination     *bool  `json:"isDestination,omitempty"`
}

func (f AddressFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Country != "" {
		db = db.Where("country = ?", f.Country)
	}
	if f.CompanyExternalID != "" {
		db = db.Where("company_external_id = ?", f.CompanyExternalID)
	}
	if f.IsOrigin != nil {
		db = db.Where("is_origin = ?", *f.IsOrigin)
	}
	if f.IsDestination != nil {
		db = db.Where("is_destination = ?", *f.IsDestination)
	}
	return db
}

// AddressReader reads the mirrored address book
type AddressReader struct {
	*collection[models.Address]
}

func newAddressReader(db *gorm.DB, freshness time.Duration) (*AddressReader, error) {
	c, err := newCollection[models.Address](db, freshness, []string{
		"name", "street", "city", "postal_code", "company_name",
	})
	if err != nil {
		return nil, err
	}
	return &AddressReader{collection: c.withCoordinates("lat", "lng")}, nil
}

// Find pages through addresses matching f
func (r *AddressReader) Find(ctx context.Context, connectionID string, f AddressFilter, opts FindOptions) (*Result[models.Address], error) {
	return r.find(ctx, connectionID, f.scope, opts)
}

// AddressStats aggregates addresses of a connection
type AddressStats struct {
	Total        int64    `json:"total"`
	Origins      int64    `json:"origins"`
	Destinations int64    `json:"destinations"`
	ByCountry    []Bucket `json:"byCountry"`
}

// GetStats groups addresses by country
func (r *AddressReader) GetStats(ctx context.Context, connectionID string) (*AddressStats, error) {
	yes := true
	stats := &AddressStats{}
	var err error
	if stats.Total, err = r.count(ctx, connectionID, noScope); err != nil {
		return nil, err
	}
	if stats.Origins, err = r.count(ctx, connectionID, AddressFilter{IsOrigin: &yes}.scope); err != nil {
		return nil, err
	}
	if stats.Destinations, err = r.count(ctx, connectionID, AddressFilter{IsDestination: &yes}.scope); err != nil {
		return nil, err
	}
	if stats.ByCountry, err = r.groupBy(ctx, connectionID, "country", noScope); err != nil {
		return nil, err
	}
	return stats, nil
}

// CounterReader reads the live counters row of a connection
type CounterReader struct {
	*collection[models.Counter]
}

func newCounterReader(db *gorm.DB, freshness time.Duration) (*CounterReader, error) {
	c, err := newCollection[models.Counter](db, freshness, nil)
	if err != nil {
		return nil, err
	}
	return &CounterReader{collection: c}, nil
}

// Get returns the counters of a connection
func (r *CounterReader) Get(ctx context.Context, connectionID string) (*models.Counter, error) {
	return r.GetByExternalID(ctx, connectionID, models.CounterExternalID)
}
