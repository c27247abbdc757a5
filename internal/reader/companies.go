package reader

import (
	"context"
	"time"

	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/gorm"
)

// CompanyFilter narrows company queries
type CompanyFilter struct {
	IsCarrier  *bool  `json:"isCarrier,omitempty"`
	IsShipper  *bool  `json:"isShipper,omitempty"`
	IsVerified *bool  `json:"isVerified,omitempty"`
	Country    string `json:"country,omitempty"`
	City       string `json:"city,omitempty"`
}

func (f CompanyFilter) scope(db *gorm.DB) *gorm.DB {
	if f.IsCarrier != nil {
		db = db.Where("is_carrier = ?", *f.IsCarrier)
	}
	if f.IsShipper != nil {
		db = db.Where("is_shipper = ?", *f.IsShipper)
	}
	if f.IsVerified != nil {
		db = db.Where("is_verified = ?", *f.IsVerified)
	}
	if f.Country != "" {
		db = db.Where("address_country = ?", f.Country)
	}
	if f.City != "" {
		db = db.Where("LOWER(address_city) = LOWER(?)", f.City)
	}
	return db
}

// CompanyReader reads mirrored companies
type CompanyReader struct {
	*collection[models.Company]
}

func newCompanyReader(db *gorm.DB, freshness time.Duration) (*CompanyReader, error) {
	c, err := newCollection[models.Company](db, freshness, []string{
		"name", "legal_name", "tax_id", "vat_number", "email", "address_city",
	})
	if err != nil {
		return nil, err
	}
	return &CompanyReader{collection: c.withCoordinates("address_lat", "address_lng")}, nil
}

// GetByTaxID looks a company up by SIRET or VAT number
func (r *CompanyReader) GetByTaxID(ctx context.Context, connectionID, taxID string) (*models.Company, error) {
	return r.first(ctx, connectionID, func(db *gorm.DB) *gorm.DB {
		return db.Where("tax_id = ? OR vat_number = ?", taxID, taxID)
	})
}

// Find pages through companies matching f
func (r *CompanyReader) Find(ctx context.Context, connectionID string, f CompanyFilter, opts FindOptions) (*Result[models.Company], error) {
	return r.find(ctx, connectionID, f.scope, opts)
}

// Count counts companies matching f
func (r *CompanyReader) Count(ctx context.Context, connectionID string, f CompanyFilter) (int64, error) {
	return r.count(ctx, connectionID, f.scope)
}

// Carriers lists carrier companies, optionally verified ones only
func (r *CompanyReader) Carriers(ctx context.Context, connectionID string, verifiedOnly bool, opts FindOptions) (*Result[models.Company], error) {
	yes := true
	f := CompanyFilter{IsCarrier: &yes}
	if verifiedOnly {
		f.IsVerified = &yes
	}
	if opts.Sort == "" {
		opts.Sort = "name"
	}
	return r.Find(ctx, connectionID, f, opts)
}

// CompanyStats aggregates companies of a connection
type CompanyStats struct {
	Total     int64    `json:"total"`
	Carriers  int64    `json:"carriers"`
	Shippers  int64    `json:"shippers"`
	Verified  int64    `json:"verified"`
	ByCountry []Bucket `json:"byCountry"`
}

// GetStats counts companies by role and country
func (r *CompanyReader) GetStats(ctx context.Context, connectionID string) (*CompanyStats, error) {
	yes := true
	stats := &CompanyStats{}
	var err error

	if stats.Total, err = r.count(ctx, connectionID, noScope); err != nil {
		return nil, err
	}
	if stats.Carriers, err = r.Count(ctx, connectionID, CompanyFilter{IsCarrier: &yes}); err != nil {
		return nil, err
	}
	if stats.Shippers, err = r.Count(ctx, connectionID, CompanyFilter{IsShipper: &yes}); err != nil {
		return nil, err
	}
	if stats.Verified, err = r.Count(ctx, connectionID, CompanyFilter{IsVerified: &yes}); err != nil {
		return nil, err
	}
	if stats.ByCountry, err = r.groupBy(ctx, connectionID, "address_country", noScope); err != nil {
		return nil, err
	}
	return stats, nil
}
