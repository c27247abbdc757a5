package reader

import (
	"context"
	"time"

	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/gorm"
)

// FleetFilter narrows vehicle and trailer queries
type FleetFilter struct {
	Type              string `json:"type,omitempty"`
	CompanyExternalID string `json:"companyExternalId,omitempty"`
	HasLiftgate       *bool  `json:"hasLiftgate,omitempty"`
	IsRefrigerated    *bool  `json:"isRefrigerated,omitempty"`
	IsADR             *bool  `json:"isAdr,omitempty"` // vehicles only
}

func (f FleetFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Type != "" {
		db = db.Where("type = ?", f.Type)
	}
	if f.CompanyExternalID != "" {
		db = db.Where("company_external_id = ?", f.CompanyExternalID)
	}
	if f.HasLiftgate != nil {
		db = db.Where("has_liftgate = ?", *f.HasLiftgate)
	}
	if f.IsRefrigerated != nil {
		db = db.Where("is_refrigerated = ?", *f.IsRefrigerated)
	}
	if f.IsADR != nil {
		db = db.Where("is_adr = ?", *f.IsADR)
	}
	return db
}

// FleetStats groups a fleet collection by type
type FleetStats struct {
	Total  int64    `json:"total"`
	ByType []Bucket `json:"byType"`
}

var fleetSearch = []string{"license_plate", "fleet_number", "type"}

// VehicleReader reads mirrored vehicles
type VehicleReader struct {
	*collection[models.Vehicle]
}

func newVehicleReader(db *gorm.DB, freshness time.Duration) (*VehicleReader, error) {
	c, err := newCollection[models.Vehicle](db, freshness, append([]string{"brand", "model"}, fleetSearch...))
	if err != nil {
		return nil, err
	}
	return &VehicleReader{collection: c}, nil
}

// GetByLicensePlate looks a vehicle up by plate
func (r *VehicleReader) GetByLicensePlate(ctx context.Context, connectionID, plate string) (*models.Vehicle, error) {
	return r.first(ctx, connectionID, func(db *gorm.DB) *gorm.DB {
		return db.Where("license_plate = ?", plate)
	})
}

// Find pages through vehicles matching f
func (r *VehicleReader) Find(ctx context.Context, connectionID string, f FleetFilter, opts FindOptions) (*Result[models.Vehicle], error) {
	return r.find(ctx, connectionID, f.scope, opts)
}

// Count counts vehicles matching f
func (r *VehicleReader) Count(ctx context.Context, connectionID string, f FleetFilter) (int64, error) {
	return r.count(ctx, connectionID, f.scope)
}

// GetStats groups vehicles by type
func (r *VehicleReader) GetStats(ctx context.Context, connectionID string) (*FleetStats, error) {
	return fleetStats(ctx, r.collection, connectionID)
}

// TrailerReader reads mirrored trailers
type TrailerReader struct {
	*collection[models.Trailer]
}

func newTrailerReader(db *gorm.DB, freshness time.Duration) (*TrailerReader, error) {
	c, err := newCollection[models.Trailer](db, freshness, fleetSearch)
	if err != nil {
		return nil, err
	}
	return &TrailerReader{collection: c}, nil
}

// GetByLicensePlate looks a trailer up by plate
func (r *TrailerReader) GetByLicensePlate(ctx context.Context, connectionID, plate string) (*models.Trailer, error) {
	return r.first(ctx, connectionID, func(db *gorm.DB) *gorm.DB {
		return db.Where("license_plate = ?", plate)
	})
}

// Find pages through trailers matching f; IsADR is ignored
func (r *TrailerReader) Find(ctx context.Context, connectionID string, f FleetFilter, opts FindOptions) (*Result[models.Trailer], error) {
	f.IsADR = nil
	return r.find(ctx, connectionID, f.scope, opts)
}

// Count counts trailers matching f
func (r *TrailerReader) Count(ctx context.Context, connectionID string, f FleetFilter) (int64, error) {
	f.IsADR = nil
	return r.count(ctx, connectionID, f.scope)
}

// GetStats groups trailers by type
func (r *TrailerReader) GetStats(ctx context.Context, connectionID string) (*FleetStats, error) {
	return fleetStats(ctx, r.collection, connectionID)
}

func fleetStats[T any](ctx context.Context, c *collection[T], connectionID string) (*FleetStats, error) {
	stats := &FleetStats{}
	var err error
	if stats.Total, err = c.count(ctx, connectionID, noScope); err != nil {
		return nil, err
	}
	if stats.ByType, err = c.groupBy(ctx, connectionID, "type", noScope); err != nil {
		return nil, err
	}
	return stats, nil
}

// DriverFilter narrows driver queries
type DriverFilter struct {
	Active            *bool  `json:"active,omitempty"`
	CarrierExternalID string `json:"carrierExternalId,omitempty"`
	// ExpiringBefore matches drivers with any licence or card deadline before it
	ExpiringBefore *time.Time `json:"expiringBefore,omitempty"`
}

func (f DriverFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Active != nil {
		db = db.Where("is_active = ?", *f.Active)
	}
	if f.CarrierExternalID != "" {
		db = db.Where("carrier_external_id = ?", f.CarrierExternalID)
	}
	if f.ExpiringBefore != nil {
		t := *f.ExpiringBefore
		db = db.Where("driving_license_deadline < ? OR adr_license_deadline < ? OR driver_card_deadline < ?", t, t, t)
	}
	return db
}

// DriverReader reads mirrored drivers
type DriverReader struct {
	*collection[models.Driver]
}

func newDriverReader(db *gorm.DB, freshness time.Duration) (*DriverReader, error) {
	c, err := newCollection[models.Driver](db, freshness, []string{"first_name", "last_name", "email", "phone"})
	if err != nil {
		return nil, err
	}
	return &DriverReader{collection: c}, nil
}

// GetByEmail looks a driver up by email
func (r *DriverReader) GetByEmail(ctx context.Context, connectionID, email string) (*models.Driver, error) {
	return r.first(ctx, connectionID, func(db *gorm.DB) *gorm.DB {
		return db.Where("LOWER(email) = LOWER(?)", email)
	})
}

// Find pages through drivers matching f
func (r *DriverReader) Find(ctx context.Context, connectionID string, f DriverFilter, opts FindOptions) (*Result[models.Driver], error) {
	return r.find(ctx, connectionID, f.scope, opts)
}

// Count counts drivers matching f
func (r *DriverReader) Count(ctx context.Context, connectionID string, f DriverFilter) (int64, error) {
	return r.count(ctx, connectionID, f.scope)
}

// DriverStats aggregates drivers of a connection
type DriverStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
	Expiring int64 `json:"expiring"`
}

// expiringWindow is how far ahead a licence deadline counts as expiring
const expiringWindow = 30 * 24 * time.Hour

// GetStats counts active drivers and soon-expiring documents
func (r *DriverReader) GetStats(ctx context.Context, connectionID string) (*DriverStats, error) {
	yes, no := true, false
	soon := r.now().Add(expiringWindow)
	stats := &DriverStats{}
	var err error

	if stats.Total, err = r.count(ctx, connectionID, noScope); err != nil {
		return nil, err
	}
	if stats.Active, err = r.Count(ctx, connectionID, DriverFilter{Active: &yes}); err != nil {
		return nil, err
	}
	if stats.Inactive, err = r.Count(ctx, connectionID, DriverFilter{Active: &no}); err != nil {
		return nil, err
	}
	if stats.Expiring, err = r.Count(ctx, connectionID, DriverFilter{Active: &yes, ExpiringBefore: &soon}); err != nil {
		return nil, err
	}
	return stats, nil
}
