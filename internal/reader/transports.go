package reader

import (
	"context"
	"time"

	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/gorm"
)

// TransportFilter narrows transport queries; zero fields are ignored
type TransportFilter struct {
	Statuses          []string   `json:"statuses,omitempty"`
	CarrierExternalID string     `json:"carrierExternalId,omitempty"`
	Tag               string     `json:"tag,omitempty"`
	PickupFrom        *time.Time `json:"pickupFrom,omitempty"`
	PickupTo          *time.Time `json:"pickupTo,omitempty"`
	UpdatedSince      *time.Time `json:"updatedSince,omitempty"`
	WithoutCarrier    bool       `json:"withoutCarrier,omitempty"`
}

func (f TransportFilter) scope(db *gorm.DB) *gorm.DB {
	if len(f.Statuses) > 0 {
		db = db.Where("status IN ?", f.Statuses)
	}
	if f.CarrierExternalID != "" {
		db = db.Where("carrier_external_id = ?", f.CarrierExternalID)
	}
	if f.Tag != "" {
		db = db.Where("CAST(tags AS TEXT) LIKE ? ESCAPE '\\'", "%"+escapeLike(f.Tag)+"%")
	}
	if f.PickupFrom != nil {
		db = db.Where("pickup_scheduled_at >= ?", *f.PickupFrom)
	}
	if f.PickupTo != nil {
		db = db.Where("pickup_scheduled_at < ?", *f.PickupTo)
	}
	if f.UpdatedSince != nil {
		db = db.Where("upstream_updated_at >= ?", *f.UpdatedSince)
	}
	if f.WithoutCarrier {
		db = db.Where("(carrier_external_id IS NULL OR carrier_external_id = '')")
	}
	return db
}

// TransportReader reads mirrored transports
type TransportReader struct {
	*collection[models.Transport]
}

func newTransportReader(db *gorm.DB, freshness time.Duration) (*TransportReader, error) {
	c, err := newCollection[models.Transport](db, freshness, []string{
		"sequential_id", "remote_id", "tracking_id", "carrier_name",
		"pickup_name", "pickup_city", "delivery_name", "delivery_city",
	})
	if err != nil {
		return nil, err
	}
	return &TransportReader{collection: c.withCoordinates("pickup_lat", "pickup_lng")}, nil
}

// GetBySequentialID looks a transport up by its human-facing number
func (r *TransportReader) GetBySequentialID(ctx context.Context, connectionID, sequentialID string) (*models.Transport, error) {
	return r.first(ctx, connectionID, func(db *gorm.DB) *gorm.DB {
		return db.Where("sequential_id = ?", sequentialID)
	})
}

// Find pages through transports matching f
func (r *TransportReader) Find(ctx context.Context, connectionID string, f TransportFilter, opts FindOptions) (*Result[models.Transport], error) {
	return r.find(ctx, connectionID, f.scope, opts)
}

// Count counts transports matching f
func (r *TransportReader) Count(ctx context.Context, connectionID string, f TransportFilter) (int64, error) {
	return r.count(ctx, connectionID, f.scope)
}

// ToPlan returns draft and pending transports that have no carrier yet,
// earliest pickup first
func (r *TransportReader) ToPlan(ctx context.Context, connectionID string, opts FindOptions) (*Result[models.Transport], error) {
	if opts.Sort == "" {
		opts.Sort = "pickup_scheduled_at"
	}
	return r.Find(ctx, connectionID, TransportFilter{
		Statuses:       []string{models.TransportDraft, models.TransportPending},
		WithoutCarrier: true,
	}, opts)
}

// ByCarrier returns the transports of one carrier
func (r *TransportReader) ByCarrier(ctx context.Context, connectionID, carrierExternalID string, opts FindOptions) (*Result[models.Transport], error) {
	return r.Find(ctx, connectionID, TransportFilter{CarrierExternalID: carrierExternalID}, opts)
}

// ByTag returns transports carrying tag
func (r *TransportReader) ByTag(ctx context.Context, connectionID, tag string, opts FindOptions) (*Result[models.Transport], error) {
	return r.Find(ctx, connectionID, TransportFilter{Tag: tag}, opts)
}

// PickupBetween returns transports whose pickup is scheduled in [from, to)
func (r *TransportReader) PickupBetween(ctx context.Context, connectionID string, from, to time.Time, opts FindOptions) (*Result[models.Transport], error) {
	if opts.Sort == "" {
		opts.Sort = "pickup_scheduled_at"
	}
	return r.Find(ctx, connectionID, TransportFilter{PickupFrom: &from, PickupTo: &to}, opts)
}

// TransportStats aggregates transports of a connection
type TransportStats struct {
	Total          int64    `json:"total"`
	ByStatus       []Bucket `json:"byStatus"`
	ByCarrier      []Bucket `json:"byCarrier"`
	WithoutCarrier int64    `json:"withoutCarrier"`
	ToPlan         int64    `json:"toPlan"`
}

const topCarriers = 20

// GetStats groups transports by status and carrier
func (r *TransportReader) GetStats(ctx context.Context, connectionID string) (*TransportStats, error) {
	stats := &TransportStats{}
	var err error

	if stats.Total, err = r.count(ctx, connectionID, noScope); err != nil {
		return nil, err
	}
	if stats.ByStatus, err = r.groupBy(ctx, connectionID, "status", noScope); err != nil {
		return nil, err
	}
	withCarrier := func(db *gorm.DB) *gorm.DB {
		return db.Where("carrier_name <> ''").Limit(topCarriers)
	}
	if stats.ByCarrier, err = r.groupBy(ctx, connectionID, "carrier_name", withCarrier); err != nil {
		return nil, err
	}
	if stats.WithoutCarrier, err = r.Count(ctx, connectionID, TransportFilter{WithoutCarrier: true}); err != nil {
		return nil, err
	}
	if stats.ToPlan, err = r.Count(ctx, connectionID, TransportFilter{
		Statuses:       []string{models.TransportDraft, models.TransportPending},
		WithoutCarrier: true,
	}); err != nil {
		return nil, err
	}
	return stats, nil
}
