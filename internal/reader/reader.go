// Package reader serves mirrored data to the rest of the platform. Readers
// only query the local store; they never mutate it and never reach upstream.
package reader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500

	earthRadiusKm = 6371.0
	kmPerDegree   = 111.32
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidSort   = errors.New("invalid sort field")
	ErrNoCoordinates = errors.New("collection has no coordinates")
)

// FindOptions pages and orders a query. Sort names a column, prefixed
// with "-" for descending order.
type FindOptions struct {
	Limit int    `json:"limit"`
	Skip  int    `json:"skip"`
	Sort  string `json:"sort"`
}

func (o FindOptions) normalized() FindOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Skip < 0 {
		o.Skip = 0
	}
	if o.Sort == "" {
		o.Sort = "-synced_at"
	}
	return o
}

// Result is one page of a Find
type Result[T any] struct {
	Results    []T   `json:"results"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
}

// Near pairs a record with its distance to the search point
type Near[T any] struct {
	Item       T       `json:"item"`
	DistanceKm float64 `json:"distanceKm"`
}

// Freshness describes how recent the mirrored data of a collection is
type Freshness struct {
	LastSyncedAt   *time.Time    `json:"lastSyncedAt"`
	OldestSyncedAt *time.Time    `json:"oldestSyncedAt"`
	IsFresh        bool          `json:"isFresh"`
	Threshold      time.Duration `json:"threshold"`
}

// Bucket is one GROUP BY row
type Bucket struct {
	Key   string `gorm:"column:bucket_key" json:"key"`
	Count int64  `gorm:"column:bucket_count" json:"count"`
}

type scopeFunc func(*gorm.DB) *gorm.DB

func noScope(db *gorm.DB) *gorm.DB { return db }

// collection implements the queries shared by every mirrored kind
type collection[T any] struct {
	db        *gorm.DB
	table     string
	columns   map[string]bool
	search    []string
	latColumn string
	lngColumn string
	freshness time.Duration
	now       func() time.Time
}

func newCollection[T any](db *gorm.DB, freshness time.Duration, search []string) (*collection[T], error) {
	var zero T
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(&zero); err != nil {
		return nil, fmt.Errorf("parse reader schema: %w", err)
	}

	columns := make(map[string]bool, len(stmt.Schema.DBNames))
	for _, name := range stmt.Schema.DBNames {
		columns[name] = true
	}
	return &collection[T]{
		db:        db,
		table:     stmt.Schema.Table,
		columns:   columns,
		search:    search,
		freshness: freshness,
		now:       time.Now,
	}, nil
}

func (c *collection[T]) withCoordinates(lat, lng string) *collection[T] {
	c.latColumn, c.lngColumn = lat, lng
	return c
}

func (c *collection[T]) query(ctx context.Context, connectionID string) *gorm.DB {
	var zero T
	return c.db.WithContext(ctx).Model(&zero).Where("connection_id = ?", connectionID)
}

// GetByExternalID returns the mirrored record with the upstream id
func (c *collection[T]) GetByExternalID(ctx context.Context, connectionID, externalID string) (*T, error) {
	return c.first(ctx, connectionID, func(db *gorm.DB) *gorm.DB {
		return db.Where("external_id = ?", externalID)
	})
}

func (c *collection[T]) first(ctx context.Context, connectionID string, scope scopeFunc) (*T, error) {
	var out T
	err := scope(c.query(ctx, connectionID)).Order("id").First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.table, err)
	}
	return &out, nil
}

func (c *collection[T]) order(sortField string) (string, error) {
	desc := strings.HasPrefix(sortField, "-")
	column := strings.TrimPrefix(sortField, "-")
	if !c.columns[column] {
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, column)
	}
	if desc {
		return column + " DESC, id DESC", nil
	}
	return column + " ASC, id ASC", nil
}

func (c *collection[T]) find(ctx context.Context, connectionID string, scope scopeFunc, opts FindOptions) (*Result[T], error) {
	opts = opts.normalized()
	order, err := c.order(opts.Sort)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := scope(c.query(ctx, connectionID)).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count %s: %w", c.table, err)
	}

	results := make([]T, 0)
	if err := scope(c.query(ctx, connectionID)).
		Order(order).
		Limit(opts.Limit).
		Offset(opts.Skip).
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", c.table, err)
	}

	return &Result[T]{
		Results:    results,
		Total:      total,
		Page:       opts.Skip/opts.Limit + 1,
		TotalPages: int(math.Ceil(float64(total) / float64(opts.Limit))),
	}, nil
}

func (c *collection[T]) count(ctx context.Context, connectionID string, scope scopeFunc) (int64, error) {
	var n int64
	if err := scope(c.query(ctx, connectionID)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", c.table, err)
	}
	return n, nil
}

// Search matches term case-insensitively against the collection's text columns
func (c *collection[T]) Search(ctx context.Context, connectionID, term string, limit int) ([]T, error) {
	term = strings.TrimSpace(term)
	results := make([]T, 0)
	if term == "" || len(c.search) == 0 {
		return results, nil
	}
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	clauses := make([]string, len(c.search))
	args := make([]interface{}, len(c.search))
	for i, col := range c.search {
		clauses[i] = "LOWER(" + col + ") LIKE ? ESCAPE '\\'"
		args[i] = pattern
	}

	err := c.query(ctx, connectionID).
		Where(strings.Join(clauses, " OR "), args...).
		Order("synced_at DESC, id DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.table, err)
	}
	return results, nil
}

// idOf returns the local id of a mirrored record
func idOf(v interface{}) uint {
	if m, ok := v.(interface{ Meta() *models.MirrorMeta }); ok {
		return m.Meta().ID
	}
	return 0
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// FindNear returns records within maxKm of (lon, lat), nearest first. A
// bounding box narrows the query; exact distances are great-circle.
func (c *collection[T]) FindNear(ctx context.Context, connectionID string, lon, lat, maxKm float64, limit int) ([]Near[T], error) {
	if c.latColumn == "" {
		return nil, ErrNoCoordinates
	}
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}

	dLat := maxKm / kmPerDegree
	cos := math.Cos(lat * math.Pi / 180)
	box := func() *gorm.DB {
		q := c.query(ctx, connectionID).
			Where(c.latColumn+" IS NOT NULL AND "+c.lngColumn+" IS NOT NULL").
			Where(c.latColumn+" BETWEEN ? AND ?", lat-dLat, lat+dLat)
		if cos > 0.01 {
			q = c.lngRange(q, lon, maxKm/(kmPerDegree*cos))
		}
		return q
	}

	var coords []struct {
		ID  uint
		Lat float64
		Lng float64
	}
	if err := box().Select("id, " + c.latColumn + " AS lat, " + c.lngColumn + " AS lng").Scan(&coords).Error; err != nil {
		return nil, fmt.Errorf("near %s: %w", c.table, err)
	}

	var candidates []T
	if err := box().Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("near %s: %w", c.table, err)
	}

	distances := make(map[uint]float64, len(coords))
	for _, p := range coords {
		distances[p.ID] = Haversine(lat, lon, p.Lat, p.Lng)
	}

	out := make([]Near[T], 0, len(candidates))
	for i, item := range candidates {
		d, ok := distances[idOf(&candidates[i])]
		if !ok || d > maxKm {
			continue
		}
		out = append(out, Near[T]{Item: item, DistanceKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// lngRange limits q to lon±dLng, splitting the range in two when it
// crosses the antimeridian
func (c *collection[T]) lngRange(q *gorm.DB, lon, dLng float64) *gorm.DB {
	lo, hi := lon-dLng, lon+dLng
	either := "(" + c.lngColumn + " BETWEEN ? AND ? OR " + c.lngColumn + " BETWEEN ? AND ?)"
	switch {
	case dLng >= 180:
		return q
	case lo < -180:
		return q.Where(either, -180.0, hi, lo+360, 180.0)
	case hi > 180:
		return q.Where(either, lo, 180.0, -180.0, hi-360)
	default:
		return q.Where(c.lngColumn+" BETWEEN ? AND ?", lo, hi)
	}
}

// Haversine returns the great-circle distance in kilometres
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// GetDataFreshness reports the newest and oldest sync time of the
// collection for a connection
func (c *collection[T]) GetDataFreshness(ctx context.Context, connectionID string) (*Freshness, error) {
	f := &Freshness{Threshold: c.freshness}

	var newest, oldest []struct{ SyncedAt time.Time }
	if err := c.query(ctx, connectionID).Select("synced_at").Order("synced_at DESC").Limit(1).Scan(&newest).Error; err != nil {
		return nil, fmt.Errorf("freshness %s: %w", c.table, err)
	}
	if len(newest) == 0 {
		return f, nil
	}
	if err := c.query(ctx, connectionID).Select("synced_at").Order("synced_at ASC").Limit(1).Scan(&oldest).Error; err != nil {
		return nil, fmt.Errorf("freshness %s: %w", c.table, err)
	}

	f.LastSyncedAt = &newest[0].SyncedAt
	if len(oldest) > 0 {
		f.OldestSyncedAt = &oldest[0].SyncedAt
	}
	f.IsFresh = c.now().Sub(newest[0].SyncedAt) <= c.freshness
	return f, nil
}

// IsFresh reports whether the collection was synced within its threshold
func (c *collection[T]) IsFresh(ctx context.Context, connectionID string) (bool, error) {
	f, err := c.GetDataFreshness(ctx, connectionID)
	if err != nil {
		return false, err
	}
	return f.IsFresh, nil
}

func (c *collection[T]) groupBy(ctx context.Context, connectionID, column string, scope scopeFunc) ([]Bucket, error) {
	buckets := make([]Bucket, 0)
	err := scope(c.query(ctx, connectionID)).
		Select(column + " AS bucket_key, COUNT(*) AS bucket_count").
		Group(column).
		Order("bucket_count DESC, bucket_key ASC").
		Scan(&buckets).Error
	if err != nil {
		return nil, fmt.Errorf("group %s by %s: %w", c.table, column, err)
	}
	return buckets, nil
}

// Reader bundles the per-kind readers
type Reader struct {
	Transports *TransportReader
	Companies  *CompanyReader
	Vehicles   *VehicleReader
	Trailers   *TrailerReader
	Drivers    *DriverReader
	Contacts   *ContactReader
	Invoices   *InvoiceReader
	Addresses  *AddressReader
	Counters   *CounterReader
}

// New builds every reader over db
func New(db *gorm.DB, cfg *config.SyncConfig) (*Reader, error) {
	live := cfg.FreshnessFor("transports")
	reference := cfg.FreshnessFor("companies")

	r := &Reader{}
	var err error
	if r.Transports, err = newTransportReader(db, live); err != nil {
		return nil, err
	}
	if r.Companies, err = newCompanyReader(db, reference); err != nil {
		return nil, err
	}
	if r.Vehicles, err = newVehicleReader(db, reference); err != nil {
		return nil, err
	}
	if r.Trailers, err = newTrailerReader(db, reference); err != nil {
		return nil, err
	}
	if r.Drivers, err = newDriverReader(db, reference); err != nil {
		return nil, err
	}
	if r.Contacts, err = newContactReader(db, reference); err != nil {
		return nil, err
	}
	if r.Invoices, err = newInvoiceReader(db, reference); err != nil {
		return nil, err
	}
	if r.Addresses, err = newAddressReader(db, reference); err != nil {
		return nil, err
	}
	if r.Counters, err = newCounterReader(db, cfg.FreshnessFor("counters")); err != nil {
		return nil, err
	}
	return r, nil
}

type freshnessSource interface {
	GetDataFreshness(ctx context.Context, connectionID string) (*Freshness, error)
}

// Freshness reports the freshness of every collection, keyed by collection
// name
func (r *Reader) Freshness(ctx context.Context, connectionID string) (map[string]*Freshness, error) {
	sources := map[string]freshnessSource{
		"counters":   r.Counters,
		"transports": r.Transports,
		"companies":  r.Companies,
		"vehicles":   r.Vehicles,
		"trailers":   r.Trailers,
		"drivers":    r.Drivers,
		"contacts":   r.Contacts,
		"invoices":   r.Invoices,
		"addresses":  r.Addresses,
	}
	out := make(map[string]*Freshness, len(sources))
	for name, src := range sources {
		f, err := src.GetDataFreshness(ctx, connectionID)
		if err != nil {
			return nil, fmt.Errorf("%s freshness: %w", name, err)
		}
		out[name] = f
	}
	return out, nil
}
