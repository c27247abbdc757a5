package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMaxErrors bounds the error ring of a connection
const DefaultMaxErrors = 50

// StateStore persists the sync document of one connection. Every mutation
// touches only the columns it names.
type StateStore struct {
	db             *gorm.DB
	organizationID string
	connectionID   string
	maxErrors      int
	now            func() time.Time
}

// Snapshot is the assembled sync document of a connection
type Snapshot struct {
	State          models.SyncState                       `json:"state"`
	Entities       map[EntityKind]*models.SyncEntityState `json:"entities"`
	Errors         []models.SyncError                     `json:"errors"`
	ErrorsLastHour int                                    `json:"errorsLastHour"`
}

// EntityStateUpdate sets the non-nil fields of an entity state
type EntityStateUpdate struct {
	Status      *Status
	LastSyncAt  *time.Time
	TotalCount  *int
	SyncedCount *int
	LastPage    *int
}

// GlobalStateUpdate sets the non-nil fields of the connection state
type GlobalStateUpdate struct {
	Status       *Status
	IsPaused     *bool
	PausedReason *string
}

// NewStateStore creates a store scoped to one connection
func NewStateStore(db *gorm.DB, organizationID, connectionID string, maxErrors int) *StateStore {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &StateStore{
		db:             db,
		organizationID: organizationID,
		connectionID:   connectionID,
		maxErrors:      maxErrors,
		now:            time.Now,
	}
}

func (s *StateStore) scope(db *gorm.DB) *gorm.DB {
	return db.Where("organization_id = ? AND connection_id = ?", s.organizationID, s.connectionID)
}

// Init creates the connection state if missing. Statuses left in syncing by
// a previous process are reset to idle.
func (s *StateStore) Init(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	state := models.SyncState{
		OrganizationID: s.organizationID,
		ConnectionID:   s.connectionID,
		Status:         string(StatusIdle),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "connection_id"}},
		DoNothing: true,
	}).Create(&state).Error
	if err != nil {
		return fmt.Errorf("init sync state: %w", err)
	}

	if err := s.scope(db.Model(&models.SyncState{})).
		Where("status = ?", StatusSyncing).
		Update("status", StatusIdle).Error; err != nil {
		return fmt.Errorf("reset sync state: %w", err)
	}
	if err := s.scope(db.Model(&models.SyncEntityState{})).
		Where("status = ?", StatusSyncing).
		Update("status", StatusIdle).Error; err != nil {
		return fmt.Errorf("reset entity states: %w", err)
	}
	return nil
}

// Get assembles the sync document
func (s *StateStore) Get(ctx context.Context) (*Snapshot, error) {
	db := s.db.WithContext(ctx)
	snap := &Snapshot{Entities: map[EntityKind]*models.SyncEntityState{}}

	if err := s.scope(db).First(&snap.State).Error; err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}

	var entities []models.SyncEntityState
	if err := s.scope(db).Order("entity").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("load entity states: %w", err)
	}
	for i := range entities {
		snap.Entities[EntityKind(entities[i].Entity)] = &entities[i]
	}

	if err := s.scope(db).Order("id DESC").Find(&snap.Errors).Error; err != nil {
		return nil, fmt.Errorf("load sync errors: %w", err)
	}
	hourAgo := s.now().Add(-time.Hour)
	for _, e := range snap.Errors {
		if e.OccurredAt.After(hourAgo) {
			snap.ErrorsLastHour++
		}
	}
	return snap, nil
}

// SetEntityState upserts the named fields of one entity kind
func (s *StateStore) SetEntityState(ctx context.Context, kind EntityKind, u EntityStateUpdate) error {
	row := models.SyncEntityState{
		OrganizationID: s.organizationID,
		ConnectionID:   s.connectionID,
		Entity:         string(kind),
		Status:         string(StatusIdle),
	}
	columns := []string{"updated_at"}
	if u.Status != nil {
		row.Status = string(*u.Status)
		columns = append(columns, "status")
	}
	if u.LastSyncAt != nil {
		row.LastSyncAt = u.LastSyncAt
		columns = append(columns, "last_sync_at")
	}
	if u.TotalCount != nil {
		row.TotalCount = *u.TotalCount
		columns = append(columns, "total_count")
	}
	if u.SyncedCount != nil {
		row.SyncedCount = *u.SyncedCount
		columns = append(columns, "synced_count")
	}
	if u.LastPage != nil {
		row.LastPage = *u.LastPage
		columns = append(columns, "last_page")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "connection_id"}, {Name: "entity"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set %s state: %w", kind, err)
	}
	return nil
}

// SetGlobalState updates the named fields of the connection state
func (s *StateStore) SetGlobalState(ctx context.Context, u GlobalStateUpdate) error {
	values := map[string]interface{}{}
	if u.Status != nil {
		values["status"] = string(*u.Status)
	}
	if u.IsPaused != nil {
		values["is_paused"] = *u.IsPaused
	}
	if u.PausedReason != nil {
		values["paused_reason"] = *u.PausedReason
	}
	if len(values) == 0 {
		return nil
	}

	if err := s.scope(s.db.WithContext(ctx).Model(&models.SyncState{})).Updates(values).Error; err != nil {
		return fmt.Errorf("set sync state: %w", err)
	}
	return nil
}

// AppendError pushes an entry onto the error ring and trims it to the
// newest maxErrors entries
func (s *StateStore) AppendError(ctx context.Context, kind EntityKind, syncErr error, retryCount int) error {
	db := s.db.WithContext(ctx)

	entry := models.SyncError{
		OrganizationID: s.organizationID,
		ConnectionID:   s.connectionID,
		Entity:         string(kind),
		Message:        syncErr.Error(),
		OccurredAt:     s.now().UTC(),
		RetryCount:     retryCount,
	}
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("append sync error: %w", err)
	}

	keep := s.scope(db.Model(&models.SyncError{})).
		Select("id").
		Order("id DESC").
		Limit(s.maxErrors)
	err := s.scope(db).
		Where("id NOT IN (?)", keep).
		Delete(&models.SyncError{}).Error
	if err != nil {
		return fmt.Errorf("trim sync errors: %w", err)
	}
	return nil
}

// RecordMetrics folds one tier run into the aggregate metrics. The running
// average is computed by the database from the stored values.
func (s *StateStore) RecordMetrics(ctx context.Context, tier Tier, duration time.Duration, success bool, apiCalls int64) error {
	ms := duration.Milliseconds()
	now := s.now().UTC()

	values := map[string]interface{}{
		"api_calls_total":       gorm.Expr("api_calls_total + ?", apiCalls),
		"last_sync_duration_ms": ms,
		"avg_sync_duration_ms":  gorm.Expr("(avg_sync_duration_ms * sync_runs_total + ?) / (sync_runs_total + 1)", float64(ms)),
		"sync_runs_total":       gorm.Expr("sync_runs_total + 1"),
	}
	switch tier {
	case TierFull:
		values["last_full_sync_at"] = now
	case TierIncremental:
		values["last_incremental_sync_at"] = now
	case TierPeriodic:
		values["last_periodic_sync_at"] = now
	}
	if success {
		values["last_successful_sync_at"] = now
	}

	if err := s.scope(s.db.WithContext(ctx).Model(&models.SyncState{})).Updates(values).Error; err != nil {
		return fmt.Errorf("record sync metrics: %w", err)
	}
	return nil
}
