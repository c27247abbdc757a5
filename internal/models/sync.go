package models

import "time"

// SyncState is the per-connection sync document: global status, pause flag,
// per-tier timestamps and aggregate metrics.
type SyncState struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_sync_state_scope" json:"organizationId"`
	ConnectionID   string `gorm:"type:varchar(255);not null;uniqueIndex:idx_sync_state_scope" json:"connectionId"`
	Status         string `gorm:"type:varchar(20);not null;default:'idle'" json:"status"`
	IsPaused       bool   `gorm:"not null;default:false" json:"isPaused"`
	PausedReason   string `gorm:"type:varchar(500)" json:"pausedReason,omitempty"`

	LastFullSyncAt        *time.Time `json:"lastFullSyncAt"`
	LastIncrementalSyncAt *time.Time `json:"lastIncrementalSyncAt"`
	LastPeriodicSyncAt    *time.Time `json:"lastPeriodicSyncAt"`

	APICallsTotal        int64      `gorm:"not null;default:0" json:"apiCallsTotal"`
	LastSyncDurationMs   int64      `gorm:"not null;default:0" json:"lastSyncDurationMs"`
	AvgSyncDurationMs    float64    `gorm:"not null;default:0" json:"avgSyncDurationMs"`
	SyncRunsTotal        int64      `gorm:"not null;default:0" json:"syncRunsTotal"`
	LastSuccessfulSyncAt *time.Time `json:"lastSuccessfulSyncAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (SyncState) TableName() string {
	return "dl_sync_states"
}

// SyncEntityState tracks the last run of one entity kind on one connection
type SyncEntityState struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	OrganizationID string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_sync_entity_scope" json:"-"`
	ConnectionID   string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_sync_entity_scope" json:"-"`
	Entity         string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_sync_entity_scope" json:"entity"`
	Status         string     `gorm:"type:varchar(20);not null;default:'idle'" json:"status"`
	LastSyncAt     *time.Time `json:"lastSyncAt"`
	TotalCount     int        `gorm:"not null;default:0" json:"totalCount"`
	SyncedCount    int        `gorm:"not null;default:0" json:"syncedCount"`
	LastPage       int        `gorm:"not null;default:0" json:"lastPage"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TableName specifies the table name
func (SyncEntityState) TableName() string {
	return "dl_sync_entity_states"
}

// SyncError is one entry of the bounded per-connection error ring
type SyncError struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID string    `gorm:"type:varchar(255);not null;index:idx_sync_error_scope" json:"-"`
	ConnectionID   string    `gorm:"type:varchar(255);not null;index:idx_sync_error_scope" json:"-"`
	Entity         string    `gorm:"type:varchar(50);not null" json:"entity"`
	Message        string    `gorm:"type:text" json:"error"`
	OccurredAt     time.Time `gorm:"not null;index" json:"occurredAt"`
	RetryCount     int       `gorm:"not null;default:0" json:"retryCount"`
}

// TableName specifies the table name
func (SyncError) TableName() string {
	return "dl_sync_errors"
}
