package models

import (
	"time"

	"gorm.io/datatypes"
)

// MirrorMeta carries the bookkeeping columns shared by every mirrored table.
// (connection_id, external_id) is unique per table; the composite index name
// is derived from the table so the embedding models never collide.
type MirrorMeta struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ExternalID     string         `gorm:"type:varchar(255);not null;index:,unique,composite:conn_ext,priority:2" json:"externalId"`
	ConnectionID   string         `gorm:"type:varchar(255);not null;index:,unique,composite:conn_ext,priority:1" json:"connectionId"`
	OrganizationID string         `gorm:"type:varchar(255);not null;index" json:"organizationId"`
	RawPayload     datatypes.JSON `json:"rawPayload,omitempty"`
	Checksum       string         `gorm:"type:varchar(64)" json:"checksum"`
	SyncVersion    int            `gorm:"not null;default:1" json:"syncVersion"`
	SyncedAt       time.Time      `gorm:"index" json:"syncedAt"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Meta exposes the embedded bookkeeping block
func (m *MirrorMeta) Meta() *MirrorMeta {
	return m
}

// Mirrored is implemented by pointers to every mirrored model
type Mirrored interface {
	Meta() *MirrorMeta
	TableName() string
}

// PostalAddress is the promoted part of an upstream address
type PostalAddress struct {
	Name       string   `gorm:"type:varchar(255)" json:"name,omitempty"`
	Street     string   `gorm:"type:varchar(255)" json:"street,omitempty"`
	City       string   `gorm:"type:varchar(255)" json:"city,omitempty"`
	PostalCode string   `gorm:"type:varchar(32)" json:"postalCode,omitempty"`
	Country    string   `gorm:"type:varchar(64)" json:"country,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

// All returns every model managed by the data lake, for AutoMigrate
func All() []interface{} {
	return []interface{}{
		&Transport{},
		&Company{},
		&Vehicle{},
		&Trailer{},
		&Driver{},
		&Contact{},
		&Invoice{},
		&Address{},
		&Counter{},
		&SyncState{},
		&SyncEntityState{},
		&SyncError{},
	}
}
