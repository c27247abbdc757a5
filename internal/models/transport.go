package models

import (
	"time"

	"gorm.io/datatypes"
)

// Normalized transport statuses
const (
	TransportDraft      = "DRAFT"
	TransportPending    = "PENDING"
	TransportConfirmed  = "CONFIRMED"
	TransportInProgress = "IN_PROGRESS"
	TransportCompleted  = "COMPLETED"
	TransportCancelled  = "CANCELLED"
)

// Stop is one end of a transport (pickup or delivery)
type Stop struct {
	PostalAddress `gorm:"embedded"`
	ContactName   string     `gorm:"type:varchar(255)" json:"contactName,omitempty"`
	ContactPhone  string     `gorm:"type:varchar(64)" json:"contactPhone,omitempty"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
	ScheduledEnd  *time.Time `json:"scheduledEnd,omitempty"`
	Instructions  string     `gorm:"type:text" json:"instructions,omitempty"`
	Reference     string     `gorm:"type:varchar(255)" json:"reference,omitempty"`
}

// Pricing holds the money columns of a transport
type Pricing struct {
	TotalPrice    *float64 `json:"totalPrice"`
	AgreedPrice   *float64 `json:"agreedPrice"`
	InvoicedPrice *float64 `json:"invoicedPrice"`
	Currency      string   `gorm:"type:varchar(8)" json:"currency"`
}

// Transport mirrors an upstream shipment
type Transport struct {
	MirrorMeta `gorm:"embedded"`

	SequentialID   string `gorm:"type:varchar(64);index" json:"sequentialId,omitempty"`
	RemoteID       string `gorm:"type:varchar(255);index" json:"remoteId,omitempty"`
	InviteCode     string `gorm:"type:varchar(64)" json:"inviteCode,omitempty"`
	Status         string `gorm:"type:varchar(32);index" json:"status"`
	UpstreamStatus string `gorm:"type:varchar(64)" json:"upstreamStatus,omitempty"`
	GlobalStatus   string `gorm:"type:varchar(64)" json:"globalStatus,omitempty"`
	CreationMethod string `gorm:"type:varchar(64)" json:"creationMethod,omitempty"`

	UpstreamCreatedAt *time.Time `gorm:"index" json:"upstreamCreatedAt,omitempty"`
	UpstreamUpdatedAt *time.Time `gorm:"index" json:"updatedAt,omitempty"`

	Pickup   Stop `gorm:"embedded;embeddedPrefix:pickup_" json:"pickup"`
	Delivery Stop `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery"`

	CarrierExternalID string `gorm:"type:varchar(255);index" json:"carrierExternalId,omitempty"`
	CarrierName       string `gorm:"type:varchar(255)" json:"carrierName,omitempty"`
	CarrierTaxID      string `gorm:"type:varchar(64)" json:"carrierTaxId,omitempty"`

	Pricing Pricing `gorm:"embedded;embeddedPrefix:pricing_" json:"pricing"`

	EstimatedDistance *float64 `json:"estimatedDistance,omitempty"`
	CarbonFootprint   *float64 `json:"carbonFootprint,omitempty"`

	TrackingID        string         `gorm:"type:varchar(255)" json:"trackingId,omitempty"`
	ParentTransportID string         `gorm:"type:varchar(255)" json:"parentTransportId,omitempty"`
	Tags              datatypes.JSON `json:"tags,omitempty"`
	Cargo             datatypes.JSON `json:"cargo,omitempty"`
	Documents         datatypes.JSON `json:"documents,omitempty"`
}

// TableName specifies the table name
func (Transport) TableName() string {
	return "dl_transports"
}

// HasCarrier reports whether a carrier is assigned
func (t *Transport) HasCarrier() bool {
	return t.CarrierExternalID != ""
}
