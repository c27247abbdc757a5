package models

import (
	"time"

	"gorm.io/datatypes"
)

// Vehicle mirrors an upstream truck or van
type Vehicle struct {
	MirrorMeta `gorm:"embedded"`

	RemoteID          string         `gorm:"type:varchar(255)" json:"remoteId,omitempty"`
	LicensePlate      string         `gorm:"type:varchar(32);index" json:"licensePlate"`
	Type              string         `gorm:"type:varchar(64);index" json:"type,omitempty"`
	Brand             string         `gorm:"type:varchar(128)" json:"brand,omitempty"`
	Model             string         `gorm:"type:varchar(128)" json:"model,omitempty"`
	Payload           *float64       `json:"payload,omitempty"`
	Volume            *float64       `json:"volume,omitempty"`
	HasLiftgate       bool           `json:"hasLiftgate"`
	IsRefrigerated    bool           `json:"isRefrigerated"`
	IsADR             bool           `json:"isAdr"`
	FleetNumber       string         `gorm:"type:varchar(64)" json:"fleetNumber,omitempty"`
	CompanyExternalID string         `gorm:"type:varchar(255);index" json:"companyExternalId,omitempty"`
	Tags              datatypes.JSON `json:"tags,omitempty"`
}

// TableName specifies the table name
func (Vehicle) TableName() string {
	return "dl_vehicles"
}

// Trailer mirrors an upstream trailer
type Trailer struct {
	MirrorMeta `gorm:"embedded"`

	RemoteID          string         `gorm:"type:varchar(255)" json:"remoteId,omitempty"`
	LicensePlate      string         `gorm:"type:varchar(32);index" json:"licensePlate"`
	Type              string         `gorm:"type:varchar(64);index" json:"type,omitempty"`
	Payload           *float64       `json:"payload,omitempty"`
	Volume            *float64       `json:"volume,omitempty"`
	HasLiftgate       bool           `json:"hasLiftgate"`
	IsRefrigerated    bool           `json:"isRefrigerated"`
	FleetNumber       string         `gorm:"type:varchar(64)" json:"fleetNumber,omitempty"`
	CompanyExternalID string         `gorm:"type:varchar(255);index" json:"companyExternalId,omitempty"`
	Tags              datatypes.JSON `json:"tags,omitempty"`
}

// TableName specifies the table name
func (Trailer) TableName() string {
	return "dl_trailers"
}

// Driver mirrors an upstream trucker
type Driver struct {
	MirrorMeta `gorm:"embedded"`

	RemoteID               string     `gorm:"type:varchar(255)" json:"remoteId,omitempty"`
	FirstName              string     `gorm:"type:varchar(128)" json:"firstName,omitempty"`
	LastName               string     `gorm:"type:varchar(128);index" json:"lastName,omitempty"`
	Email                  string     `gorm:"type:varchar(255);index" json:"email,omitempty"`
	Phone                  string     `gorm:"type:varchar(64)" json:"phone,omitempty"`
	DrivingLicense         string     `gorm:"type:varchar(64)" json:"drivingLicense,omitempty"`
	DrivingLicenseDeadline *time.Time `json:"drivingLicenseDeadline,omitempty"`
	ADRLicense             string     `gorm:"type:varchar(64)" json:"adrLicense,omitempty"`
	ADRLicenseDeadline     *time.Time `json:"adrLicenseDeadline,omitempty"`
	DriverCard             string     `gorm:"type:varchar(64)" json:"driverCard,omitempty"`
	DriverCardDeadline     *time.Time `json:"driverCardDeadline,omitempty"`
	IsActive               bool       `json:"isActive"`
	CarrierExternalID      string     `gorm:"type:varchar(255);index" json:"carrierExternalId,omitempty"`
}

// TableName specifies the table name
func (Driver) TableName() string {
	return "dl_drivers"
}
