package models

import (
	"time"

	"gorm.io/datatypes"
)

// Contact mirrors an upstream person attached to a company
type Contact struct {
	MirrorMeta `gorm:"embedded"`

	RemoteID          string         `gorm:"type:varchar(255)" json:"remoteId,omitempty"`
	FirstName         string         `gorm:"type:varchar(128)" json:"firstName,omitempty"`
	LastName          string         `gorm:"type:varchar(128)" json:"lastName,omitempty"`
	Email             string         `gorm:"type:varchar(255);index" json:"email,omitempty"`
	Phone             string         `gorm:"type:varchar(64)" json:"phone,omitempty"`
	Fax               string         `gorm:"type:varchar(64)" json:"fax,omitempty"`
	Language          string         `gorm:"type:varchar(16)" json:"language,omitempty"`
	CompanyExternalID string         `gorm:"type:varchar(255);index" json:"companyExternalId,omitempty"`
	CompanyName       string         `gorm:"type:varchar(255)" json:"companyName,omitempty"`
	Jobs              datatypes.JSON `json:"jobs,omitempty"`
	UpstreamCreatedAt *time.Time     `json:"upstreamCreatedAt,omitempty"`
}

// TableName specifies the table name
func (Contact) TableName() string {
	return "dl_contacts"
}

// Invoice mirrors an upstream invoice
type Invoice struct {
	MirrorMeta `gorm:"embedded"`

	InvoiceNumber      string         `gorm:"type:varchar(128);index" json:"invoiceNumber"`
	Status             string         `gorm:"type:varchar(32);index" json:"status"`
	TotalTaxFree       *float64       `json:"totalTaxFree,omitempty"`
	TotalWithTax       *float64       `json:"totalWithTax,omitempty"`
	Currency           string         `gorm:"type:varchar(8)" json:"currency,omitempty"`
	IssueDate          *time.Time     `json:"issueDate,omitempty"`
	DueDate            *time.Time     `json:"dueDate,omitempty"`
	PaidAt             *time.Time     `json:"paidAt,omitempty"`
	DebtorExternalID   string         `gorm:"type:varchar(255);index" json:"debtorExternalId,omitempty"`
	DebtorName         string         `gorm:"type:varchar(255)" json:"debtorName,omitempty"`
	CreditorExternalID string         `gorm:"type:varchar(255)" json:"creditorExternalId,omitempty"`
	CreditorName       string         `gorm:"type:varchar(255)" json:"creditorName,omitempty"`
	Lines              datatypes.JSON `json:"lines,omitempty"`
	FileURL            string         `gorm:"type:varchar(1024)" json:"fileUrl,omitempty"`
	UpstreamCreatedAt  *time.Time     `json:"upstreamCreatedAt,omitempty"`
}

// TableName specifies the table name
func (Invoice) TableName() string {
	return "dl_invoices"
}

// Address mirrors an upstream address-book entry
type Address struct {
	MirrorMeta    `gorm:"embedded"`
	PostalAddress `gorm:"embedded"`

	RemoteID          string     `gorm:"type:varchar(255)" json:"remoteId,omitempty"`
	Radius            *float64   `json:"radius,omitempty"`
	Instructions      string     `gorm:"type:text" json:"instructions,omitempty"`
	IsCarrier         bool       `json:"isCarrier"`
	IsShipper         bool       `json:"isShipper"`
	IsOrigin          bool       `json:"isOrigin"`
	IsDestination     bool       `json:"isDestination"`
	CompanyExternalID string     `gorm:"type:varchar(255);index" json:"companyExternalId,omitempty"`
	CompanyName       string     `gorm:"type:varchar(255)" json:"companyName,omitempty"`
	UpstreamCreatedAt *time.Time `json:"upstreamCreatedAt,omitempty"`
}

// TableName specifies the table name
func (Address) TableName() string {
	return "dl_addresses"
}

// Counter holds the upstream live counters of a connection (one row)
type Counter struct {
	MirrorMeta `gorm:"embedded"`

	Counters datatypes.JSONMap `json:"counters"`
}

// CounterExternalID is the fixed external id of the counters row
const CounterExternalID = "counters"

// TableName specifies the table name
func (Counter) TableName() string {
	return "dl_counters"
}
