package models

import "gorm.io/datatypes"

// Company mirrors an upstream company (carrier, shipper or both)
type Company struct {
	MirrorMeta `gorm:"embedded"`

	RemoteID   string `gorm:"type:varchar(255)" json:"remoteId,omitempty"`
	Name       string `gorm:"type:varchar(255);index" json:"name"`
	LegalName  string `gorm:"type:varchar(255)" json:"legalName,omitempty"`
	TaxID      string `gorm:"type:varchar(64);index" json:"taxId,omitempty"` // SIRET or company registry
	Siren      string `gorm:"type:varchar(32)" json:"siren,omitempty"`
	VATNumber  string `gorm:"type:varchar(64);index" json:"vatNumber,omitempty"`
	Email      string `gorm:"type:varchar(255)" json:"email,omitempty"`
	Phone      string `gorm:"type:varchar(64)" json:"phone,omitempty"`
	Website    string `gorm:"type:varchar(255)" json:"website,omitempty"`
	LegalForm  string `gorm:"type:varchar(64)" json:"legalForm,omitempty"`

	Address PostalAddress `gorm:"embedded;embeddedPrefix:address_" json:"address"`

	IsCarrier   bool           `json:"isCarrier"`
	IsShipper   bool           `json:"isShipper"`
	IsVerified  bool           `json:"isVerified"`
	AccountType string         `gorm:"type:varchar(64)" json:"accountType,omitempty"`
	Tags        datatypes.JSON `json:"tags,omitempty"`
}

// TableName specifies the table name
func (Company) TableName() string {
	return "dl_companies"
}
