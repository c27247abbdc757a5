package odoo

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// OdooString is a custom string type that handles Odoo's dynamic typing.
// Odoo returns `false` (boolean) for empty text fields instead of an empty string.
type OdooString string

// UnmarshalJSON handles dynamic typing from Odoo
func (os *OdooString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*os = OdooString(s)
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*os = ""
		return nil
	}

	if string(data) == "null" {
		*os = ""
		return nil
	}

	return errors.New("OdooString: cannot unmarshal value into string")
}

// String returns native string value
func (os OdooString) String() string {
	return string(os)
}

// Time parses an Odoo datetime ("2006-01-02 15:04:05", UTC) or date
func (os OdooString) Time() *time.Time {
	if os == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, string(os), time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

// Many2One is an Odoo relational value: [id, "display name"] or false
type Many2One struct {
	ID   int64
	Name string
}

// UnmarshalJSON accepts [id, name], a bare id, or false
func (m *Many2One) UnmarshalJSON(data []byte) error {
	var pair []interface{}
	if err := json.Unmarshal(data, &pair); err == nil {
		*m = Many2One{}
		if len(pair) > 0 {
			if id, ok := pair[0].(float64); ok {
				m.ID = int64(id)
			}
		}
		if len(pair) > 1 {
			if name, ok := pair[1].(string); ok {
				m.Name = name
			}
		}
		return nil
	}

	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		*m = Many2One{ID: id}
		return nil
	}

	// false or null
	*m = Many2One{}
	return nil
}

// Ref returns the id as an external reference, "" when unset
func (m Many2One) Ref() string {
	if m.ID == 0 {
		return ""
	}
	return strconv.FormatInt(m.ID, 10)
}

func floatPtr(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}

type picking struct {
	ID                 int64      `json:"id"`
	Name               OdooString `json:"name"`
	Origin             OdooString `json:"origin"`
	State              OdooString `json:"state"`
	ScheduledDate      OdooString `json:"scheduled_date"`
	DateDone           OdooString `json:"date_done"`
	CreateDate         OdooString `json:"create_date"`
	WriteDate          OdooString `json:"write_date"`
	PartnerID          Many2One   `json:"partner_id"`
	CarrierID          Many2One   `json:"carrier_id"`
	CarrierTrackingRef OdooString `json:"carrier_tracking_ref"`
	LocationID         Many2One   `json:"location_id"`
	LocationDestID     Many2One   `json:"location_dest_id"`
	Note               OdooString `json:"note"`
}

type partner struct {
	ID               int64      `json:"id"`
	Name             OdooString `json:"name"`
	Email            OdooString `json:"email"`
	Phone            OdooString `json:"phone"`
	Mobile           OdooString `json:"mobile"`
	Website          OdooString `json:"website"`
	VAT              OdooString `json:"vat"`
	CompanyRegistry  OdooString `json:"company_registry"`
	Ref              OdooString `json:"ref"`
	Street           OdooString `json:"street"`
	City             OdooString `json:"city"`
	Zip              OdooString `json:"zip"`
	CountryID        Many2One   `json:"country_id"`
	PartnerLatitude  float64    `json:"partner_latitude"`
	PartnerLongitude float64    `json:"partner_longitude"`
	ParentID         Many2One   `json:"parent_id"`
	Type             OdooString `json:"type"`
	Lang             OdooString `json:"lang"`
	Function         OdooString `json:"function"`
	Comment          OdooString `json:"comment"`
	SupplierRank     int        `json:"supplier_rank"`
	CustomerRank     int        `json:"customer_rank"`
	CategoryID       []int64    `json:"category_id"`
	CreateDate       OdooString `json:"create_date"`
}

type fleetVehicle struct {
	ID           int64      `json:"id"`
	LicensePlate OdooString `json:"license_plate"`
	ModelID      Many2One   `json:"model_id"`
	CategoryID   Many2One   `json:"category_id"`
	CompanyID    Many2One   `json:"company_id"`
	VehicleType  OdooString `json:"vehicle_type"`
	Description  OdooString `json:"description"`
	TagIDs       []int64    `json:"tag_ids"`
}

type employee struct {
	ID          int64      `json:"id"`
	Name        OdooString `json:"name"`
	WorkEmail   OdooString `json:"work_email"`
	MobilePhone OdooString `json:"mobile_phone"`
	WorkPhone   OdooString `json:"work_phone"`
	Active      *bool      `json:"active"`
	CompanyID   Many2One   `json:"company_id"`
}

type move struct {
	ID             int64      `json:"id"`
	Name           OdooString `json:"name"`
	State          OdooString `json:"state"`
	PaymentState   OdooString `json:"payment_state"`
	AmountUntaxed  float64    `json:"amount_untaxed"`
	AmountTotal    float64    `json:"amount_total"`
	CurrencyID     Many2One   `json:"currency_id"`
	InvoiceDate    OdooString `json:"invoice_date"`
	InvoiceDateDue OdooString `json:"invoice_date_due"`
	PartnerID      Many2One   `json:"partner_id"`
	CompanyID      Many2One   `json:"company_id"`
	CreateDate     OdooString `json:"create_date"`
}
