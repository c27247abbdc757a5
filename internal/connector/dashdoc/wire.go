package dashdoc

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// listResponse is the DRF pagination envelope
type listResponse struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

type companyRef struct {
	PK          json.RawMessage `json:"pk"`
	Name        string          `json:"name"`
	TradeNumber string          `json:"trade_number"`
	VATNumber   string          `json:"vat_number"`
	PhoneNumber string          `json:"phone_number"`
}

type address struct {
	PK            json.RawMessage `json:"pk"`
	RemoteID      string          `json:"remote_id"`
	Name          string          `json:"name"`
	Address       string          `json:"address"`
	City          string          `json:"city"`
	Postcode      string          `json:"postcode"`
	Country       string          `json:"country"`
	Latitude      *float64        `json:"latitude"`
	Longitude     *float64        `json:"longitude"`
	Radius        *float64        `json:"radius"`
	Instructions  string          `json:"instructions"`
	IsCarrier     bool            `json:"is_carrier"`
	IsShipper     bool            `json:"is_shipper"`
	IsOrigin      bool            `json:"is_origin"`
	IsDestination bool            `json:"is_destination"`
	Company       *companyRef     `json:"company"`
	Created       string          `json:"created"`
}

type slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type site struct {
	Address      *address `json:"address"`
	Slots        []slot   `json:"slots"`
	Instructions string   `json:"instructions"`
	Reference    string   `json:"reference"`
}

type delivery struct {
	TrackingID  string          `json:"tracking_id"`
	Origin      *site           `json:"origin"`
	Destination *site           `json:"destination"`
	Loads       json.RawMessage `json:"loads"`
}

type transport struct {
	UID                string          `json:"uid"`
	SequentialID       json.RawMessage `json:"sequential_id"`
	InviteCode         string          `json:"invite_code"`
	RemoteID           string          `json:"remote_id"`
	Status             string          `json:"status"`
	GlobalStatus       string          `json:"global_status"`
	CreationMethod     string          `json:"creation_method"`
	Created            string          `json:"created"`
	Updated            string          `json:"updated"`
	Deliveries         []delivery      `json:"deliveries"`
	CarrierAddress     *address        `json:"carrier_address"`
	PricingTotalPrice  json.RawMessage `json:"pricing_total_price"`
	AgreedPriceTotal   json.RawMessage `json:"agreed_price_total"`
	InvoicedPriceTotal json.RawMessage `json:"invoiced_price_total"`
	Currency           string          `json:"currency"`
	EstimatedDistance  json.RawMessage `json:"estimated_distance"`
	CarbonFootprint    json.RawMessage `json:"carbon_footprint"`
	Documents          json.RawMessage `json:"documents"`
	Tags               json.RawMessage `json:"tags"`
	ParentTransport    *struct {
		UID string `json:"uid"`
	} `json:"parent_transport"`
}

type company struct {
	PK             json.RawMessage `json:"pk"`
	RemoteID       string          `json:"remote_id"`
	Name           string          `json:"name"`
	TradeNumber    string          `json:"trade_number"`
	Siren          string          `json:"siren"`
	VATNumber      string          `json:"vat_number"`
	PhoneNumber    string          `json:"phone_number"`
	Email          string          `json:"email"`
	Website        string          `json:"website"`
	PrimaryAddress *address        `json:"primary_address"`
	IsVerified     bool            `json:"is_verified"`
	IsCarrier      bool            `json:"is_carrier"`
	IsShipper      bool            `json:"is_shipper"`
	AccountType    string          `json:"account_type"`
	Tags           json.RawMessage `json:"tags"`
	Country        string          `json:"country"`
	LegalForm      string          `json:"legal_form"`
}

type contact struct {
	UID         string          `json:"uid"`
	RemoteID    string          `json:"remote_id"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Email       string          `json:"email"`
	PhoneNumber string          `json:"phone_number"`
	FaxNumber   string          `json:"fax_number"`
	Language    string          `json:"language"`
	Company     *companyRef     `json:"company"`
	Jobs        json.RawMessage `json:"jobs"`
	Created     string          `json:"created"`
}

type vehicle struct {
	PK             json.RawMessage `json:"pk"`
	UID            string          `json:"uid"`
	RemoteID       string          `json:"remote_id"`
	LicensePlate   string          `json:"license_plate"`
	Type           string          `json:"type"`
	Brand          string          `json:"brand"`
	Model          string          `json:"model"`
	Payload        json.RawMessage `json:"payload"`
	Volume         json.RawMessage `json:"volume"`
	HasLiftgate    bool            `json:"has_liftgate"`
	IsRefrigerated bool            `json:"is_refrigerated"`
	IsADR          bool            `json:"is_adr"`
	FleetNumber    string          `json:"fleet_number"`
	Tags           json.RawMessage `json:"tags"`
	Company        *companyRef     `json:"company"`
}

type trucker struct {
	PK       json.RawMessage `json:"pk"`
	RemoteID string          `json:"remote_id"`
	User     *struct {
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
	} `json:"user"`
	DrivingLicense         string      `json:"driving_license"`
	DrivingLicenseDeadline string      `json:"driving_license_deadline"`
	ADRLicense             string      `json:"adr_license"`
	ADRLicenseDeadline     string      `json:"adr_license_deadline"`
	DriverCard             string      `json:"driver_card"`
	DriverCardDeadline     string      `json:"driver_card_deadline"`
	IsActive               *bool       `json:"is_active"`
	Carrier                *companyRef `json:"carrier"`
}

type invoice struct {
	UID                string          `json:"uid"`
	DocumentNumber     string          `json:"document_number"`
	Status             string          `json:"status"`
	TotalTaxFreeAmount json.RawMessage `json:"total_tax_free_amount"`
	TotalTaxAmount     json.RawMessage `json:"total_tax_amount"`
	Currency           string          `json:"currency"`
	IssueDate          string          `json:"issue_date"`
	DueDate            string          `json:"due_date"`
	PaidAt             string          `json:"paid_at"`
	Debtor             *companyRef     `json:"debtor"`
	Creditor           *companyRef     `json:"creditor"`
	Lines              json.RawMessage `json:"lines"`
	FileURL            string          `json:"file_url"`
	Created            string          `json:"created"`
}

// idString renders a JSON number or string id; null yields ""
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// number parses a JSON number or numeric string ("123.40"); anything else is nil
func number(raw json.RawMessage) *float64 {
	s := idString(raw)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// jsonOrNil keeps a nested raw value unless it is absent or null
func jsonOrNil(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
