package dashdoc

import (
	"encoding/json"

	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/datatypes"
)

var statusMap = map[string]string{
	"created":            models.TransportDraft,
	"unassigned":         models.TransportPending,
	"assigned":           models.TransportConfirmed,
	"confirmed":          models.TransportConfirmed,
	"on_loading_site":    models.TransportInProgress,
	"loading_complete":   models.TransportInProgress,
	"on_unloading_site":  models.TransportInProgress,
	"unloading_complete": models.TransportInProgress,
	"done":               models.TransportCompleted,
	"cancelled":          models.TransportCancelled,
	"declined":           models.TransportCancelled,
}

// MapStatus normalizes a Dashdoc transport status; unknown values are PENDING
func MapStatus(status string) string {
	if mapped, ok := statusMap[status]; ok {
		return mapped
	}
	return models.TransportPending
}

func meta(externalID string, raw json.RawMessage) models.MirrorMeta {
	return models.MirrorMeta{
		ExternalID: externalID,
		RawPayload: datatypes.JSON(raw),
	}
}

func postal(a *address) models.PostalAddress {
	if a == nil {
		return models.PostalAddress{}
	}
	return models.PostalAddress{
		Name:       a.Name,
		Street:     a.Address,
		City:       a.City,
		PostalCode: a.Postcode,
		Country:    a.Country,
		Lat:        a.Latitude,
		Lng:        a.Longitude,
	}
}

func stop(s *site) models.Stop {
	if s == nil {
		return models.Stop{}
	}
	out := models.Stop{
		PostalAddress: postal(s.Address),
		Instructions:  s.Instructions,
		Reference:     s.Reference,
	}
	if s.Address != nil && s.Address.Company != nil {
		out.ContactName = s.Address.Company.Name
		out.ContactPhone = s.Address.Company.PhoneNumber
	}
	if len(s.Slots) > 0 {
		out.ScheduledAt = parseTime(s.Slots[0].Start)
		out.ScheduledEnd = parseTime(s.Slots[0].End)
	}
	return out
}

func mapTransport(t transport, raw json.RawMessage) *models.Transport {
	out := &models.Transport{
		MirrorMeta:        meta(t.UID, raw),
		SequentialID:      idString(t.SequentialID),
		RemoteID:          t.RemoteID,
		InviteCode:        t.InviteCode,
		Status:            MapStatus(t.Status),
		UpstreamStatus:    t.Status,
		GlobalStatus:      t.GlobalStatus,
		CreationMethod:    t.CreationMethod,
		UpstreamCreatedAt: parseTime(t.Created),
		UpstreamUpdatedAt: parseTime(t.Updated),
		Pricing: models.Pricing{
			TotalPrice:    number(t.PricingTotalPrice),
			AgreedPrice:   number(t.AgreedPriceTotal),
			InvoicedPrice: number(t.InvoicedPriceTotal),
			Currency:      t.Currency,
		},
		EstimatedDistance: number(t.EstimatedDistance),
		CarbonFootprint:   number(t.CarbonFootprint),
		Tags:              jsonOrNil(t.Tags),
		Documents:         jsonOrNil(t.Documents),
	}
	if out.Pricing.Currency == "" {
		out.Pricing.Currency = "EUR"
	}

	if len(t.Deliveries) > 0 {
		d := t.Deliveries[0]
		out.Pickup = stop(d.Origin)
		out.Delivery = stop(d.Destination)
		out.Cargo = jsonOrNil(d.Loads)
		out.TrackingID = d.TrackingID
	}

	if t.CarrierAddress != nil && t.CarrierAddress.Company != nil {
		c := t.CarrierAddress.Company
		out.CarrierExternalID = idString(c.PK)
		out.CarrierName = c.Name
		out.CarrierTaxID = c.TradeNumber
	}
	if t.ParentTransport != nil {
		out.ParentTransportID = t.ParentTransport.UID
	}
	return out
}

func mapCompany(c company, raw json.RawMessage) *models.Company {
	return &models.Company{
		MirrorMeta:  meta(idString(c.PK), raw),
		RemoteID:    c.RemoteID,
		Name:        c.Name,
		LegalName:   c.Name,
		TaxID:       c.TradeNumber,
		Siren:       c.Siren,
		VATNumber:   c.VATNumber,
		Email:       c.Email,
		Phone:       c.PhoneNumber,
		Website:     c.Website,
		LegalForm:   c.LegalForm,
		Address:     postal(c.PrimaryAddress),
		IsCarrier:   c.IsCarrier,
		IsShipper:   c.IsShipper,
		IsVerified:  c.IsVerified,
		AccountType: c.AccountType,
		Tags:        jsonOrNil(c.Tags),
	}
}

func mapContact(c contact, raw json.RawMessage) *models.Contact {
	out := &models.Contact{
		MirrorMeta:        meta(c.UID, raw),
		RemoteID:          c.RemoteID,
		FirstName:         c.FirstName,
		LastName:          c.LastName,
		Email:             c.Email,
		Phone:             c.PhoneNumber,
		Fax:               c.FaxNumber,
		Language:          c.Language,
		Jobs:              jsonOrNil(c.Jobs),
		UpstreamCreatedAt: parseTime(c.Created),
	}
	if c.Company != nil {
		out.CompanyExternalID = idString(c.Company.PK)
		out.CompanyName = c.Company.Name
	}
	return out
}

func vehicleID(pk json.RawMessage, uid string) string {
	if id := idString(pk); id != "" {
		return id
	}
	return uid
}

func mapVehicle(v vehicle, raw json.RawMessage) *models.Vehicle {
	out := &models.Vehicle{
		MirrorMeta:     meta(vehicleID(v.PK, v.UID), raw),
		RemoteID:       v.RemoteID,
		LicensePlate:   v.LicensePlate,
		Type:           v.Type,
		Brand:          v.Brand,
		Model:          v.Model,
		Payload:        number(v.Payload),
		Volume:         number(v.Volume),
		HasLiftgate:    v.HasLiftgate,
		IsRefrigerated: v.IsRefrigerated,
		IsADR:          v.IsADR,
		FleetNumber:    v.FleetNumber,
		Tags:           jsonOrNil(v.Tags),
	}
	if v.Company != nil {
		out.CompanyExternalID = idString(v.Company.PK)
	}
	return out
}

func mapTrailer(v vehicle, raw json.RawMessage) *models.Trailer {
	out := &models.Trailer{
		MirrorMeta:     meta(vehicleID(v.PK, v.UID), raw),
		RemoteID:       v.RemoteID,
		LicensePlate:   v.LicensePlate,
		Type:           v.Type,
		Payload:        number(v.Payload),
		Volume:         number(v.Volume),
		HasLiftgate:    v.HasLiftgate,
		IsRefrigerated: v.IsRefrigerated,
		FleetNumber:    v.FleetNumber,
		Tags:           jsonOrNil(v.Tags),
	}
	if v.Company != nil {
		out.CompanyExternalID = idString(v.Company.PK)
	}
	return out
}

func mapDriver(t trucker, raw json.RawMessage) *models.Driver {
	out := &models.Driver{
		MirrorMeta:             meta(idString(t.PK), raw),
		RemoteID:               t.RemoteID,
		DrivingLicense:         t.DrivingLicense,
		DrivingLicenseDeadline: parseTime(t.DrivingLicenseDeadline),
		ADRLicense:             t.ADRLicense,
		ADRLicenseDeadline:     parseTime(t.ADRLicenseDeadline),
		DriverCard:             t.DriverCard,
		DriverCardDeadline:     parseTime(t.DriverCardDeadline),
		IsActive:               t.IsActive == nil || *t.IsActive,
	}
	if t.User != nil {
		out.FirstName = t.User.FirstName
		out.LastName = t.User.LastName
		out.Email = t.User.Email
		out.Phone = t.User.PhoneNumber
	}
	if t.Carrier != nil {
		out.CarrierExternalID = idString(t.Carrier.PK)
	}
	return out
}

func mapInvoice(i invoice, raw json.RawMessage) *models.Invoice {
	out := &models.Invoice{
		MirrorMeta:        meta(i.UID, raw),
		InvoiceNumber:     i.DocumentNumber,
		Status:            i.Status,
		TotalTaxFree:      number(i.TotalTaxFreeAmount),
		TotalWithTax:      number(i.TotalTaxAmount),
		Currency:          i.Currency,
		IssueDate:         parseTime(i.IssueDate),
		DueDate:           parseTime(i.DueDate),
		PaidAt:            parseTime(i.PaidAt),
		Lines:             jsonOrNil(i.Lines),
		FileURL:           i.FileURL,
		UpstreamCreatedAt: parseTime(i.Created),
	}
	if out.Currency == "" {
		out.Currency = "EUR"
	}
	if i.Debtor != nil {
		out.DebtorExternalID = idString(i.Debtor.PK)
		out.DebtorName = i.Debtor.Name
	}
	if i.Creditor != nil {
		out.CreditorExternalID = idString(i.Creditor.PK)
		out.CreditorName = i.Creditor.Name
	}
	return out
}

func mapAddress(a address, raw json.RawMessage) *models.Address {
	out := &models.Address{
		MirrorMeta:        meta(idString(a.PK), raw),
		PostalAddress:     postal(&a),
		RemoteID:          a.RemoteID,
		Radius:            a.Radius,
		Instructions:      a.Instructions,
		IsCarrier:         a.IsCarrier,
		IsShipper:         a.IsShipper,
		IsOrigin:          a.IsOrigin,
		IsDestination:     a.IsDestination,
		UpstreamCreatedAt: parseTime(a.Created),
	}
	if a.Company != nil {
		out.CompanyExternalID = idString(a.Company.PK)
		out.CompanyName = a.Company.Name
	}
	return out
}
