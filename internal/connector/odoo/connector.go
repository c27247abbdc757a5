package odoo

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/datatypes"
)

// Odoo models mirrored into the lake
const (
	modelPicking  = "stock.picking"
	modelPartner  = "res.partner"
	modelVehicle  = "fleet.vehicle"
	modelEmployee = "hr.employee"
	modelMove     = "account.move"
)

var pickingStates = map[string]string{
	"draft":     models.TransportDraft,
	"waiting":   models.TransportPending,
	"confirmed": models.TransportPending,
	"assigned":  models.TransportConfirmed,
	"done":      models.TransportCompleted,
	"cancel":    models.TransportCancelled,
}

// collection describes how one entity kind is read from Odoo
type collection struct {
	model  string
	domain []interface{}
	fields []string
}

var (
	transportsCollection = collection{
		model:  modelPicking,
		domain: []interface{}{[]interface{}{"picking_type_code", "=", "outgoing"}},
		fields: []string{"name", "origin", "state", "scheduled_date", "date_done", "create_date", "write_date",
			"partner_id", "carrier_id", "carrier_tracking_ref", "location_id", "location_dest_id", "note"},
	}
	companiesCollection = collection{
		model:  modelPartner,
		domain: []interface{}{[]interface{}{"is_company", "=", true}},
		fields: []string{"name", "email", "phone", "website", "vat", "company_registry", "ref", "street", "city", "zip",
			"country_id", "partner_latitude", "partner_longitude", "supplier_rank", "customer_rank", "category_id"},
	}
	vehiclesCollection = collection{
		model: modelVehicle,
		domain: []interface{}{"|",
			[]interface{}{"category_id", "=", false},
			[]interface{}{"category_id.name", "not ilike", "trailer"}},
		fields: []string{"license_plate", "model_id", "category_id", "company_id", "vehicle_type", "description", "tag_ids"},
	}
	trailersCollection = collection{
		model:  modelVehicle,
		domain: []interface{}{[]interface{}{"category_id.name", "ilike", "trailer"}},
		fields: vehiclesCollection.fields,
	}
	driversCollection = collection{
		model:  modelEmployee,
		domain: []interface{}{[]interface{}{"job_title", "ilike", "driver"}},
		fields: []string{"name", "work_email", "mobile_phone", "work_phone", "active", "company_id"},
	}
	contactsCollection = collection{
		model: modelPartner,
		domain: []interface{}{
			[]interface{}{"is_company", "=", false},
			[]interface{}{"type", "=", "contact"}},
		fields: []string{"name", "email", "phone", "mobile", "lang", "function", "parent_id", "create_date"},
	}
	invoicesCollection = collection{
		model:  modelMove,
		domain: []interface{}{[]interface{}{"move_type", "in", []interface{}{"out_invoice", "out_refund"}}},
		fields: []string{"name", "state", "payment_state", "amount_untaxed", "amount_total", "currency_id",
			"invoice_date", "invoice_date_due", "partner_id", "company_id", "create_date"},
	}
	addressesCollection = collection{
		model:  modelPartner,
		domain: []interface{}{[]interface{}{"type", "in", []interface{}{"delivery", "other"}}},
		fields: []string{"name", "street", "city", "zip", "country_id", "partner_latitude", "partner_longitude",
			"parent_id", "type", "comment", "create_date"},
	}
)

// Connector exposes an Odoo database through connector.Connector
type Connector struct {
	client *Client
}

// NewConnector wraps an authenticated-on-demand client
func NewConnector(client *Client) *Connector {
	return &Connector{client: client}
}

// Name identifies the connector type
func (c *Connector) Name() string {
	return "odoo"
}

// APICalls returns the number of XML-RPC calls issued
func (c *Connector) APICalls() int64 {
	return c.client.limiter.Calls()
}

// orderFor translates connector ordering into an Odoo order clause
func orderFor(ordering string) string {
	switch ordering {
	case connector.OrderRecentlyUpdated:
		return "write_date desc, id desc"
	case "":
		return "id asc"
	default:
		field := strings.TrimPrefix(ordering, "-")
		if strings.HasPrefix(ordering, "-") {
			return field + " desc"
		}
		return field + " asc"
	}
}

// fetch reads one page of coll and maps every record with mapFn
func fetch[W any, T any](ctx context.Context, c *Connector, coll collection, opts connector.ListOptions, mapFn func(W, json.RawMessage) T) (*connector.Page[T], error) {
	limit := opts.PageSize
	if limit <= 0 {
		limit = 100
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}

	domain := append([]interface{}{}, coll.domain...)
	for field, value := range opts.Filters {
		domain = append(domain, []interface{}{field, "=", value})
	}

	records, err := c.client.SearchRead(ctx, coll.model, domain, coll.fields, limit, (page-1)*limit, orderFor(opts.Ordering))
	if err != nil {
		return nil, err
	}

	out := &connector.Page[T]{
		Results: make([]T, 0, len(records)),
		HasMore: len(records) == limit,
	}
	if page == 1 {
		count, err := c.client.SearchCount(ctx, coll.model, domain)
		if err != nil {
			return nil, err
		}
		out.Count = count
		out.HasMore = count > len(records)
	}

	for _, record := range records {
		var w W
		raw, err := decode(record, &w)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, mapFn(w, raw))
	}
	return out, nil
}

func meta(id int64, raw json.RawMessage) models.MirrorMeta {
	return models.MirrorMeta{
		ExternalID: strconv.FormatInt(id, 10),
		RawPayload: datatypes.JSON(raw),
	}
}

func idsJSON(ids []int64) datatypes.JSON {
	if len(ids) == 0 {
		return nil
	}
	b, _ := json.Marshal(ids)
	return b
}

// GetCounters counts outgoing pickings per state
func (c *Connector) GetCounters(ctx context.Context) (*models.Counter, error) {
	byState := map[string]interface{}{}
	total := 0
	for state := range pickingStates {
		domain := append([]interface{}{}, transportsCollection.domain...)
		domain = append(domain, []interface{}{"state", "=", state})
		n, err := c.client.SearchCount(ctx, modelPicking, domain)
		if err != nil {
			return nil, err
		}
		byState[state] = n
		total += n
	}
	byState["total"] = total

	counters := map[string]interface{}{"transports": byState}
	raw, _ := json.Marshal(counters)
	return &models.Counter{
		MirrorMeta: models.MirrorMeta{ExternalID: models.CounterExternalID, RawPayload: raw},
		Counters:   datatypes.JSONMap(counters),
	}, nil
}

// ListTransports reads outgoing pickings
func (c *Connector) ListTransports(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Transport], error) {
	return fetch(ctx, c, transportsCollection, opts, func(p picking, raw json.RawMessage) *models.Transport {
		status, ok := pickingStates[p.State.String()]
		if !ok {
			status = models.TransportPending
		}
		t := &models.Transport{
			MirrorMeta:        meta(p.ID, raw),
			SequentialID:      p.Name.String(),
			RemoteID:          p.Origin.String(),
			Status:            status,
			UpstreamStatus:    p.State.String(),
			UpstreamCreatedAt: p.CreateDate.Time(),
			UpstreamUpdatedAt: p.WriteDate.Time(),
			CarrierExternalID: p.CarrierID.Ref(),
			CarrierName:       p.CarrierID.Name,
			TrackingID:        p.CarrierTrackingRef.String(),
		}
		t.Pickup.Name = p.LocationID.Name
		t.Pickup.ScheduledAt = p.ScheduledDate.Time()
		t.Delivery.Name = p.PartnerID.Name
		t.Delivery.ContactName = p.PartnerID.Name
		t.Delivery.Instructions = p.Note.String()
		if done := p.DateDone.Time(); done != nil {
			t.Delivery.ScheduledEnd = done
		}
		return t
	})
}

// ListCompanies reads company partners
func (c *Connector) ListCompanies(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Company], error) {
	return fetch(ctx, c, companiesCollection, opts, func(p partner, raw json.RawMessage) *models.Company {
		return &models.Company{
			MirrorMeta: meta(p.ID, raw),
			RemoteID:   p.Ref.String(),
			Name:       p.Name.String(),
			LegalName:  p.Name.String(),
			TaxID:      p.CompanyRegistry.String(),
			VATNumber:  p.VAT.String(),
			Email:      p.Email.String(),
			Phone:      p.Phone.String(),
			Website:    p.Website.String(),
			Address: models.PostalAddress{
				Street:     p.Street.String(),
				City:       p.City.String(),
				PostalCode: p.Zip.String(),
				Country:    p.CountryID.Name,
				Lat:        floatPtr(p.PartnerLatitude),
				Lng:        floatPtr(p.PartnerLongitude),
			},
			IsCarrier: p.SupplierRank > 0,
			IsShipper: p.CustomerRank > 0,
			Tags:      idsJSON(p.CategoryID),
		}
	})
}

// splitModel splits "Brand/Model" display names
func splitModel(name string) (string, string) {
	brand, model, found := strings.Cut(name, "/")
	if !found {
		return "", strings.TrimSpace(name)
	}
	return strings.TrimSpace(brand), strings.TrimSpace(model)
}

// ListVehicles reads fleet vehicles that are not trailers
func (c *Connector) ListVehicles(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Vehicle], error) {
	return fetch(ctx, c, vehiclesCollection, opts, func(v fleetVehicle, raw json.RawMessage) *models.Vehicle {
		brand, model := splitModel(v.ModelID.Name)
		return &models.Vehicle{
			MirrorMeta:        meta(v.ID, raw),
			LicensePlate:      v.LicensePlate.String(),
			Type:              v.CategoryID.Name,
			Brand:             brand,
			Model:             model,
			CompanyExternalID: v.CompanyID.Ref(),
			Tags:              idsJSON(v.TagIDs),
		}
	})
}

// ListTrailers reads fleet vehicles categorised as trailers
func (c *Connector) ListTrailers(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Trailer], error) {
	return fetch(ctx, c, trailersCollection, opts, func(v fleetVehicle, raw json.RawMessage) *models.Trailer {
		return &models.Trailer{
			MirrorMeta:        meta(v.ID, raw),
			LicensePlate:      v.LicensePlate.String(),
			Type:              v.CategoryID.Name,
			CompanyExternalID: v.CompanyID.Ref(),
			Tags:              idsJSON(v.TagIDs),
		}
	})
}

// ListDrivers reads employees whose job title mentions driver
func (c *Connector) ListDrivers(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Driver], error) {
	return fetch(ctx, c, driversCollection, opts, func(e employee, raw json.RawMessage) *models.Driver {
		first, last, _ := strings.Cut(strings.TrimSpace(e.Name.String()), " ")
		phone := e.MobilePhone.String()
		if phone == "" {
			phone = e.WorkPhone.String()
		}
		return &models.Driver{
			MirrorMeta:        meta(e.ID, raw),
			FirstName:         first,
			LastName:          last,
			Email:             e.WorkEmail.String(),
			Phone:             phone,
			IsActive:          e.Active == nil || *e.Active,
			CarrierExternalID: e.CompanyID.Ref(),
		}
	})
}

// ListContacts reads individual contact partners
func (c *Connector) ListContacts(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Contact], error) {
	return fetch(ctx, c, contactsCollection, opts, func(p partner, raw json.RawMessage) *models.Contact {
		first, last, _ := strings.Cut(strings.TrimSpace(p.Name.String()), " ")
		phone := p.Phone.String()
		if phone == "" {
			phone = p.Mobile.String()
		}
		var jobs datatypes.JSON
		if fn := p.Function.String(); fn != "" {
			jobs, _ = json.Marshal([]string{fn})
		}
		return &models.Contact{
			MirrorMeta:        meta(p.ID, raw),
			FirstName:         first,
			LastName:          last,
			Email:             p.Email.String(),
			Phone:             phone,
			Language:          p.Lang.String(),
			CompanyExternalID: p.ParentID.Ref(),
			CompanyName:       p.ParentID.Name,
			Jobs:              jobs,
			UpstreamCreatedAt: p.CreateDate.Time(),
		}
	})
}

// ListInvoices reads customer invoices and refunds
func (c *Connector) ListInvoices(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Invoice], error) {
	return fetch(ctx, c, invoicesCollection, opts, func(m move, raw json.RawMessage) *models.Invoice {
		status := m.State.String()
		if m.PaymentState.String() == "paid" {
			status = "paid"
		}
		return &models.Invoice{
			MirrorMeta:         meta(m.ID, raw),
			InvoiceNumber:      m.Name.String(),
			Status:             status,
			TotalTaxFree:       floatPtr(m.AmountUntaxed),
			TotalWithTax:       floatPtr(m.AmountTotal),
			Currency:           m.CurrencyID.Name,
			IssueDate:          m.InvoiceDate.Time(),
			DueDate:            m.InvoiceDateDue.Time(),
			DebtorExternalID:   m.PartnerID.Ref(),
			DebtorName:         m.PartnerID.Name,
			CreditorExternalID: m.CompanyID.Ref(),
			CreditorName:       m.CompanyID.Name,
			UpstreamCreatedAt:  m.CreateDate.Time(),
		}
	})
}

// ListAddresses reads delivery and other address partners
func (c *Connector) ListAddresses(ctx context.Context, opts connector.ListOptions) (*connector.Page[*models.Address], error) {
	return fetch(ctx, c, addressesCollection, opts, func(p partner, raw json.RawMessage) *models.Address {
		return &models.Address{
			MirrorMeta: meta(p.ID, raw),
			PostalAddress: models.PostalAddress{
				Name:       p.Name.String(),
				Street:     p.Street.String(),
				City:       p.City.String(),
				PostalCode: p.Zip.String(),
				Country:    p.CountryID.Name,
				Lat:        floatPtr(p.PartnerLatitude),
				Lng:        floatPtr(p.PartnerLongitude),
			},
			Instructions:      p.Comment.String(),
			IsDestination:     p.Type.String() == "delivery",
			CompanyExternalID: p.ParentID.Ref(),
			CompanyName:       p.ParentID.Name,
			UpstreamCreatedAt: p.CreateDate.Time(),
		}
	})
}

var _ connector.Connector = (*Connector)(nil)
