package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/xelth-com/datalake/internal/reader"
)

// findOptions reads limit, skip and sort from the query string
func findOptions(req *http.Request) reader.FindOptions {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	skip, _ := strconv.Atoi(q.Get("skip"))
	return reader.FindOptions{Limit: limit, Skip: skip, Sort: q.Get("sort")}
}

func queryBool(req *http.Request, key string) *bool {
	v, err := strconv.ParseBool(req.URL.Query().Get(key))
	if err != nil {
		return nil
	}
	return &v
}

// respondRead maps reader errors onto HTTP statuses
func (r *Router) respondRead(w http.ResponseWriter, data interface{}, err error) {
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, data)
	case errors.Is(err, reader.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, reader.ErrInvalidSort), errors.Is(err, reader.ErrNoCoordinates):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		r.log.WithError(err).Error("read")
		respondError(w, http.StatusInternalServerError, "Failed to read mirrored data")
	}
}

// getCounters returns the live counters of a connection
func (r *Router) getCounters(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	c, err := r.reader.Counters.Get(req.Context(), o.ConnectionID())
	r.respondRead(w, c, err)
}

// listTransports pages through transports.
// Filters: status (comma separated), carrier, tag, withoutCarrier.
func (r *Router) listTransports(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	q := req.URL.Query()
	f := reader.TransportFilter{
		CarrierExternalID: q.Get("carrier"),
		Tag:               q.Get("tag"),
	}
	if s := q.Get("status"); s != "" {
		f.Statuses = strings.Split(strings.ToUpper(s), ",")
	}
	if wc := queryBool(req, "withoutCarrier"); wc != nil {
		f.WithoutCarrier = *wc
	}

	res, err := r.reader.Transports.Find(req.Context(), o.ConnectionID(), f, findOptions(req))
	r.respondRead(w, res, err)
}

func (r *Router) transportStats(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	stats, err := r.reader.Transports.GetStats(req.Context(), o.ConnectionID())
	r.respondRead(w, stats, err)
}

func (r *Router) transportsToPlan(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	res, err := r.reader.Transports.ToPlan(req.Context(), o.ConnectionID(), findOptions(req))
	r.respondRead(w, res, err)
}

func (r *Router) searchTransports(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	res, err := r.reader.Transports.Search(req.Context(), o.ConnectionID(), req.URL.Query().Get("q"), limit)
	r.respondRead(w, res, err)
}

// getTransport looks a transport up by upstream id, then by sequential id
func (r *Router) getTransport(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]
	t, err := r.reader.Transports.GetByExternalID(req.Context(), o.ConnectionID(), id)
	if errors.Is(err, reader.ErrNotFound) {
		t, err = r.reader.Transports.GetBySequentialID(req.Context(), o.ConnectionID(), id)
	}
	r.respondRead(w, t, err)
}

// listCarriers returns carrier companies; ?verified=true keeps verified ones
func (r *Router) listCarriers(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	verified := queryBool(req, "verified")
	res, err := r.reader.Companies.Carriers(req.Context(), o.ConnectionID(), verified != nil && *verified, findOptions(req))
	r.respondRead(w, res, err)
}

// carriersNear finds companies around lat/lng within km (default 50)
func (r *Router) carriersNear(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	q := req.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		respondError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	km, err := strconv.ParseFloat(q.Get("km"), 64)
	if err != nil || km <= 0 {
		km = 50
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := r.reader.Companies.FindNear(req.Context(), o.ConnectionID(), lng, lat, km, limit)
	r.respondRead(w, res, err)
}

func (r *Router) companyStats(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	stats, err := r.reader.Companies.GetStats(req.Context(), o.ConnectionID())
	r.respondRead(w, stats, err)
}

// getCompany looks a company up by upstream id, then by tax or VAT number
func (r *Router) getCompany(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]
	c, err := r.reader.Companies.GetByExternalID(req.Context(), o.ConnectionID(), id)
	if errors.Is(err, reader.ErrNotFound) {
		c, err = r.reader.Companies.GetByTaxID(req.Context(), o.ConnectionID(), id)
	}
	r.respondRead(w, c, err)
}
