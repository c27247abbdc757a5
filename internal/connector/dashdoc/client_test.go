package dashdoc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/datalake/internal/connector"
	"github.com/xelth-com/datalake/internal/models"
)

const transportPage = `{
  "count": 2,
  "next": "https://example.test/api/v4/transports/?page=2",
  "results": [
    {
      "uid": "t-1",
      "sequential_id": 1042,
      "status": "on_loading_site",
      "global_status": "ongoing",
      "created": "2024-03-01T08:00:00Z",
      "updated": "2024-03-02T10:30:00Z",
      "pricing_total_price": "1250.50",
      "agreed_price_total": null,
      "currency": "",
      "deliveries": [{
        "tracking_id": "TRK1",
        "origin": {
          "address": {"name": "Depot", "city": "Lyon", "postcode": "69000", "country": "FR", "latitude": 45.76, "longitude": 4.83,
                      "company": {"pk": 7, "name": "Shipper SA", "phone_number": "+33 1"}},
          "slots": [{"start": "2024-03-03T07:00:00Z", "end": "2024-03-03T09:00:00Z"}]
        },
        "destination": {"address": {"city": "Paris", "latitude": 48.85, "longitude": 2.35}},
        "loads": [{"description": "pallets", "quantity": 10}]
      }],
      "carrier_address": {"company": {"pk": 99, "name": "Fast Trucks", "trade_number": "12345678900011"}},
      "parent_transport": {"uid": "parent-1"}
    },
    {"uid": "t-2", "status": "mystery"}
  ]
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	return NewClient(Config{
		BaseURL:    srv.URL,
		Token:      "secret",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Logger:     logger,
	})
}

func TestListTransportsMapsRecords(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transports/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "-updated", r.URL.Query().Get("ordering"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		w.Write([]byte(transportPage))
	}))

	page, err := client.ListTransports(context.Background(), connector.ListOptions{Page: 1, PageSize: 100, Ordering: connector.OrderRecentlyUpdated})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Count)
	assert.True(t, page.HasMore)
	require.Len(t, page.Results, 2)

	tr := page.Results[0]
	assert.Equal(t, "t-1", tr.ExternalID)
	assert.Equal(t, "1042", tr.SequentialID)
	assert.Equal(t, models.TransportInProgress, tr.Status)
	assert.Equal(t, "on_loading_site", tr.UpstreamStatus)
	require.NotNil(t, tr.Pricing.TotalPrice)
	assert.InDelta(t, 1250.50, *tr.Pricing.TotalPrice, 0.001)
	assert.Nil(t, tr.Pricing.AgreedPrice)
	assert.Equal(t, "EUR", tr.Pricing.Currency)
	assert.Equal(t, "Lyon", tr.Pickup.City)
	assert.Equal(t, "Shipper SA", tr.Pickup.ContactName)
	require.NotNil(t, tr.Pickup.Lat)
	assert.InDelta(t, 45.76, *tr.Pickup.Lat, 0.0001)
	require.NotNil(t, tr.Pickup.ScheduledAt)
	assert.Equal(t, 7, tr.Pickup.ScheduledAt.Hour())
	assert.Equal(t, "Paris", tr.Delivery.City)
	assert.Equal(t, "99", tr.CarrierExternalID)
	assert.Equal(t, "Fast Trucks", tr.CarrierName)
	assert.Equal(t, "parent-1", tr.ParentTransportID)
	assert.Equal(t, "TRK1", tr.TrackingID)
	assert.JSONEq(t, `[{"description": "pallets", "quantity": 10}]`, string(tr.Cargo))
	assert.Contains(t, string(tr.RawPayload), `"global_status": "ongoing"`)

	assert.Equal(t, models.TransportPending, page.Results[1].Status)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]string{
		"created":            models.TransportDraft,
		"unassigned":         models.TransportPending,
		"assigned":           models.TransportConfirmed,
		"confirmed":          models.TransportConfirmed,
		"loading_complete":   models.TransportInProgress,
		"unloading_complete": models.TransportInProgress,
		"done":               models.TransportCompleted,
		"declined":           models.TransportCancelled,
		"":                   models.TransportPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), in)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"transports": {"total": 4}}`))
	}))

	counters, err := client.GetCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(3), client.APICalls())
	assert.Equal(t, models.CounterExternalID, counters.ExternalID)
	assert.Contains(t, counters.Counters, "transports")
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.ListCompanies(context.Background(), connector.ListOptions{Page: 1})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 4, apiErr.Attempts())
	assert.Equal(t, int32(4), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "Invalid token."}`))
	}))

	_, err := client.ListVehicles(context.Background(), connector.ListOptions{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, 1, apiErr.Attempts())
	assert.Contains(t, err.Error(), "Invalid token.")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompanyAndDriverMapping(t *testing.T) {
	c := mapCompany(company{
		PK:             []byte(`12`),
		Name:           "Fast Trucks",
		TradeNumber:    "12345678900011",
		VATNumber:      "FR123",
		PrimaryAddress: &address{City: "Lille", Latitude: ptr(50.63), Longitude: ptr(3.06)},
		IsCarrier:      true,
	}, []byte(`{}`))
	assert.Equal(t, "12", c.ExternalID)
	assert.Equal(t, "12345678900011", c.TaxID)
	assert.Equal(t, "Lille", c.Address.City)
	assert.True(t, c.IsCarrier)

	inactive := false
	driver := mapDriver(trucker{PK: []byte(`"d-1"`), IsActive: &inactive, DrivingLicenseDeadline: "2025-06-30"}, []byte(`{}`))
	assert.Equal(t, "d-1", driver.ExternalID)
	assert.False(t, driver.IsActive)
	require.NotNil(t, driver.DrivingLicenseDeadline)
	assert.Equal(t, time.June, driver.DrivingLicenseDeadline.Month())
}

func ptr(f float64) *float64 { return &f }
