package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/datalake/internal/buildinfo"
	"github.com/xelth-com/datalake/internal/middleware"
	"github.com/xelth-com/datalake/internal/reader"
	datasync "github.com/xelth-com/datalake/internal/sync"
	"github.com/xelth-com/datalake/internal/websocket"
	"gorm.io/gorm"
)

// Options wires the router
type Options struct {
	DB       *gorm.DB
	Manager  *datasync.Manager
	Reader   *reader.Reader
	Hub      *websocket.Hub     // optional, enables /ws/events
	Gatherer prometheus.Gatherer // optional, enables /metrics
	Logger   logrus.FieldLogger
}

// Router wraps the mux router and the data lake services
type Router struct {
	*mux.Router
	db      *gorm.DB
	manager *datasync.Manager
	reader  *reader.Reader
	hub     *websocket.Hub
	log     logrus.FieldLogger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	r := &Router{
		Router:  mux.NewRouter(),
		db:      opts.DB,
		manager: opts.Manager,
		reader:  opts.Reader,
		hub:     opts.Hub,
		log:     opts.Logger.WithField("component", "http"),
	}

	r.Use(middleware.Recover(r.log), middleware.RequestLogger(r.log))

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	if opts.Hub != nil {
		r.HandleFunc("/ws/events", func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWs(opts.Hub, w, req)
		})
	}

	api := r.PathPrefix("/api/datalake").Subrouter()
	api.HandleFunc("/status", r.getStatus).Methods("GET")
	api.HandleFunc("/connections", r.listConnections).Methods("GET")

	// Sync control
	conn := api.PathPrefix("/connections/{connection}").Subrouter()
	conn.HandleFunc("/stats", r.getStats).Methods("GET")
	conn.HandleFunc("/freshness", r.getFreshness).Methods("GET")
	conn.HandleFunc("/sync/{tier}", r.triggerSync).Methods("POST")
	conn.HandleFunc("/pause", r.pause).Methods("POST")
	conn.HandleFunc("/resume", r.resume).Methods("POST")

	// Mirrored data
	conn.HandleFunc("/counters", r.getCounters).Methods("GET")
	conn.HandleFunc("/transports", r.listTransports).Methods("GET")
	conn.HandleFunc("/transports/stats", r.transportStats).Methods("GET")
	conn.HandleFunc("/transports/to-plan", r.transportsToPlan).Methods("GET")
	conn.HandleFunc("/transports/search", r.searchTransports).Methods("GET")
	conn.HandleFunc("/transports/{id}", r.getTransport).Methods("GET")
	conn.HandleFunc("/carriers", r.listCarriers).Methods("GET")
	conn.HandleFunc("/carriers/near", r.carriersNear).Methods("GET")
	conn.HandleFunc("/companies/stats", r.companyStats).Methods("GET")
	conn.HandleFunc("/companies/{id}", r.getCompany).Methods("GET")

	return r
}

// healthCheck reports whether the database answers
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	status, code := "ok", http.StatusOK
	if sqlDB, err := r.db.DB(); err != nil || sqlDB.PingContext(req.Context()) != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]string{
		"status":   status,
		"database": status,
	})
}

// getStatus returns build info and a one-line summary per connection
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	clients := 0
	if r.hub != nil {
		clients = r.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "running",
		"commit":           buildinfo.CommitHash,
		"buildTime":        buildinfo.BuildTime,
		"startedAt":        buildinfo.StartTime,
		"connections":      r.summaries(),
		"websocketClients": clients,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
