package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	datasync "github.com/xelth-com/datalake/internal/sync"
)

type connectionSummary struct {
	OrganizationID string `json:"organizationId"`
	ConnectionID   string `json:"connectionId"`
	Connector      string `json:"connector"`
	IsRunning      bool   `json:"isRunning"`
	IsPaused       bool   `json:"isPaused"`
}

func (r *Router) summaries() []connectionSummary {
	list := r.manager.List()
	out := make([]connectionSummary, 0, len(list))
	for _, o := range list {
		out = append(out, connectionSummary{
			OrganizationID: o.OrganizationID(),
			ConnectionID:   o.ConnectionID(),
			Connector:      o.ConnectorName(),
			IsRunning:      o.IsRunning(),
			IsPaused:       o.IsPaused(),
		})
	}
	return out
}

// orchestrator resolves the {connection} path variable, answering 404 itself
func (r *Router) orchestrator(w http.ResponseWriter, req *http.Request) (*datasync.Orchestrator, bool) {
	id := mux.Vars(req)["connection"]
	o, ok := r.manager.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Unknown connection: "+id)
		return nil, false
	}
	return o, true
}

// listConnections returns every configured connection
func (r *Router) listConnections(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.summaries())
}

// getStats returns run state, metrics and collection sizes of a connection
func (r *Router) getStats(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	stats, err := o.GetStats(req.Context())
	if err != nil {
		r.log.WithError(err).Error("get stats")
		respondError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// getFreshness reports how recent every mirrored collection is
func (r *Router) getFreshness(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	out, err := r.reader.Freshness(req.Context(), o.ConnectionID())
	if err != nil {
		r.log.WithError(err).Error("freshness")
		respondError(w, http.StatusInternalServerError, "Failed to compute freshness")
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// triggerSync runs a tier now. The run is asynchronous (202) unless
// ?wait=true, in which case the tier result is returned.
func (r *Router) triggerSync(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	tier, err := datasync.ParseTier(mux.Vars(req)["tier"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wait, _ := strconv.ParseBool(req.URL.Query().Get("wait"))
	if !wait {
		if err := o.TriggerManualSyncAsync(tier); err != nil {
			respondSyncError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"tier":   string(tier),
		})
		return
	}

	result, err := o.TriggerManualSync(req.Context(), tier)
	if err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func respondSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, datasync.ErrTierInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, datasync.ErrUnknownTier):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// pause suspends scheduled syncs of a connection
func (r *Router) pause(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request")
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "paused via API"
	}

	if err := o.Pause(req.Context(), body.Reason); err != nil {
		r.log.WithError(err).Error("pause")
		respondError(w, http.StatusInternalServerError, "Failed to pause")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"isPaused": true, "reason": body.Reason})
}

// resume re-enables scheduled syncs of a connection
func (r *Router) resume(w http.ResponseWriter, req *http.Request) {
	o, ok := r.orchestrator(w, req)
	if !ok {
		return
	}
	if err := o.Resume(req.Context()); err != nil {
		r.log.WithError(err).Error("resume")
		respondError(w, http.StatusInternalServerError, "Failed to resume")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"isPaused": false})
}
