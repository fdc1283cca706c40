package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bluecore-io/bluecore/internal/preference"
	"github.com/bluecore-io/bluecore/internal/profile"
	"github.com/bluecore-io/bluecore/internal/storage"
)

// preferenceOutcomeChannel is the WebSocket channel preference results
// are broadcast on.
const preferenceOutcomeChannel = "preference.outcome"

// preferencesRequest is the body for PUT /devices/{address}/preferences.
// Empty fields leave the stored role unchanged.
type preferencesRequest struct {
	Output string `json:"output"`
	Duplex string `json:"duplex"`
}

// handleGetPreferences returns the stored preferred-profile bundle.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeInternalError(w, "storage not available")
		return
	}
	address := chi.URLParam(r, "address")

	prefs, err := s.store.PreferredProfiles(r.Context(), address)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":     address,
		"preferences": prefs,
		"pending":     s.prefs != nil && s.prefs.Pending(address),
	})
}

// handleSetPreferences starts a preferred-profile negotiation on the
// dispatch loop.
//
// The negotiator confirms asynchronously: when the request resolves
// inside the call (no delta, storage failure, target not active) the
// outcome is returned directly, otherwise the handler answers 202 and
// the outcome is broadcast on the preference.outcome channel.
func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeInternalError(w, "negotiator not available")
		return
	}
	address := chi.URLParam(r, "address")
	if _, err := s.devices.Get(address); err != nil {
		writeNotFound(w, "device not found: "+address)
		return
	}

	var req preferencesRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	prefs, ok := parsePreferences(req)
	if !ok {
		writeBadRequest(w, "unknown profile in preference bundle")
		return
	}

	type result struct {
		prefs  storage.Preferences
		status preference.Status
	}
	var (
		immediate *result
		reqErr    error
	)
	err := s.loop.Call(r.Context(), func() {
		inRequest := true
		reqErr = s.prefs.Request(address, prefs, func(addr string, got storage.Preferences, status preference.Status) {
			if inRequest {
				// Resolved synchronously: answer in the response body.
				immediate = &result{prefs: got, status: status}
				return
			}
			// Deferred confirmation: deliver over the event feed. The
			// callback runs on the loop, after this handler returned.
			if s.hub != nil {
				s.hub.Broadcast(preferenceOutcomeChannel, map[string]any{
					"address":     addr,
					"preferences": got,
					"status":      status.String(),
				})
			}
		})
		inRequest = false
	})
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if reqErr != nil {
		if errors.Is(reqErr, preference.ErrAnotherActiveRequest) {
			writeConflict(w, reqErr.Error())
			return
		}
		writeInternalError(w, reqErr.Error())
		return
	}

	if immediate != nil {
		status := http.StatusOK
		if immediate.status != preference.StatusSuccess {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{
			"address":     address,
			"preferences": immediate.prefs,
			"status":      immediate.status.String(),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"address": address,
		"pending": true,
	})
}

// parsePreferences validates the request bundle.
func parsePreferences(req preferencesRequest) (storage.Preferences, bool) {
	var prefs storage.Preferences
	if req.Output != "" {
		id := profile.ID(req.Output)
		if !id.Valid() {
			return prefs, false
		}
		prefs.Output = id
	}
	if req.Duplex != "" {
		id := profile.ID(req.Duplex)
		if !id.Valid() {
			return prefs, false
		}
		prefs.Duplex = id
	}
	return prefs, true
}
