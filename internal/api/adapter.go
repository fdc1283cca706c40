package api

import (
	"net/http"
)

// powerRequest is the body for POST /adapter/power.
type powerRequest struct {
	On bool `json:"on"`
}

// handleGetAdapter returns the adapter lifecycle state and registered
// profiles.
func (s *Server) handleGetAdapter(w http.ResponseWriter, _ *http.Request) {
	if s.adapter == nil {
		writeInternalError(w, "adapter not available")
		return
	}
	profiles := s.adapter.Profiles()
	names := make([]string, 0, len(profiles))
	for _, id := range profiles {
		names = append(names, string(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    s.adapter.State(),
		"profiles": names,
	})
}

// handleAdapterPower drives the adapter lifecycle machine on the
// dispatch loop.
func (s *Server) handleAdapterPower(w http.ResponseWriter, r *http.Request) {
	if s.adapter == nil {
		writeInternalError(w, "adapter not available")
		return
	}

	var req powerRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var powerErr error
	err := s.loop.Call(r.Context(), func() {
		if req.On {
			powerErr = s.adapter.TurnOn()
		} else {
			powerErr = s.adapter.TurnOff()
		}
	})
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if powerErr != nil {
		writeConflict(w, powerErr.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"state": s.adapter.State(),
	})
}

// handleStatus returns a full diagnostic snapshot: adapter state,
// devices, groups and the current routing decision in one document.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"version": s.version,
	}

	if s.adapter != nil {
		status["adapter"] = s.adapter.State()
	}

	devices := s.devices.List()
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, s.renderDevice(d))
	}
	status["devices"] = views

	groups := s.groups.List()
	groupViews := make([]groupView, 0, len(groups))
	for _, g := range groups {
		groupViews = append(groupViews, s.renderGroup(g))
	}
	status["groups"] = groupViews

	if s.active != nil {
		status["active"] = s.renderActive()
	}
	if s.hub != nil {
		status["websocket_clients"] = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, status)
}
