package api

import (
	"net/http"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/profile"
)

// slotView is the wire rendering of one active-device slot.
type slotView struct {
	Address string `json:"address,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// activeView aggregates both direction slots and the active group.
type activeView struct {
	Output  slotView `json:"output"`
	Input   slotView `json:"input"`
	GroupID int      `json:"group_id"`
}

// setActiveRequest is the body for PUT /active. Profiles is an optional
// explicit preference; an empty address releases the route.
type setActiveRequest struct {
	Address  string   `json:"address"`
	Profiles []string `json:"profiles"`
}

// appliedRequest is the body for POST /active/applied, the audio
// framework's confirmation that a routing change took effect.
type appliedRequest struct {
	Address string `json:"address"`
}

// handleGetActive returns the current routing decision.
func (s *Server) handleGetActive(w http.ResponseWriter, _ *http.Request) {
	if s.active == nil {
		writeInternalError(w, "arbiter not available")
		return
	}
	writeJSON(w, http.StatusOK, s.renderActive())
}

func (s *Server) renderActive() activeView {
	var view activeView
	view.GroupID = s.active.ActiveGroup()
	if addr, p := s.active.ActiveDevice(device.DirectionOutput); addr != "" {
		view.Output = slotView{Address: addr, Profile: string(p)}
	}
	if addr, p := s.active.ActiveDevice(device.DirectionInput); addr != "" {
		view.Input = slotView{Address: addr, Profile: string(p)}
	}
	return view
}

// handleSetActive runs an active-device change on the dispatch loop.
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	if s.active == nil {
		writeInternalError(w, "arbiter not available")
		return
	}

	var req setActiveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Address != "" {
		if _, err := s.devices.Get(req.Address); err != nil {
			writeNotFound(w, "device not found: "+req.Address)
			return
		}
	}

	var mask profile.Mask
	for _, raw := range req.Profiles {
		id := profile.ID(raw)
		if !id.Valid() {
			writeBadRequest(w, "unknown profile: "+raw)
			return
		}
		mask |= id.Bit()
	}

	var view activeView
	err := s.loop.Call(r.Context(), func() {
		s.active.SetActiveDevice(req.Address, mask)
		view = s.renderActive()
	})
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleClearActive releases the current route.
func (s *Server) handleClearActive(w http.ResponseWriter, r *http.Request) {
	if s.active == nil {
		writeInternalError(w, "arbiter not available")
		return
	}

	var view activeView
	err := s.loop.Call(r.Context(), func() {
		s.active.SetActiveDevice("", profile.MaskNone)
		view = s.renderActive()
	})
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleActiveApplied acknowledges a routing change towards any pending
// preferred-profile negotiation.
func (s *Server) handleActiveApplied(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeInternalError(w, "negotiator not available")
		return
	}

	var req appliedRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Address == "" {
		writeBadRequest(w, "address is required")
		return
	}

	var ackErr error
	err := s.loop.Call(r.Context(), func() {
		ackErr = s.prefs.NotifyActiveDeviceChangeApplied(req.Address)
	})
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if ackErr != nil {
		writeNotFound(w, ackErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": req.Address})
}
