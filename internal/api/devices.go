package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/profile"
)

// deviceView is the wire rendering of one device, the descriptor plus
// the live per-profile connection states.
type deviceView struct {
	device.Device
	ProfileStates map[string]string `json:"profile_states,omitempty"`
}

// handleListDevices returns every known device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.List()
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, s.renderDevice(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns a single device by address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	d, err := s.devices.Get(address)
	if err != nil {
		writeNotFound(w, "device not found: "+address)
		return
	}
	writeJSON(w, http.StatusOK, s.renderDevice(*d))
}

// renderDevice joins the descriptor with live machine states.
func (s *Server) renderDevice(d device.Device) deviceView {
	view := deviceView{Device: d}
	if s.adapter == nil {
		return view
	}
	states := make(map[string]string)
	for _, id := range s.adapter.Profiles() {
		m := s.adapter.Profile(id)
		if m == nil {
			continue
		}
		if st := m.ConnectionState(d.Address); st != profile.StateDisconnected {
			states[string(id)] = st.String()
		}
	}
	if len(states) > 0 {
		view.ProfileStates = states
	}
	return view
}

// connectRequest is the body for connect/disconnect. An empty profile
// targets every registered profile the policy allows.
type connectRequest struct {
	Profile string `json:"profile"`
}

// handleConnectDevice issues connect requests on the dispatch loop.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	s.handleProfileAction(w, r, func(m *profile.Manager, address string) error {
		return m.Connect(address)
	})
}

// handleDisconnectDevice issues disconnect requests on the dispatch loop.
func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	s.handleProfileAction(w, r, func(m *profile.Manager, address string) error {
		err := m.Disconnect(address)
		if errors.Is(err, profile.ErrNoConnection) {
			return nil
		}
		return err
	})
}

// handleProfileAction runs a per-manager action for one profile or,
// when none is named, every registered profile.
func (s *Server) handleProfileAction(w http.ResponseWriter, r *http.Request, action func(m *profile.Manager, address string) error) {
	if s.adapter == nil {
		writeInternalError(w, "adapter not available")
		return
	}
	address := chi.URLParam(r, "address")
	if _, err := s.devices.Get(address); err != nil {
		writeNotFound(w, "device not found: "+address)
		return
	}

	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	targets := s.adapter.Profiles()
	if req.Profile != "" {
		id := profile.ID(req.Profile)
		if !id.Valid() || s.adapter.Profile(id) == nil {
			writeBadRequest(w, "unknown profile: "+req.Profile)
			return
		}
		targets = []profile.ID{id}
	}

	issued := make([]string, 0, len(targets))
	var actionErr error
	err := s.loop.Call(r.Context(), func() {
		for _, id := range targets {
			m := s.adapter.Profile(id)
			if m == nil {
				continue
			}
			err := action(m, address)
			switch {
			case err == nil:
				issued = append(issued, string(id))
			case errors.Is(err, profile.ErrPolicyForbidden),
				errors.Is(err, profile.ErrInvalidTransition):
				// Skipped profiles are normal for a broadcast action.
			case req.Profile != "":
				actionErr = err
			}
		}
	})
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if actionErr != nil {
		writeConflict(w, actionErr.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"address":  address,
		"profiles": issued,
	})
}

// policyRequest is the body for PUT /devices/{address}/policies.
type policyRequest struct {
	Profile string `json:"profile"`
	Policy  string `json:"policy"`
}

// handleGetPolicies returns the stored per-profile connection policies.
func (s *Server) handleGetPolicies(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeInternalError(w, "storage not available")
		return
	}
	address := chi.URLParam(r, "address")

	policies := make(map[string]string)
	for _, id := range profile.All() {
		p, err := s.store.ConnectionPolicy(r.Context(), address, id)
		if err != nil {
			writeInternalError(w, err.Error())
			return
		}
		policies[string(id)] = p.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":  address,
		"policies": policies,
	})
}

// handleSetPolicy stores one connection policy.
func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeInternalError(w, "storage not available")
		return
	}
	address := chi.URLParam(r, "address")

	var req policyRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id := profile.ID(req.Profile)
	if !id.Valid() {
		writeBadRequest(w, "unknown profile: "+req.Profile)
		return
	}
	policy, ok := parsePolicy(req.Policy)
	if !ok {
		writeBadRequest(w, "unknown policy: "+req.Policy)
		return
	}

	if err := s.store.SetConnectionPolicy(r.Context(), address, id, policy); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": address,
		"profile": req.Profile,
		"policy":  policy.String(),
	})
}

// parsePolicy maps a wire policy name to a Policy value.
func parsePolicy(s string) (profile.Policy, bool) {
	switch s {
	case "allowed":
		return profile.PolicyAllowed, true
	case "forbidden":
		return profile.PolicyForbidden, true
	case "unknown":
		return profile.PolicyUnknown, true
	}
	return profile.PolicyUnknown, false
}

// decodeBody decodes a JSON request body. An empty body decodes to the
// zero value.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
