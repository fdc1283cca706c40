package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bluecore-io/bluecore/internal/device"
)

// groupView is the wire rendering of one coordinated set with its
// member addresses resolved.
type groupView struct {
	device.Group
	Members []string `json:"members"`
}

// handleListGroups returns every known coordinated set.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	groups := s.groups.List()
	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, s.renderGroup(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": views,
		"count":  len(views),
	})
}

// handleGetGroup returns a single coordinated set by ID.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, "invalid group id: "+raw)
		return
	}
	g, err := s.groups.Get(id)
	if err != nil {
		writeNotFound(w, "group not found: "+raw)
		return
	}
	writeJSON(w, http.StatusOK, s.renderGroup(*g))
}

func (s *Server) renderGroup(g device.Group) groupView {
	members := s.devices.MembersOf(g.ID)
	addresses := make([]string, 0, len(members))
	for _, m := range members {
		addresses = append(addresses, m.Address)
	}
	return groupView{Group: g, Members: addresses}
}
