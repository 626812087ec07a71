package handler

import (
	"net/http"

	"github.com/chatrelay/internal/group"
	"github.com/chatrelay/internal/ws"
)

// BootstrapHandler exposes the registries' snapshots over HTTP so a client can
// render its initial UI before (or without) opening a WebSocket.
type BootstrapHandler struct {
	hub    *ws.Hub
	groups *group.Registry
}

func NewBootstrapHandler(hub *ws.Hub, groups *group.Registry) *BootstrapHandler {
	return &BootstrapHandler{hub: hub, groups: groups}
}

// GetStatuses replies with the point-in-time presence snapshot.
func (h *BootstrapHandler) GetStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"statuses": h.hub.Statuses(),
		"profiles": h.hub.Avatars(),
	})
}

// GetGroups replies with all groups and their member sets.
func (h *BootstrapHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.groups.Snapshot())
}
