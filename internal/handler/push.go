package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chatrelay/internal/push"
)

type PushHandler struct {
	svc *push.Service
}

func NewPushHandler(svc *push.Service) *PushHandler {
	return &PushHandler{svc: svc}
}

type subscribeRequest struct {
	Username     string            `json:"username"`
	Subscription push.Subscription `json:"subscription"`
}

// Subscribe saves a browser push subscription for a user.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Subscription.Endpoint == "" ||
		req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "username and subscription (endpoint, keys.p256dh, keys.auth) required")
		return
	}
	if err := h.svc.Subscribe(r.Context(), req.Username, req.Subscription); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe removes a subscription by endpoint.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "username and endpoint required")
		return
	}
	if err := h.svc.Unsubscribe(r.Context(), req.Username, req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VAPIDPublic serves the public key for browser subscription.
func (h *PushHandler) VAPIDPublic(w http.ResponseWriter, r *http.Request) {
	key := h.svc.VAPIDPublicKey()
	if key == "" {
		http.Error(w, "push not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(key))
}
