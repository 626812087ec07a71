package handler

import (
	"net/http"
	"strings"

	"github.com/chatrelay/internal/repository"
)

type HistoryHandler struct {
	msgRepo *repository.MessageRepository
	limit   int
}

// NewHistoryHandler serves conversation history replay. limit caps the number
// of messages per query.
func NewHistoryHandler(msgRepo *repository.MessageRepository, limit int) *HistoryHandler {
	if limit <= 0 {
		limit = 500
	}
	return &HistoryHandler{msgRepo: msgRepo, limit: limit}
}

// GetMessages replies with a conversation ordered by timestamp ascending.
// Query: either user1+user2 (direct, unordered pair) or group.
func (h *HistoryHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupName := strings.TrimSpace(q.Get("group"))
	user1 := strings.TrimSpace(q.Get("user1"))
	user2 := strings.TrimSpace(q.Get("user2"))

	limit := queryInt(r, "limit", h.limit)
	if limit <= 0 || limit > h.limit {
		limit = h.limit
	}

	switch {
	case groupName != "":
		messages, err := h.msgRepo.Group(r.Context(), groupName, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load history")
			return
		}
		writeJSON(w, http.StatusOK, messages)
	case user1 != "" && user2 != "":
		messages, err := h.msgRepo.Direct(r.Context(), user1, user2, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load history")
			return
		}
		writeJSON(w, http.StatusOK, messages)
	default:
		writeError(w, http.StatusBadRequest, "group or user1+user2 required")
	}
}
