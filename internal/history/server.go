package history

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// NewHandler exposes a Client over the JSON API that HTTPClient speaks
func NewHandler(svc Client, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/history", h.listSessions)
	mux.HandleFunc("GET /api/chat/session/{id}", h.getSession)
	mux.HandleFunc("POST /api/chat/message", h.sendMessage)
	mux.HandleFunc("DELETE /api/chat/session/{id}", h.deleteSession)
	return mux
}

type handler struct {
	svc    Client
	logger *slog.Logger
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context())
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	h.ok(w, sessions)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	messages, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	h.ok(w, sessionPayload{SessionID: id, Messages: messages})
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.write(w, http.StatusBadRequest, envelope{Error: "invalid request body"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		h.write(w, http.StatusBadRequest, envelope{Error: "message is required"})
		return
	}

	result, err := h.svc.SendMessage(r.Context(), req.Message, req.SessionID)
	if err != nil {
		h.fail(w, "send", err)
		return
	}
	h.ok(w, result)
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, "delete", err)
		return
	}
	h.ok(w, nil)
}

func (h *handler) ok(w http.ResponseWriter, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.fail(w, "encode", err)
		return
	}
	h.write(w, http.StatusOK, envelope{Success: true, Data: raw})
}

func (h *handler) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	if errors.Is(err, ErrNotFound) {
		status = http.StatusNotFound
		msg = "session not found"
	}
	h.logger.Error("history request failed", "op", op, "error", err)
	h.write(w, status, envelope{Error: msg})
}

func (h *handler) write(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}
