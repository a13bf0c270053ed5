package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// BaseHandler carries the response plumbing shared by all HTTP handlers.
type BaseHandler struct {
	Logger *zap.Logger
}

// RespondJSON writes data as a JSON body with the given status code.
func (h *BaseHandler) RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// The status line is already sent; an encode failure can only be logged.
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("encoding response body", zap.Error(err))
	}
}

// RespondError writes the standard error envelope {"error": message}.
func (h *BaseHandler) RespondError(w http.ResponseWriter, status int, message string) {
	h.RespondJSON(w, status, map[string]string{"error": message})
}
