package web

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/logging"
)

// ErrorResponse is the JSON body of every error response. Error and Message
// carry the same user-facing text; Error keeps the {"error": ...} shape
// clients already parse.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err with the request id and writes its user-facing
// mapping from core.MapError. The technical error text never reaches the
// client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func isMissingTable(err error) bool {
	return core.MapError(err).Code == "TBL001"
}
