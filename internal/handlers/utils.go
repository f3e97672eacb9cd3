package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/threadline/apiserver/internal/token"
	"github.com/threadline/apiserver/types"
)

type contextKey string

const (
	contextSubjectKey contextKey = "subject"
	contextUserKey    contextKey = "user"
)

// subjectFromContext returns the Subject attached by the authentication
// middleware, if any.
func subjectFromContext(ctx context.Context) (token.Subject, bool) {
	subject, ok := ctx.Value(contextSubjectKey).(token.Subject)
	return subject, ok
}

// userFromContext returns the full user record attached by the admin
// middleware, if any.
func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// Pagination is the client-side paging metadata of a listing response.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// DataResponse is the envelope for successful responses.
type DataResponse struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ErrorResponse is the envelope for all failure responses. Callers can
// branch on the HTTP status code alone.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, DataResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
