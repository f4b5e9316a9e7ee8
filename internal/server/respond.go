package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"shareonair/internal/share"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// messages holds the client facing text for each error class of a route.
type messages struct {
	invalidCode string
	notFound    string
	expired     string
	quota       string
	internal    string
}

var (
	retrieveMessages = messages{
		invalidCode: "Invalid code format. Code must be 6 characters long",
		notFound:    "Code not found or has expired",
		expired:     "Code has expired",
		quota:       "Maximum views reached for this content",
		internal:    "Retrieval failed due to server error",
	}
	downloadMessages = messages{
		invalidCode: "Invalid code format",
		notFound:    "File not found",
		expired:     "File has expired",
		quota:       "Maximum views reached for this content",
		internal:    "Download failed due to server error",
	}
)

// statusFor maps a share error to its HTTP status and message. Storage
// details never reach the client.
func statusFor(err error, m messages) (int, string) {
	var verr *share.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.Is(err, share.ErrInvalidCodeFormat):
		return http.StatusBadRequest, m.invalidCode
	case errors.Is(err, share.ErrNotFound):
		return http.StatusNotFound, m.notFound
	case errors.Is(err, share.ErrExpired):
		return http.StatusGone, m.expired
	case errors.Is(err, share.ErrQuotaExhausted):
		return http.StatusGone, m.quota
	default:
		return http.StatusInternalServerError, m.internal
	}
}
