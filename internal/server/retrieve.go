package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shareonair/internal/logging"
	"shareonair/internal/share"
)

type retrieveResponse struct {
	Success     bool       `json:"success"`
	Type        share.Kind `json:"type"`
	Content     string     `json:"content,omitempty"`
	FileName    string     `json:"fileName,omitempty"`
	FileSize    int64      `json:"fileSize,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	Views       int        `json:"views"`
	MaxViews    int        `json:"maxViews"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	sh, err := s.manager.Retrieve(r.Context(), code)
	if err != nil {
		status, msg := statusFor(err, retrieveMessages)
		if status == http.StatusInternalServerError {
			logging.FromContext(r.Context()).Error("retrieve_failed", zap.String("code", code), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	resp := retrieveResponse{
		Success:   true,
		Type:      sh.Kind,
		Views:     sh.Views,
		MaxViews:  sh.MaxViews,
		CreatedAt: sh.CreatedAt,
		ExpiresAt: sh.ExpiresAt,
	}
	switch sh.Kind {
	case share.KindText:
		resp.Content = sh.Content
	case share.KindFile:
		resp.FileName = sh.FileName
		resp.FileSize = sh.FileSize
		resp.DownloadURL = s.routePrefix(r) + "/download/" + sh.Code
	}
	writeJSON(w, http.StatusOK, resp)
}

// routePrefix returns the base path when the request came in through it,
// so links point back at the same mount.
func (s *Server) routePrefix(r *http.Request) string {
	if s.cfg.BasePath != "" && strings.HasPrefix(r.URL.Path, s.cfg.BasePath+"/") {
		return s.cfg.BasePath
	}
	return ""
}
