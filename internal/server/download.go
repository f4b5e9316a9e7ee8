package server

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shareonair/internal/logging"
)

// handleDownload streams the bytes of a file share. Downloads are not
// counted as views.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	code := chi.URLParam(r, "code")

	d, err := s.manager.Download(r.Context(), code)
	if err != nil {
		status, msg := statusFor(err, downloadMessages)
		if status == http.StatusInternalServerError {
			log.Error("download_failed", zap.String("code", code), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}
	defer func() { _ = d.Body.Close() }()

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.FormatInt(d.Share.FileSize, 10))
	h.Set("Content-Disposition", contentDisposition(d.Share.FileName))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, d.Body)
	s.metrics.RecordDownloadStream(n, err)
	if err != nil {
		// Headers are gone; the client sees a short body. State is untouched.
		log.Warn("download_stream_failed",
			zap.String("code", d.Share.Code),
			zap.Int64("sent", n),
			zap.Int64("size", d.Share.FileSize),
			zap.Error(err))
	}
}

// contentDisposition builds an attachment header; non-ASCII names are
// encoded per RFC 2231.
func contentDisposition(name string) string {
	v := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if v == "" {
		return "attachment"
	}
	return v
}
