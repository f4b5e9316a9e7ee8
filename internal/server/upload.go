package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"shareonair/internal/logging"
	"shareonair/internal/share"
)

const (
	defaultMaxUploadBytes = 50 << 20

	// Multipart parts beyond this are spooled to temporary files.
	multipartMemory = 8 << 20

	// Room for form fields and multipart framing on top of the file.
	formOverhead = 1 << 20

	// Keeps ttlHours * time.Hour inside time.Duration. Must match the
	// lte tag on uploadForm.TTLHours.
	maxTTLHours = 24 * 365 * 10
)

type uploadForm struct {
	Type     string `json:"type" validate:"required,oneof=text file"`
	Content  string `json:"content"`
	MaxViews int    `json:"maxViews" validate:"gte=0"`
	TTLHours int    `json:"ttlHours" validate:"gte=0,lte=87600"`
}

type uploadResponse struct {
	Success   bool       `json:"success"`
	Code      string     `json:"code"`
	Type      share.Kind `json:"type"`
	Message   string     `json:"message"`
	FileName  string     `json:"fileName,omitempty"`
	FileSize  int64      `json:"fileSize,omitempty"`
	MaxViews  int        `json:"maxViews"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// httpError is a request problem detected before the share layer is called.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) *httpError {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (s *Server) tooLarge() *httpError {
	return badRequest("File too large. Maximum size is %dMB", s.cfg.MaxUploadBytes>>20)
}

type uploadedFile struct {
	file   multipart.File
	header *multipart.FileHeader
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formOverhead)

	form, upload, err := s.parseUpload(r)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if upload != nil {
		defer func() { _ = upload.file.Close() }()
	}
	if err != nil {
		var herr *httpError
		if errors.As(err, &herr) {
			writeError(w, herr.status, herr.msg)
			return
		}
		log.Warn("upload_parse_failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.validate.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	req := share.CreateRequest{
		Kind:     share.Kind(form.Type),
		Content:  form.Content,
		MaxViews: form.MaxViews,
		TTL:      time.Duration(form.TTLHours) * time.Hour,
	}
	if req.Kind == share.KindFile && upload != nil {
		req.File = upload.file
		req.FileName = upload.header.Filename
	}

	sh, err := s.manager.Create(r.Context(), req)
	if err != nil {
		var verr *share.ValidationError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, capitalize(verr.Message))
		case errors.As(err, &maxErr):
			writeError(w, http.StatusBadRequest, s.tooLarge().msg)
		case errors.Is(err, share.ErrExhaustedAttempts):
			log.Error("upload_failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Code generation conflict, please try again")
		default:
			log.Error("upload_failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Upload failed due to server error")
		}
		return
	}

	resp := uploadResponse{
		Success:   true,
		Code:      sh.Code,
		Type:      sh.Kind,
		Message:   "Text content uploaded successfully",
		MaxViews:  sh.MaxViews,
		ExpiresAt: sh.ExpiresAt,
	}
	if sh.Kind == share.KindFile {
		resp.Message = "File uploaded successfully"
		resp.FileName = sh.FileName
		resp.FileSize = sh.FileSize
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseUpload accepts multipart, urlencoded and JSON bodies.
func (s *Server) parseUpload(r *http.Request) (*uploadForm, *uploadedFile, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, badRequest("Missing or invalid Content-Type")
	}

	switch mediaType {
	case "application/json":
		var form uploadForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			if isMaxBytes(err) {
				return nil, nil, s.tooLarge()
			}
			return nil, nil, badRequest("Invalid JSON body")
		}
		return &form, nil, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			if isMaxBytes(err) {
				return nil, nil, s.tooLarge()
			}
			return nil, nil, badRequest("Invalid form body")
		}
		form, err := formFields(r)
		return form, nil, err

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if isMaxBytes(err) {
				return nil, nil, s.tooLarge()
			}
			return nil, nil, badRequest("Upload error: %v", err)
		}
		form, err := formFields(r)
		if err != nil {
			return nil, nil, err
		}

		f, hdr, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return form, nil, nil
		}
		if err != nil {
			return nil, nil, badRequest("Upload error: %v", err)
		}
		upload := &uploadedFile{file: f, header: hdr}
		if hdr.Size > s.cfg.MaxUploadBytes {
			return nil, upload, s.tooLarge()
		}
		return form, upload, nil

	default:
		return nil, nil, badRequest("Unsupported Content-Type %q", mediaType)
	}
}

func formFields(r *http.Request) (*uploadForm, error) {
	form := &uploadForm{
		Type:    r.FormValue("type"),
		Content: r.FormValue("content"),
	}
	var err error
	if form.MaxViews, err = optionalInt(r.FormValue("maxViews"), "maxViews"); err != nil {
		return nil, err
	}
	if form.TTLHours, err = optionalInt(r.FormValue("ttlHours"), "ttlHours"); err != nil {
		return nil, err
	}
	return form, nil
}

func optionalInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", field)
	}
	return n, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	switch verrs[0].Field() {
	case "Type":
		return `Invalid or missing type. Must be "text" or "file"`
	case "MaxViews":
		return "maxViews must not be negative"
	case "TTLHours":
		if verrs[0].Tag() == "lte" {
			return fmt.Sprintf("ttlHours must be at most %d", maxTTLHours)
		}
		return "ttlHours must not be negative"
	default:
		return "Invalid request"
	}
}

func isMaxBytes(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
