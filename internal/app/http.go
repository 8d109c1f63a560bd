package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nyaymitra/client/internal/export"
	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
	"nyaymitra/client/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	maxUpload  int64
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	maxUpload := service.cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, maxUpload: maxUpload}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Ready(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.URL.Path == "/api/upload" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.service.UploadSession())
		case http.MethodPost:
			s.handleUpload(w, r)
		case http.MethodDelete:
			if err := s.service.ResetUpload(); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, s.service.UploadSession())
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		writeJSON(w, http.StatusOK, s.service.SearchState())
		return
	}

	if r.Method == http.MethodPost && (r.URL.Path == "/api/search/query" || r.URL.Path == "/api/search/voice") {
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if r.URL.Path == "/api/search/voice" {
			writeJSON(w, http.StatusAccepted, s.service.VoiceQuery(body.Text))
			return
		}
		writeJSON(w, http.StatusAccepted, s.service.Query(body.Text))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/search/flush" {
		flushed := s.service.FlushSearch()
		writeJSON(w, http.StatusOK, map[string]any{"flushed": flushed, "search": s.service.SearchState()})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/search/listen" {
		transcript, err := s.service.Listen(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"transcript": transcript, "search": s.service.SearchState()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/rights" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		query := r.URL.Query().Get("query")
		writeJSON(w, http.StatusOK, map[string]any{
			"query":   query,
			"results": s.service.Rights(query, limit),
		})
		return
	}

	if r.URL.Path == "/api/speech" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.service.SpeechStatus())
		case http.MethodPost:
			var body struct {
				Text     string `json:"text"`
				Language string `json:"language"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			var lang remote.Language
			if strings.TrimSpace(body.Language) != "" {
				lang = remote.ParseLanguage(body.Language)
			}
			if err := s.service.Speak(body.Text, lang); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, s.service.SpeechStatus())
		case http.MethodDelete:
			s.service.StopSpeech()
			writeJSON(w, http.StatusOK, s.service.SpeechStatus())
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.URL.Path == "/api/export" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.service.ExportJob())
		case http.MethodPost:
			if lang := r.URL.Query().Get("lang"); lang != "" {
				s.service.SetLanguage(remote.ParseLanguage(lang))
			}
			artifact, err := s.service.Export(r.Context())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeAttachment(w, artifact)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/export/summary" {
		var lang remote.Language
		if v := r.URL.Query().Get("lang"); v != "" {
			lang = remote.ParseLanguage(v)
		}
		artifact, err := s.service.SummaryText(lang)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeAttachment(w, artifact)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/help" {
		lat, latErr := parseCoordinate(r.URL.Query().Get("lat"))
		lon, lonErr := parseCoordinate(r.URL.Query().Get("lon"))
		if latErr != nil || lonErr != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "lat and lon must be numbers", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": LocalHelpURL(lat, lon)})
		return
	}

	parts := splitPath(r.URL.Path)

	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "api" && parts[1] == "reports" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		items, err := s.service.Reports(r.Context(), limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "reports" {
		report, err := s.service.Report(r.Context(), parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/report" {
		if lang := r.URL.Query().Get("lang"); lang != "" {
			s.service.SetLanguage(remote.ParseLanguage(lang))
		}
		html, err := s.service.ReportHTML(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, html)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(s.maxUpload + (1 << 20)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fault.Message(fault.ErrInvalidFile), nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected a multipart form with a file field", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read file", nil)
		return
	}

	file := remote.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	if err := s.service.SubmitDocument(r.Context(), file); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.service.UploadSession())
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

// writeAttachment sends artifact as a download.
func writeAttachment(w http.ResponseWriter, artifact export.Artifact) {
	w.Header().Set("Content-Disposition", "attachment; filename=\""+artifact.Name+"\"")
	w.Header().Set("Content-Type", artifact.MimeType)
	if artifact.Location != "" {
		w.Header().Set("X-Export-Location", artifact.Location)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func parseCoordinate(value string) (*float64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, fault.ErrAlreadyInProgress):
		return http.StatusConflict, "IN_PROGRESS", fault.Message(err), nil
	case errors.Is(err, export.ErrNothingToExport):
		return http.StatusConflict, "NO_REPORT", "Upload a document first", nil
	case errors.Is(err, fault.ErrInvalidFile):
		return http.StatusUnprocessableEntity, "INVALID_FILE", fault.Message(err), nil
	case errors.Is(err, fault.ErrUnsupportedCapability):
		return http.StatusNotImplemented, "UNSUPPORTED", fault.Message(err), nil
	case fault.IsRateLimited(err):
		return http.StatusTooManyRequests, "RATE_LIMITED", fault.Message(err), nil
	case errors.Is(err, fault.ErrCapture):
		return http.StatusInternalServerError, "EXPORT_FAILED", fault.Message(err), nil
	case errors.Is(err, fault.ErrNetwork), errors.Is(err, fault.ErrRemote):
		return http.StatusBadGateway, "UPSTREAM_ERROR", fault.Message(err), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
