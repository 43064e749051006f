package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"naimeta/internal/config"
	"naimeta/internal/extract"
	"naimeta/internal/logging"
	"naimeta/internal/promptmeta"
	"naimeta/internal/textutil"
)

const (
	// RequestIDHeader carries the per-request correlation ID.
	RequestIDHeader = "X-Request-ID"

	defaultFileName = "unknown.png"
	// requestSlack covers the JSON envelope around the base64 payload.
	requestSlack    = 64 << 10
	shutdownTimeout = 5 * time.Second
)

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	ImageData string `json:"image_data"`
	Filename  string `json:"filename"`
}

// ExtractResponse is returned by POST /api/extract.
type ExtractResponse struct {
	Success   bool               `json:"success"`
	Metadata  *promptmeta.Fields `json:"metadata,omitempty"`
	Source    extract.Source     `json:"source,omitempty"`
	Filename  string             `json:"filename,omitempty"`
	Error     string             `json:"error,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

// Server serves the extraction API.
type Server struct {
	bind        string
	allowOrigin string
	maxImage    int64
	extractor   *extract.Extractor
	logger      *slog.Logger

	listener net.Listener
	server   *http.Server
}

// New builds a Server from cfg. The extractor is shared across requests.
func New(cfg *config.Config, ex *extract.Extractor, logger *slog.Logger) (*Server, error) {
	if cfg == nil || ex == nil {
		return nil, errors.New("server requires config and extractor")
	}
	s := &Server{
		bind:        strings.TrimSpace(cfg.Server.Bind),
		allowOrigin: cfg.Server.AllowOrigin,
		maxImage:    cfg.MaxUploadBytes(),
		extractor:   ex,
		logger:      logging.NewComponentLogger(logger, "api-server"),
	}
	if s.allowOrigin == "" {
		s.allowOrigin = "*"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/extract", s.withRequest(s.authMiddleware(cfg.Server.APIToken, s.handleExtract)))
	mux.HandleFunc("/api/health", s.withRequest(s.handleHealth))
	mux.HandleFunc("/", s.withRequest(s.handleNotFound))

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens on the configured address and serves until ctx is cancelled
// or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed",
				logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// withRequest assigns a request ID, sets CORS headers and answers preflight
// requests.
func (s *Server) withRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		r = r.WithContext(logging.WithRequestID(r.Context(), id))

		h := w.Header()
		h.Set(RequestIDHeader, id)
		h.Set("Access-Control-Allow-Origin", s.allowOrigin)
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "3600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "not found")
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	logger := logging.WithContext(r.Context(), s.logger)

	encoded := base64.StdEncoding.EncodedLen(int(s.maxImage))
	// Wrapped base64 (MIME style, 76 columns) adds a CRLF per line.
	limit := encoded + encoded/38 + requestSlack
	body := http.MaxBytesReader(w, r.Body, int64(limit))
	var req ExtractRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("request body too large", logging.Int64("limit_bytes", tooLarge.Limit))
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON in request")
		return
	}
	if strings.TrimSpace(req.ImageData) == "" {
		s.writeError(w, r, http.StatusBadRequest, "No image_data provided")
		return
	}

	data, err := decodeImageData(req.ImageData)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "image_data is not valid base64")
		return
	}
	if int64(len(data)) > s.maxImage {
		s.writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("image exceeds %d bytes", s.maxImage))
		return
	}

	name := textutil.ClientFileName(req.Filename, defaultFileName)
	res, err := s.extractor.ExtractBytes(r.Context(), name, data)
	switch {
	case err == nil:
	case errors.Is(err, extract.ErrNotPNG):
		s.writeError(w, r, http.StatusBadRequest, "image_data is not a PNG image")
		return
	case errors.Is(err, extract.ErrNoMetadata):
		s.writeError(w, r, http.StatusNotFound, "No metadata found in alpha channel or PNG text chunks")
		return
	default:
		logging.ErrorWithContext(logger, "extraction failed", "api_extract_failed",
			logging.String(logging.FieldPath, name),
			logging.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "Processing error: "+err.Error())
		return
	}

	logger.Info("metadata extracted",
		logging.String(logging.FieldPath, name),
		logging.String("source", string(res.Source)),
		logging.Int("bytes", len(data)))
	id, _ := logging.RequestIDFromContext(r.Context())
	fields := res.Fields
	s.writeJSON(w, r, http.StatusOK, ExtractResponse{
		Success:   true,
		Metadata:  &fields,
		Source:    res.Source,
		Filename:  name,
		RequestID: id,
	})
}

// decodeImageData accepts standard or URL-safe base64, padded or not, with
// embedded line breaks or spaces, and an optional data URL prefix.
func decodeImageData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	if data, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		logging.WithContext(r.Context(), s.logger).Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	id, _ := logging.RequestIDFromContext(r.Context())
	s.writeJSON(w, r, status, ExtractResponse{Success: false, Error: message, RequestID: id})
}
