package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	chiv5 "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/facereg/internal/domain"
	healthuc "github.com/kailas-cloud/facereg/internal/usecase/health"
	verificationuc "github.com/kailas-cloud/facereg/internal/usecase/verification"
)

const defaultMaxBodyBytes = 10 << 20

// Server exposes the verification workflow over HTTP.
type Server struct {
	verification  *verificationuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	maxBodyBytes  int64
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	verification *verificationuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		verification:  verification,
		health:        health,
		logger:        logger,
		maxBodyBytes:  defaultMaxBodyBytes,
		errorHandlers: defaultErrorHandlers(),
	}
}

// WithMaxBodyBytes caps request bodies, including multipart uploads.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r chiv5.Router) {
	r.Route("/face", func(r chiv5.Router) {
		r.Post("/register", s.Register)
		r.Post("/unregister", s.Unregister)
		r.Post("/verify", s.Verify)
		r.Post("/compare", s.Compare)
		r.Get("/list", s.List)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
}

type registerRequest struct {
	UserKey   string    `json:"user_key"`
	Embedding []float32 `json:"embedding"`
}

type unregisterRequest struct {
	UserKey string `json:"user_key"`
}

type verifyRequest struct {
	Embedding []float32 `json:"embedding"`
}

type compareRequest struct {
	Embedding1 []float32 `json:"embedding1"`
	Embedding2 []float32 `json:"embedding2"`
}

type verifyData struct {
	Matched      bool    `json:"matched"`
	UserKey      string  `json:"user_key,omitempty"`
	Similarity   float64 `json:"similarity,omitempty"`
	Distance     float64 `json:"distance,omitempty"`
	NoCandidates bool    `json:"no_candidates,omitempty"`
}

type compareData struct {
	Similarity        float64 `json:"similarity"`
	FaceDistances     float64 `json:"face_distances"`
	RecognitionResult int     `json:"recognition_result"`
}

type listData struct {
	UserKeys []string `json:"user_keys"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Register handles POST /face/register.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req registerRequest
	if isMultipart(r) {
		emb, err := s.embeddingFromForm(r, "file")
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		req = registerRequest{UserKey: r.FormValue("user_key"), Embedding: emb}
	} else if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := s.verification.Register(r.Context(), TenantFromContext(r.Context()), req.UserKey, req.Embedding); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, "registered", nil)
}

// Unregister handles POST /face/unregister. Accepts JSON or form bodies.
func (s *Server) Unregister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req unregisterRequest
	if isJSON(r) {
		if !s.decodeJSON(w, r, &req) {
			return
		}
	} else {
		req.UserKey = r.FormValue("user_key")
	}

	if err := s.verification.Unregister(r.Context(), TenantFromContext(r.Context()), req.UserKey); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, "unregistered", nil)
}

// Verify handles POST /face/verify. A miss is a 200 with matched=false.
func (s *Server) Verify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req verifyRequest
	if isMultipart(r) {
		emb, err := s.embeddingFromForm(r, "file")
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		req.Embedding = emb
	} else if !s.decodeJSON(w, r, &req) {
		return
	}

	out, err := s.verification.Verify(r.Context(), TenantFromContext(r.Context()), req.Embedding)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	msg := "no match"
	switch {
	case out.Matched:
		msg = "verified"
	case out.NoCandidates:
		msg = "no registered identities"
	}
	writeOK(w, msg, verifyData{
		Matched:      out.Matched,
		UserKey:      out.Key,
		Similarity:   out.Similarity,
		Distance:     out.Distance,
		NoCandidates: out.NoCandidates,
	})
}

// Compare handles POST /face/compare.
func (s *Server) Compare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req compareRequest
	if isMultipart(r) {
		a, err := s.embeddingFromForm(r, "file1")
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		b, err := s.embeddingFromForm(r, "file2")
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		req = compareRequest{Embedding1: a, Embedding2: b}
	} else if !s.decodeJSON(w, r, &req) {
		return
	}

	c, err := s.verification.Compare(r.Context(), req.Embedding1, req.Embedding2)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	result := 0
	if c.Matched {
		result = 1
	}
	writeOK(w, "", compareData{
		Similarity:        c.Similarity,
		FaceDistances:     c.Distance,
		RecognitionResult: result,
	})
}

// List handles GET /face/list.
func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	keys, err := s.verification.List(r.Context(), TenantFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, "", listData{UserKeys: keys})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decodeJSON decodes the body into v, writing the error response itself on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
	return false
}

// embeddingFromForm reads one uploaded image and turns it into an embedding.
func (s *Server) embeddingFromForm(r *http.Request, field string) ([]float32, error) {
	if !s.verification.AcceptsImages() {
		return nil, fmt.Errorf("image upload: %w", domain.ErrNotImplemented)
	}

	f, _, err := r.FormFile(field)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fmt.Errorf("upload too large: %w", domain.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("form file %q: %v: %w", field, err, domain.ErrInvalidRequest)
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %q: %v: %w", field, err, domain.ErrInvalidRequest)
	}

	emb, err := s.verification.Extract(r.Context(), image)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return emb, nil
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(mediaType(r), "multipart/")
}

func isJSON(r *http.Request) bool {
	mt := mediaType(r)
	return mt == "" || mt == "application/json"
}
