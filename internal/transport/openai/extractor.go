package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/facereg/internal/domain"
	"github.com/kailas-cloud/facereg/internal/metrics"
)

// Extractor turns face images into embeddings through an OpenAI-compatible
// embeddings endpoint. The image is sent as a base64 data URL; the service
// returns one embedding per detected face.
type Extractor struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

var _ domain.FaceExtractor = (*Extractor)(nil)

// Config holds the face embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewExtractor creates an OpenAI-compatible face extractor.
func NewExtractor(cfg *Config) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Extractor{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     logger,
	}
}

// Extract implements domain.FaceExtractor. Exactly one face must be present.
func (e *Extractor) Extract(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image: %w", domain.ErrInvalidRequest)
	}

	req := openai.EmbeddingRequest{
		Input:          []string{dataURL(image)},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	model := string(e.model)
	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	metrics.ExtractorRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ExtractorRequestsTotal.WithLabelValues(model, "error").Inc()
		e.logger.Warn("Face extraction failed", zap.String("model", model), zap.Error(err))
		return nil, parseAPIError(err)
	}

	switch len(resp.Data) {
	case 0:
		metrics.ExtractorRequestsTotal.WithLabelValues(model, "no_face").Inc()
		return nil, domain.ErrNoFace
	case 1:
	default:
		metrics.ExtractorRequestsTotal.WithLabelValues(model, "multiple_faces").Inc()
		return nil, fmt.Errorf("%d faces: %w", len(resp.Data), domain.ErrMultipleFaces)
	}

	emb := resp.Data[0].Embedding
	if err := domain.ValidateEmbedding(emb, e.dimensions); err != nil {
		metrics.ExtractorRequestsTotal.WithLabelValues(model, "error").Inc()
		return nil, fmt.Errorf("provider returned %w: %w", err, domain.ErrEmbeddingProviderError)
	}

	metrics.ExtractorRequestsTotal.WithLabelValues(model, "success").Inc()
	return emb, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Extractor) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func dataURL(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingProviderError for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("face API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("face API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("face request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
