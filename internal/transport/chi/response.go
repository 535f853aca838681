package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/facereg/internal/domain"
)

// Code is the application status carried in every response envelope.
type Code int

// Envelope codes. Zero is success.
const (
	CodeOK             Code = 0
	CodeInternal       Code = 1
	CodeBadRequest     Code = 1010
	CodeUnauthorized   Code = 1011
	CodeInvalidImage   Code = 1020
	CodeRejected       Code = 1030
	CodeNotFound       Code = 1040
	CodeRateLimited    Code = 1050
	CodeProviderError  Code = 1060
	CodeNotImplemented Code = 1070
	CodePersistence    Code = 1080
)

// Envelope wraps every response body.
type Envelope struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Code: CodeOK, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, code Code, message string) {
	writeJSON(w, status, Envelope{Code: code, Message: message})
}

// clientSentinels are the errors whose text is safe to return to callers.
var clientSentinels = []error{
	domain.ErrAlreadyRegistered,
	domain.ErrDuplicatePerson,
	domain.ErrNotFound,
	domain.ErrVectorDimMismatch,
	domain.ErrInvalidEmbedding,
	domain.ErrInvalidRequest,
	domain.ErrNoFace,
	domain.ErrMultipleFaces,
	domain.ErrRateLimited,
	domain.ErrEmbeddingProviderError,
	domain.ErrNotImplemented,
	domain.ErrPersistence,
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range clientSentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code Code) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// persistenceHandler reports a failed flush. The mutation itself was applied
// in memory, which the response states explicitly.
func persistenceHandler(w http.ResponseWriter, err error, msg string) bool {
	var pe *domain.PersistenceError
	if !errors.As(err, &pe) {
		return false
	}
	writeJSON(w, http.StatusInternalServerError, Envelope{
		Code:    CodePersistence,
		Message: msg,
		Data:    map[string]any{"applied": pe.Op == "flush"},
	})
	return true
}

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		persistenceHandler,
		sentinelHandler(domain.ErrAlreadyRegistered, http.StatusConflict, CodeRejected),
		sentinelHandler(domain.ErrDuplicatePerson, http.StatusConflict, CodeRejected),
		sentinelHandler(domain.ErrNoFace, http.StatusUnprocessableEntity, CodeRejected),
		sentinelHandler(domain.ErrMultipleFaces, http.StatusUnprocessableEntity, CodeRejected),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrInvalidEmbedding, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented),
	}
}
