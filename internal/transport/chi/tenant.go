package chi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/facereg/internal/domain"
	"github.com/kailas-cloud/facereg/internal/logger"
)

// TenantResolver derives the tenant scope of a request.
type TenantResolver interface {
	Resolve(r *http.Request) (string, error)
}

// TenantResolverFunc adapts a function to TenantResolver.
type TenantResolverFunc func(r *http.Request) (string, error)

// Resolve calls f(r).
func (f TenantResolverFunc) Resolve(r *http.Request) (string, error) { return f(r) }

// RemoteAddrTenant scopes requests by the caller's IP address. Requests
// without a parseable peer address fall back to the loopback tenant.
func RemoteAddrTenant() TenantResolver {
	return TenantResolverFunc(func(r *http.Request) (string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if ip := net.ParseIP(host); ip != nil {
			return ip.String(), nil
		}
		return domain.DefaultTenant, nil
	})
}

// HeaderTenant scopes requests by a caller-supplied header, which is required.
func HeaderTenant(header string) TenantResolver {
	return TenantResolverFunc(func(r *http.Request) (string, error) {
		v := strings.TrimSpace(r.Header.Get(header))
		if v == "" {
			return "", fmt.Errorf("missing %s header: %w", header, domain.ErrInvalidRequest)
		}
		return v, nil
	})
}

// APIKeyTenant scopes requests by a fingerprint of the bearer token, so the
// key itself never reaches logs or snapshots.
func APIKeyTenant() TenantResolver {
	return TenantResolverFunc(func(r *http.Request) (string, error) {
		token, ok := bearerToken(r)
		if !ok || token == "" {
			return "", fmt.Errorf("missing bearer token: %w", domain.ErrInvalidRequest)
		}
		sum := sha256.Sum256([]byte(token))
		return "key:" + hex.EncodeToString(sum[:8]), nil
	})
}

type tenantCtxKey struct{}

// ContextWithTenant stores the tenant scope in the context.
func ContextWithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenant)
}

// TenantFromContext returns the tenant scope, or the loopback tenant when unset.
func TenantFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tenantCtxKey{}).(string); ok && t != "" {
		return t
	}
	return domain.DefaultTenant
}

// TenantMiddleware resolves the tenant once per request and stores it in the context.
func TenantMiddleware(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			tenant, err := resolver.Resolve(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, CodeBadRequest, safeDomainMessage(err))
				return
			}
			ctx := logger.With(ContextWithTenant(r.Context(), tenant), zap.String("tenant", tenant))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
