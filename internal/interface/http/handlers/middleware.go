package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth checks a shared admin key, given either in plain text or as a
// bcrypt hash.
type APIKeyAuth struct {
	headerName string
	key        []byte
	hash       []byte

	// verified holds the last key that matched hash, so bcrypt runs once
	// per distinct key instead of once per request.
	mu       sync.Mutex
	verified []byte
}

// NewAPIKeyAuth creates an authenticator. An empty key rejects every request.
func NewAPIKeyAuth(headerName, key string) *APIKeyAuth {
	return &APIKeyAuth{headerName: headerName, key: []byte(key)}
}

// NewAPIKeyAuthHash creates an authenticator that checks keys against a
// bcrypt hash.
func NewAPIKeyAuthHash(headerName, hash string) (*APIKeyAuth, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("admin key hash: %w", err)
	}
	return &APIKeyAuth{headerName: headerName, hash: []byte(hash)}, nil
}

// IsValid checks an API key. Plain keys are compared in constant time.
func (a *APIKeyAuth) IsValid(key string) bool {
	if key == "" {
		return false
	}
	if len(a.hash) > 0 {
		return a.matchesHash([]byte(key))
	}
	if len(a.key) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), a.key) == 1
}

func (a *APIKeyAuth) matchesHash(key []byte) bool {
	a.mu.Lock()
	last := a.verified
	a.mu.Unlock()
	if last != nil && subtle.ConstantTimeCompare(key, last) == 1 {
		return true
	}

	if bcrypt.CompareHashAndPassword(a.hash, key) != nil {
		return false
	}
	a.mu.Lock()
	a.verified = key
	a.mu.Unlock()
	return true
}

// Middleware returns an HTTP middleware that checks for a valid API key in
// the configured header or an Authorization: Bearer header.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.headerName)
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		switch {
		case key == "":
			writeAuthError(w, "missing_api_key", "API key is required")
		case !a.IsValid(key):
			writeAuthError(w, "invalid_api_key", "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"` + code + `","message":"` + message + `"}}` + "\n"))
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CONTROL MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// NoCacheMiddleware prevents caching. Status cards change on every save.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte(`{"success":false,"error":{"code":"payload_too_large","message":"Request body too large"}}` + "\n"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain chains middleware; the first one is the outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ChainHandler chains middleware and wraps a final handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}
