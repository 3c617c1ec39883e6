package httpmw

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name         string
		config       SecurityHeadersConfig
		useTLS       bool
		expectedHSTS bool
		expectedCSP  string
	}{
		{
			name:        "default over HTTP",
			config:      DefaultSecurityHeadersConfig(),
			useTLS:      false,
			expectedCSP: "default-src 'none'",
		},
		{
			name:         "default over HTTPS sets HSTS",
			config:       DefaultSecurityHeadersConfig(),
			useTLS:       true,
			expectedHSTS: true,
			expectedCSP:  "default-src 'none'",
		},
		{
			name: "custom CSP",
			config: SecurityHeadersConfig{
				ContentSecurityPolicy: "default-src 'self'",
			},
			expectedCSP: "default-src 'self'",
		},
		{
			name:   "empty CSP is not set",
			config: SecurityHeadersConfig{},
		},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "test/1.0")
		w.Header().Set("X-Powered-By", "test")
		w.WriteHeader(http.StatusOK)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := SecurityHeaders(tt.config)(handler)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.useTLS {
				req.TLS = &tls.ConnectionState{}
			}
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, tt.expectedCSP, rec.Header().Get("Content-Security-Policy"))
			if tt.expectedHSTS {
				assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
			} else {
				assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
			}
			assert.Empty(t, rec.Header().Get("Server"))
			assert.Empty(t, rec.Header().Get("X-Powered-By"))
		})
	}
}

func TestSecureHeadersPreservesResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	})

	wrapped := SecureHeaders()(handler)
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
