package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name       string
		serverTok  string
		header     string
		wantStatus int
	}{
		{"matching token passes", "sekrit", "Bearer sekrit", http.StatusOK},
		{"wrong token refused", "sekrit", "Bearer wrong", http.StatusUnauthorized},
		{"missing header refused", "sekrit", "", http.StatusUnauthorized},
		{"non-bearer scheme refused", "sekrit", "Basic c2Vrcml0", http.StatusUnauthorized},
		{"unconfigured server refuses everything", "", "Bearer sekrit", http.StatusUnauthorized},
		{"unconfigured server refuses empty too", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AdminAuth(tt.serverTok, testLogger())(okHandler())

			r := httptest.NewRequest(http.MethodGet, "/admin/licenses", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer lower-scheme")
	assert.Equal(t, "lower-scheme", bearerToken(r))

	r.Header.Set("Authorization", "Bearer")
	assert.Empty(t, bearerToken(r))
}
