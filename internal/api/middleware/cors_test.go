package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/qs3c/tos_scan_server/config"
)

const frontendOrigin = "https://app.tos-scan.example.com"

func TestCORS(t *testing.T) {
	restricted := config.CORSConfig{AllowedOrigins: []string{frontendOrigin, "http://localhost:5173"}}

	tests := []struct {
		name            string
		cfg             config.CORSConfig
		method          string
		origin          string
		wantStatus      int
		wantAllowOrigin string
		wantCredentials string
	}{
		{"allowed origin", restricted, "GET", frontendOrigin, http.StatusOK, frontendOrigin, "true"},
		{"unknown origin", restricted, "GET", "https://phish.example.net", http.StatusForbidden, "", ""},
		{"same origin request", restricted, "GET", "", http.StatusOK, "", ""},
		{"preflight", restricted, "OPTIONS", frontendOrigin, http.StatusNoContent, frontendOrigin, "true"},
		{"wildcard drops credentials", config.CORSConfig{AllowedOrigins: []string{"*"}}, "GET", frontendOrigin, http.StatusOK, "*", ""},
		{"not configured", config.CORSConfig{}, "GET", frontendOrigin, http.StatusOK, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(CORS(tt.cfg))
			router.GET("/api/v1/plans", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/v1/plans", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == "OPTIONS" {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORS_PreflightAdvertisesRequestID(t *testing.T) {
	router := gin.New()
	router.Use(CORS(config.CORSConfig{AllowedOrigins: []string{frontendOrigin}}))
	router.POST("/api/v1/analyses", func(c *gin.Context) {})

	req := httptest.NewRequest("OPTIONS", "/api/v1/analyses", nil)
	req.Header.Set("Origin", frontendOrigin)
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	// 头名称会被规范化为 X-Request-Id
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), strings.ToLower(RequestIDHeader))
}
