package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/plan"
)

func TestRequireFeature(t *testing.T) {
	catalog := plan.NewCatalog(nil)

	tests := []struct {
		name     string
		user     *model.User
		feature  plan.Feature
		wantCode int
	}{
		{"free has history", &model.User{ID: 1, Plan: "free"}, plan.FeatureHistory, response.CodeSuccess},
		{"free lacks premium ai", &model.User{ID: 1, Plan: "free"}, plan.FeaturePremiumAI, response.CodePermissionDenied},
		{"premium has premium ai", &model.User{ID: 2, Plan: "premium"}, plan.FeaturePremiumAI, response.CodeSuccess},
		{"unauthenticated", nil, plan.FeatureHistory, response.CodeAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			if tt.user != nil {
				router.Use(withUser(tt.user))
			}
			router.Use(RequireFeature(catalog, tt.feature))
			router.GET("/test", func(c *gin.Context) { response.Success(c, nil) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, tt.wantCode, parseResponse(t, w).Code)
		})
	}
}
