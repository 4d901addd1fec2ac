package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/testutil"
)

func userRouter(ctx *testContext, user *model.User) *gin.Engine {
	router := gin.New()
	if user != nil {
		router.Use(mockAuth(user))
	}
	router.GET("/user/profile", ctx.User.GetProfile)
	router.PUT("/user/profile", ctx.User.UpdateProfile)
	router.PUT("/user/ai-settings", ctx.User.UpdateAISettings)
	router.GET("/user/quota", ctx.User.GetQuota)
	return router
}

func TestUserHandler_GetProfile(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB, testutil.WithUsername("profileuser"))

	w := httptest.NewRecorder()
	userRouter(ctx, user).ServeHTTP(w, httptest.NewRequest("GET", "/user/profile", nil))

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "profileuser", data["username"])
	assert.Equal(t, "free", data["plan"])
	assert.Contains(t, data["features"], "history")
}

func TestUserHandler_GetProfile_Unauthorized(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	w := httptest.NewRecorder()
	userRouter(ctx, nil).ServeHTTP(w, httptest.NewRequest("GET", "/user/profile", nil))

	assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
}

func TestUserHandler_UpdateProfile(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB)
	router := userRouter(ctx, user)

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/user/profile", jsonBody(t, map[string]string{"username": "renamed"}))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
		assert.Equal(t, "renamed", resp.Data.(map[string]interface{})["username"])
	})

	t.Run("too short", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/user/profile", jsonBody(t, map[string]string{"username": "ab"}))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
	})
}

func TestUserHandler_UpdateAISettings(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB)
	router := userRouter(ctx, user)

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/user/ai-settings", jsonBody(t, map[string]interface{}{
			"preferred_model":  "gpt-4-turbo",
			"allow_premium_ai": false,
		}))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
		settings := resp.Data.(map[string]interface{})["ai_settings"].(map[string]interface{})
		assert.Equal(t, "gpt-4-turbo", settings["preferred_model"])
		assert.Equal(t, false, settings["allow_premium_ai"])
	})

	t.Run("unknown model", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/user/ai-settings", jsonBody(t, map[string]interface{}{
			"preferred_model": "claude",
		}))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeParamError, resp.Code)
		assert.Equal(t, "unknown preferred model", resp.Message)
	})
}

func TestUserHandler_GetQuota(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB,
		testutil.WithPlan("standard", "5"),
		testutil.WithBudgetUsed("1.25"),
	)

	w := httptest.NewRecorder()
	userRouter(ctx, user).ServeHTTP(w, httptest.NewRequest("GET", "/user/quota", nil))

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "standard", data["plan"])
	assert.Equal(t, "5.00", data["ai_budget_allocated"])
	assert.Equal(t, "1.25", data["ai_budget_used"])
	assert.Equal(t, "3.75", data["ai_budget_remaining"])
}
