package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/api/middleware"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/llm"
	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/service"
	"github.com/qs3c/tos_scan_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const validReport = `{"score": 81, "grade": "B", "summary": "Fair terms overall.",
"risks": [{"title": "Data sharing", "severity": "medium"}], "highlights": ["Clear cancellation policy"]}`

// stubClient 固定返回一个结果
type stubClient struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *stubClient) Complete(_ context.Context, _ string) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Text: s.text, Usage: &llm.Usage{PromptTokens: 100, CompletionTokens: 50}}, nil
}

type testContext struct {
	DB       *gorm.DB
	Catalog  *plan.Catalog
	Pricing  *service.ModelPricing
	Gemini   *stubClient
	Analysis *AnalysisHandler
	User     *UserHandler
}

func setupHandlers(t *testing.T) (*testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{}
	catalog := plan.NewCatalog(nil)
	pricing := service.NewModelPricing(cfg.AI)

	userRepo := repository.NewUserRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)
	budget := service.NewBudgetService(userRepo, catalog)
	quota := service.NewQuotaService(userRepo, catalog, budget)
	selector := service.NewModelSelector(budget, catalog, pricing)

	gemini := &stubClient{text: validReport}
	// 只注册 gemini，其余模型走 not configured
	invoker := llm.NewInvoker(map[model.AIModel]llm.Client{model.ModelGemini: gemini})
	ai := service.NewAIService(selector, invoker, pricing, catalog, budget)

	ctx := &testContext{
		DB:       db,
		Catalog:  catalog,
		Pricing:  pricing,
		Gemini:   gemini,
		Analysis: NewAnalysisHandler(service.NewAnalysisService(analysisRepo, userRepo, quota, ai, catalog, cfg)),
		User:     NewUserHandler(service.NewUserService(userRepo, quota, catalog)),
	}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return ctx, cleanup
}

func mockAuth(user *model.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, user.ID)
		c.Set(middleware.UserKey, user)
		c.Next()
	}
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

var errBackendDown = errors.New("backend down")
