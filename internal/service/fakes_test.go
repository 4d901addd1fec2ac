package service

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/llm"
	"github.com/qs3c/tos_scan_server/internal/pkg/pubsub"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/testutil"
)

const validReport = `{"score": 64, "grade": "C", "summary": "Mostly standard terms with a broad arbitration clause.",
"risks": [{"title": "Mandatory arbitration", "severity": "high", "clause": "disputes shall be resolved by arbitration", "explanation": "Users waive court access."}],
"highlights": ["30-day refund window"]}`

// fakeInvoker 按模型返回预设结果，并记录调用顺序
type fakeInvoker struct {
	mu      sync.Mutex
	results map[model.AIModel]llm.Result
	calls   []model.AIModel
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{results: make(map[model.AIModel]llm.Result)}
}

func (f *fakeInvoker) succeed(m model.AIModel, response string, usage *llm.Usage) *fakeInvoker {
	f.results[m] = llm.Result{Success: true, Model: m, Response: response, Usage: usage}
	return f
}

func (f *fakeInvoker) fail(m model.AIModel, msg string) *fakeInvoker {
	f.results[m] = llm.Result{Model: m, Error: msg}
	return f
}

func (f *fakeInvoker) notConfigured(m model.AIModel) *fakeInvoker {
	f.results[m] = llm.Result{Model: m, Error: llm.ErrNotConfigured.Error(), NotConfigured: true}
	return f
}

func (f *fakeInvoker) Invoke(_ context.Context, m model.AIModel, _ string) llm.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, m)
	if r, ok := f.results[m]; ok {
		return r
	}
	return llm.Result{Model: m, Error: "unexpected model"}
}

func (f *fakeInvoker) Calls() []model.AIModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AIModel(nil), f.calls...)
}

// recordingPublisher 收集进度消息
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*pubsub.ProgressMessage
}

func (p *recordingPublisher) PublishProgress(_ context.Context, msg *pubsub.ProgressMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *msg
	p.msgs = append(p.msgs, &cp)
	return nil
}

func (p *recordingPublisher) Steps() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	steps := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		steps[i] = m.Step
	}
	return steps
}

// memoryStorage 代替 OSS
type memoryStorage struct {
	objects map[string][]byte
}

func (m *memoryStorage) UploadReport(userID, analysisID int64, data []byte) (string, error) {
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	key := reportKey(userID, analysisID)
	m.objects[key] = data
	return "https://reports.example.com/" + key, nil
}

func (m *memoryStorage) DeleteReport(userID, analysisID int64) error {
	delete(m.objects, reportKey(userID, analysisID))
	return nil
}

func reportKey(userID, analysisID int64) string {
	return "reports/" + strconv.FormatInt(userID, 10) + "/" + strconv.FormatInt(analysisID, 10) + ".json"
}

// aiFixture 组装选择器与调度器
type aiFixture struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
	catalog  *plan.Catalog
	pricing  *ModelPricing
	budget   *BudgetService
	selector *ModelSelector
	invoker  *fakeInvoker
	ai       *AIService
}

func setupAIFixture(t *testing.T, overrides map[string]config.PlanConfig) (*aiFixture, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	catalog := plan.NewCatalog(overrides)
	pricing := NewModelPricing(config.AIConfig{})
	budget := NewBudgetService(userRepo, catalog)
	selector := NewModelSelector(budget, catalog, pricing)
	invoker := newFakeInvoker()

	f := &aiFixture{
		db:       db,
		userRepo: userRepo,
		catalog:  catalog,
		pricing:  pricing,
		budget:   budget,
		selector: selector,
		invoker:  invoker,
		ai:       NewAIService(selector, invoker, pricing, catalog, budget),
	}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return f, cleanup
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
