package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/service"
	"github.com/qs3c/tos_scan_server/internal/testutil"
)

func setupCronService(t *testing.T) (*Service, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	catalog := plan.NewCatalog(nil)
	userRepo := repository.NewUserRepository(db)
	budget := service.NewBudgetService(userRepo, catalog)
	quota := service.NewQuotaService(userRepo, catalog, budget)

	svc := NewService(quota, budget, repository.NewAnalysisRepository(db), time.Hour)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return svc, db, cleanup
}

func TestNextMonthStart(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextMonthStart(tt.now))
	}
}

func TestService_RunNow(t *testing.T) {
	svc, db, cleanup := setupCronService(t)
	defer cleanup()

	lastMonth := time.Now().UTC().AddDate(0, -1, -1)
	user := testutil.TestUser(t, db,
		testutil.WithPlan("standard", "5"),
		testutil.WithBudgetUsed("3.5"),
		testutil.WithLastReset(&lastMonth),
		testutil.WithAnalysisUsed(12),
	)
	current := testutil.TestUser(t, db,
		testutil.WithPlan("standard", "5"),
		testutil.WithBudgetUsed("1"),
	)

	require.NoError(t, svc.RunNow(context.Background()))

	var got model.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, 0, got.MonthlyAnalysisUsed)
	require.NotNil(t, got.AnalysisQuotaResetAt)
	assert.True(t, got.AnalysisQuotaResetAt.After(time.Now()))
	assert.True(t, got.AIBudget.Used.IsZero())
	require.NotNil(t, got.AIBudget.LastReset)
	assert.True(t, got.AIBudget.LastReset.After(lastMonth))

	// 本月已重置过的预算不动
	require.NoError(t, db.First(&got, current.ID).Error)
	assert.InDelta(t, 1.0, got.AIBudget.Used.InexactFloat64(), 1e-9)
}

func TestService_CleanupStale(t *testing.T) {
	svc, db, cleanup := setupCronService(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	stale := testutil.TestAnalysis(t, db, user.ID, testutil.WithStatus(model.AnalysisStatusAnalyzing), func(a *model.Analysis) {
		a.CreatedAt = time.Now().UTC().Add(-3 * time.Hour)
	})
	testutil.TestAnalysis(t, db, user.ID, testutil.WithStatus(model.AnalysisStatusAnalyzing))

	assert.Equal(t, int64(1), svc.cleanupStale(context.Background()))

	var got model.Analysis
	require.NoError(t, db.First(&got, stale.ID).Error)
	assert.Equal(t, model.AnalysisStatusFailed, got.Status)
	assert.Equal(t, staleMessage, got.ErrorMessage)
}

func TestService_StartStop(t *testing.T) {
	svc, _, cleanup := setupCronService(t)
	defer cleanup()

	svc.Start()
	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
