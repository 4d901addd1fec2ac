package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/testutil"
)

func setupQuotaService(t *testing.T) (*QuotaService, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	catalog := plan.NewCatalog(nil)
	service := NewQuotaService(userRepo, catalog, NewBudgetService(userRepo, catalog))

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return service, db, cleanup
}

func TestQuotaService_CheckQuota(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()
	ctx := context.Background()
	future := time.Now().UTC().AddDate(0, 1, 0)

	user := testutil.TestUser(t, db, testutil.WithAnalysisUsed(2), testutil.WithQuotaResetAt(future))
	assert.NoError(t, service.CheckQuota(ctx, user))

	user = testutil.TestUser(t, db, testutil.WithAnalysisUsed(3), testutil.WithQuotaResetAt(future))
	assert.ErrorIs(t, service.CheckQuota(ctx, user), ErrQuotaExceeded)

	user = testutil.TestUser(t, db, testutil.WithPlan("standard", "5"), testutil.WithAnalysisUsed(49), testutil.WithQuotaResetAt(future))
	assert.NoError(t, service.CheckQuota(ctx, user))
}

func TestQuotaService_CheckQuota_ResetsNewMonth(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	user := testutil.TestUser(t, db, testutil.WithAnalysisUsed(3), testutil.WithQuotaResetAt(past))

	require.NoError(t, service.CheckQuota(ctx, user))
	assert.Equal(t, 0, user.MonthlyAnalysisUsed)
	require.NotNil(t, user.AnalysisQuotaResetAt)
	assert.Equal(t, 1, user.AnalysisQuotaResetAt.Day())
	assert.True(t, user.AnalysisQuotaResetAt.After(time.Now().UTC()))
}

func TestQuotaService_UseQuota(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, db)
	require.NoError(t, service.UseQuota(ctx, user))
	require.NoError(t, service.UseQuota(ctx, user))
	assert.Equal(t, 2, user.MonthlyAnalysisUsed)

	var stored int
	require.NoError(t, db.Table("users").Select("monthly_analysis_used").Where("id = ?", user.ID).Scan(&stored).Error)
	assert.Equal(t, 2, stored)
}

func TestQuotaService_GetQuotaInfo(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()
	ctx := context.Background()
	future := time.Now().UTC().AddDate(0, 1, 0)

	user := testutil.TestUser(t, db,
		testutil.WithPlan("standard", "5"),
		testutil.WithBudgetUsed("6.5"),
		testutil.WithAnalysisUsed(60),
		testutil.WithQuotaResetAt(future),
	)

	info, err := service.GetQuotaInfo(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "standard", info.Plan)
	assert.Equal(t, 50, info.MonthlyLimit)
	assert.Equal(t, 0, info.MonthlyRemaining)
	assert.Equal(t, "5.00", info.AIBudgetAllocated)
	assert.Equal(t, "6.50", info.AIBudgetUsed)
	assert.Equal(t, "0.00", info.AIBudgetRemaining, "overdraft is never shown as negative")
	assert.NotEmpty(t, info.AIBudgetResetAt)

	unlimited := testutil.TestUser(t, db, testutil.WithPlan("enterprise", "100"), testutil.WithQuotaResetAt(future))
	info, err = service.GetQuotaInfo(ctx, unlimited)
	require.NoError(t, err)
	assert.Equal(t, -1, info.MonthlyLimit)
	assert.Equal(t, -1, info.MonthlyRemaining)
	assert.Equal(t, "100.00", info.AIBudgetRemaining)
}

func TestQuotaService_ResetAllQuotas(t *testing.T) {
	service, db, cleanup := setupQuotaService(t)
	defer cleanup()

	testutil.TestUser(t, db, testutil.WithAnalysisUsed(3))
	testutil.TestUser(t, db, testutil.WithAnalysisUsed(1))

	n, err := service.ResetAllQuotas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var sum int64
	require.NoError(t, db.Table("users").Select("COALESCE(SUM(monthly_analysis_used), 0)").Scan(&sum).Error)
	assert.Equal(t, int64(0), sum)
}
