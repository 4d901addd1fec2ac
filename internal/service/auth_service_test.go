package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/jwt"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/testutil"
)

func setupAuthService(t *testing.T) (*AuthService, *repository.UserRepository, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	budget := NewBudgetService(userRepo, plan.NewCatalog(nil))
	service := NewAuthService(userRepo, budget, &config.Config{})

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return service, userRepo, cleanup
}

func TestAuthService_ResolveIdentity_CreatesUser(t *testing.T) {
	service, userRepo, cleanup := setupAuthService(t)
	defer cleanup()
	ctx := context.Background()

	id := &jwt.Identity{Subject: "auth0|new", Email: "new@example.com", Picture: "https://img.example.com/a.png"}
	user, err := service.ResolveIdentity(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "new", user.Username)
	assert.Equal(t, "free", user.Plan)
	assert.True(t, user.AISettings.Initialized)
	assert.True(t, user.AIBudget.Allocated.IsZero())

	stored, err := userRepo.GetByExternalID(ctx, "auth0|new")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
	assert.Equal(t, model.PreferAuto, stored.AISettings.PreferredModel)
	assert.True(t, stored.AISettings.Initialized)
	assert.NotNil(t, stored.AIBudget.LastReset)

	// 再次登录返回同一用户
	again, err := service.ResolveIdentity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestAuthService_GetUserByID(t *testing.T) {
	service, _, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := service.GetUserByID(context.Background(), 424242)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUsernameFor(t *testing.T) {
	assert.Equal(t, "Alice", usernameFor(&jwt.Identity{Name: " Alice "}))
	assert.Equal(t, "bob", usernameFor(&jwt.Identity{Email: "bob@example.com"}))
	assert.Equal(t, "user", usernameFor(&jwt.Identity{}))
}
