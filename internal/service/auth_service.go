package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/jwt"
	"github.com/qs3c/tos_scan_server/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

// AuthService 把身份提供方的用户映射为本地用户
type AuthService struct {
	userRepo *repository.UserRepository
	budget   *BudgetService
	cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, budget *BudgetService, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		budget:   budget,
		cfg:      cfg,
	}
}

// ResolveIdentity 首次登录时创建免费用户并初始化预算
func (s *AuthService) ResolveIdentity(ctx context.Context, id *jwt.Identity) (*model.User, error) {
	user, err := s.userRepo.GetByExternalID(ctx, id.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sub := id.Subject
	user = &model.User{
		ExternalID: &sub,
		Username:   usernameFor(id),
		AvatarURL:  id.Picture,
		Plan:       "free",
		AISettings: model.AISettings{
			PreferredModel: model.PreferAuto,
			AllowPremiumAI: true,
		},
	}
	if id.Email != "" {
		email := id.Email
		user.Email = &email
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 并发的首次请求可能已经创建了该用户
		if existing, getErr := s.userRepo.GetByExternalID(ctx, id.Subject); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if _, err := s.budget.SyncBudgetWithPlan(ctx, user); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": user.ID,
		"subject": id.Subject,
	}).Info("user created from identity provider")
	return user, nil
}

// GetUserByID 根据 ID 获取用户
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func usernameFor(id *jwt.Identity) string {
	name := strings.TrimSpace(id.Name)
	if name == "" && id.Email != "" {
		name = strings.SplitN(id.Email, "@", 2)[0]
	}
	if name == "" {
		name = "user"
	}
	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}
	return name
}
