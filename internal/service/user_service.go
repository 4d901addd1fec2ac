package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/model/dto"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
)

var ErrInvalidPreferredModel = errors.New("unknown preferred model")

type UserService struct {
	userRepo     *repository.UserRepository
	quotaService *QuotaService
	catalog      *plan.Catalog
}

func NewUserService(userRepo *repository.UserRepository, quotaService *QuotaService, catalog *plan.Catalog) *UserService {
	return &UserService{
		userRepo:     userRepo,
		quotaService: quotaService,
		catalog:      catalog,
	}
}

func (s *UserService) load(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetProfile 获取用户详情
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*dto.UserInfo, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildUserInfo(ctx, user)
}

// UpdateProfile 更新用户信息
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Username != nil {
		user.Username = *req.Username
		fields["username"] = user.Username
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
		fields["avatar_url"] = user.AvatarURL
	}
	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(ctx, userID, fields); err != nil {
			return nil, err
		}
	}

	return s.buildUserInfo(ctx, user)
}

// UpdateAISettings 未知的模型偏好直接拒绝
func (s *UserService) UpdateAISettings(ctx context.Context, userID int64, req *dto.UpdateAISettingsRequest) (*dto.UserInfo, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.PreferredModel != nil {
		pref, err := model.ParsePreferredModel(*req.PreferredModel)
		if err != nil {
			return nil, ErrInvalidPreferredModel
		}
		user.AISettings.PreferredModel = pref
		fields["preferred_model"] = pref
	}
	if req.AllowPremiumAI != nil {
		user.AISettings.AllowPremiumAI = *req.AllowPremiumAI
		fields["allow_premium_ai"] = *req.AllowPremiumAI
	}
	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(ctx, userID, fields); err != nil {
			return nil, err
		}
	}

	return s.buildUserInfo(ctx, user)
}

// GetQuota 获取配额与预算
func (s *UserService) GetQuota(ctx context.Context, userID int64) (*dto.QuotaInfo, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.quotaService.GetQuotaInfo(ctx, user)
}

func (s *UserService) buildUserInfo(ctx context.Context, user *model.User) (*dto.UserInfo, error) {
	quota, err := s.quotaService.GetQuotaInfo(ctx, user)
	if err != nil {
		return nil, err
	}

	pref := user.AISettings.PreferredModel
	if pref == "" {
		pref = model.PreferAuto
	}
	info := &dto.UserInfo{
		ID:        user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		Plan:      string(s.catalog.Get(user.Plan).Tier),
		Features:  s.catalog.Get(user.Plan).Features.List(),
		AISettings: &dto.AISettings{
			PreferredModel: string(pref),
			AllowPremiumAI: user.AISettings.AllowPremiumAI,
		},
		QuotaInfo: quota,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
	if user.Email != nil {
		info.Email = *user.Email
	}
	return info, nil
}
