package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/internal/model"
)

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Create(ctx context.Context, analysis *model.Analysis) error {
	return r.db.WithContext(ctx).Create(analysis).Error
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id int64) (*model.Analysis, error) {
	var analysis model.Analysis
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&analysis).Error
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

func (r *AnalysisRepository) Update(ctx context.Context, analysis *model.Analysis) error {
	return r.db.WithContext(ctx).Save(analysis).Error
}

func (r *AnalysisRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Analysis{}).Where("id = ?", id).Updates(fields).Error
}

func (r *AnalysisRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Analysis{}, id).Error
}

// ListByUserID 获取用户的分析列表
func (r *AnalysisRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int, search, status string) ([]*model.Analysis, int64, error) {
	var analyses []*model.Analysis
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Analysis{}).Where("user_id = ?", userID)

	if search != "" {
		query = query.Where("title LIKE ?", "%"+search+"%")
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(pageSize).Find(&analyses).Error; err != nil {
		return nil, 0, err
	}

	return analyses, total, nil
}

// FailStale 把创建早于 before 仍在分析中的记录标记为失败，返回条数
func (r *AnalysisRepository) FailStale(ctx context.Context, before time.Time, message string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Analysis{}).
		Where("status = ? AND created_at < ?", model.AnalysisStatusAnalyzing, before).
		Updates(map[string]interface{}{
			"status":        model.AnalysisStatusFailed,
			"error_message": message,
		})
	return result.RowsAffected, result.Error
}
