package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/complexity"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/model/dto"
	"github.com/qs3c/tos_scan_server/internal/pkg/metrics"
	"github.com/qs3c/tos_scan_server/internal/pkg/pubsub"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
)

var (
	ErrAnalysisNotFound   = errors.New("analysis not found")
	ErrAnalysisPermission = errors.New("no permission to access this analysis")
	ErrEmptyDocument      = errors.New("document is empty")
	ErrFeatureUnavailable = errors.New("feature not available on current plan")
)

const defaultMaxChars = 100000

// ProgressPublisher 由 pubsub.Publisher 实现
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
}

// ReportStorage 由 oss.Client 实现
type ReportStorage interface {
	UploadReport(userID, analysisID int64, data []byte) (string, error)
	DeleteReport(userID, analysisID int64) error
}

type AnalysisService struct {
	analysisRepo *repository.AnalysisRepository
	userRepo     *repository.UserRepository
	quotaService *QuotaService
	aiService    *AIService
	catalog      *plan.Catalog
	publisher    ProgressPublisher
	storage      ReportStorage
	maxChars     int
	nowFn        func() time.Time
}

func NewAnalysisService(
	analysisRepo *repository.AnalysisRepository,
	userRepo *repository.UserRepository,
	quotaService *QuotaService,
	aiService *AIService,
	catalog *plan.Catalog,
	cfg *config.Config,
) *AnalysisService {
	maxChars := cfg.Analysis.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &AnalysisService{
		analysisRepo: analysisRepo,
		userRepo:     userRepo,
		quotaService: quotaService,
		aiService:    aiService,
		catalog:      catalog,
		maxChars:     maxChars,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher 可选，未设置时不推送进度
func (s *AnalysisService) SetPublisher(p ProgressPublisher) {
	s.publisher = p
}

// SetStorage 可选，未设置时不归档原始报告
func (s *AnalysisService) SetStorage(st ReportStorage) {
	s.storage = st
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// Preprocess 去掉控制字符，合并空白，并按字符数截断
func Preprocess(text string, maxChars int) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	text = strings.TrimSpace(text)

	if maxChars > 0 {
		if runes := []rune(text); len(runes) > maxChars {
			text = strings.TrimSpace(string(runes[:maxChars]))
		}
	}
	return text
}

// Analyze 同步完成一次文档分析
func (s *AnalysisService) Analyze(ctx context.Context, userID int64, req *dto.CreateAnalysisRequest) (*dto.AnalysisDetail, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.quotaService.CheckQuota(ctx, user); err != nil {
		return nil, err
	}

	text := Preprocess(req.Text, s.maxChars)
	if text == "" {
		return nil, ErrEmptyDocument
	}

	docType := req.DocumentType
	if docType == "" {
		docType = "terms_of_service"
	}
	startedAt := s.nowFn()
	analysis := &model.Analysis{
		UserID:       user.ID,
		Title:        req.Title,
		DocumentType: docType,
		SourceURL:    req.SourceURL,
		CharCount:    len([]rune(text)),
		Complexity:   complexity.Estimate(text),
		Status:       model.AnalysisStatusAnalyzing,
		StartedAt:    &startedAt,
	}
	if err := s.analysisRepo.Create(ctx, analysis); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{
		"user_id":     user.ID,
		"analysis_id": analysis.ID,
	})
	s.publish(ctx, analysis, pubsub.StepPreprocessing, "")

	advanced := s.catalog.HasFeature(user.Plan, plan.FeatureAdvancedAnalysis)
	prompt, err := RenderPrompt(docType, req.Title, text, advanced)
	if err != nil {
		return nil, s.fail(ctx, analysis, err, err)
	}

	s.publish(ctx, analysis, pubsub.StepAnalyzing, "")
	aiResult, err := s.aiService.PerformAnalysis(ctx, user, text, prompt, WithRetryHook(func(int) {
		s.publish(ctx, analysis, pubsub.StepRetrying, "")
	}))
	if err != nil {
		var exhausted *ExhaustedError
		if errors.As(err, &exhausted) {
			chain, _ := json.Marshal(exhausted.Attempts)
			analysis.FallbackChain = datatypes.JSON(chain)
			analysis.SelectionReason = exhausted.Selection.Reason
		}
		return nil, s.fail(ctx, analysis, err, ErrAllModelsFailed)
	}

	chain, _ := json.Marshal(aiResult.FallbackChain)
	analysis.ModelUsed = string(aiResult.Model)
	analysis.SelectionReason = aiResult.Selection.Reason
	analysis.ActualCost = aiResult.ActualCost
	analysis.FallbackChain = datatypes.JSON(chain)

	s.publish(ctx, analysis, pubsub.StepParsing, "")
	report, normalized, err := ParseReport(aiResult.Response)
	if err != nil {
		logger.WithError(err).WithField("model", aiResult.Model).Warn("ai response rejected")
		return nil, s.fail(ctx, analysis, err, ErrInvalidAIResponse)
	}

	completedAt := s.nowFn()
	score := report.Score
	analysis.Status = model.AnalysisStatusCompleted
	analysis.Score = &score
	analysis.Grade = report.Grade
	analysis.Summary = report.Summary
	analysis.Result = datatypes.JSON(normalized)
	analysis.CompletedAt = &completedAt

	if s.storage != nil {
		raw, _ := json.Marshal(aiResult)
		if url, err := s.storage.UploadReport(user.ID, analysis.ID, raw); err != nil {
			logger.WithError(err).Warn("archive report failed")
		} else {
			analysis.ReportOSSURL = url
		}
	}

	if err := s.analysisRepo.Update(ctx, analysis); err != nil {
		return nil, err
	}
	if err := s.quotaService.UseQuota(ctx, user); err != nil {
		logger.WithError(err).Error("increment monthly analysis counter failed")
	}

	metrics.AnalysesTotal.WithLabelValues(model.AnalysisStatusCompleted).Inc()
	s.publish(ctx, analysis, pubsub.StepDone, "")

	return buildAnalysisDetail(analysis), nil
}

// fail 记录失败状态，返回给调用方的错误不包含后端细节
func (s *AnalysisService) fail(ctx context.Context, analysis *model.Analysis, cause, public error) error {
	now := s.nowFn()
	analysis.Status = model.AnalysisStatusFailed
	analysis.ErrorMessage = public.Error()
	analysis.CompletedAt = &now

	if err := s.analysisRepo.Update(ctx, analysis); err != nil {
		log.WithError(err).WithField("analysis_id", analysis.ID).Error("persist failed analysis")
	}
	log.WithError(cause).WithFields(log.Fields{
		"user_id":     analysis.UserID,
		"analysis_id": analysis.ID,
	}).Warn("analysis failed")

	metrics.AnalysesTotal.WithLabelValues(model.AnalysisStatusFailed).Inc()
	s.publish(ctx, analysis, pubsub.StepFailed, public.Error())
	return cause
}

func (s *AnalysisService) publish(ctx context.Context, analysis *model.Analysis, step, errMsg string) {
	if s.publisher == nil {
		return
	}
	msg := &pubsub.ProgressMessage{
		UserID:     analysis.UserID,
		AnalysisID: analysis.ID,
		Status:     analysis.Status,
		Step:       step,
		Error:      errMsg,
	}
	if err := s.publisher.PublishProgress(ctx, msg); err != nil {
		log.WithError(err).WithField("analysis_id", analysis.ID).Debug("publish progress failed")
	}
}

// GetByID 获取分析详情
func (s *AnalysisService) GetByID(ctx context.Context, userID, analysisID int64) (*dto.AnalysisDetail, error) {
	analysis, err := s.getOwned(ctx, userID, analysisID)
	if err != nil {
		return nil, err
	}
	return buildAnalysisDetail(analysis), nil
}

// List 历史记录需要 history 功能
func (s *AnalysisService) List(ctx context.Context, userID int64, page, pageSize int, search, status string) ([]*dto.AnalysisListItem, int64, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, err
	}
	if !s.catalog.HasFeature(user.Plan, plan.FeatureHistory) {
		return nil, 0, ErrFeatureUnavailable
	}

	analyses, total, err := s.analysisRepo.ListByUserID(ctx, userID, page, pageSize, search, status)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.AnalysisListItem, len(analyses))
	for i, a := range analyses {
		items[i] = &dto.AnalysisListItem{
			ID:           a.ID,
			Title:        a.Title,
			DocumentType: a.DocumentType,
			Status:       a.Status,
			Score:        a.Score,
			Grade:        a.Grade,
			CreatedAt:    a.CreatedAt.Format(time.RFC3339),
		}
	}
	return items, total, nil
}

// Delete 删除分析，归档文件删除失败只记录日志
func (s *AnalysisService) Delete(ctx context.Context, userID, analysisID int64) error {
	analysis, err := s.getOwned(ctx, userID, analysisID)
	if err != nil {
		return err
	}

	if err := s.analysisRepo.Delete(ctx, analysis.ID); err != nil {
		return err
	}
	if s.storage != nil && analysis.ReportOSSURL != "" {
		if err := s.storage.DeleteReport(analysis.UserID, analysis.ID); err != nil {
			log.WithError(err).WithField("analysis_id", analysis.ID).Warn("delete archived report failed")
		}
	}
	return nil
}

func (s *AnalysisService) getOwned(ctx context.Context, userID, analysisID int64) (*model.Analysis, error) {
	analysis, err := s.analysisRepo.GetByID(ctx, analysisID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, err
	}
	if analysis.UserID != userID {
		return nil, ErrAnalysisPermission
	}
	return analysis, nil
}

func buildAnalysisDetail(a *model.Analysis) *dto.AnalysisDetail {
	detail := &dto.AnalysisDetail{
		ID:           a.ID,
		Title:        a.Title,
		DocumentType: a.DocumentType,
		SourceURL:    a.SourceURL,
		Status:       a.Status,
		Score:        a.Score,
		Grade:        a.Grade,
		Summary:      a.Summary,
		ModelUsed:    a.ModelUsed,
		ActualCost:   a.ActualCost.StringFixed(6),
		Complexity:   a.Complexity,
		CharCount:    a.CharCount,
		ReportURL:    a.ReportOSSURL,
		ErrorMessage: a.ErrorMessage,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
	if len(a.Result) > 0 {
		detail.Result = json.RawMessage(a.Result)
	}
	if a.StartedAt != nil {
		detail.StartedAt = a.StartedAt.Format(time.RFC3339)
	}
	if a.CompletedAt != nil {
		detail.CompletedAt = a.CompletedAt.Format(time.RFC3339)
	}
	return detail
}
