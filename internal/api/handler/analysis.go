package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/tos_scan_server/internal/api/middleware"
	"github.com/qs3c/tos_scan_server/internal/model/dto"
	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/service"
)

// currentUserID 取不到时已写入认证错误
func currentUserID(c *gin.Context) (int64, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
	}
	return userID, ok
}

func analysisIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "invalid analysis id")
		return 0, false
	}
	return id, true
}

type AnalysisHandler struct {
	analysisService *service.AnalysisService
}

func NewAnalysisHandler(analysisService *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
	}
}

// Create 提交文档并同步返回评分结果
// POST /api/v1/analyses
func (h *AnalysisHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.CreateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	detail, err := h.analysisService.Analyze(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuotaExceeded):
			response.QuotaError(c, err.Error())
		case errors.Is(err, service.ErrEmptyDocument):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrAllModelsFailed), errors.Is(err, service.ErrInvalidAIResponse):
			// 失败原因只写日志，用户只看到统一提示
			response.AIUnavailableError(c, service.ErrAllModelsFailed.Error())
		case errors.Is(err, service.ErrUserNotFound):
			response.AuthError(c, "")
		default:
			middleware.Logger(c).WithError(err).Error("analysis failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "analysis completed", detail)
}

// List 历史分析
// GET /api/v1/analyses
func (h *AnalysisHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	search := c.Query("search")
	status := c.Query("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.analysisService.List(c.Request.Context(), userID, page, pageSize, search, status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFeatureUnavailable):
			response.PermissionError(c, err.Error())
		default:
			middleware.Logger(c).WithError(err).Error("list analyses failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 获取分析详情
// GET /api/v1/analyses/:id
func (h *AnalysisHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	analysisID, ok := analysisIDParam(c)
	if !ok {
		return
	}

	detail, err := h.analysisService.GetByID(c.Request.Context(), userID, analysisID)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	response.Success(c, detail)
}

// Delete 删除分析
// DELETE /api/v1/analyses/:id
func (h *AnalysisHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	analysisID, ok := analysisIDParam(c)
	if !ok {
		return
	}

	if err := h.analysisService.Delete(c.Request.Context(), userID, analysisID); err != nil {
		h.writeLookupError(c, err)
		return
	}

	response.SuccessWithMessage(c, "deleted", nil)
}

func (h *AnalysisHandler) writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAnalysisNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrAnalysisPermission):
		response.PermissionError(c, err.Error())
	default:
		middleware.Logger(c).WithError(err).Error("analysis lookup failed")
		response.ServerError(c, "")
	}
}
