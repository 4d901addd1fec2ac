package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/tos_scan_server/internal/api/middleware"
	"github.com/qs3c/tos_scan_server/internal/model/dto"
	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/service"
)

const maxWebhookBodyBytes = int64(65536)

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

// Plans 套餐列表，登录时附带当前套餐
// GET /api/v1/plans
func (h *BillingHandler) Plans(c *gin.Context) {
	data := gin.H{
		"plans": h.billingService.Plans(),
	}
	if user, ok := middleware.GetUser(c); ok {
		data["current_plan"] = user.Plan
	}
	response.Success(c, data)
}

// Checkout 创建 Stripe Checkout 会话
// POST /api/v1/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.billingService.CreateCheckout(c.Request.Context(), userID, req.Plan)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPlan):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrBillingNotConfigured):
			response.ServerError(c, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			response.AuthError(c, "")
		default:
			middleware.Logger(c).WithError(err).Error("create checkout session failed")
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}

// Subscriptions 订阅记录
// GET /api/v1/billing/subscriptions
func (h *BillingHandler) Subscriptions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	history, err := h.billingService.Subscriptions(c.Request.Context(), userID)
	if err != nil {
		middleware.Logger(c).WithError(err).Error("list subscriptions failed")
		response.ServerError(c, "")
		return
	}
	response.Success(c, history)
}

// Webhook Stripe 回调。返回非 2xx 时 Stripe 会重试
// POST /api/v1/billing/webhook
func (h *BillingHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	err = h.billingService.HandleWebhook(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		entry := middleware.Logger(c).WithError(err)
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			entry.Warn("stripe webhook signature failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		case errors.Is(err, service.ErrInvalidWebhook):
			entry.Warn("stripe webhook payload rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		case errors.Is(err, service.ErrUserNotFound):
			// 重试也找不到用户，直接确认
			entry.Warn("stripe webhook for unknown user")
			c.JSON(http.StatusOK, gin.H{"received": true})
		case errors.Is(err, service.ErrBillingNotConfigured):
			entry.Error("stripe webhook secret missing")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		default:
			entry.Error("stripe webhook failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
