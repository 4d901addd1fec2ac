package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeQuotaExceeded    = 1004
	CodeRateLimited      = 1006
	CodeServerError      = 5000
	CodeAIUnavailable    = 5003
)

var defaultMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid parameters",
	CodeAuthFailed:       "authentication failed",
	CodePermissionDenied: "permission denied",
	CodeResourceNotFound: "resource not found",
	CodeQuotaExceeded:    "monthly analysis quota exceeded",
	CodeRateLimited:      "too many requests",
	CodeServerError:      "internal server error",
	CodeAIUnavailable:    "AI service unavailable",
}

// Response 统一响应结构，除限流外 HTTP 状态码均为 200
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData 分页
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

func write(c *gin.Context, status, code int, message string, data interface{}) {
	if message == "" {
		message = defaultMessages[code]
	}
	c.JSON(status, Response{Code: code, Message: message, Data: data})
}

func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, CodeSuccess, "", data)
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	write(c, http.StatusOK, CodeSuccess, message, data)
}

func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	Success(c, PageData{Total: total, Page: page, PageSize: pageSize, Items: items})
}

// Error 业务错误，message 为空时使用错误码默认消息
func Error(c *gin.Context, code int, message string) {
	write(c, http.StatusOK, code, message, nil)
}

func ParamError(c *gin.Context, message string) { Error(c, CodeParamError, message) }

func AuthError(c *gin.Context, message string) { Error(c, CodeAuthFailed, message) }

func PermissionError(c *gin.Context, message string) { Error(c, CodePermissionDenied, message) }

func NotFoundError(c *gin.Context, message string) { Error(c, CodeResourceNotFound, message) }

func QuotaError(c *gin.Context, message string) { Error(c, CodeQuotaExceeded, message) }

func AIUnavailableError(c *gin.Context, message string) { Error(c, CodeAIUnavailable, message) }

func ServerError(c *gin.Context, message string) { Error(c, CodeServerError, message) }

// RateLimitError 返回 429，客户端据此退避
func RateLimitError(c *gin.Context, message string) {
	write(c, http.StatusTooManyRequests, CodeRateLimited, message, nil)
}
