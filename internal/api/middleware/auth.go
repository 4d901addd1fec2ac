package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/pkg/jwt"
	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/service"
)

const (
	UserIDKey = "userID"
	UserKey   = "user"
)

// UserResolver 把令牌映射为本地用户
type UserResolver interface {
	ResolveIdentity(ctx context.Context, id *jwt.Identity) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// Authenticator 认证中间件。HS256 内部令牌优先，其余交给身份提供方 JWKS 校验
type Authenticator struct {
	secret   string
	verifier *jwt.Verifier
	users    UserResolver
}

// NewAuthenticator verifier 为 nil 时只接受 HS256 令牌
func NewAuthenticator(secret string, verifier *jwt.Verifier, users UserResolver) *Authenticator {
	return &Authenticator{
		secret:   secret,
		verifier: verifier,
		users:    users,
	}
}

// Required 强制登录
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.AuthError(c, "missing or malformed Authorization header")
			c.Abort()
			return
		}

		user, err := a.authenticate(c.Request.Context(), tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrExpiredToken) {
				response.AuthError(c, "token has expired")
			} else if errors.Is(err, jwt.ErrInvalidToken) || errors.Is(err, service.ErrUserNotFound) {
				response.AuthError(c, "invalid token")
			} else {
				log.WithError(err).Error("failed to resolve user")
				response.ServerError(c, "")
			}
			c.Abort()
			return
		}

		setUser(c, user)
		c.Next()
	}
}

// Optional 有令牌就解析，失败也放行
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if user, err := a.authenticate(c.Request.Context(), tokenString); err == nil {
				setUser(c, user)
			}
		}
		c.Next()
	}
}

func (a *Authenticator) authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	if a.secret != "" {
		claims, err := jwt.ParseToken(tokenString, a.secret)
		if err == nil {
			return a.users.GetUserByID(ctx, claims.UserID)
		}
		if errors.Is(err, jwt.ErrExpiredToken) || a.verifier == nil {
			return nil, err
		}
	}
	if a.verifier == nil {
		return nil, jwt.ErrInvalidToken
	}

	id, err := a.verifier.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	return a.users.ResolveIdentity(ctx, id)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

func setUser(c *gin.Context, user *model.User) {
	c.Set(UserIDKey, user.ID)
	c.Set(UserKey, user)
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

// GetUser 认证中间件加载的用户，可能不是最新状态
func GetUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}

// QueryToken 浏览器的 WebSocket 无法设置请求头，允许通过 ?token= 传入
func QueryToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if token := c.Query("token"); token != "" {
				c.Request.Header.Set("Authorization", "Bearer "+token)
			}
		}
		c.Next()
	}
}
