// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"agent-platform-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OwnerContextKey 是存放当前用户 UUID 的 Gin 上下文键。
const OwnerContextKey = "owner"

// RequireAuth 创建一个强制认证的 Gin 中间件。
// 它从 Authorization 头中提取访问令牌，在本地校验签名、有效期与受众，
// 并把令牌 subject 中的用户 UUID 存入上下文供后续处理函数使用。
// 令牌由外部托管认证服务签发，本服务只做校验，不负责注册登录。
func RequireAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := verifyRequestToken(c, jwtManager)
		if !ok {
			return
		}
		c.Set(OwnerContextKey, ownerID)
		c.Next()
	}
}

// OptionalAuth 创建一个可选认证的 Gin 中间件。
// 没有携带 Authorization 头的请求按匿名放行，上下文中不会出现 owner；
// 携带了令牌但校验失败的请求仍然返回 401，避免把客户端的凭证错误
// 悄悄降级成匿名访问。
func OptionalAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		ownerID, ok := verifyRequestToken(c, jwtManager)
		if !ok {
			return
		}
		c.Set(OwnerContextKey, ownerID)
		c.Next()
	}
}

// verifyRequestToken 校验请求中的 Bearer 令牌并解析出用户 UUID。
// 校验失败时它会中止请求并返回 401。
func verifyRequestToken(c *gin.Context, jwtManager *token.JWTManager) (uuid.UUID, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
		return uuid.Nil, false
	}

	// Token 以 "Bearer <token>" 的形式提供，我们需要提取出 token 本身
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的授权头格式"})
		return uuid.Nil, false
	}
	tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

	claims, err := jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
		return uuid.Nil, false
	}

	userID, err := claims.UserID()
	if err != nil {
		// subject 不是 UUID，说明不是认证服务给普通用户签发的访问令牌
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
		return uuid.Nil, false
	}
	return userID, true
}
