// Package token 提供了对托管认证服务签发的 JSON Web Tokens (JWT) 的校验功能。
// 本服务不负责注册登录，访问令牌统一由外部认证服务签发（HS256），
// 这里只用共享密钥在本地校验签名、有效期与受众。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTManager 负责校验认证服务签发的访问令牌。
type JWTManager struct {
	secretKey []byte // secretKey 是与认证服务共享的 HS256 密钥
	audience  string // audience 是访问令牌的预期受众
}

// AccessClaims 是访问令牌携带的声明。Subject 为用户的 UUID。
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID 将 Subject 声明解析为用户 UUID。
func (c *AccessClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject claim: %w", err)
	}
	return id, nil
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// secret: 认证服务的 JWT 签名密钥。
// audience: 访问令牌的预期受众（通常为 "authenticated"）。
func NewJWTManager(secret, audience string) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		audience:  audience,
	}
}

// VerifyToken 验证给定的 token 字符串。
// 如果 token 有效，它会返回 AccessClaims 对象。
// 如果 token 无效（例如，签名不匹配、受众不符或已过期），则返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithAudience(m.audience))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GenerateStreamToken 为 WebSocket 流式对话签发一个短期令牌。
// WebSocket 握手无法携带 Authorization 头，前端先用访问令牌换取
// 该短期令牌，再将其拼在连接路径上。
func (m *JWTManager) GenerateStreamToken(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	claims := AccessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// GenerateRandomString generates a random hex string of a given length.
func GenerateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less random string on error
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
