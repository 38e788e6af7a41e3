package repository

import (
	"context"
	"time"

	"agent-platform-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ToolStateRepository 接口定义了工具调用的审计日志（GORM）
// 与结果缓存、调用频控（Redis）的持久化操作。
type ToolStateRepository interface {
	CreateLog(entry *model.ToolLog) error
	ListLogsByOwner(owner uuid.UUID, limit int) ([]model.ToolLog, error)

	// Cached result operations (Redis)
	GetCachedResult(ctx context.Context, key string) (string, time.Duration, error)
	SetCachedResult(ctx context.Context, key string, payload string, ttl time.Duration) error

	// Rate limit operations (Redis)
	AllowToolCall(ctx context.Context, toolKey string, owner *uuid.UUID, limit int, window time.Duration) (bool, error)
}

// toolStateRepository 是 ToolStateRepository 接口的 GORM+Redis 实现。
type toolStateRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewToolStateRepository 创建一个新的 ToolStateRepository 实例。
func NewToolStateRepository(db *gorm.DB, redisClient *redis.Client) ToolStateRepository {
	return &toolStateRepository{db: db, redisClient: redisClient}
}

// getRateLimitKey generates the redis key for per-user tool rate limiting.
func (r *toolStateRepository) getRateLimitKey(toolKey string, owner *uuid.UUID) string {
	if owner == nil {
		return "toolrate:" + toolKey + ":anonymous"
	}
	return "toolrate:" + toolKey + ":" + owner.String()
}

// CreateLog 追加一条工具调用日志。
func (r *toolStateRepository) CreateLog(entry *model.ToolLog) error {
	return r.db.Create(entry).Error
}

// ListLogsByOwner 列出某用户最近的工具调用日志。
func (r *toolStateRepository) ListLogsByOwner(owner uuid.UUID, limit int) ([]model.ToolLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []model.ToolLog
	err := r.db.Where("owner = ?", owner).
		Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// GetCachedResult 读取缓存的工具结果及其剩余存活时间。
// 缓存未命中时返回空串而非错误。
func (r *toolStateRepository) GetCachedResult(ctx context.Context, key string) (string, time.Duration, error) {
	payload, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	ttl, err := r.redisClient.TTL(ctx, key).Result()
	if err != nil {
		return "", 0, err
	}
	if ttl < 0 {
		ttl = 0
	}
	return payload, ttl, nil
}

// SetCachedResult 写入工具结果缓存。
func (r *toolStateRepository) SetCachedResult(ctx context.Context, key string, payload string, ttl time.Duration) error {
	return r.redisClient.Set(ctx, key, payload, ttl).Err()
}

// AllowToolCall 在滑动窗口内对每个用户的工具调用计数，超限返回 false。
// 计数键在首次调用时设置过期时间，窗口结束后自动清零。
func (r *toolStateRepository) AllowToolCall(ctx context.Context, toolKey string, owner *uuid.UUID, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	key := r.getRateLimitKey(toolKey, owner)
	count, err := r.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.redisClient.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}
