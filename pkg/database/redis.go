package database

import (
	"context"
	"time"

	"agent-platform-go/internal/config"
	"agent-platform-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 是全局的 Redis 客户端。
// 工具结果缓存、调用频控窗口和 Kafka 消费重试计数共用这一个实例。
var RDB *redis.Client

// InitRedis 建立 Redis 连接并确认其可达，连不上直接退出。
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to ping redis", err)
	}

	log.Info("Redis connection established")
}
