// Package kafka 封装文档入库任务的生产与消费。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agent-platform-go/internal/config"
	"agent-platform-go/pkg/database"
	"agent-platform-go/pkg/log"
	"agent-platform-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

const (
	consumerGroup = "agent-platform-consumer"

	// maxProcessAttempts 限制单个文档任务的处理次数，耗尽后提交 offset 放弃该消息。
	maxProcessAttempts = 3
	// attemptsTTL 约束失败计数的存活时间，避免 Redis 里残留陈旧计数。
	attemptsTTL = 24 * time.Hour
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentProcessingTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceDocumentTask 把一条文档入库任务写入 Kafka。
// 以 DocumentID 作为消息 Key，同一文档的消息始终落在同一分区。
func ProduceDocumentTask(task tasks.DocumentProcessingTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化文档任务失败: %w", err)
	}
	return producer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(task.DocumentID.String()),
		Value: payload,
	})
}

// StartConsumer 启动 Kafka 消费者，循环消费文档入库任务。
// 消费语义为至少一次：offset 仅在任务成功、消息损坏或重试耗尽后提交。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  consumerGroup,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		if handleMessage(processor, m) {
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}

// handleMessage 处理单条消息，返回是否应当提交 offset。
func handleMessage(processor TaskProcessor, m kafka.Message) bool {
	var task tasks.DocumentProcessingTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		// 损坏的消息重试也无意义，提交掉以免阻塞分区。
		log.Errorf("无法解析 Kafka 消息 (offset %d): %v", m.Offset, err)
		return true
	}

	log.Infof("开始处理文档任务: DocumentID=%s, FileName=%s", task.DocumentID, task.FileName)
	if err := processor.Process(context.Background(), task); err != nil {
		log.Errorf("处理文档任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)
		return exhaustedRetries(task.DocumentID.String())
	}

	log.Infof("文档任务处理成功: DocumentID=%s", task.DocumentID)
	clearFailureCount(task.DocumentID.String())
	return true
}

// exhaustedRetries 在 Redis 中累加失败次数，返回是否已达上限。
// Redis 不可用时按未达上限处理，保留消息等待 Kafka 重投。
func exhaustedRetries(documentID string) bool {
	key := failureCountKey(documentID)
	attempts, err := database.RDB.Incr(context.Background(), key).Result()
	if err != nil {
		return false
	}
	_ = database.RDB.Expire(context.Background(), key, attemptsTTL).Err()
	if attempts < maxProcessAttempts {
		return false
	}
	log.Errorf("文档任务连续失败 %d 次，放弃重试: DocumentID=%s", attempts, documentID)
	return true
}

func clearFailureCount(documentID string) {
	_ = database.RDB.Del(context.Background(), failureCountKey(documentID)).Err()
}

func failureCountKey(documentID string) string {
	return "kafka:attempts:" + documentID
}
