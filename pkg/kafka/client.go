// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"mu-assistant-go/internal/config"
	"mu-assistant-go/internal/model"
	"mu-assistant-go/pkg/log"
)

// maxAttempts 是单条用量事件的最大处理次数，超过后提交 offset 放弃该消息。
const maxAttempts = 3

// UsageRecorder defines the interface for any service that can aggregate a usage event.
// This decouples the Kafka consumer from the concrete storage implementation.
type UsageRecorder interface {
	Record(ctx context.Context, event model.UsageEvent) error
}

// Producer 把用量事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		Async:                  false,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一条用量事件，以用户 ID 作为消息 key 保证同一用户的事件有序。
func (p *Producer) Publish(ctx context.Context, event model.UsageEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: eventBytes,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来汇总用量事件，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, recorder UsageRecorder) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		if err := handleMessage(ctx, m, recorder); err != nil {
			log.Errorf("处理用量事件失败, offset %d: %v", m.Offset, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handleMessage 解析并记录一条消息。格式错误的消息直接放弃，
// 记录失败时重试，达到 maxAttempts 后放弃，避免阻塞队列。
func handleMessage(ctx context.Context, m kafka.Message, recorder UsageRecorder) error {
	var event model.UsageEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("无法解析 Kafka 消息: %w, value: %s", err, string(m.Value))
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = recorder.Record(ctx, event); err == nil {
			return nil
		}
		log.Warnf("记录用量事件失败(第 %d 次): %v", attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		}
	}
	return fmt.Errorf("用量事件多次失败(>=%d)，放弃: %w", maxAttempts, err)
}
