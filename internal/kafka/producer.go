package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/aihub/classroom-rag/internal/logger"
	"go.uber.org/zap"
)

// 文档生命周期事件类型
const (
	EventDocumentProcessed = "document.processed"
	EventDocumentFailed    = "document.failed"
	EventDocumentDeleted   = "document.deleted"
)

// DocumentEvent 文档生命周期事件
type DocumentEvent struct {
	Type        string    `json:"type"`
	DocumentID  uint      `json:"document_id"`
	ClassroomID uint      `json:"classroom_id"`
	Status      string    `json:"status"`
	ChunkCount  int       `json:"chunk_count"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer 连接 brokers 并创建同步生产者
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return NewProducerFromClient(producer, topic), nil
}

// NewProducerFromClient 使用已有的 sarama 生产者
func NewProducerFromClient(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

// Topic 事件主题
func (p *Producer) Topic() string { return p.topic }

// Publish 发送文档事件，以文档ID为 key 保证同一文档有序
func (p *Producer) Publish(_ context.Context, ev DocumentEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	docID := strconv.FormatUint(uint64(ev.DocumentID), 10)
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(docID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
			{Key: []byte("classroom_id"), Value: []byte(strconv.FormatUint(uint64(ev.ClassroomID), 10))},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("发送Kafka消息失败", zap.Error(err), zap.String("event", ev.Type))
		return fmt.Errorf("发送消息失败: %w", err)
	}

	logger.Debug("Kafka消息发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("event", ev.Type),
		zap.Uint("document_id", ev.DocumentID))
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
