// internal/service/order/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/mq"
	"tiffin/internal/service/order/domain"
)

// KafkaEventPublisher 把订单生命周期事件写入 order-events 主题，以订单号作为分区 Key。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event *domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", event.OrderID).Msg("Failed to marshal order event")
		return err
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.OrderID), payload); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", event.OrderID).Str("type", event.Type).Msg("Failed to produce order event")
		return err
	}
	return nil
}
