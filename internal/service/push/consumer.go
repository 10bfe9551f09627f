// internal/service/push/consumer.go
package push

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/mq"
	orderdomain "tiffin/internal/service/order/domain"
)

// MessageReader 是 kafka.Reader 中消费者用到的部分。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEventConsumer 监听 order-events 主题，把事件推给订单的顾客和商家。
type OrderEventConsumer struct {
	reader MessageReader
	hub    *Hub
}

func NewOrderEventConsumer(reader MessageReader, hub *Hub) *OrderEventConsumer {
	return &OrderEventConsumer{reader: reader, hub: hub}
}

// Run 是一个长期运行的方法，ctx 取消后关闭 reader 并返回。
func (c *OrderEventConsumer) Run(ctx context.Context) error {
	log := logger.Ctx(ctx)
	log.Info().Msg("✅ Order event consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close kafka reader")
		}
	}()

	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完成后再手动提交
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("🛑 Order event consumer shutting down")
				return nil
			}
			log.Error().Err(err).Msg("Could not read message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		c.processMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to commit message")
		}
	}
}

// processMessage 反序列化事件并投递。推送是尽力而为的，离线用户不补发。
func (c *OrderEventConsumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	var event orderdomain.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal order event, skipping")
		return
	}

	delivered := c.hub.Deliver(event.CustomerID, msg.Value)
	if event.VendorID != "" {
		delivered += c.hub.Deliver(event.VendorID, msg.Value)
	}
	logger.Ctx(ctx).Debug().
		Str("type", event.Type).
		Str("order_id", event.OrderID).
		Int("delivered", delivered).
		Msg("Order event pushed")
}
