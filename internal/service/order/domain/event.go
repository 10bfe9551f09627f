// internal/service/order/domain/event.go
package domain

import (
	"context"
	"time"
)

const (
	EventOrderCreated          = "order.created"
	EventOrderAssigned         = "order.assigned"
	EventOrderAssignmentFailed = "order.assignment_failed"
	EventOrderStatusChanged    = "order.status_changed"
)

// OrderEvent 是发布到 order-events 主题的生命周期事件，推送网关据此通知顾客和商家。
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	VendorID   string    `json:"vendorId,omitempty"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewOrderEvent 根据订单当前快照构造事件。
func NewOrderEvent(eventType string, o *Order, reason string, at time.Time) *OrderEvent {
	ev := &OrderEvent{
		Type:       eventType,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Reason:     reason,
		OccurredAt: at,
	}
	if o.VendorID != nil {
		ev.VendorID = *o.VendorID
	}
	return ev
}

// EventPublisher 是事件发布的出站端口。发布失败只记录日志，不回滚订单状态。
type EventPublisher interface {
	Publish(ctx context.Context, event *OrderEvent) error
}

// NopPublisher 丢弃所有事件，未配置 Kafka 时使用。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *OrderEvent) error { return nil }
