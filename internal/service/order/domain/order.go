// internal/service/order/domain/order.go
package domain

import (
	"errors"
	"time"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrInvalidOrder      = errors.New("invalid order")
)

// Order 是订单聚合的根实体。
// ID 直接复用支付渠道的订单号，同一笔支付最多对应一条订单。
type Order struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	VendorID   *string   `json:"vendor_id"`
	Total      float64   `json:"total"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"-"`
}

// NewPaidOrder 用支付成功后的信息创建订单，金额来自服务端登记的支付意图（最小货币单位）。
func NewPaidOrder(providerOrderID, customerID string, amountMinor int64, now time.Time) (*Order, error) {
	if providerOrderID == "" || customerID == "" || amountMinor <= 0 {
		return nil, ErrInvalidOrder
	}
	return &Order{
		ID:         providerOrderID,
		CustomerID: customerID,
		Total:      MinorToMajor(amountMinor),
		Status:     StatusPaymentSuccessful,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsAssigned 判断订单是否已经分配过商家。
func (o *Order) IsAssigned() bool {
	return o.VendorID != nil && *o.VendorID != ""
}

// TransitionTo 在内存中推进状态，非法流转返回 ErrIllegalTransition。
func (o *Order) TransitionTo(to Status, now time.Time) error {
	if !CanTransitionTo(o.Status, to) {
		return ErrIllegalTransition
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// Clone 返回一份深拷贝。
func (o *Order) Clone() *Order {
	c := *o
	if o.VendorID != nil {
		v := *o.VendorID
		c.VendorID = &v
	}
	return &c
}

// MinorToMajor 把最小货币单位换算为主单位。
func MinorToMajor(minor int64) float64 {
	return float64(minor) / 100
}
