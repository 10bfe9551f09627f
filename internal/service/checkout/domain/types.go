// internal/service/checkout/domain/types.go
package domain

import "time"

// Session 是当前登录用户的会话，Token 用于调用各个函数。
type Session struct {
	UserID string
	Token  string
}

// Payer 用于预填支付页。
type Payer struct {
	Name    string
	Email   string
	Contact string
}

// IntentLine 是发给意图服务的购物车行，只包含 ID 和数量。
type IntentLine struct {
	ProductID string `json:"id"`
	Quantity  int    `json:"quantity"`
}

// PaymentIntent 是服务端创建的一次性收款授权。
type PaymentIntent struct {
	ProviderOrderID string `json:"id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Receipt         string `json:"receipt"`
}

// CaptureReceipt 是支付成功后支付页回传的凭据。
type CaptureReceipt struct {
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	ProviderSignature string `json:"providerSignature"`
}

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentOutcome 是支付网关适配器每次调用产生的唯一终态结果。
type PaymentOutcome struct {
	Status  PaymentStatus
	Receipt CaptureReceipt
	Message string
}

// Success 对应 {success, providerOrderId?, message?} 中的 success。
func (o PaymentOutcome) Success() bool {
	return o.Status == PaymentSucceeded
}

// OrderRecord 是服务端持久化的订单。
type OrderRecord struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	VendorID   *string   `json:"vendor_id"`
	Total      float64   `json:"total"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Vendor 是被分配的商家。
type Vendor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Assignment 是分配函数的返回。
type Assignment struct {
	Vendor Vendor      `json:"assignedVendor"`
	Order  OrderRecord `json:"updatedOrder"`
}

// Result 是一次结账尝试的结果。取消时 State 回到 idle 且 Cancelled 为 true。
type Result struct {
	State      State
	Cancelled  bool
	Order      *OrderRecord
	Assignment *Assignment
	Failure    *Failure
}
