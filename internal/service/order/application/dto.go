// internal/service/order/application/dto.go
package application

import "tiffin/internal/service/order/domain"

// RecordPaidOrderRequest 是支付成功后客户端提交的凭据。金额不在其中，由服务端的支付意图决定。
type RecordPaidOrderRequest struct {
	ProviderOrderID string `json:"providerOrderId"`
	PaymentID       string `json:"providerPaymentId"`
	Signature       string `json:"providerSignature"`
}

// UpdateStatusRequest 是商家推进订单状态的请求。
type UpdateStatusRequest struct {
	OrderID string        `json:"orderId"`
	Status  domain.Status `json:"status"`
}
