// internal/service/order/port/intent.go
package port

import (
	"context"
	"errors"
)

var (
	ErrIntentNotFound   = errors.New("payment intent not found or expired")
	ErrIntentNotOwned   = errors.New("payment intent belongs to another customer")
	ErrInvalidSignature = errors.New("payment signature mismatch")
)

// ClaimedIntent 是服务端登记的支付意图，订单金额以它为准，而不是客户端上报的值。
type ClaimedIntent struct {
	ProviderOrderID string
	AmountMinor     int64
	Currency        string
	// FirstClaim 为 false 说明该意图此前已被认领过（重试或并发请求）。
	FirstClaim bool
}

// IntentClaimer 原子地认领一个已登记的支付意图。
type IntentClaimer interface {
	Claim(ctx context.Context, providerOrderID, customerID string) (*ClaimedIntent, error)
}

// PaymentSignatureVerifier 校验支付渠道回传的签名。
type PaymentSignatureVerifier interface {
	Verify(providerOrderID, paymentID, signature string) error
}
