// internal/service/checkout/port/ports.go
package port

import (
	"context"
	"errors"

	"tiffin/internal/service/checkout/domain"
)

var (
	ErrNoSession         = errors.New("no valid session")
	ErrAttemptInProgress = errors.New("another checkout attempt is in progress")
	// ErrUnavailable 表示下游暂时不可用，同一幂等键的调用可以重试。
	ErrUnavailable = errors.New("service temporarily unavailable")
)

// IntentCreator 调用意图服务，为购物车创建支付意图。
type IntentCreator interface {
	CreateIntent(ctx context.Context, session *domain.Session, lines []domain.IntentLine) (*domain.PaymentIntent, error)
}

// SheetCallbacks 是支付页的回调。支付页可能多次回调，由网关适配器保证只取第一次。
type SheetCallbacks struct {
	OnSuccess func(receipt domain.CaptureReceipt)
	OnDismiss func()
	OnFailure func(message string)
}

// PaymentSheet 是支付渠道的收银台界面。Present 展示后立即返回，结果通过回调送达。
type PaymentSheet interface {
	Present(ctx context.Context, intent *domain.PaymentIntent, payer domain.Payer, cb SheetCallbacks) error
}

// OrderRecorder 在扣款成功后落库订单，以渠道订单号为幂等键。
type OrderRecorder interface {
	RecordPaidOrder(ctx context.Context, session *domain.Session, receipt domain.CaptureReceipt) (*domain.OrderRecord, error)
}

// VendorAssigner 调用分配函数。
type VendorAssigner interface {
	Assign(ctx context.Context, session *domain.Session, orderID string, productIDs []string) (*domain.Assignment, error)
}

// SessionProvider 返回当前会话，没有有效会话时返回 ErrNoSession。
type SessionProvider interface {
	Current(ctx context.Context) (*domain.Session, error)
}

// AttemptGuard 跨进程串行化同一用户的结账尝试，已被占用时返回 ErrAttemptInProgress。
type AttemptGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
