// internal/service/checkout/application/saga/handler.go
package saga

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tiffin/internal/service/cart"
	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
)

// ErrPaymentCancelled 表示用户关闭了收银台，不是失败，状态机静默回到 idle。
var ErrPaymentCancelled = errors.New("payment cancelled by user")

// PaymentGateway 是支付网关适配器在流程中使用的两个阶段。
type PaymentGateway interface {
	Prepare(ctx context.Context, session *domain.Session, snapshot cart.Snapshot) (*domain.PaymentIntent, error)
	Capture(ctx context.Context, intent *domain.PaymentIntent, payer domain.Payer) domain.PaymentOutcome
}

// Timeouts 是每个挂起步骤的最长等待时间。
type Timeouts struct {
	Intent  time.Duration
	Payment time.Duration
	Persist time.Duration
	Assign  time.Duration
}

// CheckoutContext 在责任链中传递一次结账尝试的上下文。
type CheckoutContext struct {
	Ctx      context.Context
	Tracer   trace.Tracer
	Cart     *cart.Aggregator
	Snapshot cart.Snapshot
	Payer    domain.Payer
	Timeouts Timeouts

	// 依赖出站端口
	Sessions port.SessionProvider
	Gateway  PaymentGateway
	Recorder port.OrderRecorder
	Assigner port.VendorAssigner
	Guard    port.AttemptGuard

	// Transition 推进状态机，由编排器注入
	Transition func(to domain.State)

	// 各步骤的产出
	Session    *domain.Session
	Intent     *domain.PaymentIntent
	Outcome    domain.PaymentOutcome
	Order      *domain.OrderRecord
	Assignment *domain.Assignment

	releases []func()
	relLock  sync.Mutex
}

// AddRelease 登记流程结束时需要释放的资源，按后进先出执行。
func (c *CheckoutContext) AddRelease(fn func()) {
	c.relLock.Lock()
	defer c.relLock.Unlock()
	c.releases = append([]func(){fn}, c.releases...)
}

// ReleaseAll 执行所有登记的释放函数。
func (c *CheckoutContext) ReleaseAll() {
	c.relLock.Lock()
	defer c.relLock.Unlock()
	for _, fn := range c.releases {
		fn()
	}
	c.releases = nil
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(checkoutCtx *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(checkoutCtx *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(checkoutCtx)
	}
	return nil
}

// withTimeout 为单个步骤派生带超时的 ctx，d<=0 时不设超时。
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
