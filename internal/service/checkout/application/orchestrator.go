// internal/service/checkout/application/orchestrator.go
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/metrics"
	"tiffin/internal/service/cart"
	"tiffin/internal/service/checkout/application/saga"
	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
)

// Dependencies 是编排器需要的全部协作者。Guard 可选，为空时只做进程内串行化。
type Dependencies struct {
	Cart     *cart.Aggregator
	Sessions port.SessionProvider
	Gateway  saga.PaymentGateway
	Recorder port.OrderRecorder
	Assigner port.VendorAssigner
	Guard    port.AttemptGuard
	Tracer   trace.Tracer
	Timeouts saga.Timeouts
}

// TransitionListener 在每次状态变化后被调用。
type TransitionListener func(from, to domain.State)

// Orchestrator 是结账编排器，一个实例对应一个用户会话的购物车。
type Orchestrator struct {
	deps Dependencies

	running atomic.Bool

	mu        sync.RWMutex
	state     domain.State
	listeners []TransitionListener
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{deps: deps, state: domain.StateIdle}
}

// OnTransition 注册状态监听器，界面用它禁用结账按钮或展示进度。
func (o *Orchestrator) OnTransition(l TransitionListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *Orchestrator) State() domain.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Busy 表示当前有一次尝试正在进行。
func (o *Orchestrator) Busy() bool {
	return o.running.Load()
}

func (o *Orchestrator) transition(to domain.State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	listeners := append([]TransitionListener(nil), o.listeners...)
	o.mu.Unlock()
	if from == to {
		return
	}
	for _, l := range listeners {
		l(from, to)
	}
}

// Checkout 执行一次完整的结账尝试，直到到达终态或因取消回到 idle。
// 返回的 error 与 Result.Failure 相同；取消时两者都为空。
func (o *Orchestrator) Checkout(ctx context.Context, payer domain.Payer) (result *domain.Result, err error) {
	if !o.running.CompareAndSwap(false, true) {
		metrics.CheckoutAttempts.WithLabelValues(string(domain.CodeCheckoutInProgress)).Inc()
		f := domain.NewFailure(domain.CodeCheckoutInProgress, "A checkout is already in progress.", port.ErrAttemptInProgress)
		return &domain.Result{State: o.State(), Failure: f}, f
	}
	defer o.running.Store(false)

	ctx, span := o.deps.Tracer.Start(ctx, "checkout.Attempt")
	defer span.End()

	if !o.State().CanStart() {
		metrics.CheckoutAttempts.WithLabelValues(string(domain.CodeCheckoutInProgress)).Inc()
		f := domain.NewFailure(domain.CodeCheckoutInProgress, "A checkout is already in progress.", port.ErrAttemptInProgress)
		return &domain.Result{State: o.State(), Failure: f}, f
	}
	// 上一次尝试的终态不延续到新尝试
	o.transition(domain.StateIdle)

	checkoutCtx := &saga.CheckoutContext{
		Ctx:        ctx,
		Tracer:     o.deps.Tracer,
		Cart:       o.deps.Cart,
		Snapshot:   o.deps.Cart.Snapshot(),
		Payer:      payer,
		Timeouts:   o.deps.Timeouts,
		Sessions:   o.deps.Sessions,
		Gateway:    o.deps.Gateway,
		Recorder:   o.deps.Recorder,
		Assigner:   o.deps.Assigner,
		Guard:      o.deps.Guard,
		Transition: o.transition,
	}
	defer checkoutCtx.ReleaseAll()
	span.SetAttributes(attribute.Int("cart.items", checkoutCtx.Snapshot.TotalItems))

	// 构建责任链
	validate := &saga.ValidateHandler{}
	validate.SetNext(&saga.IntentHandler{}).
		SetNext(&saga.PaymentHandler{}).
		SetNext(&saga.PersistHandler{}).
		SetNext(&saga.AssignHandler{}).
		SetNext(&saga.CompleteHandler{})

	runErr := o.run(validate, checkoutCtx)

	switch {
	case runErr == nil:
		metrics.CheckoutAttempts.WithLabelValues(string(domain.StateCompleted)).Inc()
		return &domain.Result{
			State:      domain.StateCompleted,
			Order:      checkoutCtx.Order,
			Assignment: checkoutCtx.Assignment,
		}, nil

	case errors.Is(runErr, saga.ErrPaymentCancelled):
		o.transition(domain.StateIdle)
		metrics.CheckoutAttempts.WithLabelValues("cancelled").Inc()
		return &domain.Result{State: domain.StateIdle, Cancelled: true}, nil
	}

	var failure *domain.Failure
	if !errors.As(runErr, &failure) {
		failure = o.unexpectedFailure(checkoutCtx, runErr)
	}
	o.transition(domain.StateFailed)
	span.RecordError(failure)
	span.SetStatus(codes.Error, string(failure.Code))
	metrics.CheckoutAttempts.WithLabelValues(string(failure.Code)).Inc()

	ev := logger.Ctx(ctx).Warn()
	if failure.Kind == domain.KindPersistence {
		ev = logger.Ctx(ctx).Error()
	}
	ev.Str("code", string(failure.Code)).Str("order_id", failure.OrderID).Msg("Checkout failed")

	return &domain.Result{State: domain.StateFailed, Order: checkoutCtx.Order, Failure: failure}, failure
}

// run 执行责任链，步骤中的 panic 被转为失败而不是让调用方崩溃。
func (o *Orchestrator) run(head saga.Handler, checkoutCtx *saga.CheckoutContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Ctx(checkoutCtx.Ctx).Error().Interface("panic", r).Str("state", string(o.State())).Msg("Checkout step panicked")
			err = fmt.Errorf("checkout step panicked: %v", r)
		}
	}()
	return head.Handle(checkoutCtx)
}

// unexpectedFailure 把非预期错误按当前所处阶段归类，扣款之后的阶段必须带上订单号。
func (o *Orchestrator) unexpectedFailure(checkoutCtx *saga.CheckoutContext, err error) *domain.Failure {
	orderID := checkoutCtx.Outcome.Receipt.ProviderOrderID
	state := o.State()
	switch {
	case state == domain.StateOrderPersisting:
		msg := fmt.Sprintf("Your payment went through but we could not save your order. Please contact support with reference %s.", orderID)
		return domain.NewFailure(domain.CodePersistenceError, msg, err).WithOrder(orderID)
	case state.PaymentCaptured():
		msg := fmt.Sprintf("Sorry, no kitchen can fulfil this order right now. Your payment is safe and order %s has been saved; our support team will contact you.", orderID)
		return domain.NewFailure(domain.CodeAssignmentFailed, msg, err).WithOrder(orderID)
	case state == domain.StatePaymentPending:
		return domain.NewFailure(domain.CodePaymentFailed, "Payment could not be completed.", err)
	case state == domain.StateIntentPending:
		return domain.NewFailure(domain.CodeIntentError, "We could not start the payment. Please try again.", err)
	default:
		return domain.NewFailure(domain.CodeNotAuthenticated, "Please sign in to place your order.", err)
	}
}
