// Package gateway 把"创建支付意图 + 展示收银台 + 等待结果"封装为一次调用，每次调用恰好产生一个结果。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/cart"
	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
)

const msgTimedOut = "payment timed out"

// Adapter 是支付网关适配器。它从不在本地计算金额，金额只来自意图服务。
type Adapter struct {
	intents port.IntentCreator
	sheet   port.PaymentSheet
	tracer  trace.Tracer
}

func NewAdapter(intents port.IntentCreator, sheet port.PaymentSheet, tracer trace.Tracer) *Adapter {
	return &Adapter{intents: intents, sheet: sheet, tracer: tracer}
}

// Prepare 用购物车快照向意图服务申请支付意图，只发送商品 ID 和数量。
func (a *Adapter) Prepare(ctx context.Context, session *domain.Session, snapshot cart.Snapshot) (*domain.PaymentIntent, error) {
	ctx, span := a.tracer.Start(ctx, "gateway.Prepare")
	defer span.End()

	lines := make([]domain.IntentLine, 0, len(snapshot.Lines))
	for _, l := range snapshot.Lines {
		lines = append(lines, domain.IntentLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	intent, err := a.intents.CreateIntent(ctx, session, lines)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if intent.ProviderOrderID == "" {
		return nil, errors.New("intent service returned no provider order id")
	}
	span.SetAttributes(attribute.String("payment.provider_order_id", intent.ProviderOrderID), attribute.Int64("payment.amount", intent.Amount))
	return intent, nil
}

// Capture 展示收银台并等待唯一的终态结果。
// 收银台的多次回调只取第一次；ctx 超时视为失败，ctx 被取消视为用户放弃。
func (a *Adapter) Capture(ctx context.Context, intent *domain.PaymentIntent, payer domain.Payer) domain.PaymentOutcome {
	ctx, span := a.tracer.Start(ctx, "gateway.Capture", trace.WithAttributes(
		attribute.String("payment.provider_order_id", intent.ProviderOrderID),
	))
	defer span.End()

	outcomes := make(chan domain.PaymentOutcome, 1)
	var once sync.Once
	report := func(o domain.PaymentOutcome) {
		once.Do(func() { outcomes <- o })
	}

	cb := port.SheetCallbacks{
		OnSuccess: func(r domain.CaptureReceipt) {
			if r.ProviderOrderID != intent.ProviderOrderID {
				report(domain.PaymentOutcome{
					Status:  domain.PaymentFailed,
					Message: fmt.Sprintf("payment confirmation for unexpected order %q", r.ProviderOrderID),
				})
				return
			}
			report(domain.PaymentOutcome{Status: domain.PaymentSucceeded, Receipt: r})
		},
		OnDismiss: func() {
			report(domain.PaymentOutcome{Status: domain.PaymentCancelled})
		},
		OnFailure: func(message string) {
			if message == "" {
				message = "payment failed"
			}
			report(domain.PaymentOutcome{Status: domain.PaymentFailed, Message: message})
		},
	}

	if err := a.sheet.Present(ctx, intent, payer, cb); err != nil {
		report(domain.PaymentOutcome{Status: domain.PaymentFailed, Message: err.Error()})
	}

	var outcome domain.PaymentOutcome
	select {
	case outcome = <-outcomes:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			report(domain.PaymentOutcome{Status: domain.PaymentFailed, Message: msgTimedOut})
		} else {
			report(domain.PaymentOutcome{Status: domain.PaymentCancelled})
		}
		outcome = <-outcomes
	}

	span.SetAttributes(attribute.String("payment.status", string(outcome.Status)))
	logger.Ctx(ctx).Info().
		Str("provider_order_id", intent.ProviderOrderID).
		Str("status", string(outcome.Status)).
		Msg("Payment sheet closed")
	return outcome
}

// Open 是 Prepare 与 Capture 的组合。意图创建失败时返回 error，之后的任何结果都通过 PaymentOutcome 表达。
func (a *Adapter) Open(ctx context.Context, session *domain.Session, snapshot cart.Snapshot, payer domain.Payer) (domain.PaymentOutcome, error) {
	intent, err := a.Prepare(ctx, session, snapshot)
	if err != nil {
		return domain.PaymentOutcome{}, err
	}
	return a.Capture(ctx, intent, payer), nil
}
