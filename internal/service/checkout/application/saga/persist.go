// internal/service/checkout/application/saga/persist.go
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
)

const (
	persistAttempts = 3 // 与 bootstrap.CheckoutConfig.PersistBudget 保持一致
	persistBackoff  = 300 * time.Millisecond
)

// PersistHandler 落库已支付订单。渠道订单号是幂等键，因此暂时性故障下可以安全重试同一请求。
type PersistHandler struct {
	NextHandler
}

func (h *PersistHandler) Handle(checkoutCtx *CheckoutContext) error {
	checkoutCtx.Transition(domain.StateOrderPersisting)
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.PersistOrder")
	defer span.End()

	receipt := checkoutCtx.Outcome.Receipt
	span.SetAttributes(attribute.String("order.id", receipt.ProviderOrderID))

	var (
		order *domain.OrderRecord
		err   error
	)
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		stepCtx, cancel := withTimeout(ctx, checkoutCtx.Timeouts.Persist)
		order, err = checkoutCtx.Recorder.RecordPaidOrder(stepCtx, checkoutCtx.Session, receipt)
		cancel()
		if err == nil || !retryable(err) || attempt == persistAttempts {
			break
		}
		logger.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Str("order_id", receipt.ProviderOrderID).Msg("Order insert failed, retrying with same order id")
		if !sleepCtx(ctx, persistBackoff*time.Duration(attempt)) {
			break
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order persistence failed")
		logger.Ctx(ctx).Error().Err(err).Str("order_id", receipt.ProviderOrderID).Msg("CRITICAL: payment captured but order not persisted")
		msg := fmt.Sprintf("Your payment went through but we could not save your order. Please contact support with reference %s.", receipt.ProviderOrderID)
		return domain.NewFailure(domain.CodePersistenceError, msg, err).WithOrder(receipt.ProviderOrderID)
	}
	checkoutCtx.Order = order

	return h.executeNext(checkoutCtx)
}

func retryable(err error) bool {
	return errors.Is(err, port.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
