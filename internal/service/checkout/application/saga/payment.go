// internal/service/checkout/application/saga/payment.go
package saga

import (
	"go.opentelemetry.io/otel/codes"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/checkout/domain"
)

// PaymentHandler 展示收银台并等待唯一结果。取消不是失败。
type PaymentHandler struct {
	NextHandler
}

func (h *PaymentHandler) Handle(checkoutCtx *CheckoutContext) error {
	checkoutCtx.Transition(domain.StatePaymentPending)
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.CapturePayment")
	defer span.End()

	stepCtx, cancel := withTimeout(ctx, checkoutCtx.Timeouts.Payment)
	defer cancel()

	outcome := checkoutCtx.Gateway.Capture(stepCtx, checkoutCtx.Intent, checkoutCtx.Payer)
	checkoutCtx.Outcome = outcome

	switch outcome.Status {
	case domain.PaymentSucceeded:
		span.AddEvent("payment captured")
	case domain.PaymentCancelled:
		logger.Ctx(ctx).Info().Str("provider_order_id", checkoutCtx.Intent.ProviderOrderID).Msg("Payment cancelled by user")
		return ErrPaymentCancelled
	default:
		span.SetStatus(codes.Error, outcome.Message)
		return domain.NewFailure(domain.CodePaymentFailed, outcome.Message, nil)
	}

	return h.executeNext(checkoutCtx)
}
