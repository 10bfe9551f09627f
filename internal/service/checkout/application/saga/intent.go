// internal/service/checkout/application/saga/intent.go
package saga

import (
	"go.opentelemetry.io/otel/codes"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/checkout/domain"
)

// IntentHandler 向意图服务申请支付意图，金额完全由服务端决定。
type IntentHandler struct {
	NextHandler
}

func (h *IntentHandler) Handle(checkoutCtx *CheckoutContext) error {
	checkoutCtx.Transition(domain.StateIntentPending)
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.CreateIntent")
	defer span.End()

	stepCtx, cancel := withTimeout(ctx, checkoutCtx.Timeouts.Intent)
	defer cancel()

	intent, err := checkoutCtx.Gateway.Prepare(stepCtx, checkoutCtx.Session, checkoutCtx.Snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "intent creation failed")
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to create payment intent")
		return domain.NewFailure(domain.CodeIntentError, "We could not start the payment. Please try again.", err)
	}
	checkoutCtx.Intent = intent

	return h.executeNext(checkoutCtx)
}
