// internal/service/checkout/application/saga/complete.go
package saga

import (
	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/checkout/domain"
)

// CompleteHandler 是链的末端：清空购物车并进入 completed。购物车只在这里被清空。
type CompleteHandler struct {
	NextHandler
}

func (h *CompleteHandler) Handle(checkoutCtx *CheckoutContext) error {
	_, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Complete")
	defer span.End()

	checkoutCtx.Cart.Clear()
	checkoutCtx.Transition(domain.StateCompleted)
	logger.Ctx(checkoutCtx.Ctx).Info().
		Str("order_id", checkoutCtx.Order.ID).
		Str("vendor_id", checkoutCtx.Assignment.Vendor.ID).
		Msg("✅ Checkout completed")

	return h.executeNext(checkoutCtx)
}
