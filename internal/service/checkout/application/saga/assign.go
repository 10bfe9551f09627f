// internal/service/checkout/application/saga/assign.go
package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/checkout/domain"
)

// AssignHandler 为订单分配商家。超时与"没有可用商家"对调用方一视同仁。
type AssignHandler struct {
	NextHandler
}

func (h *AssignHandler) Handle(checkoutCtx *CheckoutContext) error {
	checkoutCtx.Transition(domain.StateAssigning)
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.AssignVendor")
	defer span.End()

	orderID := checkoutCtx.Order.ID
	span.SetAttributes(attribute.String("order.id", orderID))

	stepCtx, cancel := withTimeout(ctx, checkoutCtx.Timeouts.Assign)
	defer cancel()

	assignment, err := checkoutCtx.Assigner.Assign(stepCtx, checkoutCtx.Session, orderID, checkoutCtx.Snapshot.ProductIDs())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vendor assignment failed")
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("Vendor assignment failed, order kept for follow-up")
		msg := fmt.Sprintf("Sorry, no kitchen can fulfil this order right now. Your payment is safe and order %s has been saved; our support team will contact you.", orderID)
		return domain.NewFailure(domain.CodeAssignmentFailed, msg, err).WithOrder(orderID)
	}
	checkoutCtx.Assignment = assignment
	checkoutCtx.Order = &assignment.Order

	return h.executeNext(checkoutCtx)
}
