// internal/service/checkout/application/saga/validate.go
package saga

import (
	"errors"

	"go.opentelemetry.io/otel/codes"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/port"
)

// ValidateHandler 在任何网络调用之前检查购物车和会话，并占用跨设备的结账锁。
type ValidateHandler struct {
	NextHandler
}

func (h *ValidateHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Validate")
	defer span.End()

	if checkoutCtx.Snapshot.IsEmpty() {
		span.SetStatus(codes.Error, "empty cart")
		return domain.NewFailure(domain.CodeEmptyCart, "Your cart is empty.", nil)
	}

	session, err := checkoutCtx.Sessions.Current(ctx)
	if err != nil || session == nil {
		span.SetStatus(codes.Error, "no session")
		return domain.NewFailure(domain.CodeNotAuthenticated, "Please sign in to place your order.", err)
	}
	checkoutCtx.Session = session

	if checkoutCtx.Guard != nil {
		release, err := checkoutCtx.Guard.Acquire(ctx, session.UserID)
		if err != nil {
			span.RecordError(err)
			if errors.Is(err, port.ErrAttemptInProgress) {
				return domain.NewFailure(domain.CodeCheckoutInProgress, "A checkout is already in progress for your account.", err)
			}
			logger.Ctx(ctx).Warn().Err(err).Msg("Attempt guard unavailable, continuing with local serialization only")
		} else {
			checkoutCtx.AddRelease(release)
		}
	}

	return h.executeNext(checkoutCtx)
}
