// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/metrics"
	"tiffin/internal/service/order/domain"
	"tiffin/internal/service/order/port"
)

var (
	ErrForbidden = errors.New("not allowed to access this order")
	ErrConflict  = errors.New("order changed concurrently")
)

// OrderApplicationService 负责订单记录的写入与状态推进。
type OrderApplicationService struct {
	repo      domain.OrderRepository
	intents   port.IntentClaimer
	signature port.PaymentSignatureVerifier
	publisher domain.EventPublisher
	tracer    trace.Tracer
	now       func() time.Time
}

func NewOrderApplicationService(repo domain.OrderRepository, intents port.IntentClaimer, signature port.PaymentSignatureVerifier, publisher domain.EventPublisher, tracer trace.Tracer) *OrderApplicationService {
	if publisher == nil {
		publisher = domain.NopPublisher{}
	}
	return &OrderApplicationService{
		repo: repo, intents: intents, signature: signature,
		publisher: publisher, tracer: tracer, now: time.Now,
	}
}

// RecordPaidOrder 在支付成功后落库一条 payment_successful 订单。
// 以支付渠道订单号为主键，重复提交返回已存在的订单，不会产生第二条记录。
func (s *OrderApplicationService) RecordPaidOrder(ctx context.Context, caller *auth.Principal, req *RecordPaidOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.RecordPaidOrder", trace.WithAttributes(
		attribute.String("order.id", req.ProviderOrderID),
	))
	defer span.End()

	if err := s.signature.Verify(req.ProviderOrderID, req.PaymentID, req.Signature); err != nil {
		metrics.OrdersRecorded.WithLabelValues("bad_signature").Inc()
		span.SetStatus(codes.Error, "signature mismatch")
		logger.Ctx(ctx).Warn().Str("order_id", req.ProviderOrderID).Msg("Rejected paid order with invalid signature")
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, req.ProviderOrderID)
	switch {
	case err == nil:
		if existing.CustomerID != caller.UserID {
			return nil, ErrForbidden
		}
		metrics.OrdersRecorded.WithLabelValues("duplicate").Inc()
		return existing, nil
	case !errors.Is(err, domain.ErrOrderNotFound):
		span.RecordError(err)
		return nil, err
	}

	intent, err := s.intents.Claim(ctx, req.ProviderOrderID, caller.UserID)
	if err != nil {
		metrics.OrdersRecorded.WithLabelValues("intent_rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "intent claim failed")
		return nil, err
	}

	order, err := domain.NewPaidOrder(req.ProviderOrderID, caller.UserID, intent.AmountMinor, s.now().UTC())
	if err != nil {
		return nil, err
	}
	stored, created, err := s.repo.Insert(ctx, order)
	if err != nil {
		metrics.OrdersRecorded.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to persist paid order")
		return nil, err
	}
	if !created {
		metrics.OrdersRecorded.WithLabelValues("duplicate").Inc()
		return stored, nil
	}

	metrics.OrdersRecorded.WithLabelValues("created").Inc()
	logger.Ctx(ctx).Info().Str("order_id", stored.ID).Float64("total", stored.Total).Msg("✅ Paid order recorded")
	s.publish(ctx, domain.NewOrderEvent(domain.EventOrderCreated, stored, "", s.now().UTC()))
	return stored, nil
}

// GetOrder 按调用方身份返回订单：顾客只能看自己的，商家只能看分配给自己的。
func (s *OrderApplicationService) GetOrder(ctx context.Context, caller *auth.Principal, id string) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, order) {
		return nil, ErrForbidden
	}
	return order, nil
}

// AdvanceStatus 由商家推进订单状态，使用比较并交换，重复推进到同一状态视为成功。
// awaiting_acceptance 只能经由商家分配进入，任何角色都不能直接设置。
func (s *OrderApplicationService) AdvanceStatus(ctx context.Context, caller *auth.Principal, req *UpdateStatusRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.AdvanceStatus", trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("order.status.to", string(req.Status)),
	))
	defer span.End()

	if !req.Status.IsValid() || domain.IsAssignmentStep(req.Status) {
		return nil, domain.ErrIllegalTransition
	}
	switch caller.Role {
	case auth.RoleVendor:
		if !domain.IsVendorStep(req.Status) {
			return nil, domain.ErrIllegalTransition
		}
	case auth.RoleAdmin:
	default:
		return nil, ErrForbidden
	}

	order, err := s.repo.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if caller.Role == auth.RoleVendor && (!order.IsAssigned() || *order.VendorID != caller.VendorID) {
		return nil, ErrForbidden
	}
	// 商家侧状态只对已分配商家的订单有意义，管理员也不例外
	if domain.IsVendorStep(req.Status) && !order.IsAssigned() {
		return nil, domain.ErrIllegalTransition
	}
	if order.Status == req.Status {
		return order, nil
	}

	from := order.Status
	now := s.now().UTC()
	if err := order.TransitionTo(req.Status, now); err != nil {
		return nil, err
	}
	ok, err := s.repo.CompareAndSetStatus(ctx, order.ID, from, req.Status, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		current, findErr := s.repo.FindByID(ctx, order.ID)
		if findErr == nil && current.Status == req.Status {
			return current, nil
		}
		return nil, ErrConflict
	}

	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("from", string(from)).Str("to", string(req.Status)).Msg("Order status advanced")
	s.publish(ctx, domain.NewOrderEvent(domain.EventOrderStatusChanged, order, "", now))
	return order, nil
}

func (s *OrderApplicationService) publish(ctx context.Context, ev *domain.OrderEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", ev.OrderID).Str("type", ev.Type).Msg("Order event not published")
	}
}

func canView(caller *auth.Principal, order *domain.Order) bool {
	switch caller.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleVendor:
		return order.IsAssigned() && *order.VendorID == caller.VendorID
	default:
		return order.CustomerID == caller.UserID
	}
}
