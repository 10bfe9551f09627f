// internal/service/assignment/application/service.go
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
	"tiffin/internal/service/assignment/domain"
	"tiffin/internal/service/assignment/port"
	orderdomain "tiffin/internal/service/order/domain"
)

// AssignmentApplicationService 为已支付订单选择唯一的履约商家。
// 服务本身无共享内存状态，防止重复分配完全依赖订单表上的条件更新。
type AssignmentApplicationService struct {
	orders    orderdomain.OrderRepository
	vendors   port.VendorDirectory
	policy    port.VendorPolicy
	publisher orderdomain.EventPublisher
	tracer    trace.Tracer
	now       func() time.Time
}

func NewAssignmentApplicationService(orders orderdomain.OrderRepository, vendors port.VendorDirectory, policy port.VendorPolicy, publisher orderdomain.EventPublisher, tracer trace.Tracer) *AssignmentApplicationService {
	if publisher == nil {
		publisher = orderdomain.NopPublisher{}
	}
	return &AssignmentApplicationService{
		orders: orders, vendors: vendors, policy: policy,
		publisher: publisher, tracer: tracer, now: time.Now,
	}
}

// Assign 为 orderID 分配一个能覆盖全部 productIDs 的商家。
// 已分配的订单直接返回现有分配；没有候选商家时先把订单置为 assignment_failed 再返回 ErrNoEligibleVendor。
func (s *AssignmentApplicationService) Assign(ctx context.Context, orderID string, productIDs []string) (*domain.Assignment, error) {
	ctx, span := s.tracer.Start(ctx, "app.AssignVendor", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.StringSlice("order.product_ids", productIDs),
	))
	defer span.End()

	ids := domain.DistinctProductIDs(productIDs)
	if orderID == "" || len(ids) == 0 {
		return nil, domain.ErrInvalidAssignment
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing, err := s.existingAssignment(ctx, order); existing != nil || err != nil {
		return existing, err
	}

	candidates, err := s.candidates(ctx, ids)
	if err != nil {
		metrics.VendorAssignments.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "vendor lookup failed")
		return nil, err
	}

	now := s.now().UTC()
	if len(candidates) == 0 {
		return s.failAssignment(ctx, span, order, now)
	}

	chosen := candidates[0]
	span.SetAttributes(attribute.String("vendor.id", chosen.ID), attribute.Int("vendor.candidates", len(candidates)))
	ok, err := s.orders.AssignVendor(ctx, order.ID, chosen.ID, now)
	if err != nil {
		metrics.VendorAssignments.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "conditional update failed")
		return nil, err
	}
	if !ok {
		// 并发的另一次调用先写入了，返回它的结果
		return s.reloadAssignment(ctx, order.ID)
	}

	updated, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	metrics.VendorAssignments.WithLabelValues("assigned").Inc()
	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("vendor_id", chosen.ID).Msg("✅ Vendor assigned")
	s.publish(ctx, orderdomain.NewOrderEvent(orderdomain.EventOrderAssigned, updated, "", now))
	return &domain.Assignment{Vendor: chosen, Order: updated}, nil
}

// ErrForbidden 表示调用方无权为该订单发起分配。
var ErrForbidden = errors.New("not allowed to assign this order")

// AssignAs 校验调用方身份后执行 Assign：顾客只能为自己的订单发起分配。
func (s *AssignmentApplicationService) AssignAs(ctx context.Context, caller *auth.Principal, orderID string, productIDs []string) (*domain.Assignment, error) {
	if caller.Role != auth.RoleAdmin && orderID != "" {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.CustomerID != caller.UserID {
			return nil, ErrForbidden
		}
	}
	return s.Assign(ctx, orderID, productIDs)
}

func (s *AssignmentApplicationService) candidates(ctx context.Context, ids []string) ([]domain.Vendor, error) {
	vendors, err := s.vendors.EligibleVendors(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := vendors[:0:0]
	for _, v := range vendors {
		if s.policy != nil {
			allowed, err := s.policy.Allow(v)
			if err != nil {
				return nil, err
			}
			if !allowed {
				continue
			}
		}
		out = append(out, v)
	}
	domain.SortVendors(out)
	return out, nil
}

// existingAssignment 处理订单已不处于待分配状态的情况：已分配返回原结果，已失败返回 ErrAssignmentClosed。
func (s *AssignmentApplicationService) existingAssignment(ctx context.Context, order *orderdomain.Order) (*domain.Assignment, error) {
	if order.IsAssigned() {
		vendor, err := s.vendors.FindByID(ctx, *order.VendorID)
		if err != nil {
			return nil, err
		}
		metrics.VendorAssignments.WithLabelValues("existing").Inc()
		logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("vendor_id", vendor.ID).Msg("Order already assigned, returning existing assignment")
		return &domain.Assignment{Vendor: *vendor, Order: order}, nil
	}
	if order.Status != orderdomain.StatusPaymentSuccessful {
		metrics.VendorAssignments.WithLabelValues("closed").Inc()
		return nil, domain.ErrAssignmentClosed
	}
	return nil, nil
}

func (s *AssignmentApplicationService) reloadAssignment(ctx context.Context, orderID string) (*domain.Assignment, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	existing, err := s.existingAssignment(ctx, order)
	if existing == nil && err == nil {
		return nil, errors.New("conditional assignment lost without a winner")
	}
	return existing, err
}

// failAssignment 先持久化 assignment_failed，再返回 ErrNoEligibleVendor。
func (s *AssignmentApplicationService) failAssignment(ctx context.Context, span trace.Span, order *orderdomain.Order, now time.Time) (*domain.Assignment, error) {
	ok, err := s.orders.MarkAssignmentFailed(ctx, order.ID, now)
	if err != nil {
		metrics.VendorAssignments.WithLabelValues("error").Inc()
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to record assignment_failed")
		return nil, err
	}
	if !ok {
		// 条件更新未命中：订单已被并发分配，或已被其他调用标记失败
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current.IsAssigned() {
			return s.existingAssignment(ctx, current)
		}
		metrics.VendorAssignments.WithLabelValues("no_eligible_vendor").Inc()
		return nil, domain.ErrNoEligibleVendor
	}

	metrics.VendorAssignments.WithLabelValues("no_eligible_vendor").Inc()
	span.SetStatus(codes.Error, domain.ErrNoEligibleVendor.Error())
	logger.Ctx(ctx).Warn().Str("order_id", order.ID).Msg("No eligible vendor, order marked assignment_failed")
	order.Status = orderdomain.StatusAssignmentFailed
	order.UpdatedAt = now
	s.publish(ctx, orderdomain.NewOrderEvent(orderdomain.EventOrderAssignmentFailed, order, domain.ErrNoEligibleVendor.Error(), now))
	return nil, domain.ErrNoEligibleVendor
}

func (s *AssignmentApplicationService) publish(ctx context.Context, ev *orderdomain.OrderEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", ev.OrderID).Str("type", ev.Type).Msg("Order event not published")
	}
}
