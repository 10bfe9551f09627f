// internal/service/intent/application/service.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/metrics"
	"tiffin/internal/service/intent/domain"
	"tiffin/internal/service/intent/port"
)

// IntentApplicationService 根据可信价格计算应收金额，并向支付渠道创建订单对象。
type IntentApplicationService struct {
	catalog   port.ProductCatalog
	provider  port.PaymentProvider
	registry  port.IntentRegistry
	tracer    trace.Tracer
	currency  string
	intentTTL time.Duration
	now       func() time.Time
}

func NewIntentApplicationService(catalog port.ProductCatalog, provider port.PaymentProvider, registry port.IntentRegistry, tracer trace.Tracer, currency string, intentTTL time.Duration) *IntentApplicationService {
	return &IntentApplicationService{
		catalog: catalog, provider: provider, registry: registry, tracer: tracer,
		currency: currency, intentTTL: intentTTL, now: time.Now,
	}
}

// CreateIntent 为 customerID 的购物车创建支付意图。客户端提交的任何价格字段都不参与计算。
func (s *IntentApplicationService) CreateIntent(ctx context.Context, customerID string, cart []domain.CartLine) (*domain.ProviderOrder, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateIntent", trace.WithAttributes(
		attribute.String("customer.id", customerID),
		attribute.Int("cart.lines", len(cart)),
	))
	defer span.End()

	lines, err := domain.NormalizeCart(cart)
	if err != nil {
		metrics.PaymentIntents.WithLabelValues("invalid_cart").Inc()
		return nil, err
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.ProductsByID(ctx, ids)
	if err != nil {
		metrics.PaymentIntents.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog lookup failed")
		return nil, err
	}
	amount, err := domain.ComputeAmount(lines, products)
	if err != nil {
		metrics.PaymentIntents.WithLabelValues("unknown_product").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("intent.amount", amount))

	receipt := domain.NewReceipt(s.now())
	providerOrder, err := s.provider.CreateOrder(ctx, &port.CreateOrderRequest{
		Amount:   amount,
		Currency: s.currency,
		Receipt:  receipt,
		Notes:    map[string]string{"customer_id": customerID},
	})
	if err != nil {
		metrics.PaymentIntents.WithLabelValues("provider_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider create-order failed")
		logger.Ctx(ctx).Error().Err(err).Str("receipt", receipt).Msg("Payment provider rejected create-order")
		return nil, err
	}

	intent := &domain.PaymentIntent{
		ProviderOrderID: providerOrder.ID,
		CustomerID:      customerID,
		Amount:          amount,
		Currency:        s.currency,
		Receipt:         receipt,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.registry.Put(ctx, intent, s.intentTTL); err != nil {
		// 渠道侧订单会自然过期，这里只需保证客户端拿不到一个无法落单的意图。
		metrics.PaymentIntents.WithLabelValues("registry_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "intent registry write failed")
		logger.Ctx(ctx).Error().Err(err).Str("provider_order_id", providerOrder.ID).Msg("Failed to register payment intent")
		return nil, err
	}

	metrics.PaymentIntents.WithLabelValues("created").Inc()
	logger.Ctx(ctx).Info().
		Str("provider_order_id", providerOrder.ID).
		Int64("amount", amount).
		Str("currency", s.currency).
		Msg("Payment intent created")
	return providerOrder, nil
}
