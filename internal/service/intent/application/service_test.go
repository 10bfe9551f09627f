package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"tiffin/internal/service/intent/domain"
	"tiffin/internal/service/intent/infrastructure"
	"tiffin/internal/service/intent/port"
)

type recordingProvider struct {
	mu       sync.Mutex
	requests []*port.CreateOrderRequest
	err      error
}

func (p *recordingProvider) CreateOrder(ctx context.Context, req *port.CreateOrderRequest) (*domain.ProviderOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.requests = append(p.requests, req)
	return infrastructure.SandboxProvider{}.CreateOrder(ctx, req)
}

type memoryRegistry struct {
	mu      sync.Mutex
	intents map[string]*domain.PaymentIntent
}

func (r *memoryRegistry) Put(_ context.Context, intent *domain.PaymentIntent, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents[intent.ProviderOrderID] = intent
	return nil
}

func newService(provider port.PaymentProvider, registry port.IntentRegistry) *IntentApplicationService {
	catalog := infrastructure.MemoryProductCatalog{
		"p1": {ID: "p1", Name: "Veg Thali", Price: 65},
		"p2": {ID: "p2", Name: "Masala Dosa", Price: 80.5},
	}
	return NewIntentApplicationService(catalog, provider, registry, noop.NewTracerProvider().Tracer("test"), "INR", 15*time.Minute)
}

func TestCreateIntent_ComputesAmountFromCatalog(t *testing.T) {
	provider := &recordingProvider{}
	registry := &memoryRegistry{intents: map[string]*domain.PaymentIntent{}}
	svc := newService(provider, registry)

	order, err := svc.CreateIntent(context.Background(), "customer-1", []domain.CartLine{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(13000), order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "created", order.Status)

	intent := registry.intents[order.ID]
	require.NotNil(t, intent)
	assert.Equal(t, "customer-1", intent.CustomerID)
	assert.Equal(t, int64(13000), intent.Amount)
	assert.Equal(t, order.Receipt, intent.Receipt)
}

func TestCreateIntent_SameCartSameAmount(t *testing.T) {
	provider := &recordingProvider{}
	svc := newService(provider, &memoryRegistry{intents: map[string]*domain.PaymentIntent{}})
	ctx := context.Background()

	a, err := svc.CreateIntent(ctx, "c", []domain.CartLine{{ProductID: "p2", Quantity: 1}, {ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 1}})
	require.NoError(t, err)
	b, err := svc.CreateIntent(ctx, "c", []domain.CartLine{{ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 2}})
	require.NoError(t, err)

	assert.Equal(t, a.Amount, b.Amount)
	assert.Equal(t, int64(6500+2*8050), a.Amount)
	assert.NotEqual(t, a.Receipt, b.Receipt)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCreateIntent_Failures(t *testing.T) {
	provider := &recordingProvider{}
	registry := &memoryRegistry{intents: map[string]*domain.PaymentIntent{}}
	svc := newService(provider, registry)
	ctx := context.Background()

	_, err := svc.CreateIntent(ctx, "c", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCart)

	_, err = svc.CreateIntent(ctx, "c", []domain.CartLine{{ProductID: "p1", Quantity: 1}, {ProductID: "ghost", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Empty(t, provider.requests, "provider must not be called for a bad cart")

	provider.err = errors.New("boom")
	_, err = svc.CreateIntent(ctx, "c", []domain.CartLine{{ProductID: "p1", Quantity: 1}})
	require.Error(t, err)
	assert.Empty(t, registry.intents)
}
