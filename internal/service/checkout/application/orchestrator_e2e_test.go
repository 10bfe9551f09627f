// internal/service/checkout/application/orchestrator_e2e_test.go
package application_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/httpclient"
	"tiffin/internal/pkg/redis"
	assignapp "tiffin/internal/service/assignment/application"
	assigndomain "tiffin/internal/service/assignment/domain"
	assigninfra "tiffin/internal/service/assignment/infrastructure"
	assignhttp "tiffin/internal/service/assignment/interfaces"
	"tiffin/internal/service/cart"
	"tiffin/internal/service/checkout/application"
	"tiffin/internal/service/checkout/application/saga"
	"tiffin/internal/service/checkout/domain"
	"tiffin/internal/service/checkout/gateway"
	"tiffin/internal/service/checkout/infrastructure/adapter"
	"tiffin/internal/service/checkout/port"
	intentapp "tiffin/internal/service/intent/application"
	intentdomain "tiffin/internal/service/intent/domain"
	intentinfra "tiffin/internal/service/intent/infrastructure"
	intenthttp "tiffin/internal/service/intent/interfaces"
	orderapp "tiffin/internal/service/order/application"
	orderdomain "tiffin/internal/service/order/domain"
	orderinfra "tiffin/internal/service/order/infrastructure"
	ordersig "tiffin/internal/service/order/infrastructure/adapter"
	orderhttp "tiffin/internal/service/order/interfaces"
)

const (
	kitchenOne = "1a000000-0000-4000-8000-000000000001"
	kitchenTwo = "2b000000-0000-4000-8000-000000000002"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*orderdomain.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev *orderdomain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []*orderdomain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*orderdomain.OrderEvent
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// scriptedSheet 模拟收银台：pay 时连续回调两次成功，用来验证网关只采纳一次。
type scriptedSheet struct {
	action string
	sign   func(orderID, paymentID string) string
}

func (s *scriptedSheet) Present(_ context.Context, intent *domain.PaymentIntent, _ domain.Payer, cb port.SheetCallbacks) error {
	go func() {
		switch s.action {
		case "pay":
			r := domain.CaptureReceipt{
				ProviderOrderID:   intent.ProviderOrderID,
				ProviderPaymentID: "pay_test",
				ProviderSignature: s.sign(intent.ProviderOrderID, "pay_test"),
			}
			cb.OnSuccess(r)
			cb.OnSuccess(r)
		case "fail":
			cb.OnFailure("Card declined by issuer")
		default:
			cb.OnDismiss()
			cb.OnFailure("late failure after dismiss")
		}
	}()
	return nil
}

type pipeline struct {
	orch        *application.Orchestrator
	cart        *cart.Aggregator
	orders      *orderinfra.MemoryOrderRepository
	publisher   *recordingPublisher
	sheet       *scriptedSheet
	recordCalls atomic.Int32
	transitions []domain.State
	mu          sync.Mutex
}

type pipelineOptions struct {
	// dropFirstRecordResponse 模拟一次网络抖动：订单已写入但客户端收到 503。
	dropFirstRecordResponse bool
}

func newPipeline(t *testing.T, opts pipelineOptions) *pipeline {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("test")
	verifier := auth.NewVerifier("jwt-secret")
	signer := ordersig.NewHMACSignatureVerifier("key-secret")

	mr := miniredis.RunT(t)
	rdb := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })
	registry, err := intentinfra.NewRedisIntentRegistry(rdb)
	require.NoError(t, err)

	catalog := intentinfra.MemoryProductCatalog{
		"p1": intentdomain.Product{ID: "p1", Name: "Veg Thali", Price: 65},
		"p2": intentdomain.Product{ID: "p2", Name: "Masala Dosa", Price: 80},
	}
	intents := intentapp.NewIntentApplicationService(catalog, intentinfra.SandboxProvider{}, registry, tracer, "INR", 15*time.Minute)

	p := &pipeline{
		cart:      cart.NewAggregator(),
		orders:    orderinfra.NewMemoryOrderRepository(),
		publisher: &recordingPublisher{},
		sheet:     &scriptedSheet{action: "pay", sign: signer.Sign},
	}
	orders := orderapp.NewOrderApplicationService(p.orders, registry, signer, p.publisher, tracer)

	vendors := assigninfra.NewMemoryVendorDirectory()
	vendors.Add(assigndomain.Vendor{ID: kitchenOne, Name: "Thali Kitchen", Active: true}, "p1")
	vendors.Add(assigndomain.Vendor{ID: kitchenTwo, Name: "Dosa Point", Active: true}, "p2")
	assignments := assignapp.NewAssignmentApplicationService(p.orders, vendors, nil, p.publisher, tracer)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path != "/record-paid-order" {
				next.ServeHTTP(w, req)
				return
			}
			if p.recordCalls.Add(1) == 1 && opts.dropFirstRecordResponse {
				next.ServeHTTP(httptest.NewRecorder(), req)
				http.Error(w, `{"error":"upstream connect error"}`, http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	intenthttp.NewIntentHandler(intents, verifier).RegisterRoutes(r)
	orderhttp.NewOrderHandler(orders, verifier).RegisterRoutes(r)
	assignhttp.NewAssignmentHandler(assignments, verifier).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	client := httpclient.NewClient(tracer, httpclient.StaticResolver{
		adapter.IntentServiceName:     srv.URL,
		adapter.OrderServiceName:      srv.URL,
		adapter.AssignmentServiceName: srv.URL,
	}, "functions")
	functions := adapter.NewFunctionsHTTPAdapter(client)

	token, err := verifier.Issue(uuid.NewString(), auth.RoleCustomer, "", time.Hour)
	require.NoError(t, err)

	p.orch = application.NewOrchestrator(application.Dependencies{
		Cart:     p.cart,
		Sessions: adapter.NewTokenSessionProvider(token),
		Gateway:  gateway.NewAdapter(functions, p.sheet, tracer),
		Recorder: functions,
		Assigner: functions,
		Guard:    adapter.NewLocalAttemptGuard(),
		Tracer:   tracer,
		Timeouts: saga.Timeouts{Intent: 5 * time.Second, Payment: 5 * time.Second, Persist: 5 * time.Second, Assign: 5 * time.Second},
	})
	p.orch.OnTransition(func(_, to domain.State) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.transitions = append(p.transitions, to)
	})
	return p
}

func (p *pipeline) states() []domain.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.State(nil), p.transitions...)
}

func TestCheckout_PaidOrderIsAssigned(t *testing.T) {
	p := newPipeline(t, pipelineOptions{})
	// 客户端价格被篡改也不影响扣款金额
	require.NoError(t, p.cart.Add(cart.Product{ID: "p1", Name: "Veg Thali", Price: 1}))
	require.NoError(t, p.cart.Add(cart.Product{ID: "p1", Name: "Veg Thali", Price: 1}))

	res, err := p.orch.Checkout(context.Background(), domain.Payer{Name: "Asha"})
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, res.State)
	require.NotNil(t, res.Assignment)
	assert.Equal(t, kitchenOne, res.Assignment.Vendor.ID)
	assert.Equal(t, 130.0, res.Order.Total)
	assert.Equal(t, "awaiting_acceptance", res.Order.Status)
	require.NotNil(t, res.Order.VendorID)
	assert.Equal(t, kitchenOne, *res.Order.VendorID)

	stored, err := p.orders.FindByID(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusAwaitingAcceptance, stored.Status)
	assert.Equal(t, 130.0, stored.Total)

	created := p.publisher.ofType(orderdomain.EventOrderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, orderdomain.StatusPaymentSuccessful, created[0].Status)
	assert.Len(t, p.publisher.ofType(orderdomain.EventOrderAssigned), 1)

	assert.True(t, p.cart.Snapshot().IsEmpty(), "cart is cleared once completed")
	assert.Equal(t, []domain.State{
		domain.StateIntentPending,
		domain.StatePaymentPending,
		domain.StateOrderPersisting,
		domain.StateAssigning,
		domain.StateCompleted,
	}, p.states())
}

func TestCheckout_NoVendorCoversAllProducts(t *testing.T) {
	p := newPipeline(t, pipelineOptions{})
	require.NoError(t, p.cart.Add(cart.Product{ID: "p1", Name: "Veg Thali", Price: 65}))
	require.NoError(t, p.cart.Add(cart.Product{ID: "p2", Name: "Masala Dosa", Price: 80}))

	res, err := p.orch.Checkout(context.Background(), domain.Payer{})
	require.Error(t, err)
	assert.Equal(t, domain.StateFailed, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.CodeAssignmentFailed, res.Failure.Code)
	assert.Equal(t, domain.KindAssignment, res.Failure.Kind)
	require.NotEmpty(t, res.Failure.OrderID)
	assert.Contains(t, res.Failure.Message, res.Failure.OrderID)

	stored, err := p.orders.FindByID(context.Background(), res.Failure.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusAssignmentFailed, stored.Status)
	assert.Nil(t, stored.VendorID)

	assert.Equal(t, 2, p.cart.TotalItems(), "cart is kept when assignment fails")
	assert.Equal(t, domain.StateFailed, p.orch.State())
}

func TestCheckout_CancelledPaymentReturnsToIdle(t *testing.T) {
	p := newPipeline(t, pipelineOptions{})
	p.sheet.action = "dismiss"
	require.NoError(t, p.cart.Add(cart.Product{ID: "p1", Name: "Veg Thali", Price: 65}))
	before := p.cart.Snapshot()

	res, err := p.orch.Checkout(context.Background(), domain.Payer{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, domain.StateIdle, res.State)
	assert.Nil(t, res.Failure)
	assert.Equal(t, domain.StateIdle, p.orch.State())

	assert.Equal(t, 0, p.orders.Len())
	assert.Equal(t, int32(0), p.recordCalls.Load())
	assert.Equal(t, before, p.cart.Snapshot())
}

func TestCheckout_ProviderFailureIsSurfacedVerbatim(t *testing.T) {
	p := newPipeline(t, pipelineOptions{})
	p.sheet.action = "fail"
	require.NoError(t, p.cart.Add(cart.Product{ID: "p1", Name: "Veg Thali", Price: 65}))

	res, err := p.orch.Checkout(context.Background(), domain.Payer{})
	require.Error(t, err)
	assert.Equal(t, domain.CodePaymentFailed, res.Failure.Code)
	assert.Equal(t, "Card declined by issuer", res.Failure.Message)
	assert.Equal(t, 0, p.orders.Len())
	assert.Equal(t, 1, p.cart.TotalItems())
}

func TestCheckout_RetriedInsertKeepsSingleOrder(t *testing.T) {
	p := newPipeline(t, pipelineOptions{dropFirstRecordResponse: true})
	require.NoError(t, p.cart.Add(cart.Product{ID: "p1", Name: "Veg Thali", Price: 65}))

	res, err := p.orch.Checkout(context.Background(), domain.Payer{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, res.State)

	assert.Equal(t, int32(2), p.recordCalls.Load(), "insert was retried once")
	assert.Equal(t, 1, p.orders.Len())
	assert.Len(t, p.publisher.ofType(orderdomain.EventOrderCreated), 1)
}

func TestCheckout_SecondAttemptAfterFailureStartsFresh(t *testing.T) {
	p := newPipeline(t, pipelineOptions{})
	p.sheet.action = "fail"
	require.NoError(t, p.cart.Add(cart.Product{ID: "p1", Name: "Veg Thali", Price: 65}))

	_, err := p.orch.Checkout(context.Background(), domain.Payer{})
	require.Error(t, err)

	p.sheet.action = "pay"
	res, err := p.orch.Checkout(context.Background(), domain.Payer{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, res.State)
	assert.Equal(t, 1, p.orders.Len())
}
