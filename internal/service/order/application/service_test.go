package application

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/service/order/domain"
	"tiffin/internal/service/order/infrastructure"
	"tiffin/internal/service/order/infrastructure/adapter"
	"tiffin/internal/service/order/port"
)

type fakeClaimer struct {
	mu      sync.Mutex
	owners  map[string]string
	amounts map[string]int64
	claimed map[string]bool
}

func newFakeClaimer() *fakeClaimer {
	return &fakeClaimer{owners: map[string]string{}, amounts: map[string]int64{}, claimed: map[string]bool{}}
}

func (f *fakeClaimer) register(id, customer string, amount int64) {
	f.owners[id] = customer
	f.amounts[id] = amount
}

func (f *fakeClaimer) Claim(_ context.Context, id, customer string) (*port.ClaimedIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[id]
	if !ok {
		return nil, port.ErrIntentNotFound
	}
	if owner != customer {
		return nil, port.ErrIntentNotOwned
	}
	first := !f.claimed[id]
	f.claimed[id] = true
	return &port.ClaimedIntent{ProviderOrderID: id, AmountMinor: f.amounts[id], Currency: "INR", FirstClaim: first}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev *domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	svc       *OrderApplicationService
	repo      *infrastructure.MemoryOrderRepository
	claimer   *fakeClaimer
	signer    *adapter.HMACSignatureVerifier
	publisher *recordingPublisher
	customer  *auth.Principal
}

func newFixture() *fixture {
	f := &fixture{
		repo:      infrastructure.NewMemoryOrderRepository(),
		claimer:   newFakeClaimer(),
		signer:    adapter.NewHMACSignatureVerifier("key-secret"),
		publisher: &recordingPublisher{},
		customer:  &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleCustomer},
	}
	f.svc = NewOrderApplicationService(f.repo, f.claimer, f.signer, f.publisher, noop.NewTracerProvider().Tracer("test"))
	return f
}

func (f *fixture) request(orderID string) *RecordPaidOrderRequest {
	return &RecordPaidOrderRequest{
		ProviderOrderID: orderID,
		PaymentID:       "pay_1",
		Signature:       f.signer.Sign(orderID, "pay_1"),
	}
}

func TestRecordPaidOrder_UsesServerSideAmount(t *testing.T) {
	f := newFixture()
	f.claimer.register("order_P1", f.customer.UserID, 13000)

	order, err := f.svc.RecordPaidOrder(context.Background(), f.customer, f.request("order_P1"))
	require.NoError(t, err)
	assert.Equal(t, "order_P1", order.ID)
	assert.Equal(t, 130.0, order.Total)
	assert.Equal(t, domain.StatusPaymentSuccessful, order.Status)
	assert.Nil(t, order.VendorID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.EventOrderCreated, f.publisher.events[0].Type)
}

func TestRecordPaidOrder_RetryReturnsSameRecord(t *testing.T) {
	f := newFixture()
	f.claimer.register("order_P1", f.customer.UserID, 13000)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*domain.Order, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.svc.RecordPaidOrder(ctx, f.customer, f.request("order_P1"))
			assert.NoError(t, err)
			results[i] = o
		}(i)
	}
	wg.Wait()

	for _, o := range results {
		require.NotNil(t, o)
		assert.Equal(t, "order_P1", o.ID)
	}
	assert.Len(t, f.publisher.events, 1, "only the first insert publishes order.created")
}

func TestRecordPaidOrder_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.claimer.register("order_P1", uuid.NewString(), 13000)

	bad := f.request("order_P1")
	bad.Signature = "deadbeef"
	_, err := f.svc.RecordPaidOrder(ctx, f.customer, bad)
	assert.ErrorIs(t, err, port.ErrInvalidSignature)

	_, err = f.svc.RecordPaidOrder(ctx, f.customer, f.request("order_P1"))
	assert.ErrorIs(t, err, port.ErrIntentNotOwned)

	_, err = f.svc.RecordPaidOrder(ctx, f.customer, f.request("order_unknown"))
	assert.ErrorIs(t, err, port.ErrIntentNotFound)

	assert.Empty(t, f.publisher.events)
}

func TestAdvanceStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.claimer.register("order_P1", f.customer.UserID, 13000)
	_, err := f.svc.RecordPaidOrder(ctx, f.customer, f.request("order_P1"))
	require.NoError(t, err)

	vendorID := uuid.NewString()
	vendor := &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleVendor, VendorID: vendorID}
	req := &UpdateStatusRequest{OrderID: "order_P1", Status: domain.StatusAccepted}

	_, err = f.svc.AdvanceStatus(ctx, vendor, req)
	assert.ErrorIs(t, err, ErrForbidden, "unassigned order")

	ok, err := f.repo.AssignVendor(ctx, "order_P1", vendorID, f.svc.now())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.AdvanceStatus(ctx, f.customer, req)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.AdvanceStatus(ctx, vendor, &UpdateStatusRequest{OrderID: "order_P1", Status: domain.StatusDelivered})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	o, err := f.svc.AdvanceStatus(ctx, vendor, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, o.Status)

	o, err = f.svc.AdvanceStatus(ctx, vendor, req)
	require.NoError(t, err, "repeating the same step is a no-op")
	assert.Equal(t, domain.StatusAccepted, o.Status)

	got, err := f.svc.GetOrder(ctx, f.customer, "order_P1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, got.Status)

	stranger := &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleCustomer}
	_, err = f.svc.GetOrder(ctx, stranger, "order_P1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdvanceStatus_AdminCannotBypassAssignment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.claimer.register("order_P9", f.customer.UserID, 13000)
	_, err := f.svc.RecordPaidOrder(ctx, f.customer, f.request("order_P9"))
	require.NoError(t, err)

	admin := &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleAdmin}
	for _, to := range []domain.Status{
		domain.StatusAwaitingAcceptance,
		domain.StatusAccepted,
		domain.StatusOutForDelivery,
		domain.StatusDelivered,
	} {
		_, err = f.svc.AdvanceStatus(ctx, admin, &UpdateStatusRequest{OrderID: "order_P9", Status: to})
		assert.ErrorIs(t, err, domain.ErrIllegalTransition, "admin -> %s", to)
	}

	stored, err := f.repo.FindByID(ctx, "order_P9")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentSuccessful, stored.Status)
	assert.Nil(t, stored.VendorID)

	// 人工标记分配失败不需要商家
	o, err := f.svc.AdvanceStatus(ctx, admin, &UpdateStatusRequest{OrderID: "order_P9", Status: domain.StatusAssignmentFailed})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssignmentFailed, o.Status)
}

func TestAdvanceStatus_AdminStepsAssignedOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.claimer.register("order_P10", f.customer.UserID, 13000)
	_, err := f.svc.RecordPaidOrder(ctx, f.customer, f.request("order_P10"))
	require.NoError(t, err)
	ok, err := f.repo.AssignVendor(ctx, "order_P10", uuid.NewString(), f.svc.now())
	require.NoError(t, err)
	require.True(t, ok)

	admin := &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleAdmin}
	_, err = f.svc.AdvanceStatus(ctx, admin, &UpdateStatusRequest{OrderID: "order_P10", Status: domain.StatusAwaitingAcceptance})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	o, err := f.svc.AdvanceStatus(ctx, admin, &UpdateStatusRequest{OrderID: "order_P10", Status: domain.StatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, o.Status)
}
