package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/service/assignment/domain"
	"tiffin/internal/service/assignment/infrastructure"
	orderdomain "tiffin/internal/service/order/domain"
	orderinfra "tiffin/internal/service/order/infrastructure"
)

const (
	vendorA = "0a6b2c1e-0000-4000-8000-00000000000a"
	vendorB = "0b6b2c1e-0000-4000-8000-00000000000b"
	vendorC = "0c6b2c1e-0000-4000-8000-00000000000c"
)

type fixture struct {
	svc      *AssignmentApplicationService
	orders   *orderinfra.MemoryOrderRepository
	vendors  *infrastructure.MemoryVendorDirectory
	customer string
}

func newFixture(t *testing.T, policy string) *fixture {
	t.Helper()
	f := &fixture{
		orders:   orderinfra.NewMemoryOrderRepository(),
		vendors:  infrastructure.NewMemoryVendorDirectory(),
		customer: uuid.NewString(),
	}
	f.vendors.Add(domain.Vendor{ID: vendorC, Name: "Chaat Corner", Active: true}, "p1", "p2")
	f.vendors.Add(domain.Vendor{ID: vendorB, Name: "Biryani House", Active: true}, "p1")
	f.vendors.Add(domain.Vendor{ID: vendorA, Name: "Closed Kitchen", Active: false}, "p1", "p2", "p3")

	var p *infrastructure.CELVendorPolicy
	if policy != "" {
		var err error
		p, err = infrastructure.NewCELVendorPolicy(policy)
		require.NoError(t, err)
		f.svc = NewAssignmentApplicationService(f.orders, f.vendors, p, nil, noop.NewTracerProvider().Tracer("test"))
	} else {
		f.svc = NewAssignmentApplicationService(f.orders, f.vendors, nil, nil, noop.NewTracerProvider().Tracer("test"))
	}
	return f
}

func (f *fixture) paidOrder(t *testing.T, id string) {
	t.Helper()
	o, err := orderdomain.NewPaidOrder(id, f.customer, 13000, time.Now().UTC())
	require.NoError(t, err)
	_, _, err = f.orders.Insert(context.Background(), o)
	require.NoError(t, err)
}

func TestAssign_PicksLowestVendorID(t *testing.T) {
	f := newFixture(t, "")
	f.paidOrder(t, "order_1")

	a, err := f.svc.Assign(context.Background(), "order_1", []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, vendorA, a.Vendor.ID)
	assert.Equal(t, orderdomain.StatusAwaitingAcceptance, a.Order.Status)
	require.NotNil(t, a.Order.VendorID)
	assert.Equal(t, vendorA, *a.Order.VendorID)
}

func TestAssign_PolicyFiltersInactiveVendors(t *testing.T) {
	f := newFixture(t, "vendor.active")
	f.paidOrder(t, "order_1")

	a, err := f.svc.Assign(context.Background(), "order_1", []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, vendorB, a.Vendor.ID)
}

func TestAssign_RequiresFullCoverage(t *testing.T) {
	f := newFixture(t, "vendor.active")
	f.paidOrder(t, "order_1")

	a, err := f.svc.Assign(context.Background(), "order_1", []string{"p1", "p2", "p1"})
	require.NoError(t, err)
	assert.Equal(t, vendorC, a.Vendor.ID)
}

func TestAssign_IsIdempotent(t *testing.T) {
	f := newFixture(t, "vendor.active")
	f.paidOrder(t, "order_1")
	ctx := context.Background()

	first, err := f.svc.Assign(ctx, "order_1", []string{"p1"})
	require.NoError(t, err)

	// 商家目录变化后重试，也不能改派
	f.vendors.Add(domain.Vendor{ID: "00000000-0000-4000-8000-000000000000", Name: "Newcomer", Active: true}, "p1")
	second, err := f.svc.Assign(ctx, "order_1", []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, first.Vendor.ID, second.Vendor.ID)
	assert.Equal(t, *first.Order.VendorID, *second.Order.VendorID)
}

func TestAssign_ConcurrentCallsAgree(t *testing.T) {
	f := newFixture(t, "vendor.active")
	f.paidOrder(t, "order_1")
	ctx := context.Background()

	var wg sync.WaitGroup
	vendors := make([]string, 10)
	for i := range vendors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := f.svc.Assign(ctx, "order_1", []string{"p1"})
			if assert.NoError(t, err) {
				vendors[i] = a.Vendor.ID
			}
		}(i)
	}
	wg.Wait()
	for _, v := range vendors {
		assert.Equal(t, vendorB, v)
	}
}

func TestAssign_NoEligibleVendorMarksOrderFailed(t *testing.T) {
	f := newFixture(t, "vendor.active")
	f.paidOrder(t, "order_1")
	ctx := context.Background()

	_, err := f.svc.Assign(ctx, "order_1", []string{"p1", "p3"})
	assert.ErrorIs(t, err, domain.ErrNoEligibleVendor)

	o, err := f.orders.FindByID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusAssignmentFailed, o.Status)
	assert.Nil(t, o.VendorID)

	_, err = f.svc.Assign(ctx, "order_1", []string{"p1"})
	assert.ErrorIs(t, err, domain.ErrAssignmentClosed, "assignment_failed is a dead end")
}

func TestAssign_Validation(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.Assign(ctx, "", []string{"p1"})
	assert.ErrorIs(t, err, domain.ErrInvalidAssignment)
	_, err = f.svc.Assign(ctx, "order_1", []string{""})
	assert.ErrorIs(t, err, domain.ErrInvalidAssignment)
	_, err = f.svc.Assign(ctx, "order_missing", []string{"p1"})
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestAssignAs_ChecksOwnership(t *testing.T) {
	f := newFixture(t, "")
	f.paidOrder(t, "order_1")
	ctx := context.Background()

	stranger := &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleCustomer}
	_, err := f.svc.AssignAs(ctx, stranger, "order_1", []string{"p1"})
	assert.ErrorIs(t, err, ErrForbidden)

	owner := &auth.Principal{UserID: f.customer, Role: auth.RoleCustomer}
	_, err = f.svc.AssignAs(ctx, owner, "order_1", []string{"p1"})
	assert.NoError(t, err)
}
