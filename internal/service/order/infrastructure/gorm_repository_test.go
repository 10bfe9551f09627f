package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiffin/internal/pkg/db/dbtest"
	"tiffin/internal/service/order/domain"
)

func TestGormRepository_Lifecycle(t *testing.T) {
	repo := NewGormOrderRepository(dbtest.StartMySQL(t))
	ctx := context.Background()
	createdAt := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	o, err := domain.NewPaidOrder("order_G1", "5f0c8a2e-8a5e-4f5c-9c1e-1f2d3c4b5a69", 13000, createdAt)
	require.NoError(t, err)

	_, created, err := repo.Insert(ctx, o)
	require.NoError(t, err)
	assert.True(t, created)

	dup, created, err := repo.Insert(ctx, o)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 130.0, dup.Total)

	stalled, err := repo.FindStalled(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, stalled, 1)

	vendor := "7b1d4c2a-0000-4000-8000-000000000001"
	ok, err := repo.AssignVendor(ctx, o.ID, vendor, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AssignVendor(ctx, o.ID, "7b1d4c2a-0000-4000-8000-000000000002", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VendorID)
	assert.Equal(t, vendor, *got.VendorID)
	assert.Equal(t, domain.StatusAwaitingAcceptance, got.Status)

	ok, err = repo.CompareAndSetStatus(ctx, o.ID, domain.StatusAwaitingAcceptance, domain.StatusAccepted, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.FindByID(ctx, "order_missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
