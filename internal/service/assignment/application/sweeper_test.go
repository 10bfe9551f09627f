package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderdomain "tiffin/internal/service/order/domain"
	orderinfra "tiffin/internal/service/order/infrastructure"
)

type capturePublisher struct{ events []*orderdomain.OrderEvent }

func (c *capturePublisher) Publish(_ context.Context, ev *orderdomain.OrderEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func TestSweeper_MarksOnlyStalledUnassignedOrders(t *testing.T) {
	ctx := context.Background()
	repo := orderinfra.NewMemoryOrderRepository()
	now := time.Now().UTC()

	insert := func(id string, createdAt time.Time) {
		o, err := orderdomain.NewPaidOrder(id, "c1", 100, createdAt)
		require.NoError(t, err)
		_, _, err = repo.Insert(ctx, o)
		require.NoError(t, err)
	}
	insert("stalled", now.Add(-time.Hour))
	insert("assigned", now.Add(-time.Hour))
	insert("fresh", now)
	_, err := repo.AssignVendor(ctx, "assigned", "v1", now)
	require.NoError(t, err)

	pub := &capturePublisher{}
	sweeper := NewStalledAssignmentSweeper(repo, pub, 10*time.Minute, time.Minute)
	sweeper.now = func() time.Time { return now }

	marked, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	o, _ := repo.FindByID(ctx, "stalled")
	assert.Equal(t, orderdomain.StatusAssignmentFailed, o.Status)
	o, _ = repo.FindByID(ctx, "assigned")
	assert.Equal(t, orderdomain.StatusAwaitingAcceptance, o.Status)
	o, _ = repo.FindByID(ctx, "fresh")
	assert.Equal(t, orderdomain.StatusPaymentSuccessful, o.Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, orderdomain.EventOrderAssignmentFailed, pub.events[0].Type)

	marked, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	sweeper := NewStalledAssignmentSweeper(orderinfra.NewMemoryOrderRepository(), nil, time.Minute, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type fakeLeader struct {
	granted chan struct{}
	unlocks atomic.Int32
}

func (l *fakeLeader) Lock(ctx context.Context) error {
	select {
	case <-l.granted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *fakeLeader) Unlock() error {
	l.unlocks.Add(1)
	return nil
}

func stalledRepo(t *testing.T, now time.Time) *orderinfra.MemoryOrderRepository {
	t.Helper()
	repo := orderinfra.NewMemoryOrderRepository()
	o, err := orderdomain.NewPaidOrder("stalled", "c1", 100, now.Add(-time.Hour))
	require.NoError(t, err)
	_, _, err = repo.Insert(context.Background(), o)
	require.NoError(t, err)
	return repo
}

func TestSweeper_FollowerDoesNotSweep(t *testing.T) {
	now := time.Now().UTC()
	repo := stalledRepo(t, now)
	leader := &fakeLeader{granted: make(chan struct{})}
	sweeper := NewStalledAssignmentSweeper(repo, nil, 10*time.Minute, 5*time.Millisecond).WithLeader(leader)
	sweeper.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	o, err := repo.FindByID(context.Background(), "stalled")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaymentSuccessful, o.Status)
	assert.Zero(t, leader.unlocks.Load())
}

func TestSweeper_LeaderSweepsAndReleases(t *testing.T) {
	now := time.Now().UTC()
	repo := stalledRepo(t, now)
	leader := &fakeLeader{granted: make(chan struct{})}
	close(leader.granted)
	sweeper := NewStalledAssignmentSweeper(repo, nil, 10*time.Minute, 5*time.Millisecond).WithLeader(leader)
	sweeper.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	require.Eventually(t, func() bool {
		o, err := repo.FindByID(context.Background(), "stalled")
		return err == nil && o.Status == orderdomain.StatusAssignmentFailed
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), leader.unlocks.Load())
}
