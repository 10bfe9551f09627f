// internal/service/assignment/application/sweeper.go
package application

import (
	"context"
	"time"

	"tiffin/internal/pkg/logger"
	"tiffin/internal/pkg/metrics"
	"tiffin/internal/service/assignment/port"
	orderdomain "tiffin/internal/service/order/domain"
)

const sweepBatchSize = 100

// StalledAssignmentSweeper 把长时间停留在 payment_successful 且没有商家的订单转为 assignment_failed，
// 客户端在分配途中退出时订单也不会一直悬而未决。
type StalledAssignmentSweeper struct {
	orders       orderdomain.OrderRepository
	publisher    orderdomain.EventPublisher
	stalledAfter time.Duration
	interval     time.Duration
	leader       port.Leader
	now          func() time.Time
}

func NewStalledAssignmentSweeper(orders orderdomain.OrderRepository, publisher orderdomain.EventPublisher, stalledAfter, interval time.Duration) *StalledAssignmentSweeper {
	if publisher == nil {
		publisher = orderdomain.NopPublisher{}
	}
	return &StalledAssignmentSweeper{
		orders: orders, publisher: publisher,
		stalledAfter: stalledAfter, interval: interval, now: time.Now,
	}
}

// WithLeader 设置选主锁，Run 只在持有锁期间清扫。
func (s *StalledAssignmentSweeper) WithLeader(l port.Leader) *StalledAssignmentSweeper {
	s.leader = l
	return s
}

// Run 按固定间隔清扫，ctx 取消时返回 nil。
func (s *StalledAssignmentSweeper) Run(ctx context.Context) error {
	if s.leader != nil {
		if err := s.leader.Lock(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		defer func() {
			if err := s.leader.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("Failed to release sweeper leadership")
			}
		}()
		logger.Ctx(ctx).Info().Msg("Acquired sweeper leadership")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Ctx(ctx).Info().Dur("interval", s.interval).Dur("stalled_after", s.stalledAfter).Msg("✅ Stalled assignment sweeper started")

	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 Stalled assignment sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Sweep failed, will retry on next tick")
			}
		}
	}
}

// Sweep 执行一轮清扫，返回被标记失败的订单数。
func (s *StalledAssignmentSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	stalled, err := s.orders.FindStalled(ctx, now.Add(-s.stalledAfter), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, o := range stalled {
		ok, err := s.orders.MarkAssignmentFailed(ctx, o.ID, now)
		if err != nil {
			return marked, err
		}
		if !ok {
			continue
		}
		marked++
		metrics.VendorAssignments.WithLabelValues("stalled").Inc()
		o.Status = orderdomain.StatusAssignmentFailed
		o.UpdatedAt = now
		logger.Ctx(ctx).Warn().Str("order_id", o.ID).Time("created_at", o.CreatedAt).Msg("Order stalled before assignment, marked assignment_failed")
		if err := s.publisher.Publish(ctx, orderdomain.NewOrderEvent(orderdomain.EventOrderAssignmentFailed, o, "assignment timed out", now)); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", o.ID).Msg("Order event not published")
		}
	}
	return marked, nil
}
