// internal/service/order/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"tiffin/internal/service/order/domain"
)

// MemoryOrderRepository 是进程内实现，条件更新语义与 MySQL 版本一致。用于测试和本地演示。
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *MemoryOrderRepository) Insert(_ context.Context, order *domain.Order) (*domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.orders[order.ID]; ok {
		return existing.Clone(), false, nil
	}
	r.orders[order.ID] = order.Clone()
	return order.Clone(), true, nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *MemoryOrderRepository) AssignVendor(_ context.Context, id, vendorID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.IsAssigned() || o.Status != domain.StatusPaymentSuccessful {
		return false, nil
	}
	v := vendorID
	o.VendorID = &v
	o.Status = domain.StatusAwaitingAcceptance
	o.UpdatedAt = at
	return true, nil
}

func (r *MemoryOrderRepository) MarkAssignmentFailed(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.IsAssigned() || o.Status != domain.StatusPaymentSuccessful {
		return false, nil
	}
	o.Status = domain.StatusAssignmentFailed
	o.UpdatedAt = at
	return true, nil
}

func (r *MemoryOrderRepository) CompareAndSetStatus(_ context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	return true, nil
}

func (r *MemoryOrderRepository) FindStalled(_ context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.StatusPaymentSuccessful && !o.IsAssigned() && o.CreatedAt.Before(before) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len 返回已保存的订单数。
func (r *MemoryOrderRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}
