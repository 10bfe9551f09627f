// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"tiffin/internal/pkg/db"
	"tiffin/internal/service/order/domain"
)

// orderModel 对应 orders 表。
type orderModel struct {
	ID         string  `gorm:"primaryKey;size:64"`
	CustomerID string  `gorm:"size:36;not null"`
	VendorID   *string `gorm:"size:36"`
	Total      float64 `gorm:"type:decimal(12,2);not null"`
	Status     string  `gorm:"size:32;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (orderModel) TableName() string { return "orders" }

func toModel(o *domain.Order) *orderModel {
	return &orderModel{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		VendorID:   o.VendorID,
		Total:      o.Total,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func (m *orderModel) toDomain() *domain.Order {
	return &domain.Order{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		VendorID:   m.VendorID,
		Total:      m.Total,
		Status:     domain.Status(m.Status),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// GormOrderRepository 是 OrderRepository 的 MySQL 实现，所有条件更新都下推到单条 UPDATE ... WHERE。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(gdb *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: gdb}
}

func (r *GormOrderRepository) Insert(ctx context.Context, order *domain.Order) (*domain.Order, bool, error) {
	m := toModel(order)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if db.IsDuplicateKey(err) {
			existing, findErr := r.FindByID(ctx, order.ID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, errors.Wrapf(err, "insert order %s", order.ID)
	}
	return m.toDomain(), true, nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var m orderModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %s", id)
	}
	return m.toDomain(), nil
}

func (r *GormOrderRepository) AssignVendor(ctx context.Context, id, vendorID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND vendor_id IS NULL AND status = ?", id, domain.StatusPaymentSuccessful).
		Updates(map[string]interface{}{
			"vendor_id":  vendorID,
			"status":     string(domain.StatusAwaitingAcceptance),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "assign vendor to order %s", id)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOrderRepository) MarkAssignmentFailed(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND vendor_id IS NULL AND status = ?", id, domain.StatusPaymentSuccessful).
		Updates(map[string]interface{}{
			"status":     string(domain.StatusAssignmentFailed),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "mark order %s assignment_failed", id)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOrderRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "update order %s status", id)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOrderRepository) FindStalled(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	var models []orderModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND vendor_id IS NULL AND created_at < ?", domain.StatusPaymentSuccessful, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "find stalled orders")
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}
