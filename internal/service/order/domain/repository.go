// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"
)

// OrderRepository 定义了订单记录的持久化接口。
// 订单是整条流水线唯一共享的可变资源，所有写操作要么幂等，要么是条件更新。
type OrderRepository interface {
	// Insert 以 order.ID 为主键插入。主键已存在时返回已存在的记录且 created=false。
	Insert(ctx context.Context, order *Order) (stored *Order, created bool, err error)

	// FindByID 不存在时返回 ErrOrderNotFound。
	FindByID(ctx context.Context, id string) (*Order, error)

	// AssignVendor 仅当 vendor_id 为空且状态为 payment_successful 时写入商家并置为 awaiting_acceptance。
	AssignVendor(ctx context.Context, id, vendorID string, at time.Time) (bool, error)

	// MarkAssignmentFailed 仅当 vendor_id 为空且状态为 payment_successful 时置为 assignment_failed。
	MarkAssignmentFailed(ctx context.Context, id string, at time.Time) (bool, error)

	// CompareAndSetStatus 仅当当前状态等于 from 时更新为 to。
	CompareAndSetStatus(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)

	// FindStalled 查询创建时间早于 before、仍处于 payment_successful 且未分配商家的订单。
	FindStalled(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
