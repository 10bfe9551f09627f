// internal/service/assignment/port/ports.go
package port

import (
	"context"

	"tiffin/internal/service/assignment/domain"
)

// VendorDirectory 查询能覆盖全部商品的商家。
type VendorDirectory interface {
	// EligibleVendors 返回能履约 productIDs 中每一个商品的商家，按 ID 升序。
	EligibleVendors(ctx context.Context, productIDs []string) ([]domain.Vendor, error)
	// FindByID 不存在时返回 domain.ErrVendorNotFound。
	FindByID(ctx context.Context, id string) (*domain.Vendor, error)
}

// VendorPolicy 在覆盖查询之后进一步过滤候选商家。
type VendorPolicy interface {
	Allow(vendor domain.Vendor) (bool, error)
}

// Leader 保证多副本部署时只有一个实例执行清扫。Lock 阻塞到成为主或 ctx 结束。
type Leader interface {
	Lock(ctx context.Context) error
	Unlock() error
}
