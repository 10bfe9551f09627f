// internal/service/assignment/infrastructure/memory_vendor_directory.go
package infrastructure

import (
	"context"
	"sync"

	"tiffin/internal/service/assignment/domain"
)

// MemoryVendorDirectory 是进程内的商家目录，用于测试和沙箱模式。
type MemoryVendorDirectory struct {
	mu       sync.RWMutex
	vendors  map[string]domain.Vendor
	products map[string]map[string]struct{}
}

func NewMemoryVendorDirectory() *MemoryVendorDirectory {
	return &MemoryVendorDirectory{
		vendors:  make(map[string]domain.Vendor),
		products: make(map[string]map[string]struct{}),
	}
}

// Add 登记一个商家及其可履约的商品。
func (d *MemoryVendorDirectory) Add(v domain.Vendor, productIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vendors[v.ID] = v
	set := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		set[id] = struct{}{}
	}
	d.products[v.ID] = set
}

func (d *MemoryVendorDirectory) EligibleVendors(_ context.Context, productIDs []string) ([]domain.Vendor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.Vendor
	for id, v := range d.vendors {
		covered := true
		for _, p := range productIDs {
			if _, ok := d.products[id][p]; !ok {
				covered = false
				break
			}
		}
		if covered {
			out = append(out, v)
		}
	}
	domain.SortVendors(out)
	return out, nil
}

func (d *MemoryVendorDirectory) FindByID(_ context.Context, id string) (*domain.Vendor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.vendors[id]
	if !ok {
		return nil, domain.ErrVendorNotFound
	}
	return &v, nil
}
