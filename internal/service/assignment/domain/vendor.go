// internal/service/assignment/domain/vendor.go
package domain

import (
	"errors"
	"sort"

	orderdomain "tiffin/internal/service/order/domain"
)

var (
	ErrNoEligibleVendor  = errors.New("no eligible vendor")
	ErrAssignmentClosed  = errors.New("order is closed for assignment")
	ErrInvalidAssignment = errors.New("orderId and productIds are required")
	ErrVendorNotFound    = errors.New("vendor not found")
)

// Vendor 对本流水线只读。
type Vendor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Assignment 是一次分配的结果：被分配的商家以及更新后的订单。
type Assignment struct {
	Vendor Vendor
	Order  *orderdomain.Order
}

// SortVendors 按商家 ID 升序排列，保证同一候选集总是选出同一个商家。
func SortVendors(vendors []Vendor) {
	sort.Slice(vendors, func(i, j int) bool { return vendors[i].ID < vendors[j].ID })
}

// DistinctProductIDs 去重并丢弃空 ID，保留首次出现的顺序。
func DistinctProductIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
