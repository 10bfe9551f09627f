// internal/service/assignment/infrastructure/gorm_vendor_directory.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"tiffin/internal/service/assignment/domain"
)

type vendorRow struct {
	ID     string
	Name   string
	Active bool
}

// GormVendorDirectory 基于 vendors / vendor_products 两张表做覆盖查询。
type GormVendorDirectory struct {
	db *gorm.DB
}

func NewGormVendorDirectory(db *gorm.DB) *GormVendorDirectory {
	return &GormVendorDirectory{db: db}
}

// EligibleVendors 只返回覆盖全部商品的商家：按商家分组后，命中的不同商品数必须等于请求的商品数。
func (d *GormVendorDirectory) EligibleVendors(ctx context.Context, productIDs []string) ([]domain.Vendor, error) {
	var rows []vendorRow
	err := d.db.WithContext(ctx).
		Table("vendors AS v").
		Select("v.id, v.name, v.active").
		Joins("JOIN vendor_products AS vp ON vp.vendor_id = v.id").
		Where("vp.product_id IN ?", productIDs).
		Group("v.id, v.name, v.active").
		Having("COUNT(DISTINCT vp.product_id) = ?", len(productIDs)).
		Order("v.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query eligible vendors")
	}
	out := make([]domain.Vendor, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Vendor{ID: r.ID, Name: r.Name, Active: r.Active})
	}
	return out, nil
}

func (d *GormVendorDirectory) FindByID(ctx context.Context, id string) (*domain.Vendor, error) {
	var rows []vendorRow
	err := d.db.WithContext(ctx).Table("vendors").Select("id, name, active").Where("id = ?", id).Limit(1).Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find vendor %s", id)
	}
	if len(rows) == 0 {
		return nil, domain.ErrVendorNotFound
	}
	return &domain.Vendor{ID: rows[0].ID, Name: rows[0].Name, Active: rows[0].Active}, nil
}
