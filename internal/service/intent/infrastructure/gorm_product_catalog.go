// internal/service/intent/infrastructure/gorm_product_catalog.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"tiffin/internal/service/intent/domain"
)

type productModel struct {
	ID        string  `gorm:"primaryKey;size:64"`
	Name      string  `gorm:"size:255"`
	Price     float64 `gorm:"type:decimal(10,2)"`
	CreatedAt time.Time
}

func (productModel) TableName() string { return "products" }

// GormProductCatalog 从 products 表读取可信价格。
type GormProductCatalog struct {
	db *gorm.DB
}

func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

func (c *GormProductCatalog) ProductsByID(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	var rows []productModel
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	out := make(map[string]domain.Product, len(rows))
	for _, r := range rows {
		out[r.ID] = domain.Product{ID: r.ID, Name: r.Name, Price: r.Price}
	}
	return out, nil
}

// MemoryProductCatalog 是固定内容的目录，测试和沙箱模式使用。
type MemoryProductCatalog map[string]domain.Product

func (c MemoryProductCatalog) ProductsByID(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
