package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrProductNotFound = errors.New("product not found")

type Filter struct {
	Category Category
	MinPrice *float64
	MaxPrice *float64
	Shape    string
	Metal    string
	Limit    int
	Skip     int
}

// Repo is a read-only view of the product catalog.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Product, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	q := r.db.WithContext(ctx).Model(&Product{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Shape != "" {
		q = q.Where("shape = ?", f.Shape)
	}
	if f.Metal != "" {
		q = q.Where("metal = ?", f.Metal)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []Product
	if err := q.Order("id ASC").Offset(f.Skip).Limit(f.Limit).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) Create(ctx context.Context, p *Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}
