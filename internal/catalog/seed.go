package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm/clause"
)

type SeedProduct struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Category    Category `yaml:"category"`
	Price       float64  `yaml:"price"`
	Image       string   `yaml:"image"`
	Description string   `yaml:"description"`
	Shape       string   `yaml:"shape"`
	Metal       string   `yaml:"metal"`
	Carat       float64  `yaml:"carat"`
	InStock     *bool    `yaml:"inStock"`
}

var ErrInvalidProduct = errors.New("invalid product")

func LoadSeedFile(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read product seed: %w", err)
	}
	var f struct {
		Products []SeedProduct `yaml:"products"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse product seed: %w", err)
	}

	out := make([]Product, 0, len(f.Products))
	for i, sp := range f.Products {
		if sp.ID == "" || sp.Name == "" || sp.Price < 0 {
			return nil, fmt.Errorf("product %d: %w: id, name and a non-negative price are required", i, ErrInvalidProduct)
		}
		if !slices.Contains(Categories, string(sp.Category)) {
			return nil, fmt.Errorf("product %s: %w: category %q", sp.ID, ErrInvalidProduct, sp.Category)
		}
		inStock := sp.InStock == nil || *sp.InStock
		out = append(out, Product{
			ID:          sp.ID,
			Name:        sp.Name,
			Category:    sp.Category,
			Price:       sp.Price,
			Image:       sp.Image,
			Description: sp.Description,
			Shape:       sp.Shape,
			Metal:       sp.Metal,
			Carat:       sp.Carat,
			InStock:     inStock,
		})
	}
	return out, nil
}

// Upsert writes products keyed by id, replacing every column but created_at.
func (r *Repo) Upsert(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "category", "price", "image", "description", "shape", "metal", "carat", "in_stock", "updated_at",
		}),
	}).Create(&products).Error
}
