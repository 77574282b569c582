package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSeedFile_AndUpsert(t *testing.T) {
	path := writeSeed(t, `
products:
  - id: solitaire-round
    name: Classic Solitaire Engagement Ring
    category: Engagement Rings
    price: 8950
    shape: Round
    metal: 18K White Gold
    carat: 1.5
  - id: tennis-bracelet
    name: Diamond Tennis Bracelet
    category: Bracelets
    price: 6400
    inStock: false
`)
	products, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(products) != 2 || !products[0].InStock || products[1].InStock {
		t.Fatalf("unexpected products: %+v", products)
	}

	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	if err := repo.Upsert(ctx, products); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	products[0].Price = 8500
	if err := repo.Upsert(ctx, products); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	_, total, err := repo.List(ctx, Filter{})
	if err != nil || total != 2 {
		t.Fatalf("total = %d err=%v", total, err)
	}
	got, err := repo.Get(ctx, "solitaire-round")
	if err != nil || got.Price != 8500 {
		t.Fatalf("get: %+v err=%v", got, err)
	}
}

func TestLoadSeedFile_RejectsUnknownCategory(t *testing.T) {
	path := writeSeed(t, "products:\n  - id: x\n    name: Watch\n    category: Watches\n    price: 10\n")
	if _, err := LoadSeedFile(path); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct, got %v", err)
	}
}

func TestLoadSeedFile_BundledCatalog(t *testing.T) {
	products, err := LoadSeedFile(filepath.Join("..", "..", "data", "products.yaml"))
	if err != nil {
		t.Fatalf("load bundled catalog: %v", err)
	}
	if len(products) == 0 {
		t.Fatalf("bundled catalog is empty")
	}
}
