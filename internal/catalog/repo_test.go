package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Product{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestList_FiltersByCategoryAndPrice(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	seed := []Product{
		{ID: "01", Name: "Solitaire", Category: EngagementRings, Price: 4200, Metal: "Platinum", InStock: true},
		{ID: "02", Name: "Halo", Category: EngagementRings, Price: 12500, Metal: "18K Rose Gold", InStock: true},
		{ID: "03", Name: "Studs", Category: Earrings, Price: 900, InStock: false},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	max := 10000.0
	got, total, err := repo.List(ctx, Filter{Category: EngagementRings, MaxPrice: &max})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(got) != 1 || got[0].ID != "01" {
		t.Fatalf("unexpected result total=%d got=%+v", total, got)
	}

	got, _, err = repo.List(ctx, Filter{Metal: "18K Rose Gold"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "02" {
		t.Fatalf("metal filter: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
