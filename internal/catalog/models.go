package catalog

import "time"

type Category string

const (
	EngagementRings Category = "Engagement Rings"
	WeddingBands    Category = "Wedding Bands"
	Earrings        Category = "Earrings"
	Necklaces       Category = "Necklaces"
	Bracelets       Category = "Bracelets"
	LooseDiamonds   Category = "Loose Diamonds"
)

var (
	Categories = []string{string(EngagementRings), string(WeddingBands), string(Earrings), string(Necklaces), string(Bracelets), string(LooseDiamonds)}
	Metals     = []string{"Platinum", "18K White Gold", "18K Yellow Gold", "18K Rose Gold", "14K White Gold", "14K Yellow Gold"}
	Shapes     = []string{"Round", "Princess", "Cushion", "Oval", "Emerald", "Pear", "Marquise", "Asscher"}
)

type Product struct {
	ID          string    `gorm:"primaryKey;size:26" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Category    Category  `gorm:"type:varchar(32);index;not null" json:"category"`
	Price       float64   `gorm:"index;not null" json:"price"`
	Image       string    `gorm:"type:varchar(512)" json:"image"`
	Description string    `gorm:"type:text" json:"description"`
	Shape       string    `gorm:"type:varchar(16);index" json:"shape,omitempty"`
	Metal       string    `gorm:"type:varchar(32);index" json:"metal,omitempty"`
	Carat       float64   `json:"carat,omitempty"`
	InStock     bool      `gorm:"not null" json:"inStock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Product) TableName() string { return "products" }

// Summary is the compact shape handed to the assistant model.
type Summary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Category Category `json:"category"`
	Metal    string   `json:"metal"`
	Carat    float64  `json:"carat"`
	InStock  bool     `json:"inStock"`
}

func (p Product) Summary() Summary {
	return Summary{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Category: p.Category,
		Metal:    p.Metal,
		Carat:    p.Carat,
		InStock:  p.InStock,
	}
}
