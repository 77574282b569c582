package knowledge

import (
	"time"

	"gorm.io/datatypes"
)

type Category string

const (
	CategoryDiamondEducation   Category = "diamond-education"
	CategoryMetalTypes         Category = "metal-types"
	CategoryJewelryCare        Category = "jewelry-care"
	CategorySizingGuide        Category = "sizing-guide"
	CategoryCertification      Category = "certification"
	CategoryCustomization      Category = "customization"
	CategoryPricing            Category = "pricing"
	CategoryLabGrownVsMined    Category = "lab-grown-vs-mined"
	CategoryRingStyles         Category = "ring-styles"
	CategoryEarringStyles      Category = "earring-styles"
	CategoryNecklaceStyles     Category = "necklace-styles"
	CategoryBraceletStyles     Category = "bracelet-styles"
	CategoryPendantStyles      Category = "pendant-styles"
	CategoryGemstoneProperties Category = "gemstone-properties"
	CategoryDesignTrends       Category = "design-trends"
	CategoryMaintenance        Category = "maintenance"
	CategoryGeneral            Category = "general"
)

var allCategories = []Category{
	CategoryDiamondEducation, CategoryMetalTypes, CategoryJewelryCare, CategorySizingGuide,
	CategoryCertification, CategoryCustomization, CategoryPricing, CategoryLabGrownVsMined,
	CategoryRingStyles, CategoryEarringStyles, CategoryNecklaceStyles, CategoryBraceletStyles,
	CategoryPendantStyles, CategoryGemstoneProperties, CategoryDesignTrends, CategoryMaintenance,
	CategoryGeneral,
}

// Categories lists every category tag in declaration order.
func Categories() []Category {
	return append([]Category(nil), allCategories...)
}

func (c Category) Valid() bool {
	for _, v := range allCategories {
		if c == v {
			return true
		}
	}
	return false
}

type Source string

const (
	SourceManual   Source = "manual"
	SourceFeedback Source = "feedback"
	SourceAdmin    Source = "admin"
)

func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceFeedback, SourceAdmin:
		return true
	}
	return false
}

// Entry is a short advisory document the assistant can ground answers on.
// Inactive entries are kept for audit and never returned by Search.
type Entry struct {
	ID          string                      `gorm:"primaryKey;size:26" json:"id"`
	Category    Category                    `gorm:"type:varchar(32);index;not null" json:"category"`
	Title       string                      `gorm:"type:varchar(255);not null" json:"title"`
	Content     string                      `gorm:"type:text;not null" json:"content"`
	Keywords    datatypes.JSONSlice[string] `json:"keywords"`
	Priority    int                         `gorm:"index;not null" json:"priority"`
	UsageCount  int64                       `gorm:"not null" json:"usageCount"`
	SuccessRate float64                     `gorm:"not null" json:"successRate"`
	IsActive    bool                        `gorm:"index;not null" json:"isActive"`
	Source      Source                      `gorm:"type:varchar(16);not null" json:"source"`
	CreatedAt   time.Time                   `json:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
}

func (Entry) TableName() string { return "knowledge_entries" }

// Keyword is the search-side copy of Entry.Keywords, one row per keyword.
type Keyword struct {
	EntryID string `gorm:"primaryKey;size:26"`
	Keyword string `gorm:"primaryKey;type:varchar(64);index"`
}

func (Keyword) TableName() string { return "knowledge_keywords" }
