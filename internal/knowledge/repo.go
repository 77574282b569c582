package knowledge

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Create inserts the entry and its keyword rows in one transaction.
func (r *Repo) Create(ctx context.Context, e *Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(e).Error; err != nil {
			return err
		}
		return replaceKeywords(tx, e.ID, e.Keywords)
	})
}

func (r *Repo) Get(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *Repo) FindByTitle(ctx context.Context, category Category, title string) (*Entry, error) {
	var e Entry
	err := r.db.WithContext(ctx).
		Where("category = ? AND title = ?", category, title).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Update applies column updates and, when keywords is non-nil, replaces the
// keyword set. Returns ErrEntryNotFound when nothing matched.
func (r *Repo) Update(ctx context.Context, id string, updates map[string]any, keywords []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if keywords != nil {
			updates["keywords"] = keywordColumn(keywords)
		}
		res := tx.Model(&Entry{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&Entry{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrEntryNotFound
			}
		}
		if keywords == nil {
			return nil
		}
		return replaceKeywords(tx, id, keywords)
	})
}

// SearchKeywords returns active entries sharing at least one keyword with tokens.
func (r *Repo) SearchKeywords(ctx context.Context, tokens []string, category Category, limit int) ([]Entry, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	sub := r.db.Model(&Keyword{}).Select("entry_id").Where("keyword IN ?", tokens)

	var out []Entry
	err := r.scope(ctx, category).
		Where("id IN (?)", sub).
		Order("priority DESC").Order("usage_count DESC").Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SearchText is the case-insensitive substring fallback over title and content.
func (r *Repo) SearchText(ctx context.Context, query string, category Category, limit int) ([]Entry, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var out []Entry
	err := r.scope(ctx, category).
		Where("(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(content) LIKE ? ESCAPE '!')", pattern, pattern).
		Order("priority DESC").Order("usage_count DESC").Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Repo) IncrementUsage(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&Entry{}).
		Where("id IN ?", ids).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1)).Error
}

type ListFilter struct {
	Category Category
	IsActive *bool
	Limit    int
	Skip     int
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Entry, int64, error) {
	q := r.db.WithContext(ctx).Model(&Entry{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []Entry
	err := q.Order("priority DESC").Order("created_at DESC").
		Offset(f.Skip).Limit(f.Limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) scope(ctx context.Context, category Category) *gorm.DB {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	return q
}

func replaceKeywords(tx *gorm.DB, entryID string, keywords []string) error {
	if err := tx.Where("entry_id = ?", entryID).Delete(&Keyword{}).Error; err != nil {
		return err
	}
	if len(keywords) == 0 {
		return nil
	}
	rows := make([]Keyword, 0, len(keywords))
	for _, k := range keywords {
		rows = append(rows, Keyword{EntryID: entryID, Keyword: k})
	}
	return tx.Create(&rows).Error
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
