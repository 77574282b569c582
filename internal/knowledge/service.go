package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
	defaultListLimit   = 50
	maxKeywordLen      = 64
)

type Service struct {
	repo   *Repo
	logger *zap.Logger
}

func NewService(repo *Repo, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger.Named("knowledge")}
}

// Search returns at most limit active entries for query. Keyword matches win;
// the substring pass only runs when no keyword matched. An empty result means
// "no grounding available" and is not an error.
func (s *Service) Search(ctx context.Context, query string, category Category, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if category != "" && !category.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Entry{}, nil
	}

	results, err := s.repo.SearchKeywords(ctx, Tokenize(query), category, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	pass := "keywords"
	if len(results) == 0 {
		pass = "text"
		results, err = s.repo.SearchText(ctx, query, category, limit)
		if err != nil {
			return nil, fmt.Errorf("text search: %w", err)
		}
	}
	if results == nil {
		results = []Entry{}
	}
	s.logger.Debug("search", zap.String("query", query), zap.String("pass", pass), zap.Int("results", len(results)))

	if len(results) > 0 {
		ids := make([]string, len(results))
		for i, e := range results {
			ids[i] = e.ID
		}
		// usage counters are advisory; a lost increment is acceptable
		if err := s.repo.IncrementUsage(ctx, ids); err != nil {
			s.logger.Warn("increment usage failed", zap.Error(err))
		}
	}
	return results, nil
}

type NewEntry struct {
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Priority int      `json:"priority"`
	Source   Source   `json:"source"`
}

func (s *Service) Add(ctx context.Context, in NewEntry) (*Entry, error) {
	if !in.Category.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, in.Category)
	}
	if in.Source == "" {
		in.Source = SourceAdmin
	}
	if !in.Source.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSource, in.Source)
	}
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return nil, ErrEmptyField
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	e := &Entry{
		ID:       id,
		Category: in.Category,
		Title:    title,
		Content:  content,
		Keywords: keywordColumn(in.Keywords),
		Priority: in.Priority,
		IsActive: true,
		Source:   in.Source,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("entry added", zap.String("id", e.ID), zap.String("title", e.Title), zap.String("source", string(e.Source)))
	return e, nil
}

// Patch carries optional fields; nil means "leave unchanged".
type Patch struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	Keywords *[]string `json:"keywords"`
	Priority *int      `json:"priority"`
	IsActive *bool     `json:"isActive"`
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*Entry, error) {
	updates := map[string]any{}
	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		updates["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Content != nil && strings.TrimSpace(*p.Content) != "" {
		updates["content"] = strings.TrimSpace(*p.Content)
	}
	if p.Priority != nil {
		updates["priority"] = *p.Priority
	}
	if p.IsActive != nil {
		updates["is_active"] = *p.IsActive
	}
	var keywords []string
	if p.Keywords != nil {
		keywords = normalizeKeywords(*p.Keywords)
		if keywords == nil {
			keywords = []string{}
		}
	}
	if len(updates) == 0 && keywords == nil {
		return s.repo.Get(ctx, id)
	}

	if err := s.repo.Update(ctx, id, updates, keywords); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Deactivate hides an entry from retrieval. Entries are never deleted.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	inactive := false
	_, err := s.Update(ctx, id, Patch{IsActive: &inactive})
	return err
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Entry, int64, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = defaultListLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	return s.repo.List(ctx, f)
}

// Tokenize lowercases query, splits on whitespace and trims surrounding
// punctuation so "care?" matches the keyword "care".
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// normalizeKeywords tokenizes keywords the way queries are tokenized, so a
// phrase like "rose gold" is stored as "rose" and "gold".
func normalizeKeywords(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, phrase := range in {
		for _, k := range Tokenize(phrase) {
			if len(k) > maxKeywordLen {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func keywordColumn(in []string) datatypes.JSONSlice[string] {
	k := normalizeKeywords(in)
	if k == nil {
		k = []string{}
	}
	return datatypes.JSONSlice[string](k)
}

// IsNotFound reports whether err means the entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
