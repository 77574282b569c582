package knowledge

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SeedEntry is one admin-curated entry in a YAML seed file.
type SeedEntry struct {
	Category Category `yaml:"category"`
	Title    string   `yaml:"title"`
	Content  string   `yaml:"content"`
	Keywords []string `yaml:"keywords"`
	Priority int      `yaml:"priority"`
	Active   *bool    `yaml:"active"`
}

type seedFile struct {
	Entries []SeedEntry `yaml:"entries"`
}

type SyncReport struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

func LoadSeedFile(path string) ([]SeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, e := range f.Entries {
		if !e.Category.Valid() {
			return nil, fmt.Errorf("seed entry %d (%q): %w: %s", i, e.Title, ErrInvalidCategory, e.Category)
		}
	}
	return f.Entries, nil
}

// SyncSeed upserts seed entries keyed by (category, title). Running it twice
// with the same input creates nothing the second time.
func (s *Service) SyncSeed(ctx context.Context, entries []SeedEntry) (SyncReport, error) {
	var rep SyncReport
	for _, se := range entries {
		existing, err := s.repo.FindByTitle(ctx, se.Category, se.Title)
		switch {
		case IsNotFound(err):
			e, err := s.Add(ctx, NewEntry{
				Category: se.Category,
				Title:    se.Title,
				Content:  se.Content,
				Keywords: se.Keywords,
				Priority: se.Priority,
				Source:   SourceManual,
			})
			if err != nil {
				return rep, fmt.Errorf("seed %q: %w", se.Title, err)
			}
			if se.Active != nil && !*se.Active {
				if err := s.Deactivate(ctx, e.ID); err != nil {
					return rep, err
				}
			}
			rep.Created++
		case err != nil:
			return rep, err
		default:
			content, priority, keywords := se.Content, se.Priority, se.Keywords
			if _, err := s.Update(ctx, existing.ID, Patch{
				Content:  &content,
				Priority: &priority,
				Keywords: &keywords,
				IsActive: se.Active,
			}); err != nil {
				return rep, fmt.Errorf("seed %q: %w", se.Title, err)
			}
			rep.Updated++
		}
	}
	s.logger.Info("seed synced", zap.Int("created", rep.Created), zap.Int("updated", rep.Updated))
	return rep, nil
}

func (s *Service) SyncSeedFile(ctx context.Context, path string) (SyncReport, error) {
	entries, err := LoadSeedFile(path)
	if err != nil {
		return SyncReport{}, err
	}
	return s.SyncSeed(ctx, entries)
}
