package imagegen

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Outcome carries the columns written by a terminal transition.
type Outcome struct {
	ImageData *string
	Error     *string
}

// Store persists jobs. Transition is a compare-and-set on status: it reports
// false when the job is not in the expected state.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, toolCallID string) (*Job, error)
	Transition(ctx context.Context, toolCallID string, from, to Status, out Outcome, at time.Time) (bool, error)
	ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]Job, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create inserts j. If the insert fails and a job with the same tool call id
// exists, ErrDuplicateRequest is returned.
func (s *GormStore) Create(ctx context.Context, j *Job) error {
	err := s.db.WithContext(ctx).Create(j).Error
	if err == nil {
		return nil
	}
	if _, getErr := s.Get(ctx, j.ToolCallID); getErr == nil {
		return ErrDuplicateRequest
	}
	return err
}

func (s *GormStore) Get(ctx context.Context, toolCallID string) (*Job, error) {
	var j Job
	if err := s.db.WithContext(ctx).First(&j, "tool_call_id = ?", toolCallID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (s *GormStore) Transition(ctx context.Context, toolCallID string, from, to Status, out Outcome, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if out.ImageData != nil {
		updates["image_data"] = *out.ImageData
	}
	if out.Error != nil {
		updates["error"] = *out.Error
	}
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("tool_call_id = ? AND status = ?", toolCallID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]Job, error) {
	var out []Job
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
