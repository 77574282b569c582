package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	return getConversation(r.db.WithContext(ctx), sessionID)
}

func getConversation(tx *gorm.DB, sessionID string) (*Conversation, error) {
	var c Conversation
	if err := tx.Where("session_id = ?", sessionID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &c, nil
}

// AppendMessage bumps the session's message counter (creating the session on
// first use) and stores m at the reserved position. A non-nil c replaces the
// stored context.
func (r *Repo) AppendMessage(ctx context.Context, m *Message, userID *string, c *Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"message_count": gorm.Expr("message_count + ?", 1),
			"updated_at":    time.Now(),
		}
		if c != nil {
			updates["context"] = datatypes.NewJSONType(*c)
		}
		res := tx.Model(&Conversation{}).Where("session_id = ?", m.SessionID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			// a concurrent first message may insert the row first; either way
			// the counter update below reserves this message's position
			conv := &Conversation{SessionID: m.SessionID, UserID: userID}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}},
				DoNothing: true,
			}).Create(conv).Error; err != nil {
				return err
			}
			res = tx.Model(&Conversation{}).Where("session_id = ?", m.SessionID).Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrSessionNotFound
			}
		}

		conv, err := getConversation(tx, m.SessionID)
		if err != nil {
			return err
		}
		m.Position = conv.MessageCount - 1
		return tx.Create(m).Error
	})
}

func (r *Repo) GetMessage(ctx context.Context, sessionID string, position int) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND position = ?", sessionID, position).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidMessageIndex
		}
		return nil, err
	}
	return &m, nil
}

// ListRecentMessagesDesc returns the most recent messages in DESC position order (newest -> oldest).
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *Repo) ListFeedback(ctx context.Context, sessionID string) ([]Feedback, error) {
	var fb []Feedback
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&fb).Error
	return fb, err
}

// InsertFeedback validates the index against the session's current message
// count and, when promote is set, flags the session as training data.
func (r *Repo) InsertFeedback(ctx context.Context, f *Feedback, promote func(*Message) bool) (promoted bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := getConversation(tx, f.SessionID)
		if err != nil {
			return err
		}
		if f.MessageIndex < 0 || f.MessageIndex >= conv.MessageCount {
			return ErrInvalidMessageIndex
		}
		if err := tx.Create(f).Error; err != nil {
			return err
		}
		if promote == nil || conv.IsTrainingData {
			return nil
		}

		var m Message
		if err := tx.Where("session_id = ? AND position = ?", f.SessionID, f.MessageIndex).First(&m).Error; err != nil {
			return err
		}
		if !promote(&m) {
			return nil
		}
		promoted = true
		return tx.Model(&Conversation{}).
			Where("id = ?", conv.ID).
			Update("is_training_data", true).Error
	})
	return promoted, err
}

func (r *Repo) ListTrainingData(ctx context.Context, limit, skip int) ([]Conversation, int64, error) {
	q := r.db.WithContext(ctx).Model(&Conversation{}).Where("is_training_data = ?", true)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []Conversation
	if err := q.Order("updated_at DESC").Order("id DESC").Offset(skip).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
