package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Service struct {
	repo              *Repo
	logger            *zap.Logger
	contextWindowSize int
}

func NewService(repo *Repo, logger *zap.Logger, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger.Named("chat"), contextWindowSize: contextWindowSize}
}

type NewMessage struct {
	Role      Role     `json:"role"`
	Content   string   `json:"content"`
	ToolsUsed []string `json:"toolsUsed,omitempty"`
	UserID    *string  `json:"userId,omitempty"`
}

// AppendMessage creates the session on its first message and appends
// otherwise. A non-nil c overwrites the stored context (last write wins).
func (s *Service) AppendMessage(ctx context.Context, sessionID string, in NewMessage, c *Context) (*Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, in.Role)
	}

	m := &Message{
		SessionID: sessionID,
		Role:      in.Role,
		Content:   in.Content,
	}
	if len(in.ToolsUsed) > 0 {
		m.ToolsUsed = datatypes.JSONSlice[string](in.ToolsUsed)
	}
	if err := s.repo.AppendMessage(ctx, m, in.UserID, c); err != nil {
		return nil, err
	}
	return m, nil
}

// AppendFeedback records a rating against an existing message position. A
// helpful rating on a message that used knowledge search marks the session
// as training data; the flag is never cleared.
func (s *Service) AppendFeedback(ctx context.Context, sessionID string, messageIndex int, rating Rating, comment *string) (*Feedback, error) {
	if !rating.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRating, rating)
	}
	if comment != nil && strings.TrimSpace(*comment) == "" {
		comment = nil
	}

	f := &Feedback{
		SessionID:    sessionID,
		MessageIndex: messageIndex,
		Rating:       rating,
		Comment:      comment,
	}

	var promote func(*Message) bool
	if rating == RatingHelpful {
		promote = func(m *Message) bool { return m.UsedTool(KnowledgeSearchTool) }
	}
	promoted, err := s.repo.InsertFeedback(ctx, f, promote)
	if err != nil {
		return nil, err
	}
	if promoted {
		s.logger.Info("session promoted to training data", zap.String("session_id", sessionID), zap.Int("message_index", messageIndex))
	}
	return f, nil
}

// RecentMessages returns up to the context window of messages, oldest first.
func (s *Service) RecentMessages(ctx context.Context, sessionID string) ([]Message, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, sessionID, s.contextWindowSize)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		out = append(out, recentDesc[i])
	}
	return out, nil
}

// Context returns the stored context, or the zero value for a new session.
func (s *Service) Context(ctx context.Context, sessionID string) (Context, error) {
	conv, err := s.repo.GetConversation(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Context{}, nil
		}
		return Context{}, err
	}
	return conv.Context.Data(), nil
}

func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	conv, err := s.repo.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fb, err := s.repo.ListFeedback(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	if fb == nil {
		fb = []Feedback{}
	}
	return &Session{Conversation: *conv, Messages: msgs, Feedback: fb}, nil
}

func (s *Service) ListTrainingData(ctx context.Context, limit, skip int) ([]Conversation, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	return s.repo.ListTrainingData(ctx, limit, skip)
}
