package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "chat.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Conversation{}, &Message{}, &Feedback{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	// sqlite allows one writer; serialize through a single connection
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestService(t *testing.T, window int) *Service {
	t.Helper()
	return NewService(NewRepo(openTestDB(t)), nil, window)
}

func mustAppend(t *testing.T, s *Service, sessionID string, m NewMessage, c *Context) *Message {
	t.Helper()
	out, err := s.AppendMessage(context.Background(), sessionID, m, c)
	if err != nil {
		t.Fatalf("append message: %v", err)
	}
	return out
}

func TestAppendMessage_CreatesSessionAndOrdersMessages(t *testing.T) {
	s := newTestService(t, 20)
	ctx := context.Background()

	first := mustAppend(t, s, "sess-1", NewMessage{Role: RoleUser, Content: "Hello"}, nil)
	second := mustAppend(t, s, "sess-1", NewMessage{Role: RoleAssistant, Content: "Hi", ToolsUsed: []string{"searchProducts"}}, nil)
	if first.Position != 0 || second.Position != 1 {
		t.Fatalf("unexpected positions: %d, %d", first.Position, second.Position)
	}

	sess, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.MessageCount != 2 || len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages, got count=%d len=%d", sess.MessageCount, len(sess.Messages))
	}
	if sess.Messages[0].Content != "Hello" || sess.Messages[1].Role != RoleAssistant {
		t.Fatalf("unexpected messages: %+v", sess.Messages)
	}
	if sess.IsTrainingData {
		t.Fatalf("new sessions are not training data")
	}
}

func TestAppendMessage_ContextLastWriteWins(t *testing.T) {
	s := newTestService(t, 20)
	ctx := context.Background()

	mustAppend(t, s, "sess-ctx", NewMessage{Role: RoleUser, Content: "a"}, &Context{ProductsViewed: []string{"p1"}})
	mustAppend(t, s, "sess-ctx", NewMessage{Role: RoleUser, Content: "b"}, nil)

	got, err := s.Context(ctx, "sess-ctx")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(got.ProductsViewed) != 1 || got.ProductsViewed[0] != "p1" {
		t.Fatalf("nil context must not clear stored context: %+v", got)
	}

	mustAppend(t, s, "sess-ctx", NewMessage{Role: RoleUser, Content: "c"}, &Context{CustomDesignRequested: true})
	got, err = s.Context(ctx, "sess-ctx")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(got.ProductsViewed) != 0 || !got.CustomDesignRequested {
		t.Fatalf("expected overwrite, got %+v", got)
	}
}

func TestAppendMessage_Validation(t *testing.T) {
	s := newTestService(t, 20)
	if _, err := s.AppendMessage(context.Background(), " ", NewMessage{Role: RoleUser}, nil); !errors.Is(err, ErrEmptySessionID) {
		t.Fatalf("expected ErrEmptySessionID, got %v", err)
	}
	if _, err := s.AppendMessage(context.Background(), "s", NewMessage{Role: "system"}, nil); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAppendMessage_ConcurrentAppendsGetDensePositions(t *testing.T) {
	s := newTestService(t, 20)
	mustAppend(t, s, "sess-c", NewMessage{Role: RoleUser, Content: "first"}, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AppendMessage(context.Background(), "sess-c", NewMessage{Role: RoleUser, Content: "x"}, nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	sess, err := s.Get(context.Background(), "sess-c")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, m := range sess.Messages {
		if m.Position != i {
			t.Fatalf("position gap at %d: %d", i, m.Position)
		}
	}
	if len(sess.Messages) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(sess.Messages))
	}
}

func TestAppendMessage_ConcurrentFirstMessagesShareOneSession(t *testing.T) {
	s := newTestService(t, 20)

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AppendMessage(context.Background(), "sess-new", NewMessage{Role: RoleUser, Content: "hi"}, nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent first append: %v", err)
	}

	sess, err := s.Get(context.Background(), "sess-new")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.MessageCount != n || len(sess.Messages) != n {
		t.Fatalf("expected %d messages, got count=%d len=%d", n, sess.MessageCount, len(sess.Messages))
	}
	for i, m := range sess.Messages {
		if m.Position != i {
			t.Fatalf("position gap at %d: %d", i, m.Position)
		}
	}
}

func TestAppendFeedback_HelpfulKnowledgeAnswerPromotes(t *testing.T) {
	s := newTestService(t, 20)
	ctx := context.Background()

	mustAppend(t, s, "sess-fb", NewMessage{Role: RoleUser, Content: "How do I clean diamonds?"}, nil)
	mustAppend(t, s, "sess-fb", NewMessage{Role: RoleAssistant, Content: "Soak them.", ToolsUsed: []string{KnowledgeSearchTool}}, nil)

	if _, err := s.AppendFeedback(ctx, "sess-fb", 1, RatingNotHelpful, nil); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	sess, _ := s.Get(ctx, "sess-fb")
	if sess.IsTrainingData {
		t.Fatalf("not-helpful must not promote")
	}

	comment := "great"
	if _, err := s.AppendFeedback(ctx, "sess-fb", 1, RatingHelpful, &comment); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	sess, _ = s.Get(ctx, "sess-fb")
	if !sess.IsTrainingData {
		t.Fatalf("helpful on knowledge answer must promote")
	}
	if len(sess.Feedback) != 2 || *sess.Feedback[1].Comment != "great" {
		t.Fatalf("unexpected feedback: %+v", sess.Feedback)
	}

	// one-way: later negative feedback does not clear the flag
	if _, err := s.AppendFeedback(ctx, "sess-fb", 0, RatingNotHelpful, nil); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	sess, _ = s.Get(ctx, "sess-fb")
	if !sess.IsTrainingData {
		t.Fatalf("promotion must be sticky")
	}

	list, total, err := s.ListTrainingData(ctx, 0, 0)
	if err != nil {
		t.Fatalf("training data: %v", err)
	}
	if total != 1 || list[0].SessionID != "sess-fb" {
		t.Fatalf("unexpected training feed: total=%d %+v", total, list)
	}
}

func TestAppendFeedback_HelpfulWithoutKnowledgeDoesNotPromote(t *testing.T) {
	s := newTestService(t, 20)
	mustAppend(t, s, "sess-np", NewMessage{Role: RoleAssistant, Content: "rings", ToolsUsed: []string{"searchProducts"}}, nil)

	if _, err := s.AppendFeedback(context.Background(), "sess-np", 0, RatingHelpful, nil); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	sess, _ := s.Get(context.Background(), "sess-np")
	if sess.IsTrainingData {
		t.Fatalf("unexpected promotion")
	}
}

func TestAppendFeedback_Errors(t *testing.T) {
	s := newTestService(t, 20)
	ctx := context.Background()

	if _, err := s.AppendFeedback(ctx, "missing", 0, RatingHelpful, nil); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	mustAppend(t, s, "sess-e", NewMessage{Role: RoleUser, Content: "x"}, nil)
	for _, idx := range []int{-1, 1, 7} {
		if _, err := s.AppendFeedback(ctx, "sess-e", idx, RatingHelpful, nil); !errors.Is(err, ErrInvalidMessageIndex) {
			t.Fatalf("index %d: expected ErrInvalidMessageIndex, got %v", idx, err)
		}
	}
	if _, err := s.AppendFeedback(ctx, "sess-e", 0, "meh", nil); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
}

func TestRecentMessages_UsesContextWindow(t *testing.T) {
	window := 3
	s := newTestService(t, window)

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		mustAppend(t, s, "sess-w", NewMessage{Role: role, Content: "seed"}, nil)
	}
	mustAppend(t, s, "sess-w", NewMessage{Role: RoleUser, Content: "new"}, nil)

	got, err := s.RecentMessages(context.Background(), "sess-w")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != window {
		t.Fatalf("expected %d messages, got %d", window, len(got))
	}
	if got[len(got)-1].Content != "new" {
		t.Fatalf("expected newest last, got %q", got[len(got)-1].Content)
	}
	if got[0].Position != 3 {
		t.Fatalf("expected oldest in window at position 3, got %d", got[0].Position)
	}
}

func TestContext_Merge(t *testing.T) {
	a := Context{ProductsViewed: []string{"p1"}, PriceRange: &PriceRange{Min: 1000, Max: 5000}}
	b := Context{ProductsViewed: []string{"p1", "p2"}, CategoriesInterested: []string{"Earrings"}, PriceRange: &PriceRange{Min: 500, Max: 3000}, CustomDesignRequested: true}

	got := a.Merge(b)
	if len(got.ProductsViewed) != 2 || got.ProductsViewed[1] != "p2" {
		t.Fatalf("products: %+v", got.ProductsViewed)
	}
	if got.PriceRange.Min != 500 || got.PriceRange.Max != 5000 {
		t.Fatalf("price range: %+v", got.PriceRange)
	}
	if !got.CustomDesignRequested || len(got.CategoriesInterested) != 1 {
		t.Fatalf("unexpected merge: %+v", got)
	}
	if a.PriceRange.Min != 1000 {
		t.Fatalf("merge must not mutate receiver")
	}
}
