package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/jewelry-assistant/internal/ai"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"go.uber.org/zap"
)

const (
	ImageSize      = "1024x1024"
	promptTemplate = "High-quality, professional product photography of %s. Studio lighting, clean white background, detailed and sharp focus."

	interruptedError = "generation interrupted"
	reconcileBatch   = 100
)

// EnhancePrompt wraps a raw design description in the product photography
// framing sent to the generator.
func EnhancePrompt(description string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(description))
}

// Queue hands a job id to whatever runs Process.
type Queue interface {
	Enqueue(ctx context.Context, toolCallID string) error
}

// StatusCache stores encoded terminal views.
type StatusCache interface {
	GetStatus(ctx context.Context, toolCallID string) ([]byte, bool, error)
	SetStatus(ctx context.Context, toolCallID string, payload []byte, ttl time.Duration) error
}

type Options struct {
	// Timeout bounds a single generator call.
	Timeout  time.Duration
	Cache    StatusCache
	CacheTTL time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

type Manager struct {
	store    Store
	queue    Queue
	gen      ai.ImageGenerator
	cache    StatusCache
	cacheTTL time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(store Store, queue Queue, gen ai.ImageGenerator, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:    store,
		queue:    queue,
		gen:      gen,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		timeout:  opts.Timeout,
		logger:   opts.Logger.Named("imagegen"),
		now:      opts.Now,
	}
}

// Request records a pending job and hands it to the queue. It never waits on
// the generator. A tool call id can only be used once.
func (m *Manager) Request(ctx context.Context, sessionID, toolCallID, prompt string) (*Ticket, error) {
	sessionID = strings.TrimSpace(sessionID)
	toolCallID = strings.TrimSpace(toolCallID)
	prompt = strings.TrimSpace(prompt)
	if sessionID == "" || toolCallID == "" || prompt == "" {
		return nil, ErrInvalidRequest
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	job := &Job{
		ID:         id,
		SessionID:  sessionID,
		ToolCallID: toolCallID,
		Prompt:     prompt,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			m.logger.Warn("duplicate image request", zap.String("tool_call_id", toolCallID))
		}
		return nil, err
	}

	// the record is durable; a failed enqueue is picked up by Reconcile
	if err := m.queue.Enqueue(ctx, toolCallID); err != nil {
		m.logger.Error("enqueue failed", zap.String("tool_call_id", toolCallID), zap.Error(err))
	}
	m.logger.Info("image job requested", zap.String("tool_call_id", toolCallID), zap.String("session_id", sessionID))
	return &Ticket{ToolCallID: toolCallID, Status: StatusPending}, nil
}

// Process claims a pending job and runs it to a terminal state. It is a no-op
// when the job is not pending. Generation failures are recorded on the job
// and are not returned; a returned error means the job was not claimed or
// its outcome could not be stored.
func (m *Manager) Process(ctx context.Context, toolCallID string) error {
	start := m.now()
	claimed, err := m.store.Transition(ctx, toolCallID, StatusPending, StatusProcessing, Outcome{}, start)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		m.logger.Debug("job not pending, skipping", zap.String("tool_call_id", toolCallID))
		return nil
	}

	job, err := m.store.Get(ctx, toolCallID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	gctx, cancel := context.WithTimeout(ctx, m.timeout)
	img, genErr := m.gen.GenerateImage(gctx, ai.ImageRequest{Prompt: EnhancePrompt(job.Prompt), Size: ImageSize})
	cancel()

	// the outcome is recorded even if the caller went away mid-generation
	wctx := context.WithoutCancel(ctx)

	var out Outcome
	to := StatusCompleted
	switch {
	case genErr != nil && ctx.Err() != nil:
		to = StatusFailed
		msg := interruptedError
		out.Error = &msg
	case genErr != nil:
		to = StatusFailed
		msg := genErr.Error()
		if errors.Is(genErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("image generation timed out after %s", m.timeout)
		}
		out.Error = &msg
	default:
		uri := img.DataURI()
		out.ImageData = &uri
	}

	ok, err := m.store.Transition(wctx, toolCallID, StatusProcessing, to, out, m.now())
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if !ok {
		m.logger.Warn("job left processing before outcome was recorded", zap.String("tool_call_id", toolCallID))
		return nil
	}

	fields := []zap.Field{zap.String("tool_call_id", toolCallID), zap.String("status", string(to)), zap.Duration("cost", m.now().Sub(start))}
	if genErr != nil {
		m.logger.Warn("image job failed", append(fields, zap.Error(genErr))...)
	} else {
		m.logger.Info("image job completed", fields...)
	}
	m.warmCache(wctx, toolCallID)
	return nil
}

// StatusJSON returns the encoded status view. Terminal views are served from
// the cache when present, so repeated reads return identical bytes.
func (m *Manager) StatusJSON(ctx context.Context, toolCallID string) ([]byte, error) {
	if m.cache != nil {
		b, ok, err := m.cache.GetStatus(ctx, toolCallID)
		if err != nil {
			m.logger.Warn("status cache read failed", zap.String("tool_call_id", toolCallID), zap.Error(err))
		} else if ok {
			return b, nil
		}
	}

	job, err := m.store.Get(ctx, toolCallID)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(job.View())
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() && m.cache != nil {
		if err := m.cache.SetStatus(ctx, toolCallID, b, m.cacheTTL); err != nil {
			m.logger.Warn("status cache write failed", zap.String("tool_call_id", toolCallID), zap.Error(err))
		}
	}
	return b, nil
}

func (m *Manager) Status(ctx context.Context, toolCallID string) (*StatusView, error) {
	b, err := m.StatusJSON(ctx, toolCallID)
	if err != nil {
		return nil, err
	}
	var v StatusView
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *Manager) warmCache(ctx context.Context, toolCallID string) {
	if m.cache == nil {
		return
	}
	if _, err := m.StatusJSON(ctx, toolCallID); err != nil {
		m.logger.Warn("status cache warm failed", zap.String("tool_call_id", toolCallID), zap.Error(err))
	}
}

type ReconcileReport struct {
	Failed   int `json:"failed"`
	Requeued int `json:"requeued"`
}

// Reconcile fails jobs stuck in processing for longer than staleAfter and
// re-enqueues pending jobs that no worker picked up.
func (m *Manager) Reconcile(ctx context.Context, staleAfter time.Duration) (ReconcileReport, error) {
	var rep ReconcileReport
	now := m.now()
	before := now.Add(-staleAfter)

	stuck, err := m.store.ListStale(ctx, StatusProcessing, before, reconcileBatch)
	if err != nil {
		return rep, fmt.Errorf("list processing: %w", err)
	}
	for _, j := range stuck {
		msg := interruptedError
		ok, err := m.store.Transition(ctx, j.ToolCallID, StatusProcessing, StatusFailed, Outcome{Error: &msg}, now)
		if err != nil {
			return rep, err
		}
		if ok {
			rep.Failed++
			m.warmCache(ctx, j.ToolCallID)
		}
	}

	waiting, err := m.store.ListStale(ctx, StatusPending, before, reconcileBatch)
	if err != nil {
		return rep, fmt.Errorf("list pending: %w", err)
	}
	for _, j := range waiting {
		// touch updated_at so the next sweep does not enqueue it again
		ok, err := m.store.Transition(ctx, j.ToolCallID, StatusPending, StatusPending, Outcome{}, now)
		if err != nil {
			return rep, err
		}
		if !ok {
			continue
		}
		if err := m.queue.Enqueue(ctx, j.ToolCallID); err != nil {
			m.logger.Error("re-enqueue failed", zap.String("tool_call_id", j.ToolCallID), zap.Error(err))
			continue
		}
		rep.Requeued++
	}

	if rep.Failed > 0 || rep.Requeued > 0 {
		m.logger.Info("reconciled image jobs", zap.Int("failed", rep.Failed), zap.Int("requeued", rep.Requeued))
	}
	return rep, nil
}
