package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/jewelry-assistant/internal/ai"
	"github.com/suPer8Hu/jewelry-assistant/internal/chat"
	"github.com/suPer8Hu/jewelry-assistant/internal/common"
	"github.com/suPer8Hu/jewelry-assistant/internal/tools"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultSystemPrompt = `You are a friendly jewelry consultant for a lab-grown diamond store.
Use searchProducts to find pieces, viewProduct to open one for the shopper and addToWishlist to save it.
Call searchKnowledge before answering questions about diamonds, metals, care, sizing or certification; if it finds nothing, answer generally and do not cite a source.
Use generateDesign when the shopper describes a custom piece; the image arrives later, so tell them it is being generated.`

var ErrEmptyUtterance = errors.New("session id and message are required")

// Sessions is the conversation log the loop reads history from and writes
// each turn to.
type Sessions interface {
	AppendMessage(ctx context.Context, sessionID string, in chat.NewMessage, c *chat.Context) (*chat.Message, error)
	RecentMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	Context(ctx context.Context, sessionID string) (chat.Context, error)
}

type Config struct {
	MaxSteps     int
	Parallelism  int
	SystemPrompt string
	Logger       *zap.Logger
}

type Loop struct {
	model    ai.ToolCaller
	tools    *tools.Registry
	sessions Sessions

	maxSteps     int
	parallelism  int
	systemPrompt string
	logger       *zap.Logger
}

func NewLoop(model ai.ToolCaller, reg *tools.Registry, sessions Sessions, cfg Config) *Loop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 4
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Loop{
		model:        model,
		tools:        reg,
		sessions:     sessions,
		maxSteps:     cfg.MaxSteps,
		parallelism:  cfg.Parallelism,
		systemPrompt: cfg.SystemPrompt,
		logger:       cfg.Logger.Named("assistant"),
	}
}

type TurnRequest struct {
	SessionID string `json:"session_id"`
	Utterance string `json:"message"`
}

type Turn struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionId"`
	Role      string   `json:"role"`
	Parts     []Part   `json:"parts"`
	Actions   []Action `json:"actions"`
}

// Run executes one user turn. Model failures abort the turn; tool failures
// are rendered as output-error parts and never abort it.
func (l *Loop) Run(ctx context.Context, req TurnRequest) (*Turn, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Utterance = strings.TrimSpace(req.Utterance)
	if req.SessionID == "" || req.Utterance == "" {
		return nil, ErrEmptyUtterance
	}

	turnID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	log := l.logger.With(zap.String("session_id", req.SessionID), zap.String("turn_id", turnID))

	// 1) store user message (strong consistency)
	if _, err := l.sessions.AppendMessage(ctx, req.SessionID, chat.NewMessage{Role: chat.RoleUser, Content: req.Utterance}, nil); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	// 2) build model messages from recent history (ASC)
	history, err := l.sessions.RecentMessages(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	msgs := make([]ai.Message, 0, len(history)+1)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: l.systemPrompt})
	for _, m := range history {
		msgs = append(msgs, ai.Message{Role: string(m.Role), Content: m.Content})
	}

	specs := l.tools.Specs()
	nav := &recorder{}
	var parts []Part

	for step := 0; step < l.maxSteps; step++ {
		stepStart := len(parts)
		parts, err = l.stream(ctx, log, msgs, specs, parts)
		if err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}

		pending := toolIndexes(parts, stepStart)
		if len(pending) == 0 {
			break
		}
		parts = l.execute(ctx, req.SessionID, nav, parts, pending)
		msgs = append(msgs, stepMessages(parts, stepStart)...)
		log.Debug("step finished", zap.Int("step", step), zap.Int("tool_calls", len(pending)))
	}

	turn := &Turn{
		ID:        turnID,
		SessionID: req.SessionID,
		Role:      string(chat.RoleAssistant),
		Parts:     parts,
		Actions:   nav.list(),
	}
	if turn.Parts == nil {
		turn.Parts = []Part{}
	}
	l.persist(ctx, log, turn)
	return turn, nil
}

// stream runs one model round-trip and folds its events into parts.
func (l *Loop) stream(ctx context.Context, log *zap.Logger, msgs []ai.Message, specs []ai.ToolSpec, parts []Part) ([]Part, error) {
	events, errs := l.model.StreamWithTools(ctx, msgs, specs)
	for ev := range events {
		next, err := Reduce(parts, ev, l.tools.ProgressLabel)
		if err != nil {
			log.Warn("dropping stream event", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}
		parts = next
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return parts, nil
}

func toolIndexes(parts []Part, from int) []int {
	var idx []int
	for i := from; i < len(parts); i++ {
		if parts[i].Type == PartTool {
			idx = append(idx, i)
		}
	}
	return idx
}

type toolResult struct {
	output string
	err    error
}

// execute runs every tool part in idx concurrently. Each result is written
// back at its own index, so part order is request order whatever the
// completion order.
func (l *Loop) execute(ctx context.Context, sessionID string, nav tools.Navigator, parts []Part, idx []int) []Part {
	results := make([]toolResult, len(idx))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for n, i := range idx {
		p := parts[i]
		if p.State != StateInputAvailable {
			results[n] = toolResult{err: errors.New("tool call input was incomplete")}
			continue
		}
		g.Go(func() error {
			call := tools.Call{SessionID: sessionID, ToolCallID: p.ToolCallID, Nav: nav}
			out, err := l.tools.Invoke(gctx, call, p.ToolName, p.Input)
			results[n] = toolResult{output: out, err: err}
			// tool failures stay inside their own part
			return nil
		})
	}
	_ = g.Wait()

	out := append([]Part(nil), parts...)
	for n, i := range idx {
		var (
			next Part
			err  error
		)
		if r := results[n]; r.err != nil {
			l.logger.Info("tool call failed", zap.String("tool", out[i].ToolName), zap.String("tool_call_id", out[i].ToolCallID), zap.Error(r.err))
			next, err = out[i].WithError(r.err.Error())
		} else {
			next, err = out[i].WithOutput(r.output)
		}
		if err != nil {
			l.logger.Error("tool part transition", zap.Error(err))
			continue
		}
		out[i] = next
	}
	return out
}

// stepMessages renders one step's parts as the assistant tool-call message
// followed by one tool message per call, in request order.
func stepMessages(parts []Part, from int) []ai.Message {
	var text strings.Builder
	assistant := ai.Message{Role: ai.RoleAssistant}
	var results []ai.Message
	for _, p := range parts[from:] {
		switch p.Type {
		case PartText:
			text.WriteString(p.Text)
		case PartTool:
			assistant.ToolCalls = append(assistant.ToolCalls, ai.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Arguments: p.Input})
			content := p.Output
			if p.State == StateOutputError {
				content = "Error: " + p.ErrorText
			}
			results = append(results, ai.Message{Role: ai.RoleTool, ToolCallID: p.ToolCallID, ToolName: p.ToolName, Content: content})
		}
	}
	assistant.Content = text.String()
	return append([]ai.Message{assistant}, results...)
}

// persist stores the assistant message and folds the turn's signals into
// the session context. The turn has already happened, so failures are logged.
func (l *Loop) persist(ctx context.Context, log *zap.Logger, turn *Turn) {
	var text strings.Builder
	var used []string
	seen := map[string]bool{}
	for _, p := range turn.Parts {
		switch p.Type {
		case PartText:
			text.WriteString(p.Text)
		case PartTool:
			if p.State == StateOutputAvailable && !seen[p.ToolName] {
				seen[p.ToolName] = true
				used = append(used, p.ToolName)
			}
		}
	}

	current, err := l.sessions.Context(ctx, turn.SessionID)
	if err != nil {
		log.Warn("load session context", zap.Error(err))
	}
	merged := current.Merge(signals(turn))

	_, err = l.sessions.AppendMessage(ctx, turn.SessionID, chat.NewMessage{
		Role:      chat.RoleAssistant,
		Content:   text.String(),
		ToolsUsed: used,
	}, &merged)
	if err != nil {
		log.Error("store assistant message", zap.Error(err))
	}
}

// signals extracts context hints from successful tool calls.
func signals(turn *Turn) chat.Context {
	var c chat.Context
	for _, p := range turn.Parts {
		if p.Type != PartTool || p.State != StateOutputAvailable {
			continue
		}
		var in struct {
			ProductID string   `json:"productId"`
			Category  string   `json:"category"`
			MinPrice  *float64 `json:"minPrice"`
			MaxPrice  *float64 `json:"maxPrice"`
		}
		_ = json.Unmarshal(p.Input, &in)

		switch tools.Name(p.ToolName) {
		case tools.ViewProduct:
			c.ProductsViewed = append(c.ProductsViewed, in.ProductID)
		case tools.SearchProducts:
			if in.Category != "" {
				c.CategoriesInterested = append(c.CategoriesInterested, in.Category)
			}
			if in.MinPrice != nil || in.MaxPrice != nil {
				pr := chat.PriceRange{}
				if in.MinPrice != nil {
					pr.Min = *in.MinPrice
				}
				if in.MaxPrice != nil {
					pr.Max = *in.MaxPrice
				}
				c.PriceRange = mergeRange(c.PriceRange, pr)
			}
		case tools.GenerateDesign:
			c.CustomDesignRequested = true
		}
	}
	return c
}

func mergeRange(cur *chat.PriceRange, pr chat.PriceRange) *chat.PriceRange {
	if cur == nil {
		return &pr
	}
	return chat.Context{PriceRange: cur}.Merge(chat.Context{PriceRange: &pr}).PriceRange
}
