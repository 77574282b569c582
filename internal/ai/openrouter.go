package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterMsg struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []openRouterToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
}

type openRouterToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type openRouterChatReq struct {
	Model    string          `json:"model"`
	Messages []openRouterMsg `json:"messages"`
	Tools    []functionSpec  `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
}

type openRouterStreamResp struct {
	Choices []struct {
		Delta struct {
			Content   string               `json:"content"`
			ToolCalls []openRouterToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{},
	}
}

func toOpenRouterMessages(messages []Message) []openRouterMsg {
	out := make([]openRouterMsg, 0, len(messages))
	for _, m := range messages {
		om := openRouterMsg{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var c openRouterToolCall
			c.ID = tc.ID
			c.Type = "function"
			c.Function.Name = tc.Name
			c.Function.Arguments = string(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, c)
		}
		out = append(out, om)
	}
	return out
}

// pendingCall accumulates argument fragments keyed by the stream index.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// StreamWithTools streams a chat completion via SSE. Tool arguments arrive as
// string fragments; a call becomes input-available once the stream finishes.
func (p *OpenRouterProvider) StreamWithTools(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		if p.Client == nil {
			errs <- errors.New("openrouter: http client is nil")
			return
		}
		if strings.TrimSpace(p.APIKey) == "" {
			errs <- errors.New("openrouter: api key is required")
			return
		}
		model := strings.TrimSpace(p.Model)
		if model == "" {
			errs <- errors.New("openrouter: model is required")
			return
		}

		b, err := json.Marshal(openRouterChatReq{
			Model:    model,
			Messages: toOpenRouterMessages(messages),
			Tools:    functionSpecs(tools),
			Stream:   true,
		})
		if err != nil {
			errs <- err
			return
		}

		url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
		if p.SiteURL != "" {
			req.Header.Set("HTTP-Referer", p.SiteURL)
		}
		if p.AppName != "" {
			req.Header.Set("X-Title", p.AppName)
		}

		resp, err := p.Client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				msg = fmt.Sprintf("status %d", resp.StatusCode)
			}
			errs <- fmt.Errorf("openrouter: %s", msg)
			return
		}

		calls := map[int]*pendingCall{}
		flush := func() bool {
			idx := make([]int, 0, len(calls))
			for i := range calls {
				idx = append(idx, i)
			}
			sort.Ints(idx)
			for _, i := range idx {
				c := calls[i]
				args := strings.TrimSpace(c.args.String())
				if args == "" {
					args = "{}"
				}
				if !send(ctx, events, StreamEvent{Type: EventToolInputAvailable, ToolCallID: c.id, ToolName: c.name, Input: json.RawMessage(args)}) {
					return false
				}
			}
			calls = map[int]*pendingCall{}
			return true
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}
			var decoded openRouterStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			choice := decoded.Choices[0]
			if choice.Delta.Content != "" {
				if !send(ctx, events, StreamEvent{Type: EventTextDelta, Text: choice.Delta.Content}) {
					errs <- ctx.Err()
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				c, ok := calls[tc.Index]
				if !ok {
					c = &pendingCall{id: tc.ID, name: tc.Function.Name}
					if c.id == "" {
						c.id = "call_" + uuid.NewString()
					}
					calls[tc.Index] = c
					if !send(ctx, events, StreamEvent{Type: EventToolInputStart, ToolCallID: c.id, ToolName: c.name}) {
						errs <- ctx.Err()
						return
					}
				}
				if tc.Function.Arguments != "" {
					c.args.WriteString(tc.Function.Arguments)
					if !send(ctx, events, StreamEvent{Type: EventToolInputDelta, ToolCallID: c.id, ToolName: c.name, InputDelta: tc.Function.Arguments}) {
						errs <- ctx.Err()
						return
					}
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				if !flush() {
					errs <- ctx.Err()
					return
				}
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
		if !flush() {
			errs <- ctx.Err()
		}
	}()

	return events, errs
}
