package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collect(t *testing.T, events <-chan StreamEvent, errs <-chan error) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return out
}

func TestOllama_StreamWithTools(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Let me look."},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"searchProducts","arguments":{"category":"Engagement Rings","maxPrice":10000}}}]},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3.1")
	tools := []ToolSpec{{Name: "searchProducts", Description: "d", Parameters: json.RawMessage(`{"type":"object"}`)}}
	evCh, errCh := p.StreamWithTools(context.Background(), []Message{{Role: RoleUser, Content: "rings"}}, tools)
	events := collect(t, evCh, errCh)

	if !got.Stream || len(got.Tools) != 1 || got.Tools[0].Type != "function" || got.Tools[0].Function.Name != "searchProducts" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventTextDelta || events[0].Text != "Let me look." {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Type != EventToolInputStart || events[2].Type != EventToolInputAvailable {
		t.Fatalf("unexpected tool events: %+v", events[1:])
	}
	if events[1].ToolCallID == "" || events[1].ToolCallID != events[2].ToolCallID {
		t.Fatalf("tool call id must be assigned and stable: %+v", events[1:])
	}
	var args map[string]any
	if err := json.Unmarshal(events[2].Input, &args); err != nil || args["category"] != "Engagement Rings" {
		t.Fatalf("unexpected args %s err=%v", events[2].Input, err)
	}
}

func TestOllama_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	events, errs := NewOllamaProvider(srv.URL, "m").StreamWithTools(context.Background(), nil, nil)
	for range events {
	}
	if err := <-errs; err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestOpenRouter_AccumulatesToolArguments(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`{"choices":[{"delta":{"content":"Sure"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"viewProduct","arguments":""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"searchKnowledge","arguments":"{\"query\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"productId\":\"p1\"}"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":"\"halo\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "key", "model", "", "")
	evCh, errCh := p.StreamWithTools(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	events := collect(t, evCh, errCh)
	if auth != "Bearer key" {
		t.Fatalf("missing auth header: %q", auth)
	}

	var available []StreamEvent
	for _, ev := range events {
		if ev.Type == EventToolInputAvailable {
			available = append(available, ev)
		}
	}
	if events[0].Type != EventTextDelta || events[0].Text != "Sure" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if len(available) != 2 {
		t.Fatalf("expected 2 available calls, got %+v", available)
	}
	if available[0].ToolCallID != "call_a" || string(available[0].Input) != `{"productId":"p1"}` {
		t.Fatalf("unexpected first call %+v", available[0])
	}
	if available[1].ToolCallID != "call_b" || string(available[1].Input) != `{"query":"halo"}` {
		t.Fatalf("unexpected second call %+v", available[1])
	}
}

func TestOpenRouter_RequiresAPIKey(t *testing.T) {
	events, errs := NewOpenRouterProvider("http://unused", "", "m", "", "").StreamWithTools(context.Background(), nil, nil)
	for range events {
	}
	if err := <-errs; err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestToOpenRouterMessages_CarriesToolTurns(t *testing.T) {
	msgs := toOpenRouterMessages([]Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "viewProduct", Arguments: json.RawMessage(`{"productId":"p1"}`)}}},
		{Role: RoleTool, ToolCallID: "c1", ToolName: "viewProduct", Content: `{"id":"p1"}`},
	})
	if msgs[0].ToolCalls[0].Function.Arguments != `{"productId":"p1"}` || msgs[0].ToolCalls[0].Type != "function" {
		t.Fatalf("unexpected assistant message %+v", msgs[0])
	}
	if msgs[1].ToolCallID != "c1" {
		t.Fatalf("unexpected tool message %+v", msgs[1])
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := DefaultRegistry("http://localhost:11434", OpenRouterSettings{Model: "openrouter/auto"})
	if _, err := reg.Get(context.Background(), "nope", ""); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	tc, err := reg.Get(context.Background(), " Ollama ", "")
	if err != nil {
		t.Fatalf("get ollama: %v", err)
	}
	if _, ok := tc.(*OllamaProvider); !ok {
		t.Fatalf("unexpected provider %T", tc)
	}
	tc, err = reg.Get(context.Background(), "openrouter", "")
	if err != nil {
		t.Fatalf("get openrouter: %v", err)
	}
	if tc.(*OpenRouterProvider).Model != "openrouter/auto" {
		t.Fatalf("expected default model")
	}
}

func TestToolkitImageClient(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{name: "ok", status: 200, body: `{"image":{"mimeType":"image/png","base64Data":"aGVsbG8="}}`},
		{name: "non-2xx", status: 500, body: `boom`, wantErr: true},
		{name: "malformed", status: 200, body: `{"image":`, wantErr: true},
		{name: "missing image", status: 200, body: `{}`, wantErr: true},
		{name: "missing fields", status: 200, body: `{"image":{"mimeType":"image/png"}}`, wantErr: true},
		{name: "bad base64", status: 200, body: `{"image":{"mimeType":"image/png","base64Data":"%%%"}}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got ImageRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				b, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(b, &got)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			img, err := NewToolkitImageClient(srv.URL).GenerateImage(context.Background(), ImageRequest{Prompt: "ring", Size: "1024x1024"})
			if got.Prompt != "ring" || got.Size != "1024x1024" {
				t.Fatalf("unexpected request %+v", got)
			}
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if !errors.Is(err, ErrImageService) {
					t.Fatalf("expected ErrImageService, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if img.DataURI() != "data:image/png;base64,aGVsbG8=" {
				t.Fatalf("unexpected data uri %q", img.DataURI())
			}
		})
	}
}

func TestNewImageGenerator_SelectsBackend(t *testing.T) {
	gen, err := NewImageGenerator(context.Background(), "", "http://toolkit.local/images", "", "")
	if err != nil {
		t.Fatalf("toolkit: %v", err)
	}
	if _, ok := gen.(*ToolkitImageClient); !ok {
		t.Fatalf("got %T, want *ToolkitImageClient", gen)
	}
	if _, err := NewImageGenerator(context.Background(), "dall-e", "", "", ""); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
