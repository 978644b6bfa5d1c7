package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/voice-echo/pkg/providers/llm"
)

func TestBridgeGeneratorSendViaBridge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Channel  string         `json:"channel"`
			Sender   string         `json:"sender"`
			Message  string         `json:"message"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Channel != "voice" || req.Metadata["call_sid"] != "call-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "hello back"})
	}))
	defer server.Close()

	g := NewBridgeGenerator(server.URL, "caller")
	text, convID, err := g.Send(context.Background(), "call-1", "hi there", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello back" {
		t.Errorf("expected 'hello back', got %q", text)
	}
	if convID != "" {
		t.Errorf("expected empty conversation id for bridge backend, got %q", convID)
	}
}

func TestBridgeGeneratorMissingResponseField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	g := NewBridgeGenerator(server.URL, "caller")
	if _, _, err := g.Send(context.Background(), "call-1", "hi", ""); err == nil {
		t.Fatal("expected error for missing response field")
	}
}

type fakeLLM struct {
	lastMessages []llm.Message
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.lastMessages = messages
	return "reply from fake llm", nil
}
func (f *fakeLLM) Name() string { return "fake-llm" }

func TestBridgeGeneratorDelegatesToLLM(t *testing.T) {
	fake := &fakeLLM{}
	g := NewDelegatingGenerator(fake, "system prompt")

	// The caller (mediasession.buildPrompt) is responsible for embedding
	// any one-shot context into the prompt before Send is called; the
	// generator must forward it unmodified rather than prepending again.
	prompt := "[Call context: outbound reason]\n\nThe caller said: hi there"
	text, convID, err := g.Send(context.Background(), "call-1", prompt, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "reply from fake llm" {
		t.Errorf("expected delegated reply, got %q", text)
	}
	if convID != "" {
		t.Errorf("expected empty conversation id, got %q", convID)
	}
	if len(fake.lastMessages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(fake.lastMessages))
	}
	if fake.lastMessages[0].Role != "system" || fake.lastMessages[0].Content != "system prompt" {
		t.Errorf("unexpected system message: %+v", fake.lastMessages[0])
	}
	if fake.lastMessages[1].Content != prompt {
		t.Errorf("expected prompt forwarded unmodified, got %q", fake.lastMessages[1].Content)
	}
	if g.Name() != "fake-llm" {
		t.Errorf("expected delegated Name() to pass through, got %q", g.Name())
	}
}
