package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lokutor-ai/voice-echo/pkg/providers/clienterr"
	"github.com/lokutor-ai/voice-echo/pkg/providers/llm"
)

// errMissingResponse is returned when a bridge reply decodes cleanly
// but carries no "response" field.
var errMissingResponse = errors.New(`missing "response" field`)

// BridgeGenerator posts a transcript to an external chat multiplexer
// that owns all session state itself, or, when built with
// NewDelegatingGenerator, delegates directly to an llm.Provider and
// fakes a bridge-shaped round trip. NewBridgeGenerator never delegates,
// even when its bridge URL is empty. Either way no
// conversation id is returned: continuity, if any, lives entirely on
// the other side of this client.
type BridgeGenerator struct {
	url        string
	callerName string
	httpClient *http.Client

	llmProvider llm.Provider
	systemPrompt string
}

// NewBridgeGenerator builds a client that POSTs to bridgeURL/chat.
func NewBridgeGenerator(bridgeURL, callerName string) *BridgeGenerator {
	return &BridgeGenerator{
		url:        strings.TrimRight(bridgeURL, "/") + "/chat",
		callerName: callerName,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// NewDelegatingGenerator builds a BridgeGenerator with no standalone
// bridge process: it talks to an LLM chat-completion provider directly,
// presenting the same Generator contract to the rest of the system.
func NewDelegatingGenerator(provider llm.Provider, systemPrompt string) *BridgeGenerator {
	return &BridgeGenerator{llmProvider: provider, systemPrompt: systemPrompt}
}

func (g *BridgeGenerator) Name() string {
	if g.llmProvider != nil {
		return g.llmProvider.Name()
	}
	return "bridge-generator"
}

func (g *BridgeGenerator) Send(ctx context.Context, callID, prompt, _conversationID string) (string, string, error) {
	if g.llmProvider != nil {
		return g.sendViaLLM(ctx, prompt)
	}
	return g.sendViaBridge(ctx, callID, prompt)
}

func (g *BridgeGenerator) sendViaLLM(ctx context.Context, prompt string) (string, string, error) {
	var messages []llm.Message
	if g.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: g.systemPrompt})
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	text, err := g.llmProvider.Complete(ctx, messages)
	if err != nil {
		return "", "", err
	}
	return text, "", nil
}

func (g *BridgeGenerator) sendViaBridge(ctx context.Context, callID, prompt string) (string, string, error) {
	payload := map[string]any{
		"channel":  "voice",
		"sender":   g.callerName,
		"message":  prompt,
		"metadata": map[string]any{"call_sid": callID},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", clienterr.Request(g.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", "", clienterr.Request(g.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", "", clienterr.Request(g.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody any
		json.NewDecoder(resp.Body).Decode(&errBody)
		return "", "", clienterr.API(g.Name(), resp.StatusCode, errBody)
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", clienterr.Parse(g.Name(), err)
	}
	if parsed.Response == "" {
		return "", "", clienterr.Parse(g.Name(), errMissingResponse)
	}
	return parsed.Response, "", nil
}

// CallEnded notifies the bridge that the call has terminated, best
// effort; errors are for the caller to log, not to surface.
func (g *BridgeGenerator) CallEnded(ctx context.Context, callID string) error {
	if g.llmProvider != nil {
		return nil
	}
	base := strings.TrimSuffix(g.url, "/chat")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/call-ended",
		bytes.NewReader(mustJSON(map[string]any{"call_sid": callID})))
	if err != nil {
		return clienterr.Request(g.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return clienterr.Request(g.Name(), err)
	}
	defer resp.Body.Close()
	return nil
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
