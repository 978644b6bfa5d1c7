package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/lokutor-ai/voice-echo/pkg/providers/clienterr"
)

const inworldURL = "https://api.inworld.ai/tts/v1/voice"

// InworldTTS synthesizes via Inworld's REST voice endpoint, requesting
// native 8kHz mu-law output so no resampling is needed on the happy
// path. Long text is split on sentence boundaries per MaxChars and
// the resulting mu-law chunks are concatenated in order.
type InworldTTS struct {
	apiKey  string
	voiceID string
	model   string
}

func NewInworldTTS(apiKey, voiceID, model string) *InworldTTS {
	if voiceID == "" {
		voiceID = "Olivia"
	}
	if model == "" {
		model = "inworld-tts-1.5-max"
	}
	return &InworldTTS{apiKey: apiKey, voiceID: voiceID, model: model}
}

func (t *InworldTTS) Name() string { return "inworld-tts" }

func (t *InworldTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var out []byte
	for _, chunk := range SplitText(text, MaxChars) {
		audio, err := t.synthesizeChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, audio...)
	}
	return out, nil
}

func (t *InworldTTS) synthesizeChunk(ctx context.Context, text string) ([]byte, error) {
	payload := map[string]any{
		"text":    text,
		"voiceId": t.voiceID,
		"modelId": t.model,
		"audioConfig": map[string]any{
			"audioEncoding":   "MULAW",
			"sampleRateHertz": 8000,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, clienterr.Request(t.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inworldURL, bytes.NewReader(body))
	if err != nil {
		return nil, clienterr.Request(t.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Inworld authenticates the TTS API with the API key as the basic-auth
	// password; the username field is ignored by the provider.
	req.SetBasicAuth("", t.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, clienterr.Request(t.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody any
		json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, clienterr.API(t.Name(), resp.StatusCode, errBody)
	}

	var result struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, clienterr.Parse(t.Name(), err)
	}

	decoded, err := base64.StdEncoding.DecodeString(result.AudioContent)
	if err != nil {
		return nil, clienterr.Parse(t.Name(), err)
	}
	return decoded, nil
}
