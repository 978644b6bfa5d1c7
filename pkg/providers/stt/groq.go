package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/voice-echo/pkg/providers/clienterr"
)

// GroqSTT transcribes via Groq's OpenAI-compatible Whisper endpoint.
type GroqSTT struct {
	apiKey string
	url    string
	model  string
}

func NewGroqSTT(apiKey, model string) *GroqSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqSTT{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
	}
}

func (s *GroqSTT) Transcribe(ctx context.Context, wav []byte, lang string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", clienterr.Request(s.Name(), err)
	}
	if lang != "" {
		if err := writer.WriteField("language", lang); err != nil {
			return "", clienterr.Request(s.Name(), err)
		}
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", clienterr.Request(s.Name(), err)
	}
	if _, err := io.Copy(part, bytes.NewReader(wav)); err != nil {
		return "", clienterr.Request(s.Name(), err)
	}
	if err := writer.Close(); err != nil {
		return "", clienterr.Request(s.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return "", clienterr.Request(s.Name(), err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", clienterr.Request(s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody any
		json.NewDecoder(resp.Body).Decode(&errBody)
		return "", clienterr.API(s.Name(), resp.StatusCode, errBody)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", clienterr.Parse(s.Name(), err)
	}
	return result.Text, nil
}

func (s *GroqSTT) Name() string { return "groq-stt" }
