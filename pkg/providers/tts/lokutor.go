package tts

import (
	"context"
	"encoding/binary"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lokutor-ai/voice-echo/pkg/audio"
	"github.com/lokutor-ai/voice-echo/pkg/providers/clienterr"
)

// LokutorTTS streams synthesis over a persistent WebSocket connection
// and returns 16kHz PCM, which this shim decimates (by averaging
// adjacent sample pairs, not plain resampling) to 8kHz mu-law to
// satisfy the common Provider contract. Kept as the secondary
// streaming/decimation-path backend exercised by the TTS decimation
// invariant.
type LokutorTTS struct {
	apiKey string
	host   string
	scheme string
	voice  string
	lang   string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewLokutorTTS(apiKey, voice, lang string) *LokutorTTS {
	if voice == "" {
		voice = "F1"
	}
	if lang == "" {
		lang = "en"
	}
	return &LokutorTTS{apiKey: apiKey, host: "api.lokutor.com", scheme: "wss", voice: voice, lang: lang}
}

func (t *LokutorTTS) Name() string { return "lokutor-tts" }

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, clienterr.Request(t.Name(), err)
	}
	t.conn = conn
	return conn, nil
}

func (t *LokutorTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var pcm16k []int16
	err := t.streamSynthesize(ctx, text, func(chunk []int16) error {
		pcm16k = append(pcm16k, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	pcm8k := audio.DecimateAverage2x(pcm16k)
	return audio.EncodeMulaw(pcm8k), nil
}

func (t *LokutorTTS) streamSynthesize(ctx context.Context, text string, onChunk func([]int16) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]any{
		"text":    text,
		"voice":   t.voice,
		"lang":    t.lang,
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return clienterr.Request(t.Name(), err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return clienterr.Request(t.Name(), err)
		}

		switch messageType {
		case websocket.MessageBinary:
			samples := make([]int16, len(payload)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
			}
			if err := onChunk(samples); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return clienterr.API(t.Name(), 0, msg)
			}
		}
	}
}

func (t *LokutorTTS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
