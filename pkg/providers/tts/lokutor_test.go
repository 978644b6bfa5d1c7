package tts

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lokutor-ai/voice-echo/pkg/audio"
)

func TestLokutorTTSDecimatesTo8kHzMulaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		var req map[string]any
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}

		// 4 samples of 16kHz PCM, alternating so plain every-other-sample
		// decimation (wrong) and pairwise averaging (right) disagree.
		values := []int16{1000, 2000, 1000, 2000}
		chunk := make([]byte, 8)
		for i, v := range values {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(v))
		}
		conn.Write(r.Context(), websocket.MessageBinary, chunk)
		conn.Write(r.Context(), websocket.MessageText, []byte("EOS"))
	}))
	defer server.Close()

	tts := &LokutorTTS{
		apiKey: "test-key",
		host:   strings.TrimPrefix(server.URL, "http://"),
		scheme: "ws",
		voice:  "F1",
		lang:   "en",
	}

	out, err := tts.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 4 samples at 16kHz decimate to 2 samples at 8kHz, one mu-law byte each.
	if len(out) != 2 {
		t.Fatalf("expected 2 bytes after decimation, got %d", len(out))
	}
	// Averaging [1000,2000] and [1000,2000] must yield ~1500, ~1500 —
	// not ~1000, ~1000, which is what picking every other sample (the
	// degenerate case of plain linear resampling at an exact 2:1 ratio)
	// would produce instead.
	for i, b := range out {
		got := audio.MulawToPCM(b)
		if got < 1400 || got > 1600 {
			t.Errorf("sample %d: expected ~1500 from pairwise averaging, got %d", i, got)
		}
	}
	if tts.Name() != "lokutor-tts" {
		t.Errorf("expected lokutor-tts, got %s", tts.Name())
	}

	tts.Close()
}
