package mediasession

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lokutor-ai/voice-echo/pkg/audio"
	"github.com/lokutor-ai/voice-echo/pkg/registry"
	"github.com/lokutor-ai/voice-echo/pkg/session"
	"github.com/lokutor-ai/voice-echo/pkg/vad"
)

type fakeSTT struct {
	transcript string
	err        error
	calls      int
}

func (f *fakeSTT) Transcribe(ctx context.Context, wav []byte, lang string) (string, error) {
	f.calls++
	return f.transcript, f.err
}
func (f *fakeSTT) Name() string { return "fake-stt" }

type fakeTTS struct {
	out      []byte
	calls    int
	lastText string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.calls++
	f.lastText = text
	return f.out, nil
}
func (f *fakeTTS) Name() string { return "fake-tts" }

type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) Send(ctx context.Context, callID, prompt, conversationID string) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return f.reply, "conv-1", nil
}
func (f *fakeGenerator) Name() string { return "fake-generator" }

func testVADConfig() vad.Config {
	return vad.Config{
		EnergyThreshold:      50,
		SilenceThreshold:     20 * time.Millisecond,
		MaxUtteranceDuration: 10 * time.Second,
		Adaptive:             false,
	}
}

// toneMulaw generates n samples of a 1kHz sine wave at the given peak
// amplitude, encoded to mu-law. A sine (rather than a constant value)
// is required so the bandpass filter used by VAD sees real energy:
// a constant-amplitude buffer is pure DC and gets removed by the
// highpass stage.
func toneMulaw(n int, amplitude int16) []byte {
	const freqHz = 1000.0
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(float64(amplitude) * math.Sin(2*math.Pi*freqHz*float64(i)/float64(audio.SampleRate)))
	}
	return audio.EncodeMulaw(pcm)
}

func silenceMulaw(n int) []byte {
	return audio.EncodeMulaw(make([]int16, n))
}

func drainPlayback(t *testing.T, s *Session, timeout time.Duration) [][]byte {
	t.Helper()
	var msgs [][]byte
	deadline := time.After(timeout)
	for {
		select {
		case m := <-s.Playback():
			msgs = append(msgs, m)
		case <-deadline:
			return msgs
		}
	}
}

func TestHappyPathProducesOneUtteranceAndMark(t *testing.T) {
	stt := &fakeSTT{transcript: "what time is it"}
	tts := &fakeTTS{out: []byte{1, 2, 3}}
	gen := &fakeGenerator{reply: "it's five o'clock"}

	deps := Deps{
		STT:       stt,
		TTS:       tts,
		Generator: gen,
		Sessions:  session.New(session.DefaultTTL),
		Registry:  registry.New(),
		Logger:    nil,
	}
	s := New(deps, ChannelPhone, registry.Telephony, testVADConfig())
	s.HandleStart(context.Background(), "call-1", "stream-1")

	// Drain the greeting first; count only the response's synthesis.
	drainPlayback(t, s, 50*time.Millisecond)
	s.HandleMark()
	tts.calls = 0

	// 2s of loud tone, then enough silence to trigger the gap.
	for i := 0; i < 100; i++ {
		s.HandleMedia(context.Background(), toneMulaw(160, 10000))
	}
	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 20; i++ {
		s.HandleMedia(context.Background(), silenceMulaw(160))
	}
	// The first silent frame carries the bandpass ring-down and counts as
	// speech; one more frame after the gap emits the utterance.
	time.Sleep(30 * time.Millisecond)
	s.HandleMedia(context.Background(), silenceMulaw(160))

	msgs := drainPlayback(t, s, 300*time.Millisecond)
	if stt.calls != 1 {
		t.Errorf("expected exactly one STT call, got %d", stt.calls)
	}
	if gen.calls != 1 {
		t.Errorf("expected exactly one generator call, got %d", gen.calls)
	}
	if tts.calls != 1 {
		t.Errorf("expected exactly one TTS call, got %d", tts.calls)
	}
	if len(msgs) == 0 {
		t.Fatal("expected outbound playback messages")
	}
	var last map[string]any
	if err := json.Unmarshal(msgs[len(msgs)-1], &last); err != nil {
		t.Fatalf("failed to unmarshal last message: %v", err)
	}
	if last["event"] != "mark" {
		t.Errorf("expected last message to be a mark event, got %v", last)
	}

	s.HandleMark()
	if s.speaking.Load() {
		t.Error("expected speaking to be cleared after mark")
	}
}

func TestHallucinationDropsNoGeneratorCall(t *testing.T) {
	stt := &fakeSTT{transcript: "thank you."}
	tts := &fakeTTS{out: []byte{1}}
	gen := &fakeGenerator{reply: "should not be called"}

	deps := Deps{
		STT:       stt,
		TTS:       tts,
		Generator: gen,
		Sessions:  session.New(session.DefaultTTL),
		Registry:  registry.New(),
	}
	s := New(deps, ChannelPhone, registry.Telephony, testVADConfig())
	s.HandleStart(context.Background(), "call-1", "stream-1")
	drainPlayback(t, s, 50*time.Millisecond)
	s.HandleMark()

	for i := 0; i < 100; i++ {
		s.HandleMedia(context.Background(), toneMulaw(160, 10000))
	}
	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 20; i++ {
		s.HandleMedia(context.Background(), silenceMulaw(160))
	}
	time.Sleep(30 * time.Millisecond)
	s.HandleMedia(context.Background(), silenceMulaw(160))

	msgs := drainPlayback(t, s, 300*time.Millisecond)
	if stt.calls != 1 {
		t.Errorf("expected the utterance to reach STT once, got %d calls", stt.calls)
	}
	if gen.calls != 0 {
		t.Errorf("expected no generator call on hallucination, got %d", gen.calls)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no outbound audio on hallucination, got %d messages", len(msgs))
	}
	if s.speaking.Load() {
		t.Error("expected speaking reset to false after ghost utterance")
	}
}

func TestBargeInSuppressionDropsFramesWhileSpeaking(t *testing.T) {
	stt := &fakeSTT{transcript: "hello"}
	deps := Deps{
		STT:       stt,
		TTS:       &fakeTTS{out: []byte{1}},
		Generator: &fakeGenerator{reply: "hi"},
		Sessions:  session.New(session.DefaultTTL),
		Registry:  registry.New(),
	}
	s := New(deps, ChannelPhone, registry.Telephony, testVADConfig())
	s.HandleStart(context.Background(), "call-1", "stream-1")
	s.speaking.Store(true)

	for i := 0; i < 100; i++ {
		s.HandleMedia(context.Background(), toneMulaw(160, 10000))
	}

	if stt.calls != 0 {
		t.Errorf("expected inbound frames to be dropped while speaking, got %d STT calls", stt.calls)
	}
}

func TestHoldMusicClearPrecedesResponse(t *testing.T) {
	holdMusic := toneMulaw(1600, 500)
	stt := &fakeSTT{transcript: "hello there"}
	tts := &fakeTTS{out: []byte{9, 9, 9}}
	gen := &fakeGenerator{reply: "hi back"}

	deps := Deps{
		STT:       stt,
		TTS:       tts,
		Generator: gen,
		Sessions:  session.New(session.DefaultTTL),
		Registry:  registry.New(),
		HoldMusic: holdMusic,
	}
	s := New(deps, ChannelPhone, registry.Telephony, testVADConfig())
	s.HandleStart(context.Background(), "call-1", "stream-1")
	drainPlayback(t, s, 50*time.Millisecond)
	s.HandleMark()

	for i := 0; i < 100; i++ {
		s.HandleMedia(context.Background(), toneMulaw(160, 10000))
	}
	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 20; i++ {
		s.HandleMedia(context.Background(), silenceMulaw(160))
	}
	time.Sleep(30 * time.Millisecond)
	s.HandleMedia(context.Background(), silenceMulaw(160))

	msgs := drainPlayback(t, s, 400*time.Millisecond)
	sawClear := false
	sawMediaAfterClear := false
	for _, m := range msgs {
		var parsed map[string]any
		json.Unmarshal(m, &parsed)
		if parsed["event"] == "clear" {
			sawClear = true
		}
		if sawClear && parsed["event"] == "media" {
			sawMediaAfterClear = true
		}
	}
	if !sawClear {
		t.Error("expected a clear event before the response when hold music played")
	}
	if !sawMediaAfterClear {
		t.Error("expected media frames to follow the clear event")
	}
}

// TestGeneratorErrorSendsFallbackMessage distinguishes a genuine
// pipeline error from the silent ghost-utterance paths (empty
// transcript, filtered hallucination): on a real STT/generator/TTS
// failure the session must still speak a fallback apology, not just
// go quiet.
func TestGeneratorErrorSendsFallbackMessage(t *testing.T) {
	stt := &fakeSTT{transcript: "what time is it"}
	tts := &fakeTTS{out: []byte{7, 7, 7}}
	gen := &fakeGenerator{err: errors.New("boom")}

	deps := Deps{
		STT:       stt,
		TTS:       tts,
		Generator: gen,
		Sessions:  session.New(session.DefaultTTL),
		Registry:  registry.New(),
	}
	s := New(deps, ChannelPhone, registry.Telephony, testVADConfig())
	s.HandleStart(context.Background(), "call-1", "stream-1")
	drainPlayback(t, s, 50*time.Millisecond)
	s.HandleMark()

	for i := 0; i < 100; i++ {
		s.HandleMedia(context.Background(), toneMulaw(160, 10000))
	}
	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 20; i++ {
		s.HandleMedia(context.Background(), silenceMulaw(160))
	}
	time.Sleep(30 * time.Millisecond)
	s.HandleMedia(context.Background(), silenceMulaw(160))

	msgs := drainPlayback(t, s, 300*time.Millisecond)
	if gen.calls != 1 {
		t.Errorf("expected exactly one generator call, got %d", gen.calls)
	}
	if tts.lastText != fallbackMessage {
		t.Errorf("expected fallback message synthesized, got %q", tts.lastText)
	}
	if len(msgs) == 0 {
		t.Fatal("expected the fallback message to be sent as playback, got none")
	}
	if !s.speaking.Load() {
		t.Error("expected speaking to stay true awaiting the fallback's mark event")
	}
}
