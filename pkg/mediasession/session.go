// Package mediasession implements the per-call orchestrator: it owns
// a VAD, a playback channel, and the speaking flag that arbitrates
// barge-in suppression, and drives the STT -> generator -> TTS
// pipeline for each utterance the VAD emits.
package mediasession

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/voice-echo/pkg/audio"
	"github.com/lokutor-ai/voice-echo/pkg/generator"
	"github.com/lokutor-ai/voice-echo/pkg/greeting"
	"github.com/lokutor-ai/voice-echo/pkg/hallucination"
	"github.com/lokutor-ai/voice-echo/pkg/logging"
	"github.com/lokutor-ai/voice-echo/pkg/providers/stt"
	"github.com/lokutor-ai/voice-echo/pkg/providers/tts"
	"github.com/lokutor-ai/voice-echo/pkg/registry"
	"github.com/lokutor-ai/voice-echo/pkg/session"
	"github.com/lokutor-ai/voice-echo/pkg/vad"
)

// playbackCapacity is the size of the outbound message channel a
// Session exposes to its transport loop.
const playbackCapacity = 64

// holdMusicChunkSize is 20ms of 8kHz mu-law.
const holdMusicChunkSize = 160

// fallbackMessage is spoken when a pipeline stage genuinely fails
// (STT/generator/TTS error), as opposed to producing no response
// (empty transcript, filtered hallucination), which stays silent.
const fallbackMessage = "Sorry, I couldn't process that. Please try again."

// pipelineOutcome distinguishes a ghost utterance (nothing to say,
// no error) from a genuine failure (something to apologize for) from
// a normal response, so runPipeline knows whether to stay silent or
// speak the fallback message.
type pipelineOutcome int

const (
	outcomeGhost pipelineOutcome = iota
	outcomeError
	outcomeResponse
)

// Deps are the shared collaborators every Session in the process uses.
// One Deps is built at startup and handed to every new Session.
type Deps struct {
	STT       stt.Provider
	TTS       tts.Provider
	Generator generator.Generator
	Sessions  *session.Store
	Registry  *registry.Registry
	Logger    logging.Logger

	// GeneratorName substitutes into the greeting template's {name}.
	GeneratorName string
	// FixedGreeting, if non-empty, is spoken verbatim instead of a
	// time-of-day-selected one.
	FixedGreeting string
	// HoldMusic is pre-decoded mu-law audio looped while a pipeline
	// task is in flight. Nil disables hold music.
	HoldMusic []byte

	// NotifyCallEnded is called (best-effort) on Stream-Stop / Leave
	// when the generator backend is a bridge multiplexer. Nil for the
	// subprocess backend.
	NotifyCallEnded func(ctx context.Context, callID string) error

	// PopOneShotContext returns and clears any one-shot context stored
	// for an outbound call (set by /api/call), or "" if none exists.
	// Nil disables the lookup.
	PopOneShotContext func(callID string) string
}

// Channel identifies which trust-preamble wording and call-id scheme
// a Session uses.
type Channel string

const (
	ChannelPhone        Channel = "phone"
	ChannelDiscordVoice Channel = "discord-voice"
)

// Session is one live connection's state machine. Not safe to share
// across connections; the transport loop that owns it is the only
// goroutine that calls its Handle* methods, though pipeline tasks run
// concurrently and communicate back only through playback and speaking.
type Session struct {
	deps      Deps
	channel   Channel
	transport registry.Transport

	vad      *vad.Detector
	playback chan []byte
	speaking atomic.Bool

	callID         string
	streamID       string
	oneShotContext string

	holdMusicCancel context.CancelFunc

	logger logging.Logger
}

// New builds a Session. vadCfg configures its private VAD instance.
func New(deps Deps, channel Channel, transport registry.Transport, vadCfg vad.Config) *Session {
	return &Session{
		deps:      deps,
		channel:   channel,
		transport: transport,
		vad:       vad.New(vadCfg),
		playback:  make(chan []byte, playbackCapacity),
		logger:    deps.Logger,
	}
}

// Playback is the channel the owning transport loop must drain and
// forward to the wire, interleaved with inbound reads.
func (s *Session) Playback() <-chan []byte { return s.playback }

// CallID reports the call identifier recorded at Stream-Start/Join.
func (s *Session) CallID() string { return s.callID }

// SetOneShotContext sets a one-time prefix consumed on the first
// utterance — used for outbound calls that want to explain to the
// generator why the call was placed.
func (s *Session) SetOneShotContext(ctx string) { s.oneShotContext = ctx }

// HandleStart records identifiers, registers with the call registry,
// and speaks the greeting.
func (s *Session) HandleStart(ctx context.Context, callID, streamID string) {
	s.callID = callID
	s.streamID = streamID
	s.deps.Registry.Register(callID, streamID, s.transport, s.playback, &s.speaking)
	if s.deps.PopOneShotContext != nil {
		s.oneShotContext = s.deps.PopOneShotContext(callID)
	}
	if s.logger != nil {
		s.logger.Info("stream started", "call_id", callID, "stream_id", streamID)
	}
	go s.sendGreeting(ctx)
}

func (s *Session) sendGreeting(ctx context.Context) {
	text := s.deps.FixedGreeting
	if text == "" {
		text = greeting.Select(time.Now().Hour(), s.deps.GeneratorName)
	}
	mulaw, err := s.deps.TTS.Synthesize(ctx, text)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to synthesize greeting", "call_id", s.callID, "error", err)
		}
		return
	}
	s.speaking.Store(true)
	if err := s.sendAudio(mulaw); err != nil && s.logger != nil {
		s.logger.Error("failed to send greeting", "call_id", s.callID, "error", err)
	}
}

func (s *Session) sendAudio(mulaw []byte) error {
	entry, ok := s.deps.Registry.Get(s.callID)
	if !ok {
		return nil
	}
	return registry.SendAudio(entry, mulaw)
}

// HandleMedia decodes an inbound mu-law frame, applying barge-in
// suppression, and feeds it to the VAD. It spawns a pipeline task
// when the VAD emits a complete utterance.
func (s *Session) HandleMedia(ctx context.Context, mulaw []byte) {
	if s.speaking.Load() {
		return
	}
	if utterance, ok := s.vad.Feed(mulaw, time.Now()); ok {
		go s.runPipeline(ctx, utterance)
	}
}

// HandleMark clears the speaking flag and resets the VAD: the
// transport has confirmed playback finished.
func (s *Session) HandleMark() {
	s.speaking.Store(false)
	s.vad.Reset()
}

// HandleStop deregisters the call and ends its generator session.
func (s *Session) HandleStop(ctx context.Context) {
	s.deps.Registry.Deregister(s.callID)
	s.deps.Sessions.Remove(s.callID)
	if s.deps.NotifyCallEnded != nil {
		if err := s.deps.NotifyCallEnded(ctx, s.callID); err != nil && s.logger != nil {
			s.logger.Warn("call-ended notification failed", "call_id", s.callID, "error", err)
		}
	}
	if s.logger != nil {
		s.logger.Info("stream stopped", "call_id", s.callID)
	}
}

// runPipeline executes STT -> generator -> TTS for one utterance.
func (s *Session) runPipeline(ctx context.Context, pcm []int16) {
	s.speaking.Store(true)

	playedHoldMusic := false
	var holdCtx context.Context
	if s.deps.HoldMusic != nil {
		playedHoldMusic = true
		holdCtx, s.holdMusicCancel = context.WithCancel(ctx)
		go s.playHoldMusic(holdCtx)
	}

	mulaw, outcome := s.pipeline(ctx, pcm)

	if s.holdMusicCancel != nil {
		s.holdMusicCancel()
		s.holdMusicCancel = nil
	}

	switch outcome {
	case outcomeGhost:
		// No Mark event is coming for a ghost utterance; resume VAD now.
		s.speaking.Store(false)
		return
	case outcomeError:
		fallback, err := s.deps.TTS.Synthesize(ctx, fallbackMessage)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("failed to synthesize fallback message", "call_id", s.callID, "error", err)
			}
			s.speaking.Store(false)
			return
		}
		mulaw = fallback
	}

	entry, ok := s.deps.Registry.Get(s.callID)
	if !ok {
		s.speaking.Store(false)
		return
	}

	if playedHoldMusic {
		if err := registry.SendClear(entry); err != nil && s.logger != nil {
			s.logger.Warn("failed to send clear event", "call_id", s.callID, "error", err)
		}
	}

	// speaking stays true here — the next Mark event resets it once
	// the transport confirms playback finished.
	if err := registry.SendAudio(entry, mulaw); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send pipeline response", "call_id", s.callID, "error", err)
		}
		s.speaking.Store(false)
	}
}

// pipeline runs STT -> hallucination filter -> generator -> TTS and
// returns the synthesized audio plus the outcome: a ghost utterance
// produces no audio and no error; a genuine stage failure produces no
// audio but asks runPipeline to speak the fallback message instead.
func (s *Session) pipeline(ctx context.Context, pcm []int16) ([]byte, pipelineOutcome) {
	wav := audio.PCMToWav(pcm, audio.SampleRate)

	transcript, err := s.deps.STT.Transcribe(ctx, wav, "en")
	if err != nil {
		if s.logger != nil {
			s.logger.Error("stt failed", "call_id", s.callID, "error", err)
		}
		return nil, outcomeError
	}

	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return nil, outcomeGhost
	}
	if hallucination.IsHallucination(trimmed) {
		if s.logger != nil {
			s.logger.Debug("filtered whisper hallucination", "call_id", s.callID, "transcript", trimmed)
		}
		return nil, outcomeGhost
	}
	if s.logger != nil {
		s.logger.Info("transcribed", "call_id", s.callID, "transcript", trimmed)
	}

	oneShot := s.oneShotContext
	s.oneShotContext = ""

	conversationID := s.deps.Sessions.ConversationID(s.callID)
	prompt := buildPrompt(string(s.channel), oneShot, trimmed)

	response, newConversationID, err := s.deps.Generator.Send(ctx, s.callID, prompt, conversationID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("generator failed", "call_id", s.callID, "error", err)
		}
		return nil, outcomeError
	}
	if newConversationID != "" {
		s.deps.Sessions.SetConversationID(s.callID, newConversationID)
	}

	mulaw, err := s.deps.TTS.Synthesize(ctx, response)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("tts failed", "call_id", s.callID, "error", err)
		}
		return nil, outcomeError
	}
	return mulaw, outcomeResponse
}

// playHoldMusic loops pre-decoded mu-law audio in 20ms ticks until ctx
// is cancelled, skipping missed ticks rather than bursting catch-up.
func (s *Session) playHoldMusic(ctx context.Context) {
	chunks := chunkBytes(s.deps.HoldMusic, holdMusicChunkSize)
	if len(chunks) == 0 {
		return
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entry, ok := s.deps.Registry.Get(s.callID)
			if !ok {
				return
			}
			if err := registry.SendAudio(entry, chunks[idx%len(chunks)]); err != nil {
				return
			}
			idx++
		}
	}
}

func chunkBytes(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var chunks [][]byte
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}
