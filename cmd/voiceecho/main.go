// Command voiceecho runs the voice bridge process: it loads
// configuration, wires the configured STT/TTS/generator backends, and
// serves the control-plane HTTP/WebSocket surface.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lokutor-ai/voice-echo/pkg/audio"
	"github.com/lokutor-ai/voice-echo/pkg/config"
	"github.com/lokutor-ai/voice-echo/pkg/controlplane"
	"github.com/lokutor-ai/voice-echo/pkg/generator"
	"github.com/lokutor-ai/voice-echo/pkg/logging"
	"github.com/lokutor-ai/voice-echo/pkg/mediasession"
	"github.com/lokutor-ai/voice-echo/pkg/providers/stt"
	"github.com/lokutor-ai/voice-echo/pkg/providers/telephony"
	"github.com/lokutor-ai/voice-echo/pkg/providers/tts"
	"github.com/lokutor-ai/voice-echo/pkg/registry"
	"github.com/lokutor-ai/voice-echo/pkg/session"
	"github.com/lokutor-ai/voice-echo/pkg/vad"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("voiceecho: %v", err)
	}

	logger := logging.New()

	sttProvider, err := buildSTT(cfg.STT)
	if err != nil {
		log.Fatalf("voiceecho: %v", err)
	}
	ttsProvider, err := buildTTS(cfg.TTS)
	if err != nil {
		log.Fatalf("voiceecho: %v", err)
	}
	gen, notifyCallEnded, err := buildGenerator(cfg.Generator)
	if err != nil {
		log.Fatalf("voiceecho: %v", err)
	}

	var holdMusic []byte
	if cfg.HoldMusic != nil && cfg.HoldMusic.File != "" {
		holdMusic, err = audio.LoadWavAsMulaw(cfg.HoldMusic.File, cfg.HoldMusic.Volume)
		if err != nil {
			logger.Warn("failed to load hold music, continuing without it", "error", err)
			holdMusic = nil
		}
	}

	deps := mediasession.Deps{
		STT:             sttProvider,
		TTS:             ttsProvider,
		Generator:       gen,
		Sessions:        session.New(time.Duration(cfg.Generator.SessionTimeoutSecs) * time.Second),
		Registry:        registry.New(),
		Logger:          logger,
		GeneratorName:   cfg.Generator.Name,
		FixedGreeting:   cfg.Generator.Greeting,
		HoldMusic:       holdMusic,
		NotifyCallEnded: notifyCallEnded,
	}

	vadCfg := vad.Config{
		EnergyThreshold:      cfg.VAD.EnergyThreshold,
		SilenceThreshold:     time.Duration(cfg.VAD.SilenceThresholdMs) * time.Millisecond,
		Adaptive:             cfg.VAD.AdaptiveThreshold,
		NoiseFloorMultiplier: cfg.VAD.NoiseFloorMultiplier,
		NoiseFloorDecay:      cfg.VAD.NoiseFloorDecay,
	}
	if cfg.VAD.MaxUtteranceSecs > 0 {
		vadCfg.MaxUtteranceDuration = time.Duration(cfg.VAD.MaxUtteranceSecs) * time.Second
	}

	twilio := telephony.NewTwilioClient(cfg.Telephony.AccountSID, cfg.Telephony.AuthToken, cfg.Telephony.PhoneNumber, cfg.Server.ExternalURL)

	server := controlplane.New(cfg, twilio, deps, vadCfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("voiceecho: listening", "addr", addr, "stt", sttProvider.Name(), "tts", ttsProvider.Name(), "generator", gen.Name())
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("voiceecho: server exited: %v", err)
	}
}

func buildSTT(cfg config.STTConfig) (stt.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return stt.NewOpenAISTT(cfg.APIKey, cfg.Model), nil
	case "deepgram":
		return stt.NewDeepgramSTT(cfg.APIKey), nil
	case "assemblyai":
		return stt.NewAssemblyAISTT(cfg.APIKey), nil
	case "groq", "":
		return stt.NewGroqSTT(cfg.APIKey, cfg.Model), nil
	default:
		return nil, unknownProviderError{kind: "stt", name: cfg.Provider}
	}
}

func buildTTS(cfg config.TTSConfig) (tts.Provider, error) {
	switch cfg.Provider {
	case "lokutor":
		return tts.NewLokutorTTS(cfg.APIKey, cfg.VoiceID, ""), nil
	case "inworld", "":
		return tts.NewInworldTTS(cfg.APIKey, cfg.VoiceID, cfg.Model), nil
	default:
		return nil, unknownProviderError{kind: "tts", name: cfg.Provider}
	}
}

// buildGenerator returns the configured generator backend plus a
// best-effort call-ended notifier. Only the bridge backend owns
// remote session state worth tearing down; the subprocess backend's
// notifier is nil.
func buildGenerator(cfg config.GeneratorConfig) (generator.Generator, func(ctx context.Context, callID string) error, error) {
	switch cfg.Backend {
	case "bridge":
		bridge := generator.NewBridgeGenerator(cfg.BridgeURL, cfg.Name)
		return bridge, bridge.CallEnded, nil
	case "subprocess", "":
		return generator.NewSubprocessGenerator(cfg.AgentBinary, cfg.DangerouslySkipPermissions, ""), nil, nil
	default:
		return nil, nil, unknownProviderError{kind: "generator", name: cfg.Backend}
	}
}

type unknownProviderError struct {
	kind, name string
}

func (e unknownProviderError) Error() string {
	return "unknown " + e.kind + " provider: " + e.name
}
