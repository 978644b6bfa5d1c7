// Package config loads the process configuration: a YAML file plus .env
// plus a fixed set of environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ExternalURL string `yaml:"external_url"`
}

type TelephonyConfig struct {
	AccountSID  string `yaml:"account_sid"`
	AuthToken   string `yaml:"auth_token"`
	PhoneNumber string `yaml:"phone_number"`
}

type STTConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type TTSConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	VoiceID  string `yaml:"voice_id"`
	Model    string `yaml:"model"`
}

type GeneratorConfig struct {
	Backend                     string `yaml:"backend"` // "subprocess" or "bridge"
	SessionTimeoutSecs          int    `yaml:"session_timeout_secs"`
	Greeting                    string `yaml:"greeting"`
	Name                        string `yaml:"name"`
	BridgeURL                   string `yaml:"bridge_url"`
	AgentBinary                 string `yaml:"agent_binary"`
	DangerouslySkipPermissions  bool   `yaml:"dangerously_skip_permissions"`
}

type VADConfig struct {
	SilenceThresholdMs   int     `yaml:"silence_threshold_ms"`
	EnergyThreshold      float64 `yaml:"energy_threshold"`
	AdaptiveThreshold    bool    `yaml:"adaptive_threshold"`
	NoiseFloorMultiplier float64 `yaml:"noise_floor_multiplier"`
	NoiseFloorDecay      float64 `yaml:"noise_floor_decay"`
	MaxUtteranceSecs     int     `yaml:"max_utterance_secs"`
}

type APIConfig struct {
	Token string `yaml:"token"`
}

type HoldMusicConfig struct {
	File   string  `yaml:"file"`
	Volume float64 `yaml:"volume"`
}

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Telephony TelephonyConfig  `yaml:"telephony"`
	STT       STTConfig        `yaml:"stt"`
	TTS       TTSConfig        `yaml:"tts"`
	Generator GeneratorConfig  `yaml:"generator"`
	VAD       VADConfig        `yaml:"vad"`
	API       APIConfig        `yaml:"api"`
	HoldMusic *HoldMusicConfig `yaml:"hold_music"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		STT:    STTConfig{Provider: "groq", Model: "whisper-large-v3-turbo"},
		TTS:    TTSConfig{Provider: "inworld", VoiceID: "Olivia", Model: "inworld-tts-1.5-max"},
		Generator: GeneratorConfig{
			Backend:             "subprocess",
			SessionTimeoutSecs:  300,
			Name:                "Echo",
			AgentBinary:         "claude",
		},
		VAD: VADConfig{
			SilenceThresholdMs:   1500,
			EnergyThreshold:      50,
			AdaptiveThreshold:    true,
			NoiseFloorMultiplier: 3.0,
			NoiseFloorDecay:      0.995,
		},
		HoldMusic: &HoldMusicConfig{Volume: 0.3},
	}
}

// ConfigDir returns the directory holding config.yaml and .env, honoring
// VOICE_ECHO_CONFIG_DIR and falling back to $HOME/.voice-echo.
func ConfigDir() string {
	if dir := os.Getenv("VOICE_ECHO_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".voice-echo"
	}
	return filepath.Join(home, ".voice-echo")
}

// ConfigPath returns the path to config.yaml, honoring VOICE_ECHO_CONFIG.
func ConfigPath() string {
	if p := os.Getenv("VOICE_ECHO_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads .env (best-effort, missing file is not an error), then
// config.yaml (must exist), then applies secret overrides from the
// environment.
func Load() (Config, error) {
	envPath := filepath.Join(ConfigDir(), ".env")
	_ = godotenv.Load(envPath)

	cfg := defaults()

	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: no config file at %s: %w", path, err)
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]*string{
		"TWILIO_ACCOUNT_SID":    &cfg.Telephony.AccountSID,
		"TWILIO_AUTH_TOKEN":     &cfg.Telephony.AuthToken,
		"TWILIO_PHONE_NUMBER":   &cfg.Telephony.PhoneNumber,
		"GROQ_API_KEY":          &cfg.STT.APIKey,
		"INWORLD_API_KEY":       &cfg.TTS.APIKey,
		"VOICE_ECHO_API_TOKEN":  &cfg.API.Token,
		"SERVER_EXTERNAL_URL":   &cfg.Server.ExternalURL,
		"GENERATOR_BRIDGE_URL":  &cfg.Generator.BridgeURL,
	}
	for env, dst := range overrides {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}
