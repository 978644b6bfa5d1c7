// Package vad segments an 8kHz mu-law stream into PCM utterances using
// energy-based voice activity detection with an optional adaptive
// noise floor.
package vad

import (
	"time"

	"github.com/lokutor-ai/voice-echo/pkg/audio"
)

const (
	bandLowHz          = 300.0
	bandHighHz         = 3000.0
	maxSilentBufferSec = 5
)

// Config controls detector sensitivity.
type Config struct {
	EnergyThreshold      float64
	SilenceThreshold     time.Duration
	MaxUtteranceDuration time.Duration // zero disables the cap
	Adaptive             bool
	NoiseFloorMultiplier float64
	NoiseFloorDecay      float64
}

// Detector accumulates mu-law audio and emits a complete utterance's
// PCM samples once a silence gap (or the max-utterance cap) is
// reached. A Detector is owned by a single caller; Feed is not safe
// for concurrent use.
type Detector struct {
	cfg Config

	bandpass *audio.BandpassFilter

	pcmBuffer []int16

	hasSpeech      bool
	lastSpeechAt   time.Time
	utteranceStart time.Time

	noiseFloor float64
}

// New builds a Detector from cfg.
func New(cfg Config) *Detector {
	return &Detector{
		cfg:      cfg,
		bandpass: audio.NewBandpassFilter(bandLowHz, bandHighHz, audio.SampleRate),
	}
}

// Feed decodes one mu-law chunk, updates detector state, and returns
// the accumulated PCM utterance once emission fires.
func (d *Detector) Feed(chunk []byte, now time.Time) (utterance []int16, emitted bool) {
	pcm := audio.DecodeMulaw(chunk)
	d.pcmBuffer = append(d.pcmBuffer, pcm...)

	filtered := d.bandpass.Filter(pcm)
	energy := audio.RMSEnergy(filtered)

	threshold := d.cfg.EnergyThreshold
	if d.cfg.Adaptive && d.noiseFloor > 0 {
		if adaptive := d.noiseFloor * d.cfg.NoiseFloorMultiplier; adaptive > threshold {
			threshold = adaptive
		}
	}

	if energy > threshold {
		if !d.hasSpeech {
			d.utteranceStart = now
		}
		d.hasSpeech = true
		d.lastSpeechAt = now
	} else if !d.hasSpeech && d.cfg.Adaptive {
		if d.noiseFloor == 0 {
			d.noiseFloor = energy
		} else {
			d.noiseFloor = d.cfg.NoiseFloorDecay*d.noiseFloor + (1-d.cfg.NoiseFloorDecay)*energy
		}
	}

	if d.hasSpeech {
		if d.cfg.MaxUtteranceDuration > 0 && now.Sub(d.utteranceStart) >= d.cfg.MaxUtteranceDuration {
			return d.emit()
		}
		if now.Sub(d.lastSpeechAt) >= d.cfg.SilenceThreshold {
			return d.emit()
		}
	} else if len(d.pcmBuffer) > maxSilentBufferSec*audio.SampleRate {
		d.pcmBuffer = nil
	}

	return nil, false
}

func (d *Detector) emit() ([]int16, bool) {
	out := d.pcmBuffer
	d.pcmBuffer = nil
	d.hasSpeech = false
	return out, true
}

// Reset clears buffered audio and speech state. The noise floor and
// filter state persist across turns.
func (d *Detector) Reset() {
	d.pcmBuffer = nil
	d.hasSpeech = false
}

// Threshold reports the effective speech threshold at the current
// noise floor, for testing the adaptive invariant.
func (d *Detector) Threshold() float64 {
	if d.cfg.Adaptive && d.noiseFloor > 0 {
		if adaptive := d.noiseFloor * d.cfg.NoiseFloorMultiplier; adaptive > d.cfg.EnergyThreshold {
			return adaptive
		}
	}
	return d.cfg.EnergyThreshold
}
