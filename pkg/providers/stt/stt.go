// Package stt provides speech-to-text client shims. Every
// implementation accepts a complete WAV file (mono, 16-bit, 8kHz) and
// returns the transcribed text.
package stt

import "context"

// Provider transcribes a WAV file. lang is an optional BCP-47-ish hint
// ("" lets the provider auto-detect where supported).
type Provider interface {
	Transcribe(ctx context.Context, wav []byte, lang string) (string, error)
	Name() string
}
