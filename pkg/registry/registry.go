// Package registry is the transport-agnostic directory of live calls.
// It lets the control-plane inject endpoint push audio into an
// already-running call without touching that call's media session
// loop directly.
package registry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Transport tags how a call's playback channel must be framed.
type Transport int

const (
	// Telephony carries audio wrapped in the provider's media/mark
	// JSON event envelope.
	Telephony Transport = iota
	// Sidecar carries plain audio/mark JSON messages, no provider
	// envelope.
	Sidecar
)

const chunkSize = 160

// CallEntry is a thread-safe, cloneable handle to one live call's
// outbound resources: a non-owning clone of the playback sender and a
// shared barge-in flag.
type CallEntry struct {
	CallID     string
	StreamID   string
	Transport  Transport
	playback   chan<- []byte
	speaking   *atomic.Bool
}

// SetSpeaking flips the call's barge-in suppression flag.
func (e *CallEntry) SetSpeaking(v bool) {
	e.speaking.Store(v)
}

// Speaking reports the call's current barge-in suppression flag.
func (e *CallEntry) Speaking() bool {
	return e.speaking.Load()
}

// Registry is the call_id -> CallEntry directory. All operations are
// O(1) under a single mutex; entries are small and cheap to clone.
type Registry struct {
	mu sync.Mutex
	m  map[string]*CallEntry
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{m: make(map[string]*CallEntry)}
}

// Register adds a live call. playback is the session's playback
// sender (capacity 64, forwarding raw transport messages); speaking
// is the session's shared barge-in flag.
func (r *Registry) Register(callID, streamID string, transport Transport, playback chan<- []byte, speaking *atomic.Bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[callID] = &CallEntry{
		CallID:    callID,
		StreamID:  streamID,
		Transport: transport,
		playback:  playback,
		speaking:  speaking,
	}
}

// Deregister removes a call, e.g. on stream stop.
func (r *Registry) Deregister(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, callID)
}

// Get looks up a live call by id.
func (r *Registry) Get(callID string) (*CallEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.m[callID]
	return e, ok
}

// SendAudio pushes mu-law bytes into entry's playback channel, framed
// according to its transport: Telephony wraps each 160-byte chunk in
// a media event followed by one mark event; Sidecar sends plain
// audio/mark messages. The channel send is the point of failure this
// returns — a closed channel propagates as an error; a full channel
// blocks until the consumer makes room.
func SendAudio(entry *CallEntry, mulawBytes []byte) error {
	switch entry.Transport {
	case Telephony:
		for off := 0; off < len(mulawBytes); off += chunkSize {
			end := off + chunkSize
			if end > len(mulawBytes) {
				end = len(mulawBytes)
			}
			msg, err := json.Marshal(map[string]any{
				"event":     "media",
				"streamSid": entry.StreamID,
				"media":     map[string]string{"payload": base64.StdEncoding.EncodeToString(mulawBytes[off:end])},
			})
			if err != nil {
				return fmt.Errorf("registry: marshal media event: %w", err)
			}
			if err := sendOrFail(entry.playback, msg); err != nil {
				return err
			}
		}
		mark, _ := json.Marshal(map[string]any{
			"event":     "mark",
			"streamSid": entry.StreamID,
			"mark":      map[string]string{"name": "inject_end"},
		})
		return sendOrFail(entry.playback, mark)

	case Sidecar:
		for off := 0; off < len(mulawBytes); off += chunkSize {
			end := off + chunkSize
			if end > len(mulawBytes) {
				end = len(mulawBytes)
			}
			msg, err := json.Marshal(map[string]any{
				"type":  "audio",
				"audio": base64.StdEncoding.EncodeToString(mulawBytes[off:end]),
			})
			if err != nil {
				return fmt.Errorf("registry: marshal audio message: %w", err)
			}
			if err := sendOrFail(entry.playback, msg); err != nil {
				return err
			}
		}
		mark, _ := json.Marshal(map[string]any{"type": "mark"})
		return sendOrFail(entry.playback, mark)

	default:
		return fmt.Errorf("registry: unknown transport %v", entry.Transport)
	}
}

// SendClear flushes a Telephony call's buffered playback audio with a
// provider `clear` event. Sidecar has no equivalent concept and this
// is a no-op for it.
func SendClear(entry *CallEntry) error {
	if entry.Transport != Telephony {
		return nil
	}
	msg, _ := json.Marshal(map[string]any{
		"event":     "clear",
		"streamSid": entry.StreamID,
	})
	return sendOrFail(entry.playback, msg)
}

func sendOrFail(ch chan<- []byte, msg []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("registry: send on closed playback channel: %v", r)
		}
	}()
	ch <- msg
	return nil
}
