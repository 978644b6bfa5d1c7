// Package telephony drives a mediasession.Session from the provider's
// bidirectional media-stream WebSocket: JSON events wrapping base64
// mu-law audio, discriminated by an "event" tag.
package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/coder/websocket"
	"github.com/lokutor-ai/voice-echo/pkg/logging"
	"github.com/lokutor-ai/voice-echo/pkg/mediasession"
	"github.com/lokutor-ai/voice-echo/pkg/registry"
	"github.com/lokutor-ai/voice-echo/pkg/vad"
)

// streamEvent is the union of every inbound media-stream event shape.
// Only the fields relevant to a given event's "event" tag are
// populated; the rest stay at zero value.
type streamEvent struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Start     struct {
		CallSID string `json:"callSid"`
	} `json:"start"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// HandleConn owns one provider WebSocket connection end to end: it
// builds a Session, drives it from inbound events on the calling
// goroutine, and forwards the Session's playback channel to the wire
// from a second goroutine. Returns once the connection closes, a stop
// event arrives, or ctx is cancelled.
func HandleConn(ctx context.Context, conn *websocket.Conn, deps mediasession.Deps, vadCfg vad.Config, logger logging.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := mediasession.New(deps, mediasession.ChannelPhone, registry.Telephony, vadCfg)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sess.Playback():
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					if logger != nil {
						logger.Warn("telephony: write failed", "error", err)
					}
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if logger != nil {
				logger.Info("telephony: stream closed", "call_id", sess.CallID(), "error", err)
			}
			break
		}

		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			if logger != nil {
				logger.Warn("telephony: failed to parse stream event", "error", err)
			}
			continue
		}

		switch ev.Event {
		case "connected":
			if logger != nil {
				logger.Info("telephony: stream connected")
			}
		case "start":
			sess.HandleStart(ctx, ev.Start.CallSID, ev.StreamSID)
		case "media":
			mulaw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				if logger != nil {
					logger.Warn("telephony: failed to decode base64 audio", "error", err)
				}
				continue
			}
			sess.HandleMedia(ctx, mulaw)
		case "mark":
			sess.HandleMark()
		case "stop":
			sess.HandleStop(ctx)
			cancel()
			<-writerDone
			return
		}
	}

	sess.HandleStop(ctx)
	cancel()
	<-writerDone
}
