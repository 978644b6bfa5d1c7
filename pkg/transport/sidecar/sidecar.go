// Package sidecar drives a mediasession.Session from the Discord-voice
// sidecar's WebSocket: plain JSON messages discriminated by a "type"
// tag, with no provider media-stream envelope. The sidecar handles
// Opus<->mu-law codec conversion itself, so this handler sees the same
// 8kHz mu-law frames as the telephony transport.
package sidecar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/lokutor-ai/voice-echo/pkg/logging"
	"github.com/lokutor-ai/voice-echo/pkg/mediasession"
	"github.com/lokutor-ai/voice-echo/pkg/registry"
	"github.com/lokutor-ai/voice-echo/pkg/vad"
)

type sidecarEvent struct {
	Type      string `json:"type"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Audio     string `json:"audio"`
}

// HandleConn owns one sidecar WebSocket connection end to end, mirroring
// telephony.HandleConn but with the plain-message wire shapes.
func HandleConn(ctx context.Context, conn *websocket.Conn, deps mediasession.Deps, vadCfg vad.Config, logger logging.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := mediasession.New(deps, mediasession.ChannelDiscordVoice, registry.Sidecar, vadCfg)

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
						logger.Warn("sidecar: write failed", "error", err)
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
				logger.Info("sidecar: stream closed", "call_id", sess.CallID(), "error", err)
			}
			break
		}

		var ev sidecarEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			if logger != nil {
				logger.Warn("sidecar: failed to parse event", "error", err)
			}
			continue
		}

		switch ev.Type {
		case "join":
			callID := fmt.Sprintf("discord:%s", ev.ChannelID)
			// stream_sid equals call_sid for the sidecar transport: there
			// is no separate provider-assigned stream identifier.
			sess.HandleStart(ctx, callID, callID)
			if logger != nil {
				logger.Info("sidecar: voice session started", "call_id", callID, "guild_id", ev.GuildID)
			}
		case "audio":
			mulaw, err := base64.StdEncoding.DecodeString(ev.Audio)
			if err != nil {
				if logger != nil {
					logger.Warn("sidecar: failed to decode audio", "error", err)
				}
				continue
			}
			sess.HandleMedia(ctx, mulaw)
		case "mark":
			sess.HandleMark()
		case "speaking":
			// User speaking-state indicator; no session action required.
		case "leave":
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
