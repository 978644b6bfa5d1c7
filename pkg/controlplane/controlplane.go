// Package controlplane is the HTTP surface: provider webhooks, the
// two WebSocket transport upgrades, and the bearer-token-protected
// outbound-call/inject API. Handlers stay thin — they parse inputs,
// check auth, and delegate to the core packages.
package controlplane

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lokutor-ai/voice-echo/pkg/config"
	"github.com/lokutor-ai/voice-echo/pkg/logging"
	"github.com/lokutor-ai/voice-echo/pkg/mediasession"
	"github.com/lokutor-ai/voice-echo/pkg/providers/telephony"
	"github.com/lokutor-ai/voice-echo/pkg/registry"
	"github.com/lokutor-ai/voice-echo/pkg/transport/sidecar"
	tphony "github.com/lokutor-ai/voice-echo/pkg/transport/telephony"
	"github.com/lokutor-ai/voice-echo/pkg/vad"
	"github.com/lokutor-ai/voice-echo/pkg/validate"
)

// Server wires the routes. It owns the one-shot-context map that
// bridges /api/call to the first utterance a Media Session processes.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	twilio *telephony.TwilioClient
	deps   mediasession.Deps
	vadCfg vad.Config
	logger logging.Logger

	mu           sync.Mutex
	callContexts map[string]string
}

// New builds a Server with all routes mounted. deps.PopOneShotContext
// is overwritten to route through this Server's call-context map.
func New(cfg config.Config, twilio *telephony.TwilioClient, deps mediasession.Deps, vadCfg vad.Config, logger logging.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		twilio:       twilio,
		deps:         deps,
		vadCfg:       vadCfg,
		logger:       logger,
		callContexts: make(map[string]string),
	}
	s.deps.PopOneShotContext = s.popOneShotContext

	s.router = chi.NewRouter()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// contextKey namespaces values this package stores on a request
// context, so they don't collide with keys set by other middleware.
type contextKey string

const requestIDKey contextKey = "request_id"

// requestIDMiddleware stamps every request with a fresh correlation id,
// echoed on the X-Request-Id response header and attached to the
// /api/call and /api/inject log lines for the same request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.requestIDMiddleware)
	r.Get("/health", s.handleHealth)
	r.Post("/api/call", s.handleCall)
	r.Post("/api/inject", s.handleInject)
	r.Post("/twilio/voice", s.handleTwilioVoice)
	r.Post("/twilio/voice/outbound", s.handleTwilioVoiceOutbound)
	r.Get("/twilio/media", s.handleTwilioMedia)
	r.Get("/sidecar/stream", s.handleSidecarStream)
}

func (s *Server) popOneShotContext(callID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.callContexts[callID]
	delete(s.callContexts, callID)
	return ctx
}

func (s *Server) storeCallContext(callID, ctx string) {
	if ctx == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callContexts[callID] = ctx
}

// ---- /health ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ---- /api/call ----

type callRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
	Context string `json:"context"`
}

type callResponse struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !validate.E164(req.To) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%q is not a valid E.164 phone number", req.To))
		return
	}

	callSID, err := s.twilio.Call(r.Context(), req.To, req.Message)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("outbound call failed", "request_id", requestID(r.Context()), "error", err)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.storeCallContext(callSID, req.Context)
	if s.logger != nil {
		s.logger.Info("outbound call initiated", "request_id", requestID(r.Context()), "call_id", callSID, "to", req.To)
	}

	writeJSON(w, http.StatusOK, callResponse{CallSID: callSID, Status: "initiated"})
}

// ---- /api/inject ----

type injectRequest struct {
	CallSID string `json:"call_sid"`
	Text    string `json:"text"`
}

type injectResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}

	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, ok := s.deps.Registry.Get(req.CallSID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no active call with sid %s", req.CallSID))
		return
	}

	mulaw, err := s.deps.TTS.Synthesize(r.Context(), req.Text)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("tts failed for inject", "request_id", requestID(r.Context()), "call_id", req.CallSID, "error", err)
		}
		writeError(w, http.StatusInternalServerError, "tts synthesis failed")
		return
	}

	entry.SetSpeaking(true)
	if err := registry.SendAudio(entry, mulaw); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to inject audio", "request_id", requestID(r.Context()), "call_id", req.CallSID, "error", err)
		}
		entry.SetSpeaking(false)
		writeError(w, http.StatusInternalServerError, "failed to send audio")
		return
	}

	if s.logger != nil {
		s.logger.Info("audio injected", "call_id", req.CallSID, "bytes", len(mulaw))
	}
	writeJSON(w, http.StatusOK, injectResponse{Status: "injected"})
}

// ---- Twilio webhooks ----

func (s *Server) handleTwilioVoice(w http.ResponseWriter, r *http.Request) {
	wsURL := mediaStreamURL(s.cfg.Server.ExternalURL)
	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="%s" />
    </Connect>
</Response>`, wsURL)
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(twiml))
}

func (s *Server) handleTwilioVoiceOutbound(w http.ResponseWriter, r *http.Request) {
	wsURL := mediaStreamURL(s.cfg.Server.ExternalURL)

	sayElement := ""
	if msg := r.URL.Query().Get("message"); msg != "" {
		sayElement = "\n    <Say>" + escapeXML(msg) + "</Say>"
	}

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>%s
    <Connect>
        <Stream url="%s" />
    </Connect>
</Response>`, sayElement, wsURL)
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(twiml))
}

func mediaStreamURL(externalURL string) string {
	u := strings.Replace(externalURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return strings.TrimRight(u, "/") + "/twilio/media"
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(s)
}

// ---- WebSocket upgrades ----

func (s *Server) handleTwilioMedia(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to upgrade twilio media stream", "error", err)
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")
	tphony.HandleConn(r.Context(), conn, s.deps, s.vadCfg, s.logger)
}

func (s *Server) handleSidecarStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to upgrade sidecar stream", "error", err)
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")
	sidecar.HandleConn(r.Context(), conn, s.deps, s.vadCfg, s.logger)
}

// ---- auth + response helpers ----

// checkAuth compares the Authorization bearer token against the
// configured api.token in constant time. An unconfigured token
// rejects every request with 503 rather than silently allowing them.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	expected := s.cfg.API.Token
	if expected == "" {
		if s.logger != nil {
			s.logger.Warn("api token not configured, rejecting request")
		}
		writeError(w, http.StatusServiceUnavailable, "api token not configured")
		return false
	}

	provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		if s.logger != nil {
			s.logger.Warn("unauthorized api request")
		}
		writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
