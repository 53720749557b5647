// Package agent orchestrates a realtime voice session: microphone audio
// streams to the API, synthesized audio streams back to the speaker, and
// function calls, guardrails and the event log hang off the event stream.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haadiyeah/realtime-voice-agent/audio"
	"github.com/haadiyeah/realtime-voice-agent/config"
	"github.com/haadiyeah/realtime-voice-agent/eventlog"
	"github.com/haadiyeah/realtime-voice-agent/guardrail"
	"github.com/haadiyeah/realtime-voice-agent/realtime"
)

// apiSampleRate is the PCM16 rate the Realtime API consumes and produces.
const apiSampleRate = 24000

var errSessionRunning = errors.New("agent: session already running")

// transport is the subset of the realtime client the session drives.
type transport interface {
	Connect(ctx context.Context) error
	Send(event realtime.ClientEvent) error
	Disconnect()
	State() realtime.State
}

// audioSource delivers captured microphone blocks.
type audioSource interface {
	Start(onBlock func(samples []float32)) error
	Stop()
	SampleRate() int
}

// audioSink plays decoded samples and can discard what is queued.
type audioSink interface {
	Play(samples []float32, sampleRate int)
	Flush()
}

// Options configures a Session. Config, Source and Sink are required.
type Options struct {
	Config *config.Config
	Source audioSource
	Sink   audioSink

	// Tokens mints ephemeral credentials. When nil, Secret is used as-is.
	Tokens *realtime.TokenSource
	// Secret is a pre-minted credential or long-lived API key.
	Secret string

	Log        *eventlog.Log
	Guardrails *guardrail.Set
	Tools      *ToolRegistry
	Logger     *slog.Logger

	// URL overrides the API endpoint (used in tests).
	URL string
	// dial overrides transport construction (used in tests).
	dial func(secret string, h realtime.Handlers) transport
}

// Session owns the transport client, audio devices, event log, guardrails
// and tool registry for one conversation. Create with NewSession; a Session
// is not reusable after Stop.
type Session struct {
	cfg    *config.Config
	source audioSource
	sink   audioSink
	tokens *realtime.TokenSource
	secret string
	log    *eventlog.Log
	guards *guardrail.Set
	tools  *ToolRegistry
	logger *slog.Logger
	url    string
	dial   func(secret string, h realtime.Handlers) transport

	mu        sync.Mutex
	client    transport
	running   bool
	refreshed bool // one credential refresh per session

	// transcript state per response, for guardrail checks.
	transcripts map[string]*strings.Builder
	cancelled   map[string]bool
}

// NewSession wires a session from its parts.
func NewSession(opts Options) *Session {
	if opts.Log == nil {
		capacity := eventlog.DefaultCapacity
		if opts.Config != nil {
			capacity = opts.Config.LogCapacity
		}
		opts.Log = eventlog.New(capacity)
	}
	if opts.Guardrails == nil {
		opts.Guardrails = guardrail.NewSet()
	}
	if opts.Tools == nil {
		opts.Tools = NewToolRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.URL == "" {
		opts.URL = realtime.DefaultURL
	}

	s := &Session{
		cfg:         opts.Config,
		source:      opts.Source,
		sink:        opts.Sink,
		tokens:      opts.Tokens,
		secret:      opts.Secret,
		log:         opts.Log,
		guards:      opts.Guardrails,
		tools:       opts.Tools,
		logger:      opts.Logger,
		url:         opts.URL,
		dial:        opts.dial,
		transcripts: make(map[string]*strings.Builder),
		cancelled:   make(map[string]bool),
	}
	if s.dial == nil {
		s.dial = func(secret string, h realtime.Handlers) transport {
			return realtime.NewClient(realtime.Config{
				URL:      s.url,
				Model:    s.cfg.Model,
				Secret:   secret,
				Handlers: h,
			})
		}
	}
	return s
}

// EventLog exposes the session's event log for display.
func (s *Session) EventLog() *eventlog.Log {
	return s.log
}

// Start mints a credential if needed, connects, configures the session and
// begins streaming microphone audio. A connect failure that looks like an
// expired credential triggers exactly one mint-and-retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errSessionRunning
	}
	s.running = true
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		// Leave the session startable again after a failed attempt.
		s.Stop()
		return err
	}

	s.logger.Info("session started", "model", s.cfg.Model, "capture_rate", s.source.SampleRate())
	return nil
}

func (s *Session) start(ctx context.Context) error {
	secret, err := s.credential(ctx)
	if err != nil {
		return err
	}

	client, err := s.connect(ctx, secret)
	if err != nil && s.canRefresh() && realtime.LooksLikeAuthError(err.Error()) {
		s.logger.Warn("connect failed with credential error, minting fresh secret", "error", err)
		if secret, err = s.refresh(ctx); err != nil {
			return err
		}
		client, err = s.connect(ctx, secret)
	}
	if err != nil {
		return fmt.Errorf("agent: connect: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	if err := s.configureSession(); err != nil {
		return err
	}

	if err := s.source.Start(s.handleBlock); err != nil {
		return fmt.Errorf("agent: start capture: %w", err)
	}
	return nil
}

// Stop releases the microphone and closes the connection. Idempotent.
func (s *Session) Stop() {
	s.source.Stop()

	s.mu.Lock()
	client := s.client
	s.client = nil
	s.running = false
	s.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
}

// SendText injects a typed user message and requests a response.
func (s *Session) SendText(text string) error {
	if err := s.send(realtime.ConversationItemText("user", text)); err != nil {
		return err
	}
	return s.send(realtime.ResponseCreate(nil))
}

// ─────────────────────────────────────────────────────────────────────────────
// Connection plumbing
// ─────────────────────────────────────────────────────────────────────────────

func (s *Session) connect(ctx context.Context, secret string) (transport, error) {
	client := s.dial(secret, realtime.Handlers{
		OnOpen:    func() { s.logger.Info("connection open") },
		OnClose:   func() { s.logger.Info("connection closed") },
		OnMessage: s.handleServerEvent,
		OnError:   s.handleTransportError,
		OnSent:    s.recordSent,
	})
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// credential returns the cached ephemeral secret when still valid, minting
// a fresh one otherwise. Without a token source the static secret is used.
func (s *Session) credential(ctx context.Context) (string, error) {
	if s.tokens == nil {
		return s.secret, nil
	}

	if cached := s.cfg.CachedSecret; cached != nil {
		sec := &realtime.ClientSecret{Value: cached.Value, ExpiresAt: cached.ExpiresAt}
		if !sec.Expired(time.Now()) {
			return cached.Value, nil
		}
	}
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.refreshed = true
	s.mu.Unlock()

	sec, err := s.tokens.Mint(ctx, s.cfg.Model)
	if err != nil {
		return "", fmt.Errorf("agent: mint credential: %w", err)
	}
	s.cfg.CachedSecret = &config.ClientSecret{Value: sec.Value, ExpiresAt: sec.ExpiresAt}
	return sec.Value, nil
}

func (s *Session) canRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens != nil && !s.refreshed
}

// reconnect tears down the current connection and dials again with a fresh
// credential. Called at most once per session, on an auth-looking error.
func (s *Session) reconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	old := s.client
	s.client = nil
	s.mu.Unlock()
	if old != nil {
		old.Disconnect()
	}

	secret, err := s.refresh(ctx)
	if err != nil {
		s.logger.Error("credential refresh failed", "error", err)
		return
	}

	client, err := s.connect(ctx, secret)
	if err != nil {
		s.logger.Error("reconnect failed", "error", err)
		return
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	if err := s.configureSession(); err != nil {
		s.logger.Error("session reconfigure failed", "error", err)
	}
}

func (s *Session) configureSession() error {
	session := s.cfg.SessionPayload()
	if s.tools.Len() > 0 {
		session["tools"] = s.tools.Definitions()
	}
	if err := s.send(realtime.SessionUpdate(session)); err != nil {
		return fmt.Errorf("agent: session update: %w", err)
	}
	return nil
}

func (s *Session) send(event realtime.ClientEvent) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return realtime.ErrNotConnected
	}
	return client.Send(event)
}

// ─────────────────────────────────────────────────────────────────────────────
// Outbound audio
// ─────────────────────────────────────────────────────────────────────────────

// handleBlock carries one capture block to the API: resample to the API
// rate, encode to PCM16, armor as base64, append.
func (s *Session) handleBlock(samples []float32) {
	resampled := audio.Resample(samples, s.source.SampleRate(), apiSampleRate)
	payload := audio.ToBase64(audio.EncodePCM16(resampled))

	if err := s.send(realtime.InputAudioBufferAppend(payload)); err != nil {
		if !errors.Is(err, realtime.ErrNotConnected) {
			s.logger.Warn("audio append failed", "error", err)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Inbound events
// ─────────────────────────────────────────────────────────────────────────────

func (s *Session) handleServerEvent(event realtime.ServerEvent, raw []byte) {
	s.recordReceived(raw)

	switch e := event.(type) {
	case realtime.AudioDeltaEvent:
		s.handleAudioDelta(e)
	case realtime.TranscriptDeltaEvent:
		s.handleTranscriptDelta(e)
	case realtime.ResponseDoneEvent:
		s.handleResponseDone(e)
	case realtime.SpeechStartedEvent:
		// Barge-in: the user started talking over the assistant.
		s.sink.Flush()
	case realtime.ErrorEvent:
		s.handleAPIError(e)
	}
}

func (s *Session) handleAudioDelta(e realtime.AudioDeltaEvent) {
	if s.isCancelled(e.ResponseID) {
		return
	}
	data, err := audio.FromBase64(e.Delta)
	if err != nil {
		s.logger.Warn("audio delta decode failed", "error", err)
		return
	}
	samples, err := audio.DecodePCM16(data)
	if err != nil {
		s.logger.Warn("audio delta decode failed", "error", err)
		return
	}
	s.sink.Play(samples, apiSampleRate)
}

// handleTranscriptDelta accumulates the assistant transcript per response
// and trips guardrails over the accumulated text. A trip cancels the
// response and flushes queued playback.
func (s *Session) handleTranscriptDelta(e realtime.TranscriptDeltaEvent) {
	if s.guards.Len() == 0 || s.isCancelled(e.ResponseID) {
		return
	}

	s.mu.Lock()
	b := s.transcripts[e.ResponseID]
	if b == nil {
		b = &strings.Builder{}
		s.transcripts[e.ResponseID] = b
	}
	b.WriteString(e.Delta)
	text := b.String()
	s.mu.Unlock()

	res := s.guards.Check(text)
	if res == nil {
		return
	}

	s.mu.Lock()
	s.cancelled[e.ResponseID] = true
	s.mu.Unlock()

	s.logger.Warn("guardrail tripped", "rule", res.Rule, "match", res.Match, "response_id", e.ResponseID)
	if err := s.send(realtime.ResponseCancel()); err != nil {
		s.logger.Warn("response cancel failed", "error", err)
	}
	s.sink.Flush()
}

// handleResponseDone answers embedded function calls with their outputs and
// requests a follow-up response.
func (s *Session) handleResponseDone(e realtime.ResponseDoneEvent) {
	s.mu.Lock()
	delete(s.transcripts, e.Response.ID)
	delete(s.cancelled, e.Response.ID)
	s.mu.Unlock()

	calls := e.FunctionCalls()
	if len(calls) == 0 {
		return
	}

	for _, call := range calls {
		output := s.tools.Invoke(call.Name, call.Arguments)
		s.logger.Info("function call", "name", call.Name, "call_id", call.CallID)
		if err := s.send(realtime.ConversationItemFunctionOutput(call.CallID, output)); err != nil {
			s.logger.Warn("function output send failed", "error", err)
			return
		}
	}
	if err := s.send(realtime.ResponseCreate(nil)); err != nil {
		s.logger.Warn("response create failed", "error", err)
	}
}

func (s *Session) handleAPIError(e realtime.ErrorEvent) {
	s.logger.Error("api error", "type", e.Error.Type, "code", e.Error.Code, "message", e.Error.Message)

	if s.canRefresh() && realtime.LooksLikeAuthError(e.Error.Message+" "+e.Error.Code) {
		go s.reconnect()
	}
}

func (s *Session) handleTransportError(err error) {
	var parseErr *realtime.ParseError
	if errors.As(err, &parseErr) {
		s.logger.Warn("unparseable frame", "error", parseErr.Err)
		return
	}
	s.logger.Error("transport error", "error", err)

	if s.canRefresh() && realtime.LooksLikeAuthError(err.Error()) {
		go s.reconnect()
	}
}

func (s *Session) isCancelled(responseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[responseID]
}

// ─────────────────────────────────────────────────────────────────────────────
// Event log
// ─────────────────────────────────────────────────────────────────────────────

func (s *Session) recordSent(event realtime.ClientEvent) {
	entry := make(map[string]any, len(event))
	for k, v := range event {
		// Audio payloads are large and uninteresting in the log.
		if k == "audio" {
			if payload, ok := v.(string); ok {
				entry[k] = fmt.Sprintf("<%d bytes base64>", len(payload))
				continue
			}
		}
		entry[k] = v
	}
	s.log.Record(entry, eventlog.DirectionSent)
}

func (s *Session) recordReceived(raw []byte) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return
	}
	if delta, ok := m["delta"].(string); ok && m["type"] == realtime.EventResponseAudioDelta {
		m["delta"] = fmt.Sprintf("<%d bytes base64>", len(delta))
	}
	s.log.Record(m, eventlog.DirectionReceived)
}
