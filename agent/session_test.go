package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/haadiyeah/realtime-voice-agent/config"
	"github.com/haadiyeah/realtime-voice-agent/eventlog"
	"github.com/haadiyeah/realtime-voice-agent/guardrail"
	"github.com/haadiyeah/realtime-voice-agent/realtime"
)

// fakeTransport records sent events and lets tests inject inbound frames.
type fakeTransport struct {
	mu       sync.Mutex
	handlers realtime.Handlers
	sent     []realtime.ClientEvent
	dialErr  error
	closed   bool
}

func (f *fakeTransport) Connect(context.Context) error { return f.dialErr }

func (f *fakeTransport) Send(e realtime.ClientEvent) error {
	f.mu.Lock()
	f.sent = append(f.sent, e)
	f.mu.Unlock()
	if f.handlers.OnSent != nil {
		f.handlers.OnSent(e)
	}
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeTransport) State() realtime.State { return realtime.StateOpen }

// deliver parses a frame and dispatches it the way the read loop would.
func (f *fakeTransport) deliver(t *testing.T, frame string) {
	t.Helper()
	event, err := realtime.ParseEvent([]byte(frame))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	f.handlers.OnMessage(event, []byte(frame))
}

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.sent))
	for i, e := range f.sent {
		types[i] = e.Type()
	}
	return types
}

type fakeSource struct {
	mu      sync.Mutex
	onBlock func([]float32)
	stopped bool
}

func (f *fakeSource) Start(onBlock func([]float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onBlock = onBlock
	return nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeSource) SampleRate() int { return 48000 }

type fakeSink struct {
	mu      sync.Mutex
	played  [][]float32
	flushes int
}

func (f *fakeSink) Play(samples []float32, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, samples)
}

func (f *fakeSink) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func newTestSession(t *testing.T, opts Options) (*Session, *fakeTransport, *fakeSource, *fakeSink) {
	t.Helper()
	ft := &fakeTransport{}
	src := &fakeSource{}
	sink := &fakeSink{}

	if opts.Config == nil {
		opts.Config = config.Default()
	}
	opts.Source = src
	opts.Sink = sink
	opts.Secret = "ek_test"
	opts.dial = func(_ string, h realtime.Handlers) transport {
		ft.handlers = h
		return ft
	}

	s := NewSession(opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, ft, src, sink
}

func TestSession_StartSendsSessionUpdate(t *testing.T) {
	_, ft, src, _ := newTestSession(t, Options{Tools: DefaultTools()})

	types := ft.sentTypes()
	if len(types) == 0 || types[0] != "session.update" {
		t.Fatalf("first sent event = %v, want session.update", types)
	}

	session, ok := ft.sent[0]["session"].(map[string]any)
	if !ok {
		t.Fatalf("session payload = %T", ft.sent[0]["session"])
	}
	if session["voice"] != config.DefaultVoice {
		t.Errorf("voice = %v", session["voice"])
	}
	if _, ok := session["tools"]; !ok {
		t.Error("session payload lacks tools")
	}

	if src.onBlock == nil {
		t.Error("capture not started")
	}
}

func TestSession_MicBlockBecomesAppend(t *testing.T) {
	_, ft, src, _ := newTestSession(t, Options{})

	// One 48 kHz block downsamples 2:1 before encoding.
	block := make([]float32, 4096)
	src.onBlock(block)

	var appendEvent realtime.ClientEvent
	for _, e := range ft.sent {
		if e.Type() == "input_audio_buffer.append" {
			appendEvent = e
		}
	}
	if appendEvent == nil {
		t.Fatalf("no append among %v", ft.sentTypes())
	}

	payload, _ := appendEvent["audio"].(string)
	// 2048 samples * 2 bytes, base64: ceil(4096/3)*4.
	if len(payload) != 5464 {
		t.Errorf("payload length = %d, want 5464", len(payload))
	}
}

func TestSession_AudioDeltaPlays(t *testing.T) {
	_, ft, _, sink := newTestSession(t, Options{})

	// Two PCM16 samples: 0x0000, 0x7FFF.
	ft.deliver(t, `{"type":"response.audio.delta","response_id":"resp_1","delta":"AAD/fw=="}`)

	if len(sink.played) != 1 {
		t.Fatalf("played %d chunks, want 1", len(sink.played))
	}
	got := sink.played[0]
	if len(got) != 2 {
		t.Fatalf("chunk has %d samples, want 2", len(got))
	}
	if got[0] != 0 || got[1] != 1 {
		t.Errorf("samples = %v, want [0 1]", got)
	}
}

func TestSession_SpeechStartedFlushesPlayback(t *testing.T) {
	_, ft, _, sink := newTestSession(t, Options{})

	ft.deliver(t, `{"type":"input_audio_buffer.speech_started","audio_start_ms":120,"item_id":"item_1"}`)

	if sink.flushes != 1 {
		t.Errorf("flushes = %d, want 1", sink.flushes)
	}
}

func TestSession_FunctionCallAnswered(t *testing.T) {
	tools := NewToolRegistry()
	tools.Register(Tool{
		Name: "lookup",
		Run: func(args map[string]any) (map[string]any, error) {
			return map[string]any{"answer": 42}, nil
		},
	})
	_, ft, _, _ := newTestSession(t, Options{Tools: tools})

	ft.deliver(t, `{"type":"response.done","response":{"id":"resp_1","status":"completed","output":[
		{"id":"item_1","type":"function_call","name":"lookup","call_id":"call_1","arguments":"{}"}
	]}}`)

	types := ft.sentTypes()
	var itemIdx, responseIdx = -1, -1
	for i, typ := range types {
		switch typ {
		case "conversation.item.create":
			itemIdx = i
		case "response.create":
			responseIdx = i
		}
	}
	if itemIdx == -1 {
		t.Fatalf("no function output among %v", types)
	}
	if responseIdx == -1 || responseIdx < itemIdx {
		t.Fatalf("response.create missing or out of order: %v", types)
	}

	item, _ := ft.sent[itemIdx]["item"].(map[string]any)
	if item["call_id"] != "call_1" {
		t.Errorf("call_id = %v", item["call_id"])
	}
	output, _ := item["output"].(string)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("output not JSON: %q", output)
	}
	if decoded["answer"] != float64(42) {
		t.Errorf("answer = %v", decoded["answer"])
	}
}

func TestSession_UnknownFunctionStillAnswered(t *testing.T) {
	_, ft, _, _ := newTestSession(t, Options{})

	ft.deliver(t, `{"type":"response.done","response":{"id":"resp_1","status":"completed","output":[
		{"id":"item_1","type":"function_call","name":"nope","call_id":"call_9","arguments":"{}"}
	]}}`)

	var output string
	for _, e := range ft.sent {
		if e.Type() == "conversation.item.create" {
			item, _ := e["item"].(map[string]any)
			output, _ = item["output"].(string)
		}
	}
	if !strings.Contains(output, "unknown function: nope") {
		t.Errorf("output = %q, want unknown-function error payload", output)
	}
}

func TestSession_GuardrailCancelsResponse(t *testing.T) {
	guards := guardrail.NewSet(guardrail.Keyword("blocked", "forbidden"))
	_, ft, _, sink := newTestSession(t, Options{Guardrails: guards})

	ft.deliver(t, `{"type":"response.audio_transcript.delta","response_id":"resp_1","delta":"this is fine"}`)
	if got := ft.sentTypes(); len(got) > 1 {
		t.Fatalf("benign delta triggered sends: %v", got[1:])
	}

	ft.deliver(t, `{"type":"response.audio_transcript.delta","response_id":"resp_1","delta":" but forbidden content"}`)

	types := ft.sentTypes()
	if types[len(types)-1] != "response.cancel" {
		t.Fatalf("sends = %v, want trailing response.cancel", types)
	}
	if sink.flushes != 1 {
		t.Errorf("flushes = %d, want 1", sink.flushes)
	}

	// Later audio for the cancelled response is dropped.
	ft.deliver(t, `{"type":"response.audio.delta","response_id":"resp_1","delta":"AAD/fw=="}`)
	if len(sink.played) != 0 {
		t.Errorf("played %d chunks for cancelled response, want 0", len(sink.played))
	}
}

func TestSession_EventLogRecordsBothDirections(t *testing.T) {
	s, ft, src, _ := newTestSession(t, Options{})

	src.onBlock(make([]float32, 4096))
	ft.deliver(t, `{"type":"session.created","event_id":"evt_1","session":{}}`)

	var sent, received int
	for _, e := range s.EventLog().Entries() {
		switch e.Direction {
		case eventlog.DirectionSent:
			sent++
		case eventlog.DirectionReceived:
			received++
		}
	}
	if sent < 2 {
		t.Errorf("sent entries = %d, want at least 2 (session.update + append)", sent)
	}
	if received != 1 {
		t.Errorf("received entries = %d, want 1", received)
	}

	// Audio payloads are elided in the log.
	for _, e := range s.EventLog().Entries() {
		if e.Event["type"] == "input_audio_buffer.append" {
			payload, _ := e.Event["audio"].(string)
			if !strings.HasPrefix(payload, "<") {
				t.Errorf("append log entry carries raw audio: %q", payload[:16])
			}
		}
	}
}

func TestSession_StopReleasesDevices(t *testing.T) {
	s, ft, src, _ := newTestSession(t, Options{})

	s.Stop()
	if !src.stopped {
		t.Error("capture not stopped")
	}
	if !ft.closed {
		t.Error("transport not disconnected")
	}

	if err := s.SendText("hello"); err == nil {
		t.Error("SendText after Stop returned nil error")
	}
}

func TestSession_SendText(t *testing.T) {
	s, ft, _, _ := newTestSession(t, Options{})

	if err := s.SendText("what's the weather"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	types := ft.sentTypes()
	n := len(types)
	if n < 2 || types[n-2] != "conversation.item.create" || types[n-1] != "response.create" {
		t.Errorf("sends = %v, want trailing item.create + response.create", types)
	}
}

func TestSession_ConnectFailureSurfaces(t *testing.T) {
	ft := &fakeTransport{dialErr: fmt.Errorf("dial tcp: connection refused")}
	s := NewSession(Options{
		Config: config.Default(),
		Source: &fakeSource{},
		Sink:   &fakeSink{},
		Secret: "ek_test",
		dial: func(_ string, h realtime.Handlers) transport {
			ft.handlers = h
			return ft
		},
	})

	if err := s.Start(context.Background()); err == nil {
		t.Error("Start with failing dial returned nil error")
	}
}

func TestSession_StartRetryAfterFailure(t *testing.T) {
	ft := &fakeTransport{dialErr: fmt.Errorf("dial tcp: connection refused")}
	src := &fakeSource{}
	s := NewSession(Options{
		Config: config.Default(),
		Source: src,
		Sink:   &fakeSink{},
		Secret: "ek_test",
		dial: func(_ string, h realtime.Handlers) transport {
			ft.handlers = h
			return ft
		},
	})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start with failing dial returned nil error")
	}

	// A failed start leaves the session startable: a retry must not be
	// refused as already running.
	ft.dialErr = nil
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start retry: %v", err)
	}
	t.Cleanup(s.Stop)

	if types := ft.sentTypes(); len(types) == 0 || types[0] != "session.update" {
		t.Errorf("sends after retry = %v, want leading session.update", types)
	}
	if src.onBlock == nil {
		t.Error("capture not started after retry")
	}
}

func TestSession_ResponseDoneClearsCancelledState(t *testing.T) {
	guards := guardrail.NewSet(guardrail.Keyword("blocked", "forbidden"))
	_, ft, _, sink := newTestSession(t, Options{Guardrails: guards})

	ft.deliver(t, `{"type":"response.audio_transcript.delta","response_id":"resp_1","delta":"forbidden"}`)
	ft.deliver(t, `{"type":"response.audio.delta","response_id":"resp_1","delta":"AAD/fw=="}`)
	if len(sink.played) != 0 {
		t.Fatalf("played %d chunks for cancelled response, want 0", len(sink.played))
	}

	// The response finishing retires its cancellation marker; a reused
	// response ID is not suppressed by a stale entry.
	ft.deliver(t, `{"type":"response.done","response":{"id":"resp_1","status":"cancelled","output":[]}}`)
	ft.deliver(t, `{"type":"response.audio.delta","response_id":"resp_1","delta":"AAD/fw=="}`)

	if len(sink.played) != 1 {
		t.Errorf("played %d chunks after response.done, want 1", len(sink.played))
	}
}
