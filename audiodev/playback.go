package audiodev

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/haadiyeah/realtime-voice-agent/audio"
)

// DefaultPlaybackRate is the speaker sample rate. The Realtime API emits
// 24 kHz mono PCM16.
const DefaultPlaybackRate = 24000

// Player queues decoded float samples for asynchronous speaker playback.
// Play is fire-and-forget: there is no completion callback.
type Player struct {
	otoCtx     *oto.Context
	sampleRate int

	mu      sync.Mutex
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

// NewPlayer initializes the speaker sink at the given sample rate. Fails
// with ErrMediaAccess when no output device is available. The underlying
// audio context is process-global; create one Player per process.
func NewPlayer(sampleRate int) (*Player, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultPlaybackRate
	}

	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: init speaker: %v", ErrMediaAccess, err)
	}
	<-ready

	return &Player{
		otoCtx:     otoCtx,
		sampleRate: sampleRate,
		buf:        make([]byte, 0, sampleRate*2),
	}, nil
}

// Play queues samples recorded at sampleRate for playback, resampling to
// the speaker rate when they differ. Playback starts on the first call and
// proceeds asynchronously.
func (p *Player) Play(samples []float32, sampleRate int) {
	if len(samples) == 0 {
		return
	}
	data := audio.EncodePCM16(audio.Resample(samples, sampleRate, p.sampleRate))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.buf = append(p.buf, data...)

	if !p.playing {
		p.playing = true
		p.player = p.otoCtx.NewPlayer(p)
		p.player.Play()
	}
}

// Read implements io.Reader for the oto player, pulling queued PCM. It
// feeds silence while the queue is empty so playback never glitches between
// deltas.
func (p *Player) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buf) == 0 {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	}

	n := copy(buf, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

// Flush discards all queued audio. Playback resumes with the next Play.
func (p *Player) Flush() {
	p.mu.Lock()
	p.buf = p.buf[:0]
	p.mu.Unlock()
}

// Close stops playback and releases the speaker.
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	p.buf = nil
	player := p.player
	p.player = nil
	p.playing = false
	p.mu.Unlock()

	if player != nil {
		player.Close()
	}
}
