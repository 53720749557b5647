// Package audiodev adapts the platform audio devices: microphone capture
// delivering fixed-size float32 blocks, and fire-and-forget speaker
// playback of decoded samples.
package audiodev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrMediaAccess is returned when the platform denies the microphone or
// lacks audio capability.
var ErrMediaAccess = errors.New("audiodev: microphone unavailable or access denied")

// ErrAlreadyCapturing is returned when starting capture while it is running.
var ErrAlreadyCapturing = errors.New("audiodev: already capturing")

// DefaultBlockSize is the number of samples per capture block.
const DefaultBlockSize = 4096

// DefaultCaptureRate is the capture sample rate requested from the device.
const DefaultCaptureRate = 48000

// CaptureConfig holds configuration for microphone capture.
type CaptureConfig struct {
	SampleRate int // default 48000
	BlockSize  int // samples per callback block, default 4096
}

// Capture owns an exclusive microphone handle and delivers the captured
// signal to a caller-supplied callback in fixed-size blocks of float32
// samples in [-1, 1].
type Capture struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	asm     *BlockAssembler
	running bool

	sampleRate int
	blockSize  int
}

// NewCapture initializes the audio backend. Fails with ErrMediaAccess when
// the platform has no usable audio context.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultCaptureRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrMediaAccess, err)
	}

	return &Capture{
		ctx:        ctx,
		sampleRate: cfg.SampleRate,
		blockSize:  cfg.BlockSize,
	}, nil
}

// SampleRate returns the configured capture rate.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

// Start acquires the microphone and begins delivering blocks to onBlock.
// Each invocation carries exactly BlockSize samples. Fails with
// ErrMediaAccess if the device cannot be opened.
func (c *Capture) Start(onBlock func(samples []float32)) error {
	if onBlock == nil {
		return errors.New("audiodev: nil block callback")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyCapturing
	}

	c.asm = NewBlockAssembler(c.blockSize, onBlock)

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(c.sampleRate)
	deviceCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			c.asm.Push(decodeF32LE(input, int(frameCount)))
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("%w: init device: %v", ErrMediaAccess, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("%w: start device: %v", ErrMediaAccess, err)
	}

	c.device = device
	c.running = true
	return nil
}

// Stop releases the capture handle. The device stop is synchronous: no
// further block callbacks fire after Stop returns. Safe to call when not
// capturing.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.device.Stop()
	c.device.Uninit()
	c.device = nil
	c.asm = nil
	c.running = false
}

// IsCapturing reports whether capture is running.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Close stops capture and tears down the audio backend.
func (c *Capture) Close() {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

// decodeF32LE converts the device's little-endian float32 frames to samples.
func decodeF32LE(data []byte, frames int) []float32 {
	if frames*4 > len(data) {
		frames = len(data) / 4
	}
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}
