// Package capture provides audio sources for the detection pipeline: live
// microphone capture via miniaudio and 16-bit PCM WAV file playback. Both
// deliver fixed-size chunks of mono int16 samples.
package capture

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// Config configures a microphone source.
type Config struct {
	// SampleRate in Hz.
	SampleRate int

	// ChunkSize is the number of samples per emitted chunk.
	ChunkSize int

	// Device selects a capture device by (case-insensitive substring of its)
	// name. Empty uses the OS default device.
	Device string

	// QueueSize is the chunk channel capacity. Default: 16. When the
	// consumer falls behind, the newest chunks are dropped.
	QueueSize int
}

// Microphone captures live audio and re-frames the driver's variable-size
// callbacks into fixed-size chunks on a channel.
type Microphone struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	chunkSize int
	pending   []int16
	chunks    chan []int16

	lastData  atomic.Int64 // unix nanos of the last driver callback
	dropped   atomic.Int64
	closeOnce sync.Once
}

// OpenMicrophone initialises the capture device and starts delivering
// chunks. Call [Microphone.Close] to release the device.
func OpenMicrophone(cfg Config) (*Microphone, error) {
	if cfg.SampleRate <= 0 || cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("capture: sample_rate %d and chunk_size %d must be positive", cfg.SampleRate, cfg.ChunkSize)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: init audio context: %w", err)
	}

	m := &Microphone{
		ctx:       ctx,
		chunkSize: cfg.ChunkSize,
		pending:   make([]int16, 0, 2*cfg.ChunkSize),
		chunks:    make(chan []int16, cfg.QueueSize),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.Device != "" {
		if id, name, ok := findDevice(ctx, cfg.Device); ok {
			deviceConfig.Capture.DeviceID = id
			slog.Info("selected capture device", "device", name)
		} else {
			slog.Warn("capture device not found, using default", "device", cfg.Device)
		}
	}

	callbacks := malgo.DeviceCallbacks{Data: m.onData}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("capture: init device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("capture: start device: %w", err)
	}

	slog.Info("capture started",
		"sample_rate", device.SampleRate(),
		"chunk_size", cfg.ChunkSize,
	)
	return m, nil
}

// findDevice looks up a capture device whose name contains want.
func findDevice(ctx *malgo.AllocatedContext, want string) (unsafe.Pointer, string, bool) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		slog.Warn("cannot enumerate capture devices", "err", err)
		return nil, "", false
	}
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(want)) {
			return info.ID.Pointer(), info.Name(), true
		}
	}
	return nil, "", false
}

// onData runs on the driver's audio thread. It must not block, so full
// queues drop the chunk instead of waiting.
func (m *Microphone) onData(_, input []byte, frameCount uint32) {
	if len(input) == 0 {
		return
	}
	m.lastData.Store(time.Now().UnixNano())

	samples := unsafe.Slice((*int16)(unsafe.Pointer(&input[0])), int(frameCount))
	m.pending = append(m.pending, samples...)

	for len(m.pending) >= m.chunkSize {
		chunk := make([]int16, m.chunkSize)
		copy(chunk, m.pending[:m.chunkSize])
		m.pending = m.pending[:copy(m.pending, m.pending[m.chunkSize:])]

		select {
		case m.chunks <- chunk:
		default:
			if n := m.dropped.Add(1); n == 1 || n%100 == 0 {
				slog.Warn("consumer falling behind, dropping audio", "dropped", n)
			}
		}
	}
}

// Chunks returns the channel of fixed-size sample chunks. It is closed by
// [Microphone.Close].
func (m *Microphone) Chunks() <-chan []int16 { return m.chunks }

// LastData returns the time of the most recent driver callback, or the zero
// time if none arrived yet. Health checks use it to detect a stalled device.
func (m *Microphone) LastData() time.Time {
	ns := m.lastData.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Dropped returns the number of chunks discarded because the consumer fell
// behind.
func (m *Microphone) Dropped() int64 { return m.dropped.Load() }

// Close stops the device and releases the audio context. The chunk channel
// is closed after the device has stopped, so no callback can race the close.
func (m *Microphone) Close() {
	m.closeOnce.Do(func() {
		if m.device != nil {
			m.device.Uninit()
			m.device = nil
		}
		if m.ctx != nil {
			_ = m.ctx.Uninit()
			m.ctx.Free()
			m.ctx = nil
		}
		close(m.chunks)
	})
}
