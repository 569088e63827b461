package audio

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// MicConfig holds microphone device configuration
type MicConfig struct {
	InputDevice string // substring match on device name; empty = default input
	SampleRate  int
	Channels    int
	FramesPerBuf int
}

// DefaultMicConfig returns sensible defaults
func DefaultMicConfig() MicConfig {
	return MicConfig{
		SampleRate:   16000,
		Channels:     1,
		FramesPerBuf: 1024,
	}
}

// Mic is a portaudio-backed capture device. A single stream feeds both the
// level monitor (latest frame magnitudes via Read) and the recorder (16-bit
// PCM accumulated while capturing, flushed as one WAV chunk on Stop).
type Mic struct {
	cfg    MicConfig
	logger zerolog.Logger
	stream *portaudio.Stream
	buf    []float32

	mu        sync.Mutex
	latest    []float32
	capturing bool
	pcm       []byte
	onChunk   func([]byte)
	closed    bool

	done chan struct{}
}

// OpenMic acquires the microphone and starts the read loop. Failure to
// acquire is reported with the portaudio reason.
func OpenMic(cfg MicConfig, logger zerolog.Logger) (*Mic, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.FramesPerBuf == 0 {
		cfg.FramesPerBuf = 1024
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	dev, err := pickInputDevice(cfg.InputDevice)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuf,
	}

	buf := make([]float32, cfg.FramesPerBuf*cfg.Channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	m := &Mic{
		cfg:    cfg,
		logger: logger.With().Str("component", "mic").Logger(),
		stream: stream,
		buf:    buf,
		done:   make(chan struct{}),
	}

	m.logger.Info().Str("device", dev.Name).Int("sampleRate", cfg.SampleRate).Msg("Microphone acquired")

	go m.readLoop()
	return m, nil
}

func pickInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && containsFold(dev.Name, name) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: no input device matching %q", ErrDeviceUnavailable, name)
}

func (m *Mic) readLoop() {
	defer close(m.done)

	for {
		if err := m.stream.Read(); err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if !closed {
				m.logger.Warn().Err(err).Msg("Mic read failed")
			}
			return
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if m.latest == nil {
			m.latest = make([]float32, len(m.buf))
		}
		copy(m.latest, m.buf)
		if m.capturing {
			m.pcm = appendPCM16(m.pcm, m.buf)
		}
		m.mu.Unlock()
	}
}

// Read implements InputStream: fills bins with per-band magnitudes of the
// most recent frame, scaled to 0-255.
func (m *Mic) Read(bins []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStreamClosed
	}
	if m.latest == nil {
		for i := range bins {
			bins[i] = 0
		}
		return nil
	}

	group := len(m.latest) / len(bins)
	if group < 1 {
		group = 1
	}
	for i := range bins {
		start := i * group
		if start >= len(m.latest) {
			bins[i] = 0
			continue
		}
		end := start + group
		if end > len(m.latest) {
			end = len(m.latest)
		}
		var sum float64
		for _, s := range m.latest[start:end] {
			sum += math.Abs(float64(s))
		}
		v := sum / float64(end-start) * 255
		if v > 255 {
			v = 255
		}
		bins[i] = byte(v)
	}
	return nil
}

// Supports implements CaptureDevice: the mic encodes raw PCM as WAV
func (m *Mic) Supports(enc Encoding) bool {
	return enc == EncodingWAV
}

// OnChunk registers the chunk handler
func (m *Mic) OnChunk(fn func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChunk = fn
}

// Start begins accumulating captured audio
func (m *Mic) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDeviceUnavailable
	}
	m.capturing = true
	m.pcm = m.pcm[:0]
	return nil
}

// Stop ends accumulation and flushes the capture as a single WAV chunk
func (m *Mic) Stop() error {
	m.mu.Lock()
	if !m.capturing {
		m.mu.Unlock()
		return nil
	}
	m.capturing = false
	pcm := m.pcm
	m.pcm = nil
	fn := m.onChunk
	m.mu.Unlock()

	if fn != nil && len(pcm) > 0 {
		fn(WrapWAV(pcm, m.cfg.SampleRate, m.cfg.Channels))
	}
	return nil
}

// Close releases the microphone. Idempotent.
func (m *Mic) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	<-m.done
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	m.logger.Info().Msg("Microphone released")
	return err
}

func appendPCM16(dst []byte, frame []float32) []byte {
	for _, s := range frame {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		dst = append(dst, byte(v), byte(v>>8))
	}
	return dst
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
