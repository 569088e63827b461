package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// MonitorConfig holds level monitor configuration
type MonitorConfig struct {
	SpectrumBins   int           // amplitude buffer size, default 256
	SampleInterval time.Duration // sampling cadence, default 16ms (~60Hz)
}

// DefaultMonitorConfig returns sensible defaults
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SpectrumBins:   256,
		SampleInterval: 16 * time.Millisecond,
	}
}

// Monitor periodically samples an input stream and publishes a loudness
// scalar to subscribers. Publication is last-value-wins: subscribers are
// invoked in the sampling goroutine and slow consumers can read Level()
// instead; there is no queue.
type Monitor struct {
	stream InputStream
	cfg    MonitorConfig
	logger zerolog.Logger

	level atomic.Uint64 // float64 bits of the last sample

	mu      sync.Mutex
	subs    []func(level float64)
	onClose []func(err error)
	started bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMonitor creates a new level monitor over the given stream
func NewMonitor(stream InputStream, cfg MonitorConfig, logger zerolog.Logger) *Monitor {
	if cfg.SpectrumBins <= 0 {
		cfg.SpectrumBins = 256
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 16 * time.Millisecond
	}

	return &Monitor{
		stream: stream,
		cfg:    cfg,
		logger: logger.With().Str("component", "level-monitor").Logger(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a sample consumer. Must be called before Start.
func (m *Monitor) Subscribe(fn func(level float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// OnClose registers a callback invoked once when the stream goes away
// or the monitor is stopped. Must be called before Start.
func (m *Monitor) OnClose(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = append(m.onClose, fn)
}

// Start launches the sampling loop
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.loop()
}

// Stop tears the monitor down. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

// Level returns the most recent loudness sample
func (m *Monitor) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

func (m *Monitor) loop() {
	defer close(m.done)

	bins := make([]byte, m.cfg.SpectrumBins)
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	m.mu.Lock()
	subs := make([]func(float64), len(m.subs))
	copy(subs, m.subs)
	closers := make([]func(error), len(m.onClose))
	copy(closers, m.onClose)
	m.mu.Unlock()

	for {
		select {
		case <-m.stop:
			m.notifyClosed(closers, nil)
			return
		case <-ticker.C:
			if err := m.stream.Read(bins); err != nil {
				m.logger.Warn().Err(err).Msg("Input stream gone, monitor stopping")
				m.notifyClosed(closers, err)
				return
			}

			level := averageMagnitude(bins)
			m.level.Store(math.Float64bits(level))

			// Sequential delivery keeps per-stream sample ordering.
			for _, fn := range subs {
				fn(level)
			}
		}
	}
}

func (m *Monitor) notifyClosed(closers []func(error), err error) {
	for _, fn := range closers {
		fn(err)
	}
}

// averageMagnitude computes the mean of the amplitude bins (0-255 scale)
func averageMagnitude(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bins {
		sum += float64(b)
	}
	return sum / float64(len(bins))
}
