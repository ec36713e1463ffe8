// Package telemetry exports receiver, pipeline and scanner measurements as
// Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roman-kulish/radio-scanner/internal/event"
	"github.com/roman-kulish/radio-scanner/internal/scanner"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
)

const namespace = "scanner"

// Metrics implements sdr.StreamObserver and dsp.Observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	// device
	buffersRead    prometheus.Counter
	samplesRead    prometheus.Counter
	buffersDropped prometheus.Counter
	readErrors     *prometheus.CounterVec
	sampleRate     prometheus.Gauge
	tunedFrequency prometheus.Gauge

	// pipeline
	processing     prometheus.Histogram
	overflows      prometheus.Counter
	signalStrength prometheus.Gauge
	audioLevel     prometheus.Gauge
	squelchOpen    prometheus.Gauge
	sinkErrors     prometheus.Counter

	// scanner
	scannerState     *prometheus.GaugeVec
	scannerFrequency prometheus.Gauge
	activity         *prometheus.CounterVec
}

// New registers the metrics with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		buffersRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "device", Name: "buffers_read_total",
			Help: "IQ buffers read from the device.",
		}),
		samplesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "device", Name: "samples_read_total",
			Help: "Complex samples read from the device.",
		}),
		buffersDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "device", Name: "buffers_dropped_total",
			Help: "IQ buffers discarded because the consumer fell behind.",
		}),
		readErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "device", Name: "read_errors_total",
			Help: "Failed device reads by error class.",
		}, []string{"class"}),
		sampleRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "device", Name: "sample_rate_hertz",
			Help: "Sample rate of the last buffer.",
		}),
		tunedFrequency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "device", Name: "center_frequency_hertz",
			Help: "Center frequency of the last buffer.",
		}),

		processing: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "buffer_processing_seconds",
			Help:    "Time to process one IQ buffer.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		overflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "overflows_total",
			Help: "Buffers that took longer to process than they last.",
		}),
		signalStrength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "signal_strength_db",
			Help: "Peak power near the tuned frequency.",
		}),
		audioLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "audio_level_rms",
			Help: "RMS level of the last audio block.",
		}),
		squelchOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "squelch_open",
			Help: "1 when the squelch passes audio.",
		}),
		sinkErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "audio_sink_errors_total",
			Help: "Failed writes to the audio sink.",
		}),

		scannerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "state",
			Help: "1 for the current scanner state.",
		}, []string{"state"}),
		scannerFrequency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "frequency_hertz",
			Help: "Frequency currently tuned by the scanner.",
		}),
		activity: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scanner", Name: "activity_total",
			Help: "Activity detections by demodulation mode.",
		}, []string{"mode"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) BufferRead(b sdr.IQBuffer) {
	m.buffersRead.Inc()
	m.samplesRead.Add(float64(len(b.Samples)))
	m.sampleRate.Set(b.SampleRate)
	m.tunedFrequency.Set(b.CenterFrequency)
}

func (m *Metrics) BufferDropped() {
	m.buffersDropped.Inc()
}

func (m *Metrics) ReadFailed(err error) {
	m.readErrors.WithLabelValues(errorClass(err)).Inc()
}

func (m *Metrics) BufferProcessed(_ sdr.IQBuffer, elapsed time.Duration) {
	m.processing.Observe(elapsed.Seconds())
}

func (m *Metrics) Overflow() {
	m.overflows.Inc()
}

func (m *Metrics) Levels(signalDB, audioRMS float64, squelchOpen bool) {
	m.signalStrength.Set(signalDB)
	m.audioLevel.Set(audioRMS)
	if squelchOpen {
		m.squelchOpen.Set(1)
	} else {
		m.squelchOpen.Set(0)
	}
}

func (m *Metrics) SinkFailed(error) {
	m.sinkErrors.Inc()
}

// Watch follows scanner events on bus until ctx is done.
func (m *Metrics) Watch(ctx context.Context, bus *event.Bus) {
	if bus == nil {
		return
	}
	events, cancel := bus.Subscribe(64, event.KindScannerState, event.KindScannerTune, event.KindActivity)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.observe(e)
		}
	}
}

func (m *Metrics) observe(e event.Event) {
	switch e := e.(type) {
	case event.ScannerStateChanged:
		for _, k := range []scanner.Kind{scanner.KindIdle, scanner.KindScanning, scanner.KindHolding, scanner.KindPaused} {
			v := 0.0
			if k.String() == e.State {
				v = 1
			}
			m.scannerState.WithLabelValues(k.String()).Set(v)
		}
	case event.ScannerTuned:
		m.scannerFrequency.Set(e.Frequency)
	case event.Activity:
		if e.Detected {
			m.activity.WithLabelValues(e.Mode.String()).Inc()
		}
	}
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, sdr.ErrTimeout):
		return "timeout"
	case errors.Is(err, sdr.ErrConnectionFailed):
		return "connection"
	case errors.Is(err, sdr.ErrClosed):
		return "closed"
	default:
		return "streaming"
	}
}
