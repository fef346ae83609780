// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/button-blinker/internal/events"
)

const namespace = "blinker"

// Metrics holds the event-driven metrics. Hardware counters are exported by
// Collector.
type Metrics struct {
	reg *prometheus.Registry

	presses       *prometheus.CounterVec
	toggles       *prometheus.CounterVec
	outputActive  *prometheus.GaugeVec
	settleWindows prometheus.Counter
	settleOpen    prometheus.Gauge
	adcValue      prometheus.Gauge
	adcDuty       prometheus.Gauge
	adcErrors     prometheus.Counter
	mqttConnected prometheus.Gauge
}

// New registers the metrics on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		presses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presses_total",
			Help:      "Recognised button presses",
		}, []string{"channel"}),
		toggles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_changes_total",
			Help:      "Output line changes driven by the coordinator",
		}, []string{"channel"}),
		outputActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_active",
			Help:      "Whether the output line is active (1) or not (0)",
		}, []string{"channel"}),
		settleWindows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settle_windows_total",
			Help:      "Debounce windows opened",
		}),
		settleOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "settle_open",
			Help:      "Whether a debounce window is open",
		}),
		adcValue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "adc_value",
			Help:      "Last analog reading (0-1023)",
		}),
		adcDuty: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "adc_duty_ratio",
			Help:      "Last analog reading as a duty cycle (0-1)",
		}),
		adcErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adc_errors_total",
			Help:      "Failed analog reads",
		}),
		mqttConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "Whether the MQTT client is connected",
		}),
	}
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Subscribe feeds the metrics from bus. The returned func unsubscribes.
func (m *Metrics) Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(m.ObservePress),
		bus.Subscribe(m.ObserveOutput),
		bus.Subscribe(m.ObserveSettle),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// ObservePress records a press.
func (m *Metrics) ObservePress(e events.PressEvent) {
	m.presses.WithLabelValues(strconv.Itoa(e.Channel)).Inc()
}

// ObserveOutput records an output change.
func (m *Metrics) ObserveOutput(e events.OutputEvent) {
	ch := strconv.Itoa(e.Channel)
	m.toggles.WithLabelValues(ch).Inc()
	m.outputActive.WithLabelValues(ch).Set(boolToFloat(e.Active))
}

// ObserveSettle records the opening or closing of a debounce window.
func (m *Metrics) ObserveSettle(e events.SettleEvent) {
	if e.Open {
		m.settleWindows.Inc()
	}
	m.settleOpen.Set(boolToFloat(e.Open))
}

// SetADC records an analog reading.
func (m *Metrics) SetADC(value uint16, duty float64) {
	m.adcValue.Set(float64(value))
	m.adcDuty.Set(duty)
}

// ADCError counts a failed analog read.
func (m *Metrics) ADCError() {
	m.adcErrors.Inc()
}

// SetMQTTConnected records the MQTT connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	m.mqttConnected.Set(boolToFloat(connected))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
