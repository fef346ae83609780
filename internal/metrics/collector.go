package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/button-blinker/internal/irq"
	"github.com/sweeney/button-blinker/internal/timer"
)

// Collector reads the interrupt controller and timers at scrape time.
type Collector struct {
	stats      func(irq.Vector) irq.Stats
	timers     []*timer.Timer
	gpioErrors func() uint64

	dispatched *prometheus.Desc
	masked     *prometheus.Desc
	coalesced  *prometheus.Desc
	armed      *prometheus.Desc
	counter    *prometheus.Desc
	gpioErrs   *prometheus.Desc
}

// NewCollector creates a collector. gpioErrors may be nil.
func NewCollector(stats func(irq.Vector) irq.Stats, timers []*timer.Timer, gpioErrors func() uint64) *Collector {
	return &Collector{
		stats:      stats,
		timers:     timers,
		gpioErrors: gpioErrors,
		dispatched: prometheus.NewDesc(namespace+"_irq_dispatched_total",
			"Interrupt handler runs", []string{"vector"}, nil),
		masked: prometheus.NewDesc(namespace+"_irq_masked_total",
			"Raises discarded because the vector or pin was disabled", []string{"vector"}, nil),
		coalesced: prometheus.NewDesc(namespace+"_irq_coalesced_total",
			"Raises folded into an already pending interrupt", []string{"vector"}, nil),
		armed: prometheus.NewDesc(namespace+"_timer_armed",
			"Whether the timer's tick interrupt is enabled", []string{"unit"}, nil),
		counter: prometheus.NewDesc(namespace+"_timer_counter",
			"Current tick count of the timer", []string{"unit"}, nil),
		gpioErrs: prometheus.NewDesc(namespace+"_gpio_errors_total",
			"Line writes rejected by the kernel", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.dispatched
	ch <- c.masked
	ch <- c.coalesced
	ch <- c.armed
	ch <- c.counter
	ch <- c.gpioErrs
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for v := irq.Vector(0); v < irq.NumVectors; v++ {
		s := c.stats(v)
		name := v.String()
		ch <- prometheus.MustNewConstMetric(c.dispatched, prometheus.CounterValue, float64(s.Dispatched), name)
		ch <- prometheus.MustNewConstMetric(c.masked, prometheus.CounterValue, float64(s.Masked), name)
		ch <- prometheus.MustNewConstMetric(c.coalesced, prometheus.CounterValue, float64(s.Coalesced), name)
	}
	for _, t := range c.timers {
		if _, ok := t.Vector(); !ok {
			continue
		}
		unit := t.Unit().String()
		ch <- prometheus.MustNewConstMetric(c.armed, prometheus.GaugeValue, boolToFloat(t.Armed()), unit)
		ch <- prometheus.MustNewConstMetric(c.counter, prometheus.GaugeValue, float64(t.Counter()), unit)
	}
	if c.gpioErrors != nil {
		ch <- prometheus.MustNewConstMetric(c.gpioErrs, prometheus.CounterValue, float64(c.gpioErrors()))
	}
}

// Register adds the collector to m's registry.
func (m *Metrics) Register(c *Collector) error {
	return m.reg.Register(c)
}
