package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-blinker/internal/adc"
	"github.com/sweeney/button-blinker/internal/metrics"
	"github.com/sweeney/button-blinker/internal/status"
)

// adcSampler periodically reads the analog line and publishes the reading
// to the status tracker and metrics.
type adcSampler struct {
	adc     *adc.ADC
	line    int
	period  time.Duration // PWM period the duty cycle is split over
	tracker *status.Tracker
	metrics *metrics.Metrics
	log     *log.Entry
	now     func() time.Time
}

// run samples every interval until ctx is done. A line without an analog
// channel is reported once and never sampled.
func (s *adcSampler) run(ctx context.Context, interval time.Duration) {
	if _, ok := s.adc.Channel(); !ok {
		s.log.WithField("line", s.line).Warn("line has no analog channel, sampling disabled")
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.sample()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *adcSampler) sample() {
	r := status.ADCReading{Line: s.line, Time: s.now()}
	v, err := s.adc.Read()
	if err != nil {
		r.Err = err.Error()
		s.tracker.SetADC(r)
		s.metrics.ADCError()
		s.log.WithError(err).Debug("adc read failed")
		return
	}
	r.Value = v
	r.Duty = float64(v) / adc.Max
	r.On, r.Off = adc.SplitPeriod(r.Duty, s.period)
	s.tracker.SetADC(r)
	s.metrics.SetADC(v, r.Duty)
}
