package mqtt

import (
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-blinker/internal/events"
)

// Forward publishes press events from bus through p, and output events too
// when outputs is set. Publish failures are logged. The returned func
// unsubscribes.
func Forward(bus *events.Bus, p Publisher, outputs bool, logger *log.Entry) func() {
	publish := func(e events.Event) {
		if err := p.Publish(e); err != nil {
			logger.WithError(err).WithField("event", EventName(e)).Warn("mqtt publish failed")
		}
	}
	unsubs := []func(){
		bus.Subscribe(func(e events.PressEvent) { publish(e) }),
	}
	if outputs {
		unsubs = append(unsubs, bus.Subscribe(func(e events.OutputEvent) { publish(e) }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
