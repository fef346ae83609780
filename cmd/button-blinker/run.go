package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/sweeney/button-blinker/internal/adc"
	"github.com/sweeney/button-blinker/internal/board"
	"github.com/sweeney/button-blinker/internal/config"
	"github.com/sweeney/button-blinker/internal/events"
	"github.com/sweeney/button-blinker/internal/gpio"
	"github.com/sweeney/button-blinker/internal/irq"
	"github.com/sweeney/button-blinker/internal/logging"
	"github.com/sweeney/button-blinker/internal/metrics"
	"github.com/sweeney/button-blinker/internal/mqtt"
	"github.com/sweeney/button-blinker/internal/status"
	"github.com/sweeney/button-blinker/internal/web"
)

func run(ctx context.Context, cfg config.Config, configPath string, fs *pflag.FlagSet, logger *log.Logger) error {
	// Initialize GPIO
	chip, err := gpio.NewCdevChip(cdevOptions(cfg))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	ctrl := irq.NewController()
	bus := events.New()
	b, err := board.New(cfg, chip, ctrl, bus)
	if err != nil {
		return fmt.Errorf("init board: %w", err)
	}
	defer b.Close()

	b.SelfTest(time.Duration(cfg.Startup.SelfTestMs)*time.Millisecond, cfg.Lines.OutputStartActive)

	m := metrics.New()
	defer m.Subscribe(bus)()
	if err := m.Register(metrics.NewCollector(ctrl.Stats, b.Timers(), chip.Errors)); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.MQTT.ClientID)

	// Initialize status tracker (before STARTUP so snapshot is available)
	startCfg := statusConfig(cfg, topics)
	tracker := status.NewTracker(time.Now(), startCfg, b.Snapshot)
	if net := status.NetworkFromEnv(os.Getenv); net != nil {
		tracker.SetNetwork(net)
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Topics:     topics,
			BufferSize: cfg.MQTT.BufferSize,
			OnConnectionChange: func(connected bool) {
				tracker.SetMQTTConnected(connected)
				m.SetMQTTConnected(connected)
			},
			Logger: logging.Component(logger, "mqtt"),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
		tracker.SetMQTTConnected(p.IsConnected())
	}
	defer publisher.Close()
	defer mqtt.Forward(bus, publisher, cfg.MQTT.PublishOutputs, logging.Component(logger, "mqtt"))()
	defer logEvents(bus, logging.Component(logger, "coordinator"))()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.SystemStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.SystemStartup, ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.WithError(err).Warn("failed to publish startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.WithField("addr", cfg.HTTP.Addr).Info("http status server listening")
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		ctrl.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		b.RunCircuits(ctx)
	}()

	if cfg.ADC.Enabled {
		a := adc.New(cfg.ADC.Line, adc.NewIIOSampler(cfg.ADC.Device, cfg.ADC.Bits))
		s := &adcSampler{
			adc:     a,
			line:    cfg.ADC.Line,
			period:  time.Duration(cfg.ADC.PWMPeriodMs) * time.Millisecond,
			tracker: tracker,
			metrics: m,
			log:     logging.Component(logger, "adc"),
			now:     time.Now,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(ctx, time.Duration(cfg.ADC.SampleIntervalMs)*time.Millisecond)
		}()
	}

	if configPath != "" {
		w := config.NewWatcher(configPath, func(p string) (config.Config, error) {
			c, err := config.LoadWithEnv(p)
			if err != nil {
				return c, err
			}
			applyFlags(fs, &c)
			return c, nil
		}, func(c config.Config) {
			b.Apply(c)
			tracker.SetConfig(reloadedStatusConfig(startCfg, c))
			if err := logging.Apply(logger, c.Log.Level, c.Log.Format); err != nil {
				logger.WithError(err).Warn("log settings not applied")
			}
		}, logging.Component(logger, "config"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.WithError(err).Warn("config watcher stopped")
			}
		}()
	}

	b.Start()
	logger.WithFields(log.Fields{
		"settle":    cfg.SettleDuration(),
		"action1":   cfg.ActionDuration(1),
		"action2":   cfg.ActionDuration(2),
		"broker":    cfg.MQTT.Broker,
		"heartbeat": cfg.Heartbeat(),
	}).Info("started")

	notify := func(state string) {
		if _, err := daemon.SdNotify(false, state); err != nil {
			logger.WithError(err).Debug("sd_notify failed")
		}
	}
	notify(daemon.SdNotifyReady)

	var heartbeat, watchdog <-chan time.Time
	if hb := cfg.Heartbeat(); hb > 0 {
		t := time.NewTicker(hb)
		defer t.Stop()
		heartbeat = t.C
	}
	if wd, err := daemon.SdWatchdogEnabled(false); err == nil && wd > 0 {
		t := time.NewTicker(wd / 2)
		defer t.Stop()
		watchdog = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	l := &loop{
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		log:        logging.Component(logger, "daemon"),
		now:        time.Now,
		getenv:     os.Getenv,
		notify:     notify,
	}
	err = l.run(heartbeat, watchdog, sigCh)
	notify(daemon.SdNotifyStopping)
	return err
}

// loop is the daemon's main select: heartbeats, watchdog pings and
// shutdown signals. Button handling runs on the controller goroutine.
type loop struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	log        *log.Entry
	now        func() time.Time
	getenv     func(string) string
	notify     func(state string)
}

func (l *loop) run(heartbeat, watchdog <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			l.log.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: l.now(),
				Event:     mqtt.SystemShutdown,
				Reason:    signalName,
				Retained:  true,
			}
			if l.tracker != nil {
				l.refresh(false)
				event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), mqtt.SystemShutdown, signalName)
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				l.log.WithError(err).Warn("failed to publish shutdown event")
			} else {
				l.log.Info("published shutdown event")
			}
			return nil

		case <-heartbeat:
			event := mqtt.SystemEvent{
				Timestamp: l.now(),
				Event:     mqtt.SystemHeartbeat,
			}
			if l.tracker != nil {
				l.refresh(true)
				snap := l.tracker.Snapshot()
				ch := snap.Board.Channels
				l.log.WithFields(log.Fields{
					"uptime":    snap.Uptime().Round(time.Second),
					"presses1":  ch[0].Presses,
					"presses2":  ch[1].Presses,
					"windows":   snap.Board.SettleWindows,
					"connected": snap.MQTTConnected,
				}).Info("heartbeat")
				event.RawPayload = status.FormatStatusEvent(snap, mqtt.SystemHeartbeat, "")
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				l.log.WithError(err).Warn("heartbeat publish error")
			}

		case <-watchdog:
			if l.notify != nil {
				l.notify(daemon.SdNotifyWatchdog)
			}
		}
	}
}

// refresh updates the tracker fields that are polled rather than pushed.
func (l *loop) refresh(network bool) {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	if !network {
		return
	}
	if net := status.NetworkFromEnv(l.getenv); net != nil {
		l.tracker.SetNetwork(net)
	}
}

func statusConfig(cfg config.Config, topics mqtt.Topics) status.Config {
	return status.Config{
		Input1:       cfg.Lines.Input1,
		Input2:       cfg.Lines.Input2,
		Output1:      cfg.Lines.Output1,
		Output2:      cfg.Lines.Output2,
		TickPeriodUs: int64(cfg.Timers.TickPeriodUs),
		SettleMs:     int64(cfg.Timers.SettleMs),
		Action1Ms:    int64(cfg.Timers.Action1Ms),
		Action2Ms:    int64(cfg.Timers.Action2Ms),
		HeartbeatSec: int64(cfg.MQTT.HeartbeatSec),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		WSBroker:     cfg.ResolveWSBroker(),
		EventsTopic:  topics.Events,
	}
}

// reloadedStatusConfig updates the durations Board.Apply retargets. Lines,
// tick period and endpoints keep their startup values until a restart.
func reloadedStatusConfig(running status.Config, cfg config.Config) status.Config {
	running.SettleMs = int64(cfg.Timers.SettleMs)
	running.Action1Ms = int64(cfg.Timers.Action1Ms)
	running.Action2Ms = int64(cfg.Timers.Action2Ms)
	return running
}

// logEvents logs every coordinator event on logger.
func logEvents(bus *events.Bus, logger *log.Entry) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.PressEvent) {
			logger.WithFields(log.Fields{"channel": e.Channel, "blinking": e.Blinking}).Info("press")
		}),
		bus.Subscribe(func(e events.OutputEvent) {
			logger.WithFields(log.Fields{"channel": e.Channel, "active": e.Active}).Debug("output")
		}),
		bus.Subscribe(func(e events.SettleEvent) {
			logger.WithField("open", e.Open).Trace("settle")
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// discardPublisher stands in when no broker is configured.
type discardPublisher struct{}

func (discardPublisher) Publish(events.Event) error           { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }
