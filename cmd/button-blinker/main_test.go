package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/sweeney/button-blinker/internal/adc"
	"github.com/sweeney/button-blinker/internal/config"
	"github.com/sweeney/button-blinker/internal/events"
	"github.com/sweeney/button-blinker/internal/gpio"
	"github.com/sweeney/button-blinker/internal/logic"
	"github.com/sweeney/button-blinker/internal/metrics"
	"github.com/sweeney/button-blinker/internal/mqtt"
	"github.com/sweeney/button-blinker/internal/status"
)

// --- config layering ---

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	cmd := newRootCmd()
	fs := cmd.PersistentFlags()
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = ":9090"
	applyFlags(testFlags(t, "--broker", "tcp://10.0.0.1:1883", "--chip", "gpiochip4"), &cfg)

	if cfg.MQTT.Broker != "tcp://10.0.0.1:1883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.GPIO.Chip != "gpiochip4" {
		t.Errorf("chip: got %q", cfg.GPIO.Chip)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("unset --http must not override config, got %q", cfg.HTTP.Addr)
	}
}

func TestApplyFlagsEmptyDisables(t *testing.T) {
	cfg := config.Default()
	applyFlags(testFlags(t, "--http="), &cfg)
	if cfg.HTTP.Addr != "" {
		t.Errorf("--http= should disable the server, got %q", cfg.HTTP.Addr)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[timers]\nsettle_ms = 50\n\n[log]\nlevel = \"warn\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvPrefix+"LOG_LEVEL", "debug")

	cfg, err := loadConfig(path, testFlags(t, "--log-level", "error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Timers.SettleMs != 50 {
		t.Errorf("settle_ms from file: got %d", cfg.Timers.SettleMs)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("flag should win over env and file, got %q", cfg.Log.Level)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[timers]\ntick_period_us = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path, testFlags(t)); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadConfigWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[lines]\ninput2 = 25\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path, testFlags(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.warnings) != 1 || !strings.Contains(cfg.warnings[0], "lines.input2") {
		t.Errorf("expected one lines.input2 warning, got %v", cfg.warnings)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"
	cfg.Log.Journal = false
	var buf bytes.Buffer
	logger, err := newLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello")
	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://192.168.1.200:1883"
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.MQTT.ClientID)

	got := statusConfig(cfg, topics)
	if got.Input1 != 12 || got.Output2 != 9 {
		t.Errorf("lines: got %+v", got)
	}
	if got.SettleMs != 300 || got.TickPeriodUs != int64(cfg.Timers.TickPeriodUs) {
		t.Errorf("timers: got %+v", got)
	}
	if got.WSBroker != "ws://192.168.1.200:9001" {
		t.Errorf("ws broker: got %q", got.WSBroker)
	}
	if got.EventsTopic != "blinker/button-blinker/events" {
		t.Errorf("events topic: got %q", got.EventsTopic)
	}
}

func TestReloadedStatusConfig(t *testing.T) {
	cfg := config.Default()
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.MQTT.ClientID)
	running := statusConfig(cfg, topics)

	next := cfg
	next.Timers.SettleMs = 120
	next.Timers.Action1Ms = 250
	next.Timers.Action2Ms = 900
	next.Timers.TickPeriodUs = 1000
	next.Lines.Input1 = 3
	next.Lines.Output2 = 4
	next.MQTT.Broker = "tcp://elsewhere:1883"

	got := reloadedStatusConfig(running, next)
	if got.SettleMs != 120 || got.Action1Ms != 250 || got.Action2Ms != 900 {
		t.Errorf("durations not updated: %+v", got)
	}
	want := running
	want.SettleMs, want.Action1Ms, want.Action2Ms = 120, 250, 900
	if got != want {
		t.Errorf("settings that need a restart changed:\n got %+v\nwant %+v", got, want)
	}
}

// --- state command ---

func TestPrintState(t *testing.T) {
	chip := gpio.NewFakeChip()
	chip.Drive(12, true)
	cfg := config.Default()

	var buf bytes.Buffer
	if err := printState(&buf, chip, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "input1 (line 12): ACTIVE\ninput2 (line 13): INACTIVE\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
	if chip.Claimed(12) || chip.Claimed(13) {
		t.Error("lines must be released after reading")
	}
}

func TestPrintStateUnbound(t *testing.T) {
	cfg := config.Default()
	cfg.Lines.Input2 = 30
	var buf bytes.Buffer
	if err := printState(&buf, gpio.NewFakeChip(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "input2 (line 30): UNBOUND") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestPrintStateRequestError(t *testing.T) {
	chip := gpio.NewFakeChip()
	chip.RequestError = errors.New("busy")
	if err := printState(io.Discard, chip, config.Default()); err == nil {
		t.Error("expected error")
	}
}

// --- main loop ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from the loop goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func discardEntry() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

func newTestLoop(pub *mqtt.FakePublisher, tracker *status.Tracker) (*loop, *[]string) {
	var notified []string
	return &loop{
		publisher:  pub,
		mqttStatus: pub,
		tracker:    tracker,
		log:        discardEntry(),
		now:        fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute),
		getenv:     func(string) string { return "" },
		notify:     func(s string) { notified = append(notified, s) },
	}, &notified
}

// runTestLoop drives the loop with the given heartbeats and watchdog ticks,
// then sends signal.
func runTestLoop(t *testing.T, l *loop, heartbeats, watchdogs int, signal os.Signal) error {
	t.Helper()
	hb := make(chan time.Time)
	wd := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.run(hb, wd, sig)
	}()

	for i := 0; i < heartbeats; i++ {
		hb <- time.Time{}
	}
	for i := 0; i < watchdogs; i++ {
		wd <- time.Time{}
	}
	sig <- signal

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return after signal")
		return nil
	}
}

func testTracker() *status.Tracker {
	board := func() logic.Snapshot {
		var s logic.Snapshot
		s.Channels[0].Presses = 3
		s.GroupEnabled = true
		return s
	}
	return status.NewTracker(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC), status.Config{Broker: "tcp://b:1883"}, board)
}

func TestLoopShutdownSIGTERM(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	l, _ := newTestLoop(pub, testTracker())

	if err := runTestLoop(t, l, 0, 0, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	sys := pub.SystemEvents()
	if len(sys) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(sys))
	}
	se := sys[0]
	if se.Event != mqtt.SystemShutdown {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}

	var got status.StatusJSON
	if err := json.Unmarshal(se.RawPayload, &got); err != nil {
		t.Fatalf("shutdown payload is not status JSON: %v", err)
	}
	if got.Status.Event != "SHUTDOWN" || got.Status.Reason != "SIGTERM" {
		t.Errorf("payload event/reason: got %q/%q", got.Status.Event, got.Status.Reason)
	}
}

func TestLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	l, _ := newTestLoop(pub, testTracker())

	if err := runTestLoop(t, l, 0, 0, syscall.SIGINT); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
	sys := pub.SystemEvents()
	if len(sys) != 1 || sys[0].Reason != "SIGINT" {
		t.Fatalf("expected one SHUTDOWN with reason SIGINT, got %+v", sys)
	}
}

func TestLoopShutdownWithoutTracker(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	l, _ := newTestLoop(pub, nil)

	if err := runTestLoop(t, l, 1, 0, syscall.SIGHUP); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
	sys := pub.SystemEvents()
	if len(sys) != 2 {
		t.Fatalf("expected HEARTBEAT and SHUTDOWN, got %d events", len(sys))
	}
	if sys[1].Reason != "UNKNOWN" || sys[1].RawPayload != nil {
		t.Errorf("unexpected shutdown event %+v", sys[1])
	}
}

func TestLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := testTracker()
	l, _ := newTestLoop(pub, tracker)

	if err := runTestLoop(t, l, 2, 0, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	var heartbeats int
	for _, se := range pub.SystemEvents() {
		if se.Event != mqtt.SystemHeartbeat {
			continue
		}
		heartbeats++
		if se.Retained {
			t.Error("HEARTBEAT should not be retained")
		}
		var got status.StatusJSON
		if err := json.Unmarshal(se.RawPayload, &got); err != nil {
			t.Fatalf("heartbeat payload is not status JSON: %v", err)
		}
		if got.Status.Event != "HEARTBEAT" {
			t.Errorf("payload event: got %q", got.Status.Event)
		}
		if !got.Status.MQTT.Connected {
			t.Error("heartbeat should refresh MQTT connection state")
		}
		if len(got.Status.Channels) != 2 || got.Status.Channels[0].Presses != 3 {
			t.Errorf("channels: got %+v", got.Status.Channels)
		}
	}
	if heartbeats != 2 {
		t.Errorf("expected 2 HEARTBEAT events, got %d", heartbeats)
	}
}

func TestLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	env := map[string]string{
		status.EnvNetworkStatus:     "connected",
		status.EnvNetworkType:       "wifi",
		status.EnvNetworkIP:         "192.168.1.42",
		status.EnvNetworkGateway:    "192.168.1.1",
		status.EnvNetworkWifiStatus: "associated",
		status.EnvNetworkWifiSSID:   "HomeNet",
	}

	pub := mqtt.NewFakePublisher()
	l, _ := newTestLoop(pub, testTracker())
	l.getenv = func(k string) string { return env[k] }
	if err := runTestLoop(t, l, 1, 0, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	hb := pub.SystemEvents()[0]
	if hb.Event != mqtt.SystemHeartbeat {
		t.Fatalf("expected HEARTBEAT first, got %q", hb.Event)
	}
	var got status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &got); err != nil {
		t.Fatal(err)
	}
	n := got.Status.Network
	if n == nil {
		t.Fatal("HEARTBEAT payload missing network info")
	}
	if n.IP != "192.168.1.42" || n.SSID != "HomeNet" || n.WifiStatus != "associated" {
		t.Errorf("network: got %+v", n)
	}
}

func TestLoopPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker unavailable")
	l, _ := newTestLoop(pub, testTracker())

	if err := runTestLoop(t, l, 1, 0, syscall.SIGTERM); err != nil {
		t.Fatalf("publish errors must not stop the loop: %v", err)
	}
}

func TestLoopWatchdog(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	l, notified := newTestLoop(pub, testTracker())

	if err := runTestLoop(t, l, 0, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
	if len(*notified) != 3 {
		t.Fatalf("expected 3 notifications, got %v", *notified)
	}
	for _, s := range *notified {
		if s != daemon.SdNotifyWatchdog {
			t.Errorf("expected %q, got %q", daemon.SdNotifyWatchdog, s)
		}
	}
}

// --- event logging ---

func TestLogEvents(t *testing.T) {
	l := log.New()
	l.SetLevel(log.DebugLevel)
	var buf syncBuffer
	l.SetOutput(&buf)

	bus := events.New()
	unsub := logEvents(bus, log.NewEntry(l))
	defer unsub()

	bus.Pressed(2, true)
	bus.SettleChanged(true) // trace, filtered

	deadline := time.Now().Add(time.Second)
	for !strings.Contains(buf.String(), "press") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	out := buf.String()
	if !strings.Contains(out, "channel=2") || !strings.Contains(out, "blinking=true") {
		t.Errorf("unexpected log output %q", out)
	}
	if strings.Contains(out, "settle") {
		t.Errorf("settle events are trace level, got %q", out)
	}
}

// --- ADC sampling ---

type fakeSampler struct {
	value uint16
	err   error
	calls int
}

func (f *fakeSampler) Sample(int) (uint16, error) {
	f.calls++
	return f.value, f.err
}

func TestADCSample(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{}, nil)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &adcSampler{
		adc:     adc.New(14, &fakeSampler{value: adc.Max}),
		line:    14,
		period:  10 * time.Millisecond,
		tracker: tracker,
		metrics: metrics.New(),
		log:     discardEntry(),
		now:     func() time.Time { return at },
	}
	s.sample()

	r := tracker.Snapshot().ADC
	if r == nil {
		t.Fatal("expected an ADC reading")
	}
	if r.Value != adc.Max || r.Duty != 1 {
		t.Errorf("value/duty: got %d/%v", r.Value, r.Duty)
	}
	if r.On != 10*time.Millisecond || r.Off != 0 {
		t.Errorf("pwm: got on=%v off=%v", r.On, r.Off)
	}
	if !r.Time.Equal(at) || r.Err != "" {
		t.Errorf("unexpected reading %+v", r)
	}
}

func TestADCUnboundLineNotSampled(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{}, nil)
	f := &fakeSampler{value: adc.Max}
	buf := &syncBuffer{}
	l := log.New()
	l.SetOutput(buf)
	s := &adcSampler{
		adc:     adc.New(8, f),
		line:    8,
		tracker: tracker,
		metrics: metrics.New(),
		log:     log.NewEntry(l),
		now:     time.Now,
	}

	done := make(chan struct{})
	go func() {
		s.run(context.Background(), time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler should return for a line without an analog channel")
	}
	if r := tracker.Snapshot().ADC; r != nil {
		t.Errorf("expected no reading, got %+v", r)
	}
	if f.calls != 0 {
		t.Errorf("sampler called %d times", f.calls)
	}
	if !strings.Contains(buf.String(), "sampling disabled") {
		t.Errorf("expected a warning, got %q", buf.String())
	}
}

func TestADCSampleError(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{}, nil)
	s := &adcSampler{
		adc:     adc.New(14, &fakeSampler{err: errors.New("eio")}),
		line:    14,
		tracker: tracker,
		metrics: metrics.New(),
		log:     discardEntry(),
		now:     time.Now,
	}
	s.sample()

	r := tracker.Snapshot().ADC
	if r == nil || r.Err == "" {
		t.Fatalf("expected an error reading, got %+v", r)
	}
}
