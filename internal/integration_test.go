package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-blinker/internal/board"
	"github.com/sweeney/button-blinker/internal/config"
	"github.com/sweeney/button-blinker/internal/events"
	"github.com/sweeney/button-blinker/internal/gpio"
	"github.com/sweeney/button-blinker/internal/irq"
	"github.com/sweeney/button-blinker/internal/metrics"
	"github.com/sweeney/button-blinker/internal/mqtt"
	"github.com/sweeney/button-blinker/internal/status"
	"github.com/sweeney/button-blinker/internal/timer"
)

const (
	settleTicks = 5
	actionTicks = 3
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Timers.TickPeriodUs = 1000
	cfg.Timers.SettleMs = settleTicks
	cfg.Timers.Action1Ms = actionTicks
	cfg.Timers.Action2Ms = actionTicks
	cfg.Startup.SelfTestMs = 0
	return cfg
}

func discard() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

// system wires the daemon's parts together the way the command does, with
// fakes at the edges. Ticks and edges are dispatched synchronously.
type system struct {
	chip    *gpio.FakeChip
	ctrl    *irq.Controller
	bus     *events.Bus
	board   *board.Board
	pub     *mqtt.FakePublisher
	metrics *metrics.Metrics
	tracker *status.Tracker
}

func newSystem(t *testing.T, cfg config.Config) *system {
	t.Helper()
	s := &system{
		chip: gpio.NewFakeChip(),
		ctrl: irq.NewController(),
		bus:  events.New(),
		pub:  mqtt.NewFakePublisher(),
	}
	b, err := board.New(cfg, s.chip, s.ctrl, s.bus)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	s.board = b
	t.Cleanup(func() { b.Close() })

	s.metrics = metrics.New()
	t.Cleanup(s.metrics.Subscribe(s.bus))
	t.Cleanup(mqtt.Forward(s.bus, s.pub, true, discard()))

	s.tracker = status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{
		Input1:  cfg.Lines.Input1,
		Input2:  cfg.Lines.Input2,
		Output1: cfg.Lines.Output1,
		Output2: cfg.Lines.Output2,
	}, b.Snapshot)

	b.Start()
	return s
}

func (s *system) drive(line int, level bool) {
	s.chip.Drive(line, level)
	s.ctrl.DispatchPending()
}

func (s *system) tick(tm *timer.Timer, n int) {
	v, ok := tm.Vector()
	if !ok {
		return
	}
	for range n {
		tm.Post(1)
		s.ctrl.Raise(v)
		s.ctrl.DispatchPending()
	}
}

func (s *system) settle()         { s.tick(s.board.Timers()[0], settleTicks) }
func (s *system) action(n int)    { s.tick(s.board.Timers()[n], actionTicks) }
func (s *system) published() int  { return len(s.pub.Events()) }
func (s *system) names() []string { return eventNames(s.pub.Events()) }

func eventNames(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = mqtt.EventName(e)
	}
	return out
}

// waitFor polls cond until it holds; bus delivery is asynchronous.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func count(names []string, name string) int {
	n := 0
	for _, s := range names {
		if s == name {
			n++
		}
	}
	return n
}

// TestIntegrationFullFlow presses button 1, lets it blink one full cycle,
// then presses it again to stop it.
func TestIntegrationFullFlow(t *testing.T) {
	s := newSystem(t, testConfig())

	s.drive(12, true)
	s.chip.Bounce(12)
	s.ctrl.DispatchPending()
	s.settle()

	s.action(1)
	if !s.chip.Level(8) {
		t.Fatal("output 1 should be on after one action period")
	}
	s.action(1)
	if s.chip.Level(8) {
		t.Fatal("output 1 should be off after two action periods")
	}

	s.drive(12, false)
	s.settle()
	s.drive(12, true)
	s.settle()

	waitFor(t, "4 published events", func() bool { return s.published() >= 4 })
	names := s.names()
	if count(names, "PRESS") != 2 || count(names, "OUTPUT_ON") != 1 || count(names, "OUTPUT_OFF") != 1 {
		t.Fatalf("unexpected events %v", names)
	}

	var presses []events.PressEvent
	for _, e := range s.pub.Events() {
		if p, ok := e.(events.PressEvent); ok {
			presses = append(presses, p)
		}
	}
	if !presses[0].Blinking || presses[1].Blinking {
		t.Errorf("first press should start and second stop blinking, got %+v", presses)
	}

	snap := s.board.Snapshot()
	if snap.Channels[0].Presses != 2 {
		t.Errorf("expected 2 recognised presses, got %d", snap.Channels[0].Presses)
	}
	if snap.Channels[0].Timer.Armed {
		t.Error("action timer 1 should be disarmed after the second press")
	}
	if !snap.GroupEnabled || snap.Settle.Armed {
		t.Errorf("window should be closed: %+v", snap)
	}
	if st := s.ctrl.Stats(irq.PinChangeB); st.Masked != 1 {
		t.Errorf("expected the bounce to be masked once, got %+v", st)
	}
}

// TestIntegrationStopWhileLit checks that stopping a lit channel turns its
// output off and reports it.
func TestIntegrationStopWhileLit(t *testing.T) {
	s := newSystem(t, testConfig())

	s.drive(13, true)
	s.settle()
	s.action(2)
	if !s.chip.Level(9) {
		t.Fatal("output 2 should be lit")
	}
	s.drive(13, false)
	s.settle()
	s.drive(13, true)

	if s.chip.Level(9) {
		t.Error("stopping a lit channel must turn its output off")
	}
	waitFor(t, "OUTPUT_OFF", func() bool { return count(s.names(), "OUTPUT_OFF") == 1 })
	if s.chip.Level(8) {
		t.Error("channel 1 must not be affected")
	}
}

// TestIntegrationPublishFailure checks that a broken broker never stalls
// button handling.
func TestIntegrationPublishFailure(t *testing.T) {
	s := newSystem(t, testConfig())
	s.pub.PublishError = errors.New("broker unavailable")

	s.drive(12, true)
	s.settle()
	s.action(1)

	if !s.chip.Level(8) {
		t.Error("output should blink regardless of publish errors")
	}
	if got := s.board.Snapshot().Channels[0].Presses; got != 1 {
		t.Errorf("expected 1 press, got %d", got)
	}
}

// TestIntegrationStatusEvent checks the status payload built from live
// board state, as sent with STARTUP, HEARTBEAT and SHUTDOWN.
func TestIntegrationStatusEvent(t *testing.T) {
	s := newSystem(t, testConfig())
	s.drive(12, true)

	snap := s.tracker.Snapshot()
	if err := s.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.SystemHeartbeat,
		RawPayload: status.FormatStatusEvent(snap, mqtt.SystemHeartbeat, ""),
	}); err != nil {
		t.Fatal(err)
	}

	payloads := s.pub.SystemPayloads()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 system payload, got %d", len(payloads))
	}
	var got status.StatusJSON
	if err := json.Unmarshal(payloads[0], &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	st := got.Status
	if st.Event != "HEARTBEAT" {
		t.Errorf("event: got %q", st.Event)
	}
	if !st.Debounce.Open || st.Debounce.GroupEnabled {
		t.Errorf("debounce window should be open: %+v", st.Debounce)
	}
	if len(st.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(st.Channels))
	}
	ch := st.Channels[0]
	if !ch.Pressed || !ch.Blinking || ch.Presses != 1 || ch.InputLine != 12 {
		t.Errorf("channel 1: got %+v", ch)
	}
	if st.Config.Lines.Output2 != 9 {
		t.Errorf("config lines: got %+v", st.Config.Lines)
	}
}

// TestIntegrationHotReload checks that editing the config file retargets
// the running timers.
func TestIntegrationHotReload(t *testing.T) {
	cfg := testConfig()
	s := newSystem(t, cfg)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[timers]\ntick_period_us = 1000\nsettle_ms = 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := config.NewWatcher(path, config.Load, s.board.Apply, discard())
	w.SetDebounce(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[timers]\ntick_period_us = 1000\nsettle_ms = 40\naction1_ms = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "settle retarget", func() bool { return s.board.Timers()[0].Target() == 40 })
	if got := s.board.Timers()[1].Target(); got != 7 {
		t.Errorf("action1 target: got %d, want 7", got)
	}
}
