// Package status provides a thread-safe view of the daemon for the HTTP
// server and MQTT status events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-blinker/internal/logic"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Environment variables pi-helper writes to /run/pi-helper.env; systemd
// passes them to the daemon through EnvironmentFile.
const (
	EnvNetworkType       = "NETWORK_TYPE"
	EnvNetworkIP         = "NETWORK_IP"
	EnvNetworkStatus     = "NETWORK_STATUS"
	EnvNetworkGateway    = "NETWORK_GATEWAY"
	EnvNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	EnvNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// NetworkFromEnv reads network state with getenv (os.Getenv in production).
// It returns nil when no status is reported.
func NetworkFromEnv(getenv func(string) string) *NetworkInfo {
	st := getenv(EnvNetworkStatus)
	if st == "" {
		return nil
	}
	return &NetworkInfo{
		Type:       getenv(EnvNetworkType),
		IP:         getenv(EnvNetworkIP),
		Status:     st,
		Gateway:    getenv(EnvNetworkGateway),
		WifiStatus: getenv(EnvNetworkWifiStatus),
		SSID:       getenv(EnvNetworkWifiSSID),
	}
}

// Config contains daemon configuration for display.
type Config struct {
	Input1       int
	Input2       int
	Output1      int
	Output2      int
	TickPeriodUs int64
	SettleMs     int64
	Action1Ms    int64
	Action2Ms    int64
	HeartbeatSec int64
	Broker       string
	HTTPAddr     string
	WSBroker     string // websocket URL for browser MQTT, empty = disabled
	EventsTopic  string
}

// ADCReading is the last analog sample.
type ADCReading struct {
	Line  int
	Value uint16
	Duty  float64
	On    time.Duration
	Off   time.Duration
	Err   string
	Time  time.Time
}

// Snapshot is a point-in-time view of daemon state. It is a value type and
// safe to use after the lock is released.
type Snapshot struct {
	Board         logic.Snapshot
	ADC           *ADCReading
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. Coordinator state
// is read live from the board source on every Snapshot.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	board func() logic.Snapshot
	now   func() time.Time
}

// NewTracker creates a Tracker. board may be nil until SetBoard is called.
func NewTracker(startTime time.Time, cfg Config, board func() logic.Snapshot) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		board: board,
		now:   time.Now,
	}
}

// SetBoard sets the coordinator state source.
func (t *Tracker) SetBoard(board func() logic.Snapshot) {
	t.mu.Lock()
	t.board = board
	t.mu.Unlock()
}

// SetConfig replaces the displayed config after a reload.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.snap.Config = cfg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetADC records the last analog sample.
func (t *Tracker) SetADC(r ADCReading) {
	t.mu.Lock()
	t.snap.ADC = &r
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	board := t.board
	t.mu.RUnlock()

	if s.ADC != nil {
		adc := *s.ADC
		s.ADC = &adc
	}
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	if board != nil {
		s.Board = board()
	}
	s.Now = t.now()
	return s
}
