package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/button-blinker/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Debounce      DebounceJSON  `json:"debounce"`
	Channels      []ChannelJSON `json:"channels"`
	ADC           *ADCJSON      `json:"adc,omitempty"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// DebounceJSON reports the settle window.
type DebounceJSON struct {
	Open         bool   `json:"open"`
	GroupEnabled bool   `json:"group_enabled"`
	Windows      uint64 `json:"windows"`
	Ignored      uint64 `json:"ignored"`
	Counter      uint32 `json:"counter"`
	Target       uint32 `json:"target"`
	Unit         string `json:"unit"`
	Period       string `json:"period"`
}

// ChannelJSON reports one button/LED channel.
type ChannelJSON struct {
	Channel      int    `json:"channel"`
	InputLine    int    `json:"input_line"`
	Pressed      bool   `json:"pressed"`
	Armed        bool   `json:"interrupt_armed"`
	OutputLine   int    `json:"output_line"`
	OutputActive bool   `json:"output_active"`
	Blinking     bool   `json:"blinking"`
	Unit         string `json:"unit"`
	Period       string `json:"period"`
	Presses      uint64 `json:"presses"`
	Toggles      uint64 `json:"toggles"`
}

// ADCJSON reports the last analog sample.
type ADCJSON struct {
	Line      int     `json:"line"`
	Value     uint16  `json:"value"`
	Duty      float64 `json:"duty"`
	OnMicros  int64   `json:"on_us"`
	OffMicros int64   `json:"off_us"`
	Error     string  `json:"error,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Lines        LinesJSON `json:"lines"`
	TickPeriodUs int64     `json:"tick_period_us"`
	SettleMs     int64     `json:"settle_ms"`
	Action1Ms    int64     `json:"action1_ms"`
	Action2Ms    int64     `json:"action2_ms"`
	HeartbeatSec int64     `json:"heartbeat_sec"`
	Broker       string    `json:"broker"`
	HTTPAddr     string    `json:"http_addr"`
}

// LinesJSON lists the configured physical lines.
type LinesJSON struct {
	Input1  int `json:"input1"`
	Input2  int `json:"input2"`
	Output1 int `json:"output1"`
	Output2 int `json:"output2"`
}

// Build converts a snapshot to its JSON form.
func Build(snap Snapshot) StatusInner {
	b := snap.Board
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Debounce: DebounceJSON{
			Open:         b.Settle.Armed,
			GroupEnabled: b.GroupEnabled,
			Windows:      b.SettleWindows,
			Ignored:      b.Ignored,
			Counter:      b.Settle.Counter,
			Target:       b.Settle.Target,
			Unit:         b.Settle.Unit,
			Period:       b.Settle.Duration.String(),
		},
		Channels: make([]ChannelJSON, 0, len(b.Channels)),
		MQTT:     MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Lines: LinesJSON{
				Input1:  snap.Config.Input1,
				Input2:  snap.Config.Input2,
				Output1: snap.Config.Output1,
				Output2: snap.Config.Output2,
			},
			TickPeriodUs: snap.Config.TickPeriodUs,
			SettleMs:     snap.Config.SettleMs,
			Action1Ms:    snap.Config.Action1Ms,
			Action2Ms:    snap.Config.Action2Ms,
			HeartbeatSec: snap.Config.HeartbeatSec,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
	for i, ch := range b.Channels {
		inner.Channels = append(inner.Channels, channelJSON(i+1, ch))
	}
	if snap.ADC != nil {
		inner.ADC = &ADCJSON{
			Line:      snap.ADC.Line,
			Value:     snap.ADC.Value,
			Duty:      snap.ADC.Duty,
			OnMicros:  snap.ADC.On.Microseconds(),
			OffMicros: snap.ADC.Off.Microseconds(),
			Error:     snap.ADC.Err,
			Timestamp: snap.ADC.Time.UTC().Format(time.RFC3339),
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

func channelJSON(n int, ch logic.ChannelState) ChannelJSON {
	return ChannelJSON{
		Channel:      n,
		InputLine:    ch.Input,
		Pressed:      ch.InputActive,
		Armed:        ch.InterruptEnabled,
		OutputLine:   ch.Output,
		OutputActive: ch.OutputActive,
		Blinking:     ch.Timer.Armed,
		Unit:         ch.Timer.Unit,
		Period:       ch.Timer.Duration.String(),
		Presses:      ch.Presses,
		Toggles:      ch.Toggles,
	}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Build(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := Build(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
