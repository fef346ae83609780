package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/button-blinker/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"inc": func(i int) int { return i + 1 },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Button Blinker</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Button Blinker{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

{{range $i, $ch := .Board.Channels}}
<h2>Channel {{inc $i}}</h2>
<table>
<tr><th>Button (line {{$ch.Input}})</th><td class="{{if $ch.InputActive}}on{{else}}off{{end}}">{{if $ch.InputActive}}pressed{{else}}released{{end}}</td></tr>
<tr><th>Blinking</th><td id="blink-{{inc $i}}" class="{{if $ch.Timer.Armed}}on{{else}}off{{end}}">{{onOff $ch.Timer.Armed}}</td></tr>
<tr><th>LED (line {{$ch.Output}})</th><td id="led-{{inc $i}}" class="{{if $ch.OutputActive}}on{{else}}off{{end}}">{{onOff $ch.OutputActive}}</td></tr>
<tr><th>Period</th><td>{{$ch.Timer.Duration}} ({{$ch.Timer.Unit}})</td></tr>
<tr><th>Presses</th><td id="presses-{{inc $i}}">{{$ch.Presses}}</td></tr>
<tr><th>Toggles</th><td>{{$ch.Toggles}}</td></tr>
</table>
{{end}}

<h2>Debounce</h2>
<table>
<tr><th>Window</th><td class="{{if .Board.Settle.Armed}}on{{else}}off{{end}}">{{if .Board.Settle.Armed}}open{{else}}closed{{end}}</td></tr>
<tr><th>Settle</th><td>{{.Board.Settle.Duration}} ({{.Board.Settle.Unit}})</td></tr>
<tr><th>Windows</th><td>{{.Board.SettleWindows}}</td></tr>
<tr><th>Ignored</th><td>{{.Board.Ignored}}</td></tr>
</table>

{{if .ADC}}
<h2>Analog</h2>
<table>
<tr><th>Line</th><td>{{.ADC.Line}}</td></tr>
{{if .ADC.Err}}<tr><th>Error</th><td class="disconnected">{{.ADC.Err}}</td></tr>
{{else}}<tr><th>Value</th><td>{{.ADC.Value}} / 1023</td></tr>
<tr><th>PWM</th><td>{{.ADC.On}} on, {{.ADC.Off}} off</td></tr>{{end}}
</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickPeriodUs}}us</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatSec 0}}disabled{{else}}{{.Config.HeartbeatSec}}s{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/api/status">JSON</a> | <a href="/docs">API</a> | <a href="/metrics">Metrics</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Config.EventsTopic}}";
  var dot = document.getElementById("live-dot");

  function setOnOff(id, on) {
    var el = document.getElementById(id);
    if (!el) return;
    el.textContent = on ? "ON" : "OFF";
    el.className = on ? "on" : "off";
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });
  client.on("reconnect", function() { setDot("pending", "reconnecting"); });
  client.on("offline", function() { setDot("err", "offline"); });
  client.on("error", function() { setDot("err", "error"); });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString()).blinker;
      if (!msg || !msg.channel) return;
      if (msg.event === "PRESS") {
        setOnOff("blink-" + msg.channel, msg.blinking);
        var p = document.getElementById("presses-" + msg.channel);
        if (p) p.textContent = String(Number(p.textContent) + 1);
      } else if (msg.event === "OUTPUT_ON" || msg.event === "OUTPUT_OFF") {
        setOnOff("led-" + msg.channel, msg.active);
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// The template needs Uptime as a field, not a method.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
