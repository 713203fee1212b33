package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/light-controller/internal/logic"
	"github.com/sweeney/light-controller/internal/status"
)

var modes = []logic.Mode{logic.ModeOff, logic.ModeOn, logic.ModeAutoOnOff, logic.ModeTimerOff}

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
	"pct": func(v float64) string {
		return fmt.Sprintf("%.0f", v)
	},
	"modes": func() []logic.Mode {
		return modes
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Light.DeviceName}}</title>
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
button { font-family: monospace; padding: 6px 14px; }
input[type=range] { width: 100%; }
</style>
</head>
<body>
<h1>{{.Light.DeviceName}}</h1>

<h2>Current Status</h2>
<table>
<tr><th>Turned On</th><td id="turned-on" class="{{if .Light.IsOn}}on{{else}}off{{end}}">{{if .Light.IsOn}}Yes{{else}}No{{end}}</td></tr>
<tr><th>Brightness</th><td><span id="brightness">{{pct .Light.CurrentBrightness}}</span> %</td></tr>
<tr><th>Light Level</th><td><span id="light-level">{{if .LevelValid}}{{pct .LightLevel}}{{else}}Unknown{{end}}</span> %</td></tr>
<tr><th>Mode</th><td>{{.Light.Mode}}</td></tr>
{{if .Update.Active}}<tr><th>Update</th><td>{{.Update.Target}} {{.Update.Percent}}%</td></tr>{{end}}
</table>

<h2>Controls</h2>
<p>
<button id="toggle" onclick="toggle()">{{if .Light.IsOn}}Turn Off{{else}}Turn On{{end}}</button>
</p>
<p>
<label for="target">Brightness</label>
<input id="target" type="range" min="1" max="100" value="{{pct .Light.TargetBrightness}}" onchange="setBrightness(this.value)">
</p>
<form method="post" action="/mode">
<label for="mode">Mode</label>
<select id="mode" name="mode">
{{range modes}}<option value="{{.}}"{{if eq . $.Light.Mode}} selected{{end}}>{{.}}</option>
{{end}}</select>
<button type="submit">Set</button>
</form>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Storage</th><td>{{.Config.Storage}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
var turnedOn = {{.Light.IsOn}};

function render(s) {
  turnedOn = s.turnedOn;
  var on = document.getElementById("turned-on");
  on.textContent = s.turnedOn ? "Yes" : "No";
  on.className = s.turnedOn ? "on" : "off";
  document.getElementById("brightness").textContent = Math.round(s.brightness);
  document.getElementById("light-level").textContent = Math.round(s.lightLevel);
  document.getElementById("toggle").textContent = s.turnedOn ? "Turn Off" : "Turn On";
}

function call(path, opts) {
  return fetch(path, opts).then(function(r) { return r.json(); }).then(render).catch(function() {});
}

function toggle() {
  call(turnedOn ? "/lights-off" : "/lights-on");
}

function setBrightness(v) {
  call("/brightness", {
    method: "POST",
    headers: { "Content-Type": "application/x-www-form-urlencoded" },
    body: "brightness=" + encodeURIComponent(v)
  });
}

setInterval(function() { call("/current-status"); }, 1000);
</script>
</body>
</html>`

func renderHTML(w io.Writer, snap status.Snapshot) {
	indexTmpl.Execute(w, snap)
}
