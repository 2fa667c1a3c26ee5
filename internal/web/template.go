package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/water-level/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"percent": func(f float64) string {
		return fmt.Sprintf("%.1f%%", f*100)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Water Level</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
#chart { min-height: 300px; width: 100%; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.low { color: red; font-weight: bold; }
.high { color: blue; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Water Level<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<div id="chart"></div>

<h2>State</h2>
<table>
<tr><th>Level</th><td id="level">{{if .Last}}{{percent .Last.Level}} ({{printf "%.1f" .Last.Distance}} cm){{else}}no reading yet{{end}}</td></tr>
<tr><th>Upper tank</th><td class="{{if eq (stateOrUnknown (printf "%s" .Upper)) "LOW"}}low{{else if eq (stateOrUnknown (printf "%s" .Upper)) "HIGH"}}high{{else if eq (stateOrUnknown (printf "%s" .Upper)) "OK"}}off{{else}}unknown{{end}}">{{stateOrUnknown (printf "%s" .Upper)}}</td></tr>
<tr><th>Lower tank</th><td class="{{if eq (stateOrUnknown (printf "%s" .Lower)) "LOW"}}low{{else if eq (stateOrUnknown (printf "%s" .Lower)) "HIGH"}}high{{else if eq (stateOrUnknown (printf "%s" .Lower)) "OK"}}off{{else}}unknown{{end}}">{{stateOrUnknown (printf "%s" .Lower)}}</td></tr>
<tr><th>Fill relay</th><td class="{{if .Relay.On}}on{{else}}off{{end}}">{{if .Relay.On}}ON since {{.Relay.Since.Format "15:04:05"}}{{else}}OFF{{end}}</td></tr>
<tr><th>Schedule</th><td>{{range $i, $p := .Config.Schedule}}{{if $i}}, {{end}}{{$p}}{{end}}{{if .Last}} ({{if .Last.Active}}active{{else}}idle{{end}}){{end}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Readings</th><td>{{.Counts.Readings}}</td></tr>
<tr><th>Starved intervals</th><td>{{.Counts.Starved}}</td></tr>
<tr><th>Relay ON</th><td>{{.Counts.RelayOn}}</td></tr>
<tr><th>Relay OFF</th><td>{{.Counts.RelayOff}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms ({{.Config.Samples}} samples)</td></tr>
<tr><th>Thresholds</th><td>upper {{.Config.Upper.Low}}/{{.Config.Upper.High}} cm, lower {{.Config.Lower.Low}}/{{.Config.Lower.High}} cm</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/data">data</a></p>

<script src="//ajax.googleapis.com/ajax/libs/jquery/1.11.1/jquery.min.js"></script>
<script src="//cdnjs.cloudflare.com/ajax/libs/flot/0.8.2/jquery.flot.min.js"></script>
<script src="//cdnjs.cloudflare.com/ajax/libs/flot/0.8.2/jquery.flot.time.min.js"></script>
<script>
(function() {
  var chart;
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function draw(values) {
    chart.setData([{data: values}]);
    chart.setupGrid();
    chart.draw();
  }

  function poll() {
    $.ajax({url: "/data", type: "GET", dataType: "json", success: function(d) {
      draw(d.values);
      setTimeout(poll, 1000);
    }, error: function() {
      setDot("err", "offline");
      setTimeout(poll, 1000);
    }});
  }

  function live() {
    var values = [];
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onmessage = function(ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "history") {
        values = msg.data || [];
      } else if (msg.type === "point") {
        values.push(msg.data);
        if (values.length > {{.Capacity}}) { values.shift(); }
        document.getElementById("level").textContent = (msg.data[1] * 100).toFixed(1) + "%";
      }
      draw(values);
    };
    ws.onclose = function() {
      setDot("pending", "polling");
      poll();
    };
  }

  $(function() {
    chart = $.plot("#chart", [], {xaxis: {mode: "time"}, yaxis: {min: 0, max: 1}});
    if (window.WebSocket) { live(); } else { poll(); }
  });
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, capacity int) error {
	// Snapshot has Uptime() and Ready() methods but the template reads fields.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Ready    bool
		Capacity int
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
		Capacity: capacity,
	}
	return indexTmpl.Execute(w, data)
}
