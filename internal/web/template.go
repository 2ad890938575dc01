package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"oneDecimal": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
	"doorClass": func(d logic.DoorStatus) string {
		switch d {
		case logic.StatusOpen:
			return "open"
		case logic.StatusClosed:
			return "closed"
		case logic.StatusVented:
			return "vented"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Name}}</title>
<style>
body { font-family: sans-serif; max-width: 420px; margin: 2em auto; padding: 0 1em; text-align: center; }
h1 { font-size: 1.6em; }
form button { font-size: 1.3em; width: 100%; padding: 0.8em; margin: 0.3em 0; border-radius: 6px; border: 1px solid #888; }
table { border-collapse: collapse; width: 100%; margin: 1.5em 0; text-align: left; }
td, th { padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 45%; }
.open { color: #c00; font-weight: bold; }
.closed { color: green; font-weight: bold; }
.vented { color: orange; font-weight: bold; }
.unknown { color: #888; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>

<form action="/" method="get">
<button name="DOOR" value="UP">Open</button>
<button name="DOOR" value="DOWN">Close</button>
<button name="DOOR" value="VENT">Vent</button>
</form>

<table id="status">
<tr><th>Door</th><td id="door" class="{{doorClass .Snap.Door}}">{{.Snap.Door}}{{if .Snap.Busy}} ({{.Snap.Busy}}){{end}}</td></tr>
<tr><th>Temperature</th><td id="temp">{{if .Snap.HasClimate}}{{oneDecimal .Snap.Climate.Fahrenheit}} &deg;F{{else}}n/a{{end}}</td></tr>
<tr><th>Humidity</th><td id="humidity">{{if .Snap.HasClimate}}{{oneDecimal .Snap.Climate.Humidity}} %{{else}}n/a{{end}}</td></tr>
<tr><th>Time</th><td>{{.Time}}</td></tr>
<tr><th>Date</th><td>{{.Date}}</td></tr>
<tr><th>Firmware</th><td>v{{.Snap.Version}}</td></tr>
</table>

<script>
(function() {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function(m) {
    try {
      var s = JSON.parse(m.data).status;
      var door = document.getElementById("door");
      door.textContent = s.door + (s.busy ? " (" + s.busy + ")" : "");
      door.className = s.door.toLowerCase();
      if (s.temperature_f !== undefined) {
        document.getElementById("temp").textContent = s.temperature_f.toFixed(1) + " °F";
        document.getElementById("humidity").textContent = s.humidity.toFixed(1) + " %";
      }
    } catch (e) {}
  };
})();
</script>
</body>
</html>
`

// Page layout of the clock lines.
const (
	timeLayout = "3:04 PM"
	dateLayout = "1/2/2006"
)

type pageData struct {
	Name string
	Snap status.Snapshot
	Time string
	Date string
}

func renderHTML(w io.Writer, snap status.Snapshot, loc *time.Location) error {
	now := snap.Now.In(loc)
	name := snap.Config.GarageName
	if name == "" {
		name = "Garage"
	}
	return indexTmpl.Execute(w, pageData{
		Name: name,
		Snap: snap,
		Time: now.Format(timeLayout),
		Date: now.Format(dateLayout),
	})
}
