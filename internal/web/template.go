package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/soohan/attendance-agent/internal/status"
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
	"clock": func(t *time.Time) string {
		if t == nil {
			return "—"
		}
		return t.Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Attendance Agent</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.waiting { color: orange; }
.ongoing { color: green; }
.completed { color: #06c; font-weight: bold; }
.absent { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.active { background: #f5fbff; }
</style>
</head>
<body>
<h1>Attendance Agent</h1>

<h2>Today ({{.ScheduleDay}})</h2>
<table>
<tr><th>Subject</th><th>Room</th><th>Window</th><th>Status</th><th>Check-in</th><th>Last sample</th></tr>
{{range .Sessions}}<tr{{if .Active}} class="active"{{end}}>
<td>{{.Subject}}</td>
<td>{{.Classroom}}</td>
<td>{{.StartTime}}–{{.EndTime}}</td>
<td class="{{.Status}}">{{.Status}}{{if .Pending}} *{{end}}</td>
<td>{{clock .CheckInTime}}</td>
<td>{{clock .LastSample}}</td>
</tr>{{else}}<tr><td colspan="6">no schedule loaded</td></tr>{{end}}
</table>
<p>* sync request in flight</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Service</th><td>{{.Config.BaseURL}}</td></tr>
<tr><th>Monitored beacons</th><td>{{range .Monitored}}{{.}} {{else}}none{{end}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Check-ins</th><td>{{.Counts.CheckIns}}</td></tr>
<tr><th>Absences</th><td>{{.Counts.Absences}}</td></tr>
<tr><th>Recoveries</th><td>{{.Counts.Recoveries}}</td></tr>
<tr><th>Sync failures</th><td>{{.Counts.SyncFailures}}</td></tr>
<tr><th>Ignored samples</th><td>{{.Counts.IgnoredSamples}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Policy</th><td>{{.Config.Policy}}</td></tr>
<tr><th>Absence threshold</th><td>{{.Config.AbsenceThresholdMs}}ms</td></tr>
<tr><th>Watchdog</th><td>{{.Config.WatchdogMs}}ms</td></tr>
<tr><th>Schedule refresh</th><td>{{.Config.RefreshMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but the template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
