package web

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sstent/stridetrack-go/internal/database"
	"github.com/sstent/stridetrack-go/internal/models"
	"github.com/sstent/stridetrack-go/internal/tracking"
	"github.com/sstent/stridetrack-go/internal/units"
)

// sessionView is the session state plus display strings.
type sessionView struct {
	models.SessionState
	Display display `json:"display"`
}

type display struct {
	Distance  string `json:"distance"`
	Duration  string `json:"duration"`
	Pace      string `json:"pace"`
	Elevation string `json:"elevation"`
	Speed     string `json:"speed,omitempty"`
}

func newSessionView(s models.SessionState) sessionView {
	unit := s.Unit
	if unit == "" {
		unit = models.Kilometers
	}
	v := sessionView{
		SessionState: s,
		Display: display{
			Distance:  units.FormatDistance(s.Distance, unit),
			Duration:  units.FormatDuration(s.Duration),
			Pace:      units.FormatPace(s.Pace, unit),
			Elevation: units.FormatElevation(s.Elevation.Gain, unit),
		},
	}
	if s.CurrentSpeed != nil {
		v.Display.Speed = units.FormatSpeed(s.CurrentSpeed.Value, unit)
	}
	return v
}

// eventPayload renders an event for the wire. Errors become strings.
func eventPayload(ev tracking.Event) any {
	switch e := ev.(type) {
	case tracking.SessionCompleted:
		out := gin.H{"result": e.Result}
		if e.Err != nil {
			out["error"] = e.Err.Error()
		}
		return out
	case tracking.AuthorizationLost:
		return gin.H{"error": e.Err.Error()}
	default:
		return ev
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>StrideTrack</title></head>
<body>
<h1>{{if .Session.IsTracking}}{{if .Session.IsPaused}}Paused{{else}}Tracking{{end}} {{.Session.ActivityType}}{{else}}No active session{{end}}</h1>
{{with .Session}}{{if .IsTracking}}
<table>
<tr><th>Distance</th><td>{{.Display.Distance}}</td></tr>
<tr><th>Duration</th><td>{{.Display.Duration}}</td></tr>
<tr><th>Pace</th><td>{{.Display.Pace}}</td></tr>
<tr><th>Elevation gain</th><td>{{.Display.Elevation}}</td></tr>
{{if .Display.Speed}}<tr><th>Speed</th><td>{{.Display.Speed}}</td></tr>{{end}}
</table>
<h2>Splits</h2>
<ol>{{range .Splits}}<li>{{if .IsPartial}}({{printf "%.2f" .Position}}) {{end}}{{duration .SplitDuration}}</li>{{end}}</ol>
{{end}}{{end}}
<h2>History</h2>
<p>{{.Stats.Total}} activities, {{distance .Stats.TotalDistance}}</p>
<ul>{{range .Recent}}<li><a href="/activities/{{.SessionID}}">{{.StartTime.Format "2006-01-02 15:04"}}</a> {{.ActivityType}} {{distance .Distance}} in {{duration .Duration}}{{if .Failed}} (incomplete){{end}}</li>{{end}}</ul>
</body>
</html>`

func (h *WebHandler) loadTemplates(router *gin.Engine) {
	tmpl := template.New("index").Funcs(template.FuncMap{
		"duration": units.FormatDuration,
		"distance": func(m float64) string { return units.FormatDistance(m, h.defaults.Unit) },
	})
	router.SetHTMLTemplate(template.Must(tmpl.Parse(indexHTML)))
}

type indexData struct {
	Session sessionView
	Stats   *database.Stats
	Recent  []database.Activity
}

func (h *WebHandler) Index(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := h.db.GetStats(ctx)
	if err != nil {
		h.log.WithError(err).Error("load stats")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	recent, err := h.db.GetActivities(ctx, 10, 0)
	if err != nil {
		h.log.WithError(err).Error("list activities")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.HTML(http.StatusOK, "index", indexData{
		Session: newSessionView(h.tracker.State()),
		Stats:   stats,
		Recent:  recent,
	})
}
