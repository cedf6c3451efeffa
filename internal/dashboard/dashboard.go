package dashboard

import (
	"html/template"
	"strconv"
	"time"

	"github.com/compendiumnav/boatrelay/internal/mqttbridge"
	"github.com/compendiumnav/boatrelay/internal/state"
)

// ViewData is the index.html template context.
type ViewData struct {
	GeneratedAt time.Time
	Uptime      time.Duration
	Seq         uint64
	Root        state.Root
	Alerts      []alertView
	Fences      []fenceView
	Bridge      *mqttbridge.BridgeStatus
	RecentLog   []logEntryView
}

type alertView struct {
	state.Alert
	LabelHTML   template.HTML
	MessageHTML template.HTML
}

type fenceView struct {
	state.Fence
	TargetLabel string
}

type logEntryView struct {
	Seq       uint64
	CreatedAt time.Time
	Summary   string
}

// buildViewData snapshots live state and assembles the template
// context. Never mutates s.bus; this handler is strictly read-only
// per §4.13's framing.
func (s *Server) buildViewData() ViewData {
	root, seq := s.bus.CurrentSnapshot()

	data := ViewData{
		GeneratedAt: time.Now(),
		Uptime:      time.Since(s.startedAt),
		Seq:         seq,
		Root:        root,
	}

	for _, a := range root.Alerts.Active {
		data.Alerts = append(data.Alerts, alertView{
			Alert:       a,
			LabelHTML:   renderMarkdown(a.Label),
			MessageHTML: renderMarkdown(a.Message),
		})
	}

	for _, f := range root.Anchor.Fences {
		data.Fences = append(data.Fences, fenceView{Fence: f, TargetLabel: fenceTargetLabel(f)})
	}

	if s.bridge != nil {
		status := s.bridge.Status()
		data.Bridge = &status
	}

	if s.store != nil {
		if entries, err := s.store.RecentPatches(20); err == nil {
			for _, e := range entries {
				data.RecentLog = append(data.RecentLog, logEntryView{
					Seq:       e.Seq,
					CreatedAt: e.CreatedAt,
					Summary:   patchSummary(e.Patch),
				})
			}
		}
	}

	return data
}

func fenceTargetLabel(f state.Fence) string {
	switch f.TargetType {
	case state.FenceTargetAIS:
		return "AIS " + f.TargetMMSI
	default:
		return "fixed point"
	}
}

// patchSummary renders a one-line description of a committed patch
// for the recent-activity log, e.g. "3 ops" — enough for an operator
// to see the journal is alive without dumping raw JSON Patch ops.
func patchSummary(p state.Patch) string {
	if len(p) == 0 {
		return "no-op"
	}
	if len(p) == 1 {
		return "1 op: " + p[0].Path
	}
	return strconv.Itoa(len(p)) + " ops"
}
