package server

import (
	"github.com/shaharia-lab/devproxy/internal/health"
	"github.com/shaharia-lab/devproxy/internal/proxy"
)

// RouteView is the JSON form of a proxy rule.
type RouteView struct {
	Prefix       string        `json:"prefix"`
	Target       string        `json:"target"`
	ChangeOrigin bool          `json:"change_origin"`
	Rewrite      string        `json:"rewrite"`
	WebSocket    bool          `json:"ws"`
	Pattern      bool          `json:"pattern,omitempty"`
	Health       health.Status `json:"health,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Routes lists the rules of table in match order, annotated with target
// health when monitor is non-nil.
func Routes(table *proxy.Table, monitor *health.Monitor) []RouteView {
	rules := table.Rules()
	out := make([]RouteView, 0, len(rules))
	for _, r := range rules {
		v := RouteView{
			Prefix:       r.Prefix,
			Target:       r.Target.String(),
			ChangeOrigin: r.ChangeOrigin,
			Rewrite:      r.RewriteName,
			WebSocket:    r.WS,
			Pattern:      r.IsPattern(),
		}
		if monitor != nil {
			if st, ok := monitor.Status(r.Prefix); ok {
				v.Health = st.Status
				v.LastError = st.LastError
			}
		}
		out = append(out, v)
	}
	return out
}
