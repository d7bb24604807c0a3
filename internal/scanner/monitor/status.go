package monitor

import (
	"net/http"

	"github.com/banshee-data/lidarscan/internal/httputil"
	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/vfx"
)

// TargetStatus is the JSON summary of one visual target.
type TargetStatus struct {
	Handle    scanner.TargetHandle `json:"handle"`
	Prefab    string               `json:"prefab"`
	Position  [3]float64           `json:"position"`
	Width     int                  `json:"width"`
	Height    int                  `json:"height"`
	Valid     int                  `json:"valid_points"`
	Publishes uint64               `json:"publishes"`
	Reinits   uint64               `json:"reinits"`
}

// Status is the body of /debug/scan/status.
type Status struct {
	Targets     []TargetStatus `json:"targets"`
	TotalValid  int            `json:"total_valid_points"`
	TotalFrames uint64         `json:"total_publishes"`
}

func summarize(t vfx.Target) TargetStatus {
	return TargetStatus{
		Handle:    t.Handle,
		Prefab:    t.Prefab,
		Position:  [3]float64{t.Position.X, t.Position.Y, t.Position.Z},
		Width:     t.Width,
		Height:    t.Height,
		Valid:     t.Valid(),
		Publishes: t.Publishes,
		Reinits:   t.Reinits,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	st := Status{Targets: []TargetStatus{}}
	for _, t := range s.targets.Snapshot() {
		ts := summarize(t)
		st.Targets = append(st.Targets, ts)
		st.TotalValid += ts.Valid
		st.TotalFrames += ts.Publishes
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	h := scanner.TargetHandle(r.PathValue("handle"))
	t, ok := s.targets.Get(h)
	if !ok {
		httputil.NotFound(w, "unknown target "+string(h))
		return
	}
	httputil.WriteJSONOK(w, summarize(t))
}
