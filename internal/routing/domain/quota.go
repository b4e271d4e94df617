package routing

import "math"

// Surface names an independently counted external API surface.
type Surface string

const (
	SurfaceMaps   Surface = "maps"
	SurfaceRoutes Surface = "routes"
)

// Level is the warning level of a quota view.
type Level string

const (
	LevelOK       Level = "ok"
	LevelNotice   Level = "notice"
	LevelWarning  Level = "warning"
	LevelExceeded Level = "exceeded"
)

// QuotaView is the daily usage of one surface.
type QuotaView struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
	Exceeded   bool    `json:"exceeded"`
	Level      Level   `json:"level"`
}

// NewQuotaView derives remaining, percentage and level from usage.
// A non-positive limit means unlimited.
func NewQuotaView(used, limit int64) QuotaView {
	view := QuotaView{Used: used, Limit: limit, Level: LevelOK}
	if limit <= 0 {
		return view
	}
	view.Remaining = limit - used
	if view.Remaining < 0 {
		view.Remaining = 0
	}
	view.Percentage = math.Round(float64(used)*1000/float64(limit)) / 10
	view.Exceeded = used >= limit
	switch {
	case view.Percentage >= 100:
		view.Level = LevelExceeded
	case view.Percentage >= 80:
		view.Level = LevelWarning
	case view.Percentage >= 50:
		view.Level = LevelNotice
	}
	return view
}

// Usage is the quota view of every surface.
type Usage struct {
	Maps   QuotaView `json:"maps"`
	Routes QuotaView `json:"routes"`
}
