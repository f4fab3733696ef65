package capture

import (
	"time"

	"github.com/dpup/rooftrace/server/internal/lib/area"
	"github.com/dpup/rooftrace/server/internal/lib/geo"
)

// DefaultDebounceWindow is how long a burst of map clicks must stay quiet
// before the last click is applied
const DefaultDebounceWindow = 100 * time.Millisecond

// MinPoints is the smallest outline that has an area
const MinPoints = 3

// Metrics are the fields derived from the outline and the threshold. They are
// recomputed after every mutation and never read stale.
type Metrics struct {
	AreaSqm    float64     `json:"area_sqm"`
	CanProceed bool        `json:"can_proceed"`
	Method     area.Method `json:"method"`
}

// Snapshot is a consistent copy of the store state
type Snapshot struct {
	Points         []geo.Point `json:"points"`
	DrawModeActive bool        `json:"draw_mode_active"`
	Threshold      float64     `json:"threshold"`
	ClickPending   bool        `json:"click_pending"`
	Metrics        Metrics     `json:"metrics"`
}

// Invalidator is told when the outline is cleared, so that whoever holds a
// simulation result computed from the old outline can discard it
type Invalidator interface {
	Invalidate()
}

// InvalidatorFunc adapts a function to the Invalidator interface
type InvalidatorFunc func()

// Invalidate calls f()
func (f InvalidatorFunc) Invalidate() {
	f()
}

// click is a map click tagged with the drawing session it arrived in
type click struct {
	point   geo.Point
	session uint64
}
