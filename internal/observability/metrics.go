package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles the Prometheus metrics of an assignment run
// and provides the /metrics handler.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	PassDurations *prometheus.HistogramVec
	PassAssigned  *prometheus.CounterVec

	UnassignedLocations prometheus.Gauge

	CatalogTargets     prometheus.Gauge
	TileCount          prometheus.Gauge
	HardwareLocations  prometheus.Gauge
	AvailabilityCells  prometheus.Gauge
	AssignmentsWritten prometheus.Counter
}

// NewEngineCollector registers the engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Re-registration against the same registry returns the existing
// collectors instead of failing.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiberassign_pass_duration_seconds",
		Help:    "Wall time of each assignment pass.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"pass"})
	durations, err := registerHistogramVec(reg, durations, "fiberassign_pass_duration_seconds")
	if err != nil {
		return nil, err
	}

	assigned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiberassign_pass_assigned_total",
		Help: "Net slots filled by each assignment pass.",
	}, []string{"pass"})
	assigned, err = registerCounterVec(reg, assigned, "fiberassign_pass_assigned_total")
	if err != nil {
		return nil, err
	}

	unassigned, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fiberassign_unassigned_locations",
		Help: "Healthy science positioners left unassigned after the final pass, summed over tiles.",
	}), "fiberassign_unassigned_locations")
	if err != nil {
		return nil, err
	}

	catalogTargets, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fiberassign_catalog_targets",
		Help: "Number of targets in the loaded MTL.",
	}), "fiberassign_catalog_targets")
	if err != nil {
		return nil, err
	}
	tileCount, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fiberassign_tiles",
		Help: "Number of tiles in the run sequence.",
	}), "fiberassign_tiles")
	if err != nil {
		return nil, err
	}
	hwLocations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fiberassign_hardware_locations",
		Help: "Number of locations in the focal-plane model.",
	}), "fiberassign_hardware_locations")
	if err != nil {
		return nil, err
	}
	availCells, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fiberassign_availability_cells",
		Help: "Number of (tile, location) cells with at least one reachable target.",
	}), "fiberassign_availability_cells")
	if err != nil {
		return nil, err
	}
	written, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fiberassign_assignments_written_total",
		Help: "Assignment rows written to the results store.",
	}), "fiberassign_assignments_written_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:            gatherer,
		PassDurations:       durations,
		PassAssigned:        assigned,
		UnassignedLocations: unassigned,
		CatalogTargets:      catalogTargets,
		TileCount:           tileCount,
		HardwareLocations:   hwLocations,
		AvailabilityCells:   availCells,
		AssignmentsWritten:  written,
	}, nil
}

// ObservePass records the duration and the net filled slots of one
// assignment pass.
func (c *EngineCollector) ObservePass(pass string, d time.Duration, assignedDelta int) {
	if c == nil {
		return
	}
	if c.PassDurations != nil {
		c.PassDurations.WithLabelValues(pass).Observe(d.Seconds())
	}
	if c.PassAssigned != nil && assignedDelta > 0 {
		c.PassAssigned.WithLabelValues(pass).Add(float64(assignedDelta))
	}
}

// SetUnassigned sets the final unassigned-location gauge.
func (c *EngineCollector) SetUnassigned(n int) {
	if c == nil || c.UnassignedLocations == nil {
		return
	}
	c.UnassignedLocations.Set(float64(n))
}

// SetInputSizes records the sizes of the loaded inputs.
func (c *EngineCollector) SetInputSizes(targets, tiles, locations int) {
	if c == nil {
		return
	}
	if c.CatalogTargets != nil {
		c.CatalogTargets.Set(float64(targets))
	}
	if c.TileCount != nil {
		c.TileCount.Set(float64(tiles))
	}
	if c.HardwareLocations != nil {
		c.HardwareLocations.Set(float64(locations))
	}
}

// SetAvailabilityCells records the number of non-empty availability
// cells.
func (c *EngineCollector) SetAvailabilityCells(n int) {
	if c == nil || c.AvailabilityCells == nil {
		return
	}
	c.AvailabilityCells.Set(float64(n))
}

// AddWritten counts assignment rows persisted to the results store.
func (c *EngineCollector) AddWritten(n int) {
	if c == nil || c.AssignmentsWritten == nil {
		return
	}
	c.AssignmentsWritten.Add(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
