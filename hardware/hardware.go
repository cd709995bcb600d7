// Package hardware models the focal plane: per-location positioner
// data, the neighbor graph, sky to focal-plane projection, two-link
// arm kinematics, and the collision engine built on top of them.
package hardware

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/ameisner/fiberassign/geom"
	"github.com/ameisner/fiberassign/internal/logging"
)

// Focal-plane constants. These could come from an instrument model
// file; for now they are fixed.
const (
	// FocalplaneRadiusDeg is the tile radius used to select targets
	// available to a tile.
	FocalplaneRadiusDeg = 1.65

	// NeighborRadiusMM is the center distance below which two
	// positioners are considered neighbors.
	NeighborRadiusMM = 14.05

	// PatrolBufferMM reduces the total arm length when deciding which
	// targets a positioner can reach.
	PatrolBufferMM = 0.2

	// NFiberPetal is the number of science positioners per petal.
	NFiberPetal = 500
)

// StateOK marks a healthy positioner. Any nonzero state means the
// device is stuck, broken, or otherwise disabled.
const StateOK int32 = 0

// Device type strings carried by the instrument tables.
const (
	DeviceTypePOS = "POS"
	DeviceTypeETC = "ETC"
	DeviceTypeGFA = "GFA"
)

// Config holds the raw per-location columns of the focal-plane table,
// one entry per location across all slices. Angles are in degrees;
// they are converted to radians on ingest.
type Config struct {
	Location   []int32
	Petal      []int32
	Device     []int32
	Slitblock  []int32
	Blockfiber []int32
	Fiber      []int32
	DeviceType []string
	XMM        []float64
	YMM        []float64
	State      []int32

	ThetaOffsetDeg []float64
	ThetaMinDeg    []float64
	ThetaMaxDeg    []float64
	ThetaArm       []float64
	PhiOffsetDeg   []float64
	PhiMinDeg      []float64
	PhiMaxDeg      []float64
	PhiArm         []float64

	// Radial distortion calibration samples.
	PSRadius []float64
	PSTheta  []float64

	// Exclusion polygons in the positioner local frame (theta, phi)
	// and in an unrotated frame (GFA, petal edge) that New turns by
	// each location's petal rotation.
	ExclTheta []geom.Shape
	ExclPhi   []geom.Shape
	ExclGFA   []geom.Shape
	ExclPetal []geom.Shape
}

// Hardware is the immutable focal-plane model. All maps are keyed by
// location id and must not be mutated after New returns; the moving-arm
// exclusion shapes are templates that placement code copies.
type Hardware struct {
	NPetal    int32
	Locations []int32

	PetalLocations map[int32][]int32

	Petal      map[int32]int32
	Device     map[int32]int32
	DeviceType map[int32]string
	Fiber      map[int32]int32
	Slitblock  map[int32]int32
	Blockfiber map[int32]int32

	CenterMM map[int32]geom.Point
	State    map[int32]int32

	ThetaOffset map[int32]float64
	ThetaMin    map[int32]float64
	ThetaMax    map[int32]float64
	ThetaArm    map[int32]float64
	PhiOffset   map[int32]float64
	PhiMin      map[int32]float64
	PhiMax      map[int32]float64
	PhiArm      map[int32]float64

	ThetaExcl map[int32]geom.Shape
	PhiExcl   map[int32]geom.Shape
	GFAExcl   map[int32]geom.Shape
	PetalExcl map[int32]geom.Shape

	Neighbors map[int32][]int32

	PSRadius []float64
	PSTheta  []float64
}

// New validates the raw focal-plane table and builds the hardware
// model: angle conversion, stable location ordering, the neighbor
// graph, and per-petal rotation of the static exclusion polygons.
func New(ctx context.Context, log logging.Logger, cfg Config) (*Hardware, error) {
	if log == nil {
		log = logging.Noop()
	}

	nloc := len(cfg.Location)
	if nloc == 0 {
		return nil, fmt.Errorf("hardware: empty location table")
	}
	if err := checkLengths(cfg, nloc); err != nil {
		return nil, err
	}

	hw := &Hardware{
		Locations:      make([]int32, 0, nloc),
		PetalLocations: make(map[int32][]int32),
		Petal:          make(map[int32]int32, nloc),
		Device:         make(map[int32]int32, nloc),
		DeviceType:     make(map[int32]string, nloc),
		Fiber:          make(map[int32]int32, nloc),
		Slitblock:      make(map[int32]int32, nloc),
		Blockfiber:     make(map[int32]int32, nloc),
		CenterMM:       make(map[int32]geom.Point, nloc),
		State:          make(map[int32]int32, nloc),
		ThetaOffset:    make(map[int32]float64, nloc),
		ThetaMin:       make(map[int32]float64, nloc),
		ThetaMax:       make(map[int32]float64, nloc),
		ThetaArm:       make(map[int32]float64, nloc),
		PhiOffset:      make(map[int32]float64, nloc),
		PhiMin:         make(map[int32]float64, nloc),
		PhiMax:         make(map[int32]float64, nloc),
		PhiArm:         make(map[int32]float64, nloc),
		ThetaExcl:      make(map[int32]geom.Shape, nloc),
		PhiExcl:        make(map[int32]geom.Shape, nloc),
		GFAExcl:        make(map[int32]geom.Shape, nloc),
		PetalExcl:      make(map[int32]geom.Shape, nloc),
		Neighbors:      make(map[int32][]int32, nloc),
		PSRadius:       append([]float64(nil), cfg.PSRadius...),
		PSTheta:        append([]float64(nil), cfg.PSTheta...),
	}

	degToRad := math.Pi / 180.0
	unhealthy := 0

	for i := 0; i < nloc; i++ {
		lid := cfg.Location[i]
		if _, dup := hw.Petal[lid]; dup {
			return nil, fmt.Errorf("hardware: duplicate location id %d", lid)
		}
		if cfg.Petal[i] < 0 {
			return nil, fmt.Errorf("hardware: location %d has petal %d out of range", lid, cfg.Petal[i])
		}
		if cfg.ThetaArm[i] < 0 || cfg.PhiArm[i] < 0 {
			return nil, fmt.Errorf("hardware: location %d has negative arm length", lid)
		}
		if cfg.ThetaMinDeg[i] >= cfg.ThetaMaxDeg[i] {
			return nil, fmt.Errorf("hardware: location %d has theta range [%g, %g]",
				lid, cfg.ThetaMinDeg[i], cfg.ThetaMaxDeg[i])
		}
		if cfg.PhiMinDeg[i] >= cfg.PhiMaxDeg[i] {
			return nil, fmt.Errorf("hardware: location %d has phi range [%g, %g]",
				lid, cfg.PhiMinDeg[i], cfg.PhiMaxDeg[i])
		}

		hw.Locations = append(hw.Locations, lid)
		hw.Petal[lid] = cfg.Petal[i]
		hw.Device[lid] = cfg.Device[i]
		hw.DeviceType[lid] = cfg.DeviceType[i]
		hw.Fiber[lid] = cfg.Fiber[i]
		hw.Slitblock[lid] = cfg.Slitblock[i]
		hw.Blockfiber[lid] = cfg.Blockfiber[i]
		hw.PetalLocations[cfg.Petal[i]] = append(hw.PetalLocations[cfg.Petal[i]], lid)
		hw.CenterMM[lid] = geom.Point{X: cfg.XMM[i], Y: cfg.YMM[i]}
		hw.State[lid] = cfg.State[i]
		if cfg.State[i] != StateOK {
			unhealthy++
		}

		hw.ThetaOffset[lid] = cfg.ThetaOffsetDeg[i] * degToRad
		hw.ThetaMin[lid] = cfg.ThetaMinDeg[i] * degToRad
		hw.ThetaMax[lid] = cfg.ThetaMaxDeg[i] * degToRad
		hw.ThetaArm[lid] = cfg.ThetaArm[i]
		hw.PhiOffset[lid] = cfg.PhiOffsetDeg[i] * degToRad
		hw.PhiMin[lid] = cfg.PhiMinDeg[i] * degToRad
		hw.PhiMax[lid] = cfg.PhiMaxDeg[i] * degToRad
		hw.PhiArm[lid] = cfg.PhiArm[i]

		hw.ThetaExcl[lid] = cfg.ExclTheta[i].Copy()
		hw.PhiExcl[lid] = cfg.ExclPhi[i].Copy()
		hw.GFAExcl[lid] = cfg.ExclGFA[i].Copy()
		hw.PetalExcl[lid] = cfg.ExclPetal[i].Copy()

		if cfg.Petal[i]+1 > hw.NPetal {
			hw.NPetal = cfg.Petal[i] + 1
		}
	}

	log.Info(ctx, "focalplane loaded",
		logging.Int("locations", nloc),
		logging.Int("petals", int(hw.NPetal)),
		logging.Int("stuck_or_broken", unhealthy),
	)

	slices.Sort(hw.Locations)
	for p := range hw.PetalLocations {
		slices.Sort(hw.PetalLocations[p])
	}

	// Neighbor graph: pairwise scan over sorted locations.
	for x := 0; x < nloc; x++ {
		xid := hw.Locations[x]
		for y := x + 1; y < nloc; y++ {
			yid := hw.Locations[y]
			if geom.Dist(hw.CenterMM[xid], hw.CenterMM[yid]) <= NeighborRadiusMM {
				hw.Neighbors[xid] = append(hw.Neighbors[xid], yid)
				hw.Neighbors[yid] = append(hw.Neighbors[yid], xid)
			}
		}
	}

	// Rotate the static GFA and petal-edge polygons into the absolute
	// orientation of each location's petal.
	for _, lid := range hw.Locations {
		rotDeg := math.Mod(float64(7+hw.Petal[lid])*36.0, 360.0)
		cs := geom.AngleToCosSin(rotDeg * degToRad)
		gfa := hw.GFAExcl[lid]
		gfa.RotationOrigin(cs)
		hw.GFAExcl[lid] = gfa
		petal := hw.PetalExcl[lid]
		petal.RotationOrigin(cs)
		hw.PetalExcl[lid] = petal
	}

	return hw, nil
}

// PetalRotationRad returns the absolute rotation of a petal's static
// geometry in radians.
func PetalRotationRad(petal int32) float64 {
	return math.Mod(float64(7+petal)*36.0, 360.0) * math.Pi / 180.0
}

// DeviceLocations returns the sorted location ids with the given
// device type.
func (hw *Hardware) DeviceLocations(deviceType string) []int32 {
	var out []int32
	for _, lid := range hw.Locations {
		if hw.DeviceType[lid] == deviceType {
			out = append(out, lid)
		}
	}
	return out
}

func checkLengths(cfg Config, nloc int) error {
	fields := map[string]int{
		"petal":        len(cfg.Petal),
		"device":       len(cfg.Device),
		"slitblock":    len(cfg.Slitblock),
		"blockfiber":   len(cfg.Blockfiber),
		"fiber":        len(cfg.Fiber),
		"device_type":  len(cfg.DeviceType),
		"x_mm":         len(cfg.XMM),
		"y_mm":         len(cfg.YMM),
		"state":        len(cfg.State),
		"theta_offset": len(cfg.ThetaOffsetDeg),
		"theta_min":    len(cfg.ThetaMinDeg),
		"theta_max":    len(cfg.ThetaMaxDeg),
		"theta_arm":    len(cfg.ThetaArm),
		"phi_offset":   len(cfg.PhiOffsetDeg),
		"phi_min":      len(cfg.PhiMinDeg),
		"phi_max":      len(cfg.PhiMaxDeg),
		"phi_arm":      len(cfg.PhiArm),
		"excl_theta":   len(cfg.ExclTheta),
		"excl_phi":     len(cfg.ExclPhi),
		"excl_gfa":     len(cfg.ExclGFA),
		"excl_petal":   len(cfg.ExclPetal),
	}
	for name, n := range fields {
		if n != nloc {
			return fmt.Errorf("hardware: field %s has %d entries, want %d", name, n, nloc)
		}
	}
	return nil
}
