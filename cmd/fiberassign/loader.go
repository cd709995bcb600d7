package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ameisner/fiberassign/geom"
	"github.com/ameisner/fiberassign/hardware"
	"github.com/ameisner/fiberassign/targets"
)

// Scenario is the decoded run input: the raw focal-plane table, the
// tile sequence, and the target catalog.
type Scenario struct {
	Hardware hardware.Config

	TileID      []int32
	TileRA      []float64
	TileDec     []float64
	TileObsCond []uint8
	TileTheta   []float64

	Targets []targets.Target
}

// internal JSON shapes, unexported so the file format can evolve.
type scenarioJSON struct {
	Exclusions map[string][][2]float64 `json:"exclusions"`
	Platescale *platescaleJSON         `json:"platescale"`
	Locations  []locationJSON          `json:"locations"`
	Tiles      []tileJSON              `json:"tiles"`
	Targets    []targetJSON            `json:"targets"`
}

type platescaleJSON struct {
	RadiusMM []float64 `json:"radius_mm"`
	ThetaDeg []float64 `json:"theta_deg"`
}

type locationJSON struct {
	Location   int32   `json:"location"`
	Petal      int32   `json:"petal"`
	Device     int32   `json:"device"`
	Slitblock  int32   `json:"slitblock"`
	Blockfiber int32   `json:"blockfiber"`
	Fiber      int32   `json:"fiber"`
	DeviceType string  `json:"device_type"`
	XMM        float64 `json:"x_mm"`
	YMM        float64 `json:"y_mm"`
	State      int32   `json:"state"`

	ThetaOffsetDeg float64 `json:"theta_offset_deg"`
	ThetaMinDeg    float64 `json:"theta_min_deg"`
	ThetaMaxDeg    float64 `json:"theta_max_deg"`
	ThetaArmMM     float64 `json:"theta_arm_mm"`
	PhiOffsetDeg   float64 `json:"phi_offset_deg"`
	PhiMinDeg      float64 `json:"phi_min_deg"`
	PhiMaxDeg      float64 `json:"phi_max_deg"`
	PhiArmMM       float64 `json:"phi_arm_mm"`

	// Names referencing entries of the top-level exclusions table.
	ExclTheta string `json:"excl_theta"`
	ExclPhi   string `json:"excl_phi"`
	ExclGFA   string `json:"excl_gfa"`
	ExclPetal string `json:"excl_petal"`
}

type tileJSON struct {
	ID       int32   `json:"id"`
	RA       float64 `json:"ra"`
	Dec      float64 `json:"dec"`
	ObsCond  string  `json:"obscond"`
	ThetaDeg float64 `json:"theta_deg"`
}

type targetJSON struct {
	ID          int64   `json:"id"`
	RA          float64 `json:"ra"`
	Dec         float64 `json:"dec"`
	ObsCond     string  `json:"obscond"`
	Type        string  `json:"type"`
	Priority    int32   `json:"priority"`
	Subpriority float64 `json:"subpriority"`
	NObs        int32   `json:"nobs"`
}

// LoadScenario reads a JSON scenario from r. It fails on structural
// errors and on dangling exclusion-polygon references; semantic
// validation (duplicate ids, angle ranges) is left to the package
// constructors.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	shapes := make(map[string]geom.Shape, len(payload.Exclusions))
	for name, pts := range payload.Exclusions {
		poly := make([]geom.Point, len(pts))
		for i, p := range pts {
			poly[i] = geom.Point{X: p[0], Y: p[1]}
		}
		shapes[name] = geom.NewShape(poly)
	}
	lookupShape := func(name string, loc int32) (geom.Shape, error) {
		if name == "" {
			return geom.Shape{}, nil
		}
		s, ok := shapes[name]
		if !ok {
			return geom.Shape{}, fmt.Errorf("LoadScenario: location %d references unknown exclusion %q", loc, name)
		}
		return s.Copy(), nil
	}

	sc := &Scenario{}
	if payload.Platescale != nil {
		sc.Hardware.PSRadius = payload.Platescale.RadiusMM
		sc.Hardware.PSTheta = payload.Platescale.ThetaDeg
	}

	for _, jl := range payload.Locations {
		sc.Hardware.Location = append(sc.Hardware.Location, jl.Location)
		sc.Hardware.Petal = append(sc.Hardware.Petal, jl.Petal)
		sc.Hardware.Device = append(sc.Hardware.Device, jl.Device)
		sc.Hardware.Slitblock = append(sc.Hardware.Slitblock, jl.Slitblock)
		sc.Hardware.Blockfiber = append(sc.Hardware.Blockfiber, jl.Blockfiber)
		sc.Hardware.Fiber = append(sc.Hardware.Fiber, jl.Fiber)
		sc.Hardware.DeviceType = append(sc.Hardware.DeviceType, jl.DeviceType)
		sc.Hardware.XMM = append(sc.Hardware.XMM, jl.XMM)
		sc.Hardware.YMM = append(sc.Hardware.YMM, jl.YMM)
		sc.Hardware.State = append(sc.Hardware.State, jl.State)
		sc.Hardware.ThetaOffsetDeg = append(sc.Hardware.ThetaOffsetDeg, jl.ThetaOffsetDeg)
		sc.Hardware.ThetaMinDeg = append(sc.Hardware.ThetaMinDeg, jl.ThetaMinDeg)
		sc.Hardware.ThetaMaxDeg = append(sc.Hardware.ThetaMaxDeg, jl.ThetaMaxDeg)
		sc.Hardware.ThetaArm = append(sc.Hardware.ThetaArm, jl.ThetaArmMM)
		sc.Hardware.PhiOffsetDeg = append(sc.Hardware.PhiOffsetDeg, jl.PhiOffsetDeg)
		sc.Hardware.PhiMinDeg = append(sc.Hardware.PhiMinDeg, jl.PhiMinDeg)
		sc.Hardware.PhiMaxDeg = append(sc.Hardware.PhiMaxDeg, jl.PhiMaxDeg)
		sc.Hardware.PhiArm = append(sc.Hardware.PhiArm, jl.PhiArmMM)

		for _, ref := range []struct {
			name string
			dst  *[]geom.Shape
		}{
			{jl.ExclTheta, &sc.Hardware.ExclTheta},
			{jl.ExclPhi, &sc.Hardware.ExclPhi},
			{jl.ExclGFA, &sc.Hardware.ExclGFA},
			{jl.ExclPetal, &sc.Hardware.ExclPetal},
		} {
			s, err := lookupShape(ref.name, jl.Location)
			if err != nil {
				return nil, err
			}
			*ref.dst = append(*ref.dst, s)
		}
	}

	for _, jt := range payload.Tiles {
		sc.TileID = append(sc.TileID, jt.ID)
		sc.TileRA = append(sc.TileRA, jt.RA)
		sc.TileDec = append(sc.TileDec, jt.Dec)
		sc.TileObsCond = append(sc.TileObsCond, obscondFromString(jt.ObsCond))
		sc.TileTheta = append(sc.TileTheta, jt.ThetaDeg)
	}

	for _, jt := range payload.Targets {
		ty, err := targetTypeFromString(jt.Type)
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: target %d: %w", jt.ID, err)
		}
		nobs := jt.NObs
		if nobs <= 0 {
			nobs = 1
		}
		sc.Targets = append(sc.Targets, targets.Target{
			ID:            jt.ID,
			RA:            jt.RA,
			Dec:           jt.Dec,
			ObsCond:       obscondFromString(jt.ObsCond),
			Priority:      jt.Priority,
			Subpriority:   jt.Subpriority,
			NObsRemaining: nobs,
			Type:          ty,
		})
	}

	return sc, nil
}

// obscondFromString maps a comma-separated condition list to the
// condition bitmask. Unknown and empty values default to all
// conditions, which keeps hand-written scenarios short.
func obscondFromString(s string) uint8 {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return targets.ObsDark | targets.ObsGray | targets.ObsBright
	}
	var mask uint8
	for _, part := range strings.Split(v, ",") {
		switch strings.TrimSpace(part) {
		case "dark":
			mask |= targets.ObsDark
		case "gray", "grey":
			mask |= targets.ObsGray
		case "bright":
			mask |= targets.ObsBright
		}
	}
	if mask == 0 {
		mask = targets.ObsDark | targets.ObsGray | targets.ObsBright
	}
	return mask
}

func targetTypeFromString(s string) (targets.TargetType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "science", "":
		return targets.TypeScience, nil
	case "standard", "std":
		return targets.TypeStandard, nil
	case "sky":
		return targets.TypeSky, nil
	case "safe":
		return targets.TypeSafe, nil
	case "suppl", "supplementary":
		return targets.TypeSuppl, nil
	default:
		return 0, fmt.Errorf("unknown target type %q", s)
	}
}
