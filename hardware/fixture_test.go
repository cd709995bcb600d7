package hardware

import (
	"context"
	"testing"

	"github.com/ameisner/fiberassign/geom"
	"github.com/ameisner/fiberassign/internal/logging"
)

// testConfig builds a minimal focal-plane table: science positioners
// with 3 mm arms, unconstrained angle ranges, a small square theta body
// and a thin rectangular phi arm.
func testConfig(centers []geom.Point) Config {
	n := len(centers)
	cfg := Config{}
	for i := 0; i < n; i++ {
		cfg.Location = append(cfg.Location, int32(i+1))
		cfg.Petal = append(cfg.Petal, 0)
		cfg.Device = append(cfg.Device, int32(i))
		cfg.Slitblock = append(cfg.Slitblock, 0)
		cfg.Blockfiber = append(cfg.Blockfiber, int32(i))
		cfg.Fiber = append(cfg.Fiber, int32(i))
		cfg.DeviceType = append(cfg.DeviceType, DeviceTypePOS)
		cfg.XMM = append(cfg.XMM, centers[i].X)
		cfg.YMM = append(cfg.YMM, centers[i].Y)
		cfg.State = append(cfg.State, StateOK)

		cfg.ThetaOffsetDeg = append(cfg.ThetaOffsetDeg, 0)
		cfg.ThetaMinDeg = append(cfg.ThetaMinDeg, -180)
		cfg.ThetaMaxDeg = append(cfg.ThetaMaxDeg, 180)
		cfg.ThetaArm = append(cfg.ThetaArm, 3)
		cfg.PhiOffsetDeg = append(cfg.PhiOffsetDeg, 0)
		cfg.PhiMinDeg = append(cfg.PhiMinDeg, -180)
		cfg.PhiMaxDeg = append(cfg.PhiMaxDeg, 180)
		cfg.PhiArm = append(cfg.PhiArm, 3)

		cfg.ExclTheta = append(cfg.ExclTheta, geom.NewShape([]geom.Point{
			{X: -0.4, Y: -0.4}, {X: 0.4, Y: -0.4}, {X: 0.4, Y: 0.4}, {X: -0.4, Y: 0.4},
		}))
		cfg.ExclPhi = append(cfg.ExclPhi, geom.NewShape([]geom.Point{
			{X: 0, Y: -0.05}, {X: 3, Y: -0.05}, {X: 3, Y: 0.05}, {X: 0, Y: 0.05},
		}))
		cfg.ExclGFA = append(cfg.ExclGFA, geom.Shape{})
		cfg.ExclPetal = append(cfg.ExclPetal, geom.Shape{})
	}
	return cfg
}

func testHardware(t *testing.T, centers []geom.Point) *Hardware {
	t.Helper()
	hw, err := New(context.Background(), logging.Noop(), testConfig(centers))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return hw
}
