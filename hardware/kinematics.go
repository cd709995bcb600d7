package hardware

import (
	"math"

	"github.com/ameisner/fiberassign/geom"
)

// float32Eps is the tolerance for the fully-extended and fully-folded
// arm branches of the inverse kinematics.
const float32Eps = 1.1920928955078125e-07

// checkAngleRange wraps ang by one turn into [zero+min, zero+max] and
// reports whether it fits. The returned angle is the wrapped value.
func checkAngleRange(ang, zero, min, max float64) (float64, bool) {
	const twoPi = 2.0 * math.Pi
	absMin := zero + min
	absMax := zero + max
	if ang < absMin {
		ang += twoPi
	}
	if ang > absMax {
		ang -= twoPi
	}
	if ang < absMin || ang > absMax {
		return ang, false
	}
	return ang, true
}

// XYToThetaPhi computes the arm angles that put the fiber of a
// positioner at the given focal-plane position. The angles are wrapped
// into the positioner's allowed ranges; ok is false when the position
// is unreachable for any choice of angles.
func XYToThetaPhi(center, position geom.Point,
	thetaArm, phiArm, thetaZero, phiZero,
	thetaMin, phiMin, thetaMax, phiMax float64) (theta, phi float64, ok bool) {

	offset := position.Sub(center)

	sqThetaArm := thetaArm * thetaArm
	sqPhiArm := phiArm * phiArm
	sqOffset := offset.SqNorm()
	sqTotalArm := (thetaArm + phiArm) * (thetaArm + phiArm)
	sqDiffArm := (thetaArm - phiArm) * (thetaArm - phiArm)

	phi = math.Pi
	theta = 0.0

	switch {
	case math.Abs(sqOffset-sqTotalArm) <= float32Eps:
		// Maximum arm extension. Force phi to zero and compute theta.
		phi = 0.0
		theta = math.Atan2(offset.Y, offset.X)
	case math.Abs(sqDiffArm-sqOffset) <= float32Eps:
		// Arm folded fully inwards. Force phi to pi and compute theta.
		phi = math.Pi
		theta = math.Atan2(offset.Y, offset.X)
	default:
		if sqTotalArm < sqOffset || sqOffset < sqDiffArm {
			// Physically impossible for any choice of angles.
			return theta, phi, false
		}

		// Law of cosines gives the opening angle at the elbow; phi is
		// its supplement.
		opening := math.Acos((sqThetaArm + sqPhiArm - sqOffset) / (2.0 * thetaArm * phiArm))
		phi = math.Pi - opening

		// Angle from the theta arm to the line from the center to the
		// target position.
		nrmOffset := math.Sqrt(sqOffset)
		txy := math.Acos((sqThetaArm + sqOffset - sqPhiArm) / (2.0 * thetaArm * nrmOffset))
		theta = math.Atan2(offset.Y, offset.X) - txy
	}

	var phiOK, thetaOK bool
	phi, phiOK = checkAngleRange(phi, phiZero, phiMin, phiMax)
	theta, thetaOK = checkAngleRange(theta, thetaZero, thetaMin, thetaMax)
	if !phiOK || !thetaOK {
		return theta, phi, false
	}
	return theta, phi, true
}

// MovePositionerThetaPhi places copies of the local-frame theta and
// phi exclusion polygons at the requested pose. The phi template is
// first laid flat along +x at the end of the theta arm, both shapes
// rotate about the origin by theta, the phi shape rotates about its
// axis point (the elbow) by phi, and everything translates to the
// positioner center. ok is false when either angle is out of range.
func MovePositionerThetaPhi(shpTheta, shpPhi *geom.Shape,
	center geom.Point, theta, phi float64,
	thetaArm, phiArm, thetaZero, phiZero,
	thetaMin, phiMin, thetaMax, phiMax float64) bool {

	phi, phiOK := checkAngleRange(phi, phiZero, phiMin, phiMax)
	theta, thetaOK := checkAngleRange(theta, thetaZero, thetaMin, thetaMax)
	if !phiOK || !thetaOK {
		return false
	}

	csTheta := geom.AngleToCosSin(theta)
	csPhi := geom.AngleToCosSin(phi)

	shpPhi.Transl(geom.Point{X: thetaArm, Y: 0.0})
	shpTheta.RotationOrigin(csTheta)
	shpPhi.RotationOrigin(csTheta)
	shpPhi.Rotation(csPhi)
	shpPhi.Transl(center)
	shpTheta.Transl(center)
	return true
}

// MovePositionerXY composes inverse kinematics and forward placement.
func MovePositionerXY(shpTheta, shpPhi *geom.Shape,
	center, position geom.Point,
	thetaArm, phiArm, thetaZero, phiZero,
	thetaMin, phiMin, thetaMax, phiMax float64) bool {

	theta, phi, ok := XYToThetaPhi(center, position,
		thetaArm, phiArm, thetaZero, phiZero,
		thetaMin, phiMin, thetaMax, phiMax)
	if !ok {
		return false
	}
	return MovePositionerThetaPhi(shpTheta, shpPhi, center, theta, phi,
		thetaArm, phiArm, thetaZero, phiZero,
		thetaMin, phiMin, thetaMax, phiMax)
}

// LocThetaPhi runs the inverse kinematics for one location.
func (hw *Hardware) LocThetaPhi(loc int32, xy geom.Point) (theta, phi float64, ok bool) {
	return XYToThetaPhi(hw.CenterMM[loc], xy,
		hw.ThetaArm[loc], hw.PhiArm[loc],
		hw.ThetaOffset[loc], hw.PhiOffset[loc],
		hw.ThetaMin[loc], hw.PhiMin[loc],
		hw.ThetaMax[loc], hw.PhiMax[loc])
}

// PositionXYBad reports whether a location cannot put its fiber at the
// given focal-plane position. It is the cheap reachability probe used
// while building availability; no shapes are constructed.
func (hw *Hardware) PositionXYBad(loc int32, xy geom.Point) bool {
	_, _, ok := hw.LocThetaPhi(loc, xy)
	return !ok
}

// LocPositionXY places the exclusion polygons of a location so its
// fiber sits at the given position.
func (hw *Hardware) LocPositionXY(loc int32, xy geom.Point) (shpTheta, shpPhi geom.Shape, ok bool) {
	shpTheta = hw.ThetaExcl[loc].Copy()
	shpPhi = hw.PhiExcl[loc].Copy()
	ok = MovePositionerXY(&shpTheta, &shpPhi, hw.CenterMM[loc], xy,
		hw.ThetaArm[loc], hw.PhiArm[loc],
		hw.ThetaOffset[loc], hw.PhiOffset[loc],
		hw.ThetaMin[loc], hw.PhiMin[loc],
		hw.ThetaMax[loc], hw.PhiMax[loc])
	return shpTheta, shpPhi, ok
}

// LocPositionThetaPhi places the exclusion polygons of a location at
// the given arm angles.
func (hw *Hardware) LocPositionThetaPhi(loc int32, theta, phi float64) (shpTheta, shpPhi geom.Shape, ok bool) {
	shpTheta = hw.ThetaExcl[loc].Copy()
	shpPhi = hw.PhiExcl[loc].Copy()
	ok = MovePositionerThetaPhi(&shpTheta, &shpPhi, hw.CenterMM[loc], theta, phi,
		hw.ThetaArm[loc], hw.PhiArm[loc],
		hw.ThetaOffset[loc], hw.PhiOffset[loc],
		hw.ThetaMin[loc], hw.PhiMin[loc],
		hw.ThetaMax[loc], hw.PhiMax[loc])
	return shpTheta, shpPhi, ok
}
