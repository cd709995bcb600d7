package hardware

import (
	"math"
	"runtime"
	"sync"

	"github.com/ameisner/fiberassign/geom"
)

// radialCoeff are the cubic fit coefficients mapping field angle to
// focal-plane radius, highest order first. The constant term is zero:
// zero field angle sits at the focal-plane center.
var radialCoeff = [4]float64{8.297e5, -1750.0, 1.394e4, 0.0}

// RadialAng2Dist returns the radial distance on the focal plane in mm
// for a field angle in radians, evaluating the distortion fit in
// Horner form.
func (hw *Hardware) RadialAng2Dist(thetaRad float64) float64 {
	dist := 0.0
	for _, c := range radialCoeff {
		dist = thetaRad*dist + c
	}
	return dist
}

// RadialDist2Ang inverts RadialAng2Dist numerically: Newton iteration
// with a finite-difference derivative from a fixed starting guess,
// stopping when the reconstructed distance is within 1e-7 mm.
func (hw *Hardware) RadialDist2Ang(distMM float64) float64 {
	const deltaTheta = 1e-4
	const invDelta = 1.0 / deltaTheta

	thetaRad := 0.01
	errMM := 1.0
	for math.Abs(errMM) > 1e-7 {
		distCur := hw.RadialAng2Dist(thetaRad)
		distDelta := hw.RadialAng2Dist(thetaRad + deltaTheta)
		errMM = distCur - distMM
		thetaRad -= errMM / (invDelta * (distDelta - distCur))
	}
	return thetaRad
}

// RadecToXY projects a sky position onto the focal plane of a tile.
// All inputs are degrees; the result is focal-plane millimetres.
//
// The target is rotated so the tile center lands on the +x axis of the
// celestial frame, the angular offset from the axis becomes a radius
// through the distortion fit, and the position angle (plus the tile
// field rotation) orients the point on the plane.
func (hw *Hardware) RadecToXY(tileRA, tileDec, tileTheta, ra, dec float64) geom.Point {
	degToRad := math.Pi / 180.0

	// Inclination is 90 degrees minus the declination.
	incRad := (90.0 - dec) * degToRad
	raRad := ra * degToRad
	tileRARad := tileRA * degToRad
	tileDecRad := tileDec * degToRad
	tileThetaRad := tileTheta * degToRad

	sinInc := math.Sin(incRad)
	x0 := sinInc * math.Cos(raRad)
	y0 := sinInc * math.Sin(raRad)
	z0 := math.Cos(incRad)

	cosTileRA := math.Cos(tileRARad)
	sinTileRA := math.Sin(tileRARad)
	x1 := cosTileRA*x0 + sinTileRA*y0
	y1 := -sinTileRA*x0 + cosTileRA*y0
	z1 := z0

	cosTileDec := math.Cos(tileDecRad)
	sinTileDec := math.Sin(tileDecRad)
	x := cosTileDec*x1 + sinTileDec*z1
	y := y1
	z := -sinTileDec*x1 + cosTileDec*z1

	raAng := math.Atan2(y, x)
	if raAng < 0 {
		raAng += 2.0 * math.Pi
	}
	decAng := math.Pi/2 - math.Acos(z/math.Sqrt(x*x+y*y+z*z))

	sinHalfDec := math.Sin(decAng / 2)
	sinHalfRA := math.Sin(raAng / 2)
	radiusRad := 2 * math.Asin(math.Sqrt(
		sinHalfDec*sinHalfDec+math.Cos(decAng)*sinHalfRA*sinHalfRA))

	qRad := math.Atan2(z, -y)

	radiusMM := hw.RadialAng2Dist(radiusRad)
	rotated := qRad + tileThetaRad

	return geom.Point{
		X: radiusMM * math.Cos(rotated),
		Y: radiusMM * math.Sin(rotated),
	}
}

// XYToRadec is the inverse of RadecToXY: focal-plane millimetres back
// to (RA, Dec) in degrees.
func (hw *Hardware) XYToRadec(tileRA, tileDec, tileTheta, xMM, yMM float64) (float64, float64) {
	degToRad := math.Pi / 180.0
	radToDeg := 180.0 / math.Pi

	tileRARad := tileRA * degToRad
	tileDecRad := tileDec * degToRad
	tileThetaRad := tileTheta * degToRad

	radiusMM := math.Sqrt(xMM*xMM + yMM*yMM)
	radiusRad := hw.RadialDist2Ang(radiusMM)

	// q is the angle the position makes with the +x axis of the focal
	// plane, with the field rotation removed.
	qRad := math.Atan2(yMM, xMM) - tileThetaRad

	// Clockwise rotation around z by the radius angle. The y0 term is
	// zero, so only two components survive.
	x1 := math.Cos(radiusRad)
	y1 := -math.Sin(radiusRad)

	// Clockwise rotation around the x axis by q.
	x2 := x1
	y2 := y1 * math.Cos(qRad)
	z2 := -y1 * math.Sin(qRad)

	cosTileDec := math.Cos(tileDecRad)
	sinTileDec := math.Sin(tileDecRad)
	cosTileRA := math.Cos(tileRARad)
	sinTileRA := math.Sin(tileRARad)

	// Clockwise rotation around y by the tile declination.
	x3 := cosTileDec*x2 - sinTileDec*z2
	y3 := y2
	z3 := sinTileDec*x2 + cosTileDec*z2

	// Counter-clockwise rotation around z by the tile right ascension.
	x4 := cosTileRA*x3 - sinTileRA*y3
	y4 := sinTileRA*x3 + cosTileRA*y3
	z4 := z3

	raRad := math.Atan2(y4, x4)
	if raRad < 0 {
		raRad += 2.0 * math.Pi
	}
	decRad := math.Pi/2 - math.Acos(z4)

	ra := math.Mod(raRad*radToDeg, 360.0)
	dec := decRad * radToDeg
	return ra, dec
}

// RadecToXYMulti projects many sky positions in parallel. Each output
// slot is written by exactly one worker; threads <= 0 uses GOMAXPROCS.
func (hw *Hardware) RadecToXYMulti(tileRA, tileDec, tileTheta float64, ra, dec []float64, threads int) []geom.Point {
	out := make([]geom.Point, len(ra))
	parallelFor(len(ra), threads, func(i int) {
		out[i] = hw.RadecToXY(tileRA, tileDec, tileTheta, ra[i], dec[i])
	})
	return out
}

// XYToRadecMulti is the parallel inverse projection.
func (hw *Hardware) XYToRadecMulti(tileRA, tileDec, tileTheta float64, xMM, yMM []float64, threads int) ([]float64, []float64) {
	ra := make([]float64, len(xMM))
	dec := make([]float64, len(xMM))
	parallelFor(len(xMM), threads, func(i int) {
		ra[i], dec[i] = hw.XYToRadec(tileRA, tileDec, tileTheta, xMM[i], yMM[i])
	})
	return ra, dec
}

// parallelFor runs fn over [0, n) with a bounded worker pool. Workers
// consume contiguous index chunks so writes to pre-sized output slices
// stay disjoint.
func parallelFor(n, threads int, fn func(i int)) {
	if n == 0 {
		return
	}
	workers := threads
	if workers <= 0 || workers > runtime.GOMAXPROCS(0) {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	if workers == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		}(lo, hi)
	}
	wg.Wait()
}
