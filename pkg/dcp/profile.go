// Package dcp loads DNG Camera Profiles: the calibration data that
// says how a specific camera's raw RGB maps to XYZ, under one or two
// reference illuminants, plus optional hue/sat/value tweaks and a
// tone curve.
//
// A Profile is immutable once loaded, and is shared between renders.
package dcp

import(
	"fmt"

	"github.com/google/uuid"

	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/emath"
)

type Profile struct {
	ID          uuid.UUID
	Filename    string
	Model       string // UniqueCameraModel
	Name        string // ProfileName
	Copyright   string
	EmbedPolicy int

	// EXIF LightSource codes, and the temperatures they imply
	Illuminant1  int
	Illuminant2  int
	Temperature1 float64
	Temperature2 float64

	// XYZ -> camera. ColorMatrix2 is nil for single illuminant profiles.
	ColorMatrix1 emath.Mat3
	ColorMatrix2 *emath.Mat3

	// White balanced camera -> XYZ(D50), normalized at load time. Either may be nil.
	ForwardMatrix1 *emath.Mat3
	ForwardMatrix2 *emath.Mat3

	HueSatMap1 *HueSatMap
	HueSatMap2 *HueSatMap
	LookTable  *HueSatMap
	ToneCurve  *Spline
}

func (p *Profile)String() string {
	return fmt.Sprintf("dcp[%s %q, illum %d(%.0fK)/%d(%.0fK), fm=%v/%v, hsm=%v/%v, look=%v, curve=%v]",
		p.Model, p.Name, p.Illuminant1, p.Temperature1, p.Illuminant2, p.Temperature2,
		p.ForwardMatrix1 != nil, p.ForwardMatrix2 != nil, p.HueSatMap1 != nil, p.HueSatMap2 != nil,
		p.LookTable != nil, p.ToneCurve != nil)
}

func (p *Profile)UniqueID() string { return p.ID.String() }

// DualIlluminant is true if there is enough data to interpolate between two calibrations
func (p *Profile)DualIlluminant() bool {
	return p.ColorMatrix2 != nil && p.Temperature1 > 0 && p.Temperature2 > 0 && p.Temperature1 != p.Temperature2
}

// HueSatMap returns the table the renderer uses, which is always the
// second illuminant's. It is not interpolated by temperature the way
// the color matrices are, and a profile with only HueSatMap1 gets no
// table at all.
func (p *Profile)HueSatMap() *HueSatMap {
	return p.HueSatMap2
}

// NormalizeForwardMatrix scales the rows of a forward matrix so that a
// camera white of [1,1,1] lands exactly on the D50 white.
func NormalizeForwardMatrix(fm emath.Mat3) emath.Mat3 {
	camWhite := emath.Vec3{1, 1, 1}
	xyz := fm.Apply(camWhite)
	if xyz[0] == 0 || xyz[1] == 0 || xyz[2] == 0 {
		return fm
	}
	return ecolor.D50XYZ().Diag().Mult(xyz.InvertDiag()).Mult(fm)
}
