// Package render is the color renderer: it takes camera native linear
// RGB, and uses a DNG camera profile plus the user's settings to
// produce linear ProPhoto RGB.
//
// The maths follows the "Mapping Camera Color Space to CIE XYZ Space"
// section of the DNG spec (pp. 85-88 in v1.6.0.0):
//
//   - the user's white balance is a camera-space neutral; we find the
//     chromaticity (xy) of that neutral, which needs an iterative solve,
//     since the matrix that maps camera to XYZ depends on the white's
//     temperature.
//   - the color matrices for the two calibration illuminants are
//     blended according to where that temperature falls between them.
//   - a forward matrix, if the profile has one, is the preferred way to
//     get from white balanced camera RGB into XYZ(D50); otherwise we
//     invert the color matrix and bolt on a Bradford adaptation.
package render

import(
	"math"

	"github.com/sirupsen/logrus"

	"github.com/abworrall/rawpipe/pkg/dcp"
	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/emath"
	"github.com/abworrall/rawpipe/pkg/settings"
)

const(
	LUTSize = 65536

	maxWhitePasses   = 30
	whiteConvergence = 1e-7
	defaultTemp      = 5000.0
)

// State is everything a kernel needs to render a pixel. It is built
// from a profile and a snapshot of the settings, and never changed
// after that, so any number of workers can share it.
type State struct {
	Profile        *dcp.Profile
	Values         settings.Values

	WhiteXY        ecolor.XY
	CameraWhite    emath.Vec3 // scaled so the max is 1, clamped to [0.001,1]
	CameraToPCS    emath.Mat3 // camera -> XYZ(D50)
	CameraToOutput emath.Mat3 // camera -> linear ProPhoto

	Exposure       float64 // multiplier, 2^stops
	Saturation     float64
	Hue            float64 // sextants

	ToneLUT        []float64
	HueSatMap      *dcp.HueSatMap
	LookTable      *dcp.HueSatMap

	vec            vectorState
}

// NewState does the white balance solve and precomputes the tables.
// It never fails: singular matrices are logged, and a usable fallback
// is put in their place.
func NewState(p *dcp.Profile, v settings.Values, log logrus.FieldLogger) *State {
	if log == nil {
		log = logrus.StandardLogger()
	}
	st := &State{
		Profile: p,
		Values: v,
		Exposure: math.Pow(2, v.Exposure),
		Saturation: v.Saturation,
		Hue: v.Hue / 60.0,
		HueSatMap: p.HueSatMap(),
		LookTable: p.LookTable,
	}

	neutral := WhiteBalanceNeutral(v.Warmth, v.Tint)
	st.WhiteXY = NeutralToXY(p, neutral)
	st.CameraWhite, st.CameraToPCS = SetWhiteXY(p, st.WhiteXY, log)
	st.CameraToOutput = ecolor.XYZD50_to_ProPhoto.Mult(st.CameraToPCS)

	st.ToneLUT = BuildToneLUT(p.ToneCurve, v.Curve, log)
	st.vec = newVectorState(st)

	log.WithFields(logrus.Fields{
		"white_x": st.WhiteXY.X,
		"white_y": st.WhiteXY.Y,
		"camera_white": st.CameraWhite.String(),
	}).Debug("render: state rebuilt")

	return st
}

// WhiteBalanceNeutral turns the warmth/tint sliders into a camera space
// neutral, normalized so its largest channel is 1.
func WhiteBalanceNeutral(warmth, tint float64) emath.Vec3 {
	pre := emath.Vec3{
		(1.0 + warmth) * (2.0 - tint),
		1.0,
		(1.0 - warmth) * (2.0 - tint),
	}
	pre = pre.Clamp(0.001, 100)

	neutral := emath.Vec3{1 / pre[0], 1 / pre[1], 1 / pre[2]}
	return neutral.Scale(1 / neutral.Max())
}

// Alpha is the weight of the first illuminant's calibration, for a
// scene at the given temperature. Interpolation is linear in inverse
// temperature, and clamped at the calibration temperatures.
func Alpha(p *dcp.Profile, temp float64) float64 {
	if !p.DualIlluminant() {
		return 1.0
	}
	t1, t2 := p.Temperature1, p.Temperature2
	if t1 > t2 {
		return 1.0 - lowWeight(temp, t2, t1)
	}
	return lowWeight(temp, t1, t2)
}

// lowWeight is the weight of the lower of two temperatures
func lowWeight(temp, lo, hi float64) float64 {
	if temp <= lo {
		return 1.0
	} else if temp >= hi {
		return 0.0
	}
	return (1.0/temp - 1.0/hi) / (1.0/lo - 1.0/hi)
}

// FindXYZToCamera returns the color matrix (XYZ -> camera) for a white
// chromaticity, and the forward matrix if the profile has any.
//
// The forward matrices are blended with (1-alpha), the reverse of the
// color matrices.
func FindXYZToCamera(p *dcp.Profile, white ecolor.XY) (emath.Mat3, *emath.Mat3) {
	temp, _, ok := white.Temperature()
	if !ok || temp <= 0 {
		temp = defaultTemp
	}
	alpha := Alpha(p, temp)

	colorMatrix := p.ColorMatrix1
	if p.ColorMatrix2 != nil && p.DualIlluminant() {
		colorMatrix = emath.Interpolate(p.ColorMatrix1, *p.ColorMatrix2, alpha)
	}

	var forward *emath.Mat3
	switch {
	case p.ForwardMatrix1 != nil && p.ForwardMatrix2 != nil:
		fm := emath.Interpolate(*p.ForwardMatrix1, *p.ForwardMatrix2, 1.0 - alpha)
		forward = &fm
	case p.ForwardMatrix1 != nil:
		forward = p.ForwardMatrix1
	case p.ForwardMatrix2 != nil:
		forward = p.ForwardMatrix2
	}

	return colorMatrix, forward
}

// NeutralToXY finds the white chromaticity for a camera neutral, by
// fixed point iteration starting from D50.
func NeutralToXY(p *dcp.Profile, neutral emath.Vec3) ecolor.XY {
	return iterateWhite(ecolor.D50, func(last ecolor.XY) (ecolor.XY, bool) {
		colorMatrix, _ := FindXYZToCamera(p, last)
		cameraToXYZ, err := colorMatrix.Inverse()
		if err != nil {
			return last, false
		}
		return ecolor.XYZToXY(cameraToXYZ.Apply(neutral)), true
	})
}

// iterateWhite applies step until two guesses agree. It gives up after
// maxWhitePasses, and returns the average of the last two guesses. A
// step that fails leaves the previous guess as the answer.
func iterateWhite(last ecolor.XY, step func(ecolor.XY) (ecolor.XY, bool)) ecolor.XY {
	for pass:=0; pass<maxWhitePasses; pass++ {
		next, ok := step(last)
		if !ok {
			return last
		}

		if math.Abs(next.X - last.X) + math.Abs(next.Y - last.Y) < whiteConvergence {
			return next
		}

		if pass == maxWhitePasses-1 {
			return ecolor.XY{X: (last.X + next.X) / 2, Y: (last.Y + next.Y) / 2}
		}

		last = next
	}

	return last
}

// SetWhiteXY works out the camera white, and the camera -> XYZ(D50)
// matrix, for a white chromaticity.
func SetWhiteXY(p *dcp.Profile, white ecolor.XY, log logrus.FieldLogger) (emath.Vec3, emath.Mat3) {
	colorMatrix, forward := FindXYZToCamera(p, white)

	cameraWhite := colorMatrix.Apply(white.XYZ())
	if peak := cameraWhite.Max(); peak > 0 {
		cameraWhite = cameraWhite.Scale(1 / peak)
	}
	cameraWhite = cameraWhite.Clamp(0.001, 1.0)

	if forward != nil {
		return cameraWhite, forward.Mult(cameraWhite.InvertDiag())
	}

	// No forward matrix; map PCS white to our white, then into camera space
	pcsToCamera := colorMatrix.Mult(ecolor.MapWhiteMatrix(ecolor.D50, white))
	if scale := pcsToCamera.Apply(ecolor.D50XYZ()).Max(); scale > 0 {
		pcsToCamera = pcsToCamera.Scale(1 / scale)
	}

	cameraToPCS, err := pcsToCamera.Inverse()
	if err != nil {
		log.WithError(err).WithField("profile", p.Name).Warn("render: singular color matrix, using identity")
		return cameraWhite, emath.Identity()
	}
	return cameraWhite, cameraToPCS
}

// BuildToneLUT samples the profile's tone curve (if any) followed by
// the user's curve (if it has at least two knots) into a table.
func BuildToneLUT(profileCurve *dcp.Spline, knots []settings.Knot, log logrus.FieldLogger) []float64 {
	var user *dcp.Spline
	if len(knots) > 1 {
		xs, ys := make([]float64, len(knots)), make([]float64, len(knots))
		for i, k := range knots {
			xs[i], ys[i] = k.X, k.Y
		}
		var err error
		if user, err = dcp.NewSpline(xs, ys); err != nil {
			log.WithError(err).Warn("render: bad curve, ignoring it")
			user = nil
		}
	}

	lut := make([]float64, LUTSize)
	for i := range lut {
		x := float64(i) / float64(LUTSize - 1)
		if profileCurve != nil {
			x = profileCurve.Eval(x)
		}
		if user != nil {
			x = user.Eval(x)
		}
		lut[i] = emath.Clamp(x, 0, 1)
	}
	return lut
}

// tone interpolates the LUT at v in [0,1]
func (st *State)tone(v float64) float64 {
	f := v * (LUTSize - 1)
	i := int(f)
	if i >= LUTSize - 1 {
		return st.ToneLUT[LUTSize-1]
	} else if i < 0 {
		return st.ToneLUT[0]
	}
	frac := f - float64(i)
	return st.ToneLUT[i]*(1 - frac) + st.ToneLUT[i+1]*frac
}

// Quantize maps [0,1] onto [0,0xFFFF], rounding to nearest
func Quantize(f float64) uint16 {
	if f <= 0 {
		return 0
	} else if f >= 1 {
		return 0xFFFF
	}
	return uint16(f * 0xFFFF + 0.5)
}
