package ecolor

import(
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/rawpipe/pkg/emath"
)

// A Space is an RGB output space, defined by how to get there from the
// profile connection space (XYZ relative to D50), and an optional
// transfer function that is applied after the matrix.
type Space struct {
	Name    string
	FromPCS emath.Mat3
	Encode  func(emath.Vec3) emath.Vec3 // nil means linear
}

var(
	// Translates XYZ(D50) to linear ProPhoto (ROMM RGB), which is itself a D50 space
	// so no chromatic adaptation is needed.
	XYZD50_to_ProPhoto = emath.Mat3{
		 1.3459433, -0.2556075, -0.0511118,
		-0.5445989,  1.5081673,  0.0205351,
		 0.0000000,  0.0000000,  1.2118128,
	}

	// Translates XYZ(D50) to sRGB(D65)
	//
	// https://sites.google.com/site/crossstereo/raw-converting/dng
	// http://www.brucelindbloom.com/index.html?Eqn_RGB_XYZ_Matrix.html
	//
	// We use the second table on Bruce Lindblooms's site; it bundles in
	// the chromatic adaptation transform that we need to move from D50
	// to D65 reference whites without seeing the image's white balance
	// shift. (Most XYZ->sRGB matrices on the web ignore the change to
	// reference white, so come out looking wrong)
	XYZD50_to_linear_sRGBD65 = emath.Mat3{
		 3.1338561, -1.6168667, -0.4906146,
		-0.9787684,  1.9161415,  0.0334540,
		 0.0719453, -0.2289914,  1.4052427,
	}

	// What the color renderer emits
	ProPhotoLinear = &Space{Name: "prophoto-linear", FromPCS: XYZD50_to_ProPhoto}
	ProPhoto       = &Space{Name: "prophoto", FromPCS: XYZD50_to_ProPhoto, Encode: GammaEncode(1.8)}
	SRGBLinear     = &Space{Name: "srgb-linear", FromPCS: XYZD50_to_linear_sRGBD65}
	SRGB           = &Space{Name: "srgb", FromPCS: XYZD50_to_linear_sRGBD65, Encode: SRGBEncode}

	Spaces = []*Space{ProPhotoLinear, ProPhoto, SRGBLinear, SRGB}
)

// SpaceByName returns nil if nothing matches
func SpaceByName(name string) *Space {
	for _, s := range Spaces {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (s *Space)String() string {
	if s == nil {
		return "<none>"
	}
	return s.Name
}

// ConversionTo returns the matrix that takes linear RGB in this space
// into linear RGB in the other one.
func (s *Space)ConversionTo(dst *Space) emath.Mat3 {
	return dst.FromPCS.Mult(s.FromPCS.MustInverse())
}

// SRGBEncode does the sRGB companding ("gamma expansion"), via go-colorful.
// Each channel in `v` is assumed to be in the range [0,1]
func SRGBEncode(v emath.Vec3) emath.Vec3 {
	c := colorful.LinearRgb(v[0], v[1], v[2])
	return emath.Vec3{c.R, c.G, c.B}
}

func GammaEncode(gamma float64) func(emath.Vec3) emath.Vec3 {
	return func(v emath.Vec3) emath.Vec3 {
		return emath.Vec3{
			gammaEncode(v[0], gamma),
			gammaEncode(v[1], gamma),
			gammaEncode(v[2], gamma),
		}
	}
}

// ROMM RGB transfer function, linear toe below 1/512
func gammaEncode(f, gamma float64) float64 {
	if f <= 0 {
		return 0
	} else if f < 1.0/512.0 {
		return 16 * f
	}
	return math.Pow(f, 1.0/gamma)
}
