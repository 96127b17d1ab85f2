package ecolor

import(
	"math"

	"github.com/abworrall/rawpipe/pkg/emath"
)

// Chromaticity coordinates, the "xy" part of xyY
type XY struct {
	X, Y float64
}

var(
	// The DNG spec's D50, which is also the profile connection space white
	D50 = XY{0.3457, 0.3585}

	// Bradford cone response matrix, used for chromatic adaptation
	bradford = emath.Mat3{
		 0.8951,  0.2664, -0.1614,
		-0.7502,  1.7135,  0.0367,
		 0.0389, -0.0685,  1.0296,
	}
)

// XYZ with Y normalized to 1
func (xy XY)XYZ() emath.Vec3 {
	// Avoid divide by zero for degenerate inputs; pin it near the spectral locus
	x := emath.Clamp(xy.X, 0.000001, 0.999999)
	y := emath.Clamp(xy.Y, 0.000001, 0.999999)
	if x + y > 0.999999 {
		scale := 0.999999 / (x + y)
		x *= scale
		y *= scale
	}
	return emath.Vec3{x / y, 1.0, (1.0 - x - y) / y}
}

func XYZToXY(xyz emath.Vec3) XY {
	total := xyz[0] + xyz[1] + xyz[2]
	if total <= 0 {
		return D50
	}
	return XY{xyz[0] / total, xyz[1] / total}
}

// D50XYZ is the PCS white as XYZ
func D50XYZ() emath.Vec3 {
	return D50.XYZ()
}

// MapWhiteMatrix returns a Bradford chromatic adaptation matrix that
// maps XYZ values under white1 to XYZ values under white2.
func MapWhiteMatrix(white1, white2 XY) emath.Mat3 {
	w1 := bradford.Apply(white1.XYZ())
	w2 := bradford.Apply(white2.XYZ())

	// Scaling factors, each clipped so that extreme whites don't blow things up
	a := emath.Vec3{}
	for i:=0; i<3; i++ {
		if w1[i] > 0 {
			a[i] = emath.Clamp(w2[i] / w1[i], 0.1, 10.0)
		} else {
			a[i] = 10.0
		}
	}

	return bradford.MustInverse().Mult(a.Diag()).Mult(bradford)
}

// Robertson's method, in the uv (CIE 1960) space. Rows are {mireds, u, v, slope}.
var tempTable = [31][4]float64{
	{  0, 0.18006, 0.26352,   -0.24341},
	{ 10, 0.18066, 0.26589,   -0.25479},
	{ 20, 0.18133, 0.26846,   -0.26876},
	{ 30, 0.18208, 0.27119,   -0.28539},
	{ 40, 0.18293, 0.27407,   -0.30470},
	{ 50, 0.18388, 0.27709,   -0.32675},
	{ 60, 0.18494, 0.28021,   -0.35156},
	{ 70, 0.18611, 0.28342,   -0.37915},
	{ 80, 0.18740, 0.28668,   -0.40955},
	{ 90, 0.18880, 0.28997,   -0.44278},
	{100, 0.19032, 0.29326,   -0.47888},
	{125, 0.19462, 0.30141,   -0.58204},
	{150, 0.19962, 0.30921,   -0.70471},
	{175, 0.20525, 0.31647,   -0.84901},
	{200, 0.21142, 0.32312,   -1.0182},
	{225, 0.21807, 0.32909,   -1.2168},
	{250, 0.22511, 0.33439,   -1.4512},
	{275, 0.23247, 0.33904,   -1.7298},
	{300, 0.24010, 0.34308,   -2.0637},
	{325, 0.24702, 0.34655,   -2.4681},
	{350, 0.25591, 0.34951,   -2.9641},
	{375, 0.26400, 0.35200,   -3.5814},
	{400, 0.27218, 0.35407,   -4.3633},
	{425, 0.28039, 0.35577,   -5.3762},
	{450, 0.28863, 0.35714,   -6.7262},
	{475, 0.29685, 0.35823,   -8.5955},
	{500, 0.30505, 0.35907,  -11.324},
	{525, 0.31320, 0.35968,  -15.628},
	{550, 0.32129, 0.36011,  -23.325},
	{575, 0.32931, 0.36038,  -40.770},
	{600, 0.33724, 0.36051, -116.45},
}

const tintScale = -3000.0

// Temperature returns the correlated color temperature (kelvin) and tint
// of a chromaticity. ok is false if the input isn't somewhere sensible.
func (xy XY)Temperature() (temp, tint float64, ok bool) {
	denom := 1.5 - xy.X + 6.0*xy.Y
	if denom == 0 {
		return 0, 0, false
	}
	u := 2.0 * xy.X / denom
	v := 3.0 * xy.Y / denom

	lastDt, lastDu, lastDv := 0.0, 0.0, 0.0

	for i:=1; i<len(tempTable); i++ {
		// Unit vector along the isotemperature line
		du := 1.0
		dv := tempTable[i][3]
		l := math.Hypot(du, dv)
		du /= l
		dv /= l

		uu := u - tempTable[i][1]
		vv := v - tempTable[i][2]

		// Signed distance from the line
		dt := -uu*dv + vv*du

		if dt <= 0 || i == len(tempTable)-1 {
			if dt > 0 {
				dt = 0
			}
			dt = -dt

			f := 0.0
			if i > 1 {
				f = dt / (lastDt + dt)
			}

			mireds := tempTable[i-1][0]*f + tempTable[i][0]*(1-f)
			if mireds <= 0 {
				return 0, 0, false
			}
			temp = 1.0e6 / mireds

			uu = u - (tempTable[i-1][1]*f + tempTable[i][1]*(1-f))
			vv = v - (tempTable[i-1][2]*f + tempTable[i][2]*(1-f))

			du = du*(1-f) + lastDu*f
			dv = dv*(1-f) + lastDv*f
			l = math.Hypot(du, dv)
			du /= l
			dv /= l

			tint = (uu*du + vv*dv) * tintScale
			return temp, tint, true
		}

		lastDt, lastDu, lastDv = dt, du, dv
	}

	return 0, 0, false
}

// Correlated color temperatures for the EXIF LightSource codes that DCP
// files use for CalibrationIlluminant1/2. Zero means unknown.
func IlluminantTemperature(lightSource int) float64 {
	switch lightSource {
	case 17, 3:            return 2850  // Standard light A, tungsten
	case 24:               return 3200  // ISO studio tungsten
	case 16:               return 2940  // Warm white fluorescent
	case 15:               return 3450  // White fluorescent
	case 14, 2:            return 4150  // Cool white fluorescent, fluorescent
	case 23:               return 5000  // D50
	case 13:               return 5000  // Day white fluorescent
	case 20, 1, 4, 9, 18:  return 5500  // D55, daylight, flash, fine weather, standard light B
	case 21, 10, 19, 12:   return 6500  // D65, cloudy, standard light C, daylight fluorescent
	case 22, 11:           return 7500  // D75, shade
	}
	return 0
}
