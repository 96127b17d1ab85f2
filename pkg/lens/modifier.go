package lens

import(
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/abworrall/rawpipe/pkg/image16"
)

// Flags say which corrections a Modifier will actually make
type Flags int

const(
	FlagTCA Flags = 1 << iota
	FlagVignetting
	FlagDistortion
	FlagGeometry
	FlagScale

	FlagAll = FlagTCA | FlagVignetting | FlagDistortion | FlagGeometry | FlagScale

	// The corrections that move pixels, rather than change their values
	FlagsGeometric = FlagTCA | FlagDistortion | FlagGeometry | FlagScale
)

func (f Flags)Has(o Flags) bool { return f & o != 0 }

func (f Flags)String() string {
	names := []string{"tca", "vignetting", "distortion", "geometry", "scale"}
	parts := []string{}
	for i, name := range names {
		if f & (1 << uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// A Modifier holds a lens's calibration, resolved for one focal length
// and aperture, and applies it to an image of a given size.
//
// Coordinates are normalized so that 1.0 is half the shorter side of
// the sensor the lens was calibrated on, centred on the image centre.
type Modifier struct {
	lens       *Lens
	crop       float64
	w, h       int

	cx, cy     float64
	norm       float64 // pixels -> normalized
	focal      float64 // normalized units

	flags      Flags
	distortion *FocalCalib
	tca        *FocalCalib
	vignetting *FocalCalib
	target     Geometry
	scale      float64
}

// Calibration sensors are assumed to be 3:2, so half the short side is
// this many mm, divided by the crop factor.
const fullFrameHalfHeight = 12.0

// NewModifier prepares a modifier for a w x h image, taken on a camera
// with the given crop factor.
func NewModifier(l *Lens, crop float64, w, h int) *Modifier {
	if crop <= 0 {
		crop = 1.0
	}
	lensCrop := l.Crop
	if lensCrop <= 0 {
		lensCrop = 1.0
	}

	unit := float64(min(w, h)) / 2.0 * crop / lensCrop
	if unit <= 0 {
		unit = 1
	}

	return &Modifier{
		lens: l,
		crop: crop,
		w: w,
		h: h,
		cx: float64(w - 1) / 2.0,
		cy: float64(h - 1) / 2.0,
		norm: 1.0 / unit,
		scale: 1.0,
	}
}

func (m *Modifier)String() string {
	return fmt.Sprintf("modifier[%s, %dx%d, crop %.2f, %s]", m.lens.Model, m.w, m.h, m.crop, m.flags)
}

func (m *Modifier)Flags() Flags { return m.flags }

// Initialize resolves the calibration for a focal length (mm) and
// aperture (f-number), and works out which of the wanted corrections
// would make any difference. A distance is accepted but not used; the
// nearest aperture's vignetting is used whatever the distance.
func (m *Modifier)Initialize(focal, aperture, distance, scale float64, target Geometry, want Flags) Flags {
	m.flags, m.target, m.scale = 0, Unknown, 1.0
	calib := m.lens.Calibration

	if want.Has(FlagDistortion) {
		if m.distortion = interpolateFocal(calib.Distortion, focal); m.distortion != nil && !isZero(m.distortion.Terms) {
			m.flags |= FlagDistortion
		}
	}

	if want.Has(FlagTCA) {
		if m.tca = interpolateFocal(calib.TCA, focal); m.tca != nil && !isNeutralTCA(m.tca) {
			m.flags |= FlagTCA
		}
	}

	if want.Has(FlagVignetting) {
		if m.vignetting = interpolateVignetting(calib.Vignetting, focal, aperture); m.vignetting != nil && !isZero(m.vignetting.Terms) {
			m.flags |= FlagVignetting
		}
	}

	if want.Has(FlagGeometry) && target != Unknown && target != m.lens.geometry() && focal > 0 {
		m.target = target
		lensCrop := m.lens.Crop
		if lensCrop <= 0 {
			lensCrop = 1.0
		}
		m.focal = focal * lensCrop / fullFrameHalfHeight
		m.flags |= FlagGeometry
	}

	if want.Has(FlagScale) && scale > 0 && scale != 1.0 {
		m.scale = scale
		m.flags |= FlagScale
	}

	return m.flags
}

// ApplyColorModification undoes vignetting for the pixels of img inside
// roi, in place. img may be a subframe; roi is in its coordinates.
func (m *Modifier)ApplyColorModification(img *image16.Image, roi image.Rectangle) {
	if !m.flags.Has(FlagVignetting) {
		return
	}
	if img.Frozen() {
		panic(fmt.Sprintf("%s: vignetting correction on frozen image", img))
	}

	k := m.vignetting.Terms
	off := img.Offset()
	roi = roi.Intersect(img.Rect())

	for y:=roi.Min.Y; y<roi.Max.Y; y++ {
		row := img.Row(y)
		ny := (float64(y + off.Y) - m.cy) * m.norm

		for x:=roi.Min.X; x<roi.Max.X; x++ {
			nx := (float64(x + off.X) - m.cx) * m.norm
			r2 := nx*nx + ny*ny
			c := 1.0 + r2*(k[0] + r2*(k[1] + r2*k[2]))
			if c <= 1e-4 {
				continue
			}
			gain := 1.0 / c

			px := row[x*image16.Channels : x*image16.Channels+image16.Channels]
			for i := range px {
				px[i] = clamp16(float64(px[i]) * gain)
			}
		}
	}
}

// ApplySubpixelDistortion fills out with the source positions for n
// pixels of row y, starting at x. Each pixel gets six floats: x,y for
// red, then green, then blue.
func (m *Modifier)ApplySubpixelDistortion(x, y float64, n int, out []float32) {
	if len(out) < n*6 {
		panic(fmt.Sprintf("subpixel distortion: %d floats for %d pixels", len(out), n))
	}

	ny0 := (y - m.cy) * m.norm

	for i:=0; i<n; i++ {
		nx, ny := (x + float64(i) - m.cx) * m.norm, ny0

		if m.flags.Has(FlagScale) {
			nx, ny = nx / m.scale, ny / m.scale
		}
		if m.flags.Has(FlagGeometry) {
			nx, ny = m.toLensGeometry(nx, ny)
		}
		if m.flags.Has(FlagDistortion) {
			if r := math.Hypot(nx, ny); r > 0 {
				k := distort(m.distortion, r) / r
				nx, ny = nx*k, ny*k
			}
		}

		kr, kb := 1.0, 1.0
		if m.flags.Has(FlagTCA) {
			kr, kb = tcaFactors(m.tca, math.Hypot(nx, ny))
		}

		o := out[i*6 : i*6+6]
		o[0], o[1] = m.toPixels(nx*kr, ny*kr)
		o[2], o[3] = m.toPixels(nx, ny)
		o[4], o[5] = m.toPixels(nx*kb, ny*kb)
	}
}

func (m *Modifier)toPixels(nx, ny float64) (float32, float32) {
	return float32(nx/m.norm + m.cx), float32(ny/m.norm + m.cy)
}

// toLensGeometry maps a point in the target projection to where the
// lens's own projection put it.
func (m *Modifier)toLensGeometry(nx, ny float64) (float64, float64) {
	r := math.Hypot(nx, ny)
	if r == 0 {
		return nx, ny
	}
	f := m.focal

	var r2 float64
	switch m.lens.geometry() {
	case Fisheye:
		// rectilinear target
		r2 = f * math.Atan(r/f)
	default:
		// fisheye target, rectilinear lens
		theta := r / f
		if theta >= math.Pi/2 - 1e-6 {
			r2 = 1e6
		} else {
			r2 = f * math.Tan(theta)
		}
	}
	return nx * r2 / r, ny * r2 / r
}

func distort(c *FocalCalib, r float64) float64 {
	t := c.Terms
	switch c.Model {
	case "poly3":
		return r * (1 - t[0] + t[0]*r*r)
	case "poly5":
		r2 := r * r
		return r * (1 + t[0]*r2 + t[1]*r2*r2)
	case "ptlens":
		return r * (t[0]*r*r*r + t[1]*r*r + t[2]*r + 1 - t[0] - t[1] - t[2])
	}
	return r
}

func tcaFactors(c *FocalCalib, r float64) (kr, kb float64) {
	t := c.Terms
	switch c.Model {
	case "linear":
		return t[0], t[1]
	case "poly3":
		return t[4]*r*r + t[2]*r + t[0], t[5]*r*r + t[3]*r + t[1]
	}
	return 1, 1
}

func isNeutralTCA(c *FocalCalib) bool {
	t := c.Terms
	switch c.Model {
	case "linear":
		return t[0] == 1 && t[1] == 1
	case "poly3":
		return t[0] == 1 && t[1] == 1 && isZero(t[2:])
	}
	return true
}

func isZero(terms []float64) bool {
	for _, t := range terms {
		if t != 0 {
			return false
		}
	}
	return true
}

// interpolateFocal blends the two calibrations either side of focal.
// Outside the calibrated range the nearest one is used as is.
func interpolateFocal(calibs []FocalCalib, focal float64) *FocalCalib {
	if len(calibs) == 0 {
		return nil
	}

	var lo, hi *FocalCalib
	for i := range calibs {
		c := &calibs[i]
		if c.Focal <= focal {
			lo = c
		}
		if c.Focal >= focal && hi == nil {
			hi = c
		}
	}

	switch {
	case lo == nil:
		return hi
	case hi == nil, lo.Focal == hi.Focal:
		return lo
	case lo.Model != hi.Model:
		if focal - lo.Focal <= hi.Focal - focal {
			return lo
		}
		return hi
	}

	t := (focal - lo.Focal) / (hi.Focal - lo.Focal)
	ret := &FocalCalib{Model: lo.Model, Focal: focal, Terms: make([]float64, len(lo.Terms))}
	for i := range ret.Terms {
		ret.Terms[i] = lo.Terms[i]*(1-t) + hi.Terms[i]*t
	}
	return ret
}

// interpolateVignetting picks the calibrated aperture nearest to the
// one asked for, then interpolates across focal length.
func interpolateVignetting(calibs []VignettingCalib, focal, aperture float64) *FocalCalib {
	if len(calibs) == 0 {
		return nil
	}

	best := calibs[0].Aperture
	for _, c := range calibs {
		if math.Abs(c.Aperture - aperture) < math.Abs(best - aperture) {
			best = c.Aperture
		}
	}

	atAperture := []FocalCalib{}
	for _, c := range calibs {
		if c.Aperture == best {
			atAperture = append(atAperture, FocalCalib{Model: c.Model, Focal: c.Focal, Terms: c.Terms})
		}
	}
	return interpolateFocal(atAperture, focal)
}

func clamp16(f float64) uint16 {
	if f <= 0 {
		return 0
	} else if f >= 0xFFFF {
		return 0xFFFF
	}
	return uint16(f + 0.5)
}
