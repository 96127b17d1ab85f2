package dcp

import(
	"fmt"

	"github.com/abworrall/rawpipe/pkg/ecolor"
)

// A HueSatDelta is one entry of a hue/sat/value table
type HueSatDelta struct {
	HueShift float32 // degrees
	SatScale float32
	ValScale float32
}

// A HueSatMap is a 3-D table indexed by hue, saturation and value
// buckets. Entries are stored with value outermost, then hue, then
// saturation. Hue wraps around; saturation and value don't.
type HueSatMap struct {
	HueDivisions int
	SatDivisions int
	ValDivisions int
	Deltas       []HueSatDelta

	hScale, sScale, vScale            float64
	maxHue0, maxSat0, maxVal0         int
	hueStep, valStep                  int
}

func NewHueSatMap(hueDivs, satDivs, valDivs int, deltas []HueSatDelta) (*HueSatMap, error) {
	if valDivs < 1 {
		valDivs = 1
	}
	if hueDivs < 1 || satDivs < 2 {
		return nil, fmt.Errorf("huesatmap: bad divisions %d/%d/%d", hueDivs, satDivs, valDivs)
	}
	if len(deltas) != hueDivs*satDivs*valDivs {
		return nil, fmt.Errorf("huesatmap: %d entries for %d/%d/%d divisions", len(deltas), hueDivs, satDivs, valDivs)
	}

	m := &HueSatMap{
		HueDivisions: hueDivs,
		SatDivisions: satDivs,
		ValDivisions: valDivs,
		Deltas: deltas,

		sScale: float64(satDivs - 1),
		vScale: float64(valDivs - 1),
		maxHue0: hueDivs - 1,
		maxSat0: satDivs - 2,
		maxVal0: valDivs - 2,
		hueStep: satDivs,
		valStep: hueDivs * satDivs,
	}
	if hueDivs >= 2 {
		m.hScale = float64(hueDivs) / 6.0
	}
	return m, nil
}

func (m *HueSatMap)String() string {
	return fmt.Sprintf("huesatmap[%dx%dx%d]", m.HueDivisions, m.SatDivisions, m.ValDivisions)
}

// Lookup interpolates the table at (h,s,v): bilinearly over hue and
// saturation when there is a single value division, trilinearly otherwise.
func (m *HueSatMap)Lookup(h, s, v float64) (hueShift, satScale, valScale float64) {
	hScaled := h * m.hScale
	sScaled := s * m.sScale

	hIndex0 := int(hScaled)
	sIndex0 := clampInt(int(sScaled), 0, m.maxSat0)

	hIndex1 := hIndex0 + 1
	if hIndex0 >= m.maxHue0 {
		hIndex0 = m.maxHue0
		hIndex1 = 0
	} else if hIndex0 < 0 {
		hIndex0, hIndex1 = 0, 1
	}

	hFract1 := hScaled - float64(hIndex0)
	sFract1 := sScaled - float64(sIndex0)
	hFract0 := 1.0 - hFract1
	sFract0 := 1.0 - sFract1

	e00 := hIndex0*m.hueStep + sIndex0
	e01 := e00 + (hIndex1 - hIndex0)*m.hueStep

	if m.ValDivisions < 2 {
		return m.bilinear(e00, e01, hFract0, hFract1, sFract0, sFract1)
	}

	vScaled := v * m.vScale
	vIndex0 := clampInt(int(vScaled), 0, m.maxVal0)
	vFract1 := vScaled - float64(vIndex0)
	vFract0 := 1.0 - vFract1

	e00 += vIndex0 * m.valStep
	e01 += vIndex0 * m.valStep

	h0, s0, v0 := m.bilinear(e00, e01, hFract0, hFract1, sFract0, sFract1)
	h1, s1, v1 := m.bilinear(e00 + m.valStep, e01 + m.valStep, hFract0, hFract1, sFract0, sFract1)

	return vFract0*h0 + vFract1*h1, vFract0*s0 + vFract1*s1, vFract0*v0 + vFract1*v1
}

func (m *HueSatMap)bilinear(e00, e01 int, hFract0, hFract1, sFract0, sFract1 float64) (float64, float64, float64) {
	d00, d01 := m.Deltas[e00], m.Deltas[e01]
	d10, d11 := m.Deltas[e00+1], m.Deltas[e01+1]

	mix := func(a00, a01, a10, a11 float32) float64 {
		lo := hFract0*float64(a00) + hFract1*float64(a01)
		hi := hFract0*float64(a10) + hFract1*float64(a11)
		return sFract0*lo + sFract1*hi
	}

	return mix(d00.HueShift, d01.HueShift, d10.HueShift, d11.HueShift),
		mix(d00.SatScale, d01.SatScale, d10.SatScale, d11.SatScale),
		mix(d00.ValScale, d01.ValScale, d10.ValScale, d11.ValScale)
}

// Apply runs an HSV color (hue in sextants) through the table
func (m *HueSatMap)Apply(h, s, v float64) (float64, float64, float64) {
	hueShift, satScale, valScale := m.Lookup(h, s, v)

	h = ecolor.WrapHue(h + hueShift * 6.0 / 360.0)
	s = min(s * satScale, 1.0)
	v = min(v * valScale, 1.0)

	return h, s, v
}

func clampInt(i, lo, hi int) int {
	if i < lo { return lo }
	if i > hi { return hi }
	return i
}
