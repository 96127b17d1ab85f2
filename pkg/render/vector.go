package render

import(
	"github.com/abworrall/rawpipe/pkg/image16"
)

// The batched kernel works on lanes pixels at a time, with each channel
// in its own float32 array (structure of arrays). Every step is a
// simple loop over the lanes, which the compiler can turn into packed
// SIMD arithmetic. Table lookups (hue/sat maps) can't be done that
// way, so they go lane by lane through the scalar code.
const lanes = 8

type f32x8 [lanes]float32

// vectorState is the float32 copy of State that the batched kernel uses
type vectorState struct {
	m         [9]float32
	white     [3]float32
	exposure  float32
	sat       float32
	hue       float32
	lut       []float32
}

func newVectorState(st *State) vectorState {
	vs := vectorState{
		exposure: float32(st.Exposure),
		sat: float32(st.Saturation),
		hue: float32(st.Hue),
		lut: make([]float32, len(st.ToneLUT)),
	}
	for i, v := range st.CameraToOutput {
		vs.m[i] = float32(v)
	}
	for i, v := range st.CameraWhite {
		vs.white[i] = float32(v)
	}
	for i, v := range st.ToneLUT {
		vs.lut[i] = float32(v)
	}
	return vs
}

type vectorKernel struct{}

func (vectorKernel)Name() string { return "vector" }

func (vectorKernel)RenderRows(st *State, img *image16.Image, y0, y1 int) {
	var r, g, b f32x8

	for y:=y0; y<y1; y++ {
		row := img.Row(y)
		n := len(row) / image16.Channels

		for x:=0; x<n; x+=lanes {
			count := min(lanes, n-x)
			px := row[x*image16.Channels:]

			for l:=0; l<lanes; l++ {
				if l < count {
					r[l] = float32(px[3*l+0])
					g[l] = float32(px[3*l+1])
					b[l] = float32(px[3*l+2])
				} else {
					r[l], g[l], b[l] = 0, 0, 0
				}
			}

			st.renderBatch(&r, &g, &b)

			for l:=0; l<count; l++ {
				px[3*l+0] = quantize32(r[l])
				px[3*l+1] = quantize32(g[l])
				px[3*l+2] = quantize32(b[l])
			}
		}
	}
}

func (st *State)renderBatch(r, g, b *f32x8) {
	vs := &st.vec
	var h, s, v f32x8

	// Normalize, and clip to the camera white
	for l:=0; l<lanes; l++ {
		r[l] = min(r[l] * (1.0/0xFFFF), vs.white[0])
		g[l] = min(g[l] * (1.0/0xFFFF), vs.white[1])
		b[l] = min(b[l] * (1.0/0xFFFF), vs.white[2])
	}

	// Camera to output
	m := &vs.m
	for l:=0; l<lanes; l++ {
		r2 := m[0]*r[l] + m[1]*g[l] + m[2]*b[l]
		g2 := m[3]*r[l] + m[4]*g[l] + m[5]*b[l]
		b2 := m[6]*r[l] + m[7]*g[l] + m[8]*b[l]
		r[l] = min(max(r2, 0), 1)
		g[l] = min(max(g2, 0), 1)
		b[l] = min(max(b2, 0), 1)
	}

	rgbToHSV8(r, g, b, &h, &s, &v)

	if st.HueSatMap != nil {
		for l:=0; l<lanes; l++ {
			h64, s64, v64 := st.HueSatMap.Apply(float64(h[l]), float64(s[l]), float64(v[l]))
			h[l], s[l], v[l] = float32(h64), float32(s64), float32(v64)
		}
	}

	for l:=0; l<lanes; l++ {
		v[l] = min(v[l] * vs.exposure, 1)
		s[l] = min(s[l] * vs.sat, 1)
		h[l] = wrapHue32(h[l] + vs.hue)
	}

	// Tone curve, interpolated
	for l:=0; l<lanes; l++ {
		f := v[l] * (LUTSize - 1)
		i := int(f)
		if i >= LUTSize - 1 {
			v[l] = vs.lut[LUTSize-1]
		} else if i < 0 {
			v[l] = vs.lut[0]
		} else {
			frac := f - float32(i)
			v[l] = vs.lut[i]*(1 - frac) + vs.lut[i+1]*frac
		}
	}

	if st.LookTable != nil {
		for l:=0; l<lanes; l++ {
			h64, s64, v64 := st.LookTable.Apply(float64(h[l]), float64(s[l]), float64(v[l]))
			h[l], s[l], v[l] = float32(h64), float32(s64), float32(v64)
		}
	}

	hsvToRGB8(&h, &s, &v, r, g, b)
}

func rgbToHSV8(r, g, b, h, s, v *f32x8) {
	for l:=0; l<lanes; l++ {
		mx := max(r[l], g[l], b[l])
		mn := min(r[l], g[l], b[l])
		gap := mx - mn
		v[l] = mx

		if gap <= 0 {
			h[l], s[l] = 0, 0
			continue
		}

		var hue float32
		switch {
		case r[l] == mx:
			hue = (g[l] - b[l]) / gap
			if hue < 0 {
				hue += 6
			}
		case g[l] == mx:
			hue = 2 + (b[l] - r[l]) / gap
		default:
			hue = 4 + (r[l] - g[l]) / gap
		}
		h[l] = hue
		s[l] = gap / mx
	}
}

func hsvToRGB8(h, s, v, r, g, b *f32x8) {
	for l:=0; l<lanes; l++ {
		if s[l] <= 0 {
			r[l], g[l], b[l] = v[l], v[l], v[l]
			continue
		}

		hue := wrapHue32(h[l])
		i := int(hue)
		if i > 5 {
			i = 5
		}
		f := hue - float32(i)

		p := v[l] * (1 - s[l])
		q := v[l] * (1 - s[l]*f)
		t := v[l] * (1 - s[l]*(1-f))

		switch i {
		case 0:  r[l], g[l], b[l] = v[l], t, p
		case 1:  r[l], g[l], b[l] = q, v[l], p
		case 2:  r[l], g[l], b[l] = p, v[l], t
		case 3:  r[l], g[l], b[l] = p, q, v[l]
		case 4:  r[l], g[l], b[l] = t, p, v[l]
		default: r[l], g[l], b[l] = v[l], p, q
		}
	}
}

func wrapHue32(h float32) float32 {
	for h < 0 {
		h += 6
	}
	for h >= 6 {
		h -= 6
	}
	return h
}

func quantize32(f float32) uint16 {
	if f <= 0 {
		return 0
	} else if f >= 1 {
		return 0xFFFF
	}
	return uint16(f * 0xFFFF + 0.5)
}
