package render

import(
	"math"

	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/emath"
)

// RenderPixel takes one camera native pixel to 16-bit linear ProPhoto
func (st *State)RenderPixel(r16, g16, b16 uint16) (uint16, uint16, uint16) {
	// Anything brighter than the camera white is clipped to it
	cam := emath.Vec3{
		math.Min(float64(r16) / 0xFFFF, st.CameraWhite[0]),
		math.Min(float64(g16) / 0xFFFF, st.CameraWhite[1]),
		math.Min(float64(b16) / 0xFFFF, st.CameraWhite[2]),
	}

	rgb := st.CameraToOutput.Apply(cam).Clamp(0, 1)

	h, s, v := ecolor.RGBToHSV(rgb[0], rgb[1], rgb[2])

	if st.HueSatMap != nil {
		h, s, v = st.HueSatMap.Apply(h, s, v)
	}

	v = math.Min(v * st.Exposure, 1.0)
	s = math.Min(s * st.Saturation, 1.0)
	h = ecolor.WrapHue(h + st.Hue)

	v = st.tone(v)

	if st.LookTable != nil {
		h, s, v = st.LookTable.Apply(h, s, v)
	}

	r, g, b := ecolor.HSVToRGB(h, s, v)

	return Quantize(r), Quantize(g), Quantize(b)
}
