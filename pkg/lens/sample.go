package lens

import(
	"math"

	"golang.org/x/sys/cpu"

	"github.com/abworrall/rawpipe/pkg/image16"
)

// A Sampler reads one output pixel from in. pos holds the source
// position for each channel: x,y for red, then green, then blue.
// Positions are clamped to the image.
type Sampler func(in *image16.Image, out []uint16, pos []float32)

// DefaultBilinear is picked once, at startup. Both bilinear samplers
// use the same 8-bit fixed point weights, so they give identical results.
var DefaultBilinear = selectBilinear()

func selectBilinear() Sampler {
	if cpu.X86.HasSSE2 || cpu.ARM64.HasASIMD {
		return Bilinear4
	}
	return Bilinear
}

func clampPos(p float32, max int) float32 {
	if p < 0 || math.IsNaN(float64(p)) {
		return 0
	} else if p > float32(max) {
		return float32(max)
	}
	return p
}

// Nearest is the cheap sampler for quick renders
func Nearest(in *image16.Image, out []uint16, pos []float32) {
	for c:=0; c<image16.Channels; c++ {
		x := int(clampPos(pos[2*c], in.W-1) + 0.5)
		y := int(clampPos(pos[2*c+1], in.H-1) + 0.5)
		out[c] = in.Pix[y*in.Stride + x*image16.Channels + c]
	}
}

// Bilinear interpolates each channel from its four neighbours, with
// weights in 1/256ths of a pixel.
func Bilinear(in *image16.Image, out []uint16, pos []float32) {
	mw, mh := in.W-1, in.H-1

	for c:=0; c<image16.Channels; c++ {
		x := int(clampPos(pos[2*c], mw) * 256)
		y := int(clampPos(pos[2*c+1], mh) * 256)

		x0, y0 := x >> 8, y >> 8
		x1, y1 := min(x0+1, mw), min(y0+1, mh)

		dx, dy := x & 0xff, y & 0xff
		idx, idy := 256 - dx, 256 - dy

		// Weights sum to 1<<15
		aw := (idx * idy) >> 1
		bw := (dx * idy) >> 1
		cw := (idx * dy) >> 1
		dw := (dx * dy) >> 1

		a := int(in.Pix[y0*in.Stride + x0*image16.Channels + c])
		b := int(in.Pix[y0*in.Stride + x1*image16.Channels + c])
		cc := int(in.Pix[y1*in.Stride + x0*image16.Channels + c])
		d := int(in.Pix[y1*in.Stride + x1*image16.Channels + c])

		out[c] = uint16((a*aw + b*bw + cc*cw + d*dw + 16384) >> 15)
	}
}

type i32x4 [4]int32

// Bilinear4 does the three channels as lanes of 4-wide arrays (the
// fourth lane is padding), so the position and weight arithmetic can
// be done with packed instructions.
func Bilinear4(in *image16.Image, out []uint16, pos []float32) {
	mw, mh := int32(in.W-1), int32(in.H-1)

	var x, y, x1, y1, dx, dy i32x4
	for l:=0; l<image16.Channels; l++ {
		x[l] = int32(clampPos(pos[2*l], int(mw)) * 256)
		y[l] = int32(clampPos(pos[2*l+1], int(mh)) * 256)
	}

	for l:=0; l<4; l++ {
		dx[l] = x[l] & 0xff
		dy[l] = y[l] & 0xff
		x[l] >>= 8
		y[l] >>= 8
		x1[l] = min(x[l]+1, mw)
		y1[l] = min(y[l]+1, mh)
	}

	var aw, bw, cw, dw i32x4
	for l:=0; l<4; l++ {
		aw[l] = ((256 - dx[l]) * (256 - dy[l])) >> 1
		bw[l] = (dx[l] * (256 - dy[l])) >> 1
		cw[l] = ((256 - dx[l]) * dy[l]) >> 1
		dw[l] = (dx[l] * dy[l]) >> 1
	}

	stride := int32(in.Stride)
	for c:=0; c<image16.Channels; c++ {
		c32 := int32(c)
		a := uint32(in.Pix[y[c]*stride + x[c]*image16.Channels + c32])
		b := uint32(in.Pix[y[c]*stride + x1[c]*image16.Channels + c32])
		cc := uint32(in.Pix[y1[c]*stride + x[c]*image16.Channels + c32])
		d := uint32(in.Pix[y1[c]*stride + x1[c]*image16.Channels + c32])

		out[c] = uint16((a*uint32(aw[c]) + b*uint32(bw[c]) + cc*uint32(cw[c]) + d*uint32(dw[c]) + 16384) >> 15)
	}
}
