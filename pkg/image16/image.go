// Package image16 holds the 16-bit RGB buffers that flow between filter
// nodes.
package image16

import(
	"fmt"
	"image"
	"image/color"

	"github.com/mdouchement/hdr/hdrcolor"
)

const Channels = 3

// An Image is three 16-bit channels per pixel, interleaved. A subframe
// shares Pix with its parent, so Stride may be wider than W*Channels.
//
// Images handed downstream in a filter response are frozen; whoever
// wants to change pixels takes a Copy first. Writing through Set or
// Pixel on a frozen image panics.
type Image struct {
	W, H    int
	Stride  int      // in uint16s, not pixels
	Pix     []uint16
	frozen  bool
	offset  image.Point // where this subframe sits in its parent
}

func New(w, h int) *Image {
	if w < 0 || h < 0 {
		panic(fmt.Sprintf("image16.New: bad size %dx%d", w, h))
	}
	return &Image{
		W: w,
		H: h,
		Stride: w * Channels,
		Pix: make([]uint16, w*h*Channels),
	}
}

// FromImage converts anything in the image library into a 16-bit buffer
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	img := New(b.Dx(), b.Dy())
	for y:=0; y<img.H; y++ {
		for x:=0; x<img.W; x++ {
			r, g, bl, _ := src.At(b.Min.X + x, b.Min.Y + y).RGBA()
			img.Set(x, y, uint16(r), uint16(g), uint16(bl))
		}
	}
	return img
}

func (img *Image)String() string {
	return fmt.Sprintf("image16[%dx%d%s]", img.W, img.H, map[bool]string{true:",frozen", false:""}[img.frozen])
}

func (img *Image)Freeze() *Image   { img.frozen = true; return img }
func (img *Image)Frozen() bool     { return img.frozen }
func (img *Image)Rect() image.Rectangle { return image.Rect(0, 0, img.W, img.H) }

// Copy returns a new, unfrozen image with the same pixels (or zeroed
// pixels, if copyPixels is false) and a tight stride.
func (img *Image)Copy(copyPixels bool) *Image {
	out := New(img.W, img.H)
	if copyPixels {
		for y:=0; y<img.H; y++ {
			copy(out.Row(y), img.Row(y))
		}
	}
	return out
}

// Subframe shares pixels with img. The rectangle is clipped to the image.
func (img *Image)Subframe(r image.Rectangle) *Image {
	r = r.Intersect(img.Rect())
	start := r.Min.Y*img.Stride + r.Min.X*Channels
	end := start
	if !r.Empty() {
		end = (r.Max.Y-1)*img.Stride + r.Max.X*Channels
	}
	return &Image{
		W: r.Dx(),
		H: r.Dy(),
		Stride: img.Stride,
		Pix: img.Pix[start:end],
		frozen: img.frozen,
		offset: img.offset.Add(r.Min),
	}
}

// Offset is the position of a subframe's origin in the outermost image
func (img *Image)Offset() image.Point { return img.offset }

// Row returns the W*Channels values of row y. It does not check for frozen-ness,
// so it is for reading, or for writing to images you own.
func (img *Image)Row(y int) []uint16 {
	start := y * img.Stride
	return img.Pix[start : start + img.W*Channels]
}

// Pixel returns the channels of one pixel, for writing
func (img *Image)Pixel(x, y int) []uint16 {
	img.mustBeMutable()
	i := y*img.Stride + x*Channels
	return img.Pix[i:i+Channels]
}

func (img *Image)At16(x, y int) (r, g, b uint16) {
	i := y*img.Stride + x*Channels
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

func (img *Image)Set(x, y int, r, g, b uint16) {
	img.mustBeMutable()
	i := y*img.Stride + x*Channels
	img.Pix[i], img.Pix[i+1], img.Pix[i+2] = r, g, b
}

func (img *Image)mustBeMutable() {
	if img.frozen {
		panic(fmt.Sprintf("%s: write to frozen image", img))
	}
}

// Equal compares pixel values only
func (img *Image)Equal(other *Image) bool {
	if img.W != other.W || img.H != other.H {
		return false
	}
	for y:=0; y<img.H; y++ {
		a, b := img.Row(y), other.Row(y)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// Implement image.Image
func (img *Image)ColorModel() color.Model       { return color.RGBA64Model }
func (img *Image)Bounds() image.Rectangle       { return img.Rect() }
func (img *Image)At(x, y int) color.Color {
	r, g, b := img.At16(x, y)
	return color.RGBA64{R: r, G: g, B: b, A: 0xFFFF}
}

// Implement hdr.Image, so we can hand the buffer to the rgbe encoder.
// Channels map to [0.0, 1.0].
func (img *Image)HDRAt(x, y int) hdrcolor.Color {
	r, g, b := img.At16(x, y)
	return hdrcolor.RGB{
		R: float64(r) / float64(0xFFFF),
		G: float64(g) / float64(0xFFFF),
		B: float64(b) / float64(0xFFFF),
	}
}
func (img *Image)Size() int                     { return img.W * img.H }
