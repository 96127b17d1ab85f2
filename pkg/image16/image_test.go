package image16

import(
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *Image {
	img := New(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			img.Set(x, y, uint16(x*1000), uint16(y*1000), uint16(x*y))
		}
	}
	return img
}

func TestSubframeSharesPixels(t *testing.T) {
	img := gradient(4, 4)
	sub := img.Subframe(image.Rect(1, 1, 3, 3))
	require.Equal(t, 2, sub.W)
	require.Equal(t, 2, sub.H)
	assert.Equal(t, image.Pt(1, 1), sub.Offset())

	r, g, _ := sub.At16(0, 0)
	assert.Equal(t, uint16(1000), r)
	assert.Equal(t, uint16(1000), g)

	sub.Set(1, 1, 7, 8, 9)
	r, g, b := img.At16(2, 2)
	assert.Equal(t, [3]uint16{7, 8, 9}, [3]uint16{r, g, b})

	// Clipped to the parent
	assert.Equal(t, 1, img.Subframe(image.Rect(3, 3, 10, 10)).W)
	assert.Equal(t, 0, img.Subframe(image.Rect(5, 5, 10, 10)).Size())
}

func TestCopyAndFreeze(t *testing.T) {
	img := gradient(3, 2).Freeze()
	assert.Panics(t, func() { img.Set(0, 0, 1, 1, 1) })

	cp := img.Copy(true)
	assert.False(t, cp.Frozen())
	assert.True(t, cp.Equal(img))
	cp.Set(0, 0, 1, 1, 1)
	assert.False(t, cp.Equal(img))

	blank := img.Copy(false)
	assert.Equal(t, make([]uint16, 3*2*Channels), blank.Pix)

	// Subframes inherit frozen-ness
	assert.True(t, img.Subframe(image.Rect(0, 0, 1, 1)).Frozen())
}

func TestImageInterfaces(t *testing.T) {
	img := gradient(2, 2)
	assert.Equal(t, color.RGBA64{R: 1000, G: 1000, B: 1, A: 0xFFFF}, img.At(1, 1))
	assert.Equal(t, 4, img.Size())

	r, _, _, _ := img.HDRAt(1, 0).HDRRGBA()
	assert.InDelta(t, 1000.0/65535.0, r, 1e-12)

	back := FromImage(img)
	assert.True(t, back.Equal(img))
}
