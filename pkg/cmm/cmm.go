// Package cmm converts linear RGB between color spaces, at the end of
// a chain, so that the pixels are ready to be written out or shown.
package cmm

import(
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/emath"
	"github.com/abworrall/rawpipe/pkg/filter"
	"github.com/abworrall/rawpipe/pkg/image16"
)

// Node converts from whatever space the previous node outputs into the
// space the request asks for, or the node's default if it doesn't ask.
// Only linear input is converted; anything else passes through. The
// request ROI is honoured.
type Node struct {
	filter.Base

	target  *ecolor.Space
	workers int
	log     logrus.FieldLogger

	mu      sync.Mutex
	luts    map[string][]uint16 // transfer functions, by space name
}

type Options struct {
	Space   *ecolor.Space // nil means sRGB
	Workers int
	Log     logrus.FieldLogger
}

func New(prev filter.Node, opts Options) *Node {
	n := &Node{
		target: opts.Space,
		workers: opts.Workers,
		log: opts.Log,
		luts: map[string][]uint16{},
	}
	if n.target == nil {
		n.target = ecolor.SRGB
	}
	if n.log == nil {
		n.log = logrus.StandardLogger()
	}
	n.log = n.log.WithField("node", "cmm")
	n.Init(n, "cmm", prev)
	return n
}

func (n *Node)OutputProfile() *ecolor.Space { return n.target }

func (n *Node)Image(req *filter.Request) *filter.Response {
	resp := n.Base.Image(req)
	if !resp.HasImage() {
		return resp
	}

	dst := n.target
	if req != nil && req.Space != nil {
		dst = req.Space
	}
	src := n.Base.OutputProfile()

	switch {
	case src == dst:
		return resp
	case src == nil, src.Encode != nil:
		n.log.WithFields(logrus.Fields{"from": src.String(), "to": dst.String()}).Warn("cmm: can only convert from linear RGB, passing through")
		return resp
	}

	conv := &conversion{m: src.ConversionTo(dst), lut: n.lut(dst)}

	out := resp.Image.Copy(true)
	roi := req.GetROI(out.Rect())
	sub := out.Subframe(roi)
	filter.Rows(n.workers, 0, sub.H, func(y0, y1 int) {
		conv.rows(sub, y0, y1)
	})

	ret := resp.WithImage(out)
	if req != nil && req.ROI != nil {
		ret.ROI = &roi
	}
	if ret.Params == nil {
		ret.Params = filter.Params{}
	}
	ret.Params["space"] = dst.Name
	return ret
}

// lut returns a table that applies the space's transfer function to a
// 16-bit linear value; nil for linear spaces.
func (n *Node)lut(s *ecolor.Space) []uint16 {
	if s.Encode == nil {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if lut, exists := n.luts[s.Name]; exists {
		return lut
	}
	lut := make([]uint16, 0x10000)
	for i := range lut {
		f := float64(i) / 0xFFFF
		lut[i] = quantize(s.Encode(emath.Vec3{f, f, f})[0])
	}
	n.luts[s.Name] = lut
	return lut
}

type conversion struct {
	m   emath.Mat3
	lut []uint16
}

func (c *conversion)rows(img *image16.Image, y0, y1 int) {
	for y:=y0; y<y1; y++ {
		row := img.Row(y)
		for i:=0; i+2<len(row); i+=3 {
			v := emath.Vec3{float64(row[i]) / 0xFFFF, float64(row[i+1]) / 0xFFFF, float64(row[i+2]) / 0xFFFF}
			v = c.m.Apply(v)
			for j:=0; j<3; j++ {
				q := quantize(v[j])
				if c.lut != nil {
					q = c.lut[q]
				}
				row[i+j] = q
			}
		}
	}
}

func quantize(f float64) uint16 {
	if f <= 0 {
		return 0
	} else if f >= 1 {
		return 0xFFFF
	}
	return uint16(f * 0xFFFF + 0.5)
}
