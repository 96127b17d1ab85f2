package filter

import(
	"image"

	"github.com/abworrall/rawpipe/pkg/image16"
)

// A Response carries zero or one image back down the chain. The image
// is frozen: nodes must Copy it before changing pixels.
type Response struct {
	Image  *image16.Image
	Quick  bool
	ROI    *image.Rectangle // the region that was actually computed, if not all of it
	Params Params
}

// EmptyResponse is what comes back when there is nothing upstream
func EmptyResponse(req *Request) *Response {
	return &Response{Quick: req.IsQuick()}
}

func (r *Response)HasImage() bool { return r != nil && r.Image != nil }

// Clone copies the metadata, and shares the (frozen) image
func (r *Response)Clone() *Response {
	if r == nil {
		return &Response{}
	}
	r2 := *r
	r2.Params = r.Params.Clone()
	if r.ROI != nil {
		roi := *r.ROI
		r2.ROI = &roi
	}
	return &r2
}

// WithImage is the default way for a node to build its response: take
// upstream's metadata, swap in the new image. The image gets frozen.
func (r *Response)WithImage(img *image16.Image) *Response {
	r2 := r.Clone()
	if img != nil {
		img.Freeze()
	}
	r2.Image = img
	return r2
}
