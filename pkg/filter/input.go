package filter

import(
	"sync"

	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/image16"
)

// Input is a source node: it holds an image and has no previous node.
type Input struct {
	Base

	mu    sync.RWMutex
	img   *image16.Image
	space *ecolor.Space // nil for camera native data
}

func NewInput(img *image16.Image) *Input {
	in := &Input{}
	in.Init(in, "input", nil)
	in.SetImage(img)
	return in
}

// SetImage freezes img, since from now on it is shared with whoever pulls
func (in *Input)SetImage(img *image16.Image) {
	if img != nil {
		img.Freeze()
	}
	in.mu.Lock()
	in.img = img
	in.mu.Unlock()
	in.Changed(ChangeAll)
}

func (in *Input)SetSpace(s *ecolor.Space) {
	in.mu.Lock()
	in.space = s
	in.mu.Unlock()
	in.Changed(ChangeMetadata)
}

// Image echoes the request's quick flag, with or without an image, the
// same as any node with no cheap path of its own.
func (in *Input)Image(req *Request) *Response {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.img == nil {
		return EmptyResponse(req)
	}
	return &Response{Image: in.img, Quick: req.IsQuick()}
}

func (in *Input)Width() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.img == nil {
		return NoSize
	}
	return in.img.W
}

func (in *Input)Height() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.img == nil {
		return NoSize
	}
	return in.img.H
}

func (in *Input)OutputProfile() *ecolor.Space {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.space
}
