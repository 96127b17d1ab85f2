package filter

import(
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/abworrall/rawpipe/pkg/ecolor"
)

// A Request describes what a consumer wants out of Node.Image. It is
// built per pull and not changed afterwards; the With* helpers return
// modified copies.
type Request struct {
	ROI   *image.Rectangle // nil means the whole image
	Quick bool             // a cheap approximation is fine
	Space *ecolor.Space    // desired output color space, nil means "whatever you have"
	Params Params          // open-ended extras, keyed by name
}

func (r *Request)String() string {
	if r == nil {
		return "req{}"
	}
	roi := "all"
	if r.ROI != nil {
		roi = r.ROI.String()
	}
	return fmt.Sprintf("req{roi=%s, quick=%v, space=%s, params=%d}", roi, r.Quick, r.Space, len(r.Params))
}

func (r *Request)orZero() *Request {
	if r == nil {
		return &Request{}
	}
	return r
}

func (r *Request)clone() *Request {
	r2 := *r.orZero()
	r2.Params = r2.Params.Clone()
	return &r2
}

func (r *Request)WithROI(roi image.Rectangle) *Request {
	r2 := r.clone()
	r2.ROI = &roi
	return r2
}

func (r *Request)WithQuick(quick bool) *Request {
	r2 := r.clone()
	r2.Quick = quick
	return r2
}

func (r *Request)WithSpace(s *ecolor.Space) *Request {
	r2 := r.clone()
	r2.Space = s
	return r2
}

func (r *Request)WithParam(name string, val interface{}) *Request {
	r2 := r.clone()
	if r2.Params == nil {
		r2.Params = Params{}
	}
	r2.Params[name] = val
	return r2
}

func (r *Request)IsQuick() bool { return r != nil && r.Quick }

// GetROI returns the region to compute, clipped to bounds. No ROI means all of bounds.
func (r *Request)GetROI(bounds image.Rectangle) image.Rectangle {
	if r == nil || r.ROI == nil {
		return bounds
	}
	return r.ROI.Intersect(bounds)
}

// key is used by Cache to tell requests apart. Unlike String it spells
// out every param, in name order.
func (r *Request)key() string {
	r = r.orZero()
	roi := "all"
	if r.ROI != nil {
		roi = r.ROI.String()
	}

	names := make([]string, 0, len(r.Params))
	for name := range r.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "roi=%s quick=%v space=%s", roi, r.Quick, r.Space)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%T:%v", name, r.Params[name], r.Params[name])
	}
	return b.String()
}

// Params is the open-ended channel for extra request/response values.
// The getters return ok=false when the name is missing or has another type.
type Params map[string]interface{}

func (p Params)Clone() Params {
	if p == nil {
		return nil
	}
	p2 := make(Params, len(p))
	for k, v := range p {
		p2[k] = v
	}
	return p2
}

func (p Params)Float(name string) (float64, bool) {
	switch v := p[name].(type) {
	case float64: return v, true
	case float32: return float64(v), true
	}
	return 0, false
}

func (p Params)Int(name string) (int, bool) {
	v, ok := p[name].(int)
	return v, ok
}

func (p Params)Bool(name string) (bool, bool) {
	v, ok := p[name].(bool)
	return v, ok
}

func (p Params)Text(name string) (string, bool) {
	v, ok := p[name].(string)
	return v, ok
}
