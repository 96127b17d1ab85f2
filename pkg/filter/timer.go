package filter

import(
	"time"

	"github.com/abworrall/rawpipe/pkg/metrics"
)

// Timer is a pass-through that records how long pulls take, including
// everything upstream of it.
type Timer struct {
	Base
	label string
	rec   *metrics.Recorder
}

func NewTimer(prev Node, label string, rec *metrics.Recorder) *Timer {
	t := &Timer{label: label, rec: rec}
	t.Init(t, "timer", prev)
	return t
}

func (t *Timer)Image(req *Request) *Response {
	start := time.Now()
	resp := t.Base.Image(req)
	t.rec.ObservePull(t.label, time.Since(start))
	return resp
}
