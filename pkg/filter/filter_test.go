package filter

import(
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/image16"
	"github.com/abworrall/rawpipe/pkg/metrics"
)

// eventLog is a listener that remembers what it heard
type eventLog struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (l *eventLog)PreviousChanged(ev ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog)reasons() []ChangeReason {
	l.mu.Lock()
	defer l.mu.Unlock()
	ret := []ChangeReason{}
	for _, ev := range l.events {
		ret = append(ret, ev.Reason)
	}
	return ret
}

// quickNode has a cheap path, so always marks quick responses
type quickNode struct {
	Base
}

func newQuickNode(prev Node) *quickNode {
	q := &quickNode{}
	q.Init(q, "quick", prev)
	return q
}

func (q *quickNode)Image(req *Request) *Response {
	resp := q.Base.Image(req)
	if req.IsQuick() {
		resp = resp.Clone()
		resp.Quick = true
	}
	return resp
}

func TestSentinelSize(t *testing.T) {
	p := NewPassthrough(nil)
	assert.Equal(t, NoSize, p.Width())
	assert.Equal(t, NoSize, p.Height())
	assert.Nil(t, p.OutputProfile())
	assert.False(t, p.Image(nil).HasImage())

	in := NewInput(nil)
	p.SetPrevious(in)
	assert.Equal(t, NoSize, p.Width())
	assert.Equal(t, NoSize, p.Height())
	assert.False(t, p.Image(&Request{}).HasImage())

	in.SetImage(image16.New(7, 5))
	assert.Equal(t, 7, p.Width())
	assert.Equal(t, 5, p.Height())
	assert.True(t, p.Image(nil).HasImage())
}

func TestPassthroughForwardsEverything(t *testing.T) {
	in := NewInput(image16.New(3, 2))
	in.SetSpace(ecolor.ProPhotoLinear)
	p := NewPassthrough(NewPassthrough(in))

	assert.Equal(t, ecolor.ProPhotoLinear, p.OutputProfile())
	resp := p.Image(nil)
	require.True(t, resp.HasImage())
	assert.Same(t, resp.Image, in.Image(nil).Image)
	assert.True(t, resp.Image.Frozen())
	assert.Equal(t, "input(3x2) -> passthrough(3x2) -> passthrough(3x2)", Describe(p))
}

func TestQuickPropagation(t *testing.T) {
	in := NewInput(image16.New(2, 2))
	chains := map[string]Node{
		"passthrough":       NewPassthrough(in),
		"quick":             newQuickNode(in),
		"passthrough+quick": NewPassthrough(newQuickNode(in)),
		"cache+passthrough": NewCache(NewPassthrough(in)),
	}

	for name, last := range chains {
		t.Run(name, func(t *testing.T) {
			for _, quick := range []bool{false, true} {
				req := (&Request{}).WithQuick(quick)
				resp := last.Image(req)
				upstream := last.Previous().Image(req)

				// Either the node has a cheap path and says so, or it echoes upstream
				assert.True(t, resp.Quick == upstream.Quick || resp.Quick, "quick=%v", quick)
				if !quick {
					assert.False(t, resp.Quick)
				}
			}
		})
	}

	for _, src := range []*Input{in, NewInput(nil)} {
		assert.True(t, src.Image((&Request{}).WithQuick(true)).Quick)
		assert.False(t, src.Image(nil).Quick)
	}
	assert.True(t, newQuickNode(in).Image((&Request{}).WithQuick(true)).Quick)
	assert.True(t, NewPassthrough(newQuickNode(in)).Image((&Request{}).WithQuick(true)).Quick)
}

func TestChangeFanOut(t *testing.T) {
	in := NewInput(image16.New(2, 2))
	a := NewPassthrough(in)
	b := NewPassthrough(in)
	c := NewPassthrough(a)

	la, lb, lc := &eventLog{}, &eventLog{}, &eventLog{}
	a.AddListener(la)
	b.AddListener(lb)
	c.AddListener(lc)
	c.AddListener(lc) // no duplicates

	in.SetImage(image16.New(4, 4))
	assert.Equal(t, []ChangeReason{ChangeAll}, la.reasons())
	assert.Equal(t, []ChangeReason{ChangeAll}, lb.reasons())
	assert.Equal(t, []ChangeReason{ChangeAll}, lc.reasons())

	in.SetSpace(ecolor.SRGB)
	assert.Equal(t, []ChangeReason{ChangeAll, ChangeMetadata}, lc.reasons())
	assert.Equal(t, Node(a), lc.events[1].Source.Previous())

	// Relinking b elsewhere stops events from in reaching it
	b.SetPrevious(NewInput(nil))
	in.SetImage(nil)
	assert.Len(t, lb.reasons(), 3) // ChangeAll, ChangeMetadata, ChangeAll from the relink
	assert.Len(t, la.reasons(), 3)

	a.RemoveListener(la)
	in.SetImage(image16.New(1, 1))
	assert.Len(t, la.reasons(), 3)
}

func TestCache(t *testing.T) {
	img := image16.New(2, 2)
	in := NewInput(img)
	c := NewCache(in)

	r1 := c.Image(nil)
	r2 := c.Image(&Request{})
	assert.Same(t, r1.Image, r2.Image)
	assert.Equal(t, 1, c.Hits())

	// A different request misses
	c.Image((&Request{}).WithROI(image.Rect(0, 0, 1, 1)))
	assert.Equal(t, 1, c.Hits())

	// Upstream change drops the cached response
	img2 := image16.New(3, 3)
	in.SetImage(img2)
	r3 := c.Image(nil)
	assert.Same(t, img2, r3.Image)
	assert.Equal(t, 1, c.Hits())
}

// swapNode replaces the input's image in the middle of its first pull,
// the way an editor might while a render is running
type swapNode struct {
	Base
	in   *Input
	next *image16.Image
}

func (s *swapNode)Image(req *Request) *Response {
	resp := s.Base.Image(req)
	if s.next != nil {
		next := s.next
		s.next = nil
		s.in.SetImage(next)
	}
	return resp
}

func TestCacheChangeDuringPull(t *testing.T) {
	in := NewInput(image16.New(1, 1))
	swap := &swapNode{in: in, next: image16.New(2, 2)}
	swap.Init(swap, "swap", in)
	c := NewCache(swap)

	first := c.Image(nil)
	assert.Equal(t, 1, first.Image.W, "the pull saw the old image")
	assert.Equal(t, 2, in.Width())

	second := c.Image(nil)
	assert.Equal(t, 2, second.Image.W)
	assert.Equal(t, 0, c.Hits())

	assert.Same(t, second.Image, c.Image(nil).Image)
	assert.Equal(t, 1, c.Hits())
}

func TestCacheKeyParams(t *testing.T) {
	base := &Request{}
	assert.NotEqual(t, base.WithParam("x", 1).key(), base.WithParam("x", 2).key())
	assert.NotEqual(t, base.WithParam("x", 1).key(), base.WithParam("x", 1.0).key())
	assert.NotEqual(t, base.key(), base.WithParam("x", 0).key())
	assert.Equal(t,
		base.WithParam("a", 1).WithParam("b", "two").key(),
		base.WithParam("b", "two").WithParam("a", 1).key())
	assert.Equal(t, (*Request)(nil).key(), base.key())

	c := NewCache(NewInput(image16.New(2, 2)))
	c.Image(base.WithParam("sharpen", 0.5))
	c.Image(base.WithParam("sharpen", 1.5))
	assert.Equal(t, 0, c.Hits())
	c.Image(base.WithParam("sharpen", 1.5))
	assert.Equal(t, 1, c.Hits())
}

func TestTimer(t *testing.T) {
	rec := metrics.New()
	tm := NewTimer(NewInput(image16.New(2, 2)), "all", rec)
	tm.Image(nil)
	tm.Image(nil)

	sum := rec.Summary()
	require.Len(t, sum, 1)
	assert.Equal(t, "all", sum[0].Node)
	assert.Equal(t, int64(2), sum[0].Count)
}

func TestRows(t *testing.T) {
	for _, tc := range []struct{ workers, y0, y1 int }{
		{1, 0, 10}, {3, 0, 10}, {4, 5, 6}, {16, 0, 7}, {0, 0, 100}, {2, 3, 3},
	} {
		seen := make([]int32, tc.y1)
		var calls int32
		Rows(tc.workers, tc.y0, tc.y1, func(y0, y1 int) {
			atomic.AddInt32(&calls, 1)
			for y:=y0; y<y1; y++ {
				atomic.AddInt32(&seen[y], 1)
			}
		})
		for y:=0; y<tc.y1; y++ {
			want := int32(0)
			if y >= tc.y0 {
				want = 1
			}
			assert.Equal(t, want, seen[y], "workers=%d row %d", tc.workers, y)
		}
		if tc.workers > 0 {
			assert.LessOrEqual(t, int(calls), tc.workers)
		}
	}
}

func TestRequestHelpers(t *testing.T) {
	var nilReq *Request
	assert.Equal(t, image.Rect(0, 0, 4, 4), nilReq.GetROI(image.Rect(0, 0, 4, 4)))

	req := nilReq.WithROI(image.Rect(2, 2, 10, 10)).WithParam("sharpen", 0.5).WithParam("n", 3)
	assert.Equal(t, image.Rect(2, 2, 4, 4), req.GetROI(image.Rect(0, 0, 4, 4)))

	f, ok := req.Params.Float("sharpen")
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)
	_, ok = req.Params.Float("n")
	assert.False(t, ok)
	n, ok := req.Params.Int("n")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	// With* doesn't touch the original
	req2 := req.WithParam("n", 4)
	n, _ = req.Params.Int("n")
	assert.Equal(t, 3, n)
	n, _ = req2.Params.Int("n")
	assert.Equal(t, 4, n)
}

func TestChangeReasonString(t *testing.T) {
	assert.Equal(t, "pixeldata|metadata", (ChangePixeldata | ChangeMetadata).String())
	assert.Equal(t, "nothing", ChangeNothing.String())
	assert.True(t, ChangeAll.Has(ChangeDimensions))
}
