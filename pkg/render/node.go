package render

import(
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/abworrall/rawpipe/pkg/dcp"
	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/filter"
	"github.com/abworrall/rawpipe/pkg/metrics"
	"github.com/abworrall/rawpipe/pkg/settings"
)

// Settings that change how pixels render. Contrast and sharpening are
// someone else's business.
const renderMask = settings.MaskExposure | settings.MaskSaturation | settings.MaskHue | settings.MaskWB | settings.MaskCurve

type Options struct {
	Profile  *dcp.Profile
	Settings *settings.Settings
	Kernel   Kernel             // nil means DefaultKernel
	Workers  int                // <=0 means one per CPU
	Log      logrus.FieldLogger
	Metrics  *metrics.Recorder
}

// Node is the color renderer in a filter chain. It honors the request
// ROI: only pixels inside it are rendered, the rest of the output is
// a copy of the input. It has no cheap path for quick requests.
type Node struct {
	filter.Base

	kernel   Kernel
	workers  int
	log      logrus.FieldLogger
	rec      *metrics.Recorder

	mu       sync.Mutex
	profile  *dcp.Profile
	settings *settings.Settings
	state    *State // nil when it needs rebuilding
}

func New(prev filter.Node, opts Options) *Node {
	n := &Node{
		kernel: opts.Kernel,
		workers: opts.Workers,
		log: opts.Log,
		rec: opts.Metrics,
		profile: opts.Profile,
	}
	if n.kernel == nil {
		n.kernel = DefaultKernel
	}
	if n.log == nil {
		n.log = logrus.StandardLogger()
	}
	n.log = n.log.WithField("node", "render")

	n.Init(n, "render", prev)
	n.SetSettings(opts.Settings)

	n.log.WithFields(logrus.Fields{"kernel": n.kernel.Name(), "profile": n.profileName()}).Debug("render: created")
	return n
}

func (n *Node)profileName() string {
	if n.profile == nil {
		return "<none>"
	}
	return n.profile.Name
}

func (n *Node)SetProfile(p *dcp.Profile) {
	n.mu.Lock()
	n.profile = p
	n.state = nil
	n.mu.Unlock()
	n.Changed(filter.ChangePixeldata | filter.ChangeMetadata)
}

// SetSettings swaps the settings we follow; a nil one means defaults
func (n *Node)SetSettings(s *settings.Settings) {
	if s == nil {
		s = settings.New()
	}

	n.mu.Lock()
	old := n.settings
	n.settings = s
	n.state = nil
	n.mu.Unlock()

	if old != nil {
		old.RemoveListener(n)
	}
	s.AddListener(n)
	n.Changed(filter.ChangePixeldata)
}

// SettingsChanged only marks the state stale; it is rebuilt on the next pull
func (n *Node)SettingsChanged(s *settings.Settings, mask settings.Mask) {
	if mask & renderMask == 0 {
		return
	}
	n.mu.Lock()
	n.state = nil
	n.mu.Unlock()

	n.log.WithField("mask", mask.String()).Trace("render: settings changed")
	n.Changed(filter.ChangePixeldata)
}

// State returns the current render state, rebuilding it if needed. It
// is nil when there is no profile.
func (n *Node)State() *State {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.profile == nil {
		return nil
	}
	if n.state == nil {
		n.state = NewState(n.profile, n.settings.Values(), n.log)
		n.rec.StateRebuilt(n.profile.Name)
	}
	return n.state
}

func (n *Node)Image(req *filter.Request) *filter.Response {
	resp := n.Base.Image(req)
	if !resp.HasImage() {
		return resp
	}

	st := n.State()
	if st == nil {
		n.log.Warn("render: no profile, passing image through")
		return resp
	}

	out := resp.Image.Copy(true)
	roi := req.GetROI(out.Rect())
	sub := out.Subframe(roi)

	filter.Rows(n.workers, 0, sub.H, func(y0, y1 int) {
		n.kernel.RenderRows(st, sub, y0, y1)
	})

	ret := resp.WithImage(out)
	if req != nil && req.ROI != nil {
		ret.ROI = &roi
	}
	return ret
}

func (n *Node)OutputProfile() *ecolor.Space {
	n.mu.Lock()
	hasProfile := n.profile != nil
	n.mu.Unlock()

	if !hasProfile {
		return n.Base.OutputProfile()
	}
	return ecolor.ProPhotoLinear
}
