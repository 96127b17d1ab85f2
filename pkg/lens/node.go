package lens

import(
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/abworrall/rawpipe/pkg/filter"
	"github.com/abworrall/rawpipe/pkg/image16"
	"github.com/abworrall/rawpipe/pkg/metrics"
)

// Settings identify the camera and lens, and carry the manually
// entered TCA and vignetting coefficients.
type Settings struct {
	CameraMake   string   `yaml:"camera_make"`
	CameraModel  string   `yaml:"camera_model"`
	LensMake     string   `yaml:"make"`
	LensModel    string   `yaml:"model"`
	Focal        float64  `yaml:"focal"`
	Aperture     float64  `yaml:"aperture"`
	Geometry     Geometry `yaml:"geometry"` // target projection; empty keeps the lens's own

	TCAKR        float64  `yaml:"kr"`
	TCAKB        float64  `yaml:"kb"`
	VignettingK1 float64  `yaml:"k1"`
	VignettingK2 float64  `yaml:"k2"`
	VignettingK3 float64  `yaml:"k3"`
}

func DefaultSettings() Settings {
	return Settings{Focal: 50, Aperture: 5.6}
}

func (s Settings)String() string {
	return fmt.Sprintf("%s %s / %s %s @%.0fmm f/%.1f, kr=%.2f kb=%.2f k=%.2f,%.2f,%.2f",
		s.CameraMake, s.CameraModel, s.LensMake, s.LensModel, s.Focal, s.Aperture,
		s.TCAKR, s.TCAKB, s.VignettingK1, s.VignettingK2, s.VignettingK3)
}

func (s Settings)manualMagnitude() float64 {
	return math.Abs(s.TCAKR) + math.Abs(s.TCAKB) +
		math.Abs(s.VignettingK1) + math.Abs(s.VignettingK2) + math.Abs(s.VignettingK3)
}

// withManual returns a copy of l with the manual coefficients in place
// of the database's calibration, for each kind that has any.
func (s Settings)withManual(l *Lens) *Lens {
	l = l.Clone()

	if math.Abs(s.TCAKR) > 0.01 || math.Abs(s.TCAKB) > 0.01 {
		l.Calibration.TCA = []FocalCalib{{
			Model: "linear",
			Focal: s.Focal,
			Terms: []float64{s.TCAKR/100 + 1, s.TCAKB/100 + 1},
		}}
	}

	// k3 only rides along; on its own it turns nothing on
	if math.Abs(s.VignettingK1) > 0.01 || math.Abs(s.VignettingK2) > 0.01 {
		l.Calibration.Vignetting = []VignettingCalib{{
			Model: "pa",
			Focal: s.Focal,
			Aperture: s.Aperture,
			Distance: 1.0,
			Terms: []float64{-s.VignettingK1 * 0.5, s.VignettingK2 * 0.125, s.VignettingK3},
		}}
	}

	return l
}

// How a lens was resolved, as reported to metrics
const(
	OutcomeDatabase    = "database"
	OutcomeSameMake    = "same-make"
	OutcomeNeutral     = "neutral"
	OutcomePassthrough = "passthrough"
)

// A resolution is only ever used with the settings it was resolved from
type resolution struct {
	settings Settings
	camera   *Camera
	lens     *Lens // with manual coefficients applied; nil means pass through
	crop     float64
	outcome  string
}

type Options struct {
	Database *Database
	Settings Settings
	Bilinear Sampler // nil means DefaultBilinear
	Workers  int
	Log      logrus.FieldLogger
	Metrics  *metrics.Recorder
}

// Node corrects lens defects. It ignores the request ROI: moving
// pixels needs their neighbours, so it always works on the whole image.
// Quick requests are resampled with Nearest instead of bilinear.
type Node struct {
	filter.Base

	bilinear Sampler
	workers  int
	log      logrus.FieldLogger
	rec      *metrics.Recorder

	mu       sync.Mutex
	db       *Database
	settings Settings
	resolved *resolution // nil when settings or database changed
}

func New(prev filter.Node, opts Options) *Node {
	n := &Node{
		bilinear: opts.Bilinear,
		workers: opts.Workers,
		log: opts.Log,
		rec: opts.Metrics,
		db: opts.Database,
		settings: opts.Settings,
	}
	if n.bilinear == nil {
		n.bilinear = DefaultBilinear
	}
	if n.log == nil {
		n.log = logrus.StandardLogger()
	}
	n.log = n.log.WithField("node", "lens")
	if n.db == nil {
		n.log.Warn(ErrNoDatabase)
	}

	n.Init(n, "lens", prev)
	return n
}

func (n *Node)Settings() Settings {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.settings
}

func (n *Node)SetSettings(s Settings) {
	n.mu.Lock()
	n.settings = s
	n.resolved = nil
	n.mu.Unlock()
	n.Changed(filter.ChangePixeldata)
}

func (n *Node)SetDatabase(db *Database) {
	n.mu.Lock()
	n.db = db
	n.resolved = nil
	n.mu.Unlock()
	n.Changed(filter.ChangePixeldata)
}

// Lens returns the lens that will be used, or nil for pass-through
func (n *Node)Lens() *Lens {
	return n.resolve().lens
}

func (n *Node)resolve() *resolution {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.resolved != nil {
		return n.resolved
	}

	s := n.settings
	log := n.log.WithFields(logrus.Fields{"camera": s.CameraMake + " " + s.CameraModel, "lens": s.LensModel})
	res := &resolution{settings: s, outcome: OutcomePassthrough, crop: 1.0}

	if s.CameraMake != "" && s.CameraModel != "" {
		if cams := n.db.FindCameras(s.CameraMake, s.CameraModel); len(cams) > 0 {
			res.camera = cams[0]
		}
	}

	degraded := false
	if res.camera == nil {
		if cams := n.db.FindCameras(s.CameraMake, ""); len(cams) > 0 {
			res.camera = cams[0]
			degraded = true
			log.WithField("using", res.camera.Model).Info("lens: camera not found, using one from the same maker")
		}
	}

	var found *Lens
	if res.camera != nil {
		res.crop = res.camera.Crop
		if lenses := n.db.FindLenses(res.camera, s.LensMake, s.LensModel); len(lenses) > 0 {
			found = lenses[0]
		}
	}

	switch {
	case found != nil:
		res.lens = s.withManual(found)
		res.outcome = OutcomeDatabase
		if degraded {
			res.outcome = OutcomeSameMake
		}

	case s.manualMagnitude() < 0.001:
		log.Debug("lens: nothing to correct")

	default:
		log.Debug("lens: lens not found, using a neutral lens")
		res.lens = s.withManual(NeutralLens(s.LensModel, res.crop))
		res.outcome = OutcomeNeutral
	}

	n.rec.LensResolved(res.outcome)
	n.resolved = res
	return res
}

func (n *Node)Image(req *filter.Request) *filter.Response {
	resp := n.Base.Image(req)
	if !resp.HasImage() {
		return resp
	}

	res := n.resolve()
	if res.lens == nil {
		return resp
	}

	s := res.settings
	in := resp.Image
	mod := NewModifier(res.lens, res.crop, in.W, in.H)
	flags := mod.Initialize(s.Focal, s.Aperture, 1.0, 1.0, s.Geometry, FlagAll)

	n.log.WithFields(logrus.Fields{"lens": res.lens.Model, "flags": flags.String(), "quick": req.IsQuick()}).Debug("lens: correcting")

	if flags == 0 {
		return resp
	}

	img := in

	// Stage A: vignetting, in place on our own copy
	if flags.Has(FlagVignetting) {
		img = in.Copy(true)
		filter.Rows(n.workers, 0, img.H, func(y0, y1 int) {
			mod.ApplyColorModification(img, image.Rect(0, y0, img.W, y1))
		})
	}

	// Stage B: move pixels, into a new image
	if flags.Has(FlagsGeometric) {
		sample := n.bilinear
		if req.IsQuick() {
			sample = Nearest
		}
		src := img
		dst := image16.New(src.W, src.H)
		filter.Rows(n.workers, 0, dst.H, func(y0, y1 int) {
			pos := make([]float32, dst.W*6)
			for y:=y0; y<y1; y++ {
				mod.ApplySubpixelDistortion(0, float64(y), dst.W, pos)
				row := dst.Row(y)
				for x:=0; x<dst.W; x++ {
					sample(src, row[x*image16.Channels:], pos[x*6:])
				}
			}
		})
		img = dst
	}

	ret := resp.WithImage(img)
	if req.IsQuick() {
		ret.Quick = true
	}
	return ret
}
