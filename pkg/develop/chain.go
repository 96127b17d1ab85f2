package develop

import(
	"github.com/sirupsen/logrus"

	"github.com/abworrall/rawpipe/pkg/cmm"
	"github.com/abworrall/rawpipe/pkg/filter"
	"github.com/abworrall/rawpipe/pkg/image16"
	"github.com/abworrall/rawpipe/pkg/lens"
	"github.com/abworrall/rawpipe/pkg/render"
	"github.com/abworrall/rawpipe/pkg/settings"
)

// A Chain is the standard develop pipeline:
//   input -> lens -> render -> cmm -> cache
// with a timer after each working node.
type Chain struct {
	Input    *filter.Input
	Lens     *lens.Node
	Render   *render.Node
	CMM      *cmm.Node
	Cache    *filter.Cache
	Settings *settings.Settings
}

// LensSettings fills in whatever the config left blank from the photo's EXIF
func (env *Env)LensSettings(p *Photo) lens.Settings {
	s := env.Config.Lens
	if s.CameraMake == "" && s.CameraModel == "" {
		s.CameraMake, s.CameraModel = p.Make, p.Model
	}
	if s.LensModel == "" {
		s.LensMake, s.LensModel = p.LensMake, p.LensModel
	}
	if p.Focal > 0 && env.Config.Lens.Focal == lens.DefaultSettings().Focal {
		s.Focal = p.Focal
	}
	if p.Aperture > 0 && env.Config.Lens.Aperture == lens.DefaultSettings().Aperture {
		s.Aperture = p.Aperture
	}
	return s
}

// BuildChain sets up a chain for a photo. Without a matching profile
// the renderer passes pixels through, which is logged but allowed.
func (env *Env)BuildChain(p *Photo) (*Chain, error) {
	space, err := env.Config.GetOutputSpace()
	if err != nil {
		return nil, err
	}

	profile, err := env.FindProfile(p.Make, p.Model)
	if err != nil {
		env.Log.WithError(err).Warn("rendering without a camera profile")
	}

	c := &Chain{
		Input: filter.NewInput(p.Image),
		Settings: settings.NewFrom(env.Config.Settings),
	}

	c.Lens = lens.New(c.Input, lens.Options{
		Database: env.Lenses,
		Settings: env.LensSettings(p),
		Workers: env.Config.Workers,
		Log: env.Log,
		Metrics: env.Metrics,
	})

	c.Render = render.New(filter.NewTimer(c.Lens, "lens", env.Metrics), render.Options{
		Profile: profile,
		Settings: c.Settings,
		Kernel: env.Kernel,
		Workers: env.Config.Workers,
		Log: env.Log,
		Metrics: env.Metrics,
	})

	c.CMM = cmm.New(filter.NewTimer(c.Render, "render", env.Metrics), cmm.Options{
		Space: space,
		Workers: env.Config.Workers,
		Log: env.Log,
	})

	c.Cache = filter.NewCache(filter.NewTimer(c.CMM, "cmm", env.Metrics))

	name := "<none>"
	if profile != nil {
		name = profile.Name
	}
	env.Log.WithFields(logrus.Fields{"chain": filter.Describe(c.Cache), "profile": name}).Info("chain built")
	return c, nil
}

// Pull asks the end of the chain for an image
func (c *Chain)Pull(req *filter.Request) *image16.Image {
	return c.Cache.Image(req).Image
}
