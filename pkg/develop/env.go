// Package develop wires the pieces together: configuration, the
// profile and lens registries, file input and output, and the filter
// chain that turns a camera native TIFF into a finished image.
package develop

import(
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/abworrall/rawpipe/pkg/dcp"
	"github.com/abworrall/rawpipe/pkg/lens"
	"github.com/abworrall/rawpipe/pkg/metrics"
	"github.com/abworrall/rawpipe/pkg/render"
)

// Env is the shared context for a run. It is built once and handed to
// everything that needs a registry, a logger or the metrics.
type Env struct {
	Config   Config
	Log      *logrus.Logger
	Profiles *dcp.Registry
	Lenses   *lens.Database // nil if there is no lens database
	Metrics  *metrics.Recorder
	Kernel   render.Kernel
}

func NewLogger(c Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	switch {
	case c.Verbosity >= 2: log.SetLevel(logrus.TraceLevel)
	case c.Verbosity == 1: log.SetLevel(logrus.DebugLevel)
	default:               log.SetLevel(logrus.InfoLevel)
	}

	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// NewEnv loads the profiles and the lens database named in the config.
// A missing lens database is not an error; lens correction then only
// uses manual coefficients.
func NewEnv(c Config, log *logrus.Logger) (*Env, error) {
	if log == nil {
		log = NewLogger(c)
	}

	env := &Env{
		Config: c,
		Log: log,
		Profiles: dcp.NewRegistry(log),
		Metrics: metrics.New(),
	}

	k, err := c.GetKernel()
	if err != nil {
		return nil, err
	}
	env.Kernel = k

	if c.ProfileDir != "" {
		n, err := env.Profiles.LoadDir(c.ProfileDir)
		if err != nil {
			return nil, fmt.Errorf("profiles %s: %v", c.ProfileDir, err)
		}
		log.WithFields(logrus.Fields{"dir": c.ProfileDir, "profiles": n}).Info("loaded camera profiles")
	}

	if c.LensDB != "" {
		db, err := lens.LoadDatabase(c.LensDB)
		if err != nil {
			return nil, err
		}
		env.Lenses = db
		log.WithField("db", db.String()).Info("loaded lens database")
	}

	log.WithFields(logrus.Fields{"kernel": k.Name(), "workers": c.Workers}).Debug("environment ready")
	return env, nil
}

// FindProfile picks the configured profile if there is one, and
// otherwise the first profile that matches the camera.
func (env *Env)FindProfile(camMake, model string) (*dcp.Profile, error) {
	if want := env.Config.Profile; want != "" {
		if p := env.Profiles.FindByID(want); p != nil {
			return p, nil
		}
		if p := env.Profiles.FindByName(want); p != nil {
			return p, nil
		}
		return nil, fmt.Errorf("no profile with id or name '%s'", want)
	}

	if ps := env.Profiles.Compatible(camMake, model); len(ps) > 0 {
		return ps[0], nil
	}
	return nil, fmt.Errorf("no profile for camera '%s %s'", camMake, model)
}
