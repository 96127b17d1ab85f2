package main

import(
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/abworrall/rawpipe/pkg/develop"
	"github.com/abworrall/rawpipe/pkg/filter"
)

var(
	fConfig string
	fOutputFilename string
	fVerbosity int
	fProfileDir string
	fProfile string
	fLensDB string
	fKernel string
	fOutputSpace string
	fWorkers int
	fExposure float64
	fQuick bool
	fListProfiles bool
)

func init() {
	flag.StringVar(&fConfig, "config", "", "YAML config file (a .yaml arg works too)")
	flag.StringVar(&fOutputFilename, "o", "out.png", "name of output image file (.png, .tif, .jpg or .hdr)")
	flag.IntVar(&fVerbosity, "v", -1, "how verbose to get")

	flag.StringVar(&fProfileDir, "profiles", "", "dir to search for .dcp camera profiles")
	flag.StringVar(&fProfile, "profile", "", "id or name of the profile to use; default picks one for the camera")
	flag.StringVar(&fLensDB, "lensdb", "", "lens database, a YAML file or a dir of them")

	flag.StringVar(&fKernel, "kernel", "", "render kernel: auto, scalar or vector")
	flag.StringVar(&fOutputSpace, "space", "", "output color space: srgb, srgb-linear, prophoto, prophoto-linear")
	flag.IntVar(&fWorkers, "workers", 0, "goroutines per node, 0 for one per CPU")

	flag.Float64Var(&fExposure, "exposure", 0, "exposure compensation, in stops")
	flag.BoolVar(&fQuick, "quick", false, "ask for a quick (lower quality) render")
	flag.BoolVar(&fListProfiles, "listprofiles", false, "list the camera profiles found, and exit")
	flag.Parse()

	log.Printf("rawpipe starting\n")
}

func main() {
	c := develop.NewConfig()
	images := []string{}
	for _, arg := range flag.Args() {
		switch strings.ToLower(filepath.Ext(arg)) {
		case ".yaml", ".yml": fConfig = arg
		default:              images = append(images, arg)
		}
	}

	if fConfig != "" {
		var err error
		if c, err = develop.LoadConfig(fConfig); err != nil {
			log.Fatal(err)
		}
	}
	if err := c.ApplyEnv(".env"); err != nil {
		log.Fatal(err)
	}

	// Override the config file with command line args, if relevant
	if fVerbosity >= 0 { c.Verbosity = fVerbosity }
	if fProfileDir != "" { c.ProfileDir = fProfileDir }
	if fProfile != "" { c.Profile = fProfile }
	if fLensDB != "" { c.LensDB = fLensDB }
	if fKernel != "" { c.Kernel = fKernel }
	if fOutputSpace != "" { c.OutputSpace = fOutputSpace }
	if fWorkers > 0 { c.Workers = fWorkers }
	if fExposure != 0 { c.Settings.Exposure = fExposure }

	env, err := develop.NewEnv(c, nil)
	if err != nil {
		log.Fatal(err)
	}
	if c.Verbosity > 0 {
		env.Log.Debugf("Final configuration:-\n\n%s\n", c.AsYaml())
	}

	if fListProfiles {
		for _, p := range env.Profiles.All() {
			fmt.Printf("%s  %s\n", p.UniqueID(), p)
		}
		return
	}

	if len(images) != 1 {
		log.Fatalf("need exactly one input TIFF, got %d", len(images))
	}

	photo, err := env.LoadTIFF(images[0])
	if err != nil {
		log.Fatal(err)
	}
	chain, err := env.BuildChain(photo)
	if err != nil {
		log.Fatal(err)
	}

	req := &filter.Request{Quick: fQuick}
	img := chain.Pull(req)
	if img == nil {
		log.Fatalf("%s: the chain produced no image", photo.Filename)
	}

	if err := develop.WriteImage(img, fOutputFilename); err != nil {
		log.Fatal(err)
	}

	for _, s := range env.Metrics.Summary() {
		env.Log.Info(s.String())
	}
	log.Printf("wrote %s (%s)\n", fOutputFilename, img)
}
