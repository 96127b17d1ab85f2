package develop

import(
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/abworrall/rawpipe/pkg/dcp"
	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/filter"
	"github.com/abworrall/rawpipe/pkg/image16"
	"github.com/abworrall/rawpipe/pkg/lens"
	"github.com/abworrall/rawpipe/pkg/render"
	"github.com/abworrall/rawpipe/pkg/settings"
)

const testConfig = `
verbosity: 1
profile: Test Standard
kernel: scalar
output_space: prophoto
settings:
  exposure: 0.5
  saturation: 1.1
  curve:
    - {x: 0, y: 0}
    - {x: 1, y: 1}
lens:
  focal: 35
  k1: 0.2
`

func TestConfig(t *testing.T) {
	c, err := newConfigFromYaml([]byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, 1, c.Verbosity)
	assert.Equal(t, "text", c.LogFormat, "defaults survive")
	assert.Equal(t, 0.5, c.Settings.Exposure)
	assert.Equal(t, 1.1, c.Settings.Saturation)
	assert.Equal(t, 1.0, c.Settings.Contrast)
	assert.Equal(t, []settings.Knot{{X: 0, Y: 0}, {X: 1, Y: 1}}, c.Settings.Curve)
	assert.Equal(t, 35.0, c.Lens.Focal)
	assert.Equal(t, 5.6, c.Lens.Aperture)
	assert.Equal(t, 0.2, c.Lens.VignettingK1)

	k, err := c.GetKernel()
	require.NoError(t, err)
	assert.Equal(t, render.Scalar, k)
	s, err := c.GetOutputSpace()
	require.NoError(t, err)
	assert.Equal(t, ecolor.ProPhoto, s)

	// Round trip through our own yaml
	c2, err := newConfigFromYaml([]byte(c.AsYaml()))
	require.NoError(t, err)
	assert.Equal(t, c, c2)

	_, err = newConfigFromYaml([]byte("colour: blue\n"))
	assert.Error(t, err)

	c.Kernel, c.OutputSpace = "gpu", "cmyk"
	_, err = c.GetKernel()
	assert.Error(t, err)
	_, err = c.GetOutputSpace()
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "rawpipe.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(testConfig), 0644))

	c, err := LoadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, "Test Standard", c.Profile)

	_, err = LoadConfig(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("RAWPIPE_LENSDB=/from/dotenv.yaml\nRAWPIPE_WORKERS=3\n"), 0644))

	t.Setenv(EnvProfiles, "/from/env")
	t.Setenv(EnvKernel, "vector")
	t.Setenv(EnvVerbosity, "2")
	// godotenv never overrides a variable that is already set, even to ""
	for _, k := range []string{EnvLensDB, EnvWorkers} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	c := NewConfig()
	require.NoError(t, c.ApplyEnv(dotenv, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "/from/env", c.ProfileDir)
	assert.Equal(t, "vector", c.Kernel)
	assert.Equal(t, 2, c.Verbosity)
	assert.Equal(t, "/from/dotenv.yaml", c.LensDB)
	assert.Equal(t, 3, c.Workers)

	t.Setenv(EnvWorkers, "lots")
	assert.Error(t, c.ApplyEnv())
}

func testEnv(t *testing.T, c Config) *Env {
	log, _ := test.NewNullLogger()
	env, err := NewEnv(c, log)
	require.NoError(t, err)
	return env
}

func testProfile(name, model string) *dcp.Profile {
	return &dcp.Profile{
		Name: name,
		Model: model,
		Illuminant1: 21,
		Temperature1: 6504,
		ColorMatrix1: ecolor.D50XYZ().InvertDiag(),
	}
}

func TestFindProfile(t *testing.T) {
	c := NewConfig()
	env := testEnv(t, c)
	a := testProfile("Adobe Standard", "Nikon D750")
	b := testProfile("Camera Neutral", "Nikon D750")
	env.Profiles.Add(a)
	env.Profiles.Add(b)

	p, err := env.FindProfile("NIKON CORPORATION", "NIKON D750")
	require.NoError(t, err)
	assert.Same(t, a, p)

	env.Config.Profile = "camera neutral"
	p, err = env.FindProfile("NIKON CORPORATION", "NIKON D750")
	require.NoError(t, err)
	assert.Same(t, b, p)

	env.Config.Profile = "missing"
	_, err = env.FindProfile("NIKON CORPORATION", "NIKON D750")
	assert.Error(t, err)

	env.Config.Profile = ""
	_, err = env.FindProfile("Canon", "EOS R")
	assert.Error(t, err)
}

func TestNewEnvWithLensDB(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "lenses.yaml")
	require.NoError(t, os.WriteFile(db, []byte("cameras:\n  - make: Nikon\n    model: Nikon D750\n    mount: Nikon F\n"), 0644))

	c := NewConfig()
	c.LensDB = db
	c.ProfileDir = dir
	env := testEnv(t, c)
	require.NotNil(t, env.Lenses)
	assert.Len(t, env.Lenses.Cameras, 1)
	assert.Empty(t, env.Profiles.All())

	c.LensDB = filepath.Join(dir, "missing.yaml")
	_, err := NewEnv(c, nil)
	assert.Error(t, err)
}

func TestLensSettings(t *testing.T) {
	env := testEnv(t, NewConfig())
	p := &Photo{Make: "NIKON CORPORATION", Model: "NIKON D750", LensModel: "50mm f/1.8", Focal: 50, Aperture: 2.8}

	s := env.LensSettings(p)
	assert.Equal(t, "NIKON D750", s.CameraModel)
	assert.Equal(t, "50mm f/1.8", s.LensModel)
	assert.Equal(t, 2.8, s.Aperture)

	env.Config.Lens.Focal = 24
	env.Config.Lens.LensModel = "manual"
	s = env.LensSettings(p)
	assert.Equal(t, 24.0, s.Focal, "config beats exif")
	assert.Equal(t, "manual", s.LensModel)
}

func gradientPhoto(w, h int) *Photo {
	img := image16.New(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			img.Set(x, y, uint16(x*0xFFFF/(w-1)), uint16(y*0xFFFF/(h-1)), 0x4000)
		}
	}
	return &Photo{Filename: "gradient", Image: img, Make: "Nikon", Model: "Nikon D750", Focal: 50, Aperture: 4}
}

func TestChain(t *testing.T) {
	c := NewConfig()
	c.Kernel = "scalar"
	c.Workers = 2
	env := testEnv(t, c)
	env.Profiles.Add(testProfile("Standard", "Nikon D750"))

	p := gradientPhoto(16, 12)
	chain, err := env.BuildChain(p)
	require.NoError(t, err)

	assert.Equal(t, 16, chain.Cache.Width())
	assert.Equal(t, 12, chain.Cache.Height())
	assert.Equal(t, ecolor.SRGB, chain.Cache.OutputProfile())
	assert.Contains(t, filter.Describe(chain.Cache), "input(16x12) -> lens(16x12)")

	out := chain.Pull(nil)
	require.NotNil(t, out)
	assert.False(t, out.Equal(p.Image))

	// A second pull is served from the cache, until a setting changes
	assert.Same(t, out, chain.Pull(nil))
	assert.Equal(t, 1, chain.Cache.Hits())
	chain.Settings.SetExposure(1)
	brighter := chain.Pull(nil)
	assert.NotSame(t, out, brighter)

	r0, g0, b0 := out.At16(8, 6)
	r1, g1, b1 := brighter.At16(8, 6)
	assert.GreaterOrEqual(t, int(r1)+int(g1)+int(b1), int(r0)+int(g0)+int(b0))

	sum := env.Metrics.Summary()
	assert.NotEmpty(t, sum)

	// No profile is not fatal
	env.Config.Profile = "nothing like this"
	chain, err = env.BuildChain(p)
	require.NoError(t, err)
	assert.NotNil(t, chain.Pull(nil))
}

func TestChainLensCorrection(t *testing.T) {
	c := NewConfig()
	c.Lens.VignettingK1 = 0.5
	env := testEnv(t, c)

	flat := image16.New(9, 9)
	for i := range flat.Pix {
		flat.Pix[i] = 10000
	}
	chain, err := env.BuildChain(&Photo{Image: flat})
	require.NoError(t, err)
	require.NotNil(t, chain.Lens.Lens())
	assert.Equal(t, lens.Rectilinear, chain.Lens.Lens().Type)

	out := chain.Lens.Image(nil).Image
	corner, _, _ := out.At16(0, 0)
	centre, _, _ := out.At16(4, 4)
	assert.Equal(t, uint16(10000), centre)
	assert.Greater(t, corner, centre)
}

func TestTIFFAndOutput(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(t, NewConfig())

	src := image.NewRGBA64(image.Rect(0, 0, 5, 3))
	for i := range src.Pix {
		src.Pix[i] = byte(i * 7)
	}
	for i:=6; i<len(src.Pix); i+=8 {
		src.Pix[i], src.Pix[i+1] = 0xFF, 0xFF // opaque
	}

	tifName := filepath.Join(dir, "in.tif")
	f, err := os.Create(tifName)
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, src, nil))
	require.NoError(t, f.Close())

	p, err := env.LoadTIFF(tifName)
	require.NoError(t, err)
	require.Equal(t, 5, p.Image.W)
	require.Equal(t, 3, p.Image.H)
	assert.Equal(t, "", p.Make)
	r, g, b := p.Image.At16(1, 2)
	c := src.RGBA64At(1, 2)
	assert.Equal(t, [3]uint16{c.R, c.G, c.B}, [3]uint16{r, g, b})

	_, err = env.LoadTIFF(filepath.Join(dir, "missing.tif"))
	assert.Error(t, err)

	// 16 bits make it through PNG
	pngName := filepath.Join(dir, "out.png")
	require.NoError(t, WriteImage(p.Image, pngName))
	f, err = os.Open(pngName)
	require.NoError(t, err)
	back, err := png.Decode(f)
	f.Close()
	require.NoError(t, err)
	assert.True(t, image16.FromImage(back).Equal(p.Image))

	// Radiance keeps ~1% precision, linear [0,1]
	hdrName := filepath.Join(dir, "out.hdr")
	require.NoError(t, WriteImage(p.Image, hdrName))
	f, err = os.Open(hdrName)
	require.NoError(t, err)
	decoded, err := rgbe.Decode(f)
	f.Close()
	require.NoError(t, err)
	hdrImg, ok := decoded.(hdr.Image)
	require.True(t, ok)
	require.Equal(t, p.Image.Rect(), hdrImg.Bounds())
	for _, pt := range []image.Point{{0, 0}, {1, 2}, {4, 1}} {
		r16, g16, b16 := p.Image.At16(pt.X, pt.Y)
		hr, hg, hb, _ := hdrImg.HDRAt(pt.X, pt.Y).HDRRGBA()
		assert.InDelta(t, float64(r16)/0xFFFF, hr, 0.01, "%v", pt)
		assert.InDelta(t, float64(g16)/0xFFFF, hg, 0.01, "%v", pt)
		assert.InDelta(t, float64(b16)/0xFFFF, hb, 0.01, "%v", pt)
	}

	assert.Error(t, WriteImage(nil, pngName))
	assert.Error(t, WriteImage(p.Image, filepath.Join(dir, "out.xyz")))
}
