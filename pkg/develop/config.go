package develop

import(
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/lens"
	"github.com/abworrall/rawpipe/pkg/render"
	"github.com/abworrall/rawpipe/pkg/settings"
)

type Config struct {
	Verbosity   int             `yaml:"verbosity"`  // 0 info, 1 debug, 2 trace
	LogFormat   string          `yaml:"log_format"` // "text" or "json"

	ProfileDir  string          `yaml:"profile_dir"` // searched recursively for .dcp files
	Profile     string          `yaml:"profile"`     // id or name; empty picks one for the camera
	LensDB      string          `yaml:"lens_db"`     // a YAML file, or a dir of them

	Workers     int             `yaml:"workers"`     // 0 means one per CPU
	Kernel      string          `yaml:"kernel"`      // auto, scalar or vector
	OutputSpace string          `yaml:"output_space"`

	Settings    settings.Values `yaml:"settings"`
	Lens        lens.Settings   `yaml:"lens"`
}

// The environment variables that override config values
const(
	EnvProfiles  = "RAWPIPE_PROFILES"
	EnvLensDB    = "RAWPIPE_LENSDB"
	EnvWorkers   = "RAWPIPE_WORKERS"
	EnvKernel    = "RAWPIPE_KERNEL"
	EnvVerbosity = "RAWPIPE_VERBOSITY"
)

func NewConfig() Config {
	return Config{
		LogFormat: "text",
		Kernel: "auto",
		OutputSpace: ecolor.SRGB.Name,
		Settings: settings.Defaults(),
		Lens: lens.DefaultSettings(),
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.UnmarshalStrict(b, &c)
	return c, err
}

func LoadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %v", filename, err)
	}
	c, err := newConfigFromYaml(contents)
	if err != nil {
		return Config{}, fmt.Errorf("config parse %s: %v", filename, err)
	}
	return c, nil
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// ApplyEnv loads any .env files (missing ones are fine), then lets the
// RAWPIPE_ variables override the config.
func (c *Config)ApplyEnv(dotenvFiles ...string) error {
	for _, f := range dotenvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("dotenv %s: %v", f, err)
		}
	}

	if v := os.Getenv(EnvProfiles); v != "" {
		c.ProfileDir = v
	}
	if v := os.Getenv(EnvLensDB); v != "" {
		c.LensDB = v
	}
	if v := os.Getenv(EnvKernel); v != "" {
		c.Kernel = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s '%s': %v", EnvWorkers, v, err)
		}
		c.Workers = n
	}
	if v := os.Getenv(EnvVerbosity); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s '%s': %v", EnvVerbosity, v, err)
		}
		c.Verbosity = n
	}
	return nil
}

func (c Config)GetKernel() (render.Kernel, error) {
	return render.KernelByName(c.Kernel)
}

func (c Config)GetOutputSpace() (*ecolor.Space, error) {
	if c.OutputSpace == "" {
		return ecolor.SRGB, nil
	}
	if s := ecolor.SpaceByName(c.OutputSpace); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("no output space named '%s'", c.OutputSpace)
}
