// Package lens corrects optical defects: vignetting, transverse
// chromatic aberration (TCA) and geometric distortion. Calibration
// data comes from a YAML lens database, in the spirit of lensfun's
// XML one; the models and their terms are lensfun's.
package lens

import(
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

var ErrNoDatabase = errors.New("no lens database")

// A Geometry is the projection a lens produces
type Geometry string

const(
	Unknown     Geometry = ""
	Rectilinear Geometry = "rectilinear"
	Fisheye     Geometry = "fisheye" // equidistant
)

type Camera struct {
	Maker string  `yaml:"make"`
	Model string  `yaml:"model"`
	Mount string  `yaml:"mount"`
	Crop  float64 `yaml:"crop"`
}

func (c *Camera)String() string { return fmt.Sprintf("%s %s [%s, crop %.2f]", c.Maker, c.Model, c.Mount, c.Crop) }

// A FocalCalib is a distortion or TCA calibration at one focal length.
//
// Distortion models, and their terms:
//   poly3:  [k1]        Rd = Ru * (1 - k1 + k1*Ru^2)
//   poly5:  [k1,k2]     Rd = Ru * (1 + k1*Ru^2 + k2*Ru^4)
//   ptlens: [a,b,c]     Rd = Ru * (a*Ru^3 + b*Ru^2 + c*Ru + 1 - a - b - c)
//
// TCA models, and their terms; Rd is the radius for red or blue:
//   linear: [kr,kb]                Rd = Ru * k
//   poly3:  [vr,vb,cr,cb,br,bb]    Rd = Ru * (b*Ru^2 + c*Ru + v)
type FocalCalib struct {
	Model string    `yaml:"model"`
	Focal float64   `yaml:"focal"`
	Terms []float64 `yaml:"terms"`
}

// Vignetting, model pa: [k1,k2,k3]; the light falls off to
//   C = 1 + k1*r^2 + k2*r^4 + k3*r^6
type VignettingCalib struct {
	Model    string    `yaml:"model"`
	Focal    float64   `yaml:"focal"`
	Aperture float64   `yaml:"aperture"`
	Distance float64   `yaml:"distance"`
	Terms    []float64 `yaml:"terms"`
}

type Calibration struct {
	Distortion []FocalCalib      `yaml:"distortion"`
	TCA        []FocalCalib      `yaml:"tca"`
	Vignetting []VignettingCalib `yaml:"vignetting"`
}

// A Lens from the database is shared, and never changed; use Clone to
// get one you can add calibrations to.
type Lens struct {
	Maker       string      `yaml:"make"`
	Model       string      `yaml:"model"`
	Mounts      []string    `yaml:"mounts"`
	Crop        float64     `yaml:"crop"`
	Type        Geometry    `yaml:"type"`
	Calibration Calibration `yaml:"calibration"`
}

func (l *Lens)String() string {
	return fmt.Sprintf("%s %s [crop %.2f, %s, calib %d/%d/%d]", l.Maker, l.Model, l.Crop, l.geometry(),
		len(l.Calibration.Distortion), len(l.Calibration.TCA), len(l.Calibration.Vignetting))
}

func (l *Lens)geometry() Geometry {
	if l.Type == Unknown {
		return Rectilinear
	}
	return l.Type
}

func (l *Lens)Clone() *Lens {
	l2 := *l
	l2.Mounts = append([]string(nil), l.Mounts...)
	l2.Calibration = Calibration{
		Distortion: append([]FocalCalib(nil), l.Calibration.Distortion...),
		TCA: append([]FocalCalib(nil), l.Calibration.TCA...),
		Vignetting: append([]VignettingCalib(nil), l.Calibration.Vignetting...),
	}
	return &l2
}

// NeutralLens has no calibration data of its own; it only exists to
// carry manually entered coefficients.
func NeutralLens(model string, crop float64) *Lens {
	if crop <= 0 {
		crop = 1.0
	}
	return &Lens{Model: model, Crop: crop, Type: Rectilinear}
}

type Database struct {
	Cameras []*Camera `yaml:"cameras"`
	Lenses  []*Lens   `yaml:"lenses"`
}

// LoadDatabase reads a YAML file, or every .yaml/.yml file under a
// directory, into one database.
func LoadDatabase(paths ...string) (*Database, error) {
	db := &Database{}
	for _, path := range paths {
		if err := db.load(path); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *Database)load(path string) error {
	item, err := os.Stat(path)

	switch {
	case err != nil:
		return fmt.Errorf("lensdb %s: %v", path, err)

	case item.IsDir():
		contents, err := os.ReadDir(path)
		if err != nil {
			return fmt.Errorf("readdir %s: %v", path, err)
		}
		for _, content := range contents {
			name := content.Name()
			ext := strings.ToLower(filepath.Ext(name))
			if strings.HasPrefix(name, ".") || (!content.IsDir() && ext != ".yaml" && ext != ".yml") {
				continue
			}
			if err := db.load(filepath.Join(path, name)); err != nil {
				return err
			}
		}

	default:
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("lensdb read %s: %v", path, err)
		}
		more, err := ParseDatabase(contents)
		if err != nil {
			return fmt.Errorf("lensdb %s: %v", path, err)
		}
		db.Merge(more)
	}

	return nil
}

func ParseDatabase(b []byte) (*Database, error) {
	db := &Database{}
	if err := yaml.UnmarshalStrict(b, db); err != nil {
		return nil, err
	}
	for _, c := range db.Cameras {
		if c.Crop <= 0 {
			c.Crop = 1.0
		}
	}
	for _, l := range db.Lenses {
		if l.Crop <= 0 {
			l.Crop = 1.0
		}
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("lens %q: %v", l.Model, err)
		}
		l.sortCalibrations()
	}
	return db, nil
}

func (db *Database)Merge(other *Database) {
	db.Cameras = append(db.Cameras, other.Cameras...)
	db.Lenses = append(db.Lenses, other.Lenses...)
}

func (db *Database)String() string {
	if db == nil {
		return "lensdb[nil]"
	}
	return fmt.Sprintf("lensdb[%d cameras, %d lenses]", len(db.Cameras), len(db.Lenses))
}

// FindCameras matches make and model, ignoring case and spacing. An
// empty model matches every camera from that maker.
func (db *Database)FindCameras(maker, model string) []*Camera {
	if db == nil || maker == "" {
		return nil
	}
	ret := []*Camera{}
	for _, c := range db.Cameras {
		if normalize(c.Maker) != normalize(maker) {
			continue
		}
		if model == "" || normalize(c.Model) == normalize(model) {
			ret = append(ret, c)
		}
	}
	return ret
}

// FindLenses returns lenses that fit the camera's mount (any mount if
// cam is nil), best match first. An exact model match always wins;
// otherwise every word of the model must appear in the lens's name.
// An empty maker matches any maker.
func (db *Database)FindLenses(cam *Camera, maker, model string) []*Lens {
	if db == nil || model == "" {
		return nil
	}
	want := strings.Fields(normalize(model))

	type scored struct {
		lens  *Lens
		score int
	}
	matches := []scored{}

	for _, l := range db.Lenses {
		if cam != nil && !l.fitsMount(cam.Mount) {
			continue
		}
		if maker != "" && normalize(l.Maker) != normalize(maker) {
			continue
		}

		name := normalize(l.Model)
		if name == normalize(model) {
			matches = append(matches, scored{l, 1000})
			continue
		}
		have := map[string]bool{}
		for _, w := range strings.Fields(name) {
			have[w] = true
		}
		score := 0
		for _, w := range want {
			if !have[w] {
				score = -1
				break
			}
			score++
		}
		if score > 0 {
			// Fewer extra words in the lens name is a better match
			matches = append(matches, scored{l, score*10 - (len(have) - score)})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	ret := []*Lens{}
	for _, m := range matches {
		ret = append(ret, m.lens)
	}
	return ret
}

func (l *Lens)fitsMount(mount string) bool {
	if mount == "" || len(l.Mounts) == 0 {
		return true
	}
	for _, m := range l.Mounts {
		if normalize(m) == normalize(mount) {
			return true
		}
	}
	return false
}

var termCounts = map[string]int{
	"distortion/poly3": 1,
	"distortion/poly5": 2,
	"distortion/ptlens": 3,
	"tca/linear": 2,
	"tca/poly3": 6,
	"vignetting/pa": 3,
}

func checkTerms(kind, model string, terms []float64) error {
	n, exists := termCounts[kind+"/"+model]
	if !exists {
		return fmt.Errorf("unknown %s model '%s'", kind, model)
	}
	if len(terms) != n {
		return fmt.Errorf("%s model '%s' wants %d terms, has %d", kind, model, n, len(terms))
	}
	return nil
}

func (l *Lens)validate() error {
	switch l.Type {
	case Unknown, Rectilinear, Fisheye:
	default:
		return fmt.Errorf("unknown lens type '%s'", l.Type)
	}
	for _, c := range l.Calibration.Distortion {
		if err := checkTerms("distortion", c.Model, c.Terms); err != nil {
			return err
		}
	}
	for _, c := range l.Calibration.TCA {
		if err := checkTerms("tca", c.Model, c.Terms); err != nil {
			return err
		}
	}
	for _, c := range l.Calibration.Vignetting {
		if err := checkTerms("vignetting", c.Model, c.Terms); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lens)sortCalibrations() {
	c := &l.Calibration
	sort.SliceStable(c.Distortion, func(i, j int) bool { return c.Distortion[i].Focal < c.Distortion[j].Focal })
	sort.SliceStable(c.TCA, func(i, j int) bool { return c.TCA[i].Focal < c.TCA[j].Focal })
	sort.SliceStable(c.Vignetting, func(i, j int) bool { return c.Vignetting[i].Focal < c.Vignetting[j].Focal })
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
