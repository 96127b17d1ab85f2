package develop

import(
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"

	"github.com/abworrall/rawpipe/pkg/image16"
)

// A Photo is a camera native image, plus what EXIF says about the gear
// that took it. Any field EXIF didn't have is left at its zero value.
type Photo struct {
	Filename  string
	Image     *image16.Image

	Make      string
	Model     string
	LensMake  string
	LensModel string
	Focal     float64 // mm
	Aperture  float64 // f-number
}

func (p *Photo)String() string {
	return fmt.Sprintf("%s [%s %s, %s %s, %.0fmm f/%.1f, %s]", p.Filename, p.Make, p.Model,
		p.LensMake, p.LensModel, p.Focal, p.Aperture, p.Image)
}

// LoadTIFF reads a 16-bit TIFF, as written by a raw converter that has
// demosaiced but not color corrected the data. Missing or broken EXIF
// is logged, not fatal.
func (env *Env)LoadTIFF(filename string) (*Photo, error) {
	p := &Photo{Filename: filename}

	if err := p.readExif(); err != nil {
		env.Log.WithFields(logrus.Fields{"file": filename, "err": err}).Warn("no usable EXIF, camera and lens unknown")
	}

	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}
	p.Image = image16.FromImage(img)

	env.Log.WithField("photo", p.String()).Debug("loaded")
	return p, nil
}

func (p *Photo)readExif() error {
	reader, err := os.Open(p.Filename)
	if err != nil {
		return fmt.Errorf("open+r exif '%s': %v", p.Filename, err)
	}
	defer reader.Close()

	ex, err := exif.Decode(reader)
	if err != nil {
		return fmt.Errorf("exif parsing '%s': %v", p.Filename, err)
	}

	p.Make = exifString(ex, exif.Make)
	p.Model = exifString(ex, exif.Model)
	p.LensMake = exifString(ex, exif.LensMake)
	p.LensModel = exifString(ex, exif.LensModel)
	p.Focal = exifRat(ex, exif.FocalLength)
	p.Aperture = exifRat(ex, exif.FNumber)
	return nil
}

func exifString(ex *exif.Exif, name exif.FieldName) string {
	tag, err := ex.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func exifRat(ex *exif.Exif, name exif.FieldName) float64 {
	tag, err := ex.Get(name)
	if err != nil {
		return 0
	}
	num, denom, err := tag.Rat2(0)
	if err != nil || denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
