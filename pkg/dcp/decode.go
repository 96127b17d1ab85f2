package dcp

import(
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/emath"
)

var(
	ErrNotDCP  = errors.New("not a DCP file")
	ErrNoModel = errors.New("DCP has no UniqueCameraModel")

	// Profile IDs are SHA1 UUIDs of the file contents in this namespace,
	// so the same file always gets the same ID.
	profileNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/abworrall/rawpipe/dcp"))
)

// DNG tags that a DCP file may contain
const(
	tagUniqueCameraModel      = 0xc614
	tagColorMatrix1           = 0xc621
	tagColorMatrix2           = 0xc622
	tagCalibrationIlluminant1 = 0xc65a
	tagCalibrationIlluminant2 = 0xc65b
	tagProfileName            = 0xc6f8
	tagHueSatMapDims          = 0xc6f9
	tagHueSatMapData1         = 0xc6fa
	tagHueSatMapData2         = 0xc6fb
	tagProfileToneCurve       = 0xc6fc
	tagProfileEmbedPolicy     = 0xc6fd
	tagProfileCopyright       = 0xc6fe
	tagForwardMatrix1         = 0xc714
	tagForwardMatrix2         = 0xc715
	tagLookTableDims          = 0xc725
	tagLookTableData          = 0xc726
)

func Load(filename string) (*Profile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r '%s': %v", filename, err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("dcp '%s': %w", filename, err)
	}
	p.Filename = filename
	return p, nil
}

// Decode parses a DCP. These are TIFF files with a different magic
// number ("IIRC" or "MMCR" instead of 42), so we patch the magic and
// let the TIFF parser walk the IFD.
func Decode(r io.Reader) (*Profile, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	} else if len(b) < 8 {
		return nil, ErrNotDCP
	}

	id := uuid.NewSHA1(profileNamespace, b)

	switch string(b[0:4]) {
	case "IIRC": b[2], b[3] = 42, 0
	case "MMCR": b[2], b[3] = 0, 42
	default:
		return nil, ErrNotDCP
	}

	t, err := tiff.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDCP, err)
	}

	tags := map[uint16]*tiff.Tag{}
	for _, dir := range t.Dirs {
		for _, tag := range dir.Tags {
			tags[tag.Id] = tag
		}
	}

	p := &Profile{ID: id}

	p.Model = tagString(tags[tagUniqueCameraModel])
	if p.Model == "" {
		return nil, ErrNoModel
	}
	p.Name = tagString(tags[tagProfileName])
	p.Copyright = tagString(tags[tagProfileCopyright])
	if tag := tags[tagProfileEmbedPolicy]; tag != nil {
		if v, err := tag.Int(0); err == nil {
			p.EmbedPolicy = v
		}
	}

	if m, err := tagMatrix(tags[tagColorMatrix1]); err != nil {
		return nil, fmt.Errorf("ColorMatrix1: %v", err)
	} else if m == nil {
		return nil, fmt.Errorf("no ColorMatrix1")
	} else {
		p.ColorMatrix1 = *m
	}

	if m, err := tagMatrix(tags[tagColorMatrix2]); err != nil {
		return nil, fmt.Errorf("ColorMatrix2: %v", err)
	} else {
		p.ColorMatrix2 = m
	}

	p.Illuminant1 = tagInt(tags[tagCalibrationIlluminant1])
	p.Illuminant2 = tagInt(tags[tagCalibrationIlluminant2])
	p.Temperature1 = ecolor.IlluminantTemperature(p.Illuminant1)
	p.Temperature2 = ecolor.IlluminantTemperature(p.Illuminant2)

	for _, fm := range []struct{ tag uint16; dst **emath.Mat3 }{
		{tagForwardMatrix1, &p.ForwardMatrix1},
		{tagForwardMatrix2, &p.ForwardMatrix2},
	} {
		m, err := tagMatrix(tags[fm.tag])
		if err != nil {
			return nil, fmt.Errorf("ForwardMatrix %x: %v", fm.tag, err)
		} else if m != nil {
			norm := NormalizeForwardMatrix(*m)
			*fm.dst = &norm
		}
	}

	if dims := tags[tagHueSatMapDims]; dims != nil {
		if p.HueSatMap1, err = tagHueSatMap(dims, tags[tagHueSatMapData1]); err != nil {
			return nil, fmt.Errorf("HueSatMap1: %v", err)
		}
		if p.HueSatMap2, err = tagHueSatMap(dims, tags[tagHueSatMapData2]); err != nil {
			return nil, fmt.Errorf("HueSatMap2: %v", err)
		}
	}

	if dims := tags[tagLookTableDims]; dims != nil {
		if p.LookTable, err = tagHueSatMap(dims, tags[tagLookTableData]); err != nil {
			return nil, fmt.Errorf("LookTable: %v", err)
		}
	}

	if tag := tags[tagProfileToneCurve]; tag != nil {
		vals, err := tagFloats(tag)
		if err != nil || len(vals) < 4 || len(vals) % 2 != 0 {
			return nil, fmt.Errorf("ProfileToneCurve: %d values, %v", len(vals), err)
		}
		xs, ys := []float64{}, []float64{}
		for i:=0; i<len(vals); i+=2 {
			xs = append(xs, vals[i])
			ys = append(ys, vals[i+1])
		}
		if p.ToneCurve, err = NewSpline(xs, ys); err != nil {
			return nil, fmt.Errorf("ProfileToneCurve: %v", err)
		}
	}

	return p, nil
}

// tagFloat reads value i of any numeric tag as a float
func tagFloat(tag *tiff.Tag, i int) (float64, error) {
	switch tag.Format() {
	case tiff.RatVal:
		num, den, err := tag.Rat2(i)
		if err != nil {
			return 0, err
		} else if den == 0 {
			return 0, fmt.Errorf("tag %x[%d]: zero denominator", tag.Id, i)
		}
		return float64(num) / float64(den), nil
	case tiff.FloatVal:
		return tag.Float(i)
	case tiff.IntVal:
		v, err := tag.Int64(i)
		return float64(v), err
	}
	return 0, fmt.Errorf("tag %x: not numeric (type %d)", tag.Id, tag.Type)
}

func tagFloats(tag *tiff.Tag) ([]float64, error) {
	ret := make([]float64, tag.Count)
	for i := range ret {
		v, err := tagFloat(tag, i)
		if err != nil {
			return nil, err
		}
		ret[i] = v
	}
	return ret, nil
}

// tagMatrix returns nil for a missing tag
func tagMatrix(tag *tiff.Tag) (*emath.Mat3, error) {
	if tag == nil {
		return nil, nil
	} else if tag.Count != 9 {
		return nil, fmt.Errorf("tag %x: want 9 values, have %d", tag.Id, tag.Count)
	}
	vals, err := tagFloats(tag)
	if err != nil {
		return nil, err
	}
	m := emath.Mat3{}
	copy(m[:], vals)
	return &m, nil
}

func tagInt(tag *tiff.Tag) int {
	if tag == nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

// tagString accepts ASCII or BYTE tags
func tagString(tag *tiff.Tag) string {
	if tag == nil {
		return ""
	}
	if s, err := tag.StringVal(); err == nil {
		return strings.TrimSpace(s)
	}
	s := string(tag.Val)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// A nil data tag is a missing table, and not an error
func tagHueSatMap(dims, data *tiff.Tag) (*HueSatMap, error) {
	if data == nil {
		return nil, nil
	}
	if dims.Count < 2 {
		return nil, fmt.Errorf("dims tag has %d values", dims.Count)
	}
	d := [3]int{1, 1, 1}
	for i:=0; i<int(dims.Count) && i<3; i++ {
		v, err := dims.Int(i)
		if err != nil {
			return nil, err
		}
		d[i] = v
	}

	vals, err := tagFloats(data)
	if err != nil {
		return nil, err
	} else if len(vals) % 3 != 0 {
		return nil, fmt.Errorf("%d values is not a whole number of entries", len(vals))
	}
	deltas := make([]HueSatDelta, len(vals)/3)
	for i := range deltas {
		deltas[i] = HueSatDelta{
			HueShift: float32(vals[3*i+0]),
			SatScale: float32(vals[3*i+1]),
			ValScale: float32(vals[3*i+2]),
		}
	}

	return NewHueSatMap(d[0], d[1], d[2], deltas)
}
