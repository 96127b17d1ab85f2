package dcp

import(
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/rawpipe/pkg/ecolor"
	"github.com/abworrall/rawpipe/pkg/emath"
)

// A minimal TIFF-with-DCP-magic writer, enough to make test fixtures

type testTag struct {
	id    uint16
	typ   uint16
	count uint32
	data  []byte
}

type dcpWriter struct {
	order binary.ByteOrder
}

func (w dcpWriter)srational(id uint16, vals ...float64) testTag {
	buf := &bytes.Buffer{}
	for _, v := range vals {
		binary.Write(buf, w.order, int32(math.Round(v * 10000)))
		binary.Write(buf, w.order, int32(10000))
	}
	return testTag{id, 10, uint32(len(vals)), buf.Bytes()}
}

func (w dcpWriter)floats(id uint16, vals ...float32) testTag {
	buf := &bytes.Buffer{}
	for _, v := range vals {
		binary.Write(buf, w.order, v)
	}
	return testTag{id, 11, uint32(len(vals)), buf.Bytes()}
}

func (w dcpWriter)longs(id uint16, vals ...uint32) testTag {
	buf := &bytes.Buffer{}
	for _, v := range vals {
		binary.Write(buf, w.order, v)
	}
	return testTag{id, 4, uint32(len(vals)), buf.Bytes()}
}

func (w dcpWriter)short(id uint16, v uint16) testTag {
	buf := &bytes.Buffer{}
	binary.Write(buf, w.order, v)
	return testTag{id, 3, 1, buf.Bytes()}
}

func (w dcpWriter)ascii(id uint16, s string) testTag {
	b := append([]byte(s), 0)
	return testTag{id, 2, uint32(len(b)), b}
}

func (w dcpWriter)build(tags ...testTag) []byte {
	sort.Slice(tags, func(i, j int) bool { return tags[i].id < tags[j].id })

	out := &bytes.Buffer{}
	if w.order == binary.BigEndian {
		out.WriteString("MMCR")
	} else {
		out.WriteString("IIRC")
	}
	binary.Write(out, w.order, uint32(8))

	dataStart := 8 + 2 + 12*len(tags) + 4
	data := &bytes.Buffer{}

	binary.Write(out, w.order, uint16(len(tags)))
	for _, t := range tags {
		binary.Write(out, w.order, t.id)
		binary.Write(out, w.order, t.typ)
		binary.Write(out, w.order, t.count)
		if len(t.data) <= 4 {
			inline := make([]byte, 4)
			copy(inline, t.data)
			out.Write(inline)
		} else {
			binary.Write(out, w.order, uint32(dataStart + data.Len()))
			data.Write(t.data)
			if data.Len() % 2 == 1 {
				data.WriteByte(0)
			}
		}
	}
	binary.Write(out, w.order, uint32(0))
	out.Write(data.Bytes())
	return out.Bytes()
}

var(
	testCM1 = []float64{0.7, -0.1, -0.05,   -0.45, 1.25, 0.2,   -0.08, 0.2, 0.6}
	testCM2 = []float64{0.65, -0.15, -0.05,   -0.5, 1.3, 0.2,   -0.1, 0.15, 0.7}
	testFM  = []float64{0.6, 0.25, 0.1,   0.25, 0.8, -0.05,   0.05, -0.1, 0.85}
)

// hueSatData makes a hue x sat x val table where every entry is the same
func hueSatData(n int, hueShift, satScale, valScale float32) []float32 {
	ret := []float32{}
	for i:=0; i<n; i++ {
		ret = append(ret, hueShift, satScale, valScale)
	}
	return ret
}

func fullProfile(w dcpWriter, model string) []byte {
	return w.build(
		w.ascii(tagUniqueCameraModel, model),
		w.ascii(tagProfileName, "Test Standard"),
		w.srational(tagColorMatrix1, testCM1...),
		w.srational(tagColorMatrix2, testCM2...),
		w.short(tagCalibrationIlluminant1, 17),
		w.short(tagCalibrationIlluminant2, 21),
		w.srational(tagForwardMatrix1, testFM...),
		w.srational(tagForwardMatrix2, testFM...),
		w.longs(tagHueSatMapDims, 6, 2, 1),
		w.floats(tagHueSatMapData1, hueSatData(12, 0, 1, 1)...),
		w.floats(tagHueSatMapData2, hueSatData(12, 30, 1.1, 1)...),
		w.floats(tagProfileToneCurve, 0, 0, 0.5, 0.6, 1, 1),
	)
}

func TestDecodeLittleAndBigEndian(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			w := dcpWriter{order}
			p, err := Decode(bytes.NewReader(fullProfile(w, "Nikon D750")))
			require.NoError(t, err)

			assert.Equal(t, "Nikon D750", p.Model)
			assert.Equal(t, "Test Standard", p.Name)
			assert.Equal(t, 2850.0, p.Temperature1)
			assert.Equal(t, 6500.0, p.Temperature2)
			assert.True(t, p.DualIlluminant())

			for i := range testCM1 {
				assert.InDelta(t, testCM1[i], p.ColorMatrix1[i], 1e-9)
				assert.InDelta(t, testCM2[i], p.ColorMatrix2[i], 1e-9)
			}

			// Forward matrices come out normalized: camera [1,1,1] -> D50
			require.NotNil(t, p.ForwardMatrix1)
			white := p.ForwardMatrix1.Apply(emath.Vec3{1, 1, 1})
			for i, v := range ecolor.D50XYZ() {
				assert.InDelta(t, v, white[i], 1e-9)
			}

			require.NotNil(t, p.HueSatMap1)
			require.NotNil(t, p.HueSatMap2)
			assert.Same(t, p.HueSatMap2, p.HueSatMap())
			assert.Equal(t, float32(30), p.HueSatMap().Deltas[0].HueShift)
			assert.Nil(t, p.LookTable)

			require.NotNil(t, p.ToneCurve)
			assert.InDelta(t, 0.6, p.ToneCurve.Eval(0.5), 1e-6)
		})
	}
}

func TestDecodeMinimal(t *testing.T) {
	w := dcpWriter{binary.LittleEndian}
	p, err := Decode(bytes.NewReader(w.build(
		w.ascii(tagUniqueCameraModel, "Canon EOS 5D"),
		w.srational(tagColorMatrix1, testCM1...),
		w.short(tagCalibrationIlluminant1, 21),
	)))
	require.NoError(t, err)
	assert.Nil(t, p.ColorMatrix2)
	assert.Nil(t, p.ForwardMatrix1)
	assert.Nil(t, p.HueSatMap())
	assert.False(t, p.DualIlluminant())
}

func TestDecodeFailures(t *testing.T) {
	w := dcpWriter{binary.LittleEndian}

	_, err := Decode(bytes.NewReader([]byte("II*\x00\x08\x00\x00\x00")))
	assert.True(t, errors.Is(err, ErrNotDCP))

	_, err = Decode(bytes.NewReader([]byte("IIRC")))
	assert.True(t, errors.Is(err, ErrNotDCP))

	_, err = Decode(bytes.NewReader(w.build(w.srational(tagColorMatrix1, testCM1...))))
	assert.True(t, errors.Is(err, ErrNoModel))

	_, err = Decode(bytes.NewReader(w.build(w.ascii(tagUniqueCameraModel, "X"))))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	w := dcpWriter{binary.LittleEndian}
	dir := t.TempDir()
	write := func(name string, b []byte) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, b, 0644))
	}

	write("nikon.dcp", fullProfile(w, "Nikon D750"))
	write(".hidden/nikon2.dcp", fullProfile(w, "Nikon D750 hidden"))
	write("sub/canon.DCP", fullProfile(w, "Canon EOS 5D Mark III"))
	write("broken.dcp", []byte("not a profile"))
	write("readme.txt", []byte("hello"))

	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})
	r := NewRegistry(log)
	n, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, r.All(), 2)

	nikons := r.Compatible("NIKON CORPORATION", "NIKON D750")
	require.Len(t, nikons, 1)
	assert.Equal(t, "Nikon D750", nikons[0].Model)

	canons := r.Compatible("Canon", "Canon EOS 5D Mark III")
	require.Len(t, canons, 1)

	assert.Empty(t, r.Compatible("Sony", "ILCE-7"))

	assert.Same(t, canons[0], r.FindByID(canons[0].UniqueID()))
	assert.Nil(t, r.FindByID("nope"))
	assert.NotNil(t, r.FindByName("test standard"))

	// The same bytes give the same id; the last one added wins
	again, err := Load(filepath.Join(dir, "nikon.dcp"))
	require.NoError(t, err)
	assert.Equal(t, nikons[0].ID, again.ID)
	r.Add(again)
	assert.Same(t, again, r.FindByID(again.UniqueID()))
}

func TestSplineMonotonicLUT(t *testing.T) {
	s, err := NewSpline([]float64{0, 0.25, 0.5, 0.75, 1}, []float64{0, 0.05, 0.6, 0.97, 1})
	require.NoError(t, err)

	lut := s.Sample(65536)
	require.Len(t, lut, 65536)
	assert.Equal(t, 0.0, lut[0])
	assert.Equal(t, 1.0, lut[65535])
	for i:=1; i<len(lut); i++ {
		if lut[i] < lut[i-1] {
			t.Fatalf("lut not monotonic at %d: %g < %g", i, lut[i], lut[i-1])
		}
	}
}

func TestSplineShapes(t *testing.T) {
	// Unsorted input with a duplicate x; last duplicate wins
	s, err := NewSpline([]float64{1, 0, 0.5, 0.5}, []float64{1, 0, 0.2, 0.3})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, s.Xs)
	assert.InDelta(t, 0.3, s.Eval(0.5), 1e-9)

	// Two knots is a straight line, and it clamps outside the knots
	line, err := NewSpline([]float64{0.2, 0.8}, []float64{0.1, 0.7})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, line.Eval(0.5), 1e-12)
	assert.Equal(t, 0.1, line.Eval(0))
	assert.Equal(t, 0.7, line.Eval(1))

	// Non-monotonic knots still go through their points
	wave, err := NewSpline([]float64{0, 0.3, 0.6, 1}, []float64{0, 0.5, 0.3, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, wave.Eval(0.3), 1e-9)
	assert.InDelta(t, 0.3, wave.Eval(0.6), 1e-9)

	_, err = NewSpline([]float64{0.5}, []float64{0.5})
	assert.Error(t, err)
	_, err = NewSpline([]float64{0, 1}, []float64{0})
	assert.Error(t, err)
}

func TestHueSatMap(t *testing.T) {
	ident, err := NewHueSatMap(6, 2, 1, make([]HueSatDelta, 12))
	require.NoError(t, err)
	for i := range ident.Deltas {
		ident.Deltas[i] = HueSatDelta{0, 1, 1}
	}
	h, s, v := ident.Apply(2.5, 0.4, 0.7)
	assert.InDelta(t, 2.5, h, 1e-12)
	assert.InDelta(t, 0.4, s, 1e-12)
	assert.InDelta(t, 0.7, v, 1e-12)

	// A uniform 60 degree shift moves one sextant, wrapping at 6
	shift, err := NewHueSatMap(6, 2, 1, make([]HueSatDelta, 12))
	require.NoError(t, err)
	for i := range shift.Deltas {
		shift.Deltas[i] = HueSatDelta{60, 2, 1}
	}
	h, s, _ = shift.Apply(5.5, 0.3, 0.5)
	assert.InDelta(t, 0.5, h, 1e-9)
	assert.InDelta(t, 0.6, s, 1e-9)
	_, s, _ = shift.Apply(1, 0.8, 0.5)
	assert.Equal(t, 1.0, s)

	// Two value divisions: val scale goes 1.0 at v=0 to 0.5 at v=1
	tri, err := NewHueSatMap(1, 2, 2, []HueSatDelta{{0, 1, 1}, {0, 1, 1}, {0, 1, 0.5}, {0, 1, 0.5}})
	require.NoError(t, err)
	_, _, vs := tri.Lookup(3, 0.5, 0.5)
	assert.InDelta(t, 0.75, vs, 1e-9)

	// Hue wraps between the last and first divisions
	wrap, err := NewHueSatMap(2, 2, 1, []HueSatDelta{{0, 1, 1}, {0, 1, 1}, {30, 1, 1}, {30, 1, 1}})
	require.NoError(t, err)
	hs, _, _ := wrap.Lookup(4.5, 0.5, 0.5)
	assert.InDelta(t, 15, hs, 1e-9)

	_, err = NewHueSatMap(6, 1, 1, make([]HueSatDelta, 6))
	assert.Error(t, err)
	_, err = NewHueSatMap(6, 2, 1, make([]HueSatDelta, 5))
	assert.Error(t, err)
}
