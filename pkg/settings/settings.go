// Package settings holds the user's develop adjustments for one photo,
// and tells subscribers which of them changed.
package settings

import(
	"fmt"
	"strings"
	"sync"
)

// A Mask says which fields changed
type Mask uint32

const(
	MaskExposure Mask = 1 << iota
	MaskSaturation
	MaskHue
	MaskContrast
	MaskWarmth
	MaskTint
	MaskCurve
	MaskSharpen

	MaskWB  = MaskWarmth | MaskTint
	MaskAll = Mask(0x00ffffff)
)

func (m Mask)String() string {
	names := []string{"exposure", "saturation", "hue", "contrast", "warmth", "tint", "curve", "sharpen"}
	parts := []string{}
	for i, name := range names {
		if m & (1 << uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// A Knot is one control point of the user tone curve, both axes in [0,1]
type Knot struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Values is a plain snapshot of the settings, safe to hand to other goroutines
type Values struct {
	Exposure   float64 `yaml:"exposure"`   // stops, [-3,3]
	Saturation float64 `yaml:"saturation"` // multiplier, [0,2]
	Hue        float64 `yaml:"hue"`        // degrees, [-180,180]
	Contrast   float64 `yaml:"contrast"`   // [0,3]
	Warmth     float64 `yaml:"warmth"`     // [-2,2]
	Tint       float64 `yaml:"tint"`       // [-2,2]
	Sharpen    float64 `yaml:"sharpen"`    // [0,10]
	Curve      []Knot  `yaml:"curve"`
}

func Defaults() Values {
	return Values{Saturation: 1.0, Contrast: 1.0}
}

func (v Values)String() string {
	return fmt.Sprintf("exp=%.2f sat=%.2f hue=%.1f con=%.2f warmth=%.3f tint=%.3f knots=%d",
		v.Exposure, v.Saturation, v.Hue, v.Contrast, v.Warmth, v.Tint, len(v.Curve))
}

// A Listener is told whenever a commit changed something
type Listener interface {
	SettingsChanged(s *Settings, mask Mask)
}

// Settings is the mutable, observable version of Values. Setters
// notify listeners straight away, unless inside CommitStart/CommitStop,
// in which case one notification with the combined mask goes out at the end.
type Settings struct {
	mu        sync.Mutex
	v         Values
	commit    int
	pending   Mask
	listeners []Listener
}

func New() *Settings {
	return &Settings{v: Defaults()}
}

func NewFrom(v Values) *Settings {
	s := New()
	s.Set(v, MaskAll)
	return s
}

func (s *Settings)AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Settings)RemoveListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Values returns a copy of the current settings
func (s *Settings)Values() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.v
	v.Curve = append([]Knot(nil), s.v.Curve...)
	return v
}

func (s *Settings)CommitStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit++
}

// CommitStop ends a batch, and returns everything that changed during it
func (s *Settings)CommitStop() Mask {
	s.mu.Lock()
	s.commit--
	if s.commit > 0 {
		s.mu.Unlock()
		return MaskNone
	}
	s.commit = 0
	mask := s.pending
	s.pending = 0
	s.mu.Unlock()

	s.notify(mask)
	return mask
}

const MaskNone = Mask(0)

func (s *Settings)SetExposure(v float64) Mask   { return s.setFloat(&s.v.Exposure, clamp(v, -3, 3), MaskExposure) }
func (s *Settings)SetSaturation(v float64) Mask { return s.setFloat(&s.v.Saturation, clamp(v, 0, 2), MaskSaturation) }
func (s *Settings)SetHue(v float64) Mask        { return s.setFloat(&s.v.Hue, clamp(v, -180, 180), MaskHue) }
func (s *Settings)SetContrast(v float64) Mask   { return s.setFloat(&s.v.Contrast, clamp(v, 0, 3), MaskContrast) }
func (s *Settings)SetWarmth(v float64) Mask     { return s.setFloat(&s.v.Warmth, clamp(v, -2, 2), MaskWarmth) }
func (s *Settings)SetTint(v float64) Mask       { return s.setFloat(&s.v.Tint, clamp(v, -2, 2), MaskTint) }
func (s *Settings)SetSharpen(v float64) Mask    { return s.setFloat(&s.v.Sharpen, clamp(v, 0, 10), MaskSharpen) }

// SetCurve replaces the tone curve knots; fewer than two knots means no curve
func (s *Settings)SetCurve(knots []Knot) Mask {
	s.mu.Lock()
	if knotsEqual(s.v.Curve, knots) {
		s.mu.Unlock()
		return MaskNone
	}
	s.v.Curve = append([]Knot(nil), knots...)
	s.mu.Unlock()
	return s.changed(MaskCurve)
}

// Set copies the fields selected by mask from v, in one commit
func (s *Settings)Set(v Values, mask Mask) Mask {
	s.CommitStart()
	if mask & MaskExposure != 0   { s.SetExposure(v.Exposure) }
	if mask & MaskSaturation != 0 { s.SetSaturation(v.Saturation) }
	if mask & MaskHue != 0        { s.SetHue(v.Hue) }
	if mask & MaskContrast != 0   { s.SetContrast(v.Contrast) }
	if mask & MaskWarmth != 0     { s.SetWarmth(v.Warmth) }
	if mask & MaskTint != 0       { s.SetTint(v.Tint) }
	if mask & MaskSharpen != 0    { s.SetSharpen(v.Sharpen) }
	if mask & MaskCurve != 0      { s.SetCurve(v.Curve) }
	return s.CommitStop()
}

// Reset puts the selected fields back to their defaults
func (s *Settings)Reset(mask Mask) Mask {
	return s.Set(Defaults(), mask)
}

// CopyFrom copies the selected fields of another Settings
func (s *Settings)CopyFrom(src *Settings, mask Mask) Mask {
	return s.Set(src.Values(), mask)
}

func (s *Settings)setFloat(field *float64, v float64, m Mask) Mask {
	s.mu.Lock()
	if *field == v {
		s.mu.Unlock()
		return MaskNone
	}
	*field = v
	s.mu.Unlock()
	return s.changed(m)
}

func (s *Settings)changed(m Mask) Mask {
	s.mu.Lock()
	if s.commit > 0 {
		s.pending |= m
		s.mu.Unlock()
		return m
	}
	s.mu.Unlock()
	s.notify(m)
	return m
}

func (s *Settings)notify(m Mask) {
	if m == MaskNone {
		return
	}
	s.mu.Lock()
	listeners := append([]Listener{}, s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.SettingsChanged(s, m)
	}
}

func clamp(v, min, max float64) float64 {
	if v < min { return min }
	if v > max { return max }
	return v
}

func knotsEqual(a, b []Knot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
