package ecolor

// HSV here uses "sextant" hue: h is in [0,6), one unit per primary or
// secondary color, rather than degrees. s and v are in [0,1].

func RGBToHSV(r, g, b float64) (h, s, v float64) {
	v = max3(r, g, b)
	gap := v - min3(r, g, b)

	if gap > 0 {
		switch {
		case r == v:
			h = (g - b) / gap
			if h < 0 {
				h += 6
			}
		case g == v:
			h = 2 + (b - r) / gap
		default:
			h = 4 + (r - g) / gap
		}
		s = gap / v
	}

	return h, s, v
}

func HSVToRGB(h, s, v float64) (r, g, b float64) {
	if s <= 0 {
		return v, v, v
	}

	h = WrapHue(h)
	i := int(h)
	if i > 5 {
		i = 5
	}
	f := h - float64(i)

	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	switch i {
	case 0:  return v, t, p
	case 1:  return q, v, p
	case 2:  return p, v, t
	case 3:  return p, q, v
	case 4:  return t, p, v
	default: return v, p, q
	}
}

// WrapHue brings a hue back into [0,6)
func WrapHue(h float64) float64 {
	for h < 0 {
		h += 6
	}
	for h >= 6 {
		h -= 6
	}
	return h
}

func max3(a, b, c float64) float64 {
	if b > a { a = b }
	if c > a { a = c }
	return a
}

func min3(a, b, c float64) float64 {
	if b < a { a = b }
	if c < a { a = c }
	return a
}
