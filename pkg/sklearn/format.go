package sklearn

import (
	"math"
	"strconv"
	"strings"
)

// precision is numpy's default print precision.
const precision = 8

// FormatProba renders a probability row the way numpy prints a float array
// with default print options: "[0.75 0.25]", "[0. 1.]", "[1.   0.25]".
func FormatProba(p []float64) string {
	return "[" + strings.Join(formatFloats(p), " ") + "]"
}

func formatFloats(p []float64) []string {
	maxAbs, minAbs := 0.0, math.Inf(1)
	for _, v := range p {
		a := math.Abs(v)
		if a == 0 || math.IsNaN(a) || math.IsInf(a, 0) {
			continue
		}
		maxAbs = math.Max(maxAbs, a)
		minAbs = math.Min(minAbs, a)
	}
	if !math.IsInf(minAbs, 1) && (maxAbs >= 1e8 || minAbs < 1e-4 || maxAbs/minAbs > 1e3) {
		return padLeft(formatExp(p))
	}
	return formatFixed(p)
}

// formatFixed aligns the decimal points: integer parts are padded on the
// left and fractions on the right with spaces.
func formatFixed(p []float64) []string {
	ints := make([]string, len(p))
	fracs := make([]string, len(p))
	special := make([]bool, len(p))
	intWidth, fracWidth := 0, 0
	for i, v := range p {
		if s, ok := nonFinite(v); ok {
			ints[i], special[i] = s, true
			continue
		}
		s := strings.TrimRight(strconv.FormatFloat(v, 'f', precision, 64), "0")
		ints[i], fracs[i], _ = strings.Cut(s, ".")
		intWidth = max(intWidth, len(ints[i]))
		fracWidth = max(fracWidth, len(fracs[i]))
	}
	out := make([]string, len(p))
	for i := range p {
		if special[i] {
			out[i] = pad(ints[i], intWidth+1+fracWidth)
			continue
		}
		out[i] = pad(ints[i], intWidth) + "." + fracs[i] + strings.Repeat(" ", fracWidth-len(fracs[i]))
	}
	return out
}

// formatExp prints every value with the mantissa digits of the longest one.
func formatExp(p []float64) []string {
	digits := 0
	for _, v := range p {
		if _, ok := nonFinite(v); ok {
			continue
		}
		s := strconv.FormatFloat(v, 'e', precision, 64)
		mant, _, _ := strings.Cut(s, "e")
		_, frac, _ := strings.Cut(strings.TrimRight(mant, "0"), ".")
		digits = max(digits, len(frac))
	}
	out := make([]string, len(p))
	for i, v := range p {
		if s, ok := nonFinite(v); ok {
			out[i] = s
			continue
		}
		s := strconv.FormatFloat(v, 'e', digits, 64)
		if digits == 0 {
			s = strings.Replace(s, "e", ".e", 1)
		}
		out[i] = s
	}
	return out
}

func nonFinite(v float64) (string, bool) {
	switch {
	case math.IsNaN(v):
		return "nan", true
	case math.IsInf(v, 1):
		return "inf", true
	case math.IsInf(v, -1):
		return "-inf", true
	}
	return "", false
}

func padLeft(parts []string) []string {
	width := 0
	for _, s := range parts {
		width = max(width, len(s))
	}
	for i, s := range parts {
		parts[i] = pad(s, width)
	}
	return parts
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
