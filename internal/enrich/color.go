package enrich

import (
	"fmt"
	"math"
)

const (
	minOccurrences = 5
	maxDarkenSteps = 20
	minContrast    = 3.0
	// Relative luminance of the light background brand colors are drawn on.
	backgroundLuminance = 0.88
)

// DominantColor picks a saturated, mid-brightness color from raw image
// bytes and darkens it until it contrasts with a light background. The
// bytes are scanned as overlapping RGB triples with no image decoding.
// It reports false when no color bucket occurs often enough.
func DominantColor(data []byte) (string, bool) {
	counts := make(map[[3]int]int)
	var order [][3]int

	for i := 0; i+3 < len(data); i++ {
		r, g, b := int(data[i]), int(data[i+1]), int(data[i+2])

		brightness := float64(r*299+g*587+b*114) / 1000
		if brightness > 240 || brightness < 15 {
			continue
		}
		if max(r, g, b)-min(r, g, b) < 30 {
			continue
		}

		key := [3]int{quantize(r), quantize(g), quantize(b)}
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}

	// Ties go to the bucket seen first.
	var best [3]int
	bestCount := 0
	for _, key := range order {
		if counts[key] > bestCount {
			best, bestCount = key, counts[key]
		}
	}
	if bestCount < minOccurrences {
		return "", false
	}

	r, g, b := best[0], best[1], best[2]
	for i := 0; i < maxDarkenSteps; i++ {
		if contrast(r, g, b) >= minContrast {
			break
		}
		r = darken(r)
		g = darken(g)
		b = darken(b)
	}
	return fmt.Sprintf("#%02x%02x%02x", r, g, b), true
}

// quantize rounds a channel to the nearest multiple of 32, clamped to 255.
func quantize(c int) int {
	q := int(math.Round(float64(c)/32)) * 32
	if q > 255 {
		q = 255
	}
	return q
}

func darken(c int) int {
	return int(math.Round(float64(c) * 0.85))
}

func contrast(r, g, b int) float64 {
	return (backgroundLuminance + 0.05) / (relativeLuminance(r, g, b) + 0.05)
}

// relativeLuminance is the sRGB relative luminance of an 8-bit color.
func relativeLuminance(r, g, b int) float64 {
	return 0.2126*linearize(r) + 0.7152*linearize(g) + 0.0722*linearize(b)
}

func linearize(c int) float64 {
	s := float64(c) / 255
	if s <= 0.03928 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}
