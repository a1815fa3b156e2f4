package sleeplight

import "math"

const maxChannel = 255

// ToDualChannel converts brightness and color mode to warm/cool PWM values.
// Out-of-range inputs are clamped. Unknown modes are treated as blend.
//
// Channel values are rounded to nearest with ties toward zero, so 229.5 becomes
// 229. Both results are always within 0-255.
func ToDualChannel(brightnessPct int, mode ColorMode, blendRatio float64) (warm, cool int) {
	scale := float64(clampInt(brightnessPct, 0, 100)) / 100

	var warmFrac, coolFrac float64
	switch mode {
	case ColorWarm:
		warmFrac, coolFrac = 1, 0
	case ColorCool:
		warmFrac, coolFrac = 0, 1
	default:
		if math.IsNaN(blendRatio) {
			blendRatio = 0
		}
		coolFrac = clampFloat(blendRatio, 0, 1)
		warmFrac = 1 - coolFrac
	}

	warm = roundHalfDown(maxChannel * warmFrac * scale)
	cool = roundHalfDown(maxChannel * coolFrac * scale)
	return warm, cool
}

// roundHalfDown rounds a non-negative value to nearest, ties toward zero
func roundHalfDown(v float64) int {
	return clampInt(int(math.Ceil(v-0.5)), 0, maxChannel)
}
