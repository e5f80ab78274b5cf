// Package util formats simulation results for the CLI front-end.
package util

import (
	"fmt"
	"math"
)

// FormatEngineering renders value with the nearest engineering-notation
// suffix and a trailing unit.
func FormatEngineering(value float64, unit string) string {
	abs := math.Abs(value)
	switch {
	case abs >= 1 || abs == 0:
		return fmt.Sprintf("%.6g %s", value, unit)
	case abs >= 1e-3:
		return fmt.Sprintf("%.6g m%s", value*1e3, unit)
	case abs >= 1e-6:
		return fmt.Sprintf("%.6g u%s", value*1e6, unit)
	case abs >= 1e-9:
		return fmt.Sprintf("%.6g n%s", value*1e9, unit)
	case abs >= 1e-12:
		return fmt.Sprintf("%.6g p%s", value*1e12, unit)
	default:
		return fmt.Sprintf("%.6e %s", value, unit)
	}
}

// FormatFrequency renders an angular frequency in rad/s with the
// nearest engineering suffix.
func FormatFrequency(omega float64) string {
	switch {
	case omega >= 1e6:
		return fmt.Sprintf("%.4g Mrad/s", omega/1e6)
	case omega >= 1e3:
		return fmt.Sprintf("%.4g krad/s", omega/1e3)
	default:
		return fmt.Sprintf("%.4g rad/s", omega)
	}
}

// FormatMagnitudePhase renders a complex small-signal result as a
// magnitude/phase pair.
func FormatMagnitudePhase(name string, magnitude, phaseDeg float64) string {
	return fmt.Sprintf("%s=%.6g<%.2fdeg", name, magnitude, phaseDeg)
}
