package telemetry

import (
	"cmp"
	"math"
)

// Li-ion collar pack limits.
const (
	VoltsFull  = 4.20
	VoltsEmpty = 3.60
	LowVolts   = 3.80
	LowPercent = 20.0

	// Batt values above this are already a percentage, otherwise volts.
	// A pack reading just above 5 V would be misread; kept for compatibility
	// with collars that report either unit in the same field.
	percentThreshold = 5.0
)

// Clamp limits x to [lo, hi].
func Clamp[T cmp.Ordered](x, lo, hi T) T {
	return max(lo, min(hi, x))
}

// VToPct maps a cell voltage onto 0-100 %.
func VToPct(v float64) int {
	return int(math.Round(Clamp((v-VoltsEmpty)/(VoltsFull-VoltsEmpty)*100, 0, 100)))
}

// BatteryPercent interprets a Batt reading as a percentage.
func BatteryPercent(batt *float64) *int {
	if batt == nil {
		return nil
	}
	var pct int
	if *batt > percentThreshold {
		pct = int(math.Round(*batt))
	} else {
		pct = VToPct(*batt)
	}
	return &pct
}

// LowBattery reports whether a Batt reading is below the warning level in
// whichever unit it was reported.
func LowBattery(batt *float64) bool {
	if batt == nil {
		return false
	}
	if *batt > percentThreshold {
		return *batt < LowPercent
	}
	return *batt < LowVolts
}
