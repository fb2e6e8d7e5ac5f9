// Package tuning derives isolation forest sizing from the input volume.
package tuning

import "github.com/okian/radworker/internal/domain/model"

// Factor bounds. A factor is used only when strictly inside (minFactor, maxFactor).
const (
	minFactor      = 0.001
	maxFactor      = 1.0
	fallbackFactor = 0.2
)

// Tune scales rows by each factor, falling back to 0.2 for factors outside
// the open interval (0.001, 1.0). The boundaries themselves fall back.
// Results truncate toward zero; rows <= 0 yields zero parameters.
func Tune(treesFactor, sampleFactor float64, rows int) model.Parameters {
	if rows <= 0 {
		return model.Parameters{}
	}
	return model.Parameters{
		NumTrees:   scale(rows, treesFactor),
		SampleSize: scale(rows, sampleFactor),
	}
}

func scale(rows int, factor float64) int {
	// NaN fails both comparisons and lands on the fallback.
	if !(factor > minFactor && factor < maxFactor) {
		factor = fallbackFactor
	}
	return int(float64(rows) * factor)
}
