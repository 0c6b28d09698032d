package utils

// Clamp01 clamps a score into [0,1]. Every quality/relevance/confidence value
// the pipeline produces passes through here before leaving a component.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
