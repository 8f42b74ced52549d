package util

import "math"

// Percent returns round(part/total*100), or 0 when total is not positive.
func Percent(part, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(part / total * 100))
}
