package resolver

import (
	"fmt"
	"math"
)

// unitPrefix holds kilo through "hella"; int64 tops out around 8 EiB.
const unitPrefix = "kMGTPEZYH"

var unitSize = math.Log(1024)

// HumanReadableByteCount renders a byte count with binary prefixes to one decimal.
func HumanReadableByteCount(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	exp := int(math.Log(float64(bytes)) / unitSize)
	// log division can land just under an exact power
	if exp < len(unitPrefix) && float64(bytes) >= math.Pow(1024, float64(exp+1)) {
		exp++
	} else if float64(bytes) < math.Pow(1024, float64(exp)) {
		exp--
	}
	if exp < 1 {
		exp = 1
	}
	if exp > len(unitPrefix) {
		exp = len(unitPrefix)
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/math.Pow(1024, float64(exp)), unitPrefix[exp-1])
}
