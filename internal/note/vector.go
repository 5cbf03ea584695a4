package note

import (
	"fmt"
	"math"
)

// validateVector rejects vectors that would corrupt the similarity index:
// empty vectors and vectors containing NaN or infinite components. Called
// immediately before insertion; any failure aborts the whole transaction.
func validateVector(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding vector")
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite value at component %d", i)
		}
	}
	return nil
}
