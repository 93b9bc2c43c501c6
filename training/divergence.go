package training

import (
	"fmt"
	"math"
	"sort"

	"github.com/tsawler/go-gan/tensor"
)

// SlicedWasserstein1D estimates the statistical distance between two
// batches of samples as the per-feature 1-D empirical Wasserstein
// distance: both columns are sorted and the mean absolute difference of
// their order statistics is taken, then averaged across features.
//
// Both batches must be 2D with identical shape. The estimate is
// deterministic and needs no external randomness.
func SlicedWasserstein1D(a, b *tensor.Tensor) (float64, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return 0, fmt.Errorf("divergence requires 2D batches, got shapes %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[0] != b.Shape[0] || a.Shape[1] != b.Shape[1] {
		return 0, fmt.Errorf("divergence requires matching batch shapes, got %v and %v", a.Shape, b.Shape)
	}

	aData, err := a.GetFloat32Data()
	if err != nil {
		return 0, err
	}
	bData, err := b.GetFloat32Data()
	if err != nil {
		return 0, err
	}

	rows, cols := a.Shape[0], a.Shape[1]
	colA := make([]float64, rows)
	colB := make([]float64, rows)

	var total float64
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			colA[i] = float64(aData[i*cols+j])
			colB[i] = float64(bData[i*cols+j])
		}
		sort.Float64s(colA)
		sort.Float64s(colB)

		var dist float64
		for i := 0; i < rows; i++ {
			dist += math.Abs(colA[i] - colB[i])
		}
		total += dist / float64(rows)
	}

	return total / float64(cols), nil
}
