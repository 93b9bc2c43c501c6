package training

import (
	"math"
	"testing"

	"github.com/tsawler/go-gan/tensor"
)

func batch(t *testing.T, shape []int, data []float32) *tensor.Tensor {
	t.Helper()
	out, err := tensor.NewTensor(shape, tensor.Float32, tensor.CPU, data)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	return out
}

func TestDivergenceIdenticalBatches(t *testing.T) {
	a := batch(t, []int{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	b := batch(t, []int{3, 2}, []float32{1, 2, 3, 4, 5, 6})

	d, err := SlicedWasserstein1D(a, b)
	if err != nil {
		t.Fatalf("SlicedWasserstein1D failed: %v", err)
	}
	if d != 0 {
		t.Errorf("distance between identical batches = %f, want 0", d)
	}
}

func TestDivergenceIgnoresRowOrder(t *testing.T) {
	a := batch(t, []int{3, 1}, []float32{1, 2, 3})
	b := batch(t, []int{3, 1}, []float32{3, 1, 2})

	d, err := SlicedWasserstein1D(a, b)
	if err != nil {
		t.Fatalf("SlicedWasserstein1D failed: %v", err)
	}
	if d != 0 {
		t.Errorf("distance between permuted batches = %f, want 0", d)
	}
}

func TestDivergenceConstantShift(t *testing.T) {
	a := batch(t, []int{4, 1}, []float32{0, 1, 2, 3})
	b := batch(t, []int{4, 1}, []float32{2, 3, 4, 5})

	d, err := SlicedWasserstein1D(a, b)
	if err != nil {
		t.Fatalf("SlicedWasserstein1D failed: %v", err)
	}
	if math.Abs(d-2.0) > 1e-9 {
		t.Errorf("distance = %f, want 2.0 for a constant shift", d)
	}
}

func TestDivergenceAveragesFeatures(t *testing.T) {
	// Column 0 shifted by 1, column 1 identical.
	a := batch(t, []int{2, 2}, []float32{0, 5, 1, 5})
	b := batch(t, []int{2, 2}, []float32{1, 5, 2, 5})

	d, err := SlicedWasserstein1D(a, b)
	if err != nil {
		t.Fatalf("SlicedWasserstein1D failed: %v", err)
	}
	if math.Abs(d-0.5) > 1e-9 {
		t.Errorf("distance = %f, want 0.5", d)
	}
}

func TestDivergenceShapeErrors(t *testing.T) {
	a := batch(t, []int{2, 2}, []float32{1, 2, 3, 4})
	wrongRows := batch(t, []int{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	if _, err := SlicedWasserstein1D(a, wrongRows); err == nil {
		t.Error("expected error for mismatched row counts")
	}

	wrongCols := batch(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	if _, err := SlicedWasserstein1D(a, wrongCols); err == nil {
		t.Error("expected error for mismatched feature counts")
	}

	vec := batch(t, []int{4}, []float32{1, 2, 3, 4})
	if _, err := SlicedWasserstein1D(vec, vec); err == nil {
		t.Error("expected error for non-2D input")
	}
}
