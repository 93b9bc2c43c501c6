package tensor

import (
	"fmt"
)

// MatMul multiplies two 2D Float32 tensors: [n,k] x [k,m] -> [n,m].
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	if t1.DType != Float32 {
		return nil, fmt.Errorf("MatMul only supports Float32 tensors")
	}
	if len(t1.Shape) != 2 || len(t2.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2D tensors, got shapes %v and %v", t1.Shape, t2.Shape)
	}
	if t1.Shape[1] != t2.Shape[0] {
		return nil, fmt.Errorf("MatMul inner dimension mismatch: %v vs %v", t1.Shape, t2.Shape)
	}

	n, k, m := t1.Shape[0], t1.Shape[1], t2.Shape[1]
	a := t1.Data.([]float32)
	b := t2.Data.([]float32)
	out := make([]float32, n*m)

	for i := 0; i < n; i++ {
		for kk := 0; kk < k; kk++ {
			av := a[i*k+kk]
			if av == 0 {
				continue
			}
			row := b[kk*m : (kk+1)*m]
			for j := 0; j < m; j++ {
				out[i*m+j] += av * row[j]
			}
		}
	}

	return NewTensor([]int{n, m}, Float32, t1.Device, out)
}

// Transpose swaps the two dimensions of a 2D tensor.
func Transpose(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Transpose only supports Float32 tensors")
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Transpose requires a 2D tensor, got shape %v", t.Shape)
	}
	n, m := t.Shape[0], t.Shape[1]
	data := t.Data.([]float32)
	out := make([]float32, n*m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out[j*n+i] = data[i*m+j]
		}
	}
	return NewTensor([]int{m, n}, Float32, t.Device, out)
}

// Concat stacks 2D tensors along dimension 0. All inputs must share their
// second dimension, dtype and device.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("Concat requires at least one tensor")
	}
	first := ts[0]
	if len(first.Shape) != 2 {
		return nil, fmt.Errorf("Concat requires 2D tensors, got shape %v", first.Shape)
	}
	rows := 0
	for _, t := range ts {
		if err := checkCompatibility(first, t); err != nil {
			return nil, err
		}
		if len(t.Shape) != 2 || t.Shape[1] != first.Shape[1] {
			return nil, fmt.Errorf("Concat width mismatch: %v vs %v", first.Shape, t.Shape)
		}
		rows += t.Shape[0]
	}

	out := make([]float32, 0, rows*first.Shape[1])
	for _, t := range ts {
		out = append(out, t.Data.([]float32)...)
	}
	return NewTensor([]int{rows, first.Shape[1]}, Float32, first.Device, out)
}

// Reshape returns a tensor viewing the same data with a new shape.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}
	if calculateNumElements(newShape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape, t.NumElems, newShape)
	}
	return NewTensor(newShape, t.DType, t.Device, t.Data)
}
