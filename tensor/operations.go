package tensor

import (
	"fmt"
	"math"
)

// checkCompatibility validates dtype and placement before any binary
// operation. Mismatched device labels surface immediately: the core never
// migrates data mid-operation.
func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("dtype mismatch: %s vs %s", t1.DType, t2.DType)
	}
	if t1.Device != t2.Device {
		return fmt.Errorf("device mismatch: %s vs %s", t1.Device, t2.Device)
	}
	return nil
}

// broadcastIndex maps a flat index of the result onto an operand. Supported
// operand shapes relative to the result shape [n, f]: identical, scalar
// [1], and trailing vector [f].
func broadcastIndex(result, operand *Tensor) (func(int) int, error) {
	if shapesEqual(result.Shape, operand.Shape) {
		return func(i int) int { return i }, nil
	}
	if operand.NumElems == 1 {
		return func(int) int { return 0 }, nil
	}
	if len(result.Shape) == 2 && len(operand.Shape) == 1 && operand.Shape[0] == result.Shape[1] {
		f := result.Shape[1]
		return func(i int) int { return i % f }, nil
	}
	return nil, fmt.Errorf("shapes %v and %v are not broadcastable", result.Shape, operand.Shape)
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// resultShape picks the broadcast output shape for a binary operation.
func resultShape(t1, t2 *Tensor) ([]int, error) {
	if shapesEqual(t1.Shape, t2.Shape) {
		return t1.Shape, nil
	}
	if t2.NumElems == 1 {
		return t1.Shape, nil
	}
	if t1.NumElems == 1 {
		return t2.Shape, nil
	}
	if len(t1.Shape) == 2 && len(t2.Shape) == 1 && t2.Shape[0] == t1.Shape[1] {
		return t1.Shape, nil
	}
	if len(t2.Shape) == 2 && len(t1.Shape) == 1 && t1.Shape[0] == t2.Shape[1] {
		return t2.Shape, nil
	}
	return nil, fmt.Errorf("shapes %v and %v are not broadcastable", t1.Shape, t2.Shape)
}

func elementwise(t1, t2 *Tensor, op func(a, b float32) float32) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	if t1.DType != Float32 {
		return nil, fmt.Errorf("elementwise operations only support Float32 tensors")
	}
	shape, err := resultShape(t1, t2)
	if err != nil {
		return nil, err
	}
	result, err := Zeros(shape, Float32, t1.Device)
	if err != nil {
		return nil, err
	}
	idx1, err := broadcastIndex(result, t1)
	if err != nil {
		return nil, err
	}
	idx2, err := broadcastIndex(result, t2)
	if err != nil {
		return nil, err
	}

	d1 := t1.Data.([]float32)
	d2 := t2.Data.([]float32)
	out := result.Data.([]float32)
	for i := range out {
		out[i] = op(d1[idx1(i)], d2[idx2(i)])
	}
	return result, nil
}

// Add returns t1 + t2 with limited broadcasting (scalar and trailing
// bias-vector operands).
func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a + b })
}

// Sub returns t1 - t2.
func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a - b })
}

// Mul returns the elementwise product t1 * t2.
func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a * b })
}

// Div returns t1 / t2.
func Div(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a / b })
}

func unary(t *Tensor, op func(float32) float32) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("unary operations only support Float32 tensors")
	}
	data := t.Data.([]float32)
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = op(v)
	}
	return NewTensor(t.Shape, Float32, t.Device, out)
}

// ReLU returns max(0, x) elementwise.
func ReLU(t *Tensor) (*Tensor, error) {
	return unary(t, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// Sigmoid returns 1/(1+exp(-x)) elementwise.
func Sigmoid(t *Tensor) (*Tensor, error) {
	return unary(t, func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(v))))
	})
}

// Log returns the natural logarithm elementwise.
func Log(t *Tensor) (*Tensor, error) {
	return unary(t, func(v float32) float32 {
		return float32(math.Log(float64(v)))
	})
}

// Clamp limits every element to [min, max].
func Clamp(t *Tensor, min, max float32) (*Tensor, error) {
	return unary(t, func(v float32) float32 {
		if v < min {
			return min
		}
		if v > max {
			return max
		}
		return v
	})
}

// Neg returns -x elementwise.
func Neg(t *Tensor) (*Tensor, error) {
	return unary(t, func(v float32) float32 { return -v })
}

// Mean reduces a tensor to the [1] mean of all its elements.
func Mean(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Mean only supports Float32 tensors")
	}
	data := t.Data.([]float32)
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	return NewTensor([]int{1}, Float32, t.Device, []float32{float32(sum / float64(len(data)))})
}

// reduceGradToShape folds a broadcast gradient back onto the shape of the
// operand it belongs to, summing over the broadcast dimensions.
func reduceGradToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, targetShape) {
		return grad, nil
	}
	gradData := grad.Data.([]float32)

	// Scalar operand: sum everything.
	if calculateNumElements(targetShape) == 1 {
		var sum float32
		for _, v := range gradData {
			sum += v
		}
		return NewTensor(targetShape, Float32, grad.Device, []float32{sum})
	}

	// Bias vector [f] against gradient [n, f]: sum over rows.
	if len(grad.Shape) == 2 && len(targetShape) == 1 && targetShape[0] == grad.Shape[1] {
		f := grad.Shape[1]
		out := make([]float32, f)
		for i, v := range gradData {
			out[i%f] += v
		}
		return NewTensor(targetShape, Float32, grad.Device, out)
	}

	return nil, fmt.Errorf("cannot reduce gradient of shape %v to %v", grad.Shape, targetShape)
}
