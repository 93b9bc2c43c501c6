package tensor

import (
	"fmt"
	"math/rand"
)

// Package-level random source for deterministic sampling and
// initialization. Reseed with SetRandomSeed for reproducible runs.
var globalRng = rand.New(rand.NewSource(1))

// SetRandomSeed resets the package random source.
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// NewTensor creates a tensor from existing data. The data slice must match
// the shape's element count and the dtype's Go representation.
func NewTensor(shape []int, dtype DType, device DeviceType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	t := &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		Device:   device,
		NumElems: calculateNumElements(shape),
	}

	if err := t.setData(data); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float32:
		d, ok := data.([]float32)
		if !ok {
			return fmt.Errorf("expected []float32 data for Float32 tensor, got %T", data)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), t.Shape, t.NumElems)
		}
		t.Data = d
	case Int32:
		d, ok := data.([]int32)
		if !ok {
			return fmt.Errorf("expected []int32 data for Int32 tensor, got %T", data)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), t.Shape, t.NumElems)
		}
		t.Data = d
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

// Zeros creates a zero-filled tensor.
func Zeros(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		return NewTensor(shape, dtype, device, make([]float32, n))
	case Int32:
		return NewTensor(shape, dtype, device, make([]int32, n))
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// Ones creates a one-filled tensor.
func Ones(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	if dtype != Float32 {
		return nil, fmt.Errorf("Ones only supports Float32 tensors")
	}
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	data := make([]float32, calculateNumElements(shape))
	for i := range data {
		data[i] = 1.0
	}
	return NewTensor(shape, dtype, device, data)
}

// Full creates a tensor filled with a constant value.
func Full(shape []int, value float32, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	data := make([]float32, calculateNumElements(shape))
	for i := range data {
		data[i] = value
	}
	return NewTensor(shape, Float32, device, data)
}

// FromScalar wraps a single value as a [1] tensor.
func FromScalar(value float64, device DeviceType) *Tensor {
	t, _ := NewTensor([]int{1}, Float32, device, []float32{float32(value)})
	return t
}

// RandomNormal creates a tensor drawn from N(mean, std^2) using the
// package random source.
func RandomNormal(shape []int, mean, std float32, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	data := make([]float32, calculateNumElements(shape))
	for i := range data {
		data[i] = mean + std*float32(globalRng.NormFloat64())
	}
	return NewTensor(shape, Float32, device, data)
}

// RandomUniform creates a tensor drawn uniformly from [low, high).
func RandomUniform(shape []int, low, high float32, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	data := make([]float32, calculateNumElements(shape))
	for i := range data {
		data[i] = low + (high-low)*float32(globalRng.Float64())
	}
	return NewTensor(shape, Float32, device, data)
}
