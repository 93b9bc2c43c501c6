package tensor

import (
	"fmt"
)

// Clone returns a deep copy of the tensor data. The autograd history is
// not copied.
func (t *Tensor) Clone() (*Tensor, error) {
	switch t.DType {
	case Float32:
		data := make([]float32, t.NumElems)
		copy(data, t.Data.([]float32))
		clone, err := NewTensor(t.Shape, t.DType, t.Device, data)
		if err != nil {
			return nil, err
		}
		clone.requiresGrad = t.requiresGrad
		return clone, nil
	case Int32:
		data := make([]int32, t.NumElems)
		copy(data, t.Data.([]int32))
		clone, err := NewTensor(t.Shape, t.DType, t.Device, data)
		if err != nil {
			return nil, err
		}
		clone.requiresGrad = t.requiresGrad
		return clone, nil
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// GetFloat32Data returns the backing float32 slice.
func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor is %s, not Float32", t.DType)
	}
	return t.Data.([]float32), nil
}

// Item extracts the value of a single-element Float32 tensor.
func (t *Tensor) Item() (float32, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("Item requires a single-element tensor, got shape %v", t.Shape)
	}
	if t.DType != Float32 {
		return 0, fmt.Errorf("Item only supports Float32 tensors")
	}
	return t.Data.([]float32)[0], nil
}

// Equal reports value equality: same shape, dtype, device and data.
func (t *Tensor) Equal(other *Tensor) bool {
	if other == nil {
		return false
	}
	if t.DType != other.DType || t.Device != other.Device {
		return false
	}
	if !shapesEqual(t.Shape, other.Shape) {
		return false
	}
	switch t.DType {
	case Float32:
		a := t.Data.([]float32)
		b := other.Data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case Int32:
		a := t.Data.([]int32)
		b := other.Data.([]int32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	default:
		return false
	}
	return true
}

// SetData replaces the tensor's backing data in place. The new data must
// match the existing shape and dtype.
func (t *Tensor) SetData(data interface{}) error {
	return t.setData(data)
}

// ToDevice returns a copy of the tensor labeled for the given device. The
// core has no real accelerator transfer; relocation is an explicit copy
// with a new placement label.
func (t *Tensor) ToDevice(device DeviceType) (*Tensor, error) {
	clone, err := t.Clone()
	if err != nil {
		return nil, err
	}
	clone.Device = device
	return clone, nil
}

// ZeroGrad clears the gradient of every tensor in the slice.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		t.grad = nil
	}
}
