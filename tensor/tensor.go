package tensor

import (
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

// DeviceType is a placement label. The tensor core does not move data on
// its own: operations on tensors with different labels fail fast, and
// transfers happen only through ToDevice.
type DeviceType int

const (
	CPU DeviceType = iota
	GPU
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return "Unknown"
	}
}

// ParseDevice converts a device label string back into a DeviceType.
func ParseDevice(s string) (DeviceType, error) {
	switch s {
	case "CPU":
		return CPU, nil
	case "GPU":
		return GPU, nil
	default:
		return CPU, fmt.Errorf("unknown device label %q", s)
	}
}

// Operation is one node of the autograd graph. Backward receives the
// gradient flowing into the operation's output and returns one gradient
// per input, in input order (nil for inputs that do not require grad).
type Operation interface {
	Inputs() []*Tensor
	Backward(gradOut *Tensor) ([]*Tensor, error)
}

type Tensor struct {
	Shape        []int
	Strides      []int
	DType        DType
	Device       DeviceType
	Data         interface{}
	NumElems     int
	requiresGrad bool
	grad         *Tensor
	creator      Operation
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, device=%s, elements=%d)",
		t.Shape, t.DType, t.Device, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// Detach drops the autograd history so the tensor acts as a leaf.
func (t *Tensor) Detach() {
	t.creator = nil
}

// Backward runs reverse-mode accumulation from a scalar tensor, adding
// gradients into every reachable tensor that requires grad.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a scalar tensor, got shape %v", t.Shape)
	}
	if t.DType != Float32 {
		return fmt.Errorf("backward only supports Float32 tensors")
	}

	seed, err := Ones([]int{1}, Float32, t.Device)
	if err != nil {
		return err
	}

	order, err := topoSort(t)
	if err != nil {
		return err
	}

	grads := map[*Tensor]*Tensor{t: seed}
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		gradOut := grads[node]
		if gradOut == nil {
			continue
		}
		if node.requiresGrad {
			if err := node.accumulateGrad(gradOut); err != nil {
				return err
			}
		}
		if node.creator == nil {
			continue
		}
		inputGrads, err := node.creator.Backward(gradOut)
		if err != nil {
			return fmt.Errorf("backward pass failed: %v", err)
		}
		inputs := node.creator.Inputs()
		if len(inputGrads) != len(inputs) {
			return fmt.Errorf("backward produced %d gradients for %d inputs", len(inputGrads), len(inputs))
		}
		for j, input := range inputs {
			g := inputGrads[j]
			if g == nil {
				continue
			}
			if existing := grads[input]; existing != nil {
				summed, err := Add(existing, g)
				if err != nil {
					return fmt.Errorf("gradient accumulation failed: %v", err)
				}
				grads[input] = summed
			} else {
				grads[input] = g
			}
		}
	}

	return nil
}

func (t *Tensor) accumulateGrad(g *Tensor) error {
	if t.grad == nil {
		clone, err := g.Clone()
		if err != nil {
			return err
		}
		t.grad = clone
		return nil
	}
	summed, err := Add(t.grad, g)
	if err != nil {
		return fmt.Errorf("gradient accumulation failed: %v", err)
	}
	t.grad = summed
	return nil
}

// topoSort orders the graph so every tensor appears after its inputs.
func topoSort(root *Tensor) ([]*Tensor, error) {
	var order []*Tensor
	visited := map[*Tensor]bool{}
	visiting := map[*Tensor]bool{}

	var visit func(*Tensor) error
	visit = func(node *Tensor) error {
		if visited[node] {
			return nil
		}
		if visiting[node] {
			return fmt.Errorf("autograd graph contains a cycle")
		}
		visiting[node] = true
		if node.creator != nil {
			for _, input := range node.creator.Inputs() {
				if err := visit(input); err != nil {
					return err
				}
			}
		}
		visiting[node] = false
		visited[node] = true
		order = append(order, node)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: must have at least one dimension")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}
