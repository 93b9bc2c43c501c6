package tensor

import (
	"fmt"
)

// attach wires a freshly computed result into the autograd graph when any
// input participates in it.
func attach(result *Tensor, op Operation) *Tensor {
	for _, input := range op.Inputs() {
		if input.requiresGrad || input.creator != nil {
			result.creator = op
			break
		}
	}
	return result
}

type addOp struct {
	a, b *Tensor
}

func (op *addOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *addOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := reduceGradToShape(gradOut, op.a.Shape)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradToShape(gradOut, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// AddAutograd returns a + b and records the operation for backward.
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	result, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	return attach(result, &addOp{a: a, b: b}), nil
}

type subOp struct {
	a, b *Tensor
}

func (op *subOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *subOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := reduceGradToShape(gradOut, op.a.Shape)
	if err != nil {
		return nil, err
	}
	negGrad, err := Neg(gradOut)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradToShape(negGrad, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// SubAutograd returns a - b and records the operation for backward.
func SubAutograd(a, b *Tensor) (*Tensor, error) {
	result, err := Sub(a, b)
	if err != nil {
		return nil, err
	}
	return attach(result, &subOp{a: a, b: b}), nil
}

type mulOp struct {
	a, b *Tensor
}

func (op *mulOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *mulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// d(a*b)/da = b, d(a*b)/db = a, each folded back onto the operand shape.
	scaledA, err := Mul(gradOut, op.b)
	if err != nil {
		return nil, err
	}
	gradA, err := reduceGradToShape(scaledA, op.a.Shape)
	if err != nil {
		return nil, err
	}
	scaledB, err := Mul(gradOut, op.a)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradToShape(scaledB, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// MulAutograd returns the elementwise product and records the operation.
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	result, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return attach(result, &mulOp{a: a, b: b}), nil
}

type matMulOp struct {
	a, b *Tensor
}

func (op *matMulOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *matMulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	bT, err := Transpose(op.b)
	if err != nil {
		return nil, err
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		return nil, err
	}
	aT, err := Transpose(op.a)
	if err != nil {
		return nil, err
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// MatMulAutograd returns a @ b and records the operation for backward.
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	result, err := MatMul(a, b)
	if err != nil {
		return nil, err
	}
	return attach(result, &matMulOp{a: a, b: b}), nil
}

type reluOp struct {
	input *Tensor
}

func (op *reluOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *reluOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	in := op.input.Data.([]float32)
	gradData := gradOut.Data.([]float32)
	out := make([]float32, len(gradData))
	for i := range out {
		if in[i] > 0 {
			out[i] = gradData[i]
		}
	}
	grad, err := NewTensor(op.input.Shape, Float32, gradOut.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// ReLUAutograd applies ReLU and records the operation for backward.
func ReLUAutograd(a *Tensor) (*Tensor, error) {
	result, err := ReLU(a)
	if err != nil {
		return nil, err
	}
	return attach(result, &reluOp{input: a}), nil
}

type sigmoidOp struct {
	input  *Tensor
	output *Tensor
}

func (op *sigmoidOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *sigmoidOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// d(sigmoid)/dx = s * (1 - s), using the cached forward output.
	s := op.output.Data.([]float32)
	gradData := gradOut.Data.([]float32)
	out := make([]float32, len(gradData))
	for i := range out {
		out[i] = gradData[i] * s[i] * (1 - s[i])
	}
	grad, err := NewTensor(op.input.Shape, Float32, gradOut.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SigmoidAutograd applies the logistic function and records the operation.
func SigmoidAutograd(a *Tensor) (*Tensor, error) {
	result, err := Sigmoid(a)
	if err != nil {
		return nil, err
	}
	return attach(result, &sigmoidOp{input: a, output: result}), nil
}

type logOp struct {
	input *Tensor
}

func (op *logOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *logOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	in := op.input.Data.([]float32)
	gradData := gradOut.Data.([]float32)
	out := make([]float32, len(gradData))
	for i := range out {
		out[i] = gradData[i] / in[i]
	}
	grad, err := NewTensor(op.input.Shape, Float32, gradOut.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// LogAutograd applies the natural logarithm and records the operation.
func LogAutograd(a *Tensor) (*Tensor, error) {
	result, err := Log(a)
	if err != nil {
		return nil, err
	}
	return attach(result, &logOp{input: a}), nil
}

type clampOp struct {
	input    *Tensor
	min, max float32
}

func (op *clampOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *clampOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// Gradient passes through unsaturated elements only.
	in := op.input.Data.([]float32)
	gradData := gradOut.Data.([]float32)
	out := make([]float32, len(gradData))
	for i := range out {
		if in[i] > op.min && in[i] < op.max {
			out[i] = gradData[i]
		}
	}
	grad, err := NewTensor(op.input.Shape, Float32, gradOut.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// ClampAutograd limits elements to [min, max] and records the operation.
func ClampAutograd(a *Tensor, min, max float32) (*Tensor, error) {
	result, err := Clamp(a, min, max)
	if err != nil {
		return nil, err
	}
	return attach(result, &clampOp{input: a, min: min, max: max}), nil
}

type meanOp struct {
	input *Tensor
}

func (op *meanOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *meanOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	g := gradOut.Data.([]float32)[0] / float32(op.input.NumElems)
	out := make([]float32, op.input.NumElems)
	for i := range out {
		out[i] = g
	}
	grad, err := NewTensor(op.input.Shape, Float32, gradOut.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// MeanAutograd reduces to the scalar mean and records the operation.
func MeanAutograd(a *Tensor) (*Tensor, error) {
	result, err := Mean(a)
	if err != nil {
		return nil, err
	}
	return attach(result, &meanOp{input: a}), nil
}

type negOp struct {
	input *Tensor
}

func (op *negOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *negOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Neg(gradOut)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// NegAutograd returns -a and records the operation for backward.
func NegAutograd(a *Tensor) (*Tensor, error) {
	result, err := Neg(a)
	if err != nil {
		return nil, err
	}
	return attach(result, &negOp{input: a}), nil
}

type concatOp struct {
	inputs []*Tensor
}

func (op *concatOp) Inputs() []*Tensor { return op.inputs }

func (op *concatOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradData := gradOut.Data.([]float32)
	grads := make([]*Tensor, len(op.inputs))
	offset := 0
	for i, input := range op.inputs {
		n := input.NumElems
		if offset+n > len(gradData) {
			return nil, fmt.Errorf("concat gradient length mismatch")
		}
		part := make([]float32, n)
		copy(part, gradData[offset:offset+n])
		grad, err := NewTensor(input.Shape, Float32, gradOut.Device, part)
		if err != nil {
			return nil, err
		}
		grads[i] = grad
		offset += n
	}
	return grads, nil
}

// ConcatAutograd stacks 2D tensors along dimension 0 and records the
// operation, splitting the gradient back per input on backward.
func ConcatAutograd(ts ...*Tensor) (*Tensor, error) {
	result, err := Concat(ts...)
	if err != nil {
		return nil, err
	}
	return attach(result, &concatOp{inputs: ts}), nil
}
