package training

import (
	"fmt"

	"github.com/tsawler/go-gan/tensor"
)

// Loss produces a scalar loss tensor wired into the autograd graph, so a
// subsequent Backward call reaches the model parameters behind predicted.
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

func checkLossShapes(predicted, target *tensor.Tensor) error {
	if predicted.DType != target.DType {
		return fmt.Errorf("predicted and target tensors must have the same dtype")
	}
	if len(predicted.Shape) != len(target.Shape) {
		return fmt.Errorf("predicted shape %v does not match target shape %v", predicted.Shape, target.Shape)
	}
	for i, dim := range predicted.Shape {
		if dim != target.Shape[i] {
			return fmt.Errorf("predicted shape %v does not match target shape %v", predicted.Shape, target.Shape)
		}
	}
	return nil
}

// MSELoss implements mean squared error: mean((predicted - target)^2).
type MSELoss struct{}

func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

func (mse *MSELoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(predicted, target); err != nil {
		return nil, err
	}
	diff, err := tensor.SubAutograd(predicted, target)
	if err != nil {
		return nil, err
	}
	squared, err := tensor.MulAutograd(diff, diff)
	if err != nil {
		return nil, err
	}
	return tensor.MeanAutograd(squared)
}

// BCELoss implements binary cross-entropy over probabilities:
// -mean(y*log(p) + (1-y)*log(1-p)). Predictions are clamped away from 0
// and 1 to keep the logarithm finite.
type BCELoss struct {
	eps float32
}

func NewBCELoss() *BCELoss {
	return &BCELoss{eps: 1e-7}
}

func (bce *BCELoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(predicted, target); err != nil {
		return nil, err
	}

	p, err := tensor.ClampAutograd(predicted, bce.eps, 1-bce.eps)
	if err != nil {
		return nil, err
	}
	logP, err := tensor.LogAutograd(p)
	if err != nil {
		return nil, err
	}
	posTerm, err := tensor.MulAutograd(target, logP)
	if err != nil {
		return nil, err
	}

	one, err := tensor.Ones(target.Shape, tensor.Float32, target.Device)
	if err != nil {
		return nil, err
	}
	oneMinusT, err := tensor.SubAutograd(one, target)
	if err != nil {
		return nil, err
	}
	oneMinusP, err := tensor.SubAutograd(one, p)
	if err != nil {
		return nil, err
	}
	logOneMinusP, err := tensor.LogAutograd(oneMinusP)
	if err != nil {
		return nil, err
	}
	negTerm, err := tensor.MulAutograd(oneMinusT, logOneMinusP)
	if err != nil {
		return nil, err
	}

	sum, err := tensor.AddAutograd(posTerm, negTerm)
	if err != nil {
		return nil, err
	}
	mean, err := tensor.MeanAutograd(sum)
	if err != nil {
		return nil, err
	}
	return tensor.NegAutograd(mean)
}
