package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-gan/checkpoints"
	"github.com/tsawler/go-gan/tensor"
)

// Optimizer is the capability set the trainer requires: bound to one
// model's parameters, able to take a step and reset gradients, and able
// to save and restore its internal state for checkpointing.
type Optimizer interface {
	Step() error
	ZeroGrad()
	GetLR() float64
	SetLR(lr float64)
	GetState() (*checkpoints.OptimizerState, error)
	LoadState(state *checkpoints.OptimizerState) error
}

// gradData returns the parameter's current gradient data, or nil when it
// has none this step.
func gradData(param *tensor.Tensor) []float32 {
	g := param.Grad()
	if g == nil {
		return nil
	}
	data, err := g.GetFloat32Data()
	if err != nil {
		return nil
	}
	return data
}

func bufferState(name, stateType string, shape []int, data []float32) checkpoints.OptimizerTensor {
	copied := make([]float32, len(data))
	copy(copied, data)
	return checkpoints.OptimizerTensor{
		Name:      name,
		Shape:     append([]int(nil), shape...),
		Data:      copied,
		StateType: stateType,
	}
}

func restoreBuffer(buf []float32, t checkpoints.OptimizerTensor) error {
	if len(t.Data) != len(buf) {
		return fmt.Errorf("state buffer %s size mismatch: persisted %d, constructed %d", t.Name, len(t.Data), len(buf))
	}
	copy(buf, t.Data)
	return nil
}

// SGD implements stochastic gradient descent with optional momentum,
// dampening, weight decay and Nesterov updates.
type SGD struct {
	parameters   []*tensor.Tensor
	learningRate float64
	momentum     float64
	weightDecay  float64
	dampening    float64
	nesterov     bool
	stepCount    uint64
	velocities   [][]float32
}

// NewSGD creates an SGD optimizer bound to the given parameters.
func NewSGD(parameters []*tensor.Tensor, lr, momentum, weightDecay, dampening float64, nesterov bool) *SGD {
	sgd := &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
		dampening:    dampening,
		nesterov:     nesterov,
		velocities:   make([][]float32, len(parameters)),
	}
	if momentum > 0 {
		for i, param := range parameters {
			sgd.velocities[i] = make([]float32, param.NumElems)
		}
	}
	return sgd
}

// Step applies one update to every parameter that has a gradient.
func (sgd *SGD) Step() error {
	sgd.stepCount++
	for i, param := range sgd.parameters {
		grad := gradData(param)
		if !param.RequiresGrad() || grad == nil {
			continue
		}
		data, err := param.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter %d: %v", i, err)
		}

		lr := float32(sgd.learningRate)
		wd := float32(sgd.weightDecay)
		m := float32(sgd.momentum)
		damp := float32(sgd.dampening)

		for j := range data {
			g := grad[j]
			if wd > 0 {
				g += wd * data[j]
			}
			if m > 0 {
				v := m*sgd.velocities[i][j] + (1-damp)*g
				sgd.velocities[i][j] = v
				if sgd.nesterov {
					g += m * v
				} else {
					g = v
				}
			}
			data[j] -= lr * g
		}
	}
	return nil
}

// ZeroGrad resets gradients for all bound parameters.
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

func (sgd *SGD) GetLR() float64 {
	return sgd.learningRate
}

func (sgd *SGD) SetLR(lr float64) {
	sgd.learningRate = lr
}

// GetState extracts the optimizer state for checkpointing.
func (sgd *SGD) GetState() (*checkpoints.OptimizerState, error) {
	nesterov := 0.0
	if sgd.nesterov {
		nesterov = 1.0
	}
	state := &checkpoints.OptimizerState{
		Type: "SGD",
		Parameters: map[string]float64{
			"lr":           sgd.learningRate,
			"momentum":     sgd.momentum,
			"weight_decay": sgd.weightDecay,
			"dampening":    sgd.dampening,
			"nesterov":     nesterov,
		},
		StepCount: sgd.stepCount,
	}
	if sgd.momentum > 0 {
		for i, v := range sgd.velocities {
			state.StateData = append(state.StateData,
				bufferState(fmt.Sprintf("velocity_%d", i), "velocity", sgd.parameters[i].Shape, v))
		}
	}
	return state, nil
}

// LoadState restores the optimizer state from a checkpoint, failing fast
// when it was produced by a different optimizer type or for structurally
// different parameters.
func (sgd *SGD) LoadState(state *checkpoints.OptimizerState) error {
	if state.Type != "SGD" {
		return fmt.Errorf("optimizer state type mismatch: expected SGD, got %s", state.Type)
	}
	sgd.learningRate = state.Parameters["lr"]
	sgd.momentum = state.Parameters["momentum"]
	sgd.weightDecay = state.Parameters["weight_decay"]
	sgd.dampening = state.Parameters["dampening"]
	sgd.nesterov = state.Parameters["nesterov"] != 0
	sgd.stepCount = state.StepCount

	if sgd.momentum > 0 {
		if len(state.StateData) != len(sgd.parameters) {
			return fmt.Errorf("velocity buffer count mismatch: persisted %d, constructed %d",
				len(state.StateData), len(sgd.parameters))
		}
		for i, t := range state.StateData {
			if sgd.velocities[i] == nil {
				sgd.velocities[i] = make([]float32, sgd.parameters[i].NumElems)
			}
			if err := restoreBuffer(sgd.velocities[i], t); err != nil {
				return err
			}
		}
	}
	return nil
}

// RMSPropConfig holds RMSProp hyperparameters.
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64 // smoothing constant for the squared-gradient average
	Epsilon      float64
	WeightDecay  float64
	Momentum     float64
	Centered     bool
}

// DefaultRMSPropConfig returns the standard RMSProp configuration.
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		Momentum:     0.0,
		Centered:     false,
	}
}

// RMSProp implements the RMSProp optimizer, the update rule the original
// Wasserstein-style GAN recipe binds to both slots.
type RMSProp struct {
	parameters []*tensor.Tensor
	config     RMSPropConfig
	stepCount  uint64

	squaredAvg [][]float32
	momentum   [][]float32
	gradAvg    [][]float32
}

// NewRMSProp creates an RMSProp optimizer bound to the given parameters.
func NewRMSProp(parameters []*tensor.Tensor, config RMSPropConfig) *RMSProp {
	r := &RMSProp{
		parameters: parameters,
		config:     config,
		squaredAvg: make([][]float32, len(parameters)),
		momentum:   make([][]float32, len(parameters)),
		gradAvg:    make([][]float32, len(parameters)),
	}
	for i, param := range parameters {
		r.squaredAvg[i] = make([]float32, param.NumElems)
		if config.Momentum > 0 {
			r.momentum[i] = make([]float32, param.NumElems)
		}
		if config.Centered {
			r.gradAvg[i] = make([]float32, param.NumElems)
		}
	}
	return r
}

// Step applies one update to every parameter that has a gradient.
func (r *RMSProp) Step() error {
	r.stepCount++
	alpha := float32(r.config.Alpha)
	eps := float32(r.config.Epsilon)
	lr := float32(r.config.LearningRate)
	wd := float32(r.config.WeightDecay)
	m := float32(r.config.Momentum)

	for i, param := range r.parameters {
		grad := gradData(param)
		if !param.RequiresGrad() || grad == nil {
			continue
		}
		data, err := param.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter %d: %v", i, err)
		}

		for j := range data {
			g := grad[j]
			if wd > 0 {
				g += wd * data[j]
			}

			sq := alpha*r.squaredAvg[i][j] + (1-alpha)*g*g
			r.squaredAvg[i][j] = sq

			denomSq := sq
			if r.config.Centered {
				avg := alpha*r.gradAvg[i][j] + (1-alpha)*g
				r.gradAvg[i][j] = avg
				denomSq -= avg * avg
			}
			denom := float32(math.Sqrt(float64(denomSq))) + eps

			if m > 0 {
				buf := m*r.momentum[i][j] + g/denom
				r.momentum[i][j] = buf
				data[j] -= lr * buf
			} else {
				data[j] -= lr * g / denom
			}
		}
	}
	return nil
}

// ZeroGrad resets gradients for all bound parameters.
func (r *RMSProp) ZeroGrad() {
	tensor.ZeroGrad(r.parameters)
}

func (r *RMSProp) GetLR() float64 {
	return r.config.LearningRate
}

func (r *RMSProp) SetLR(lr float64) {
	r.config.LearningRate = lr
}

// GetState extracts the optimizer state for checkpointing.
func (r *RMSProp) GetState() (*checkpoints.OptimizerState, error) {
	centered := 0.0
	if r.config.Centered {
		centered = 1.0
	}
	state := &checkpoints.OptimizerState{
		Type: "RMSProp",
		Parameters: map[string]float64{
			"lr":           r.config.LearningRate,
			"alpha":        r.config.Alpha,
			"eps":          r.config.Epsilon,
			"weight_decay": r.config.WeightDecay,
			"momentum":     r.config.Momentum,
			"centered":     centered,
		},
		StepCount: r.stepCount,
	}
	for i, buf := range r.squaredAvg {
		state.StateData = append(state.StateData,
			bufferState(fmt.Sprintf("squared_grad_avg_%d", i), "squared_grad_avg", r.parameters[i].Shape, buf))
	}
	if r.config.Momentum > 0 {
		for i, buf := range r.momentum {
			state.StateData = append(state.StateData,
				bufferState(fmt.Sprintf("momentum_%d", i), "momentum", r.parameters[i].Shape, buf))
		}
	}
	if r.config.Centered {
		for i, buf := range r.gradAvg {
			state.StateData = append(state.StateData,
				bufferState(fmt.Sprintf("grad_avg_%d", i), "grad_avg", r.parameters[i].Shape, buf))
		}
	}
	return state, nil
}

// LoadState restores the optimizer state from a checkpoint, failing fast
// when it was produced by a different optimizer type or for structurally
// different parameters.
func (r *RMSProp) LoadState(state *checkpoints.OptimizerState) error {
	if state.Type != "RMSProp" {
		return fmt.Errorf("optimizer state type mismatch: expected RMSProp, got %s", state.Type)
	}
	r.config.LearningRate = state.Parameters["lr"]
	r.config.Alpha = state.Parameters["alpha"]
	r.config.Epsilon = state.Parameters["eps"]
	r.config.WeightDecay = state.Parameters["weight_decay"]
	r.config.Momentum = state.Parameters["momentum"]
	r.config.Centered = state.Parameters["centered"] != 0
	r.stepCount = state.StepCount

	byType := map[string][]checkpoints.OptimizerTensor{}
	for _, t := range state.StateData {
		byType[t.StateType] = append(byType[t.StateType], t)
	}

	restore := func(stateType string, bufs [][]float32, needed bool) error {
		tensors := byType[stateType]
		if !needed {
			if len(tensors) != 0 {
				return fmt.Errorf("unexpected %s buffers in optimizer state", stateType)
			}
			return nil
		}
		if len(tensors) != len(r.parameters) {
			return fmt.Errorf("%s buffer count mismatch: persisted %d, constructed %d",
				stateType, len(tensors), len(r.parameters))
		}
		for i, t := range tensors {
			if bufs[i] == nil {
				bufs[i] = make([]float32, r.parameters[i].NumElems)
			}
			if err := restoreBuffer(bufs[i], t); err != nil {
				return err
			}
		}
		return nil
	}

	if err := restore("squared_grad_avg", r.squaredAvg, true); err != nil {
		return err
	}
	if err := restore("momentum", r.momentum, r.config.Momentum > 0); err != nil {
		return err
	}
	return restore("grad_avg", r.gradAvg, r.config.Centered)
}
