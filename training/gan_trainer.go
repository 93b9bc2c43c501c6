package training

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/tsawler/go-gan/checkpoints"
	"github.com/tsawler/go-gan/tensor"
)

// Sampler produces a fresh batch of n samples as a [n, features] tensor
// on the requested device. The trainer calls one sampler for generator
// noise and another for real data, always passing its current device.
type Sampler func(n int, device tensor.DeviceType) (*tensor.Tensor, error)

// GANConfig assembles the collaborators for a GANTrainer.
type GANConfig struct {
	Generator     Module
	Discriminator Module
	GenOptimizer  Optimizer
	DisOptimizer  Optimizer
	GenLoss       Loss
	DisLoss       Loss
	NoiseSampler  Sampler
	RealSampler   Sampler

	// Schedule decides which slot trains each epoch. Nil selects
	// DefaultSchedule.
	Schedule Schedule

	// PositiveThreshold is the cutoff above which a discriminator output
	// counts as a positive prediction. Must lie in (0, 1); zero selects
	// the default of 0.5.
	PositiveThreshold float64

	Device tensor.DeviceType
}

// GANTrainer orchestrates adversarial training of a generator and a
// discriminator. Each epoch trains exactly one of the two models, chosen
// by the schedule, and records loss, divergence and discriminator
// classification metrics. Training is resumable: two consecutive Train
// calls leave the trainer in the same state as one call for the combined
// epoch count.
type GANTrainer struct {
	models     map[Slot]Module
	optimizers map[Slot]Optimizer
	losses     map[Slot]Loss
	noise      Sampler
	real       Sampler
	schedule   Schedule
	recorder   *Recorder
	threshold  float64
	device     tensor.DeviceType
}

// NewGANTrainer validates the configuration and builds a trainer.
func NewGANTrainer(config GANConfig) (*GANTrainer, error) {
	if config.Generator == nil || config.Discriminator == nil {
		return nil, fmt.Errorf("both generator and discriminator models are required")
	}
	if config.GenOptimizer == nil || config.DisOptimizer == nil {
		return nil, fmt.Errorf("both generator and discriminator optimizers are required")
	}
	if config.GenLoss == nil || config.DisLoss == nil {
		return nil, fmt.Errorf("both generator and discriminator losses are required")
	}
	if config.NoiseSampler == nil || config.RealSampler == nil {
		return nil, fmt.Errorf("noise and real samplers are required")
	}
	schedule := config.Schedule
	if schedule == nil {
		schedule = DefaultSchedule()
	}
	if config.PositiveThreshold < 0 || config.PositiveThreshold >= 1 {
		return nil, fmt.Errorf("positive threshold must lie in (0, 1), got %f", config.PositiveThreshold)
	}
	threshold := config.PositiveThreshold
	if threshold == 0 {
		threshold = 0.5
	}

	config.Generator.Train()
	config.Discriminator.Train()

	return &GANTrainer{
		models: map[Slot]Module{
			Generator:     config.Generator,
			Discriminator: config.Discriminator,
		},
		optimizers: map[Slot]Optimizer{
			Generator:     config.GenOptimizer,
			Discriminator: config.DisOptimizer,
		},
		losses: map[Slot]Loss{
			Generator:     config.GenLoss,
			Discriminator: config.DisLoss,
		},
		noise:     config.NoiseSampler,
		real:      config.RealSampler,
		schedule:  schedule,
		recorder:  NewRecorder(),
		threshold: threshold,
		device:    config.Device,
	}, nil
}

// Recorder exposes the accumulated training metrics.
func (t *GANTrainer) Recorder() *Recorder {
	return t.recorder
}

// Schedule exposes the alternation schedule.
func (t *GANTrainer) Schedule() Schedule {
	return t.schedule
}

// Device returns the device the trainer is bound to.
func (t *GANTrainer) Device() tensor.DeviceType {
	return t.device
}

// Threshold returns the positive-prediction cutoff.
func (t *GANTrainer) Threshold() float64 {
	return t.threshold
}

// Generator returns the generator model.
func (t *GANTrainer) Generator() Module {
	return t.models[Generator]
}

// Discriminator returns the discriminator model.
func (t *GANTrainer) Discriminator() Module {
	return t.models[Discriminator]
}

// GeneratorLoss returns the loss driving generator updates.
func (t *GANTrainer) GeneratorLoss() Loss {
	return t.losses[Generator]
}

// DiscriminatorLoss returns the loss driving discriminator updates.
func (t *GANTrainer) DiscriminatorLoss() Loss {
	return t.losses[Discriminator]
}

// GeneratorOptimizer returns the optimizer bound to the generator.
func (t *GANTrainer) GeneratorOptimizer() Optimizer {
	return t.optimizers[Generator]
}

// DiscriminatorOptimizer returns the optimizer bound to the discriminator.
func (t *GANTrainer) DiscriminatorOptimizer() Optimizer {
	return t.optimizers[Discriminator]
}

// Train runs the given number of epochs at the given batch size. Epochs
// continue from where the previous call stopped: the schedule, metrics
// and model states all carry over.
func (t *GANTrainer) Train(epochs, batchSize int) error {
	if epochs < 0 {
		return fmt.Errorf("epochs must be non-negative, got %d", epochs)
	}
	if batchSize < 2 {
		return fmt.Errorf("batch size must be at least 2, got %d", batchSize)
	}
	for i := 0; i < epochs; i++ {
		if _, _, err := t.runEpoch(batchSize); err != nil {
			return fmt.Errorf("epoch %d: %v", t.recorder.TotalEpochs(), err)
		}
	}
	if epochs > 0 {
		glog.Infof("trained %d epochs (batch size %d): generator=%d discriminator=%d total=%d",
			epochs, batchSize,
			t.recorder.EpochsTrained(Generator),
			t.recorder.EpochsTrained(Discriminator),
			t.recorder.TotalEpochs())
	}
	return nil
}

// withEval runs fn with the model in eval mode and restores the previous
// mode on every exit path.
func withEval(m Module, fn func() error) error {
	wasTraining := m.IsTraining()
	m.Eval()
	defer func() {
		if wasTraining {
			m.Train()
		}
	}()
	return fn()
}

func (t *GANTrainer) checkBatch(batch *tensor.Tensor, source string) error {
	if len(batch.Shape) != 2 {
		return fmt.Errorf("%s: expected a 2D batch, got shape %v", source, batch.Shape)
	}
	if batch.Device != t.device {
		return fmt.Errorf("%s: batch is on %s, trainer is on %s", source, batch.Device, t.device)
	}
	return nil
}

func (t *GANTrainer) sampleNoise(n int) (*tensor.Tensor, error) {
	batch, err := t.noise(n, t.device)
	if err != nil {
		return nil, fmt.Errorf("noise sampler: %v", err)
	}
	if err := t.checkBatch(batch, "noise sampler"); err != nil {
		return nil, err
	}
	return batch, nil
}

func (t *GANTrainer) sampleReal(n int) (*tensor.Tensor, error) {
	batch, err := t.real(n, t.device)
	if err != nil {
		return nil, fmt.Errorf("real sampler: %v", err)
	}
	if err := t.checkBatch(batch, "real sampler"); err != nil {
		return nil, err
	}
	return batch, nil
}

// discriminatorBatch builds one discriminator training batch: the first
// ceil(n/2) rows are generated samples labeled 0, the rest are real
// samples labeled 1. The generator runs in eval mode and its output is
// detached so no gradients reach it.
func (t *GANTrainer) discriminatorBatch(batchSize int) (input, labels *tensor.Tensor, err error) {
	genCount := (batchSize + 1) / 2
	realCount := batchSize / 2

	var generated *tensor.Tensor
	evalErr := withEval(t.models[Generator], func() error {
		noise, err := t.sampleNoise(genCount)
		if err != nil {
			return err
		}
		generated, err = t.models[Generator].Forward(noise)
		return err
	})
	if evalErr != nil {
		return nil, nil, evalErr
	}
	generated.Detach()

	realBatch, err := t.sampleReal(realCount)
	if err != nil {
		return nil, nil, err
	}

	input, err = tensor.Concat(generated, realBatch)
	if err != nil {
		return nil, nil, fmt.Errorf("concatenating discriminator input: %v", err)
	}

	fake, err := tensor.Zeros([]int{genCount, 1}, tensor.Float32, t.device)
	if err != nil {
		return nil, nil, err
	}
	genuine, err := tensor.Ones([]int{realCount, 1}, tensor.Float32, t.device)
	if err != nil {
		return nil, nil, err
	}
	labels, err = tensor.Concat(fake, genuine)
	if err != nil {
		return nil, nil, fmt.Errorf("concatenating discriminator labels: %v", err)
	}
	return input, labels, nil
}

// runEpoch trains the scheduled slot on one batch, records metrics and
// returns the slot that trained with its loss value.
func (t *GANTrainer) runEpoch(batchSize int) (Slot, float64, error) {
	slot := t.schedule.Next()

	// Both models accumulate gradients during a generator epoch because
	// the generator trains through the discriminator's forward pass.
	// Clearing both keeps the non-selected model untouched by Step.
	t.optimizers[Generator].ZeroGrad()
	t.optimizers[Discriminator].ZeroGrad()

	var predictions, labels *tensor.Tensor
	var err error

	switch slot {
	case Discriminator:
		var input *tensor.Tensor
		input, labels, err = t.discriminatorBatch(batchSize)
		if err != nil {
			return slot, 0, err
		}
		predictions, err = t.models[Discriminator].Forward(input)
		if err != nil {
			return slot, 0, fmt.Errorf("discriminator forward: %v", err)
		}

	case Generator:
		noise, sampleErr := t.sampleNoise(batchSize)
		if sampleErr != nil {
			return slot, 0, sampleErr
		}
		generated, fwdErr := t.models[Generator].Forward(noise)
		if fwdErr != nil {
			return slot, 0, fmt.Errorf("generator forward: %v", fwdErr)
		}
		evalErr := withEval(t.models[Discriminator], func() error {
			predictions, err = t.models[Discriminator].Forward(generated)
			return err
		})
		if evalErr != nil {
			return slot, 0, fmt.Errorf("discriminator forward on generated batch: %v", evalErr)
		}
		labels, err = tensor.Ones([]int{batchSize, 1}, tensor.Float32, t.device)
		if err != nil {
			return slot, 0, err
		}

	default:
		return slot, 0, fmt.Errorf("schedule selected unknown slot %d", slot)
	}

	lossTensor, err := t.losses[slot].Forward(predictions, labels)
	if err != nil {
		return slot, 0, fmt.Errorf("loss forward: %v", err)
	}
	if err := lossTensor.Backward(); err != nil {
		return slot, 0, fmt.Errorf("backward pass: %v", err)
	}
	if err := t.optimizers[slot].Step(); err != nil {
		return slot, 0, fmt.Errorf("optimizer step for %s: %v", slot, err)
	}

	lossValue, err := lossTensor.Item()
	if err != nil {
		return slot, 0, err
	}

	predData, err := predictions.GetFloat32Data()
	if err != nil {
		return slot, 0, err
	}
	labelData, err := labels.GetFloat32Data()
	if err != nil {
		return slot, 0, err
	}
	classification, err := PositiveMetrics(predData, labelData, t.threshold)
	if err != nil {
		return slot, 0, err
	}

	divergence, err := t.measureDivergence(batchSize)
	if err != nil {
		return slot, 0, err
	}

	// Nothing below can fail: the recorder series and the schedule either
	// all observe the epoch or none of them do.
	t.recorder.RecordLoss(slot, float64(lossValue))
	t.recorder.RecordClassification(classification)
	t.recorder.RecordDivergence(divergence)
	t.schedule.Advance(slot)

	glog.V(1).Infof("epoch %d: slot=%s loss=%.6f divergence=%.6f",
		t.recorder.TotalEpochs(), slot, lossValue, divergence)
	return slot, float64(lossValue), nil
}

// measureDivergence draws fresh generated and real batches and computes
// their empirical distance. The generator runs in eval mode and the
// measurement leaves no gradient state behind.
func (t *GANTrainer) measureDivergence(batchSize int) (float64, error) {
	var generated *tensor.Tensor
	evalErr := withEval(t.models[Generator], func() error {
		noise, err := t.sampleNoise(batchSize)
		if err != nil {
			return err
		}
		generated, err = t.models[Generator].Forward(noise)
		return err
	})
	if evalErr != nil {
		return 0, fmt.Errorf("generating divergence batch: %v", evalErr)
	}
	generated.Detach()

	realBatch, err := t.sampleReal(batchSize)
	if err != nil {
		return 0, err
	}
	return SlicedWasserstein1D(generated, realBatch)
}

// Evaluate runs the named slot's model on a batch in eval mode. It never
// mutates parameters, recorded metrics or the schedule, so interleaving
// any number of calls between Train calls leaves the training trajectory
// unchanged.
func (t *GANTrainer) Evaluate(slot Slot, batch *tensor.Tensor) (*tensor.Tensor, error) {
	switch slot {
	case Generator:
		return t.EvalGenerator(batch)
	case Discriminator:
		return t.EvalDiscriminator(batch)
	default:
		return nil, fmt.Errorf("unknown slot %d", slot)
	}
}

// EvalGenerator runs the generator on the given noise batch in eval mode
// without touching any training state. The result carries no gradient
// history.
func (t *GANTrainer) EvalGenerator(noise *tensor.Tensor) (*tensor.Tensor, error) {
	if err := t.checkBatch(noise, "noise input"); err != nil {
		return nil, err
	}
	var out *tensor.Tensor
	evalErr := withEval(t.models[Generator], func() error {
		var err error
		out, err = t.models[Generator].Forward(noise)
		return err
	})
	if evalErr != nil {
		return nil, evalErr
	}
	out.Detach()
	return out, nil
}

// EvalDiscriminator runs the discriminator on the given samples in eval
// mode without touching any training state. The result carries no
// gradient history.
func (t *GANTrainer) EvalDiscriminator(samples *tensor.Tensor) (*tensor.Tensor, error) {
	if err := t.checkBatch(samples, "discriminator input"); err != nil {
		return nil, err
	}
	var out *tensor.Tensor
	evalErr := withEval(t.models[Discriminator], func() error {
		var err error
		out, err = t.models[Discriminator].Forward(samples)
		return err
	})
	if evalErr != nil {
		return nil, evalErr
	}
	out.Detach()
	return out, nil
}

// ToDevice relocates both models to the given device. Parameter tensors
// keep their identity so bound optimizers stay valid.
func (t *GANTrainer) ToDevice(device tensor.DeviceType) error {
	for _, slot := range Slots() {
		for i, param := range t.models[slot].Parameters() {
			moved, err := param.ToDevice(device)
			if err != nil {
				return fmt.Errorf("relocating %s parameter %d: %v", slot, i, err)
			}
			*param = *moved
		}
	}
	t.device = device
	return nil
}

// snapshot captures the trainer's complete state as a checkpoint value.
func (t *GANTrainer) snapshot() (*checkpoints.Checkpoint, error) {
	cp := &checkpoints.Checkpoint{
		Weights:        map[string][]checkpoints.WeightTensor{},
		OptimizerState: map[string]*checkpoints.OptimizerState{},
		Metrics:        t.recorder.State(),
		Threshold:      t.threshold,
		Device:         t.device.String(),
		Metadata:       checkpoints.NewMetadata(),
	}

	for _, slot := range Slots() {
		weights, err := checkpoints.ExtractWeights(slot.String(), t.models[slot].Parameters())
		if err != nil {
			return nil, fmt.Errorf("extracting %s weights: %v", slot, err)
		}
		cp.Weights[slot.String()] = weights

		state, err := t.optimizers[slot].GetState()
		if err != nil {
			return nil, fmt.Errorf("extracting %s optimizer state: %v", slot, err)
		}
		cp.OptimizerState[slot.String()] = state
	}

	blob, err := t.schedule.State()
	if err != nil {
		return nil, fmt.Errorf("serializing schedule: %v", err)
	}
	cp.Schedule = checkpoints.ScheduleState{
		Type: fmt.Sprintf("%T", t.schedule),
		Blob: blob,
	}
	return cp, nil
}

// Save writes the trainer's complete state to path. A trainer restored
// from the file continues training exactly as this one would.
func (t *GANTrainer) Save(path string) error {
	cp, err := t.snapshot()
	if err != nil {
		return err
	}
	return checkpoints.Save(path, cp)
}

// Load restores the trainer's state from a checkpoint written by Save.
// The trainer must be constructed with the same model architectures,
// optimizer types and schedule type as the one that saved; mismatches
// fail before any state is modified where detectable.
func (t *GANTrainer) Load(path string) error {
	cp, err := checkpoints.Load(path)
	if err != nil {
		return err
	}

	device, err := tensor.ParseDevice(cp.Device)
	if err != nil {
		return fmt.Errorf("checkpoint device: %v", err)
	}
	if scheduleType := fmt.Sprintf("%T", t.schedule); cp.Schedule.Type != scheduleType {
		return fmt.Errorf("schedule type mismatch: checkpoint has %s, trainer has %s",
			cp.Schedule.Type, scheduleType)
	}

	// Validate every slot against the checkpoint before touching any
	// state, so a mismatch in one slot cannot leave another half-restored.
	for _, slot := range Slots() {
		weights, ok := cp.Weights[slot.String()]
		if !ok {
			return fmt.Errorf("checkpoint missing %s weights", slot)
		}
		if err := checkpoints.CheckWeights(weights, t.models[slot].Parameters()); err != nil {
			return fmt.Errorf("checking %s weights: %v", slot, err)
		}
		if _, ok := cp.OptimizerState[slot.String()]; !ok {
			return fmt.Errorf("checkpoint missing %s optimizer state", slot)
		}
	}

	for _, slot := range Slots() {
		if err := checkpoints.LoadWeights(cp.Weights[slot.String()], t.models[slot].Parameters()); err != nil {
			return fmt.Errorf("loading %s weights: %v", slot, err)
		}
		if err := t.optimizers[slot].LoadState(cp.OptimizerState[slot.String()]); err != nil {
			return fmt.Errorf("loading %s optimizer state: %v", slot, err)
		}
	}

	if err := t.schedule.Restore(cp.Schedule.Blob); err != nil {
		return fmt.Errorf("restoring schedule: %v", err)
	}
	if err := t.recorder.RestoreState(cp.Metrics); err != nil {
		return fmt.Errorf("restoring metrics: %v", err)
	}
	t.threshold = cp.Threshold

	if device != t.device {
		if err := t.ToDevice(device); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether two trainers are in the same state: same weights,
// optimizer state, metrics history, schedule position, threshold and
// device. Identity plays no part; two independently built trainers that
// reached the same values are equal.
func (t *GANTrainer) Equal(other *GANTrainer) (bool, error) {
	mine, err := t.snapshot()
	if err != nil {
		return false, err
	}
	theirs, err := other.snapshot()
	if err != nil {
		return false, err
	}
	return mine.Equal(theirs), nil
}
