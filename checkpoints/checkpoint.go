// Package checkpoints persists complete trainer snapshots as a single
// binary blob.
//
// The format is gob and is therefore a generic object deserialization:
// loading a checkpoint from an untrusted source is unsafe and callers
// must only load files they produced themselves or otherwise trust.
package checkpoints

import (
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tsawler/go-gan/tensor"
)

// Checkpoint is the complete persisted snapshot of a trainer: model
// weights and optimizer state per slot, the full metrics history, the
// alternation schedule state, the positive-result threshold and the
// device label. Two trainers are equal exactly when their checkpoints
// are value-equal (metadata aside).
type Checkpoint struct {
	Weights        map[string][]WeightTensor
	OptimizerState map[string]*OptimizerState
	Metrics        MetricsState
	Schedule       ScheduleState
	Threshold      float64
	Device         string
	Metadata       Metadata
}

// WeightTensor is one model parameter with its data extracted to the CPU.
type WeightTensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// OptimizerState captures an optimizer's hyperparameters and internal
// buffers (momentum, squared-gradient averages, etc.).
type OptimizerState struct {
	Type       string
	Parameters map[string]float64
	StepCount  uint64
	StateData  []OptimizerTensor
}

// OptimizerTensor is one optimizer state buffer.
type OptimizerTensor struct {
	Name      string
	Shape     []int
	Data      []float32
	StateType string
}

// MetricsState is the serialized metrics history: per-slot loss series,
// the divergence series, and the threshold-derived discriminator series.
type MetricsState struct {
	Losses      map[string][]float64
	Divergences []float64
	Precisions  []float64
	Recalls     []float64
	FPRs        []float64
}

// ScheduleState is the alternation schedule's opaque state blob tagged
// with its concrete Go type, so a load can verify the caller constructed
// a matching schedule before restoring into it.
type ScheduleState struct {
	Type string
	Blob []byte
}

// Metadata describes the checkpoint itself. It does not participate in
// trainer equality.
type Metadata struct {
	RunID     string
	Framework string
	Version   string
	CreatedAt time.Time
}

// NewMetadata stamps fresh checkpoint metadata.
func NewMetadata() Metadata {
	return Metadata{
		RunID:     uuid.New().String(),
		Framework: "go-gan",
		Version:   "1.0.0",
		CreatedAt: time.Now().UTC(),
	}
}

// Save writes the checkpoint to path as a single gob blob.
func Save(path string, cp *Checkpoint) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create checkpoint file")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(cp); err != nil {
		return errors.Wrap(err, "failed to encode checkpoint")
	}
	return nil
}

// Load reads a checkpoint previously written by Save. Only load files
// from trusted sources; see the package comment.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint file")
	}
	defer file.Close()

	var cp Checkpoint
	if err := gob.NewDecoder(file).Decode(&cp); err != nil {
		return nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	return &cp, nil
}

// ExtractWeights copies parameter tensors into checkpoint weight records.
// Names are "<prefix>.param_<i>" in parameter order.
func ExtractWeights(prefix string, params []*tensor.Tensor) ([]WeightTensor, error) {
	weights := make([]WeightTensor, 0, len(params))
	for i, param := range params {
		data, err := param.GetFloat32Data()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to extract weight %d of %s", i, prefix)
		}
		copied := make([]float32, len(data))
		copy(copied, data)
		weights = append(weights, WeightTensor{
			Name:  fmt.Sprintf("%s.param_%d", prefix, i),
			Shape: append([]int(nil), param.Shape...),
			Data:  copied,
		})
	}
	return weights, nil
}

// CheckWeights verifies that checkpoint weight records are structurally
// compatible with the constructed parameter tensors without modifying
// anything. Callers restoring several parameter groups can check them
// all before the first write.
func CheckWeights(weights []WeightTensor, params []*tensor.Tensor) error {
	if len(weights) != len(params) {
		return errors.Errorf("weight count mismatch: %d persisted, %d constructed", len(weights), len(params))
	}
	for i, w := range weights {
		param := params[i]
		if !intsEqual(w.Shape, param.Shape) {
			return errors.Errorf("shape mismatch for %s: persisted %v vs constructed %v", w.Name, w.Shape, param.Shape)
		}
	}
	return nil
}

// LoadWeights copies checkpoint weight records back into parameter
// tensors. It fails fast when the persisted shapes are structurally
// incompatible with the constructed parameters; it never truncates or
// pads.
func LoadWeights(weights []WeightTensor, params []*tensor.Tensor) error {
	if err := CheckWeights(weights, params); err != nil {
		return err
	}
	for i, w := range weights {
		data := make([]float32, len(w.Data))
		copy(data, w.Data)
		if err := params[i].SetData(data); err != nil {
			return errors.Wrapf(err, "failed to restore %s", w.Name)
		}
	}
	return nil
}

// Equal reports value equality of two checkpoints, ignoring Metadata.
func (cp *Checkpoint) Equal(other *Checkpoint) bool {
	if other == nil {
		return false
	}
	if cp.Threshold != other.Threshold || cp.Device != other.Device {
		return false
	}
	if cp.Schedule.Type != other.Schedule.Type || !bytesEqual(cp.Schedule.Blob, other.Schedule.Blob) {
		return false
	}
	if len(cp.Weights) != len(other.Weights) {
		return false
	}
	for slot, ws := range cp.Weights {
		if !weightsEqual(ws, other.Weights[slot]) {
			return false
		}
	}
	if len(cp.OptimizerState) != len(other.OptimizerState) {
		return false
	}
	for slot, st := range cp.OptimizerState {
		if !optimizerStateEqual(st, other.OptimizerState[slot]) {
			return false
		}
	}
	return metricsStateEqual(cp.Metrics, other.Metrics)
}

func weightsEqual(a, b []WeightTensor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
		if !intsEqual(a[i].Shape, b[i].Shape) || !floats32Equal(a[i].Data, b[i].Data) {
			return false
		}
	}
	return true
}

func optimizerStateEqual(a, b *OptimizerState) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || a.StepCount != b.StepCount {
		return false
	}
	if len(a.Parameters) != len(b.Parameters) {
		return false
	}
	for k, v := range a.Parameters {
		bv, ok := b.Parameters[k]
		if !ok || v != bv {
			return false
		}
	}
	if len(a.StateData) != len(b.StateData) {
		return false
	}
	for i := range a.StateData {
		if a.StateData[i].Name != b.StateData[i].Name ||
			a.StateData[i].StateType != b.StateData[i].StateType ||
			!intsEqual(a.StateData[i].Shape, b.StateData[i].Shape) ||
			!floats32Equal(a.StateData[i].Data, b.StateData[i].Data) {
			return false
		}
	}
	return true
}

func metricsStateEqual(a, b MetricsState) bool {
	if len(a.Losses) != len(b.Losses) {
		return false
	}
	for slot, series := range a.Losses {
		if !floats64Equal(series, b.Losses[slot]) {
			return false
		}
	}
	return floats64Equal(a.Divergences, b.Divergences) &&
		floats64Equal(a.Precisions, b.Precisions) &&
		floats64Equal(a.Recalls, b.Recalls) &&
		floats64Equal(a.FPRs, b.FPRs)
}

func intsEqual(a, b []int) bool {
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

func floats32Equal(a, b []float32) bool {
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

func floats64Equal(a, b []float64) bool {
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

func bytesEqual(a, b []byte) bool {
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
