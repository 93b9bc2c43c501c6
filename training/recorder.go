package training

import (
	"fmt"

	"github.com/tsawler/go-gan/checkpoints"
)

// Recorder accumulates the streaming training history: one loss per slot
// per epoch that slot trained, one divergence estimate per epoch
// unconditionally, and the threshold-derived discriminator series. All
// series grow monotonically and are never rewritten; queries return
// copies.
type Recorder struct {
	losses      map[Slot][]float64
	divergences []float64
	precisions  []float64
	recalls     []float64
	fprs        []float64
}

func NewRecorder() *Recorder {
	return &Recorder{
		losses: map[Slot][]float64{
			Generator:     {},
			Discriminator: {},
		},
	}
}

// RecordLoss appends to the slot's loss series. Called exactly once per
// epoch in which that slot was trained.
func (r *Recorder) RecordLoss(slot Slot, value float64) {
	r.losses[slot] = append(r.losses[slot], value)
}

// RecordDivergence appends to the divergence series. Called exactly once
// per epoch, independent of which slot trained.
func (r *Recorder) RecordDivergence(value float64) {
	r.divergences = append(r.divergences, value)
}

// RecordClassification appends each threshold-derived metric that was
// defined this epoch. Metrics with an empty denominator are skipped, so
// the three series may have different lengths.
func (r *Recorder) RecordClassification(m BinaryMetrics) {
	if m.PrecisionValid {
		r.precisions = append(r.precisions, m.Precision)
	}
	if m.RecallValid {
		r.recalls = append(r.recalls, m.Recall)
	}
	if m.FPRValid {
		r.fprs = append(r.fprs, m.FalsePositiveRate)
	}
}

// EpochsTrained returns the number of epochs in which the slot was
// trained, which by construction equals its loss series length.
func (r *Recorder) EpochsTrained(slot Slot) int {
	return len(r.losses[slot])
}

// TotalEpochs returns the number of epochs elapsed since construction,
// which equals the divergence series length.
func (r *Recorder) TotalEpochs() int {
	return len(r.divergences)
}

// Losses returns a copy of the slot's loss series.
func (r *Recorder) Losses(slot Slot) []float64 {
	return copyFloats(r.losses[slot])
}

// Divergences returns a copy of the divergence series.
func (r *Recorder) Divergences() []float64 {
	return copyFloats(r.divergences)
}

// PrecisionSeries returns a copy of the per-epoch precision series.
func (r *Recorder) PrecisionSeries() []float64 {
	return copyFloats(r.precisions)
}

// RecallSeries returns a copy of the per-epoch recall series.
func (r *Recorder) RecallSeries() []float64 {
	return copyFloats(r.recalls)
}

// FPRSeries returns a copy of the per-epoch false-positive-rate series.
func (r *Recorder) FPRSeries() []float64 {
	return copyFloats(r.fprs)
}

// State exports the full history for checkpointing.
func (r *Recorder) State() checkpoints.MetricsState {
	losses := make(map[string][]float64, len(r.losses))
	for slot, series := range r.losses {
		losses[slot.String()] = copyFloats(series)
	}
	return checkpoints.MetricsState{
		Losses:      losses,
		Divergences: copyFloats(r.divergences),
		Precisions:  copyFloats(r.precisions),
		Recalls:     copyFloats(r.recalls),
		FPRs:        copyFloats(r.fprs),
	}
}

// RestoreState replaces the full history with a checkpointed one.
func (r *Recorder) RestoreState(state checkpoints.MetricsState) error {
	losses := map[Slot][]float64{
		Generator:     {},
		Discriminator: {},
	}
	for label, series := range state.Losses {
		slot, err := ParseSlot(label)
		if err != nil {
			return fmt.Errorf("invalid metrics state: %v", err)
		}
		losses[slot] = copyFloats(series)
	}
	r.losses = losses
	r.divergences = copyFloats(state.Divergences)
	r.precisions = copyFloats(state.Precisions)
	r.recalls = copyFloats(state.Recalls)
	r.fprs = copyFloats(state.FPRs)
	return nil
}

func copyFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
