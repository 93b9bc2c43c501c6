package training

import (
	"testing"
)

func TestRecorderLossSeries(t *testing.T) {
	r := NewRecorder()
	r.RecordLoss(Generator, 0.7)
	r.RecordLoss(Discriminator, 0.5)
	r.RecordLoss(Generator, 0.6)

	if got := r.EpochsTrained(Generator); got != 2 {
		t.Errorf("generator epochs = %d, want 2", got)
	}
	if got := r.EpochsTrained(Discriminator); got != 1 {
		t.Errorf("discriminator epochs = %d, want 1", got)
	}

	gen := r.Losses(Generator)
	if len(gen) != 2 || gen[0] != 0.7 || gen[1] != 0.6 {
		t.Errorf("generator losses = %v", gen)
	}
}

func TestRecorderDivergenceSeries(t *testing.T) {
	r := NewRecorder()
	for _, v := range []float64{3.1, 2.8, 2.2} {
		r.RecordDivergence(v)
	}
	if r.TotalEpochs() != 3 {
		t.Errorf("TotalEpochs = %d, want 3", r.TotalEpochs())
	}
	div := r.Divergences()
	if len(div) != 3 || div[2] != 2.2 {
		t.Errorf("divergences = %v", div)
	}
}

func TestRecorderSkipsUndefinedMetrics(t *testing.T) {
	r := NewRecorder()
	r.RecordClassification(BinaryMetrics{
		Precision: 1.0, PrecisionValid: true,
		Recall: 0.5, RecallValid: true,
		FPRValid: false,
	})
	r.RecordClassification(BinaryMetrics{
		PrecisionValid: false,
		Recall:         1.0, RecallValid: true,
		FalsePositiveRate: 0.25, FPRValid: true,
	})

	if got := r.PrecisionSeries(); len(got) != 1 || got[0] != 1.0 {
		t.Errorf("precision series = %v", got)
	}
	if got := r.RecallSeries(); len(got) != 2 {
		t.Errorf("recall series = %v", got)
	}
	if got := r.FPRSeries(); len(got) != 1 || got[0] != 0.25 {
		t.Errorf("fpr series = %v", got)
	}
}

func TestRecorderQueriesReturnCopies(t *testing.T) {
	r := NewRecorder()
	r.RecordDivergence(1.5)

	series := r.Divergences()
	series[0] = 99

	if got := r.Divergences(); got[0] != 1.5 {
		t.Error("mutating a query result modified the recorder")
	}
}

func TestRecorderStateRoundTrip(t *testing.T) {
	r := NewRecorder()
	r.RecordLoss(Generator, 0.7)
	r.RecordLoss(Discriminator, 0.4)
	r.RecordDivergence(2.5)
	r.RecordClassification(BinaryMetrics{
		Precision: 0.8, PrecisionValid: true,
		Recall: 0.9, RecallValid: true,
		FalsePositiveRate: 0.1, FPRValid: true,
	})

	restored := NewRecorder()
	if err := restored.RestoreState(r.State()); err != nil {
		t.Fatalf("RestoreState failed: %v", err)
	}

	if restored.EpochsTrained(Generator) != 1 || restored.EpochsTrained(Discriminator) != 1 {
		t.Error("loss series not restored")
	}
	if restored.TotalEpochs() != 1 {
		t.Error("divergence series not restored")
	}
	if got := restored.PrecisionSeries(); len(got) != 1 || got[0] != 0.8 {
		t.Errorf("precision series = %v", got)
	}

	// Restoration replaces, it does not append.
	if err := restored.RestoreState(r.State()); err != nil {
		t.Fatalf("RestoreState failed: %v", err)
	}
	if restored.TotalEpochs() != 1 {
		t.Error("second restore appended instead of replacing")
	}
}

func TestRecorderRestoreRejectsUnknownSlot(t *testing.T) {
	state := NewRecorder().State()
	state.Losses["X"] = []float64{1}

	if err := NewRecorder().RestoreState(state); err == nil {
		t.Error("expected error for unknown slot label")
	}
}
