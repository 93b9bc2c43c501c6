package training

import (
	"fmt"
)

// BinaryMetrics holds threshold-derived classification metrics for a
// batch of discriminator outputs. Each value carries a validity flag:
// when the corresponding denominator is empty (no predicted positives,
// no actual positives, or no actual negatives) the metric is 0 and its
// flag is false instead of a division error.
type BinaryMetrics struct {
	Precision         float64
	Recall            float64
	FalsePositiveRate float64
	PrecisionValid    bool
	RecallValid       bool
	FPRValid          bool
}

// ConfusionMatrix accumulates binary classification outcomes, with the
// positive class being any label other than zero.
type ConfusionMatrix struct {
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int
}

// Update thresholds each prediction (strictly greater than threshold is
// predicted positive) against its label and tallies the outcome.
func (cm *ConfusionMatrix) Update(predictions, labels []float32, threshold float64) error {
	if len(predictions) != len(labels) {
		return fmt.Errorf("predictions length %d does not match labels length %d", len(predictions), len(labels))
	}
	for i := range predictions {
		predicted := float64(predictions[i]) > threshold
		actual := labels[i] != 0
		switch {
		case actual && predicted:
			cm.TruePositives++
		case actual && !predicted:
			cm.FalseNegatives++
		case !actual && predicted:
			cm.FalsePositives++
		default:
			cm.TrueNegatives++
		}
	}
	return nil
}

// Reset clears all counts.
func (cm *ConfusionMatrix) Reset() {
	*cm = ConfusionMatrix{}
}

// Total returns the number of samples tallied.
func (cm *ConfusionMatrix) Total() int {
	return cm.TruePositives + cm.FalsePositives + cm.TrueNegatives + cm.FalseNegatives
}

// Precision returns TP/(TP+FP), or 0 when nothing was predicted positive.
func (cm *ConfusionMatrix) Precision() (float64, bool) {
	denom := cm.TruePositives + cm.FalsePositives
	if denom == 0 {
		return 0.0, false
	}
	return float64(cm.TruePositives) / float64(denom), true
}

// Recall returns TP/(TP+FN), or 0 when there were no actual positives.
func (cm *ConfusionMatrix) Recall() (float64, bool) {
	denom := cm.TruePositives + cm.FalseNegatives
	if denom == 0 {
		return 0.0, false
	}
	return float64(cm.TruePositives) / float64(denom), true
}

// FalsePositiveRate returns FP/(FP+TN), or 0 when there were no actual
// negatives.
func (cm *ConfusionMatrix) FalsePositiveRate() (float64, bool) {
	denom := cm.FalsePositives + cm.TrueNegatives
	if denom == 0 {
		return 0.0, false
	}
	return float64(cm.FalsePositives) / float64(denom), true
}

// Accuracy returns the fraction of correctly classified samples.
func (cm *ConfusionMatrix) Accuracy() float64 {
	total := cm.Total()
	if total == 0 {
		return 0.0
	}
	return float64(cm.TruePositives+cm.TrueNegatives) / float64(total)
}

// F1 returns the harmonic mean of precision and recall, 0 when undefined.
func (cm *ConfusionMatrix) F1() float64 {
	precision, pOK := cm.Precision()
	recall, rOK := cm.Recall()
	if !pOK || !rOK || precision+recall == 0 {
		return 0.0
	}
	return 2 * precision * recall / (precision + recall)
}

// Metrics bundles the matrix's threshold-derived metrics.
func (cm *ConfusionMatrix) Metrics() BinaryMetrics {
	var m BinaryMetrics
	m.Precision, m.PrecisionValid = cm.Precision()
	m.Recall, m.RecallValid = cm.Recall()
	m.FalsePositiveRate, m.FPRValid = cm.FalsePositiveRate()
	return m
}

// PositiveMetrics derives precision, recall and false-positive rate from
// a batch of discriminator outputs and ground-truth labels at the given
// threshold. It is a pure query: no trainer or recorder state changes.
func PositiveMetrics(predictions, labels []float32, threshold float64) (BinaryMetrics, error) {
	var cm ConfusionMatrix
	if err := cm.Update(predictions, labels, threshold); err != nil {
		return BinaryMetrics{}, err
	}
	return cm.Metrics(), nil
}
