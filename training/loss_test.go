package training

import (
	"math"
	"testing"
)

func TestMSELoss(t *testing.T) {
	predicted := batch(t, []int{2, 1}, []float32{1, 3})
	target := batch(t, []int{2, 1}, []float32{2, 1})

	loss, err := NewMSELoss().Forward(predicted, target)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	v, err := loss.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	// ((1-2)^2 + (3-1)^2) / 2 = 2.5
	if math.Abs(float64(v)-2.5) > 1e-6 {
		t.Errorf("MSE = %f, want 2.5", v)
	}
}

func TestMSELossGradient(t *testing.T) {
	predicted := batch(t, []int{2, 1}, []float32{1, 3})
	predicted.SetRequiresGrad(true)
	target := batch(t, []int{2, 1}, []float32{2, 1})

	loss, err := NewMSELoss().Forward(predicted, target)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	grad, err := predicted.Grad().GetFloat32Data()
	if err != nil {
		t.Fatalf("gradient data: %v", err)
	}
	// d/dp mean((p-t)^2) = 2(p-t)/n
	want := []float32{-1, 2}
	for i := range want {
		if math.Abs(float64(grad[i]-want[i])) > 1e-6 {
			t.Errorf("grad[%d] = %f, want %f", i, grad[i], want[i])
		}
	}
}

func TestBCELoss(t *testing.T) {
	predicted := batch(t, []int{2, 1}, []float32{0.8, 0.3})
	target := batch(t, []int{2, 1}, []float32{1, 0})

	loss, err := NewBCELoss().Forward(predicted, target)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	v, err := loss.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	want := -(math.Log(0.8) + math.Log(0.7)) / 2
	if math.Abs(float64(v)-want) > 1e-5 {
		t.Errorf("BCE = %f, want %f", v, want)
	}
}

func TestBCELossSaturatedInputsStayFinite(t *testing.T) {
	predicted := batch(t, []int{2, 1}, []float32{0, 1})
	target := batch(t, []int{2, 1}, []float32{1, 0})

	loss, err := NewBCELoss().Forward(predicted, target)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	v, err := loss.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if math.IsInf(float64(v), 0) || math.IsNaN(float64(v)) {
		t.Errorf("BCE at saturated predictions = %f, want finite", v)
	}
}

func TestLossShapeMismatch(t *testing.T) {
	predicted := batch(t, []int{2, 1}, []float32{0.5, 0.5})
	target := batch(t, []int{3, 1}, []float32{1, 0, 1})

	if _, err := NewMSELoss().Forward(predicted, target); err == nil {
		t.Error("expected MSE shape mismatch error")
	}
	if _, err := NewBCELoss().Forward(predicted, target); err == nil {
		t.Error("expected BCE shape mismatch error")
	}
}
