package training

import (
	"testing"
)

func TestSlotString(t *testing.T) {
	if Generator.String() != "G" || Discriminator.String() != "D" {
		t.Errorf("slot labels = %q, %q", Generator.String(), Discriminator.String())
	}
}

func TestParseSlot(t *testing.T) {
	for _, slot := range Slots() {
		parsed, err := ParseSlot(slot.String())
		if err != nil {
			t.Fatalf("ParseSlot(%q) failed: %v", slot.String(), err)
		}
		if parsed != slot {
			t.Errorf("ParseSlot(%q) = %v, want %v", slot.String(), parsed, slot)
		}
	}
	if _, err := ParseSlot("X"); err == nil {
		t.Error("expected error for unknown slot label")
	}
}

func TestNewFixedCycleValidation(t *testing.T) {
	if _, err := NewFixedCycle(0, 5); err == nil {
		t.Error("expected error for zero generator epochs")
	}
	if _, err := NewFixedCycle(2, 0); err == nil {
		t.Error("expected error for zero discriminator epochs")
	}
	if _, err := NewFixedCycle(-1, -1); err == nil {
		t.Error("expected error for negative phase lengths")
	}
}

// runCycle drives the schedule the way the trainer does: one Next, one
// Advance per epoch.
func runCycle(s Schedule, epochs int) []Slot {
	out := make([]Slot, epochs)
	for i := range out {
		out[i] = s.Next()
		s.Advance(out[i])
	}
	return out
}

func TestFixedCycleSequence(t *testing.T) {
	fc, err := NewFixedCycle(2, 5)
	if err != nil {
		t.Fatalf("NewFixedCycle failed: %v", err)
	}

	got := runCycle(fc, 14)
	want := []Slot{
		Generator, Generator,
		Discriminator, Discriminator, Discriminator, Discriminator, Discriminator,
		Generator, Generator,
		Discriminator, Discriminator, Discriminator, Discriminator, Discriminator,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("epoch %d: trained %v, want %v (full sequence %v)", i, got[i], want[i], got)
		}
	}
}

func TestFixedCycleSingleEpochPhases(t *testing.T) {
	fc, err := NewFixedCycle(1, 1)
	if err != nil {
		t.Fatalf("NewFixedCycle failed: %v", err)
	}
	got := runCycle(fc, 4)
	want := []Slot{Generator, Discriminator, Generator, Discriminator}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("epoch %d: trained %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFixedCycleNextIsIdempotent(t *testing.T) {
	fc, _ := NewFixedCycle(2, 5)
	first := fc.Next()
	second := fc.Next()
	if first != second {
		t.Error("Next must not move the schedule")
	}
}

func TestFixedCycleIgnoresForeignAdvance(t *testing.T) {
	fc, _ := NewFixedCycle(2, 5)
	fc.Advance(Discriminator)
	if fc.Next() != Generator {
		t.Error("advancing with the wrong slot must leave the cycle alone")
	}
}

func TestFixedCycleStateRoundTrip(t *testing.T) {
	fc, _ := NewFixedCycle(2, 5)
	// Park the schedule mid-way through the discriminator phase.
	runCycle(fc, 4)

	blob, err := fc.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}

	restored, _ := NewFixedCycle(1, 1)
	if err := restored.Restore(blob); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	// Both schedules must now produce the identical future.
	a := runCycle(fc, 10)
	b := runCycle(restored, 10)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("epoch %d after restore: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestFixedCycleRestoreRejectsGarbage(t *testing.T) {
	fc, _ := NewFixedCycle(2, 5)
	if err := fc.Restore([]byte("not a gob blob")); err == nil {
		t.Error("expected error restoring garbage")
	}
}

func TestDefaultSchedule(t *testing.T) {
	got := runCycle(DefaultSchedule(), 7)
	want := []Slot{
		Generator, Generator,
		Discriminator, Discriminator, Discriminator, Discriminator, Discriminator,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("epoch %d: trained %v, want %v", i, got[i], want[i])
		}
	}
}
