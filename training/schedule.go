package training

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Slot identifies one of the two roles in the adversarial pair.
type Slot int

const (
	Generator Slot = iota
	Discriminator
)

func (s Slot) String() string {
	switch s {
	case Generator:
		return "G"
	case Discriminator:
		return "D"
	default:
		return "Unknown"
	}
}

// ParseSlot converts a slot label back into a Slot.
func ParseSlot(label string) (Slot, error) {
	switch label {
	case "G":
		return Generator, nil
	case "D":
		return Discriminator, nil
	default:
		return Generator, fmt.Errorf("unknown slot label %q", label)
	}
}

// Slots lists both slots in a stable order.
func Slots() []Slot {
	return []Slot{Generator, Discriminator}
}

// Schedule decides which slot trains on each epoch. It is self-tracking:
// Next must be called exactly once per epoch before the update runs, and
// Advance afterwards with the slot that actually trained, so the schedule
// can move its internal state.
//
// Implementations must be deterministic given their state, and State /
// Restore must round-trip so that a restored schedule continues exactly
// where the saved one stopped. A schedule is free to always return the
// same slot; the trainer never assumes both slots are trained.
type Schedule interface {
	Next() Slot
	Advance(trained Slot)
	State() ([]byte, error)
	Restore(state []byte) error
}

// FixedCycle trains the generator for a fixed number of consecutive
// epochs, then the discriminator for another fixed count, repeating
// indefinitely. It starts in the generator phase with a zero count.
type FixedCycle struct {
	genEpochs int
	disEpochs int
	phase     Slot
	count     int
}

// fixedCycleState is the gob wire form of a FixedCycle.
type fixedCycleState struct {
	GenEpochs int
	DisEpochs int
	Phase     int
	Count     int
}

// NewFixedCycle creates a fixed-cycle schedule with the given phase
// lengths. Both must be at least 1.
func NewFixedCycle(genEpochs, disEpochs int) (*FixedCycle, error) {
	if genEpochs < 1 || disEpochs < 1 {
		return nil, fmt.Errorf("fixed cycle phase lengths must be at least 1, got %d and %d", genEpochs, disEpochs)
	}
	return &FixedCycle{
		genEpochs: genEpochs,
		disEpochs: disEpochs,
		phase:     Generator,
	}, nil
}

// DefaultSchedule returns the built-in alternation rule: two generator
// epochs followed by five discriminator epochs.
func DefaultSchedule() Schedule {
	fc, _ := NewFixedCycle(2, 5)
	return fc
}

// Next returns the slot to train on the upcoming epoch.
func (fc *FixedCycle) Next() Slot {
	return fc.phase
}

// Advance records a completed epoch and flips the phase when its
// configured length is reached.
func (fc *FixedCycle) Advance(trained Slot) {
	if trained != fc.phase {
		// The trainer always trains the slot Next returned; an external
		// caller advancing with a different slot leaves the cycle alone.
		return
	}
	fc.count++
	switch fc.phase {
	case Generator:
		if fc.count >= fc.genEpochs {
			fc.phase = Discriminator
			fc.count = 0
		}
	case Discriminator:
		if fc.count >= fc.disEpochs {
			fc.phase = Generator
			fc.count = 0
		}
	}
}

// State serializes the schedule as an atomic blob.
func (fc *FixedCycle) State() ([]byte, error) {
	var buf bytes.Buffer
	state := fixedCycleState{
		GenEpochs: fc.genEpochs,
		DisEpochs: fc.disEpochs,
		Phase:     int(fc.phase),
		Count:     fc.count,
	}
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("failed to encode schedule state: %v", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the schedule's state with a previously saved blob.
func (fc *FixedCycle) Restore(blob []byte) error {
	var state fixedCycleState
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode schedule state: %v", err)
	}
	if state.GenEpochs < 1 || state.DisEpochs < 1 {
		return fmt.Errorf("invalid schedule state: phase lengths %d and %d", state.GenEpochs, state.DisEpochs)
	}
	fc.genEpochs = state.GenEpochs
	fc.disEpochs = state.DisEpochs
	fc.phase = Slot(state.Phase)
	fc.count = state.Count
	return nil
}
