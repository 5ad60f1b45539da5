package angle

import (
	"math"
	"testing"
)

const tol = 1e-9

// checkInvariant verifies continuous == prevRaw + 360*turns after an update.
func checkInvariant(t *testing.T, u *Unwrapper) {
	t.Helper()
	want := u.prevRaw + 360*float64(u.turns)
	if math.Abs(u.continuous-want) > tol {
		t.Fatalf("invariant broken: continuous=%v prevRaw=%v turns=%d", u.continuous, u.prevRaw, u.turns)
	}
}

func TestUnwrapForwardWrap(t *testing.T) {
	// Raw readings crossing 360° once while turning forward.
	raws := []float64{350, 358, 5, 12}
	wantTurns := []int{0, 0, 1, 1}
	wantContinuous := []float64{350, 358, 365, 372}

	u := New(SingleTurn)
	for i, raw := range raws {
		got := u.Update(raw)
		if u.Turns() != wantTurns[i] {
			t.Errorf("step %d: turns = %d, want %d", i, u.Turns(), wantTurns[i])
		}
		if math.Abs(got-wantContinuous[i]) > tol {
			t.Errorf("step %d: continuous = %v, want %v", i, got, wantContinuous[i])
		}
		checkInvariant(t, u)
	}
}

func TestUnwrapBackwardWrap(t *testing.T) {
	raws := []float64{10, 2, 355, 348}
	wantTurns := []int{0, 0, -1, -1}
	wantContinuous := []float64{10, 2, -5, -12}

	u := New(SingleTurn)
	for i, raw := range raws {
		got := u.Update(raw)
		if u.Turns() != wantTurns[i] {
			t.Errorf("step %d: turns = %d, want %d", i, u.Turns(), wantTurns[i])
		}
		if math.Abs(got-wantContinuous[i]) > tol {
			t.Errorf("step %d: continuous = %v, want %v", i, got, wantContinuous[i])
		}
		checkInvariant(t, u)
	}
}

func TestUnwrapMultipleRevolutions(t *testing.T) {
	// Three full forward revolutions sampled every 45°.
	u := New(SingleTurn)
	trueAngle := 0.0
	for step := 0; step < 24; step++ {
		trueAngle += 45
		raw := math.Mod(trueAngle, 360)
		got := u.Update(raw)
		if math.Abs(got-trueAngle) > tol {
			t.Fatalf("step %d: continuous = %v, want %v", step, got, trueAngle)
		}
		checkInvariant(t, u)
	}
	if u.Turns() != 3 {
		t.Errorf("turns = %d, want 3", u.Turns())
	}
}

func TestUnwrapContinuity(t *testing.T) {
	// Random walk with |step| <= 170° must be recovered exactly.
	// Fixed pseudo-random steps keep the test deterministic.
	steps := []float64{12, -160, 170, 33, -45, 169.5, 169.5, -170, 91, -12.25, 150, 150, 150, -170, -170, -170}

	u := New(SingleTurn)
	trueAngle := 0.0
	for i, step := range steps {
		trueAngle += step
		raw := math.Mod(trueAngle, 360)
		if raw < 0 {
			raw += 360
		}
		got := u.Update(raw)
		if math.Abs(got-trueAngle) > tol {
			t.Fatalf("step %d: continuous = %v, want %v", i, got, trueAngle)
		}
		checkInvariant(t, u)
	}
}

func TestUnwrapFirstReadingAnchors(t *testing.T) {
	// The first reading after construction or reset anchors the continuous
	// angle; no wrap is inferred against the reset state.
	u := New(SingleTurn)
	got := u.Update(350)
	if u.Turns() != 0 {
		t.Errorf("turns = %d, want 0", u.Turns())
	}
	if math.Abs(got-350) > tol {
		t.Errorf("continuous = %v, want 350", got)
	}
	checkInvariant(t, u)
}

func TestUnwrapExactThresholdDoesNotWrap(t *testing.T) {
	// The contract is strict: only |delta| > 180 wraps.
	u := New(SingleTurn)
	u.Update(0)
	got := u.Update(180)
	if u.Turns() != 0 {
		t.Errorf("turns = %d, want 0", u.Turns())
	}
	if math.Abs(got-180) > tol {
		t.Errorf("continuous = %v, want 180", got)
	}
}

func TestUnwrapReset(t *testing.T) {
	u := New(SingleTurn)
	for _, raw := range []float64{350, 10, 30} {
		u.Update(raw)
	}
	u.Reset()
	if u.prevRaw != 0 || u.turns != 0 || u.continuous != 0 {
		t.Fatalf("after reset: prevRaw=%v turns=%d continuous=%v, want zeros", u.prevRaw, u.turns, u.continuous)
	}

	// The engine behaves like a fresh one after reset.
	got := u.Update(90)
	if got != 90 || u.Turns() != 0 {
		t.Errorf("after reset Update(90) = %v turns=%d, want 90 and 0", got, u.Turns())
	}
}

func TestUnwrapMultiTurnPassThrough(t *testing.T) {
	u := New(MultiTurn)
	for _, raw := range []float64{0, 350, 720.5, -1080, 90} {
		if got := u.Update(raw); got != raw {
			t.Errorf("Update(%v) = %v, want pass-through", raw, got)
		}
	}
	if u.Turns() != 0 {
		t.Errorf("turns = %d, want 0 (unused in multi_turn)", u.Turns())
	}
}

func TestUnwrapDeadband(t *testing.T) {
	// A noise spike of 181° wraps at the strict threshold but not with a
	// 5° dead-band.
	strict := New(SingleTurn)
	strict.Update(0)
	strict.Update(181)
	if strict.Turns() != -1 {
		t.Errorf("strict: turns = %d, want -1", strict.Turns())
	}

	damped := New(SingleTurn)
	damped.SetDeadband(5)
	damped.Update(0)
	damped.Update(181)
	if damped.Turns() != 0 {
		t.Errorf("deadband: turns = %d, want 0", damped.Turns())
	}

	// A genuine wrap still counts.
	damped.Update(190)
	damped.Update(4)
	if damped.Turns() != 1 {
		t.Errorf("deadband genuine wrap: turns = %d, want 1", damped.Turns())
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"single_turn", SingleTurn, false},
		{"multi_turn", MultiTurn, false},
		{"", 0, true},
		{"absolute", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
