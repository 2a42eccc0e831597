package injector

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"
)

func TestCharDelay_Bounds(t *testing.T) {
	timing := DefaultTiming()
	rng := rand.New(rand.NewPCG(1, 2))

	hesitations := 0
	const samples = 20000
	for range samples {
		d := timing.CharDelay(rng)
		if d < 20*time.Millisecond {
			t.Fatalf("delay %v below the 20ms floor", d)
		}
		if d > 40*time.Millisecond+25*time.Millisecond+200*time.Millisecond {
			t.Fatalf("delay %v above the maximum", d)
		}
		if d > 65*time.Millisecond {
			hesitations++
		}
	}

	// 5% hesitation rate, allow a generous band
	rate := float64(hesitations) / samples
	if rate < 0.03 || rate > 0.07 {
		t.Errorf("hesitation rate = %.3f, want about 0.05", rate)
	}
}

func TestCharDelay_Floor(t *testing.T) {
	timing := DefaultTiming()
	timing.BaseDelay = 5 * time.Millisecond
	timing.HesitationChance = 0
	rng := rand.New(rand.NewPCG(3, 4))

	for range 1000 {
		if d := timing.CharDelay(rng); d < timing.MinDelay {
			t.Fatalf("delay %v below MinDelay %v", d, timing.MinDelay)
		}
	}
}

func TestUniform(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	if got := uniform(rng, 10, 10); got != 10 {
		t.Errorf("uniform(10, 10) = %v, want 10", got)
	}
	if got := uniform(rng, 10, 5); got != 10 {
		t.Errorf("uniform(10, 5) = %v, want 10", got)
	}
	for range 1000 {
		if got := uniform(rng, -10, 25); got < -10 || got > 25 {
			t.Fatalf("uniform(-10, 25) = %v out of range", got)
		}
	}
}

func TestSleep(t *testing.T) {
	if !sleep(context.Background(), time.Millisecond) {
		t.Error("sleep should complete on a live context")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if sleep(ctx, time.Second) {
		t.Error("sleep should report interruption on a cancelled context")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("sleep did not return promptly after cancellation")
	}
	if sleep(ctx, 0) {
		t.Error("zero sleep on a cancelled context should report false")
	}
}

func TestPressKey(t *testing.T) {
	p := &MockPoster{}
	if !pressKey(p, 7, KeyReturn, 0) {
		t.Fatal("pressKey should succeed")
	}

	msgs := p.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if !msgs[0].down || msgs[1].down {
		t.Error("expected press then release")
	}
	if msgs[0].target != 7 || msgs[0].key != KeyReturn {
		t.Errorf("message = %+v", msgs[0])
	}

	failing := &MockPoster{failKeys: true}
	if pressKey(failing, 7, KeyTab, 0) {
		t.Error("pressKey should fail when posts fail")
	}
}

func TestKey_String(t *testing.T) {
	if KeyReturn.String() != "return" || KeyTab.String() != "tab" || KeyDelete.String() != "delete" {
		t.Error("unexpected key names")
	}
	if Key(0x41).String() != "unknown" {
		t.Error("unknown key should be named unknown")
	}
}
