package sellstrategy

import "testing"

func TestWindowsForFBHighTurnover(t *testing.T) {
	w := WindowsFor("fb", 1.6e7, 1.05)
	if len(w) != 2 || w[0] != (Window{112800, 130200, 0}) {
		t.Fatalf("unexpected windows: %+v", w)
	}
}

func TestWindowsForFBLowTurnoverHighOpen(t *testing.T) {
	w := WindowsFor("fb", 0, 1.02)
	if len(w) != 1 || w[0] != (Window{93000, 93000, 0}) {
		t.Fatalf("unexpected windows: %+v", w)
	}
}

func TestWindowsForFBDefaultBucket(t *testing.T) {
	w := WindowsFor("fb", 0, 0.5)
	if len(w) != 3 {
		t.Fatalf("expected 3 windows in the fallback fb bucket, got %+v", w)
	}
	if w[0].Keep != 0.66 || w[1].Keep != 0.33 {
		t.Errorf("unexpected keep ratios: %+v", w)
	}
}

func TestWindowsForZBEmptyWhenNoThresholdQualifies(t *testing.T) {
	// 3e6 <= jjamt bucket requires open/C >= 0; this value is below even
	// that, so no ratio bucket matches within the qualifying jjamt tier.
	w := WindowsFor("zb", 3e6, -1)
	if w != nil {
		t.Fatalf("expected no windows, got %+v", w)
	}
}

func TestWindowsForUnknownCondition(t *testing.T) {
	if w := WindowsFor("", 0, 0); w != nil {
		t.Fatalf("expected nil for empty condition, got %+v", w)
	}
}

func TestWindowsForLB(t *testing.T) {
	w := WindowsFor("lb", 0, 1.08)
	if len(w) != 1 || w[0] != (Window{93000, 93000, 0}) {
		t.Fatalf("unexpected lb windows: %+v", w)
	}
	w = WindowsFor("lb", 0, 0.9)
	if len(w) != 1 || w[0] != (Window{150000, 150000, 0}) {
		t.Fatalf("unexpected lb default windows: %+v", w)
	}
}
