package orderbook

import "testing"

func TestAddAndFindByLocal(t *testing.T) {
	b := New()
	o := &Order{LocalID: "L1", Symbol: "600519.SH", Side: SideSell, Volume: 100, Status: StatusSubmitted}
	if err := b.Add(o); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, ok := b.FindByLocal("L1")
	if !ok || got != o {
		t.Fatalf("FindByLocal did not return the added order")
	}
}

func TestBindSystemIDAndFindBySystem(t *testing.T) {
	b := New()
	o := &Order{LocalID: "L1", Symbol: "600519.SH", Side: SideSell, Volume: 100, Status: StatusSubmitted}
	_ = b.Add(o)

	if err := b.BindSystemID("L1", "S1"); err != nil {
		t.Fatalf("BindSystemID: %v", err)
	}
	got, ok := b.FindBySystem("S1")
	if !ok || got.LocalID != "L1" {
		t.Fatalf("FindBySystem did not resolve to bound local id")
	}
}

func TestEnsureExternalIsIdempotent(t *testing.T) {
	b := New()
	first := b.EnsureExternal("S9", "600519.SH", SideSell, OrderTypeLimit, 1980.00, 100)
	second := b.EnsureExternal("S9", "600519.SH", SideSell, OrderTypeLimit, 1980.00, 100)
	if first != second {
		t.Fatal("EnsureExternal should return the same record for a repeated system id")
	}
	if first.IsLocal {
		t.Fatal("externally-observed order must not be marked local")
	}
}

func TestActiveOrdersForExcludesTerminal(t *testing.T) {
	b := New()
	o1 := &Order{LocalID: "L1", Symbol: "600519.SH", Side: SideSell, Volume: 100, Status: StatusAccepted}
	o2 := &Order{LocalID: "L2", Symbol: "600519.SH", Side: SideSell, Volume: 100, Status: StatusCancelled}
	_ = b.Add(o1)
	_ = b.Add(o2)

	active := b.ActiveOrdersFor("600519.SH")
	if len(active) != 1 || active[0].LocalID != "L1" {
		t.Fatalf("expected only L1 active, got %+v", active)
	}
}

func TestPendingSellQty(t *testing.T) {
	b := New()
	o := &Order{LocalID: "L1", Symbol: "600519.SH", Side: SideSell, Volume: 300, FilledVolume: 100, Status: StatusPartialFilled}
	_ = b.Add(o)
	if got := b.PendingSellQty("600519.SH"); got != 200 {
		t.Fatalf("PendingSellQty = %d, want 200", got)
	}
}

func TestUpdateFromEventAppliesFill(t *testing.T) {
	b := New()
	o := &Order{LocalID: "L1", SystemID: "S1", Symbol: "600519.SH", Side: SideSell, Volume: 300, Status: StatusAccepted}
	_ = b.Add(o)

	updated, err := b.UpdateFromEvent("S1", StatusPartialFilled, 100, 1900.00)
	if err != nil {
		t.Fatalf("UpdateFromEvent: %v", err)
	}
	if updated.FilledVolume != 100 || updated.Status != StatusPartialFilled {
		t.Fatalf("unexpected order state after fill: %+v", updated)
	}

	if _, err := b.UpdateFromEvent("S1", StatusPartialFilled, 200, 1905.00); err != nil {
		t.Fatalf("second fill: %v", err)
	}
	if updated.Status != StatusFilled {
		t.Fatalf("expected Filled after full quantity filled, got %s", updated.Status)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	if _, err := Transition(StatusFilled, StatusAccepted); err == nil {
		t.Fatal("expected error transitioning out of a terminal state")
	}
	if _, err := Transition(StatusSubmitted, StatusCanceling); err == nil {
		t.Fatal("Canceling should only be reachable from Accepted or PartialFilled")
	}
}

func TestApplyFillRejectsNonPositiveQty(t *testing.T) {
	o := &Order{Status: StatusAccepted, Volume: 100}
	if err := o.ApplyFill(0, 10); err == nil {
		t.Fatal("expected error for zero fill quantity")
	}
}
