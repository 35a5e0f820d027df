package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/wangharden/sell/pkg/config"
	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/orderbook"
)

func TestNewFailsFastOnMissingWatchlist(t *testing.T) {
	cfg := &config.Config{
		Trading:  config.TradingConfig{Host: "127.0.0.1", Port: 4222, Account: "acct1"},
		Market:   config.MarketConfig{Host: "127.0.0.1", Port: 4222, TickSubject: "md.tick.>", TxSubject: "md.tx.>"},
		Strategy: config.StrategyConfig{CSVPath: filepath.Join(t.TempDir(), "missing.csv"), AccountID: "acct1", InputAmt: 1000000, HoldVol: 300},
	}

	if _, err := New(cfg); err == nil {
		t.Fatal("expected New to fail when the watchlist csv does not exist")
	}
}

func TestReconcileOrderBindsSystemIDOnFirstConfirmation(t *testing.T) {
	book := orderbook.New()
	_ = book.Add(&orderbook.Order{LocalID: "L1", Symbol: "600519.SH", Side: orderbook.SideSell, Volume: 100, Status: orderbook.StatusSubmitted, IsLocal: true})

	order := reconcileOrder(book, gateway.OrderEvent{LocalID: "L1", SystemID: "S1", Status: orderbook.StatusAccepted})
	if order == nil || order.SystemID != "S1" {
		t.Fatalf("expected system id S1 bound to local order L1, got %+v", order)
	}
	if order.Status != orderbook.StatusAccepted {
		t.Fatalf("expected status Accepted, got %s", order.Status)
	}
	if found, ok := book.FindBySystem("S1"); !ok || found.LocalID != "L1" {
		t.Fatal("expected the book to resolve system id S1 back to local id L1")
	}

	order2 := reconcileOrder(book, gateway.OrderEvent{SystemID: "S1", Status: orderbook.StatusFilled, FillQty: 100, FillPrice: 11.0})
	if order2.Status != orderbook.StatusFilled || order2.FilledVolume != 100 {
		t.Fatalf("expected the fill to be applied to the bound order, got %+v", order2)
	}
}

func TestReconcileOrderRegistersExternalOrderOnFirstSight(t *testing.T) {
	book := orderbook.New()

	ev := gateway.OrderEvent{
		SystemID: "S9", Symbol: "600519.SH", Side: orderbook.SideSell,
		Price: 11.0, Volume: 100, Status: orderbook.StatusAccepted,
	}
	order := reconcileOrder(book, ev)
	if order == nil || order.IsLocal {
		t.Fatalf("expected an external order to be registered, got %+v", order)
	}
	if order.Symbol != "600519.SH" || order.Volume != 100 {
		t.Fatalf("expected the external order to carry the event's symbol/volume, got %+v", order)
	}
	if _, ok := book.FindBySystem("S9"); !ok {
		t.Fatal("expected the external order to be findable by system id")
	}

	fillEv := gateway.OrderEvent{SystemID: "S9", Status: orderbook.StatusFilled, FillQty: 100, FillPrice: 11.0}
	updated := reconcileOrder(book, fillEv)
	if updated.Status != orderbook.StatusFilled {
		t.Fatalf("expected a later fill on the same system id to be applied, got %+v", updated)
	}
}

func TestReconcileOrderReturnsNilWithNoIdentifyingInfo(t *testing.T) {
	book := orderbook.New()
	if order := reconcileOrder(book, gateway.OrderEvent{}); order != nil {
		t.Fatalf("expected no order for an event with neither local nor system id, got %+v", order)
	}
}
