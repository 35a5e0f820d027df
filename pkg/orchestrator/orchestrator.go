// Package orchestrator wires together the market feed, the trading
// gateway, the order-event dispatcher, and the strategy modules into one
// running engine, and drives each module's tick loop on its own cadence.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wangharden/sell/pkg/appctx"
	"github.com/wangharden/sell/pkg/config"
	"github.com/wangharden/sell/pkg/dispatch"
	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/limitup"
	"github.com/wangharden/sell/pkg/market"
	"github.com/wangharden/sell/pkg/orderbook"
	"github.com/wangharden/sell/pkg/sellstrategy"
	"github.com/wangharden/sell/pkg/transport"
	"github.com/wangharden/sell/pkg/watchlist"
)

// ticker is the common shape every strategy module and the limit-up
// guard expose to the orchestrator's per-module drive loop.
type ticker interface {
	TickInterval() time.Duration
	Tick(now time.Time)
}

// Engine owns every long-lived collaborator the sell engine needs and
// the goroutines driving them.
type Engine struct {
	cfg *config.Config
	ctx *appctx.Context

	feed       *transport.FeedClient
	dispatcher *dispatch.Dispatcher

	tickers []ticker
}

// New loads the watchlist, builds the gateway/market/orderbook/dispatch
// plumbing, and constructs whichever strategy modules cfg.Modules
// enables, then dials the market-data feed. It does not connect the
// trading session or subscribe any feed subject; Start does that.
func New(cfg *config.Config) (*Engine, error) {
	// usage_example is the demo/trial composite: same three sell
	// strategies, pointed at a separate trial watchlist CSV instead of
	// strategy.csv_path. It only applies when the production sell
	// module is not itself enabled.
	csvPath := cfg.Strategy.CSVPath
	if !cfg.Modules.Sell && cfg.Modules.UsageExample {
		csvPath = cfg.ModulesConfig.UsageExample.CSVPath
	}

	wl, err := watchlist.Load(csvPath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load watchlist: %w", err)
	}
	log.Printf("[Orchestrator] watchlist loaded: %d symbols from %s", len(wl.Symbols()), csvPath)

	session := transport.NewNATSSession(transport.NATSSessionConfig{
		URL:              cfg.Trading.URL(),
		AccountID:        cfg.Strategy.AccountID,
		PlaceSubject:     cfg.Trading.PlaceSubject,
		CancelSubject:    cfg.Trading.CancelSubject,
		PositionsSubject: cfg.Trading.PositionsSubject,
		OrdersSubject:    cfg.Trading.OrdersSubject,
		EventSubjectBase: cfg.Trading.EventSubject,
	})

	gw := gateway.New(session, 64)
	gw.SetDryRun(cfg.Trading.DryRun)

	mc := market.New()
	book := orderbook.New()
	appCtx := appctx.NewContext(gw, mc, book, wl, cfg)

	dispatcher := dispatch.New(256)
	gw.SetOrderCallback(func(ev gateway.OrderEvent) {
		order := reconcileOrder(book, ev)
		dispatcher.Enqueue(ev, order)
	})

	eng := &Engine{cfg: cfg, ctx: appCtx, dispatcher: dispatcher}

	if cfg.Modules.Sell || cfg.Modules.UsageExample {
		auction := sellstrategy.NewAuctionSellStrategy(appCtx, 1)
		intraday := sellstrategy.NewIntradaySellStrategy(appCtx, 2)
		close_ := sellstrategy.NewCloseSellStrategy(appCtx, 3)

		dispatcher.Register(dispatch.ModuleAuctionSell, auction)
		dispatcher.Register(dispatch.ModuleIntradaySell, intraday)
		dispatcher.Register(dispatch.ModuleCloseSell, close_)

		eng.tickers = append(eng.tickers, auction, intraday, close_)
	}

	if cfg.Modules.BaseCancel {
		guardCfg := limitup.Config{
			AccountID: cfg.Strategy.AccountID,
			HoldVol:   cfg.Strategy.HoldVol,
			CodeMin:   cfg.Strategy.CodeMin,
			CodeMax:   cfg.Strategy.CodeMax,
			ListDir:   cfg.ModulesConfig.BaseCancel.OrderDir,
		}
		guard := limitup.New(appCtx, guardCfg, wl.Symbols())
		dispatcher.Register(dispatch.ModuleLimitUpGuard, guard)
		eng.tickers = append(eng.tickers, guard)
	}

	feed, err := transport.DialFeed(cfg.Market.URL())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: dial market feed: %w", err)
	}
	eng.feed = feed

	return eng, nil
}

// reconcileOrder applies a broker push to the local book before handing
// it to the Dispatcher. A first confirmation for a local order binds the
// broker's system id; an event for no known local id registers the
// order as external (another participant's, per spec.md's limit-up
// guard use case) on first sight; either way the event's status/fill is
// then folded into the book so Order.Status actually advances instead of
// sitting at Submitted forever.
func reconcileOrder(book *orderbook.Book, ev gateway.OrderEvent) *orderbook.Order {
	order, found := book.FindBySystem(ev.SystemID)
	if !found && ev.LocalID != "" {
		if local, ok := book.FindByLocal(ev.LocalID); ok {
			if ev.SystemID != "" && local.SystemID == "" {
				if err := book.BindSystemID(ev.LocalID, ev.SystemID); err != nil {
					log.Printf("[Orchestrator] bind system id %s to local id %s: %v", ev.SystemID, ev.LocalID, err)
				}
			}
			order, found = local, true
		}
	}
	if !found {
		if ev.SystemID == "" {
			return nil
		}
		order = book.EnsureExternal(ev.SystemID, ev.Symbol, ev.Side, ev.OrderType, ev.Price, ev.Volume)
		if ev.FillQty <= 0 {
			return order
		}
	}
	if ev.SystemID == "" {
		return order
	}
	if _, err := book.UpdateFromEvent(ev.SystemID, ev.Status, ev.FillQty, ev.FillPrice); err != nil {
		log.Printf("[Orchestrator] apply event for system id %s: %v", ev.SystemID, err)
	}
	return order
}

// Start connects the trading session, subscribes the already-dialed
// market feed's tick and transaction subjects, and launches one drive
// goroutine per module.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.ctx.Gateway.Connect(ctx); err != nil {
		return fmt.Errorf("orchestrator: connect trading session: %w", err)
	}
	log.Println("[Orchestrator] trading session connected")

	if err := e.feed.SubscribeTicks(e.cfg.Market.TickSubject, e.ctx.Market); err != nil {
		return fmt.Errorf("orchestrator: subscribe ticks: %w", err)
	}
	if err := e.feed.SubscribeTransactions(e.cfg.Market.TxSubject, e.ctx.Market); err != nil {
		return fmt.Errorf("orchestrator: subscribe transactions: %w", err)
	}
	log.Printf("[Orchestrator] market feed subscribed: ticks=%s tx=%s", e.cfg.Market.TickSubject, e.cfg.Market.TxSubject)

	for _, t := range e.tickers {
		go e.driveTicker(t)
	}
	log.Printf("[Orchestrator] %d module(s) running", len(e.tickers))
	return nil
}

// driveTicker calls t.Tick on its own interval, correcting for the
// previous call's execution time so the cadence does not drift, until
// the engine's Background context is cancelled.
func (e *Engine) driveTicker(t ticker) {
	interval := t.TickInterval()
	next := time.Now()
	for {
		select {
		case <-e.ctx.Background().Done():
			return
		default:
		}

		now := time.Now()
		if now.Before(next) {
			time.Sleep(next.Sub(now))
		}
		t.Tick(time.Now())
		next = next.Add(interval)
		if time.Now().After(next) {
			next = time.Now()
		}
	}
}

// Stop requests every drive loop to exit, unsubscribes from the market
// feed, and disconnects the trading session.
func (e *Engine) Stop() error {
	e.ctx.RequestStop()
	e.dispatcher.Shutdown()
	e.feed.Close()
	err := e.ctx.Gateway.Disconnect()
	e.ctx.Gateway.Shutdown()
	return err
}

// Watchlist exposes the loaded watchlist for status reporting.
func (e *Engine) Watchlist() *watchlist.List {
	return e.ctx.Watchlist
}
