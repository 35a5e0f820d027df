package sellstrategy

import (
	"log"
	"time"

	"github.com/wangharden/sell/pkg/appctx"
	"github.com/wangharden/sell/pkg/config"
	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/orderbook"
	"github.com/wangharden/sell/pkg/randgen"
	"github.com/wangharden/sell/pkg/session"
	"github.com/wangharden/sell/pkg/symbol"
	"github.com/wangharden/sell/pkg/watchlist"
)

const closeRemarkPrefix = "qh2h_close_"

const (
	closeRandomSellStart = 145300
	closeRandomSellEnd   = 145645

	closeCancelStart = 145645
	closeCancelEnd   = 145700

	closeProbeStart = 145720
	closeProbeEnd   = 145750

	closeBulkStart = 145800
	closeBulkEnd   = 145950

	closeTriggerProbability = 0.15
	closeSoldVolCap         = 0.70
)

type closePerSymbol struct {
	cancelDone bool
	probeDone  bool
	bulkDone   bool
}

// CloseSellStrategy works the closing-window sell phases between 14:53
// and 14:59:50.
type CloseSellStrategy struct {
	ctx     *appctx.Context
	pacing  config.PacingParams
	rng     *randgen.Source
	scratch map[string]*closePerSymbol

	posCache   map[string]orderbook.Position
	posCacheAt time.Time
}

// NewCloseSellStrategy builds the strategy over ctx's capability set.
func NewCloseSellStrategy(ctx *appctx.Context, seed int64) *CloseSellStrategy {
	return &CloseSellStrategy{
		ctx:     ctx,
		pacing:  ctx.Config.ClosePacing(),
		rng:     randgen.New(seed),
		scratch: make(map[string]*closePerSymbol),
	}
}

func (s *CloseSellStrategy) state(sym string) *closePerSymbol {
	st, ok := s.scratch[sym]
	if !ok {
		st = &closePerSymbol{}
		s.scratch[sym] = st
	}
	return st
}

// TickInterval is the cadence the orchestrator drives Tick at.
func (s *CloseSellStrategy) TickInterval() time.Duration { return 3 * time.Second }

// Tick runs the phase applicable to now across every watchlist symbol.
func (s *CloseSellStrategy) Tick(now time.Time) {
	hhmmss := session.HHMMSS(now)
	s.refreshPositions(now)

	for _, sym := range s.ctx.Watchlist.Symbols() {
		stock, ok := s.ctx.Watchlist.Get(sym)
		if !ok {
			continue
		}
		switch {
		case session.InRange(hhmmss, closeRandomSellStart, closeRandomSellEnd):
			s.randomSell(sym, stock)
		case session.InRange(hhmmss, closeCancelStart, closeCancelEnd):
			s.cancelOnce(sym, stock)
		case session.InRange(hhmmss, closeProbeStart, closeProbeEnd):
			s.probeSell(sym, stock)
		case session.InRange(hhmmss, closeBulkStart, closeBulkEnd):
			s.bulkSell(sym, stock)
		}
	}
}

// refreshPositions re-queries the gateway for this account's positions
// at most once a second; every phase sizes off the cached result instead
// of the static CSV-loaded AvailVol/TotalVol.
func (s *CloseSellStrategy) refreshPositions(now time.Time) {
	if !s.posCacheAt.IsZero() && now.Sub(s.posCacheAt) < time.Second {
		return
	}
	positions, err := s.ctx.Gateway.QueryPositions(s.ctx.Background())
	if err != nil {
		log.Printf("[CloseSell] query positions: %v", err)
		return
	}
	cache := make(map[string]orderbook.Position, len(positions))
	for _, p := range positions {
		cache[p.Symbol] = p
	}
	s.posCache = cache
	s.posCacheAt = now
}

// position returns the cached live position for stock, falling back to
// the static CSV-loaded figures before the first successful refresh.
func (s *CloseSellStrategy) position(stock *watchlist.Stock) orderbook.Position {
	if pos, ok := s.posCache[stock.Params.Symbol]; ok {
		return pos
	}
	return orderbook.Position{Symbol: stock.Params.Symbol, Total: stock.Params.TotalVol, Available: stock.Params.AvailVol}
}

// randomSell takes sold_vol as accumulated from fill events (it does not
// re-derive it from the live position), then at a 15% per-tick chance
// offers a randomized-size sell, refusing once 70% of the day's starting
// total has already been sold or the book shows the symbol pinned at
// limit-up.
func (s *CloseSellStrategy) randomSell(sym string, stock *watchlist.Stock) {
	pos := s.position(stock)
	if stock.Runtime.SoldVol > int64(float64(stock.Params.TotalVol)*closeSoldVolCap) {
		return
	}
	if s.rng.Uniform() >= closeTriggerProbability {
		return
	}
	snap := s.ctx.Market.Snapshot(sym)
	if snap == nil {
		return
	}
	zt, dt := s.ctx.Market.Limits(sym)
	if snap.BidPrice[0] == zt {
		return
	}

	surplus := pos.Available - s.pacing.HoldVol - stock.Runtime.SoldVol
	if surplus <= 0 {
		return
	}
	price := symbol.CeilTick((snap.BidPrice[0]+snap.AskPrice[0])/2 - 1e-6)
	amt := s.rng.RandomVolumeAmount(s.pacing.SingleAmt, s.pacing.RandAmt1, s.pacing.RandAmt2)
	qty := floorLot(int64(amt / price))
	if qty <= 0 {
		return
	}
	if qty > surplus {
		qty = floorLot(surplus)
	}
	if qty <= 0 {
		return
	}
	s.submitSell(sym, stock, price, qty, dt, "rand")
}

func (s *CloseSellStrategy) cancelOnce(sym string, stock *watchlist.Stock) {
	st := s.state(sym)
	if st.cancelDone {
		return
	}
	st.cancelDone = true
	for _, o := range s.ctx.Book.ActiveOrdersFor(sym) {
		if o.IsLocal && hasPrefix(o.Remark, closeRemarkPrefix) {
			if _, err := s.ctx.Gateway.CancelOrder(s.ctx.Background(), o.LocalID); err != nil {
				log.Printf("[CloseSell] cancel by local id %s failed: %v", o.LocalID, err)
			}
			continue
		}
		if hasPrefix(o.Remark, closeRemarkPrefix) {
			if _, err := s.ctx.Gateway.CancelOrder(s.ctx.Background(), o.LocalID); err != nil {
				log.Printf("[CloseSell] cancel by remark %s failed: %v", o.LocalID, err)
			}
		}
	}
}

// probeSell offers a single 100-share test order at the lower limit, a
// sounding shot before the bulk dump, skipped if the book shows the
// symbol already pinned at limit-up.
func (s *CloseSellStrategy) probeSell(sym string, stock *watchlist.Stock) {
	st := s.state(sym)
	if st.probeDone {
		return
	}
	pos := s.position(stock)
	available := pos.Available - stock.Runtime.SoldVol
	remaining := pos.Total - stock.Runtime.SoldVol
	if available < 100 || remaining <= 100 {
		return
	}
	snap := s.ctx.Market.Snapshot(sym)
	if snap == nil {
		return
	}
	zt, dt := s.ctx.Market.Limits(sym)
	if snap.BidPrice[0] == zt {
		return
	}
	st.probeDone = true
	s.submitSell(sym, stock, dt, 100, dt, "probe")
}

// bulkSell dumps the remaining surplus at the lower limit for every
// symbol not pinned at limit-up.
func (s *CloseSellStrategy) bulkSell(sym string, stock *watchlist.Stock) {
	st := s.state(sym)
	if st.bulkDone {
		return
	}
	snap := s.ctx.Market.Snapshot(sym)
	if snap == nil {
		return
	}
	zt, dt := s.ctx.Market.Limits(sym)
	if snap.BidPrice[0] == zt {
		return
	}
	pos := s.position(stock)
	avail := pos.Available
	total := pos.Total
	if avail > total {
		avail = total
	}
	surplus := avail - s.pacing.HoldVol - stock.Runtime.SoldVol
	if surplus <= 0 {
		st.bulkDone = true
		return
	}
	st.bulkDone = true
	s.submitSell(sym, stock, dt, surplus, dt, "bulk")
}

func (s *CloseSellStrategy) submitSell(sym string, stock *watchlist.Stock, price float64, qty int64, dt float64, tag string) {
	remark := closeRemarkPrefix + sym + "_" + tag
	req := gateway.OrderRequest{
		AccountID: s.ctx.Config.Strategy.AccountID,
		Symbol:    sym,
		Side:      orderbook.SideSell,
		Price:     price,
		Volume:    qty,
		Remark:    remark,
	}
	localID, err := s.ctx.Gateway.PlaceOrder(s.ctx.Background(), req, dt)
	if err != nil {
		log.Printf("[CloseSell] place order for %s failed: %v", sym, err)
		return
	}
	_ = s.ctx.Book.Add(&orderbook.Order{
		LocalID: localID, Symbol: sym, Side: orderbook.SideSell, Price: price,
		Volume: qty, Remark: remark, Status: orderbook.StatusSubmitted, IsLocal: true,
	})
	stock.Runtime.TotalSell += qty
}

// Handle implements dispatch.Handler, reconciling sold_vol from fills.
func (s *CloseSellStrategy) Handle(ev gateway.OrderEvent, order *orderbook.Order) {
	if order == nil || ev.FillQty <= 0 {
		return
	}
	stock, ok := s.ctx.Watchlist.Get(order.Symbol)
	if !ok {
		return
	}
	stock.Runtime.SoldVol += ev.FillQty
}
