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

// Auction-phase HHMMSS window boundaries, local time.
const (
	auctionP0Start = 92005
	auctionP0End   = 92300

	auctionP1Start = 92330
	auctionP1End   = 92500

	auctionP2Start = 92340
	auctionP2End   = 92445

	auctionP3Start = 92450
	auctionP3End   = 92500

	auctionCancelStart = 92513
	auctionCancelEnd   = 92523

	auctionLatchStart = 92600
	auctionLatchEnd   = 92810

	auctionFollowStart = 92955
	auctionFollowEnd   = 93040
)

const auctionRemarkPrefix = "qh2h_auction_sell_"

// auctionPerSymbol is the module-owned, per-symbol scratch state that
// does not belong on the shared watchlist.Runtime record.
type auctionPerSymbol struct {
	p2TriggeredThisTick bool
	lastFollowTick      int64
	localOrderIDs       []string
}

// AuctionSellStrategy drives the opening-auction sell phases between
// 09:20 and 09:30:40.
type AuctionSellStrategy struct {
	ctx     *appctx.Context
	pacing  config.PacingParams
	rng     *randgen.Source
	scratch map[string]*auctionPerSymbol

	posCache   map[string]orderbook.Position
	posCacheAt time.Time
}

// NewAuctionSellStrategy builds the strategy over ctx's capability set,
// seeding its own private RNG (seed 0 picks up wall-clock entropy).
func NewAuctionSellStrategy(ctx *appctx.Context, seed int64) *AuctionSellStrategy {
	return &AuctionSellStrategy{
		ctx:     ctx,
		pacing:  ctx.Config.AuctionPacing(),
		rng:     randgen.New(seed),
		scratch: make(map[string]*auctionPerSymbol),
	}
}

func (s *AuctionSellStrategy) state(sym string) *auctionPerSymbol {
	st, ok := s.scratch[sym]
	if !ok {
		st = &auctionPerSymbol{}
		s.scratch[sym] = st
	}
	return st
}

// TickInterval is the cadence the orchestrator calls Tick at.
func (s *AuctionSellStrategy) TickInterval() time.Duration { return time.Second }

// Tick runs every phase applicable to now across every watchlist symbol.
// The windows overlap by design — P1[09:23:30,09:25:00) fully contains
// both P2[09:23:40,09:24:45) and P3[09:24:50,09:25:00) — so each phase
// is gated by its own independent if, not a mutually-exclusive switch.
func (s *AuctionSellStrategy) Tick(now time.Time) {
	hhmmss := session.HHMMSS(now)
	s.refreshPositions(now)

	for _, sym := range s.ctx.Watchlist.Symbols() {
		stock, ok := s.ctx.Watchlist.Get(sym)
		if !ok {
			continue
		}
		if session.InRange(hhmmss, auctionP1Start, auctionP1End) {
			s.phase1(sym, stock)
		}
		if session.InRange(hhmmss, auctionP2Start, auctionP2End) {
			s.phase2(sym, stock)
		}
		if session.InRange(hhmmss, auctionP3Start, auctionP3End) {
			s.phase3(sym, stock)
		}
		if session.InRange(hhmmss, auctionCancelStart, auctionCancelEnd) {
			s.cancelSweep(sym, stock)
		}
		if session.InRange(hhmmss, auctionLatchStart, auctionLatchEnd) {
			s.latchAuctionData(sym, stock)
		}
		if session.InRange(hhmmss, auctionFollowStart, auctionFollowEnd) {
			s.afterOpenFollow(sym, stock, now)
		}
	}
}

// refreshPositions re-queries the gateway for this account's positions
// at most once a second; every phase sizes off the cached result instead
// of the static CSV-loaded AvailVol/TotalVol so Σpending_sell_qty stays
// bounded by what is actually still available to sell.
func (s *AuctionSellStrategy) refreshPositions(now time.Time) {
	if !s.posCacheAt.IsZero() && now.Sub(s.posCacheAt) < time.Second {
		return
	}
	positions, err := s.ctx.Gateway.QueryPositions(s.ctx.Background())
	if err != nil {
		log.Printf("[AuctionSell] query positions: %v", err)
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
func (s *AuctionSellStrategy) position(stock *watchlist.Stock) orderbook.Position {
	if pos, ok := s.posCache[stock.Params.Symbol]; ok {
		return pos
	}
	return orderbook.Position{Symbol: stock.Params.Symbol, Total: stock.Params.TotalVol, Available: stock.Params.AvailVol}
}

func (s *AuctionSellStrategy) eligibleSurplus(stock *watchlist.Stock) (int64, orderbook.Position) {
	pos := s.position(stock)
	holdVol := s.pacing.HoldVol
	surplus := pos.Available - holdVol
	if surplus < 0 {
		surplus = 0
	}
	return surplus, pos
}

func floorLot(qty int64) int64 {
	return (qty / 100) * 100
}

// phase1 offers 10% of eligible surplus at the lower limit once per
// symbol per day, skipped if the order book shows bid1 pinned at the
// limit with depth behind it at the second level (a queue already
// forming).
func (s *AuctionSellStrategy) phase1(sym string, stock *watchlist.Stock) {
	if stock.Runtime.Return1Sell {
		return
	}
	snap := s.ctx.Market.Snapshot(sym)
	if snap == nil {
		return
	}
	_, dt := s.ctx.Market.Limits(sym)
	zt, _ := s.ctx.Market.Limits(sym)

	if snap.BidPrice[0] == zt && snap.AskVol[1] > 0 {
		return
	}

	surplus, _ := s.eligibleSurplus(stock)
	qty := floorLot(int64(float64(surplus) * 0.10))
	if qty <= 0 {
		stock.Runtime.Return1Sell = true
		return
	}
	s.submitSell(sym, stock, dt, qty, "p1")
	stock.Runtime.Return1Sell = true
}

// phase2 applies the three mutually-exclusive conditional boosts, each
// firing with a 12.5% per-tick probability once its price/turnover
// trigger condition is met.
func (s *AuctionSellStrategy) phase2(sym string, stock *watchlist.Stock) {
	if s.rng.Uniform() >= 0.125 {
		return
	}
	snap := s.ctx.Market.Snapshot(sym)
	if snap == nil {
		return
	}
	bid1 := snap.BidPrice[0]
	v1 := snap.BidVol[0]
	p := stock.Params

	var triggerPrice float64
	var ok bool
	switch {
	case p.SecondFlag:
		triggerPrice = symbol.CeilTick(p.PreClose * 1.07)
		ok = bid1 >= triggerPrice
	case p.FBFlag && !p.ZBFlag:
		triggerPrice = symbol.CeilTick(p.PreClose * 1.015)
		ok = bid1*float64(v1)*100 < 1.5e7 && bid1 >= triggerPrice
	case !p.FBFlag && p.ZBFlag:
		triggerPrice = symbol.CeilTick(p.PreClose * 1.01)
		ok = bid1*float64(v1)*100 < 3e6 && bid1 >= triggerPrice
	default:
		return
	}
	if !ok {
		return
	}

	if float64(stock.Runtime.TotalSell)/100 >= float64(v1)*s.sellToMktRatio() {
		return
	}

	surplus, _ := s.eligibleSurplus(stock)
	size := s.sizeFromPacing(bid1, surplus)
	if size <= 0 {
		return
	}
	s.submitSell(sym, stock, triggerPrice, size, "p2")
}

func (s *AuctionSellStrategy) sellToMktRatio() float64 {
	if s.ctx.Config.Strategy.SellToMktRatio > 0 {
		return s.ctx.Config.Strategy.SellToMktRatio
	}
	return 0
}

func (s *AuctionSellStrategy) sizeFromPacing(price float64, surplus int64) int64 {
	if price <= 0 {
		return 0
	}
	amt := s.rng.RandomVolumeAmount(s.pacing.SingleAmt, s.pacing.RandAmt1, s.pacing.RandAmt2)
	qty := floorLot(int64(amt / price))
	if qty > surplus {
		qty = floorLot(surplus)
	}
	return qty
}

// phase3 is the last-chance window: if the book shows a one-sided
// limit-up queue forming (bid2 empty, ask2 present) half the surplus is
// dumped one tick below the limit; otherwise phase2's logic is re-run
// once more before the auction sell flag latches done.
func (s *AuctionSellStrategy) phase3(sym string, stock *watchlist.Stock) {
	if stock.Runtime.SellFlag {
		return
	}
	snap := s.ctx.Market.Snapshot(sym)
	if snap == nil {
		return
	}
	zt, _ := s.ctx.Market.Limits(sym)

	if snap.BidPrice[0] == zt && snap.BidVol[1] == 0 && snap.AskVol[1] > 0 {
		surplus, _ := s.eligibleSurplus(stock)
		qty := floorLot(surplus / 2)
		if qty > 0 {
			s.submitSell(sym, stock, symbol.RoundTick(zt-0.01), qty, "p3")
			stock.Runtime.LimitSell = true
		}
		stock.Runtime.SellFlag = true
		return
	}
	s.phase2(sym, stock)
	stock.Runtime.SellFlag = true
}

func (s *AuctionSellStrategy) cancelSweep(sym string, stock *watchlist.Stock) {
	for _, o := range s.ctx.Book.ActiveOrdersFor(sym) {
		if !hasPrefix(o.Remark, auctionRemarkPrefix) {
			continue
		}
		if _, err := s.ctx.Gateway.CancelOrder(s.ctx.Background(), o.LocalID); err != nil {
			log.Printf("[AuctionSell] cancel %s failed: %v", o.LocalID, err)
		}
	}
}

// latchAuctionData records the one-time opening print and turnover, and
// resets the sell-completion flag so the intraday strategy starts fresh.
func (s *AuctionSellStrategy) latchAuctionData(sym string, stock *watchlist.Stock) {
	if stock.Runtime.JJAmt != 0 || stock.Runtime.OpenPrice != 0 {
		return
	}
	open, turnover := s.ctx.Market.Auction(sym, 92700)
	if open == 0 {
		return
	}
	stock.Runtime.OpenPrice = open
	stock.Runtime.JJAmt = turnover
	stock.Runtime.SellFlag = false
}

// afterOpenFollow keeps chasing price for the first 45 seconds of
// continuous trading when the open printed strongly above the fb/zb
// trigger threshold but without the turnover to have already justified
// a boosted sell during the auction.
func (s *AuctionSellStrategy) afterOpenFollow(sym string, stock *watchlist.Stock, now time.Time) {
	st := s.state(sym)
	nowUnix := now.Unix()
	if nowUnix-st.lastFollowTick < 3 {
		return
	}
	st.lastFollowTick = nowUnix

	if stock.Runtime.OpenPrice == 0 {
		return
	}
	p := stock.Params
	open := stock.Runtime.OpenPrice
	C := p.PreClose

	var trigger, price float64
	switch {
	case p.FBFlag && open >= symbol.CeilTick(C*1.015) && stock.Runtime.JJAmt < 1.5e7:
		trigger = symbol.CeilTick(C * 1.015)
		price = symbol.CeilTick(C * (open/C - 0.01))
		if price < trigger {
			price = trigger
		}
	case p.ZBFlag && open >= symbol.CeilTick(C*1.01) && stock.Runtime.JJAmt < 3e6:
		trigger = symbol.CeilTick(C * 1.01)
		price = symbol.CeilTick(C * (open/C - 0.01))
		if price < trigger {
			price = trigger
		}
	default:
		return
	}

	surplus, _ := s.eligibleSurplus(stock)
	qty := s.sizeFromPacing(price, surplus)
	if qty <= 0 {
		return
	}
	s.submitSell(sym, stock, price, qty, "follow")
}

func (s *AuctionSellStrategy) submitSell(sym string, stock *watchlist.Stock, price float64, qty int64, tag string) {
	remark := auctionRemarkPrefix + sym + "_" + tag
	_, dt := s.ctx.Market.Limits(sym)
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
		log.Printf("[AuctionSell] place order for %s failed: %v", sym, err)
		return
	}
	_ = s.ctx.Book.Add(&orderbook.Order{
		LocalID: localID, Symbol: sym, Side: orderbook.SideSell, Price: price,
		Volume: qty, Remark: remark, Status: orderbook.StatusSubmitted, IsLocal: true,
	})
	stock.Runtime.TotalSell += qty
	state := s.state(sym)
	state.localOrderIDs = append(state.localOrderIDs, localID)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Handle implements dispatch.Handler, reconciling sold_vol from fills on
// this module's own orders.
func (s *AuctionSellStrategy) Handle(ev gateway.OrderEvent, order *orderbook.Order) {
	if order == nil || ev.FillQty <= 0 {
		return
	}
	stock, ok := s.ctx.Watchlist.Get(order.Symbol)
	if !ok {
		return
	}
	stock.Runtime.SoldVol += ev.FillQty
}
