// Package limitup implements the base-position guard: it tops up a
// configured buy list to a minimum holding, queues a paced pair of
// 100-share sell orders at the limit-up price ahead of the open, and
// cancels the second queued order the instant an external 100-share
// limit-up sell is observed taking its place in the queue.
package limitup

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wangharden/sell/pkg/appctx"
	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/orderbook"
	"github.com/wangharden/sell/pkg/session"
	"github.com/wangharden/sell/pkg/symbol"
)

const remarkPrefix = "qh2h_base_cancel_"

const (
	baseBuyStart = 145400
	baseBuyEnd   = 145500

	preOrderStart = 91020
	preOrderEnd   = 91700

	secondOrderStart = 92420
	secondOrderEnd   = 92450

	cancelWatchStart = 92900
	cancelWatchEnd   = 145500

	preOrderBatchSize  = 150
	baseBuyBatchSize   = 100
	probeFillVolume    = 100
)

// Config is the module's static configuration, set once at construction.
type Config struct {
	AccountID string
	HoldVol   int64
	CodeMin   string
	CodeMax   string
	ListDir   string
}

// Module is the base-position guard described in the package doc.
type Module struct {
	ctx *appctx.Context
	cfg Config

	buyListOnce sync.Once
	buySymbols  []string
	buyListPath string

	baseBuyDone    bool
	preOrdersDone  bool
	secondDone     bool
	preOrderCursor int

	holdingSymbols []string

	mu               sync.Mutex
	secondOrderIDs   map[string]bool
	secondBySymbol   map[string]string
	secondBySymRev   map[string]string
	readyToCancel    map[string]bool
	canceled         map[string]bool
	ztCache          map[string]float64
	preCloseCache    map[string]float64
}

// New builds the module. holdingSymbols is the day's already-held
// universe (normally ctx.Watchlist.Symbols()), queried once at
// construction the way the original queries the broker's position book
// at init.
func New(ctx *appctx.Context, cfg Config, holdingSymbols []string) *Module {
	return &Module{
		ctx:            ctx,
		cfg:            cfg,
		holdingSymbols: holdingSymbols,
		secondOrderIDs: make(map[string]bool),
		secondBySymbol: make(map[string]string),
		secondBySymRev: make(map[string]string),
		readyToCancel:  make(map[string]bool),
		canceled:       make(map[string]bool),
		ztCache:        make(map[string]float64),
		preCloseCache:  make(map[string]float64),
	}
}

// TickInterval is the cadence the orchestrator calls Tick at.
func (m *Module) TickInterval() time.Duration { return time.Second }

func (m *Module) loadBuyList() {
	m.buyListOnce.Do(func() {
		symbols, path, err := LoadBuyList(m.cfg.ListDir, m.cfg.CodeMin, m.cfg.CodeMax)
		if err != nil {
			log.Printf("[LimitUpGuard] load buy list: %v", err)
			return
		}
		m.buySymbols, m.buyListPath = symbols, path
		if path == "" {
			log.Printf("[LimitUpGuard] no buy list csv found in %s", m.cfg.ListDir)
		} else {
			log.Printf("[LimitUpGuard] loaded %d buy symbols from %s", len(symbols), path)
		}
	})
}

// Tick drives the module's four time-gated phases.
func (m *Module) Tick(now time.Time) {
	m.loadBuyList()
	hhmmss := session.HHMMSS(now)

	if !m.baseBuyDone && session.InRange(hhmmss, baseBuyStart, baseBuyEnd) {
		m.baseBuyDone = true
		m.doBaseBuy(hhmmss)
	}
	if !m.preOrdersDone && session.InRange(hhmmss, preOrderStart, preOrderEnd) {
		m.doPreOrders(hhmmss)
	}
	if !m.secondDone && session.InRange(hhmmss, secondOrderStart, secondOrderEnd) {
		m.doSecondOrders(hhmmss)
		m.secondDone = true
	}
	if session.InRange(hhmmss, cancelWatchStart, cancelWatchEnd) {
		m.doCancel()
	}
}

func floorLot(qty int64) int64 {
	return (qty / 100) * 100
}

// doBaseBuy tops up every symbol on the buy list that is currently held
// below cfg.HoldVol, buying at the floor-limit (or 90% of pre-close if
// the feed has not reported a limit yet) so the order is guaranteed to
// cross.
func (m *Module) doBaseBuy(now int) {
	if len(m.buySymbols) == 0 {
		log.Printf("[LimitUpGuard] buy list empty, skipping base buy")
		return
	}

	positions, err := m.ctx.Gateway.QueryPositions(m.ctx.Background())
	if err != nil {
		log.Printf("[LimitUpGuard] query positions: %v", err)
		return
	}
	posBySymbol := make(map[string]orderbook.Position, len(positions))
	for _, p := range positions {
		posBySymbol[p.Symbol] = p
	}

	bought := 0
	for _, sym := range m.buySymbols {
		current := posBySymbol[sym].Total
		if current >= m.cfg.HoldVol {
			continue
		}
		vol := floorLot(m.cfg.HoldVol - current)
		if vol <= 0 {
			continue
		}

		_, low := m.ctx.Market.Limits(sym)
		price := symbol.RoundTick(low)
		if price <= 0 {
			snap := m.ctx.Market.Snapshot(sym)
			if snap == nil || snap.PreClose <= 0 {
				continue
			}
			price = symbol.RoundTick(snap.PreClose * 0.9)
		}

		req := gateway.OrderRequest{
			AccountID: m.cfg.AccountID,
			Symbol:    sym,
			Side:      orderbook.SideBuy,
			Price:     price,
			Volume:    vol,
			Remark:    remarkPrefix + "base_buy_" + sym,
		}
		if _, err := m.ctx.Gateway.PlaceOrder(m.ctx.Background(), req, 0); err != nil {
			log.Printf("[LimitUpGuard] base buy %s failed: %v", sym, err)
			continue
		}
		bought++
		if bought%baseBuyBatchSize == 0 {
			time.Sleep(time.Second)
		}
	}
	log.Printf("[LimitUpGuard] base buy done, %d orders", bought)
}

func (m *Module) resolveZT(sym string) float64 {
	m.mu.Lock()
	if zt, ok := m.ztCache[sym]; ok {
		m.mu.Unlock()
		return zt
	}
	m.mu.Unlock()

	up, _ := m.ctx.Market.Limits(sym)
	zt := symbol.RoundTick(up)
	if zt <= 0 {
		if snap := m.ctx.Market.Snapshot(sym); snap != nil && snap.PreClose > 0 {
			code := strings.SplitN(sym, ".", 2)[0]
			ratio := 0.10
			if strings.HasPrefix(code, "30") || strings.HasPrefix(code, "68") {
				ratio = 0.20
			}
			zt = symbol.RoundTick(snap.PreClose * (1 + ratio))
			m.mu.Lock()
			m.preCloseCache[sym] = snap.PreClose
			m.mu.Unlock()
		}
	}
	if zt > 0 {
		m.mu.Lock()
		m.ztCache[sym] = zt
		m.mu.Unlock()
	}
	return zt
}

// doPreOrders queues a single 100-share sell at the limit-up price for
// each held symbol ahead of the open, paced in batches of 150 so as not
// to burst the gateway. Before 09:15 it stops after the first 270
// symbols; from 09:15 on it continues through the rest of the list.
func (m *Module) doPreOrders(now int) {
	positions, err := m.ctx.Gateway.QueryPositions(m.ctx.Background())
	if err != nil {
		log.Printf("[LimitUpGuard] query positions: %v", err)
		return
	}
	posBySymbol := make(map[string]orderbook.Position, len(positions))
	for _, p := range positions {
		posBySymbol[p.Symbol] = p
	}

	placed := 0
	for ; m.preOrderCursor < len(m.holdingSymbols); m.preOrderCursor++ {
		if m.preOrderCursor >= 270 && now < 91500 {
			break
		}
		sym := m.holdingSymbols[m.preOrderCursor]
		if posBySymbol[sym].Available < 100 {
			continue
		}
		zt := m.resolveZT(sym)
		if zt <= 0 {
			continue
		}

		req := gateway.OrderRequest{
			AccountID: m.cfg.AccountID,
			Symbol:    sym,
			Side:      orderbook.SideSell,
			Price:     zt,
			Volume:    100,
			Remark:    remarkPrefix + "pre_" + sym,
		}
		if _, err := m.ctx.Gateway.PlaceOrder(m.ctx.Background(), req, 0); err != nil {
			log.Printf("[LimitUpGuard] pre order %s failed: %v", sym, err)
			continue
		}
		placed++
		if placed%preOrderBatchSize == 0 {
			time.Sleep(time.Second)
		}
	}

	if m.preOrderCursor >= len(m.holdingSymbols) {
		m.preOrdersDone = true
		log.Printf("[LimitUpGuard] pre orders done")
	}
}

// doSecondOrders queues the replacement 100-share limit-up sell that
// takes the pre-order's place once it is pulled ahead of the open; the
// order id is tracked by symbol so Handle can flag it for cancellation.
func (m *Module) doSecondOrders(now int) {
	positions, err := m.ctx.Gateway.QueryPositions(m.ctx.Background())
	if err != nil {
		log.Printf("[LimitUpGuard] query positions: %v", err)
		return
	}
	posBySymbol := make(map[string]orderbook.Position, len(positions))
	for _, p := range positions {
		posBySymbol[p.Symbol] = p
	}

	queued := 0
	for _, sym := range m.holdingSymbols {
		if posBySymbol[sym].Available < 100 {
			continue
		}
		zt := m.resolveZT(sym)
		if zt <= 0 {
			continue
		}

		req := gateway.OrderRequest{
			AccountID: m.cfg.AccountID,
			Symbol:    sym,
			Side:      orderbook.SideSell,
			Price:     zt,
			Volume:    100,
			Remark:    remarkPrefix + "queue_" + sym,
		}
		localID, err := m.ctx.Gateway.PlaceOrder(m.ctx.Background(), req, 0)
		if err != nil {
			log.Printf("[LimitUpGuard] second order %s failed: %v", sym, err)
			continue
		}
		_ = m.ctx.Book.Add(&orderbook.Order{
			LocalID: localID, Symbol: sym, Side: orderbook.SideSell, Price: zt,
			Volume: 100, Remark: req.Remark, Status: orderbook.StatusSubmitted, IsLocal: true,
		})

		m.mu.Lock()
		m.secondOrderIDs[localID] = true
		m.secondBySymbol[localID] = sym
		m.secondBySymRev[sym] = localID
		m.mu.Unlock()

		queued++
	}
	log.Printf("[LimitUpGuard] second queue done, %d orders", queued)
}

// doCancel cancels every second-queue order Handle has flagged
// ready since the last tick.
func (m *Module) doCancel() {
	m.mu.Lock()
	var toCancel []string
	for id := range m.readyToCancel {
		if m.secondOrderIDs[id] && !m.canceled[id] {
			toCancel = append(toCancel, id)
		}
	}
	m.mu.Unlock()

	for _, id := range toCancel {
		if _, err := m.ctx.Gateway.CancelOrder(m.ctx.Background(), id); err != nil {
			log.Printf("[LimitUpGuard] cancel %s failed: %v", id, err)
			continue
		}
		m.mu.Lock()
		m.canceled[id] = true
		sym := m.secondBySymbol[id]
		m.mu.Unlock()
		log.Printf("[LimitUpGuard] canceled second order %s for %s", id, sym)
	}
}

// Handle implements dispatch.Handler. An external 100-share limit-up
// sell taking the queue position triggers the matching second order to
// be flagged for cancellation; local orders and the second order itself
// are ignored. Only the order-acknowledgement push is needed here, so a
// fill-less event (order==nil meaning the broker pushed an event this
// strategy's book has no matching local order for) still runs the check,
// sourcing symbol/side/price/volume from the event itself in that case.
func (m *Module) Handle(ev gateway.OrderEvent, order *orderbook.Order) {
	if order != nil && order.IsLocal {
		return
	}

	sym, side, price, volume := ev.Symbol, ev.Side, ev.Price, ev.Volume
	localID := ev.LocalID
	if order != nil {
		sym, side, price, volume = order.Symbol, order.Side, order.Price, order.Volume
		localID = order.LocalID
	}

	if side != orderbook.SideSell || volume != probeFillVolume {
		return
	}

	zt := m.resolveZT(sym)
	if zt <= 0 {
		return
	}
	if absDiff(price, zt) >= 0.01 {
		return
	}

	m.mu.Lock()
	secondID, ok := m.secondBySymRev[sym]
	if ok && !m.canceled[secondID] {
		m.readyToCancel[secondID] = true
		log.Printf("[LimitUpGuard] external %s order=%s triggers cancel of second=%s", sym, localID, secondID)
	}
	m.mu.Unlock()
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
