package market

import (
	"sync"

	"github.com/wangharden/sell/pkg/symbol"
)

const priceScale = 10000.0

// TransactionHandler is invoked synchronously from OnTransaction for
// every trade print; it must not block. No engine module registers one;
// the limit-up guard works from order events instead.
type TransactionHandler func(Transaction)

// Cache holds the most recent Snapshot per symbol plus the full history
// of every snapshot received, used to answer point-in-time auction
// queries (it is never trimmed), and the
// per-symbol ratio metadata needed to derive a fallback limit price when
// the feed has not yet reported one.
type Cache struct {
	mu sync.RWMutex

	latest  map[string]*Snapshot
	history map[string][]Snapshot // ascending by Timestamp, append-only

	stRatio map[string]bool // symbol -> ST marker, registered at watchlist load

	txMu  sync.RWMutex
	txHandlers map[string]TransactionHandler // symbol -> consumer
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		latest:     make(map[string]*Snapshot),
		history:    make(map[string][]Snapshot),
		stRatio:    make(map[string]bool),
		txHandlers: make(map[string]TransactionHandler),
	}
}

// SetSTFlag records whether sym carries the ST/*ST risk marker, which
// narrows its limit-move ratio to 5% in the absence of a feed-reported
// limit. Called once per symbol at watchlist load time.
func (c *Cache) SetSTFlag(sym string, st bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stRatio[sym] = st
}

func scaleRound(raw int64) float64 {
	return symbol.RoundTick(float64(raw) / priceScale)
}

// OnTick ingests a raw feed tick, scaling integer prices to two-decimal
// yuan and appending to the symbol's rolling history.
func (c *Cache) OnTick(t Tick) {
	snap := &Snapshot{
		Symbol:    t.Symbol,
		Timestamp: t.Timestamp,
		Last:      scaleRound(t.Last),
		PreClose:  scaleRound(t.PreClose),
		Open:      scaleRound(t.Open),
		High:      scaleRound(t.High),
		Low:       scaleRound(t.Low),
		UpLimit:   scaleRound(t.UpLimit),
		DownLimit: scaleRound(t.DownLimit),
		Volume:    t.Volume,
		Turnover:  t.Turnover,
	}
	for i := 0; i < 5; i++ {
		snap.BidPrice[i] = scaleRound(t.BidPrice[i])
		snap.BidVol[i] = t.BidVol[i]
		snap.AskPrice[i] = scaleRound(t.AskPrice[i])
		snap.AskVol[i] = t.AskVol[i]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[t.Symbol] = snap
	hist := c.history[t.Symbol]
	hist = append(hist, *snap)
	c.history[t.Symbol] = hist
}

// OnTransaction forwards a trade print to the registered consumer for
// its symbol, if any. It must be cheap and non-blocking: a handler
// should only enqueue work, never call into the trading gateway inline.
func (c *Cache) OnTransaction(tx Transaction) {
	c.txMu.RLock()
	handler := c.txHandlers[tx.Symbol]
	c.txMu.RUnlock()
	if handler != nil {
		handler(tx)
	}
}

// SetTransactionCallback registers the consumer for sym's trade prints,
// replacing any previously registered handler.
func (c *Cache) SetTransactionCallback(sym string, handler TransactionHandler) {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	c.txHandlers[sym] = handler
}

// Snapshot returns the latest known state for sym, or nil if the feed
// has not reported it yet.
func (c *Cache) Snapshot(sym string) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.latest[sym]
	if !ok {
		return nil
	}
	copy := *s
	return &copy
}

// Limits returns sym's up/down limit prices. When the feed has not yet
// reported a positive limit (the snapshot predates the official
// calculation, or none has arrived), it falls back to deriving the limit
// from the last known pre-close and the code-prefix/ST ratio.
func (c *Cache) Limits(sym string) (up, down float64) {
	c.mu.RLock()
	snap := c.latest[sym]
	st := c.stRatio[sym]
	c.mu.RUnlock()

	if snap != nil && snap.UpLimit > 0 && snap.DownLimit > 0 {
		return snap.UpLimit, snap.DownLimit
	}
	if snap == nil || snap.PreClose <= 0 {
		return 0, 0
	}
	parsed, err := symbol.Parse(sym)
	if err != nil {
		return 0, 0
	}
	ratio := symbol.LimitRatio(parsed.Code, st)
	return symbol.LimitPrice(snap.PreClose, ratio)
}

// Auction returns the open price and cumulative turnover known as of
// atHHMMSS (a six-digit local HHMMSS, e.g. "092700"), the value most
// recently reported at or before that instant. If the latest snapshot
// recorded for sym is later than atHHMMSS, the turnover component is
// unknown and reported as zero rather than extrapolated forward.
func (c *Cache) Auction(sym string, atHHMMSS int64) (open, turnover float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hist := c.history[sym]
	if len(hist) == 0 {
		return 0, 0
	}
	// atHHMMSS is HHMMSS; snapshot timestamps are HHMMSSmmm. Treat the
	// query as inclusive through the end of that second.
	bound := atHHMMSS*1000 + 999

	var best *Snapshot
	for i := range hist {
		if hist[i].Timestamp <= bound {
			best = &hist[i]
		} else {
			break
		}
	}
	if best == nil {
		// no snapshot at or before the query instant: open and turnover
		// are both unknown.
		return 0, 0
	}
	if hist[len(hist)-1].Timestamp > bound {
		return best.Open, 0
	}
	return best.Open, best.Turnover
}
