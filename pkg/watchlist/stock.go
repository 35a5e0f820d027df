// Package watchlist loads the per-day CSV of already-held symbols the
// sell strategies operate on, and holds each symbol's immutable daily
// parameters alongside its mutable per-day runtime state.
package watchlist

import "github.com/wangharden/sell/pkg/symbol"

// Params is the immutable-for-the-day configuration of one watchlist
// symbol, as loaded from the CSV.
type Params struct {
	Shortname    string
	Symbol       string
	TradingDate  string
	AvailVol     int64
	TotalVol     int64
	PreClose     float64
	FBFlag       bool
	ZBFlag       bool
	SecondFlag   bool
	LimitRatio   float64
}

// Condition classifies a symbol's prior-day label for the intraday sell
// strategy's window lookup: lb (second board), fb, hf (both fb and zb),
// zb, or "" if none of the flags are set.
func (p Params) Condition() string {
	switch {
	case p.SecondFlag:
		return "lb"
	case p.FBFlag && p.ZBFlag:
		return "hf"
	case p.FBFlag:
		return "fb"
	case p.ZBFlag:
		return "zb"
	default:
		return ""
	}
}

// Runtime is the mutable per-day state a sell strategy accumulates while
// working a symbol. Exactly one module owns a given symbol's Runtime at
// any point in the trading day.
type Runtime struct {
	SellFlag       bool
	SoldVol        int64
	TotalSell      int64
	JJAmt          float64 // turnover at the 09:27:00 auction latch
	OpenPrice      float64
	ZTPrice        float64
	DTPrice        float64
	Remark         string
	CallBack       bool
	Return1Sell    bool
	LimitSell      bool
	UserOrderID    string

	// AvailAfterAuction is the one-time snapshot of available-after-
	// auction inventory sampled between 09:26 and the start of the
	// intraday phase; it is the fixed denominator for keep-position
	// ratio checks and must never be overwritten after being set.
	AvailAfterAuction int64
	availLatched      bool
}

// LatchAvailAfterAuction records the keep-position ratio denominator the
// first time it is called for the day; subsequent calls are no-ops.
func (r *Runtime) LatchAvailAfterAuction(avail int64) {
	if r.availLatched {
		return
	}
	r.AvailAfterAuction = avail
	r.availLatched = true
}

// BaselineLatched reports whether LatchAvailAfterAuction has fired yet.
func (r *Runtime) BaselineLatched() bool {
	return r.availLatched
}

// Stock pairs one symbol's immutable Params with its day's Runtime.
type Stock struct {
	Params  Params
	Runtime Runtime
}

// ZTDTPrice computes the limit-up/limit-down prices for p
// from its pre-close and ratio, the fallback a strategy uses before the
// feed has reported its own official limit.
func ZTDTPrice(p Params) (zt, dt float64) {
	return symbol.LimitPrice(p.PreClose, p.LimitRatio)
}
