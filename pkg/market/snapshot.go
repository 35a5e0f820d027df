// Package market caches the latest market data pushed by a feed adapter
// and answers snapshot, limit-price, and opening-auction queries for the
// sell strategies. Writes are mutex-protected; reads never block behind
// the feed's ingest goroutine.
package market

// Snapshot is the latest known state of one symbol's order book and
// trade tape, as reported by the feed.
type Snapshot struct {
	Symbol    string
	Timestamp int64 // HHMMSSmmm, millisecond-granularity local time

	Last     float64
	PreClose float64
	Open     float64
	High     float64
	Low      float64

	UpLimit   float64
	DownLimit float64

	BidPrice [5]float64
	BidVol   [5]int64
	AskPrice [5]float64
	AskVol   [5]int64

	Volume   int64
	Turnover float64
}

// Tick is the raw feed payload MarketCache.OnTick ingests. Prices arrive
// as integer ten-thousandths of a yuan, matching the wire convention
// most domestic feed SDKs use; OnTick scales and rounds them to tick.
type Tick struct {
	Symbol    string
	Timestamp int64

	Last     int64
	PreClose int64
	Open     int64
	High     int64
	Low      int64

	UpLimit   int64
	DownLimit int64

	BidPrice [5]int64
	BidVol   [5]int64
	AskPrice [5]int64
	AskVol   [5]int64

	Volume   int64
	Turnover float64
}

// Transaction is a single executed trade reported by the feed's
// transaction stream, forwarded by Cache.OnTransaction to whatever
// handler SetTransactionCallback registered for its symbol.
type Transaction struct {
	Symbol      string
	Price       float64
	Volume      int64
	Turnover    float64
	Side        int // 0 = unknown/buy-initiated, 1 = sell-initiated
	FunctionCode int
}
