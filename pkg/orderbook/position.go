package orderbook

// Position is a per-symbol holding snapshot as reported by the broker.
// Available is the authoritative figure for sizing new sell orders —
// Total includes shares already frozen behind pending orders.
type Position struct {
	Symbol    string
	Total     int64
	Available int64
	Frozen    int64
}
