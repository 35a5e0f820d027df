package watchlist

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wangharden/sell/pkg/symbol"
)

// requiredColumns are matched case-insensitively; any other column in
// the CSV is ignored.
var requiredColumns = []string{
	"shortname", "symbol", "tradingdate", "avail_vol", "total_vol",
	"close", "fb_flag", "zb_flag", "second_flag",
}

// List is an ordered, loaded watchlist: the per-symbol Stock records
// plus lookup by symbol.
type List struct {
	order  []string
	byCode map[string]*Stock
}

// New returns an empty List, populated via Add.
func New() *List {
	return &List{byCode: make(map[string]*Stock)}
}

// Symbols returns every loaded symbol in CSV row order.
func (l *List) Symbols() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Get returns the Stock record for sym, if loaded.
func (l *List) Get(sym string) (*Stock, bool) {
	s, ok := l.byCode[sym]
	return s, ok
}

// Add inserts or replaces stock under its own symbol, appending to the
// iteration order the first time a given symbol is added.
func (l *List) Add(stock *Stock) {
	if l.byCode == nil {
		l.byCode = make(map[string]*Stock)
	}
	if _, exists := l.byCode[stock.Params.Symbol]; !exists {
		l.order = append(l.order, stock.Params.Symbol)
	}
	l.byCode[stock.Params.Symbol] = stock
}

// Load reads a watchlist CSV from path. The header row is matched
// case-insensitively against requiredColumns; a row whose symbol,
// avail_vol, total_vol or close value does not parse, or whose symbol
// repeats an earlier row's, is rejected with the offending row number.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("watchlist: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("watchlist: read header: %w", err)
	}
	colIndex, err := indexColumns(header)
	if err != nil {
		return nil, fmt.Errorf("watchlist: %s: %w", path, err)
	}

	list := &List{byCode: make(map[string]*Stock)}
	rowNum := 1
	for {
		rowNum++
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("watchlist: %s: row %d: %w", path, rowNum, err)
		}
		stock, err := parseRow(row, colIndex)
		if err != nil {
			return nil, fmt.Errorf("watchlist: %s: row %d: %w", path, rowNum, err)
		}
		if _, exists := list.byCode[stock.Params.Symbol]; exists {
			return nil, fmt.Errorf("watchlist: %s: row %d: duplicate symbol %s", path, rowNum, stock.Params.Symbol)
		}
		list.byCode[stock.Params.Symbol] = stock
		list.order = append(list.order, stock.Params.Symbol)
	}
	return list, nil
}

func indexColumns(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range requiredColumns {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("missing required column %q", want)
		}
	}
	return idx, nil
}

func parseRow(row []string, idx map[string]int) (*Stock, error) {
	get := func(col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rawSymbol := strings.ToUpper(get("symbol"))
	parsed, err := symbol.Parse(rawSymbol)
	if err != nil {
		return nil, err
	}

	avail, err := strconv.ParseInt(get("avail_vol"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("avail_vol: %w", err)
	}
	total, err := strconv.ParseInt(get("total_vol"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("total_vol: %w", err)
	}
	preClose, err := strconv.ParseFloat(get("close"), 64)
	if err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}

	shortname := get("shortname")
	st := symbol.IsSTName(shortname)
	ratio := symbol.LimitRatio(parsed.Code, st)

	params := Params{
		Shortname:   shortname,
		Symbol:      rawSymbol,
		TradingDate: get("tradingdate"),
		AvailVol:    avail,
		TotalVol:    total,
		PreClose:    preClose,
		FBFlag:      parseBoolFlag(get("fb_flag")),
		ZBFlag:      parseBoolFlag(get("zb_flag")),
		SecondFlag:  parseBoolFlag(get("second_flag")),
		LimitRatio:  ratio,
	}
	zt, dt := ZTDTPrice(params)
	return &Stock{
		Params:  params,
		Runtime: Runtime{ZTPrice: zt, DTPrice: dt},
	}, nil
}

func parseBoolFlag(v string) bool {
	switch strings.TrimSpace(v) {
	case "1", "true", "TRUE", "True":
		return true
	default:
		return false
	}
}
