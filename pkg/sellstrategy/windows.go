package sellstrategy

import "sort"

// Window is one intraday sell opportunity: a half-open local-time range
// [Start, End) in HHMMSS, and the fraction of eligible surplus the
// strategy must leave untouched (Keep) rather than offer for sale.
type Window struct {
	Start int
	End   int
	Keep  float64
}

type ratioBucket struct {
	minRatio float64
	windows  []Window
}

type jjamtBucket struct {
	minJJAmt float64
	ratios   []ratioBucket
}

// windowTable is keyed by prior-day condition label (fb, hf, zb, lb).
// Within a condition, buckets are matched by descending jjamt threshold
// first, then descending open/pre_close ratio threshold — the largest
// threshold not exceeding the observed value wins at each level.
var windowTable = map[string][]jjamtBucket{
	"fb": {
		{minJJAmt: 1.5e7, ratios: []ratioBucket{
			{minRatio: 1.04, windows: []Window{{112800, 130200, 0}, {103800, 104200, 0}}},
		}},
		{minJJAmt: 0, ratios: []ratioBucket{
			{minRatio: 1.015, windows: []Window{{93000, 93000, 0}}},
			{minRatio: 0, windows: []Window{{105920, 110040, 0.66}, {142920, 143040, 0.33}, {150000, 150000, 0}}},
		}},
	},
	"hf": {
		{minJJAmt: 2.0e7, ratios: []ratioBucket{
			{minRatio: 1.03, windows: []Window{{112800, 130200, 0}, {104800, 105200, 0}}},
		}},
		{minJJAmt: 0, ratios: []ratioBucket{
			{minRatio: 1.03, windows: []Window{{102900, 103100, 0.5}, {131400, 131600, 0}}},
			{minRatio: 0, windows: []Window{{142900, 143100, 0.5}, {143900, 144100, 0}}},
		}},
	},
	"zb": {
		{minJJAmt: 3e6, ratios: []ratioBucket{
			{minRatio: 1.04, windows: []Window{{93000, 93400, 0}}},
			{minRatio: 1, windows: []Window{{150000, 150000, 0}}},
			{minRatio: 0.97, windows: []Window{{93900, 94100, 0.5}, {112900, 130100, 0}}},
			{minRatio: 0, windows: []Window{{142800, 143200, 0}}},
		}},
		{minJJAmt: 0, ratios: []ratioBucket{
			{minRatio: 1.01, windows: []Window{{93000, 93000, 0}}},
			{minRatio: 0.97, windows: []Window{{105920, 110040, 0.66}, {144420, 144540, 0.33}, {150000, 150000, 0}}},
			{minRatio: 0, windows: []Window{{93030, 93230, 0.5}, {102400, 102600, 0}}},
		}},
	},
	"lb": {
		{minJJAmt: 0, ratios: []ratioBucket{
			{minRatio: 1.07, windows: []Window{{93000, 93000, 0}}},
			{minRatio: 0, windows: []Window{{150000, 150000, 0}}},
		}},
	},
}

func init() {
	for _, buckets := range windowTable {
		sort.Slice(buckets, func(i, j int) bool { return buckets[i].minJJAmt > buckets[j].minJJAmt })
		for _, b := range buckets {
			sort.Slice(b.ratios, func(i, j int) bool { return b.ratios[i].minRatio > b.ratios[j].minRatio })
		}
	}
}

// WindowsFor looks up the ordered sell windows for condition given the
// day's 09:27:00 auction turnover (jjamt) and open/pre_close ratio. It
// returns nil if condition is unrecognized or no jjamt bucket qualifies.
func WindowsFor(condition string, jjamt, openRatio float64) []Window {
	buckets, ok := windowTable[condition]
	if !ok {
		return nil
	}
	for _, b := range buckets {
		if jjamt < b.minJJAmt {
			continue
		}
		for _, r := range b.ratios {
			if openRatio >= r.minRatio {
				return r.windows
			}
		}
		return nil
	}
	return nil
}
