// Package transport wires the engine's market cache and trading gateway
// to a NATS-based broker bridge. Market ticks and order pushes arrive as
// JSON payloads rather than the generated protobuf stubs a full ORS/MD
// gateway binding would use, decoded with gjson so a field the bridge
// adds or renames doesn't require regenerating anything.
package transport

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"

	"github.com/wangharden/sell/pkg/market"
)

// FeedClient subscribes to a NATS market-data bridge and forwards
// decoded ticks and transaction prints into a market.Cache.
type FeedClient struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// DialFeed connects to the NATS bridge at url.
func DialFeed(url string) (*FeedClient, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: connect to NATS feed %s: %w", url, err)
	}
	return &FeedClient{conn: conn}, nil
}

// Close unsubscribes everything and closes the underlying connection.
func (f *FeedClient) Close() {
	for _, sub := range f.subs {
		_ = sub.Unsubscribe()
	}
	f.conn.Close()
}

// SubscribeTicks subscribes subject (typically "md.tick.>") and decodes
// each message into a market.Tick pushed straight into cache.OnTick.
func (f *FeedClient) SubscribeTicks(subject string, cache *market.Cache) error {
	sub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		tick, err := decodeTick(msg.Data)
		if err != nil {
			log.Printf("[transport] drop malformed tick on %s: %v", msg.Subject, err)
			return
		}
		cache.OnTick(tick)
	})
	if err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", subject, err)
	}
	f.subs = append(f.subs, sub)
	return nil
}

// SubscribeTransactions subscribes subject (typically "md.tx.>") and
// decodes each message into a market.Transaction forwarded to
// cache.OnTransaction.
func (f *FeedClient) SubscribeTransactions(subject string, cache *market.Cache) error {
	sub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		tx, err := decodeTransaction(msg.Data)
		if err != nil {
			log.Printf("[transport] drop malformed transaction on %s: %v", msg.Subject, err)
			return
		}
		cache.OnTransaction(tx)
	})
	if err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", subject, err)
	}
	f.subs = append(f.subs, sub)
	return nil
}

func decodeTick(data []byte) (market.Tick, error) {
	if !gjson.ValidBytes(data) {
		return market.Tick{}, fmt.Errorf("invalid json")
	}
	v := gjson.ParseBytes(data)
	var t market.Tick
	t.Symbol = v.Get("symbol").String()
	t.Timestamp = v.Get("timestamp").Int()
	t.Last = v.Get("last").Int()
	t.PreClose = v.Get("pre_close").Int()
	t.Open = v.Get("open").Int()
	t.High = v.Get("high").Int()
	t.Low = v.Get("low").Int()
	t.UpLimit = v.Get("up_limit").Int()
	t.DownLimit = v.Get("down_limit").Int()
	t.Volume = v.Get("volume").Int()
	t.Turnover = v.Get("turnover").Float()
	for i := 0; i < 5; i++ {
		t.BidPrice[i] = v.Get(fmt.Sprintf("bid_price.%d", i)).Int()
		t.BidVol[i] = v.Get(fmt.Sprintf("bid_vol.%d", i)).Int()
		t.AskPrice[i] = v.Get(fmt.Sprintf("ask_price.%d", i)).Int()
		t.AskVol[i] = v.Get(fmt.Sprintf("ask_vol.%d", i)).Int()
	}
	if t.Symbol == "" {
		return market.Tick{}, fmt.Errorf("missing symbol")
	}
	return t, nil
}

func decodeTransaction(data []byte) (market.Transaction, error) {
	if !gjson.ValidBytes(data) {
		return market.Transaction{}, fmt.Errorf("invalid json")
	}
	v := gjson.ParseBytes(data)
	tx := market.Transaction{
		Symbol:       v.Get("symbol").String(),
		Price:        v.Get("price").Float(),
		Volume:       v.Get("volume").Int(),
		Turnover:     v.Get("turnover").Float(),
		Side:         int(v.Get("side").Int()),
		FunctionCode: int(v.Get("function_code").Int()),
	}
	if tx.Symbol == "" {
		return market.Transaction{}, fmt.Errorf("missing symbol")
	}
	return tx, nil
}
