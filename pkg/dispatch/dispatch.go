// Package dispatch routes broker order-event callbacks to exactly one
// owning strategy module, by a fixed prefix convention on the order's
// remark field, from a single consumer goroutine so that no module ever
// re-enters the trading gateway from inside a callback.
package dispatch

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/orderbook"
)

// Module names, matched against the corresponding remark prefixes.
const (
	ModuleIntradaySell = "intraday_sell"
	ModuleLimitUpGuard = "limitup_guard"
	ModuleCloseSell    = "close_sell"
	ModuleAuctionSell  = "auction_sell"
)

const (
	prefixIntradaySell = "qh2h_sell_"
	prefixBaseCancel   = "qh2h_base_cancel_"
	prefixCloseSell    = "qh2h_close_"
	prefixAuctionSell  = "qh2h_auction_sell_"
)

// RouteFor returns the module name owning an order event, by remark
// prefix. An externally-observed order (not placed by this process) or
// one with an empty remark always routes to the limit-up guard, which is
// the only module that monitors orders it did not itself submit.
func RouteFor(remark string, isLocal bool) string {
	switch {
	case strings.HasPrefix(remark, prefixAuctionSell):
		return ModuleAuctionSell
	case strings.HasPrefix(remark, prefixIntradaySell):
		return ModuleIntradaySell
	case strings.HasPrefix(remark, prefixBaseCancel):
		return ModuleLimitUpGuard
	case strings.HasPrefix(remark, prefixCloseSell):
		return ModuleCloseSell
	case !isLocal || remark == "":
		return ModuleLimitUpGuard
	default:
		return ""
	}
}

// Handler receives order events the Dispatcher has routed to it. It must
// not block longer than it takes to update local state — never call back
// into the trading gateway from within Handle.
type Handler interface {
	Handle(ev gateway.OrderEvent, order *orderbook.Order)
}

// item is one queued (event, resolved order) pair awaiting dispatch.
type item struct {
	ev    gateway.OrderEvent
	order *orderbook.Order
}

// Dispatcher is the single-consumer router between the trading gateway's
// event callback and the strategy modules' Handle methods.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	queue chan item
	done  chan struct{}
}

// New creates a Dispatcher with a bounded queue of the given capacity
// and starts its consumer goroutine.
func New(queueSize int) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		queue:    make(chan item, queueSize),
		done:     make(chan struct{}),
	}
	go d.consume()
	return d
}

// Register binds a module name to the Handler that owns it.
func (d *Dispatcher) Register(module string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[module] = h
}

// Enqueue is the trading gateway's callback entry point. It never blocks
// beyond pushing into the bounded queue; if the queue is full the event
// is dropped and logged rather than stalling the broker's callback
// thread.
func (d *Dispatcher) Enqueue(ev gateway.OrderEvent, order *orderbook.Order) {
	select {
	case d.queue <- item{ev: ev, order: order}:
	default:
		log.Printf("[Dispatch] queue full, dropping event for system id %s", ev.SystemID)
	}
}

func (d *Dispatcher) consume() {
	for {
		select {
		case it, ok := <-d.queue:
			if !ok {
				return
			}
			d.route(it)
		case <-d.done:
			deadline := time.Now().Add(200 * time.Millisecond)
			for time.Now().Before(deadline) {
				select {
				case it := <-d.queue:
					d.route(it)
				default:
					return
				}
			}
			return
		}
	}
}

func (d *Dispatcher) route(it item) {
	var remark string
	var isLocal bool
	if it.order != nil {
		remark = it.order.Remark
		isLocal = it.order.IsLocal
	}
	module := RouteFor(remark, isLocal)
	if module == "" {
		log.Printf("[Dispatch] no owning module for remark %q (system id %s)", remark, it.ev.SystemID)
		return
	}

	d.mu.RLock()
	h := d.handlers[module]
	d.mu.RUnlock()
	if h == nil {
		log.Printf("[Dispatch] no handler registered for module %q", module)
		return
	}
	h.Handle(it.ev, it.order)
}

// Shutdown drains whatever is already queued with a short deadline and
// stops the consumer goroutine.
func (d *Dispatcher) Shutdown() {
	close(d.done)
}
