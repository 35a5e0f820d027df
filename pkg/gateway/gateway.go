package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wangharden/sell/pkg/orderbook"
)

// task is one closure queued for the worker to run against the session.
type task struct {
	run  func()
	done chan struct{}
}

// Gateway is the single serialized front door onto a broker Session.
// Every exported method enqueues a task and blocks the caller until the
// dedicated worker goroutine has drained it, guaranteeing broker calls
// are totally ordered across every concurrent caller.
type Gateway struct {
	session Session
	queue   chan task
	wg      sync.WaitGroup

	mu       sync.Mutex
	dryRun   bool
	stopping bool
}

// New wires a Gateway around session with a bounded task queue and
// starts its single worker goroutine.
func New(session Session, queueSize int) *Gateway {
	g := &Gateway{
		session: session,
		queue:   make(chan task, queueSize),
	}
	g.wg.Add(1)
	go g.workerLoop()
	return g
}

func (g *Gateway) workerLoop() {
	defer g.wg.Done()
	for t := range g.queue {
		t.run()
		close(t.done)
	}
}

// submit enqueues run and blocks until it has executed. It returns an
// error instead of enqueuing if the gateway is shutting down.
func (g *Gateway) submit(run func()) error {
	g.mu.Lock()
	if g.stopping {
		g.mu.Unlock()
		return fmt.Errorf("gateway: shutting down, refusing new task")
	}
	g.mu.Unlock()

	done := make(chan struct{})
	g.queue <- task{run: run, done: done}
	<-done
	return nil
}

// Shutdown refuses further submissions, drains whatever is already
// queued, and waits for the worker to exit. Pending orders already
// placed with the broker are not force-cancelled.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	g.stopping = true
	g.mu.Unlock()
	close(g.queue)
	g.wg.Wait()
}

// Connect opens the broker session.
func (g *Gateway) Connect(ctx context.Context) error {
	var err error
	subErr := g.submit(func() { err = g.session.Connect(ctx) })
	if subErr != nil {
		return subErr
	}
	return err
}

// Disconnect closes the broker session.
func (g *Gateway) Disconnect() error {
	var err error
	subErr := g.submit(func() { err = g.session.Disconnect() })
	if subErr != nil {
		return subErr
	}
	return err
}

// SetDryRun toggles the sell-to-probe transform for every subsequent
// PlaceOrder call.
func (g *Gateway) SetDryRun(on bool) {
	g.mu.Lock()
	g.dryRun = on
	g.mu.Unlock()
	g.session.SetDryRun(on)
}

// SetOrderCallback registers the consumer for broker push events. The
// gateway itself never calls this from inside PlaceOrder/CancelOrder;
// the callback arrives on whatever thread the session's transport uses
// and must be forwarded to a Dispatcher, never handled inline here.
func (g *Gateway) SetOrderCallback(cb func(OrderEvent)) {
	g.session.SetOrderCallback(cb)
}

// PlaceOrder submits req. In dry-run mode a sell is transformed into a
// far-from-market 100-share buy at the lower limit followed immediately
// by a cancel, so the transform never risks taking on inventory.
func (g *Gateway) PlaceOrder(ctx context.Context, req OrderRequest, lowerLimit float64) (string, error) {
	g.mu.Lock()
	dryRun := g.dryRun
	g.mu.Unlock()

	if dryRun && req.Side == orderbook.SideSell {
		probe := req
		probe.Side = orderbook.SideBuy
		probe.Volume = 100
		probe.IsMarket = false
		if lowerLimit > 0 {
			probe.Price = lowerLimit
		} else {
			probe.Price = req.Price * 0.9
		}

		var localID string
		var err error
		if subErr := g.submit(func() { localID, err = g.session.PlaceOrder(ctx, probe) }); subErr != nil {
			return "", subErr
		}
		if err != nil {
			return "", err
		}
		if cancelErr := g.submit(func() {
			if _, cancelErr := g.session.CancelOrder(ctx, localID); cancelErr != nil {
				log.Printf("[Gateway] dry-run cancel of probe order %s failed: %v", localID, cancelErr)
			}
		}); cancelErr != nil {
			log.Printf("[Gateway] dry-run probe cancel not submitted: %v", cancelErr)
		}
		return localID, nil
	}

	var localID string
	var err error
	if subErr := g.submit(func() { localID, err = g.session.PlaceOrder(ctx, req) }); subErr != nil {
		return "", subErr
	}
	if err != nil {
		// failed submission carries no local id; the caller records the
		// message but no order state transition has happened.
		return "", err
	}
	return localID, nil
}

// CancelOrder requests cancellation of localID. A false return (with no
// error) means the broker did not accept the request; the caller must
// not assume the order is cancelled until a Cancelled event arrives.
func (g *Gateway) CancelOrder(ctx context.Context, localID string) (bool, error) {
	var ok bool
	var err error
	if subErr := g.submit(func() { ok, err = g.session.CancelOrder(ctx, localID) }); subErr != nil {
		return false, subErr
	}
	return ok, err
}

// QueryPositions fetches the current position snapshot.
func (g *Gateway) QueryPositions(ctx context.Context) ([]orderbook.Position, error) {
	var positions []orderbook.Position
	var err error
	if subErr := g.submit(func() { positions, err = g.session.QueryPositions(ctx) }); subErr != nil {
		return nil, subErr
	}
	return positions, err
}

// QueryOrder fetches the current broker-side state of one order.
func (g *Gateway) QueryOrder(ctx context.Context, localID string) (*orderbook.Order, error) {
	var order *orderbook.Order
	var err error
	if subErr := g.submit(func() { order, err = g.session.QueryOrder(ctx, localID) }); subErr != nil {
		return nil, subErr
	}
	return order, err
}

// WaitOrder blocks (up to timeout) for localID to reach a terminal or
// otherwise notable state, as reported by the broker.
func (g *Gateway) WaitOrder(ctx context.Context, localID string, timeout time.Duration) (*orderbook.Order, error) {
	var order *orderbook.Order
	var err error
	if subErr := g.submit(func() { order, err = g.session.WaitOrder(ctx, localID, timeout) }); subErr != nil {
		return nil, subErr
	}
	return order, err
}
