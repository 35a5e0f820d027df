// Package appctx defines the borrowed capability set every strategy
// module receives at construction: the trading gateway, the market
// cache, the local order book, and the day's watchlist, plus the
// process-wide stop signal. No module owns any of these; all are
// constructed once by the orchestrator and handed down as borrowed
// pointers the module cannot outlive.
package appctx

import (
	"context"
	"sync/atomic"

	"github.com/wangharden/sell/pkg/config"
	"github.com/wangharden/sell/pkg/gateway"
	"github.com/wangharden/sell/pkg/market"
	"github.com/wangharden/sell/pkg/orderbook"
	"github.com/wangharden/sell/pkg/watchlist"
)

// Context is the composition object passed to every module's
// constructor in place of ad-hoc global state.
type Context struct {
	Gateway   *gateway.Gateway
	Market    *market.Cache
	Book      *orderbook.Book
	Watchlist *watchlist.List
	Config    *config.Config

	stopping atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewContext assembles a Context from its already-constructed parts.
func NewContext(gw *gateway.Gateway, mc *market.Cache, book *orderbook.Book, wl *watchlist.List, cfg *config.Config) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	return &Context{Gateway: gw, Market: mc, Book: book, Watchlist: wl, Config: cfg, ctx: ctx, cancel: cancel}
}

// RequestStop trips the process-wide stop flag and cancels Background.
// Tick loops observe this at their next iteration boundary and exit;
// in-flight broker calls are allowed to finish.
func (c *Context) RequestStop() {
	c.stopping.Store(true)
	c.cancel()
}

// Stopping reports whether RequestStop has been called.
func (c *Context) Stopping() bool {
	return c.stopping.Load()
}

// Background returns the context.Context modules should pass to broker
// calls; it is cancelled the moment RequestStop is called.
func (c *Context) Background() context.Context {
	return c.ctx
}
