// Package hub owns the subscription registry and the per-stream schedulers.
// One Hub instance holds every shared map behind a single mutex; timer
// start/stop is applied in the same critical section as the subscriber-count
// transition, so a stream that went inactive can never deliver another tick.
package hub

import (
	"context"
	"sync"
	"time"

	"clusterfeed/internal/logger"
	"clusterfeed/internal/market"
	"clusterfeed/internal/protocol"
	"clusterfeed/internal/store"
)

// Subscriber is one connected client as seen by the hub: an opaque,
// comparable handle with a non-blocking delivery method. Send reports false
// when the frame was dropped (slow consumer); the subscriber is kept.
type Subscriber interface {
	ID() string
	Send(frame []byte) bool
}

// Config wires the hub's collaborators and tuning knobs.
type Config struct {
	Feed  market.Feed
	Store store.Store

	// BackfillCount is the number of candles generated and persisted when a
	// stream goes active.
	BackfillCount int
	// HistoryLimit caps Candles reads for the HTTP/connect path.
	HistoryLimit int
	// Depth is the order-book depth broadcast on every tick.
	Depth int
	// MaxTickInterval caps the scheduler period: slow streams still emit
	// in-progress updates this often.
	MaxTickInterval time.Duration
	// PersistTimeout bounds each best-effort gateway call.
	PersistTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BackfillCount <= 0 {
		c.BackfillCount = 50
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 200
	}
	if c.Depth <= 0 {
		c.Depth = 20
	}
	if c.MaxTickInterval <= 0 {
		c.MaxTickInterval = 3 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 2 * time.Second
	}
	return c
}

type stream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Hub is the coordinating component: subscriber sets and scheduler handles
// per StreamKey, all guarded by one mutex.
type Hub struct {
	cfg Config

	mu      sync.Mutex
	subs    map[market.StreamKey]map[Subscriber]struct{}
	streams map[market.StreamKey]*stream

	baseCtx context.Context
}

func New(ctx context.Context, cfg Config) *Hub {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Hub{
		cfg:     cfg.withDefaults(),
		subs:    make(map[market.StreamKey]map[Subscriber]struct{}),
		streams: make(map[market.StreamKey]*stream),
		baseCtx: ctx,
	}
}

// Subscribe registers sub under key. Subscribing twice to the same key is a
// no-op. The first subscriber for a key starts its scheduler: a one-time
// persisted backfill followed by a periodic tick.
func (h *Hub) Subscribe(key market.StreamKey, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[key]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.subs[key] = set
	}
	if _, dup := set[sub]; dup {
		return
	}
	set[sub] = struct{}{}
	logger.Infof("[hub] %s subscribed to %s (%d subscriber(s))", sub.ID(), key, len(set))

	if len(set) == 1 {
		h.startStreamLocked(key)
	}
}

// Unsubscribe removes sub from key; removing an absent handle is a no-op.
// The last removal stops the scheduler in the same critical section.
func (h *Hub) Unsubscribe(key market.StreamKey, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(key, sub)
}

// RemoveSubscriber drops sub from every key it is registered under,
// evaluating the stop condition per key. Called on disconnect.
func (h *Hub) RemoveSubscriber(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, set := range h.subs {
		if _, ok := set[sub]; ok {
			h.unsubscribeLocked(key, sub)
		}
	}
}

func (h *Hub) unsubscribeLocked(key market.StreamKey, sub Subscriber) {
	set, ok := h.subs[key]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	logger.Infof("[hub] %s unsubscribed from %s (%d left)", sub.ID(), key, len(set))
	if len(set) == 0 {
		delete(h.subs, key)
		h.stopStreamLocked(key)
	}
}

// StreamActive reports whether key currently has a running scheduler.
func (h *Hub) StreamActive(key market.StreamKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.streams[key]
	return ok
}

// Close cancels every running scheduler and waits for them to drain.
func (h *Hub) Close() {
	h.mu.Lock()
	streams := make([]*stream, 0, len(h.streams))
	for key, st := range h.streams {
		st.cancel()
		streams = append(streams, st)
		delete(h.streams, key)
	}
	h.subs = make(map[market.StreamKey]map[Subscriber]struct{})
	h.mu.Unlock()
	for _, st := range streams {
		<-st.done
	}
}

// startStreamLocked launches the scheduler goroutine for key. Caller holds h.mu.
func (h *Hub) startStreamLocked(key market.StreamKey) {
	if _, running := h.streams[key]; running {
		return
	}
	ctx, cancel := context.WithCancel(h.baseCtx)
	st := &stream{cancel: cancel, done: make(chan struct{})}
	h.streams[key] = st
	go h.run(ctx, key, st)
	logger.Infof("[hub] stream %s started", key)
}

// stopStreamLocked cancels key's scheduler. Caller holds h.mu; the subscriber
// set is already empty, so an in-flight tick fans out to nobody.
func (h *Hub) stopStreamLocked(key market.StreamKey) {
	st, ok := h.streams[key]
	if !ok {
		return
	}
	st.cancel()
	delete(h.streams, key)
	logger.Infof("[hub] stream %s stopped", key)
}

// run is the per-key scheduler: one persisted backfill, then ticks at
// min(interval, MaxTickInterval) until cancelled.
func (h *Hub) run(ctx context.Context, key market.StreamKey, st *stream) {
	defer close(st.done)

	h.backfill(ctx, key)

	period := market.IntervalDuration(key.Interval)
	if period > h.cfg.MaxTickInterval {
		period = h.cfg.MaxTickInterval
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx, key)
		}
	}
}

// backfill seeds the store with historical candles when a stream goes active.
// It does not broadcast: the requesting client already received its snapshot
// through the connect path.
func (h *Hub) backfill(ctx context.Context, key market.StreamKey) {
	candles, err := h.cfg.Feed.History(ctx, key.Symbol, key.Interval, h.cfg.BackfillCount)
	if err != nil {
		logger.Warnf("[hub] backfill %s failed: %v", key, err)
		return
	}
	for _, c := range candles {
		h.persistCandle(ctx, key, c)
	}
}

// tick advances the stream one step: synthesize, persist best-effort, fan out.
// Any failure is logged and the next tick proceeds normally.
func (h *Hub) tick(ctx context.Context, key market.StreamKey) {
	candle, err := h.cfg.Feed.Next(ctx, key.Symbol, key.Interval)
	if err != nil {
		logger.Errorf("[hub] tick %s: next candle failed: %v", key, err)
		return
	}
	book, err := h.cfg.Feed.OrderBook(ctx, key.Symbol, h.cfg.Depth)
	if err != nil {
		logger.Errorf("[hub] tick %s: order book failed: %v", key, err)
		return
	}

	// Persistence is best-effort relative to live distribution: a gateway
	// failure is logged and the broadcast still goes out from memory.
	h.persistCandle(ctx, key, candle)
	h.persistOrderBook(ctx, key.Symbol, book)

	h.broadcast(key, protocol.NewCandleUpdate(key, candle))
	h.broadcast(key, protocol.NewOrderBookUpdate(key.Symbol, book))
}

func (h *Hub) persistCandle(ctx context.Context, key market.StreamKey, c market.Candle) {
	pctx, cancel := context.WithTimeout(ctx, h.cfg.PersistTimeout)
	defer cancel()
	if err := h.cfg.Store.UpsertCandle(pctx, key.Symbol, key.Interval, c); err != nil {
		logger.Warnf("[hub] persist candle %s failed: %v", key, err)
	}
}

func (h *Hub) persistOrderBook(ctx context.Context, symbol string, snap market.OrderBookSnapshot) {
	pctx, cancel := context.WithTimeout(ctx, h.cfg.PersistTimeout)
	defer cancel()
	if err := h.cfg.Store.PutOrderBook(pctx, symbol, snap); err != nil {
		logger.Warnf("[hub] persist order book %s failed: %v", symbol, err)
	}
}

// broadcast serializes msg once and hands it to every subscriber currently
// registered for key. An empty set (tick racing a final unsubscribe) is a
// guarded no-op. A full client buffer drops the frame for that client only.
func (h *Hub) broadcast(key market.StreamKey, msg any) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		logger.Errorf("[hub] encode %s event failed: %v", key, err)
		return
	}

	h.mu.Lock()
	set := h.subs[key]
	targets := make([]Subscriber, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		if !sub.Send(frame) {
			logger.Warnf("[hub] dropped %s frame for slow subscriber %s", key, sub.ID())
		}
	}
}

// HistoricalData serves the connect/HTTP retrieval path: candles from the
// store when present, otherwise generated on demand and persisted, plus the
// latest known order book.
func (h *Hub) HistoricalData(ctx context.Context, key market.StreamKey, limit int) ([]market.Candle, *market.OrderBookSnapshot, error) {
	if limit <= 0 || limit > h.cfg.HistoryLimit {
		limit = h.cfg.HistoryLimit
	}
	candles, err := h.cfg.Store.Candles(ctx, key.Symbol, key.Interval, limit)
	if err != nil {
		logger.Warnf("[hub] store read %s failed: %v", key, err)
	}
	if len(candles) == 0 {
		candles, err = h.cfg.Feed.History(ctx, key.Symbol, key.Interval, limit)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range candles {
			h.persistCandle(ctx, key, c)
		}
	}

	book, ok, err := h.cfg.Store.LatestOrderBook(ctx, key.Symbol)
	if err != nil {
		logger.Warnf("[hub] order book read %s failed: %v", key.Symbol, err)
		err = nil
	}
	if !ok {
		snap, ferr := h.cfg.Feed.OrderBook(ctx, key.Symbol, h.cfg.Depth)
		if ferr != nil {
			return candles, nil, nil
		}
		h.persistOrderBook(ctx, key.Symbol, snap)
		return candles, &snap, nil
	}
	return candles, &book, nil
}
