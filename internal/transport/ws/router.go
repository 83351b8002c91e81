// Package ws exposes the market-data hub over a websocket endpoint: it
// validates inbound frames against the closed message schema, drives the
// subscription registry, and pushes the initial snapshot on connect.
package ws

import (
	"context"
	"net/http"
	"time"

	"clusterfeed/internal/hub"
	"clusterfeed/internal/logger"
	"clusterfeed/internal/market"
	"clusterfeed/internal/protocol"

	"github.com/gorilla/websocket"
)

// RouterConfig tunes the connection handler.
type RouterConfig struct {
	// DefaultKey is the backfill pushed to every new connection, independent
	// of whatever the client subscribes to afterwards.
	DefaultKey market.StreamKey
	// ConnectLimit is the candle count of the on-connect backfill.
	ConnectLimit int
	// SendBuffer sizes each client's outbound frame buffer.
	SendBuffer int
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.DefaultKey.Symbol == "" {
		c.DefaultKey = market.StreamKey{Symbol: "BTCUSDT", Interval: market.DefaultInterval}
	}
	if c.ConnectLimit <= 0 {
		c.ConnectLimit = 200
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 128
	}
	return c
}

// Router upgrades HTTP requests and runs the per-connection protocol loop.
type Router struct {
	hub      *hub.Hub
	cfg      RouterConfig
	upgrader websocket.Upgrader
}

func NewRouter(h *hub.Hub, cfg RouterConfig) *Router {
	return &Router{
		hub: h,
		cfg: cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and serves it until it closes.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warnf("[ws] upgrade failed: %v", err)
		return
	}
	client := newClient(conn, r.cfg.SendBuffer)
	logger.Infof("[ws] client %s connected", client.id)

	go client.writePump()
	r.pushInitial(client)
	r.readLoop(client)

	r.hub.RemoveSubscriber(client)
	client.close()
	logger.Infof("[ws] client %s disconnected", client.id)
}

// pushInitial sends the connection status plus the default backfill and the
// latest order book. This is decoupled from subscriptions by design.
func (r *Router) pushInitial(client *Client) {
	r.reply(client, protocol.NewConnectionStatus(true, "connected to trading stream"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	key := r.cfg.DefaultKey
	candles, book, err := r.hub.HistoricalData(ctx, key, r.cfg.ConnectLimit)
	if err != nil {
		logger.Errorf("[ws] initial snapshot for %s failed: %v", client.id, err)
		r.reply(client, protocol.NewError("failed to load initial data"))
		return
	}
	r.reply(client, protocol.NewHistoricalData(key.Symbol, key.Interval, candles))
	if book != nil {
		r.reply(client, protocol.NewOrderBookUpdate(key.Symbol, *book))
	}
}

// readLoop decodes and dispatches client frames until the connection drops.
// Schema violations produce an error reply; the connection stays open.
func (r *Router) readLoop(client *Client) {
	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeInbound(raw)
		if err != nil {
			logger.Warnf("[ws] invalid frame from %s: %v", client.id, err)
			r.reply(client, protocol.NewError("invalid message format"))
			continue
		}
		r.dispatch(client, msg)
	}
}

func (r *Router) dispatch(client *Client, msg protocol.Inbound) {
	key, err := market.ParseKey(msg.Symbol, msg.Interval)
	if err != nil {
		r.reply(client, protocol.NewError(err.Error()))
		return
	}
	switch msg.Type {
	case protocol.TypeSubscribe:
		r.hub.Subscribe(key, client)
		r.reply(client, protocol.NewSubscriptionStatus(key, true))
	case protocol.TypeUnsubscribe:
		r.hub.Unsubscribe(key, client)
		r.reply(client, protocol.NewSubscriptionStatus(key, false))
	}
}

func (r *Router) reply(client *Client, msg any) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		logger.Errorf("[ws] encode reply failed: %v", err)
		return
	}
	if !client.Send(frame) {
		logger.Warnf("[ws] reply to %s dropped (buffer full)", client.id)
	}
}
