// Package protocol defines the wire messages exchanged with clients.
// Every frame is a single JSON object tagged by "type"; the set of kinds is
// closed, so adding one means extending MessageType and the switches below.
package protocol

import (
	"encoding/json"
	"fmt"

	"clusterfeed/internal/market"
)

type MessageType string

const (
	TypeConnectionStatus   MessageType = "connection_status"
	TypeHistoricalData     MessageType = "historical_data"
	TypeCandleUpdate       MessageType = "candle_update"
	TypeOrderBookUpdate    MessageType = "orderbook_update"
	TypeSubscribe          MessageType = "subscribe"
	TypeUnsubscribe        MessageType = "unsubscribe"
	TypeSubscriptionStatus MessageType = "subscription_status"
	TypeError              MessageType = "error"
)

// ConnectionStatus is pushed once right after the websocket upgrade.
type ConnectionStatus struct {
	Type MessageType          `json:"type"`
	Data ConnectionStatusData `json:"data"`
}

type ConnectionStatusData struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// HistoricalData carries a backfill batch of candles.
type HistoricalData struct {
	Type     MessageType     `json:"type"`
	Symbol   string          `json:"symbol,omitempty"`
	Interval string          `json:"interval,omitempty"`
	Data     []market.Candle `json:"data"`
}

// CandleUpdate carries one live candle; the same open bar may be sent
// repeatedly with revised close/high/low/volume/clusters.
type CandleUpdate struct {
	Type     MessageType   `json:"type"`
	Symbol   string        `json:"symbol,omitempty"`
	Interval string        `json:"interval,omitempty"`
	Data     market.Candle `json:"data"`
}

// OrderBookUpdate replaces the client's book wholesale.
type OrderBookUpdate struct {
	Type   MessageType              `json:"type"`
	Symbol string                   `json:"symbol,omitempty"`
	Data   market.OrderBookSnapshot `json:"data"`
}

// SubscriptionStatus acknowledges a subscribe/unsubscribe.
type SubscriptionStatus struct {
	Type       MessageType `json:"type"`
	Symbol     string      `json:"symbol"`
	Interval   string      `json:"interval,omitempty"`
	Subscribed bool        `json:"subscribed"`
}

// ErrorMessage is sent to the offending connection only; the connection
// stays open.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NewConnectionStatus(connected bool, msg string) ConnectionStatus {
	return ConnectionStatus{Type: TypeConnectionStatus, Data: ConnectionStatusData{Connected: connected, Message: msg}}
}

func NewHistoricalData(symbol, interval string, candles []market.Candle) HistoricalData {
	return HistoricalData{Type: TypeHistoricalData, Symbol: symbol, Interval: interval, Data: candles}
}

func NewCandleUpdate(key market.StreamKey, c market.Candle) CandleUpdate {
	return CandleUpdate{Type: TypeCandleUpdate, Symbol: key.Symbol, Interval: key.Interval, Data: c}
}

func NewOrderBookUpdate(symbol string, snap market.OrderBookSnapshot) OrderBookUpdate {
	return OrderBookUpdate{Type: TypeOrderBookUpdate, Symbol: symbol, Data: snap}
}

func NewSubscriptionStatus(key market.StreamKey, subscribed bool) SubscriptionStatus {
	return SubscriptionStatus{Type: TypeSubscriptionStatus, Symbol: key.Symbol, Interval: key.Interval, Subscribed: subscribed}
}

func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

// Inbound is a decoded client request: subscribe or unsubscribe.
type Inbound struct {
	Type     MessageType
	Symbol   string
	Interval string
}

type inboundEnvelope struct {
	Type     MessageType `json:"type"`
	Symbol   string      `json:"symbol"`
	Interval string      `json:"interval"`
}

// DecodeInbound validates a raw client frame against the closed schema.
// Unknown types, server-only types and missing fields are all schema errors.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, fmt.Errorf("malformed message: %w", err)
	}
	switch env.Type {
	case TypeSubscribe, TypeUnsubscribe:
		if env.Symbol == "" {
			return Inbound{}, fmt.Errorf("%s requires a symbol", env.Type)
		}
		return Inbound{Type: env.Type, Symbol: env.Symbol, Interval: env.Interval}, nil
	case TypeConnectionStatus, TypeHistoricalData, TypeCandleUpdate,
		TypeOrderBookUpdate, TypeSubscriptionStatus, TypeError:
		return Inbound{}, fmt.Errorf("message type %q is server-to-client", env.Type)
	default:
		return Inbound{}, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// Encode marshals any outbound message to a wire frame.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
