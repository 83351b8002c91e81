// feedtap is a terminal subscriber: it connects to a clusterfeed server,
// subscribes to one stream and prints what arrives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"clusterfeed/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8000/ws", "server websocket URL")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to subscribe")
	interval := flag.String("interval", "1m", "candle interval")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *url, err)
		os.Exit(1)
	}
	defer conn.Close()

	sub := map[string]string{"type": "subscribe", "symbol": *symbol, "interval": *interval}
	if err := conn.WriteJSON(sub); err != nil {
		fmt.Fprintf(os.Stderr, "subscribe: %v\n", err)
		os.Exit(1)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		os.Exit(0)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "read: %v\n", err)
			return
		}
		render(raw)
	}
}

func render(raw []byte) {
	var env struct {
		Type protocol.MessageType `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	switch env.Type {
	case protocol.TypeConnectionStatus:
		fmt.Println("connected")
	case protocol.TypeHistoricalData:
		var msg protocol.HistoricalData
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		renderHistory(msg)
	case protocol.TypeCandleUpdate:
		var msg protocol.CandleUpdate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		c := msg.Data
		fmt.Printf("%s %s  o=%.2f h=%.2f l=%.2f c=%.2f vol=%.1f delta=%+.1f clusters=%d\n",
			msg.Symbol, msg.Interval, c.Open, c.High, c.Low, c.Close, c.Volume, c.Delta, len(c.Clusters))
	case protocol.TypeOrderBookUpdate:
		var msg protocol.OrderBookUpdate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		if len(msg.Data.Bids) > 0 && len(msg.Data.Asks) > 0 {
			fmt.Printf("%s book  bid=%.2f ask=%.2f (%d levels)\n",
				msg.Symbol, msg.Data.Bids[0].Price, msg.Data.Asks[0].Price, len(msg.Data.Bids))
		}
	case protocol.TypeSubscriptionStatus:
		var msg protocol.SubscriptionStatus
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		fmt.Printf("subscription %s_%s: %v\n", msg.Symbol, msg.Interval, msg.Subscribed)
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "server error: %s\n", msg.Message)
	}
}

// renderHistory prints the tail of the backfill as a table.
func renderHistory(msg protocol.HistoricalData) {
	const tail = 10
	candles := msg.Data
	if len(candles) > tail {
		candles = candles[len(candles)-tail:]
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("%s %s, last %d of %d candles", msg.Symbol, msg.Interval, len(candles), len(msg.Data))
	t.AppendHeader(table.Row{"time", "open", "high", "low", "close", "volume", "delta", "top cluster"})
	for _, c := range candles {
		top := "-"
		if len(c.Clusters) > 0 {
			top = fmt.Sprintf("%.2f (%.0f)", c.Clusters[0].Price, c.Clusters[0].Volume)
		}
		t.AppendRow(table.Row{
			c.Time,
			fmt.Sprintf("%.2f", c.Open),
			fmt.Sprintf("%.2f", c.High),
			fmt.Sprintf("%.2f", c.Low),
			fmt.Sprintf("%.2f", c.Close),
			fmt.Sprintf("%.1f", c.Volume),
			fmt.Sprintf("%+.1f", c.Delta),
			top,
		})
	}
	t.Render()
}
