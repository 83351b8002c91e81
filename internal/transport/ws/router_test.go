package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clusterfeed/internal/hub"
	"clusterfeed/internal/market"
	"clusterfeed/internal/protocol"
	"clusterfeed/internal/store"
	"clusterfeed/internal/synth"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	h := hub.New(context.Background(), hub.Config{
		Feed:            synth.NewEngine(synth.Options{Seed: 42}),
		Store:           store.NewMemoryStore(),
		BackfillCount:   10,
		HistoryLimit:    50,
		Depth:           5,
		MaxTickInterval: 20 * time.Millisecond,
	})
	t.Cleanup(h.Close)

	router := NewRouter(h, RouterConfig{
		DefaultKey:   market.StreamKey{Symbol: "BTCUSDT", Interval: "1m"},
		ConnectLimit: 20,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket 连接失败: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil 读取连接直到出现指定类型的帧。
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("等待 %s 时连接读取失败: %v", want, err)
		}
		var env struct {
			Type protocol.MessageType `json:"type"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("消息解析失败: %v", err)
		}
		if env.Type == want {
			return raw
		}
	}
}

func TestConnectPushesInitialSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	raw := readUntil(t, conn, protocol.TypeConnectionStatus)
	var status protocol.ConnectionStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("connection_status 解析失败: %v", err)
	}
	if !status.Data.Connected {
		t.Fatal("connected 应为 true")
	}

	raw = readUntil(t, conn, protocol.TypeHistoricalData)
	var hist protocol.HistoricalData
	if err := json.Unmarshal(raw, &hist); err != nil {
		t.Fatalf("historical_data 解析失败: %v", err)
	}
	if hist.Symbol != "BTCUSDT" || hist.Interval != "1m" {
		t.Fatalf("默认回填应为 BTCUSDT/1m, 实际=%s/%s", hist.Symbol, hist.Interval)
	}
	if len(hist.Data) != 20 {
		t.Fatalf("回填应为 20 根 K 线, 实际=%d", len(hist.Data))
	}
	for i := 1; i < len(hist.Data); i++ {
		if hist.Data[i].Time <= hist.Data[i-1].Time {
			t.Fatalf("回填 K 线应按时间升序, [%d]=%d [%d]=%d",
				i-1, hist.Data[i-1].Time, i, hist.Data[i].Time)
		}
	}

	readUntil(t, conn, protocol.TypeOrderBookUpdate)
}

func TestSubscribeLifecycle(t *testing.T) {
	srv, h := newTestServer(t)
	conn := dial(t, srv)
	readUntil(t, conn, protocol.TypeHistoricalData)

	// symbol 小写, 服务端归一化后按 ETHUSDT_1m 订阅。
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": "ethusdt", "interval": "1m"}); err != nil {
		t.Fatalf("发送 subscribe 失败: %v", err)
	}
	raw := readUntil(t, conn, protocol.TypeSubscriptionStatus)
	var ack protocol.SubscriptionStatus
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("subscription_status 解析失败: %v", err)
	}
	if ack.Symbol != "ETHUSDT" || ack.Interval != "1m" || !ack.Subscribed {
		t.Fatalf("订阅确认不符, 实际=%+v", ack)
	}

	key := market.StreamKey{Symbol: "ETHUSDT", Interval: "1m"}
	if !h.StreamActive(key) {
		t.Fatal("订阅后流应处于活跃状态")
	}

	raw = readUntil(t, conn, protocol.TypeCandleUpdate)
	var update protocol.CandleUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		t.Fatalf("candle_update 解析失败: %v", err)
	}
	if update.Symbol != "ETHUSDT" {
		t.Fatalf("更新应来自订阅的流, 实际=%s", update.Symbol)
	}

	if err := conn.WriteJSON(map[string]string{"type": "unsubscribe", "symbol": "ETHUSDT", "interval": "1m"}); err != nil {
		t.Fatalf("发送 unsubscribe 失败: %v", err)
	}
	for {
		raw = readUntil(t, conn, protocol.TypeSubscriptionStatus)
		if err := json.Unmarshal(raw, &ack); err != nil {
			t.Fatalf("subscription_status 解析失败: %v", err)
		}
		if !ack.Subscribed {
			break
		}
	}
	if h.StreamActive(key) {
		t.Fatal("最后一个订阅者退订后流应停止")
	}
}

func TestInvalidFrameKeepsConnectionOpen(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)
	readUntil(t, conn, protocol.TypeHistoricalData)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("发送非法帧失败: %v", err)
	}
	readUntil(t, conn, protocol.TypeError)

	// 非法 interval 同样只回 error, 不断开。
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": "BTCUSDT", "interval": "2x"}); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	readUntil(t, conn, protocol.TypeError)

	// 连接仍可正常订阅。
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": "BTCUSDT", "interval": "1m"}); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	raw := readUntil(t, conn, protocol.TypeSubscriptionStatus)
	var ack protocol.SubscriptionStatus
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("subscription_status 解析失败: %v", err)
	}
	if !ack.Subscribed {
		t.Fatalf("后续订阅应成功, 实际=%+v", ack)
	}
}

func TestDisconnectCleansUpSubscriptions(t *testing.T) {
	srv, h := newTestServer(t)
	conn := dial(t, srv)
	readUntil(t, conn, protocol.TypeHistoricalData)

	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": "SOLUSDT", "interval": "1m"}); err != nil {
		t.Fatalf("发送 subscribe 失败: %v", err)
	}
	readUntil(t, conn, protocol.TypeSubscriptionStatus)

	key := market.StreamKey{Symbol: "SOLUSDT", Interval: "1m"}
	if !h.StreamActive(key) {
		t.Fatal("订阅后流应处于活跃状态")
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.StreamActive(key) {
		if time.Now().After(deadline) {
			t.Fatal("断连后流应被清理")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
