package service

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// fakePeer минимальный брокер: authorize, ping, ticks, forget, balance.
// Запросы с ключом noreply остаются без ответа.
type fakePeer struct {
	t   *testing.T
	srv *httptest.Server
	up  websocket.Upgrader

	token     string
	dropPings atomic.Bool

	connects  atomic.Int32
	authCalls atomic.Int32
	subSeq    atomic.Int32

	mu       sync.Mutex
	conns    []*peerConn
	received []map[string]any
}

type peerConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peerConn) send(v any) {
	data, _ := sonic.Marshal(v)
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.WriteMessage(websocket.TextMessage, data)
}

func newFakePeer(t *testing.T, token string) *fakePeer {
	p := &fakePeer{t: t, token: token}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePeer) url() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http")
}

func (p *fakePeer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := p.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	pc := &peerConn{conn: conn}
	p.connects.Add(1)
	p.mu.Lock()
	p.conns = append(p.conns, pc)
	p.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			continue
		}
		p.mu.Lock()
		p.received = append(p.received, msg)
		p.mu.Unlock()
		p.reply(pc, msg)
	}
}

func (p *fakePeer) reply(pc *peerConn, msg map[string]any) {
	reqID := msg["req_id"]
	switch {
	case msg["authorize"] != nil:
		p.authCalls.Add(1)
		if msg["authorize"] != p.token {
			pc.send(map[string]any{"req_id": reqID, "msg_type": "authorize",
				"error": map[string]any{"code": "InvalidToken", "message": "The token is invalid."}})
			return
		}
		pc.send(map[string]any{"req_id": reqID, "msg_type": "authorize", "authorize": map[string]any{"loginid": "VRTC1"}})
	case msg["ping"] != nil:
		if p.dropPings.Load() {
			return
		}
		pc.send(map[string]any{"req_id": reqID, "msg_type": "ping", "ping": "pong"})
	case msg["ticks"] != nil:
		id := fmt.Sprintf("sub-%d", p.subSeq.Add(1))
		pc.send(map[string]any{"req_id": reqID, "msg_type": "tick",
			"subscription": map[string]any{"id": id},
			"tick":         map[string]any{"symbol": msg["ticks"], "quote": 100.0, "epoch": 1700000000}})
	case msg["forget"] != nil:
		pc.send(map[string]any{"req_id": reqID, "msg_type": "forget", "forget": 1})
	case msg["balance"] != nil:
		pc.send(map[string]any{"req_id": reqID, "msg_type": "balance", "balance": map[string]any{"balance": 1000.5, "currency": "USD"}})
	case msg["boom"] != nil:
		pc.send(map[string]any{"req_id": reqID, "msg_type": "boom",
			"error": map[string]any{"code": "InputValidationFailed", "message": "bad input"}})
	case msg["noreply"] != nil:
	}
}

// push отправляет кадр в последнее соединение.
func (p *fakePeer) push(frame map[string]any) {
	p.mu.Lock()
	pc := p.conns[len(p.conns)-1]
	p.mu.Unlock()
	pc.send(frame)
}

// sendLate отвечает на уже просроченный req_id.
func (p *fakePeer) sendLate(reqID int64) {
	p.push(map[string]any{"req_id": reqID, "msg_type": "noreply"})
}

// kill рвёт все текущие соединения.
func (p *fakePeer) kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pc := range p.conns {
		_ = pc.conn.Close()
	}
}

func (p *fakePeer) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.received {
		if _, ok := m[key]; ok {
			n++
		}
	}
	return n
}

func (p *fakePeer) last(key string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.received) - 1; i >= 0; i-- {
		if _, ok := p.received[i][key]; ok {
			return p.received[i]
		}
	}
	return nil
}

func testOptions(url, token string) Options {
	return Options{
		URL:               url,
		AppID:             "1089",
		Token:             token,
		RequestTimeout:    time.Second,
		ConnectTimeout:    2 * time.Second,
		HeartbeatInterval: time.Hour,
		PongTimeout:       time.Second,
		BackoffInitial:    10 * time.Millisecond,
		BackoffMax:        50 * time.Millisecond,
	}
}
