// SPDX-License-Identifier: MPL-2.0

package testapp

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = time.Second
	maxMessageSize = 8192
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// hub owns the set of chat peers. Only its run goroutine touches peers.
type hub struct {
	register   chan *peer
	unregister chan *peer
	broadcast  chan []byte
	quit       chan struct{}
	done       chan struct{}
}

type peer struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *hub {
	h := &hub{
		register:   make(chan *peer),
		unregister: make(chan *peer),
		broadcast:  make(chan []byte),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *hub) run() {
	defer close(h.done)
	peers := map[*peer]struct{}{}
	drop := func(p *peer) {
		if _, ok := peers[p]; ok {
			delete(peers, p)
			close(p.send)
		}
	}

	for {
		select {
		case p := <-h.register:
			peers[p] = struct{}{}
		case p := <-h.unregister:
			drop(p)
		case msg := <-h.broadcast:
			for p := range peers {
				select {
				case p.send <- msg:
				default:
					// slow peer
					drop(p)
				}
			}
		case <-h.quit:
			for p := range peers {
				drop(p)
			}
			return
		}
	}
}

// close stops the hub and disconnects every peer.
func (h *hub) close() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
	<-h.done
}

func (h *hub) join(p *peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.quit:
		return false
	}
}

func (h *hub) leave(p *peer) {
	select {
	case h.unregister <- p:
	case <-h.quit:
	}
}

func (h *hub) publish(msg []byte) {
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	h := a.chatHub()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.join(p) {
		_ = conn.Close()
		return
	}

	go p.writeLoop()
	p.readLoop(h)
}

// readLoop publishes every text message until the connection fails.
func (p *peer) readLoop(h *hub) {
	defer h.leave(p)

	p.conn.SetReadLimit(maxMessageSize)
	for {
		kind, msg, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage {
			h.publish(msg)
		}
	}
}

// writeLoop drains send until the hub closes it, then closes the socket.
func (p *peer) writeLoop() {
	defer p.conn.Close()

	for msg := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
