package debugtransport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketTransport carries framed debugger messages over one websocket
// connection. It is a chain end (Next returns nil): websocket frames are
// already delimited, so no extra framing layer is needed below it.
type WebsocketTransport struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending [][]byte
	err     error
	closed  bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// UpgradeWebsocket upgrades an incoming HTTP request into a debugger
// transport and starts its reader.
func UpgradeWebsocket(w http.ResponseWriter, r *http.Request) (*WebsocketTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	t := &WebsocketTransport{conn: conn}
	go t.readLoop()
	return t, nil
}

// DialWebsocket connects outward to a listening debugger client.
func DialWebsocket(url string) (*WebsocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	t := &WebsocketTransport{conn: conn}
	go t.readLoop()
	return t, nil
}

func (t *WebsocketTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		t.mu.Lock()
		if err != nil {
			if !t.closed {
				t.err = err
			}
			t.mu.Unlock()
			return
		}
		t.pending = append(t.pending, data)
		t.mu.Unlock()
	}
}

func (t *WebsocketTransport) Next() Transport { return nil }

func (t *WebsocketTransport) Send(data []byte) error {
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Receive pops one buffered message; it never blocks, matching the
// cooperative poll model of the rendezvous loop.
func (t *WebsocketTransport) Receive() ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 {
		data := t.pending[0]
		t.pending = t.pending[1:]
		return data, true, nil
	}
	return nil, false, t.err
}

func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
