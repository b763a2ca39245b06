package server

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/kitchen-buddy/pkg/metrics"
	"github.com/teslashibe/kitchen-buddy/pkg/protocol"
)

// writeWait is how long to wait for a write to complete.
const writeWait = 10 * time.Second

// connTransport adapts a WebSocket connection to voice.Transport.
type connTransport struct {
	conn    *websocket.Conn
	metrics *metrics.Metrics

	mu sync.Mutex
}

// SendEvent writes a JSON event as a text frame.
func (t *connTransport) SendEvent(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return t.write(websocket.TextMessage, data)
}

// SendAudio writes reply audio as a binary frame.
func (t *connTransport) SendAudio(audio []byte) error {
	if err := t.write(websocket.BinaryMessage, audio); err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.RecordAudio("out", len(audio))
	}
	return nil
}

// closeNormal sends a close frame.
func (t *connTransport) closeNormal(reason string) error {
	return t.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

func (t *connTransport) write(messageType int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(messageType, data)
}
