package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
)

type wsFrame struct {
	messageType int
	data        []byte
	err         error
}

// wsConn 包装一条 websocket 连接：独立读 goroutine 把帧推入缓冲通道，写操作串行化。
type wsConn struct {
	conn      *websocket.Conn
	url       string
	frames    chan wsFrame
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	writeWait time.Duration
	onPing    func()
}

func dialWS(ctx context.Context, dialer *websocket.Dialer, url string, buffer int, writeWait time.Duration, onPing func()) (*wsConn, error) {
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (http %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	c := &wsConn{
		conn:      conn,
		url:       url,
		frames:    make(chan wsFrame, buffer),
		done:      make(chan struct{}),
		writeWait: writeWait,
		onPing:    onPing,
	}
	conn.SetPingHandler(c.handlePing)
	go c.readLoop()
	return c, nil
}

// handlePing 在读 goroutine 内被调用，回 pong 后继续读下一帧。
func (c *wsConn) handlePing(data string) error {
	if c.onPing != nil {
		c.onPing()
	}
	err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.writeWait))
	if err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil
	}
	return err
}

// readLoop 控制帧（ping/pong/close）由 gorilla 在 ReadMessage 内部循环处理，
// 这里只转发数据帧和终止错误。
func (c *wsConn) readLoop() {
	defer close(c.frames)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case c.frames <- wsFrame{err: err}:
			case <-c.done:
			}
			return
		}
		select {
		case c.frames <- wsFrame{messageType: mt, data: data}:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// close 发送 close 帧并关闭底层连接，可重复调用。
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

// isGracefulClose 对端正常关闭（1000/1001）不算传输故障。
func isGracefulClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
