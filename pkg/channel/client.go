// Package channel 与 Monitor 之间的远程命令通道（websocket）。
//
// Monitor 推送 {event, id, payload}；event 为 moduleManager 时 payload 交给分发器，
// 方法返回后以 {event:"ack", id, data|error} 回复。
package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/monitor-client/pkg/dispatch"
)

const (
	AckEvent       = "ack"
	writeTimeout   = 10 * time.Second
	defaultBackoff = 5 * time.Second
)

// Envelope 入站消息
type Envelope struct {
	Event   string          `json:"event"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckEnvelope 出站回复
type AckEnvelope struct {
	Event string `json:"event"`
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Dispatcher 命令分发
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd dispatch.Command, reply dispatch.Reply) bool
}

// Options 通道参数
type Options struct {
	URL     string
	Token   string
	Backoff time.Duration // 断线重连间隔
	Logger  *zap.Logger
}

// Client 命令通道客户端
type Client struct {
	opts       Options
	dispatcher Dispatcher
	dialer     *websocket.Dialer
}

func NewClient(dispatcher Dispatcher, opts Options) *Client {
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{opts: opts, dispatcher: dispatcher, dialer: websocket.DefaultDialer}
}

// Run 保持连接直到 ctx 取消；连接断开后按固定间隔重连
func (c *Client) Run(ctx context.Context) {
	log := c.opts.Logger.With(zap.String("url", c.opts.URL))
	for {
		conn, _, err := c.dial(ctx)
		if err != nil {
			log.Warn("command channel dial failed", zap.Error(err))
		} else {
			log.Info("command channel connected")
			err = c.serve(ctx, conn)
			if ctx.Err() == nil {
				log.Warn("command channel disconnected", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			log.Info("command channel stopped")
			return
		case <-time.After(c.opts.Backoff):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	header.Set("clienttoken", c.opts.Token)
	return c.dialer.DialContext(ctx, c.opts.URL, header)
}

// conn 的写操作需要串行
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *zap.Logger
}

func (s *session) ack(id string, result any, err error) {
	msg := AckEnvelope{Event: AckEvent, ID: id, Data: result}
	if err != nil {
		msg.Error = err.Error()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if werr := s.conn.WriteJSON(msg); werr != nil {
		s.logger.Debug("write ack failed", zap.String("id", id), zap.Error(werr))
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	s := &session{conn: conn, logger: c.opts.Logger}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			s.writeMu.Unlock()
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.opts.Logger.Warn("malformed command envelope", zap.Error(err))
			continue
		}
		if env.Event != dispatch.EventName {
			continue
		}
		var cmd dispatch.Command
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			c.opts.Logger.Warn("malformed command payload", zap.String("id", env.ID), zap.Error(err))
			continue
		}
		id := env.ID
		c.dispatcher.Dispatch(ctx, cmd, func(result any, err error) {
			s.ack(id, result, err)
		})
	}
}
