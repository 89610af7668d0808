package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"takahome/client/chat/domain"
	commonlog "takahome/common/log"
)

const (
	DefaultNamespace     = "/chat"
	wsWriteTimeout       = 5 * time.Second
	wsHandshakeTimeout   = 10 * time.Second
	wsPongWait           = 60 * time.Second
	wsPingInterval       = 25 * time.Second
	wsMaxInboundFrameLen = 1 << 20
)

var errTransportClosed = errors.New("chat transport closed")

type WSOptions struct {
	BaseURL   string
	Namespace string
	Reconnect ReconnectPolicy
	Dialer    *websocket.Dialer
}

// WSTransport speaks the chat namespace over a gorilla websocket using JSON
// frames {"event": ..., "data": ...}.
type WSTransport struct {
	url    string
	policy ReconnectPolicy
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	opened bool
	closed bool

	writeMu sync.Mutex
}

func NewWSTransport(opts WSOptions) (*WSTransport, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	target, err := SocketURL(opts.BaseURL, namespace)
	if err != nil {
		return nil, err
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout, Proxy: http.ProxyFromEnvironment}
	}
	return &WSTransport{url: target, policy: opts.Reconnect, dialer: dialer}, nil
}

// WSTransportFactory builds a fresh transport per session manager Connect.
func WSTransportFactory(opts WSOptions) TransportFactory {
	return func() (Transport, error) {
		return NewWSTransport(opts)
	}
}

// SocketURL derives the websocket URL of a namespace from the REST base URL:
// a trailing /api is dropped and http(s) becomes ws(s).
func SocketURL(baseURL, namespace string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("base url has no host")
	}
	path := strings.TrimRight(u.Path, "/")
	path = strings.TrimSuffix(path, "/api")
	if namespace != "" && !strings.HasPrefix(namespace, "/") {
		namespace = "/" + namespace
	}
	u.Path = path + namespace
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func (t *WSTransport) URL() string {
	return t.url
}

func (t *WSTransport) Open(ctx context.Context, token string, events TransportEvents) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	if t.opened {
		return errors.New("chat transport already opened")
	}
	t.opened = true
	// The connection outlives the Connect call; only Close stops it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	go t.run(runCtx, token, events)
	return nil
}

func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *WSTransport) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(domain.Frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel := t.cancel
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
	t.writeMu.Unlock()
	return conn.Close()
}

func (t *WSTransport) run(ctx context.Context, token string, events TransportEvents) {
	attempt := 0
	for {
		conn, err := t.dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			events.OnConnectError(err)
			if !t.policy.Enabled {
				events.OnDrop(err, false)
				return
			}
		} else {
			attempt = 0
			if !t.setConn(conn) {
				_ = conn.Close()
				return
			}
			events.OnOpen()
			readErr := t.readLoop(ctx, conn, events)
			t.clearConn(conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			reconnecting := t.policy.Enabled && t.policy.Attempts > 0
			events.OnDrop(readErr, reconnecting)
			if !reconnecting {
				return
			}
		}

		attempt++
		if attempt > t.policy.Attempts {
			commonlog.Warnf("event=chat_transport action=reconnect status=exhausted attempts=%d url=%s", t.policy.Attempts, t.url)
			events.OnDrop(ErrReconnectExhausted, false)
			return
		}
		wait := t.policy.Backoff(attempt)
		commonlog.Infof("event=chat_transport action=reconnect status=scheduled attempt=%d delay_ms=%d", attempt, wait.Milliseconds())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *WSTransport) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	target := t.url
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
		target += "?token=" + url.QueryEscape(token)
	}
	startedAt := time.Now()
	conn, resp, err := t.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", t.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	commonlog.Infof("event=chat_transport action=dial status=ok url=%s latency_ms=%d", t.url, time.Since(startedAt).Milliseconds())
	return conn, nil
}

func (t *WSTransport) setConn(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conn = conn
	return true
}

func (t *WSTransport) clearConn(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == conn {
		t.conn = nil
	}
}

func (t *WSTransport) readLoop(ctx context.Context, conn *websocket.Conn, events TransportEvents) error {
	conn.SetReadLimit(wsMaxInboundFrameLen)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go t.pingLoop(conn, stopPing)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		var frame domain.Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			commonlog.Debugf("event=chat_transport action=read status=invalid_frame bytes=%d", len(raw))
			continue
		}
		events.OnEvent(frame.Event, frame.Data)
	}
}

func (t *WSTransport) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
