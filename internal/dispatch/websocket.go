package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/splintercommunity/transact/internal/auth"
	"github.com/splintercommunity/transact/internal/tracing"
	"github.com/splintercommunity/transact/internal/workload"
)

const (
	wsHandshakeTimeout = 30 * time.Second
	wsMaxMessageSize   = 1024 * 1024
)

// wsSubmitter keeps one connection open to the current address of its group.
// Each batch is written as a binary message and answered by a JSON ack such as
// {"link": "..."} or {"error": {"code": 400, "message": "..."}}.
type wsSubmitter struct {
	*group

	mu      sync.Mutex
	conn    *websocket.Conn
	connIdx int
}

func (s *wsSubmitter) Submit(ctx context.Context, batch *workload.Batch) error {
	ctx, span := tracing.StartSubmitSpan(ctx, s.opts.Tracing.Tracer(), "websocket", s.name, batch.ID(), len(batch.Transactions))
	payload := workload.MarshalBatchList(batch)

	var code int
	err := s.policy.Do(ctx, func(int) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var err error
		code, err = s.send(ctx, payload)
		return err
	})
	tracing.EndSpan(span, err, tracing.AttrStatusCode.Int(code))
	return err
}

// send must be called with mu held.
func (s *wsSubmitter) send(ctx context.Context, payload []byte) (int, error) {
	if s.conn == nil {
		if err := s.failover(func(i int, addr string) error {
			conn, err := s.dial(ctx, addr)
			if err != nil {
				return err
			}
			s.conn, s.connIdx = conn, i
			return nil
		}); err != nil {
			return 0, err
		}
	}

	addr := s.addrs[s.connIdx]
	if s.opts.Timeout > 0 {
		deadline := time.Now().Add(s.opts.Timeout)
		_ = s.conn.SetWriteDeadline(deadline)
		_ = s.conn.SetReadDeadline(deadline)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		s.dropConn()
		return 0, &ConnectError{Target: addr, Err: fmt.Errorf("write message: %w", err)}
	}
	_, ack, err := s.conn.ReadMessage()
	if err != nil {
		s.dropConn()
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return 0, &SubmitError{Target: addr, Err: closeErr}
		}
		return 0, &ConnectError{Target: addr, Err: fmt.Errorf("read ack: %w", err)}
	}

	if e := gjson.GetBytes(ack, "error"); e.Exists() {
		code := int(e.Get("code").Int())
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.String()
		}
		return code, &SubmitError{Target: addr, StatusCode: code, Body: msg}
	}
	if link := gjson.GetBytes(ack, "link"); link.Exists() {
		s.opts.Logger.Debugw("batch accepted", "target", addr, "link", link.String())
	}
	return http.StatusOK, nil
}

func (s *wsSubmitter) dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	header, err := auth.Header(ctx, s.opts.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth header: %w", err)
	}
	if s.opts.Tracing.ShouldPropagate() {
		tracing.InjectHTTPHeaders(ctx, header)
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if s.opts.Timeout > 0 && s.opts.Timeout < wsHandshakeTimeout {
		dialer.HandshakeTimeout = s.opts.Timeout
	}

	conn, resp, err := dialer.DialContext(ctx, addr, header)
	if err != nil {
		if resp != nil {
			return nil, &ConnectError{Target: addr, Err: fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)}
		}
		return nil, &ConnectError{Target: addr, Err: fmt.Errorf("websocket dial failed: %w", err)}
	}
	conn.SetReadLimit(wsMaxMessageSize)
	return conn, nil
}

func (s *wsSubmitter) dropConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *wsSubmitter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}

	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)
	closeErr := s.conn.Close()
	s.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}
