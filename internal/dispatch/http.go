package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/splintercommunity/transact/internal/tracing"
	"github.com/splintercommunity/transact/internal/workload"
)

const batchesPath = "/batches"

type httpSubmitter struct {
	*group
	client *http.Client
}

func (s *httpSubmitter) Submit(ctx context.Context, batch *workload.Batch) error {
	ctx, span := tracing.StartSubmitSpan(ctx, s.opts.Tracing.Tracer(), "http", s.name, batch.ID(), len(batch.Transactions))
	body := workload.MarshalBatchList(batch)

	var status int
	err := s.policy.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			s.opts.Logger.Debugw("retrying batch", "target", s.name, "batch", batch.ID(), "attempt", attempt)
		}
		return s.failover(func(_ int, addr string) error {
			var err error
			status, err = s.post(ctx, addr, body, batch.ID())
			return err
		})
	})
	tracing.EndSpan(span, err, tracing.AttrStatusCode.Int(status))
	return err
}

func (s *httpSubmitter) post(ctx context.Context, addr string, body []byte, batchID string) (int, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	endpoint := strings.TrimRight(addr, "/") + batchesPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request for %s: %w", addr, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if s.opts.Auth != nil {
		if err := s.opts.Auth.InjectHeader(ctx, req); err != nil {
			return 0, fmt.Errorf("auth provider inject header: %w", err)
		}
	}
	if s.opts.Tracing.ShouldPropagate() {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, &ConnectError{Target: addr, Err: err}
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &SubmitError{
			Target:     addr,
			StatusCode: resp.StatusCode,
			Body:       errorMessage(snippet),
		}
	}
	if link := gjson.GetBytes(snippet, "link"); link.Exists() {
		s.opts.Logger.Debugw("batch accepted", "target", addr, "batch", batchID, "link", link.String())
	}
	return resp.StatusCode, nil
}

// errorMessage prefers the message of a JSON error body over the raw text.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
				return r.String()
			}
		}
	}
	return strings.TrimSpace(string(body))
}

func (s *httpSubmitter) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
