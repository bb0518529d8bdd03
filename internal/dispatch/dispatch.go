// Package dispatch submits encoded batches to targets.
//
// A target is a failover group of addresses. Submitters try the address that
// last succeeded first and move on when an address cannot be reached. http and
// https addresses receive a POST of the encoded batch list on /batches; ws and
// wss addresses receive the same bytes as a binary message and answer with a
// JSON acknowledgement.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/splintercommunity/transact/internal/auth"
	"github.com/splintercommunity/transact/internal/tracing"
	"github.com/splintercommunity/transact/internal/workload"
)

const (
	maxLoggedBodyBytes = 1024
	defaultBaseDelay   = 100 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// Submitter delivers batches to one target.
type Submitter interface {
	Submit(ctx context.Context, batch *workload.Batch) error
	Close() error
}

// Options configure a Submitter. Zero values are usable.
type Options struct {
	// Client is used for http targets. NewHTTPClient(Timeout) when nil.
	Client *http.Client
	// Timeout bounds one submission attempt.
	Timeout time.Duration
	Auth    auth.Provider
	// Retries is the number of extra attempts after a connection failure or a
	// 429/5xx response.
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter seeds retry jitter. A time-seeded source is used when nil.
	Jitter  *rand.Rand
	Tracing *tracing.Provider
	Logger  *zap.SugaredLogger
}

// SubmitError is a batch the target answered with an error status.
type SubmitError struct {
	Target     string
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("target %s rejected batch: %v", e.Target, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("target %s rejected batch: status %d", e.Target, e.StatusCode)
	}
	return fmt.Sprintf("target %s rejected batch: status %d: %s", e.Target, e.StatusCode, e.Body)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ConnectError means no address of the group could be reached.
type ConnectError struct {
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("unable to connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// New builds the submitter for a failover group. All addresses of a group must
// use the same transport.
func New(group []string, opts Options) (Submitter, error) {
	if len(group) == 0 {
		return nil, errors.New("dispatch: target group is empty")
	}
	var websocket bool
	for i, addr := range group {
		u, err := url.Parse(addr)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("dispatch: invalid target address %q", addr)
		}
		ws := false
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
		case "ws", "wss":
			ws = true
		default:
			return nil, fmt.Errorf("dispatch: unsupported scheme %q in %q", u.Scheme, addr)
		}
		if i == 0 {
			websocket = ws
		} else if ws != websocket {
			return nil, fmt.Errorf("dispatch: target group %q mixes http and websocket addresses", strings.Join(group, ";"))
		}
	}

	opts = opts.withDefaults()
	base := newGroup(group, opts)
	if websocket {
		return &wsSubmitter{group: base}, nil
	}
	return &httpSubmitter{group: base, client: opts.Client}, nil
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = NewHTTPClient(o.Timeout)
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// group holds the failover state shared by both transports.
type group struct {
	addrs  []string
	name   string
	opts   Options
	policy RetryPolicy

	mu      sync.Mutex
	current int
}

func newGroup(addrs []string, opts Options) *group {
	return &group{
		addrs:  append([]string(nil), addrs...),
		name:   strings.Join(addrs, ";"),
		opts:   opts,
		policy: NewRetryPolicy(opts.Retries, opts.BaseDelay, opts.MaxDelay, opts.Jitter),
	}
}

// order returns the addresses starting with the last one that worked.
func (g *group) order() []int {
	g.mu.Lock()
	start := g.current
	g.mu.Unlock()
	idx := make([]int, len(g.addrs))
	for i := range idx {
		idx[i] = (start + i) % len(g.addrs)
	}
	return idx
}

func (g *group) markGood(i int) {
	g.mu.Lock()
	g.current = i
	g.mu.Unlock()
}

// failover calls try for each address in order until one is reachable. A
// ConnectError from try moves on; any other result is returned as is.
func (g *group) failover(try func(i int, addr string) error) error {
	var errs []error
	for _, i := range g.order() {
		err := try(i, g.addrs[i])
		var cerr *ConnectError
		if !errors.As(err, &cerr) {
			if err == nil || isRejection(err) {
				g.markGood(i)
			}
			return err
		}
		g.opts.Logger.Debugw("target address unreachable", "address", g.addrs[i], "error", cerr.Err)
		errs = append(errs, cerr.Err)
	}
	return &ConnectError{Target: g.name, Err: errors.Join(errs...)}
}

func isRejection(err error) bool {
	var serr *SubmitError
	return errors.As(err, &serr)
}
