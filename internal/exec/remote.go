package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/island"
)

// RemoteConfig locates the sandbox that runs remote islands.
type RemoteConfig struct {
	URL         string // ws:// or wss:// endpoint
	Origin      string
	DialTimeout time.Duration
}

// RemoteTarget delegates activation to a sandbox over a websocket. The
// sandbox answers the Request with a Response, then may keep the socket
// open and push Updates; they are written into the island's signals until
// the island's context is disposed.
type RemoteTarget struct {
	cfg RemoteConfig
	log *zap.Logger
}

func NewRemoteTarget(cfg RemoteConfig, log *zap.Logger) *RemoteTarget {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Origin == "" {
		cfg.Origin = "http://localhost/"
	}
	return &RemoteTarget{cfg: cfg, log: log}
}

func (t *RemoteTarget) Activate(ctx context.Context, el dom.Element, d island.Descriptor, hc island.Context) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	// Until the plan is applied the connection belongs to this call.
	owned := true
	defer func() {
		if owned {
			_ = conn.Close()
		}
	}()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := websocket.JSON.Send(conn, newRequest(d, hc)); err != nil {
		return fmt.Errorf("send activation: %w", err)
	}
	var resp Response
	if err := websocket.JSON.Receive(conn, &resp); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read activation: %w", err)
	}
	if err := resp.err(); err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	closeStream := func() {
		once.Do(func() {
			cancel()
			_ = conn.Close()
		})
	}
	err = hc.Do(ctx, func() error {
		if err := resp.Plan.apply(el, hc.Scope); err != nil {
			return err
		}
		hc.Scope.Adopt(disposeFunc(closeStream))
		return nil
	})
	if err != nil {
		cancel()
		return err
	}
	owned = false
	if !stop() {
		// ctx ended while the plan was applied; the socket is already closed.
		closeStream()
		return ctx.Err()
	}

	t.log.Debug("remote island attached",
		zap.String("island", d.ID),
		zap.String("url", t.cfg.URL),
		zap.Int("bindings", len(resp.Bindings)),
	)
	go t.stream(streamCtx, conn, hc, closeStream)
	return nil
}

func (t *RemoteTarget) dial(ctx context.Context) (*websocket.Conn, error) {
	cfg, err := websocket.NewConfig(t.cfg.URL, t.cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("remote target config: %w", err)
	}
	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()
	conn, err := cfg.DialContext(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("dial remote target: %w", err)
	}
	return conn, nil
}

// stream applies pushed updates until the socket closes.
func (t *RemoteTarget) stream(ctx context.Context, conn *websocket.Conn, hc island.Context, closeStream func()) {
	defer closeStream()
	for {
		var u Update
		if err := websocket.JSON.Receive(conn, &u); err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				hc.Log.Debug("remote stream ended", zap.Error(err))
			}
			return
		}
		err := hc.Do(ctx, func() error {
			sig, ok := hc.Scope.Lookup(u.Signal)
			if !ok {
				return fmt.Errorf("unknown signal %q", u.Signal)
			}
			return sig.Set(u.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			hc.Log.Warn("remote update rejected",
				zap.String("signal", u.Signal),
				zap.Error(err),
			)
		}
	}
}
