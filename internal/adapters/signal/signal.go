package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Tandem/internal/app/orch"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const sendBuffer = 32

type Options struct {
	AllowedOrigins []string
	// AllowAnyOrigin skips the origin check (dev).
	AllowAnyOrigin bool
	ReadLimit      int64
	PingPeriod     time.Duration
	JoinLimit      int
	JoinInterval   time.Duration
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	limiter  *JoinRateLimiter
	upgrader websocket.Upgrader
	opts     Options

	// live counts connections whose disconnect cleanup has not run yet.
	mu       sync.Mutex
	draining bool
	live     sync.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Orch:    o,
		limiter: NewJoinRateLimiter(opts.JoinLimit, opts.JoinInterval),
		opts:    opts,
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || ctl.opts.AllowAnyOrigin {
		return true
	}
	return slices.Contains(ctl.opts.AllowedOrigins, origin)
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if !ctl.track() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}
	id := ctl.Orch.NewConnID()
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendBuffer),
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(id, conn, cancel)

	go ctl.writePump(ctx, id, conn)
	go ctl.readPump(ctx, id, conn, cancel)
}

func (ctl *SignalWSController) track() bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.draining {
		return false
	}
	ctl.live.Add(1)
	return true
}

// Drain refuses new connections and waits until every open one has run its
// disconnect cleanup, or ctx ends. Connections close once the context given
// to HandleSignal is cancelled.
func (ctl *SignalWSController) Drain(ctx context.Context) error {
	ctl.mu.Lock()
	ctl.draining = true
	ctl.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ctl.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Str("module", "signal").Msg("connections drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ctl *SignalWSController) disconnect(id domain.ConnID) {
	defer ctl.live.Done()
	ctl.limiter.Forget(id)
	// the request context is gone by now
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctl.Orch.OnDisconnect(ctx, id)
}
