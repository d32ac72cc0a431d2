package wstransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	"go.uber.org/ratelimit"
)

const (
	DefaultPath              = "/ws"
	DefaultRequestsPerSecond = 10

	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	maxMessageSize  = 1 << 20
)

// ErrAlreadyStarted ...
var ErrAlreadyStarted = errors.New("transport is already started")

type Config struct {
	// Address is the host:port to listen on.
	Address string
	// Path is the http path upgraded to websocket. Defaults to /ws.
	Path string
	// TokenSecret is the HS256 secret shared with the relay issuing origin
	// tokens.
	TokenSecret []byte
	// RequestsPerSecond is the rate limit of every connection.
	RequestsPerSecond int
}

func (c Config) validate() error {
	if c.Address == "" {
		return fmt.Errorf("missing listening address")
	}
	if len(c.TokenSecret) <= 0 {
		return fmt.Errorf("missing origin token secret")
	}
	return nil
}

// Transport is a ports.Transport serving protocol envelopes over websocket.
// The origin of a connection is the one attested by the token presented on
// upgrade, never the one written by the caller in the envelope.
type Transport interface {
	ports.Transport
	// Addr returns the listening address once started.
	Addr() net.Addr
}

type transport struct {
	cfg      Config
	upgrader *websocket.Upgrader

	lock     sync.RWMutex
	handler  ports.RequestHandler
	listener net.Listener
	server   *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
	conns    map[*conn]struct{}
}

func NewTransport(cfg Config) (Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	return &transport{
		cfg: cfg,
		upgrader: &websocket.Upgrader{
			// Callers are authenticated by the origin token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}, nil
}

func (t *transport) Start(handler ports.RequestHandler) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.handler != nil {
		return ErrAlreadyStarted
	}
	listener, err := net.Listen("tcp", t.cfg.Address)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.Path, t.serveWS)

	t.handler = handler
	t.listener = listener
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	go func() {
		if err := t.server.Serve(listener); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("websocket transport stopped")
		}
	}()

	log.Infof("websocket transport listening on %s%s", listener.Addr(), t.cfg.Path)
	return nil
}

func (t *transport) Stop() {
	t.lock.Lock()
	server := t.server
	conns := make([]*conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.handler = nil
	t.server = nil
	t.lock.Unlock()

	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop websocket transport")
	}
	// Hijacked connections are not closed by Shutdown.
	for _, c := range conns {
		c.close()
	}
	log.Debug("websocket transport stopped")
}

func (t *transport) Addr() net.Addr {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *transport) Notify(origin string, event domain.Event) {
	for _, c := range t.connections() {
		if c.origin == origin {
			c.writeAsync(event)
		}
	}
}

func (t *transport) connections() []*conn {
	t.lock.RLock()
	defer t.lock.RUnlock()

	conns := make([]*conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	return conns
}

func (t *transport) serveWS(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	origin, err := parseToken(t.cfg.TokenSecret, token)
	if err != nil {
		log.WithError(err).Debug("rejected websocket connection")
		http.Error(w, ErrInvalidToken.Error(), http.StatusUnauthorized)
		return
	}

	t.lock.RLock()
	handler, ctx := t.handler, t.ctx
	t.lock.RUnlock()
	if handler == nil {
		http.Error(w, "transport is stopped", http.StatusServiceUnavailable)
		return
	}

	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &conn{
		ws:      ws,
		origin:  origin,
		limiter: ratelimit.New(t.cfg.RequestsPerSecond),
	}
	t.lock.Lock()
	t.conns[c] = struct{}{}
	t.lock.Unlock()

	log.WithField("origin", origin).Debug("websocket connection opened")

	c.serve(ctx, handler)

	t.lock.Lock()
	delete(t.conns, c)
	t.lock.Unlock()
	c.close()

	log.WithField("origin", origin).Debug("websocket connection closed")
}

type conn struct {
	ws      *websocket.Conn
	origin  string
	limiter ratelimit.Limiter

	writeLock sync.Mutex
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// serve reads envelopes in order until the connection drops. Every request
// is handled on its own goroutine.
func (c *conn) serve(ctx context.Context, handler ports.RequestHandler) {
	defer c.wg.Wait()

	c.ws.SetReadLimit(maxMessageSize)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		req := domain.Request{}
		if err := json.Unmarshal(msg, &req); err != nil {
			c.write(domain.NewErrorResponse(
				"", fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err),
			))
			continue
		}
		req.Origin = c.origin

		c.limiter.Take()

		c.wg.Add(1)
		go func(req domain.Request) {
			defer c.wg.Done()
			c.write(handler.Handle(ctx, req))
		}(req)
	}
}

func (c *conn) write(v interface{}) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	// nolint
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(v); err != nil {
		log.WithError(err).WithField("origin", c.origin).Debug(
			"failed to write to websocket",
		)
	}
}

func (c *conn) writeAsync(v interface{}) {
	go c.write(v)
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.ws.Close()
	})
}
