// Package inproc implements a transport for callers living in the same
// process, one Go channel pair per caller.
package inproc

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	"go.uber.org/ratelimit"
)

const (
	// DefaultRequestsPerSecond is the rate limit applied to every channel.
	DefaultRequestsPerSecond = 20

	bufferSize = 32
)

var (
	// ErrNotStarted ...
	ErrNotStarted = errors.New("transport is not started")
	// ErrAlreadyStarted ...
	ErrAlreadyStarted = errors.New("transport is already started")
	// ErrChannelClosed ...
	ErrChannelClosed = errors.New("channel is closed")
)

type transport struct {
	ratePerSecond int

	lock     sync.RWMutex
	handler  ports.RequestHandler
	ctx      context.Context
	cancel   context.CancelFunc
	channels map[*Channel]struct{}
}

// Transport is a ports.Transport that also opens in-process channels.
type Transport interface {
	ports.Transport
	Open(origin string) (*Channel, error)
}

// NewTransport returns a transport limiting every channel to the given
// number of requests per second.
func NewTransport(ratePerSecond int) Transport {
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRequestsPerSecond
	}
	return &transport{
		ratePerSecond: ratePerSecond,
		channels:      make(map[*Channel]struct{}),
	}
}

func (t *transport) Start(handler ports.RequestHandler) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.handler != nil {
		return ErrAlreadyStarted
	}
	t.handler = handler
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return nil
}

func (t *transport) Stop() {
	t.lock.Lock()
	channels := make([]*Channel, 0, len(t.channels))
	for c := range t.channels {
		channels = append(channels, c)
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.handler = nil
	t.lock.Unlock()

	for _, c := range channels {
		c.Close()
	}
}

// Open returns a new channel whose requests are all attributed to origin.
func (t *transport) Open(origin string) (*Channel, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.handler == nil {
		return nil, ErrNotStarted
	}
	if origin == "" {
		return nil, domain.ErrNullOrigin
	}

	c := &Channel{
		origin:    origin,
		transport: t,
		limiter:   ratelimit.New(t.ratePerSecond),
		requests:  make(chan domain.Request, bufferSize),
		responses: make(chan domain.Response, bufferSize),
		events:    make(chan domain.Event, bufferSize),
		done:      make(chan struct{}),
	}
	t.channels[c] = struct{}{}
	go c.serve(t.ctx, t.handler)

	return c, nil
}

func (t *transport) Notify(origin string, event domain.Event) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	for c := range t.channels {
		if c.origin == origin {
			c.push(event)
		}
	}
}

func (t *transport) remove(c *Channel) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.channels, c)
}

// Channel is one caller connection. Requests are delivered to the handler in
// the order they are sent, each handled on its own goroutine, so responses
// may come back in a different order and must be matched by id.
type Channel struct {
	origin    string
	transport *transport
	limiter   ratelimit.Limiter

	requests  chan domain.Request
	responses chan domain.Response
	events    chan domain.Event

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Origin ...
func (c *Channel) Origin() string {
	return c.origin
}

// Send queues a request. The origin of the request is overwritten with the
// one of the channel.
func (c *Channel) Send(req domain.Request) error {
	req.Origin = c.origin
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.requests <- req:
		return nil
	case <-c.done:
		return ErrChannelClosed
	}
}

// Responses returns the channel of responses, closed once the channel is
// closed and every in-flight request is answered.
func (c *Channel) Responses() <-chan domain.Response {
	return c.responses
}

// Events returns the channel of the events pushed to this caller.
func (c *Channel) Events() <-chan domain.Event {
	return c.events
}

// Close stops accepting requests.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.transport.remove(c)
	})
}

func (c *Channel) serve(ctx context.Context, handler ports.RequestHandler) {
	defer func() {
		c.wg.Wait()
		close(c.responses)
	}()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.Close()
			return
		case req := <-c.requests:
			c.limiter.Take()

			c.wg.Add(1)
			go func(req domain.Request) {
				defer c.wg.Done()
				res := handler.Handle(ctx, req)
				select {
				case c.responses <- res:
				case <-ctx.Done():
				}
			}(req)
		}
	}
}

func (c *Channel) push(event domain.Event) {
	select {
	case c.events <- event:
	default:
		log.WithField("origin", c.origin).Warn(
			"event buffer full, dropping event",
		)
	}
}
