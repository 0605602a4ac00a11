package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// Client side errors
var (
	ErrClosed       = errors.New("signal: connection closed")
	ErrNotConnected = errors.New("signal: not connected")
	ErrSendFull     = errors.New("signal: send buffer full")
)

// EventKind classifies what a signaling transport reports
type EventKind int

const (
	// EventMessage carries a relayed message
	EventMessage EventKind = iota
	// EventConnected fires on the first connect and after every redial
	EventConnected
	// EventDisconnected fires when the socket drops
	EventDisconnected
	// EventReconnecting fires before each redial attempt
	EventReconnecting
	// EventClosed is final: the transport gave up or was closed
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered on a transport's Events channel
type Event struct {
	Kind        EventKind
	Message     Message
	Err         error
	Attempt     int
	MaxAttempts int
}

// ClientOptions configures a dialing Conn
type ClientOptions struct {
	Codec            Codec
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PingPeriod       time.Duration
	// Redial backoff. MaxRetries 0 disables redialing.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int
	Logger          *slog.Logger
}

// DefaultClientOptions mirrors the reconnect behaviour of the sharer UI:
// exponential backoff from 1s capped at 30s, 10 attempts.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Codec:            JSON,
		HandshakeTimeout: 5 * time.Second,
		WriteWait:        10 * time.Second,
		PingPeriod:       30 * time.Second,
		InitialInterval:  time.Second,
		MaxInterval:      30 * time.Second,
		MaxRetries:       10,
	}
}

// Conn is a relay connection that redials when the socket drops
type Conn struct {
	url    string
	opts   ClientOptions
	dialer *websocket.Dialer
	logger *slog.Logger

	events chan Event
	out    chan Message

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	connected bool

	wg sync.WaitGroup
}

// Dial connects to the relay at rawURL (ws:// or wss://, path /ws is added
// when missing). The first dial is synchronous; later redials happen in the
// background and are reported as events.
func Dial(ctx context.Context, rawURL string, opts ClientOptions) (*Conn, error) {
	def := DefaultClientOptions()
	if opts.Codec == nil {
		opts.Codec = def.Codec
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = def.PingPeriod
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = def.MaxInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	u, err := RelayURL(rawURL, opts.Codec)
	if err != nil {
		return nil, err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		url:    u,
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		logger: opts.Logger.With("relay", u),
		events: make(chan Event, 64),
		out:    make(chan Message, 64),
		ctx:    connCtx,
		cancel: cancel,
	}

	ws, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	c.wg.Add(1)
	go c.run(ws)
	return c, nil
}

// RelayURL normalizes a relay address into its websocket endpoint
func RelayURL(rawURL string, codec Codec) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid signal URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid signal URL %q: unsupported scheme", rawURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	if codec != nil && codec != JSON {
		q := u.Query()
		q.Set("codec", codec.Name())
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signal server: %w", err)
	}
	return ws, nil
}

// Events returns the transport's event stream. It is closed after EventClosed.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Send queues msg for the relay. Messages are never held across a redial.
func (c *Conn) Send(msg Message) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	select {
	case c.out <- msg:
		return nil
	default:
		return ErrSendFull
	}
}

// Close stops redialing and shuts the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Conn) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// emit hands an event to the consumer unless the conn is shutting down
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Conn) run(ws *websocket.Conn) {
	defer c.wg.Done()
	defer close(c.events)

	for {
		c.setConnected(true)
		c.emit(Event{Kind: EventConnected})

		err := c.serve(ws)
		c.setConnected(false)
		c.drain()

		if c.ctx.Err() != nil {
			c.emitFinal(Event{Kind: EventClosed, Err: ErrClosed})
			return
		}
		c.logger.Warn("signal connection lost", "err", err)
		c.emit(Event{Kind: EventDisconnected, Err: err})

		ws, err = c.redial()
		if err != nil {
			c.logger.Error("giving up on signal server", "err", err)
			c.emitFinal(Event{Kind: EventClosed, Err: err})
			return
		}
		c.logger.Info("reconnected to signal server")
	}
}

// emitFinal tries to deliver the last event without blocking shutdown
func (c *Conn) emitFinal(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

// drain discards messages queued for a socket that is gone
func (c *Conn) drain() {
	for {
		select {
		case <-c.out:
		default:
			return
		}
	}
}

// redial retries with exponential backoff until connected, cancelled or out
// of attempts
func (c *Conn) redial() (*websocket.Conn, error) {
	if c.opts.MaxRetries <= 0 {
		return nil, fmt.Errorf("connection lost: %w", ErrClosed)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.InitialInterval
	eb.MaxInterval = c.opts.MaxInterval
	eb.MaxElapsedTime = 0

	// The first attempt fires after one interval, like the sharer UI.
	var (
		ws      *websocket.Conn
		attempt int
	)
	timer := time.NewTimer(eb.NextBackOff())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.ctx.Done():
		return nil, ErrClosed
	}

	op := func() error {
		attempt++
		c.emit(Event{Kind: EventReconnecting, Attempt: attempt, MaxAttempts: c.opts.MaxRetries})
		conn, err := c.dial(c.ctx)
		if err != nil {
			return err
		}
		ws = conn
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.opts.MaxRetries-1)), c.ctx)
	if err := backoff.Retry(op, b); err != nil {
		if c.ctx.Err() != nil {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("reconnect failed after %d attempts: %w", attempt, err)
	}
	return ws, nil
}

// serve pumps one socket until it fails or the conn is closed
func (c *Conn) serve(ws *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var msg Message
			if err := c.opts.Codec.Decode(data, &msg); err != nil {
				c.logger.Warn("invalid message from relay", "err", err)
				continue
			}
			c.emit(Event{Kind: EventMessage, Message: msg})
		}
	}()

	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			ws.Close()
			<-readErr
			return ErrClosed
		case err := <-readErr:
			ws.Close()
			return err
		case msg := <-c.out:
			data, err := c.opts.Codec.Encode(msg)
			if err != nil {
				c.logger.Error("failed to encode message", "event", msg.Event, "err", err)
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := ws.WriteMessage(c.opts.Codec.FrameType(), data); err != nil {
				ws.Close()
				<-readErr
				return err
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.Close()
				<-readErr
				return err
			}
		}
	}
}
