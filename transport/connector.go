// Package transport owns the single outbound websocket connection to the
// device-control host. The connection is not recoverable: the host manages
// the plugin's lifecycle and relaunches the process itself, so any loss of
// the socket moves the connector into a terminal state and the hosting entry
// point translates that into a process exit.
package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/formdeck/formdeck/internal/errors"
)

const defaultConnectTimeout = 10 * time.Second

// State is the connector's lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateTerminated
)

// Handler receives every inbound frame, pre-parse, in arrival order.
type Handler func(raw []byte)

// Connector dials ws://127.0.0.1:<port>, performs the registration
// handshake, and pumps inbound frames to a single handler.
type Connector struct {
	port          string
	identity      string
	registerEvent string
	info          json.RawMessage

	dialer         *websocket.Dialer
	connectTimeout time.Duration
	log            zerolog.Logger
	handler        Handler
	onTerminate    func()

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	exitCode int
	done     chan struct{}

	writeMu sync.Mutex
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the connector's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Connector) {
		c.log = logger
	}
}

// WithConnectTimeout overrides the fixed 10s connect timeout (tests only).
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Connector) {
		c.connectTimeout = d
	}
}

// WithTerminateHook registers a function invoked once when the host closes
// the connection, before Done is closed. Used to latch the safe log writer:
// after a host-initiated close the log pipe may be gone and writes to it
// raise broken-pipe errors.
func WithTerminateHook(hook func()) Option {
	return func(c *Connector) {
		c.onTerminate = hook
	}
}

// New creates a connector for the given registration handshake parameters.
func New(port, identity, registerEvent string, info json.RawMessage, options ...Option) (*Connector, error) {
	if port == "" {
		return nil, fmt.Errorf("[transport.New] port is required")
	}
	if identity == "" {
		return nil, fmt.Errorf("[transport.New] identity is required")
	}
	if registerEvent == "" {
		return nil, fmt.Errorf("[transport.New] registerEvent is required")
	}

	c := &Connector{
		port:           port,
		identity:       identity,
		registerEvent:  registerEvent,
		info:           info,
		connectTimeout: defaultConnectTimeout,
		log:            zerolog.Nop(),
		state:          StateConnecting,
		done:           make(chan struct{}),
	}

	for _, opt := range options {
		opt(c)
	}

	c.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.connectTimeout,
	}

	return c, nil
}

// OnMessage sets the inbound frame handler. Must be called before Connect.
func (c *Connector) OnMessage(handler Handler) {
	c.handler = handler
}

// Connect opens the socket, sends the registration frame and starts the read
// loop. A dial failure (including the connect timeout) moves the connector
// straight to Terminated with a non-zero exit code; there is no retry.
func (c *Connector) Connect() error {
	endpoint := fmt.Sprintf("ws://127.0.0.1:%s", c.port)

	conn, _, err := c.dialer.Dial(endpoint, nil)
	if err != nil {
		c.terminate(1)
		return errors.Wrapf(errors.ErrConnectTimeout, "[Connect] dial %s failed (%v)", endpoint, err)
	}

	registration := map[string]any{
		"event": c.registerEvent,
		"uuid":  c.identity,
	}
	payload, err := json.Marshal(registration)
	if err != nil {
		conn.Close()
		c.terminate(1)
		return errors.Wrapf(err, "[Connect] marshal registration frame")
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		c.terminate(1)
		return errors.Wrapf(err, "[Connect] send registration frame")
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.log.Info().Str("port", c.port).Str("uuid", c.identity).Msg("connected to host")

	go c.readLoop(conn)
	return nil
}

// readLoop delivers frames one at a time in arrival order. Registry and
// router state is only ever touched from this goroutine.
func (c *Connector) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if isClosure(err) {
				// Host closed the connection. Terminate silently: the
				// host's log pipe may already be gone.
				c.terminate(0)
			} else {
				c.terminate(1)
			}
			return
		}
		if c.handler != nil {
			c.handler(raw)
		}
	}
}

func isClosure(err error) bool {
	if _, ok := err.(*websocket.CloseError); ok {
		return true
	}
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

// Send serializes v as a JSON frame and writes it iff the socket is open.
// Failure is caller-visible, never fatal.
func (c *Connector) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "[Send] marshal frame")
	}
	return c.SendRaw(payload)
}

// SendRaw writes an already-serialized frame iff the socket is open.
func (c *Connector) SendRaw(payload []byte) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return errors.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrapf(err, "[SendRaw] write frame")
	}
	return nil
}

func (c *Connector) terminate(code int) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = StateTerminated
	c.exitCode = code
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if code == 0 && c.onTerminate != nil {
		c.onTerminate()
	}
	if conn != nil {
		conn.Close()
	}
	close(c.done)
}

// Done is closed when the connector reaches its terminal state.
func (c *Connector) Done() <-chan struct{} {
	return c.done
}

// ExitCode returns the process exit code the terminal state calls for: 0 for
// a host-initiated close, non-zero for a connect timeout or transport error.
func (c *Connector) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// State returns the connector's current lifecycle state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the socket is currently open.
func (c *Connector) Connected() bool {
	return c.State() == StateConnected
}

// Port returns the host-assigned websocket port.
func (c *Connector) Port() string {
	return c.port
}

// Identity returns the plugin identity used in the registration handshake.
func (c *Connector) Identity() string {
	return c.identity
}
