package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/controlhub/realtime-gateway/internal/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options configures a reconnecting client.
type Options struct {
	// URL of the gateway websocket endpoint, e.g. "ws://host:8090/ws".
	URL string

	// Token sent in the auth handshake right after the transport opens.
	Token string

	// Reconnect backoff: delay after the nth unexpected closure is
	// min(BaseDelay * 2^n, MaxDelay), giving up after MaxAttempts.
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	// PingInterval between application-level liveness probes. Zero
	// disables them; transport close events alone drive reconnection.
	PingInterval time.Duration
}

// Callbacks surface client events to the application layer.
type Callbacks struct {
	// OnMessage is invoked for every decoded inbound envelope.
	OnMessage func(env protocol.Envelope)

	// OnStatusChange fires on every logical up/down transition.
	OnStatusChange func(connected bool)

	// OnAlert additionally fires for alert envelopes so the caller can
	// render a severity-styled notification.
	OnAlert func(alert protocol.AlertData)

	// OnGiveUp fires exactly once when MaxAttempts consecutive
	// reconnects have failed. Recovery needs a fresh Connect call.
	OnGiveUp func()
}

// Client maintains one logical connection to the gateway, re-dialing
// under bounded exponential backoff after unexpected closure.
type Client struct {
	opts   Options
	cb     Callbacks
	dialer *websocket.Dialer
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	attempts  int
	timer     *time.Timer
	manual    bool
	gaveUp    bool
}

// New creates a client. Connect must be called to open the transport.
func New(opts Options, cb Callbacks, logger *zap.Logger) *Client {
	return &Client{
		opts:   opts,
		cb:     cb,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Connect dials the gateway. On success the attempt counter resets, an
// auth envelope is sent and the status callback fires with true. On
// failure the error is returned and a reconnect is scheduled, same as
// an unexpected mid-session closure.
func (c *Client) Connect() error {
	c.mu.Lock()
	c.manual = false
	c.gaveUp = false
	c.mu.Unlock()

	conn, _, err := c.dialer.Dial(c.opts.URL, nil)
	if err != nil {
		c.logger.Warn("dial failed", zap.String("url", c.opts.URL), zap.Error(err))
		c.scheduleReconnect()
		return fmt.Errorf("failed to connect to %s: %w", c.opts.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("connected", zap.String("url", c.opts.URL))

	if err := c.send(protocol.TypeAuth, "", protocol.AuthData{Token: c.opts.Token}); err != nil {
		c.logger.Warn("failed to send auth", zap.Error(err))
	}
	c.setConnected(true)

	go c.readLoop(conn)
	if c.opts.PingInterval > 0 {
		go c.pingLoop(conn)
	}
	return nil
}

// Disconnect closes the transport intentionally; no reconnect is
// scheduled. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"), deadline)
		conn.Close()
	}
	c.setConnected(false)
}

// SendCommand publishes a device command; the gateway fans the
// resulting device_update back to every session.
func (c *Client) SendCommand(deviceID, command string, params map[string]interface{}) error {
	return c.send(protocol.TypeDeviceCommand, deviceID, protocol.CommandData{
		Command:    command,
		Parameters: params,
	})
}

// Subscribe narrows the traffic this client receives to the given topic.
func (c *Client) Subscribe(topic string) error {
	return c.send(protocol.TypeSubscribe, "", protocol.SubscribeData{Topic: topic})
}

// Connected reports whether the logical connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) send(msgType, deviceID string, payload interface{}) error {
	env, err := protocol.New(msgType, deviceID, payload)
	if err != nil {
		return err
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		env, decodeErr := protocol.Decode(frame)
		if decodeErr != nil {
			// Bad frames are dropped, never fatal.
			c.logger.Warn("dropping undecodable message", zap.Error(decodeErr))
			continue
		}

		if c.cb.OnMessage != nil {
			c.cb.OnMessage(env)
		}
		if env.Type == protocol.TypeAlert && c.cb.OnAlert != nil {
			var alert protocol.AlertData
			if err := protocol.DecodeData(env, &alert); err != nil {
				c.logger.Warn("failed to decode alert data", zap.Error(err))
			} else {
				c.cb.OnAlert(alert)
			}
		}
	}
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	intentional := c.manual
	c.mu.Unlock()
	conn.Close()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		intentional = true
	}

	c.setConnected(false)

	if intentional {
		c.logger.Info("connection closed")
		return
	}

	c.logger.Warn("connection lost", zap.Error(err))
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.manual || c.gaveUp {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opts.MaxAttempts {
		c.gaveUp = true
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted",
			zap.Int("max_attempts", c.opts.MaxAttempts))
		if c.cb.OnGiveUp != nil {
			c.cb.OnGiveUp()
		}
		return
	}

	delay := Delay(c.opts.BaseDelay, c.opts.MaxDelay, c.attempts)
	c.attempts++
	attempt := c.attempts
	c.timer = time.AfterFunc(delay, func() {
		c.Connect()
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
}

// pingLoop sends application-level pings; the gateway answers with
// pong envelopes. Absence of a pong is not a failure signal here.
func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.conn
		c.mu.Unlock()
		if current != conn {
			return
		}
		if err := c.send(protocol.TypePing, "", protocol.PingData{Timestamp: protocol.Now()}); err != nil {
			return
		}
	}
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	changed := c.connected != connected
	c.connected = connected
	c.mu.Unlock()

	if changed && c.cb.OnStatusChange != nil {
		c.cb.OnStatusChange(connected)
	}
}
