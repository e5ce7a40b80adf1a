package hub

import (
	"context"
	"sync"
	"time"

	"github.com/controlhub/realtime-gateway/internal/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the session lifecycle position.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateAuthenticated
	StateClosing
	StateClosed
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Session is the server-side protocol state machine for one client
// connection. It composes the protocol codec, the registry and the
// broadcaster rather than owning any of them.
type Session struct {
	id          string
	conn        *websocket.Conn
	registry    *Registry
	broadcaster *Broadcaster
	verifier    TokenVerifier
	feed        func(ctx context.Context)
	authTimeout time.Duration
	logger      *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	state  State
	topics map[string]struct{}

	cancelFeed context.CancelFunc
	authTimer  *time.Timer
	closeOnce  sync.Once
}

func newSession(
	id string,
	conn *websocket.Conn,
	registry *Registry,
	broadcaster *Broadcaster,
	verifier TokenVerifier,
	feed func(ctx context.Context),
	authTimeout time.Duration,
	logger *zap.Logger,
) *Session {
	return &Session{
		id:          id,
		conn:        conn,
		registry:    registry,
		broadcaster: broadcaster,
		verifier:    verifier,
		feed:        feed,
		authTimeout: authTimeout,
		logger:      logger,
		state:       StateConnecting,
		topics:      make(map[string]struct{}),
	}
}

// ID returns the generated connection id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// run owns the connection until it dies. ctx scopes everything the
// session spawns; cancelling it tears the session down.
func (s *Session) run(ctx context.Context) {
	feedCtx, cancel := context.WithCancel(ctx)
	s.cancelFeed = cancel

	s.mu.Lock()
	s.state = StateOpen
	s.mu.Unlock()

	// Armed before Register so no other goroutine can reach the session
	// while the timer field is written.
	if s.authTimeout > 0 {
		s.authTimer = time.AfterFunc(s.authTimeout, s.expireUnauthenticated)
	}

	s.registry.Register(s.id, s)
	s.logger.Info("client connected")

	s.sendEnvelope(protocol.TypeConnection, "", protocol.ConnectionData{
		Message:  "Connected to IoT realtime gateway",
		ClientID: s.id,
		Status:   "connected",
	})

	if s.feed != nil {
		go s.feed(feedCtx)
	}
	go s.pingLoop(feedCtx)

	s.readLoop()
	s.close()
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("client read error", zap.Error(err))
			}
			return
		}
		s.dispatch(frame)
	}
}

// dispatch handles one inbound frame. Protocol failures answer with an
// error envelope and leave the connection up.
func (s *Session) dispatch(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		s.logger.Warn("malformed message", zap.Error(err))
		s.sendEnvelope(protocol.TypeError, "", protocol.ErrorData{
			Message: "Failed to process message",
			Error:   err.Error(),
		})
		return
	}

	switch env.Type {
	case protocol.TypeAuth:
		s.handleAuth(env)
	case protocol.TypeDeviceCommand:
		s.handleDeviceCommand(env)
	case protocol.TypeSubscribe:
		s.handleSubscribe(env)
	case protocol.TypePing:
		s.sendEnvelope(protocol.TypePong, "", protocol.PongData{Timestamp: protocol.Now()})
	case protocol.TypePong:
		// Client-initiated pong; nothing to do.
	default:
		s.logger.Warn("unsupported inbound message type", zap.String("type", env.Type))
		s.sendEnvelope(protocol.TypeError, "", protocol.ErrorData{
			Message: "Unsupported message type",
			Error:   env.Type,
		})
	}
}

func (s *Session) handleAuth(env protocol.Envelope) {
	var auth protocol.AuthData
	// The payload shape is not enforced; a missing token only matters
	// when a secret is configured.
	_ = protocol.DecodeData(env, &auth)

	if err := s.verifier.Verify(auth.Token); err != nil {
		s.logger.Warn("auth rejected", zap.Error(err))
		s.sendEnvelope(protocol.TypeError, "", protocol.ErrorData{
			Message: "Authentication failed",
		})
		s.close()
		return
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	timer := s.authTimer
	s.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}

	s.logger.Info("client authenticated")
	s.sendEnvelope(protocol.TypeAuthSuccess, "", protocol.AuthSuccessData{
		ClientID: s.id,
		Status:   "authenticated",
	})
}

// handleDeviceCommand echoes the command back as an executed
// device_update and fans it out to every session, sender included.
// Commands are advisory fan-out events here, not targeted RPCs.
func (s *Session) handleDeviceCommand(env protocol.Envelope) {
	var cmd protocol.CommandData
	if err := protocol.DecodeData(env, &cmd); err != nil {
		s.sendEnvelope(protocol.TypeError, "", protocol.ErrorData{
			Message: "Failed to process message",
			Error:   err.Error(),
		})
		return
	}

	s.logger.Info("device command received",
		zap.String("device_id", env.DeviceID),
		zap.String("command", cmd.Command),
	)

	update, err := protocol.New(protocol.TypeDeviceUpdate, env.DeviceID, protocol.DeviceUpdateData{
		Command:   cmd.Command,
		Status:    "executed",
		Timestamp: protocol.Now(),
	})
	if err != nil {
		s.logger.Error("failed to build device update", zap.Error(err))
		return
	}
	s.broadcaster.Broadcast(update)
}

func (s *Session) handleSubscribe(env protocol.Envelope) {
	var sub protocol.SubscribeData
	if err := protocol.DecodeData(env, &sub); err != nil || sub.Topic == "" {
		s.sendEnvelope(protocol.TypeError, "", protocol.ErrorData{
			Message: "Failed to process message",
			Error:   "subscribe requires a topic",
		})
		return
	}

	s.mu.Lock()
	s.topics[sub.Topic] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("client subscribed", zap.String("topic", sub.Topic))
}

// Deliver writes an already-encoded frame to the peer. A session that
// has subscribed to explicit topics only receives matching telemetry
// and alert traffic; everything else always goes through.
func (s *Session) Deliver(frame []byte, msgType string) error {
	if !s.wants(msgType) {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Session) wants(msgType string) bool {
	topic := protocol.Topic(msgType)
	if topic == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

func (s *Session) sendEnvelope(msgType, deviceID string, payload interface{}) {
	env, err := protocol.New(msgType, deviceID, payload)
	if err != nil {
		s.logger.Error("failed to build envelope", zap.String("type", msgType), zap.Error(err))
		return
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		s.logger.Error("failed to encode envelope", zap.String("type", msgType), zap.Error(err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.logger.Debug("write failed", zap.Error(err))
	}
}

// pingLoop keeps the transport alive with control-frame pings; a peer
// that stops answering trips the read deadline and ends the session.
func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Session) expireUnauthenticated() {
	s.mu.Lock()
	expired := s.state == StateOpen
	s.mu.Unlock()
	if !expired {
		return
	}

	s.logger.Warn("closing session that never authenticated")
	s.close()
}

// Close tears the session down. Safe to call from any goroutine,
// including mid-broadcast, and safe to call more than once.
func (s *Session) Close() {
	s.close()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		timer := s.authTimer
		s.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if s.cancelFeed != nil {
			s.cancelFeed()
		}
		s.registry.Unregister(s.id)
		s.conn.Close()

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		s.logger.Info("client disconnected")
	})
}
