package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ovenlink/ovenlink-core/internal/infrastructure/config"
)

// Logger defines the logging interface for the session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is the single persistent connection to the vendor cloud.
//
// Thread Safety:
//   - Send, Connected and Close are safe for concurrent use.
//   - Callbacks must be registered before Connect.
//   - The frame callback runs on the reader goroutine, so frames are
//     delivered in arrival order; it must not block.
type Session struct {
	cfg    config.CloudConfig
	logger Logger

	onFrame      func(Frame)
	onConnect    func()
	onDisconnect func(error)

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	pending   map[string]chan error

	// writeMu serialises all writes to the connection.
	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession creates a session for the configured cloud endpoint.
// Connect must be called before commands can be sent.
func NewSession(cfg config.CloudConfig) *Session {
	return &Session{
		cfg:     cfg,
		logger:  noopLogger{},
		pending: make(map[string]chan error),
		closed:  make(chan struct{}),
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// SetOnFrame registers the handler for unsolicited inbound frames
// (state pushes, device lists). Response frames are consumed internally.
func (s *Session) SetOnFrame(fn func(Frame)) {
	s.onFrame = fn
}

// SetOnConnect registers a callback invoked after each successful
// connection, including reconnects.
func (s *Session) SetOnConnect(fn func()) {
	s.onConnect = fn
}

// SetOnDisconnect registers a callback invoked when the connection
// drops. It is not invoked on deliberate Close.
func (s *Session) SetOnDisconnect(fn func(error)) {
	s.onDisconnect = fn
}

// Connect establishes the session and starts the reader.
//
// A rejected token fails immediately with ErrAuthFailed; transient
// failures fail with ErrConnectionFailed and are the caller's to retry.
// Once connected, later connection drops are recovered internally with
// exponential backoff.
func (s *Session) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.logger.Info("cloud session established", "url", s.cfg.URL)
	if s.onConnect != nil {
		s.onConnect()
	}

	s.wg.Add(1)
	go s.readLoop(conn)

	return nil
}

// Connected reports whether the session currently has a live connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Send transmits a command and blocks until the cloud acknowledges it,
// the context ends, or the session closes.
//
// Returns:
//   - nil on acknowledgement
//   - ErrCommandRejected (wrapped) when the cloud reports an error
//   - ErrNotConnected when the session is offline
//   - ErrConnectionLost when the connection drops mid-command
func (s *Session) Send(ctx context.Context, deviceID string, command string, payload any) error {
	requestID := uuid.NewString()
	reply := make(chan error, 1)

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.pending[requestID] = reply
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
	}()

	frame := outboundFrame{
		Command:   command,
		RequestID: requestID,
		Payload:   payload,
	}

	s.writeMu.Lock()
	err := conn.WriteJSON(frame)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: writing command: %w", ErrConnectionLost, err)
	}

	s.logger.Debug("command sent",
		"device_id", deviceID,
		"command", command,
		"request_id", requestID,
	)

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrSessionClosed
	}
}

// Close shuts the session down. Outstanding commands fail with
// ErrSessionClosed; no reconnect is attempted.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	if conn != nil {
		// Best-effort close handshake; the read loop exits either way.
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.writeMu.Unlock()
		conn.Close()
	}

	s.wg.Wait()
	return nil
}

// dial opens one WebSocket connection with the account token attached.
func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing url: %w", ErrConnectionFailed, err)
	}

	query := endpoint.Query()
	query.Set("token", s.cfg.Token)
	query.Set("supportedAccessories", "APO")
	endpoint.RawQuery = query.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.GetConnectTimeout(),
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: cloud returned %d", ErrAuthFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return conn, nil
}

// readLoop consumes inbound frames until the connection drops, then
// hands off to the reconnect loop unless the session is closing.
func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.handleDisconnect(err)
			return
		}

		s.handleFrame(frame)
	}
}

// handleFrame routes one inbound frame.
func (s *Session) handleFrame(frame Frame) {
	if frame.Command == FrameResponse {
		s.resolveResponse(frame)
		return
	}

	if s.onFrame == nil {
		return
	}

	// A panicking handler must not kill the reader.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("frame handler panicked",
				"command", frame.Command,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	s.onFrame(frame)
}

// resolveResponse completes the pending command matching the response.
func (s *Session) resolveResponse(frame Frame) {
	s.mu.Lock()
	reply, ok := s.pending[frame.RequestID]
	if ok {
		delete(s.pending, frame.RequestID)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("response for unknown request", "request_id", frame.RequestID)
		return
	}

	var body responseBody
	if err := json.Unmarshal(frame.Payload, &body); err != nil {
		reply <- fmt.Errorf("%w: undecodable response: %w", ErrCommandRejected, err)
		return
	}

	switch body.Status {
	case responseOK, "":
		reply <- nil
	case responseError:
		reply <- fmt.Errorf("%w: %s", ErrCommandRejected, body.Error)
	default:
		reply <- fmt.Errorf("%w: unexpected status %q: %s", ErrCommandRejected, body.Status, body.Error)
	}
}

// handleDisconnect fails outstanding commands and starts reconnecting.
func (s *Session) handleDisconnect(cause error) {
	s.mu.Lock()
	s.connected = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.failPendingLocked(ErrConnectionLost)
	s.mu.Unlock()

	s.logger.Warn("cloud connection lost", "error", cause)
	if s.onDisconnect != nil {
		s.onDisconnect(cause)
	}

	s.wg.Add(1)
	go s.reconnectLoop()
}

// failPendingLocked fails every outstanding command. Caller holds s.mu.
func (s *Session) failPendingLocked(err error) {
	for id, reply := range s.pending {
		reply <- err
		delete(s.pending, id)
	}
}

// reconnectLoop retries the connection with exponential backoff and
// jitter until it succeeds, authentication fails, or the session closes.
func (s *Session) reconnectLoop() {
	defer s.wg.Done()

	delay := s.cfg.Reconnect.GetInitialDelay()
	maxDelay := s.cfg.Reconnect.GetMaxDelay()

	for attempt := 1; ; attempt++ {
		if s.cfg.Reconnect.MaxAttempts > 0 && attempt > s.cfg.Reconnect.MaxAttempts {
			s.logger.Error("reconnect attempts exhausted", "attempts", attempt-1)
			return
		}

		// Up to 25% jitter so restarting fleets do not reconnect in step.
		jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))

		select {
		case <-s.closed:
			return
		case <-time.After(delay + jitter):
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetConnectTimeout())
		conn, err := s.dial(ctx)
		cancel()

		if err != nil {
			if errors.Is(err, ErrAuthFailed) {
				s.logger.Error("reconnect abandoned, token rejected", "error", err)
				return
			}
			s.logger.Warn("reconnect attempt failed",
				"attempt", attempt,
				"next_delay", delay,
				"error", err,
			)
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.connected = true
		s.mu.Unlock()

		s.logger.Info("cloud session re-established", "attempts", attempt)
		if s.onConnect != nil {
			s.onConnect()
		}

		s.wg.Add(1)
		go s.readLoop(conn)
		return
	}
}
