package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPingInterval = 30 * time.Second
	readTimeout         = 90 * time.Second
	writeWait           = 10 * time.Second
	dialTimeout         = 15 * time.Second
	authTimeout         = 10 * time.Second
)

// Config configures a ConnectionManager.
type Config struct {
	// URL is the websocket gateway, e.g. wss://chat.example.com/ws.
	URL string
	// AuthURL is the channel authorization endpoint, e.g.
	// https://chat.example.com/api/broadcasting/auth.
	AuthURL string
	// Token is the session token sent as a bearer credential on dial and auth.
	// Empty connects as a guest.
	Token string

	Dialer     *websocket.Dialer
	HTTPClient *http.Client
	// NewBackOff builds the reconnect schedule; defaults to NewReconnectBackOff.
	NewBackOff func() backoff.BackOff
	// PingInterval overrides the activity timeout announced by the server.
	PingInterval time.Duration
	Logger       *zap.Logger
}

// EventHandler receives the raw data of one event on a bound channel.
type EventHandler func(data json.RawMessage)

// ConnectionManager owns one gateway connection: dialing, reconnecting with backoff,
// authorizing and restoring channel subscriptions, and reporting state.
//
// All work runs on a single loop goroutine. Handlers and observers are called from
// that goroutine; they may call any method except Stop.
type ConnectionManager struct {
	cfg Config
	log *zap.Logger

	wake chan struct{}

	mu       sync.Mutex
	queue    []func()
	running  bool
	loopDone chan struct{}
	cancel   context.CancelFunc
	state    State
	socketID string

	// Owned by the loop goroutine.
	ctx       context.Context
	exit      bool
	gen       uint64
	conn      *websocket.Conn
	pingStop  chan struct{}
	retry     backoff.BackOff
	timer     *time.Timer
	channels  map[string]struct{}
	bindings  map[string]map[string][]EventHandler
	observers []func(StateChange)
}

func NewConnectionManager(cfg Config) *ConnectionManager {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: authTimeout}
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = NewReconnectBackOff
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ConnectionManager{
		cfg:      cfg,
		log:      cfg.Logger.Named("realtime"),
		wake:     make(chan struct{}, 1),
		state:    StateDisconnected,
		ctx:      context.Background(),
		channels: make(map[string]struct{}),
		bindings: make(map[string]map[string][]EventHandler),
	}
}

// State returns the current connectivity state.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SocketID returns the id the gateway assigned to the live connection, or "".
func (m *ConnectionManager) SocketID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socketID
}

// Start begins connecting. It is a no-op while a connection is live or being
// retried.
func (m *ConnectionManager) Start() {
	m.mu.Lock()
	if !m.running {
		ctx, cancel := context.WithCancel(context.Background())
		m.running = true
		m.cancel = cancel
		m.loopDone = make(chan struct{})
		go m.loop(ctx, m.loopDone)
	}
	m.mu.Unlock()
	m.post(m.connect)
}

// Stop closes the connection, cancels pending retries and waits for the loop to
// exit. Subscriptions and bindings are kept for the next Start.
func (m *ConnectionManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	done, cancel := m.loopDone, m.cancel
	m.mu.Unlock()

	cancel()
	m.post(func() {
		m.stopTimer()
		if m.conn != nil {
			_ = m.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
		}
		m.teardown()
		m.setState(StateDisconnected, nil)
		m.exit = true
	})
	<-done
}

// Reconnect drops any live connection and dials again with a fresh retry budget.
// Use it to leave StateFailed.
func (m *ConnectionManager) Reconnect() {
	m.post(func() {
		m.stopTimer()
		m.teardown()
		m.retry = m.cfg.NewBackOff()
		m.setState(StateConnecting, nil)
		m.dial()
	})
}

// Subscribe adds a channel to the desired set. It is authorized and subscribed now
// if connected, and again after every reconnect.
func (m *ConnectionManager) Subscribe(channel string) {
	name := bareChannel(channel)
	m.post(func() {
		if _, ok := m.channels[name]; ok {
			return
		}
		m.channels[name] = struct{}{}
		if m.State() == StateConnected {
			m.authorize(name)
		}
	})
}

func (m *ConnectionManager) Unsubscribe(channel string) {
	name := bareChannel(channel)
	m.post(func() {
		if _, ok := m.channels[name]; !ok {
			return
		}
		delete(m.channels, name)
		if m.State() == StateConnected {
			if err := m.send(Frame{Event: EventUnsubscribe, Channel: name}); err != nil {
				m.log.Debug("unsubscribe not sent", zap.String("channel", name), zap.Error(err))
			}
		}
	})
}

// Bind registers fn for event on channel. subscription_succeeded and
// subscription_error can be bound like any broadcast event.
func (m *ConnectionManager) Bind(channel, event string, fn EventHandler) {
	name := bareChannel(channel)
	m.post(func() {
		events, ok := m.bindings[name]
		if !ok {
			events = make(map[string][]EventHandler)
			m.bindings[name] = events
		}
		events[event] = append(events[event], fn)
	})
}

// OnState registers an observer for state changes and non-fatal errors.
func (m *ConnectionManager) OnState(fn func(StateChange)) {
	m.post(func() {
		m.observers = append(m.observers, fn)
	})
}

func (m *ConnectionManager) post(op func()) {
	m.mu.Lock()
	m.queue = append(m.queue, op)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *ConnectionManager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	m.ctx = ctx
	for range m.wake {
		for {
			m.mu.Lock()
			ops := m.queue
			m.queue = nil
			m.mu.Unlock()
			if len(ops) == 0 {
				break
			}
			for i, op := range ops {
				op()
				if !m.exit {
					continue
				}
				m.exit = false
				m.mu.Lock()
				m.queue = append(append([]func(){}, ops[i+1:]...), m.queue...)
				m.running = false
				m.mu.Unlock()
				return
			}
		}
	}
}

func (m *ConnectionManager) connect() {
	if s := m.State(); s != StateDisconnected && s != StateFailed {
		return
	}
	m.retry = m.cfg.NewBackOff()
	m.setState(StateConnecting, nil)
	m.dial()
}

func (m *ConnectionManager) dial() {
	m.gen++
	gen, ctx := m.gen, m.ctx

	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	go func() {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		conn, resp, err := m.cfg.Dialer.DialContext(dialCtx, m.cfg.URL, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil && ctx.Err() != nil {
			conn.Close()
			return
		}
		m.post(func() { m.dialed(gen, conn, err) })
	}()
}

func (m *ConnectionManager) dialed(gen uint64, conn *websocket.Conn, err error) {
	if gen != m.gen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.log.Debug("dial failed", zap.String("url", m.cfg.URL), zap.Error(err))
		m.scheduleRetry(fmt.Errorf("%w: %v", ErrTransportUnavailable, err))
		return
	}
	m.conn = conn
	go m.readLoop(gen, conn)
}

// readLoop is the only reader on conn. Control pings from the gateway extend the
// read deadline.
func (m *ConnectionManager) readLoop(gen uint64, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		var ne net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.post(func() { m.dropped(gen, err) })
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			m.log.Debug("malformed frame", zap.Error(err))
			continue
		}
		m.post(func() { m.received(gen, f) })
	}
}

func (m *ConnectionManager) received(gen uint64, f Frame) {
	if gen != m.gen {
		return
	}

	switch f.Event {
	case EventConnectionEstablished:
		var est ConnectionEstablished
		if err := json.Unmarshal(f.Data, &est); err != nil || est.SocketID == "" {
			m.log.Warn("malformed connection_established", zap.Error(err))
			m.dropped(gen, errors.New("malformed connection_established"))
			return
		}
		m.established(gen, est)
	case EventPong:
	case EventSubscriptionSucceeded:
		m.dispatch(f)
	case EventSubscriptionError:
		var se SubscriptionError
		_ = json.Unmarshal(f.Data, &se)
		m.log.Warn("subscription refused",
			zap.String("channel", f.Channel),
			zap.Int("status", se.Status),
			zap.String("error", se.Error))
		m.dispatch(f)
		m.reportError(fmt.Errorf("%w: %s: %s", ErrChannelAuthDenied, f.Channel, se.Error))
	default:
		m.dispatch(f)
	}
}

func (m *ConnectionManager) established(gen uint64, est ConnectionEstablished) {
	m.mu.Lock()
	m.socketID = est.SocketID
	m.mu.Unlock()
	m.retry.Reset()

	every := m.cfg.PingInterval
	if every <= 0 && est.ActivityTimeout > 0 {
		every = time.Duration(est.ActivityTimeout) * time.Second
	}
	if every <= 0 {
		every = defaultPingInterval
	}
	m.startPing(gen, every)

	m.log.Info("connected", zap.String("socket_id", est.SocketID))
	m.setState(StateConnected, nil)
	for name := range m.channels {
		m.authorize(name)
	}
}

func (m *ConnectionManager) dropped(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	m.teardown()
	m.log.Info("connection lost", zap.Error(err))
	m.scheduleRetry(fmt.Errorf("%w: %v", ErrTransportUnavailable, err))
}

// scheduleRetry reports unavailable and arms the next attempt, or reports failed
// once the schedule is exhausted.
func (m *ConnectionManager) scheduleRetry(cause error) {
	delay := m.retry.NextBackOff()
	if delay == backoff.Stop {
		m.log.Warn("giving up reconnecting", zap.Error(cause))
		m.setState(StateFailed, cause)
		return
	}
	m.setState(StateUnavailable, cause)

	gen := m.gen
	m.log.Debug("reconnect scheduled", zap.Duration("delay", delay))
	m.timer = time.AfterFunc(delay, func() {
		m.post(func() {
			if gen != m.gen || m.State() != StateUnavailable {
				return
			}
			m.setState(StateReconnecting, nil)
			m.dial()
		})
	})
}

func (m *ConnectionManager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// teardown invalidates the current generation so late results from its goroutines
// are ignored.
func (m *ConnectionManager) teardown() {
	m.gen++
	if m.pingStop != nil {
		close(m.pingStop)
		m.pingStop = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Lock()
	m.socketID = ""
	m.mu.Unlock()
}

func (m *ConnectionManager) startPing(gen uint64, every time.Duration) {
	stop := make(chan struct{})
	m.pingStop = stop
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				m.post(func() {
					if gen == m.gen {
						_ = m.send(Frame{Event: EventPing})
					}
				})
			}
		}
	}()
}

// send writes one frame. A failed write closes the connection and the reader
// reports the drop.
func (m *ConnectionManager) send(f Frame) error {
	if m.conn == nil {
		return ErrTransportUnavailable
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.conn.Close()
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

func (m *ConnectionManager) authorize(channel string) {
	gen, ctx := m.gen, m.ctx
	socketID := m.SocketID()
	go func() {
		auth, err := m.fetchAuth(ctx, socketID, channel)
		m.post(func() { m.authorized(gen, channel, auth, err) })
	}()
}

func (m *ConnectionManager) authorized(gen uint64, channel string, auth *AuthResponse, err error) {
	if gen != m.gen {
		return
	}
	if _, ok := m.channels[channel]; !ok {
		return
	}
	if err != nil {
		m.log.Warn("channel authorization failed", zap.String("channel", channel), zap.Error(err))
		se := SubscriptionError{Error: err.Error()}
		var ae *AuthError
		if errors.As(err, &ae) {
			se.Status = ae.Status
		}
		data, _ := json.Marshal(se)
		m.dispatch(Frame{Event: EventSubscriptionError, Channel: channel, Data: data})
		m.reportError(err)
		return
	}
	if err := m.send(Frame{Event: EventSubscribe, Channel: channel, Auth: auth.Auth}); err != nil {
		m.log.Debug("subscribe not sent", zap.String("channel", channel), zap.Error(err))
	}
}

func (m *ConnectionManager) fetchAuth(ctx context.Context, socketID, channel string) (*AuthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	form := url.Values{"socket_id": {socketID}, "channel_name": {channel}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if m.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Channel: channel, Status: resp.StatusCode}
	}
	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	return &out, nil
}

func (m *ConnectionManager) dispatch(f Frame) {
	for _, fn := range m.bindings[f.Channel][f.Event] {
		fn(f.Data)
	}
}

func (m *ConnectionManager) setState(s State, err error) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev == s && err == nil {
		return
	}
	m.notify(StateChange{Previous: prev, Current: s, Err: err})
}

func (m *ConnectionManager) reportError(err error) {
	m.notify(StateChange{Previous: m.State(), Current: StateError, Err: err})
}

func (m *ConnectionManager) notify(change StateChange) {
	for _, fn := range m.observers {
		fn(change)
	}
}

// bareChannel strips the visibility prefix clients may use.
func bareChannel(name string) string {
	name = strings.TrimSpace(name)
	for _, p := range []string{"private-", "presence-"} {
		name = strings.TrimPrefix(name, p)
	}
	return name
}
