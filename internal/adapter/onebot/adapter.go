package onebot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"botweave/internal/adapter"
	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/message"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 40 * time.Second
	writeWait      = 10 * time.Second
	dialTimeout    = 10 * time.Second
	stopJoin       = 5 * time.Second
	maxFrameBytes  = 4 << 20
	defaultAPIWait = 5 * time.Second
	defaultRetry   = 5 * time.Second
)

// Adapter serves one bot over a forward OneBot v11 WebSocket. A single
// reader goroutine owns the connection: it demultiplexes API responses
// from events and redials after unexpected drops until Stop.
type Adapter struct {
	botID int64
	cfg   Config

	dialer *websocket.Dialer

	// apiWait and retryDelay exist so tests can shrink the timeouts.
	apiWait    time.Duration
	retryDelay time.Duration

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	handler   adapter.Handler
	running   bool
	connected bool
	startedAt time.Time
	selfID    string
	messages  int64
	errors    int64
	lastError string
	pending   map[string]chan map[string]any
	stop      chan struct{}

	wg sync.WaitGroup
}

// New constructs the adapter for one bot. It is registered with the
// manager under the "onebot" protocol.
func New(botID int64, config map[string]any) (adapter.Adapter, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		botID:      botID,
		cfg:        cfg,
		dialer:     &websocket.Dialer{HandshakeTimeout: dialTimeout},
		apiWait:    defaultAPIWait,
		retryDelay: defaultRetry,
		pending:    make(map[string]chan map[string]any),
	}, nil
}

func (a *Adapter) Protocol() string { return Protocol }

// CacheKeyField is empty: OneBot traffic arrives over the socket, not a
// routed webhook.
func (a *Adapter) CacheKeyField() string { return "" }

// SelfID returns the bot's platform account id, learned from the first
// event the endpoint pushes.
func (a *Adapter) SelfID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selfID
}

func (a *Adapter) SetHandler(h adapter.Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Start dials the endpoint and begins reading. A connection that cannot
// be established within the start budget fails the start.
func (a *Adapter) Start(ctx context.Context) error {
	conn, err := a.dial(ctx)
	if err != nil {
		a.setError(err)
		return fmt.Errorf("failed to connect to onebot at %s: %w", a.cfg.URL(), err)
	}

	a.mu.Lock()
	a.conn = conn
	a.connected = true
	a.running = true
	a.startedAt = time.Now()
	a.lastError = ""
	a.stop = make(chan struct{})
	a.mu.Unlock()

	a.wg.Add(1)
	go a.run(conn)

	log.Info(log.CatOneBot, "onebot adapter started", "bot_id", a.botID, "ws_url", a.cfg.URL())
	return nil
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	var header http.Header
	if a.cfg.AccessToken != "" {
		header = http.Header{}
		header.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	}
	conn, resp, err := a.dialer.DialContext(ctx, a.cfg.URL(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

// Stop closes the connection and waits briefly for the reader to exit.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.connected = false
	stop := a.stop
	conn := a.conn
	startedAt := a.startedAt
	messages := a.messages
	a.mu.Unlock()

	close(stop)
	if conn != nil {
		a.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		a.writeMu.Unlock()
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopJoin):
		log.Warn(log.CatOneBot, "reader did not exit in time", "bot_id", a.botID)
	}

	log.Info(log.CatOneBot, "onebot adapter stopped",
		"bot_id", a.botID, "uptime_s", int(time.Since(startedAt).Seconds()), "messages", messages)
	return nil
}

func (a *Adapter) stopped() bool {
	a.mu.Lock()
	stop := a.stop
	a.mu.Unlock()
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// run owns the connection: read until it drops, then redial until Stop.
func (a *Adapter) run(conn *websocket.Conn) {
	defer a.wg.Done()

	for {
		a.readLoop(conn)
		conn.Close()

		a.mu.Lock()
		a.connected = false
		a.conn = nil
		a.mu.Unlock()

		for {
			if a.stopped() {
				return
			}
			select {
			case <-a.stopChan():
				return
			case <-time.After(a.retryDelay):
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			next, err := a.dial(ctx)
			cancel()
			if err != nil {
				a.setError(err)
				log.Warn(log.CatOneBot, "reconnect failed", "bot_id", a.botID, "error", err.Error())
				continue
			}

			a.mu.Lock()
			a.conn = next
			a.connected = true
			a.mu.Unlock()
			conn = next
			log.Info(log.CatOneBot, "reconnected to onebot", "bot_id", a.botID, "ws_url", a.cfg.URL())
			break
		}
	}
}

func (a *Adapter) stopChan() chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop
}

func (a *Adapter) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go pingLoop(conn, pingDone)

	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			if a.stopped() {
				log.Info(log.CatOneBot, "connection closed", "bot_id", a.botID)
			} else {
				a.setError(err)
				log.Warn(log.CatOneBot, "connection lost", "bot_id", a.botID, "error", err.Error())
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		a.handleFrame(frame)
	}
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (a *Adapter) handleFrame(frame map[string]any) {
	// API responses carry status or retcode; events carry post_type.
	_, hasStatus := frame["status"]
	_, hasRetcode := frame["retcode"]
	if hasStatus || hasRetcode {
		a.resolvePending(stringValue(frame["echo"]), frame)
		return
	}

	postType := stringValue(frame["post_type"])
	if postType == "message_sent" && !a.cfg.SelfTrigger {
		log.Debug(log.CatOneBot, "own message echoed", "bot_id", a.botID, "message_id", frame["message_id"])
		return
	}

	a.mu.Lock()
	if a.selfID == "" {
		if selfID := idString(frame["self_id"]); selfID != "" {
			a.selfID = selfID
			log.Info(log.CatOneBot, "self id learned", "bot_id", a.botID, "self_id", selfID)
		}
	}
	h := a.handler
	a.mu.Unlock()

	ev, ok := ParseEvent(a.botID, frame)
	if !ok {
		return
	}
	if ev.Kind() == event.KindMessage {
		a.mu.Lock()
		a.messages++
		a.mu.Unlock()
	}
	if h != nil {
		h(ev)
	}
}

func (a *Adapter) resolvePending(echo string, frame map[string]any) {
	if echo == "" {
		return
	}
	a.mu.Lock()
	ch, ok := a.pending[echo]
	if ok {
		delete(a.pending, echo)
	}
	a.mu.Unlock()
	if ok {
		ch <- frame
	}
}

// CallAPI sends one action frame and waits for the response matching
// its echo token.
func (a *Adapter) CallAPI(ctx context.Context, action string, params map[string]any) (any, error) {
	a.mu.Lock()
	conn := a.conn
	connected := a.connected
	a.mu.Unlock()
	if !connected || conn == nil {
		return nil, errors.New("onebot websocket is not connected")
	}

	echo := uuid.NewString()
	ch := make(chan map[string]any, 1)
	a.mu.Lock()
	a.pending[echo] = ch
	a.mu.Unlock()

	req := map[string]any{"action": action, "params": params, "echo": echo}
	a.writeMu.Lock()
	err := conn.WriteJSON(req)
	a.writeMu.Unlock()
	if err != nil {
		a.dropPending(echo)
		a.setError(err)
		return nil, fmt.Errorf("failed to send onebot api request: %w", err)
	}

	timer := time.NewTimer(a.apiWait)
	defer timer.Stop()
	select {
	case resp := <-ch:
		status := stringValue(resp["status"])
		retcode := int64(0)
		if v, ok := intValue(resp["retcode"]); ok {
			retcode = v
		}
		if status == "ok" || retcode == 0 {
			return resp["data"], nil
		}
		msg := stringValue(resp["message"])
		if msg == "" {
			msg = stringValue(resp["wording"])
		}
		return nil, fmt.Errorf("onebot api %s failed: %s (retcode %d)", action, msg, retcode)

	case <-timer.C:
		a.dropPending(echo)
		return nil, fmt.Errorf("onebot api %s timed out", action)

	case <-ctx.Done():
		a.dropPending(echo)
		return nil, ctx.Err()
	}
}

func (a *Adapter) dropPending(echo string) {
	a.mu.Lock()
	delete(a.pending, echo)
	a.mu.Unlock()
}

// Send delivers a message into the conversation ev arrived from.
func (a *Adapter) Send(ctx context.Context, ev event.Event, msg message.Message) error {
	target, ok := event.ReplyTarget(ev)
	if !ok {
		return fmt.Errorf("%s events have no reply target", ev.Kind())
	}
	return a.SendTo(ctx, target, msg)
}

// SendTo delivers a message to an explicit group or private target.
func (a *Adapter) SendTo(ctx context.Context, target event.Target, msg message.Message) error {
	params := map[string]any{"message": segmentPayload(msg)}
	switch target.Kind {
	case event.ContextGroup:
		params["message_type"] = "group"
		params["group_id"] = idParam(target.ID)
	case event.ContextPrivate:
		params["message_type"] = "private"
		params["user_id"] = idParam(target.ID)
	default:
		return fmt.Errorf("onebot cannot send to %s targets", target.Kind)
	}

	_, err := a.CallAPI(ctx, "send_msg", params)
	return err
}

// segmentPayload renders a message in the OneBot array form.
func segmentPayload(msg message.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msg))
	for _, seg := range msg {
		data := seg.Data
		if data == nil {
			data = map[string]any{}
		}
		out = append(out, map[string]any{"type": seg.Type, "data": data})
	}
	return out
}

// idParam sends numeric ids as numbers, the form the protocol documents.
func idParam(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func (a *Adapter) Status() adapter.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return adapter.Status{
		Protocol:  Protocol,
		Running:   a.running,
		Connected: a.connected,
		StartedAt: a.startedAt,
		Messages:  a.messages,
		LastError: a.lastError,
		Detail: map[string]any{
			"ws_url":          a.cfg.URL(),
			"connection_type": "websocket",
			"self_id":         a.selfID,
			"self_trigger":    a.cfg.SelfTrigger,
			"errors":          a.errors,
		},
	}
}

func (a *Adapter) setError(err error) {
	a.mu.Lock()
	a.errors++
	a.lastError = err.Error()
	a.mu.Unlock()
}
