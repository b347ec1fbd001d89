package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthorizing
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ConnEvent смена состояния соединения (после авторизации / при обрыве).
type ConnEvent struct {
	Connected bool
	Err       error
	At        time.Time
}

type Options struct {
	URL   string
	AppID string
	Token string

	RequestTimeout    time.Duration
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	PongTimeout       time.Duration

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  float64

	SubscriptionBuffer int
}

func (o *Options) withDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 5 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax < o.BackoffInitial {
		o.BackoffMax = 60 * time.Second
	}
	if o.SubscriptionBuffer <= 0 {
		o.SubscriptionBuffer = 256
	}
}

type subscription struct {
	name    string
	payload map[string]any
	ch      chan *Response
}

// Client одно авторизованное websocket-соединение с брокером:
// запросы с корреляцией по req_id, подписки с переподпиской после
// реконнекта, heartbeat и экспоненциальный backoff.
type Client struct {
	opts   Options
	log    *zap.Logger
	dialer *websocket.Dialer
	router *router

	state atomic.Int32
	reqID atomic.Int64

	mu     sync.Mutex
	conn   *websocket.Conn
	ready  chan struct{} // закрыт, пока состояние Connected
	subs   map[string]*subscription
	subIDs map[string]string // id подписки у брокера -> имя
	// replayed: подписки текущего соединения уже отправлены заново,
	// до этого Subscribe только регистрирует подписку
	replayed bool

	writeMu sync.Mutex

	events chan ConnEvent

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewClient(opts Options, log *zap.Logger) *Client {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		opts:   opts,
		log:    log.Named("deriv_ws"),
		dialer: &websocket.Dialer{HandshakeTimeout: opts.RequestTimeout},
		router: newRouter(),
		ready:  make(chan struct{}),
		subs:   make(map[string]*subscription),
		subIDs: make(map[string]string),
		events: make(chan ConnEvent, 16),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *Client) endpoint() string {
	sep := "?"
	if strings.Contains(c.opts.URL, "?") {
		sep = "&"
	}
	return c.opts.URL + sep + "app_id=" + c.opts.AppID
}

func (c *Client) State() State { return State(c.state.Load()) }

// Events канал смен состояния; если читатель не успевает, события теряются.
func (c *Client) Events() <-chan ConnEvent { return c.events }

// Start запускает цикл подключения. Повторный вызов ничего не делает.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		go c.run(runCtx)
	})
}

// Stop закрывает соединение и отклоняет все ожидающие запросы.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)

		started := false
		c.startOnce.Do(func() {}) // после Stop старт запрещён
		if c.cancel != nil {
			c.cancel()
			started = true
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.dropConnection(conn)
		}
		c.router.rejectAll(ErrDisconnected)

		if started {
			<-c.done
		}
		c.log.Info("[WS] stopped")
	})
}

// WaitUntilConnected ждёт состояния Connected не дольше timeout.
func (c *Client) WaitUntilConnected(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-ready:
		return nil
	case <-t.C:
		return ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return ErrDisconnected
	}
}

// Request ждёт подключения и отправляет запрос. Ошибка брокера в теле
// ответа ошибкой вызова не считается: смотри Response.Err.
func (c *Client) Request(ctx context.Context, payload map[string]any) (*Response, error) {
	if err := c.WaitUntilConnected(ctx, c.opts.ConnectTimeout); err != nil {
		return nil, err
	}
	return c.rawRequest(ctx, payload, c.opts.RequestTimeout)
}

// Subscribe регистрирует подписку под именем name. Канал живёт между
// реконнектами; после переподключения payload отправляется заново.
func (c *Client) Subscribe(ctx context.Context, name string, payload map[string]any) (<-chan *Response, error) {
	c.mu.Lock()
	sub, ok := c.subs[name]
	if !ok {
		sub = &subscription{name: name, ch: make(chan *Response, c.opts.SubscriptionBuffer)}
		c.subs[name] = sub
	}
	sub.payload = payload
	active := c.State() == StateConnected && c.replayed
	c.mu.Unlock()

	if !active {
		return sub.ch, nil
	}
	if err := c.activate(ctx, sub); err != nil {
		return sub.ch, err
	}
	return sub.ch, nil
}

// Unsubscribe убирает подписку локально в любом случае и закрывает канал;
// forget брокеру отправляется по возможности.
func (c *Client) Unsubscribe(ctx context.Context, name string) error {
	c.mu.Lock()
	sub, ok := c.subs[name]
	delete(c.subs, name)
	var brokerID string
	for id, n := range c.subIDs {
		if n == name {
			brokerID = id
			delete(c.subIDs, id)
		}
	}
	if ok {
		close(sub.ch)
	}
	connected := c.State() == StateConnected
	c.mu.Unlock()

	if brokerID == "" || !connected {
		return nil
	}
	resp, err := c.Request(ctx, map[string]any{"forget": brokerID})
	if err != nil {
		return errors.Wrapf(err, "forget %s", name)
	}
	if perr := resp.Err(); perr != nil {
		return errors.Wrapf(perr, "forget %s", name)
	}
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	bo := NewBackoff(c.opts.BackoffInitial, c.opts.BackoffMax, c.opts.BackoffJitter)
	for {
		if ctx.Err() != nil {
			return
		}
		authorized, err := c.connectAndServe(ctx)
		if authorized {
			bo.Reset()
		}
		if ctx.Err() != nil {
			return
		}

		delay := bo.Next()
		c.log.Warn("[WS] connection lost, reconnecting", zap.Error(err), zap.Duration("backoff", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) (authorized bool, err error) {
	c.state.Store(int32(StateConnecting))
	c.log.Info("[WS] connecting", zap.String("url", c.opts.URL))

	dialCtx, cancelDial := context.WithTimeout(ctx, c.opts.RequestTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, c.endpoint(), nil)
	cancelDial()
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return false, errors.Wrap(err, "dial")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	connCtx, cancelConn := context.WithCancel(ctx)
	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- c.readLoop(conn)
	}()

	defer func() {
		cancelConn()
		c.dropConnection(conn)
		wg.Wait()
		if authorized {
			c.publish(ConnEvent{Connected: false, Err: err, At: time.Now()})
		}
	}()

	c.state.Store(int32(StateAuthorizing))
	resp, err := c.rawRequest(connCtx, map[string]any{"authorize": c.opts.Token}, c.opts.RequestTimeout)
	if err != nil {
		return false, errors.Wrap(err, "authorize")
	}
	if perr := resp.Err(); perr != nil {
		return false, errors.Wrap(perr, "authorize")
	}

	c.markConnected()
	authorized = true
	c.log.Info("[WS] authorized")
	c.publish(ConnEvent{Connected: true, At: time.Now()})

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- c.heartbeat(connCtx)
	}()

	c.resubscribeAll(connCtx)

	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return authorized, err
}

func (c *Client) markConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Store(int32(StateConnected))
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

// dropConnection переводит клиент в Disconnected и отклоняет все pending.
// Можно звать несколько раз для одного conn.
func (c *Client) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.replayed = false
	c.state.Store(int32(StateDisconnected))
	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default:
	}
	c.mu.Unlock()

	_ = conn.Close()
	if n := c.router.rejectAll(ErrDisconnected); n > 0 {
		c.log.Warn("[WS] pending requests rejected", zap.Int("count", n))
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.dropConnection(conn)
			return errors.Wrap(err, "read")
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	resp, err := ParseFrame(raw)
	if err != nil {
		c.log.Warn("[WS] bad frame", zap.Error(err), zap.Int("size", len(raw)))
		return
	}
	if resp.ReqID != nil {
		if !c.router.resolve(*resp.ReqID, resp) && resp.SubscriptionID() == "" {
			c.log.Debug("[WS] late response dropped", zap.Int64("req_id", *resp.ReqID))
		}
	}
	if id := resp.SubscriptionID(); id != "" {
		c.dispatch(id, resp)
	}
}

func (c *Client) dispatch(brokerID string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[c.subIDs[brokerID]]
	if !ok {
		return
	}
	select {
	case sub.ch <- resp:
	default:
		c.log.Warn("[WS] subscription buffer full, frame dropped", zap.String("sub", sub.name))
	}
}

func (c *Client) rawRequest(ctx context.Context, payload map[string]any, timeout time.Duration) (*Response, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrDisconnected
	}

	id := c.reqID.Add(1)
	msg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["req_id"] = id

	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	wait := c.router.register(id)
	if err := c.write(conn, data); err != nil {
		c.router.discard(id)
		return nil, errors.Wrap(err, "write")
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case res := <-wait:
		return res.resp, res.err
	case <-t.C:
		c.router.discard(id)
		return nil, errors.Wrapf(ErrRequestTimeout, "req_id=%d", id)
	case <-ctx.Done():
		c.router.discard(id)
		return nil, ctx.Err()
	case <-c.stopCh:
		c.router.discard(id)
		return nil, ErrDisconnected
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.RequestTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) heartbeat(ctx context.Context) error {
	t := time.NewTicker(c.opts.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_, err := c.rawRequest(ctx, map[string]any{"ping": 1}, c.opts.PongTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.log.Warn("[WS] heartbeat failed", zap.Error(err))
				return errors.Wrap(err, "heartbeat")
			}
		}
	}
}

// resubscribeAll отправляет подписки заново по текущему соединению.
// При обрыве выходит сразу: следующее подключение повторит всё с начала.
func (c *Client) resubscribeAll(ctx context.Context) {
	c.mu.Lock()
	c.subIDs = make(map[string]string)
	c.replayed = true
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for i, s := range subs {
		resp, err := c.rawRequest(ctx, s.payload, c.opts.RequestTimeout)
		if err = c.bind(s, resp, err); err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, ErrDisconnected) || c.State() != StateConnected {
			c.log.Warn("[WS] resubscribe interrupted", zap.Int("left", len(subs)-i), zap.Error(err))
			return
		}
		c.log.Error("[WS] resubscribe failed", zap.String("sub", s.name), zap.Error(err))
	}
}

// activate отправляет payload подписки и запоминает id брокера.
func (c *Client) activate(ctx context.Context, sub *subscription) error {
	resp, err := c.Request(ctx, sub.payload)
	return c.bind(sub, resp, err)
}

// bind разбирает ответ на подписку. Первое значение потока приходит
// в самом ответе, его тоже отдаём в канал.
func (c *Client) bind(sub *subscription, resp *Response, err error) error {
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", sub.name)
	}
	if perr := resp.Err(); perr != nil {
		return errors.Wrapf(perr, "subscribe %s", sub.name)
	}
	id := resp.SubscriptionID()
	if id == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.subs[sub.name]; !ok || cur != sub {
		return nil
	}
	c.subIDs[id] = sub.name
	select {
	case sub.ch <- resp:
	default:
	}
	return nil
}

func (c *Client) publish(ev ConnEvent) {
	select {
	case c.events <- ev:
	default:
	}
}
