package service

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"deriv_bot/internal/models"
)

const (
	requestTimeout  = 10 * time.Second
	defaultLimit    = 200
	maxLimit        = 1000
	requestIDHeader = "X-Request-ID"
)

type KillSwitchControl interface {
	Current() models.KillSwitchState
	Activate(reason string) error
	Deactivate(reason string) error
}

type TradeLister interface {
	ListTrades(ctx context.Context, limit int) ([]models.TradeRow, error)
}

type EventStore interface {
	ListEvents(ctx context.Context, limit int) ([]models.Event, error)
	LogEvent(ctx context.Context, level models.EventLevel, typ, message string, data map[string]any) error
}

type APIDeps struct {
	State      *State
	Metrics    *Metrics
	KillSwitch KillSwitchControl
	Trades     TradeLister
	Events     EventStore
}

// API HTTP поверхность мониторинга и ручного управления.
type API struct {
	APIDeps
	log *zap.Logger
}

func NewAPI(deps APIDeps, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{APIDeps: deps, log: log.With(zap.String("component", "http"))}
}

func (a *API) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestID(), a.accessLog(), gin.Recovery())

	r.GET("/livez", a.livez)
	r.GET("/readyz", a.readyz)
	r.GET("/healthz", a.healthz)
	r.GET("/metrics", a.metrics)
	r.GET("/killswitch", a.killSwitch)
	r.POST("/killswitch/enable", a.enableKillSwitch)
	r.POST("/killswitch/disable", a.disableKillSwitch)
	r.GET("/trades", a.trades)
	r.GET("/events", a.events)
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Set(requestIDHeader, id)
		c.Next()
	}
}

func (a *API) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Debug("[HTTP] request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDHeader)),
		)
	}
}

func (a *API) livez(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (a *API) readyz(c *gin.Context) {
	if !a.State.Ready() {
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ready")
}

func (a *API) healthz(c *gin.Context) {
	var lastTick int64
	if t := a.State.LastTick(); !t.IsZero() {
		lastTick = t.Unix()
	}
	c.JSON(http.StatusOK, gin.H{
		"ready":         a.State.Ready(),
		"wsConnected":   a.State.WSConnected(),
		"reconnects":    a.State.Reconnects(),
		"candlesClosed": a.State.CandlesClosed(),
		"uptimeSec":     int64(a.State.Uptime().Seconds()),
		"lastTickUnix":  lastTick,
	})
}

// metrics основной снимок, ?symbol= конкретный, ?all=1 все.
func (a *API) metrics(c *gin.Context) {
	if c.Query("all") != "" {
		c.JSON(http.StatusOK, a.Metrics.All())
		return
	}
	snap, ok := a.Metrics.Snapshot(c.Query("symbol"))
	if !ok {
		a.fail(c, http.StatusNotFound, "unknown symbol", nil)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) killSwitch(c *gin.Context) {
	c.JSON(http.StatusOK, a.KillSwitch.Current())
}

type killSwitchRequest struct {
	Reason string `json:"reason"`
}

func (a *API) enableKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual_enable"
	}
	if err := a.KillSwitch.Activate(req.Reason); err != nil {
		a.fail(c, http.StatusInternalServerError, "kill switch update failed", err)
		return
	}
	st := a.KillSwitch.Current()
	a.logEvent(c, models.LevelWarn, "killswitch", "Kill switch enabled via HTTP", st)
	c.JSON(http.StatusOK, st)
}

func (a *API) disableKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual_reset"
	}
	if err := a.KillSwitch.Deactivate(req.Reason); err != nil {
		a.fail(c, http.StatusInternalServerError, "kill switch update failed", err)
		return
	}
	st := a.KillSwitch.Current()
	a.logEvent(c, models.LevelInfo, "killswitch", "Kill switch disabled via HTTP", st)
	c.JSON(http.StatusOK, st)
}

func (a *API) trades(c *gin.Context) {
	limit, ok := a.limit(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	rows, err := a.Trades.ListTrades(ctx, limit)
	if err != nil {
		a.fail(c, http.StatusInternalServerError, "internal error", err)
		return
	}
	if rows == nil {
		rows = []models.TradeRow{}
	}
	c.JSON(http.StatusOK, rows)
}

func (a *API) events(c *gin.Context) {
	limit, ok := a.limit(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	rows, err := a.Events.ListEvents(ctx, limit)
	if err != nil {
		a.fail(c, http.StatusInternalServerError, "internal error", err)
		return
	}
	if rows == nil {
		rows = []models.Event{}
	}
	c.JSON(http.StatusOK, rows)
}

func (a *API) limit(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		a.fail(c, http.StatusBadRequest, "limit must be an integer in [1,1000]", err)
		return 0, false
	}
	return n, true
}

func (a *API) logEvent(c *gin.Context, level models.EventLevel, typ, message string, st models.KillSwitchState) {
	if a.Events == nil {
		return
	}
	if err := a.Events.LogEvent(c.Request.Context(), level, typ, message, map[string]any{
		"enabled": st.Enabled,
		"reason":  st.Reason,
	}); err != nil {
		a.log.Warn("[HTTP] event log failed", zap.Error(err))
	}
}

func (a *API) fail(c *gin.Context, status int, msg string, err error) {
	id := c.GetString(requestIDHeader)
	if err != nil && status >= http.StatusInternalServerError {
		a.log.Error("[HTTP] request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", id),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": msg, "request_id": id})
}
