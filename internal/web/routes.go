package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sstent/stridetrack-go/internal/database"
	"github.com/sstent/stridetrack-go/internal/metrics"
	"github.com/sstent/stridetrack-go/internal/models"
	"github.com/sstent/stridetrack-go/internal/tracking"
)

// SessionController is the subset of the tracker the HTTP layer drives.
type SessionController interface {
	Start(ctx context.Context, opts tracking.StartOptions) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) (*models.SessionResult, error)
	State() models.SessionState
	Subscribe(buffer int) *tracking.Subscription
}

type Defaults struct {
	ActivityType models.ActivityType
	Unit         models.Unit
}

type WebHandler struct {
	tracker  SessionController
	db       database.Database
	defaults Defaults
	log      logrus.FieldLogger

	done      chan struct{}
	closeOnce sync.Once
}

func NewWebHandler(tracker SessionController, db database.Database, defaults Defaults, log logrus.FieldLogger) *WebHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if defaults.ActivityType == "" {
		defaults.ActivityType = models.ActivityRun
	}
	if defaults.Unit == "" {
		defaults.Unit = models.Kilometers
	}
	return &WebHandler{
		tracker:  tracker,
		db:       db,
		defaults: defaults,
		log:      log.WithField("component", "web"),
		done:     make(chan struct{}),
	}
}

// Close ends open event streams so the server can shut down.
func (h *WebHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// NewRouter builds a gin engine with every route registered.
func (h *WebHandler) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	h.loadTemplates(router)
	h.RegisterRoutes(router)
	return router
}

func (h *WebHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	session := router.Group("/session")
	session.GET("", h.SessionState)
	session.GET("/events", h.SessionEvents)
	session.POST("/start", h.StartSession)
	session.POST("/pause", h.PauseSession)
	session.POST("/resume", h.ResumeSession)
	session.POST("/stop", h.StopSession)

	router.GET("/stats", h.Stats)
	router.GET("/activities", h.ActivityList)
	router.GET("/activities/:id", h.ActivityDetail)
	router.DELETE("/activities/:id", h.DeleteActivity)
}

func (h *WebHandler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (h *WebHandler) Health(c *gin.Context) {
	if p, ok := h.db.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			h.log.WithError(err).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *WebHandler) SessionState(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionView(h.tracker.State()))
}

type startRequest struct {
	ActivityType string `json:"activity_type"`
	Unit         string `json:"unit"`
}

func (h *WebHandler) StartSession(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := tracking.StartOptions{ActivityType: h.defaults.ActivityType, Unit: h.defaults.Unit}
	if req.ActivityType != "" {
		activity, err := models.ParseActivityType(req.ActivityType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.ActivityType = activity
	}
	if req.Unit != "" {
		unit, err := models.ParseUnit(req.Unit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.Unit = unit
	}

	if err := h.tracker.Start(c.Request.Context(), opts); err != nil {
		h.commandError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionView(h.tracker.State()))
}

type pauseResponse struct {
	sessionView
	Error string `json:"error,omitempty"`
}

// PauseSession answers 200 even when a source failed to stop, since the
// session is paused regardless. The failure is reported in the body.
func (h *WebHandler) PauseSession(c *gin.Context) {
	resp := pauseResponse{}
	if err := h.tracker.Pause(c.Request.Context()); err != nil {
		h.log.WithError(err).Warn("pause released sources with errors")
		resp.Error = err.Error()
	}
	resp.sessionView = newSessionView(h.tracker.State())
	c.JSON(http.StatusOK, resp)
}

func (h *WebHandler) ResumeSession(c *gin.Context) {
	if err := h.tracker.Resume(c.Request.Context()); err != nil {
		h.commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionView(h.tracker.State()))
}

func (h *WebHandler) StopSession(c *gin.Context) {
	result, err := h.tracker.Stop(c.Request.Context())
	if result == nil && err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no active session"})
		return
	}
	if result == nil {
		h.commandError(c, err)
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("session_id", result.ID).Warn("session stopped with errors")
	}
	c.JSON(http.StatusOK, result)
}

func (h *WebHandler) commandError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tracking.ErrAlreadyTracking):
		status = http.StatusConflict
	case errors.Is(err, tracking.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, tracking.ErrSourceUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// SessionEvents streams tracker events as server-sent events, starting with
// the current state.
func (h *WebHandler) SessionEvents(c *gin.Context) {
	sub := h.tracker.Subscribe(64)
	defer sub.Close()

	c.SSEvent("state", newSessionView(h.tracker.State()))
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind()), eventPayload(ev))
			return true
		case <-ctx.Done():
			return false
		case <-h.done:
			return false
		}
	})
}

func (h *WebHandler) Stats(c *gin.Context) {
	stats, err := h.db.GetStats(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("load stats")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *WebHandler) ActivityList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	filters := database.ActivityFilters{
		ActivityType: c.Query("type"),
		Limit:        limit,
		Offset:       offset,
		SortBy:       c.Query("sort"),
		SortOrder:    c.Query("order"),
	}
	if filters.ActivityType != "" {
		if _, err := models.ParseActivityType(filters.ActivityType); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	activities, err := h.db.FilterActivities(c.Request.Context(), filters)
	if errors.Is(err, database.ErrInvalidFilter) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.WithError(err).Error("list activities")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, activities)
}

func (h *WebHandler) ActivityDetail(c *gin.Context) {
	activity, err := h.db.GetActivity(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.WithError(err).Error("load activity")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, activity)
}

func (h *WebHandler) DeleteActivity(c *gin.Context) {
	err := h.db.DeleteActivity(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.WithError(err).Error("delete activity")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}
