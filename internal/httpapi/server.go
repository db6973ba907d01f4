// Package httpapi is the thin HTTP surface over the schedule, notify,
// processor and token services. Caller identity arrives in the X-User-ID
// header; verifying it is the job of the upstream gateway.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medremind/internal/model"
	"medremind/internal/notify"
	"medremind/internal/processor"
	"medremind/internal/schedule"
	"medremind/internal/store"
	"medremind/internal/tokens"
	logx "medremind/pkg/logx"
)

const defaultAddr = "127.0.0.1:8080"

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Server struct {
	cfg       Config
	log       logx.Logger
	schedules *schedule.Service
	notify    *notify.Service
	processor *processor.Service
	tokens    tokens.Registry

	srv *http.Server
}

func New(cfg Config, schedules *schedule.Service, n *notify.Service, p *processor.Service, reg tokens.Registry, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:       cfg,
		log:       log,
		schedules: schedules,
		notify:    n,
		processor: p,
		tokens:    reg,
	}
}

// Start begins serving in a new goroutine and returns immediately.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server exited", logx.Err(err))
		}
	}()
	s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	sched := v1.Group("/schedules")
	sched.POST("", s.createSchedule)
	sched.POST("/bulk", s.bulkCreateSchedules)
	sched.GET("/templates", s.listTemplates)
	sched.POST("/templates/:name", s.createFromTemplate)
	sched.GET("", s.listSchedules)
	sched.GET("/:id", s.getSchedule)
	sched.PUT("/:id", s.updateSchedule)
	sched.DELETE("/:id", s.deleteSchedule)
	sched.POST("/:id/activate", s.setScheduleActive(true))
	sched.POST("/:id/deactivate", s.setScheduleActive(false))

	v1.GET("/seniors/:id/upcoming", s.upcomingReminders)

	notif := v1.Group("/notifications")
	notif.GET("", s.listNotifications)
	notif.GET("/stats", s.notificationStats)
	notif.GET("/:id/logs", s.notificationLogs)
	notif.POST("/:id/confirm", s.confirmNotification)

	v1.POST("/tokens", s.registerToken)
	v1.DELETE("/tokens", s.deactivateToken)

	admin := v1.Group("/admin")
	admin.POST("/process/reminders", s.trigger(s.processor.ProcessDueSchedules))
	admin.POST("/process/missed-doses", s.trigger(s.processor.CheckMissedDoses))
	admin.POST("/process/escalations", s.trigger(s.processor.ProcessEscalations))

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("elapsed", time.Since(start)))
	}
}

func callerID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return "", false
	}
	return id, true
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed",
			logx.String("path", c.Request.URL.Path),
			logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ---- schedules ----

func (s *Server) createSchedule(c *gin.Context) {
	actor, ok := callerID(c)
	if !ok {
		return
	}
	var in schedule.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sc, err := s.schedules.Create(c.Request.Context(), actor, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sc)
}

func (s *Server) bulkCreateSchedules(c *gin.Context) {
	actor, ok := callerID(c)
	if !ok {
		return
	}
	var items []schedule.CreateInput
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results := s.schedules.BulkCreate(c.Request.Context(), actor, items)
	c.JSON(http.StatusMultiStatus, gin.H{"results": results})
}

func (s *Server) listTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": schedule.Templates()})
}

func (s *Server) createFromTemplate(c *gin.Context) {
	actor, ok := callerID(c)
	if !ok {
		return
	}
	var in schedule.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sc, err := s.schedules.CreateFromTemplate(c.Request.Context(), actor, c.Param("name"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sc)
}

func (s *Server) listSchedules(c *gin.Context) {
	f := store.ScheduleFilter{
		SeniorID:     c.Query("seniorId"),
		MedicationID: c.Query("medicationId"),
	}
	if v := c.Query("active"); v != "" {
		active := v == "true" || v == "1"
		f.IsActive = &active
	}
	if v := c.Query("day"); v != "" {
		f.Day = model.Weekday(strings.ToLower(v))
	}
	list, err := s.schedules.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": list})
}

func (s *Server) getSchedule(c *gin.Context) {
	sc, err := s.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *Server) updateSchedule(c *gin.Context) {
	actor, ok := callerID(c)
	if !ok {
		return
	}
	var in schedule.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sc, err := s.schedules.Update(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *Server) deleteSchedule(c *gin.Context) {
	actor, ok := callerID(c)
	if !ok {
		return
	}
	if err := s.schedules.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setScheduleActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := callerID(c)
		if !ok {
			return
		}
		sc, err := s.schedules.SetActive(c.Request.Context(), actor, c.Param("id"), active)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, sc)
	}
}

func (s *Server) upcomingReminders(c *gin.Context) {
	days := 7
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 31 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 31"})
			return
		}
		days = n
	}
	list, err := s.schedules.UpcomingReminders(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": list})
}

// ---- notifications ----

func (s *Server) listNotifications(c *gin.Context) {
	user, ok := callerID(c)
	if !ok {
		return
	}
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	list, err := s.notify.List(c.Request.Context(), user, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (s *Server) notificationStats(c *gin.Context) {
	user, ok := callerID(c)
	if !ok {
		return
	}
	stats, err := s.notify.Stats(c.Request.Context(), user)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) notificationLogs(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}
	logs, err := s.notify.Logs(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) confirmNotification(c *gin.Context) {
	user, ok := callerID(c)
	if !ok {
		return
	}
	n, err := s.notify.Confirm(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// ---- device tokens ----

func (s *Server) registerToken(c *gin.Context) {
	user, ok := callerID(c)
	if !ok {
		return
	}
	var t tokens.DeviceToken
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t.UpdatedAt = time.Now()
	if err := s.tokens.Store(c.Request.Context(), user, t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

func (s *Server) deactivateToken(c *gin.Context) {
	user, ok := callerID(c)
	if !ok {
		return
	}
	if err := s.tokens.Deactivate(c.Request.Context(), user); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- manual processor triggers ----

func (s *Server) trigger(run func(context.Context) (int, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := callerID(c); !ok {
			return
		}
		n, err := run(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"processed": n})
	}
}
