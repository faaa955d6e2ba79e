package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
	"gitlab.com/gitlab-org/runner-pool/orchestrator"
	"gitlab.com/gitlab-org/runner-pool/pool"
)

const RequestIDHeader = "X-Request-Id"

const forceStopTimeout = 30 * time.Second

func init() {
	gin.SetMode(gin.ReleaseMode)
}

//go:generate mockery --name=Pool --inpackage --with-expecter=false
type Pool interface {
	Status() pool.Status
	Pause()
	Resume()
	ForceStop(ctx context.Context, id string) error
}

//go:generate mockery --name=PoolSource --inpackage --with-expecter=false
type PoolSource interface {
	Status() []pool.Status
	Lookup(name string) (Pool, error)
}

type orchestratorSource struct {
	orchestrator *orchestrator.Orchestrator
}

// FromOrchestrator exposes the pools of o to the status API.
func FromOrchestrator(o *orchestrator.Orchestrator) PoolSource {
	return &orchestratorSource{orchestrator: o}
}

func (s *orchestratorSource) Status() []pool.Status {
	return s.orchestrator.Status()
}

func (s *orchestratorSource) Lookup(name string) (Pool, error) {
	p, err := s.orchestrator.Pool(name)
	if err != nil {
		return nil, err
	}

	return p, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// RunnerStatus is one entry of the runners listing.
type RunnerStatus struct {
	Pool string `json:"pool"`
	pool.RunnerInfo
}

type Server struct {
	source PoolSource
	logger logrus.FieldLogger
	engine *gin.Engine
}

func New(source PoolSource, logger logrus.FieldLogger) *Server {
	s := &Server{
		source: source,
		logger: logger,
		engine: gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.requestID, s.accessLog)

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/pools", s.handlePoolList)
	v1.GET("/pools/:pool", s.handlePoolGet)
	v1.POST("/pools/:pool/pause", s.handlePoolPause)
	v1.POST("/pools/:pool/resume", s.handlePoolResume)
	v1.DELETE("/pools/:pool/runners/:id", s.handleRunnerDelete)
	v1.GET("/runners", s.handleRunnerList)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}

	c.Set("request_id", id)
	c.Header(RequestIDHeader, id)
	c.Next()
}

func (s *Server) accessLog(c *gin.Context) {
	started := time.Now()
	c.Next()

	s.logger.WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"duration":   time.Since(started),
	}).Debugln("API request")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handlePoolList(c *gin.Context) {
	pools := lo.Map(s.source.Status(), func(status pool.Status, _ int) pool.Status {
		status.Runners = nil
		return status
	})

	c.JSON(http.StatusOK, pools)
}

func (s *Server) lookup(c *gin.Context) (Pool, bool) {
	p, err := s.source.Lookup(c.Param("pool"))
	if err != nil {
		s.handleError(c, err)
		return nil, false
	}

	return p, true
}

func (s *Server) handlePoolGet(c *gin.Context) {
	p, ok := s.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, p.Status())
}

func (s *Server) handlePoolPause(c *gin.Context) {
	p, ok := s.lookup(c)
	if !ok {
		return
	}

	p.Pause()
	c.JSON(http.StatusOK, gin.H{"pool": c.Param("pool"), "paused": true})
}

func (s *Server) handlePoolResume(c *gin.Context) {
	p, ok := s.lookup(c)
	if !ok {
		return
	}

	p.Resume()
	c.JSON(http.StatusOK, gin.H{"pool": c.Param("pool"), "paused": false})
}

func (s *Server) handleRunnerDelete(c *gin.Context) {
	p, ok := s.lookup(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), forceStopTimeout)
	defer cancel()

	id := c.Param("id")
	if err := p.ForceStop(ctx, id); err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id, "state": pool.StateStopping})
}

func (s *Server) handleRunnerList(c *gin.Context) {
	runners := lo.FlatMap(s.source.Status(), func(status pool.Status, _ int) []RunnerStatus {
		return lo.Map(status.Runners, func(info pool.RunnerInfo, _ int) RunnerStatus {
			return RunnerStatus{Pool: status.Name, RunnerInfo: info}
		})
	})

	c.JSON(http.StatusOK, runners)
}

func (s *Server) handleError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrPoolNotFound), errors.Is(err, common.ErrRunnerNotFound):
		code = http.StatusNotFound
	case errors.Is(err, pool.ErrInvalidTransition):
		code = http.StatusConflict
	default:
		s.logger.WithError(err).
			WithField("request_id", c.GetString("request_id")).
			Errorln("API request failed")
	}

	c.AbortWithStatusJSON(code, errorResponse{Error: err.Error()})
}
