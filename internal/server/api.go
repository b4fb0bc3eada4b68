package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sevir/wappa/internal/learner"
	"github.com/sevir/wappa/internal/store"
	"github.com/sevir/wappa/pkg/models"
	"github.com/sevir/wappa/pkg/vw"
)

func (s *Server) newGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/version", s.handleAPIVersion)
		api.GET("/session", s.handleAPISession)
		api.POST("/examples", s.handleAPIExample)
		api.POST("/predictions", s.handleAPIPredict)
		api.POST("/checkpoints", s.handleAPISave)
		api.GET("/checkpoints", s.handleAPICheckpointsList)
		api.GET("/checkpoints/:id", s.handleAPICheckpointGet)
		api.DELETE("/checkpoints/:id", s.handleAPICheckpointDelete)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	info := s.learner.Info()
	status := http.StatusOK
	if info.State == string(vw.StateClosed) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":     info.State,
		"session_id": info.ID,
		"transport":  info.Transport,
	})
}

func (s *Server) handleAPIVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.version,
		"commit":  s.commit,
	})
}

func (s *Server) handleAPISession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"session": s.learner.Info()})
}

func (s *Server) handleAPIExample(c *gin.Context) {
	var req models.ExampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.learner.Train(req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleAPIPredict(c *gin.Context) {
	var req models.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.learner.Predict(req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleAPISave(c *gin.Context) {
	var req models.SaveRequest
	// An empty body saves to the default location.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cp, err := s.learner.Save(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	status := http.StatusAccepted
	if cp.IsWritten() {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"checkpoint": cp})
}

func (s *Server) handleAPICheckpointsList(c *gin.Context) {
	statuses, err := parseStatusQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	checkpoints, err := s.learner.ListCheckpoints(models.ListRequest{
		SessionID: c.Query("session_id"),
		Status:    statuses,
		Tags:      c.QueryArray("tag"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkpoints": checkpoints})
}

func (s *Server) handleAPICheckpointGet(c *gin.Context) {
	cp, err := s.learner.GetCheckpoint(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoint": cp})
}

func (s *Server) handleAPICheckpointDelete(c *gin.Context) {
	removeFile := c.Query("remove_file") == "true"
	if err := s.learner.DeleteCheckpoint(c.Param("id"), removeFile); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// statusFor maps learner errors onto HTTP status codes. Anything not
// recognised is an engine fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, learner.ErrInvalidRequest), errors.Is(err, vw.ErrInvalidCharacter):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vw.ErrDummySession):
		return http.StatusConflict
	case errors.Is(err, vw.ErrSessionClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func parseStatusQuery(c *gin.Context) ([]models.CheckpointStatus, error) {
	raw := c.QueryArray("status")
	if len(raw) == 1 && strings.Contains(raw[0], ",") {
		// Also accept a comma-separated list.
		raw = strings.Split(raw[0], ",")
	}

	var statuses []models.CheckpointStatus
	for _, part := range raw {
		st := models.CheckpointStatus(strings.TrimSpace(part))
		if st == "" {
			continue
		}
		if !models.ValidCheckpointStatus(st) {
			return nil, &apiError{msg: "invalid status: " + string(st)}
		}
		statuses = append(statuses, st)
	}

	return statuses, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &apiError{msg: "invalid " + key}
	}
	return v, nil
}

type apiError struct{ msg string }

func (e *apiError) Error() string { return e.msg }
