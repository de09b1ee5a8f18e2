// Package controller exposes the farm's HTTP surface.
package controller

import (
	"time"

	"github.com/gin-gonic/gin"

	"prooffarm/internal/farm/collector"
	"prooffarm/internal/farm/pool"
	"prooffarm/internal/farm/repository"
	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/response"
)

// FarmController serves health, readiness, status and result lookup.
type FarmController struct {
	pool      *pool.WorkerPool
	collector *collector.Collector
	status    repository.StatusRepository
	results   repository.ResultStore
	started   time.Time
}

// NewFarmController creates the controller. status and results may be
// nil; the result endpoint then reports what it has.
func NewFarmController(p *pool.WorkerPool, c *collector.Collector, status repository.StatusRepository, results repository.ResultStore) *FarmController {
	return &FarmController{
		pool:      p,
		collector: c,
		status:    status,
		results:   results,
		started:   time.Now(),
	}
}

// RegisterRoutes attaches all endpoints to the engine.
func (fc *FarmController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", fc.Health)
	r.GET("/readyz", fc.Ready)

	api := r.Group("/api/v1/farm")
	{
		api.GET("/status", fc.Status)
		api.GET("/results/:id", fc.Result)
	}
}

// Health always reports ok while the process is up.
func (fc *FarmController) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// Ready reports ok only while the worker pool is running.
func (fc *FarmController) Ready(c *gin.Context) {
	if fc.pool == nil || !fc.pool.IsRunning() {
		response.Error(c, appErr.New(appErr.PoolNotRunning))
		return
	}
	response.Success(c, gin.H{"status": "ready"})
}

type statusResponse struct {
	Running       bool            `json:"running"`
	QueueDepth    int             `json:"queue_depth"`
	ActiveWorkers int             `json:"active_workers"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Results       collector.Stats `json:"results"`
}

// Status reports queue depth, worker activity and result counters.
func (fc *FarmController) Status(c *gin.Context) {
	resp := statusResponse{
		UptimeSeconds: int64(time.Since(fc.started).Seconds()),
	}
	if fc.pool != nil {
		resp.Running = fc.pool.IsRunning()
		resp.QueueDepth = fc.pool.QueueDepth()
		resp.ActiveWorkers = fc.pool.ActiveWorkers()
	}
	if fc.collector != nil {
		resp.Results = fc.collector.Stats()
	}
	response.Success(c, resp)
}

type resultResponse struct {
	Status interface{} `json:"status,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Result looks up one job by id: its lifecycle status from redis and,
// when finished, the durable result row.
func (fc *FarmController) Result(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		response.Error(c, appErr.Newf(appErr.InvalidParams, "job id is required"))
		return
	}

	var resp resultResponse
	found := false

	if fc.status != nil {
		record, err := fc.status.Get(c.Request.Context(), jobID)
		if err == nil {
			resp.Status = record
			found = true
		} else if !appErr.Is(err, appErr.JobNotFound) {
			response.Error(c, err)
			return
		}
	}

	if fc.results != nil {
		result, err := fc.results.Get(c.Request.Context(), jobID)
		if err == nil {
			resp.Result = result
			found = true
		} else if !appErr.Is(err, appErr.RecordNotFound) {
			response.Error(c, err)
			return
		}
	}

	if !found {
		response.Error(c, appErr.Newf(appErr.JobNotFound, "job %s not found", jobID))
		return
	}
	response.Success(c, resp)
}
