package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lzcjsyr/AIGC-Video/application/ports/inbound"
	"github.com/lzcjsyr/AIGC-Video/application/ports/outbound"
	"github.com/lzcjsyr/AIGC-Video/channel_utils"
	"github.com/lzcjsyr/AIGC-Video/domain"
	"github.com/lzcjsyr/AIGC-Video/infrastructure/gin_interface/dto"
	"github.com/lzcjsyr/AIGC-Video/middleware"
)

const progressPollInterval = time.Second

type PipelineController interface {
	RegisterRoutes(g *gin.Engine)
}

type pipelineController struct {
	logger        outbound.LoggerPort
	sequencer     inbound.StepSequencerPort
	store         outbound.ArtifactStorePort
	workerPool    outbound.TaskDispatcher
	workspaceRoot string
}

func NewPipelineController(
	logger outbound.LoggerPort,
	sequencer inbound.StepSequencerPort,
	store outbound.ArtifactStorePort,
	workerPool outbound.TaskDispatcher,
	workspaceRoot string,
) PipelineController {
	return &pipelineController{
		logger:        logger,
		sequencer:     sequencer,
		store:         store,
		workerPool:    workerPool,
		workspaceRoot: workspaceRoot,
	}
}

func (p *pipelineController) RegisterRoutes(g *gin.Engine) {
	g.GET("/health", p.Health)
	g.POST("/projects", p.CreateProject)
	g.GET("/projects", p.ListProjects)
	g.GET("/projects/status", p.Status)
	g.GET("/projects/progress", middleware.SSEHeaders(), p.StreamProgress)
	g.POST("/projects/run", p.Run)
	g.POST("/projects/rerun", p.Rerun)
	g.POST("/projects/abort", p.Abort)
}

func (p *pipelineController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *pipelineController) CreateProject(c *gin.Context) {
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dir, err := p.sequencer.CreateProject(c.Request.Context(), inbound.CreateProjectParams{
		DocumentText: req.DocumentText,
		TargetLength: req.TargetLength,
		NumSegments:  req.NumSegments,
		LLMModel:     req.LLMModel,
		ImageModel:   req.ImageModel,
		Voice:        req.Voice,
		ImageSize:    req.ImageSize,
	})
	if err != nil {
		p.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.CreateProjectResponse{ProjectDir: dir})
}

func (p *pipelineController) Run(c *gin.Context) {
	var req dto.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := runModeFrom(req.Mode)
	if err != nil {
		p.abortWithError(c, err)
		return
	}

	runCtx, cancel := context.WithCancel(c)
	defer cancel()
	if err := p.sequencer.Run(runCtx, inbound.RunParams{
		ProjectDir:      req.ProjectDir,
		Mode:            mode,
		EnableSubtitles: req.EnableSubtitles,
		BGMPath:         req.BGMPath,
	}); err != nil {
		p.abortWithError(c, err)
		return
	}

	status, err := p.sequencer.Status(req.ProjectDir)
	if err != nil {
		p.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStatusResponse(status))
}

func (p *pipelineController) Rerun(c *gin.Context) {
	var req dto.RerunProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := runModeFrom(req.Mode)
	if err != nil {
		p.abortWithError(c, err)
		return
	}

	runCtx, cancel := context.WithCancel(c)
	defer cancel()
	if err := p.sequencer.Rerun(runCtx,
		domain.RerunRequest{ProjectDir: req.ProjectDir, FromStep: domain.Step(req.FromStep)},
		inbound.RunParams{
			ProjectDir:      req.ProjectDir,
			Mode:            mode,
			EnableSubtitles: req.EnableSubtitles,
			BGMPath:         req.BGMPath,
		}); err != nil {
		p.abortWithError(c, err)
		return
	}

	status, err := p.sequencer.Status(req.ProjectDir)
	if err != nil {
		p.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStatusResponse(status))
}

func (p *pipelineController) Abort(c *gin.Context) {
	var req dto.AbortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := p.sequencer.Abort(req.ProjectDir); err != nil {
		p.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "abort requested"})
}

func (p *pipelineController) Status(c *gin.Context) {
	dir := c.Query("project_dir")
	if dir == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "project_dir query parameter is required"})
		return
	}
	status, err := p.sequencer.Status(dir)
	if err != nil {
		p.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStatusResponse(status))
}

func (p *pipelineController) ListProjects(c *gin.Context) {
	dirs, err := p.store.ListProjects(p.workspaceRoot)
	if err != nil {
		p.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListProjectsResponse{Projects: dirs})
}

// StreamProgress pushes the project status as server-sent events until
// the run reaches a terminal state or the client disconnects. Status
// polls and keep-alive comments are produced on the worker pool and
// merged into one stream.
func (p *pipelineController) StreamProgress(c *gin.Context) {
	dir := c.Query("project_dir")
	if dir == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "project_dir query parameter is required"})
		return
	}

	clientGone := c.Request.Context().Done()
	updates := make(chan string)
	heartbeats := make(chan string)
	done := make(chan struct{})

	if err := p.workerPool.Submit(func() {
		defer close(updates)
		defer close(done)
		ticker := time.NewTicker(progressPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-clientGone:
				return
			case <-ticker.C:
				status, err := p.sequencer.Status(dir)
				if err != nil {
					p.logger.Error(err, "failed to read status for progress stream")
					return
				}
				payload, err := json.Marshal(dto.NewStatusResponse(status))
				if err != nil {
					p.logger.Error(err, "failed to encode progress event")
					return
				}
				select {
				case updates <- "data: " + string(payload) + "\n\n":
				case <-clientGone:
					return
				}
				if status.StepStatus == domain.StepComplete || status.StepStatus == domain.StepFailed {
					return
				}
			}
		}
	}); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := p.workerPool.Submit(func() {
		defer close(heartbeats)
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-clientGone:
				return
			case <-ticker.C:
				select {
				case heartbeats <- ": keep-alive\n\n":
				case <-done:
					return
				case <-clientGone:
					return
				}
			}
		}
	}); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	merged, err := channel_utils.MergeChannels(p.workerPool, updates, heartbeats)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Keep draining after a write failure so the producers can observe
	// the disconnect and close their channels.
	writeFailed := false
	for msg := range merged {
		if writeFailed {
			continue
		}
		if _, err := c.Writer.WriteString(msg); err != nil {
			writeFailed = true
			continue
		}
		c.Writer.Flush()
	}
}

func (p *pipelineController) abortWithError(c *gin.Context, err error) {
	p.logger.Error(err, "request failed")
	c.AbortWithStatusJSON(httpStatus(err), gin.H{"error": err.Error()})
}

func runModeFrom(raw string) (inbound.RunMode, error) {
	switch raw {
	case "", string(inbound.RunAuto):
		return inbound.RunAuto, nil
	case string(inbound.RunStepwise):
		return inbound.RunStepwise, nil
	default:
		return "", domain.NewValidationError("unknown run mode %q", raw)
	}
}

func httpStatus(err error) int {
	var pe *domain.PipelineError
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError
	}
	switch pe.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindContentPolicy:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
