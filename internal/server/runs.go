package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/agent/core"
	"github.com/thinhkhuat/scribe/internal/agent/telemetry"
	"github.com/thinhkhuat/scribe/internal/draft"
	"github.com/thinhkhuat/scribe/internal/store"
)

// RunsHandler serves run submission and inspection.
type RunsHandler struct {
	Cfg    *config.Config
	Store  *store.Store
	Orch   *core.Orchestrator
	Tel    *telemetry.Telemetry
	Hub    *Hub
	Logger *log.Logger
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("/runs", h.createRun)
	g.GET("/runs", h.listRuns)
	g.GET("/runs/:id", h.getRun)
	g.GET("/runs/:id/report", h.getReport)
	if h.Cfg.Server.StreamEnabled {
		g.GET("/events", h.streamEvents)
		g.GET("/runs/:id/events", h.streamEvents)
	}
	g.GET("/usage", h.usage)
	g.POST("/schedules", h.createSchedule)
	g.GET("/schedules", h.listSchedules)
}

func (h *RunsHandler) createRun(c echo.Context) error {
	var task draft.ResearchTask
	if err := c.Bind(&task); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task payload")
	}
	if strings.TrimSpace(task.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	runID, err := h.StartRun(c.Request().Context(), task)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"run_id": runID})
}

// StartRun persists the run and launches the pipeline in the
// background. The pipeline outlives the request; only the configured
// run timeout bounds it.
func (h *RunsHandler) StartRun(ctx context.Context, task draft.ResearchTask) (string, error) {
	d := draft.NewDraft(task)
	d.Stage = "INIT"
	if err := h.Store.CreateRun(ctx, d); err != nil {
		return "", fmt.Errorf("persisting run: %w", err)
	}

	go func() {
		runCtx := context.Background()
		if h.Cfg.General.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, h.Cfg.General.RunTimeout)
			defer cancel()
		}
		if _, err := h.Orch.RunDraft(runCtx, d); err != nil {
			h.Logger.Printf("run %s failed: %v", d.RunID, err)
		}
		if err := h.Store.FinishRun(context.Background(), d); err != nil {
			h.Logger.Printf("persisting run %s result: %v", d.RunID, err)
		}
	}()
	return d.RunID, nil
}

func (h *RunsHandler) listRuns(c echo.Context) error {
	runs, err := h.Store.ListRuns(c.Request().Context(), 50)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *RunsHandler) getRun(c echo.Context) error {
	ctx := c.Request().Context()
	rec, ok, err := h.Store.GetRun(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	sections, err := h.Store.GetRunSections(ctx, rec.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run":      rec,
		"sections": sections,
	})
}

func (h *RunsHandler) getReport(c echo.Context) error {
	rec, ok, err := h.Store.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if rec.Document == "" {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("run is %s; no report available", rec.Stage))
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(rec.Document))
}

// streamEvents relays progress events over SSE. A run ID from the path
// or the run_id query parameter filters to one run.
func (h *RunsHandler) streamEvents(c echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		runID = c.QueryParam("run_id")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sub, cancel := h.Hub.Subscribe()
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub:
			if runID != "" && ev.RunID != runID {
				continue
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func (h *RunsHandler) usage(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Tel.Usage())
}

type scheduleRequest struct {
	Name     string             `json:"name"`
	CronExpr string             `json:"cron_expr"`
	Task     draft.ResearchTask `json:"task"`
}

func (h *RunsHandler) createSchedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid schedule payload")
	}
	if strings.TrimSpace(req.CronExpr) == "" || strings.TrimSpace(req.Task.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "cron_expr and task.query are required")
	}
	id, err := h.Store.CreateSchedule(c.Request().Context(), req.Name, req.CronExpr, req.Task)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"schedule_id": id})
}

func (h *RunsHandler) listSchedules(c echo.Context) error {
	schedules, err := h.Store.ListSchedules(c.Request().Context())
	if err != nil {
		return err
	}
	if schedules == nil {
		schedules = []store.Schedule{}
	}
	return c.JSON(http.StatusOK, schedules)
}
