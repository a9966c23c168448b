// Package http exposes the kernel surface to UI collaborators: the
// home screen, the parent panel, and the process and memory viewers
// all talk to these routes.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/minimind-os/minimind/internal/apps"
	"github.com/minimind-os/minimind/internal/domain/service"
	"github.com/minimind-os/minimind/internal/kernel"
	"github.com/minimind-os/minimind/internal/kernel/memory"
	"github.com/minimind-os/minimind/internal/kernel/process"
	"github.com/minimind-os/minimind/internal/providers/parental"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	kernel   *kernel.Kernel
	registry *service.Registry
	launcher *apps.Launcher
	version  string
}

// NewHandlers creates a new handler set
func NewHandlers(k *kernel.Kernel, registry *service.Registry, launcher *apps.Launcher, version string) *Handlers {
	return &Handlers{
		kernel:   k,
		registry: registry,
		launcher: launcher,
		version:  version,
	}
}

// Root handles the landing check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "MiniMind OS",
		"version": h.version,
	})
}

// Health reports component health
func (h *Handlers) Health(c *gin.Context) {
	snap := h.kernel.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"tick":             snap.Tick,
		"processes":        len(snap.Processes),
		"memory":           snap.Memory,
		"service_registry": h.registry.Stats(),
	})
}

type spawnRequest struct {
	Name     string `json:"name" binding:"required"`
	Priority int    `json:"priority"`
	MemoryKB int    `json:"memory_kb" binding:"required"`
	Icon     string `json:"icon"`
}

// SpawnProcess admits a new process. Memory exhaustion is reported to
// the caller but still returns the pid of the terminated PCB.
func (h *Handlers) SpawnProcess(c *gin.Context) {
	var req spawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	pid, err := h.kernel.Spawn(req.Name, req.Priority, req.MemoryKB, req.Icon)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, process.ErrTooManyProcesses) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	pcb, _ := h.kernel.Process(pid)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"pid":     pid,
		"process": pcb,
	})
}

// ListProcesses returns the process table ordered by pid.
func (h *Handlers) ListProcesses(c *gin.Context) {
	procs := h.kernel.Processes()
	c.JSON(http.StatusOK, gin.H{
		"processes": procs,
		"count":     len(procs),
	})
}

// GetProcess returns one PCB.
func (h *Handlers) GetProcess(c *gin.Context) {
	pid, ok := h.pidParam(c)
	if !ok {
		return
	}
	pcb, found := h.kernel.Process(pid)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": process.ErrUnknownProcess.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"process": pcb})
}

// TerminateProcess kills a process.
func (h *Handlers) TerminateProcess(c *gin.Context) {
	pid, ok := h.pidParam(c)
	if !ok {
		return
	}
	if err := h.kernel.Terminate(pid, process.ReasonKilled); err != nil {
		h.kernelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pid": pid})
}

// BlockProcess moves a RUNNING process to WAITING.
func (h *Handlers) BlockProcess(c *gin.Context) {
	pid, ok := h.pidParam(c)
	if !ok {
		return
	}
	if err := h.kernel.Block(pid); err != nil {
		h.kernelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pid": pid})
}

// UnblockProcess signals the awaited event; the transition applies on
// the next tick.
func (h *Handlers) UnblockProcess(c *gin.Context) {
	pid, ok := h.pidParam(c)
	if !ok {
		return
	}
	if err := h.kernel.Unblock(pid); err != nil {
		h.kernelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pid": pid})
}

// YieldProcess gives up the current slice.
func (h *Handlers) YieldProcess(c *gin.Context) {
	pid, ok := h.pidParam(c)
	if !ok {
		return
	}
	if err := h.kernel.Yield(pid); err != nil {
		h.kernelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pid": pid})
}

type priorityRequest struct {
	Priority int `json:"priority" binding:"required"`
}

// SetProcessPriority is the administrative priority override.
func (h *Handlers) SetProcessPriority(c *gin.Context) {
	pid, ok := h.pidParam(c)
	if !ok {
		return
	}
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := h.kernel.SetPriority(pid, req.Priority); err != nil {
		h.kernelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pid": pid, "priority": req.Priority})
}

// ReapProcesses purges TERMINATED PCBs.
func (h *Handlers) ReapProcesses(c *gin.Context) {
	n := h.kernel.Reap()
	c.JSON(http.StatusOK, gin.H{"success": true, "reaped": n})
}

// GetMemory returns memory accounting for the memory viewer.
func (h *Handlers) GetMemory(c *gin.Context) {
	c.JSON(http.StatusOK, h.kernel.MemoryUsage())
}

// GetMemoryMap returns the block layout.
func (h *Handlers) GetMemoryMap(c *gin.Context) {
	blocks := h.kernel.MemoryMap()
	c.JSON(http.StatusOK, gin.H{
		"blocks": blocks,
		"count":  len(blocks),
	})
}

// GetSchedulerStats returns scheduler counters.
func (h *Handlers) GetSchedulerStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.kernel.SchedulerStats())
}

// GetSnapshot returns the combined viewer snapshot.
func (h *Handlers) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.kernel.Snapshot())
}

func (h *Handlers) pidParam(c *gin.Context) (uint32, bool) {
	raw := c.Param("pid")
	pid, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid pid: " + raw})
		return 0, false
	}
	return uint32(pid), true
}

func (h *Handlers) kernelError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, process.ErrUnknownProcess):
		status = http.StatusNotFound
	case errors.Is(err, process.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, memory.ErrOutOfMemory):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func statusFromLaunchErr(err error) int {
	switch {
	case errors.Is(err, apps.ErrUnknownApp):
		return http.StatusNotFound
	case errors.Is(err, apps.ErrNoMemory), errors.Is(err, apps.ErrAlreadyOpen):
		return http.StatusConflict
	case errors.Is(err, parental.ErrLocked),
		errors.Is(err, parental.ErrBedtime),
		errors.Is(err, parental.ErrTimeLimit),
		errors.Is(err, parental.ErrAppDisabled):
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}
