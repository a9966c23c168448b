package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minimind-os/minimind/internal/kernel/process"
)

// ListApps returns the catalog with per-app allowed flags plus the
// running instances, the home screen's whole view.
func (h *Handlers) ListApps(c *gin.Context) {
	user := c.DefaultQuery("user", "kid")
	c.JSON(http.StatusOK, gin.H{
		"catalog":   h.launcher.Available(user),
		"instances": h.launcher.Instances(),
	})
}

type launchRequest struct {
	AppID string `json:"app_id" binding:"required"`
	User  string `json:"user"`
}

// LaunchApp starts a catalog app through the parental spawn gate.
func (h *Handlers) LaunchApp(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.User == "" {
		req.User = "kid"
	}

	inst, err := h.launcher.Launch(req.AppID, req.User)
	if err != nil {
		c.JSON(statusFromLaunchErr(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"instance": inst,
	})
}

// CloseApp terminates a running instance and lets it save.
func (h *Handlers) CloseApp(c *gin.Context) {
	pid, ok := h.pidParam(c)
	if !ok {
		return
	}
	if err := h.launcher.Close(pid, process.ReasonExited); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pid": pid})
}
