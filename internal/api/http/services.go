package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minimind-os/minimind/internal/shared/types"
)

// ListServices lists registered collaborator services, optionally
// filtered by ?category=.
func (h *Handlers) ListServices(c *gin.Context) {
	var category *types.Category
	if raw := c.Query("category"); raw != "" {
		cat := types.Category(raw)
		category = &cat
	}
	services := h.registry.List(category)
	c.JSON(http.StatusOK, gin.H{
		"services": services,
		"count":    len(services),
	})
}

type executeRequest struct {
	ToolID  string                 `json:"tool_id" binding:"required"`
	Params  map[string]interface{} `json:"params"`
	Context *types.Context         `json:"context"`
}

// ExecuteService runs a collaborator tool through the registry.
func (h *Handlers) ExecuteService(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := h.registry.Execute(c.Request.Context(), req.ToolID, req.Params, req.Context)
	if err != nil && result == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	status := http.StatusOK
	if result != nil && !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}
