package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/course-assistant/types"
)

// AdminService is the administrative surface of the application.
type AdminService interface {
	Status(ctx context.Context) types.StatusResponse
	Rebuild() types.RebuildResponse
	RebuildStatus() types.RebuildStatus
}

type AdminHandler interface {
	HandleStatus(c *gin.Context)
	HandleRebuild(c *gin.Context)
	HandleRebuildStatus(c *gin.Context)
}

type adminHandler struct {
	adminService AdminService
}

func NewAdminHandler(adminService AdminService) AdminHandler {
	return &adminHandler{
		adminService: adminService,
	}
}

func (h *adminHandler) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.adminService.Status(c.Request.Context()))
}

// HandleRebuild starts a rebuild in the background. A request made while one
// is running is answered with started=false, not an error status.
func (h *adminHandler) HandleRebuild(c *gin.Context) {
	c.JSON(http.StatusOK, h.adminService.Rebuild())
}

func (h *adminHandler) HandleRebuildStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.adminService.RebuildStatus())
}
