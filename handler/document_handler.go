package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/course-assistant/types"
	"github.com/tieubaoca/course-assistant/utils"
)

// DocumentHandler serves corpus files so citations can link to their source.
type DocumentHandler struct {
	dataDir string
}

func NewDocumentHandler(dataDir string) *DocumentHandler {
	return &DocumentHandler{
		dataDir: dataDir,
	}
}

func (h *DocumentHandler) ServeDocument(c *gin.Context) {
	rel := c.Query("path")
	if rel == "" {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  false,
			Message: "path parameter is required",
		})
		return
	}

	full, err := utils.SafeJoin(h.dataDir, rel)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  false,
			Message: err.Error(),
		})
		return
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		status := http.StatusNotFound
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, types.DataResponse{
			Status:  false,
			Message: "File not found",
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(full)))
	c.File(full)
}
